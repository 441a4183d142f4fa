package sqlstore

import (
	"context"

	"github.com/cyp0633/libonair/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Atomically runs fn inside a database transaction holding a row lock on the
// programme. sqlite ignores FOR UPDATE and serialises writers on its own.
func (s *Store) Atomically(ctx context.Context, programmeID string, fn func(tx storage.Storage) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row programmeRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", programmeID).Take(&row).Error
		if err != nil {
			return translate(err, "programme", programmeID)
		}
		return fn(&Store{db: tx})
	})
}
