// Package sqlstore keeps the broadcast schedule in a relational database
// through gorm. sqlite and postgres are supported.
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cyp0633/libonair/schedule"
	"github.com/cyp0633/libonair/storage"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Store implements storage.Storage on top of gorm
type Store struct {
	db *gorm.DB
}

var _ storage.Storage = (*Store)(nil)

// Open connects to the database and migrates the schema. driver is
// "sqlite" or "postgres".
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		// Every sqlite connection to ":memory:" is a separate database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	store := New(db)
	if err := store.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

// New wraps an already opened gorm connection. The schema is not migrated.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&programmeRow{}, &slotRow{}, &scheduleRow{}, &episodeRow{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps gorm errors onto storage errors.
func translate(err error, kind, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.NotFound(kind, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &storage.Error{Type: storage.ErrAlreadyExists, Message: kind + " already exists", Err: err}
	default:
		return err
	}
}

// requireRows turns an update that touched nothing into a not found error.
func requireRows(result *gorm.DB, kind, id string) error {
	if result.Error != nil {
		return translate(result.Error, kind, id)
	}
	if result.RowsAffected == 0 {
		return storage.NotFound(kind, id)
	}
	return nil
}

// Programme operations

func (s *Store) GetProgramme(ctx context.Context, id string) (*schedule.Programme, error) {
	var row programmeRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, translate(err, "programme", id)
	}
	return row.toProgramme(), nil
}

func (s *Store) GetProgrammeBySlug(ctx context.Context, slug string) (*schedule.Programme, error) {
	var row programmeRow
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).Take(&row).Error; err != nil {
		return nil, translate(err, "programme", slug)
	}
	return row.toProgramme(), nil
}

func (s *Store) ListProgrammes(ctx context.Context) ([]*schedule.Programme, error) {
	var rows []programmeRow
	if err := s.db.WithContext(ctx).Order("name, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	programmes := make([]*schedule.Programme, 0, len(rows))
	for _, row := range rows {
		programmes = append(programmes, row.toProgramme())
	}
	return programmes, nil
}

func (s *Store) CreateProgramme(ctx context.Context, p *schedule.Programme) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Slug == "" {
		p.Slug = schedule.Slugify(p.Name)
	}
	row := fromProgramme(p)
	return translate(s.db.WithContext(ctx).Create(&row).Error, "programme", p.ID)
}

func (s *Store) UpdateProgramme(ctx context.Context, p *schedule.Programme) error {
	if p.Slug == "" {
		p.Slug = schedule.Slugify(p.Name)
	}
	result := s.db.WithContext(ctx).Model(&programmeRow{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"slug":           p.Slug,
		"name":           p.Name,
		"synopsis":       p.Synopsis,
		"current_season": p.CurrentSeason,
	})
	return requireRows(result, "programme", p.ID)
}

func (s *Store) DeleteProgramme(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&programmeRow{})
		if err := requireRows(result, "programme", id); err != nil {
			return err
		}
		if err := tx.Where("programme_id = ?", id).Delete(&scheduleRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("programme_id = ?", id).Delete(&slotRow{}).Error; err != nil {
			return err
		}
		return tx.Where("programme_id = ?", id).Delete(&episodeRow{}).Error
	})
}

// Slot operations

func (s *Store) programmesByID(ctx context.Context, ids []string) (map[string]*schedule.Programme, error) {
	var rows []programmeRow
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
	}
	programmes := make(map[string]*schedule.Programme, len(rows))
	for _, row := range rows {
		programmes[row.ID] = row.toProgramme()
	}
	return programmes, nil
}

func (s *Store) GetSlot(ctx context.Context, id string) (*schedule.Slot, error) {
	var row slotRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, translate(err, "slot", id)
	}
	programme, err := s.GetProgramme(ctx, row.ProgrammeID)
	if err != nil && !storage.IsNotFound(err) {
		return nil, err
	}
	return row.toSlot(programme), nil
}

func (s *Store) ListSlots(ctx context.Context, programmeID string) ([]*schedule.Slot, error) {
	var rows []slotRow
	if err := s.db.WithContext(ctx).Where("programme_id = ?", programmeID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	programme, err := s.GetProgramme(ctx, programmeID)
	if err != nil && !storage.IsNotFound(err) {
		return nil, err
	}
	slots := make([]*schedule.Slot, 0, len(rows))
	for _, row := range rows {
		slots = append(slots, row.toSlot(programme))
	}
	return slots, nil
}

func (s *Store) CreateSlot(ctx context.Context, slot *schedule.Slot) error {
	if err := slot.Validate(); err != nil {
		return storage.InvalidInput("invalid slot", err)
	}
	if _, err := s.GetProgramme(ctx, slot.ProgrammeID); err != nil {
		return err
	}
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	row := fromSlot(slot)
	return translate(s.db.WithContext(ctx).Create(&row).Error, "slot", slot.ID)
}

func (s *Store) DeleteSlot(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&slotRow{})
		if err := requireRows(result, "slot", id); err != nil {
			return err
		}
		return tx.Where("slot_id = ?", id).Delete(&scheduleRow{}).Error
	})
}

// Schedule operations

// loadSchedules attaches slots and programmes to schedule rows.
func (s *Store) loadSchedules(ctx context.Context, rows []scheduleRow) ([]*schedule.Schedule, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	slotIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		slotIDs = append(slotIDs, row.SlotID)
	}
	var slotRows []slotRow
	if err := s.db.WithContext(ctx).Where("id IN ?", slotIDs).Find(&slotRows).Error; err != nil {
		return nil, err
	}

	programmeIDs := make([]string, 0, len(slotRows))
	for _, row := range slotRows {
		programmeIDs = append(programmeIDs, row.ProgrammeID)
	}
	programmes, err := s.programmesByID(ctx, programmeIDs)
	if err != nil {
		return nil, err
	}

	slots := make(map[string]slotRow, len(slotRows))
	for _, row := range slotRows {
		slots[row.ID] = row
	}

	schedules := make([]*schedule.Schedule, 0, len(rows))
	for _, row := range rows {
		var slot *schedule.Slot
		if sr, ok := slots[row.SlotID]; ok {
			slot = sr.toSlot(programmes[sr.ProgrammeID])
		}
		schedules = append(schedules, row.toSchedule(slot))
	}
	return schedules, nil
}

func (s *Store) GetSchedule(ctx context.Context, id string) (*schedule.Schedule, error) {
	var row scheduleRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, translate(err, "schedule", id)
	}
	schedules, err := s.loadSchedules(ctx, []scheduleRow{row})
	if err != nil {
		return nil, err
	}
	return schedules[0], nil
}

func (s *Store) ListSchedules(ctx context.Context, filter *storage.ScheduleFilter) ([]*schedule.Schedule, error) {
	query := s.db.WithContext(ctx).Order("created_at, id")
	if filter != nil {
		if filter.ProgrammeID != "" {
			query = query.Where("programme_id = ?", filter.ProgrammeID)
		}
		if len(filter.Types) > 0 {
			types := make([]string, 0, len(filter.Types))
			for _, t := range filter.Types {
				types = append(types, string(t))
			}
			query = query.Where("type IN ?", types)
		}
	}

	var rows []scheduleRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.loadSchedules(ctx, rows)
}

// scheduleProgramme resolves the slot of sc and returns its programme ID.
func (s *Store) scheduleProgramme(ctx context.Context, sc *schedule.Schedule) (string, error) {
	if sc.SlotID == "" && sc.Slot != nil {
		sc.SlotID = sc.Slot.ID
	}
	var slot slotRow
	if err := s.db.WithContext(ctx).Where("id = ?", sc.SlotID).Take(&slot).Error; err != nil {
		return "", translate(err, "slot", sc.SlotID)
	}
	return slot.ProgrammeID, nil
}

func (s *Store) CreateSchedule(ctx context.Context, sc *schedule.Schedule) error {
	if err := sc.Validate(); err != nil {
		return storage.InvalidInput("invalid schedule", err)
	}
	programmeID, err := s.scheduleProgramme(ctx, sc)
	if err != nil {
		return err
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	row := fromSchedule(sc, programmeID)
	return translate(s.db.WithContext(ctx).Create(&row).Error, "schedule", sc.ID)
}

func (s *Store) UpdateSchedule(ctx context.Context, sc *schedule.Schedule) error {
	if err := sc.Validate(); err != nil {
		return storage.InvalidInput("invalid schedule", err)
	}
	programmeID, err := s.scheduleProgramme(ctx, sc)
	if err != nil {
		return err
	}
	row := fromSchedule(sc, programmeID)
	result := s.db.WithContext(ctx).Model(&scheduleRow{}).Where("id = ?", sc.ID).Updates(map[string]interface{}{
		"slot_id":      row.SlotID,
		"programme_id": row.ProgrammeID,
		"type":         row.Type,
		"recurrence":   row.Recurrence,
		"source_id":    row.SourceID,
	})
	return requireRows(result, "schedule", sc.ID)
}

func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&scheduleRow{})
		if err := requireRows(result, "schedule", id); err != nil {
			return err
		}
		return tx.Model(&scheduleRow{}).Where("source_id = ?", id).Update("source_id", nil).Error
	})
}

// Episode operations

func (s *Store) GetEpisode(ctx context.Context, id string) (*schedule.Episode, error) {
	var row episodeRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, translate(err, "episode", id)
	}
	return row.toEpisode(), nil
}

func (s *Store) ListEpisodes(ctx context.Context, filter *storage.EpisodeFilter) ([]*schedule.Episode, error) {
	query := s.db.WithContext(ctx).Order("season, number_in_season, id")
	if filter != nil {
		if filter.ProgrammeID != "" {
			query = query.Where("programme_id = ?", filter.ProgrammeID)
		}
		if filter.NotAiredAt != nil {
			query = query.Where("(issue_date IS NULL OR issue_date >= ?)", filter.NotAiredAt.UTC())
		}
	}

	var rows []episodeRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	episodes := make([]*schedule.Episode, 0, len(rows))
	for _, row := range rows {
		episodes = append(episodes, row.toEpisode())
	}
	return episodes, nil
}

func (s *Store) LastEpisode(ctx context.Context, programmeID string) (*schedule.Episode, error) {
	var row episodeRow
	err := s.db.WithContext(ctx).
		Where("programme_id = ?", programmeID).
		Order("season DESC, number_in_season DESC").
		Take(&row).Error
	if err != nil {
		return nil, translate(err, "episode of programme", programmeID)
	}
	return row.toEpisode(), nil
}

func (s *Store) CreateEpisode(ctx context.Context, e *schedule.Episode) error {
	if err := e.Validate(); err != nil {
		return storage.InvalidInput("invalid episode", err)
	}
	if _, err := s.GetProgramme(ctx, e.ProgrammeID); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row := fromEpisode(e)
	return translate(s.db.WithContext(ctx).Create(&row).Error, "episode", e.ID)
}

func (s *Store) UpdateEpisode(ctx context.Context, e *schedule.Episode) error {
	if err := e.Validate(); err != nil {
		return storage.InvalidInput("invalid episode", err)
	}
	row := fromEpisode(e)
	result := s.db.WithContext(ctx).Model(&episodeRow{}).Where("id = ?", e.ID).Updates(map[string]interface{}{
		"season":           row.Season,
		"number_in_season": row.NumberInSeason,
		"issue_date":       row.IssueDate,
		"title":            row.Title,
		"summary":          row.Summary,
	})
	return requireRows(result, "episode", e.ID)
}
