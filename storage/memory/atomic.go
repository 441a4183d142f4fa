package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/cyp0633/libonair/storage"
)

func (s *Store) programmeLock(programmeID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[programmeID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[programmeID] = lock
	}
	return lock
}

// copyLocked returns a store sharing s's records but owning its maps.
// Callers hold at least the read lock.
func (s *Store) copyLocked() *Store {
	return &Store{
		programmes: maps.Clone(s.programmes),
		slots:      maps.Clone(s.slots),
		schedules:  maps.Clone(s.schedules),
		episodes:   maps.Clone(s.episodes),
		order:      maps.Clone(s.order),
		seq:        s.seq,
		locks:      make(map[string]*sync.Mutex),
	}
}

// begin returns the state a transaction starts from and the private copy
// the transaction writes to.
func (s *Store) begin() (base, tx *Store) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked(), s.copyLocked()
}

// applyChanges copies into live every record tx replaced, added or removed
// relative to base. Records are never edited in place, so an unchanged
// pointer means an untouched record. It returns the added IDs.
func applyChanges[V any](live, base, tx map[string]*V, order map[string]uint64) []string {
	var added []string
	for id, v := range tx {
		old, existed := base[id]
		if existed && old == v {
			continue
		}
		if !existed {
			added = append(added, id)
		}
		live[id] = v
	}
	for id := range base {
		if _, kept := tx[id]; !kept {
			delete(live, id)
			delete(order, id)
		}
	}
	return added
}

// commit applies tx's writes to s in one step.
func (s *Store) commit(base, tx *Store) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	added = append(added, applyChanges(s.programmes, base.programmes, tx.programmes, s.order)...)
	added = append(added, applyChanges(s.slots, base.slots, tx.slots, s.order)...)
	added = append(added, applyChanges(s.schedules, base.schedules, tx.schedules, s.order)...)
	added = append(added, applyChanges(s.episodes, base.episodes, tx.episodes, s.order)...)

	slices.SortFunc(added, func(a, b string) int { return cmp.Compare(tx.order[a], tx.order[b]) })
	for _, id := range added {
		s.track(id)
	}
}

// Atomically serialises fn with every other Atomically call for the same
// programme. fn works on a private copy of the store: other readers see none
// of its writes until fn returns nil, and then all of them at once. When fn
// fails its writes are dropped.
func (s *Store) Atomically(ctx context.Context, programmeID string, fn func(tx storage.Storage) error) error {
	lock := s.programmeLock(programmeID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	base, tx := s.begin()
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(base, tx)
	return nil
}
