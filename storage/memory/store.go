// memory based implementation for testing purposes and the CLI's default backend
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/cyp0633/libonair/schedule"
	"github.com/cyp0633/libonair/storage"
	"github.com/google/uuid"
)

// Store implements storage.Storage interface using in-memory maps
type Store struct {
	mu         sync.RWMutex
	programmes map[string]*schedule.Programme
	slots      map[string]*schedule.Slot
	schedules  map[string]*schedule.Schedule
	episodes   map[string]*schedule.Episode
	order      map[string]uint64 // insertion order of every record, by ID
	seq        uint64

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // key: programme ID
}

var _ storage.Storage = (*Store)(nil)

// New creates a new in-memory storage
func New() *Store {
	return &Store{
		programmes: make(map[string]*schedule.Programme),
		slots:      make(map[string]*schedule.Slot),
		schedules:  make(map[string]*schedule.Schedule),
		episodes:   make(map[string]*schedule.Episode),
		order:      make(map[string]uint64),
		locks:      make(map[string]*sync.Mutex),
	}
}

// track records the insertion order of id. Callers hold the write lock.
func (s *Store) track(id string) {
	if _, ok := s.order[id]; !ok {
		s.seq++
		s.order[id] = s.seq
	}
}

func (s *Store) byInsertion(a, b string) int {
	return cmp.Compare(s.order[a], s.order[b])
}

func cloneProgramme(p *schedule.Programme) *schedule.Programme {
	c := *p
	return &c
}

func cloneEpisode(e *schedule.Episode) *schedule.Episode {
	c := *e
	if e.IssueDate != nil {
		d := *e.IssueDate
		c.IssueDate = &d
	}
	return &c
}

func cloneSchedule(sc *schedule.Schedule) *schedule.Schedule {
	c := *sc
	c.Slot = nil
	c.Recurrence.RRules = slices.Clone(sc.Recurrence.RRules)
	c.Recurrence.ExRules = slices.Clone(sc.Recurrence.ExRules)
	c.Recurrence.RDates = slices.Clone(sc.Recurrence.RDates)
	c.Recurrence.ExDates = slices.Clone(sc.Recurrence.ExDates)
	if sc.SourceID != nil {
		id := *sc.SourceID
		c.SourceID = &id
	}
	return &c
}

// loadSlot returns a copy of a slot with its programme attached. Callers hold
// at least the read lock.
func (s *Store) loadSlot(id string) (*schedule.Slot, bool) {
	slot, ok := s.slots[id]
	if !ok {
		return nil, false
	}
	c := *slot
	if p, ok := s.programmes[slot.ProgrammeID]; ok {
		c.Programme = cloneProgramme(p)
	}
	return &c, true
}

func (s *Store) loadSchedule(sc *schedule.Schedule) *schedule.Schedule {
	c := cloneSchedule(sc)
	c.Slot, _ = s.loadSlot(sc.SlotID)
	return c
}

// Programme operations

func (s *Store) GetProgramme(_ context.Context, id string) (*schedule.Programme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.programmes[id]
	if !ok {
		return nil, storage.NotFound("programme", id)
	}
	return cloneProgramme(p), nil
}

func (s *Store) GetProgrammeBySlug(_ context.Context, slug string) (*schedule.Programme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.programmes {
		if p.Slug == slug {
			return cloneProgramme(p), nil
		}
	}
	return nil, storage.NotFound("programme", slug)
}

func (s *Store) ListProgrammes(_ context.Context) ([]*schedule.Programme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	programmes := make([]*schedule.Programme, 0, len(s.programmes))
	for _, p := range s.programmes {
		programmes = append(programmes, cloneProgramme(p))
	}
	slices.SortFunc(programmes, func(a, b *schedule.Programme) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return programmes, nil
}

func (s *Store) slugTaken(slug, exceptID string) bool {
	for _, p := range s.programmes {
		if p.Slug == slug && p.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Store) CreateProgramme(_ context.Context, p *schedule.Programme) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Slug == "" {
		p.Slug = schedule.Slugify(p.Name)
	}
	if _, exists := s.programmes[p.ID]; exists {
		return &storage.Error{Type: storage.ErrAlreadyExists, Message: "programme already exists"}
	}
	if s.slugTaken(p.Slug, p.ID) {
		return &storage.Error{Type: storage.ErrAlreadyExists, Message: "programme slug " + p.Slug + " is taken"}
	}

	s.programmes[p.ID] = cloneProgramme(p)
	s.track(p.ID)
	return nil
}

func (s *Store) UpdateProgramme(_ context.Context, p *schedule.Programme) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.programmes[p.ID]; !exists {
		return storage.NotFound("programme", p.ID)
	}
	if p.Slug == "" {
		p.Slug = schedule.Slugify(p.Name)
	}
	if s.slugTaken(p.Slug, p.ID) {
		return &storage.Error{Type: storage.ErrAlreadyExists, Message: "programme slug " + p.Slug + " is taken"}
	}

	s.programmes[p.ID] = cloneProgramme(p)
	return nil
}

func (s *Store) DeleteProgramme(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.programmes[id]; !exists {
		return storage.NotFound("programme", id)
	}
	delete(s.programmes, id)
	delete(s.order, id)

	for slotID, slot := range s.slots {
		if slot.ProgrammeID == id {
			s.deleteSlotLocked(slotID)
		}
	}
	for episodeID, e := range s.episodes {
		if e.ProgrammeID == id {
			delete(s.episodes, episodeID)
			delete(s.order, episodeID)
		}
	}
	return nil
}

// Slot operations

func (s *Store) GetSlot(_ context.Context, id string) (*schedule.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.loadSlot(id)
	if !ok {
		return nil, storage.NotFound("slot", id)
	}
	return slot, nil
}

func (s *Store) ListSlots(_ context.Context, programmeID string) ([]*schedule.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var slots []*schedule.Slot
	for id, slot := range s.slots {
		if slot.ProgrammeID == programmeID {
			loaded, _ := s.loadSlot(id)
			slots = append(slots, loaded)
		}
	}
	slices.SortFunc(slots, func(a, b *schedule.Slot) int { return s.byInsertion(a.ID, b.ID) })
	return slots, nil
}

func (s *Store) CreateSlot(_ context.Context, slot *schedule.Slot) error {
	if err := slot.Validate(); err != nil {
		return storage.InvalidInput("invalid slot", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if _, exists := s.slots[slot.ID]; exists {
		return &storage.Error{Type: storage.ErrAlreadyExists, Message: "slot already exists"}
	}
	if _, ok := s.programmes[slot.ProgrammeID]; !ok {
		return storage.NotFound("programme", slot.ProgrammeID)
	}

	c := *slot
	c.Programme = nil
	s.slots[slot.ID] = &c
	s.track(slot.ID)
	return nil
}

func (s *Store) DeleteSlot(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.slots[id]; !exists {
		return storage.NotFound("slot", id)
	}
	s.deleteSlotLocked(id)
	return nil
}

func (s *Store) deleteSlotLocked(id string) {
	delete(s.slots, id)
	delete(s.order, id)
	for scheduleID, sc := range s.schedules {
		if sc.SlotID == id {
			delete(s.schedules, scheduleID)
			delete(s.order, scheduleID)
		}
	}
}

// Schedule operations

func (s *Store) GetSchedule(_ context.Context, id string) (*schedule.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.schedules[id]
	if !ok {
		return nil, storage.NotFound("schedule", id)
	}
	return s.loadSchedule(sc), nil
}

func (s *Store) ListSchedules(_ context.Context, filter *storage.ScheduleFilter) ([]*schedule.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var schedules []*schedule.Schedule
	for _, sc := range s.schedules {
		loaded := s.loadSchedule(sc)
		if filter.Matches(loaded) {
			schedules = append(schedules, loaded)
		}
	}
	slices.SortFunc(schedules, func(a, b *schedule.Schedule) int { return s.byInsertion(a.ID, b.ID) })
	return schedules, nil
}

// resolveSlotID fills in SlotID from Slot and checks the slot exists.
func (s *Store) resolveSlotID(sc *schedule.Schedule) error {
	if sc.SlotID == "" && sc.Slot != nil {
		sc.SlotID = sc.Slot.ID
	}
	if _, ok := s.slots[sc.SlotID]; !ok {
		return storage.NotFound("slot", sc.SlotID)
	}
	return nil
}

func (s *Store) CreateSchedule(_ context.Context, sc *schedule.Schedule) error {
	if err := sc.Validate(); err != nil {
		return storage.InvalidInput("invalid schedule", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if _, exists := s.schedules[sc.ID]; exists {
		return &storage.Error{Type: storage.ErrAlreadyExists, Message: "schedule already exists"}
	}
	if err := s.resolveSlotID(sc); err != nil {
		return err
	}

	s.schedules[sc.ID] = cloneSchedule(sc)
	s.track(sc.ID)
	return nil
}

func (s *Store) UpdateSchedule(_ context.Context, sc *schedule.Schedule) error {
	if err := sc.Validate(); err != nil {
		return storage.InvalidInput("invalid schedule", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[sc.ID]; !exists {
		return storage.NotFound("schedule", sc.ID)
	}
	if err := s.resolveSlotID(sc); err != nil {
		return err
	}

	s.schedules[sc.ID] = cloneSchedule(sc)
	return nil
}

func (s *Store) DeleteSchedule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[id]; !exists {
		return storage.NotFound("schedule", id)
	}
	delete(s.schedules, id)
	delete(s.order, id)

	// Schedules re-airing the deleted one lose their source. Stored records
	// are replaced, never edited, so open transactions keep their view.
	for otherID, sc := range s.schedules {
		if sc.SourceID != nil && *sc.SourceID == id {
			c := cloneSchedule(sc)
			c.SourceID = nil
			s.schedules[otherID] = c
		}
	}
	return nil
}

// Episode operations

func (s *Store) GetEpisode(_ context.Context, id string) (*schedule.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.episodes[id]
	if !ok {
		return nil, storage.NotFound("episode", id)
	}
	return cloneEpisode(e), nil
}

func compareEpisodes(a, b *schedule.Episode) int {
	return cmp.Or(schedule.CompareEpisodes(a, b), cmp.Compare(a.ID, b.ID))
}

func (s *Store) ListEpisodes(_ context.Context, filter *storage.EpisodeFilter) ([]*schedule.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var episodes []*schedule.Episode
	for _, e := range s.episodes {
		if filter.Matches(e) {
			episodes = append(episodes, cloneEpisode(e))
		}
	}
	slices.SortFunc(episodes, compareEpisodes)
	return episodes, nil
}

func (s *Store) LastEpisode(_ context.Context, programmeID string) (*schedule.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *schedule.Episode
	for _, e := range s.episodes {
		if e.ProgrammeID == programmeID && (last == nil || compareEpisodes(e, last) > 0) {
			last = e
		}
	}
	if last == nil {
		return nil, &storage.Error{Type: storage.ErrNotFound, Message: "programme " + programmeID + " has no episodes"}
	}
	return cloneEpisode(last), nil
}

func (s *Store) numberTaken(e *schedule.Episode) bool {
	for _, other := range s.episodes {
		if other.ID != e.ID && other.ProgrammeID == e.ProgrammeID &&
			other.Season == e.Season && other.NumberInSeason == e.NumberInSeason {
			return true
		}
	}
	return false
}

func (s *Store) CreateEpisode(_ context.Context, e *schedule.Episode) error {
	if err := e.Validate(); err != nil {
		return storage.InvalidInput("invalid episode", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, exists := s.episodes[e.ID]; exists {
		return &storage.Error{Type: storage.ErrAlreadyExists, Message: "episode already exists"}
	}
	if _, ok := s.programmes[e.ProgrammeID]; !ok {
		return storage.NotFound("programme", e.ProgrammeID)
	}
	if s.numberTaken(e) {
		return &storage.Error{Type: storage.ErrAlreadyExists, Message: "episode number already used in season"}
	}

	s.episodes[e.ID] = cloneEpisode(e)
	s.track(e.ID)
	return nil
}

func (s *Store) UpdateEpisode(_ context.Context, e *schedule.Episode) error {
	if err := e.Validate(); err != nil {
		return storage.InvalidInput("invalid episode", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.episodes[e.ID]; !exists {
		return storage.NotFound("episode", e.ID)
	}
	if s.numberTaken(e) {
		return &storage.Error{Type: storage.ErrAlreadyExists, Message: "episode number already used in season"}
	}

	s.episodes[e.ID] = cloneEpisode(e)
	return nil
}
