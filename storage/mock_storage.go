package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cyp0633/libonair/recurrence"
	"github.com/cyp0633/libonair/schedule"
	"github.com/stretchr/testify/mock"
)

// MockStorage implements the Storage interface for testing
type MockStorage struct {
	mock.Mock
}

var _ Storage = (*MockStorage)(nil)

func (m *MockStorage) GetProgramme(ctx context.Context, id string) (*schedule.Programme, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Programme), args.Error(1)
}

func (m *MockStorage) GetProgrammeBySlug(ctx context.Context, slug string) (*schedule.Programme, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Programme), args.Error(1)
}

func (m *MockStorage) ListProgrammes(ctx context.Context) ([]*schedule.Programme, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*schedule.Programme), args.Error(1)
}

func (m *MockStorage) CreateProgramme(ctx context.Context, p *schedule.Programme) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockStorage) UpdateProgramme(ctx context.Context, p *schedule.Programme) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockStorage) DeleteProgramme(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStorage) GetSlot(ctx context.Context, id string) (*schedule.Slot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Slot), args.Error(1)
}

func (m *MockStorage) ListSlots(ctx context.Context, programmeID string) ([]*schedule.Slot, error) {
	args := m.Called(ctx, programmeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*schedule.Slot), args.Error(1)
}

func (m *MockStorage) CreateSlot(ctx context.Context, slot *schedule.Slot) error {
	return m.Called(ctx, slot).Error(0)
}

func (m *MockStorage) DeleteSlot(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStorage) GetSchedule(ctx context.Context, id string) (*schedule.Schedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Schedule), args.Error(1)
}

func (m *MockStorage) ListSchedules(ctx context.Context, filter *ScheduleFilter) ([]*schedule.Schedule, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*schedule.Schedule), args.Error(1)
}

func (m *MockStorage) CreateSchedule(ctx context.Context, s *schedule.Schedule) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockStorage) UpdateSchedule(ctx context.Context, s *schedule.Schedule) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockStorage) DeleteSchedule(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStorage) GetEpisode(ctx context.Context, id string) (*schedule.Episode, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Episode), args.Error(1)
}

func (m *MockStorage) ListEpisodes(ctx context.Context, filter *EpisodeFilter) ([]*schedule.Episode, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*schedule.Episode), args.Error(1)
}

func (m *MockStorage) LastEpisode(ctx context.Context, programmeID string) (*schedule.Episode, error) {
	args := m.Called(ctx, programmeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Episode), args.Error(1)
}

func (m *MockStorage) CreateEpisode(ctx context.Context, e *schedule.Episode) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockStorage) UpdateEpisode(ctx context.Context, e *schedule.Episode) error {
	return m.Called(ctx, e).Error(0)
}

// Atomically records the call and, unless an error is configured, runs fn
// against the mock itself.
func (m *MockStorage) Atomically(ctx context.Context, programmeID string, fn func(tx Storage) error) error {
	if err := m.Called(ctx, programmeID, fn).Error(0); err != nil {
		return err
	}
	return fn(m)
}

// --- Helper methods for creating test data ---

// NewMockProgramme creates a test Programme
func NewMockProgramme(id, name string, season int) *schedule.Programme {
	return &schedule.Programme{
		ID:            id,
		Slug:          schedule.Slugify(name),
		Name:          name,
		Synopsis:      "Synopsis of " + name,
		CurrentSeason: season,
	}
}

// NewMockDailySchedule creates a daily schedule with a one hour slot
func NewMockDailySchedule(id string, programme *schedule.Programme, typ schedule.EmissionType, start time.Time) *schedule.Schedule {
	slot := &schedule.Slot{
		ID:          id + "-slot",
		ProgrammeID: programme.ID,
		Programme:   programme,
		Runtime:     time.Hour,
	}
	return &schedule.Schedule{
		ID:     id,
		SlotID: slot.ID,
		Slot:   slot,
		Type:   typ,
		Recurrence: recurrence.Recurrence{
			DTStart: start,
			RRules:  []recurrence.Rule{{Frequency: recurrence.Daily}},
		},
	}
}

// NewMockEpisode creates a test Episode
func NewMockEpisode(programmeID string, season, number int, issueDate *time.Time) *schedule.Episode {
	return &schedule.Episode{
		ID:             fmt.Sprintf("%s-%dx%d", programmeID, season, number),
		ProgrammeID:    programmeID,
		Season:         season,
		NumberInSeason: number,
		IssueDate:      issueDate,
	}
}
