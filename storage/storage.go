// Package storage defines what the broadcast engine needs from a persistence
// layer. Implementations live in the memory and sqlstore subpackages.
package storage

import (
	"context"

	"github.com/cyp0633/libonair/schedule"
)

// Storage interface connects the engine with a backend store. Please use the error types provided.
//
// Implementations assign an ID to records created without one. Schedules are
// returned with their Slot (and the slot's Programme) loaded.
type Storage interface {
	// Programme operations
	GetProgramme(ctx context.Context, id string) (*schedule.Programme, error)
	GetProgrammeBySlug(ctx context.Context, slug string) (*schedule.Programme, error)
	ListProgrammes(ctx context.Context) ([]*schedule.Programme, error)
	CreateProgramme(ctx context.Context, p *schedule.Programme) error
	UpdateProgramme(ctx context.Context, p *schedule.Programme) error
	// DeleteProgramme also removes the programme's slots, schedules and episodes.
	DeleteProgramme(ctx context.Context, id string) error

	// Slot operations
	GetSlot(ctx context.Context, id string) (*schedule.Slot, error)
	ListSlots(ctx context.Context, programmeID string) ([]*schedule.Slot, error)
	CreateSlot(ctx context.Context, slot *schedule.Slot) error
	// DeleteSlot also removes the slot's schedules.
	DeleteSlot(ctx context.Context, id string) error

	// Schedule operations
	GetSchedule(ctx context.Context, id string) (*schedule.Schedule, error)
	ListSchedules(ctx context.Context, filter *ScheduleFilter) ([]*schedule.Schedule, error)
	CreateSchedule(ctx context.Context, s *schedule.Schedule) error
	UpdateSchedule(ctx context.Context, s *schedule.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error

	// Episode operations
	GetEpisode(ctx context.Context, id string) (*schedule.Episode, error)
	// ListEpisodes returns episodes ordered by season, then number in season.
	ListEpisodes(ctx context.Context, filter *EpisodeFilter) ([]*schedule.Episode, error)
	// LastEpisode returns the highest (season, number) episode of a programme.
	LastEpisode(ctx context.Context, programmeID string) (*schedule.Episode, error)
	// CreateEpisode fails with ErrAlreadyExists when the season and number are taken.
	CreateEpisode(ctx context.Context, e *schedule.Episode) error
	UpdateEpisode(ctx context.Context, e *schedule.Episode) error

	// Atomically runs fn with exclusive access to one programme's schedules
	// and episodes. Everything fn writes through tx is applied together or,
	// when fn returns an error, not at all. Calls for different programmes do
	// not block each other.
	Atomically(ctx context.Context, programmeID string, fn func(tx Storage) error) error
}
