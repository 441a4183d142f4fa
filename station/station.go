// Package station is the entry point for editing a broadcast schedule. Every
// schedule change goes through Service so the affected programme's backlog
// is rearranged in the same transaction.
package station

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/libonair/backlog"
	"github.com/cyp0633/libonair/schedule"
	"github.com/cyp0633/libonair/storage"
)

// Service applies schedule and episode changes to a store.
type Service struct {
	store  storage.Storage
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now as the instant backlogs are rearranged from.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a service on top of store.
func New(store storage.Storage, opts ...Option) *Service {
	s := &Service{
		store:  store,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store for read access.
func (s *Service) Store() storage.Storage {
	return s.store
}

// programmeOf returns the programme owning the schedule's slot.
func (s *Service) programmeOf(ctx context.Context, sc *schedule.Schedule) (string, error) {
	if sc.Slot != nil && sc.Slot.ProgrammeID != "" {
		return sc.Slot.ProgrammeID, nil
	}
	slot, err := s.store.GetSlot(ctx, sc.SlotID)
	if err != nil {
		return "", err
	}
	return slot.ProgrammeID, nil
}

// mutate runs change and a backlog rearrangement as one atomic unit.
func (s *Service) mutate(ctx context.Context, action, programmeID string, change func(tx storage.Storage) error) error {
	now := s.now()
	var result backlog.Result
	err := s.store.Atomically(ctx, programmeID, func(tx storage.Storage) error {
		if err := change(tx); err != nil {
			return err
		}
		var err error
		result, err = backlog.Rearrange(ctx, tx, programmeID, now)
		return err
	})
	if err != nil {
		s.logger.Error("schedule change failed",
			"action", action,
			"programme", programmeID,
			"error", err)
		return err
	}

	s.logger.Info("schedule changed",
		"action", action,
		"programme", programmeID,
		"scheduled", result.Scheduled,
		"unscheduled", result.Unscheduled,
		"changed", result.Changed)
	return nil
}

// CreateSchedule stores sc and rearranges its programme's backlog.
func (s *Service) CreateSchedule(ctx context.Context, sc *schedule.Schedule) error {
	programmeID, err := s.programmeOf(ctx, sc)
	if err != nil {
		return err
	}
	return s.mutate(ctx, "create", programmeID, func(tx storage.Storage) error {
		return tx.CreateSchedule(ctx, sc)
	})
}

// UpdateSchedule stores sc and rearranges its programme's backlog. When the
// schedule moves to another programme's slot, both backlogs are rearranged.
func (s *Service) UpdateSchedule(ctx context.Context, sc *schedule.Schedule) error {
	programmeID, err := s.programmeOf(ctx, sc)
	if err != nil {
		return err
	}

	// The previous owner is read under the same lock as the write.
	var previous string
	err = s.mutate(ctx, "update", programmeID, func(tx storage.Storage) error {
		old, err := tx.GetSchedule(ctx, sc.ID)
		if err != nil {
			return err
		}
		previous = old.ProgrammeID()
		return tx.UpdateSchedule(ctx, sc)
	})
	if err != nil {
		return err
	}

	if previous != "" && previous != programmeID {
		return s.Rearrange(ctx, previous)
	}
	return nil
}

// DeleteSchedule removes the schedule and rearranges its programme's backlog.
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	sc, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	programmeID, err := s.programmeOf(ctx, sc)
	if err != nil {
		return err
	}
	return s.mutate(ctx, "delete", programmeID, func(tx storage.Storage) error {
		return tx.DeleteSchedule(ctx, id)
	})
}

// Rearrange rearranges the programme's backlog from now.
func (s *Service) Rearrange(ctx context.Context, programmeID string) error {
	return s.mutate(ctx, "rearrange", programmeID, func(storage.Storage) error { return nil })
}

// CreateEpisode numbers e as the next episode of its programme's current
// season and stores it. Title, Summary and IssueDate are kept as given.
func (s *Service) CreateEpisode(ctx context.Context, e *schedule.Episode) error {
	err := s.store.Atomically(ctx, e.ProgrammeID, func(tx storage.Storage) error {
		programme, err := tx.GetProgramme(ctx, e.ProgrammeID)
		if err != nil {
			return err
		}

		e.Season = programme.CurrentSeason
		e.NumberInSeason = 1
		last, err := tx.LastEpisode(ctx, e.ProgrammeID)
		switch {
		case storage.IsNotFound(err):
		case err != nil:
			return err
		case last.Season == programme.CurrentSeason:
			e.NumberInSeason = last.NumberInSeason + 1
		}

		return tx.CreateEpisode(ctx, e)
	})
	if err != nil {
		return fmt.Errorf("failed to create episode: %w", err)
	}

	s.logger.Debug("episode created",
		"programme", e.ProgrammeID,
		"season", e.Season,
		"number", e.NumberInSeason)
	return nil
}

// LastEpisode returns the programme's highest numbered episode.
func (s *Service) LastEpisode(ctx context.Context, programmeID string) (*schedule.Episode, error) {
	return s.store.LastEpisode(ctx, programmeID)
}

// UnfinishedEpisodes returns the programme's episodes that have not aired by
// after, in season and number order. A zero after means now.
func (s *Service) UnfinishedEpisodes(ctx context.Context, programmeID string, after time.Time) ([]*schedule.Episode, error) {
	if after.IsZero() {
		after = s.now()
	}
	return s.store.ListEpisodes(ctx, storage.Unfinished(programmeID, after))
}
