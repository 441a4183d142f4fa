// Package backlog keeps the issue dates of a programme's unaired episodes in
// step with its live schedules.
package backlog

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/cyp0633/libonair/schedule"
	"github.com/cyp0633/libonair/storage"
)

// AvailableDates yields, in strictly ascending order, every occurrence after
// after of the live schedules among schedules. The sequence is lazy and ends
// once no schedule has another occurrence; with an unbounded schedule it
// never ends, so the consumer decides how much to pull.
func AvailableDates(schedules []*schedule.Schedule, after time.Time) iter.Seq[time.Time] {
	var live []*schedule.Schedule
	for _, sc := range schedules {
		if sc.Type == schedule.Live {
			live = append(live, sc)
		}
	}

	return func(yield func(time.Time) bool) {
		cursor := after
		for {
			var next time.Time
			found := false
			for _, sc := range live {
				d, ok := sc.DateAfter(cursor, false).Get()
				if ok && (!found || d.Before(next)) {
					next, found = d, true
				}
			}
			if !found || !yield(next) {
				return
			}
			cursor = next
		}
	}
}

// Result summarises one rearrangement.
type Result struct {
	// Scheduled episodes got an issue date.
	Scheduled int
	// Unscheduled episodes were left without one because the live
	// schedules ran out of dates.
	Unscheduled int
	// Changed counts episodes whose issue date was actually written.
	Changed int
}

// Rearranger reassigns issue dates to a programme's backlog.
type Rearranger struct {
	store  storage.Storage
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Rearranger
type Option func(*Rearranger)

// WithLogger sets the logger for the rearranger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Rearranger) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock replaces time.Now as the reference instant of RearrangeNow.
func WithClock(now func() time.Time) Option {
	return func(r *Rearranger) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRearranger creates a rearranger working on store.
func NewRearranger(store storage.Storage, opts ...Option) *Rearranger {
	r := &Rearranger{
		store:  store,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AvailableDates loads the programme's live schedules and returns their
// merged occurrences after after.
func (r *Rearranger) AvailableDates(ctx context.Context, programmeID string, after time.Time) (iter.Seq[time.Time], error) {
	schedules, err := r.store.ListSchedules(ctx, storage.LiveSchedules(programmeID))
	if err != nil {
		return nil, fmt.Errorf("failed to list live schedules: %w", err)
	}
	return AvailableDates(schedules, after), nil
}

// RearrangeEpisodes gives the programme's unaired episodes, in season and
// number order, the next available live dates after after. Episodes beyond
// the last available date lose their issue date. Episodes issued before
// after are never touched. All updates are applied atomically.
func (r *Rearranger) RearrangeEpisodes(ctx context.Context, programmeID string, after time.Time) (Result, error) {
	var result Result
	err := r.store.Atomically(ctx, programmeID, func(tx storage.Storage) error {
		var err error
		result, err = Rearrange(ctx, tx, programmeID, after)
		return err
	})
	if err != nil {
		r.logger.Error("failed to rearrange episodes",
			"programme", programmeID,
			"error", err)
		return Result{}, err
	}

	r.logger.Info("episodes rearranged",
		"programme", programmeID,
		"after", after,
		"scheduled", result.Scheduled,
		"unscheduled", result.Unscheduled,
		"changed", result.Changed)
	return result, nil
}

// RearrangeNow rearranges the programme from the current instant.
func (r *Rearranger) RearrangeNow(ctx context.Context, programmeID string) (Result, error) {
	return r.RearrangeEpisodes(ctx, programmeID, r.now())
}

// Rearrange does the work of RearrangeEpisodes against tx, which must already
// be scoped to the programme by Storage.Atomically.
func Rearrange(ctx context.Context, tx storage.Storage, programmeID string, after time.Time) (Result, error) {
	var result Result

	schedules, err := tx.ListSchedules(ctx, storage.LiveSchedules(programmeID))
	if err != nil {
		return result, fmt.Errorf("failed to list live schedules: %w", err)
	}
	episodes, err := tx.ListEpisodes(ctx, storage.Unfinished(programmeID, after))
	if err != nil {
		return result, fmt.Errorf("failed to list unfinished episodes: %w", err)
	}
	slices.SortStableFunc(episodes, schedule.CompareEpisodes)

	assign := func(e *schedule.Episode, date *time.Time) error {
		if sameIssueDate(e.IssueDate, date) {
			return nil
		}
		e.IssueDate = date
		if err := tx.UpdateEpisode(ctx, e); err != nil {
			return fmt.Errorf("failed to update episode %s: %w", e.ID, err)
		}
		result.Changed++
		return nil
	}

	next, stop := iter.Pull(AvailableDates(schedules, after))
	defer stop()

	// Pair episodes with dates until either runs out
	i := 0
	for ; i < len(episodes); i++ {
		date, ok := next()
		if !ok {
			break
		}
		if err := assign(episodes[i], &date); err != nil {
			return result, err
		}
		result.Scheduled++
	}

	// Whatever is left has no date
	for _, e := range episodes[i:] {
		if err := assign(e, nil); err != nil {
			return result, err
		}
		result.Unscheduled++
	}
	return result, nil
}

func sameIssueDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
