package transmission

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/cyp0633/libonair/recurrence"
	"github.com/cyp0633/libonair/schedule"
	"github.com/cyp0633/libonair/storage"
)

// Resolver turns stored schedules into transmissions.
type Resolver struct {
	store  storage.Storage
	cache  *recurrence.Cache
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the logger for the resolver
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCache memoises occurrence windows used by Between.
func WithCache(cache *recurrence.Cache) Option {
	return func(r *Resolver) {
		r.cache = cache
	}
}

// WithClock replaces time.Now as the source of the current instant.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver creates a resolver reading from store.
func NewResolver(store storage.Storage, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// episodeIndex loads each programme's episodes once per query.
type episodeIndex struct {
	store    storage.Storage
	episodes map[string][]*schedule.Episode
}

func (idx *episodeIndex) forProgramme(ctx context.Context, programmeID string) ([]*schedule.Episode, error) {
	if episodes, ok := idx.episodes[programmeID]; ok {
		return episodes, nil
	}
	episodes, err := idx.store.ListEpisodes(ctx, &storage.EpisodeFilter{ProgrammeID: programmeID})
	if err != nil {
		return nil, err
	}
	idx.episodes[programmeID] = episodes
	return episodes, nil
}

// At returns the transmissions on air at instant across every stored
// schedule: for each schedule, its latest occurrence at or before instant if
// instant falls before that occurrence ends.
func (r *Resolver) At(ctx context.Context, instant time.Time) ([]Transmission, error) {
	all, err := r.store.ListSchedules(ctx, nil)
	if err != nil {
		return nil, err
	}
	return r.AtSchedules(ctx, instant, all)
}

// AtSchedules is At restricted to schedules. An empty subset has nothing on air.
func (r *Resolver) AtSchedules(ctx context.Context, instant time.Time, schedules []*schedule.Schedule) ([]Transmission, error) {
	idx := &episodeIndex{store: r.store, episodes: make(map[string][]*schedule.Episode)}
	var result []Transmission
	for _, sc := range schedules {
		runtime, err := sc.Runtime()
		if err != nil {
			r.logger.Debug("skipping incomplete schedule", "schedule", sc.ID, "error", err)
			continue
		}
		start, ok := sc.DateBefore(instant).Get()
		if !ok || !instant.Before(start.Add(runtime)) {
			continue
		}

		episodes, err := idx.forProgramme(ctx, sc.ProgrammeID())
		if err != nil {
			return nil, err
		}
		t, err := New(sc, start, episodes)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

// Now returns the transmissions on air at the resolver's current instant.
func (r *Resolver) Now(ctx context.Context) ([]Transmission, error) {
	return r.At(ctx, r.now())
}

// datesBetween is Schedule.DatesBetween, served from the cache when one is set.
func (r *Resolver) datesBetween(sc *schedule.Schedule, after, before time.Time) iter.Seq[time.Time] {
	if r.cache == nil {
		return sc.DatesBetween(after, before)
	}
	if end, ok := sc.End().Get(); ok && end.Before(before) {
		before = end
	}
	dates := r.cache.Between(sc.Recurrence, after, before, true)
	return func(yield func(time.Time) bool) {
		for _, d := range dates {
			if !yield(d) {
				return
			}
		}
	}
}

// Between lazily yields one transmission per occurrence in [after, before]
// of every stored schedule, schedule by schedule. The result is not sorted
// across schedules; use SortByStart when chronological order matters. A
// storage failure is yielded once and ends the sequence.
func (r *Resolver) Between(ctx context.Context, after, before time.Time) iter.Seq2[Transmission, error] {
	return func(yield func(Transmission, error) bool) {
		all, err := r.store.ListSchedules(ctx, nil)
		if err != nil {
			yield(Transmission{}, err)
			return
		}
		r.BetweenSchedules(ctx, after, before, all)(yield)
	}
}

// BetweenSchedules is Between restricted to schedules. An empty subset
// yields nothing.
func (r *Resolver) BetweenSchedules(ctx context.Context, after, before time.Time, schedules []*schedule.Schedule) iter.Seq2[Transmission, error] {
	return func(yield func(Transmission, error) bool) {
		idx := &episodeIndex{store: r.store, episodes: make(map[string][]*schedule.Episode)}
		for _, sc := range schedules {
			if _, err := sc.Runtime(); err != nil {
				r.logger.Debug("skipping incomplete schedule", "schedule", sc.ID, "error", err)
				continue
			}
			for start := range r.datesBetween(sc, after, before) {
				if err := ctx.Err(); err != nil {
					yield(Transmission{}, err)
					return
				}
				episodes, err := idx.forProgramme(ctx, sc.ProgrammeID())
				if err != nil {
					yield(Transmission{}, err)
					return
				}
				t, err := New(sc, start, episodes)
				if err != nil {
					yield(Transmission{}, err)
					return
				}
				if !yield(t, nil) {
					return
				}
			}
		}
	}
}

// Collect drains seq into a slice sorted by start.
func Collect(seq iter.Seq2[Transmission, error]) ([]Transmission, error) {
	var result []Transmission
	for t, err := range seq {
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	SortByStart(result)
	return result, nil
}
