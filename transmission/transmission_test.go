package transmission

import (
	"context"
	"testing"
	"time"

	"github.com/cyp0633/libonair/recurrence"
	"github.com/cyp0633/libonair/schedule"
	"github.com/cyp0633/libonair/storage"
	"github.com/cyp0633/libonair/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2015, 1, day, hour, minute, 0, 0, time.UTC)
}

// station stores a daily live schedule for each name, starting at 11:00 and
// one hour apart, like the example data.
func station(t *testing.T, names ...string) (*memory.Store, map[string]*schedule.Schedule) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	schedules := make(map[string]*schedule.Schedule)

	for i, name := range names {
		programme := &schedule.Programme{Name: name, CurrentSeason: 7}
		require.NoError(t, store.CreateProgramme(ctx, programme))

		sc := storage.NewMockDailySchedule("", programme, schedule.Live, at(1, 11+i, 0))
		sc.Slot.ID = ""
		require.NoError(t, store.CreateSlot(ctx, sc.Slot))
		sc.SlotID = sc.Slot.ID
		require.NoError(t, store.CreateSchedule(ctx, sc))
		schedules[programme.Slug] = sc
	}
	return store, schedules
}

func TestNew(t *testing.T) {
	programme := storage.NewMockProgramme("p1", "Classic hits", 7)
	sc := storage.NewMockDailySchedule("s1", programme, schedule.Live, at(1, 14, 0))

	for start := range sc.DatesBetween(at(1, 0, 0), at(10, 0, 0)) {
		tr, err := New(sc, start, nil)
		require.NoError(t, err)
		assert.Equal(t, start.Add(time.Hour), tr.End)
		assert.Equal(t, schedule.Live, tr.Type)
		assert.Same(t, programme, tr.Programme)
	}

	tests := []struct {
		name  string
		start time.Time
	}{
		{"wrong time of day", at(2, 14, 1)},
		{"before the first occurrence", at(1, 13, 0)},
		{"wrong day", at(2, 13, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(sc, tt.start, nil)
			assert.ErrorIs(t, err, ErrInvalidOccurrence)
		})
	}

	t.Run("no slot", func(t *testing.T) {
		_, err := New(&schedule.Schedule{ID: "s2", Type: schedule.Live, Recurrence: sc.Recurrence}, at(1, 14, 0), nil)
		assert.ErrorIs(t, err, schedule.ErrIncompleteConfiguration)
	})
}

func TestResolveEpisode(t *testing.T) {
	first, second := at(1, 14, 0), at(2, 14, 0)
	episodes := []*schedule.Episode{
		storage.NewMockEpisode("p1", 1, 1, &first),
		storage.NewMockEpisode("p1", 1, 2, &second),
		storage.NewMockEpisode("p1", 1, 3, nil),
	}

	tests := []struct {
		name  string
		typ   schedule.EmissionType
		start time.Time
		want  *schedule.Episode
	}{
		{"live matches the issue date", schedule.Live, second, episodes[1]},
		{"live needs an exact match", schedule.Live, at(2, 14, 30), nil},
		{"broadcast behaves like live", schedule.Broadcast, first, episodes[0]},
		{"repetition takes the latest aired", schedule.Repetition, at(2, 20, 0), episodes[1]},
		{"repetition excludes the same instant", schedule.Repetition, second, episodes[0]},
		{"repetition before anything aired", schedule.Repetition, first, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveEpisode(tt.typ, tt.start, episodes))
		})
	}
}

func TestTransmission_Fallbacks(t *testing.T) {
	programme := &schedule.Programme{Name: "Classic hits", Slug: "classic-hits", Synopsis: "Hits"}
	tr := Transmission{Programme: programme}
	assert.Equal(t, "Classic hits", tr.Title())
	assert.Equal(t, "Hits", tr.Summary())
	assert.Equal(t, "classic-hits", tr.Slug())

	tr.Episode = &schedule.Episode{Title: "Episode 1", Summary: "First"}
	assert.Equal(t, "Episode 1", tr.Title())
	assert.Equal(t, "First", tr.Summary())
}

func TestResolver_At(t *testing.T) {
	store, _ := station(t, "Places To Go", "The best wine", "Local Gossips", "Classic hits")
	resolver := NewResolver(store)

	got, err := resolver.At(context.Background(), at(6, 14, 30))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "classic-hits", got[0].Slug())
	assert.Equal(t, at(6, 14, 0), got[0].Start)

	// The end of an airing is exclusive
	got, err = resolver.At(context.Background(), at(6, 15, 0))
	require.NoError(t, err)
	assert.Empty(t, got)

	resolver = NewResolver(store, WithClock(func() time.Time { return at(6, 11, 59) }))
	got, err = resolver.Now(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "places-to-go", got[0].Slug())
}

func TestResolver_Between(t *testing.T) {
	store, _ := station(t, "Places To Go", "The best wine", "Local Gossips", "Classic hits")

	for _, cached := range []bool{false, true} {
		opts := []Option{}
		if cached {
			cache := recurrence.NewCache(recurrence.DefaultCacheConfig)
			t.Cleanup(cache.Close)
			opts = append(opts, WithCache(cache))
		}
		resolver := NewResolver(store, opts...)

		got, err := Collect(resolver.Between(context.Background(), at(6, 12, 0), at(6, 17, 0)))
		require.NoError(t, err)

		var slugs []string
		var starts []time.Time
		for _, tr := range got {
			slugs = append(slugs, tr.Slug())
			starts = append(starts, tr.Start)
		}
		assert.Equal(t, []string{"the-best-wine", "local-gossips", "classic-hits"}, slugs)
		assert.Equal(t, []time.Time{at(6, 12, 0), at(6, 13, 0), at(6, 14, 0)}, starts)
	}
}

func TestResolver_BetweenSubsetStopsEarly(t *testing.T) {
	store, schedules := station(t, "Classic hits")
	resolver := NewResolver(store)

	var count int
	for tr, err := range resolver.BetweenSchedules(context.Background(), at(1, 0, 0), at(31, 0, 0), []*schedule.Schedule{schedules["classic-hits"]}) {
		require.NoError(t, err)
		assert.Equal(t, at(1+count, 14, 0), tr.Start)
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestResolver_EmptySubset(t *testing.T) {
	store, _ := station(t, "Classic hits")
	resolver := NewResolver(store)
	ctx := context.Background()

	tests := []struct {
		name   string
		subset []*schedule.Schedule
	}{
		{"nil subset", nil},
		{"empty subset", []*schedule.Schedule{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.AtSchedules(ctx, at(1, 14, 30), tt.subset)
			require.NoError(t, err)
			assert.Empty(t, got)

			between, err := Collect(resolver.BetweenSchedules(ctx, at(1, 0, 0), at(3, 0, 0), tt.subset))
			require.NoError(t, err)
			assert.Empty(t, between)
		})
	}

	// The whole station is still on air through At
	got, err := resolver.At(ctx, at(1, 14, 30))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestResolver_Episodes(t *testing.T) {
	ctx := context.Background()
	store, schedules := station(t, "Classic hits")
	live := schedules["classic-hits"]
	programme := live.Slot.Programme

	rerun := storage.NewMockDailySchedule("", programme, schedule.Repetition, at(1, 14, 30))
	rerun.Slot = live.Slot
	rerun.SlotID = live.SlotID
	require.NoError(t, store.CreateSchedule(ctx, rerun))

	issued := at(1, 14, 0)
	episode := &schedule.Episode{ProgrammeID: programme.ID, Season: 1, NumberInSeason: 1, Title: "Episode 1", IssueDate: &issued}
	require.NoError(t, store.CreateEpisode(ctx, episode))

	resolver := NewResolver(store)

	got, err := resolver.AtSchedules(ctx, at(1, 14, 45), []*schedule.Schedule{rerun})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, schedule.Repetition, got[0].Type)
	assert.Equal(t, at(1, 14, 30), got[0].Start)
	require.NotNil(t, got[0].Episode)
	assert.Equal(t, episode.ID, got[0].Episode.ID)

	got, err = resolver.AtSchedules(ctx, at(1, 14, 10), []*schedule.Schedule{live})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Episode)
	assert.Equal(t, "Episode 1", got[0].Title())

	got, err = resolver.AtSchedules(ctx, at(2, 14, 10), []*schedule.Schedule{live})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Episode)
	assert.Equal(t, "Classic hits", got[0].Title())
}

func TestResolver_StorageFailure(t *testing.T) {
	mockStore := new(storage.MockStorage)
	mockStore.On("ListSchedules", context.Background(), (*storage.ScheduleFilter)(nil)).
		Return(nil, storage.NotFound("schedule", "all"))

	resolver := NewResolver(mockStore)
	_, err := resolver.At(context.Background(), at(1, 14, 0))
	assert.True(t, storage.IsNotFound(err))

	_, err = Collect(resolver.Between(context.Background(), at(1, 0, 0), at(2, 0, 0)))
	assert.True(t, storage.IsNotFound(err))
	mockStore.AssertExpectations(t)
}
