package recurrence

import (
	"slices"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func madrid(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	return loc
}

func weeklyFrom2014() Recurrence {
	return Recurrence{
		DTStart: time.Date(2014, 1, 6, 14, 0, 0, 0, time.UTC),
		DTEnd:   time.Date(2014, 1, 31, 14, 0, 0, 0, time.UTC),
		RRules:  []Rule{{Frequency: Weekly}},
	}
}

func at14(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 14, 0, 0, 0, time.UTC)
}

func TestRecurrence_Between(t *testing.T) {
	tests := []struct {
		name       string
		recurrence Recurrence
		after      time.Time
		before     time.Time
		expected   []time.Time
	}{
		{
			name:       "weekly bounded by dtend",
			recurrence: weeklyFrom2014(),
			after:      time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC),
			before:     time.Date(2014, 1, 14, 0, 0, 0, 0, time.UTC),
			expected:   []time.Time{at14(2014, 1, 6), at14(2014, 1, 13)},
		},
		{
			name:       "dtend stops the series",
			recurrence: weeklyFrom2014(),
			after:      time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC),
			before:     time.Date(2014, 3, 1, 0, 0, 0, 0, time.UTC),
			expected:   []time.Time{at14(2014, 1, 6), at14(2014, 1, 13), at14(2014, 1, 20), at14(2014, 1, 27)},
		},
		{
			name: "every other day minus mondays and tuesdays",
			recurrence: Recurrence{
				DTStart: at14(2014, 1, 2),
				RRules:  []Rule{{Frequency: Daily, Interval: 2}},
				ExRules: []Rule{{Frequency: Weekly, ByWeekday: []Weekday{Monday, Tuesday}}},
			},
			after:    time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC),
			before:   time.Date(2014, 1, 9, 0, 0, 0, 0, time.UTC),
			expected: []time.Time{at14(2014, 1, 2), at14(2014, 1, 4), at14(2014, 1, 8)},
		},
		{
			name: "rdate takes the time of day of dtstart",
			recurrence: Recurrence{
				DTStart: at14(2014, 1, 2),
				RRules:  []Rule{{Frequency: Daily, Interval: 2}},
				RDates:  []time.Time{time.Date(2014, 1, 5, 0, 0, 0, 0, time.UTC)},
			},
			after:    time.Date(2014, 1, 4, 0, 0, 0, 0, time.UTC),
			before:   time.Date(2014, 1, 7, 0, 0, 0, 0, time.UTC),
			expected: []time.Time{at14(2014, 1, 4), at14(2014, 1, 5), at14(2014, 1, 6)},
		},
		{
			name: "exdate takes the time of day of dtstart",
			recurrence: Recurrence{
				DTStart: at14(2014, 1, 2),
				RRules:  []Rule{{Frequency: Daily}},
				ExDates: []time.Time{time.Date(2014, 1, 5, 0, 0, 0, 0, time.UTC)},
			},
			after:    time.Date(2014, 1, 4, 0, 0, 0, 0, time.UTC),
			before:   time.Date(2014, 1, 7, 0, 0, 0, 0, time.UTC),
			expected: []time.Time{at14(2014, 1, 4), at14(2014, 1, 6)},
		},
		{
			name: "rdate overlapping a rule occurrence is yielded once",
			recurrence: Recurrence{
				DTStart: at14(2014, 1, 2),
				RRules:  []Rule{{Frequency: Daily}},
				RDates:  []time.Time{time.Date(2014, 1, 3, 9, 0, 0, 0, time.UTC)},
			},
			after:    time.Date(2014, 1, 3, 0, 0, 0, 0, time.UTC),
			before:   time.Date(2014, 1, 4, 0, 0, 0, 0, time.UTC),
			expected: []time.Time{at14(2014, 1, 3)},
		},
		{
			name: "dtstart alone is an occurrence",
			recurrence: Recurrence{
				DTStart: at14(2014, 1, 2),
			},
			after:    time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC),
			before:   time.Date(2014, 2, 1, 0, 0, 0, 0, time.UTC),
			expected: []time.Time{at14(2014, 1, 2)},
		},
		{
			name: "count limits the rule",
			recurrence: Recurrence{
				DTStart: at14(2014, 1, 2),
				RRules:  []Rule{{Frequency: Daily, Count: 3}},
			},
			after:    time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC),
			before:   time.Date(2014, 2, 1, 0, 0, 0, 0, time.UTC),
			expected: []time.Time{at14(2014, 1, 2), at14(2014, 1, 3), at14(2014, 1, 4)},
		},
		{
			name: "two rules are merged in order",
			recurrence: Recurrence{
				DTStart: at14(2014, 1, 6),
				RRules: []Rule{
					{Frequency: Weekly, ByWeekday: []Weekday{Friday}},
					{Frequency: Weekly, ByWeekday: []Weekday{Wednesday}},
				},
			},
			after:    time.Date(2014, 1, 6, 0, 0, 0, 0, time.UTC),
			before:   time.Date(2014, 1, 16, 0, 0, 0, 0, time.UTC),
			expected: []time.Time{at14(2014, 1, 6), at14(2014, 1, 8), at14(2014, 1, 10), at14(2014, 1, 15)},
		},
		{
			name:       "no start yields nothing",
			recurrence: Recurrence{RRules: []Rule{{Frequency: Daily}}},
			after:      time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC),
			before:     time.Date(2014, 2, 1, 0, 0, 0, 0, time.UTC),
			expected:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := slices.Collect(tt.recurrence.Between(tt.after, tt.before, true))
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRecurrence_BetweenInclusiveBounds(t *testing.T) {
	r := weeklyFrom2014()

	inclusive := slices.Collect(r.Between(at14(2014, 1, 6), at14(2014, 1, 13), true))
	assert.Equal(t, []time.Time{at14(2014, 1, 6), at14(2014, 1, 13)}, inclusive)

	exclusive := slices.Collect(r.Between(at14(2014, 1, 6), at14(2014, 1, 13), false))
	assert.Empty(t, exclusive)
}

func TestRecurrence_BetweenIsRestartable(t *testing.T) {
	r := Recurrence{
		DTStart: at14(2014, 1, 1),
		RRules:  []Rule{{Frequency: Daily}},
	}
	seq := r.Between(at14(2014, 1, 1), at14(2014, 12, 31), true)

	var first []time.Time
	for occ := range seq {
		first = append(first, occ)
		if len(first) == 3 {
			break
		}
	}
	second := slices.Collect(seq)

	assert.Equal(t, []time.Time{at14(2014, 1, 1), at14(2014, 1, 2), at14(2014, 1, 3)}, first)
	require.Len(t, second, 365)
	assert.Equal(t, first, second[:3])
}

func TestRecurrence_BeforeAfter(t *testing.T) {
	r := weeklyFrom2014()

	before := r.Before(time.Date(2014, 1, 14, 0, 0, 0, 0, time.UTC), true)
	require.True(t, before.IsPresent())
	assert.Equal(t, at14(2014, 1, 13), before.MustGet())

	assert.False(t, r.Before(time.Date(2010, 1, 14, 0, 0, 0, 0, time.UTC), true).IsPresent())

	atOccurrence := r.Before(at14(2014, 1, 13), true)
	assert.Equal(t, at14(2014, 1, 13), atOccurrence.MustGet())
	strictlyBefore := r.Before(at14(2014, 1, 13), false)
	assert.Equal(t, at14(2014, 1, 6), strictlyBefore.MustGet())

	after := r.After(time.Date(2014, 1, 14, 0, 0, 0, 0, time.UTC), true)
	assert.Equal(t, at14(2014, 1, 20), after.MustGet())

	exclusive := r.After(at14(2014, 1, 6), false)
	assert.Equal(t, at14(2014, 1, 13), exclusive.MustGet())
	inclusive := r.After(at14(2014, 1, 6), true)
	assert.Equal(t, at14(2014, 1, 6), inclusive.MustGet())

	assert.False(t, r.After(time.Date(2014, 1, 28, 0, 0, 0, 0, time.UTC), true).IsPresent())
}

func TestRecurrence_NoStart(t *testing.T) {
	r := Recurrence{RRules: []Rule{{Frequency: Daily}}}
	now := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.False(t, r.HasStart())
	assert.False(t, r.Before(now, true).IsPresent())
	assert.False(t, r.After(now, true).IsPresent())
	assert.NoError(t, r.Validate())
}

func TestRecurrence_Validate(t *testing.T) {
	r := Recurrence{
		DTStart: at14(2014, 1, 1),
		RRules:  []Rule{{Frequency: Weekly, ByWeekday: []Weekday{Weekday(9)}}},
	}
	assert.Error(t, r.Validate())
	assert.False(t, r.After(at14(2014, 1, 1), true).IsPresent())
}

func TestRecurrence_DSTGapIsSkipped(t *testing.T) {
	loc := madrid(t)
	r := Recurrence{
		DTStart: time.Date(2018, 3, 24, 2, 30, 0, 0, loc),
		RRules:  []Rule{{Frequency: Daily}},
	}

	gap := slices.Collect(r.Between(
		time.Date(2018, 3, 25, 0, 0, 0, 0, loc),
		time.Date(2018, 3, 25, 5, 0, 0, 0, loc),
		true,
	))
	assert.Empty(t, gap)

	next := r.After(time.Date(2018, 3, 25, 0, 0, 0, 0, loc), true)
	require.True(t, next.IsPresent())
	assert.Equal(t, 26, next.MustGet().Day())
}

func TestRecurrence_DSTKeepsWallClock(t *testing.T) {
	loc := madrid(t)
	r := Recurrence{
		DTStart: time.Date(2018, 3, 24, 2, 30, 0, 0, loc),
		RRules:  []Rule{{Frequency: Daily}},
	}

	got := slices.Collect(r.Between(
		time.Date(2018, 3, 24, 0, 0, 0, 0, loc),
		time.Date(2018, 3, 26, 5, 0, 0, 0, loc),
		true,
	))
	require.Len(t, got, 2)

	zones := make([]string, 0, len(got))
	for _, occ := range got {
		assert.Equal(t, 2, occ.Hour())
		assert.Equal(t, 30, occ.Minute())
		name, _ := occ.Zone()
		zones = append(zones, name)
	}
	assert.Equal(t, []string{"CET", "CEST"}, zones)
	assert.Equal(t, 24, got[0].Day())
	assert.Equal(t, 26, got[1].Day())

	// Autumn: the offset changes back but the wall clock does not.
	autumn := slices.Collect(r.Between(
		time.Date(2018, 10, 26, 0, 0, 0, 0, loc),
		time.Date(2018, 10, 30, 0, 0, 0, 0, loc),
		true,
	))
	require.Len(t, autumn, 4)
	for _, occ := range autumn {
		assert.Equal(t, 2, occ.Hour())
		assert.Equal(t, 30, occ.Minute())
	}
}

func TestRecurrence_QueriesInOtherZones(t *testing.T) {
	loc := madrid(t)
	r := Recurrence{
		DTStart: time.Date(2015, 1, 1, 14, 0, 0, 0, loc),
		RRules:  []Rule{{Frequency: Daily}},
	}

	// 13:30 UTC is 14:30 in Madrid during winter.
	occ := r.Before(time.Date(2015, 1, 6, 13, 30, 0, 0, time.UTC), true)
	require.True(t, occ.IsPresent())
	assert.True(t, occ.MustGet().Equal(time.Date(2015, 1, 6, 14, 0, 0, 0, loc)))
	assert.Equal(t, loc, occ.MustGet().Location())
}

func TestRecurrence_SubSecondStart(t *testing.T) {
	start := time.Date(2015, 1, 1, 14, 0, 0, 250_000_000, time.UTC)
	r := Recurrence{
		DTStart: start,
		RRules:  []Rule{{Frequency: Daily}},
	}

	got := slices.Collect(r.Between(start, start.AddDate(0, 0, 2), true))
	assert.Equal(t, []time.Time{start, start.AddDate(0, 0, 1), start.AddDate(0, 0, 2)}, got)
}

func TestRecurrence_Fingerprint(t *testing.T) {
	a := weeklyFrom2014()
	b := weeklyFrom2014()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.ExDates = []time.Time{at14(2014, 1, 13)}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := weeklyFrom2014()
	c.RRules[0].Interval = 2
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
