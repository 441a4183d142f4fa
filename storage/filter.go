package storage

import (
	"slices"
	"time"

	"github.com/cyp0633/libonair/schedule"
)

// ScheduleFilter narrows ListSchedules. A nil filter matches every schedule.
type ScheduleFilter struct {
	ProgrammeID string                  // empty matches any programme
	Types       []schedule.EmissionType // empty matches any type
}

// Matches reports whether s passes the filter.
func (f *ScheduleFilter) Matches(s *schedule.Schedule) bool {
	if f == nil {
		return true
	}
	if f.ProgrammeID != "" && s.ProgrammeID() != f.ProgrammeID {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, s.Type) {
		return false
	}
	return true
}

// LiveSchedules selects the live schedules of a programme.
func LiveSchedules(programmeID string) *ScheduleFilter {
	return &ScheduleFilter{ProgrammeID: programmeID, Types: []schedule.EmissionType{schedule.Live}}
}

// EpisodeFilter narrows ListEpisodes. Results are always ordered by season,
// then number in season.
type EpisodeFilter struct {
	ProgrammeID string
	// NotAiredAt keeps only episodes that are unscheduled or issued at or
	// after this instant.
	NotAiredAt *time.Time
}

// Matches reports whether e passes the filter.
func (f *EpisodeFilter) Matches(e *schedule.Episode) bool {
	if f == nil {
		return true
	}
	if f.ProgrammeID != "" && e.ProgrammeID != f.ProgrammeID {
		return false
	}
	if f.NotAiredAt != nil && e.Aired(*f.NotAiredAt) {
		return false
	}
	return true
}

// Unfinished selects the backlog of a programme as seen from after.
func Unfinished(programmeID string, after time.Time) *EpisodeFilter {
	return &EpisodeFilter{ProgrammeID: programmeID, NotAiredAt: &after}
}
