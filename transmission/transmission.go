// Package transmission resolves schedules into concrete on-air slots and
// pairs each with the episode it broadcasts.
package transmission

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cyp0633/libonair/schedule"
)

// ErrInvalidOccurrence is returned when a transmission is built for an instant
// the schedule never produces.
var ErrInvalidOccurrence = errors.New("instant is not an occurrence of the schedule")

// Transmission is one airing of a schedule.
type Transmission struct {
	Schedule  *schedule.Schedule
	Programme *schedule.Programme
	Start     time.Time
	End       time.Time
	Type      schedule.EmissionType
	// Episode is nil when no episode matches the airing.
	Episode *schedule.Episode
}

// New builds the transmission of sc starting at start. episodes are the
// programme's episodes; the one being aired is picked with ResolveEpisode.
func New(sc *schedule.Schedule, start time.Time, episodes []*schedule.Episode) (Transmission, error) {
	runtime, err := sc.Runtime()
	if err != nil {
		return Transmission{}, err
	}

	occurrence, ok := sc.DateBefore(start).Get()
	if !ok || !occurrence.Equal(start) {
		return Transmission{}, fmt.Errorf("%w: %s for schedule %s", ErrInvalidOccurrence, start.Format(time.RFC3339), sc.ID)
	}

	return Transmission{
		Schedule:  sc,
		Programme: sc.Slot.Programme,
		Start:     start,
		End:       start.Add(runtime),
		Type:      sc.Type,
		Episode:   ResolveEpisode(sc.Type, start, episodes),
	}, nil
}

// ResolveEpisode finds the episode aired by a transmission of type typ at
// start. Repetitions air the latest episode issued before start; every other
// type airs the episode issued exactly at start.
func ResolveEpisode(typ schedule.EmissionType, start time.Time, episodes []*schedule.Episode) *schedule.Episode {
	var found *schedule.Episode
	for _, e := range episodes {
		if e.IssueDate == nil {
			continue
		}
		if typ != schedule.Repetition {
			if e.IssueDate.Equal(start) {
				return e
			}
			continue
		}
		if e.IssueDate.Before(start) && (found == nil || e.IssueDate.After(*found.IssueDate)) {
			found = e
		}
	}
	return found
}

// Title is the episode title, or the programme name when there is none.
func (t Transmission) Title() string {
	if t.Episode != nil && t.Episode.Title != "" {
		return t.Episode.Title
	}
	if t.Programme != nil {
		return t.Programme.Name
	}
	return ""
}

// Summary is the episode summary, or the programme synopsis when there is none.
func (t Transmission) Summary() string {
	if t.Episode != nil && t.Episode.Summary != "" {
		return t.Episode.Summary
	}
	if t.Programme != nil {
		return t.Programme.Synopsis
	}
	return ""
}

func (t Transmission) Slug() string {
	if t.Programme == nil {
		return ""
	}
	return t.Programme.Slug
}

// SortByStart orders transmissions chronologically. Ties keep their order.
func SortByStart(ts []Transmission) {
	slices.SortStableFunc(ts, func(a, b Transmission) int {
		return a.Start.Compare(b.Start)
	})
}
