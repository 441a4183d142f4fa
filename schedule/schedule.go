package schedule

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/cyp0633/libonair/recurrence"
	"github.com/samber/mo"
)

// ErrIncompleteConfiguration is returned by Runtime when the schedule has no
// slot or the slot has no duration.
var ErrIncompleteConfiguration = errors.New("schedule is not fully configured")

// Schedule attaches a recurrence to a slot.
//
// Date queries never fail: a schedule without a start simply has no
// occurrences. Only Runtime reports a missing slot.
type Schedule struct {
	ID         string
	SlotID     string
	Slot       *Slot
	Type       EmissionType
	Recurrence recurrence.Recurrence
	// SourceID points at the schedule whose content is re-aired, if any.
	SourceID *string
}

// ProgrammeID returns the programme owning the schedule's slot.
func (s *Schedule) ProgrammeID() string {
	if s.Slot == nil {
		return ""
	}
	return s.Slot.ProgrammeID
}

// Runtime returns the duration of every occurrence.
func (s *Schedule) Runtime() (time.Duration, error) {
	if s.Slot == nil {
		return 0, fmt.Errorf("%w: no slot", ErrIncompleteConfiguration)
	}
	if s.Slot.Runtime <= 0 {
		return 0, fmt.Errorf("%w: slot %s has no runtime", ErrIncompleteConfiguration, s.Slot.ID)
	}
	return s.Slot.Runtime, nil
}

// Start returns the recurrence's first instant.
func (s *Schedule) Start() mo.Option[time.Time] {
	if !s.Recurrence.HasStart() {
		return mo.None[time.Time]()
	}
	return mo.Some(s.Recurrence.DTStart)
}

// SetStart moves the recurrence's first instant.
func (s *Schedule) SetStart(start time.Time) {
	s.Recurrence.DTStart = start
}

// End returns the bound of the schedule's validity window, if any.
func (s *Schedule) End() mo.Option[time.Time] {
	if s.Recurrence.DTEnd.IsZero() {
		return mo.None[time.Time]()
	}
	return mo.Some(s.Recurrence.DTEnd)
}

// FirstEnd returns when the first occurrence goes off air.
func (s *Schedule) FirstEnd() mo.Option[time.Time] {
	runtime, err := s.Runtime()
	if err != nil || !s.Recurrence.HasStart() {
		return mo.None[time.Time]()
	}
	return mo.Some(s.Recurrence.DTStart.Add(runtime))
}

func (s *Schedule) capBefore(before time.Time) time.Time {
	if end, ok := s.End().Get(); ok && end.Before(before) {
		return end
	}
	return before
}

// DateBefore returns the latest occurrence at or before before, never past End.
func (s *Schedule) DateBefore(before time.Time) mo.Option[time.Time] {
	return s.Recurrence.Before(s.capBefore(before), true)
}

// DateAfter returns the earliest occurrence after after, or at it when inclusive.
func (s *Schedule) DateAfter(after time.Time, inclusive bool) mo.Option[time.Time] {
	return s.Recurrence.After(after, inclusive)
}

// DatesBetween yields the occurrences in [after, before] in ascending order.
func (s *Schedule) DatesBetween(after, before time.Time) iter.Seq[time.Time] {
	return s.Recurrence.Between(after, s.capBefore(before), true)
}

// String renders the start as "<Weekday> - HH:MM:SS".
func (s *Schedule) String() string {
	start, ok := s.Start().Get()
	if !ok {
		return "unscheduled"
	}
	return start.Format("Monday - 15:04:05")
}

// Validate checks the schedule has a slot, a known type and evaluable rules.
func (s *Schedule) Validate() error {
	if s.Slot == nil && s.SlotID == "" {
		return errors.New("schedule: slot is required")
	}
	if !s.Type.Valid() {
		return fmt.Errorf("schedule: invalid emission type %q", s.Type)
	}
	if s.SourceID != nil && *s.SourceID == s.ID && s.ID != "" {
		return errors.New("schedule: a schedule cannot be its own source")
	}
	if err := s.Recurrence.Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	return nil
}
