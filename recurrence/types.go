package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"
)

// Frequency is the period a Rule repeats over.
type Frequency int

// Values line up with rrule.Frequency.
const (
	Yearly Frequency = iota
	Monthly
	Weekly
	Daily
	Hourly
	Minutely
	Secondly
)

func (f Frequency) String() string {
	switch f {
	case Yearly:
		return "YEARLY"
	case Monthly:
		return "MONTHLY"
	case Weekly:
		return "WEEKLY"
	case Daily:
		return "DAILY"
	case Hourly:
		return "HOURLY"
	case Minutely:
		return "MINUTELY"
	case Secondly:
		return "SECONDLY"
	default:
		return "UNKNOWN"
	}
}

// Weekday counts from Monday, the way iCalendar BYDAY lists do.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var rruleWeekdays = [...]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// Rule is a single repeat (or exclusion) rule.
type Rule struct {
	Frequency Frequency
	Interval  int       // 0 behaves as 1
	ByWeekday []Weekday // empty means no weekday filter
	Count     int       // 0 means unlimited
	Until     time.Time // wall clock in the recurrence's zone; zero means unbounded
}

// Recurrence describes a recurring series of instants.
//
// DTStart is both the first candidate occurrence and the reference for the
// time of day of every occurrence. Its Location is the zone occurrences are
// reported in. A zero DTStart yields no occurrences at all.
type Recurrence struct {
	DTStart time.Time
	// DTEnd bounds every rule that has no Until of its own.
	DTEnd   time.Time
	RRules  []Rule
	ExRules []Rule
	// RDates and ExDates only contribute their calendar date; the time of
	// day always comes from DTStart.
	RDates  []time.Time
	ExDates []time.Time
}

// HasStart reports whether the recurrence can produce occurrences at all.
func (r Recurrence) HasStart() bool {
	return !r.DTStart.IsZero()
}

// Location returns the zone occurrences are expressed in.
func (r Recurrence) Location() *time.Location {
	if r.DTStart.IsZero() {
		return time.UTC
	}
	return r.DTStart.Location()
}
