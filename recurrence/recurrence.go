package recurrence

import (
	"crypto/sha256"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// evaluator is a compiled Recurrence. All rrule-go arithmetic happens on
// civil times: the wall clock of the recurrence's zone relabelled as UTC, so
// daylight saving changes never shift the time of day of an occurrence.
type evaluator struct {
	rules   []*rrule.RRule
	exrules []*rrule.RRule
	rdates  []time.Time
	exdates []time.Time
	loc     *time.Location
	frac    time.Duration // sub-second part of DTStart, rrule-go works in whole seconds
}

// toCivil returns the wall clock of t in loc, relabelled as UTC.
func toCivil(t time.Time, loc *time.Location) time.Time {
	w := t.In(loc)
	return time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), time.UTC)
}

// fromCivil places the civil time c in loc. It reports false when that wall
// clock does not exist in loc, e.g. inside a spring-forward gap.
func fromCivil(c time.Time, loc *time.Location) (time.Time, bool) {
	t := time.Date(c.Year(), c.Month(), c.Day(), c.Hour(), c.Minute(), c.Second(), c.Nanosecond(), loc)
	if !toCivil(t, loc).Equal(c) {
		return time.Time{}, false
	}
	return t, true
}

// atTimeOfDay keeps the calendar date of d and replaces its time of day with ref's.
func atTimeOfDay(d, ref time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), ref.Hour(), ref.Minute(), ref.Second(), 0, time.UTC)
}

func (r Recurrence) compile() (*evaluator, error) {
	if !r.HasStart() {
		return nil, nil
	}

	loc := r.Location()
	start := toCivil(r.DTStart, loc)
	base := start.Truncate(time.Second)

	var end time.Time
	if !r.DTEnd.IsZero() {
		end = toCivil(r.DTEnd, loc)
	}

	e := &evaluator{loc: loc, frac: start.Sub(base)}
	for _, rule := range r.RRules {
		rr, err := rule.compile(base, end, loc)
		if err != nil {
			return nil, err
		}
		e.rules = append(e.rules, rr)
	}
	for _, rule := range r.ExRules {
		rr, err := rule.compile(base, end, loc)
		if err != nil {
			return nil, err
		}
		e.exrules = append(e.exrules, rr)
	}

	e.rdates = append(e.rdates, base)
	for _, d := range r.RDates {
		e.rdates = append(e.rdates, atTimeOfDay(toCivil(d, loc), base))
	}
	for _, d := range r.ExDates {
		e.exdates = append(e.exdates, atTimeOfDay(toCivil(d, loc), base))
	}
	slices.SortFunc(e.rdates, time.Time.Compare)
	slices.SortFunc(e.exdates, time.Time.Compare)

	return e, nil
}

func (rule Rule) compile(dtstart, dtend time.Time, loc *time.Location) (*rrule.RRule, error) {
	opt := rrule.ROption{
		Freq:     rrule.Frequency(rule.Frequency),
		Dtstart:  dtstart,
		Interval: rule.Interval,
		Count:    rule.Count,
	}
	switch {
	case !rule.Until.IsZero():
		opt.Until = toCivil(rule.Until, loc)
	case !dtend.IsZero():
		opt.Until = dtend
	}
	for _, wd := range rule.ByWeekday {
		if wd < Monday || wd > Sunday {
			return nil, fmt.Errorf("invalid weekday %d", wd)
		}
		opt.Byweekday = append(opt.Byweekday, rruleWeekdays[wd])
	}

	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("invalid %s rule: %w", rule.Frequency, err)
	}
	return rr, nil
}

func (e *evaluator) civil(t time.Time) time.Time {
	return toCivil(t, e.loc).Add(-e.frac)
}

func (e *evaluator) instant(c time.Time) (time.Time, bool) {
	return fromCivil(c.Add(e.frac), e.loc)
}

type cursor struct {
	dt   time.Time
	next rrule.Next
}

func addCursor(list []cursor, next rrule.Next) []cursor {
	if dt, ok := next(); ok {
		list = append(list, cursor{dt: dt, next: next})
	}
	return list
}

func sliceNext(dates []time.Time) rrule.Next {
	i := 0
	return func() (time.Time, bool) {
		if i >= len(dates) {
			return time.Time{}, false
		}
		i++
		return dates[i-1], true
	}
}

// iterator merges every inclusion source into one ascending, duplicate free
// stream of civil times and drops whatever an exclusion source produces.
func (e *evaluator) iterator() rrule.Next {
	var incl, excl []cursor
	incl = addCursor(incl, sliceNext(e.rdates))
	for _, rr := range e.rules {
		incl = addCursor(incl, rr.Iterator())
	}
	excl = addCursor(excl, sliceNext(e.exdates))
	for _, rr := range e.exrules {
		excl = addCursor(excl, rr.Iterator())
	}

	excluded := func(dt time.Time) bool {
		hit := false
		for i := 0; i < len(excl); {
			for excl[i].dt.Before(dt) {
				next, ok := excl[i].next()
				if !ok {
					break
				}
				excl[i].dt = next
			}
			if excl[i].dt.Before(dt) {
				excl = slices.Delete(excl, i, i+1)
				continue
			}
			if excl[i].dt.Equal(dt) {
				hit = true
			}
			i++
		}
		return hit
	}

	var last time.Time
	seen := false
	return func() (time.Time, bool) {
		for len(incl) > 0 {
			first := 0
			for i := range incl {
				if incl[i].dt.Before(incl[first].dt) {
					first = i
				}
			}
			dt := incl[first].dt
			if next, ok := incl[first].next(); ok {
				incl[first].dt = next
			} else {
				incl = slices.Delete(incl, first, first+1)
			}

			if seen && dt.Equal(last) {
				continue
			}
			last, seen = dt, true
			if excluded(dt) {
				continue
			}
			return dt, true
		}
		return time.Time{}, false
	}
}

// Validate reports whether every rule of the recurrence can be evaluated.
func (r Recurrence) Validate() error {
	_, err := r.compile()
	return err
}

// Before returns the latest occurrence before t, or at t when inclusive is set.
func (r Recurrence) Before(t time.Time, inclusive bool) mo.Option[time.Time] {
	e, err := r.compile()
	if err != nil || e == nil {
		return mo.None[time.Time]()
	}

	c := e.civil(t)
	found := mo.None[time.Time]()
	next := e.iterator()
	for {
		occ, ok := next()
		if !ok || occ.After(c) || (!inclusive && occ.Equal(c)) {
			return found
		}
		if out, ok := e.instant(occ); ok {
			found = mo.Some(out)
		}
	}
}

// After returns the earliest occurrence after t, or at t when inclusive is set.
func (r Recurrence) After(t time.Time, inclusive bool) mo.Option[time.Time] {
	e, err := r.compile()
	if err != nil || e == nil {
		return mo.None[time.Time]()
	}

	c := e.civil(t)
	next := e.iterator()
	for {
		occ, ok := next()
		if !ok {
			return mo.None[time.Time]()
		}
		if occ.Before(c) || (!inclusive && occ.Equal(c)) {
			continue
		}
		if out, ok := e.instant(occ); ok {
			return mo.Some(out)
		}
	}
}

// Between yields the occurrences between after and before in ascending
// order. Both ends are included when inclusive is set. Occurrences whose
// wall clock does not exist in the recurrence's zone are skipped.
//
// The sequence is lazy and can be ranged over any number of times.
func (r Recurrence) Between(after, before time.Time, inclusive bool) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		e, err := r.compile()
		if err != nil || e == nil {
			return
		}

		lo, hi := e.civil(after), e.civil(before)
		next := e.iterator()
		for {
			occ, ok := next()
			if !ok || occ.After(hi) || (!inclusive && occ.Equal(hi)) {
				return
			}
			if occ.Before(lo) || (!inclusive && occ.Equal(lo)) {
				continue
			}
			out, ok := e.instant(occ)
			if !ok {
				continue
			}
			if !yield(out) {
				return
			}
		}
	}
}

// Fingerprint identifies the recurrence by content. Two recurrences with the
// same fingerprint produce the same occurrences.
func (r Recurrence) Fingerprint() string {
	hasher := sha256.New()

	writeTime := func(t time.Time) {
		if t.IsZero() {
			hasher.Write([]byte("-;"))
			return
		}
		fmt.Fprintf(hasher, "%s@%s;", t.Format(time.RFC3339Nano), t.Location())
	}
	writeRules := func(tag string, rules []Rule) {
		for _, rule := range rules {
			fmt.Fprintf(hasher, "%s:%d/%d/%v/%d;", tag, rule.Frequency, rule.Interval, rule.ByWeekday, rule.Count)
			writeTime(rule.Until)
		}
	}

	writeTime(r.DTStart)
	writeTime(r.DTEnd)
	writeRules("R", r.RRules)
	writeRules("X", r.ExRules)
	for _, d := range r.RDates {
		hasher.Write([]byte("+"))
		writeTime(d)
	}
	for _, d := range r.ExDates {
		hasher.Write([]byte("-"))
		writeTime(d)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil))
}
