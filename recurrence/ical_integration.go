package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

const propExceptionRule = "EXRULE"

// ErrNoStart is returned when a component has no DTSTART to anchor a recurrence on.
var ErrNoStart = errors.New("component has no DTSTART")

// FromComponent extracts the recurrence of an iCalendar component (usually a
// VEVENT). Floating date-times are read in loc.
func FromComponent(comp *ical.Component, loc *time.Location) (Recurrence, error) {
	if loc == nil {
		loc = time.UTC
	}

	var rec Recurrence
	start, err := comp.Props.DateTime(ical.PropDateTimeStart, loc)
	if err != nil {
		return rec, fmt.Errorf("%w: %v", ErrNoStart, err)
	}
	if start.IsZero() {
		return rec, ErrNoStart
	}
	rec.DTStart = start

	for _, prop := range comp.Props[ical.PropRecurrenceRule] {
		rule, err := ParseRule(prop.Value, start.Location())
		if err != nil {
			return rec, err
		}
		rec.RRules = append(rec.RRules, rule)
	}
	for _, prop := range comp.Props[propExceptionRule] {
		rule, err := ParseRule(prop.Value, start.Location())
		if err != nil {
			return rec, err
		}
		rec.ExRules = append(rec.ExRules, rule)
	}

	for _, prop := range comp.Props[ical.PropRecurrenceDates] {
		dates, err := parseDateList(prop.Value, prop.Params, start.Location())
		if err != nil {
			return rec, fmt.Errorf("RDATE: %w", err)
		}
		rec.RDates = append(rec.RDates, dates...)
	}
	for _, prop := range comp.Props[ical.PropExceptionDates] {
		dates, err := parseDateList(prop.Value, prop.Params, start.Location())
		if err != nil {
			return rec, fmt.Errorf("EXDATE: %w", err)
		}
		rec.ExDates = append(rec.ExDates, dates...)
	}

	return rec, nil
}

// RuntimeFromComponent returns how long each occurrence of the component
// lasts, from DTEND or DURATION.
func RuntimeFromComponent(comp *ical.Component) (time.Duration, bool) {
	start, err := comp.Props.DateTime(ical.PropDateTimeStart, time.UTC)
	if err != nil {
		return 0, false
	}
	if end, err := comp.Props.DateTime(ical.PropDateTimeEnd, time.UTC); err == nil && !end.IsZero() {
		if d := end.Sub(start); d > 0 {
			return d, true
		}
		return 0, false
	}
	if prop := comp.Props.Get(ical.PropDuration); prop != nil {
		if d, err := prop.Duration(); err == nil && d > 0 {
			return d, true
		}
	}
	return 0, false
}

// parseDateList parses a comma separated RDATE/EXDATE value. Date-only
// values are fine here: only the calendar date of an explicit date counts.
func parseDateList(value string, params ical.Params, loc *time.Location) ([]time.Time, error) {
	isDateOnly := false
	if v := params["VALUE"]; len(v) > 0 && strings.EqualFold(v[0], "DATE") {
		isDateOnly = true
	}
	if v := params["TZID"]; len(v) > 0 {
		tz, err := time.LoadLocation(v[0])
		if err != nil {
			return nil, fmt.Errorf("unknown TZID %q: %w", v[0], err)
		}
		loc = tz
	}

	var dates []time.Time
	for _, raw := range strings.Split(value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		var (
			t   time.Time
			err error
		)
		switch {
		case isDateOnly || len(raw) == len("20060102"):
			t, err = time.ParseInLocation("20060102", raw, loc)
		case strings.HasSuffix(raw, "Z"):
			t, err = time.Parse("20060102T150405Z", raw)
		default:
			t, err = time.ParseInLocation("20060102T150405", raw, loc)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", raw, err)
		}
		dates = append(dates, t)
	}
	return dates, nil
}
