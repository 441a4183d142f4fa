// Package feed publishes transmissions as an iCalendar feed.
package feed

import (
	"fmt"
	"io"
	"time"

	"github.com/cyp0633/libonair/transmission"
	"github.com/emersion/go-ical"
)

// ProductID identifies the generator in PRODID.
const ProductID = "-//libonair//Broadcast Schedule//EN"

// eventUID is stable for a given schedule and airing.
func eventUID(t transmission.Transmission) string {
	id := ""
	if t.Schedule != nil {
		id = t.Schedule.ID
	}
	return fmt.Sprintf("%s-%d@libonair", id, t.Start.Unix())
}

// Event converts a transmission into a VEVENT. Times are written in UTC.
func Event(t transmission.Transmission, stamp time.Time) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, eventUID(t))
	event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, t.Start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, t.End.UTC())
	event.Props.SetText(ical.PropSummary, t.Title())
	if summary := t.Summary(); summary != "" {
		event.Props.SetText(ical.PropDescription, summary)
	}
	event.Props.SetText(ical.PropCategories, t.Type.String())
	if t.Episode != nil {
		event.Props.SetText(ical.PropComment, fmt.Sprintf("Season %d, episode %d", t.Episode.Season, t.Episode.NumberInSeason))
	}
	return event
}

// Calendar wraps the transmissions into a calendar, one event each.
func Calendar(ts []transmission.Transmission, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	for _, t := range ts {
		cal.Children = append(cal.Children, Event(t, stamp).Component)
	}
	return cal
}

// Encode writes the transmissions to w as an iCalendar document.
func Encode(w io.Writer, ts []transmission.Transmission, stamp time.Time) error {
	if err := ical.NewEncoder(w).Encode(Calendar(ts, stamp)); err != nil {
		return fmt.Errorf("failed to encode feed: %w", err)
	}
	return nil
}
