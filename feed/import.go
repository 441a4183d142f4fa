package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cyp0633/libonair/recurrence"
	"github.com/cyp0633/libonair/schedule"
	"github.com/cyp0633/libonair/station"
	"github.com/cyp0633/libonair/storage"
	"github.com/emersion/go-ical"
)

// ErrNoRuntime is returned for an event without DTEND or DURATION.
var ErrNoRuntime = errors.New("event has no duration")

// Import reads recurring events from an iCalendar document and adds one
// schedule per event through svc, so backlogs are rearranged as usual.
// The event SUMMARY names the programme, which is created when missing.
// CATEGORIES may carry the emission type; live is assumed otherwise.
// Floating times are read in loc. It returns the number of schedules created.
func Import(ctx context.Context, svc *station.Service, r io.Reader, loc *time.Location) (int, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return 0, fmt.Errorf("failed to decode calendar: %w", err)
	}

	created := 0
	for _, event := range cal.Events() {
		uid, _ := event.Props.Text(ical.PropUID)
		if err := importEvent(ctx, svc, event.Component, loc); err != nil {
			return created, fmt.Errorf("event %q: %w", uid, err)
		}
		created++
	}
	return created, nil
}

func importEvent(ctx context.Context, svc *station.Service, comp *ical.Component, loc *time.Location) error {
	name, err := comp.Props.Text(ical.PropSummary)
	if err != nil || strings.TrimSpace(name) == "" {
		return errors.New("event has no summary")
	}

	rec, err := recurrence.FromComponent(comp, loc)
	if err != nil {
		return err
	}
	runtime, ok := recurrence.RuntimeFromComponent(comp)
	if !ok {
		return ErrNoRuntime
	}

	typ := schedule.Live
	if category, err := comp.Props.Text(ical.PropCategories); err == nil && category != "" {
		if typ, err = schedule.ParseEmissionType(category); err != nil {
			return err
		}
	}

	store := svc.Store()
	programme, err := store.GetProgrammeBySlug(ctx, schedule.Slugify(name))
	if storage.IsNotFound(err) {
		programme = &schedule.Programme{Name: name, CurrentSeason: 1}
		err = store.CreateProgramme(ctx, programme)
	}
	if err != nil {
		return err
	}

	slot := &schedule.Slot{ProgrammeID: programme.ID, Programme: programme, Runtime: runtime}
	if err := store.CreateSlot(ctx, slot); err != nil {
		return err
	}
	return svc.CreateSchedule(ctx, &schedule.Schedule{
		SlotID:     slot.ID,
		Slot:       slot,
		Type:       typ,
		Recurrence: rec,
	})
}
