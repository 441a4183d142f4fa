// Package example fills a store with a small demonstration station.
package example

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cyp0633/libonair/backlog"
	"github.com/cyp0633/libonair/recurrence"
	"github.com/cyp0633/libonair/schedule"
	"github.com/cyp0633/libonair/storage"
)

const synopsis = `Lorem Ipsum is simply dummy text of the printing and typesetting industry.
Lorem Ipsum has been the industry's standard dummy text ever since the 1500s,
when an unknown printer took a galley of type and scrambled it to make a type specimen book.`

// Titles of the daily programmes following Morning News, from 11:00 on.
var Titles = []string{"Places To Go", "The best wine", "Local Gossips", "Classic hits"}

// Epoch is the first day of every example schedule.
func Epoch(loc *time.Location) time.Time {
	return time.Date(2015, 1, 1, 0, 0, 0, 0, loc)
}

func daily(start time.Time) recurrence.Recurrence {
	return recurrence.Recurrence{
		DTStart: start,
		RRules:  []recurrence.Rule{{Frequency: recurrence.Daily}},
	}
}

type seeder struct {
	ctx   context.Context
	store storage.Storage
}

func (s *seeder) programme(name string, season int) (*schedule.Programme, *schedule.Slot, error) {
	p := &schedule.Programme{Name: name, Synopsis: synopsis, CurrentSeason: season}
	if err := s.store.CreateProgramme(s.ctx, p); err != nil {
		return nil, nil, fmt.Errorf("create programme %q: %w", name, err)
	}
	slot := &schedule.Slot{ProgrammeID: p.ID, Programme: p, Runtime: time.Hour}
	if err := s.store.CreateSlot(s.ctx, slot); err != nil {
		return nil, nil, fmt.Errorf("create slot for %q: %w", name, err)
	}
	return p, slot, nil
}

func (s *seeder) schedule(slot *schedule.Slot, typ schedule.EmissionType, start time.Time) error {
	sc := &schedule.Schedule{SlotID: slot.ID, Slot: slot, Type: typ, Recurrence: daily(start)}
	if err := s.store.CreateSchedule(s.ctx, sc); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

func (s *seeder) episode(programmeID string, season, number int, summary string) error {
	e := &schedule.Episode{
		ProgrammeID:    programmeID,
		Season:         season,
		NumberInSeason: number,
		Title:          fmt.Sprintf("Episode %d", number),
		Summary:        summary,
	}
	if err := s.store.CreateEpisode(s.ctx, e); err != nil {
		return fmt.Errorf("create episode %dx%d: %w", season, number, err)
	}
	return nil
}

// Seed creates Morning News (live at 08:00, repeated at 20:00) and the four
// programmes in Titles (live daily from 11:00, one per hour), all starting
// on Epoch in loc, then schedules every backlog from 1970.
func Seed(ctx context.Context, store storage.Storage, loc *time.Location) error {
	s := &seeder{ctx: ctx, store: store}
	epoch := Epoch(loc)

	news, slot, err := s.programme("Morning News", 1)
	if err != nil {
		return err
	}
	if err := s.schedule(slot, schedule.Live, epoch.Add(8*time.Hour)); err != nil {
		return err
	}
	if err := s.schedule(slot, schedule.Repetition, epoch.Add(20*time.Hour)); err != nil {
		return err
	}
	for number := 1; number <= 3; number++ {
		if err := s.episode(news.ID, 1, number, synopsis); err != nil {
			return err
		}
	}

	for i, title := range Titles {
		p, slot, err := s.programme(title, 7)
		if err != nil {
			return err
		}
		if err := s.schedule(slot, schedule.Live, epoch.Add(time.Duration(11+i)*time.Hour)); err != nil {
			return err
		}
		for season := 1; season <= 7; season++ {
			for number := 1; number <= 5; number++ {
				summary := fmt.Sprintf("Summary Season %d, Number %d: %s", season, number, strings.SplitN(synopsis, "\n", 2)[0])
				if err := s.episode(p.ID, season, number, summary); err != nil {
					return err
				}
			}
		}
	}

	programmes, err := store.ListProgrammes(ctx)
	if err != nil {
		return err
	}
	rearranger := backlog.NewRearranger(store)
	for _, p := range programmes {
		if _, err := rearranger.RearrangeEpisodes(ctx, p.ID, time.Date(1970, 1, 1, 0, 0, 0, 0, loc)); err != nil {
			return fmt.Errorf("rearrange %q: %w", p.Name, err)
		}
	}
	return nil
}
