package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cyp0633/libonair/schedule"
	"github.com/cyp0633/libonair/storage"
)

func seedProgramme(t *testing.T, store *Store) (*schedule.Programme, *schedule.Schedule) {
	t.Helper()
	ctx := context.Background()

	programme := &schedule.Programme{Name: "Classic hits", CurrentSeason: 7}
	if err := store.CreateProgramme(ctx, programme); err != nil {
		t.Fatalf("unexpected error creating programme: %v", err)
	}
	sc := storage.NewMockDailySchedule("", programme, schedule.Live, time.Date(2015, 1, 1, 14, 0, 0, 0, time.UTC))
	sc.Slot.ID = ""
	if err := store.CreateSlot(ctx, sc.Slot); err != nil {
		t.Fatalf("unexpected error creating slot: %v", err)
	}
	sc.SlotID = sc.Slot.ID
	if err := store.CreateSchedule(ctx, sc); err != nil {
		t.Fatalf("unexpected error creating schedule: %v", err)
	}
	return programme, sc
}

func TestStore_Programme(t *testing.T) {
	store := New()
	ctx := context.Background()

	// Test getting non-existent programme
	_, err := store.GetProgramme(ctx, "nonexistent")
	if !storage.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	programme := &schedule.Programme{Name: "Morning News", CurrentSeason: 1}
	if err := store.CreateProgramme(ctx, programme); err != nil {
		t.Fatalf("unexpected error creating programme: %v", err)
	}
	if programme.ID == "" {
		t.Error("expected an ID to be assigned")
	}
	if programme.Slug != "morning-news" {
		t.Errorf("got slug %q, want morning-news", programme.Slug)
	}

	// Same slug again
	err = store.CreateProgramme(ctx, &schedule.Programme{Name: "Morning news"})
	if !storage.IsType(err, storage.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := store.GetProgrammeBySlug(ctx, "morning-news")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != programme.ID {
		t.Errorf("got programme %s, want %s", got.ID, programme.ID)
	}

	// Returned records are copies
	got.Name = "Changed"
	again, _ := store.GetProgramme(ctx, programme.ID)
	if again.Name != "Morning News" {
		t.Errorf("store was modified through a returned record: %q", again.Name)
	}

	programme.CurrentSeason = 2
	if err := store.UpdateProgramme(ctx, programme); err != nil {
		t.Errorf("unexpected error updating programme: %v", err)
	}
	again, _ = store.GetProgramme(ctx, programme.ID)
	if again.CurrentSeason != 2 {
		t.Errorf("got season %d, want 2", again.CurrentSeason)
	}

	list, _ := store.ListProgrammes(ctx)
	if len(list) != 1 {
		t.Errorf("got %d programmes, want 1", len(list))
	}
}

func TestStore_Schedules(t *testing.T) {
	store := New()
	ctx := context.Background()
	programme, live := seedProgramme(t, store)

	rerun := storage.NewMockDailySchedule("", programme, schedule.Repetition, time.Date(2015, 1, 1, 20, 0, 0, 0, time.UTC))
	rerun.Slot = live.Slot
	rerun.SlotID = ""
	if err := store.CreateSchedule(ctx, rerun); err != nil {
		t.Fatalf("unexpected error creating schedule: %v", err)
	}
	if rerun.SlotID != live.SlotID {
		t.Errorf("expected slot ID to be filled in from Slot")
	}

	got, err := store.GetSchedule(ctx, live.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Slot == nil || got.Slot.Programme == nil || got.Slot.Programme.Name != "Classic hits" {
		t.Errorf("expected slot and programme to be loaded, got %+v", got.Slot)
	}

	all, _ := store.ListSchedules(ctx, nil)
	if len(all) != 2 || all[0].ID != live.ID {
		t.Errorf("expected both schedules in insertion order, got %d", len(all))
	}
	lives, _ := store.ListSchedules(ctx, storage.LiveSchedules(programme.ID))
	if len(lives) != 1 || lives[0].ID != live.ID {
		t.Errorf("expected only the live schedule, got %d", len(lives))
	}

	// Invalid schedules are rejected
	err = store.CreateSchedule(ctx, &schedule.Schedule{SlotID: live.SlotID})
	if !storage.IsType(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	err = store.CreateSchedule(ctx, &schedule.Schedule{SlotID: "missing", Type: schedule.Live})
	if !storage.IsNotFound(err) {
		t.Errorf("expected ErrNotFound for missing slot, got %v", err)
	}

	// Deleting the slot removes its schedules
	if err := store.DeleteSlot(ctx, live.SlotID); err != nil {
		t.Fatalf("unexpected error deleting slot: %v", err)
	}
	all, _ = store.ListSchedules(ctx, nil)
	if len(all) != 0 {
		t.Errorf("got %d schedules after deleting slot, want 0", len(all))
	}
}

func TestStore_Episodes(t *testing.T) {
	store := New()
	ctx := context.Background()
	programme, _ := seedProgramme(t, store)

	after := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	aired := after.Add(-24 * time.Hour)

	for _, e := range []*schedule.Episode{
		{ProgrammeID: programme.ID, Season: 2, NumberInSeason: 1},
		{ProgrammeID: programme.ID, Season: 1, NumberInSeason: 2},
		{ProgrammeID: programme.ID, Season: 1, NumberInSeason: 1, IssueDate: &aired},
	} {
		if err := store.CreateEpisode(ctx, e); err != nil {
			t.Fatalf("unexpected error creating episode: %v", err)
		}
	}

	err := store.CreateEpisode(ctx, &schedule.Episode{ProgrammeID: programme.ID, Season: 1, NumberInSeason: 2})
	if !storage.IsType(err, storage.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for a taken number, got %v", err)
	}

	all, _ := store.ListEpisodes(ctx, &storage.EpisodeFilter{ProgrammeID: programme.ID})
	if len(all) != 3 {
		t.Fatalf("got %d episodes, want 3", len(all))
	}
	for i, want := range [][2]int{{1, 1}, {1, 2}, {2, 1}} {
		if all[i].Season != want[0] || all[i].NumberInSeason != want[1] {
			t.Errorf("episode %d is %dx%d, want %dx%d", i, all[i].Season, all[i].NumberInSeason, want[0], want[1])
		}
	}

	unfinished, _ := store.ListEpisodes(ctx, storage.Unfinished(programme.ID, after))
	if len(unfinished) != 2 {
		t.Errorf("got %d unfinished episodes, want 2", len(unfinished))
	}

	last, err := store.LastEpisode(ctx, programme.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last.Season != 2 || last.NumberInSeason != 1 {
		t.Errorf("got last episode %dx%d, want 2x1", last.Season, last.NumberInSeason)
	}
	if _, err := store.LastEpisode(ctx, "other"); !storage.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	issued := after.Add(14 * time.Hour)
	last.IssueDate = &issued
	if err := store.UpdateEpisode(ctx, last); err != nil {
		t.Fatalf("unexpected error updating episode: %v", err)
	}
	got, _ := store.GetEpisode(ctx, last.ID)
	if got.IssueDate == nil || !got.IssueDate.Equal(issued) {
		t.Errorf("got issue date %v, want %v", got.IssueDate, issued)
	}

	// Deleting the programme cascades
	if err := store.DeleteProgramme(ctx, programme.ID); err != nil {
		t.Fatalf("unexpected error deleting programme: %v", err)
	}
	all, _ = store.ListEpisodes(ctx, nil)
	if len(all) != 0 {
		t.Errorf("got %d episodes after deleting programme, want 0", len(all))
	}
}

func TestStore_AtomicallyRollsBack(t *testing.T) {
	store := New()
	ctx := context.Background()
	programme, live := seedProgramme(t, store)

	episode := &schedule.Episode{ProgrammeID: programme.ID, Season: 1, NumberInSeason: 1}
	if err := store.CreateEpisode(ctx, episode); err != nil {
		t.Fatalf("unexpected error creating episode: %v", err)
	}

	boom := errors.New("boom")
	err := store.Atomically(ctx, programme.ID, func(tx storage.Storage) error {
		issued := time.Date(2015, 1, 1, 14, 0, 0, 0, time.UTC)
		episode.IssueDate = &issued
		if err := tx.UpdateEpisode(ctx, episode); err != nil {
			return err
		}
		if err := tx.CreateEpisode(ctx, &schedule.Episode{ProgrammeID: programme.ID, Season: 1, NumberInSeason: 2}); err != nil {
			return err
		}
		if err := tx.DeleteSchedule(ctx, live.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn's error, got %v", err)
	}

	got, _ := store.GetEpisode(ctx, episode.ID)
	if got.IssueDate != nil {
		t.Errorf("expected issue date to be rolled back, got %v", got.IssueDate)
	}
	episodes, _ := store.ListEpisodes(ctx, nil)
	if len(episodes) != 1 {
		t.Errorf("expected created episode to be rolled back, got %d episodes", len(episodes))
	}
	if _, err := store.GetSchedule(ctx, live.ID); err != nil {
		t.Errorf("expected deleted schedule to be restored, got %v", err)
	}
}

func TestStore_AtomicallyRestoresMovedSchedule(t *testing.T) {
	store := New()
	ctx := context.Background()
	source, live := seedProgramme(t, store)

	target := &schedule.Programme{Name: "Local Gossips", CurrentSeason: 1}
	if err := store.CreateProgramme(ctx, target); err != nil {
		t.Fatalf("unexpected error creating programme: %v", err)
	}
	slot := &schedule.Slot{ProgrammeID: target.ID, Runtime: time.Hour}
	if err := store.CreateSlot(ctx, slot); err != nil {
		t.Fatalf("unexpected error creating slot: %v", err)
	}

	boom := errors.New("boom")
	err := store.Atomically(ctx, target.ID, func(tx storage.Storage) error {
		moved, err := tx.GetSchedule(ctx, live.ID)
		if err != nil {
			return err
		}
		moved.SlotID = slot.ID
		moved.Slot = nil
		if err := tx.UpdateSchedule(ctx, moved); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn's error, got %v", err)
	}

	got, err := store.GetSchedule(ctx, live.ID)
	if err != nil {
		t.Fatalf("expected moved schedule to be restored, got %v", err)
	}
	if got.ProgrammeID() != source.ID {
		t.Errorf("expected schedule back on %s, got %s", source.ID, got.ProgrammeID())
	}
}

func TestStore_AtomicallyHidesUncommittedWrites(t *testing.T) {
	store := New()
	ctx := context.Background()
	programme, _ := seedProgramme(t, store)

	first := &schedule.Episode{ProgrammeID: programme.ID, Season: 1, NumberInSeason: 1}
	second := &schedule.Episode{ProgrammeID: programme.ID, Season: 1, NumberInSeason: 2}
	for _, e := range []*schedule.Episode{first, second} {
		if err := store.CreateEpisode(ctx, e); err != nil {
			t.Fatalf("unexpected error creating episode: %v", err)
		}
	}

	issued := time.Date(2015, 1, 1, 14, 0, 0, 0, time.UTC)
	outsideTitle := "Written outside"
	err := store.Atomically(ctx, programme.ID, func(tx storage.Storage) error {
		staged := *first
		staged.IssueDate = &issued
		if err := tx.UpdateEpisode(ctx, &staged); err != nil {
			return err
		}
		if err := tx.CreateEpisode(ctx, &schedule.Episode{ProgrammeID: programme.ID, Season: 1, NumberInSeason: 3}); err != nil {
			return err
		}

		// The transaction reads its own writes
		own, err := tx.GetEpisode(ctx, first.ID)
		if err != nil {
			return err
		}
		if own.IssueDate == nil || !own.IssueDate.Equal(issued) {
			t.Errorf("expected the transaction to see its own issue date, got %v", own.IssueDate)
		}

		// Other readers do not
		outside, err := store.GetEpisode(ctx, first.ID)
		if err != nil {
			return err
		}
		if outside.IssueDate != nil {
			t.Errorf("expected outside reader to see no issue date yet, got %v", outside.IssueDate)
		}
		if all, _ := store.ListEpisodes(ctx, nil); len(all) != 2 {
			t.Errorf("expected outside reader to see 2 episodes, got %d", len(all))
		}

		// A write made outside to a record fn does not touch survives the commit
		other := *second
		other.Title = outsideTitle
		return store.UpdateEpisode(ctx, &other)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := store.GetEpisode(ctx, first.ID)
	if got.IssueDate == nil || !got.IssueDate.Equal(issued) {
		t.Errorf("expected committed issue date %v, got %v", issued, got.IssueDate)
	}
	episodes, _ := store.ListEpisodes(ctx, nil)
	if len(episodes) != 3 {
		t.Errorf("expected 3 episodes after commit, got %d", len(episodes))
	}
	kept, _ := store.GetEpisode(ctx, second.ID)
	if kept.Title != outsideTitle {
		t.Errorf("expected outside write to survive, got title %q", kept.Title)
	}
}

func TestStore_AtomicallySerialisesProgramme(t *testing.T) {
	store := New()
	ctx := context.Background()
	programme, _ := seedProgramme(t, store)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		overlap bool
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Atomically(ctx, programme.ID, func(storage.Storage) error {
				mu.Lock()
				inside++
				if inside > 1 {
					overlap = true
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if overlap {
		t.Error("expected calls for the same programme to run one at a time")
	}
}

func TestStore_AtomicallyHonoursContext(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Atomically(ctx, "p1", func(storage.Storage) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("fn should not run on a cancelled context")
	}
}
