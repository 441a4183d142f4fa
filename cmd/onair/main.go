// Command onair answers "what is on air" questions about a station.
//
//	onair [-config onair.yaml] [-seed] at <instant>
//	onair [-config onair.yaml] [-seed] between <after> <before>
//	onair [-config onair.yaml] [-seed] feed <after> <before>
//	onair [-config onair.yaml] [-seed] rearrange <programme-slug>
//	onair [-config onair.yaml] import <calendar.ics>
//
// Instants are read in the configured timezone, as 2006-01-02T15:04 or
// 2006-01-02 (midnight). An instant of "now" means the current time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cyp0633/libonair/feed"
	"github.com/cyp0633/libonair/internal/config"
	"github.com/cyp0633/libonair/internal/example"
	"github.com/cyp0633/libonair/internal/logging"
	"github.com/cyp0633/libonair/recurrence"
	"github.com/cyp0633/libonair/station"
	"github.com/cyp0633/libonair/storage"
	"github.com/cyp0633/libonair/storage/memory"
	"github.com/cyp0633/libonair/storage/sqlstore"
	"github.com/cyp0633/libonair/transmission"
)

var errUsage = errors.New("usage: onair [-config file] [-seed] at|between|feed|rearrange|import ...")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

type app struct {
	loc      *time.Location
	now      func() time.Time
	store    storage.Storage
	service  *station.Service
	resolver *transmission.Resolver
	logger   *slog.Logger
	out      io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("onair", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cfgPath string
	var seed bool
	fs.StringVar(&cfgPath, "config", "", "path to a YAML or JSON config file")
	fs.BoolVar(&seed, "seed", false, "fill the store with the example station first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			return err
		}
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: stderr})

	store, closeStore, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	resolverOpts := []transmission.Option{transmission.WithLogger(logger)}
	if cfg.Cache.Enabled {
		settings, err := cfg.CacheSettings()
		if err != nil {
			return err
		}
		cache := recurrence.NewCache(settings)
		defer cache.Close()
		resolverOpts = append(resolverOpts, transmission.WithCache(cache))
	}

	if seed {
		if err := example.Seed(ctx, store, loc); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.Info("seeded example station")
	}

	a := &app{
		loc:      loc,
		now:      time.Now,
		store:    store,
		service:  station.New(store, station.WithLogger(logger)),
		resolver: transmission.NewResolver(store, resolverOpts...),
		logger:   logger,
		out:      stdout,
	}
	return a.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
}

func openStore(cfg config.StorageConfig) (storage.Storage, func(), error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.New(), func() {}, nil
	default:
		store, err := sqlstore.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "at":
		if len(args) != 1 {
			return errUsage
		}
		instant, err := a.parseInstant(args[0])
		if err != nil {
			return err
		}
		ts, err := a.resolver.At(ctx, instant)
		if err != nil {
			return err
		}
		transmission.SortByStart(ts)
		a.print(ts)
		return nil

	case "between", "feed":
		if len(args) != 2 {
			return errUsage
		}
		after, err := a.parseInstant(args[0])
		if err != nil {
			return err
		}
		before, err := a.parseInstant(args[1])
		if err != nil {
			return err
		}
		ts, err := transmission.Collect(a.resolver.Between(ctx, after, before))
		if err != nil {
			return err
		}
		if cmd == "feed" {
			return feed.Encode(a.out, ts, a.now())
		}
		a.print(ts)
		return nil

	case "rearrange":
		if len(args) != 1 {
			return errUsage
		}
		p, err := a.store.GetProgrammeBySlug(ctx, args[0])
		if err != nil {
			return err
		}
		return a.service.Rearrange(ctx, p.ID)

	case "import":
		if len(args) != 1 {
			return errUsage
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := feed.Import(ctx, a.service, f, a.loc)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "imported %d schedules\n", n)
		return nil
	}
	return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
}

var instantLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

func (a *app) parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "now" {
		return a.now().In(a.loc), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(a.loc), nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, a.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid instant %q", s)
}

// programmeName falls back to the schedule ID when the programme did not load.
func programmeName(t transmission.Transmission) string {
	switch {
	case t.Programme != nil:
		return t.Programme.Name
	case t.Schedule != nil:
		return "schedule " + t.Schedule.ID
	default:
		return "unknown programme"
	}
}

func (a *app) print(ts []transmission.Transmission) {
	for _, t := range ts {
		line := fmt.Sprintf("%s  %s  %-22s %s",
			t.Start.In(a.loc).Format("2006-01-02 15:04"),
			t.End.In(a.loc).Format("15:04"),
			t.Type.String(),
			programmeName(t))
		if t.Episode != nil {
			line += fmt.Sprintf(" (%dx%02d %s)", t.Episode.Season, t.Episode.NumberInSeason, t.Title())
		}
		fmt.Fprintln(a.out, line)
	}
}
