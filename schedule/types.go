package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// EmissionType says how a schedule's occurrences relate to new content.
type EmissionType string

const (
	Live        EmissionType = "L"
	Broadcast   EmissionType = "B"
	Syndication EmissionType = "S"
	Repetition  EmissionType = "R"
)

// Valid reports whether t is one of the known emission types.
func (t EmissionType) Valid() bool {
	switch t {
	case Live, Broadcast, Syndication, Repetition:
		return true
	}
	return false
}

func (t EmissionType) String() string {
	switch t {
	case Live:
		return "live"
	case Broadcast:
		return "broadcast"
	case Syndication:
		return "broadcast syndication"
	case Repetition:
		return "repetition"
	default:
		return "unknown"
	}
}

// ParseEmissionType accepts either the one letter code or the readable name.
func ParseEmissionType(s string) (EmissionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "live":
		return Live, nil
	case "b", "broadcast":
		return Broadcast, nil
	case "s", "syndication", "broadcast syndication":
		return Syndication, nil
	case "r", "repetition":
		return Repetition, nil
	}
	return "", fmt.Errorf("unknown emission type %q", s)
}

// Programme is a show. It owns slots and episodes.
type Programme struct {
	ID            string
	Slug          string
	Name          string
	Synopsis      string
	CurrentSeason int
}

// Slot is a recurring on-air commitment of fixed duration.
type Slot struct {
	ID          string
	ProgrammeID string
	Programme   *Programme // optional, filled in by stores
	Runtime     time.Duration
}

// String renders the slot as "<programme name> (H:MM:SS)".
func (s Slot) String() string {
	name := s.ProgrammeID
	if s.Programme != nil {
		name = s.Programme.Name
	}
	total := int(s.Runtime / time.Second)
	return fmt.Sprintf("%s (%d:%02d:%02d)", name, total/3600, total/60%60, total%60)
}

// Validate checks the slot is attached to a programme and has a positive runtime.
func (s Slot) Validate() error {
	if s.ProgrammeID == "" {
		return errors.New("slot: programme is required")
	}
	if s.Runtime <= 0 {
		return fmt.Errorf("slot: runtime must be positive, got %s", s.Runtime)
	}
	return nil
}

// Episode is one unit of a programme's content. IssueDate is nil while the
// episode sits unscheduled in the backlog.
type Episode struct {
	ID             string
	ProgrammeID    string
	Season         int
	NumberInSeason int
	IssueDate      *time.Time
	Title          string
	Summary        string
}

// Scheduled reports whether the episode has an issue date.
func (e Episode) Scheduled() bool {
	return e.IssueDate != nil
}

// Aired reports whether the episode was issued before t.
func (e Episode) Aired(t time.Time) bool {
	return e.IssueDate != nil && e.IssueDate.Before(t)
}

// CompareEpisodes orders episodes by season, then number in season.
func CompareEpisodes(a, b *Episode) int {
	if a.Season != b.Season {
		return a.Season - b.Season
	}
	return a.NumberInSeason - b.NumberInSeason
}

// Validate checks season and number are both at least one.
func (e Episode) Validate() error {
	if e.ProgrammeID == "" {
		return errors.New("episode: programme is required")
	}
	if e.Season < 1 || e.NumberInSeason < 1 {
		return fmt.Errorf("episode: season and number must be >= 1, got %dx%d", e.Season, e.NumberInSeason)
	}
	return nil
}

// Slugify turns a programme name into a lowercase, dash separated slug.
// Accents are dropped so "Música Clásica" becomes "musica-clasica".
func Slugify(name string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(stripMarks, name)
	if err != nil {
		plain = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}
