package sqlstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cyp0633/libonair/recurrence"
	"github.com/cyp0633/libonair/schedule"
)

type programmeRow struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	Slug          string `gorm:"uniqueIndex;type:varchar(128);not null"`
	Name          string `gorm:"type:varchar(128);not null"`
	Synopsis      string `gorm:"type:text"`
	CurrentSeason int    `gorm:"not null;default:1"`
	CreatedAt     time.Time
}

func (programmeRow) TableName() string { return "programmes" }

type slotRow struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	ProgrammeID string `gorm:"index;type:varchar(36);not null"`
	RuntimeNs   int64  `gorm:"not null"`
	CreatedAt   time.Time
}

func (slotRow) TableName() string { return "slots" }

type scheduleRow struct {
	ID     string `gorm:"primaryKey;type:varchar(36)"`
	SlotID string `gorm:"index;type:varchar(36);not null"`
	// ProgrammeID is copied from the slot so schedules can be filtered by programme.
	ProgrammeID string           `gorm:"index;type:varchar(36);not null"`
	Type        string           `gorm:"index;type:varchar(1);not null"`
	Recurrence  recurrenceColumn `gorm:"type:text;not null"`
	SourceID    *string          `gorm:"type:varchar(36)"`
	CreatedAt   time.Time
}

func (scheduleRow) TableName() string { return "schedules" }

type episodeRow struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)"`
	ProgrammeID    string     `gorm:"uniqueIndex:idx_episode_number;type:varchar(36);not null"`
	Season         int        `gorm:"uniqueIndex:idx_episode_number;not null"`
	NumberInSeason int        `gorm:"uniqueIndex:idx_episode_number;not null"`
	IssueDate      *time.Time `gorm:"index"`
	Title          string     `gorm:"type:varchar(128)"`
	Summary        string     `gorm:"type:text"`
}

func (episodeRow) TableName() string { return "episodes" }

func fromProgramme(p *schedule.Programme) programmeRow {
	return programmeRow{
		ID:            p.ID,
		Slug:          p.Slug,
		Name:          p.Name,
		Synopsis:      p.Synopsis,
		CurrentSeason: p.CurrentSeason,
	}
}

func (r programmeRow) toProgramme() *schedule.Programme {
	return &schedule.Programme{
		ID:            r.ID,
		Slug:          r.Slug,
		Name:          r.Name,
		Synopsis:      r.Synopsis,
		CurrentSeason: r.CurrentSeason,
	}
}

func fromSlot(s *schedule.Slot) slotRow {
	return slotRow{ID: s.ID, ProgrammeID: s.ProgrammeID, RuntimeNs: int64(s.Runtime)}
}

func (r slotRow) toSlot(programme *schedule.Programme) *schedule.Slot {
	return &schedule.Slot{
		ID:          r.ID,
		ProgrammeID: r.ProgrammeID,
		Programme:   programme,
		Runtime:     time.Duration(r.RuntimeNs),
	}
}

func fromSchedule(s *schedule.Schedule, programmeID string) scheduleRow {
	return scheduleRow{
		ID:          s.ID,
		SlotID:      s.SlotID,
		ProgrammeID: programmeID,
		Type:        string(s.Type),
		Recurrence:  recurrenceColumn{s.Recurrence},
		SourceID:    s.SourceID,
	}
}

func (r scheduleRow) toSchedule(slot *schedule.Slot) *schedule.Schedule {
	return &schedule.Schedule{
		ID:         r.ID,
		SlotID:     r.SlotID,
		Slot:       slot,
		Type:       schedule.EmissionType(r.Type),
		Recurrence: r.Recurrence.Recurrence,
		SourceID:   r.SourceID,
	}
}

func fromEpisode(e *schedule.Episode) episodeRow {
	row := episodeRow{
		ID:             e.ID,
		ProgrammeID:    e.ProgrammeID,
		Season:         e.Season,
		NumberInSeason: e.NumberInSeason,
		Title:          e.Title,
		Summary:        e.Summary,
	}
	if e.IssueDate != nil {
		// sqlite compares timestamps as text, so they all go in as UTC.
		d := e.IssueDate.UTC()
		row.IssueDate = &d
	}
	return row
}

func (r episodeRow) toEpisode() *schedule.Episode {
	return &schedule.Episode{
		ID:             r.ID,
		ProgrammeID:    r.ProgrammeID,
		Season:         r.Season,
		NumberInSeason: r.NumberInSeason,
		IssueDate:      r.IssueDate,
		Title:          r.Title,
		Summary:        r.Summary,
	}
}

// civilLayout keeps wall clocks readable; the zone is stored beside them.
const civilLayout = "2006-01-02T15:04:05.999999999"

// recurrenceDoc is the stored form of a recurrence. Instants are kept as
// wall clocks in Zone so daylight saving rules are re-applied on load.
type recurrenceDoc struct {
	Zone    string   `json:"zone"`
	DTStart string   `json:"dtstart,omitempty"`
	DTEnd   string   `json:"dtend,omitempty"`
	RRules  []string `json:"rrules,omitempty"`
	ExRules []string `json:"exrules,omitempty"`
	RDates  []string `json:"rdates,omitempty"`
	ExDates []string `json:"exdates,omitempty"`
}

// recurrenceColumn stores a recurrence as a JSON document.
type recurrenceColumn struct {
	recurrence.Recurrence
}

func (c recurrenceColumn) Value() (driver.Value, error) {
	r := c.Recurrence
	loc := r.Location()
	doc := recurrenceDoc{Zone: loc.String()}

	wall := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.In(loc).Format(civilLayout)
	}
	doc.DTStart = wall(r.DTStart)
	doc.DTEnd = wall(r.DTEnd)
	for _, rule := range r.RRules {
		doc.RRules = append(doc.RRules, rule.String())
	}
	for _, rule := range r.ExRules {
		doc.ExRules = append(doc.ExRules, rule.String())
	}
	for _, d := range r.RDates {
		doc.RDates = append(doc.RDates, wall(d))
	}
	for _, d := range r.ExDates {
		doc.ExDates = append(doc.ExDates, wall(d))
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *recurrenceColumn) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into recurrence", value)
	}

	var doc recurrenceDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode recurrence: %w", err)
	}
	loc, err := time.LoadLocation(doc.Zone)
	if err != nil {
		return fmt.Errorf("decode recurrence: %w", err)
	}

	parseWall := func(s string) (time.Time, error) {
		if s == "" {
			return time.Time{}, nil
		}
		return time.ParseInLocation(civilLayout, s, loc)
	}

	var r recurrence.Recurrence
	if r.DTStart, err = parseWall(doc.DTStart); err != nil {
		return fmt.Errorf("decode recurrence: %w", err)
	}
	if r.DTEnd, err = parseWall(doc.DTEnd); err != nil {
		return fmt.Errorf("decode recurrence: %w", err)
	}
	for _, s := range doc.RRules {
		rule, err := recurrence.ParseRule(s, loc)
		if err != nil {
			return fmt.Errorf("decode recurrence: %w", err)
		}
		r.RRules = append(r.RRules, rule)
	}
	for _, s := range doc.ExRules {
		rule, err := recurrence.ParseRule(s, loc)
		if err != nil {
			return fmt.Errorf("decode recurrence: %w", err)
		}
		r.ExRules = append(r.ExRules, rule)
	}
	for _, s := range doc.RDates {
		d, err := parseWall(s)
		if err != nil {
			return fmt.Errorf("decode recurrence: %w", err)
		}
		r.RDates = append(r.RDates, d)
	}
	for _, s := range doc.ExDates {
		d, err := parseWall(s)
		if err != nil {
			return fmt.Errorf("decode recurrence: %w", err)
		}
		r.ExDates = append(r.ExDates, d)
	}

	c.Recurrence = r
	return nil
}
