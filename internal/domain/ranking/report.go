package ranking

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/okian/ideabox/internal/domain/model"
)

// ErrBadPeriod is returned for periods that are neither YYYY-MM nor YYYY.
var ErrBadPeriod = errors.New("invalid ranking period")

// PodiumSize is the number of leaders highlighted by a report.
const PodiumSize = 3

// PeriodKind selects the length of a ranking window.
type PeriodKind string

const (
	PeriodMonth PeriodKind = "month"
	PeriodYear  PeriodKind = "year"
)

// Period is the half-open window [Start, End) in UTC.
type Period struct {
	Kind  PeriodKind `json:"kind"`
	Label string     `json:"label"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

// ParsePeriod reads "2025-06" for a month or "2025" for a year. An empty
// value selects the period containing now.
func ParsePeriod(kind PeriodKind, value string, now time.Time) (Period, error) {
	value = strings.TrimSpace(value)
	now = now.UTC()
	switch kind {
	case PeriodMonth, "":
		if value == "" {
			value = now.Format("2006-01")
		}
		start, err := time.Parse("2006-01", value)
		if err != nil {
			return Period{}, fmt.Errorf("%w: %q", ErrBadPeriod, value)
		}
		return Period{Kind: PeriodMonth, Label: value, Start: start, End: start.AddDate(0, 1, 0)}, nil
	case PeriodYear:
		if value == "" {
			value = now.Format("2006")
		}
		start, err := time.Parse("2006", value)
		if err != nil {
			return Period{}, fmt.Errorf("%w: %q", ErrBadPeriod, value)
		}
		return Period{Kind: PeriodYear, Label: value, Start: start, End: start.AddDate(1, 0, 0)}, nil
	}
	return Period{}, fmt.Errorf("%w: kind %q", ErrBadPeriod, kind)
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Totals summarizes a report.
type Totals struct {
	Coins        int `json:"coins"`
	Awards       int `json:"awards"`
	Participants int `json:"participants"`
}

// Report is a ranked period.
type Report struct {
	Period  Period  `json:"period"`
	Entries []Entry `json:"entries"`
	Podium  []Entry `json:"podium"`
	Totals  Totals  `json:"totals"`

	board *Board
}

// Build ranks the rewards created inside p. Names and emails come from
// users; authors without a profile are shown by id.
func Build(p Period, rewards []model.Reward, users map[string]model.User) *Report {
	b := NewBoard()
	t := Totals{}
	for _, r := range rewards {
		if !p.Contains(r.CreatedAt) {
			continue
		}
		b.Award(r.ToUserID, r.Amount)
		t.Coins += r.Amount
		t.Awards++
	}
	for id, u := range users {
		b.Label(id, u.Name(), u.Email)
	}
	t.Participants = b.Len()

	entries := b.All()
	return &Report{
		Period:  p,
		Entries: entries,
		Podium:  entries[:min(PodiumSize, len(entries))],
		Totals:  t,
		board:   b,
	}
}

// Rank returns the entry of userID, if they were rewarded in the period.
func (r *Report) Rank(userID string) (Entry, bool) {
	if r.board == nil {
		return Entry{}, false
	}
	e, err := r.board.Rank(userID)
	return e, err == nil
}

// CSVHeader is the first row of the export.
var CSVHeader = []string{"User", "Email", "Coins", "AwardedIdeas"}

// WriteCSV exports entries separated by semicolons.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{e.Name, e.Email, strconv.Itoa(e.Coins), strconv.Itoa(e.Count)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
