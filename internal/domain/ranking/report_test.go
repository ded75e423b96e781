package ranking

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/okian/ideabox/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParsePeriod(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	Convey("Given period input", t, func() {
		Convey("A month spans to the first of the next month", func() {
			p, err := ParsePeriod(PeriodMonth, "2025-12", now)
			So(err, ShouldBeNil)
			So(p.Start, ShouldEqual, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
			So(p.End, ShouldEqual, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		})

		Convey("A year spans twelve months", func() {
			p, err := ParsePeriod(PeriodYear, "2024", now)
			So(err, ShouldBeNil)
			So(p.Contains(time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)), ShouldBeTrue)
			So(p.Contains(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)), ShouldBeFalse)
		})

		Convey("Empty values select the current period", func() {
			p, err := ParsePeriod(PeriodMonth, "", now)
			So(err, ShouldBeNil)
			So(p.Label, ShouldEqual, "2025-06")
			p, err = ParsePeriod(PeriodYear, "", now)
			So(err, ShouldBeNil)
			So(p.Label, ShouldEqual, "2025")
		})

		Convey("Malformed values are rejected", func() {
			_, err := ParsePeriod(PeriodMonth, "2025-13", now)
			So(errors.Is(err, ErrBadPeriod), ShouldBeTrue)
			_, err = ParsePeriod(PeriodKind("week"), "", now)
			So(errors.Is(err, ErrBadPeriod), ShouldBeTrue)
		})
	})
}

func TestBuild(t *testing.T) {
	Convey("Given rewards inside and outside June 2025", t, func() {
		p, _ := ParsePeriod(PeriodMonth, "2025-06", time.Now())
		in := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
		rewards := []model.Reward{
			{IdeaID: "i1", ToUserID: "ana", Amount: 10, CreatedAt: in},
			{IdeaID: "i2", ToUserID: "ana", Amount: 5, CreatedAt: in},
			{IdeaID: "i3", ToUserID: "bia", Amount: 15, CreatedAt: in},
			{IdeaID: "i4", ToUserID: "caio", Amount: 20, CreatedAt: in},
			{IdeaID: "i5", ToUserID: "dani", Amount: 1, CreatedAt: in},
			{IdeaID: "i6", ToUserID: "ana", Amount: 100, CreatedAt: p.End},
		}
		users := map[string]model.User{
			"ana": {ID: "ana", DisplayName: "Ana", Email: "ana@example.com"},
			"bia": {ID: "bia", DisplayName: "Bia", Email: "bia@example.com"},
		}
		r := Build(p, rewards, users)

		Convey("Then the board orders by coins, then count, then name", func() {
			names := make([]string, len(r.Entries))
			for i, e := range r.Entries {
				names[i] = e.Name
			}
			So(names, ShouldResemble, []string{"caio", "Ana", "Bia", "dani"})
			So(r.Entries[1].Count, ShouldEqual, 2)
		})

		Convey("Then totals and podium cover only the period", func() {
			So(r.Totals, ShouldResemble, Totals{Coins: 51, Awards: 5, Participants: 4})
			So(len(r.Podium), ShouldEqual, PodiumSize)
			So(r.Podium[0].UserID, ShouldEqual, "caio")
		})

		Convey("Then a participant can be looked up", func() {
			e, ok := r.Rank("bia")
			So(ok, ShouldBeTrue)
			So(e.Rank, ShouldEqual, 3)
			_, ok = r.Rank("zoe")
			So(ok, ShouldBeFalse)
		})

		Convey("Then the CSV export uses semicolons", func() {
			var buf bytes.Buffer
			So(WriteCSV(&buf, r.Entries), ShouldBeNil)
			So(buf.String(), ShouldStartWith, "User;Email;Coins;AwardedIdeas\ncaio;;20;1\nAna;ana@example.com;15;2\n")
		})
	})

	Convey("Given no rewards", t, func() {
		p, _ := ParsePeriod(PeriodYear, "2025", time.Now())
		r := Build(p, nil, nil)
		So(r.Entries, ShouldBeEmpty)
		So(r.Podium, ShouldBeEmpty)
		So(r.Totals, ShouldResemble, Totals{})
	})
}
