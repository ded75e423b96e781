package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	service "github.com/okian/ideabox/internal/app"
	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/internal/domain/workflow"
	. "github.com/smartystreets/goconvey/convey"
)

func TestService_Dashboard(t *testing.T) {
	ctx := context.Background()

	Convey("Given ideas in several states", t, func() {
		f := newFixture()
		a := f.idea("Solar panels")
		b := f.idea("Wind turbines")
		f.idea("Rain tanks")
		_, _ = f.svc.ChangeStatus(ctx, f.committee, a.ID, "approved")
		_, _ = f.svc.ToggleVote(ctx, f.committee, b.ID)
		_, err := f.svc.CreateIdea(ctx, f.other, workflow.IdeaInput{
			Title: "Better gloves", Description: "A description long enough to pass", Area: "ergonomics",
		})
		So(err, ShouldBeNil)

		Convey("The dashboard counts by status and area", func() {
			d, err := f.svc.Dashboard(ctx, f.committee)
			So(err, ShouldBeNil)
			So(d.Total, ShouldEqual, 4)
			So(d.ByStatus[model.StatusNew], ShouldEqual, 3)
			So(d.ByStatus[model.StatusApproved], ShouldEqual, 1)
			So(d.ByStatus[model.StatusRejected], ShouldEqual, 0)
			So(d.ByArea["safety"], ShouldEqual, 3)
			So(d.ByArea["ergonomics"], ShouldEqual, 1)
			So(d.ByArea["cost"], ShouldEqual, 0)
			So(d.Top, ShouldHaveLength, 4)
			So(d.Top[0].ID, ShouldEqual, b.ID)
		})

		Convey("Users cannot see it", func() {
			_, err := f.svc.Dashboard(ctx, f.author)
			So(errors.Is(err, service.ErrPermissionDenied), ShouldBeTrue)
		})

		Convey("Home numbers follow the role", func() {
			h, err := f.svc.Home(ctx, f.author)
			So(err, ShouldBeNil)
			So(h.MyIdeas, ShouldEqual, 3)
			So(h.RecentMine, ShouldHaveLength, 3)
			So(h.CommitteeQueue, ShouldEqual, 0)
			So(h.AwaitingReview, ShouldBeEmpty)

			_, _ = f.svc.ChangeStatus(ctx, f.committee, b.ID, "under_review")
			_, _ = f.svc.ChangeStatus(ctx, f.committee, a.ID, "completed")
			_, _ = f.svc.AssignManager(ctx, f.committee, b.ID, "caio")
			h, err = f.svc.Home(ctx, f.committee)
			So(err, ShouldBeNil)
			So(h.MyIdeas, ShouldEqual, 0)
			So(h.CommitteeQueue, ShouldEqual, 1)
			So(h.AssignedToMe, ShouldEqual, 1)
			So(h.CompletedThisMonth, ShouldEqual, 1)
			So(h.AwaitingReview, ShouldHaveLength, 1)
		})
	})
}

func TestService_Ranking(t *testing.T) {
	ctx := context.Background()

	Convey("Given rewarded ideas", t, func() {
		f := newFixture()
		a := f.idea("Solar panels")
		b := f.idea("Wind turbines")
		gloves, _ := f.svc.CreateIdea(ctx, f.other, workflow.IdeaInput{
			Title: "Better gloves", Description: "A description long enough to pass", Area: "ergonomics",
		})
		_, _, _ = f.svc.AwardReward(ctx, f.committee, a.ID, 10)
		_, _, _ = f.svc.AwardReward(ctx, f.committee, b.ID, 5)
		_, _, _ = f.svc.AwardReward(ctx, f.committee, gloves.ID, 20)

		Convey("The current month ranks authors by coins", func() {
			r, err := f.svc.Ranking(ctx, f.committee, "month", "")
			So(err, ShouldBeNil)
			So(r.Entries, ShouldHaveLength, 2)
			So(r.Entries[0].Name, ShouldEqual, "Bia")
			So(r.Entries[0].Coins, ShouldEqual, 20)
			So(r.Entries[1].Name, ShouldEqual, "Ana")
			So(r.Entries[1].Coins, ShouldEqual, 15)
			So(r.Entries[1].Count, ShouldEqual, 2)
			So(r.Totals.Coins, ShouldEqual, 35)
			So(r.Totals.Awards, ShouldEqual, 3)
			So(r.Totals.Participants, ShouldEqual, 2)
			So(r.Podium, ShouldHaveLength, 2)
		})

		Convey("Another year is empty", func() {
			r, err := f.svc.Ranking(ctx, f.committee, "year", "1999")
			So(err, ShouldBeNil)
			So(r.Entries, ShouldBeEmpty)
		})

		Convey("A bad period is invalid", func() {
			_, err := f.svc.Ranking(ctx, f.committee, "month", "June")
			So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
		})

		Convey("The profile sums coins and ranks the year", func() {
			p, err := f.svc.Profile(ctx, f.author)
			So(err, ShouldBeNil)
			So(p.Coins, ShouldEqual, 15)
			So(p.Ideas, ShouldEqual, 2)
			So(p.Completed, ShouldEqual, 0)
			So(p.YearRank, ShouldNotBeNil)
			So(p.YearRank.Rank, ShouldEqual, 2)

			p, err = f.svc.Profile(ctx, f.committee)
			So(err, ShouldBeNil)
			So(p.Coins, ShouldEqual, 0)
			So(p.YearRank, ShouldBeNil)
		})
	})
}

func TestService_Profile(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service", t, func() {
		f := newFixture()

		Convey("Display names are trimmed and validated", func() {
			u, err := f.svc.UpdateDisplayName(ctx, f.author, "  Ana Maria ")
			So(err, ShouldBeNil)
			So(u.DisplayName, ShouldEqual, "Ana Maria")

			_, err = f.svc.UpdateDisplayName(ctx, f.author, "A")
			So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
		})

		Convey("Committee members are listed by name", func() {
			members, err := f.svc.CommitteeMembers(ctx, f.committee)
			So(err, ShouldBeNil)
			So(members, ShouldHaveLength, 2)
			So(members[0].Name(), ShouldEqual, "Caio")
			So(members[1].Name(), ShouldEqual, "Dani")
		})

		Convey("The current month starts at its first day", func() {
			now := time.Now().UTC()
			p, err := f.svc.Ranking(ctx, f.committee, "", "")
			So(err, ShouldBeNil)
			So(p.Period.Start.Day(), ShouldEqual, 1)
			So(p.Period.Start.Month(), ShouldEqual, now.Month())
		})
	})
}
