package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ideabox/internal/domain/model"
)

func TestMigrationFiles(t *testing.T) {
	Convey("Given the embedded migrations", t, func() {
		files, err := MigrationFiles()
		So(err, ShouldBeNil)
		So(files, ShouldNotBeEmpty)
		So(files[0], ShouldEqual, "0001_init.up.sql")
	})
}

func TestMapError(t *testing.T) {
	Convey("Given driver errors", t, func() {
		So(mapError("op", nil), ShouldBeNil)
		So(errors.Is(mapError("op", sql.ErrNoRows), ErrNotFound), ShouldBeTrue)
		So(errors.Is(mapError("op", &pgconn.PgError{Code: "23505"}), ErrConflict), ShouldBeTrue)
		So(errors.Is(mapError("op", &pgconn.PgError{Code: "23503"}), ErrNotFound), ShouldBeTrue)
		So(errors.Is(mapError("op", &pgconn.PgError{Code: "42501"}), ErrPermission), ShouldBeTrue)
		So(errors.Is(mapError("op", &pgconn.PgError{Code: "55000", Message: "history is append-only"}), ErrPermission), ShouldBeTrue)

		Convey("Then missing schema objects carry an operator hint", func() {
			err := mapError("query ideas", &pgconn.PgError{Code: "42P01", Message: `relation "ideas" does not exist`})
			So(errors.Is(err, ErrFailedPrecondition), ShouldBeTrue)
			hint, ok := IndexHint(err)
			So(ok, ShouldBeTrue)
			So(hint, ShouldEqual, "apply the embedded migrations")
		})

		Convey("Then unknown errors pass through wrapped", func() {
			boom := errors.New("boom")
			So(errors.Is(mapError("op", boom), boom), ShouldBeTrue)
		})
	})
}

func TestWhereClause(t *testing.T) {
	Convey("Given a filter with several fields", t, func() {
		since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		where, args := whereClause(model.IdeaFilter{Status: model.StatusNew, ManagerID: "m1", UpdatedSince: &since}, "sol")

		So(where, ShouldEqual, " WHERE status = $1 AND manager_id = $2 AND updated_at >= $3 AND search_prefixes @> ARRAY[$4::text]")
		So(args, ShouldResemble, []any{"new", "m1", since, "sol"})
	})

	Convey("Given an empty filter", t, func() {
		where, args := whereClause(model.IdeaFilter{}, "")
		So(where, ShouldBeEmpty)
		So(args, ShouldBeEmpty)
	})
}

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("IDEABOX_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("IDEABOX_TEST_DATABASE_URL not set")
	}
	return url
}

func TestPostgresStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := testDatabaseURL(t)
	ctx := context.Background()

	db, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := ApplyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE invites, rewards, history, comments, votes, ideas, users`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	s := NewPostgresStore(db)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	Convey("Given 15 ideas in Postgres", t, func() {
		for i := 0; i < 15; i++ {
			id := fmt.Sprintf("pg-%02d", i)
			if _, err := s.GetIdea(ctx, id); err == nil {
				continue
			}
			So(s.CreateIdea(ctx, &model.Idea{
				ID: id, Title: "Idea", Description: "Description text", Area: "cost",
				Impact: model.ImpactMedium, Status: model.StatusNew, AuthorID: "author",
				SearchPrefixes: []string{"ide", "idea"}, CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}), ShouldBeNil)
		}

		Convey("Then pages split 12 and 3", func() {
			first, err := s.QueryIdeas(ctx, model.IdeaQuery{Prefix: "idea", Limit: 12})
			So(err, ShouldBeNil)
			So(len(first.Items), ShouldEqual, 12)
			second, err := s.QueryIdeas(ctx, model.IdeaQuery{Prefix: "idea", Limit: 12, After: first.Next})
			So(err, ShouldBeNil)
			So(len(second.Items), ShouldEqual, 3)
			So(second.Next, ShouldBeNil)
		})

		Convey("Then a double vote toggle nets zero", func() {
			_, score, err := s.ToggleVote(ctx, "pg-00", "m1", base)
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 1)
			voted, score, err := s.ToggleVote(ctx, "pg-00", "m1", base)
			So(err, ShouldBeNil)
			So(voted, ShouldBeFalse)
			So(score, ShouldEqual, 0)
		})

		Convey("Then history rejects updates", func() {
			So(s.AppendHistory(ctx, &model.HistoryEntry{IdeaID: "pg-01", Kind: model.HistoryStatus, To: model.StrPtr("approved"), ActorID: "m1"}), ShouldBeNil)
			_, err := db.ExecContext(ctx, `UPDATE history SET actor_name = 'x' WHERE idea_id = 'pg-01'`)
			So(errors.Is(mapError("update history", err), ErrPermission), ShouldBeTrue)
		})

		Convey("Then a reward is created once", func() {
			_, _, err := s.CreateRewardIfAbsent(ctx, model.Reward{IdeaID: "pg-02", Amount: 10, ToUserID: "author", CreatedBy: "m1"})
			So(err, ShouldBeNil)
			got, created, err := s.CreateRewardIfAbsent(ctx, model.Reward{IdeaID: "pg-02", Amount: 50, ToUserID: "author", CreatedBy: "m1"})
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)
			So(got.Amount, ShouldEqual, 10)
		})
	})
}
