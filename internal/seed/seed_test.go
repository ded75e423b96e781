package seed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ideabox/internal/adapters/http/api"
	"github.com/okian/ideabox/internal/adapters/repository"
	"github.com/okian/ideabox/internal/adapters/session"
	service "github.com/okian/ideabox/internal/app"
	"github.com/okian/ideabox/internal/domain/workflow"
	"github.com/okian/ideabox/pkg/logger"
)

const (
	testSecret = "seed-test-secret-0123"
	testIssuer = "ideabox-test"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// newServer runs the real API over a memory store in strict workflow mode.
func newServer(t *testing.T, committee string) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	verifier := session.NewVerifier([]byte(testSecret), session.WithIssuer(testIssuer))
	auth := session.NewAuthenticator(verifier, store)
	svc := service.New(store,
		service.WithDispatcherCount(1),
		service.WithQueueSize(1000),
		service.WithPolicy(workflow.NewPolicy(workflow.WithStrict(true))),
		service.WithSinks(auth))
	if err := svc.EnsureCommittee(ctx, []string{committee}); err != nil {
		t.Fatalf("ensure committee: %v", err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, auth).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL, dir string) *Config {
	return &Config{
		BaseURL:     baseURL,
		Secret:      testSecret,
		Issuer:      testIssuer,
		CommitteeID: "seed-committee",
		Authors:     4,
		Ideas:       40,
		Workers:     4,
		Timeout:     5 * time.Second,
		Seed:        7,
		OutputFile:  filepath.Join(dir, "plan.json"),
	}
}

func TestRun(t *testing.T) {
	Convey("Given a running ideabox", t, func() {
		srv := newServer(t, "seed-committee")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		cfg := testConfig(srv.URL, t.TempDir())

		Convey("When a seed run completes", func() {
			err := Run(ctx, cfg)
			So(err, ShouldBeNil)

			Convey("Then the saved plan lists every created idea", func() {
				data, err := os.ReadFile(cfg.OutputFile)
				So(err, ShouldBeNil)
				var plan Plan
				So(json.Unmarshal(data, &plan), ShouldBeNil)
				So(plan.Ideas, ShouldHaveLength, cfg.Ideas)
				So(plan.Authors, ShouldHaveLength, cfg.Authors)
				for _, idea := range plan.Ideas {
					So(idea.ID, ShouldNotBeEmpty)
				}
			})
		})

		Convey("When a second run shares the server", func() {
			So(Run(ctx, cfg), ShouldBeNil)
			cfg.Seed = 8

			Convey("Then its authors are verified independently", func() {
				So(Run(ctx, cfg), ShouldBeNil)
			})
		})

		Convey("When the committee id is not bootstrapped", func() {
			cfg.CommitteeID = "stranger"
			err := Run(ctx, cfg)

			Convey("Then the run stops before creating anything", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "not a committee member")
			})
		})

		Convey("When the secret does not match", func() {
			cfg.Secret = "another-secret-0123456"
			err := Run(ctx, cfg)

			Convey("Then the session call is rejected", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "status 401")
			})
		})
	})
}

func TestGeneratePlan(t *testing.T) {
	Convey("Given a fixed seed", t, func() {
		cfg := &Config{Authors: 3, Ideas: 50, Seed: 42}
		areas := []string{"it", "safety"}

		a, err := generatePlan(context.Background(), cfg, areas)
		So(err, ShouldBeNil)
		b, err := generatePlan(context.Background(), cfg, areas)
		So(err, ShouldBeNil)

		Convey("Then the ideas repeat while the run ids differ", func() {
			So(a.RunID, ShouldNotEqual, b.RunID)
			So(len(a.Ideas), ShouldEqual, 50)
			for i := range a.Ideas {
				So(a.Ideas[i].Title, ShouldEqual, b.Ideas[i].Title)
				So(a.Ideas[i].Path, ShouldResemble, b.Ideas[i].Path)
			}
		})

		Convey("Then only completed ideas carry a reward", func() {
			for _, idea := range a.Ideas {
				So(idea.Reward > 0, ShouldEqual, idea.Final() == "completed")
				So(areas, ShouldContain, idea.Area)
			}
		})
	})

	Convey("Without areas the plan cannot be built", t, func() {
		_, err := generatePlan(context.Background(), &Config{Authors: 1, Ideas: 1}, nil)
		So(err, ShouldNotBeNil)
	})
}

func TestCompareRanking(t *testing.T) {
	report := rankingReport{Entries: []rankingEntry{
		{Rank: 1, UserID: "other", Coins: 90},
		{Rank: 2, UserID: "a", Coins: 30},
		{Rank: 3, UserID: "b", Coins: 10},
	}}
	report.Totals.Coins = 130

	cases := []struct {
		name     string
		expected map[string]int
		ok       bool
	}{
		{"matching authors", map[string]int{"a": 30, "b": 10}, true},
		{"no rewards", map[string]int{}, true},
		{"short author", map[string]int{"a": 40}, false},
		{"missing author", map[string]int{"c": 5}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := compareRanking(tc.expected, report)
			if (err == nil) != tc.ok {
				t.Fatalf("compareRanking() error = %v, want ok %v", err, tc.ok)
			}
		})
	}

	unordered := rankingReport{Entries: []rankingEntry{{Rank: 1, UserID: "a", Coins: 1}, {Rank: 2, UserID: "b", Coins: 5}}}
	if err := compareRanking(nil, unordered); err == nil {
		t.Fatal("expected an ordering error")
	}
}
