package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/ideabox/pkg/logger"
)

var (
	verbs    = []string{"Automate", "Simplify", "Track", "Share", "Reduce", "Measure", "Digitize", "Standardize"}
	subjects = []string{"onboarding", "shift handover", "expense reports", "meeting notes", "spare parts", "safety checks", "customer feedback", "energy usage"}
	reasons  = []string{
		"so the team stops doing it by hand every week",
		"because the current process loses information between teams",
		"to cut the time we spend waiting on approvals",
		"which would make audits much easier to prepare",
	}
	impacts  = []string{"low", "medium", "high"}
	comments = []string{"Looks promising.", "Please add cost estimates.", "Discussed in the weekly review.", "Pilot with one team first."}
)

// Lifecycle paths a generated idea may take from new.
var paths = [][]string{
	nil,
	{"under_review"},
	{"under_review", "rejected"},
	{"under_review", "approved"},
	{"under_review", "approved", "in_progress"},
	{"under_review", "approved", "in_progress", "completed"},
}

// generatePlan builds authors and ideas for one run. Author ids carry the
// run id so repeated runs against one server never share authors.
func generatePlan(ctx context.Context, config *Config, areas []string) (*Plan, error) {
	if len(areas) == 0 {
		return nil, fmt.Errorf("service reported no areas")
	}
	seed := config.Seed
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	runID := strings.SplitN(uuid.NewString(), "-", 2)[0]
	plan := &Plan{RunID: runID, Seed: seed}

	logger.Get().Info(ctx, "generating seed plan",
		logger.String("runId", runID),
		logger.Int("authors", config.Authors),
		logger.Int("ideas", config.Ideas))

	for i := range config.Authors {
		id := fmt.Sprintf("seed-%s-%03d", runID, i+1)
		plan.Authors = append(plan.Authors, Author{
			ID:    id,
			Email: id + "@seed.ideabox.local",
			Name:  fmt.Sprintf("Seed Author %d", i+1),
		})
	}

	for range config.Ideas {
		verb := verbs[rng.IntN(len(verbs))]
		subject := subjects[rng.IntN(len(subjects))]
		idea := PlannedIdea{
			Author:      rng.IntN(len(plan.Authors)),
			Title:       verb + " " + subject,
			Description: fmt.Sprintf("%s %s %s.", verb, subject, reasons[rng.IntN(len(reasons))]),
			Area:        areas[rng.IntN(len(areas))],
			Impact:      impacts[rng.IntN(len(impacts))],
			Path:        paths[rng.IntN(len(paths))],
			Vote:        rng.IntN(3) == 0,
		}
		if idea.Final() == "completed" {
			idea.Reward = 5 * (1 + rng.IntN(20))
		}
		if rng.IntN(2) == 0 {
			idea.Comment = comments[rng.IntN(len(comments))]
		}
		plan.Ideas = append(plan.Ideas, idea)
	}
	return plan, nil
}
