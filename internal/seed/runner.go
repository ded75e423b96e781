package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/ideabox/internal/adapters/session"
	"github.com/okian/ideabox/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

const tokenTTL = time.Hour

// Run executes a complete seed run.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}
	if config.Seed == 0 {
		config.Seed = uint64(stats.StartTime.UnixNano())
	}
	if config.Workers < 1 {
		config.Workers = 1
	}

	logger.Get().Info(ctx, "starting ideabox seed run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("authors", config.Authors),
		logger.Int("ideas", config.Ideas),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Any("seed", config.Seed))

	client := newHTTPClient(config.BaseURL, config.Timeout)
	verifier := session.NewVerifier([]byte(config.Secret), session.WithIssuer(config.Issuer))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Sign in as the committee member
	committee, err := verifier.Issue(session.NewClaims(config.CommitteeID, config.CommitteeID+"@seed.ideabox.local", "Seed Committee", tokenTTL))
	if err != nil {
		return fmt.Errorf("committee token: %w", err)
	}
	var me sessionInfo
	if _, err := client.Do(ctx, http.MethodGet, "/api/session", committee, nil, &me); err != nil {
		return fmt.Errorf("committee session: %w", err)
	}
	if !me.IsCommittee {
		return fmt.Errorf("user %q is not a committee member; add it to committee_ids", config.CommitteeID)
	}

	// Step 3: Generate the plan and author tokens
	plan, err := generatePlan(ctx, config, me.Areas)
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}
	for i := range plan.Authors {
		a := &plan.Authors[i]
		if a.token, err = verifier.Issue(session.NewClaims(a.ID, a.Email, a.Name, tokenTTL)); err != nil {
			return fmt.Errorf("author token: %w", err)
		}
	}

	// Step 4: Create ideas concurrently
	if err := createIdeas(ctx, client, config, plan, stats); err != nil {
		return fmt.Errorf("idea creation failed: %w", err)
	}

	// Step 5: Triage as the committee
	if err := triageIdeas(ctx, client, config, plan, committee, stats); err != nil {
		return fmt.Errorf("triage failed: %w", err)
	}

	// Step 6: Verify the ranking
	if err := verifyRanking(ctx, client, plan, committee, stats); err != nil {
		return fmt.Errorf("ranking verification failed: %w", err)
	}

	// Step 7: Save the plan
	if err := savePlan(ctx, config, plan); err != nil {
		logger.Get().Warn(ctx, "failed to save plan to file", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	logger.Get().Info(ctx, "seed run completed successfully", logger.String("runId", plan.RunID))
	return nil
}

// checkServiceHealth verifies the service and its store are up.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")
	if _, err := client.Do(ctx, http.MethodGet, "/healthz", "", nil, nil); err != nil {
		return fmt.Errorf("failed to reach service: %w", err)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// createIdeas posts every planned idea as its author. Failed ideas are
// counted and left without an id; the rest of the run skips them.
func createIdeas(ctx context.Context, client *HTTPClient, config *Config, plan *Plan, stats *Stats) error {
	logger.Get().Info(ctx, "creating ideas", logger.Int("ideas", len(plan.Ideas)), logger.Int("workers", config.Workers))

	var created, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for i := range plan.Ideas {
		idea := &plan.Ideas[i]
		g.Go(func() error {
			body := map[string]string{
				"title":       idea.Title,
				"description": idea.Description,
				"area":        idea.Area,
				"impact":      idea.Impact,
			}
			var out createdIdea
			if _, err := client.Do(gctx, http.MethodPost, "/api/ideas", plan.Authors[idea.Author].token, body, &out); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				if config.Verbose {
					logger.Get().Warn(gctx, "idea creation failed", logger.String("title", idea.Title), logger.Error(err))
				}
				return nil
			}
			idea.ID = out.ID
			if n := created.Add(1); config.Verbose && n%100 == 0 {
				logger.Get().Info(gctx, "progress", logger.Int("created", int(n)), logger.Int("total", len(plan.Ideas)))
			}
			return nil
		})
	}
	err := g.Wait()

	stats.IdeasCreated = int(created.Load())
	stats.IdeasFailed = int(failed.Load())
	logger.Get().Info(ctx, "idea creation completed",
		logger.Int("created", stats.IdeasCreated),
		logger.Int("failed", stats.IdeasFailed))
	if err != nil {
		return err
	}
	if stats.IdeasCreated == 0 && len(plan.Ideas) > 0 {
		return fmt.Errorf("no idea was created")
	}
	return nil
}

// triageIdeas walks each idea along its path, then votes, comments and
// rewards. Steps of one idea run in order; ideas run concurrently.
func triageIdeas(ctx context.Context, client *HTTPClient, config *Config, plan *Plan, token string, stats *Stats) error {
	logger.Get().Info(ctx, "triaging ideas as committee")

	var transitions, votes, commented, rewards, coins atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for i := range plan.Ideas {
		idea := &plan.Ideas[i]
		if idea.ID == "" {
			continue
		}
		g.Go(func() error {
			base := "/api/ideas/" + idea.ID
			for _, status := range idea.Path {
				if _, err := client.Do(gctx, http.MethodPut, base+"/status", token, map[string]string{"status": status}, nil); err != nil {
					return fmt.Errorf("move %s to %s: %w", idea.ID, status, err)
				}
				transitions.Add(1)
			}
			if idea.Vote {
				if _, err := client.Do(gctx, http.MethodPost, base+"/vote", token, nil, nil); err != nil {
					return fmt.Errorf("vote %s: %w", idea.ID, err)
				}
				votes.Add(1)
			}
			if idea.Comment != "" {
				if _, err := client.Do(gctx, http.MethodPost, base+"/comments", token, map[string]string{"text": idea.Comment}, nil); err != nil {
					return fmt.Errorf("comment %s: %w", idea.ID, err)
				}
				commented.Add(1)
			}
			if idea.Reward > 0 {
				if _, err := client.Do(gctx, http.MethodPost, base+"/reward", token, map[string]int{"amount": idea.Reward}, nil); err != nil {
					return fmt.Errorf("reward %s: %w", idea.ID, err)
				}
				rewards.Add(1)
				coins.Add(int64(idea.Reward))
			}
			return nil
		})
	}
	err := g.Wait()

	stats.Transitions = int(transitions.Load())
	stats.Votes = int(votes.Load())
	stats.Comments = int(commented.Load())
	stats.Rewards = int(rewards.Load())
	stats.CoinsAwarded = int(coins.Load())
	logger.Get().Info(ctx, "triage completed",
		logger.Int("transitions", stats.Transitions),
		logger.Int("votes", stats.Votes),
		logger.Int("comments", stats.Comments),
		logger.Int("rewards", stats.Rewards))
	return err
}

// savePlan writes the plan, with created ids, as indented JSON.
func savePlan(ctx context.Context, config *Config, plan *Plan) error {
	filename := config.OutputFile
	if filename == "" {
		filename = "seed_plan_" + time.Now().Format("20060102_150405") + ".json"
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), filePermission); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}

	logger.Get().Info(ctx, "plan saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(stats *Stats) {
	var ideasPerSecond float64
	if stats.Duration > 0 {
		ideasPerSecond = float64(stats.IdeasCreated) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("ideasCreated", stats.IdeasCreated),
		logger.Int("ideasFailed", stats.IdeasFailed),
		logger.Int("transitions", stats.Transitions),
		logger.Int("votes", stats.Votes),
		logger.Int("comments", stats.Comments),
		logger.Int("rewards", stats.Rewards),
		logger.Int("coinsAwarded", stats.CoinsAwarded),
		logger.Int("rankingVerified", stats.RankingVerified),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("ideasPerSecond", ideasPerSecond))
}
