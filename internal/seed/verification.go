package seed

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/okian/ideabox/pkg/logger"
)

// verifyRanking checks that the current month's ranking credits every seeded
// author with exactly the coins the run awarded. Other users may share the
// board; only totals are bounded for them.
func verifyRanking(ctx context.Context, client *HTTPClient, plan *Plan, token string, stats *Stats) error {
	logger.Get().Info(ctx, "verifying ranking")

	var report rankingReport
	if _, err := client.Do(ctx, http.MethodGet, "/api/ranking?period=month", token, nil, &report); err != nil {
		return err
	}

	expected := plan.ExpectedCoins()
	if err := compareRanking(expected, report); err != nil {
		return err
	}
	stats.RankingVerified = len(expected)

	displayTopAuthors(ctx, report.Entries)
	logger.Get().Info(ctx, "ranking verified", logger.Int("authors", len(expected)))
	return nil
}

// compareRanking returns the first mismatch between the planned coins and
// the report.
func compareRanking(expected map[string]int, report rankingReport) error {
	got := make(map[string]int, len(report.Entries))
	for _, e := range report.Entries {
		got[e.UserID] = e.Coins
	}

	ids := make([]string, 0, len(expected))
	sum := 0
	for id, coins := range expected {
		ids = append(ids, id)
		sum += coins
	}
	sort.Strings(ids)
	for _, id := range ids {
		if got[id] != expected[id] {
			return fmt.Errorf("author %s has %d coins, expected %d", id, got[id], expected[id])
		}
	}
	if report.Totals.Coins < sum {
		return fmt.Errorf("ranking total %d is below the %d coins awarded", report.Totals.Coins, sum)
	}

	for i := 1; i < len(report.Entries); i++ {
		if report.Entries[i-1].Coins < report.Entries[i].Coins {
			return fmt.Errorf("ranking is not ordered by coins at rank %d", report.Entries[i].Rank)
		}
	}
	return nil
}

func displayTopAuthors(ctx context.Context, entries []rankingEntry) {
	for i, e := range entries {
		if i == 3 {
			break
		}
		logger.Get().Info(ctx, "top author",
			logger.Int("rank", e.Rank),
			logger.String("user", e.UserID),
			logger.Int("coins", e.Coins),
			logger.Int("awards", e.Count))
	}
}
