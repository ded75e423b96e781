package seed

import "time"

// Config holds configuration for a seed run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Secret      string        // HS256 secret shared with the service
	Issuer      string        // Token issuer the service expects
	CommitteeID string        // User id listed in the service's committee_ids
	Authors     int           // Number of distinct idea authors
	Ideas       int           // Number of ideas to create
	Workers     int           // Number of concurrent workers
	Timeout     time.Duration // HTTP request timeout
	Seed        uint64        // Random seed; zero picks one from the clock
	OutputFile  string        // Output file for the plan
	LogFile     string        // Log file for seed output
	Verbose     bool          // Enable verbose logging
}

// Author is a generated idea author.
type Author struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	token string
}

// PlannedIdea is one idea and the lifecycle the committee will walk it through.
type PlannedIdea struct {
	Author      int      `json:"author"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Area        string   `json:"area"`
	Impact      string   `json:"impact"`
	Path        []string `json:"path"`
	Reward      int      `json:"reward,omitempty"`
	Vote        bool     `json:"vote"`
	Comment     string   `json:"comment,omitempty"`

	ID string `json:"id,omitempty"`
}

// Final is the status the idea ends in.
func (p PlannedIdea) Final() string {
	if len(p.Path) == 0 {
		return "new"
	}
	return p.Path[len(p.Path)-1]
}

// Plan is everything a run creates, saved for later inspection.
type Plan struct {
	RunID   string        `json:"runId"`
	Seed    uint64        `json:"seed"`
	Authors []Author      `json:"authors"`
	Ideas   []PlannedIdea `json:"ideas"`
}

// ExpectedCoins sums planned rewards of created ideas per author id.
func (p *Plan) ExpectedCoins() map[string]int {
	out := make(map[string]int)
	for _, idea := range p.Ideas {
		if idea.ID != "" && idea.Reward > 0 {
			out[p.Authors[idea.Author].ID] += idea.Reward
		}
	}
	return out
}

// Stats holds seed run statistics.
type Stats struct {
	IdeasCreated    int
	IdeasFailed     int
	Transitions     int
	Votes           int
	Comments        int
	Rewards         int
	CoinsAwarded    int
	RankingVerified int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

// sessionInfo mirrors the fields of GET /api/session the seeder reads.
type sessionInfo struct {
	SignedIn    bool     `json:"signedIn"`
	IsCommittee bool     `json:"isCommittee"`
	Areas       []string `json:"areas"`
}

type createdIdea struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type rankingEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	Coins  int    `json:"coins"`
	Count  int    `json:"count"`
}

type rankingReport struct {
	Entries []rankingEntry `json:"entries"`
	Totals  struct {
		Coins  int `json:"coins"`
		Awards int `json:"awards"`
	} `json:"totals"`
}
