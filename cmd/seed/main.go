package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/ideabox/internal/seed"
)

// Default configuration constants.
const (
	defaultAuthors     = 10
	defaultIdeas       = 200
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultSeedTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		secret     = flag.String("secret", os.Getenv("IDEABOX_JWT_SECRET"), "Token signing secret")
		issuer     = flag.String("issuer", "ideabox", "Token issuer")
		committee  = flag.String("committee", "seed-committee", "Committee user id")
		authors    = flag.Int("authors", defaultAuthors, "Number of idea authors")
		ideas      = flag.Int("ideas", defaultIdeas, "Number of ideas to create")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seedValue  = flag.Uint64("seed", 0, "Random seed; 0 picks one from the clock")
		outputFile = flag.String("output", "", "Output file for the plan (default: seed_plan_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for seed output (default: seed_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		seed.ShowHelp()
		return
	}
	if *secret == "" || *authors < 1 || *ideas < 0 {
		os.Stderr.WriteString("a secret, at least one author and a non-negative idea count are required; see -help\n")
		os.Exit(2)
	}

	closeLog, err := seed.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultSeedTimeout)
	defer cancel()

	config := &seed.Config{
		BaseURL:     *baseURL,
		Secret:      *secret,
		Issuer:      *issuer,
		CommitteeID: *committee,
		Authors:     *authors,
		Ideas:       *ideas,
		Workers:     *workers,
		Timeout:     *timeout,
		Seed:        *seedValue,
		OutputFile:  *outputFile,
		LogFile:     *logFile,
		Verbose:     *verbose,
	}

	if err := seed.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Seed failed: " + err.Error() + "\n")
		cancel()
		_ = closeLog()
		os.Exit(1)
	}
}
