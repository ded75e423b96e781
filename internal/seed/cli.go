// Package seed fills a running ideabox with generated ideas through its HTTP
// API, walks them through the committee workflow and checks the resulting
// ranking.
package seed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/okian/ideabox/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	if logFile == "" {
		logFile = "seed_log_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if err := logger.Init(logger.WithWriter(io.MultiWriter(os.Stdout, file)), logger.WithLevel(level)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file.Close, nil
}

// ShowHelp prints usage information for the seed tool.
func ShowHelp() {
	os.Stdout.WriteString(`Ideabox Seed Tool
=================

Creates ideas as generated authors, triages them as a committee member and
verifies the monthly ranking against the rewards it handed out.

The committee user must be listed in the service's committee_ids, and the
secret and issuer must match the service's jwt_secret and jwt_issuer.

Usage:
  go run cmd/seed/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -secret string
        Token signing secret (default $IDEABOX_JWT_SECRET)
  -issuer string
        Token issuer (default "ideabox")
  -committee string
        Committee user id (default "seed-committee")
  -authors int
        Number of idea authors (default 10)
  -ideas int
        Number of ideas to create (default 200)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -seed uint
        Random seed; 0 picks one from the clock
  -output string
        Output file for the plan (default: seed_plan_TIMESTAMP.json)
  -log string
        Log file for seed output (default: seed_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Seed a local service started with IDEABOX_COMMITTEE_IDS=seed-committee
  go run cmd/seed/main.go -secret "$IDEABOX_JWT_SECRET"

  # Larger run with a fixed seed
  go run cmd/seed/main.go -ideas 5000 -authors 100 -workers 16 -seed 42
`)
}
