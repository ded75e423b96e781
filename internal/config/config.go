// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config with production defaults.
// - Load layers .env, an optional YAML file and IDEABOX_* env vars on top.
// - Validate reports the first unusable setting wrapped in ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/okian/ideabox/internal/domain/model"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// MinSecretLen is the shortest accepted token signing secret.
const MinSecretLen = 16

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects json or text output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the document store: memory or postgres.
	Store       string `koanf:"store"`
	DatabaseURL string `koanf:"database_url"`
	// RedisURL enables the shared session cache and cross-instance change
	// fan-out when set.
	RedisURL string `koanf:"redis_url"`

	// JWTSecret signs and verifies bearer tokens.
	JWTSecret string `koanf:"jwt_secret"`
	JWTIssuer string `koanf:"jwt_issuer"`

	PageSize             int `koanf:"page_size"`
	GroupFirst           int `koanf:"group_first"`
	GroupPage            int `koanf:"group_page"`
	SearchAutoloadPages  int `koanf:"search_autoload_pages"`
	ManagedAutoloadPages int `koanf:"managed_autoload_pages"`

	SearchMinLen      int `koanf:"search_min_len"`
	SearchMaxLen      int `koanf:"search_max_len"`
	SearchMaxPrefixes int `koanf:"search_max_prefixes"`

	// WorkflowStrict rejects status moves outside the transition graph.
	WorkflowStrict bool `koanf:"workflow_strict"`

	// QueueSize bounds the in-memory change queue.
	QueueSize int `koanf:"queue_size"`
	// DispatcherCount sets the number of change dispatchers.
	DispatcherCount int `koanf:"dispatcher_count"`
	// DedupeSize sets the size of the change deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	InviteDefaultDays int `koanf:"invite_default_days"`
	// CommitteeIDs are user ids given a committee profile at startup when
	// they have none. The first committee member cannot be invited.
	CommitteeIDs []string `koanf:"committee_ids"`

	// Areas an idea may target.
	Areas []string `koanf:"areas"`

	// MetricsEnabled turns Prometheus recording on. /metrics stays mounted.
	MetricsEnabled bool `koanf:"metrics_enabled"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "json",
		Addr:                 ":9080",
		Store:                StoreMemory,
		JWTIssuer:            "ideabox",
		PageSize:             12,
		GroupFirst:           3,
		GroupPage:            30,
		SearchAutoloadPages:  50,
		ManagedAutoloadPages: 8,
		SearchMinLen:         3,
		SearchMaxLen:         6,
		SearchMaxPrefixes:    50,
		QueueSize:            10_000,
		DispatcherCount:      runtime.NumCPU(),
		DedupeSize:           50_000,
		InviteDefaultDays:    7,
		Areas:                slices.Clone(model.DefaultAreas),
		MetricsEnabled:       true,
	}
}

// Validate checks settings that would fail later at startup.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Store != StoreMemory && c.Store != StorePostgres:
		return fmt.Errorf("%w: store must be %q or %q, got %q", ErrInvalidConfig, StoreMemory, StorePostgres, c.Store)
	case c.Store == StorePostgres && c.DatabaseURL == "":
		return fmt.Errorf("%w: database_url is required for the postgres store", ErrInvalidConfig)
	case len(c.JWTSecret) < MinSecretLen:
		return fmt.Errorf("%w: jwt_secret must have at least %d characters", ErrInvalidConfig, MinSecretLen)
	case c.SearchMinLen < 1 || c.SearchMaxLen < c.SearchMinLen:
		return fmt.Errorf("%w: search_max_len must be at least search_min_len", ErrInvalidConfig)
	}
	for _, a := range c.Areas {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("%w: areas must not contain blanks", ErrInvalidConfig)
		}
	}
	if len(c.Areas) == 0 {
		return fmt.Errorf("%w: at least one area is required", ErrInvalidConfig)
	}
	return nil
}
