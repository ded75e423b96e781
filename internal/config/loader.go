package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read before koanf runs.
const (
	EnvPrefix  = "IDEABOX_"
	EnvConfig  = "IDEABOX_CONFIG"
	EnvDotFile = "IDEABOX_ENV_FILE"
)

// Load builds a Config by layering defaults, .env, optional file, and env
// vars. Order of precedence (low -> high):
//  1. defaults (New())
//  2. .env file, or IDEABOX_ENV_FILE; never overrides the real environment
//  3. file (YAML) if IDEABOX_CONFIG is set
//  4. env (prefix IDEABOX_)
func Load(_ context.Context) (*Config, error) {
	dotenv := os.Getenv(EnvDotFile)
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, dotenv, err)
	}

	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// IDEABOX_PAGE_SIZE -> page_size. Keys stay flat to match the koanf tags.
	// IDEABOX_AREAS and IDEABOX_COMMITTEE_IDS are comma separated lists.
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(EnvPrefix))
		if key == "areas" || key == "committee_ids" {
			return key, strings.Split(value, ",")
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	// The loader's own switches are not settings.
	k.Delete("config")
	k.Delete("env_file")

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	for i, a := range cfg.Areas {
		cfg.Areas[i] = strings.TrimSpace(a)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
