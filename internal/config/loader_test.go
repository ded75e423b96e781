package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/ideabox/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

const testSecret = "0123456789abcdef0123"

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		// No .env in the package directory by default.
		_ = os.Setenv(config.EnvDotFile, filepath.Join(t.TempDir(), "missing.env"))
		_ = os.Setenv("IDEABOX_JWT_SECRET", testSecret)
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
				convey.So(cfg.PageSize, convey.ShouldEqual, 12)
				convey.So(cfg.JWTSecret, convey.ShouldEqual, testSecret)
			})
		})

		convey.Convey("When the secret is missing", func() {
			_ = os.Unsetenv("IDEABOX_JWT_SECRET")
			cfg, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("IDEABOX_ADDR", ":8080")
			_ = os.Setenv("IDEABOX_PAGE_SIZE", "20")
			_ = os.Setenv("IDEABOX_QUEUE_SIZE", "100000")
			_ = os.Setenv("IDEABOX_DISPATCHER_COUNT", "16")
			_ = os.Setenv("IDEABOX_WORKFLOW_STRICT", "true")
			_ = os.Setenv("IDEABOX_AREAS", "safety, quality ,logistics")
			_ = os.Setenv("IDEABOX_METRICS_ENABLED", "false")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.PageSize, convey.ShouldEqual, 20)
				convey.So(cfg.QueueSize, convey.ShouldEqual, 100000)
				convey.So(cfg.DispatcherCount, convey.ShouldEqual, 16)
				convey.So(cfg.WorkflowStrict, convey.ShouldBeTrue)
				convey.So(cfg.Areas, convey.ShouldResemble, []string{"safety", "quality", "logistics"})
				convey.So(cfg.MetricsEnabled, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(`
# comments are fine
addr: ":9090"  # inline too
store: postgres
database_url: postgres://localhost/ideabox
group_first: 5
areas:
  - safety
  - people
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv(config.EnvConfig, tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Store, convey.ShouldEqual, config.StorePostgres)
				convey.So(cfg.GroupFirst, convey.ShouldEqual, 5)
				convey.So(cfg.GroupPage, convey.ShouldEqual, 30)
				convey.So(cfg.Areas, convey.ShouldResemble, []string{"safety", "people"})
			})

			convey.Convey("And env vars win over the file", func() {
				_ = os.Setenv("IDEABOX_ADDR", ":7070")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.GroupFirst, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When a .env file is present", func() {
			path := filepath.Join(t.TempDir(), "test.env")
			convey.So(os.WriteFile(path, []byte("IDEABOX_LOG_LEVEL=debug\nIDEABOX_ADDR=:6060\n"), 0o600), convey.ShouldBeNil)
			_ = os.Setenv(config.EnvDotFile, path)
			_ = os.Setenv("IDEABOX_ADDR", ":5050")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it fills unset variables only", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.Addr, convey.ShouldEqual, ":5050")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv(config.EnvConfig, tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv(config.EnvConfig, "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("IDEABOX_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("IDEABOX_QUEUE_SIZE", "invalid")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the postgres store has no database url", func() {
			_ = os.Setenv("IDEABOX_STORE", "postgres")

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "database_url")
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		config.EnvConfig,
		config.EnvDotFile,
		"IDEABOX_ADDR",
		"IDEABOX_LOG_LEVEL",
		"IDEABOX_JWT_SECRET",
		"IDEABOX_PAGE_SIZE",
		"IDEABOX_QUEUE_SIZE",
		"IDEABOX_DISPATCHER_COUNT",
		"IDEABOX_WORKFLOW_STRICT",
		"IDEABOX_AREAS",
		"IDEABOX_STORE",
		"IDEABOX_METRICS_ENABLED",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "ideabox-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
