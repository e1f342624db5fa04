package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Store      StoreConfig       `yaml:"store"`
	Ingest     IngestConfig      `yaml:"ingest"`
	Match      MatchConfig       `yaml:"match"`
	Plan       PlanConfig        `yaml:"plan"`
	Notify     NotifyConfig      `yaml:"notify"`
	Connectors []ConnectorConfig `yaml:"connectors"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// BatchSize is the number of records committed per batch during an
	// ingestion cycle.
	BatchSize int `yaml:"batch_size"`
	// OverwriteFetchedAt makes re-ingestion replace a record's original
	// fetched_at instead of preserving first-seen time.
	OverwriteFetchedAt bool `yaml:"overwrite_fetched_at"`
}

type IngestConfig struct {
	Interval            string `yaml:"interval"`
	SourceTimeout       string `yaml:"source_timeout"`
	MaxRetries          int    `yaml:"max_retries"`
	RetryInitialBackoff string `yaml:"retry_initial_backoff"`
	FanoutLimit         int    `yaml:"fanout_limit"`
	SinceWindow         string `yaml:"since_window"`
}

type MatchConfig struct {
	SimilarityFloor float64 `yaml:"similarity_floor"`
	MaxResults      int     `yaml:"max_results"`
}

type PlanConfig struct {
	TemplateDir      string `yaml:"template_dir"`
	StepTimeout      string `yaml:"step_timeout"`
	MaxParallelSteps int    `yaml:"max_parallel_steps"`
}

type NotifyConfig struct {
	Endpoint string `yaml:"endpoint"`
	Timeout  string `yaml:"timeout"`
}

type ConnectorConfig struct {
	Agency    string `yaml:"agency"`
	BaseURL   string `yaml:"base_url"`
	Path      string `yaml:"path"`
	APIKey    string `yaml:"api_key"`
	Timeout   string `yaml:"timeout"`
	PageLimit int    `yaml:"page_limit"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8140,
		},
		Store: StoreConfig{
			Driver:    "memory",
			BatchSize: 100,
		},
		Ingest: IngestConfig{
			Interval:            "1h",
			SourceTimeout:       "30s",
			MaxRetries:          2,
			RetryInitialBackoff: "250ms",
			FanoutLimit:         8,
			SinceWindow:         "720h",
		},
		Match: MatchConfig{
			SimilarityFloor: 0.72,
			MaxResults:      50,
		},
		Plan: PlanConfig{
			StepTimeout:      "30s",
			MaxParallelSteps: 4,
		},
		Notify: NotifyConfig{
			Timeout: "5s",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("APP_SERVER_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_SERVER_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_STORE_DRIVER")); v != "" {
		cfg.Store.Driver = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_STORE_DSN")); v != "" {
		cfg.Store.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_STORE_BATCH_SIZE")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Store.BatchSize = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_INGEST_INTERVAL")); v != "" {
		cfg.Ingest.Interval = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_PLAN_TEMPLATE_DIR")); v != "" {
		cfg.Plan.TemplateDir = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_NOTIFY_ENDPOINT")); v != "" {
		cfg.Notify.Endpoint = v
	}

	return cfg, nil
}

// Duration parses a config duration string, falling back when empty or
// malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func Module(path string) fx.Option {
	return fx.Provide(func() (Config, error) {
		return Load(path)
	})
}
