package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "forgetop.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setInt(&cfg.Dashboard.PageSize, "FORGETOP_PAGE_SIZE")
	setDuration(&cfg.Dashboard.RefreshInterval, "FORGETOP_REFRESH_INTERVAL")
	setBool(&cfg.Dashboard.OptimisticControls, "FORGETOP_OPTIMISTIC_CONTROLS")
	setDuration(&cfg.Dashboard.ControlTimeout, "FORGETOP_CONTROL_TIMEOUT")
	setFloat64(&cfg.Dashboard.AgentBudget, "FORGETOP_AGENT_BUDGET")
	setString(&cfg.Dashboard.CostPolicy, "FORGETOP_COST_POLICY")

	setFloat64(&cfg.Budget.Amount, "FORGETOP_BUDGET")
	setString(&cfg.Budget.Period, "FORGETOP_BUDGET_PERIOD")
	setFloat64(&cfg.Quality.Threshold, "FORGETOP_QUALITY_THRESHOLD")

	// Feed
	setString(&cfg.Feed.Transport, "FORGETOP_FEED")
	setString(&cfg.Feed.WSURL, "FORGETOP_WS_URL")
	setBool(&cfg.Feed.Strict, "FORGETOP_FEED_STRICT")
	setDuration(&cfg.Feed.ReconnectMin, "FORGETOP_RECONNECT_MIN")
	setDuration(&cfg.Feed.ReconnectMax, "FORGETOP_RECONNECT_MAX")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.SummaryBucket, "FORGETOP_SUMMARY_BUCKET")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "FORGETOP_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1Expire, "FORGETOP_CACHE_L1_EXPIRE")

	setString(&cfg.Server.Addr, "FORGETOP_HTTP_ADDR")
	setFloat64(&cfg.Server.ControlRate, "FORGETOP_CONTROL_RATE")
	setInt(&cfg.Server.ControlBurst, "FORGETOP_CONTROL_BURST")

	setString(&cfg.Logging.Level, "FORGETOP_LOG_LEVEL")
	setString(&cfg.Logging.Service, "FORGETOP_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "FORGETOP_LOG_ASYNC")
	setString(&cfg.Logging.File, "FORGETOP_LOG_FILE")

	setInt(&cfg.Breaker.MaxFailures, "FORGETOP_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "FORGETOP_BREAKER_TIMEOUT")

	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "OTEL_EXPORTER_OTLP_INSECURE")
}

// validate checks that required fields are set and enumerations are known.
func validate(cfg *Config) error {
	if cfg.Dashboard.PageSize < 0 {
		return errors.New("dashboard.page_size must be >= 0")
	}
	if cfg.Dashboard.RefreshInterval <= 0 {
		return errors.New("dashboard.refresh_interval must be > 0")
	}
	if cfg.Dashboard.ControlTimeout <= 0 {
		return errors.New("dashboard.control_timeout must be > 0")
	}
	switch cfg.Dashboard.CostPolicy {
	case "cost_meter", "agent_budget":
	default:
		return fmt.Errorf("dashboard.cost_policy %q must be cost_meter or agent_budget", cfg.Dashboard.CostPolicy)
	}
	if cfg.Budget.Amount < 0 {
		return errors.New("budget.amount must be >= 0")
	}
	switch cfg.Budget.Period {
	case "daily", "monthly":
	default:
		return fmt.Errorf("budget.period %q must be daily or monthly", cfg.Budget.Period)
	}
	if cfg.Quality.Threshold < 0 || cfg.Quality.Threshold > 100 {
		return errors.New("quality.threshold must be within 0-100")
	}
	switch cfg.Feed.Transport {
	case "ws":
		if cfg.Feed.WSURL == "" {
			return errors.New("feed.ws_url is required for the ws transport")
		}
	case "nats":
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is required for the nats transport")
		}
	default:
		return fmt.Errorf("feed.transport %q must be ws or nats", cfg.Feed.Transport)
	}
	if cfg.Feed.ReconnectMin <= 0 || cfg.Feed.ReconnectMax < cfg.Feed.ReconnectMin {
		return errors.New("feed.reconnect_min must be > 0 and <= feed.reconnect_max")
	}
	seen := make(map[string]bool, len(cfg.Projects))
	for i, p := range cfg.Projects {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("projects[%d]: id and name are required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("projects[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
	}
	if cfg.Server.ControlRate <= 0 || cfg.Server.ControlBurst < 1 {
		return errors.New("server.control_rate must be > 0 and server.control_burst >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
