// Package config provides hierarchical configuration loading for forgetop.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the dashboard.
type Config struct {
	Dashboard Dashboard `yaml:"dashboard"`
	Budget    Budget    `yaml:"budget"`
	Quality   Quality   `yaml:"quality"`
	Feed      Feed      `yaml:"feed"`
	NATS      NATS      `yaml:"nats"`
	Cache     Cache     `yaml:"cache"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	Breaker   Breaker   `yaml:"breaker"`
	Telemetry Telemetry `yaml:"telemetry"`
	Projects  []Project `yaml:"projects"`
}

// Dashboard holds view and control behaviour.
type Dashboard struct {
	PageSize           int           `yaml:"page_size"`           // Agents per page; 0 = follow terminal height
	RefreshInterval    time.Duration `yaml:"refresh_interval"`    // Summary poll tick (default: 5s)
	OptimisticControls bool          `yaml:"optimistic_controls"` // Apply controls locally before the platform confirms (default: true)
	ControlTimeout     time.Duration `yaml:"control_timeout"`     // Unanswered control requests stop blocking the agent after this (default: 15s)
	AgentBudget        float64       `yaml:"agent_budget"`        // Per-agent daily budget in USD for the usage view
	CostPolicy         string        `yaml:"cost_policy"`         // "cost_meter" | "agent_budget" for the aggregate meter
}

// Budget holds the spending ceiling.
type Budget struct {
	Amount float64 `yaml:"amount"`
	Period string  `yaml:"period"` // "daily" | "monthly"
}

// Quality holds quality gate configuration.
type Quality struct {
	Threshold float64 `yaml:"threshold"`
}

// Feed holds agent-status transport configuration.
type Feed struct {
	Transport    string        `yaml:"transport"` // "ws" | "nats"
	WSURL        string        `yaml:"ws_url"`
	Strict       bool          `yaml:"strict"` // Validate incoming records and drop malformed ones
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
}

// NATS holds NATS JetStream configuration.
type NATS struct {
	URL           string `yaml:"url"`
	SummaryBucket string `yaml:"summary_bucket"`
}

// Cache holds the summary cache configuration.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	L1Expire    time.Duration `yaml:"l1_expire"`
}

// Server holds the optional headless HTTP API configuration.
type Server struct {
	Addr         string  `yaml:"addr"`          // Empty disables the API
	ControlRate  float64 `yaml:"control_rate"`  // Control requests per second per agent
	ControlBurst int     `yaml:"control_burst"` // Burst size for control requests
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
	File    string `yaml:"file"` // Log destination; the terminal owns stdout
}

// Breaker holds circuit breaker configuration for control requests.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Telemetry holds OpenTelemetry exporter configuration.
type Telemetry struct {
	Endpoint string `yaml:"endpoint"` // OTLP gRPC endpoint; empty disables export
	Insecure bool   `yaml:"insecure"`
}

// Project is one entry of the project pane.
type Project struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
	Provider string `yaml:"provider"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Dashboard: Dashboard{
			PageSize:           0,
			RefreshInterval:    5 * time.Second,
			OptimisticControls: true,
			ControlTimeout:     15 * time.Second,
			AgentBudget:        5,
			CostPolicy:         "cost_meter",
		},
		Budget: Budget{
			Amount: 100,
			Period: "monthly",
		},
		Quality: Quality{
			Threshold: 70,
		},
		Feed: Feed{
			Transport:    "ws",
			WSURL:        "ws://localhost:8080/ws",
			ReconnectMin: 500 * time.Millisecond,
			ReconnectMax: 30 * time.Second,
		},
		NATS: NATS{
			URL:           "nats://localhost:4222",
			SummaryBucket: "FORGETOP_SUMMARIES",
		},
		Cache: Cache{
			L1MaxSizeMB: 16,
			L1Expire:    10 * time.Second,
		},
		Server: Server{
			ControlRate:  1,
			ControlBurst: 3,
		},
		Logging: Logging{
			Level:   "info",
			Service: "forgetop",
			File:    "forgetop.log",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
	}
}
