// Package config provides hierarchical configuration loading for
// VizForge. Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the VizForge service.
type Config struct {
	Server    Server    `yaml:"server"`
	Postgres  Postgres  `yaml:"postgres"`
	NATS      NATS      `yaml:"nats"`
	LiteLLM   LiteLLM   `yaml:"litellm"`
	Logging   Logging   `yaml:"logging"`
	Breaker   Breaker   `yaml:"breaker"`
	Sandbox   Sandbox   `yaml:"sandbox"`
	Pipeline  Pipeline  `yaml:"pipeline"`
	Batch     Batch     `yaml:"batch"`
	Cache     Cache     `yaml:"cache"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Server holds HTTP server configuration for serve mode.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Postgres holds the source-database connection configuration. The
// same pool also backs the optional task-result mirror. An empty DSN
// disables Postgres entirely; tasks then need a reachable database per
// their own reference, and results stay file-only.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
	// MirrorResults enables the task_results mirror table.
	MirrorResults bool `yaml:"mirror_results"`
}

// NATS holds NATS JetStream configuration. An empty URL disables
// lifecycle event publishing.
type NATS struct {
	URL string `yaml:"url"`
}

// LiteLLM holds LiteLLM proxy configuration and model selection.
type LiteLLM struct {
	URL       string        `yaml:"url"`
	MasterKey string        `yaml:"master_key"`
	Model     string        `yaml:"model"`
	EvalModel string        `yaml:"eval_model"` // empty means Model
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for the LLM client.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Sandbox holds the script executor configuration.
type Sandbox struct {
	Interpreter string        `yaml:"interpreter"`
	Timeout     time.Duration `yaml:"timeout"`
	WorkDir     string        `yaml:"work_dir"`
}

// Pipeline holds coordinator budgets and output placement.
type Pipeline struct {
	MaxIterations int    `yaml:"max_iterations"`
	SQLAttempts   int    `yaml:"sql_attempts"`
	OutputDir     string `yaml:"output_dir"`
}

// Batch holds batch driver configuration.
type Batch struct {
	Workers int `yaml:"workers"`
}

// Cache holds the schema snapshot cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

// Telemetry holds OpenTelemetry export configuration.
type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // OTLP gRPC, host:port
}

// Defaults returns a Config with sensible default values for local
// development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Postgres: Postgres{
			MaxConns:        15,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		LiteLLM: LiteLLM{
			URL:       "http://localhost:4000",
			Model:     "openai/gpt-4o",
			MaxTokens: 4096,
			Timeout:   2 * time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "vizforge",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Sandbox: Sandbox{
			Interpreter: "python3",
			Timeout:     60 * time.Second,
		},
		Pipeline: Pipeline{
			MaxIterations: 3,
			SQLAttempts:   3,
			OutputDir:     "output",
		},
		Cache: Cache{
			MaxSizeMB: 64,
			TTL:       10 * time.Minute,
		},
		Telemetry: Telemetry{
			Endpoint: "localhost:4317",
		},
	}
}
