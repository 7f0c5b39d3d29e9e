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
const DefaultConfigFile = "vizforge.yaml"

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
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
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
	setString(&cfg.Server.Port, "VIZFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "VIZFORGE_CORS_ORIGIN")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "VIZFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "VIZFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "VIZFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "VIZFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "VIZFORGE_PG_HEALTH_CHECK")
	setBool(&cfg.Postgres.MirrorResults, "VIZFORGE_PG_MIRROR_RESULTS")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LiteLLM.Model, "VIZFORGE_MODEL")
	setString(&cfg.LiteLLM.EvalModel, "VIZFORGE_EVAL_MODEL")
	setInt(&cfg.LiteLLM.MaxTokens, "VIZFORGE_MAX_TOKENS")
	setDuration(&cfg.LiteLLM.Timeout, "VIZFORGE_LLM_TIMEOUT")

	setString(&cfg.Logging.Level, "VIZFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "VIZFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "VIZFORGE_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "VIZFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "VIZFORGE_BREAKER_TIMEOUT")

	setString(&cfg.Sandbox.Interpreter, "VIZFORGE_SANDBOX_INTERPRETER")
	setDuration(&cfg.Sandbox.Timeout, "VIZFORGE_SANDBOX_TIMEOUT")
	setString(&cfg.Sandbox.WorkDir, "VIZFORGE_SANDBOX_WORK_DIR")

	setInt(&cfg.Pipeline.MaxIterations, "VIZFORGE_MAX_ITERATIONS")
	setInt(&cfg.Pipeline.SQLAttempts, "VIZFORGE_SQL_ATTEMPTS")
	setString(&cfg.Pipeline.OutputDir, "VIZFORGE_OUTPUT_DIR")

	setInt(&cfg.Batch.Workers, "VIZFORGE_BATCH_WORKERS")

	setInt64(&cfg.Cache.MaxSizeMB, "VIZFORGE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "VIZFORGE_CACHE_TTL")

	setBool(&cfg.Telemetry.Enabled, "VIZFORGE_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "VIZFORGE_OTEL_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.LiteLLM.URL == "" {
		return errors.New("litellm.url is required")
	}
	if cfg.LiteLLM.Model == "" {
		return errors.New("litellm.model is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Sandbox.Timeout <= 0 {
		return errors.New("sandbox.timeout must be positive")
	}
	if cfg.Pipeline.MaxIterations < 1 {
		return errors.New("pipeline.max_iterations must be >= 1")
	}
	if cfg.Pipeline.SQLAttempts < 1 {
		return errors.New("pipeline.sql_attempts must be >= 1")
	}
	if cfg.Postgres.MirrorResults && cfg.Postgres.DSN == "" {
		return errors.New("postgres.mirror_results requires postgres.dsn")
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

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
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
