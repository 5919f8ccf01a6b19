// Package config loads gateway configuration from environment variables,
// with an optional YAML file overlay supporting ${VAR} expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the gateway.
type Config struct {
	Port    int
	Version string

	Auth      AuthConfig
	Agents    AgentsConfig
	Health    HealthConfig
	Telemetry TelemetryConfig
	Logging   LoggingConfig
}

// AuthConfig selects the authentication scheme. An empty JWTSecret keeps
// the placeholder bearer scheme; a non-empty secret enables HS256 token
// verification.
type AuthConfig struct {
	JWTSecret string
}

// AgentConfig is one downstream agent endpoint.
type AgentConfig struct {
	URL     string
	Timeout time.Duration
}

// AgentsConfig holds the downstream dispatch targets. Document
// understanding gets a longer budget because it runs binary extraction
// plus a model inference pass; the others are single LLM round trips.
type AgentsConfig struct {
	Database AgentConfig
	RAG      AgentConfig
	Smart    AgentConfig
	OCR      AgentConfig

	// HealthURL is the downstream liveness probe endpoint.
	HealthURL string
}

// HealthConfig bounds the downstream health probe independently of the
// dispatch budgets.
type HealthConfig struct {
	ProbeTimeout time.Duration
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// LoggingConfig configures the zerolog output. Payload logging is opt-in:
// message content never reaches the logs unless LogPayloads is set.
type LoggingConfig struct {
	Level       string
	LogPayloads bool
}

// Load reads configuration from environment variables with defaults, then
// applies the YAML file named by GATEWAY_CONFIG when set.
func Load() (*Config, error) {
	agentBase := envStr("AGENT_BASE_URL", "http://localhost:8000")

	cfg := &Config{
		Port:    envInt("GATEWAY_PORT", 8080),
		Version: envStr("GATEWAY_VERSION", "1.0.0"),
		Auth: AuthConfig{
			JWTSecret: envStr("GATEWAY_JWT_SECRET", ""),
		},
		Agents: AgentsConfig{
			Database:  AgentConfig{URL: envStr("DATABASE_AGENT_URL", agentBase+"/chat"), Timeout: envDur("DATABASE_AGENT_TIMEOUT", 30*time.Second)},
			RAG:       AgentConfig{URL: envStr("RAG_AGENT_URL", agentBase+"/rag"), Timeout: envDur("RAG_AGENT_TIMEOUT", 30*time.Second)},
			Smart:     AgentConfig{URL: envStr("SMART_AGENT_URL", agentBase+"/smart"), Timeout: envDur("SMART_AGENT_TIMEOUT", 30*time.Second)},
			OCR:       AgentConfig{URL: envStr("OCR_AGENT_URL", agentBase+"/ocr"), Timeout: envDur("OCR_AGENT_TIMEOUT", 120*time.Second)},
			HealthURL: envStr("AGENT_HEALTH_URL", agentBase+"/health"),
		},
		Health: HealthConfig{
			ProbeTimeout: envDur("HEALTH_PROBE_TIMEOUT", 5*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "agent-gateway"),
		},
		Logging: LoggingConfig{
			Level:       envStr("GATEWAY_LOG_LEVEL", "info"),
			LogPayloads: envBool("GATEWAY_LOG_PAYLOADS", false),
		},
	}

	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	return cfg, nil
}

// fileConfig mirrors Config for YAML unmarshaling. Durations are parsed
// from strings ("30s", "2m") after ${VAR} expansion.
type fileConfig struct {
	Port    int    `yaml:"port"`
	Version string `yaml:"version"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	Agents struct {
		Database  fileAgent `yaml:"database"`
		RAG       fileAgent `yaml:"rag"`
		Smart     fileAgent `yaml:"smart"`
		OCR       fileAgent `yaml:"ocr"`
		HealthURL string    `yaml:"health_url"`
	} `yaml:"agents"`

	Health struct {
		ProbeTimeout string `yaml:"probe_timeout"`
	} `yaml:"health"`

	Telemetry struct {
		Enabled      *bool  `yaml:"enabled"`
		OTLPEndpoint string `yaml:"otlp_endpoint"`
		ServiceName  string `yaml:"service_name"`
	} `yaml:"telemetry"`

	Logging struct {
		Level       string `yaml:"level"`
		LogPayloads *bool  `yaml:"log_payloads"`
	} `yaml:"logging"`
}

type fileAgent struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with environment values. Unset
// variables expand to the empty string.
func expandEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envVarPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(expandEnv(data), &fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if fc.Port > 0 {
		cfg.Port = fc.Port
	}
	if fc.Version != "" {
		cfg.Version = fc.Version
	}
	if fc.Auth.JWTSecret != "" {
		cfg.Auth.JWTSecret = fc.Auth.JWTSecret
	}

	if err := applyAgent(&cfg.Agents.Database, fc.Agents.Database); err != nil {
		return fmt.Errorf("agents.database: %w", err)
	}
	if err := applyAgent(&cfg.Agents.RAG, fc.Agents.RAG); err != nil {
		return fmt.Errorf("agents.rag: %w", err)
	}
	if err := applyAgent(&cfg.Agents.Smart, fc.Agents.Smart); err != nil {
		return fmt.Errorf("agents.smart: %w", err)
	}
	if err := applyAgent(&cfg.Agents.OCR, fc.Agents.OCR); err != nil {
		return fmt.Errorf("agents.ocr: %w", err)
	}
	if fc.Agents.HealthURL != "" {
		cfg.Agents.HealthURL = fc.Agents.HealthURL
	}

	if fc.Health.ProbeTimeout != "" {
		d, err := time.ParseDuration(fc.Health.ProbeTimeout)
		if err != nil {
			return fmt.Errorf("health.probe_timeout: %w", err)
		}
		cfg.Health.ProbeTimeout = d
	}

	if fc.Telemetry.Enabled != nil {
		cfg.Telemetry.Enabled = *fc.Telemetry.Enabled
	}
	if fc.Telemetry.OTLPEndpoint != "" {
		cfg.Telemetry.OTLPEndpoint = fc.Telemetry.OTLPEndpoint
	}
	if fc.Telemetry.ServiceName != "" {
		cfg.Telemetry.ServiceName = fc.Telemetry.ServiceName
	}

	if fc.Logging.Level != "" {
		cfg.Logging.Level = fc.Logging.Level
	}
	if fc.Logging.LogPayloads != nil {
		cfg.Logging.LogPayloads = *fc.Logging.LogPayloads
	}

	return nil
}

func applyAgent(dst *AgentConfig, src fileAgent) error {
	if src.URL != "" {
		dst.URL = src.URL
	}
	if src.Timeout != "" {
		d, err := time.ParseDuration(src.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		dst.Timeout = d
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
