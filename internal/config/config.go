// Package config loads runtime settings from the environment (and an optional
// .env file) and holds the relay's fixed domain constants.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the complete runtime configuration of the relay server.
type Config struct {
	HTTPAddr    string
	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWTSecret verifies identity tokens issued by the auth service.
	JWTSecret string

	AI    AIConfig
	Relay RelayConfig

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// AIConfig is injected into the AI bridge at construction.
type AIConfig struct {
	URL     string
	Timeout time.Duration
}

// RelayConfig tunes the message pipeline.
type RelayConfig struct {
	// AIContextWindow is how many recent messages feed an @ai question when
	// the room has no stored analysis.
	AIContextWindow int
	// AnalysisWindow caps the history sent for analyzeChat.
	AnalysisWindow int
	// AnalysisMaxAge makes a stored analysis stale after this long; zero keeps
	// it forever.
	AnalysisMaxAge   time.Duration
	AnalysisCacheTTL time.Duration
	TypingTTL        time.Duration
	SendBuffer       int
}

// DefaultRelayConfig returns the relay settings used when nothing is configured.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		AIContextWindow:  DefaultAIContextWindow,
		AnalysisWindow:   DefaultAnalysisWindow,
		AnalysisCacheTTL: DefaultAnalysisCacheTTL,
		TypingTTL:        DefaultTypingTTL,
		SendBuffer:       DefaultSendBuffer,
	}
}

// Load reads .env (if present) and the process environment.
// It returns ErrMissingSecret when JWT_SECRET is not set.
func Load() (*Config, []string, error) {
	var warnings []string
	if err := godotenv.Load(); err != nil {
		warnings = append(warnings, "no .env file loaded: "+err.Error())
	}

	cfg := &Config{
		HTTPAddr:      GetEnv("HTTP_ADDR", ":8080"),
		DatabaseDSN:   databaseDSN(),
		RedisAddr:     GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		JWTSecret:     GetEnv("JWT_SECRET", ""),
		AI: AIConfig{
			URL: GetEnv("AI_SERVICE_URL", "http://localhost:5002/ask"),
		},
		Relay:     DefaultRelayConfig(),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.RedisDB, err = GetEnvInt("REDIS_DB", 0); err != nil {
		warnings = append(warnings, err.Error())
	}
	if cfg.AI.Timeout, err = GetEnvDuration("AI_TIMEOUT", DefaultAITimeout); err != nil {
		warnings = append(warnings, err.Error())
	}
	if cfg.ShutdownTimeout, err = GetEnvDuration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout); err != nil {
		warnings = append(warnings, err.Error())
	}

	r := &cfg.Relay
	for _, e := range []struct {
		key string
		dst *int
	}{
		{"AI_CONTEXT_WINDOW", &r.AIContextWindow},
		{"ANALYSIS_WINDOW", &r.AnalysisWindow},
		{"SEND_BUFFER", &r.SendBuffer},
	} {
		v, err := GetEnvInt(e.key, *e.dst)
		if err != nil {
			warnings = append(warnings, err.Error())
		}
		*e.dst = v
	}
	for _, e := range []struct {
		key string
		dst *time.Duration
	}{
		{"ANALYSIS_MAX_AGE", &r.AnalysisMaxAge},
		{"ANALYSIS_CACHE_TTL", &r.AnalysisCacheTTL},
		{"TYPING_TTL", &r.TypingTTL},
	} {
		v, err := GetEnvDuration(e.key, *e.dst)
		if err != nil {
			warnings = append(warnings, err.Error())
		}
		*e.dst = v
	}

	if cfg.JWTSecret == "" {
		return cfg, warnings, ErrMissingSecret
	}
	return cfg, warnings, nil
}

// ErrMissingSecret is returned by Load when no JWT secret is configured.
var ErrMissingSecret = errors.New("JWT_SECRET is not set")

func databaseDSN() string {
	if dsn := GetEnv("DATABASE_URL", ""); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		GetEnv("DB_HOST", "localhost"),
		GetEnv("DB_USER", "user"),
		GetEnv("DB_PASSWORD", "password"),
		GetEnv("DB_NAME", "accorddb"),
		GetEnv("DB_PORT", "5432"),
	)
}

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt returns the variable as an int. An unparsable value yields the
// default together with an error describing it.
func GetEnvInt(key string, defaultValue int) (int, error) {
	raw := GetEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid int value for %s: %q, using default %d", key, raw, defaultValue)
	}
	return v, nil
}

// GetEnvDuration returns the variable as a time.Duration.
func GetEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := GetEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid duration value for %s: %q, using default %s", key, raw, defaultValue)
	}
	return v, nil
}
