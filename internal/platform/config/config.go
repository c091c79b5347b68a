// Package config builds runtime configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strings"
	"time"
)

// Config captures everything the server needs to wire its dependencies.
type Config struct {
	Addr     string
	LogLevel string

	// JWTSigningKey validates caller bearer tokens. Empty enables dev mode
	// where the caller address comes from a request header.
	JWTSigningKey string

	// PostgresDSN selects the durable vault store. Empty falls back to the
	// in-memory store.
	PostgresDSN string

	// RedisURL enables the best-effort audit blob index. Empty disables it.
	RedisURL string

	// Walrus-compatible blob store endpoints for the audit mirror. Empty
	// publisher disables mirroring.
	WalrusPublisherURL  string
	WalrusAggregatorURL string
	WalrusStoreEpochs   int

	// KafkaBrokers enables the decision event stream. Empty disables it.
	KafkaBrokers []string
	KafkaTopic   string

	// EpochLength is the accounting window for spend limits.
	EpochLength time.Duration
}

// FromEnv reads configuration from the environment, applying defaults that
// match the demo deployment.
func FromEnv() Config {
	cfg := Config{
		Addr:                envOr("AGENTVAULT_ADDR", ":8080"),
		LogLevel:            envOr("AGENTVAULT_LOG_LEVEL", "info"),
		JWTSigningKey:       os.Getenv("AGENTVAULT_JWT_SIGNING_KEY"),
		PostgresDSN:         os.Getenv("AGENTVAULT_POSTGRES_DSN"),
		RedisURL:            os.Getenv("AGENTVAULT_REDIS_URL"),
		WalrusPublisherURL:  os.Getenv("AGENTVAULT_WALRUS_PUBLISHER_URL"),
		WalrusAggregatorURL: os.Getenv("AGENTVAULT_WALRUS_AGGREGATOR_URL"),
		WalrusStoreEpochs:   5,
		KafkaTopic:          envOr("AGENTVAULT_KAFKA_TOPIC", "agentvault.decisions"),
		EpochLength:         24 * time.Hour,
	}

	if brokers := os.Getenv("AGENTVAULT_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	if raw := os.Getenv("AGENTVAULT_EPOCH_LENGTH"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.EpochLength = d
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
