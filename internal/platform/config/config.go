package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName      string `env:"SERVICE_NAME"       envDefault:"faucet"`
	HTTPPort         string `env:"HTTP_PORT"          envDefault:"8080"`
	PostgresDSN      string `env:"POSTGRES_DSN"`
	PostgresMaxConns int    `env:"POSTGRES_MAX_CONNS" envDefault:"10"`

	ChainWSURL          string        `env:"CHAIN_WS_URL"          envDefault:"ws://127.0.0.1:9944"`
	FundingSecret       string        `env:"FUNDING_SECRET"`
	SS58Prefix          uint16        `env:"SS58_PREFIX"           envDefault:"42"`
	AirdropAmountRaw    string        `env:"AIRDROP_AMOUNT"        envDefault:"10000000000000"`
	ReconnectBackoff    time.Duration `env:"RECONNECT_BACKOFF"     envDefault:"5s"`
	HealthCheckInterval time.Duration `env:"HEALTH_CHECK_INTERVAL" envDefault:"10s"`
	FinalityTimeout     time.Duration `env:"FINALITY_TIMEOUT"      envDefault:"2m"`

	AuthToken string `env:"AUTH_TOKEN"`

	GeoEnabled       bool          `env:"GEO_ENABLED"        envDefault:"true"`
	GeoLookupURL     string        `env:"GEO_LOOKUP_URL"     envDefault:"http://ip-api.com/json/"`
	GeoLookupTimeout time.Duration `env:"GEO_LOOKUP_TIMEOUT" envDefault:"2s"`

	AllowRetryAfterFailure bool `env:"ALLOW_RETRY_AFTER_FAILURE" envDefault:"false"`

	KafkaBrokers          []string      `env:"KAFKA_BROKERS"           envSeparator:","`
	KafkaTopic            string        `env:"KAFKA_TOPIC"             envDefault:"airdrop.disbursements"`
	OutboxPollInterval    time.Duration `env:"OUTBOX_POLL_INTERVAL"    envDefault:"2s"`
	StaleReservationAfter time.Duration `env:"STALE_RESERVATION_AFTER" envDefault:"10m"`
	SweepInterval         time.Duration `env:"SWEEP_INTERVAL"          envDefault:"1m"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AirdropAmount *big.Int `env:"-"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	brokers := make([]string, 0, len(cfg.KafkaBrokers))
	for _, value := range cfg.KafkaBrokers {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	cfg.KafkaBrokers = brokers

	amount, ok := new(big.Int).SetString(strings.TrimSpace(cfg.AirdropAmountRaw), 10)
	if !ok || amount.Sign() <= 0 {
		return Config{}, fmt.Errorf("AIRDROP_AMOUNT must be a positive integer, got %q", cfg.AirdropAmountRaw)
	}
	cfg.AirdropAmount = amount
	return cfg, nil
}

// RequireAPI checks the values the HTTP process can not start without.
func (c Config) RequireAPI() error {
	var errs []error
	if strings.TrimSpace(c.PostgresDSN) == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required"))
	}
	if strings.TrimSpace(c.FundingSecret) == "" {
		errs = append(errs, errors.New("FUNDING_SECRET is required"))
	}
	if strings.TrimSpace(c.AuthToken) == "" {
		errs = append(errs, errors.New("AUTH_TOKEN is required"))
	}
	return errors.Join(errs...)
}

// RequireStore checks the values every store-backed process needs.
func (c Config) RequireStore() error {
	if strings.TrimSpace(c.PostgresDSN) == "" {
		return errors.New("POSTGRES_DSN is required")
	}
	return nil
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
