package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("AIRDROP_AMOUNT", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPPort != "8080" || cfg.ChainWSURL != "ws://127.0.0.1:9944" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.AirdropAmount.String() != "10000000000000" {
		t.Fatalf("expected default amount, got %s", cfg.AirdropAmount)
	}
	if cfg.FinalityTimeout != 2*time.Minute || cfg.SS58Prefix != 42 {
		t.Fatalf("unexpected chain defaults %+v", cfg)
	}
	if cfg.AllowRetryAfterFailure {
		t.Fatal("expected retries after failure to be disabled by default")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("AIRDROP_AMOUNT", "123456789012345678901234567890")
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092 , ,kafka-2:9092")
	t.Setenv("RECONNECT_BACKOFF", "750ms")
	t.Setenv("ALLOW_RETRY_AFTER_FAILURE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.AirdropAmount.String() != "123456789012345678901234567890" {
		t.Fatalf("expected big amount to survive parsing, got %s", cfg.AirdropAmount)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.ReconnectBackoff != 750*time.Millisecond || !cfg.AllowRetryAfterFailure {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
}

func TestLoadRejectsNonPositiveAmount(t *testing.T) {
	t.Setenv("AIRDROP_AMOUNT", "-5")
	if _, err := Load(); err == nil {
		t.Fatal("expected amount validation error")
	}
}

func TestRequireAPIListsMissingValues(t *testing.T) {
	err := Config{}.RequireAPI()
	if err == nil {
		t.Fatal("expected missing values error")
	}
	if err := (Config{PostgresDSN: "dsn", FundingSecret: "//Alice", AuthToken: "t"}).RequireAPI(); err != nil {
		t.Fatalf("expected complete config to pass, got %v", err)
	}
}
