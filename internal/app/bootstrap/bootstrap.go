package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	airdropservice "faucet/contexts/token-distribution/airdrop-service"
	geoadapter "faucet/contexts/token-distribution/airdrop-service/adapters/geo"
	postgresadapter "faucet/contexts/token-distribution/airdrop-service/adapters/postgres"
	substrateadapter "faucet/contexts/token-distribution/airdrop-service/adapters/substrate"
	"faucet/contexts/token-distribution/airdrop-service/ports"
	"faucet/internal/platform/config"
	"faucet/internal/platform/db"
	"faucet/internal/platform/httpserver"
	"faucet/internal/platform/messaging"
	platformsubstrate "faucet/internal/platform/substrate"
	"faucet/internal/shared/events"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server        *httpserver.Server
	supervisor    *platformsubstrate.Supervisor
	postgres      *db.Postgres
	shutdownGrace time.Duration
	logger        *slog.Logger
}

type WorkerApp struct {
	postgres      *db.Postgres
	kafka         *messaging.Kafka
	module        airdropservice.Module
	topic         string
	localEvents   bool
	pollInterval  time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
}

// AdminApp backs the operator CLI: store access without the chain.
type AdminApp struct {
	module   airdropservice.Module
	postgres *db.Postgres
	logger   *slog.Logger
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireAPI(); err != nil {
		return nil, err
	}
	logger := NewLogger(cfg, "api")

	identity, err := substrateadapter.LoadFundingIdentity(cfg.FundingSecret, cfg.SS58Prefix)
	if err != nil {
		return nil, err
	}

	pg, err := db.Connect(ctx, db.Options{DSN: cfg.PostgresDSN, MaxConns: cfg.PostgresMaxConns})
	if err != nil {
		return nil, err
	}
	if err := postgresadapter.EnsureSchema(ctx, pg.DB); err != nil {
		_ = pg.Close()
		return nil, err
	}

	supervisor := platformsubstrate.NewSupervisor(platformsubstrate.Options{
		URL:              cfg.ChainWSURL,
		ReconnectBackoff: cfg.ReconnectBackoff,
		HealthInterval:   cfg.HealthCheckInterval,
		Logger:           logger,
	})
	chain := substrateadapter.NewClient(supervisor, identity, logger)

	var locator ports.GeoLocator
	if cfg.GeoEnabled {
		locator = geoadapter.NewIPAPIClient(cfg.GeoLookupURL, cfg.GeoLookupTimeout)
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	module := airdropservice.NewModule(airdropservice.Dependencies{
		Repository:      repo,
		Outbox:          repo,
		Chain:           chain,
		Addresses:       substrateadapter.SS58Codec{Network: int(cfg.SS58Prefix)},
		Geo:             locator,
		Clock:           postgresadapter.SystemClock{},
		IDGen:           postgresadapter.UUIDGenerator{},
		Amount:          cfg.AirdropAmount,
		FinalityTimeout: cfg.FinalityTimeout,
		GeoTimeout:      cfg.GeoLookupTimeout,
		ReclaimFailed:   cfg.AllowRetryAfterFailure,
		Topic:           cfg.KafkaTopic,
		StaleAfter:      cfg.StaleReservationAfter,
		Logger:          logger,
	})

	// A replaced connection may sit on a different pool view, so the local
	// nonce sequence is re-read from the chain after every state change.
	supervisor.Watch(func(state platformsubstrate.State) {
		module.Nonces.Invalidate()
		logger.Info("nonce sequence invalidated",
			"event", "bootstrap_nonce_invalidated",
			"module", "internal/app/bootstrap",
			"layer", "platform",
			"chain_state", state.String(),
		)
	})

	logger.Info("funding identity loaded",
		"event", "bootstrap_identity_loaded",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"funding_address", identity.Address(),
		"airdrop_amount", cfg.AirdropAmount.String(),
	)

	return &APIApp{
		server:        httpserver.New(module, cfg.AuthToken, chain, logger, normalizeAddr(cfg.HTTPPort)),
		supervisor:    supervisor,
		postgres:      pg,
		shutdownGrace: cfg.FinalityTimeout + 30*time.Second,
		logger:        logger,
	}, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireStore(); err != nil {
		return nil, err
	}
	logger := NewLogger(cfg, "worker")

	pg, err := db.Connect(ctx, db.Options{DSN: cfg.PostgresDSN, MaxConns: cfg.PostgresMaxConns})
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	module := airdropservice.NewModule(airdropservice.Dependencies{
		Repository: repo,
		Outbox:     repo,
		Publisher:  kafka,
		Clock:      postgresadapter.SystemClock{},
		IDGen:      postgresadapter.UUIDGenerator{},
		Topic:      cfg.KafkaTopic,
		StaleAfter: cfg.StaleReservationAfter,
		Logger:     logger,
	})

	return &WorkerApp{
		postgres:      pg,
		kafka:         kafka,
		module:        module,
		topic:         cfg.KafkaTopic,
		localEvents:   len(cfg.KafkaBrokers) == 0,
		pollInterval:  cfg.OutboxPollInterval,
		sweepInterval: cfg.SweepInterval,
		logger:        logger,
	}, nil
}

func BuildAdmin(ctx context.Context) (*AdminApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireStore(); err != nil {
		return nil, err
	}
	logger := NewLogger(cfg, "cli")

	pg, err := db.Connect(ctx, db.Options{DSN: cfg.PostgresDSN, MaxConns: 2})
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	return &AdminApp{
		module: airdropservice.NewModule(airdropservice.Dependencies{
			Repository: repo,
			Outbox:     repo,
			Addresses:  substrateadapter.SS58Codec{Network: int(cfg.SS58Prefix)},
			Clock:      postgresadapter.SystemClock{},
			IDGen:      postgresadapter.UUIDGenerator{},
			StaleAfter: cfg.StaleReservationAfter,
			Logger:     logger,
		}),
		postgres: pg,
		logger:   logger,
	}, nil
}

// NewLogger builds the process JSON logger and installs it as the default.
func NewLogger(cfg config.Config, process string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	logger := slog.New(handler).With("service", cfg.ServiceName, "process", process)
	slog.SetDefault(logger)
	return logger
}

// Run serves HTTP until ctx is cancelled, then drains in-flight
// disbursements for up to the shutdown grace period.
func (a *APIApp) Run(ctx context.Context) error {
	a.supervisor.Start(ctx)
	defer a.supervisor.Shutdown()

	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(a.server.Start)
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownGrace)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"sweep_interval", w.sweepInterval.String(),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	if w.localEvents {
		// Without brokers the relay fans out in process; keep a record of
		// what would have been published.
		w.kafka.Subscribe(groupCtx, w.topic, func(_ context.Context, event events.Envelope) error {
			w.logger.Info("outcome event relayed locally",
				"event", "bootstrap_local_event",
				"module", "internal/app/bootstrap",
				"layer", "worker",
				"event_id", event.EventID,
				"event_type", event.EventType,
				"partition_key", event.PartitionKey,
			)
			return nil
		})
	}
	group.Go(func() error {
		return every(groupCtx, w.pollInterval, func(ctx context.Context) {
			if _, err := w.module.Relay.RunOnce(ctx); err != nil {
				w.logger.Warn("outbox relay pass failed",
					"event", "bootstrap_outbox_relay_failed",
					"module", "internal/app/bootstrap",
					"layer", "worker",
					"error", err.Error(),
				)
			}
		})
	})
	group.Go(func() error {
		return every(groupCtx, w.sweepInterval, func(ctx context.Context) {
			if _, err := w.module.Sweeper.RunOnce(ctx); err != nil {
				w.logger.Warn("stale reservation sweep failed",
					"event", "bootstrap_sweep_failed",
					"module", "internal/app/bootstrap",
					"layer", "worker",
					"error", err.Error(),
				)
			}
		})
	})
	return group.Wait()
}

func (w *WorkerApp) Close() error {
	var closeErr error
	if w.kafka != nil {
		closeErr = w.kafka.Close()
	}
	if w.postgres != nil {
		if err := w.postgres.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}

func (a *AdminApp) Airdrop() airdropservice.Module {
	return a.module
}

// Migrate applies the ledger schema.
func (a *AdminApp) Migrate(ctx context.Context) error {
	if a.postgres == nil {
		return fmt.Errorf("admin app has no store")
	}
	return postgresadapter.EnsureSchema(ctx, a.postgres.DB)
}

func (a *AdminApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

// every runs pass immediately and then on each tick until ctx ends.
func every(ctx context.Context, interval time.Duration, pass func(context.Context)) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		pass(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
