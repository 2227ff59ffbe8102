package airdropservice

import (
	"log/slog"
	"math/big"
	"time"

	httpadapter "faucet/contexts/token-distribution/airdrop-service/adapters/http"
	"faucet/contexts/token-distribution/airdrop-service/adapters/memory"
	"faucet/contexts/token-distribution/airdrop-service/application/commands"
	"faucet/contexts/token-distribution/airdrop-service/application/queries"
	"faucet/contexts/token-distribution/airdrop-service/application/transfer"
	"faucet/contexts/token-distribution/airdrop-service/application/workers"
	"faucet/contexts/token-distribution/airdrop-service/domain/services"
	"faucet/contexts/token-distribution/airdrop-service/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Relay   workers.OutboxRelay
	Sweeper workers.StaleReservationSweeper
	// Nonces is shared by the submitter and the listener. The composition
	// root invalidates it whenever the chain connection is replaced.
	Nonces *services.NonceSequencer
	Store  *memory.Store
	Ledger *memory.Ledger
}

type Dependencies struct {
	Repository      ports.DisbursementRepository
	Outbox          ports.OutboxRepository
	Chain           ports.ChainClient
	Addresses       ports.AddressCodec
	Geo             ports.GeoLocator
	Publisher       ports.EventPublisher
	Clock           ports.Clock
	IDGen           ports.IDGenerator
	Amount          *big.Int
	FinalityTimeout time.Duration
	GeoTimeout      time.Duration
	ReclaimFailed   bool
	Topic           string
	StaleAfter      time.Duration
	Logger          *slog.Logger
}

func NewModule(deps Dependencies) Module {
	nonces := services.NewNonceSequencer()
	submitter := transfer.Submitter{
		Chain:  deps.Chain,
		Nonces: nonces,
		Logger: deps.Logger,
	}
	listener := transfer.Listener{
		Chain:   deps.Chain,
		Nonces:  nonces,
		Timeout: deps.FinalityTimeout,
		Logger:  deps.Logger,
	}
	disburse := commands.DisburseUseCase{
		Repository:    deps.Repository,
		Addresses:     deps.Addresses,
		Chain:         deps.Chain,
		Submitter:     submitter,
		Listener:      listener,
		Geo:           deps.Geo,
		Clock:         deps.Clock,
		IDGenerator:   deps.IDGen,
		Amount:        deps.Amount,
		GeoTimeout:    deps.GeoTimeout,
		FlowTimeout:   flowTimeout(deps.FinalityTimeout),
		ReclaimFailed: deps.ReclaimFailed,
		Logger:        deps.Logger,
	}

	return Module{
		Handler: httpadapter.Handler{
			Disburse: disburse,
			Reopen: commands.ReopenUseCase{
				Repository: deps.Repository,
				Addresses:  deps.Addresses,
				Logger:     deps.Logger,
			},
			Disbursements: queries.GetDisbursementUseCase{
				Repository: deps.Repository,
				Addresses:  deps.Addresses,
				Logger:     deps.Logger,
			},
			Logger: deps.Logger,
		},
		Relay: workers.OutboxRelay{
			Outbox:    deps.Outbox,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			Topic:     deps.Topic,
			Logger:    deps.Logger,
		},
		Sweeper: workers.StaleReservationSweeper{
			Repository:  deps.Repository,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGen,
			StaleAfter:  deps.StaleAfter,
			Logger:      deps.Logger,
		},
		Nonces: nonces,
	}
}

// NewInMemoryModule wires the module against the in-process store and
// ledger. Addresses are parsed with the given codec.
func NewInMemoryModule(
	ledger *memory.Ledger,
	addresses ports.AddressCodec,
	amount *big.Int,
	publisher ports.EventPublisher,
	logger *slog.Logger,
) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Repository:      store,
		Outbox:          store,
		Chain:           ledger,
		Addresses:       addresses,
		Publisher:       publisher,
		Clock:           store,
		IDGen:           store,
		Amount:          amount,
		FinalityTimeout: 5 * time.Second,
		Logger:          logger,
	})
	module.Store = store
	module.Ledger = ledger
	return module
}

// The whole flow gets the finality window plus room for reservation,
// submission and commit.
func flowTimeout(finality time.Duration) time.Duration {
	if finality <= 0 {
		return 0
	}
	return finality + 30*time.Second
}
