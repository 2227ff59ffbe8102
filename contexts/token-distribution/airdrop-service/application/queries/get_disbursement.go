package queries

import (
	"context"
	"log/slog"
	"strings"

	application "faucet/contexts/token-distribution/airdrop-service/application"
	"faucet/contexts/token-distribution/airdrop-service/domain/entities"
	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
	"faucet/contexts/token-distribution/airdrop-service/ports"
)

type GetDisbursementQuery struct {
	Recipient string
}

type GetDisbursementResult struct {
	Disbursement entities.Disbursement
}

type GetDisbursementUseCase struct {
	Repository ports.DisbursementRepository
	Addresses  ports.AddressCodec
	Logger     *slog.Logger
}

func (u GetDisbursementUseCase) Execute(ctx context.Context, query GetDisbursementQuery) (GetDisbursementResult, error) {
	address, err := u.Addresses.Parse(strings.TrimSpace(query.Recipient))
	if err != nil {
		return GetDisbursementResult{}, domainerrors.ErrInvalidAddress
	}

	record, err := u.Repository.Lookup(ctx, address.String())
	if err != nil {
		application.ResolveLogger(u.Logger).Debug("disbursement lookup failed",
			"event", "airdrop_lookup_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"recipient", address.String(),
			"error", err.Error(),
		)
		return GetDisbursementResult{}, err
	}
	return GetDisbursementResult{Disbursement: record}, nil
}
