package commands

import (
	"context"
	"log/slog"
	"strings"

	application "faucet/contexts/token-distribution/airdrop-service/application"
	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
	"faucet/contexts/token-distribution/airdrop-service/ports"
)

type ReopenCommand struct {
	Recipient string
	Operator  string
}

// ReopenUseCase lets an operator clear a Failed disbursement after checking
// the chain by hand, making the address eligible again.
type ReopenUseCase struct {
	Repository ports.DisbursementRepository
	Addresses  ports.AddressCodec
	Logger     *slog.Logger
}

func (u ReopenUseCase) Execute(ctx context.Context, cmd ReopenCommand) error {
	logger := application.ResolveLogger(u.Logger)
	address, err := u.Addresses.Parse(strings.TrimSpace(cmd.Recipient))
	if err != nil {
		return domainerrors.ErrInvalidAddress
	}

	if err := u.Repository.Reopen(ctx, address.String()); err != nil {
		logger.Warn("reopen rejected",
			"event", "airdrop_reopen_rejected",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"recipient", address.String(),
			"operator", cmd.Operator,
			"error", err.Error(),
		)
		return err
	}

	logger.Info("disbursement reopened",
		"event", "airdrop_disbursement_reopened",
		"module", "token-distribution/airdrop-service",
		"layer", "application",
		"recipient", address.String(),
		"operator", cmd.Operator,
	)
	return nil
}
