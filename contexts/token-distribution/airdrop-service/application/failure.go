package application

import (
	"errors"

	"faucet/contexts/token-distribution/airdrop-service/domain/entities"
	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
)

const ReasonReservationAbandoned = entities.FailureReservationAbandoned

// FailureReason maps a disbursement error to the reason persisted on the
// Failed record.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrFundingExhausted):
		return entities.FailureFundingExhausted
	case errors.Is(err, domainerrors.ErrTransferFailed):
		return entities.FailureTransferFailed
	case errors.Is(err, domainerrors.ErrTransactionDropped):
		return entities.FailureTransactionDropped
	case errors.Is(err, domainerrors.ErrFinalityTimeout):
		return entities.FailureFinalityTimeout
	case errors.Is(err, domainerrors.ErrSubmissionRejected):
		return entities.FailureSubmissionRejected
	case errors.Is(err, domainerrors.ErrSigningFailed):
		return entities.FailureSigningFailed
	case errors.Is(err, domainerrors.ErrChainUnavailable):
		return entities.FailureChainUnavailable
	default:
		return entities.FailureInternal
	}
}

// NeverLeftProcess reports errors raised before a transfer could reach the
// node. Reservations failing this way are released instead of failed.
func NeverLeftProcess(err error) bool {
	return errors.Is(err, domainerrors.ErrChainUnavailable) ||
		errors.Is(err, domainerrors.ErrIdentityNotLoaded) ||
		errors.Is(err, domainerrors.ErrSigningFailed)
}
