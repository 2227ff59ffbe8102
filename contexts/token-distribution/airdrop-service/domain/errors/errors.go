package errors

import "errors"

var (
	ErrInvalidAddress       = errors.New("invalid recipient address")
	ErrWrongAuthToken       = errors.New("wrong auth token")
	ErrDuplicatedAirdrop    = errors.New("recipient already received an airdrop")
	ErrStoreUnavailable     = errors.New("disbursement store unavailable")
	ErrChainUnavailable     = errors.New("chain connection unavailable")
	ErrIdentityNotLoaded    = errors.New("funding identity not loaded")
	ErrSigningFailed        = errors.New("transfer signing failed")
	ErrSubmissionRejected   = errors.New("transfer rejected by node")
	ErrFundingExhausted     = errors.New("funding account balance exhausted")
	ErrTransferFailed       = errors.New("transfer finalized with failed execution")
	ErrTransactionDropped   = errors.New("transfer dropped before finality")
	ErrFinalityTimeout      = errors.New("transfer finality not observed in time")
	ErrAlreadyTerminal      = errors.New("disbursement already in terminal state")
	ErrInvalidTransition    = errors.New("invalid disbursement status transition")
	ErrDisbursementNotFound = errors.New("disbursement not found")
	ErrNotReopenable        = errors.New("only failed disbursements can be reopened")
)
