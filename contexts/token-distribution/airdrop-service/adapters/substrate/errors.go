package substrate

import (
	"errors"
	"fmt"
	"strings"

	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"

	gethrpc "github.com/centrifuge/go-substrate-rpc-client/v4/gethrpc"
)

var fundingExhaustedMarkers = []string{
	"inability to pay some fees",
	"balance too low",
	"insufficientbalance",
	"insufficient balance",
}

// classifyPoolError maps an author_submitAndWatchExtrinsic failure. Only a
// JSON-RPC error answered by the node proves the pool refused the transfer.
// Anything else happened after the request left the process, so the node
// may have accepted it and its fate is unknown.
func classifyPoolError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr gethrpc.Error
	if !errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: submission outcome unknown: %v", domainerrors.ErrTransactionDropped, err)
	}
	message := strings.ToLower(rpcErr.Error())
	for _, marker := range fundingExhaustedMarkers {
		if strings.Contains(message, marker) {
			return fmt.Errorf("%w: %d: %v", domainerrors.ErrFundingExhausted, rpcErr.ErrorCode(), err)
		}
	}
	return fmt.Errorf("%w: %d: %v", domainerrors.ErrSubmissionRejected, rpcErr.ErrorCode(), err)
}
