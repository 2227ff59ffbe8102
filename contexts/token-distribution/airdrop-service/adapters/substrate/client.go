package substrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
	"faucet/contexts/token-distribution/airdrop-service/ports"
	platformsubstrate "faucet/internal/platform/substrate"

	"github.com/cenkalti/backoff/v5"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"golang.org/x/crypto/blake2b"
)

const transferCall = "Balances.transfer_keep_alive"

// ConnSource hands out the supervised node connection.
type ConnSource interface {
	Conn() (*platformsubstrate.Conn, error)
	Kick()
}

// Client implements ports.ChainClient against a Substrate node. Every call
// resolves the connection afresh, so a reconnect is picked up without
// restarting anything.
type Client struct {
	source   ConnSource
	identity *FundingIdentity
	logger   *slog.Logger
}

func NewClient(source ConnSource, identity *FundingIdentity, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		source:   source,
		identity: identity,
		logger:   logger,
	}
}

func (c *Client) Ready() error {
	if c.identity == nil {
		return domainerrors.ErrIdentityNotLoaded
	}
	if _, err := c.source.Conn(); err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrChainUnavailable, err)
	}
	return nil
}

// NextNonce asks the node for the funding account's next index, counting
// transactions already in the pool.
func (c *Client) NextNonce(ctx context.Context) (uint64, error) {
	if c.identity == nil {
		return 0, domainerrors.ErrIdentityNotLoaded
	}
	conn, err := c.source.Conn()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domainerrors.ErrChainUnavailable, err)
	}

	type result struct {
		next uint64
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var next uint64
		err := conn.API.Client.Call(&next, "system_accountNextIndex", c.identity.Address())
		done <- result{next: next, err: err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			c.source.Kick()
			return 0, fmt.Errorf("%w: account next index: %v", domainerrors.ErrChainUnavailable, r.err)
		}
		return r.next, nil
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %v", domainerrors.ErrChainUnavailable, ctx.Err())
	}
}

func (c *Client) SubmitTransfer(_ context.Context, req ports.TransferRequest) (ports.SubmissionHandle, error) {
	if c.identity == nil {
		return nil, domainerrors.ErrIdentityNotLoaded
	}
	conn, err := c.source.Conn()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrChainUnavailable, err)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domainerrors.ErrSigningFailed)
	}

	ext, err := c.buildSigned(conn, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrSigningFailed, err)
	}
	txHash, err := extrinsicHash(ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrSigningFailed, err)
	}

	sub, err := conn.API.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		c.logger.Warn("node rejected transfer",
			"event", "airdrop_chain_submit_rejected",
			"module", "token-distribution/airdrop-service",
			"layer", "adapter",
			"tx_hash", txHash,
			"nonce", req.Nonce,
			"error", err.Error(),
		)
		return nil, classifyPoolError(err)
	}

	return newWatch(sub, txHash, req.Nonce, func(error) { c.source.Kick() }), nil
}

func (c *Client) buildSigned(conn *platformsubstrate.Conn, req ports.TransferRequest) (types.Extrinsic, error) {
	dest, err := types.NewMultiAddressFromAccountID(req.Recipient.PublicKey)
	if err != nil {
		return types.Extrinsic{}, fmt.Errorf("recipient account id: %w", err)
	}
	call, err := types.NewCall(conn.Metadata, transferCall, dest, types.NewUCompact(req.Amount))
	if err != nil {
		return types.Extrinsic{}, fmt.Errorf("build %s call: %w", transferCall, err)
	}

	ext := types.NewExtrinsic(call)
	err = ext.Sign(c.identity.pair, types.SignatureOptions{
		BlockHash:          conn.GenesisHash,
		Era:                types.ExtrinsicEra{IsImmortalEra: true},
		GenesisHash:        conn.GenesisHash,
		Nonce:              types.NewUCompactFromUInt(req.Nonce),
		SpecVersion:        conn.RuntimeVersion.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: conn.RuntimeVersion.TransactionVersion,
	})
	if err != nil {
		return types.Extrinsic{}, fmt.Errorf("sign transfer: %w", err)
	}
	return ext, nil
}

// InspectExecution finds the transfer in the finalized block and reads the
// System events it emitted. Transient RPC failures are retried a few times
// because the transfer itself is already final.
func (c *Client) InspectExecution(ctx context.Context, req ports.InspectRequest) (ports.ExecutionResult, error) {
	return backoff.Retry(ctx, func() (ports.ExecutionResult, error) {
		conn, err := c.source.Conn()
		if err != nil {
			return ports.ExecutionResult{}, fmt.Errorf("%w: %v", domainerrors.ErrChainUnavailable, err)
		}
		result, err := c.inspect(conn, req)
		if errors.Is(err, errExtrinsicNotInBlock) {
			return result, backoff.Permanent(err)
		}
		return result, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(4),
	)
}

var errExtrinsicNotInBlock = errors.New("transfer not found in finalized block")

func (c *Client) inspect(conn *platformsubstrate.Conn, req ports.InspectRequest) (ports.ExecutionResult, error) {
	blockHash, err := types.NewHashFromHexString(req.BlockHash)
	if err != nil {
		return ports.ExecutionResult{}, backoff.Permanent(fmt.Errorf("block hash %q: %w", req.BlockHash, err))
	}
	block, err := conn.API.RPC.Chain.GetBlock(blockHash)
	if err != nil {
		return ports.ExecutionResult{}, fmt.Errorf("load block: %w", err)
	}

	index := extrinsicIndex(block.Block.Extrinsics, req.TxHash)
	if index < 0 {
		return ports.ExecutionResult{}, fmt.Errorf("%w: %s in %s", errExtrinsicNotInBlock, req.TxHash, req.BlockHash)
	}

	key, err := types.CreateStorageKey(conn.Metadata, "System", "Events", nil)
	if err != nil {
		return ports.ExecutionResult{}, backoff.Permanent(fmt.Errorf("events storage key: %w", err))
	}
	raw, err := conn.API.RPC.State.GetStorageRaw(key, blockHash)
	if err != nil {
		return ports.ExecutionResult{}, fmt.Errorf("load events: %w", err)
	}
	var records types.EventRecords
	if err := types.EventRecordsRaw(*raw).DecodeEventRecords(conn.Metadata, &records); err != nil {
		return ports.ExecutionResult{}, backoff.Permanent(fmt.Errorf("decode events: %w", err))
	}

	result, found := dispatchResult(records, index)
	if !found {
		return ports.ExecutionResult{}, fmt.Errorf("no dispatch event for extrinsic %d in %s", index, req.BlockHash)
	}
	if result.Success {
		return result, nil
	}
	exhausted, err := c.fundingBelow(conn, blockHash, req.Amount)
	if err != nil {
		return ports.ExecutionResult{}, err
	}
	result.FundingExhausted = exhausted
	return result, nil
}

// extrinsicIndex returns the position of txHash in the block, or -1.
func extrinsicIndex(extrinsics []types.Extrinsic, txHash string) int {
	for i, ext := range extrinsics {
		hash, err := extrinsicHash(ext)
		if err != nil {
			continue
		}
		if strings.EqualFold(hash, txHash) {
			return i
		}
	}
	return -1
}

// dispatchResult reads the System dispatch event emitted for the extrinsic
// at index. Events of other extrinsics in the same block are ignored.
func dispatchResult(records types.EventRecords, index int) (ports.ExecutionResult, bool) {
	for _, failed := range records.System_ExtrinsicFailed {
		if appliedAt(failed.Phase, index) {
			return ports.ExecutionResult{Reason: describeDispatchError(failed.DispatchError)}, true
		}
	}
	for _, succeeded := range records.System_ExtrinsicSuccess {
		if appliedAt(succeeded.Phase, index) {
			return ports.ExecutionResult{Success: true}, true
		}
	}
	return ports.ExecutionResult{}, false
}

func appliedAt(phase types.Phase, index int) bool {
	return phase.IsApplyExtrinsic && int(phase.AsApplyExtrinsic) == index
}

// fundingBelow reports whether the funding account could not cover amount
// in the given block's state.
func (c *Client) fundingBelow(conn *platformsubstrate.Conn, blockHash types.Hash, amount *big.Int) (bool, error) {
	if amount == nil {
		return false, nil
	}
	key, err := types.CreateStorageKey(conn.Metadata, "System", "Account", c.identity.PublicKey())
	if err != nil {
		return false, backoff.Permanent(fmt.Errorf("account storage key: %w", err))
	}
	var info types.AccountInfo
	ok, err := conn.API.RPC.State.GetStorage(key, &info, blockHash)
	if err != nil {
		return false, fmt.Errorf("load funding account: %w", err)
	}
	return freeBelow(info, ok, amount), nil
}

// freeBelow treats a missing account as empty.
func freeBelow(info types.AccountInfo, exists bool, amount *big.Int) bool {
	if !exists || info.Data.Free.Int == nil {
		return true
	}
	return info.Data.Free.Int.Cmp(amount) < 0
}

func describeDispatchError(dispatch types.DispatchError) string {
	switch {
	case dispatch.IsModule:
		return fmt.Sprintf("module error (pallet %d, error %v)", dispatch.ModuleError.Index, dispatch.ModuleError.Error)
	case dispatch.IsBadOrigin:
		return "bad origin"
	case dispatch.IsCannotLookup:
		return "cannot lookup"
	default:
		return "dispatch failed"
	}
}

func extrinsicHash(ext types.Extrinsic) (string, error) {
	encoded, err := codec.Encode(ext)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(encoded)
	return codec.HexEncodeToString(sum[:]), nil
}

var _ ports.ChainClient = (*Client)(nil)
