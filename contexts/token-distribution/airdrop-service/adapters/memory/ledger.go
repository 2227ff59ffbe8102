package memory

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
	"faucet/contexts/token-distribution/airdrop-service/ports"

	"golang.org/x/crypto/blake2b"
)

type execution struct {
	blockHash string
	result    ports.ExecutionResult
}

// Ledger is an in-process stand-in for the chain node. Transfers execute
// when submitted; the status stream then walks ready -> in_block ->
// finalized, or stops at the configured terminal kind.
type Ledger struct {
	mu sync.Mutex

	funding    string
	balances   map[string]*big.Int
	nonce      uint64
	height     uint64
	executions map[string]execution
	connected  bool
	stall      bool
	terminal   ports.TxStatusKind
	submitErr  error
	stepDelay  time.Duration

	nonceReads  atomic.Int64
	submissions atomic.Int64
	releases    atomic.Int64
}

func NewLedger(funding string, balance *big.Int) *Ledger {
	if balance == nil {
		balance = big.NewInt(0)
	}
	return &Ledger{
		funding:    strings.TrimSpace(funding),
		balances:   map[string]*big.Int{strings.TrimSpace(funding): new(big.Int).Set(balance)},
		executions: make(map[string]execution),
		connected:  true,
		terminal:   ports.TxStatusFinalized,
	}
}

func (l *Ledger) SetConnected(connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = connected
}

// SetStall keeps new submissions in the pool forever.
func (l *Ledger) SetStall(stall bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stall = stall
}

// SetTerminal selects the status new submissions end with. Anything other
// than finalized leaves balances and the account nonce untouched.
func (l *Ledger) SetTerminal(kind ports.TxStatusKind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.terminal = kind
}

// FailNextSubmit makes the next SubmitTransfer return err.
func (l *Ledger) FailNextSubmit(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitErr = err
}

func (l *Ledger) SetStepDelay(delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stepDelay = delay
}

func (l *Ledger) Balance(address string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[strings.TrimSpace(address)]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (l *Ledger) AccountNonce() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonce
}

func (l *Ledger) NonceReads() int64  { return l.nonceReads.Load() }
func (l *Ledger) Submissions() int64 { return l.submissions.Load() }
func (l *Ledger) Releases() int64    { return l.releases.Load() }

func (l *Ledger) Ready() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return domainerrors.ErrChainUnavailable
	}
	return nil
}

func (l *Ledger) NextNonce(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return 0, domainerrors.ErrChainUnavailable
	}
	l.nonceReads.Add(1)
	return l.nonce, nil
}

func (l *Ledger) SubmitTransfer(_ context.Context, req ports.TransferRequest) (ports.SubmissionHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return nil, domainerrors.ErrChainUnavailable
	}
	if l.submitErr != nil {
		err := l.submitErr
		l.submitErr = nil
		return nil, err
	}
	if req.Nonce != l.nonce {
		return nil, fmt.Errorf("%w: nonce %d, account expects %d", domainerrors.ErrSubmissionRejected, req.Nonce, l.nonce)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", domainerrors.ErrSubmissionRejected)
	}
	l.submissions.Add(1)

	recipient := req.Recipient.String()
	txHash := transferHash(l.funding, recipient, req.Nonce, req.Amount)
	handle := &ledgerHandle{
		txHash:   txHash,
		nonce:    req.Nonce,
		statuses: make(chan ports.TxStatus, 4),
		errs:     make(chan error, 1),
		release:  func() { l.releases.Add(1) },
	}

	if l.stall {
		handle.statuses <- ports.TxStatus{Kind: ports.TxStatusReady}
		return handle, nil
	}

	statuses := []ports.TxStatus{{Kind: ports.TxStatusReady}}
	if l.terminal == ports.TxStatusFinalized {
		l.height++
		included := blockHash(l.height)
		l.nonce++
		l.executions[txHash] = execution{
			blockHash: included,
			result:    l.apply(recipient, req.Amount),
		}
		statuses = append(statuses,
			ports.TxStatus{Kind: ports.TxStatusInBlock, BlockHash: included},
			ports.TxStatus{Kind: ports.TxStatusFinalized, BlockHash: included},
		)
	} else {
		statuses = append(statuses, ports.TxStatus{Kind: l.terminal})
	}

	go handle.emit(statuses, l.stepDelay)
	return handle, nil
}

func (l *Ledger) InspectExecution(_ context.Context, req ports.InspectRequest) (ports.ExecutionResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return ports.ExecutionResult{}, domainerrors.ErrChainUnavailable
	}
	executed, ok := l.executions[req.TxHash]
	if !ok || executed.blockHash != req.BlockHash {
		return ports.ExecutionResult{}, fmt.Errorf("transfer %s not found in block %s", req.TxHash, req.BlockHash)
	}
	return executed.result, nil
}

// apply must be called with l.mu held.
func (l *Ledger) apply(recipient string, amount *big.Int) ports.ExecutionResult {
	funding := l.balances[l.funding]
	if funding.Cmp(amount) < 0 {
		return ports.ExecutionResult{
			FundingExhausted: true,
			Reason:           "Balances.InsufficientBalance",
		}
	}
	funding.Sub(funding, amount)
	current, ok := l.balances[recipient]
	if !ok {
		current = big.NewInt(0)
		l.balances[recipient] = current
	}
	current.Add(current, amount)
	return ports.ExecutionResult{Success: true}
}

type ledgerHandle struct {
	txHash   string
	nonce    uint64
	statuses chan ports.TxStatus
	errs     chan error
	release  func()
	once     sync.Once
}

func (h *ledgerHandle) TxHash() string                  { return h.txHash }
func (h *ledgerHandle) Nonce() uint64                   { return h.nonce }
func (h *ledgerHandle) Statuses() <-chan ports.TxStatus { return h.statuses }
func (h *ledgerHandle) Errors() <-chan error            { return h.errs }

func (h *ledgerHandle) Release() {
	h.once.Do(h.release)
}

func (h *ledgerHandle) emit(statuses []ports.TxStatus, delay time.Duration) {
	for _, status := range statuses {
		if delay > 0 {
			time.Sleep(delay)
		}
		h.statuses <- status
	}
}

func transferHash(funding string, recipient string, nonce uint64, amount *big.Int) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", funding, recipient, nonce, amount.String())))
	return "0x" + hex.EncodeToString(sum[:])
}

func blockHash(height uint64) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("block|%d", height)))
	return "0x" + hex.EncodeToString(sum[:])
}

var _ ports.ChainClient = (*Ledger)(nil)
