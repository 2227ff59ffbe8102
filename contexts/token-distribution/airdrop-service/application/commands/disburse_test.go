package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"faucet/contexts/token-distribution/airdrop-service/adapters/memory"
	"faucet/contexts/token-distribution/airdrop-service/adapters/substrate"
	"faucet/contexts/token-distribution/airdrop-service/application/transfer"
	"faucet/contexts/token-distribution/airdrop-service/domain/entities"
	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
	"faucet/contexts/token-distribution/airdrop-service/domain/services"
	"faucet/contexts/token-distribution/airdrop-service/ports"

	"github.com/vedhavyas/go-subkey/v2"
	"golang.org/x/sync/errgroup"
)

const fundingAccount = "funding"

type gateHarness struct {
	store  *memory.Store
	ledger *memory.Ledger
	gate   DisburseUseCase
}

func newGateHarness(balance int64) gateHarness {
	store := memory.NewStore()
	ledger := memory.NewLedger(fundingAccount, big.NewInt(balance))
	nonces := services.NewNonceSequencer()
	return gateHarness{
		store:  store,
		ledger: ledger,
		gate: DisburseUseCase{
			Repository:  store,
			Addresses:   substrate.SS58Codec{Network: 42},
			Chain:       ledger,
			Submitter:   transfer.Submitter{Chain: ledger, Nonces: nonces},
			Listener:    transfer.Listener{Chain: ledger, Nonces: nonces, Timeout: time.Second},
			Clock:       store,
			IDGenerator: store,
			Amount:      big.NewInt(100),
		},
	}
}

func testAddress(seed int) string {
	publicKey := make([]byte, 32)
	publicKey[0] = byte(seed)
	publicKey[1] = byte(seed >> 8)
	publicKey[31] = 0x5a
	return subkey.SS58Encode(publicKey, 42)
}

func TestDisburseConfirmsOnceThenRejectsDuplicate(t *testing.T) {
	h := newGateHarness(1_000)
	recipient := testAddress(1)

	result, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient, IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("first disbursement failed: %v", err)
	}
	if result.TxHash == "" || result.BlockHash == "" {
		t.Fatalf("expected tx and block hash, got %+v", result)
	}
	if result.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected amount 100, got %s", result.Amount)
	}
	if h.ledger.Balance(recipient).Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected recipient balance 100, got %s", h.ledger.Balance(recipient))
	}

	record, err := h.store.Lookup(context.Background(), recipient)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if record.Status != entities.DisbursementStatusConfirmed || record.TxHash != result.TxHash {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.Metadata.IPAddress != "10.0.0.1" {
		t.Fatalf("expected request ip on record, got %q", record.Metadata.IPAddress)
	}

	_, err = h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient})
	if !errors.Is(err, domainerrors.ErrDuplicatedAirdrop) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if h.ledger.Submissions() != 1 {
		t.Fatalf("expected 1 chain submission, got %d", h.ledger.Submissions())
	}
	if h.ledger.Releases() != 1 {
		t.Fatalf("expected handle released once, got %d", h.ledger.Releases())
	}
}

func TestConcurrentRequestsForSameAddressPayOnce(t *testing.T) {
	h := newGateHarness(1_000_000)
	recipient := testAddress(2)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dups      int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domainerrors.ErrDuplicatedAirdrop):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || dups != 19 {
		t.Fatalf("expected 1 success and 19 duplicates, got %d and %d", successes, dups)
	}
	if h.ledger.Submissions() != 1 {
		t.Fatalf("expected exactly one chain submission, got %d", h.ledger.Submissions())
	}
	if h.ledger.Balance(recipient).Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected a single payment, got balance %s", h.ledger.Balance(recipient))
	}
}

func TestConcurrentDistinctAddressesGetDistinctNonces(t *testing.T) {
	const n = 25
	h := newGateHarness(1_000_000)

	results := make([]DisburseResult, n)
	var group errgroup.Group
	for i := 0; i < n; i++ {
		group.Go(func() error {
			result, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: testAddress(100 + i)})
			if err != nil {
				return fmt.Errorf("address %d: %w", i, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatalf("concurrent disbursement failed: %v", err)
	}

	hashes := make(map[string]struct{}, n)
	nonces := make(map[uint64]struct{}, n)
	for i, result := range results {
		hashes[result.TxHash] = struct{}{}
		record, err := h.store.Lookup(context.Background(), result.Recipient)
		if err != nil {
			t.Fatalf("lookup %d failed: %v", i, err)
		}
		if record.Nonce == nil {
			t.Fatalf("expected nonce recorded for %s", result.Recipient)
		}
		nonces[*record.Nonce] = struct{}{}
	}
	if len(hashes) != n || len(nonces) != n {
		t.Fatalf("expected %d distinct hashes and nonces, got %d and %d", n, len(hashes), len(nonces))
	}
	if h.ledger.AccountNonce() != n {
		t.Fatalf("expected account nonce %d, got %d", n, h.ledger.AccountNonce())
	}
	if h.ledger.NonceReads() != 1 {
		t.Fatalf("expected the sequence to be seeded once, got %d reads", h.ledger.NonceReads())
	}
}

func TestFundingExhaustedCommitsFailedRecord(t *testing.T) {
	h := newGateHarness(50)
	recipient := testAddress(3)

	_, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient})
	if !errors.Is(err, domainerrors.ErrFundingExhausted) {
		t.Fatalf("expected funding exhausted, got %v", err)
	}
	record, err := h.store.Lookup(context.Background(), recipient)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if record.Status != entities.DisbursementStatusFailed || record.FailureReason != "funding_exhausted" {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.TxHash == "" {
		t.Fatal("expected failed record to keep the finalized tx hash")
	}
	if h.ledger.Releases() != 1 {
		t.Fatalf("expected handle released, got %d", h.ledger.Releases())
	}

	_, err = h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient})
	if !errors.Is(err, domainerrors.ErrDuplicatedAirdrop) {
		t.Fatalf("expected failed record to block a retry, got %v", err)
	}
}

func TestChainNotReadyMakesNoReservation(t *testing.T) {
	h := newGateHarness(1_000)
	h.ledger.SetConnected(false)
	recipient := testAddress(4)

	_, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient})
	if !errors.Is(err, domainerrors.ErrChainUnavailable) {
		t.Fatalf("expected chain unavailable, got %v", err)
	}
	if _, err := h.store.Lookup(context.Background(), recipient); !errors.Is(err, domainerrors.ErrDisbursementNotFound) {
		t.Fatalf("expected no reservation, got %v", err)
	}

	h.ledger.SetConnected(true)
	if _, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient}); err != nil {
		t.Fatalf("expected retry after reconnect to succeed, got %v", err)
	}
}

func TestInvalidAddressRejectedBeforeReservation(t *testing.T) {
	h := newGateHarness(1_000)
	_, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: "definitely-not-ss58"})
	if !errors.Is(err, domainerrors.ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
	if h.store.Count(entities.DisbursementStatusReserved) != 0 {
		t.Fatal("expected no reservation for an invalid address")
	}
}

func TestStoreUnavailableNeverTouchesChain(t *testing.T) {
	h := newGateHarness(1_000)
	h.store.SetUnavailable(true)

	_, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: testAddress(5)})
	if !errors.Is(err, domainerrors.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if h.ledger.Submissions() != 0 {
		t.Fatalf("expected no submission, got %d", h.ledger.Submissions())
	}
}

func TestDroppedTransferFailsAndResyncsNonce(t *testing.T) {
	h := newGateHarness(1_000)
	h.ledger.SetTerminal("dropped")

	dropped := testAddress(6)
	_, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: dropped})
	if !errors.Is(err, domainerrors.ErrTransactionDropped) {
		t.Fatalf("expected transaction dropped, got %v", err)
	}
	record, _ := h.store.Lookup(context.Background(), dropped)
	if record.Status != entities.DisbursementStatusFailed || record.FailureReason != "transaction_dropped" {
		t.Fatalf("unexpected record %+v", record)
	}

	h.ledger.SetTerminal("finalized")
	if _, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: testAddress(7)}); err != nil {
		t.Fatalf("expected next disbursement to reuse the unused nonce, got %v", err)
	}
	if h.ledger.NonceReads() != 2 {
		t.Fatalf("expected a resync after the drop, got %d reads", h.ledger.NonceReads())
	}
}

func TestFinalityTimeoutFailsRecordAndReleasesHandle(t *testing.T) {
	h := newGateHarness(1_000)
	h.ledger.SetStall(true)
	listener := h.gate.Listener.(transfer.Listener)
	listener.Timeout = 30 * time.Millisecond
	h.gate.Listener = listener

	recipient := testAddress(8)
	_, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient})
	if !errors.Is(err, domainerrors.ErrFinalityTimeout) {
		t.Fatalf("expected finality timeout, got %v", err)
	}
	record, _ := h.store.Lookup(context.Background(), recipient)
	if record.Status != entities.DisbursementStatusFailed || record.FailureReason != "finality_timeout" {
		t.Fatalf("unexpected record %+v", record)
	}
	if h.ledger.Releases() != 1 {
		t.Fatalf("expected handle released after timeout, got %d", h.ledger.Releases())
	}
}

func TestSubmitErrorBeforeSendReleasesReservation(t *testing.T) {
	h := newGateHarness(1_000)
	h.ledger.FailNextSubmit(fmt.Errorf("%w: keystore locked", domainerrors.ErrSigningFailed))
	recipient := testAddress(9)

	_, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient})
	if !errors.Is(err, domainerrors.ErrSigningFailed) {
		t.Fatalf("expected signing failure, got %v", err)
	}
	if _, err := h.store.Lookup(context.Background(), recipient); !errors.Is(err, domainerrors.ErrDisbursementNotFound) {
		t.Fatalf("expected reservation released, got %v", err)
	}
	if _, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestRejectedSubmissionCommitsFailed(t *testing.T) {
	h := newGateHarness(1_000)
	h.ledger.FailNextSubmit(fmt.Errorf("%w: priority is too low", domainerrors.ErrSubmissionRejected))
	recipient := testAddress(10)

	_, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient})
	if !errors.Is(err, domainerrors.ErrSubmissionRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	record, _ := h.store.Lookup(context.Background(), recipient)
	if record.Status != entities.DisbursementStatusFailed || record.FailureReason != "submission_rejected" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestReclaimFailedAllowsSecondAttempt(t *testing.T) {
	h := newGateHarness(1_000)
	h.gate.ReclaimFailed = true
	h.ledger.FailNextSubmit(fmt.Errorf("%w: priority is too low", domainerrors.ErrSubmissionRejected))
	recipient := testAddress(11)

	if _, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient}); err == nil {
		t.Fatal("expected first attempt to fail")
	}
	if _, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient}); err != nil {
		t.Fatalf("expected reclaimed attempt to succeed, got %v", err)
	}
	if _, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient}); !errors.Is(err, domainerrors.ErrDuplicatedAirdrop) {
		t.Fatalf("expected confirmed record to block, got %v", err)
	}
}

func TestReclaimNeverRetriesTimedOutTransfer(t *testing.T) {
	h := newGateHarness(1_000)
	h.gate.ReclaimFailed = true
	// The transfer executes on submit but finality arrives after the
	// listener has given up.
	h.ledger.SetStepDelay(40 * time.Millisecond)
	listener := h.gate.Listener.(transfer.Listener)
	listener.Timeout = 50 * time.Millisecond
	h.gate.Listener = listener

	recipient := testAddress(13)
	if _, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient}); !errors.Is(err, domainerrors.ErrFinalityTimeout) {
		t.Fatalf("expected finality timeout, got %v", err)
	}
	if got := h.ledger.Balance(recipient); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected the first transfer to have executed, balance %s", got)
	}

	h.ledger.SetStepDelay(0)
	_, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient})
	if !errors.Is(err, domainerrors.ErrDuplicatedAirdrop) {
		t.Fatalf("expected timed out record to block retries, got %v", err)
	}
	if got := h.ledger.Balance(recipient); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected recipient paid once, balance %s", got)
	}
	if h.ledger.Submissions() != 1 {
		t.Fatalf("expected one submission, got %d", h.ledger.Submissions())
	}
}

func TestReclaimNeverRetriesDroppedTransfer(t *testing.T) {
	h := newGateHarness(1_000)
	h.gate.ReclaimFailed = true
	h.ledger.SetTerminal(ports.TxStatusDropped)

	recipient := testAddress(14)
	if _, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient}); !errors.Is(err, domainerrors.ErrTransactionDropped) {
		t.Fatalf("expected dropped transfer, got %v", err)
	}
	h.ledger.SetTerminal(ports.TxStatusFinalized)
	if _, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient}); !errors.Is(err, domainerrors.ErrDuplicatedAirdrop) {
		t.Fatalf("expected dropped record to block retries, got %v", err)
	}
}

type failingIDs struct{}

func (failingIDs) NewID(context.Context) (string, error) {
	return "", errors.New("entropy source unavailable")
}

func TestConfirmedTransferWithoutEventIDIsLogged(t *testing.T) {
	h := newGateHarness(1_000)
	var logs bytes.Buffer
	h.gate.Logger = slog.New(slog.NewJSONHandler(&logs, nil))
	h.gate.IDGenerator = failingIDs{}

	recipient := testAddress(15)
	if _, err := h.gate.Execute(context.Background(), DisburseCommand{Recipient: recipient}); err == nil {
		t.Fatal("expected commit to fail without an event id")
	}
	if !strings.Contains(logs.String(), `"event":"airdrop_commit_confirmed_failed"`) {
		t.Fatalf("expected confirmed commit failure to be logged, got %s", logs.String())
	}
	record, _ := h.store.Lookup(context.Background(), recipient)
	if record.Status != entities.DisbursementStatusSubmitted || record.TxHash == "" {
		t.Fatalf("expected paid record left submitted with its hash, got %+v", record)
	}
	if got := h.ledger.Balance(recipient); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected transfer executed, balance %s", got)
	}
}

func TestCancelledClientStillCompletesFlow(t *testing.T) {
	h := newGateHarness(1_000)
	h.ledger.SetStepDelay(5 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recipient := testAddress(12)
	if _, err := h.gate.Execute(ctx, DisburseCommand{Recipient: recipient}); err != nil {
		t.Fatalf("expected detached flow to finish, got %v", err)
	}
	record, _ := h.store.Lookup(context.Background(), recipient)
	if record.Status != entities.DisbursementStatusConfirmed {
		t.Fatalf("expected confirmed record, got %s", record.Status)
	}
}
