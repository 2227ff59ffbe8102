package substrate

import (
	"errors"
	"testing"

	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
	"faucet/contexts/token-distribution/airdrop-service/ports"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/vedhavyas/go-subkey/v2"
)

type nodeError struct {
	code    int
	message string
}

func (e nodeError) Error() string  { return e.message }
func (e nodeError) ErrorCode() int { return e.code }

func TestClassifyPoolErrorDetectsFundingExhaustion(t *testing.T) {
	err := classifyPoolError(nodeError{code: 1010, message: "Invalid Transaction: Inability to pay some fees , e.g. account balance too low"})
	if !errors.Is(err, domainerrors.ErrFundingExhausted) {
		t.Fatalf("expected funding exhausted, got %v", err)
	}
}

func TestClassifyPoolErrorNodeAnswersAreRejections(t *testing.T) {
	for _, rejection := range []nodeError{
		{code: 1014, message: "Priority is too low: (100 vs 100)"},
		{code: 1010, message: "Invalid Transaction: Transaction is outdated"},
	} {
		err := classifyPoolError(rejection)
		if !errors.Is(err, domainerrors.ErrSubmissionRejected) {
			t.Fatalf("expected submission rejected for %q, got %v", rejection.message, err)
		}
	}
}

func TestClassifyPoolErrorTransportFailureIsUnknownOutcome(t *testing.T) {
	for _, message := range []string{
		"websocket: close 1006 (abnormal closure)",
		"Inability to pay some fees",
	} {
		err := classifyPoolError(errors.New(message))
		if !errors.Is(err, domainerrors.ErrTransactionDropped) {
			t.Fatalf("expected unknown outcome for %q, got %v", message, err)
		}
		if errors.Is(err, domainerrors.ErrSubmissionRejected) || errors.Is(err, domainerrors.ErrFundingExhausted) {
			t.Fatalf("transport failure must not read as a refusal: %v", err)
		}
		if errors.Is(err, domainerrors.ErrChainUnavailable) {
			t.Fatalf("post-send failure must not look like a local connection error: %v", err)
		}
	}
}

func TestToTxStatusMapsTerminalStates(t *testing.T) {
	var blockHash types.Hash
	blockHash[0] = 0xab

	finalized, ok := toTxStatus(types.ExtrinsicStatus{IsFinalized: true, AsFinalized: blockHash})
	if !ok || finalized.Kind != ports.TxStatusFinalized {
		t.Fatalf("unexpected finalized mapping %+v", finalized)
	}
	if finalized.BlockHash[:4] != "0xab" {
		t.Fatalf("expected hex block hash, got %s", finalized.BlockHash)
	}

	dropped, ok := toTxStatus(types.ExtrinsicStatus{IsDropped: true})
	if !ok || !dropped.Kind.Abandoned() {
		t.Fatalf("expected dropped to be abandoned, got %+v", dropped)
	}
	if _, ok := toTxStatus(types.ExtrinsicStatus{}); ok {
		t.Fatal("expected empty status to be ignored")
	}
}

func TestSS58CodecRoundTripsAndChecksNetwork(t *testing.T) {
	publicKey := make([]byte, 32)
	for i := range publicKey {
		publicKey[i] = byte(i + 1)
	}
	encoded := subkey.SS58Encode(publicKey, 42)

	address, err := SS58Codec{Network: 42}.Parse("  " + encoded + " ")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if address.String() != encoded || address.Network != 42 {
		t.Fatalf("unexpected address %+v", address)
	}

	if _, err := (SS58Codec{Network: 0}).Parse(encoded); !errors.Is(err, domainerrors.ErrInvalidAddress) {
		t.Fatalf("expected network mismatch to be invalid, got %v", err)
	}
	if _, err := (SS58Codec{Network: -1}).Parse(encoded); err != nil {
		t.Fatalf("expected any-network codec to accept, got %v", err)
	}
}

func TestSS58CodecAnyNetworkKeysByAccountID(t *testing.T) {
	publicKey := make([]byte, 32)
	for i := range publicKey {
		publicKey[i] = byte(200 - i)
	}
	codec := SS58Codec{Network: -1}

	polkadot, err := codec.Parse(subkey.SS58Encode(publicKey, 0))
	if err != nil {
		t.Fatalf("parse prefix 0: %v", err)
	}
	kusama, err := codec.Parse(subkey.SS58Encode(publicKey, 2))
	if err != nil {
		t.Fatalf("parse prefix 2: %v", err)
	}
	if polkadot.String() != kusama.String() {
		t.Fatalf("expected one record key per account id, got %s and %s", polkadot.String(), kusama.String())
	}
	if polkadot.String() != subkey.SS58Encode(publicKey, 42) {
		t.Fatalf("expected generic prefix encoding, got %s", polkadot.String())
	}
}

func TestSS58CodecRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not-an-address", "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQZ"} {
		if _, err := (SS58Codec{Network: -1}).Parse(raw); !errors.Is(err, domainerrors.ErrInvalidAddress) {
			t.Fatalf("expected invalid address for %q, got %v", raw, err)
		}
	}
}
