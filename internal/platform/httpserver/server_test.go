package httpserver

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	airdropservice "faucet/contexts/token-distribution/airdrop-service"
	"faucet/contexts/token-distribution/airdrop-service/adapters/memory"
	"faucet/contexts/token-distribution/airdrop-service/adapters/substrate"
	"faucet/contexts/token-distribution/airdrop-service/domain/entities"

	"github.com/vedhavyas/go-subkey/v2"
)

const (
	testToken   = "secret-token"
	testFunding = "funding"
)

var grant = big.NewInt(10_000_000_000_000)

func newTestServer(fundingBalance *big.Int) (*Server, airdropservice.Module) {
	ledger := memory.NewLedger(testFunding, fundingBalance)
	module := airdropservice.NewInMemoryModule(ledger, substrate.SS58Codec{Network: 42}, grant, nil, slog.Default())
	return New(module, testToken, ledger, slog.Default(), ":0"), module
}

func testAddress(seed byte) string {
	publicKey := bytes.Repeat([]byte{seed}, 32)
	return subkey.SS58Encode(publicKey, 42)
}

func airdropRequest(server *Server, recipient string, token string) *httptest.ResponseRecorder {
	query := url.Values{}
	query.Set("to", recipient)
	if token != "" {
		query.Set("token", token)
	}
	req := httptest.NewRequest(http.MethodGet, "/?"+query.Encode(), nil)
	req.RemoteAddr = "203.0.113.7:5555"
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	decoder := json.NewDecoder(bytes.NewReader(rr.Body.Bytes()))
	decoder.UseNumber()
	var body map[string]any
	if err := decoder.Decode(&body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestAirdropOnceThenDuplicated(t *testing.T) {
	server, module := newTestServer(big.NewInt(1_000_000_000_000_000))
	recipient := testAddress(1)

	first := airdropRequest(server, recipient, testToken)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", first.Code, first.Body.String())
	}
	body := decodeBody(t, first)
	if body["success"] != true {
		t.Fatalf("expected success true, got %v", body["success"])
	}
	amount, ok := body["amount"].(json.Number)
	if !ok || amount.String() != grant.String() {
		t.Fatalf("expected numeric amount %s, got %#v", grant, body["amount"])
	}
	if hash, _ := body["txHash"].(string); len(hash) < 3 || hash[:2] != "0x" {
		t.Fatalf("expected 0x tx hash, got %v", body["txHash"])
	}
	balanceAfterFirst := module.Ledger.Balance(recipient)
	if balanceAfterFirst.Cmp(grant) != 0 {
		t.Fatalf("expected recipient balance %s, got %s", grant, balanceAfterFirst)
	}

	for i := 0; i < 3; i++ {
		repeat := airdropRequest(server, recipient, testToken)
		if repeat.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d body=%s", repeat.Code, repeat.Body.String())
		}
		repeatBody := decodeBody(t, repeat)
		if repeatBody["success"] != false || repeatBody["error"] != "DUPLICATED_AIRDROP" {
			t.Fatalf("unexpected duplicate body %v", repeatBody)
		}
	}
	if module.Ledger.Balance(recipient).Cmp(balanceAfterFirst) != 0 {
		t.Fatalf("balance changed after duplicate requests: %s", module.Ledger.Balance(recipient))
	}
	if module.Ledger.Submissions() != 1 {
		t.Fatalf("expected one submission, got %d", module.Ledger.Submissions())
	}
}

func TestAirdropConcurrentSameAddressPaysOnce(t *testing.T) {
	server, module := newTestServer(big.NewInt(1_000_000_000_000_000))
	recipient := testAddress(2)

	const callers = 12
	codes := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = airdropRequest(server, recipient, testToken).Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusBadRequest:
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one success, got %d", ok)
	}
	if module.Ledger.Balance(recipient).Cmp(grant) != 0 {
		t.Fatalf("expected balance %s, got %s", grant, module.Ledger.Balance(recipient))
	}
}

func TestAirdropWrongTokenChangesNothing(t *testing.T) {
	server, module := newTestServer(big.NewInt(1_000_000_000_000_000))
	recipient := testAddress(3)

	for _, token := range []string{"", "nope"} {
		rr := airdropRequest(server, recipient, token)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
		}
		if body := decodeBody(t, rr); body["error"] != "WRONG_AUTH_TOKEN" {
			t.Fatalf("expected WRONG_AUTH_TOKEN, got %v", body["error"])
		}
	}
	if module.Store.Count(entities.DisbursementStatusReserved) != 0 {
		t.Fatalf("expected no reservation")
	}
	if module.Ledger.Submissions() != 0 || module.Ledger.Balance(recipient).Sign() != 0 {
		t.Fatalf("expected no chain interaction")
	}
}

func TestAirdropAcceptsBearerToken(t *testing.T) {
	server, _ := newTestServer(big.NewInt(1_000_000_000_000_000))
	req := httptest.NewRequest(http.MethodGet, "/?to="+url.QueryEscape(testAddress(4)), nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestAirdropRejectsMalformedAddress(t *testing.T) {
	server, module := newTestServer(big.NewInt(1_000_000_000_000_000))
	for _, recipient := range []string{"", "not-an-address", "0x1234"} {
		rr := airdropRequest(server, recipient, testToken)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", recipient, rr.Code)
		}
		if body := decodeBody(t, rr); body["error"] != "INVALID_ADDRESS" {
			t.Fatalf("expected INVALID_ADDRESS, got %v", body["error"])
		}
	}
	if module.Ledger.Submissions() != 0 {
		t.Fatalf("expected no submissions")
	}
}

func TestAirdropFundingExhaustedIsServerError(t *testing.T) {
	server, module := newTestServer(big.NewInt(1))
	recipient := testAddress(5)

	rr := airdropRequest(server, recipient, testToken)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d body=%s", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["success"] != false || body["error"] != "FUNDING_EXHAUSTED" {
		t.Fatalf("unexpected body %v", body)
	}
	if module.Store.Count(entities.DisbursementStatusFailed) != 1 {
		t.Fatalf("expected failed record")
	}
	if module.Ledger.Balance(recipient).Sign() != 0 {
		t.Fatalf("expected no balance change")
	}
}

func TestAirdropChainDisconnectedFailsFast(t *testing.T) {
	server, module := newTestServer(big.NewInt(1_000_000_000_000_000))
	module.Ledger.SetConnected(false)

	rr := airdropRequest(server, testAddress(6), testToken)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "CHAIN_UNAVAILABLE" {
		t.Fatalf("expected CHAIN_UNAVAILABLE, got %v", body["error"])
	}
	if module.Store.Count(entities.DisbursementStatusReserved) != 0 {
		t.Fatalf("expected no reservation left behind")
	}

	health := httptest.NewRecorder()
	server.mux.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if health.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 health, got %d", health.Code)
	}
}

func TestGetDisbursementReportsRecord(t *testing.T) {
	server, _ := newTestServer(big.NewInt(1_000_000_000_000_000))
	recipient := testAddress(7)
	if rr := airdropRequest(server, recipient, testToken); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/airdrops/"+recipient+"?token="+testToken, nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["status"] != "confirmed" || body["recipient"] != recipient {
		t.Fatalf("unexpected record %v", body)
	}
	geo, _ := body["geo"].(map[string]any)
	if geo["ip_address"] != "203.0.113.7" {
		t.Fatalf("expected client ip recorded, got %v", geo["ip_address"])
	}

	missing := httptest.NewRecorder()
	server.mux.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/airdrops/"+testAddress(8)+"?token="+testToken, nil))
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}

	unauthorized := httptest.NewRecorder()
	server.mux.ServeHTTP(unauthorized, httptest.NewRequest(http.MethodGet, "/airdrops/"+recipient, nil))
	if unauthorized.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", unauthorized.Code)
	}
}

func TestHealthReportsConnectedChain(t *testing.T) {
	server, _ := newTestServer(big.NewInt(1))
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["chain"] != "connected" {
		t.Fatalf("expected connected, got %v", body["chain"])
	}
}
