package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	airdropservice "faucet/contexts/token-distribution/airdrop-service"
	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
	airdrophttp "faucet/contexts/token-distribution/airdrop-service/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "faucet/internal/platform/httpserver/docs"
)

// ChainProbe reports whether a live chain connection is available.
type ChainProbe interface {
	Ready() error
}

type Server struct {
	mux       *http.ServeMux
	srv       *http.Server
	logger    *slog.Logger
	addr      string
	authToken string
	chain     ChainProbe
	airdrop   airdropservice.Module
}

func New(
	airdrop airdropservice.Module,
	authToken string,
	chain ChainProbe,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:       http.NewServeMux(),
		logger:    logger,
		addr:      addr,
		authToken: authToken,
		chain:     chain,
		airdrop:   airdrop,
	}
	s.registerRoutes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight disbursements
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
	)
	return s.srv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("GET /{$}", s.requireToken(s.handleDisburse))
	s.mux.HandleFunc("GET /airdrops/{address}", s.requireToken(s.handleGetDisbursement))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

func (s *Server) handleDisburse(w http.ResponseWriter, r *http.Request) {
	recipient := r.URL.Query().Get("to")
	resp, err := s.airdrop.Handler.DisburseHandler(r.Context(), recipient, resolveClientIP(r))
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDisbursement(w http.ResponseWriter, r *http.Request) {
	resp, err := s.airdrop.Handler.GetDisbursementHandler(r.Context(), r.PathValue("address"))
	if err != nil {
		writeAirdropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.chain == nil {
		writeJSON(w, http.StatusServiceUnavailable, airdrophttp.HealthResponse{Status: "degraded", Chain: "unknown"})
		return
	}
	if err := s.chain.Ready(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, airdrophttp.HealthResponse{Status: "degraded", Chain: "disconnected"})
		return
	}
	writeJSON(w, http.StatusOK, airdrophttp.HealthResponse{Status: "ok", Chain: "connected"})
}

// requireToken rejects the request before the handler runs unless it
// carries the configured token as ?token= or a bearer credential.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.tokenMatches(requestToken(r)) {
			s.logger.Warn("request rejected: wrong auth token",
				"event", "http_wrong_auth_token",
				"module", "internal/platform/httpserver",
				"layer", "platform",
				"path", r.URL.Path,
				"ip_address", resolveClientIP(r),
			)
			writeAirdropError(w, http.StatusUnauthorized, "WRONG_AUTH_TOKEN")
			return
		}
		next(w, r)
	}
}

func (s *Server) tokenMatches(provided string) bool {
	if s.authToken == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.authToken)) == 1
}

func requestToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return ""
}

func writeAirdropDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domainerrors.ErrDuplicatedAirdrop):
		writeAirdropError(w, http.StatusBadRequest, "DUPLICATED_AIRDROP")
	case errors.Is(err, domainerrors.ErrInvalidAddress):
		writeAirdropError(w, http.StatusBadRequest, "INVALID_ADDRESS")
	case errors.Is(err, domainerrors.ErrWrongAuthToken):
		writeAirdropError(w, http.StatusUnauthorized, "WRONG_AUTH_TOKEN")
	case errors.Is(err, domainerrors.ErrDisbursementNotFound):
		writeAirdropError(w, http.StatusNotFound, "NOT_FOUND")
	case errors.Is(err, domainerrors.ErrNotReopenable),
		errors.Is(err, domainerrors.ErrAlreadyTerminal):
		writeAirdropError(w, http.StatusConflict, "CONFLICT")
	case errors.Is(err, domainerrors.ErrFundingExhausted):
		writeAirdropError(w, http.StatusInternalServerError, "FUNDING_EXHAUSTED")
	case errors.Is(err, domainerrors.ErrChainUnavailable),
		errors.Is(err, domainerrors.ErrIdentityNotLoaded):
		writeAirdropError(w, http.StatusInternalServerError, "CHAIN_UNAVAILABLE")
	case errors.Is(err, domainerrors.ErrStoreUnavailable):
		writeAirdropError(w, http.StatusInternalServerError, "STORE_UNAVAILABLE")
	case errors.Is(err, domainerrors.ErrTransferFailed),
		errors.Is(err, domainerrors.ErrTransactionDropped),
		errors.Is(err, domainerrors.ErrFinalityTimeout),
		errors.Is(err, domainerrors.ErrSubmissionRejected),
		errors.Is(err, domainerrors.ErrSigningFailed):
		writeAirdropError(w, http.StatusInternalServerError, "TRANSFER_FAILED")
	default:
		writeAirdropError(w, http.StatusInternalServerError, "INTERNAL_ERROR")
	}
}

func writeAirdropError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, airdrophttp.ErrorResponse{
		Success: false,
		Error:   code,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// resolveClientIP prefers the first X-Forwarded-For hop, falling back to the
// socket peer without its port.
func resolveClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
