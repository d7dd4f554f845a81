// Package server is the storefront payment backend: it verifies crypto payments
// on chain and opens card checkout sessions.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	checkout "github.com/storefront/checkout-go"
	"github.com/storefront/checkout-go/backend"
	"github.com/storefront/checkout-go/metrics"
	"github.com/storefront/checkout-go/validation"
)

const maxBodyBytes = 1 << 20

// Handlers serves the payment endpoints.
type Handlers struct {
	verifier PaymentVerifier
	sessions SessionGateway
	logger   *zap.Logger
	metrics  metrics.Recorder
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) HandlerOption {
	return func(h *Handlers) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) HandlerOption {
	return func(h *Handlers) {
		if r != nil {
			h.metrics = r
		}
	}
}

// NewHandlers creates the payment handlers. A nil sessions gateway falls back to LocalGateway.
func NewHandlers(verifier PaymentVerifier, sessions SessionGateway, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		verifier: verifier,
		sessions: sessions,
		logger:   zap.NewNop(),
		metrics:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.sessions == nil {
		h.sessions = LocalGateway{Logger: h.logger}
	}
	return h
}

// VerifyCryptoPayment handles POST /payments/verify-crypto-payment.
func (h *Handlers) VerifyCryptoPayment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := metrics.OutcomeFailure
	defer func() {
		labels := map[string]string{"method": string(checkout.PaymentMethodCrypto), "outcome": outcome}
		h.metrics.IncCounter(metrics.EventVerify, labels)
		h.metrics.ObserveLatency(metrics.EventVerify, time.Since(start), labels)
	}()

	var req backend.VerifyRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, backend.VerifyResponse{Message: "Invalid request body"})
		return
	}
	if err := validation.Struct(req); err != nil {
		h.logger.Warn("invalid verification request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, backend.VerifyResponse{Message: "Invalid verification request"})
		return
	}
	if err := validation.ValidateAmount(req.Amount); err != nil {
		writeJSON(w, http.StatusBadRequest, backend.VerifyResponse{Message: "Invalid payment amount"})
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" && !strings.EqualFold(key, req.PaymentID) {
		writeJSON(w, http.StatusBadRequest, backend.VerifyResponse{Message: "Idempotency key does not match payment"})
		return
	}

	order, err := h.verifier.Verify(r.Context(), req)
	if err != nil {
		var rej *RejectError
		if errors.As(err, &rej) {
			h.logger.Info("payment rejected",
				zap.String("tx_hash", req.TransactionHash),
				zap.String("reason", rej.Reason),
			)
			writeJSON(w, http.StatusBadRequest, backend.VerifyResponse{Message: rej.Reason})
			return
		}
		h.logger.Error("payment verification error", zap.String("tx_hash", req.TransactionHash), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, backend.VerifyResponse{})
		return
	}

	outcome = metrics.OutcomeSuccess
	writeJSON(w, http.StatusOK, backend.VerifyResponse{Success: true, OrderID: order.ID})
}

// CreateCheckoutSession handles POST /payments/create-checkout-session.
func (h *Handlers) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req backend.SessionRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, backend.SessionResponse{Message: "Invalid request body"})
		return
	}
	req.Currency = strings.ToLower(req.Currency)
	if err := validation.Struct(req); err != nil {
		h.logger.Warn("invalid checkout session request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, backend.SessionResponse{Message: "Invalid checkout session request"})
		return
	}

	id, err := h.sessions.CreateSession(r.Context(), req)
	if err != nil {
		h.logger.Error("checkout session failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, backend.SessionResponse{Message: "Failed to create checkout session"})
		return
	}
	writeJSON(w, http.StatusOK, backend.SessionResponse{ID: id})
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
