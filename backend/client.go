// Package backend talks to the storefront backend that verifies crypto payments
// and opens card checkout sessions.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	checkout "github.com/storefront/checkout-go"
	"github.com/storefront/checkout-go/validation"
)

// SessionFailedMessage is shown when a card checkout cannot be started.
const SessionFailedMessage = "Failed to initialize payment. Please try again later."

// Client is a JSON client for the storefront payment endpoints.
type Client struct {
	BaseURL        string
	HTTPClient     *http.Client
	AuthToken      string
	VerifyTimeout  time.Duration // Verification waits on chain lookups, so it gets the longer budget
	SessionTimeout time.Duration
	Logger         *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithAuthToken sends "Authorization: Bearer <token>" on every request.
func WithAuthToken(token string) ClientOption {
	return func(c *Client) { c.AuthToken = token }
}

// WithTimeouts overrides the per-call timeouts.
func WithTimeouts(verify, session time.Duration) ClientOption {
	return func(c *Client) {
		c.VerifyTimeout = verify
		c.SessionTimeout = session
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.Logger = l
		}
	}
}

// NewClient creates a client for the backend at baseURL (e.g., "http://localhost:5000/api").
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		HTTPClient:     &http.Client{},
		VerifyTimeout:  60 * time.Second,
		SessionTimeout: 15 * time.Second,
		Logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VerifyCryptoPayment submits a mined payment for verification. The payment id
// doubles as the Idempotency-Key so a retried request cannot create two orders.
func (c *Client) VerifyCryptoPayment(ctx context.Context, req VerifyRequest) (*checkout.OrderConfirmation, error) {
	if err := validation.Struct(req); err != nil {
		return nil, checkout.Misconfigured("Invalid verification request").WithDetails("cause", err.Error())
	}
	if err := validation.ValidateAmount(req.Amount); err != nil {
		return nil, checkout.Misconfigured("Invalid verification request").WithDetails("cause", err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, c.VerifyTimeout)
	defer cancel()

	var resp VerifyResponse
	status, err := c.post(ctx, VerifyPath, req, map[string]string{"Idempotency-Key": req.PaymentID}, &resp)
	if err != nil {
		return nil, err
	}

	if status >= http.StatusInternalServerError && resp.Message == "" {
		return nil, checkout.NetworkError("Payment verification is unavailable", fmt.Errorf("status %d", status))
	}
	if status/100 != 2 || !resp.Success || resp.OrderID == "" {
		c.Logger.Warn("payment verification rejected",
			zap.Int("status", status),
			zap.String("tx_hash", req.TransactionHash),
			zap.String("message", resp.Message),
		)
		return nil, checkout.VerificationFailed(resp.Message).WithDetails("status", status)
	}

	c.Logger.Info("payment verified", zap.String("order_id", resp.OrderID), zap.String("tx_hash", req.TransactionHash))
	return checkout.NewOrderConfirmation(resp.OrderID), nil
}

// CreateCheckoutSession opens a hosted card checkout session and returns its id.
func (c *Client) CreateCheckoutSession(ctx context.Context, req SessionRequest) (string, error) {
	req.Currency = strings.ToLower(req.Currency)
	if err := validation.Struct(req); err != nil {
		return "", checkout.Misconfigured("Invalid checkout session request").WithDetails("cause", err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, c.SessionTimeout)
	defer cancel()

	var resp SessionResponse
	status, err := c.post(ctx, SessionPath, req, nil, &resp)
	if err != nil {
		return "", err
	}
	if status/100 != 2 || resp.ID == "" {
		return "", checkout.NewCheckoutError(checkout.ErrCodeCheckoutFailed, SessionFailedMessage,
			fmt.Errorf("%w: status %d: %s", checkout.ErrCheckoutUnavailable, status, resp.Message))
	}
	return resp.ID, nil
}

// post sends body as JSON and decodes the response into out when it is JSON.
// Transport failures are reported as network errors; HTTP statuses are returned
// to the caller.
func (c *Client) post(ctx context.Context, path string, body any, headers map[string]string, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return 0, checkout.NetworkError("Unable to reach the payment server", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, checkout.NetworkError("Failed to read payment server response", err)
	}

	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			var syntaxErr *json.SyntaxError
			if resp.StatusCode/100 == 2 || !errors.As(err, &syntaxErr) {
				return resp.StatusCode, checkout.NetworkError("Invalid payment server response", err)
			}
			// Non-JSON error pages leave out empty.
		}
	}
	return resp.StatusCode, nil
}
