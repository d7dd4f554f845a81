package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	checkout "github.com/storefront/checkout-go"
)

const (
	testPaymentID = "0x8c1f6b0e3a2d4f5e6a7b8c9d0e1f2a3b4c5d6e7f8091a2b3c4d5e6f708192a3b"
	testTxHash    = "0x5e4d3c2b1a09f8e7d6c5b4a3928170f6e5d4c3b2a1908f7e6d5c4b3a29180706"
	testWallet    = "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"
)

func validVerifyRequest() VerifyRequest {
	return VerifyRequest{
		Products: []checkout.CartItem{
			{ID: "sku-1", Name: "Mechanical Keyboard", Price: decimal.NewFromInt(100), Quantity: 1},
		},
		PaymentID:       testPaymentID,
		WalletAddress:   testWallet,
		TransactionHash: testTxHash,
		Amount:          decimal.NewFromInt(100),
		Currency:        "USD",
	}
}

func TestVerifyCryptoPayment(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		wantMsg   string
		wantOrder string
	}{
		{
			name:      "verified",
			status:    http.StatusOK,
			body:      `{"success":true,"orderId":"ord-42"}`,
			wantOrder: "ord-42",
		},
		{
			name:    "rejected with message",
			status:  http.StatusOK,
			body:    `{"success":false,"message":"Payment amount mismatch"}`,
			wantErr: checkout.ErrVerificationFailed,
			wantMsg: "Payment amount mismatch",
		},
		{
			name:    "success without order id",
			status:  http.StatusOK,
			body:    `{"success":true}`,
			wantErr: checkout.ErrVerificationFailed,
			wantMsg: "Payment verification failed",
		},
		{
			name:    "client error with message",
			status:  http.StatusBadRequest,
			body:    `{"success":false,"message":"Transaction already used"}`,
			wantErr: checkout.ErrVerificationFailed,
			wantMsg: "Transaction already used",
		},
		{
			name:    "server error without body",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			wantErr: checkout.ErrNetwork,
		},
		{
			name:    "malformed success body",
			status:  http.StatusOK,
			body:    `{"success":`,
			wantErr: checkout.ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL)
			order, err := client.VerifyCryptoPayment(context.Background(), validVerifyRequest())

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if tt.wantMsg != "" && checkout.UserMessage(err) != tt.wantMsg {
					t.Errorf("message = %q, want %q", checkout.UserMessage(err), tt.wantMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if order.OrderID != tt.wantOrder {
				t.Errorf("OrderID = %q, want %q", order.OrderID, tt.wantOrder)
			}
			if order.RedirectURL != "/purchase-success?orderId="+tt.wantOrder {
				t.Errorf("RedirectURL = %q", order.RedirectURL)
			}
		})
	}
}

func TestVerifyCryptoPayment_RequestShape(t *testing.T) {
	var (
		gotPath string
		gotKey  string
		gotAuth string
		gotBody map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true,"orderId":"ord-1"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/api/", WithAuthToken("secret"))
	if _, err := client.VerifyCryptoPayment(context.Background(), validVerifyRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/api"+VerifyPath {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != testPaymentID {
		t.Errorf("Idempotency-Key = %q, want payment id", gotKey)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if v, ok := gotBody["tokenAddress"]; !ok || v != nil {
		t.Errorf("tokenAddress = %v, want explicit null for native payments", v)
	}
	if gotBody["amount"] != "100" {
		t.Errorf("amount = %v, want \"100\"", gotBody["amount"])
	}
	for _, field := range []string{"products", "paymentId", "walletAddress", "transactionHash", "currency"} {
		if _, ok := gotBody[field]; !ok {
			t.Errorf("missing field %q", field)
		}
	}
}

func TestVerifyCryptoPayment_InvalidRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL)

	tests := []struct {
		name   string
		mutate func(*VerifyRequest)
	}{
		{"empty cart", func(r *VerifyRequest) { r.Products = nil }},
		{"bad wallet", func(r *VerifyRequest) { r.WalletAddress = "0x123" }},
		{"bad tx hash", func(r *VerifyRequest) { r.TransactionHash = "abc" }},
		{"zero amount", func(r *VerifyRequest) { r.Amount = decimal.Zero }},
		{"bad token address", func(r *VerifyRequest) { s := "usdt"; r.TokenAddress = &s }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validVerifyRequest()
			tt.mutate(&req)
			_, err := client.VerifyCryptoPayment(context.Background(), req)
			if !errors.Is(err, checkout.ErrMisconfigured) {
				t.Errorf("expected ErrMisconfigured, got %v", err)
			}
		})
	}
	if called {
		t.Error("invalid requests must not reach the server")
	}
}

func TestVerifyCryptoPayment_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url).VerifyCryptoPayment(context.Background(), validVerifyRequest())
	if !errors.Is(err, checkout.ErrNetwork) {
		t.Errorf("expected ErrNetwork, got %v", err)
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	coupon := "SAVE10"
	req := SessionRequest{
		Products:   validVerifyRequest().Products,
		CouponCode: &coupon,
		Currency:   "INR",
	}

	t.Run("returns session id", func(t *testing.T) {
		var got SessionRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != SessionPath {
				t.Errorf("path = %q", r.URL.Path)
			}
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(`{"id":"cs_test_123"}`))
		}))
		defer server.Close()

		id, err := NewClient(server.URL).CreateCheckoutSession(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "cs_test_123" {
			t.Errorf("id = %q", id)
		}
		if got.Currency != "inr" {
			t.Errorf("currency = %q, want lowercase", got.Currency)
		}
		if got.CouponCode == nil || *got.CouponCode != coupon {
			t.Errorf("couponCode = %v", got.CouponCode)
		}
	})

	t.Run("failure surfaces fixed message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"stripe down"}`))
		}))
		defer server.Close()

		_, err := NewClient(server.URL).CreateCheckoutSession(context.Background(), req)
		if !errors.Is(err, checkout.ErrCheckoutUnavailable) {
			t.Fatalf("expected ErrCheckoutUnavailable, got %v", err)
		}
		if checkout.UserMessage(err) != SessionFailedMessage {
			t.Errorf("message = %q", checkout.UserMessage(err))
		}
	})
}
