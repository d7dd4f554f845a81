package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	checkout "github.com/storefront/checkout-go"
	"github.com/storefront/checkout-go/fees"
	"github.com/storefront/checkout-go/wallet"
)

type harness struct {
	o         *Orchestrator
	cart      *fakeCart
	submitter *fakeSubmitter
	verifier  *fakeVerifier
	sessions  *fakeSessions
	hosted    *fakeHosted
}

func newHarness(t *testing.T, w checkout.Wallet) *harness {
	t.Helper()

	h := &harness{
		cart:      newCart(100),
		submitter: &fakeSubmitter{},
		verifier:  &fakeVerifier{},
		sessions:  &fakeSessions{},
		hosted:    &fakeHosted{},
	}
	connector := wallet.NewConnector(w, nil)

	var estimator *fees.Estimator
	if w != nil {
		estimator = fees.NewEstimator(w)
	}

	o, err := New(Config{
		Cart:      h.cart,
		Tokens:    checkout.DefaultTokens(usdtAddr),
		Connector: connector,
		Fees:      estimator,
		Submitter: h.submitter,
		Verifier:  h.verifier,
		Sessions:  h.sessions,
		Hosted:    h.hosted,
	}, WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.o = o
	return h
}

func connectedWallet() *fakeWallet {
	return &fakeWallet{accounts: []common.Address{shopper}, fee: big.NewInt(30_000_000_000)}
}

func TestNew_Defaults(t *testing.T) {
	h := newHarness(t, nil)
	s := h.o.State()

	if s.Method != checkout.PaymentMethodCard {
		t.Errorf("Method = %s, want card", s.Method)
	}
	if s.Token != "ETH" || s.FeeTier != checkout.FeeTierMedium || s.Currency != "USD" {
		t.Errorf("unexpected defaults: %+v", s)
	}
	if h.o.ID() == "" {
		t.Error("ID() should not be empty")
	}
	if _, err := New(Config{}); err == nil {
		t.Error("New() without a cart should fail")
	}
}

func TestConnectWallet_RefreshesFees(t *testing.T) {
	h := newHarness(t, connectedWallet())

	if !h.o.FeeTiers().Empty() {
		t.Fatal("fee tiers should be empty before connecting")
	}

	addr, err := h.o.ConnectWallet(context.Background())
	if err != nil {
		t.Fatalf("ConnectWallet() error = %v", err)
	}
	if addr != shopper {
		t.Errorf("address = %s", addr.Hex())
	}
	if w := h.o.State().Wallet; w == nil || *w != shopper {
		t.Errorf("state wallet = %v", w)
	}

	tiers := h.o.FeeTiers()
	if tiers.Medium == nil || !tiers.Medium.Fee.Equal(decimal.NewFromInt(30)) {
		t.Errorf("medium tier = %+v, want 30 gwei", tiers.Medium)
	}
}

func TestConnectWallet_NoProvider(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.o.ConnectWallet(context.Background())
	if !errors.Is(err, checkout.ErrCapabilityMissing) {
		t.Fatalf("expected ErrCapabilityMissing, got %v", err)
	}
	if got := h.o.State().LastError; got != "Please install a wallet to make crypto payments" {
		t.Errorf("LastError = %q", got)
	}
}

func TestSelections(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if err := h.o.SelectToken(ctx, "usdt"); err != nil {
		t.Fatalf("SelectToken() error = %v", err)
	}
	s := h.o.State()
	if s.Token != "USDT" || !s.TokenAmount.Equal(decimal.NewFromInt(80)) {
		t.Errorf("token = %s amount = %s, want USDT 80", s.Token, s.TokenAmount)
	}

	if err := h.o.SelectToken(ctx, "DOGE"); !errors.Is(err, checkout.ErrUnknownToken) {
		t.Errorf("SelectToken(DOGE) = %v, want ErrUnknownToken", err)
	}
	if err := h.o.SelectFeeTier("turbo"); !errors.Is(err, checkout.ErrUnknownFeeTier) {
		t.Errorf("SelectFeeTier(turbo) = %v", err)
	}
	if err := h.o.SelectMethod("paypal"); err == nil {
		t.Error("SelectMethod(paypal) should fail")
	}

	if err := h.o.SelectCurrency("inr"); err != nil {
		t.Fatalf("SelectCurrency() error = %v", err)
	}
	if got := h.o.DisplayTotal(); got != "₹8324.00" {
		t.Errorf("DisplayTotal() = %q", got)
	}
}

func TestCanSubmit(t *testing.T) {
	h := newHarness(t, connectedWallet())

	if !h.o.CanSubmit() {
		t.Error("card checkout should be submittable")
	}
	_ = h.o.SelectMethod(checkout.PaymentMethodCrypto)
	if h.o.CanSubmit() {
		t.Error("crypto without a wallet should not be submittable")
	}
	if _, err := h.o.ConnectWallet(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !h.o.CanSubmit() {
		t.Error("crypto with a wallet should be submittable")
	}

	noProvider := newHarness(t, nil)
	_ = noProvider.o.SelectMethod(checkout.PaymentMethodCrypto)
	if noProvider.o.CanSubmit() {
		t.Error("crypto without a wallet provider should not be submittable")
	}
}

func TestSubmit_Card(t *testing.T) {
	h := newHarness(t, nil)
	h.cart.coupon = "SAVE10"
	_ = h.o.SelectCurrency("INR")

	conf, err := h.o.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if conf != nil {
		t.Errorf("card checkout should not return a confirmation")
	}
	if len(h.hosted.sessions) != 1 || h.hosted.sessions[0] != "cs_test_1" {
		t.Errorf("redirects = %v", h.hosted.sessions)
	}
	req := h.sessions.requests[0]
	if req.CouponCode == nil || *req.CouponCode != "SAVE10" || req.Currency != "INR" {
		t.Errorf("session request = %+v", req)
	}
	if h.cart.clearCount() != 0 {
		t.Error("card hand-off must not clear the cart")
	}
}

func TestSubmit_CardFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.sessions.err = checkout.NetworkError("boom", errors.New("refused"))

	_, err := h.o.Submit(context.Background())
	if !errors.Is(err, checkout.ErrNetwork) {
		t.Fatalf("expected wrapped network error, got %v", err)
	}
	s := h.o.State()
	if s.LastError != "Failed to initialize payment. Please try again later." {
		t.Errorf("LastError = %q", s.LastError)
	}
	if s.InFlight {
		t.Error("in-flight flag should be cleared")
	}
	if len(h.hosted.sessions) != 0 {
		t.Error("no redirect expected")
	}
}

func TestSubmit_Crypto(t *testing.T) {
	h := newHarness(t, connectedWallet())
	ctx := context.Background()

	if _, err := h.o.ConnectWallet(ctx); err != nil {
		t.Fatal(err)
	}
	_ = h.o.SelectMethod(checkout.PaymentMethodCrypto)
	_ = h.o.SelectFeeTier("fast")
	if err := h.o.SelectToken(ctx, "USDT"); err != nil {
		t.Fatal(err)
	}

	conf, err := h.o.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if conf.OrderID != "ord-1" {
		t.Errorf("OrderID = %q", conf.OrderID)
	}

	sub := h.submitter.calls()[0]
	wantID := checkout.NewPaymentID(time.UnixMilli(1700000000000), shopper)
	if sub.PaymentID != wantID {
		t.Errorf("payment id = %s, want %s", sub.PaymentID.Hex(), wantID.Hex())
	}
	if !sub.Amount.Equal(decimal.NewFromInt(80)) {
		t.Errorf("amount = %s, want 80", sub.Amount)
	}
	if sub.GasPrice == nil || sub.GasPrice.String() != "45000000000" {
		t.Errorf("gas price = %v, want 45 gwei", sub.GasPrice)
	}

	ver := h.verifier.requests[0]
	if ver.TokenAddress == nil || *ver.TokenAddress != usdtAddr.Hex() {
		t.Errorf("token address = %v", ver.TokenAddress)
	}
	if ver.PaymentID != wantID.Hex() || !ver.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("verify request = %+v", ver)
	}
	if h.cart.clearCount() != 1 {
		t.Errorf("cart cleared %d times, want 1", h.cart.clearCount())
	}
}

func TestSubmit_CryptoFailuresKeepCart(t *testing.T) {
	tests := []struct {
		name      string
		subErr    error
		verifyErr error
		wantErr   error
		wantMsg   string
	}{
		{
			name:    "wallet rejected",
			subErr:  checkout.UserRejected("Transaction rejected in wallet"),
			wantErr: checkout.ErrUserRejected,
			wantMsg: "Transaction rejected in wallet",
		},
		{
			name:      "verification rejected",
			verifyErr: checkout.VerificationFailed("Payment amount mismatch"),
			wantErr:   checkout.ErrVerificationFailed,
			wantMsg:   "Payment amount mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, connectedWallet())
			h.submitter.err = tt.subErr
			h.verifier.err = tt.verifyErr
			ctx := context.Background()
			if _, err := h.o.ConnectWallet(ctx); err != nil {
				t.Fatal(err)
			}
			_ = h.o.SelectMethod(checkout.PaymentMethodCrypto)

			_, err := h.o.Submit(ctx)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if h.o.State().LastError != tt.wantMsg {
				t.Errorf("LastError = %q, want %q", h.o.State().LastError, tt.wantMsg)
			}
			if h.cart.clearCount() != 0 {
				t.Error("cart must only be cleared after verification")
			}
			if tt.subErr != nil && len(h.verifier.requests) != 0 {
				t.Error("verification must not run after a failed submission")
			}
		})
	}
}

func TestSubmit_CryptoWithoutWallet(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.o.SelectMethod(checkout.PaymentMethodCrypto)

	_, err := h.o.Submit(context.Background())
	if !errors.Is(err, checkout.ErrWalletNotConnected) {
		t.Fatalf("expected ErrWalletNotConnected, got %v", err)
	}
	if !errors.Is(err, checkout.ErrMisconfigured) {
		t.Errorf("expected ErrMisconfigured, got %v", err)
	}
	if len(h.submitter.calls()) != 0 {
		t.Error("submitter should not be called")
	}
}

func TestSubmit_RejectsConcurrentCall(t *testing.T) {
	h := newHarness(t, connectedWallet())
	h.submitter.started = make(chan struct{}, 1)
	h.submitter.release = make(chan struct{})
	ctx := context.Background()
	if _, err := h.o.ConnectWallet(ctx); err != nil {
		t.Fatal(err)
	}
	_ = h.o.SelectMethod(checkout.PaymentMethodCrypto)

	done := make(chan error, 1)
	go func() {
		_, err := h.o.Submit(ctx)
		done <- err
	}()
	<-h.submitter.started

	if h.o.CanSubmit() {
		t.Error("CanSubmit() should be false while in flight")
	}
	if _, err := h.o.Submit(ctx); !errors.Is(err, checkout.ErrSubmitInFlight) {
		t.Errorf("second Submit() = %v, want ErrSubmitInFlight", err)
	}

	close(h.submitter.release)
	if err := <-done; err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if n := len(h.submitter.calls()); n != 1 {
		t.Errorf("submitter called %d times, want 1", n)
	}
	if h.o.State().InFlight {
		t.Error("in-flight flag should be cleared")
	}
}
