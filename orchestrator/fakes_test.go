package orchestrator

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	checkout "github.com/storefront/checkout-go"
	"github.com/storefront/checkout-go/backend"
	"github.com/storefront/checkout-go/submit"
)

var (
	shopper  = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	usdtAddr = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
)

type fakeCart struct {
	mu      sync.Mutex
	items   []checkout.CartItem
	total   decimal.Decimal
	coupon  string
	cleared int
}

func newCart(total int64) *fakeCart {
	return &fakeCart{
		items: []checkout.CartItem{{ID: "sku-1", Name: "Headphones", Price: decimal.NewFromInt(total), Quantity: 1}},
		total: decimal.NewFromInt(total),
	}
}

func (c *fakeCart) Items() []checkout.CartItem { return c.items }
func (c *fakeCart) Subtotal() decimal.Decimal  { return c.total }
func (c *fakeCart) Total() decimal.Decimal     { return c.total }
func (c *fakeCart) CouponCode() string         { return c.coupon }

func (c *fakeCart) Clear() {
	c.mu.Lock()
	c.cleared++
	c.mu.Unlock()
}

func (c *fakeCart) clearCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleared
}

type fakeWallet struct {
	accounts []common.Address
	fee      *big.Int
}

func (w *fakeWallet) RequestAccounts(context.Context) ([]common.Address, error) {
	return w.accounts, nil
}

func (w *fakeWallet) GetFeeEstimate(context.Context) (*big.Int, error) {
	return w.fee, nil
}

func (w *fakeWallet) SendTransaction(context.Context, checkout.TxRequest) (*checkout.TxReceipt, error) {
	return &checkout.TxReceipt{}, nil
}

type fakeSubmitter struct {
	mu       sync.Mutex
	requests []submit.Request
	started  chan struct{}
	release  chan struct{}
	err      error
}

func (s *fakeSubmitter) Submit(ctx context.Context, req submit.Request) (*submit.Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	return &submit.Result{
		TxHash:    common.HexToHash("0xabc1"),
		PaymentID: req.PaymentID,
	}, nil
}

func (s *fakeSubmitter) calls() []submit.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]submit.Request(nil), s.requests...)
}

type fakeVerifier struct {
	requests []backend.VerifyRequest
	err      error
}

func (v *fakeVerifier) VerifyCryptoPayment(_ context.Context, req backend.VerifyRequest) (*checkout.OrderConfirmation, error) {
	v.requests = append(v.requests, req)
	if v.err != nil {
		return nil, v.err
	}
	return checkout.NewOrderConfirmation("ord-1"), nil
}

type fakeSessions struct {
	requests []backend.SessionRequest
	err      error
}

func (s *fakeSessions) CreateCheckoutSession(_ context.Context, req backend.SessionRequest) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	return "cs_test_1", nil
}

type fakeHosted struct {
	sessions []string
}

func (h *fakeHosted) RedirectToCheckout(_ context.Context, sessionID string) error {
	h.sessions = append(h.sessions, sessionID)
	return nil
}
