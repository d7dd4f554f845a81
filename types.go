package checkout

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PaymentToken describes an asset the shopper can pay with.
type PaymentToken struct {
	// Symbol is the ticker shown to the shopper (e.g., "ETH", "USDT").
	Symbol string

	// Name is the display name of the asset.
	Name string

	// Native marks the chain's own asset, paid as transaction value.
	Native bool

	// Address is the ERC-20 contract address. Nil for the native asset, and for
	// a token whose contract is not configured.
	Address *common.Address

	// Decimals is the number of base-unit decimals (18 for ETH, 6 for USDT).
	Decimals uint8

	// ConversionRate is the value of one unit relative to the native asset.
	ConversionRate decimal.Decimal
}

// IsNative reports whether the token is the chain's native asset.
func (t PaymentToken) IsNative() bool {
	return t.Native
}

// Currency is a fiat display currency.
type Currency struct {
	Code           string
	Symbol         string
	Name           string
	ConversionRate decimal.Decimal
}

// Format renders a USD-denominated amount in this currency with two decimals.
func (c Currency) Format(amount decimal.Decimal) string {
	return fmt.Sprintf("%s%s", c.Symbol, amount.Mul(c.ConversionRate).StringFixed(2))
}

// FeeTierLabel names one of the three fee tiers.
type FeeTierLabel string

const (
	FeeTierSlow   FeeTierLabel = "slow"
	FeeTierMedium FeeTierLabel = "medium"
	FeeTierFast   FeeTierLabel = "fast"
)

// ParseFeeTierLabel validates a tier label.
func ParseFeeTierLabel(s string) (FeeTierLabel, error) {
	switch FeeTierLabel(s) {
	case FeeTierSlow, FeeTierMedium, FeeTierFast:
		return FeeTierLabel(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFeeTier, s)
}

// FeeTier is a single fee option in gwei.
type FeeTier struct {
	Label        FeeTierLabel
	Fee          decimal.Decimal
	ExpectedTime string
}

// FeeTiers is the set of options produced by one fee query. A nil entry means
// no estimate is available yet.
type FeeTiers struct {
	Slow   *FeeTier
	Medium *FeeTier
	Fast   *FeeTier
}

// Get returns the tier with the given label, or nil.
func (f FeeTiers) Get(label FeeTierLabel) *FeeTier {
	switch label {
	case FeeTierSlow:
		return f.Slow
	case FeeTierMedium:
		return f.Medium
	case FeeTierFast:
		return f.Fast
	}
	return nil
}

// Empty reports whether no tier is populated.
func (f FeeTiers) Empty() bool {
	return f.Slow == nil && f.Medium == nil && f.Fast == nil
}

// PaymentMethod selects between the hosted card checkout and on-chain payment.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodCrypto PaymentMethod = "crypto"
)

// CartItem is a single cart line as sent to the backend.
type CartItem struct {
	ID       string          `json:"id" validate:"required"`
	Name     string          `json:"name" validate:"required"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"gte=1"`
	Image    string          `json:"image,omitempty"`
}

// Cart is the shopper's cart as seen by the checkout flow. Cart contents are
// owned elsewhere; checkout only reads them and clears them after a verified payment.
type Cart interface {
	Items() []CartItem
	Subtotal() decimal.Decimal
	Total() decimal.Decimal
	CouponCode() string
	Clear()
}

// CheckoutState is a snapshot of the in-progress checkout.
type CheckoutState struct {
	Method      PaymentMethod
	Wallet      *common.Address
	Token       string
	FeeTier     FeeTierLabel
	Currency    string
	TokenAmount decimal.Decimal
	InFlight    bool
	LastError   string
}

// PaymentID is the 32-byte identifier linking an on-chain payment to an order.
type PaymentID = common.Hash

// OrderConfirmation is returned after the backend accepts a payment.
type OrderConfirmation struct {
	OrderID     string
	RedirectURL string
}

// NewOrderConfirmation builds the confirmation with the purchase-success redirect.
func NewOrderConfirmation(orderID string) *OrderConfirmation {
	return &OrderConfirmation{
		OrderID:     orderID,
		RedirectURL: "/purchase-success?orderId=" + orderID,
	}
}
