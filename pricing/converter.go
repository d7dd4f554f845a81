package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	checkout "github.com/storefront/checkout-go"
)

// Converter turns a fiat total into a token amount. The reference price is
// read from the source on every call.
type Converter struct {
	source PriceSource
}

// NewConverter creates a Converter over source. A nil source uses the static default price.
func NewConverter(source PriceSource) *Converter {
	if source == nil {
		source = NewStaticSource()
	}
	return &Converter{source: source}
}

// Convert returns the amount of token equal in value to fiatTotal. For the native
// asset that is fiatTotal/price; other tokens are further divided by their rate
// against the native asset, so $100 at 2500 and rate 0.0005 is 80 USDT rather than
// the literal fiatTotal/(price/rate).
func (c *Converter) Convert(ctx context.Context, fiatTotal decimal.Decimal, token checkout.PaymentToken) (decimal.Decimal, error) {
	if fiatTotal.IsNegative() {
		return decimal.Zero, checkout.Misconfigured("Order total cannot be negative")
	}

	price, err := c.referencePrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	native := fiatTotal.DivRound(price, 18)
	if token.IsNative() {
		return native, nil
	}

	if !token.ConversionRate.IsPositive() {
		return decimal.Zero, checkout.Misconfigured("Invalid conversion rate").WithDetails("token", token.Symbol)
	}
	return native.DivRound(token.ConversionRate, int32(token.Decimals)+2), nil
}

// UnitPrice returns the fiat value of one unit of token.
func (c *Converter) UnitPrice(ctx context.Context, token checkout.PaymentToken) (decimal.Decimal, error) {
	price, err := c.referencePrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if token.IsNative() {
		return price, nil
	}
	return price.Mul(token.ConversionRate), nil
}

func (c *Converter) referencePrice(ctx context.Context) (decimal.Decimal, error) {
	price, err := c.source.GetReferencePrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, checkout.Misconfigured("Invalid reference price").WithDetails("price", price.String())
	}
	return price, nil
}
