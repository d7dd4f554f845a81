package checkout

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	// ReferencePrice is the default fiat price of one native unit.
	ReferencePrice = 2500

	// USDTConversionRate is the value of one USDT relative to ETH.
	USDTConversionRate = "0.0005"

	// INRConversionRate is the number of rupees per dollar.
	INRConversionRate = "83.24"
)

// DefaultTokens returns the supported payment tokens. usdtAddress may be the zero
// address when no token contract is configured, in which case the USDT entry carries
// no address and cannot be submitted.
func DefaultTokens(usdtAddress common.Address) []PaymentToken {
	var usdt *common.Address
	if usdtAddress != (common.Address{}) {
		addr := usdtAddress
		usdt = &addr
	}

	return []PaymentToken{
		{
			Symbol:         "ETH",
			Name:           "Ethereum",
			Native:         true,
			Decimals:       18,
			ConversionRate: decimal.NewFromInt(1),
		},
		{
			Symbol:         "USDT",
			Name:           "Tether USD",
			Address:        usdt,
			Decimals:       6,
			ConversionRate: decimal.RequireFromString(USDTConversionRate),
		},
	}
}

// DefaultCurrencies returns the supported display currencies.
func DefaultCurrencies() []Currency {
	return []Currency{
		{Code: "USD", Symbol: "$", Name: "US Dollar", ConversionRate: decimal.NewFromInt(1)},
		{Code: "INR", Symbol: "₹", Name: "Indian Rupee", ConversionRate: decimal.RequireFromString(INRConversionRate)},
	}
}

// TokenBySymbol finds a token by its symbol, case-insensitively.
func TokenBySymbol(tokens []PaymentToken, symbol string) (PaymentToken, error) {
	for _, t := range tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, nil
		}
	}
	return PaymentToken{}, fmt.Errorf("%w: %q", ErrUnknownToken, symbol)
}

// CurrencyByCode finds a currency by its ISO code, case-insensitively.
func CurrencyByCode(currencies []Currency, code string) (Currency, error) {
	for _, c := range currencies {
		if strings.EqualFold(c.Code, code) {
			return c, nil
		}
	}
	return Currency{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
}
