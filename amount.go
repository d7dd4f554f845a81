package checkout

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var gwei = big.NewInt(1_000_000_000)

// ToBaseUnits scales a human-readable amount to integer base units, truncating
// any precision beyond the token's decimals.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// FromBaseUnits converts integer base units back into a human-readable amount.
func FromBaseUnits(units *big.Int, decimals uint8) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -int32(decimals))
}

// GweiToWei converts an integral gwei value to wei.
func GweiToWei(g *big.Int) *big.Int {
	return new(big.Int).Mul(g, gwei)
}

// WeiToGwei converts wei to a decimal gwei value.
func WeiToGwei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -9)
}
