package checkout

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals uint8
		want     string
	}{
		{"native 0.04", "0.04", 18, "40000000000000000"},
		{"token 80", "80", 6, "80000000"},
		{"truncates extra precision", "1.2345678", 6, "1234567"},
		{"below smallest unit", "0.0000001", 6, "0"},
		{"zero", "0", 18, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToBaseUnits(decimal.RequireFromString(tt.amount), tt.decimals)
			if got.String() != tt.want {
				t.Errorf("ToBaseUnits() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFromBaseUnits(t *testing.T) {
	got := FromBaseUnits(big.NewInt(80_000_000), 6)
	if !got.Equal(decimal.NewFromInt(80)) {
		t.Errorf("FromBaseUnits() = %s, want 80", got)
	}
	if !FromBaseUnits(nil, 6).IsZero() {
		t.Error("FromBaseUnits(nil) should be zero")
	}
}

func TestGweiConversions(t *testing.T) {
	wei := GweiToWei(big.NewInt(30))
	if wei.String() != "30000000000" {
		t.Errorf("GweiToWei(30) = %s", wei)
	}
	if g := WeiToGwei(big.NewInt(30_500_000_000)); !g.Equal(decimal.RequireFromString("30.5")) {
		t.Errorf("WeiToGwei() = %s, want 30.5", g)
	}
}

func TestNewPaymentID(t *testing.T) {
	wallet := common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	at := time.UnixMilli(1700000000123)

	want := crypto.Keccak256Hash([]byte("1700000000123" + wallet.Hex()))
	if got := NewPaymentID(at, wallet); got != want {
		t.Errorf("NewPaymentID() = %s, want %s", got.Hex(), want.Hex())
	}

	if NewPaymentID(at, wallet) != NewPaymentID(at, wallet) {
		t.Error("NewPaymentID should be deterministic")
	}
	if NewPaymentID(at, wallet) == NewPaymentID(at.Add(time.Millisecond), wallet) {
		t.Error("NewPaymentID should differ for different timestamps")
	}
}

func TestFeeTiers_Get(t *testing.T) {
	tiers := FeeTiers{
		Slow: &FeeTier{Label: FeeTierSlow, Fee: decimal.NewFromInt(24)},
		Fast: &FeeTier{Label: FeeTierFast, Fee: decimal.NewFromInt(45)},
	}

	if tiers.Get(FeeTierSlow) != tiers.Slow {
		t.Error("Get(slow) returned wrong tier")
	}
	if tiers.Get(FeeTierMedium) != nil {
		t.Error("Get(medium) should be nil")
	}
	if tiers.Empty() {
		t.Error("Empty() = true, want false")
	}
	if !(FeeTiers{}).Empty() {
		t.Error("zero FeeTiers should be empty")
	}
	if _, err := ParseFeeTierLabel("turbo"); err == nil {
		t.Error("ParseFeeTierLabel(turbo) should fail")
	}
}

func TestNewOrderConfirmation(t *testing.T) {
	c := NewOrderConfirmation("ord-42")
	if c.RedirectURL != "/purchase-success?orderId=ord-42" {
		t.Errorf("RedirectURL = %q", c.RedirectURL)
	}
}
