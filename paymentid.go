package checkout

import (
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// NewPaymentID derives the payment identifier for a submission attempt as
// keccak256 of the millisecond timestamp in decimal followed by the wallet's
// checksummed hex address.
func NewPaymentID(at time.Time, wallet common.Address) PaymentID {
	seed := strconv.FormatInt(at.UnixMilli(), 10) + wallet.Hex()
	return crypto.Keccak256Hash([]byte(seed))
}
