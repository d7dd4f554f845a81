package checkout

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Wallet is the user-controlled signing capability the checkout flow pays through.
// Every method may block on the user (an approval prompt) or the network.
type Wallet interface {
	// RequestAccounts asks the wallet to expose its accounts. An empty result means
	// the user declined.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// GetFeeEstimate returns the current network fee per gas unit in wei.
	GetFeeEstimate(ctx context.Context) (*big.Int, error)

	// SendTransaction signs and broadcasts a transaction, returning once it is included.
	SendTransaction(ctx context.Context, tx TxRequest) (*TxReceipt, error)
}

// TxRequest is a transaction for the wallet to sign.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte

	// GasPrice is the per-gas price in wei. Nil lets the wallet choose.
	GasPrice *big.Int
}

// TxReceipt is the inclusion result of a transaction.
type TxReceipt struct {
	Hash        common.Hash
	BlockNumber uint64
	GasUsed     uint64
}
