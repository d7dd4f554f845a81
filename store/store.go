// Package store persists token approvals awaiting payment and verified orders.
package store

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	checkout "github.com/storefront/checkout-go"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// ApprovalKey identifies the allowance a wallet granted a spender on a token.
type ApprovalKey struct {
	Wallet  common.Address
	Token   common.Address
	Spender common.Address
}

func (k ApprovalKey) String() string {
	return strings.ToLower(k.Wallet.Hex() + ":" + k.Token.Hex() + ":" + k.Spender.Hex())
}

// PendingApproval records a confirmed approve whose payment has not yet succeeded.
type PendingApproval struct {
	Wallet    common.Address `json:"wallet"`
	Token     common.Address `json:"token"`
	Spender   common.Address `json:"spender"`
	Amount    *big.Int       `json:"amount"`
	PaymentID common.Hash    `json:"paymentId"`
	ApproveTx common.Hash    `json:"approveTx"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Key returns the record's lookup key.
func (p PendingApproval) Key() ApprovalKey {
	return ApprovalKey{Wallet: p.Wallet, Token: p.Token, Spender: p.Spender}
}

// ApprovalStore keeps at most one pending approval per key.
type ApprovalStore interface {
	SaveApproval(ctx context.Context, approval PendingApproval) error
	GetApproval(ctx context.Context, key ApprovalKey) (*PendingApproval, error)
	DeleteApproval(ctx context.Context, key ApprovalKey) error
}

// Order is a verified purchase.
type Order struct {
	ID        string              `json:"id"`
	PaymentID common.Hash         `json:"paymentId"`
	TxHash    common.Hash         `json:"transactionHash"`
	Wallet    common.Address      `json:"walletAddress"`
	Token     *common.Address     `json:"tokenAddress"`
	Amount    decimal.Decimal     `json:"amount"`
	Currency  string              `json:"currency"`
	Products  []checkout.CartItem `json:"products"`
	CreatedAt time.Time           `json:"createdAt"`
}

// OrderStore records orders and makes sure each transaction pays for one order only.
type OrderStore interface {
	// ClaimTransaction reserves txHash for orderID. It returns false when the
	// transaction is already claimed.
	ClaimTransaction(ctx context.Context, txHash common.Hash, orderID string) (bool, error)

	// ReleaseTransaction drops a claim whose order could not be completed.
	ReleaseTransaction(ctx context.Context, txHash common.Hash) error

	// ClaimedOrder returns the order id holding the claim on txHash, or ErrNotFound.
	ClaimedOrder(ctx context.Context, txHash common.Hash) (string, error)

	SaveOrder(ctx context.Context, order Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
}
