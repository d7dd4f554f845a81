package backend

import (
	"github.com/shopspring/decimal"

	checkout "github.com/storefront/checkout-go"
)

// Endpoint paths, relative to the backend base URL.
const (
	VerifyPath  = "/payments/verify-crypto-payment"
	SessionPath = "/payments/create-checkout-session"
)

// VerifyRequest asks the backend to confirm an on-chain payment and create the order.
type VerifyRequest struct {
	Products        []checkout.CartItem `json:"products" validate:"required,min=1,dive"`
	PaymentID       string              `json:"paymentId" validate:"required,bytes32"`
	WalletAddress   string              `json:"walletAddress" validate:"required,evmaddr"`
	TransactionHash string              `json:"transactionHash" validate:"required,bytes32"`
	Amount          decimal.Decimal     `json:"amount"`
	TokenAddress    *string             `json:"tokenAddress" validate:"omitempty,evmaddr"`
	Currency        string              `json:"currency" validate:"required"`
}

// VerifyResponse is the backend's verdict.
type VerifyResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId,omitempty"`
	Message string `json:"message,omitempty"`
}

// SessionRequest asks the backend to open a hosted card checkout session.
type SessionRequest struct {
	Products   []checkout.CartItem `json:"products" validate:"required,min=1,dive"`
	CouponCode *string             `json:"couponCode"`
	Currency   string              `json:"currency" validate:"required,lowercase"`
}

// SessionResponse carries the hosted checkout session id.
type SessionResponse struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}
