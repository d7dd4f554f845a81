package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	checkout "github.com/storefront/checkout-go"
	"github.com/storefront/checkout-go/backend"
	"github.com/storefront/checkout-go/contract"
	"github.com/storefront/checkout-go/pricing"
	"github.com/storefront/checkout-go/retry"
	"github.com/storefront/checkout-go/store"
)

// ChainReader is the part of an Ethereum client the verifier reads from.
// ethclient.Client satisfies it.
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// RejectError is a verification failure caused by the submitted payment itself.
// Its Reason is returned to the shopper.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return "payment rejected: " + e.Reason
}

func reject(reason string) error {
	return &RejectError{Reason: reason}
}

// PaymentVerifier turns a verification request into a stored order.
type PaymentVerifier interface {
	Verify(ctx context.Context, req backend.VerifyRequest) (*store.Order, error)
}

// ChainVerifier checks payments against the chain and records an order for
// every transaction it accepts. Each transaction can pay for one order only.
type ChainVerifier struct {
	chain    ChainReader
	contract common.Address
	orders   store.OrderStore
	retry    retry.Config
	claimed  retry.Config
	logger   *zap.Logger
	prices   *pricing.Converter
	tokens   []checkout.PaymentToken
	slippage decimal.Decimal
	newID    func() string
	now      func() time.Time

	mu      sync.Mutex
	chainID *big.Int
}

// VerifierOption configures a ChainVerifier.
type VerifierOption func(*ChainVerifier)

// WithReceiptRetry sets the backoff used while a transaction is not yet indexed.
func WithReceiptRetry(cfg retry.Config) VerifierOption {
	return func(v *ChainVerifier) { v.retry = cfg }
}

// WithPricing sets the converter and token catalog used to compute the amount a
// transaction must carry for the order total.
func WithPricing(prices *pricing.Converter, tokens []checkout.PaymentToken) VerifierOption {
	return func(v *ChainVerifier) {
		if prices != nil {
			v.prices = prices
		}
		if tokens != nil {
			v.tokens = tokens
		}
	}
}

// WithSlippage accepts payments up to fraction below the expected amount, for
// prices that moved between checkout and verification.
func WithSlippage(fraction decimal.Decimal) VerifierOption {
	return func(v *ChainVerifier) { v.slippage = fraction }
}

// WithVerifierLogger sets the logger.
func WithVerifierLogger(l *zap.Logger) VerifierOption {
	return func(v *ChainVerifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewChainVerifier creates a verifier for payments to processor.
func NewChainVerifier(chain ChainReader, processor common.Address, orders store.OrderStore, opts ...VerifierOption) *ChainVerifier {
	v := &ChainVerifier{
		chain:    chain,
		contract: processor,
		orders:   orders,
		retry:    retry.ReceiptConfig,
		claimed:  claimRetry,
		logger:   zap.NewNop(),
		prices:   pricing.NewConverter(nil),
		tokens:   checkout.DefaultTokens(common.Address{}),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// claimRetry waits for a concurrent request that claimed the same transaction
// to store its order.
var claimRetry = retry.Config{
	MaxAttempts:  5,
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     500 * time.Millisecond,
	Multiplier:   2.0,
}

// Verify checks that req describes a successful payment to the processor
// contract from req.WalletAddress carrying req.PaymentID and at least the amount
// req.Amount converts to, then records the order.
// Replaying an accepted request returns the original order.
func (v *ChainVerifier) Verify(ctx context.Context, req backend.VerifyRequest) (*store.Order, error) {
	txHash := common.HexToHash(req.TransactionHash)
	paymentID := common.HexToHash(req.PaymentID)
	wallet := common.HexToAddress(req.WalletAddress)

	if order, err := v.replay(ctx, txHash, paymentID, wallet); err == nil {
		v.logger.Info("replayed verification", zap.String("order_id", order.ID), zap.String("tx_hash", txHash.Hex()))
		return order, nil
	}

	receipt, err := retry.WithRetry(ctx, v.retry, receiptPending, func(ctx context.Context) (*types.Receipt, error) {
		return v.chain.TransactionReceipt(ctx, txHash)
	})
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, reject("Transaction not found")
		}
		return nil, fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, reject("Transaction failed on chain")
	}

	tx, _, err := v.chain.TransactionByHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, reject("Transaction not found")
		}
		return nil, fmt.Errorf("fetch transaction: %w", err)
	}

	var token *common.Address
	if req.TokenAddress != nil {
		addr := common.HexToAddress(*req.TokenAddress)
		token = &addr
	}
	paid, err := v.checkTransaction(ctx, tx, wallet, paymentID, token)
	if err != nil {
		return nil, err
	}
	expected, err := v.expectedAmount(ctx, req.Amount, token)
	if err != nil {
		return nil, err
	}
	if paid.Cmp(expected) < 0 {
		v.logger.Warn("underpaid transaction",
			zap.String("tx_hash", txHash.Hex()),
			zap.String("paid", paid.String()),
			zap.String("expected", expected.String()),
		)
		return nil, reject("Payment amount does not match order")
	}

	orderID := v.newID()
	claimed, err := v.orders.ClaimTransaction(ctx, txHash, orderID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		order, err := retry.WithRetry(ctx, v.claimed, orderPending, func(ctx context.Context) (*store.Order, error) {
			return v.replay(ctx, txHash, paymentID, wallet)
		})
		if err != nil {
			return nil, reject("Transaction has already been used")
		}
		v.logger.Info("replayed concurrent verification", zap.String("order_id", order.ID), zap.String("tx_hash", txHash.Hex()))
		return order, nil
	}

	order := store.Order{
		ID:        orderID,
		PaymentID: paymentID,
		TxHash:    txHash,
		Wallet:    wallet,
		Token:     token,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Products:  req.Products,
		CreatedAt: v.now().UTC(),
	}
	if err := v.orders.SaveOrder(ctx, order); err != nil {
		if relErr := v.orders.ReleaseTransaction(ctx, txHash); relErr != nil {
			v.logger.Error("failed to release transaction claim", zap.String("tx_hash", txHash.Hex()), zap.Error(relErr))
		}
		return nil, err
	}

	v.logger.Info("payment verified",
		zap.String("order_id", orderID),
		zap.String("tx_hash", txHash.Hex()),
		zap.String("payment_id", paymentID.Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
	)
	return &order, nil
}

// checkTransaction validates the payment call in tx and returns the amount it
// pays in base units of the paid asset.
func (v *ChainVerifier) checkTransaction(ctx context.Context, tx *types.Transaction, wallet common.Address, paymentID common.Hash, token *common.Address) (*big.Int, error) {
	if tx.To() == nil || *tx.To() != v.contract {
		return nil, reject("Transaction was not sent to the payment contract")
	}

	chainID, err := v.loadChainID(ctx)
	if err != nil {
		return nil, err
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, reject("Transaction signature is invalid")
	}
	if sender != wallet {
		return nil, reject("Transaction sender does not match wallet")
	}

	call, err := contract.DecodeCall(tx.Data())
	if err != nil {
		return nil, reject("Transaction is not a payment")
	}
	if call.PaymentID != paymentID {
		return nil, reject("Payment identifier mismatch")
	}

	if token == nil {
		if call.IsToken() {
			return nil, reject("Expected a native payment")
		}
		if tx.Value().Sign() <= 0 {
			return nil, reject("Payment value is zero")
		}
		return tx.Value(), nil
	}
	if !call.IsToken() {
		return nil, reject("Expected a token payment")
	}
	if call.Token != *token {
		return nil, reject("Token mismatch")
	}
	if call.Amount == nil || call.Amount.Sign() <= 0 {
		return nil, reject("Payment value is zero")
	}
	return call.Amount, nil
}

// expectedAmount converts the order total into base units of the paid token,
// less the configured slippage.
func (v *ChainVerifier) expectedAmount(ctx context.Context, total decimal.Decimal, token *common.Address) (*big.Int, error) {
	asset, ok := v.lookupToken(token)
	if !ok {
		return nil, reject("Token is not accepted")
	}
	amount, err := v.prices.Convert(ctx, total, asset)
	if err != nil {
		return nil, fmt.Errorf("convert order total: %w", err)
	}
	if v.slippage.IsPositive() {
		amount = amount.Mul(decimal.NewFromInt(1).Sub(v.slippage))
	}
	return checkout.ToBaseUnits(amount, asset.Decimals), nil
}

func (v *ChainVerifier) lookupToken(addr *common.Address) (checkout.PaymentToken, bool) {
	for _, t := range v.tokens {
		if addr == nil && t.IsNative() {
			return t, true
		}
		if addr != nil && t.Address != nil && *t.Address == *addr {
			return t, true
		}
	}
	return checkout.PaymentToken{}, false
}

// errReplayMismatch reports a claimed transaction whose order belongs to another
// payment or wallet.
var errReplayMismatch = errors.New("transaction claimed by another payment")

// replay returns the stored order when txHash was already accepted for the same
// payment and wallet. It returns store.ErrNotFound while no order is recorded.
func (v *ChainVerifier) replay(ctx context.Context, txHash, paymentID common.Hash, wallet common.Address) (*store.Order, error) {
	id, err := v.orders.ClaimedOrder(ctx, txHash)
	if err != nil {
		return nil, err
	}
	order, err := v.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.PaymentID != paymentID || order.Wallet != wallet {
		return nil, errReplayMismatch
	}
	return order, nil
}

func (v *ChainVerifier) loadChainID(ctx context.Context) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.chainID != nil {
		return v.chainID, nil
	}
	id, err := v.chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	v.chainID = id
	return id, nil
}

// orderPending retries while the request holding the claim has not saved its order.
func orderPending(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// receiptPending retries while the node has not indexed the transaction yet.
func receiptPending(err error) bool {
	return errors.Is(err, ethereum.NotFound) || retry.IsTransient(err)
}
