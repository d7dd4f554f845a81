// Package submit sends checkout payments to the PaymentProcessor contract
// through the shopper's wallet.
package submit

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	checkout "github.com/storefront/checkout-go"
	"github.com/storefront/checkout-go/contract"
	"github.com/storefront/checkout-go/store"
)

// ContractCaller runs read-only calls. ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Request describes one payment.
type Request struct {
	Wallet    *common.Address
	Token     checkout.PaymentToken
	Amount    decimal.Decimal
	GasPrice  *big.Int
	PaymentID common.Hash
}

// Result describes a submitted payment.
type Result struct {
	TxHash      common.Hash
	BlockNumber uint64

	// PaymentID is the identifier the contract recorded. It differs from the
	// request's when a stored approval was resumed.
	PaymentID common.Hash

	ApproveTx common.Hash
	Resumed   bool
}

// Submitter drives the native and token payment flows. One Submitter serves a
// single checkout; concurrent Submit calls are rejected.
type Submitter struct {
	wallet       checkout.Wallet
	contract     common.Address
	approvals    store.ApprovalStore
	caller       ContractCaller
	logger       *zap.Logger
	onTransition func(from, to State)
	now          func() time.Time

	mu    sync.Mutex
	state State
	busy  bool
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithApprovalStore persists confirmed approvals so a failed payment can be resumed.
func WithApprovalStore(s store.ApprovalStore) Option {
	return func(sub *Submitter) { sub.approvals = s }
}

// WithContractCaller enables on-chain allowance checks before resuming.
func WithContractCaller(c ContractCaller) Option {
	return func(sub *Submitter) { sub.caller = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(sub *Submitter) {
		if l != nil {
			sub.logger = l
		}
	}
}

// OnTransition registers a callback for every state change.
func OnTransition(fn func(from, to State)) Option {
	return func(sub *Submitter) { sub.onTransition = fn }
}

// NewSubmitter creates a Submitter paying processor through wallet. A zero
// processor address is accepted and reported by Submit.
func NewSubmitter(wallet checkout.Wallet, processor common.Address, opts ...Option) *Submitter {
	s := &Submitter{
		wallet:    wallet,
		contract:  processor,
		approvals: store.NewMemoryStore(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the state of the latest attempt.
func (s *Submitter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Submit sends the payment described by req and blocks until the payment
// transaction is mined. Token payments approve the contract first.
func (s *Submitter) Submit(ctx context.Context, req Request) (*Result, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	scaled, err := s.guard(req)
	if err != nil {
		s.moveTo(Failed)
		return nil, err
	}

	if req.Token.IsNative() {
		return s.submitNative(ctx, req, scaled)
	}
	return s.submitToken(ctx, req, scaled)
}

// begin resets a finished attempt to Idle and refuses while one is active.
func (s *Submitter) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return checkout.NewCheckoutError(checkout.ErrCodeInFlight,
			"A payment is already being processed", checkout.ErrSubmitInFlight)
	}
	s.busy = true
	s.state = Idle
	return nil
}

func (s *Submitter) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Submitter) guard(req Request) (*big.Int, error) {
	if s.wallet == nil {
		return nil, checkout.NewCheckoutError(checkout.ErrCodeCapabilityMissing,
			"Please install a wallet to make crypto payments", checkout.ErrCapabilityMissing)
	}
	if req.Wallet == nil {
		return nil, checkout.WalletNotConnected()
	}
	if s.contract == (common.Address{}) {
		return nil, checkout.Misconfigured("Payment processor contract address not configured")
	}
	if !req.Token.IsNative() && (req.Token.Address == nil || *req.Token.Address == (common.Address{})) {
		return nil, checkout.Misconfigured("Token address not configured").WithDetails("token", req.Token.Symbol)
	}
	if !req.Amount.IsPositive() {
		return nil, checkout.Misconfigured("Payment amount must be greater than zero")
	}

	scaled := checkout.ToBaseUnits(req.Amount, req.Token.Decimals)
	if scaled.Sign() <= 0 {
		return nil, checkout.Misconfigured("Payment amount is below the token's smallest unit").
			WithDetails("amount", req.Amount.String())
	}
	return scaled, nil
}

func (s *Submitter) submitNative(ctx context.Context, req Request, value *big.Int) (*Result, error) {
	s.moveTo(Submitting)

	data, err := contract.PackProcessPayment(req.PaymentID)
	if err != nil {
		s.moveTo(Failed)
		return nil, fmt.Errorf("failed to encode payment: %w", err)
	}

	receipt, err := s.wallet.SendTransaction(ctx, checkout.TxRequest{
		From:     *req.Wallet,
		To:       s.contract,
		Value:    value,
		Data:     data,
		GasPrice: req.GasPrice,
	})
	if err != nil {
		s.moveTo(Failed)
		return nil, checkout.Classify(err, "Payment transaction failed")
	}

	s.moveTo(Submitted)
	s.logger.Info("native payment submitted",
		zap.String("tx_hash", receipt.Hash.Hex()),
		zap.String("payment_id", req.PaymentID.Hex()),
		zap.String("value_wei", value.String()),
	)
	return &Result{TxHash: receipt.Hash, BlockNumber: receipt.BlockNumber, PaymentID: req.PaymentID}, nil
}

func (s *Submitter) submitToken(ctx context.Context, req Request, amount *big.Int) (*Result, error) {
	token := *req.Token.Address
	key := store.ApprovalKey{Wallet: *req.Wallet, Token: token, Spender: s.contract}
	result := &Result{PaymentID: req.PaymentID}

	if pending := s.resumable(ctx, key, amount); pending != nil {
		result.PaymentID = pending.PaymentID
		result.ApproveTx = pending.ApproveTx
		result.Resumed = true
		s.moveTo(Paying)
		s.logger.Info("resuming approved token payment",
			zap.String("payment_id", pending.PaymentID.Hex()),
			zap.String("approve_tx", pending.ApproveTx.Hex()),
		)
	} else {
		s.moveTo(Approving)

		approveTx, err := s.approve(ctx, *req.Wallet, token, amount, req.GasPrice)
		if err != nil {
			s.moveTo(Failed)
			return nil, checkout.Classify(err, "Token approval failed")
		}
		result.ApproveTx = approveTx

		if err := s.approvals.SaveApproval(ctx, store.PendingApproval{
			Wallet:    *req.Wallet,
			Token:     token,
			Spender:   s.contract,
			Amount:    amount,
			PaymentID: req.PaymentID,
			ApproveTx: approveTx,
			CreatedAt: s.now(),
		}); err != nil {
			s.logger.Warn("failed to persist approval", zap.Error(err))
		}

		s.moveTo(Paying)
	}

	data, err := contract.PackProcessTokenPayment(token, amount, result.PaymentID)
	if err != nil {
		s.moveTo(Failed)
		return nil, fmt.Errorf("failed to encode token payment: %w", err)
	}

	receipt, err := s.wallet.SendTransaction(ctx, checkout.TxRequest{
		From:     *req.Wallet,
		To:       s.contract,
		Data:     data,
		GasPrice: req.GasPrice,
	})
	if err != nil {
		s.moveTo(Failed)
		s.logger.Warn("token payment failed after approval",
			zap.String("payment_id", result.PaymentID.Hex()),
			zap.Error(err),
		)
		return nil, checkout.Classify(err, "Token payment failed")
	}

	if err := s.approvals.DeleteApproval(ctx, key); err != nil {
		s.logger.Warn("failed to clear approval", zap.Error(err))
	}

	s.moveTo(Submitted)
	result.TxHash = receipt.Hash
	result.BlockNumber = receipt.BlockNumber
	s.logger.Info("token payment submitted",
		zap.String("tx_hash", receipt.Hash.Hex()),
		zap.String("payment_id", result.PaymentID.Hex()),
		zap.String("token", token.Hex()),
		zap.String("amount", amount.String()),
	)
	return result, nil
}

func (s *Submitter) approve(ctx context.Context, from, token common.Address, amount, gasPrice *big.Int) (common.Hash, error) {
	data, err := contract.PackApprove(s.contract, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode approval: %w", err)
	}
	receipt, err := s.wallet.SendTransaction(ctx, checkout.TxRequest{
		From:     from,
		To:       token,
		Data:     data,
		GasPrice: gasPrice,
	})
	if err != nil {
		return common.Hash{}, err
	}
	s.logger.Info("token approval confirmed", zap.String("tx_hash", receipt.Hash.Hex()), zap.String("amount", amount.String()))
	return receipt.Hash, nil
}

// resumable returns the stored approval for key when it covers exactly amount
// and, if a caller is configured, the on-chain allowance still covers it.
func (s *Submitter) resumable(ctx context.Context, key store.ApprovalKey, amount *big.Int) *store.PendingApproval {
	pending, err := s.approvals.GetApproval(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to load approval", zap.Error(err))
		}
		return nil
	}

	if pending.Amount == nil || pending.Amount.Cmp(amount) != 0 {
		s.logger.Info("discarding approval for a different amount", zap.String("payment_id", pending.PaymentID.Hex()))
		_ = s.approvals.DeleteApproval(ctx, key)
		return nil
	}

	if s.caller != nil {
		allowance, err := s.allowance(ctx, key)
		if err != nil {
			s.logger.Warn("allowance check failed, trusting stored approval", zap.Error(err))
		} else if allowance.Cmp(amount) < 0 {
			s.logger.Info("stored approval no longer covers payment", zap.String("allowance", allowance.String()))
			_ = s.approvals.DeleteApproval(ctx, key)
			return nil
		}
	}
	return pending
}

func (s *Submitter) allowance(ctx context.Context, key store.ApprovalKey) (*big.Int, error) {
	data, err := contract.PackAllowance(key.Wallet, key.Spender)
	if err != nil {
		return nil, err
	}
	token := key.Token
	out, err := s.caller.CallContract(ctx, ethereum.CallMsg{From: key.Wallet, To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return contract.UnpackAllowance(out)
}

// Revoke sets the contract's allowance on token back to zero and forgets any
// pending approval.
func (s *Submitter) Revoke(ctx context.Context, wallet common.Address, token checkout.PaymentToken) (common.Hash, error) {
	if s.wallet == nil {
		return common.Hash{}, checkout.ErrCapabilityMissing
	}
	if token.IsNative() {
		return common.Hash{}, checkout.Misconfigured("Native payments have no allowance to revoke")
	}
	if token.Address == nil {
		return common.Hash{}, checkout.Misconfigured("Token address not configured").WithDetails("token", token.Symbol)
	}
	if s.contract == (common.Address{}) {
		return common.Hash{}, checkout.Misconfigured("Payment processor contract address not configured")
	}

	txHash, err := s.approve(ctx, wallet, *token.Address, new(big.Int), nil)
	if err != nil {
		return common.Hash{}, checkout.Classify(err, "Allowance revocation failed")
	}

	if err := s.approvals.DeleteApproval(ctx, store.ApprovalKey{Wallet: wallet, Token: *token.Address, Spender: s.contract}); err != nil {
		s.logger.Warn("failed to clear approval", zap.Error(err))
	}
	return txHash, nil
}

func (s *Submitter) moveTo(next State) {
	s.mu.Lock()
	prev := s.state
	if !CanTransition(prev, next) {
		s.mu.Unlock()
		s.logger.Error("illegal submit transition", zap.Stringer("from", prev), zap.Stringer("to", next))
		return
	}
	s.state = next
	s.mu.Unlock()

	if s.onTransition != nil {
		s.onTransition(prev, next)
	}
}
