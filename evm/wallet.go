// Package evm implements checkout.Wallet with a locally held key that signs
// legacy transactions and submits them to an Ethereum JSON-RPC node.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	checkout "github.com/storefront/checkout-go"
)

// Backend is the subset of ethclient.Client the wallet uses.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Wallet signs with a single key. Transactions from one Wallet are serialised
// so that pending nonces do not collide.
type Wallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	backend    Backend
	chainID    *big.Int
	confirm    func(checkout.TxRequest) bool
	approve    func(common.Address) bool
	logger     *zap.Logger

	sendMu sync.Mutex
}

var _ checkout.Wallet = (*Wallet)(nil)

// WalletOption configures a Wallet.
type WalletOption func(*Wallet) error

// NewWallet creates a wallet with the given options.
func NewWallet(opts ...WalletOption) (*Wallet, error) {
	w := &Wallet{logger: zap.NewNop()}

	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}

	if w.privateKey == nil {
		return nil, ErrInvalidKey
	}
	if w.backend == nil {
		return nil, ErrNoBackend
	}

	w.address = crypto.PubkeyToAddress(w.privateKey.PublicKey)
	return w, nil
}

// Dial connects to rpcURL and creates a wallet over it.
func Dial(ctx context.Context, rpcURL string, opts ...WalletOption) (*Wallet, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}
	return NewWallet(append([]WalletOption{WithBackend(client)}, opts...)...)
}

// WithPrivateKey sets the private key from a hex string.
func WithPrivateKey(hexKey string) WalletOption {
	return func(w *Wallet) error {
		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return ErrInvalidKey
		}
		w.privateKey = privateKey
		return nil
	}
}

// WithKey sets an already parsed private key.
func WithKey(key *ecdsa.PrivateKey) WalletOption {
	return func(w *Wallet) error {
		if key == nil {
			return ErrInvalidKey
		}
		w.privateKey = key
		return nil
	}
}

// WithBackend sets the chain backend.
func WithBackend(b Backend) WalletOption {
	return func(w *Wallet) error {
		w.backend = b
		return nil
	}
}

// WithChainID pins the chain id instead of asking the node.
func WithChainID(id *big.Int) WalletOption {
	return func(w *Wallet) error {
		w.chainID = new(big.Int).Set(id)
		return nil
	}
}

// WithConfirm installs the transaction prompt. Returning false rejects the transaction.
func WithConfirm(confirm func(checkout.TxRequest) bool) WalletOption {
	return func(w *Wallet) error {
		w.confirm = confirm
		return nil
	}
}

// WithConnectApproval installs the account access prompt. Returning false
// makes RequestAccounts return no accounts.
func WithConnectApproval(approve func(common.Address) bool) WalletOption {
	return func(w *Wallet) error {
		w.approve = approve
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) WalletOption {
	return func(w *Wallet) error {
		if l != nil {
			w.logger = l
		}
		return nil
	}
}

// Address returns the wallet's account.
func (w *Wallet) Address() common.Address {
	return w.address
}

// PrivateKey returns the signing key, for deployment transactors.
func (w *Wallet) PrivateKey() *ecdsa.PrivateKey {
	return w.privateKey
}

// Backend returns the chain backend.
func (w *Wallet) Backend() Backend {
	return w.backend
}

// RequestAccounts implements checkout.Wallet.
func (w *Wallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w.approve != nil && !w.approve(w.address) {
		return nil, nil
	}
	return []common.Address{w.address}, nil
}

// GetFeeEstimate implements checkout.Wallet.
func (w *Wallet) GetFeeEstimate(ctx context.Context) (*big.Int, error) {
	price, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return price, nil
}

// ChainID returns the pinned chain id or asks the node once.
func (w *Wallet) ChainID(ctx context.Context) (*big.Int, error) {
	if w.chainID != nil {
		return w.chainID, nil
	}
	id, err := w.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	w.chainID = id
	return id, nil
}

// SendTransaction implements checkout.Wallet. It blocks until the transaction
// is mined and fails if the receipt reports a revert.
func (w *Wallet) SendTransaction(ctx context.Context, req checkout.TxRequest) (*checkout.TxReceipt, error) {
	if req.From != (common.Address{}) && req.From != w.address {
		return nil, checkout.Misconfigured("Transaction sender does not match the connected wallet").
			WithDetails("from", req.From.Hex())
	}
	if w.confirm != nil && !w.confirm(req) {
		return nil, checkout.UserRejected("Transaction rejected in wallet")
	}

	signed, err := w.signAndSend(ctx, req)
	if err != nil {
		return nil, err
	}

	w.logger.Info("transaction sent",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.String("to", req.To.Hex()),
		zap.String("value", signed.Value().String()),
	)

	receipt, err := bind.WaitMined(ctx, w.backend, signed)
	if err != nil {
		return nil, checkout.NetworkError("Failed waiting for transaction", err).
			WithDetails("tx_hash", signed.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		w.logger.Warn("transaction reverted", zap.String("tx_hash", signed.Hash().Hex()))
		return nil, checkout.NetworkError("Transaction failed on chain", ErrReverted).
			WithDetails("tx_hash", signed.Hash().Hex())
	}

	return &checkout.TxReceipt{
		Hash:        receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

func (w *Wallet) signAndSend(ctx context.Context, req checkout.TxRequest) (*types.Transaction, error) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	chainID, err := w.ChainID(ctx)
	if err != nil {
		return nil, checkout.NetworkError("Failed to get chain id", err)
	}

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, checkout.NetworkError("Failed to get nonce", err)
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		if gasPrice, err = w.backend.SuggestGasPrice(ctx); err != nil {
			return nil, checkout.NetworkError("Failed to get gas price", err)
		}
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	to := req.To
	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     w.address,
		To:       &to,
		GasPrice: gasPrice,
		Value:    value,
		Data:     req.Data,
	})
	if err != nil {
		return nil, checkout.NetworkError("Failed to estimate gas", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return nil, checkout.NetworkError("Failed to send transaction", err)
	}
	return signed, nil
}
