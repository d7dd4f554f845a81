// Package wallet links the shopper's wallet to the checkout.
package wallet

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	checkout "github.com/storefront/checkout-go"
	"github.com/storefront/checkout-go/logging"
)

// ConnectHook runs after a successful connection.
type ConnectHook func(ctx context.Context, addr common.Address)

// Connector requests account access from a wallet.
type Connector struct {
	provider checkout.Wallet
	logger   *zap.Logger

	mu      sync.RWMutex
	address *common.Address
	hooks   []ConnectHook
}

// NewConnector creates a Connector. provider may be nil when no wallet is installed.
func NewConnector(provider checkout.Wallet, logger *zap.Logger) *Connector {
	logger = logging.OrNop(logger)
	return &Connector{provider: provider, logger: logger}
}

// OnConnect registers a hook that runs after every successful Connect.
func (c *Connector) OnConnect(hook ConnectHook) {
	c.mu.Lock()
	c.hooks = append(c.hooks, hook)
	c.mu.Unlock()
}

// Available reports whether a wallet provider is present.
func (c *Connector) Available() bool {
	return c.provider != nil
}

// Provider returns the underlying wallet.
func (c *Connector) Provider() checkout.Wallet {
	return c.provider
}

// Connect asks the wallet for its accounts and adopts the first one. Calling it
// again re-requests accounts.
func (c *Connector) Connect(ctx context.Context) (common.Address, error) {
	if c.provider == nil {
		return common.Address{}, checkout.NewCheckoutError(checkout.ErrCodeCapabilityMissing,
			"Please install a wallet to make crypto payments", checkout.ErrCapabilityMissing)
	}

	accounts, err := c.provider.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, checkout.Classify(err, "Failed to connect wallet")
	}
	if len(accounts) == 0 {
		return common.Address{}, checkout.UserRejected("Wallet connection was rejected")
	}

	addr := accounts[0]

	c.mu.Lock()
	c.address = &addr
	hooks := append([]ConnectHook(nil), c.hooks...)
	c.mu.Unlock()

	c.logger.Info("wallet connected", zap.String("address", addr.Hex()))

	for _, hook := range hooks {
		hook(ctx, addr)
	}
	return addr, nil
}

// Address returns the connected address, or nil before a successful Connect.
func (c *Connector) Address() *common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.address == nil {
		return nil
	}
	addr := *c.address
	return &addr
}
