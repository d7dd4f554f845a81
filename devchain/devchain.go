// Package devchain runs a local development chain: go-ethereum's simulated
// backend exposed over HTTP JSON-RPC with deterministic, pre-funded accounts.
package devchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/eth/ethconfig"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/node"
	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/zap"

	"github.com/storefront/checkout-go/evm"
	"github.com/storefront/checkout-go/logging"
)

// DeterministicMnemonic seeds the development accounts. Account 0 is
// 0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1.
const DeterministicMnemonic = "myth like bonus scare over problem client lizard pioneer submit female collect"

// ErrClosed is returned when using a stopped chain.
var ErrClosed = errors.New("devchain: chain is closed")

// Config controls the development chain.
type Config struct {
	Host      string
	Port      int
	ChainID   int64
	Mnemonic  string
	Accounts  int
	Balance   *big.Int // per account, in wei
	BlockTime time.Duration
}

// DefaultConfig returns the standard development setup: 127.0.0.1:7545,
// chain id 5777, ten accounts with 1000 ETH each and a block every second.
func DefaultConfig() Config {
	return Config{
		Host:      "127.0.0.1",
		Port:      7545,
		ChainID:   5777,
		Mnemonic:  DeterministicMnemonic,
		Accounts:  10,
		Balance:   new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether)),
		BlockTime: time.Second,
	}
}

// Account is a funded development account.
type Account struct {
	Index   uint32
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// DeriveAccounts derives n accounts from mnemonic along m/44'/60'/0'/0/i.
func DeriveAccounts(mnemonic string, n int) ([]Account, error) {
	accounts := make([]Account, 0, n)
	for i := 0; i < n; i++ {
		key, err := evm.DeriveKey(mnemonic, uint32(i))
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, Account{
			Index:   uint32(i),
			Address: crypto.PubkeyToAddress(key.PublicKey),
			Key:     key,
		})
	}
	return accounts, nil
}

// Chain is a running development chain.
type Chain struct {
	cfg      Config
	backend  *simulated.Backend
	accounts []Account
	logger   *zap.Logger

	stop chan struct{}
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// Start launches the chain and begins producing blocks every cfg.BlockTime.
// A zero BlockTime disables automatic blocks; call Commit instead.
func Start(cfg Config, logger *zap.Logger) (*Chain, error) {
	logger = logging.OrNop(logger)
	if cfg.Accounts <= 0 {
		return nil, fmt.Errorf("devchain: account count must be positive, got %d", cfg.Accounts)
	}

	accounts, err := DeriveAccounts(cfg.Mnemonic, cfg.Accounts)
	if err != nil {
		return nil, fmt.Errorf("devchain: derive accounts: %w", err)
	}

	alloc := make(types.GenesisAlloc, len(accounts))
	for _, a := range accounts {
		alloc[a.Address] = types.Account{Balance: new(big.Int).Set(cfg.Balance)}
	}

	chainConfig := *params.AllDevChainProtocolChanges
	chainConfig.ChainID = big.NewInt(cfg.ChainID)

	backend := simulated.NewBackend(alloc, func(nodeConf *node.Config, ethConf *ethconfig.Config) {
		ethConf.Genesis.Config = &chainConfig
		ethConf.NetworkId = uint64(cfg.ChainID)
		if cfg.Port > 0 {
			nodeConf.HTTPHost = cfg.Host
			nodeConf.HTTPPort = cfg.Port
			nodeConf.HTTPModules = []string{"eth", "net", "web3"}
			nodeConf.HTTPCors = []string{"*"}
			nodeConf.HTTPVirtualHosts = []string{"*"}
		}
	})

	c := &Chain{
		cfg:      cfg,
		backend:  backend,
		accounts: accounts,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go c.mine(cfg.BlockTime)

	logger.Info("development chain started",
		zap.String("rpc_url", c.URL()),
		zap.Int64("chain_id", cfg.ChainID),
		zap.Int("accounts", len(accounts)),
	)
	return c, nil
}

func (c *Chain) mine(every time.Duration) {
	defer close(c.done)
	if every <= 0 {
		<-c.stop
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.backend.Commit()
		case <-c.stop:
			return
		}
	}
}

// URL returns the HTTP JSON-RPC endpoint, or "" when HTTP is disabled.
func (c *Chain) URL() string {
	if c.cfg.Port <= 0 {
		return ""
	}
	return fmt.Sprintf("http://%s:%d", c.cfg.Host, c.cfg.Port)
}

// Accounts returns the funded accounts in derivation order.
func (c *Chain) Accounts() []Account {
	return c.accounts
}

// Client returns an in-process client for the chain.
func (c *Chain) Client() simulated.Client {
	return c.backend.Client()
}

// Commit seals the pending transactions into a new block.
func (c *Chain) Commit() common.Hash {
	return c.backend.Commit()
}

// WaitForBlock blocks until the head reaches at least n.
func (c *Chain) WaitForBlock(ctx context.Context, n uint64) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		head, err := c.Client().BlockNumber(ctx)
		if err != nil {
			return err
		}
		if head >= n {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops block production and shuts the node down.
func (c *Chain) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	<-c.done
	c.logger.Info("development chain stopped")
	return c.backend.Close()
}
