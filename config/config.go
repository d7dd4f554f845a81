// Package config loads runtime settings for the checkout binaries from the
// environment, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	checkout "github.com/storefront/checkout-go"
	"github.com/storefront/checkout-go/validation"
)

// Config holds every setting read from the environment.
type Config struct {
	Network         checkout.NetworkConfig
	RPCURL          string
	DeployerKey     string
	ChainPort       int
	ContractAddress common.Address
	USDTAddress     common.Address
	BackendURL      string
	BackendAuth     string
	PriceFeedURL    string
	RedisURL        string
	ListenAddr      string
	LogLevel        string
	HTTPTimeout     time.Duration
}

// Load reads .env files (missing files are ignored) and then the process
// environment. Already-set environment variables win over .env values.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	network, err := checkout.NetworkByName(getEnv("NETWORK", checkout.Development.Name))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Network:      network,
		DeployerKey:  os.Getenv("BLOCKCHAIN_DEPLOYER_PRIVATE_KEY"),
		BackendURL:   getEnv("BACKEND_URL", "http://localhost:5000/api"),
		BackendAuth:  os.Getenv("BACKEND_AUTH_TOKEN"),
		PriceFeedURL: os.Getenv("PRICE_FEED_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		ListenAddr:   getEnv("LISTEN_ADDR", ":5000"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	cfg.RPCURL = os.Getenv("RPC_URL")
	if cfg.RPCURL == "" {
		if network.Remote() {
			cfg.RPCURL = os.Getenv(network.RPCEnv)
		} else {
			cfg.RPCURL = network.RPCURL
		}
	}

	if cfg.ChainPort, err = strconv.Atoi(getEnv("BLOCKCHAIN_PORT", "7545")); err != nil {
		return nil, fmt.Errorf("invalid BLOCKCHAIN_PORT: %w", err)
	}

	if cfg.HTTPTimeout, err = time.ParseDuration(getEnv("HTTP_TIMEOUT", "30s")); err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}

	if cfg.ContractAddress, err = parseAddress("PAYMENT_PROCESSOR_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.USDTAddress, err = parseAddress("USDT_TOKEN_ADDRESS"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireDeployer checks the settings needed to deploy to a remote network.
func (c *Config) RequireDeployer() error {
	if !c.Network.Remote() {
		return nil
	}
	if c.DeployerKey == "" {
		return fmt.Errorf("%w: BLOCKCHAIN_DEPLOYER_PRIVATE_KEY is required for %s", checkout.ErrMisconfigured, c.Network.Name)
	}
	if c.RPCURL == "" {
		return fmt.Errorf("%w: %s is required for %s", checkout.ErrMisconfigured, c.Network.RPCEnv, c.Network.Name)
	}
	return nil
}

func parseAddress(key string) (common.Address, error) {
	v := os.Getenv(key)
	if v == "" {
		return common.Address{}, nil
	}
	if err := validation.ValidateAddress(v); err != nil {
		return common.Address{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return common.HexToAddress(v), nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
