package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	checkout "github.com/storefront/checkout-go"
)

var envKeys = []string{
	"NETWORK", "RPC_URL", "SEPOLIA_RPC_URL", "MAINNET_RPC_URL", "BLOCKCHAIN_DEPLOYER_PRIVATE_KEY",
	"BLOCKCHAIN_PORT", "PAYMENT_PROCESSOR_ADDRESS", "USDT_TOKEN_ADDRESS", "BACKEND_URL",
	"BACKEND_AUTH_TOKEN", "PRICE_FEED_URL", "REDIS_URL", "LISTEN_ADDR", "LOG_LEVEL", "HTTP_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.Network.Name != "development" {
		t.Errorf("Network = %s, want development", cfg.Network.Name)
	}
	if cfg.RPCURL != "http://127.0.0.1:7545" {
		t.Errorf("RPCURL = %s", cfg.RPCURL)
	}
	if cfg.ChainPort != 7545 {
		t.Errorf("ChainPort = %d, want 7545", cfg.ChainPort)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %v, want 30s", cfg.HTTPTimeout)
	}
	if cfg.ContractAddress != (common.Address{}) {
		t.Errorf("ContractAddress = %s, want zero", cfg.ContractAddress.Hex())
	}
	if err := cfg.RequireDeployer(); err != nil {
		t.Errorf("RequireDeployer() on development = %v", err)
	}
}

func TestFromEnv_Sepolia(t *testing.T) {
	clearEnv(t)
	t.Setenv("NETWORK", "sepolia")
	t.Setenv("SEPOLIA_RPC_URL", "https://sepolia.example/rpc")
	t.Setenv("PAYMENT_PROCESSOR_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.RPCURL != "https://sepolia.example/rpc" {
		t.Errorf("RPCURL = %s", cfg.RPCURL)
	}
	if cfg.ContractAddress != common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3") {
		t.Errorf("ContractAddress = %s", cfg.ContractAddress.Hex())
	}

	err = cfg.RequireDeployer()
	if !errors.Is(err, checkout.ErrMisconfigured) {
		t.Errorf("RequireDeployer() error = %v, want ErrMisconfigured", err)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown network", "NETWORK", "goerli"},
		{"bad port", "BLOCKCHAIN_PORT", "seventy"},
		{"bad timeout", "HTTP_TIMEOUT", "soon"},
		{"bad contract", "PAYMENT_PROCESSOR_ADDRESS", "0x123"},
		{"token without prefix", "USDT_TOKEN_ADDRESS", "e7f1725E7734CE288F8367e1Bb143E90bb3F0512"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := FromEnv(); err == nil {
				t.Errorf("FromEnv() with %s=%q should fail", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("LISTEN_ADDR")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LOG_LEVEL=debug\nLISTEN_ADDR=:9090\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("LISTEN_ADDR")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %s, want :9090", cfg.ListenAddr)
	}
}
