package devchain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

func TestDeriveAccounts(t *testing.T) {
	accounts, err := DeriveAccounts(DeterministicMnemonic, 2)
	if err != nil {
		t.Fatalf("DeriveAccounts() error = %v", err)
	}
	want := common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	if accounts[0].Address != want {
		t.Errorf("account 0 = %s, want %s", accounts[0].Address.Hex(), want.Hex())
	}
	if accounts[0].Address == accounts[1].Address {
		t.Error("accounts should be distinct")
	}

	if _, err := DeriveAccounts("not a mnemonic", 1); err == nil {
		t.Error("expected error for invalid mnemonic")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Port != 7545 || cfg.ChainID != 5777 || cfg.Accounts != 10 || cfg.BlockTime != time.Second {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
	thousand := new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether))
	if cfg.Balance.Cmp(thousand) != 0 {
		t.Errorf("Balance = %s, want 1000 ETH", cfg.Balance)
	}
}

// testConfig runs without HTTP and with fast blocks.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Port = 0
	cfg.Accounts = 3
	cfg.BlockTime = 20 * time.Millisecond
	return cfg
}

func TestStart_FundsAccounts(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an in-process chain")
	}

	chain, err := Start(testConfig(), nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer chain.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := chain.Client().ChainID(ctx)
	if err != nil {
		t.Fatalf("ChainID() error = %v", err)
	}
	if id.Int64() != 5777 {
		t.Errorf("chain id = %s, want 5777", id)
	}

	for _, a := range chain.Accounts() {
		bal, err := chain.Client().BalanceAt(ctx, a.Address, nil)
		if err != nil {
			t.Fatalf("BalanceAt() error = %v", err)
		}
		if bal.Cmp(DefaultConfig().Balance) != 0 {
			t.Errorf("balance of %s = %s", a.Address.Hex(), bal)
		}
	}

	if err := chain.WaitForBlock(ctx, 2); err != nil {
		t.Errorf("blocks are not being produced: %v", err)
	}
	if chain.URL() != "" {
		t.Errorf("URL() = %q, want empty without HTTP", chain.URL())
	}
}

func TestClose(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an in-process chain")
	}

	chain, err := Start(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := chain.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := chain.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() = %v, want ErrClosed", err)
	}
}
