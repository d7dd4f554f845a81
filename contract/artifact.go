package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/storefront/checkout-go/logging"
)

// Artifact is a compiled contract as written by the Truffle build
// (build/contracts/<Name>.json).
type Artifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// LoadArtifact reads a compiled contract artifact.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse artifact %s: %w", path, err)
	}
	if len(a.ABI) == 0 {
		return nil, fmt.Errorf("artifact %s has no abi", path)
	}
	if len(common.FromHex(a.Bytecode)) == 0 {
		return nil, fmt.Errorf("artifact %s has no bytecode", path)
	}
	return &a, nil
}

// ParsedABI parses the artifact's ABI.
func (a *Artifact) ParsedABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(string(a.ABI)))
}

// DeployBackend is what Deploy needs from a node connection.
type DeployBackend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
}

// DeployResult describes a mined deployment.
type DeployResult struct {
	Address common.Address
	TxHash  common.Hash
	Block   uint64
}

// Deploy sends the artifact's creation transaction and waits for it to be mined
// and, when confirmations > 0, buried under that many blocks.
func Deploy(ctx context.Context, opts *bind.TransactOpts, backend DeployBackend, a *Artifact, confirmations uint64, logger *zap.Logger) (*DeployResult, error) {
	logger = logging.OrNop(logger)

	parsed, err := a.ParsedABI()
	if err != nil {
		return nil, fmt.Errorf("invalid artifact abi: %w", err)
	}
	if err := CheckProcessorABI(parsed); err != nil {
		return nil, fmt.Errorf("artifact %s: %w", a.ContractName, err)
	}

	logger.Info("Contract deployed by: "+opts.From.Hex(), zap.String("contract", a.ContractName))

	addr, tx, _, err := bind.DeployContract(opts, parsed, common.FromHex(a.Bytecode), backend)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s: %w", a.ContractName, err)
	}

	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for deployment: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("deployment of %s reverted in tx %s", a.ContractName, tx.Hash().Hex())
	}

	if err := waitConfirmations(ctx, backend, receipt.BlockNumber.Uint64(), confirmations); err != nil {
		return nil, err
	}

	logger.Info("contract deployed",
		zap.String("contract", a.ContractName),
		zap.String("address", addr.Hex()),
		zap.String("tx_hash", tx.Hash().Hex()),
	)

	return &DeployResult{Address: addr, TxHash: tx.Hash(), Block: receipt.BlockNumber.Uint64()}, nil
}
