// Command deploy publishes the PaymentProcessor contract to a configured network.
package main

import (
	"context"
	"crypto/ecdsa"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	checkout "github.com/storefront/checkout-go"
	"github.com/storefront/checkout-go/config"
	"github.com/storefront/checkout-go/contract"
	"github.com/storefront/checkout-go/devchain"
	"github.com/storefront/checkout-go/evm"
	"github.com/storefront/checkout-go/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	network := flag.String("network", cfg.Network.Name, "Target network ("+strings.Join(checkout.NetworkNames(), ", ")+")")
	artifactPath := flag.String("artifact", "build/contracts/PaymentProcessor.json", "Compiled contract artifact")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall deployment timeout")
	flag.Parse()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	if *network != cfg.Network.Name {
		os.Setenv("NETWORK", *network)
		if cfg, err = config.FromEnv(); err != nil {
			logger.Fatal("invalid network", zap.Error(err))
		}
	}
	if err := cfg.RequireDeployer(); err != nil {
		logger.Fatal("deployer not configured", zap.Error(err))
	}

	artifact, err := contract.LoadArtifact(*artifactPath)
	if err != nil {
		logger.Fatal("failed to load artifact", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		logger.Fatal("failed to connect", zap.String("rpc_url", cfg.RPCURL), zap.Error(err))
	}
	defer client.Close()

	key, err := deployerKey(cfg)
	if err != nil {
		logger.Fatal("invalid deployer key", zap.Error(err))
	}

	chainID := big.NewInt(cfg.Network.ChainID)
	if cfg.Network.ChainID == 0 {
		if chainID, err = client.ChainID(ctx); err != nil {
			logger.Fatal("failed to read chain id", zap.Error(err))
		}
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		logger.Fatal("failed to create transactor", zap.Error(err))
	}
	opts.Context = ctx
	opts.GasLimit = cfg.Network.GasLimit
	opts.GasPrice = cfg.Network.GasPrice

	result, err := contract.Deploy(ctx, opts, client, artifact, cfg.Network.Confirmations, logger)
	if err != nil {
		logger.Fatal("deployment failed", zap.Error(err))
	}

	fmt.Printf("%s deployed to %s at %s (tx %s, block %d)\n",
		artifact.ContractName, cfg.Network.Name, result.Address.Hex(), result.TxHash.Hex(), result.Block)
	fmt.Printf("Set PAYMENT_PROCESSOR_ADDRESS=%s\n", result.Address.Hex())
}

// deployerKey uses BLOCKCHAIN_DEPLOYER_PRIVATE_KEY, or on the development
// network the first deterministic account.
func deployerKey(cfg *config.Config) (*ecdsa.PrivateKey, error) {
	if cfg.DeployerKey != "" {
		return crypto.HexToECDSA(strings.TrimPrefix(cfg.DeployerKey, "0x"))
	}
	return evm.DeriveKey(devchain.DeterministicMnemonic, 0)
}
