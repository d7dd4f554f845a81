// Command devchain runs the local development chain on 127.0.0.1:7545.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/storefront/checkout-go/devchain"
	"github.com/storefront/checkout-go/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := devchain.DefaultConfig()
	if v := os.Getenv("BLOCKCHAIN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("invalid BLOCKCHAIN_PORT: %v", err)
		}
		cfg.Port = port
	}

	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP JSON-RPC port")
	flag.Int64Var(&cfg.ChainID, "chain-id", cfg.ChainID, "Chain id")
	flag.IntVar(&cfg.Accounts, "accounts", cfg.Accounts, "Number of funded accounts")
	flag.DurationVar(&cfg.BlockTime, "block-time", cfg.BlockTime, "Interval between blocks")
	showKeys := flag.Bool("show-keys", true, "Print the private keys of the funded accounts")
	level := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger, err := logging.New(*level)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	fmt.Println("Starting local development blockchain...")
	chain, err := devchain.Start(cfg, logger)
	if err != nil {
		logger.Fatal("failed to start chain", zap.Error(err))
	}

	fmt.Println()
	fmt.Println("Available accounts:")
	for _, a := range chain.Accounts() {
		if *showKeys {
			fmt.Printf("  (%d) %s  key 0x%x\n", a.Index, a.Address.Hex(), crypto.FromECDSA(a.Key))
		} else {
			fmt.Printf("  (%d) %s\n", a.Index, a.Address.Hex())
		}
	}
	fmt.Println()
	fmt.Printf("Blockchain running on %s\n", chain.URL())
	fmt.Println("Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("Shutting down blockchain...")
	if err := chain.Close(); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
