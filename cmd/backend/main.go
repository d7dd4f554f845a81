// Command backend serves the payment verification and checkout session endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	checkout "github.com/storefront/checkout-go"
	"github.com/storefront/checkout-go/config"
	"github.com/storefront/checkout-go/logging"
	"github.com/storefront/checkout-go/metrics"
	"github.com/storefront/checkout-go/pricing"
	"github.com/storefront/checkout-go/server"
	ginserver "github.com/storefront/checkout-go/server/gin"
	"github.com/storefront/checkout-go/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	engine := flag.String("engine", "chi", "HTTP router (chi, gin)")
	addr := flag.String("addr", cfg.ListenAddr, "Listen address")
	slippage := flag.String("slippage", "0", "Accepted shortfall against the expected payment, as a fraction (e.g. 0.01)")
	flag.Parse()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	if cfg.ContractAddress == (common.Address{}) {
		logger.Fatal("PAYMENT_PROCESSOR_ADDRESS is required")
	}
	tolerance, err := decimal.NewFromString(*slippage)
	if err != nil || tolerance.IsNegative() || tolerance.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		logger.Fatal("invalid slippage", zap.String("slippage", *slippage))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		logger.Fatal("failed to connect to chain", zap.String("rpc_url", cfg.RPCURL), zap.Error(err))
	}
	defer client.Close()

	orders, closeStore, err := openOrderStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open order store", zap.Error(err))
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewPrometheusRecorder(reg)
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	var prices pricing.PriceSource = pricing.NewStaticSource()
	if cfg.PriceFeedURL != "" {
		prices = pricing.NewFeedSource(cfg.PriceFeedURL, logger)
	}

	verifier := server.NewChainVerifier(client, cfg.ContractAddress, orders,
		server.WithVerifierLogger(logger),
		server.WithPricing(pricing.NewConverter(prices), checkout.DefaultTokens(cfg.USDTAddress)),
		server.WithSlippage(tolerance),
	)
	handlers := server.NewHandlers(verifier, nil, server.WithLogger(logger), server.WithMetrics(recorder))

	var handler http.Handler
	switch *engine {
	case "gin":
		handler = ginserver.New(handlers, reg, logger)
	case "chi":
		handler = server.NewRouter(handlers, reg)
	default:
		logger.Fatal("unknown engine", zap.String("engine", *engine))
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.HTTPTimeout + 30*time.Second,
	}

	go func() {
		logger.Info("payment backend listening",
			zap.String("addr", *addr),
			zap.String("engine", *engine),
			zap.String("network", cfg.Network.Name),
			zap.String("contract", cfg.ContractAddress.Hex()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}

func openOrderStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.OrderStore, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, orders are kept in memory")
		return store.NewMemoryStore(), func() {}, nil
	}
	client, err := store.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return store.NewRedisStore(client, 24*time.Hour), func() { _ = client.Close() }, nil
}
