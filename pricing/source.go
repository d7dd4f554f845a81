// Package pricing converts fiat order totals into payment token amounts.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	checkout "github.com/storefront/checkout-go"
	"github.com/storefront/checkout-go/logging"
	"github.com/storefront/checkout-go/retry"
)

// PriceSource supplies the fiat price of one unit of the native asset.
type PriceSource interface {
	GetReferencePrice(ctx context.Context) (decimal.Decimal, error)
}

// StaticSource always returns the same price.
type StaticSource struct {
	Price decimal.Decimal
}

// NewStaticSource returns a source fixed at the default reference price.
func NewStaticSource() StaticSource {
	return StaticSource{Price: decimal.NewFromInt(checkout.ReferencePrice)}
}

func (s StaticSource) GetReferencePrice(context.Context) (decimal.Decimal, error) {
	return s.Price, nil
}

// FeedSource reads the price from an HTTP endpoint returning the
// {"<asset>":{"<currency>":<price>}} shape used by CoinGecko's simple price API.
type FeedSource struct {
	URL        string
	Asset      string
	Currency   string
	HTTPClient *http.Client
	Retry      retry.Config
	Logger     *zap.Logger
}

// NewFeedSource creates a feed source for ETH/USD at url.
func NewFeedSource(url string, logger *zap.Logger) *FeedSource {
	logger = logging.OrNop(logger)
	return &FeedSource{
		URL:        url,
		Asset:      "ethereum",
		Currency:   "usd",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Retry:      retry.DefaultConfig,
		Logger:     logger,
	}
}

func (f *FeedSource) GetReferencePrice(ctx context.Context) (decimal.Decimal, error) {
	price, err := retry.WithRetry(ctx, f.Retry, retry.IsTransient, f.fetch)
	if err != nil {
		f.Logger.Warn("price feed unavailable", zap.String("url", f.URL), zap.Error(err))
		return decimal.Zero, checkout.NetworkError("Unable to fetch the current price", err)
	}
	return price, nil
}

func (f *FeedSource) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, err
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, &retry.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var data map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &data); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price feed: %w", err)
	}

	price, ok := data[f.Asset][f.Currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("price feed has no %s/%s quote", f.Asset, f.Currency)
	}

	f.Logger.Debug("price feed quote", zap.String("asset", f.Asset), zap.String("price", price.String()))
	return price, nil
}
