// Package fees turns the wallet's network fee estimate into slow, medium and fast tiers.
package fees

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	checkout "github.com/storefront/checkout-go"
	"github.com/storefront/checkout-go/metrics"
)

// FeeSource is the part of a wallet the estimator needs.
type FeeSource interface {
	GetFeeEstimate(ctx context.Context) (*big.Int, error)
}

var tierSpecs = []struct {
	label      checkout.FeeTierLabel
	multiplier decimal.Decimal
	eta        string
}{
	{checkout.FeeTierSlow, decimal.RequireFromString("0.8"), "5-10 min"},
	{checkout.FeeTierMedium, decimal.NewFromInt(1), "2-5 min"},
	{checkout.FeeTierFast, decimal.RequireFromString("1.5"), "< 2 min"},
}

// Estimator holds the most recent tier set.
type Estimator struct {
	source  FeeSource
	logger  *zap.Logger
	metrics metrics.Recorder

	mu      sync.RWMutex
	tiers   checkout.FeeTiers
	updated time.Time
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithLogger sets the logger used for refresh failures.
func WithLogger(l *zap.Logger) Option {
	return func(e *Estimator) { e.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(e *Estimator) { e.metrics = r }
}

// NewEstimator creates an Estimator reading from source.
func NewEstimator(source FeeSource, opts ...Option) *Estimator {
	e := &Estimator{
		source:  source,
		logger:  zap.NewNop(),
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TiersFromWei derives the three tiers from a base fee in wei. Each fee is
// floor(gwei × multiplier).
func TiersFromWei(baseFee *big.Int) checkout.FeeTiers {
	g := checkout.WeiToGwei(baseFee)

	var tiers checkout.FeeTiers
	for _, s := range tierSpecs {
		tier := &checkout.FeeTier{
			Label:        s.label,
			Fee:          g.Mul(s.multiplier).Floor(),
			ExpectedTime: s.eta,
		}
		switch s.label {
		case checkout.FeeTierSlow:
			tiers.Slow = tier
		case checkout.FeeTierMedium:
			tiers.Medium = tier
		case checkout.FeeTierFast:
			tiers.Fast = tier
		}
	}
	return tiers
}

// Estimate queries the source and returns a fresh tier set without storing it.
func (e *Estimator) Estimate(ctx context.Context) (checkout.FeeTiers, error) {
	if e.source == nil {
		return checkout.FeeTiers{}, checkout.NewCheckoutError(checkout.ErrCodeCapabilityMissing,
			"Please install a wallet to make crypto payments", checkout.ErrCapabilityMissing)
	}

	wei, err := e.source.GetFeeEstimate(ctx)
	if err != nil {
		return checkout.FeeTiers{}, checkout.NetworkError("Unable to fetch network fees", err)
	}
	if wei == nil || wei.Sign() < 0 {
		return checkout.FeeTiers{}, checkout.NetworkError("Unable to fetch network fees", errInvalidFee)
	}
	return TiersFromWei(wei), nil
}

// Refresh re-queries the fee estimate. A failure is logged and the previous tiers
// are kept; a success replaces them.
func (e *Estimator) Refresh(ctx context.Context) {
	tiers, err := e.Estimate(ctx)
	if err != nil {
		e.logger.Warn("fee estimate refresh failed", zap.Error(err))
		e.metrics.IncCounter(metrics.EventFeeRefresh, map[string]string{"outcome": metrics.OutcomeFailure})
		return
	}

	e.mu.Lock()
	e.tiers = tiers
	e.updated = time.Now()
	e.mu.Unlock()

	e.logger.Debug("fee tiers updated",
		zap.String("slow", tiers.Slow.Fee.String()),
		zap.String("medium", tiers.Medium.Fee.String()),
		zap.String("fast", tiers.Fast.Fee.String()),
	)
	e.metrics.IncCounter(metrics.EventFeeRefresh, map[string]string{"outcome": metrics.OutcomeSuccess})
}

// Tiers returns the latest tier set. It is empty until a refresh succeeds.
func (e *Estimator) Tiers() checkout.FeeTiers {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tiers
}

// Ready reports whether any refresh has succeeded.
func (e *Estimator) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.updated.IsZero()
}

// UpdatedAt returns the time of the last successful refresh.
func (e *Estimator) UpdatedAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.updated
}

// GasPrice returns the wei price for the selected tier, or nil when the tier is
// unknown or zero so that the wallet applies its own default.
func GasPrice(tier *checkout.FeeTier) *big.Int {
	if tier == nil || !tier.Fee.IsPositive() {
		return nil
	}
	return checkout.GweiToWei(tier.Fee.BigInt())
}
