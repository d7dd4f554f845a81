// Package orchestrator coordinates one checkout: selections, wallet linking,
// fee tiers, token amounts and the final card or crypto submission.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	checkout "github.com/storefront/checkout-go"
	"github.com/storefront/checkout-go/backend"
	"github.com/storefront/checkout-go/fees"
	"github.com/storefront/checkout-go/metrics"
	"github.com/storefront/checkout-go/pricing"
	"github.com/storefront/checkout-go/submit"
	"github.com/storefront/checkout-go/wallet"
)

// PaymentSubmitter sends the on-chain payment. *submit.Submitter satisfies it.
type PaymentSubmitter interface {
	Submit(ctx context.Context, req submit.Request) (*submit.Result, error)
}

// Verifier confirms a mined payment with the backend. *backend.Client satisfies it.
type Verifier interface {
	VerifyCryptoPayment(ctx context.Context, req backend.VerifyRequest) (*checkout.OrderConfirmation, error)
}

// SessionCreator opens a hosted card checkout session. *backend.Client satisfies it.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, req backend.SessionRequest) (string, error)
}

// HostedCheckout hands the shopper over to the card gateway.
type HostedCheckout interface {
	RedirectToCheckout(ctx context.Context, sessionID string) error
}

// Config lists the collaborators of an Orchestrator.
type Config struct {
	Cart       checkout.Cart
	Tokens     []checkout.PaymentToken
	Currencies []checkout.Currency

	Connector *wallet.Connector
	Fees      *fees.Estimator
	Converter *pricing.Converter
	Submitter PaymentSubmitter
	Verifier  Verifier

	Sessions SessionCreator
	Hosted   HostedCheckout
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.metrics = r
		}
	}
}

// WithClock overrides the time source used for payment identifiers.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator owns the state of a single checkout.
type Orchestrator struct {
	id  string
	cfg Config

	logger  *zap.Logger
	metrics metrics.Recorder
	now     func() time.Time

	mu    sync.Mutex
	state checkout.CheckoutState
}

// New creates an Orchestrator with card selected, the first token, the medium
// fee tier and the first currency. The connector's hooks are extended to refresh
// fees after the wallet links.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	if cfg.Cart == nil {
		return nil, errors.New("orchestrator: cart is required")
	}
	if cfg.Connector == nil {
		cfg.Connector = wallet.NewConnector(nil, nil)
	}
	if cfg.Converter == nil {
		cfg.Converter = pricing.NewConverter(nil)
	}
	if cfg.Fees == nil {
		cfg.Fees = fees.NewEstimator(cfg.Connector.Provider())
	}
	if len(cfg.Tokens) == 0 {
		cfg.Tokens = checkout.DefaultTokens(common.Address{})
	}
	if len(cfg.Currencies) == 0 {
		cfg.Currencies = checkout.DefaultCurrencies()
	}

	o := &Orchestrator{
		id:      uuid.NewString(),
		cfg:     cfg,
		logger:  zap.NewNop(),
		metrics: metrics.NoopRecorder{},
		now:     time.Now,
		state: checkout.CheckoutState{
			Method:   checkout.PaymentMethodCard,
			Token:    cfg.Tokens[0].Symbol,
			FeeTier:  checkout.FeeTierMedium,
			Currency: cfg.Currencies[0].Code,
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("checkout_id", o.id))

	cfg.Connector.OnConnect(func(ctx context.Context, addr common.Address) {
		o.mu.Lock()
		a := addr
		o.state.Wallet = &a
		o.mu.Unlock()
		o.metrics.IncCounter(metrics.EventWalletLinked, map[string]string{"outcome": metrics.OutcomeSuccess})
		o.cfg.Fees.Refresh(ctx)
	})
	return o, nil
}

// ID returns the checkout session id.
func (o *Orchestrator) ID() string {
	return o.id
}

// State returns a snapshot of the checkout.
func (o *Orchestrator) State() checkout.CheckoutState {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.state
	if s.Wallet != nil {
		w := *s.Wallet
		s.Wallet = &w
	}
	return s
}

// Tokens returns the payment token catalog.
func (o *Orchestrator) Tokens() []checkout.PaymentToken {
	return o.cfg.Tokens
}

// Currencies returns the display currency catalog.
func (o *Orchestrator) Currencies() []checkout.Currency {
	return o.cfg.Currencies
}

// FeeTiers returns the latest fee tiers.
func (o *Orchestrator) FeeTiers() checkout.FeeTiers {
	return o.cfg.Fees.Tiers()
}

// SelectMethod switches between card and crypto payment.
func (o *Orchestrator) SelectMethod(m checkout.PaymentMethod) error {
	if m != checkout.PaymentMethodCard && m != checkout.PaymentMethodCrypto {
		return checkout.NewCheckoutError(checkout.ErrCodeInvalidSelection, "Unknown payment method", nil).
			WithDetails("method", string(m))
	}
	o.mu.Lock()
	o.state.Method = m
	o.mu.Unlock()
	return nil
}

// SelectToken changes the payment token and recomputes the token amount.
func (o *Orchestrator) SelectToken(ctx context.Context, symbol string) error {
	token, err := checkout.TokenBySymbol(o.cfg.Tokens, symbol)
	if err != nil {
		return checkout.NewCheckoutError(checkout.ErrCodeInvalidSelection, "Unsupported payment token", err)
	}
	o.mu.Lock()
	o.state.Token = token.Symbol
	o.mu.Unlock()
	return o.Refresh(ctx)
}

// SelectFeeTier changes the fee tier used for the gas price.
func (o *Orchestrator) SelectFeeTier(label string) error {
	tier, err := checkout.ParseFeeTierLabel(label)
	if err != nil {
		return checkout.NewCheckoutError(checkout.ErrCodeInvalidSelection, "Unknown fee tier", err)
	}
	o.mu.Lock()
	o.state.FeeTier = tier
	o.mu.Unlock()
	return nil
}

// SelectCurrency changes the display currency.
func (o *Orchestrator) SelectCurrency(code string) error {
	c, err := checkout.CurrencyByCode(o.cfg.Currencies, code)
	if err != nil {
		return checkout.NewCheckoutError(checkout.ErrCodeInvalidSelection, "Unsupported currency", err)
	}
	o.mu.Lock()
	o.state.Currency = c.Code
	o.mu.Unlock()
	return nil
}

// DisplayTotal renders the cart total in the selected currency.
func (o *Orchestrator) DisplayTotal() string {
	c, err := checkout.CurrencyByCode(o.cfg.Currencies, o.State().Currency)
	if err != nil {
		c = o.cfg.Currencies[0]
	}
	return c.Format(o.cfg.Cart.Total())
}

// Refresh recomputes the token amount from the current cart total.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	token, err := o.selectedToken()
	if err != nil {
		return err
	}
	amount, err := o.cfg.Converter.Convert(ctx, o.cfg.Cart.Total(), token)
	if err != nil {
		o.logger.Warn("token amount refresh failed", zap.String("token", token.Symbol), zap.Error(err))
		return err
	}
	o.mu.Lock()
	o.state.TokenAmount = amount
	o.mu.Unlock()
	return nil
}

// ConnectWallet links the shopper's wallet. Fee tiers refresh on success.
func (o *Orchestrator) ConnectWallet(ctx context.Context) (common.Address, error) {
	addr, err := o.cfg.Connector.Connect(ctx)
	if err != nil {
		o.metrics.IncCounter(metrics.EventWalletLinked, map[string]string{"outcome": metrics.OutcomeFailure})
		o.setLastError(err)
		return common.Address{}, err
	}
	return addr, nil
}

// CanSubmit reports whether the submit action is enabled.
func (o *Orchestrator) CanSubmit() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.InFlight {
		return false
	}
	if o.state.Method != checkout.PaymentMethodCrypto {
		return true
	}
	return o.cfg.Connector.Available() && o.state.Wallet != nil
}

// Submit places the order with the selected method. Card payments return a nil
// confirmation after the hand-off to the hosted checkout. A call made while
// another is in flight fails with ErrSubmitInFlight.
func (o *Orchestrator) Submit(ctx context.Context) (*checkout.OrderConfirmation, error) {
	snapshot, ok := o.acquire()
	if !ok {
		o.metrics.IncCounter(metrics.EventSubmit, map[string]string{
			"method":  string(snapshot.Method),
			"outcome": metrics.OutcomeBusy,
		})
		return nil, checkout.NewCheckoutError(checkout.ErrCodeInFlight,
			"A payment is already being processed", checkout.ErrSubmitInFlight)
	}

	start := time.Now()
	var (
		conf *checkout.OrderConfirmation
		err  error
	)
	defer func() {
		o.release(err)
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeFailure
		}
		labels := map[string]string{"method": string(snapshot.Method), "outcome": outcome}
		o.metrics.IncCounter(metrics.EventSubmit, labels)
		o.metrics.ObserveLatency(metrics.EventSubmit, time.Since(start), labels)
	}()

	if snapshot.Method == checkout.PaymentMethodCrypto {
		conf, err = o.submitCrypto(ctx, snapshot)
	} else {
		err = o.submitCard(ctx, snapshot)
	}
	return conf, err
}

func (o *Orchestrator) acquire() (checkout.CheckoutState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.InFlight {
		return o.state, false
	}
	o.state.InFlight = true
	o.state.LastError = ""
	return o.state, true
}

func (o *Orchestrator) release(err error) {
	o.mu.Lock()
	o.state.InFlight = false
	if err != nil {
		o.state.LastError = checkout.UserMessage(err)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) setLastError(err error) {
	o.mu.Lock()
	o.state.LastError = checkout.UserMessage(err)
	o.mu.Unlock()
}

func (o *Orchestrator) submitCard(ctx context.Context, s checkout.CheckoutState) error {
	if o.cfg.Sessions == nil || o.cfg.Hosted == nil {
		return checkout.NewCheckoutError(checkout.ErrCodeCheckoutFailed, backend.SessionFailedMessage,
			checkout.ErrCheckoutUnavailable)
	}

	req := backend.SessionRequest{
		Products: o.cfg.Cart.Items(),
		Currency: s.Currency,
	}
	if code := o.cfg.Cart.CouponCode(); code != "" {
		req.CouponCode = &code
	}

	sessionID, err := o.cfg.Sessions.CreateCheckoutSession(ctx, req)
	if err == nil {
		err = o.cfg.Hosted.RedirectToCheckout(ctx, sessionID)
	}
	if err != nil {
		o.logger.Error("card checkout failed", zap.Error(err))
		return checkout.NewCheckoutError(checkout.ErrCodeCheckoutFailed, backend.SessionFailedMessage, err)
	}

	o.logger.Info("redirecting to hosted checkout", zap.String("session_id", sessionID))
	return nil
}

func (o *Orchestrator) submitCrypto(ctx context.Context, s checkout.CheckoutState) (*checkout.OrderConfirmation, error) {
	if s.Wallet == nil {
		return nil, checkout.WalletNotConnected()
	}
	if o.cfg.Submitter == nil || o.cfg.Verifier == nil {
		return nil, checkout.Misconfigured("Crypto payments are not configured")
	}

	token, err := checkout.TokenBySymbol(o.cfg.Tokens, s.Token)
	if err != nil {
		return nil, checkout.Misconfigured("Unsupported payment token")
	}

	total := o.cfg.Cart.Total()
	amount, err := o.cfg.Converter.Convert(ctx, total, token)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.state.TokenAmount = amount
	o.mu.Unlock()

	paymentID := checkout.NewPaymentID(o.now(), *s.Wallet)
	log := o.logger.With(zap.String("payment_id", paymentID.Hex()), zap.String("token", token.Symbol))
	log.Info("submitting crypto payment",
		zap.String("wallet", s.Wallet.Hex()),
		zap.String("amount", amount.String()),
		zap.String("fee_tier", string(s.FeeTier)),
	)

	result, err := o.cfg.Submitter.Submit(ctx, submit.Request{
		Wallet:    s.Wallet,
		Token:     token,
		Amount:    amount,
		GasPrice:  fees.GasPrice(o.cfg.Fees.Tiers().Get(s.FeeTier)),
		PaymentID: paymentID,
	})
	if err != nil {
		log.Warn("crypto payment submission failed", zap.Error(err))
		return nil, err
	}

	conf, err := o.verify(ctx, s, token, total, result)
	if err != nil {
		log.Warn("crypto payment verification failed", zap.String("tx_hash", result.TxHash.Hex()), zap.Error(err))
		return nil, err
	}

	o.cfg.Cart.Clear()
	log.Info("crypto payment complete", zap.String("order_id", conf.OrderID), zap.String("tx_hash", result.TxHash.Hex()))
	return conf, nil
}

func (o *Orchestrator) verify(
	ctx context.Context,
	s checkout.CheckoutState,
	token checkout.PaymentToken,
	total decimal.Decimal,
	result *submit.Result,
) (*checkout.OrderConfirmation, error) {
	req := backend.VerifyRequest{
		Products:        o.cfg.Cart.Items(),
		PaymentID:       result.PaymentID.Hex(),
		WalletAddress:   s.Wallet.Hex(),
		TransactionHash: result.TxHash.Hex(),
		Amount:          total,
		Currency:        s.Currency,
	}
	if !token.IsNative() && token.Address != nil {
		addr := token.Address.Hex()
		req.TokenAddress = &addr
	}

	start := time.Now()
	conf, err := o.cfg.Verifier.VerifyCryptoPayment(ctx, req)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	labels := map[string]string{"method": string(checkout.PaymentMethodCrypto), "outcome": outcome}
	o.metrics.IncCounter(metrics.EventVerify, labels)
	o.metrics.ObserveLatency(metrics.EventVerify, time.Since(start), labels)
	return conf, err
}

func (o *Orchestrator) selectedToken() (checkout.PaymentToken, error) {
	return checkout.TokenBySymbol(o.cfg.Tokens, o.State().Token)
}
