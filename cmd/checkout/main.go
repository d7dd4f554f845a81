// Command checkout runs a storefront checkout from the terminal: it quotes the
// order in ETH or USDT, pays through the PaymentProcessor contract and has the
// backend verify the payment.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	checkout "github.com/storefront/checkout-go"
	"github.com/storefront/checkout-go/backend"
	"github.com/storefront/checkout-go/config"
	"github.com/storefront/checkout-go/devchain"
	"github.com/storefront/checkout-go/evm"
	"github.com/storefront/checkout-go/fees"
	"github.com/storefront/checkout-go/logging"
	"github.com/storefront/checkout-go/orchestrator"
	"github.com/storefront/checkout-go/pricing"
	"github.com/storefront/checkout-go/store"
	"github.com/storefront/checkout-go/submit"
	"github.com/storefront/checkout-go/wallet"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "pay":
		err = runPay(os.Args[2:])
	case "quote":
		err = runQuote(os.Args[2:])
	case "revoke":
		err = runRevoke(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", checkout.UserMessage(err))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("checkout - pay for a storefront cart with a crypto wallet")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  checkout quote [flags]   - Show token amounts and network fee tiers")
	fmt.Println("  checkout pay [flags]     - Pay for the cart (card or crypto)")
	fmt.Println("  checkout revoke [flags]  - Reset the contract's token allowance to zero")
	fmt.Println()
	fmt.Println("Run 'checkout pay --help' for more information.")
}

// walletFlags selects the signing key.
type walletFlags struct {
	key      *string
	keystore *string
	password *string
	mnemonic *string
	index    *uint
	yes      *bool
}

func addWalletFlags(fs *flag.FlagSet) walletFlags {
	return walletFlags{
		key:      fs.String("key", os.Getenv("WALLET_PRIVATE_KEY"), "Hex private key"),
		keystore: fs.String("keystore", "", "Path to a V3 keystore file"),
		password: fs.String("password", os.Getenv("WALLET_PASSWORD"), "Keystore password"),
		mnemonic: fs.String("mnemonic", os.Getenv("WALLET_MNEMONIC"), "BIP-39 mnemonic (default: development mnemonic on the development network)"),
		index:    fs.Uint("index", 1, "Account index for --mnemonic"),
		yes:      fs.Bool("yes", false, "Approve every transaction without prompting"),
	}
}

func (f walletFlags) options(cfg *config.Config) ([]evm.WalletOption, error) {
	var opts []evm.WalletOption
	switch {
	case *f.key != "":
		opts = append(opts, evm.WithPrivateKey(*f.key))
	case *f.keystore != "":
		opts = append(opts, evm.WithKeystore(*f.keystore, *f.password))
	case *f.mnemonic != "":
		opts = append(opts, evm.WithMnemonic(*f.mnemonic, uint32(*f.index)))
	case !cfg.Network.Remote():
		opts = append(opts, evm.WithMnemonic(devchain.DeterministicMnemonic, uint32(*f.index)))
	default:
		return nil, fmt.Errorf("%w: a wallet key is required on %s", checkout.ErrMisconfigured, cfg.Network.Name)
	}
	if !*f.yes {
		opts = append(opts, evm.WithConfirm(promptConfirm))
	}
	return opts, nil
}

func promptConfirm(req checkout.TxRequest) bool {
	value := "0"
	if req.Value != nil {
		value = checkout.FromBaseUnits(req.Value, 18).String()
	}
	fmt.Printf("Confirm transaction to %s (value %s ETH, %d bytes of data)? [y/N] ", req.To.Hex(), value, len(req.Data))
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// env bundles what every subcommand needs.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	client *ethclient.Client
	wallet *evm.Wallet
	tokens []checkout.PaymentToken
}

func setup(ctx context.Context, wf walletFlags, needWallet bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger, tokens: checkout.DefaultTokens(cfg.USDTAddress)}
	if !needWallet {
		return e, nil
	}

	if e.client, err = ethclient.DialContext(ctx, cfg.RPCURL); err != nil {
		return nil, checkout.NetworkError("Unable to reach the blockchain node", err)
	}
	opts, err := wf.options(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, evm.WithBackend(e.client), evm.WithLogger(logger))
	if e.wallet, err = evm.NewWallet(opts...); err != nil {
		return nil, checkout.Misconfigured("Invalid wallet key").WithDetails("cause", err.Error())
	}
	return e, nil
}

func (e *env) priceSource() pricing.PriceSource {
	if e.cfg.PriceFeedURL != "" {
		return pricing.NewFeedSource(e.cfg.PriceFeedURL, e.logger)
	}
	return pricing.NewStaticSource()
}

func (e *env) approvalStore(ctx context.Context) (store.ApprovalStore, error) {
	if e.cfg.RedisURL == "" {
		return store.NewMemoryStore(), nil
	}
	client, err := store.NewRedisClient(ctx, e.cfg.RedisURL)
	if err != nil {
		return nil, checkout.NetworkError("Unable to reach Redis", err)
	}
	return store.NewRedisStore(client, 24*time.Hour), nil
}

func cartFromFlags(items itemFlags, cartPath, coupon string) (*cart, error) {
	c := &cart{items: items, coupon: coupon}
	if cartPath != "" {
		loaded, err := loadCart(cartPath)
		if err != nil {
			return nil, err
		}
		c.items = append(c.items, loaded...)
	}
	if len(c.items) == 0 {
		return nil, fmt.Errorf("%w: the cart is empty, add --item or --cart", checkout.ErrMisconfigured)
	}
	return c, nil
}

func runQuote(args []string) error {
	fs := flag.NewFlagSet("quote", flag.ExitOnError)
	var items itemFlags
	fs.Var(&items, "item", "Cart item id:name:price[:qty] (repeatable)")
	cartPath := fs.String("cart", "", "JSON file with cart items")
	currency := fs.String("currency", "USD", "Display currency")
	wf := addWalletFlags(fs)
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := cartFromFlags(items, *cartPath, "")
	if err != nil {
		return err
	}
	e, err := setup(ctx, wf, true)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	cur, err := checkout.CurrencyByCode(checkout.DefaultCurrencies(), *currency)
	if err != nil {
		return err
	}
	converter := pricing.NewConverter(e.priceSource())

	fmt.Printf("Order total: %s\n", cur.Format(c.Total()))
	for _, token := range e.tokens {
		amount, err := converter.Convert(ctx, c.Total(), token)
		if err != nil {
			fmt.Printf("  %-5s unavailable: %s\n", token.Symbol, checkout.UserMessage(err))
			continue
		}
		unit, _ := converter.UnitPrice(ctx, token)
		fmt.Printf("  %-5s %s  (1 %s = %s)\n", token.Symbol, amount.StringFixed(6), token.Symbol, cur.Format(unit))
	}

	estimator := fees.NewEstimator(e.wallet, fees.WithLogger(e.logger))
	estimator.Refresh(ctx)
	if !estimator.Ready() {
		fmt.Println("Network fee: unavailable, the wallet default will apply")
		return nil
	}
	tiers := estimator.Tiers()
	fmt.Printf("Network fee (as of %s):\n", estimator.UpdatedAt().Format(time.Kitchen))
	for _, t := range []*checkout.FeeTier{tiers.Slow, tiers.Medium, tiers.Fast} {
		if t == nil {
			continue
		}
		fmt.Printf("  %-6s %s gwei  %s\n", t.Label, t.Fee, t.ExpectedTime)
	}
	return nil
}

func runPay(args []string) error {
	fs := flag.NewFlagSet("pay", flag.ExitOnError)
	var items itemFlags
	fs.Var(&items, "item", "Cart item id:name:price[:qty] (repeatable)")
	cartPath := fs.String("cart", "", "JSON file with cart items")
	coupon := fs.String("coupon", "", "Coupon code")
	method := fs.String("method", "crypto", "Payment method (card, crypto)")
	token := fs.String("token", "ETH", "Payment token (ETH, USDT)")
	feeTier := fs.String("fee", "medium", "Fee tier (slow, medium, fast)")
	currency := fs.String("currency", "USD", "Currency sent to the backend")
	wf := addWalletFlags(fs)
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := cartFromFlags(items, *cartPath, *coupon)
	if err != nil {
		return err
	}
	payCrypto := checkout.PaymentMethod(*method) == checkout.PaymentMethodCrypto
	e, err := setup(ctx, wf, payCrypto)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	client := backend.NewClient(e.cfg.BackendURL,
		backend.WithAuthToken(e.cfg.BackendAuth),
		backend.WithLogger(e.logger),
	)

	ocfg := orchestrator.Config{
		Cart:      c,
		Tokens:    e.tokens,
		Converter: pricing.NewConverter(e.priceSource()),
		Verifier:  client,
		Sessions:  client,
		Hosted:    printRedirect{},
	}
	if payCrypto {
		approvals, err := e.approvalStore(ctx)
		if err != nil {
			return err
		}
		ocfg.Connector = wallet.NewConnector(e.wallet, e.logger)
		ocfg.Fees = fees.NewEstimator(e.wallet, fees.WithLogger(e.logger))
		ocfg.Submitter = submit.NewSubmitter(e.wallet, e.cfg.ContractAddress,
			submit.WithApprovalStore(approvals),
			submit.WithContractCaller(e.client),
			submit.WithLogger(e.logger),
			submit.OnTransition(func(from, to submit.State) {
				fmt.Printf("  %s -> %s\n", from, to)
				if to.Active() {
					fmt.Println("  waiting for the transaction to be mined")
				}
			}),
		)
	}

	o, err := orchestrator.New(ocfg, orchestrator.WithLogger(e.logger))
	if err != nil {
		return err
	}
	if err := o.SelectMethod(checkout.PaymentMethod(*method)); err != nil {
		return err
	}
	if err := o.SelectCurrency(*currency); err != nil {
		return err
	}
	if err := o.SelectFeeTier(*feeTier); err != nil {
		return err
	}

	if payCrypto {
		addr, err := o.ConnectWallet(ctx)
		if err != nil {
			return err
		}
		if err := o.SelectToken(ctx, *token); err != nil {
			return err
		}
		s := o.State()
		fmt.Printf("Paying %s %s (%s) from %s\n", s.TokenAmount.String(), s.Token, o.DisplayTotal(), addr.Hex())
	}

	conf, err := o.Submit(ctx)
	if err != nil {
		return err
	}
	if conf != nil {
		fmt.Printf("Order %s confirmed. Continue at %s\n", conf.OrderID, conf.RedirectURL)
	}
	return nil
}

func runRevoke(args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	token := fs.String("token", "USDT", "Token whose allowance to revoke")
	wf := addWalletFlags(fs)
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx, wf, true)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	t, err := checkout.TokenBySymbol(e.tokens, *token)
	if err != nil {
		return err
	}
	approvals, err := e.approvalStore(ctx)
	if err != nil {
		return err
	}

	sub := submit.NewSubmitter(e.wallet, e.cfg.ContractAddress,
		submit.WithApprovalStore(approvals),
		submit.WithLogger(e.logger),
	)
	hash, err := sub.Revoke(ctx, e.wallet.Address(), t)
	if err != nil {
		return err
	}
	fmt.Printf("Allowance for %s revoked in %s\n", t.Symbol, hash.Hex())
	return nil
}

// printRedirect stands in for the browser redirect to the hosted card checkout.
type printRedirect struct{}

func (printRedirect) RedirectToCheckout(_ context.Context, sessionID string) error {
	fmt.Printf("Continue to the hosted checkout with session %s\n", sessionID)
	return nil
}
