package checkout

import (
	"errors"
	"fmt"
)

// Checkout error definitions. Every failure surfaced by the checkout flow wraps
// exactly one of the taxonomy errors below.
var (
	// ErrCapabilityMissing indicates that no wallet provider is available.
	ErrCapabilityMissing = errors.New("checkout: wallet provider not available")

	// ErrMisconfigured indicates a missing contract address, token address, or an unusable amount.
	ErrMisconfigured = errors.New("checkout: payment misconfigured")

	// ErrUserRejected indicates that the wallet prompt was declined.
	ErrUserRejected = errors.New("checkout: request rejected by user")

	// ErrNetwork indicates an RPC or HTTP failure.
	ErrNetwork = errors.New("checkout: network error")

	// ErrVerificationFailed indicates that the backend rejected the transaction.
	ErrVerificationFailed = errors.New("checkout: payment verification failed")

	// ErrSubmitInFlight indicates that a submission is already in progress.
	ErrSubmitInFlight = errors.New("checkout: submission already in progress")

	// ErrWalletNotConnected indicates that the crypto path was chosen without a connected wallet.
	ErrWalletNotConnected = errors.New("checkout: wallet not connected")

	// ErrUnknownToken indicates a token symbol outside the catalog.
	ErrUnknownToken = errors.New("checkout: unknown payment token")

	// ErrUnknownCurrency indicates a currency code outside the catalog.
	ErrUnknownCurrency = errors.New("checkout: unknown currency")

	// ErrUnknownFeeTier indicates a fee tier label other than slow, medium or fast.
	ErrUnknownFeeTier = errors.New("checkout: unknown fee tier")

	// ErrUnknownNetwork indicates a network name outside the configured set.
	ErrUnknownNetwork = errors.New("checkout: unknown network")

	// ErrCheckoutUnavailable indicates that the hosted card checkout could not be started.
	ErrCheckoutUnavailable = errors.New("checkout: hosted checkout unavailable")
)

// ErrorCode classifies a CheckoutError.
type ErrorCode string

const (
	ErrCodeCapabilityMissing  ErrorCode = "CAPABILITY_MISSING"
	ErrCodeMisconfigured      ErrorCode = "MISCONFIGURED"
	ErrCodeUserRejected       ErrorCode = "USER_REJECTED"
	ErrCodeNetwork            ErrorCode = "NETWORK_ERROR"
	ErrCodeVerificationFailed ErrorCode = "VERIFICATION_FAILED"
	ErrCodeInFlight           ErrorCode = "SUBMIT_IN_FLIGHT"
	ErrCodeInvalidSelection   ErrorCode = "INVALID_SELECTION"
	ErrCodeCheckoutFailed     ErrorCode = "CHECKOUT_FAILED"
)

// CheckoutError carries a human-readable message next to the taxonomy error it wraps.
type CheckoutError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
}

// NewCheckoutError creates a CheckoutError. err is normally one of the package sentinels,
// optionally wrapping the underlying cause.
func NewCheckoutError(code ErrorCode, message string, err error) *CheckoutError {
	return &CheckoutError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

func (e *CheckoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value pair and returns the error for chaining.
func (e *CheckoutError) WithDetails(key string, value interface{}) *CheckoutError {
	e.Details[key] = value
	return e
}

// Misconfigured is shorthand for a CheckoutError wrapping ErrMisconfigured.
func Misconfigured(message string) *CheckoutError {
	return NewCheckoutError(ErrCodeMisconfigured, message, ErrMisconfigured)
}

// WalletNotConnected reports a crypto payment attempted before a wallet was
// connected. It matches both ErrMisconfigured and ErrWalletNotConnected.
func WalletNotConnected() *CheckoutError {
	return NewCheckoutError(ErrCodeMisconfigured, "Connect a wallet to pay with crypto",
		fmt.Errorf("%w: %w", ErrMisconfigured, ErrWalletNotConnected))
}

// NetworkError wraps a transport failure so that it matches ErrNetwork.
func NetworkError(message string, cause error) *CheckoutError {
	return NewCheckoutError(ErrCodeNetwork, message, fmt.Errorf("%w: %w", ErrNetwork, cause))
}

// UserRejected wraps a declined wallet prompt so that it matches ErrUserRejected.
func UserRejected(message string) *CheckoutError {
	return NewCheckoutError(ErrCodeUserRejected, message, ErrUserRejected)
}

// VerificationFailed wraps a backend rejection with the server-supplied message.
func VerificationFailed(message string) *CheckoutError {
	if message == "" {
		message = "Payment verification failed"
	}
	return NewCheckoutError(ErrCodeVerificationFailed, message, ErrVerificationFailed)
}

// UserMessage converts any checkout failure into the single message shown to the shopper.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var ce *CheckoutError
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}

	switch {
	case errors.Is(err, ErrCapabilityMissing):
		return "Please install a wallet to make crypto payments"
	case errors.Is(err, ErrUserRejected):
		return "Transaction rejected in wallet"
	case errors.Is(err, ErrVerificationFailed):
		return "Payment verification failed"
	case errors.Is(err, ErrNetwork):
		return "Network error, please try again"
	case errors.Is(err, ErrSubmitInFlight):
		return "A payment is already being processed"
	case errors.Is(err, ErrWalletNotConnected):
		return "Connect a wallet to pay with crypto"
	case errors.Is(err, ErrMisconfigured):
		return "Payment is not configured correctly"
	default:
		return "Failed to process crypto payment"
	}
}

// Classify keeps errors that already belong to the checkout taxonomy and reports
// everything else as a network failure with the given message.
func Classify(err error, message string) error {
	for _, known := range []error{
		ErrCapabilityMissing,
		ErrMisconfigured,
		ErrUserRejected,
		ErrNetwork,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return NetworkError(message, err)
}
