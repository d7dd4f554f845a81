// Package validation checks checkout request payloads. Struct rules are declared
// with go-playground/validator tags; this package adds the Ethereum-specific ones.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	// evmAddressRegex matches Ethereum-style addresses (0x followed by 40 hex chars)
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// bytes32Regex matches 32-byte hex values such as transaction hashes and payment ids
	bytes32Regex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("evmaddr", func(fl validator.FieldLevel) bool {
		return ValidateAddress(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("bytes32", func(fl validator.FieldLevel) bool {
		return ValidateHash(fl.Field().String()) == nil
	})
	return v
}

// Struct validates v against its `validate` tags and flattens the failures into
// a single readable error.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, ", "))
}

// ValidateAddress checks an Ethereum address string.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !evmAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid EVM address format: %s (expected 0x followed by 40 hex characters)", address)
	}
	return nil
}

// ValidateHash checks a 32-byte hex value.
func ValidateHash(hash string) error {
	if !bytes32Regex.MatchString(hash) {
		return fmt.Errorf("invalid 32-byte hex value: %q", hash)
	}
	return nil
}

// ValidateAmount checks that a fiat amount is strictly positive.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be greater than 0, got: %s", amount)
	}
	return nil
}
