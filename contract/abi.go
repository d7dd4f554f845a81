// Package contract encodes and decodes calls to the PaymentProcessor contract
// and the ERC-20 tokens it accepts.
package contract

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// PaymentProcessorABI is the subset of the PaymentProcessor interface used at checkout.
const PaymentProcessorABI = `[
	{
		"inputs": [{"internalType": "bytes32", "name": "paymentId", "type": "bytes32"}],
		"name": "processPayment",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "token", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "bytes32", "name": "paymentId", "type": "bytes32"}
		],
		"name": "processTokenPayment",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// ERC20ABI covers allowance management.
const ERC20ABI = `[
	{
		"constant": false,
		"inputs": [
			{"name": "_spender", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"payable": false,
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "_owner", "type": "address"},
			{"name": "_spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"payable": false,
		"stateMutability": "view",
		"type": "function"
	}
]`

// Method names.
const (
	MethodProcessPayment      = "processPayment"
	MethodProcessTokenPayment = "processTokenPayment"
	MethodApprove             = "approve"
	MethodAllowance           = "allowance"
)

var (
	// ErrUnknownMethod indicates calldata whose selector is not a payment method.
	ErrUnknownMethod = errors.New("contract: unknown method")

	// ErrShortCalldata indicates calldata without a full selector.
	ErrShortCalldata = errors.New("contract: calldata too short")
)

var (
	processorABI = mustParse(PaymentProcessorABI)
	erc20ABI     = mustParse(ERC20ABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("contract: invalid ABI: %v", err))
	}
	return parsed
}

// ErrMissingMethod indicates an artifact that lacks a PaymentProcessor method.
var ErrMissingMethod = errors.New("contract: artifact is missing a payment method")

// CheckProcessorABI reports whether parsed exposes every PaymentProcessor
// method with the expected signature.
func CheckProcessorABI(parsed abi.ABI) error {
	for name, want := range processorABI.Methods {
		got, ok := parsed.Methods[name]
		if !ok || got.Sig != want.Sig {
			return fmt.Errorf("%w: %s", ErrMissingMethod, want.Sig)
		}
	}
	return nil
}

// PackProcessPayment encodes processPayment(paymentId).
func PackProcessPayment(paymentID common.Hash) ([]byte, error) {
	return processorABI.Pack(MethodProcessPayment, [32]byte(paymentID))
}

// PackProcessTokenPayment encodes processTokenPayment(token, amount, paymentId).
func PackProcessTokenPayment(token common.Address, amount *big.Int, paymentID common.Hash) ([]byte, error) {
	return processorABI.Pack(MethodProcessTokenPayment, token, amount, [32]byte(paymentID))
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack(MethodApprove, spender, amount)
}

// PackAllowance encodes allowance(owner, spender).
func PackAllowance(owner, spender common.Address) ([]byte, error) {
	return erc20ABI.Pack(MethodAllowance, owner, spender)
}

// UnpackAllowance decodes the allowance return value.
func UnpackAllowance(data []byte) (*big.Int, error) {
	out, err := erc20ABI.Unpack(MethodAllowance, data)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("contract: allowance returned %d values", len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("contract: allowance returned %T", out[0])
	}
	return v, nil
}

// Call is a decoded PaymentProcessor call.
type Call struct {
	Method    string
	PaymentID common.Hash

	// Token and Amount are set for processTokenPayment only.
	Token  common.Address
	Amount *big.Int
}

// IsToken reports whether the call pays with an ERC-20 token.
func (c *Call) IsToken() bool {
	return c.Method == MethodProcessTokenPayment
}

// DecodeCall recovers the method and arguments of a PaymentProcessor transaction input.
func DecodeCall(input []byte) (*Call, error) {
	if len(input) < 4 {
		return nil, ErrShortCalldata
	}

	method, err := processorABI.MethodById(input[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: %x", ErrUnknownMethod, input[:4])
	}

	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("contract: failed to decode %s: %w", method.Name, err)
	}

	call := &Call{Method: method.Name}
	switch method.Name {
	case MethodProcessPayment:
		call.PaymentID = common.Hash(args[0].([32]byte))
	case MethodProcessTokenPayment:
		call.Token = args[0].(common.Address)
		call.Amount = args[1].(*big.Int)
		call.PaymentID = common.Hash(args[2].([32]byte))
	}
	return call, nil
}
