package evm

import "errors"

var (
	// ErrInvalidKey indicates a missing or malformed private key.
	ErrInvalidKey = errors.New("evm: invalid private key")

	// ErrInvalidKeystore indicates a keystore file that cannot be read or decrypted.
	ErrInvalidKeystore = errors.New("evm: invalid keystore")

	// ErrInvalidMnemonic indicates a mnemonic that fails BIP-39 validation or derivation.
	ErrInvalidMnemonic = errors.New("evm: invalid mnemonic")

	// ErrNoBackend indicates that no chain backend was configured.
	ErrNoBackend = errors.New("evm: no chain backend")

	// ErrReverted indicates a transaction that was mined with a failed status.
	ErrReverted = errors.New("evm: transaction reverted")
)
