package checkout

import (
	"fmt"
	"math/big"
	"sort"
)

// NetworkConfig describes a chain the payment contract can be deployed to.
type NetworkConfig struct {
	// Name is the network identifier used on the command line (e.g., "sepolia").
	Name string

	// RPCURL is the default JSON-RPC endpoint. Remote networks read theirs from the environment.
	RPCURL string

	// ChainID is the EIP-155 chain id. Zero means "ask the node".
	ChainID int64

	// GasLimit is the gas limit used for deployment transactions.
	GasLimit uint64

	// GasPrice is a fixed gas price in wei. Nil means use the node's suggestion.
	GasPrice *big.Int

	// Confirmations is the number of blocks to wait after inclusion.
	Confirmations uint64

	// TimeoutBlocks bounds how many blocks a deployment may take to be mined.
	TimeoutBlocks uint64

	// RPCEnv names the environment variable holding the RPC URL.
	RPCEnv string
}

var (
	// Development is the local chain started by cmd/devchain.
	Development = NetworkConfig{
		Name:     "development",
		RPCURL:   "http://127.0.0.1:7545",
		GasLimit: 5_000_000,
	}

	// Sepolia is the Ethereum test network.
	Sepolia = NetworkConfig{
		Name:          "sepolia",
		ChainID:       11155111,
		GasLimit:      5_500_000,
		Confirmations: 2,
		TimeoutBlocks: 200,
		RPCEnv:        "SEPOLIA_RPC_URL",
	}

	// Mainnet is Ethereum mainnet.
	Mainnet = NetworkConfig{
		Name:          "mainnet",
		ChainID:       1,
		GasLimit:      5_000_000,
		GasPrice:      GweiToWei(big.NewInt(50)),
		Confirmations: 2,
		RPCEnv:        "MAINNET_RPC_URL",
	}
)

var networks = map[string]NetworkConfig{
	Development.Name: Development,
	Sepolia.Name:     Sepolia,
	Mainnet.Name:     Mainnet,
}

// NetworkByName looks up a network configuration.
func NetworkByName(name string) (NetworkConfig, error) {
	n, ok := networks[name]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
	return n, nil
}

// NetworkNames returns the configured network names in sorted order.
func NetworkNames() []string {
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remote reports whether the network requires a deployer key and an RPC URL from the environment.
func (n NetworkConfig) Remote() bool {
	return n.RPCEnv != ""
}
