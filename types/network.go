package types

import "strings"

// ChainFamily classifies a network into a blockchain family.
type ChainFamily string

const (
	ChainUnknown ChainFamily = ""
	ChainEVM     ChainFamily = "evm"
	ChainSolana  ChainFamily = "solana"
)

// Family returns the chain family the network belongs to.
func (n Network) Family() ChainFamily {
	switch {
	case n.IsSolana():
		return ChainSolana
	case n.IsEVM():
		return ChainEVM
	default:
		return ChainUnknown
	}
}

// Cluster maps a Solana network name to its cluster ("mainnet-beta", "devnet", "testnet").
// CAIP-2 identifiers map by their well-known genesis hash prefix.
func (n Network) Cluster() string {
	switch n {
	case NetworkSolana, NetworkSolanaMainnet, NetworkMainnetBeta:
		return "mainnet-beta"
	case NetworkSolanaDevnet, NetworkDevnet:
		return "devnet"
	case NetworkSolanaTestnet, NetworkTestnet:
		return "testnet"
	}
	s := string(n)
	switch {
	case strings.HasPrefix(s, "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"):
		return "mainnet-beta"
	case strings.HasPrefix(s, "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"):
		return "devnet"
	case strings.HasPrefix(s, "solana:4uhcVJyU9pJkvQyS88uRDiswHXSCkY3z"):
		return "testnet"
	}
	return ""
}

// ClusterRPCURL returns the public RPC endpoint for a cluster name.
func ClusterRPCURL(cluster string) string {
	switch cluster {
	case "mainnet-beta":
		return "https://api.mainnet-beta.solana.com"
	case "devnet":
		return "https://api.devnet.solana.com"
	case "testnet":
		return "https://api.testnet.solana.com"
	default:
		return ""
	}
}
