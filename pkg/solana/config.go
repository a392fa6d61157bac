package solana

import "strings"

type Environment string

const (
	EnvironmentDev  Environment = "https://api.devnet.solana.com"
	EnvironmentTest Environment = "https://api.testnet.solana.com"
	EnvironmentProd Environment = "https://api.mainnet-beta.solana.com"
)

// ResolveEndpoint maps a cluster moniker onto its public RPC endpoint. Any
// other value is assumed to already be an endpoint URL.
func ResolveEndpoint(nameOrURL string) string {
	switch strings.ToLower(strings.TrimSpace(nameOrURL)) {
	case "", "devnet", "dev":
		return string(EnvironmentDev)
	case "testnet", "test":
		return string(EnvironmentTest)
	case "mainnet-beta", "mainnet", "prod":
		return string(EnvironmentProd)
	}
	return nameOrURL
}
