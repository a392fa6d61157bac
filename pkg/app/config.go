package app

import (
	"github.com/spf13/viper"

	"github.com/code-payments/metadata-provisioner/pkg/provision"
)

// Config is the process configuration, loaded from an optional yaml file and
// the environment.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	AppName string `mapstructure:"app_name"`

	// Endpoint is an RPC URL or one of devnet, testnet and mainnet-beta.
	Endpoint string `mapstructure:"endpoint"`

	// Commitment is the level transactions must reach: processed, confirmed
	// or finalized.
	Commitment string `mapstructure:"commitment"`

	// SecretKey is the payer keypair as a JSON byte array. Takes precedence
	// over KeypairPath.
	SecretKey string `mapstructure:"secret_key"`

	// KeypairPath is a Solana CLI keypair file.
	KeypairPath string `mapstructure:"keypair_path"`

	MasterEdition bool `mapstructure:"master_edition"`

	// Metrics configuration across many providers
	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`

	Asset provision.Config `mapstructure:"asset"`
}

var defaultConfig = Config{
	LogLevel: "info",

	AppName: "metadata-provisioner",

	Endpoint:   "devnet",
	Commitment: "confirmed",

	KeypairPath: "~/.config/solana/id.json",

	MasterEdition: true,

	Asset: provision.DefaultConfig(),
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	_ = v.BindEnv("app_name", "APP_NAME")

	_ = v.BindEnv("endpoint", "SOLANA_RPC_ENDPOINT")
	_ = v.BindEnv("commitment", "SOLANA_COMMITMENT")

	_ = v.BindEnv("secret_key", "SECRET_KEY")
	_ = v.BindEnv("keypair_path", "KEYPAIR_PATH")

	_ = v.BindEnv("master_edition", "MASTER_EDITION")

	_ = v.BindEnv("new_relic_license_key", "NEW_RELIC_LICENSE_KEY")

	_ = v.BindEnv("asset.mint", "ASSET_MINT")
	_ = v.BindEnv("asset.name", "ASSET_NAME")
	_ = v.BindEnv("asset.symbol", "ASSET_SYMBOL")
	_ = v.BindEnv("asset.uri", "ASSET_URI")
	_ = v.BindEnv("asset.royalty_bps", "ASSET_ROYALTY_BPS")
	_ = v.BindEnv("asset.mutable", "ASSET_MUTABLE")
	_ = v.BindEnv("asset.validate_mint", "ASSET_VALIDATE_MINT")
}
