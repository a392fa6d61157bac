package provision

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/metadata-provisioner/pkg/solana/tokenmetadata"
)

// Config describes the asset to provision metadata for.
type Config struct {
	// Mint is the base58 address of the existing mint.
	Mint string `mapstructure:"mint"`

	Name   string `mapstructure:"name"`
	Symbol string `mapstructure:"symbol"`
	URI    string `mapstructure:"uri"`

	// RoyaltyBps is the seller fee in basis points, 0 to 10000.
	RoyaltyBps int `mapstructure:"royalty_bps"`

	Mutable             bool `mapstructure:"mutable"`
	PrimarySaleHappened bool `mapstructure:"primary_sale_happened"`

	// Creators is optional. When set, shares must sum to 100.
	Creators []CreatorConfig `mapstructure:"creators"`

	// ValidateMint fetches the mint before submitting and fails early if it
	// isn't an initialized, zero decimal mint.
	ValidateMint bool `mapstructure:"validate_mint"`
}

type CreatorConfig struct {
	Address string `mapstructure:"address"`
	Share   int    `mapstructure:"share"`
}

// DefaultConfig returns a Config with the defaults applied. Asset fields are
// left empty.
func DefaultConfig() Config {
	return Config{
		Mutable:      true,
		ValidateMint: true,
	}
}

// Validate checks the config without any network interaction.
func (c *Config) Validate() error {
	_, err := c.instructionArgs()
	return err
}

// MintKey returns the decoded mint address.
func (c *Config) MintKey() (ed25519.PublicKey, error) {
	return parseKey("mint", c.Mint)
}

func (c *Config) instructionArgs() (*tokenmetadata.CreateV1InstructionArgs, error) {
	if _, err := c.MintKey(); err != nil {
		return nil, err
	}

	if c.RoyaltyBps < 0 || c.RoyaltyBps > tokenmetadata.MaxSellerFeeBasisPoints {
		return nil, errors.Wrapf(tokenmetadata.ErrInvalidRoyalty, "royalty_bps must be within [0, %d], got %d", tokenmetadata.MaxSellerFeeBasisPoints, c.RoyaltyBps)
	}

	args := &tokenmetadata.CreateV1InstructionArgs{
		AssetData: tokenmetadata.AssetData{
			Name:                 c.Name,
			Symbol:               c.Symbol,
			URI:                  c.URI,
			SellerFeeBasisPoints: uint16(c.RoyaltyBps),
			PrimarySaleHappened:  c.PrimarySaleHappened,
			IsMutable:            c.Mutable,
			TokenStandard:        tokenmetadata.TokenStandardNonFungible,
		},
		PrintSupply: tokenmetadata.PrintSupplyZero(),
	}

	if c.Creators != nil {
		creators := make([]tokenmetadata.Creator, len(c.Creators))
		for i, cc := range c.Creators {
			address, err := parseKey("creator address", cc.Address)
			if err != nil {
				return nil, err
			}
			if cc.Share < 0 || cc.Share > 100 {
				return nil, errors.Wrapf(ErrConfiguration, "creator share must be within [0, 100], got %d", cc.Share)
			}

			copy(creators[i].Address[:], address)
			creators[i].Share = uint8(cc.Share)
		}
		args.AssetData.Creators = &creators
	}

	if err := args.Validate(); errors.Is(err, tokenmetadata.ErrInvalidField) {
		return nil, mark(ErrConfiguration, err)
	} else if err != nil {
		return nil, err
	}
	return args, nil
}

func parseKey(field, value string) (ed25519.PublicKey, error) {
	if len(value) == 0 {
		return nil, errors.Wrapf(ErrConfiguration, "%s is required", field)
	}

	decoded, err := base58.Decode(value)
	if err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "%s is not valid base58", field)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, errors.Wrapf(ErrConfiguration, "%s must be %d bytes, got %d", field, ed25519.PublicKeySize, len(decoded))
	}
	return decoded, nil
}
