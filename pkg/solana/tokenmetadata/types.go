package tokenmetadata

import (
	"github.com/near/borsh-go"
)

type TokenStandard uint8

const (
	TokenStandardNonFungible TokenStandard = iota
	TokenStandardFungibleAsset
	TokenStandardFungible
	TokenStandardNonFungibleEdition
	TokenStandardProgrammableNonFungible
	TokenStandardProgrammableNonFungibleEdition
)

func (s TokenStandard) String() string {
	switch s {
	case TokenStandardNonFungible:
		return "NonFungible"
	case TokenStandardFungibleAsset:
		return "FungibleAsset"
	case TokenStandardFungible:
		return "Fungible"
	case TokenStandardNonFungibleEdition:
		return "NonFungibleEdition"
	case TokenStandardProgrammableNonFungible:
		return "ProgrammableNonFungible"
	case TokenStandardProgrammableNonFungibleEdition:
		return "ProgrammableNonFungibleEdition"
	}
	return "Unknown"
}

// Creator is an address entitled to a Share (percent) of royalties.
type Creator struct {
	Address  [32]byte
	Verified bool
	Share    uint8
}

type Collection struct {
	Verified bool
	Key      [32]byte
}

type UseMethod uint8

const (
	UseMethodBurn UseMethod = iota
	UseMethodMultiple
	UseMethodSingle
)

type Uses struct {
	UseMethod UseMethod
	Remaining uint64
	Total     uint64
}

type CollectionDetails struct {
	Enum borsh.Enum `borsh_enum:"true"`
	V1   CollectionDetailsV1
	V2   CollectionDetailsV2
}

type CollectionDetailsV1 struct {
	Size uint64
}

type CollectionDetailsV2 struct {
	Padding [8]byte
}

const (
	printSupplyZero borsh.Enum = iota
	printSupplyLimited
	printSupplyUnlimited
)

// PrintSupply bounds how many print editions can be made from a master
// edition.
type PrintSupply struct {
	Enum      borsh.Enum `borsh_enum:"true"`
	Zero      struct{}
	Limited   PrintSupplyLimited
	Unlimited struct{}
}

type PrintSupplyLimited struct {
	Max uint64
}

func PrintSupplyZero() *PrintSupply {
	return &PrintSupply{Enum: printSupplyZero}
}

func PrintSupplyLimitedTo(max uint64) *PrintSupply {
	return &PrintSupply{Enum: printSupplyLimited, Limited: PrintSupplyLimited{Max: max}}
}

func PrintSupplyUnlimited() *PrintSupply {
	return &PrintSupply{Enum: printSupplyUnlimited}
}

// AssetData is the metadata record written to the metadata account.
//
// Field order is the wire order.
type AssetData struct {
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             *[]Creator
	PrimarySaleHappened  bool
	IsMutable            bool
	TokenStandard        TokenStandard
	Collection           *Collection
	Uses                 *Uses
	CollectionDetails    *CollectionDetails
	RuleSet              *[32]byte
}
