package token

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/metadata-provisioner/pkg/solana"
)

var (
	// ErrAccountNotFound indicates there is no account for the given address.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidMint indicates that a Solana account exists at the given
	// address, but it is not an initialized mint owned by a token program.
	ErrInvalidMint = errors.New("invalid mint")
)

// AccountInfoGetter is the subset of solana.Client needed to load mints.
type AccountInfoGetter interface {
	GetAccountInfo(ed25519.PublicKey, solana.Commitment) (solana.AccountInfo, error)
}

// Client provides utilities for reading token program state.
type Client struct {
	sc AccountInfoGetter
}

// NewClient creates a new Client.
func NewClient(sc AccountInfoGetter) *Client {
	return &Client{
		sc: sc,
	}
}

// GetMint returns the decoded mint at address along with the token program
// that owns it.
//
// If the account isn't owned by a token program, or isn't an initialized
// mint, then ErrInvalidMint is returned.
func (c *Client) GetMint(address ed25519.PublicKey, commitment solana.Commitment) (*Mint, ed25519.PublicKey, error) {
	accountInfo, err := c.sc.GetAccountInfo(address, commitment)
	if errors.Is(err, solana.ErrNoAccountInfo) {
		return nil, nil, ErrAccountNotFound
	} else if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get account info")
	}

	if !IsTokenProgram(accountInfo.Owner) {
		return nil, nil, errors.Wrap(ErrInvalidMint, "not owned by a token program")
	}

	// Only Token-2022 mints carry extensions.
	if bytes.Equal(accountInfo.Owner, ProgramKey) && len(accountInfo.Data) != MintSize {
		return nil, nil, errors.Wrapf(ErrInvalidMint, "unexpected data size %d", len(accountInfo.Data))
	}

	var mint Mint
	if !mint.Unmarshal(accountInfo.Data) {
		return nil, nil, errors.Wrapf(ErrInvalidMint, "not a mint layout (%d bytes)", len(accountInfo.Data))
	}
	if !mint.IsInitialized {
		return nil, nil, errors.Wrap(ErrInvalidMint, "not initialized")
	}

	return &mint, accountInfo.Owner, nil
}
