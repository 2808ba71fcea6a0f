// Package ledger defines the on-chain queries and submissions the payer needs,
// and implements them over Solana JSON-RPC.
package ledger

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrNotMintAccount      = errors.New("account is not an spl mint")
	ErrBlockHeightExceeded = errors.New("block height exceeded before confirmation")
	ErrTransactionFailed   = errors.New("transaction failed on chain")
)

// Ledger is everything the resolver and transfer executor ask of the chain.
type Ledger interface {
	// GetAccount returns ErrAccountNotFound when nothing exists at the address.
	GetAccount(ctx context.Context, address solana.PublicKey) (*AccountInfo, error)
	GetMintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
	GetTokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (*TokenBalance, error)
	GetNativeBalance(ctx context.Context, owner solana.PublicKey) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (*BlockReference, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	// WaitForConfirmation blocks until the transaction reaches the confirmed level,
	// fails on chain, or the block height passes lastValidBlockHeight.
	WaitForConfirmation(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) (*Confirmation, error)
}

// AccountInfo is a parsed view of an account.
type AccountInfo struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey // owning program
	Lamports uint64

	// Mint and TokenOwner are set when Owner is the SPL token program and the
	// data decodes as a token account.
	Mint       *solana.PublicKey
	TokenOwner *solana.PublicKey
}

// IsTokenAccount reports whether the account is held by the SPL token program.
func (a *AccountInfo) IsTokenAccount() bool {
	return a != nil && a.Owner.Equals(solana.TokenProgramID)
}

type TokenBalance struct {
	Amount   uint64
	Decimals uint8
}

// BlockReference is a recent blockhash together with the last block height at
// which a transaction referencing it is still accepted.
type BlockReference struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

type Confirmation struct {
	Slot   uint64
	Status string
}
