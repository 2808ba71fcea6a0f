// Package ledgertest provides an in-memory ledger.Ledger for tests.
package ledgertest

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/vitwit/x402pay/ledger"
)

// Fake is an in-memory ledger. Zero values are usable; unknown accounts are absent.
type Fake struct {
	mu sync.Mutex

	Accounts       map[solana.PublicKey]*ledger.AccountInfo
	MintDecimals   map[solana.PublicKey]uint8
	TokenBalances  map[solana.PublicKey]ledger.TokenBalance
	NativeBalances map[solana.PublicKey]uint64

	Block        ledger.BlockReference
	Signature    solana.Signature
	SendErr      error
	ConfirmErr   error
	Confirmation ledger.Confirmation

	// Sent records every transaction handed to SendTransaction.
	Sent []*solana.Transaction
	// Calls records method names in call order.
	Calls []string
}

var _ ledger.Ledger = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		Accounts:       map[solana.PublicKey]*ledger.AccountInfo{},
		MintDecimals:   map[solana.PublicKey]uint8{},
		TokenBalances:  map[solana.PublicKey]ledger.TokenBalance{},
		NativeBalances: map[solana.PublicKey]uint64{},
		Signature:      solana.Signature{1, 2, 3},
		Confirmation:   ledger.Confirmation{Slot: 1, Status: "confirmed"},
		Block: ledger.BlockReference{
			Blockhash:            solana.Hash{9},
			LastValidBlockHeight: 1000,
		},
	}
}

// AddTokenAccount registers an SPL token account holding balance of mint for owner.
func (f *Fake) AddTokenAccount(address, mint, owner solana.PublicKey, balance uint64, decimals uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, o := mint, owner
	f.Accounts[address] = &ledger.AccountInfo{
		Address:    address,
		Owner:      solana.TokenProgramID,
		Lamports:   2039280,
		Mint:       &m,
		TokenOwner: &o,
	}
	f.TokenBalances[address] = ledger.TokenBalance{Amount: balance, Decimals: decimals}
}

// AddAccount registers a plain account owned by program.
func (f *Fake) AddAccount(address, program solana.PublicKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Accounts[address] = &ledger.AccountInfo{Address: address, Owner: program, Lamports: 1}
}

func (f *Fake) record(name string) {
	f.Calls = append(f.Calls, name)
}

// SentCount returns how many transactions were submitted.
func (f *Fake) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

func (f *Fake) GetAccount(_ context.Context, address solana.PublicKey) (*ledger.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetAccount")
	acc, ok := f.Accounts[address]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (f *Fake) GetMintDecimals(_ context.Context, mint solana.PublicKey) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetMintDecimals")
	d, ok := f.MintDecimals[mint]
	if !ok {
		return 0, ledger.ErrAccountNotFound
	}
	return d, nil
}

func (f *Fake) GetTokenBalance(_ context.Context, tokenAccount solana.PublicKey) (*ledger.TokenBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetTokenBalance")
	b, ok := f.TokenBalances[tokenAccount]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return &b, nil
}

func (f *Fake) GetNativeBalance(_ context.Context, owner solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetNativeBalance")
	return f.NativeBalances[owner], nil
}

func (f *Fake) GetLatestBlockhash(_ context.Context) (*ledger.BlockReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetLatestBlockhash")
	b := f.Block
	return &b, nil
}

func (f *Fake) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SendTransaction")
	if f.SendErr != nil {
		return solana.Signature{}, f.SendErr
	}
	f.Sent = append(f.Sent, tx)
	return f.Signature, nil
}

func (f *Fake) WaitForConfirmation(ctx context.Context, _ solana.Signature, _ uint64) (*ledger.Confirmation, error) {
	f.mu.Lock()
	f.record("WaitForConfirmation")
	err := f.ConfirmErr
	c := f.Confirmation
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &c, nil
}
