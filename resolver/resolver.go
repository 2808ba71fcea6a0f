// Package resolver decides which SPL token account a payment must be sent to.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/vitwit/x402pay/ledger"
	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/types"
)

// Resolver resolves payment destinations against a ledger. Results are never
// cached: the mint and recipient pair can change between attempts.
type Resolver struct {
	ledger ledger.Ledger
	logger logger.Logger
}

func New(l ledger.Ledger, lg logger.Logger) *Resolver {
	if lg == nil {
		lg = logger.NoopLogger{}
	}
	return &Resolver{ledger: l, logger: lg}
}

// SenderAccount returns the sender's associated token account for mint.
func SenderAccount(mint, sender solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(sender, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token account: %w", err)
	}
	return ata, nil
}

// Resolve finds the destination token account for a payment of mint to recipient.
//
// The recipient address is first tried as a token account in its own right and only
// when that fails is the recipient's associated token account derived. A missing
// associated account is not an error; the caller must create it in the same
// transaction as the transfer.
func (r *Resolver) Resolve(
	ctx context.Context,
	mint, sender, recipient solana.PublicKey,
) (*types.ResolvedDestination, error) {
	senderATA, err := SenderAccount(mint, sender)
	if err != nil {
		return nil, err
	}
	if _, err := r.ledger.GetAccount(ctx, senderATA); err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, &types.ResolutionError{
				Kind:    types.KindSenderAccountMissing,
				Message: "sender has no token account for this mint",
				Account: senderATA.String(),
			}
		}
		return nil, fmt.Errorf("lookup sender token account: %w", err)
	}

	direct, err := r.ledger.GetAccount(ctx, recipient)
	switch {
	case err == nil && direct.IsTokenAccount():
		if err := checkMint(direct, mint); err != nil {
			return nil, err
		}
		owner := recipient
		if direct.TokenOwner != nil {
			owner = *direct.TokenOwner
		}
		r.logger.Debug("paying recipient token account directly", map[string]any{
			"account": recipient.String(),
			"mint":    mint.String(),
		})
		return &types.ResolvedDestination{
			TokenAccountAddress: recipient.String(),
			RequiresCreation:    false,
			OwnerAddress:        owner.String(),
		}, nil
	case err != nil && !errors.Is(err, ledger.ErrAccountNotFound):
		return nil, fmt.Errorf("lookup recipient %s: %w", recipient, err)
	}

	ata, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return nil, fmt.Errorf("derive recipient associated token account: %w", err)
	}

	acc, err := r.ledger.GetAccount(ctx, ata)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			r.logger.Info("recipient associated token account missing; will create", map[string]any{
				"account":   ata.String(),
				"recipient": recipient.String(),
				"mint":      mint.String(),
			})
			return &types.ResolvedDestination{
				TokenAccountAddress: ata.String(),
				RequiresCreation:    true,
				OwnerAddress:        recipient.String(),
			}, nil
		}
		return nil, fmt.Errorf("lookup recipient token account: %w", err)
	}

	if !acc.IsTokenAccount() {
		return nil, &types.ResolutionError{
			Kind:    types.KindOwnerProgramMismatch,
			Message: fmt.Sprintf("associated account is owned by %s, not the token program", acc.Owner),
			Account: ata.String(),
		}
	}
	if err := checkMint(acc, mint); err != nil {
		return nil, err
	}

	return &types.ResolvedDestination{
		TokenAccountAddress: ata.String(),
		RequiresCreation:    false,
		OwnerAddress:        recipient.String(),
	}, nil
}

func checkMint(acc *ledger.AccountInfo, mint solana.PublicKey) error {
	if acc.Mint == nil || acc.Mint.Equals(mint) {
		return nil
	}
	return &types.ResolutionError{
		Kind:    types.KindMintMismatch,
		Message: fmt.Sprintf("account holds mint %s, payment requires %s", acc.Mint, mint),
		Account: acc.Address.String(),
	}
}
