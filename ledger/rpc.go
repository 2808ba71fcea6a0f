package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/vitwit/x402pay/logger"
)

// RPCLedger implements Ledger on top of a Solana JSON-RPC endpoint
type RPCLedger struct {
	rpcURL       string
	client       *rpc.Client
	commitment   rpc.CommitmentType
	pollInterval time.Duration
	logger       logger.Logger
}

var _ Ledger = (*RPCLedger)(nil)

// maxHeightFailures is how many consecutive getBlockHeight errors WaitForConfirmation tolerates.
const maxHeightFailures = 10

type Option func(*RPCLedger)

func WithCommitment(c string) Option {
	return func(l *RPCLedger) {
		if c != "" {
			l.commitment = rpc.CommitmentType(c)
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(l *RPCLedger) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

func WithLogger(lg logger.Logger) Option {
	return func(l *RPCLedger) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewRPCLedger creates a ledger client for the given endpoint
func NewRPCLedger(rpcURL string, opts ...Option) *RPCLedger {
	l := &RPCLedger{
		rpcURL:       rpcURL,
		client:       rpc.New(rpcURL),
		commitment:   rpc.CommitmentConfirmed,
		pollInterval: 500 * time.Millisecond,
		logger:       logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RPCLedger) GetAccount(ctx context.Context, address solana.PublicKey) (*AccountInfo, error) {
	res, err := l.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: l.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	if res == nil || res.Value == nil {
		return nil, ErrAccountNotFound
	}

	info := &AccountInfo{
		Address:  address,
		Owner:    res.Value.Owner,
		Lamports: res.Value.Lamports,
	}
	if !info.IsTokenAccount() || res.Value.Data == nil {
		return info, nil
	}

	var acc token.Account
	if err := acc.UnmarshalWithDecoder(bin.NewBinDecoder(res.Value.Data.GetBinary())); err != nil {
		// Owned by the token program but not a token account (e.g. a mint).
		l.logger.Debug("account data is not a token account", map[string]any{
			"account": address.String(),
			"error":   err.Error(),
		})
		return info, nil
	}
	mint, owner := acc.Mint, acc.Owner
	info.Mint = &mint
	info.TokenOwner = &owner
	return info, nil
}

func (l *RPCLedger) GetMintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	res, err := l.client.GetAccountInfoWithOpts(ctx, mint, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: l.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("get mint %s: %w", mint, err)
	}
	if res == nil || res.Value == nil || res.Value.Data == nil {
		return 0, ErrAccountNotFound
	}
	if !res.Value.Owner.Equals(solana.TokenProgramID) {
		return 0, ErrNotMintAccount
	}

	var m token.Mint
	if err := m.UnmarshalWithDecoder(bin.NewBinDecoder(res.Value.Data.GetBinary())); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotMintAccount, err)
	}
	return m.Decimals, nil
}

func (l *RPCLedger) GetTokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (*TokenBalance, error) {
	res, err := l.client.GetTokenAccountBalance(ctx, tokenAccount, l.commitment)
	if err != nil {
		return nil, fmt.Errorf("get token balance %s: %w", tokenAccount, err)
	}
	if res == nil || res.Value == nil {
		return nil, ErrAccountNotFound
	}

	amt, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid token amount %q: %w", res.Value.Amount, err)
	}
	return &TokenBalance{Amount: amt, Decimals: res.Value.Decimals}, nil
}

func (l *RPCLedger) GetNativeBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	res, err := l.client.GetBalance(ctx, owner, l.commitment)
	if err != nil {
		return 0, fmt.Errorf("get balance %s: %w", owner, err)
	}
	return res.Value, nil
}

func (l *RPCLedger) GetLatestBlockhash(ctx context.Context) (*BlockReference, error) {
	res, err := l.client.GetLatestBlockhash(ctx, l.commitment)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}
	if res == nil || res.Value == nil {
		return nil, errors.New("get latest blockhash: empty result")
	}
	return &BlockReference{
		Blockhash:            res.Value.Blockhash,
		LastValidBlockHeight: res.Value.LastValidBlockHeight,
	}, nil
}

// SendTransaction broadcasts a signed transaction with preflight at the configured commitment
func (l *RPCLedger) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := l.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: l.commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("broadcast failed: %w", err)
	}
	return sig, nil
}

// WaitForConfirmation polls signature status until the transaction lands, fails,
// or expires. It also gives up once the block height cannot be read.
func (l *RPCLedger) WaitForConfirmation(
	ctx context.Context,
	sig solana.Signature,
	lastValidBlockHeight uint64,
) (*Confirmation, error) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	heightFailures := 0
	for {
		status, err := l.client.GetSignatureStatuses(ctx, false, sig)
		if err == nil && status != nil && len(status.Value) > 0 && status.Value[0] != nil {
			s := status.Value[0]
			if s.Err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTransactionFailed, s.Err)
			}
			if s.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				s.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return &Confirmation{Slot: s.Slot, Status: string(s.ConfirmationStatus)}, nil
			}
		} else if err != nil {
			l.logger.Warn("signature status query failed", map[string]any{
				"tx":    sig.String(),
				"error": err.Error(),
			})
		}

		height, err := l.client.GetBlockHeight(ctx, l.commitment)
		switch {
		case err == nil && height > lastValidBlockHeight:
			return nil, ErrBlockHeightExceeded
		case err == nil:
			heightFailures = 0
		case ctx.Err() == nil:
			heightFailures++
			if heightFailures >= maxHeightFailures {
				return nil, fmt.Errorf("block height query failed %d times: %w", heightFailures, err)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
