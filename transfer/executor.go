// Package transfer builds, signs, submits and confirms SPL token payments.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/vitwit/x402pay/amount"
	"github.com/vitwit/x402pay/ledger"
	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/resolver"
	"github.com/vitwit/x402pay/signer"
	"github.com/vitwit/x402pay/types"
)

// Executor performs a single transfer attempt. It never retries: resubmitting a
// transfer without idempotency protection can pay twice, so retry policy belongs
// to the caller.
type Executor struct {
	ledger     ledger.Ledger
	resolver   *resolver.Resolver
	feeReserve uint64
	logger     logger.Logger
}

type Option func(*Executor)

// WithFeeReserve sets the minimum native balance, in lamports, required before submitting.
func WithFeeReserve(lamports uint64) Option {
	return func(e *Executor) {
		e.feeReserve = lamports
	}
}

func WithLogger(l logger.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

func New(l ledger.Ledger, opts ...Option) *Executor {
	e := &Executor{
		ledger:     l,
		feeReserve: types.DefaultFeeReserveLamports,
		logger:     logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = resolver.New(l, e.logger)
	return e
}

// ExecuteRequest describes a transfer to an already resolved destination.
type ExecuteRequest struct {
	Destination *types.ResolvedDestination
	Signer      signer.Signer
	Mint        solana.PublicKey
	// Amount is the human decimal amount; it is encoded with Decimals.
	Amount   string
	Decimals uint8
}

// TransferRequest describes a transfer to a recipient whose destination is not yet resolved.
type TransferRequest struct {
	Signer    signer.Signer
	Mint      solana.PublicKey
	Recipient solana.PublicKey
	Amount    string
	Decimals  uint8
}

// Transfer resolves the destination for req and executes the payment.
func (e *Executor) Transfer(ctx context.Context, req TransferRequest) (*types.TransferReceipt, error) {
	dest, err := e.resolver.Resolve(ctx, req.Mint, req.Signer.PublicKey(), req.Recipient)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, ExecuteRequest{
		Destination: dest,
		Signer:      req.Signer,
		Mint:        req.Mint,
		Amount:      req.Amount,
		Decimals:    req.Decimals,
	})
}

// Execute checks balances, then submits and confirms the transfer. No transaction
// is built or sent unless every precondition holds.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (*types.TransferReceipt, error) {
	if req.Destination == nil || req.Signer == nil {
		return nil, errors.New("transfer: destination and signer are required")
	}
	dest, err := solana.PublicKeyFromBase58(req.Destination.TokenAccountAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid destination account: %w", err)
	}

	sender := req.Signer.PublicKey()
	source, err := resolver.SenderAccount(req.Mint, sender)
	if err != nil {
		return nil, err
	}

	required := amount.ToMinorUnits(req.Amount, req.Decimals)
	if required.Sign() == 0 {
		return nil, &types.ExecutionError{
			Kind:     types.KindMalformedAmount,
			Message:  fmt.Sprintf("amount %q is zero in minor units", req.Amount),
			Required: "0",
		}
	}
	if err := e.checkTokenBalance(ctx, source, required, req.Decimals); err != nil {
		return nil, err
	}
	if err := e.checkFeeReserve(ctx, sender); err != nil {
		return nil, err
	}
	// Narrowing cannot fail: required is bounded by a uint64 balance.
	units, _ := amount.ToUint64(required)

	instructions := make([]solana.Instruction, 0, 2)
	if req.Destination.RequiresCreation {
		owner, err := solana.PublicKeyFromBase58(req.Destination.OwnerAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid destination owner: %w", err)
		}
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(sender, owner, req.Mint).Build())
	}
	instructions = append(instructions,
		token.NewTransferCheckedInstruction(units, req.Decimals, source, req.Mint, dest, sender, nil).Build())

	// A fresh blockhash for every attempt; a reused one is rejected once stale.
	block, err := e.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, &types.ExecutionError{
			Kind:    types.KindSubmissionFailed,
			Message: "could not fetch a recent blockhash",
			Err:     err,
		}
	}

	tx, err := solana.NewTransaction(instructions, block.Blockhash, solana.TransactionPayer(sender))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if err := signer.SignTransaction(ctx, tx, req.Signer); err != nil {
		return nil, &types.ExecutionError{
			Kind:    types.KindSubmissionFailed,
			Message: "signing failed",
			Err:     err,
		}
	}

	start := time.Now()
	sig, err := e.ledger.SendTransaction(ctx, tx)
	if err != nil {
		return nil, &types.ExecutionError{
			Kind:    types.KindSubmissionFailed,
			Message: "ledger rejected the transaction",
			Err:     err,
		}
	}
	e.logger.Info("transfer submitted", map[string]any{
		"tx":                sig.String(),
		"amount":            units,
		"decimals":          req.Decimals,
		"destination":       dest.String(),
		"create_account":    req.Destination.RequiresCreation,
		"last_valid_height": block.LastValidBlockHeight,
	})

	conf, err := e.ledger.WaitForConfirmation(ctx, sig, block.LastValidBlockHeight)
	if err != nil {
		return nil, confirmationError(sig, err)
	}
	e.logger.Info("transfer confirmed", map[string]any{
		"tx":      sig.String(),
		"slot":    conf.Slot,
		"status":  conf.Status,
		"elapsed": time.Since(start).String(),
	})

	return &types.TransferReceipt{
		TransactionID:      sig.String(),
		AmountMinorUnits:   strconv.FormatUint(units, 10),
		DecimalsUsed:       req.Decimals,
		SourceAccount:      source.String(),
		DestinationAccount: dest.String(),
		Mint:               req.Mint.String(),
		CreatedAccount:     req.Destination.RequiresCreation,
		Slot:               conf.Slot,
	}, nil
}

func (e *Executor) checkTokenBalance(ctx context.Context, source solana.PublicKey, required *big.Int, decimals uint8) error {
	bal, err := e.ledger.GetTokenBalance(ctx, source)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return &types.ExecutionError{
				Kind:     types.KindInsufficientBalance,
				Message:  "sender token account not found",
				Actual:   "0",
				Required: required.String(),
				Err:      err,
			}
		}
		return fmt.Errorf("query token balance: %w", err)
	}
	if bal.Decimals != decimals {
		return &types.ExecutionError{
			Kind:     types.KindDecimalsMismatch,
			Message:  "token precision on chain differs from the selected option",
			Actual:   strconv.Itoa(int(bal.Decimals)),
			Required: strconv.Itoa(int(decimals)),
		}
	}

	actual := new(big.Int).SetUint64(bal.Amount)
	if actual.Cmp(required) < 0 {
		return &types.ExecutionError{
			Kind:     types.KindInsufficientBalance,
			Message:  "token balance below requested amount",
			Actual:   actual.String(),
			Required: required.String(),
		}
	}
	return nil
}

func (e *Executor) checkFeeReserve(ctx context.Context, sender solana.PublicKey) error {
	lamports, err := e.ledger.GetNativeBalance(ctx, sender)
	if err != nil {
		return fmt.Errorf("query native balance: %w", err)
	}
	if lamports < e.feeReserve {
		return &types.ExecutionError{
			Kind:     types.KindInsufficientFee,
			Message:  "native balance below fee reserve",
			Actual:   strconv.FormatUint(lamports, 10),
			Required: strconv.FormatUint(e.feeReserve, 10),
		}
	}
	return nil
}

func confirmationError(sig solana.Signature, err error) error {
	if errors.Is(err, ledger.ErrTransactionFailed) {
		return &types.ExecutionError{
			Kind:          types.KindSubmissionFailed,
			Message:       "transaction failed on chain",
			TransactionID: sig.String(),
			Err:           err,
		}
	}
	return &types.ExecutionError{
		Kind:          types.KindConfirmationTimeout,
		Message:       "transaction not confirmed in time; it may still land, query its status before retrying",
		TransactionID: sig.String(),
		Err:           err,
	}
}
