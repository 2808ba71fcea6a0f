package session

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/x402pay/gateway/gatewaytest"
	"github.com/vitwit/x402pay/ledger"
	"github.com/vitwit/x402pay/ledger/ledgertest"
	"github.com/vitwit/x402pay/resolver"
	"github.com/vitwit/x402pay/signer"
	"github.com/vitwit/x402pay/types"
)

type harness struct {
	machine   *Machine
	ledger    *ledgertest.Fake
	gateway   *gatewaytest.Fake
	store     *MemoryStore
	signer    *signer.KeypairSigner
	mint      solana.PublicKey
	recipient solana.PublicKey
	events    []Event
}

func usdcOption(mint, payTo solana.PublicKey) types.PaymentOption {
	six := uint8(6)
	return types.PaymentOption{
		Scheme:   "exact",
		Network:  "devnet",
		Asset:    mint.String(),
		Symbol:   "USDC",
		Decimals: &six,
		PayTo:    payTo.String(),
		Resource: "/api/resource",
		Nonce:    "n-1",
	}
}

func evmOption() types.PaymentOption {
	return types.PaymentOption{
		Scheme:  "exact",
		Network: "base-sepolia",
		Asset:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Symbol:  "USDC",
		PayTo:   "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
	}
}

func ptr[T any](v T) *T { return &v }

func newHarness(t *testing.T, tokenBalance uint64, cfg types.PayerConfig, opts ...Option) *harness {
	t.Helper()
	s, err := signer.NewKeypairSigner(solana.NewWallet().PrivateKey)
	require.NoError(t, err)

	h := &harness{
		ledger:    ledgertest.New(),
		store:     NewMemoryStore(),
		signer:    s,
		mint:      solana.NewWallet().PublicKey(),
		recipient: solana.NewWallet().PublicKey(),
	}
	source, err := resolver.SenderAccount(h.mint, s.PublicKey())
	require.NoError(t, err)
	h.ledger.AddTokenAccount(source, h.mint, s.PublicKey(), tokenBalance, 6)
	h.ledger.NativeBalances[s.PublicKey()] = 50_000_000

	h.gateway = gatewaytest.PaymentRequired("ord_1", evmOption(), usdcOption(h.mint, h.recipient))

	n := 0
	base := []Option{
		WithStore(h.store),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("res-%d", n)
		}),
		WithObserver(func(ev Event) { h.events = append(h.events, ev) }),
	}
	if cfg.ConfirmPollInterval == 0 {
		cfg.ConfirmPollInterval = time.Millisecond
	}
	h.machine = New(cfg, h.gateway, h.ledger, s, append(base, opts...)...)
	return h
}

func (h *harness) transitions() []State {
	var out []State
	for _, ev := range h.events {
		if ev.Kind == EventTransitioned {
			out = append(out, ev.State)
		}
	}
	return out
}

func (h *harness) toAmountSelection(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	ev := h.machine.Submit(ctx, Start{})
	require.Equal(t, AwaitingNetworkSelection, ev.State, "message: %s, err: %v", ev.Message, ev.Err)
	ev = h.machine.Submit(ctx, SelectOption{Index: 0})
	require.Equal(t, AwaitingAmountSelection, ev.State, "message: %s, err: %v", ev.Message, ev.Err)
}

func TestHappyPathEndToEnd(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{})
	ctx := context.Background()

	ev := h.machine.Submit(ctx, Start{})
	require.Equal(t, EventTransitioned, ev.Kind)
	require.Equal(t, AwaitingNetworkSelection, ev.State)
	assert.Equal(t, "res-1", ev.SessionID)
	require.Len(t, ev.Session.CandidateOptions, 1, "evm option is filtered out")
	assert.Equal(t, "ord_1", ev.Session.OrderID)

	ev = h.machine.Submit(ctx, SelectOption{Index: 0})
	require.Equal(t, AwaitingAmountSelection, ev.State)
	require.NotNil(t, ev.Session.Decimals)
	assert.Equal(t, uint8(6), *ev.Session.Decimals)

	ev = h.machine.Submit(ctx, SelectAmount{Amount: "0.2"})
	require.Equal(t, Succeeded, ev.State, "err: %v", ev.Err)
	assert.False(t, ev.Session.Provisional)

	require.Equal(t, 1, h.ledger.SentCount())
	tx := h.ledger.Sent[0]
	require.Len(t, tx.Message.Instructions, 2, "account creation plus transfer")
	data := tx.Message.Instructions[1].Data
	assert.Equal(t, uint64(200000), binary.LittleEndian.Uint64(data[1:9]))
	assert.Equal(t, byte(6), data[9])

	sig := h.ledger.Signature.String()
	require.Len(t, h.gateway.Proofs, 1)
	raw, err := base64.StdEncoding.DecodeString(h.gateway.Proofs[0])
	require.NoError(t, err)
	assert.Equal(t,
		`{"x402Version":1,"scheme":"exact","network":"devnet","orderId":"ord_1","payload":{"amount":"200000","txHash":"`+sig+`"}}`,
		string(raw))

	s := h.machine.Session()
	require.NotNil(t, s.TransferReceipt)
	assert.Equal(t, sig, s.TransferReceipt.TransactionID)
	assert.Equal(t, uint8(6), s.TransferReceipt.DecimalsUsed)
	assert.True(t, s.TransferReceipt.CreatedAccount)
	assert.Equal(t, "0.2", s.RequestedAmount)

	assert.Equal(t, []State{
		AwaitingOptions, AwaitingNetworkSelection, AwaitingAmountSelection,
		Transferring, AwaitingConfirmation, Succeeded,
	}, h.transitions())

	stored, err := h.store.Load(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, Succeeded, stored.State)
}

func TestInsufficientBalanceEndToEnd(t *testing.T) {
	h := newHarness(t, 50_000, types.PayerConfig{})
	h.toAmountSelection(t)

	ev := h.machine.Submit(context.Background(), SelectAmount{Amount: "0.2"})
	require.Equal(t, Failed, ev.State)
	assert.True(t, errors.Is(ev.Err, types.ErrInsufficientBalance))

	s := h.machine.Session()
	require.NotNil(t, s.Failure)
	assert.Equal(t, types.KindInsufficientBalance, s.Failure.Kind)
	assert.Equal(t, "50000", s.Failure.Actual)
	assert.Equal(t, "200000", s.Failure.Required)
	assert.NotNil(t, s.SelectedOption, "selections stay visible")
	assert.Equal(t, "0.2", s.RequestedAmount)
	assert.Nil(t, s.TransferReceipt)

	assert.Equal(t, 0, h.ledger.SentCount())
	assert.Equal(t, 0, h.gateway.ConfirmCalls())
}

func TestAlreadyPaid(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{})
	h.gateway.RequestResult = &types.PaymentRequestResult{StatusCode: 200, Data: []byte(`{"ok":true}`)}

	ev := h.machine.Submit(context.Background(), Start{})
	require.Equal(t, Succeeded, ev.State)
	assert.Nil(t, ev.Session.TransferReceipt)
	assert.Equal(t, `{"ok":true}`, string(ev.Session.Resource))
	assert.Equal(t, 0, h.ledger.SentCount())
}

func TestNoSupportedOption(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{})
	h.gateway.RequestResult.Required.Accepts = []types.PaymentOption{evmOption()}

	ev := h.machine.Submit(context.Background(), Start{})
	require.Equal(t, Failed, ev.State)
	assert.True(t, errors.Is(ev.Err, types.ErrNoSupportedOption))
	assert.Equal(t, types.KindNoSupportedOption, h.machine.Session().Failure.Kind)
}

func TestOptionFiltering(t *testing.T) {
	t.Run("expired", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		h := newHarness(t, 1_000_000, types.PayerConfig{}, WithClock(func() time.Time { return now }))
		opt := usdcOption(h.mint, h.recipient)
		opt.ExpiresAt = now.Unix() - 1
		h.gateway.RequestResult.Required.Accepts = []types.PaymentOption{opt}

		ev := h.machine.Submit(context.Background(), Start{})
		assert.True(t, errors.Is(ev.Err, types.ErrNoSupportedOption))
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		h := newHarness(t, 1_000_000, types.PayerConfig{})
		upto := usdcOption(h.mint, h.recipient)
		upto.Scheme = "upto"
		h.gateway.RequestResult.Required.Accepts = []types.PaymentOption{upto, usdcOption(h.mint, h.recipient)}

		ev := h.machine.Submit(context.Background(), Start{})
		require.Equal(t, AwaitingNetworkSelection, ev.State)
		require.Len(t, ev.Session.CandidateOptions, 1)
		assert.Equal(t, "exact", ev.Session.CandidateOptions[0].Scheme)

		only := newHarness(t, 1_000_000, types.PayerConfig{})
		only.gateway.RequestResult.Required.Accepts = []types.PaymentOption{upto}
		ev = only.machine.Submit(context.Background(), Start{})
		assert.Equal(t, Failed, ev.State)
		assert.True(t, errors.Is(ev.Err, types.ErrNoSupportedOption))
	})

	t.Run("mint allow list", func(t *testing.T) {
		h := newHarness(t, 1_000_000, types.PayerConfig{AcceptedMints: []string{solana.NewWallet().PublicKey().String()}})

		ev := h.machine.Submit(context.Background(), Start{})
		assert.True(t, errors.Is(ev.Err, types.ErrNoSupportedOption))
	})

	t.Run("network allow list", func(t *testing.T) {
		h := newHarness(t, 1_000_000, types.PayerConfig{Networks: []string{"DEVNET"}})

		ev := h.machine.Submit(context.Background(), Start{})
		assert.Equal(t, AwaitingNetworkSelection, ev.State)
	})
}

func TestGatewayRequestFailure(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{})
	h.gateway.RequestErr = errors.New("connection refused")

	ev := h.machine.Submit(context.Background(), Start{})
	require.Equal(t, Failed, ev.State)
	assert.True(t, errors.Is(ev.Err, types.ErrGatewayRejected))
}

func TestMissingOrderIDFails(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{})
	h.gateway.RequestResult.Required.OrderID = ""

	ev := h.machine.Submit(context.Background(), Start{})
	require.Equal(t, Failed, ev.State)
	assert.True(t, errors.Is(ev.Err, types.ErrGatewayRejected))
}

func TestNoOpRules(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{})
	ctx := context.Background()

	ev := h.machine.Submit(ctx, SelectOption{Index: 0})
	assert.Equal(t, EventIgnored, ev.Kind)
	assert.Equal(t, Idle, ev.State)

	ev = h.machine.Submit(ctx, SelectAmount{Amount: "0.2"})
	assert.Equal(t, EventIgnored, ev.Kind)

	require.Equal(t, AwaitingNetworkSelection, h.machine.Submit(ctx, Start{}).State)

	ev = h.machine.Submit(ctx, SelectAmount{Amount: "0.2"})
	assert.Equal(t, EventIgnored, ev.Kind, "amount before option")
	assert.Equal(t, AwaitingNetworkSelection, ev.State)

	for _, idx := range []int{-1, 1, 7} {
		ev = h.machine.Submit(ctx, SelectOption{Index: idx})
		assert.Equal(t, EventIgnored, ev.Kind)
		assert.True(t, errors.Is(ev.Err, types.ErrInvalidSelection), "index %d", idx)
		assert.Equal(t, AwaitingNetworkSelection, ev.State)
	}
	assert.Nil(t, h.machine.Session().SelectedOption)

	require.Equal(t, AwaitingAmountSelection, h.machine.Submit(ctx, SelectOption{Index: 0}).State)

	ev = h.machine.Submit(ctx, SelectOption{Index: 0})
	assert.Equal(t, EventIgnored, ev.Kind, "option after option")
	assert.Equal(t, AwaitingAmountSelection, ev.State)

	for _, bad := range []string{"", "abc", "0", "-1", "0.1234567", "1e3"} {
		ev = h.machine.Submit(ctx, SelectAmount{Amount: bad})
		assert.Equal(t, EventIgnored, ev.Kind, "amount %q", bad)
		assert.True(t, errors.Is(ev.Err, types.ErrMalformedAmount), "amount %q", bad)
		assert.Equal(t, AwaitingAmountSelection, ev.State)
	}
	assert.Empty(t, h.machine.Session().RequestedAmount)
	assert.Equal(t, 0, h.ledger.SentCount())
}

func TestStartRejectedWhileActive(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{})
	ctx := context.Background()
	require.Equal(t, AwaitingNetworkSelection, h.machine.Submit(ctx, Start{}).State)

	ev := h.machine.Submit(ctx, Start{})
	assert.Equal(t, EventRejected, ev.Kind)
	assert.True(t, errors.Is(ev.Err, types.ErrSessionActive))
	assert.Equal(t, "res-1", ev.SessionID)
	assert.Len(t, h.gateway.Requests, 1)
}

func TestNewSessionSupersedesTerminal(t *testing.T) {
	h := newHarness(t, 50_000, types.PayerConfig{})
	h.toAmountSelection(t)
	require.Equal(t, Failed, h.machine.Submit(context.Background(), SelectAmount{Amount: "0.2"}).State)

	ev := h.machine.Submit(context.Background(), Start{})
	require.Equal(t, AwaitingNetworkSelection, ev.State)
	assert.Equal(t, "res-2", ev.SessionID)
	assert.Nil(t, ev.Session.Failure)
	assert.Nil(t, ev.Session.SelectedOption)
	assert.Empty(t, ev.Session.RequestedAmount)
}

func TestDecimalsResolution(t *testing.T) {
	t.Run("from mint account", func(t *testing.T) {
		h := newHarness(t, 1_000_000, types.PayerConfig{})
		h.gateway.RequestResult.Required.Accepts[1].Decimals = nil
		h.ledger.MintDecimals[h.mint] = 9

		h.toAmountSelection(t)
		assert.Equal(t, uint8(9), *h.machine.Session().Decimals)
	})

	t.Run("configured zero", func(t *testing.T) {
		h := newHarness(t, 1_000_000, types.PayerConfig{DefaultDecimals: ptr[uint8](0)})
		h.gateway.RequestResult.Required.Accepts[1].Decimals = nil

		h.toAmountSelection(t)
		assert.Equal(t, uint8(0), *h.machine.Session().Decimals)
	})

	t.Run("configured default", func(t *testing.T) {
		h := newHarness(t, 1_000_000, types.PayerConfig{DefaultDecimals: ptr[uint8](2)})
		h.gateway.RequestResult.Required.Accepts[1].Decimals = nil

		h.toAmountSelection(t)
		assert.Equal(t, uint8(2), *h.machine.Session().Decimals)
	})
}

func TestPendingConfirmationPolls(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{ConfirmPollAttempts: ptr(3)})
	h.gateway.ConfirmResults = []*types.ConfirmResult{gatewaytest.Waiting(), gatewaytest.Waiting(), gatewaytest.Settled()}
	h.toAmountSelection(t)

	ev := h.machine.Submit(context.Background(), SelectAmount{Amount: "0.2"})
	require.Equal(t, Succeeded, ev.State)
	assert.False(t, ev.Session.Provisional)
	require.Equal(t, 3, h.gateway.ConfirmCalls())
	assert.Equal(t, h.gateway.Proofs[0], h.gateway.Proofs[2], "proof is stable across polls")
	assert.Equal(t, 1, h.ledger.SentCount())
}

func TestPendingConfirmationProvisional(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{ConfirmPollAttempts: ptr(2)})
	h.gateway.ConfirmResults = []*types.ConfirmResult{gatewaytest.Waiting()}
	h.toAmountSelection(t)

	ev := h.machine.Submit(context.Background(), SelectAmount{Amount: "0.2"})
	require.Equal(t, Succeeded, ev.State)
	assert.True(t, ev.Session.Provisional)
	assert.NotNil(t, ev.Session.TransferReceipt)
	assert.Equal(t, 3, h.gateway.ConfirmCalls())
}

func TestPendingConfirmationWithoutRepoll(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{ConfirmPollAttempts: ptr(0)})
	h.gateway.ConfirmResults = []*types.ConfirmResult{gatewaytest.Waiting()}
	h.toAmountSelection(t)

	ev := h.machine.Submit(context.Background(), SelectAmount{Amount: "0.2"})
	require.Equal(t, Succeeded, ev.State)
	assert.True(t, ev.Session.Provisional)
	assert.Equal(t, 1, h.gateway.ConfirmCalls())
}

func TestConfirmRejected(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{})
	h.gateway.ConfirmResults = []*types.ConfirmResult{{StatusCode: 400, Code: 400, Status: "error", Message: "order expired"}}
	h.toAmountSelection(t)

	ev := h.machine.Submit(context.Background(), SelectAmount{Amount: "0.2"})
	require.Equal(t, Failed, ev.State)
	assert.True(t, errors.Is(ev.Err, types.ErrGatewayRejected))
	assert.Contains(t, ev.Message, "order expired")
	assert.NotNil(t, ev.Session.TransferReceipt, "receipt survives a rejected proof")
}

func TestConfirmationTimeoutRecordsPendingTransaction(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{})
	h.ledger.ConfirmErr = ledger.ErrBlockHeightExceeded
	h.toAmountSelection(t)

	ev := h.machine.Submit(context.Background(), SelectAmount{Amount: "0.2"})
	require.Equal(t, Failed, ev.State)
	assert.True(t, errors.Is(ev.Err, types.ErrConfirmationTimeout))
	assert.Contains(t, ev.Message, "may still land")

	s := h.machine.Session()
	assert.Equal(t, h.ledger.Signature.String(), s.PendingTransactionID)
	assert.Equal(t, types.KindConfirmationTimeout, s.Failure.Kind)
	assert.Equal(t, h.ledger.Signature.String(), s.Failure.TransactionID)
	assert.Equal(t, 0, h.gateway.ConfirmCalls())
}

func TestCancel(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{})
	ctx := context.Background()

	assert.Equal(t, EventIgnored, h.machine.Submit(ctx, Cancel{}).Kind)

	h.toAmountSelection(t)
	ev := h.machine.Submit(ctx, Cancel{})
	require.Equal(t, Cancelled, ev.State)
	assert.Equal(t, EventIgnored, h.machine.Submit(ctx, SelectAmount{Amount: "0.2"}).Kind)
	assert.Equal(t, 0, h.ledger.SentCount())

	ev = h.machine.Submit(ctx, Start{})
	assert.Equal(t, AwaitingNetworkSelection, ev.State)
	assert.Equal(t, "res-2", ev.SessionID)
}

func TestCancelWhileRequestInFlight(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{})
	var cancelEv Event
	h.gateway.OnRequest = func(string) {
		cancelEv = h.machine.Submit(context.Background(), Cancel{})
	}

	ev := h.machine.Submit(context.Background(), Start{})
	assert.Equal(t, Cancelled, cancelEv.State)
	assert.Equal(t, EventIgnored, ev.Kind, "late gateway answer is discarded")
	assert.Equal(t, Cancelled, ev.State)
	assert.Empty(t, h.machine.Session().CandidateOptions)
}

func TestCommandsDuringTransferAreIgnored(t *testing.T) {
	var during []Event
	var h *harness
	h = newHarness(t, 1_000_000, types.PayerConfig{}, WithObserver(func(ev Event) {
		if ev.Kind == EventTransitioned && ev.State == Transferring {
			during = append(during,
				h.machine.Submit(context.Background(), SelectAmount{Amount: "5"}),
				h.machine.Submit(context.Background(), Cancel{}),
				h.machine.Submit(context.Background(), Start{}),
			)
		}
	}))
	h.toAmountSelection(t)

	ev := h.machine.Submit(context.Background(), SelectAmount{Amount: "0.2"})
	require.Equal(t, Succeeded, ev.State)
	require.Len(t, during, 3)
	assert.Equal(t, EventIgnored, during[0].Kind)
	assert.Equal(t, EventIgnored, during[1].Kind)
	assert.Equal(t, EventRejected, during[2].Kind)
	for _, e := range during {
		assert.Equal(t, Transferring, e.State)
	}
	assert.Equal(t, 1, h.ledger.SentCount())
}

func TestFractionOnlyAmount(t *testing.T) {
	h := newHarness(t, 1_000_000, types.PayerConfig{})
	h.toAmountSelection(t)

	ev := h.machine.Submit(context.Background(), SelectAmount{Amount: ".5"})
	require.Equal(t, Succeeded, ev.State)
	assert.Equal(t, "500000", ev.Session.TransferReceipt.AmountMinorUnits)
}

func TestRecover(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing stored", func(t *testing.T) {
		h := newHarness(t, 1_000_000, types.PayerConfig{})
		ev, err := h.machine.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, Idle, ev.State)
	})

	t.Run("awaiting confirmation resubmits proof", func(t *testing.T) {
		h := newHarness(t, 1_000_000, types.PayerConfig{})
		h.gateway.ConfirmErr = errors.New("gateway down")
		h.toAmountSelection(t)
		require.Equal(t, Failed, h.machine.Submit(ctx, SelectAmount{Amount: "0.2"}).State)
		first := h.gateway.Proofs[0]

		// Rewind the stored record to the moment before the gateway answered.
		s := h.machine.Session()
		s.State = AwaitingConfirmation
		s.Failure = nil
		require.NoError(t, h.store.Save(ctx, s))

		restarted := newHarness(t, 1_000_000, types.PayerConfig{}, WithStore(h.store))
		ev, err := restarted.machine.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, Succeeded, ev.State)
		require.Len(t, restarted.gateway.Proofs, 1)
		assert.Equal(t, first, restarted.gateway.Proofs[0])
		assert.Equal(t, 0, restarted.ledger.SentCount(), "no second transfer")
	})

	t.Run("transferring fails as unknown outcome", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, &Session{ResourceID: "r-9", OrderID: "o", State: Transferring}))

		h := newHarness(t, 1_000_000, types.PayerConfig{}, WithStore(store))
		ev, err := h.machine.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, Failed, ev.State)
		assert.True(t, errors.Is(ev.Err, types.ErrConfirmationTimeout))
		assert.Equal(t, 0, h.ledger.SentCount())
	})

	t.Run("selection state is restored as is", func(t *testing.T) {
		store := NewMemoryStore()
		opt := usdcOption(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
		require.NoError(t, store.Save(ctx, &Session{
			ResourceID:       "r-3",
			OrderID:          "o",
			CandidateOptions: []types.PaymentOption{opt},
			State:            AwaitingNetworkSelection,
		}))

		h := newHarness(t, 1_000_000, types.PayerConfig{}, WithStore(store))
		ev, err := h.machine.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, AwaitingNetworkSelection, ev.State)
		assert.Equal(t, AwaitingAmountSelection, h.machine.Submit(ctx, SelectOption{Index: 0}).State)
	})

	t.Run("rejected while a session is active", func(t *testing.T) {
		h := newHarness(t, 1_000_000, types.PayerConfig{})
		require.Equal(t, AwaitingNetworkSelection, h.machine.Submit(ctx, Start{}).State)

		_, err := h.machine.Recover(ctx)
		assert.True(t, errors.Is(err, types.ErrSessionActive))
	})
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(Idle, AwaitingOptions))
	assert.True(t, CanTransition(AwaitingOptions, Succeeded))
	assert.True(t, CanTransition(Transferring, AwaitingConfirmation))
	assert.False(t, CanTransition(Transferring, Cancelled))
	assert.False(t, CanTransition(AwaitingNetworkSelection, Transferring))
	assert.False(t, CanTransition(Succeeded, Failed))
	assert.True(t, Succeeded.Terminal())
	assert.False(t, AwaitingConfirmation.Terminal())
}
