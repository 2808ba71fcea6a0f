// Package session drives one x402 resource purchase from the payment request to settlement.
//
// The Machine owns exactly one session at a time. Commands are submitted with Submit and
// answered with an Event; commands that do not fit the current state are ignored rather
// than queued. The machine's mutex guards the session record only: gateway and ledger
// calls run without it, so a command arriving mid-transfer observes Transferring and is
// ignored.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/vitwit/x402pay/amount"
	"github.com/vitwit/x402pay/gateway"
	"github.com/vitwit/x402pay/ledger"
	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/metrics"
	"github.com/vitwit/x402pay/proof"
	"github.com/vitwit/x402pay/signer"
	"github.com/vitwit/x402pay/transfer"
	"github.com/vitwit/x402pay/types"
	"github.com/vitwit/x402pay/utils"
)

type Machine struct {
	mu  sync.Mutex
	cur *Session

	cfg      types.PayerConfig
	gateway  gateway.Gateway
	ledger   ledger.Ledger
	signer   signer.Signer
	executor *transfer.Executor
	store    Store

	newID     func() string
	now       func() time.Time
	logger    logger.Logger
	metrics   metrics.Recorder
	observers []func(Event)
}

type Option func(*Machine)

func WithStore(s Store) Option {
	return func(m *Machine) {
		if s != nil {
			m.store = s
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(m *Machine) {
		if r != nil {
			m.metrics = r
		}
	}
}

// WithIDGenerator replaces the resource id generator. The default issues random UUIDs.
func WithIDGenerator(fn func() string) Option {
	return func(m *Machine) {
		if fn != nil {
			m.newID = fn
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(m *Machine) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithObserver registers fn to receive every event the machine produces, including the
// intermediate transitions of a single command. fn runs without the machine's lock held.
func WithObserver(fn func(Event)) Option {
	return func(m *Machine) {
		if fn != nil {
			m.observers = append(m.observers, fn)
		}
	}
}

func WithExecutor(e *transfer.Executor) Option {
	return func(m *Machine) {
		m.executor = e
	}
}

func New(cfg types.PayerConfig, gw gateway.Gateway, l ledger.Ledger, s signer.Signer, opts ...Option) *Machine {
	m := &Machine{
		cfg:     cfg.WithDefaults(),
		gateway: gw,
		ledger:  l,
		signer:  s,
		store:   NewMemoryStore(),
		newID:   uuid.NewString,
		now:     time.Now,
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.executor == nil {
		m.executor = transfer.New(l,
			transfer.WithFeeReserve(m.cfg.FeeReserveLamports),
			transfer.WithLogger(m.logger),
		)
	}
	return m
}

// State returns the current state, Idle when no session was ever started.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Idle
	}
	return m.cur.State
}

// Session returns a snapshot of the current session, or nil.
func (m *Machine) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.Clone()
}

// Submit runs cmd to completion and returns the event describing where it left the session.
// SelectAmount blocks through the transfer and the gateway confirmation.
func (m *Machine) Submit(ctx context.Context, cmd Command) Event {
	switch c := cmd.(type) {
	case Start:
		return m.start(ctx)
	case SelectOption:
		return m.selectOption(ctx, c.Index)
	case SelectAmount:
		return m.selectAmount(ctx, c.Amount)
	case Cancel:
		return m.cancel(ctx)
	default:
		return m.reply(EventRejected, fmt.Sprintf("unknown command %T", cmd), nil)
	}
}

func (m *Machine) start(ctx context.Context) Event {
	m.mu.Lock()
	if m.cur != nil && !m.cur.State.Terminal() {
		ev := m.eventLocked(EventRejected, "a session is already in progress", &types.SessionError{
			Kind:    types.KindSessionActive,
			Message: fmt.Sprintf("session %s is %s; finish or cancel it first", m.cur.ResourceID, m.cur.State),
		})
		m.mu.Unlock()
		m.emit(ev)
		return ev
	}
	now := m.now()
	id := m.newID()
	m.cur = &Session{ResourceID: id, State: AwaitingOptions, CreatedAt: now, UpdatedAt: now}
	m.persistLocked(ctx)
	ev := m.eventLocked(EventTransitioned, "requesting payment options", nil)
	m.mu.Unlock()
	m.logger.Info("session started", map[string]any{"resource_id": id})
	m.metrics.IncCounter("session_"+string(AwaitingOptions), nil)
	m.emit(ev)

	res, err := m.gateway.RequestPayment(ctx, id)
	if err != nil {
		return m.fail(ctx, id, &types.SessionError{
			Kind:    types.KindGatewayRejected,
			Message: "payment request failed",
			Err:     err,
		}, AwaitingOptions)
	}
	if res.Paid() {
		ev, _ := m.apply(ctx, id, transition{
			to:   Succeeded,
			from: []State{AwaitingOptions},
			msg:  "resource already paid",
			mutate: func(s *Session) {
				s.Resource = res.Data
			},
		})
		return ev
	}
	if res.Required == nil {
		return m.fail(ctx, id, &types.SessionError{
			Kind:    types.KindGatewayRejected,
			Message: fmt.Sprintf("gateway answered http %d without payment requirements", res.StatusCode),
		}, AwaitingOptions)
	}
	if res.Required.OrderID == "" {
		return m.fail(ctx, id, &types.SessionError{
			Kind:    types.KindGatewayRejected,
			Message: "payment requirements carry no orderId",
		}, AwaitingOptions)
	}

	options := m.supported(res.Required.Accepts)
	if len(options) == 0 {
		return m.fail(ctx, id, &types.SessionError{
			Kind:    types.KindNoSupportedOption,
			Message: fmt.Sprintf("none of the %d offered payment options can be paid on solana", len(res.Required.Accepts)),
		}, AwaitingOptions)
	}

	orderID := res.Required.OrderID
	ev, _ = m.apply(ctx, id, transition{
		to:   AwaitingNetworkSelection,
		from: []State{AwaitingOptions},
		msg:  fmt.Sprintf("%d payment options available", len(options)),
		mutate: func(s *Session) {
			s.OrderID = orderID
			s.CandidateOptions = options
		},
	})
	return ev
}

// supported keeps the options this payer can settle, in gateway order.
func (m *Machine) supported(accepts []types.PaymentOption) []types.PaymentOption {
	now := m.now()
	out := make([]types.PaymentOption, 0, len(accepts))
	for _, opt := range accepts {
		if !m.cfg.Accepts(opt) || opt.Expired(now) {
			continue
		}
		if err := utils.ValidatePaymentScheme(opt.Scheme); err != nil {
			m.logger.Debug("skipping payment option", map[string]any{
				"network": opt.Network,
				"scheme":  opt.Scheme,
			})
			continue
		}
		if err := utils.ValidatePaymentOption(&opt); err != nil {
			m.logger.Debug("skipping malformed payment option", map[string]any{
				"network": opt.Network,
				"asset":   opt.Asset,
				"error":   err.Error(),
			})
			continue
		}
		out = append(out, opt)
	}
	return out
}

func (m *Machine) selectOption(ctx context.Context, index int) Event {
	m.mu.Lock()
	if m.cur == nil || m.cur.State != AwaitingNetworkSelection {
		ev := m.eventLocked(EventIgnored, "no option selection expected", nil)
		m.mu.Unlock()
		m.emit(ev)
		return ev
	}
	if index < 0 || index >= len(m.cur.CandidateOptions) {
		ev := m.eventLocked(EventIgnored, "invalid option", &types.SessionError{
			Kind:    types.KindInvalidSelection,
			Message: fmt.Sprintf("option %d does not exist; %d available", index, len(m.cur.CandidateOptions)),
		})
		m.mu.Unlock()
		m.emit(ev)
		return ev
	}
	id := m.cur.ResourceID
	opt := m.cur.CandidateOptions[index]
	m.mu.Unlock()

	if opt.Expired(m.now()) {
		return m.reply(EventIgnored, "option expired", &types.SessionError{
			Kind:    types.KindInvalidSelection,
			Message: fmt.Sprintf("option %d expired", index),
		})
	}

	decimals := m.resolveDecimals(ctx, opt)
	ev, _ := m.apply(ctx, id, transition{
		to:   AwaitingAmountSelection,
		from: []State{AwaitingNetworkSelection},
		msg:  fmt.Sprintf("paying with %s on %s", opt.Symbol, opt.Network),
		mutate: func(s *Session) {
			s.SelectedOption = &opt
			s.Decimals = &decimals
		},
	})
	return ev
}

// resolveDecimals settles the token precision once per session: the option's own value,
// then the mint account on the ledger, then the configured default.
func (m *Machine) resolveDecimals(ctx context.Context, opt types.PaymentOption) uint8 {
	if opt.Decimals != nil {
		return *opt.Decimals
	}
	mint, err := solana.PublicKeyFromBase58(opt.Asset)
	if err == nil {
		d, lerr := m.ledger.GetMintDecimals(ctx, mint)
		if lerr == nil {
			return d
		}
		err = lerr
	}
	m.logger.Warn("mint decimals unavailable, using configured default", map[string]any{
		"mint":     opt.Asset,
		"decimals": m.cfg.FallbackDecimals(),
		"error":    err.Error(),
	})
	return m.cfg.FallbackDecimals()
}

func (m *Machine) selectAmount(ctx context.Context, value string) Event {
	m.mu.Lock()
	if m.cur == nil || m.cur.State != AwaitingAmountSelection || m.cur.SelectedOption == nil {
		ev := m.eventLocked(EventIgnored, "no amount selection expected", nil)
		m.mu.Unlock()
		m.emit(ev)
		return ev
	}
	decimals := m.cfg.FallbackDecimals()
	if m.cur.Decimals != nil {
		decimals = *m.cur.Decimals
	}
	units, err := amount.ParseMinorUnits(value, decimals)
	if err == nil && units.Sign() == 0 {
		err = errors.New("amount must be greater than zero")
	}
	if err != nil {
		ev := m.eventLocked(EventIgnored, "amount rejected", &types.SessionError{
			Kind:    types.KindMalformedAmount,
			Message: fmt.Sprintf("%q is not a payable amount with %d decimals", value, decimals),
			Err:     err,
		})
		m.mu.Unlock()
		m.emit(ev)
		return ev
	}
	id := m.cur.ResourceID
	orderID := m.cur.OrderID
	opt := *m.cur.SelectedOption
	m.mu.Unlock()

	ev, ok := m.apply(ctx, id, transition{
		to:   Transferring,
		from: []State{AwaitingAmountSelection},
		msg:  fmt.Sprintf("transferring %s %s", value, opt.Symbol),
		mutate: func(s *Session) {
			s.RequestedAmount = value
		},
	})
	if !ok {
		return ev
	}

	receipt, err := m.transfer(ctx, opt, value, decimals)
	if err != nil {
		return m.failTransfer(ctx, id, err)
	}

	ev, ok = m.apply(ctx, id, transition{
		to:   AwaitingConfirmation,
		from: []State{Transferring},
		msg:  "transfer confirmed on chain, notifying gateway",
		mutate: func(s *Session) {
			s.TransferReceipt = receipt
		},
	})
	if !ok {
		return ev
	}

	header, err := proof.FromReceipt(orderID, opt, receipt)
	if err != nil {
		return m.fail(ctx, id, &types.SessionError{
			Kind:    types.KindGatewayRejected,
			Message: "could not encode payment proof",
			Err:     err,
		}, AwaitingConfirmation)
	}
	return m.confirm(ctx, id, header)
}

func (m *Machine) transfer(ctx context.Context, opt types.PaymentOption, value string, decimals uint8) (*types.TransferReceipt, error) {
	mint, err := solana.PublicKeyFromBase58(opt.Asset)
	if err != nil {
		return nil, fmt.Errorf("invalid mint %q: %w", opt.Asset, err)
	}
	recipient, err := solana.PublicKeyFromBase58(opt.PayTo)
	if err != nil {
		return nil, fmt.Errorf("invalid payTo %q: %w", opt.PayTo, err)
	}

	start := time.Now()
	receipt, err := m.executor.Transfer(ctx, transfer.TransferRequest{
		Signer:    m.signer,
		Mint:      mint,
		Recipient: recipient,
		Amount:    value,
		Decimals:  decimals,
	})
	m.metrics.ObserveLatency("transfer", time.Since(start), map[string]string{"network": opt.Network})
	return receipt, err
}

func (m *Machine) failTransfer(ctx context.Context, id string, err error) Event {
	kind := types.KindOf(err)
	if kind == "" {
		err = &types.ExecutionError{
			Kind:    types.KindSubmissionFailed,
			Message: "transfer aborted before submission",
			Err:     err,
		}
		kind = types.KindSubmissionFailed
	}

	var pending string
	msg := err.Error()
	var ee *types.ExecutionError
	if kind == types.KindConfirmationTimeout && errors.As(err, &ee) && ee.TransactionID != "" {
		pending = ee.TransactionID
		msg = fmt.Sprintf("transaction %s was not confirmed in time and may still land; check its status before paying again", pending)
	}

	ev, _ := m.apply(ctx, id, transition{
		to:   Failed,
		from: []State{Transferring},
		msg:  msg,
		err:  err,
		mutate: func(s *Session) {
			s.Failure = types.FailureFromError(err)
			s.PendingTransactionID = pending
		},
	})
	return ev
}

// confirm delivers the proof and polls while the gateway reports settlement as pending.
// The transfer is already confirmed on chain, so running out of polls ends in a
// provisional success rather than a failure.
func (m *Machine) confirm(ctx context.Context, id, header string) Event {
	for attempt := 0; ; attempt++ {
		res, err := m.gateway.ConfirmPayment(ctx, id, header)
		if err != nil {
			return m.fail(ctx, id, &types.SessionError{
				Kind:    types.KindGatewayRejected,
				Message: "payment confirmation failed",
				Err:     err,
			}, AwaitingConfirmation)
		}

		switch {
		case res.Pending():
			if attempt >= m.cfg.PollAttempts() {
				return m.provisional(ctx, id, res.Message)
			}
			m.logger.Info("gateway settlement pending", map[string]any{
				"resource_id": id,
				"attempt":     attempt + 1,
				"message":     res.Message,
			})
			if err := sleep(ctx, m.cfg.ConfirmPollInterval); err != nil {
				return m.provisional(ctx, id, res.Message)
			}
		case res.Settled():
			ev, _ := m.apply(ctx, id, transition{
				to:   Succeeded,
				from: []State{AwaitingConfirmation},
				msg:  "payment settled",
			})
			return ev
		default:
			return m.fail(ctx, id, &types.SessionError{
				Kind:    types.KindGatewayRejected,
				Message: fmt.Sprintf("gateway rejected payment proof (http %d): %s", res.StatusCode, res.Message),
			}, AwaitingConfirmation)
		}
	}
}

func (m *Machine) provisional(ctx context.Context, id, gatewayMsg string) Event {
	ev, _ := m.apply(ctx, id, transition{
		to:   Succeeded,
		from: []State{AwaitingConfirmation},
		msg:  fmt.Sprintf("payment broadcast, gateway still settling: %s", gatewayMsg),
		mutate: func(s *Session) {
			s.Provisional = true
		},
	})
	return ev
}

func (m *Machine) cancel(ctx context.Context) Event {
	m.mu.Lock()
	if m.cur == nil || !m.cur.State.Cancellable() {
		ev := m.eventLocked(EventIgnored, "nothing to cancel", nil)
		m.mu.Unlock()
		m.emit(ev)
		return ev
	}
	id := m.cur.ResourceID
	m.mu.Unlock()

	ev, _ := m.apply(ctx, id, transition{
		to:   Cancelled,
		from: []State{AwaitingOptions, AwaitingNetworkSelection, AwaitingAmountSelection},
		msg:  "session cancelled",
	})
	return ev
}

// Recover reloads the most recent session from the store after a restart and drives it
// to a state the caller can act on. A session interrupted while confirming is confirmed
// again with the same proof; one interrupted mid-transfer is failed, since its
// transaction may or may not have landed.
func (m *Machine) Recover(ctx context.Context) (Event, error) {
	s, err := m.store.Latest(ctx)
	if errors.Is(err, ErrNotFound) {
		return m.reply(EventIgnored, "nothing to recover", nil), nil
	}
	if err != nil {
		return Event{}, fmt.Errorf("recover session: %w", err)
	}

	m.mu.Lock()
	if m.cur != nil && !m.cur.State.Terminal() {
		active := m.cur.ResourceID
		m.mu.Unlock()
		return Event{}, &types.SessionError{
			Kind:    types.KindSessionActive,
			Message: fmt.Sprintf("session %s is already active", active),
		}
	}
	m.cur = s
	m.mu.Unlock()
	m.logger.Info("session restored", map[string]any{"resource_id": s.ResourceID, "state": s.State})

	switch s.State {
	case AwaitingOptions:
		return m.fail(ctx, s.ResourceID, &types.SessionError{
			Kind:    types.KindGatewayRejected,
			Message: "payment request interrupted",
		}, AwaitingOptions), nil
	case Transferring:
		return m.failTransfer(ctx, s.ResourceID, &types.ExecutionError{
			Kind:    types.KindConfirmationTimeout,
			Message: "transfer interrupted; the transaction may still land, check the sender's history before paying again",
		}), nil
	case AwaitingConfirmation:
		if s.TransferReceipt == nil || s.SelectedOption == nil {
			return m.fail(ctx, s.ResourceID, &types.SessionError{
				Kind:    types.KindGatewayRejected,
				Message: "confirmation interrupted and no receipt was recorded",
			}, AwaitingConfirmation), nil
		}
		header, err := proof.FromReceipt(s.OrderID, *s.SelectedOption, s.TransferReceipt)
		if err != nil {
			return m.fail(ctx, s.ResourceID, &types.SessionError{
				Kind:    types.KindGatewayRejected,
				Message: "could not encode payment proof",
				Err:     err,
			}, AwaitingConfirmation), nil
		}
		return m.confirm(ctx, s.ResourceID, header), nil
	default:
		return m.reply(EventIgnored, "session restored", nil), nil
	}
}

type transition struct {
	to     State
	from   []State
	msg    string
	err    error
	mutate func(*Session)
}

// apply performs t on the session identified by id as one update under the lock. It
// reports false, changing nothing, when that session is no longer current or has left
// the expected states.
func (m *Machine) apply(ctx context.Context, id string, t transition) (Event, bool) {
	m.mu.Lock()
	if m.cur == nil || m.cur.ResourceID != id || !slices.Contains(t.from, m.cur.State) || !CanTransition(m.cur.State, t.to) {
		ev := m.eventLocked(EventIgnored, "session moved on", nil)
		m.mu.Unlock()
		m.emit(ev)
		return ev, false
	}
	from := m.cur.State
	if t.mutate != nil {
		t.mutate(m.cur)
	}
	m.cur.State = t.to
	m.cur.UpdatedAt = m.now()
	m.persistLocked(ctx)
	ev := m.eventLocked(EventTransitioned, t.msg, t.err)
	labels := labelsFor(m.cur)
	fields := map[string]any{
		"resource_id": id,
		"order_id":    m.cur.OrderID,
		"from":        from,
		"state":       t.to,
		"network":     labels["network"],
	}
	m.mu.Unlock()

	if t.err != nil {
		fields["error"] = t.err.Error()
		m.logger.Warn("session transition", fields)
	} else {
		m.logger.Info("session transition", fields)
	}
	m.metrics.IncCounter("session_"+string(t.to), labels)
	m.emit(ev)
	return ev, true
}

func (m *Machine) fail(ctx context.Context, id string, err error, from ...State) Event {
	ev, _ := m.apply(ctx, id, transition{
		to:   Failed,
		from: from,
		msg:  err.Error(),
		err:  err,
		mutate: func(s *Session) {
			s.Failure = types.FailureFromError(err)
		},
	})
	return ev
}

// persistLocked writes the current record. The write is detached from ctx so that a
// caller who stopped waiting still has the outcome recorded.
func (m *Machine) persistLocked(ctx context.Context) {
	if err := m.store.Save(context.WithoutCancel(ctx), m.cur); err != nil {
		m.logger.Error("persist session", map[string]any{
			"resource_id": m.cur.ResourceID,
			"state":       m.cur.State,
			"error":       err.Error(),
		})
	}
}

func (m *Machine) eventLocked(kind EventKind, msg string, err error) Event {
	ev := Event{Kind: kind, State: Idle, Message: msg, Err: err}
	if m.cur != nil {
		ev.State = m.cur.State
		ev.SessionID = m.cur.ResourceID
		ev.Session = m.cur.Clone()
	}
	return ev
}

func (m *Machine) reply(kind EventKind, msg string, err error) Event {
	m.mu.Lock()
	ev := m.eventLocked(kind, msg, err)
	m.mu.Unlock()
	m.emit(ev)
	return ev
}

func (m *Machine) emit(ev Event) {
	for _, fn := range m.observers {
		fn(ev)
	}
}

func labelsFor(s *Session) map[string]string {
	if s == nil || s.SelectedOption == nil {
		return map[string]string{"network": ""}
	}
	return map[string]string{"network": s.SelectedOption.Network}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
