// Package x402pay pays for x402 priced resources with SPL tokens on Solana.
//
// A Payer asks the gateway for a resource, lets the caller pick one of the offered
// payment options and an amount, transfers the tokens, and proves the transfer to the
// gateway in the X-PAYMENT header. One Payer runs one purchase at a time.
package x402pay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"github.com/vitwit/x402pay/gateway"
	"github.com/vitwit/x402pay/ledger"
	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/metrics"
	"github.com/vitwit/x402pay/resolver"
	"github.com/vitwit/x402pay/session"
	"github.com/vitwit/x402pay/signer"
	"github.com/vitwit/x402pay/types"
	"github.com/vitwit/x402pay/utils"
)

// Payer is the main struct that provides all payment functionality
type Payer struct {
	config  types.PayerConfig
	signer  signer.Signer
	machine *session.Machine

	ledger  ledger.Ledger
	gateway gateway.Gateway
	store   session.Store
	redis   *redis.Client

	logger    logger.Logger
	metrics   metrics.Recorder
	timeout   time.Duration
	newID     func() string
	now       func() time.Time
	observers []func(session.Event)
}

// New creates a Payer from config. Collaborators not supplied through options are built
// from the config: a JSON-RPC ledger, an HTTP gateway client, and a redis store when
// RedisURL is set.
func New(config types.PayerConfig, s signer.Signer, opts ...Option) (*Payer, error) {
	if s == nil {
		return nil, &types.X402Error{Code: types.ErrConfigError, Message: "a signer is required"}
	}
	if err := utils.ValidatePayerConfig(&config); err != nil {
		return nil, err
	}
	config = config.WithDefaults()

	p := &Payer{
		config:  config,
		signer:  s,
		timeout: config.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = logger.NewZapLogger(config.LogLevel)
	}
	if p.metrics == nil {
		if config.EnableMetrics {
			p.metrics = metrics.NewPrometheusRecorder()
		} else {
			p.metrics = metrics.NoopRecorder{}
		}
	}
	if p.ledger == nil {
		p.ledger = ledger.NewRPCLedger(config.RPCURL,
			ledger.WithCommitment(config.Commitment),
			ledger.WithPollInterval(config.ConfirmationPollInterval),
			ledger.WithLogger(p.logger),
		)
	}
	if p.gateway == nil {
		gw, err := gateway.NewHTTPClient(config.GatewayURL,
			gateway.WithPaths(config.RequestPath, config.ConfirmPath),
			gateway.WithHeaders(config.Headers),
			gateway.WithHTTPClient(&http.Client{Timeout: p.timeout}),
			gateway.WithLogger(p.logger),
			gateway.WithMetrics(p.metrics),
		)
		if err != nil {
			return nil, err
		}
		p.gateway = gw
	}
	if p.store == nil {
		if config.RedisURL != "" {
			client, err := session.DialRedis(context.Background(), config.RedisURL)
			if err != nil {
				return nil, fmt.Errorf("failed to connect session store: %w", err)
			}
			p.redis = client
			p.store = session.NewRedisStore(client)
		} else {
			p.store = session.NewMemoryStore()
		}
	}

	sessionOpts := []session.Option{
		session.WithStore(p.store),
		session.WithLogger(p.logger),
		session.WithMetrics(p.metrics),
		session.WithIDGenerator(p.newID),
		session.WithClock(p.now),
	}
	for _, fn := range p.observers {
		sessionOpts = append(sessionOpts, session.WithObserver(fn))
	}
	p.machine = session.New(config, p.gateway, p.ledger, s, sessionOpts...)

	p.logger.Info("payer ready", map[string]any{
		"payer":   s.PublicKey().String(),
		"gateway": config.GatewayURL,
		"rpc":     config.RPCURL,
	})
	return p, nil
}

// Submit runs one command against the active session, bounded by the payer timeout.
func (p *Payer) Submit(ctx context.Context, cmd session.Command) session.Event {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.machine.Submit(ctx, cmd)
}

func (p *Payer) Start(ctx context.Context) session.Event {
	return p.Submit(ctx, session.Start{})
}

func (p *Payer) SelectOption(ctx context.Context, index int) session.Event {
	return p.Submit(ctx, session.SelectOption{Index: index})
}

func (p *Payer) SelectAmount(ctx context.Context, amount string) session.Event {
	return p.Submit(ctx, session.SelectAmount{Amount: amount})
}

func (p *Payer) Cancel(ctx context.Context) session.Event {
	return p.Submit(ctx, session.Cancel{})
}

// Recover resumes the last stored session after a restart.
func (p *Payer) Recover(ctx context.Context) (session.Event, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.machine.Recover(ctx)
}

func (p *Payer) Session() *session.Session {
	return p.machine.Session()
}

func (p *Payer) State() session.State {
	return p.machine.State()
}

// Chooser picks the option index and the amount to pay from the candidate options.
type Chooser func(options []types.PaymentOption) (index int, amount string, err error)

// Pay runs a whole purchase, asking choose for the option and amount once the gateway has
// priced the resource. It returns the final event; the error is set when the session did
// not succeed.
func (p *Payer) Pay(ctx context.Context, choose Chooser) (session.Event, error) {
	ev := p.Start(ctx)
	if ev.State != session.AwaitingNetworkSelection {
		return ev, eventError(ev)
	}

	index, amount, err := choose(ev.Session.CandidateOptions)
	if err != nil {
		p.Cancel(ctx)
		return ev, err
	}

	ev = p.SelectOption(ctx, index)
	if ev.State != session.AwaitingAmountSelection {
		return ev, eventError(ev)
	}
	ev = p.SelectAmount(ctx, amount)
	return ev, eventError(ev)
}

// Resolve reports where a payment of mint to recipient would land for this payer.
func (p *Payer) Resolve(ctx context.Context, mint, recipient string) (*types.ResolvedDestination, error) {
	m, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint: %w", err)
	}
	r, err := solana.PublicKeyFromBase58(recipient)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return resolver.New(p.ledger, p.logger).Resolve(ctx, m, p.signer.PublicKey(), r)
}

// Close releases the session store connection and flushes the logger.
func (p *Payer) Close() error {
	var errs []error
	if p.redis != nil {
		errs = append(errs, p.redis.Close())
	}
	if z, ok := p.logger.(*logger.ZapLogger); ok {
		// Sync on stderr-backed loggers reports EINVAL on some platforms.
		_ = z.Sync()
	}
	return errors.Join(errs...)
}

func (p *Payer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func eventError(ev session.Event) error {
	switch ev.State {
	case session.Succeeded:
		return nil
	case session.Cancelled:
		return errors.New("session cancelled")
	}
	if ev.Err != nil {
		return ev.Err
	}
	return fmt.Errorf("session stopped in state %s: %s", ev.State, ev.Message)
}

// Version information
const (
	Version         = "0.3.0"
	ProtocolVersion = int(types.X402Version1)
)

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	return map[string]interface{}{
		"library_version":  Version,
		"protocol_version": ProtocolVersion,
		"supported_networks": []string{
			"solana", "solana-mainnet", "solana-devnet", "solana-testnet",
			"mainnet-beta", "devnet", "testnet",
		},
		"supported_schemes": []string{
			string(types.SchemeExact),
		},
		"supported_standards": []string{
			"spl",
		},
	}
}
