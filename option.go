package x402pay

import (
	"time"

	"github.com/vitwit/x402pay/gateway"
	"github.com/vitwit/x402pay/ledger"
	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/metrics"
	"github.com/vitwit/x402pay/session"
)

type Option func(*Payer)

func WithLogger(l logger.Logger) Option {
	return func(p *Payer) {
		p.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(p *Payer) {
		p.metrics = r
	}
}

// WithTimeout bounds every command, including the transfer and its confirmation.
func WithTimeout(t time.Duration) Option {
	return func(p *Payer) {
		p.timeout = t
	}
}

func WithStore(s session.Store) Option {
	return func(p *Payer) {
		p.store = s
	}
}

func WithLedger(l ledger.Ledger) Option {
	return func(p *Payer) {
		p.ledger = l
	}
}

func WithGateway(g gateway.Gateway) Option {
	return func(p *Payer) {
		p.gateway = g
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(p *Payer) {
		p.newID = fn
	}
}

func WithClock(fn func() time.Time) Option {
	return func(p *Payer) {
		p.now = fn
	}
}

// WithObserver receives every session event, for progress reporting.
func WithObserver(fn func(session.Event)) Option {
	return func(p *Payer) {
		p.observers = append(p.observers, fn)
	}
}
