// Package guard wraps evidence providers with a circuit breaker so a failing
// collaborator is short-circuited instead of timing out every step.
package guard

import (
	"context"
	"log/slog"

	"certverify/internal/evidence/providers"
	"certverify/pkg/platform/circuit"
)

// Provider decorates another provider with a breaker. Only outage-class
// failures (timeouts, outages, rate limiting) count against the breaker; a
// not-found record or bad data is a healthy answer from a working service.
type Provider struct {
	providers.Provider
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*Provider)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func Wrap(inner providers.Provider, breaker *circuit.Breaker, opts ...Option) *Provider {
	p := &Provider{
		Provider: inner,
		breaker:  breaker,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Lookup(ctx context.Context, filters map[string]string) (*providers.Evidence, error) {
	if !p.breaker.Allow() {
		return nil, providers.NewProviderError(providers.ErrorProviderOutage, p.ID(), "circuit open", nil)
	}

	evidence, err := p.Provider.Lookup(ctx, filters)
	if err != nil && providers.IsRetryable(err) {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "provider circuit opened",
				"provider_id", p.ID(),
				"breaker", p.breaker.Name(),
				"error", err,
			)
		}
		return nil, err
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "provider circuit closed", "provider_id", p.ID())
	}
	return evidence, err
}

// State reports the breaker state for health output.
func (p *Provider) State() circuit.State {
	return p.breaker.State()
}
