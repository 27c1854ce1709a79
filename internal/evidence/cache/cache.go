// Package cache stores successful provider lookups for a bounded TTL so
// repeated verifications of the same certificate do not hit the registry
// portal again.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"certverify/internal/evidence/providers"
	"certverify/pkg/platform/sentinel"
)

// Store is a TTL key/value store for evidence. Get returns
// sentinel.ErrNotFound on a miss or an expired entry.
type Store interface {
	Get(ctx context.Context, key string) (*providers.Evidence, error)
	Set(ctx context.Context, key string, evidence *providers.Evidence) error
}

// Provider serves lookups from the cache and falls through to the wrapped
// provider on a miss. Cache failures never fail a lookup.
type Provider struct {
	providers.Provider
	store  Store
	logger *slog.Logger
}

type Option func(*Provider)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func Wrap(inner providers.Provider, store Store, opts ...Option) *Provider {
	p := &Provider{
		Provider: inner,
		store:    store,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Lookup(ctx context.Context, filters map[string]string) (*providers.Evidence, error) {
	key := Key(p.ID(), filters)
	cached, err := p.store.Get(ctx, key)
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		p.logger.WarnContext(ctx, "evidence cache read failed", "provider_id", p.ID(), "error", err)
	}

	evidence, err := p.Provider.Lookup(ctx, filters)
	if err != nil {
		return nil, err
	}
	if err := p.store.Set(ctx, key, evidence); err != nil {
		p.logger.WarnContext(ctx, "evidence cache write failed", "provider_id", p.ID(), "error", err)
	}
	return evidence, nil
}

// Key derives a stable cache key from the provider ID and its filters.
func Key(providerID string, filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(providerID)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(filters[k])
	}
	return b.String()
}
