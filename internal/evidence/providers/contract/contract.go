// Package contract asserts the behaviour every evidence provider shares, so
// each implementation's tests only need to supply a backend and an input.
package contract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certverify/internal/evidence/providers"
)

// Evidence looks up input and checks the fields the verification engine
// relies on. The returned evidence can be inspected further by the caller.
func Evidence(t *testing.T, p providers.Provider, input map[string]string, want providers.ProviderType) *providers.Evidence {
	t.Helper()
	evidence, err := p.Lookup(context.Background(), input)
	require.NoError(t, err, "lookup via %s", p.ID())
	require.NotNil(t, evidence)

	assert.Equal(t, p.ID(), evidence.ProviderID)
	assert.Equal(t, want, evidence.ProviderType)
	assert.GreaterOrEqual(t, evidence.Confidence, 0.0)
	assert.LessOrEqual(t, evidence.Confidence, 1.0)
	assert.False(t, evidence.CheckedAt.IsZero(), "checkedAt must be stamped")
	return evidence
}

// Capabilities checks that a provider describes what it can be asked.
func Capabilities(t *testing.T, p providers.Provider) {
	t.Helper()
	caps := p.Capabilities()
	assert.NotEmpty(t, caps.Protocol, "%s protocol", p.ID())
	assert.NotEmpty(t, caps.Type, "%s type", p.ID())
	assert.NotEmpty(t, caps.Version, "%s version", p.ID())
	assert.NotEmpty(t, caps.Fields, "%s fields", p.ID())
	assert.NotEmpty(t, caps.Filters, "%s filters", p.ID())
}

// Failure checks that a failing lookup is categorised and that the
// retryable flag matches the category.
func Failure(t *testing.T, p providers.Provider, input map[string]string, want providers.ErrorCategory, retryable bool) {
	t.Helper()
	evidence, err := p.Lookup(context.Background(), input)
	require.Error(t, err)
	assert.Nil(t, evidence)
	assert.Equal(t, want, providers.GetCategory(err))
	assert.Equal(t, retryable, providers.IsRetryable(err))
}
