package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Protocol names the transport a provider speaks.
type Protocol string

const (
	ProtocolHTTP Protocol = "http"
)

// ProviderType identifies the kind of evidence a provider produces.
type ProviderType string

const (
	ProviderTypeDigital  ProviderType = "digital"  // signature and QR validation
	ProviderTypeRegistry ProviderType = "registry" // issuer portal lookup
	ProviderTypeForensic ProviderType = "forensic" // tampering risk analysis
)

// FieldCapability advertises which fields a provider exposes
type FieldCapability struct {
	FieldName  string
	Available  bool
	Filterable bool
}

// Capabilities describes what a provider supports
type Capabilities struct {
	Protocol Protocol
	Type     ProviderType
	Fields   []FieldCapability
	Version  string
	Filters  []string
}

// Evidence is the generic result from any provider. Data values are
// JSON-compatible so evidence can be cached and persisted as-is.
type Evidence struct {
	ProviderID   string            `json:"providerId"`
	ProviderType ProviderType      `json:"providerType"`
	Confidence   float64           `json:"confidence"`
	Data         map[string]any    `json:"data"`
	CheckedAt    time.Time         `json:"checkedAt"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Provider is the interface every evidence source implements.
type Provider interface {
	ID() string
	Capabilities() Capabilities
	// Lookup performs an evidence check. Filters carry the query fields
	// declared in Capabilities().Filters.
	Lookup(ctx context.Context, filters map[string]string) (*Evidence, error)
	Health(ctx context.Context) error
}

// Registry maintains the configured providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider; IDs must be unique.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.ID()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider %s already registered", id)
	}
	r.providers[id] = p
	return nil
}

func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// FirstByType returns the first provider (by ID) of the given type.
func (r *Registry) FirstByType(t ProviderType) (Provider, error) {
	list := r.ListByType(t)
	if len(list) == 0 {
		return nil, ErrNoProvidersAvailable
	}
	return list[0], nil
}

// ListByType returns the providers of a given type ordered by ID.
func (r *Registry) ListByType(t ProviderType) []Provider {
	var result []Provider
	for _, p := range r.All() {
		if p.Capabilities().Type == t {
			result = append(result, p)
		}
	}
	return result
}

// All returns every registered provider ordered by ID.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}
