// Package httpprovider implements evidence providers backed by JSON-over-HTTP
// collaborators: the signature/QR validator, the issuer registry portal and
// the forensic risk service.
package httpprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"certverify/internal/evidence/providers"
)

const maxResponseBytes = 1 << 20

// parseFunc turns a raw provider response into evidence. Implementations own
// status handling so they can be tested without a server.
type parseFunc func(status int, body []byte) (*providers.Evidence, error)

// Provider performs lookups by POSTing the filters as JSON to a fixed path.
type Provider struct {
	id      string
	baseURL string
	path    string
	apiKey  string
	caps    providers.Capabilities
	client  *http.Client
	parse   parseFunc
}

func newProvider(id, baseURL, path, apiKey string, timeout time.Duration, caps providers.Capabilities, parse parseFunc) *Provider {
	return &Provider{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    path,
		apiKey:  apiKey,
		caps:    caps,
		client:  &http.Client{Timeout: timeout},
		parse:   parse,
	}
}

func (p *Provider) ID() string { return p.id }

func (p *Provider) Capabilities() providers.Capabilities { return p.caps }

func (p *Provider) Lookup(ctx context.Context, filters map[string]string) (*providers.Evidence, error) {
	payload, err := json.Marshal(filters)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, p.id, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.path, bytes.NewReader(payload))
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, p.id, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, providers.NewProviderError(providers.CategoryForTransport(err), p.id, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, providers.NewProviderError(providers.CategoryForTransport(err), p.id, "read response", err)
	}

	evidence, err := p.parse(resp.StatusCode, body)
	if err != nil {
		var pe *providers.ProviderError
		if errors.As(err, &pe) {
			pe.ProviderID = p.id
		}
		return nil, err
	}
	evidence.ProviderID = p.id
	evidence.Metadata = map[string]string{"version": p.caps.Version}
	if rid := resp.Header.Get("X-Request-ID"); rid != "" {
		evidence.Metadata["request_id"] = rid
	}
	return evidence, nil
}

// Health probes GET {base}/health.
func (p *Provider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return providers.NewProviderError(providers.CategoryForTransport(err), p.id, "health check failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return providers.NewProviderError(providers.CategoryForStatus(resp.StatusCode), p.id,
			fmt.Sprintf("health check returned %d", resp.StatusCode), nil)
	}
	return nil
}

func checkStatus(status int, body []byte) error {
	if status == http.StatusOK {
		return nil
	}
	msg := fmt.Sprintf("unexpected status %d", status)
	if snippet := strings.TrimSpace(string(body)); snippet != "" && len(snippet) <= 200 {
		msg += ": " + snippet
	}
	return providers.NewProviderError(providers.CategoryForStatus(status), "", msg, nil)
}

func decodeBody(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return providers.NewProviderError(providers.ErrorBadData, "", "malformed response", err)
	}
	return nil
}

func parseCheckedAt(raw string) time.Time {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
