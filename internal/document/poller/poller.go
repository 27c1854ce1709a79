// Package poller waits for a document to reach a terminal status with a
// bounded number of fetches. Giving up never cancels server-side work.
package poller

import (
	"context"
	"fmt"
	"time"

	"certverify/internal/document/models"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 30
)

// Clock lets tests drive the wait loop without sleeping.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FetchFunc reads the current document state.
type FetchFunc func(ctx context.Context, docID id.DocumentID) (*models.Document, error)

type Poller struct {
	interval    time.Duration
	maxAttempts int
	clock       Clock
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithClock(c Clock) Option {
	return func(p *Poller) {
		p.clock = c
	}
}

func New(opts ...Option) *Poller {
	p := &Poller{
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		clock:       realClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait fetches at most maxAttempts times, sleeping interval between fetches.
// A failed document is returned together with a processing_failed error.
func (p *Poller) Wait(ctx context.Context, docID id.DocumentID, fetch FetchFunc) (*models.Document, error) {
	var last *models.Document
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		doc, err := fetch(ctx, docID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return last, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("fetch returned no document for %s", docID))
		}
		last = doc
		switch doc.Status {
		case models.StatusCompleted:
			return doc, nil
		case models.StatusFailed:
			return doc, dErrors.New(dErrors.CodeProcessingFailed,
				fmt.Sprintf("document processing failed: %s", doc.ErrorMessage))
		}
		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-p.clock.After(p.interval):
		}
	}
	return last, dErrors.New(dErrors.CodeTimeout,
		fmt.Sprintf("document %s still %s after %d attempts", docID, last.Status, p.maxAttempts))
}
