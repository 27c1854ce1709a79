package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certverify/internal/document/models"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
)

// fakeClock fires immediately and records every wait.
type fakeClock struct {
	waits []time.Duration
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

// stuckClock never fires.
type stuckClock struct{}

func (stuckClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

func fetchSequence(statuses ...models.Status) (FetchFunc, *int) {
	calls := 0
	return func(_ context.Context, docID id.DocumentID) (*models.Document, error) {
		i := min(calls, len(statuses)-1)
		calls++
		return &models.Document{ID: docID, Status: statuses[i], ErrorMessage: "unreadable image"}, nil
	}, &calls
}

func TestWait_TimesOutAfterMaxAttempts(t *testing.T) {
	clock := &fakeClock{}
	fetch, calls := fetchSequence(models.StatusProcessing)

	doc, err := New(WithClock(clock)).Wait(context.Background(), id.NewDocumentID(), fetch)

	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.Equal(t, DefaultMaxAttempts, *calls)
	assert.Len(t, clock.waits, DefaultMaxAttempts-1)
	for _, w := range clock.waits {
		assert.Equal(t, DefaultInterval, w)
	}
	assert.Equal(t, models.StatusProcessing, doc.Status)
}

func TestWait_ReturnsCompleted(t *testing.T) {
	clock := &fakeClock{}
	fetch, calls := fetchSequence(models.StatusPending, models.StatusProcessing, models.StatusCompleted)

	doc, err := New(WithClock(clock)).Wait(context.Background(), id.NewDocumentID(), fetch)

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, doc.Status)
	assert.Equal(t, 3, *calls)
	assert.Len(t, clock.waits, 2)
}

func TestWait_FailedDocument(t *testing.T) {
	fetch, _ := fetchSequence(models.StatusProcessing, models.StatusFailed)

	doc, err := New(WithClock(&fakeClock{})).Wait(context.Background(), id.NewDocumentID(), fetch)

	assert.True(t, dErrors.HasCode(err, dErrors.CodeProcessingFailed))
	assert.Contains(t, err.Error(), "unreadable image")
	assert.Equal(t, models.StatusFailed, doc.Status)
}

func TestWait_CustomBudget(t *testing.T) {
	clock := &fakeClock{}
	fetch, calls := fetchSequence(models.StatusPending)

	_, err := New(WithClock(clock), WithMaxAttempts(3), WithInterval(time.Second)).
		Wait(context.Background(), id.NewDocumentID(), fetch)

	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.Equal(t, 3, *calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.waits)
}

func TestWait_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch, calls := fetchSequence(models.StatusProcessing)
	go cancel()

	_, err := New(WithClock(stuckClock{})).Wait(ctx, id.NewDocumentID(), fetch)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, *calls)
}

func TestWait_FetchError(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := New(WithClock(&fakeClock{})).Wait(context.Background(), id.NewDocumentID(),
		func(context.Context, id.DocumentID) (*models.Document, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestWait_NilDocumentIsInternalError(t *testing.T) {
	doc, err := New(WithClock(&fakeClock{})).Wait(context.Background(), id.NewDocumentID(),
		func(context.Context, id.DocumentID) (*models.Document, error) { return nil, nil })
	assert.Nil(t, doc)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}
