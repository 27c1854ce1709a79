package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certverify/internal/verification/models"
	id "certverify/pkg/domain"
	"certverify/pkg/platform/sentinel"
)

func TestInMemoryStoreActiveUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	certID := id.NewCertificateID()
	now := time.Now()

	first := models.NewVerification(id.NewVerificationID(), certID, models.TypeDigital, models.DefaultPolicy(), 1, nil, now)
	require.NoError(t, s.CreateIfNoActive(ctx, first))

	second := models.NewVerification(id.NewVerificationID(), certID, models.TypeDigital, models.DefaultPolicy(), 1, nil, now)
	assert.ErrorIs(t, s.CreateIfNoActive(ctx, second), sentinel.ErrConflict)

	other := models.NewVerification(id.NewVerificationID(), id.NewCertificateID(), models.TypeDigital, models.DefaultPolicy(), 1, nil, now)
	assert.NoError(t, s.CreateIfNoActive(ctx, other), "other certificates are independent")

	first.Finish(models.Aggregation{Status: models.StatusCompleted, Result: models.ResultVerified, Confidence: 0.9}, now)
	require.NoError(t, s.Update(ctx, first))
	assert.NoError(t, s.CreateIfNoActive(ctx, second))
}

func TestInMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	v := models.NewVerification(id.NewVerificationID(), id.NewCertificateID(), models.TypeCombined, models.DefaultPolicy(), 1, nil, time.Now())
	require.NoError(t, s.CreateIfNoActive(ctx, v))

	v.Steps[0].Status = models.StepFailed
	got, err := s.FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepPending, got.Steps[0].Status)

	step := got.Steps[1]
	step.Status = models.StepCompleted
	require.NoError(t, s.UpdateStep(ctx, v.ID, 1, step, time.Now()))
	assert.ErrorIs(t, s.UpdateStep(ctx, v.ID, 5, step, time.Now()), sentinel.ErrInvalidState)
	assert.ErrorIs(t, s.UpdateStep(ctx, id.NewVerificationID(), 0, step, time.Now()), sentinel.ErrNotFound)

	got, err = s.FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, got.Steps[1].Status)
}
