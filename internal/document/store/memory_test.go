package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certverify/internal/document/models"
	"certverify/internal/normalize"
	id "certverify/pkg/domain"
	"certverify/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	now := time.Now()
	doc := models.NewDocument(id.NewDocumentID(), normalize.DocumentTypeAadhaar, "a.jpg", "image/jpeg", 3, "documents/a", now)

	require.NoError(t, s.Create(ctx, doc))
	assert.ErrorIs(t, s.Create(ctx, doc), sentinel.ErrConflict)

	got, err := s.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	got.Status = models.StatusProcessing
	stored, err := s.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status, "returned documents are copies")

	require.NoError(t, s.Update(ctx, got))
	stored, err = s.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, stored.Status)

	_, err = s.FindByID(ctx, id.NewDocumentID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, &models.Document{ID: id.NewDocumentID()}), sentinel.ErrNotFound)
}
