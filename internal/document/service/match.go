package service

import (
	"context"
	"fmt"
	"slices"

	"certverify/internal/document/models"
	"certverify/internal/matching"
	"certverify/internal/normalize"
	"certverify/internal/similarity"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
)

// MatchPANAadhaar compares the effective fields of a PAN and an Aadhaar
// document. Both must be completed.
func (s *Service) MatchPANAadhaar(ctx context.Context, panID, aadhaarID id.DocumentID) (*matching.Result, error) {
	pan, err := s.completedDocument(ctx, panID, normalize.DocumentTypePAN)
	if err != nil {
		return nil, err
	}
	aadhaar, err := s.completedDocument(ctx, aadhaarID, normalize.DocumentTypeAadhaar)
	if err != nil {
		return nil, err
	}

	result := matching.MatchFields(
		pan.EffectiveFields().Flatten(),
		aadhaar.EffectiveFields().Flatten(),
		s.matchRules, s.matchPolicy,
	)
	s.metrics.IncrementMatch("pan_aadhaar", string(result.MatchStatus))
	return &result, nil
}

// MatchSignatures compares the stored images of two documents.
func (s *Service) MatchSignatures(ctx context.Context, doc1, doc2 id.DocumentID) (*similarity.SignatureMatchResult, error) {
	first, err := s.Get(ctx, doc1)
	if err != nil {
		return nil, err
	}
	second, err := s.Get(ctx, doc2)
	if err != nil {
		return nil, err
	}
	for _, d := range []*models.Document{first, second} {
		if !d.IsImage() {
			return nil, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("document %s is a PDF; signature matching needs image documents", d.ID))
		}
	}

	img1, err := s.blobs.Get(ctx, first.BlobKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load first document image")
	}
	img2, err := s.blobs.Get(ctx, second.BlobKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load second document image")
	}

	result, err := s.comparer.Compare(img1, img2)
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementMatch("signature", string(result.MatchStatus))
	return result, nil
}

// EffectiveFields returns the flattened effective fields of a completed
// document. Certificate prefill uses it.
func (s *Service) EffectiveFields(ctx context.Context, docID id.DocumentID) (normalize.DocumentType, map[string]string, error) {
	doc, err := s.Get(ctx, docID)
	if err != nil {
		return "", nil, err
	}
	if doc.Status != models.StatusCompleted {
		return "", nil, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("document %s is %s, not completed", docID, doc.Status))
	}
	return doc.DocumentType, doc.EffectiveFields().Flatten(), nil
}

func (s *Service) completedDocument(ctx context.Context, docID id.DocumentID, want normalize.DocumentType) (*models.Document, error) {
	doc, err := s.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.DocumentType != want {
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("document %s is a %s document, expected %s", docID, doc.DocumentType, want))
	}
	if doc.Status != models.StatusCompleted {
		return nil, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("document %s is %s, not completed", docID, doc.Status))
	}
	return doc, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
