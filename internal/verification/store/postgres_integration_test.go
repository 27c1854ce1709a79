//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	certmodels "certverify/internal/certificate/models"
	certstore "certverify/internal/certificate/store"
	"certverify/internal/verification/models"
	id "certverify/pkg/domain"
	"certverify/pkg/platform/sentinel"
	"certverify/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg     *containers.PostgresContainer
	store  *PostgresStore
	certs  *certstore.PostgresStore
	certID id.CertificateID
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgresStore(s.pg.DB)
	s.certs = certstore.NewPostgresStore(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.pg.Truncate(ctx))
	cert := certmodels.NewCertificate(id.NewCertificateID(), "DEGREE", "UNIVERSITY",
		map[string]string{"certificate_number": "MU-1"}, nil, time.Now().UTC())
	s.Require().NoError(s.certs.Create(ctx, cert))
	s.certID = cert.ID
}

func (s *PostgresStoreSuite) newVerification(attempt int, prev *id.VerificationID) *models.Verification {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return models.NewVerification(id.NewVerificationID(), s.certID, models.TypeCombined, models.DefaultPolicy(), attempt, prev, now)
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	v := s.newVerification(1, nil)
	s.Require().NoError(s.store.CreateIfNoActive(ctx, v))

	got, err := s.store.FindByID(ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, got.Status)
	s.Equal(models.ResultPending, got.Result)
	s.Require().Len(got.Steps, 3)
	s.Equal(models.StepRegistryLookup, got.Steps[1].StepType)
	s.True(got.Steps[1].Mandatory)
	s.Nil(got.CompletedAt)
}

func (s *PostgresStoreSuite) TestSecondActiveIsConflict() {
	ctx := context.Background()
	s.Require().NoError(s.store.CreateIfNoActive(ctx, s.newVerification(1, nil)))

	err := s.store.CreateIfNoActive(ctx, s.newVerification(1, nil))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestConcurrentCreatesAdmitOne() {
	ctx := context.Background()
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.CreateIfNoActive(ctx, s.newVerification(1, nil)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, succeeded)
}

func (s *PostgresStoreSuite) TestStepUpdatesAndFinish() {
	ctx := context.Background()
	v := s.newVerification(1, nil)
	s.Require().NoError(s.store.CreateIfNoActive(ctx, v))

	now := time.Now().UTC().Truncate(time.Microsecond)
	step := v.Steps[2]
	step.Start(now)
	step.Complete(models.StepOutcome{Result: "LOW_RISK", Confidence: 0.9, Evidence: map[string]any{"risk_score": 0.1}}, now.Add(time.Second))
	s.Require().NoError(s.store.UpdateStep(ctx, v.ID, 2, step, now))

	got, err := s.store.FindByID(ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(models.StepCompleted, got.Steps[2].Status)
	s.Equal(models.StepPending, got.Steps[0].Status)
	s.Equal(0.1, got.Steps[2].Evidence["risk_score"])

	s.ErrorIs(s.store.UpdateStep(ctx, v.ID, 7, step, now), sentinel.ErrNotFound)

	got.Finish(models.Aggregation{Status: models.StatusCompleted, Result: models.ResultUnverified, Confidence: 0.3}, now)
	s.Require().NoError(s.store.Update(ctx, got))

	retry := s.newVerification(2, &got.ID)
	s.Require().NoError(s.store.CreateIfNoActive(ctx, retry), "finished verification frees the slot")

	list, err := s.store.ListByCertificate(ctx, s.certID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(1, list[0].Attempt)
	s.Require().NotNil(list[1].PreviousAttemptID)
	s.Equal(got.ID, *list[1].PreviousAttemptID)
}

func (s *PostgresStoreSuite) TestFindMissing() {
	_, err := s.store.FindByID(context.Background(), id.NewVerificationID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
