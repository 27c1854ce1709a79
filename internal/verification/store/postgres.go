package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"certverify/internal/platform/postgres"
	"certverify/internal/verification/models"
	id "certverify/pkg/domain"
	"certverify/pkg/platform/sentinel"
	"certverify/pkg/platform/tx"
)

// PostgresStore persists verifications. The partial unique index
// verifications_one_active makes CreateIfNoActive atomic.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `
	SELECT id, certificate_id, verification_type, status, result, confidence_score,
	       steps, evidence, attempt, previous_attempt_id, failure_reason,
	       created_at, updated_at, completed_at
	FROM verifications`

func (s *PostgresStore) CreateIfNoActive(ctx context.Context, v *models.Verification) error {
	steps, evidence, err := encodeJSON(v)
	if err != nil {
		return err
	}
	var prev any
	if v.PreviousAttemptID != nil {
		prev = v.PreviousAttemptID.String()
	}
	_, err = tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO verifications (id, certificate_id, verification_type, status, result, confidence_score,
		                           steps, evidence, attempt, previous_attempt_id, failure_reason,
		                           created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		v.ID.String(), v.CertificateID.String(), string(v.VerificationType), string(v.Status), string(v.Result),
		v.ConfidenceScore, steps, evidence, v.Attempt, prev, v.FailureReason,
		v.CreatedAt, v.UpdatedAt, v.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification: %w", postgres.TranslateError(err))
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, verificationID id.VerificationID) (*models.Verification, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, selectColumns+` WHERE id = $1`, verificationID.String())
	v, err := scanVerification(row)
	if err != nil {
		return nil, postgres.TranslateError(err)
	}
	return v, nil
}

func (s *PostgresStore) ListByCertificate(ctx context.Context, certID id.CertificateID) ([]*models.Verification, error) {
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		selectColumns+` WHERE certificate_id = $1 ORDER BY attempt, created_at`, certID.String())
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, v *models.Verification) error {
	steps, evidence, err := encodeJSON(v)
	if err != nil {
		return err
	}
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE verifications
		SET status = $2, result = $3, confidence_score = $4, steps = $5, evidence = $6,
		    failure_reason = $7, updated_at = $8, completed_at = $9
		WHERE id = $1`,
		v.ID.String(), string(v.Status), string(v.Result), v.ConfidenceScore, steps, evidence,
		v.FailureReason, v.UpdatedAt, v.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update verification: %w", postgres.TranslateError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// UpdateStep replaces one element of the steps array in place.
func (s *PostgresStore) UpdateStep(ctx context.Context, verificationID id.VerificationID, index int, step models.Step, now time.Time) error {
	raw, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("encode step: %w", err)
	}
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE verifications
		SET steps = jsonb_set(steps, ARRAY[$2]::text[], $3::jsonb, false), updated_at = $4
		WHERE id = $1 AND jsonb_array_length(steps) > $5`,
		verificationID.String(), strconv.Itoa(index), string(raw), now, index,
	)
	if err != nil {
		return fmt.Errorf("update verification step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerification(row rowScanner) (*models.Verification, error) {
	var (
		v           models.Verification
		rawID       string
		rawCertID   string
		vtype       string
		status      string
		result      string
		steps       []byte
		evidence    []byte
		prev        sql.NullString
		completedAt sql.NullTime
	)
	if err := row.Scan(&rawID, &rawCertID, &vtype, &status, &result, &v.ConfidenceScore,
		&steps, &evidence, &v.Attempt, &prev, &v.FailureReason,
		&v.CreatedAt, &v.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}

	var err error
	if v.ID, err = id.ParseVerificationID(rawID); err != nil {
		return nil, err
	}
	if v.CertificateID, err = id.ParseCertificateID(rawCertID); err != nil {
		return nil, err
	}
	if prev.Valid {
		prevID, err := id.ParseVerificationID(prev.String)
		if err != nil {
			return nil, err
		}
		v.PreviousAttemptID = &prevID
	}
	if completedAt.Valid {
		t := completedAt.Time
		v.CompletedAt = &t
	}
	v.VerificationType = models.Type(vtype)
	v.Status = models.Status(status)
	v.Result = models.Result(result)
	if err := json.Unmarshal(steps, &v.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	if err := json.Unmarshal(evidence, &v.Evidence); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	return &v, nil
}

func encodeJSON(v *models.Verification) (string, string, error) {
	steps, err := json.Marshal(v.Steps)
	if err != nil {
		return "", "", fmt.Errorf("encode steps: %w", err)
	}
	evidence := v.Evidence
	if evidence == nil {
		evidence = map[string]any{}
	}
	rawEvidence, err := json.Marshal(evidence)
	if err != nil {
		return "", "", fmt.Errorf("encode evidence: %w", err)
	}
	return string(steps), string(rawEvidence), nil
}
