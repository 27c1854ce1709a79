package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"certverify/internal/platform/postgres"
	"certverify/internal/review/models"
	id "certverify/pkg/domain"
	"certverify/pkg/platform/sentinel"
	"certverify/pkg/platform/tx"
)

// PostgresStore persists manual reviews. manual_reviews_one_open keeps a
// single open review per verification; Assign is one conditional UPDATE.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `
	SELECT id, verification_id, certificate_id, status, priority, reason,
	       assigned_to, assigned_at, decision, comments, confidence_score,
	       previous_review_id, created_at, updated_at, completed_at
	FROM manual_reviews`

func (s *PostgresStore) Create(ctx context.Context, r *models.Review) error {
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO manual_reviews (id, verification_id, certificate_id, status, priority, priority_rank,
		                            reason, assigned_to, assigned_at, decision, comments, confidence_score,
		                            previous_review_id, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.ID.String(), r.VerificationID.String(), r.CertificateID.String(), string(r.Status),
		string(r.Priority), r.Priority.Rank(), r.Reason,
		nullableVerifier(r.AssignedTo), r.AssignedAt, nullableDecision(r.Decision), r.Comments,
		r.ConfidenceScore, nullableReviewID(r.PreviousReviewID),
		r.CreatedAt, r.UpdatedAt, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert review: %w", postgres.TranslateError(err))
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, reviewID id.ReviewID) (*models.Review, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, selectColumns+` WHERE id = $1`, reviewID.String())
	r, err := scanReview(row)
	if err != nil {
		return nil, postgres.TranslateError(err)
	}
	return r, nil
}

func (s *PostgresStore) FindOpenByVerification(ctx context.Context, verificationID id.VerificationID) (*models.Review, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		selectColumns+` WHERE verification_id = $1 AND status <> 'COMPLETED'`, verificationID.String())
	r, err := scanReview(row)
	if err != nil {
		return nil, postgres.TranslateError(err)
	}
	return r, nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.Filter) ([]*models.Review, error) {
	filter = filter.Normalize()
	statuses := make([]string, len(filter.Statuses))
	for i, st := range filter.Statuses {
		statuses[i] = string(st)
	}

	where := []string{"status = ANY($1)"}
	args := []any{pq.Array(statuses)}
	if filter.Priority != nil {
		args = append(args, string(*filter.Priority))
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, filter.AssignedTo.String())
		where = append(where, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	args = append(args, filter.Limit)
	query := selectColumns + " WHERE " + strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY priority_rank, created_at, id LIMIT $%d", len(args))

	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []*models.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Assign claims the review only while it is PENDING and unassigned. Zero
// affected rows means another verifier won or the review does not exist.
func (s *PostgresStore) Assign(ctx context.Context, reviewID id.ReviewID, verifier id.VerifierID, now time.Time) error {
	exec := tx.ExecutorFrom(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE manual_reviews
		SET assigned_to = $2, assigned_at = $3, status = 'ASSIGNED', updated_at = $3
		WHERE id = $1 AND assigned_to IS NULL AND status = 'PENDING'`,
		reviewID.String(), verifier.String(), now,
	)
	if err != nil {
		return fmt.Errorf("assign review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var exists bool
	if err := exec.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM manual_reviews WHERE id = $1)`, reviewID.String()).Scan(&exists); err != nil {
		return fmt.Errorf("check review: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

// Update writes r only if the stored status still equals expected.
func (s *PostgresStore) Update(ctx context.Context, r *models.Review, expected models.Status) error {
	exec := tx.ExecutorFrom(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE manual_reviews
		SET status = $2, assigned_to = $3, assigned_at = $4, decision = $5, comments = $6,
		    confidence_score = $7, updated_at = $8, completed_at = $9
		WHERE id = $1 AND status = $10`,
		r.ID.String(), string(r.Status), nullableVerifier(r.AssignedTo), r.AssignedAt,
		nullableDecision(r.Decision), r.Comments, r.ConfidenceScore, r.UpdatedAt, r.CompletedAt,
		string(expected),
	)
	if err != nil {
		return fmt.Errorf("update review: %w", postgres.TranslateError(err))
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := s.FindByID(ctx, r.ID); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReview(row rowScanner) (*models.Review, error) {
	var (
		r           models.Review
		rawID       string
		rawVerifID  string
		rawCertID   string
		status      string
		priority    string
		assignedTo  sql.NullString
		assignedAt  sql.NullTime
		decision    sql.NullString
		confidence  sql.NullFloat64
		previous    sql.NullString
		completedAt sql.NullTime
	)
	if err := row.Scan(&rawID, &rawVerifID, &rawCertID, &status, &priority, &r.Reason,
		&assignedTo, &assignedAt, &decision, &r.Comments, &confidence,
		&previous, &r.CreatedAt, &r.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}

	var err error
	if r.ID, err = id.ParseReviewID(rawID); err != nil {
		return nil, err
	}
	if r.VerificationID, err = id.ParseVerificationID(rawVerifID); err != nil {
		return nil, err
	}
	if r.CertificateID, err = id.ParseCertificateID(rawCertID); err != nil {
		return nil, err
	}
	r.Status = models.Status(status)
	r.Priority = models.Priority(priority)
	if assignedTo.Valid {
		v := id.VerifierID(assignedTo.String)
		r.AssignedTo = &v
	}
	if assignedAt.Valid {
		t := assignedAt.Time
		r.AssignedAt = &t
	}
	if decision.Valid {
		d := models.Decision(decision.String)
		r.Decision = &d
	}
	if confidence.Valid {
		c := confidence.Float64
		r.ConfidenceScore = &c
	}
	if previous.Valid {
		p, err := id.ParseReviewID(previous.String)
		if err != nil {
			return nil, err
		}
		r.PreviousReviewID = &p
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func nullableVerifier(v *id.VerifierID) any {
	if v == nil {
		return nil
	}
	return v.String()
}

func nullableDecision(d *models.Decision) any {
	if d == nil {
		return nil
	}
	return string(*d)
}

func nullableReviewID(r *id.ReviewID) any {
	if r == nil {
		return nil
	}
	return r.String()
}
