package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"certverify/internal/certificate/models"
	"certverify/internal/platform/postgres"
	id "certverify/pkg/domain"
	"certverify/pkg/platform/sentinel"
	"certverify/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, cert *models.Certificate) error {
	data, err := json.Marshal(cert.CertificateData)
	if err != nil {
		return fmt.Errorf("encode certificate data: %w", err)
	}
	var docID any
	if cert.DocumentID != nil {
		docID = cert.DocumentID.String()
	}
	_, err = tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO certificates (id, certificate_type, issuer_type, certificate_data, document_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cert.ID.String(), cert.CertificateType, cert.IssuerType, string(data), docID,
		string(cert.Status), cert.CreatedAt, cert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert certificate: %w", postgres.TranslateError(err))
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	var (
		cert   models.Certificate
		rawID  string
		data   []byte
		docID  sql.NullString
		status string
	)
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, certificate_type, issuer_type, certificate_data, document_id, status, created_at, updated_at
		FROM certificates WHERE id = $1`, certID.String(),
	).Scan(&rawID, &cert.CertificateType, &cert.IssuerType, &data, &docID, &status, &cert.CreatedAt, &cert.UpdatedAt)
	if err != nil {
		return nil, postgres.TranslateError(err)
	}
	if cert.ID, err = id.ParseCertificateID(rawID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &cert.CertificateData); err != nil {
		return nil, fmt.Errorf("decode certificate data: %w", err)
	}
	if docID.Valid {
		parsed, err := id.ParseDocumentID(docID.String)
		if err != nil {
			return nil, err
		}
		cert.DocumentID = &parsed
	}
	cert.Status = models.Status(status)
	return &cert, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, certID id.CertificateID, status models.Status, now time.Time) error {
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx,
		`UPDATE certificates SET status = $2, updated_at = $3 WHERE id = $1`,
		certID.String(), string(status), now)
	if err != nil {
		return fmt.Errorf("update certificate status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
