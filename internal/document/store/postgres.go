package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"certverify/internal/document/models"
	"certverify/internal/normalize"
	"certverify/internal/platform/postgres"
	id "certverify/pkg/domain"
	"certverify/pkg/platform/sentinel"
	"certverify/pkg/platform/tx"
)

// PostgresStore persists documents. Field variants are stored in their
// flattened form and rebuilt with normalize.FromMap on read.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const documentColumns = `id, document_type, status, file_name, content_type, size_bytes, blob_key,
	extracted_fields, corrected_fields, confidence, error_message, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, doc *models.Document) error {
	extracted, corrected, err := encodeFields(doc)
	if err != nil {
		return err
	}
	_, err = tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		doc.ID.String(), string(doc.DocumentType), string(doc.Status), doc.FileName, doc.ContentType,
		doc.SizeBytes, doc.BlobKey, extracted, corrected, doc.Confidence, doc.ErrorMessage,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", postgres.TranslateError(err))
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, docID.String())
	doc, err := scanDocument(row)
	if err != nil {
		return nil, postgres.TranslateError(err)
	}
	return doc, nil
}

func (s *PostgresStore) Update(ctx context.Context, doc *models.Document) error {
	extracted, corrected, err := encodeFields(doc)
	if err != nil {
		return err
	}
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE documents
		SET status = $2, extracted_fields = $3, corrected_fields = $4, confidence = $5,
			error_message = $6, updated_at = $7
		WHERE id = $1`,
		doc.ID.String(), string(doc.Status), extracted, corrected, doc.Confidence,
		doc.ErrorMessage, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// encodeFields returns nil for absent variants so the columns stay NULL.
func encodeFields(doc *models.Document) (extracted, corrected any, err error) {
	if extracted, err = fieldsJSON(doc.ExtractedFields); err != nil {
		return nil, nil, fmt.Errorf("encode extracted fields: %w", err)
	}
	if corrected, err = fieldsJSON(doc.CorrectedFields); err != nil {
		return nil, nil, fmt.Errorf("encode corrected fields: %w", err)
	}
	return extracted, corrected, nil
}

func fieldsJSON(f normalize.Fields) (any, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal(f.Flatten())
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var (
		doc                  models.Document
		rawID                string
		docType, status      string
		extracted, corrected []byte
	)
	if err := row.Scan(&rawID, &docType, &status, &doc.FileName, &doc.ContentType, &doc.SizeBytes,
		&doc.BlobKey, &extracted, &corrected, &doc.Confidence, &doc.ErrorMessage,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	docID, err := id.ParseDocumentID(rawID)
	if err != nil {
		return nil, err
	}
	doc.ID = docID
	doc.DocumentType = normalize.DocumentType(docType)
	doc.Status = models.Status(status)
	if doc.ExtractedFields, err = decodeFields(doc.DocumentType, extracted); err != nil {
		return nil, err
	}
	if doc.CorrectedFields, err = decodeFields(doc.DocumentType, corrected); err != nil {
		return nil, err
	}
	return &doc, nil
}

func decodeFields(docType normalize.DocumentType, raw []byte) (normalize.Fields, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return normalize.FromMap(docType, flat)
}
