package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Document is a registered case document. ObjectPath points at the blob in
// the configured FileStore.
type Document struct {
	ID          string    `db:"id" json:"id"`
	CaseID      *string   `db:"case_id" json:"caseId,omitempty"`
	Name        string    `db:"name" json:"name"`
	ObjectPath  string    `db:"object_path" json:"objectPath"`
	ContentType string    `db:"content_type" json:"contentType"`
	Size        int64     `db:"size" json:"size"`
	UploadedBy  string    `db:"uploaded_by" json:"uploadedBy"`
	UploadedAt  time.Time `db:"uploaded_at" json:"uploadedAt"`
}

const documentColumns = `id::text AS id, case_id, name, object_path, content_type, size,
	COALESCE(uploaded_by::text, '') AS uploaded_by, uploaded_at`

type Documents struct {
	q Querier
}

// NewDocuments returns a repository over q.
func NewDocuments(q Querier) *Documents {
	return &Documents{q: q}
}

// Insert stores d. ID must already be set; UploadedAt is filled from the
// database clock.
func (r *Documents) Insert(ctx context.Context, d *Document) error {
	err := r.q.QueryRow(ctx,
		`INSERT INTO documents (id, case_id, name, object_path, content_type, size, uploaded_by)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::uuid)
		 RETURNING uploaded_at`,
		d.ID, d.CaseID, d.Name, d.ObjectPath, d.ContentType, d.Size, d.UploadedBy,
	).Scan(&d.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", mapError(err))
	}
	return nil
}

func (r *Documents) Get(ctx context.Context, id string) (*Document, error) {
	rows, err := r.q.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	doc, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[Document])
	if err != nil {
		return nil, mapError(err)
	}
	return doc, nil
}

// ListByUploader returns the uploader's documents, newest first. A non-empty
// caseID narrows the result to that case.
func (r *Documents) ListByUploader(ctx context.Context, uploaderID, caseID string) ([]Document, error) {
	sql := `SELECT ` + documentColumns + ` FROM documents WHERE uploaded_by = $1`
	args := []any{uploaderID}
	if caseID != "" {
		sql += ` AND case_id = $2`
		args = append(args, caseID)
	}
	sql += ` ORDER BY uploaded_at DESC`

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowToStructByName[Document])
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	return docs, nil
}

func (r *Documents) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
