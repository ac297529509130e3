package applications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// NewPGRepo constructs a PGRepo.
func NewPGRepo(db *sql.DB) *PGRepo {
	return &PGRepo{DB: db}
}

const applicationColumns = `id, session_id, company_name, registration_number, industry, company_size, website, address,
    admin_name, admin_email, admin_phone, job_title, password_hash, status, review_note, created_at, reviewed_at`

// Create inserts an application and its documents in one transaction.
func (r *PGRepo) Create(ctx context.Context, app Application) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	const insertApp = `
INSERT INTO applications (` + applicationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	if _, err = tx.ExecContext(ctx, insertApp,
		app.ID,
		app.SessionID,
		app.CompanyName,
		app.RegistrationNumber,
		app.Industry,
		app.CompanySize,
		app.Website,
		app.Address,
		app.AdminName,
		app.AdminEmail,
		app.AdminPhone,
		app.JobTitle,
		app.PasswordHash,
		string(app.Status),
		nullString(app.ReviewNote),
		app.CreatedAt,
		nullTime(app.ReviewedAt),
	); err != nil {
		return err
	}

	const insertDoc = `
INSERT INTO application_documents (
    id,
    application_id,
    file_name,
    mime_type,
    size_bytes,
    storage_key,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, doc := range app.Documents {
		if _, err = tx.ExecContext(ctx, insertDoc,
			doc.ID,
			app.ID,
			doc.FileName,
			doc.MimeType,
			doc.SizeBytes,
			nullString(doc.StorageKey),
			doc.CreatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Get returns an application with its documents.
func (r *PGRepo) Get(ctx context.Context, id string) (Application, error) {
	app, err := r.getOne(ctx, `WHERE id = $1`, id)
	if err != nil {
		return Application{}, err
	}
	app.Documents, err = r.documents(ctx, app.ID)
	if err != nil {
		return Application{}, err
	}
	return app, nil
}

// GetBySession returns the application created from a signup session.
func (r *PGRepo) GetBySession(ctx context.Context, sessionID string) (Application, error) {
	app, err := r.getOne(ctx, `WHERE session_id = $1`, sessionID)
	if err != nil {
		return Application{}, err
	}
	app.Documents, err = r.documents(ctx, app.ID)
	if err != nil {
		return Application{}, err
	}
	return app, nil
}

func (r *PGRepo) getOne(ctx context.Context, where string, arg string) (Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications ` + where + ` LIMIT 1`
	app, err := scanApplication(r.DB.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, err
	}
	return app, nil
}

// List returns applications newest first without documents.
func (r *PGRepo) List(ctx context.Context, status Status, limit, offset int) ([]Application, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = r.DB.QueryContext(ctx, `SELECT `+applicationColumns+` FROM applications
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		rows, err = r.DB.QueryContext(ctx, `SELECT `+applicationColumns+` FROM applications
WHERE status = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, string(status), limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

// UpdateStatus performs a compare-and-set on the status column.
func (r *PGRepo) UpdateStatus(ctx context.Context, id string, from []Status, to Status, note string, reviewedAt *time.Time) error {
	if len(from) == 0 {
		return ErrInvalidTransition
	}
	args := []any{string(to), nullString(note), nullTime(reviewedAt), id}
	placeholders := make([]string, 0, len(from))
	for _, s := range from {
		args = append(args, string(s))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	query := `
UPDATE applications
SET status = $1,
    review_note = COALESCE($2, review_note),
    reviewed_at = COALESCE($3, reviewed_at)
WHERE id = $4 AND status IN (` + strings.Join(placeholders, ", ") + `)`

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

// UpdateInspection stores page and word counts for a document.
func (r *PGRepo) UpdateInspection(ctx context.Context, documentID string, pages, words int, at time.Time) error {
	const query = `
UPDATE application_documents
SET page_count = $1,
    word_count = $2,
    inspected_at = $3
WHERE id = $4`
	res, err := r.DB.ExecContext(ctx, query, pages, words, at, documentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) documents(ctx context.Context, applicationID string) ([]Document, error) {
	const query = `
SELECT id, application_id, file_name, mime_type, size_bytes, storage_key, page_count, word_count, inspected_at, created_at
FROM application_documents
WHERE application_id = $1
ORDER BY created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		var storageKey sql.NullString
		var pages sql.NullInt64
		var words sql.NullInt64
		var inspectedAt sql.NullTime
		if err := rows.Scan(
			&doc.ID,
			&doc.ApplicationID,
			&doc.FileName,
			&doc.MimeType,
			&doc.SizeBytes,
			&storageKey,
			&pages,
			&words,
			&inspectedAt,
			&doc.CreatedAt,
		); err != nil {
			return nil, err
		}
		if storageKey.Valid {
			doc.StorageKey = storageKey.String
		}
		if pages.Valid {
			doc.PageCount = int(pages.Int64)
		}
		if words.Valid {
			doc.WordCount = int(words.Int64)
		}
		if inspectedAt.Valid {
			doc.InspectedAt = &inspectedAt.Time
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (Application, error) {
	var app Application
	var status string
	var note sql.NullString
	var reviewedAt sql.NullTime
	if err := row.Scan(
		&app.ID,
		&app.SessionID,
		&app.CompanyName,
		&app.RegistrationNumber,
		&app.Industry,
		&app.CompanySize,
		&app.Website,
		&app.Address,
		&app.AdminName,
		&app.AdminEmail,
		&app.AdminPhone,
		&app.JobTitle,
		&app.PasswordHash,
		&status,
		&note,
		&app.CreatedAt,
		&reviewedAt,
	); err != nil {
		return Application{}, err
	}
	app.Status = Status(status)
	if note.Valid {
		app.ReviewNote = note.String
	}
	if reviewedAt.Valid {
		app.ReviewedAt = &reviewedAt.Time
	}
	return app, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
