package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/prismdocs/prism-server/internal/config"
	"github.com/prismdocs/prism-server/internal/core"
	"github.com/prismdocs/prism-server/internal/models"
)

type DatabaseClient struct {
	db       *sql.DB
	embedDim int
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db, embedDim: cfg.EmbedDim}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Implementing the db interface for users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, user.ID, user.FirstName, user.Email, user.PasswordHash)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Implementing the db interface for documents

const documentColumns = `
	id, user_id, file_name, storage_path, status, embedding_status,
	extracted_text, page_count, image_count, title, author,
	sap_module, tcodes, error_codes, reference_number, processing_error,
	created_at, updated_at
`

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	tcodes, errCodes, err := marshalCodes(doc.TCodes, doc.ErrorCodes)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO documents
			(id, user_id, file_name, storage_path, status, embedding_status,
			 page_count, title, author, tcodes, error_codes, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
	`
	_, err = c.db.ExecContext(ctx, q,
		doc.ID, doc.UserID, doc.FileName, doc.StoragePath, doc.Status, doc.EmbeddingStatus,
		doc.PageCount, doc.Title, doc.Author, tcodes, errCodes)
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	row := c.db.QueryRowContext(ctx, q, id)
	doc, err := scanDocument(row.Scan)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *DatabaseClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// UpdateDocumentStatus moves the lifecycle status and records the
// processing error ("" clears it). Zero rows affected is not an error:
// the document may have been deleted while its pipeline was running.
func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id, status, processingError string) error {
	const q = `
		UPDATE documents
		SET status = $2, processing_error = NULLIF($3, ''), updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, status, processingError)
	return err
}

func (c *DatabaseClient) UpdateDocumentEmbeddingStatus(ctx context.Context, id, status string) error {
	const q = `
		UPDATE documents
		SET embedding_status = $2, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, status)
	return err
}

func (c *DatabaseClient) UpdateDocumentExtraction(ctx context.Context, id, text string, pageCount, imageCount int, title, author string, meta models.DocumentMetadata) error {
	tcodes, errCodes, err := marshalCodes(meta.TCodes, meta.ErrorCodes)
	if err != nil {
		return err
	}
	const q = `
		UPDATE documents
		SET status = $2, extracted_text = $3, page_count = $4, image_count = $5,
		    title = $6, author = $7, sap_module = $8, tcodes = $9, error_codes = $10,
		    reference_number = NULLIF($11, ''), updated_at = now()
		WHERE id = $1
	`
	_, err = c.db.ExecContext(ctx, q,
		id, models.StatusCompleted, text, pageCount, imageCount,
		title, author, meta.SAPModule, tcodes, errCodes, meta.ReferenceNumber)
	return err
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	// Children cascade via FK constraints.
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

// Implementing the db interface for page images

func (c *DatabaseClient) ReplacePageImages(ctx context.Context, documentID string, images []models.PageImage) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_images WHERE document_id = $1`, documentID); err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO document_images
			(id, document_id, page_number, image_index, storage_path, width, height, format, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range images {
		img := &images[i]
		if _, err := stmt.ExecContext(ctx,
			img.ID, img.DocumentID, img.PageNumber, img.ImageIndex, img.StoragePath,
			img.Width, img.Height, img.Format, img.FileSize,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetImagesByDocument(ctx context.Context, documentID string) ([]models.PageImage, error) {
	const q = `
		SELECT id, document_id, page_number, image_index, storage_path, width, height, format, file_size, created_at
		FROM document_images
		WHERE document_id = $1
		ORDER BY page_number ASC, image_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PageImage
	for rows.Next() {
		var img models.PageImage
		if err := rows.Scan(
			&img.ID, &img.DocumentID, &img.PageNumber, &img.ImageIndex, &img.StoragePath,
			&img.Width, &img.Height, &img.Format, &img.FileSize, &img.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// Implementing the db interface for chunks

// ReplaceDocumentChunks deletes all chunk rows for the document and
// inserts the new set in a single transaction, so reprocessing never
// leaves a mix of old and new records.
func (c *DatabaseClient) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error {
	for i := range chunks {
		if len(chunks[i].Embedding) != c.embedDim {
			return fmt.Errorf("chunk %d has %d dims, store expects %d: %w",
				chunks[i].ChunkIndex, len(chunks[i].Embedding), c.embedDim, core.ErrDimensionMismatch)
		}
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, user_id, chunk_index, page_number, text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.UserID, ch.ChunkIndex, ch.PageNumber, ch.Text, vec,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) DeleteDocumentChunks(ctx context.Context, documentID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

// GetChunkCandidates loads every chunk for the user (optionally one
// document), joined with the document name for citation. The whole
// per-user corpus is scanned at query time; this is the exact-search
// tradeoff and stays cheap for corpora of a few thousand chunks.
func (c *DatabaseClient) GetChunkCandidates(ctx context.Context, userID, documentID string) ([]models.ChunkCandidate, error) {
	q := `
		SELECT ch.id, ch.document_id, d.file_name, ch.page_number, ch.text, ch.embedding
		FROM document_chunks ch
		JOIN documents d ON d.id = ch.document_id
		WHERE ch.user_id = $1
	`
	args := []any{userID}
	if documentID != "" {
		q += ` AND ch.document_id = $2`
		args = append(args, documentID)
	}
	q += ` ORDER BY ch.document_id, ch.chunk_index`

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChunkCandidate
	for rows.Next() {
		var (
			cand models.ChunkCandidate
			emb  pgvector.Vector
		)
		if err := rows.Scan(&cand.ID, &cand.DocumentID, &cand.DocumentName, &cand.PageNumber, &cand.Text, &emb); err != nil {
			return nil, err
		}
		cand.Embedding = emb.Slice()
		out = append(out, cand)
	}
	return out, rows.Err()
}

// helpers

func marshalCodes(tcodes, errorCodes []string) ([]byte, []byte, error) {
	if tcodes == nil {
		tcodes = []string{}
	}
	if errorCodes == nil {
		errorCodes = []string{}
	}
	t, err := json.Marshal(tcodes)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal tcodes: %w", err)
	}
	e, err := json.Marshal(errorCodes)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal error codes: %w", err)
	}
	return t, e, nil
}

func scanDocument(scan func(dest ...any) error) (*models.Document, error) {
	var (
		d        models.Document
		text     sql.NullString
		refNum   sql.NullString
		procErr  sql.NullString
		tcodes   []byte
		errCodes []byte
	)
	err := scan(
		&d.ID, &d.UserID, &d.FileName, &d.StoragePath, &d.Status, &d.EmbeddingStatus,
		&text, &d.PageCount, &d.ImageCount, &d.Title, &d.Author,
		&d.SAPModule, &tcodes, &errCodes, &refNum, &procErr,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if text.Valid {
		d.ExtractedText = &text.String
	}
	if refNum.Valid {
		d.ReferenceNumber = &refNum.String
	}
	if procErr.Valid {
		d.ProcessingError = &procErr.String
	}
	if err := json.Unmarshal(tcodes, &d.TCodes); err != nil {
		return nil, fmt.Errorf("unmarshal tcodes: %w", err)
	}
	if err := json.Unmarshal(errCodes, &d.ErrorCodes); err != nil {
		return nil, fmt.Errorf("unmarshal error codes: %w", err)
	}
	return &d, nil
}
