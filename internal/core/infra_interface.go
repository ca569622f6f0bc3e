package core

import (
	"context"

	"github.com/prismdocs/prism-server/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a
// specific DB. The relational store is the single synchronization point
// for pipeline state; updates against a deleted document affect zero
// rows and succeed silently.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id, status, processingError string) error
	UpdateDocumentEmbeddingStatus(ctx context.Context, id, status string) error
	// UpdateDocumentExtraction persists the extraction outcome and moves
	// the document to completed in one statement.
	UpdateDocumentExtraction(ctx context.Context, id, text string, pageCount, imageCount int, title, author string, meta models.DocumentMetadata) error
	DeleteDocument(ctx context.Context, id string) error

	// ReplacePageImages swaps the document's image rows for the given set
	// in one transaction, so a reprocess never accumulates duplicates.
	ReplacePageImages(ctx context.Context, documentID string, images []models.PageImage) error
	GetImagesByDocument(ctx context.Context, documentID string) ([]models.PageImage, error)

	// ReplaceDocumentChunks deletes all existing chunk rows for the
	// document and inserts the given set in one transaction.
	ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error
	DeleteDocumentChunks(ctx context.Context, documentID string) error
	// GetChunkCandidates loads every chunk scoped to the user, optionally
	// narrowed to one document, joined with document names.
	GetChunkCandidates(ctx context.Context, userID, documentID string) ([]models.ChunkCandidate, error)

	Close() error
}

// FileStore abstracts file storage (local disk, S3) behind byte-level
// primitives. Paths are forward-slash keys relative to the store root.
type FileStore interface {
	Write(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	// DeleteTree removes everything under the prefix; a missing prefix
	// is not an error.
	DeleteTree(ctx context.Context, prefix string) error
}

// EmbeddingProvider converts text into fixed-length vectors.
// EmbedTexts is order-preserving: one vector per input.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// TextExtractor produces the full text, page count and derived metadata
// for a PDF byte stream.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (*models.ExtractResult, error)
}

// PageRenderer rasterizes document pages to image files. A render run
// only errors when the document cannot be opened at all; per-page
// failures are absorbed.
type PageRenderer interface {
	RenderPages(ctx context.Context, data []byte, documentID string) ([]models.PageImage, error)
	DeletePages(ctx context.Context, documentID string) error
}
