package models

import (
	"time"
)

// Document lifecycle states. Status tracks text/image processing;
// EmbeddingStatus tracks the search-indexing axis independently.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents one uploaded SAP documentation PDF and its
// processing state. Mutated exclusively by the ingestion pipeline.
type Document struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"user_id"`
	FileName        string    `db:"file_name" json:"file_name"`
	StoragePath     string    `db:"storage_path" json:"storage_path"`
	Status          string    `db:"status" json:"status"`
	EmbeddingStatus string    `db:"embedding_status" json:"embedding_status"`
	ExtractedText   *string   `db:"extracted_text" json:"extracted_text,omitempty"`
	PageCount       int       `db:"page_count" json:"page_count"`
	ImageCount      int       `db:"image_count" json:"image_count"`
	Title           string    `db:"title" json:"title"`
	Author          string    `db:"author" json:"author"`
	SAPModule       string    `db:"sap_module" json:"sap_module"`
	TCodes          []string  `db:"tcodes" json:"tcodes"`
	ErrorCodes      []string  `db:"error_codes" json:"error_codes"`
	ReferenceNumber *string   `db:"reference_number" json:"reference_number,omitempty"`
	ProcessingError *string   `db:"processing_error" json:"processing_error,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// PageImage is one rendered page of a document. Rows exist independently
// of chunk/embedding success.
type PageImage struct {
	ID          string    `db:"id" json:"id"`
	DocumentID  string    `db:"document_id" json:"document_id"`
	PageNumber  int       `db:"page_number" json:"page_number"`
	ImageIndex  int       `db:"image_index" json:"image_index"`
	StoragePath string    `db:"storage_path" json:"storage_path"`
	Width       int       `db:"width" json:"width"`
	Height      int       `db:"height" json:"height"`
	Format      string    `db:"format" json:"format"`
	FileSize    int64     `db:"file_size" json:"file_size"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// DocumentChunk is one embedded text chunk. UserID is denormalized so
// search can scope candidates without a join on documents.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	PageNumber int       `db:"page_number" json:"page_number"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// TextChunk is the chunker's output, the unit handed to the vector index.
type TextChunk struct {
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
	PageNumber int    `json:"page_number"`
}

// DocumentMetadata holds the SAP-specific fields derived from extracted text.
type DocumentMetadata struct {
	SAPModule       string   `json:"sap_module"`
	TCodes          []string `json:"tcodes"`
	ErrorCodes      []string `json:"error_codes"`
	ReferenceNumber string   `json:"reference_number"`
}

// ExtractResult is what the text extractor returns for one document.
type ExtractResult struct {
	Text      string
	PageCount int
	Title     string
	Author    string
	Metadata  DocumentMetadata
}

// ChunkCandidate is a chunk loaded for similarity scoring, joined with
// the owning document's name for citation.
type ChunkCandidate struct {
	ID           string
	DocumentID   string
	DocumentName string
	PageNumber   int
	Text         string
	Embedding    []float32
}

// RankedChunk is one similarity-search result returned to callers.
type RankedChunk struct {
	Text         string  `json:"text"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	PageNumber   int     `json:"page_number"`
	Score        float64 `json:"score"`
}
