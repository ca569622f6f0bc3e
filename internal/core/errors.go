package core

import "errors"

// Error taxonomy for the ingestion and retrieval pipeline. Callers match
// with errors.Is; stage code wraps these with context via fmt.Errorf %w.
var (
	// ErrExtractionFailed means the PDF byte stream was empty or unparsable.
	// Fatal for the whole document: nothing downstream can run without text.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrRenderFailed means the document could not be opened for rendering.
	// Individual page failures are not errors, they are logged and skipped.
	ErrRenderFailed = errors.New("page render failed")

	// ErrEmbeddingProvider covers provider failures after retries are
	// exhausted. Terminal outcome degrades search only.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrDimensionMismatch means a vector's length differs from the
	// configured embedding dimension. Never coerced silently.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNotFound is a document/user scope mismatch at the boundary.
	ErrNotFound = errors.New("not found")
)
