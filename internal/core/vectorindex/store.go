package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prismdocs/prism-server/internal/core"
	"github.com/prismdocs/prism-server/internal/metrics"
	"github.com/prismdocs/prism-server/internal/models"
)

const defaultTopK = 5

// SearchOptions narrows and sizes a similarity search.
type SearchOptions struct {
	TopK       int
	DocumentID string
	MinScore   float64
}

// Store embeds chunks and ranks them by exact cosine similarity. The
// candidate set is a per-user (optionally per-document) slice of
// chunks, small enough that a full scan in process is both exact and
// fast; no approximate index is involved.
type Store struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
	logger   *zap.Logger
}

func NewStore(db core.DbClient, embedder core.EmbeddingProvider, logger *zap.Logger) *Store {
	return &Store{db: db, embedder: embedder, logger: logger}
}

// IndexDocument embeds the chunks and replaces the document's stored
// set atomically, so a reprocess never leaves stale chunks behind.
func (s *Store) IndexDocument(ctx context.Context, userID, documentID string, chunks []models.TextChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("got %d vectors for %d chunks: %w",
			len(vecs), len(chunks), core.ErrEmbeddingProvider)
	}

	dim := s.embedder.Dimension()
	rows := make([]models.DocumentChunk, len(chunks))
	for i, c := range chunks {
		if len(vecs[i]) != dim {
			return fmt.Errorf("chunk %d vector has %d dims, expected %d: %w",
				i, len(vecs[i]), dim, core.ErrDimensionMismatch)
		}
		rows[i] = models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			UserID:     userID,
			ChunkIndex: c.ChunkIndex,
			PageNumber: c.PageNumber,
			Text:       c.Text,
			Embedding:  vecs[i],
		}
	}

	if err := s.db.ReplaceDocumentChunks(ctx, documentID, rows); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}

	metrics.ChunksIndexedTotal.Add(float64(len(rows)))
	return nil
}

// Search embeds the query and scans the user's candidate chunks.
// Results come back best-first, filtered by MinScore and capped at
// TopK. A failing embedding provider degrades search to an empty
// result rather than an error; documents remain intact either way.
func (s *Store) Search(ctx context.Context, userID, query string, opts SearchOptions) ([]models.RankedChunk, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	queryVec, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Warn("query embedding failed, returning empty results", zap.Error(err))
		return []models.RankedChunk{}, nil
	}

	candidates, err := s.db.GetChunkCandidates(ctx, userID, opts.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load chunk candidates: %w", err)
	}

	ranked := make([]models.RankedChunk, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) != len(queryVec) {
			// Stale rows from an earlier model dimension; never compared.
			continue
		}
		score := cosineSimilarity(queryVec, c.Embedding)
		if score < opts.MinScore {
			continue
		}
		ranked = append(ranked, models.RankedChunk{
			Text:         c.Text,
			DocumentID:   c.DocumentID,
			DocumentName: c.DocumentName,
			PageNumber:   c.PageNumber,
			Score:        score,
		})
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

// DeleteDocumentEmbeddings drops all chunks for a document. Deleting a
// document that has none is a no-op.
func (s *Store) DeleteDocumentEmbeddings(ctx context.Context, documentID string) error {
	return s.db.DeleteDocumentChunks(ctx, documentID)
}

// cosineSimilarity computes the exact cosine of two equal-length
// vectors in float64. Either vector having zero norm yields 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
