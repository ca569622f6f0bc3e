package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/prismdocs/prism-server/internal/api/middlewares"
	"github.com/prismdocs/prism-server/internal/core/vectorindex"
	"github.com/prismdocs/prism-server/internal/metrics"
	"github.com/prismdocs/prism-server/internal/models"
)

// Searcher is the slice of the vector index the handler needs.
type Searcher interface {
	Search(ctx context.Context, userID, query string, opts vectorindex.SearchOptions) ([]models.RankedChunk, error)
}

type SearchHandler struct {
	index  Searcher
	logger *zap.Logger
}

func NewSearchHandler(index Searcher, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{index: index, logger: logger}
}

type searchRequest struct {
	Query      string  `json:"query"`
	TopK       int     `json:"top_k"`
	DocumentID string  `json:"document_id"`
	MinScore   float64 `json:"min_score"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query required", http.StatusBadRequest)
		return
	}

	results, err := h.index.Search(r.Context(), userID, req.Query, vectorindex.SearchOptions{
		TopK:       req.TopK,
		DocumentID: req.DocumentID,
		MinScore:   req.MinScore,
	})
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		h.logger.Error("search failed", zap.Error(err))
		http.Error(w, "search failure", http.StatusInternalServerError)
		return
	}

	metrics.SearchRequestsTotal.WithLabelValues("success").Inc()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"results": results})
}
