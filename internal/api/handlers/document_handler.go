package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"

	"github.com/prismdocs/prism-server/internal/api/middlewares"
	"github.com/prismdocs/prism-server/internal/config"
	"github.com/prismdocs/prism-server/internal/core"
	"github.com/prismdocs/prism-server/internal/core/ingestion_engine"
	"github.com/prismdocs/prism-server/internal/models"
)

const maxUploadBytes = 64 << 20

// staleProcessingAfter is double the pipeline timeout. A document whose
// processing state has not moved for this long was orphaned (worker
// crash, failed status write) and may be re-queued.
const staleProcessingAfter = 10 * time.Minute

// IngestQueue is the slice of the ingestor the handler needs.
type IngestQueue interface {
	Enqueue(job ingestion_engine.IngestJob)
}

type DocumentHandler struct {
	db     core.DbClient
	store  core.FileStore
	queue  IngestQueue
	cfg    *config.Config
	logger *zap.Logger
}

func NewDocumentHandler(db core.DbClient, store core.FileStore, queue IngestQueue, cfg *config.Config, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{db: db, store: store, queue: queue, cfg: cfg, logger: logger}
}

// Upload accepts a multipart PDF, validates it, stores the original
// bytes, creates the pending document row and queues processing. The
// response is 202: extraction happens in the background.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}

	if err := api.Validate(bytes.NewReader(data), nil); err != nil {
		http.Error(w, "not a valid PDF", http.StatusBadRequest)
		return
	}
	pageCount, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		http.Error(w, "not a valid PDF", http.StatusBadRequest)
		return
	}
	if h.cfg.PDFMaxPages > 0 && pageCount > h.cfg.PDFMaxPages {
		http.Error(w, fmt.Sprintf("PDF exceeds %d page limit", h.cfg.PDFMaxPages), http.StatusBadRequest)
		return
	}

	docID := uuid.NewString()
	cleanName := filepath.Base(header.Filename)
	storagePath := path.Join(h.cfg.UploadDir, docID, cleanName)

	if err := h.store.Write(r.Context(), storagePath, data); err != nil {
		h.logger.Error("failed to store upload", zap.Error(err))
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	doc := &models.Document{
		ID:              docID,
		UserID:          userID,
		FileName:        cleanName,
		StoragePath:     storagePath,
		Status:          models.StatusPending,
		EmbeddingStatus: models.StatusPending,
		PageCount:       pageCount,
		CreatedAt:       time.Now(),
	}
	if err := h.db.CreateDocument(r.Context(), doc); err != nil {
		h.logger.Error("failed to create document row", zap.Error(err))
		http.Error(w, "database failure", http.StatusInternalServerError)
		return
	}

	h.queue.Enqueue(ingestion_engine.IngestJob{
		DocumentID: docID,
		UserID:     userID,
		FilePath:   storagePath,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	docs, err := h.db.ListDocumentsByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list documents", zap.Error(err))
		http.Error(w, "database failure", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"documents": docs})
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) GetDocumentImages(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	images, err := h.db.GetImagesByDocument(r.Context(), doc.ID)
	if err != nil {
		h.logger.Error("failed to list images", zap.Error(err))
		http.Error(w, "database failure", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"images": images})
}

// Reprocess re-queues a document through the full pipeline. Refused
// with 409 while either axis is still in flight, unless the processing
// state went stale, which means no worker holds the document anymore.
func (h *DocumentHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	inFlight := doc.Status == models.StatusProcessing || doc.EmbeddingStatus == models.StatusProcessing
	if inFlight && time.Since(doc.UpdatedAt) < staleProcessingAfter {
		http.Error(w, "document is currently processing", http.StatusConflict)
		return
	}

	if err := h.db.UpdateDocumentStatus(r.Context(), doc.ID, models.StatusPending, ""); err != nil {
		http.Error(w, "database failure", http.StatusInternalServerError)
		return
	}
	if err := h.db.UpdateDocumentEmbeddingStatus(r.Context(), doc.ID, models.StatusPending); err != nil {
		http.Error(w, "database failure", http.StatusInternalServerError)
		return
	}

	h.queue.Enqueue(ingestion_engine.IngestJob{
		DocumentID: doc.ID,
		UserID:     doc.UserID,
		FilePath:   doc.StoragePath,
	})

	w.WriteHeader(http.StatusAccepted)
}

// Delete removes the document row (chunks and image rows cascade) and
// then the stored files. File cleanup failures are logged, not
// surfaced: the row is gone and orphaned files are harmless.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	if err := h.db.DeleteDocument(r.Context(), doc.ID); err != nil {
		h.logger.Error("failed to delete document", zap.Error(err))
		http.Error(w, "database failure", http.StatusInternalServerError)
		return
	}

	for _, prefix := range []string{
		path.Join(h.cfg.UploadDir, doc.ID),
		path.Join(h.cfg.OutputDir, doc.ID),
	} {
		if err := h.store.DeleteTree(r.Context(), prefix); err != nil {
			h.logger.Warn("failed to delete stored files",
				zap.String("prefix", prefix), zap.Error(err))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownedDocument loads the {id} document and enforces ownership. A
// document belonging to someone else is reported as 404, not 403, so
// IDs don't leak.
func (h *DocumentHandler) ownedDocument(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	userID := middleware.UserID(r.Context())
	docID := chi.URLParam(r, "id")

	doc, err := h.db.GetDocumentByID(r.Context(), docID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "document not found", http.StatusNotFound)
		} else {
			h.logger.Error("failed to load document", zap.Error(err))
			http.Error(w, "database failure", http.StatusInternalServerError)
		}
		return nil, false
	}
	if doc.UserID != userID {
		http.Error(w, "document not found", http.StatusNotFound)
		return nil, false
	}
	return doc, true
}
