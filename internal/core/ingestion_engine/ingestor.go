package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prismdocs/prism-server/internal/core"
	"github.com/prismdocs/prism-server/internal/metrics"
	"github.com/prismdocs/prism-server/internal/models"
)

const processTimeout = 5 * time.Minute

// IngestJob identifies one uploaded document to process.
type IngestJob struct {
	DocumentID string
	UserID     string
	FilePath   string
}

// ChunkIndexer is the slice of the vector index the ingestor needs.
type ChunkIndexer interface {
	IndexDocument(ctx context.Context, userID, documentID string, chunks []models.TextChunk) error
}

// DocumentIngestor runs the background pipeline: read the stored file,
// extract text and metadata, render page images and chunk the text in
// parallel, persist the results, then index the chunks for search.
//
// The two status axes move independently. Extraction failure fails the
// document; a rendering problem only costs images; an embedding failure
// leaves the document completed but unsearchable until reprocessed.
type DocumentIngestor struct {
	db        core.DbClient
	store     core.FileStore
	extractor core.TextExtractor
	renderer  core.PageRenderer
	chunker   *Chunker
	indexer   ChunkIndexer
	jobs      chan IngestJob
	logger    *zap.Logger
}

func NewDocumentIngestor(
	db core.DbClient,
	store core.FileStore,
	extractor core.TextExtractor,
	renderer core.PageRenderer,
	chunker *Chunker,
	indexer ChunkIndexer,
	queueSize int,
	logger *zap.Logger,
) *DocumentIngestor {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &DocumentIngestor{
		db:        db,
		store:     store,
		extractor: extractor,
		renderer:  renderer,
		chunker:   chunker,
		indexer:   indexer,
		jobs:      make(chan IngestJob, queueSize),
		logger:    logger,
	}
}

// Start launches numWorkers goroutines reading from the job queue.
// Workers exit when ctx is cancelled.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					i.logger.Info("ingest worker shutting down", zap.Int("worker", w))
					return
				case job := <-i.jobs:
					i.logger.Info("processing document",
						zap.String("document_id", job.DocumentID),
						zap.Int("worker", w))
					if err := i.ProcessDocument(ctx, job); err != nil {
						i.logger.Error("document processing failed",
							zap.String("document_id", job.DocumentID),
							zap.Error(err))
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a document for ingestion. Blocks when the queue is
// full.
func (i *DocumentIngestor) Enqueue(job IngestJob) {
	i.jobs <- job
}

// ProcessDocument runs the full pipeline for one job. A fresh timeout
// context detaches processing from the caller's request lifetime.
func (i *DocumentIngestor) ProcessDocument(ctx context.Context, job IngestJob) error {
	proctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	if err := i.db.UpdateDocumentStatus(proctx, job.DocumentID, models.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	data, err := i.store.Read(proctx, job.FilePath)
	if err != nil {
		return i.fail(proctx, job.DocumentID, fmt.Errorf("read stored file: %w", err))
	}

	extractStart := time.Now()
	res, err := i.extractor.Extract(proctx, data)
	metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(extractStart).Seconds())
	if err != nil {
		return i.fail(proctx, job.DocumentID, err)
	}

	// Rendering and chunking are independent of each other; run both
	// off the extracted result. Render failures are isolated: they are
	// logged here and never unwind the document.
	var (
		images []models.PageImage
		chunks []models.TextChunk
	)
	g, gctx := errgroup.WithContext(proctx)
	g.Go(func() error {
		// Clear leftovers from an earlier run; a shrunk document must
		// not keep pages it no longer has.
		if err := i.renderer.DeletePages(gctx, job.DocumentID); err != nil {
			i.logger.Warn("failed to clear old page images",
				zap.String("document_id", job.DocumentID),
				zap.Error(err))
		}

		renderStart := time.Now()
		rendered, renderErr := i.renderer.RenderPages(gctx, data, job.DocumentID)
		metrics.StageDuration.WithLabelValues("render").Observe(time.Since(renderStart).Seconds())
		if renderErr != nil {
			i.logger.Warn("page rendering failed",
				zap.String("document_id", job.DocumentID),
				zap.Error(renderErr))
		}
		images = rendered
		return nil
	})
	g.Go(func() error {
		chunks = i.chunker.Chunk(res.Text, res.PageCount)
		return nil
	})
	_ = g.Wait()

	if err := i.db.ReplacePageImages(proctx, job.DocumentID, images); err != nil {
		i.logger.Warn("failed to persist page images",
			zap.String("document_id", job.DocumentID),
			zap.Error(err))
		images = nil
	}

	err = i.db.UpdateDocumentExtraction(proctx, job.DocumentID,
		res.Text, res.PageCount, len(images), res.Title, res.Author, res.Metadata)
	if err != nil {
		return i.fail(proctx, job.DocumentID, fmt.Errorf("persist extraction: %w", err))
	}

	i.indexChunks(proctx, job, chunks)

	metrics.DocumentsProcessedTotal.WithLabelValues(models.StatusCompleted).Inc()
	i.logger.Info("document processed",
		zap.String("document_id", job.DocumentID),
		zap.Int("pages", res.PageCount),
		zap.Int("images", len(images)),
		zap.Int("chunks", len(chunks)))
	return nil
}

// indexChunks drives the embedding axis. No chunks (or no indexer
// configured) completes it trivially; an indexing error marks the axis
// failed and stops there.
func (i *DocumentIngestor) indexChunks(ctx context.Context, job IngestJob, chunks []models.TextChunk) {
	if len(chunks) == 0 || i.indexer == nil {
		if err := i.db.UpdateDocumentEmbeddingStatus(ctx, job.DocumentID, models.StatusCompleted); err != nil {
			i.logger.Warn("failed to update embedding status", zap.Error(err))
		}
		return
	}

	if err := i.db.UpdateDocumentEmbeddingStatus(ctx, job.DocumentID, models.StatusProcessing); err != nil {
		i.logger.Warn("failed to update embedding status", zap.Error(err))
	}

	embedStart := time.Now()
	err := i.indexer.IndexDocument(ctx, job.UserID, job.DocumentID, chunks)
	metrics.StageDuration.WithLabelValues("embed").Observe(time.Since(embedStart).Seconds())

	status := models.StatusCompleted
	if err != nil {
		status = models.StatusFailed
		i.logger.Error("chunk indexing failed",
			zap.String("document_id", job.DocumentID),
			zap.Error(err))
	}
	if err := i.db.UpdateDocumentEmbeddingStatus(ctx, job.DocumentID, status); err != nil {
		i.logger.Warn("failed to update embedding status", zap.Error(err))
	}
}

func (i *DocumentIngestor) fail(ctx context.Context, docID string, cause error) error {
	metrics.DocumentsProcessedTotal.WithLabelValues(models.StatusFailed).Inc()
	if err := i.db.UpdateDocumentStatus(ctx, docID, models.StatusFailed, cause.Error()); err != nil {
		i.logger.Warn("failed to mark document failed",
			zap.String("document_id", docID),
			zap.Error(err))
	}
	return cause
}
