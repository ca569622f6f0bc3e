package ingestion_engine

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/prismdocs/prism-server/internal/core"
	"github.com/prismdocs/prism-server/internal/models"
)

type fakeDB struct {
	core.DbClient

	statuses          []string
	embeddingStatuses []string
	processingError   string
	extractionSaved   bool
	imagesSaved       int
}

func (f *fakeDB) UpdateDocumentStatus(_ context.Context, _ string, status, processingError string) error {
	f.statuses = append(f.statuses, status)
	f.processingError = processingError
	return nil
}

func (f *fakeDB) UpdateDocumentEmbeddingStatus(_ context.Context, _ string, status string) error {
	f.embeddingStatuses = append(f.embeddingStatuses, status)
	return nil
}

func (f *fakeDB) UpdateDocumentExtraction(_ context.Context, _ string, _ string, _ int, _ int, _ string, _ string, _ models.DocumentMetadata) error {
	f.extractionSaved = true
	return nil
}

func (f *fakeDB) ReplacePageImages(_ context.Context, _ string, images []models.PageImage) error {
	f.imagesSaved = len(images)
	return nil
}

type fakeStore struct {
	data    []byte
	readErr error
}

func (f *fakeStore) Write(context.Context, string, []byte) error { return nil }
func (f *fakeStore) Read(context.Context, string) ([]byte, error) {
	return f.data, f.readErr
}
func (f *fakeStore) DeleteTree(context.Context, string) error { return nil }

type fakeExtractor struct {
	result *models.ExtractResult
	err    error
}

func (f *fakeExtractor) Extract(context.Context, []byte) (*models.ExtractResult, error) {
	return f.result, f.err
}

type fakeRenderer struct {
	images []models.PageImage
	err    error
}

func (f *fakeRenderer) RenderPages(context.Context, []byte, string) ([]models.PageImage, error) {
	return f.images, f.err
}
func (f *fakeRenderer) DeletePages(context.Context, string) error { return nil }

type fakeIndexer struct {
	chunks []models.TextChunk
	err    error
	calls  int
}

func (f *fakeIndexer) IndexDocument(_ context.Context, _, _ string, chunks []models.TextChunk) error {
	f.calls++
	f.chunks = chunks
	return f.err
}

func newTestIngestor(db *fakeDB, store *fakeStore, ex *fakeExtractor, ren *fakeRenderer, idx ChunkIndexer) *DocumentIngestor {
	return NewDocumentIngestor(db, store, ex, ren, NewChunker(500, 50, 5), idx, 4, zap.NewNop())
}

var testJob = IngestJob{DocumentID: "doc-1", UserID: "user-1", FilePath: "uploads/doc-1/x.pdf"}

func TestProcessDocumentHappyPath(t *testing.T) {
	db := &fakeDB{}
	idx := &fakeIndexer{}
	ing := newTestIngestor(db,
		&fakeStore{data: []byte("pdf")},
		&fakeExtractor{result: &models.ExtractResult{Text: "extracted body of the document", PageCount: 2}},
		&fakeRenderer{images: []models.PageImage{{PageNumber: 1}, {PageNumber: 2}}},
		idx)

	if err := ing.ProcessDocument(context.Background(), testJob); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	wantStatuses := []string{models.StatusProcessing}
	if len(db.statuses) != 1 || db.statuses[0] != wantStatuses[0] {
		t.Errorf("statuses = %v, want %v (completion comes via extraction update)", db.statuses, wantStatuses)
	}
	if !db.extractionSaved {
		t.Error("extraction was not persisted")
	}
	if db.imagesSaved != 2 {
		t.Errorf("imagesSaved = %d, want 2", db.imagesSaved)
	}
	if idx.calls != 1 {
		t.Errorf("indexer calls = %d, want 1", idx.calls)
	}
	want := []string{models.StatusProcessing, models.StatusCompleted}
	if len(db.embeddingStatuses) != 2 || db.embeddingStatuses[0] != want[0] || db.embeddingStatuses[1] != want[1] {
		t.Errorf("embeddingStatuses = %v, want %v", db.embeddingStatuses, want)
	}
}

func TestProcessDocumentExtractionFailure(t *testing.T) {
	db := &fakeDB{}
	idx := &fakeIndexer{}
	ing := newTestIngestor(db,
		&fakeStore{data: []byte("pdf")},
		&fakeExtractor{err: core.ErrExtractionFailed},
		&fakeRenderer{},
		idx)

	err := ing.ProcessDocument(context.Background(), testJob)
	if !errors.Is(err, core.ErrExtractionFailed) {
		t.Fatalf("err = %v, want ErrExtractionFailed", err)
	}

	last := db.statuses[len(db.statuses)-1]
	if last != models.StatusFailed {
		t.Errorf("final status = %q, want failed", last)
	}
	if db.processingError == "" {
		t.Error("processing error was not recorded")
	}
	if db.extractionSaved {
		t.Error("extraction persisted despite failure")
	}
	if idx.calls != 0 {
		t.Error("indexer ran despite extraction failure")
	}
}

func TestProcessDocumentReadFailure(t *testing.T) {
	db := &fakeDB{}
	ing := newTestIngestor(db,
		&fakeStore{readErr: errors.New("gone")},
		&fakeExtractor{},
		&fakeRenderer{},
		&fakeIndexer{})

	if err := ing.ProcessDocument(context.Background(), testJob); err == nil {
		t.Fatal("expected error")
	}
	if db.statuses[len(db.statuses)-1] != models.StatusFailed {
		t.Errorf("final status = %v, want failed", db.statuses)
	}
}

func TestProcessDocumentRenderFailureIsolated(t *testing.T) {
	db := &fakeDB{}
	idx := &fakeIndexer{}
	ing := newTestIngestor(db,
		&fakeStore{data: []byte("pdf")},
		&fakeExtractor{result: &models.ExtractResult{Text: "text long enough to chunk", PageCount: 1}},
		&fakeRenderer{err: core.ErrRenderFailed},
		idx)

	if err := ing.ProcessDocument(context.Background(), testJob); err != nil {
		t.Fatalf("render failure must not fail the document: %v", err)
	}
	if db.imagesSaved != 0 {
		t.Errorf("imagesSaved = %d, want 0", db.imagesSaved)
	}
	if !db.extractionSaved {
		t.Error("extraction was not persisted")
	}
	if idx.calls != 1 {
		t.Error("indexing skipped despite render-only failure")
	}
}

func TestProcessDocumentEmbeddingFailureDegradesSearchOnly(t *testing.T) {
	db := &fakeDB{}
	idx := &fakeIndexer{err: core.ErrEmbeddingProvider}
	ing := newTestIngestor(db,
		&fakeStore{data: []byte("pdf")},
		&fakeExtractor{result: &models.ExtractResult{Text: "text long enough to chunk", PageCount: 1}},
		&fakeRenderer{},
		idx)

	if err := ing.ProcessDocument(context.Background(), testJob); err != nil {
		t.Fatalf("embedding failure must not fail the document: %v", err)
	}
	if !db.extractionSaved {
		t.Error("extraction was not persisted")
	}
	last := db.embeddingStatuses[len(db.embeddingStatuses)-1]
	if last != models.StatusFailed {
		t.Errorf("final embedding status = %q, want failed", last)
	}
	for _, s := range db.statuses {
		if s == models.StatusFailed {
			t.Error("document status moved to failed on embedding error")
		}
	}
}

func TestProcessDocumentNoChunksCompletesEmbeddingTrivially(t *testing.T) {
	db := &fakeDB{}
	idx := &fakeIndexer{}
	ing := newTestIngestor(db,
		&fakeStore{data: []byte("pdf")},
		&fakeExtractor{result: &models.ExtractResult{Text: "  ", PageCount: 1}},
		&fakeRenderer{},
		idx)

	if err := ing.ProcessDocument(context.Background(), testJob); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if idx.calls != 0 {
		t.Error("indexer called with no chunks")
	}
	want := []string{models.StatusCompleted}
	if len(db.embeddingStatuses) != 1 || db.embeddingStatuses[0] != want[0] {
		t.Errorf("embeddingStatuses = %v, want %v", db.embeddingStatuses, want)
	}
}

func TestProcessDocumentNilIndexer(t *testing.T) {
	db := &fakeDB{}
	ing := newTestIngestor(db,
		&fakeStore{data: []byte("pdf")},
		&fakeExtractor{result: &models.ExtractResult{Text: "text long enough to chunk", PageCount: 1}},
		&fakeRenderer{},
		nil)

	if err := ing.ProcessDocument(context.Background(), testJob); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if db.embeddingStatuses[len(db.embeddingStatuses)-1] != models.StatusCompleted {
		t.Errorf("embeddingStatuses = %v, want trivial completion", db.embeddingStatuses)
	}
}
