package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/prismdocs/prism-server/internal/config"
	"github.com/prismdocs/prism-server/internal/core"
)

func testEmbedderConfig(baseURL string, dim int) *config.Config {
	return &config.Config{
		HFBaseURL:       baseURL,
		EmbedModel:      "test-model",
		EmbedDim:        dim,
		EmbedBatchSize:  64,
		EmbedMaxRetries: 3,
		EmbedRetryDelay: 5 * time.Millisecond,
		EmbedTimeout:    5 * time.Second,
		EmbedRPS:        1000,
	}
}

func decodeInputs(t *testing.T, r *http.Request) []string {
	t.Helper()
	var req hfRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return req.Inputs
}

func TestEmbedTextsPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inputs := decodeInputs(t, r)
		vecs := make([][]float32, len(inputs))
		for i := range inputs {
			vecs[i] = []float32{float32(i), float32(i) + 0.5}
		}
		json.NewEncoder(w).Encode(vecs)
	}))
	defer srv.Close()

	e := NewHFEmbedder(testEmbedderConfig(srv.URL, 2), zap.NewNop())
	vecs, err := e.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Errorf("vector %d = %v, out of order", i, v)
		}
	}
}

func TestEmbedTextsSubBatches(t *testing.T) {
	var batches [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inputs := decodeInputs(t, r)
		batches = append(batches, inputs)
		vecs := make([][]float32, len(inputs))
		for i := range inputs {
			vecs[i] = []float32{1, 2}
		}
		json.NewEncoder(w).Encode(vecs)
	}))
	defer srv.Close()

	cfg := testEmbedderConfig(srv.URL, 2)
	cfg.EmbedBatchSize = 2
	e := NewHFEmbedder(cfg, zap.NewNop())

	vecs, err := e.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	if len(vecs) != 3 {
		t.Errorf("got %d vectors, want 3", len(vecs))
	}
	if len(batches) != 2 || len(batches[0]) != 2 || len(batches[1]) != 1 {
		t.Errorf("batches = %v, want sizes [2 1]", batches)
	}
}

func TestEmbedRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([][]float32{{1, 2}})
	}))
	defer srv.Close()

	e := NewHFEmbedder(testEmbedderConfig(srv.URL, 2), zap.NewNop())
	vec, err := e.EmbedText(context.Background(), "x")
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("vec = %v", vec)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestEmbedRetriesModelLoading(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(hfError{Error: "Model test-model is currently loading", EstimatedTime: 20})
			return
		}
		json.NewEncoder(w).Encode([][]float32{{1, 2}})
	}))
	defer srv.Close()

	e := NewHFEmbedder(testEmbedderConfig(srv.URL, 2), zap.NewNop())
	if _, err := e.EmbedText(context.Background(), "x"); err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestEmbedDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewHFEmbedder(testEmbedderConfig(srv.URL, 2), zap.NewNop())
	_, err := e.EmbedText(context.Background(), "x")
	if !errors.Is(err, core.ErrEmbeddingProvider) {
		t.Fatalf("err = %v, want ErrEmbeddingProvider", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 400)", calls.Load())
	}
}

func TestEmbedGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewHFEmbedder(testEmbedderConfig(srv.URL, 2), zap.NewNop())
	_, err := e.EmbedText(context.Background(), "x")
	if !errors.Is(err, core.ErrEmbeddingProvider) {
		t.Fatalf("err = %v, want ErrEmbeddingProvider", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestEmbedFlattensNestedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][][]float32{{{1, 2}}, {{3, 4}}})
	}))
	defer srv.Close()

	e := NewHFEmbedder(testEmbedderConfig(srv.URL, 2), zap.NewNop())
	vecs, err := e.EmbedTexts(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 3 {
		t.Errorf("vecs = %v", vecs)
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]float32{{1, 2, 3}})
	}))
	defer srv.Close()

	e := NewHFEmbedder(testEmbedderConfig(srv.URL, 2), zap.NewNop())
	_, err := e.EmbedText(context.Background(), "x")
	if !errors.Is(err, core.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestEmbedderDefaultsZeroBatchSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inputs := decodeInputs(t, r)
		vecs := make([][]float32, len(inputs))
		for i := range inputs {
			vecs[i] = []float32{1, 2}
		}
		json.NewEncoder(w).Encode(vecs)
	}))
	defer srv.Close()

	cfg := testEmbedderConfig(srv.URL, 2)
	cfg.EmbedBatchSize = 0
	cfg.EmbedRPS = 0
	e := NewHFEmbedder(cfg, zap.NewNop())

	vecs, err := e.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	if len(vecs) != 3 {
		t.Errorf("got %d vectors, want 3", len(vecs))
	}
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	e := NewHFEmbedder(testEmbedderConfig("http://unused", 2), zap.NewNop())
	vecs, err := e.EmbedTexts(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("EmbedTexts(nil) = %v, %v", vecs, err)
	}
}
