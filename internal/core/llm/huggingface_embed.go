package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prismdocs/prism-server/internal/config"
	"github.com/prismdocs/prism-server/internal/core"
	"github.com/prismdocs/prism-server/internal/metrics"
)

// HFEmbedder calls a hosted feature-extraction endpoint (Hugging Face
// Inference API shape). Batch requests are split into sub-batches of at
// most batchSize texts; a rate limiter paces sub-batches so bursts do
// not trip the provider's rate limit.
type HFEmbedder struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	dim        int
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger
}

var _ core.EmbeddingProvider = (*HFEmbedder)(nil)

func NewHFEmbedder(cfg *config.Config, logger *zap.Logger) *HFEmbedder {
	// Misconfigured values fall back to defaults; a zero batch size
	// would stall the sub-batch loop and a zero rate would block forever.
	batchSize := cfg.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	maxRetries := cfg.EmbedMaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	rps := cfg.EmbedRPS
	if rps <= 0 {
		rps = 2
	}
	return &HFEmbedder{
		httpClient: &http.Client{Timeout: cfg.EmbedTimeout},
		baseURL:    strings.TrimRight(cfg.HFBaseURL, "/"),
		model:      cfg.EmbedModel,
		apiKey:     cfg.HFAPIKey,
		dim:        cfg.EmbedDim,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		retryDelay: cfg.EmbedRetryDelay,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

func (e *HFEmbedder) Dimension() int { return e.dim }

func (e *HFEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts returns one vector per input, in input order.
func (e *HFEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		// Inter-batch pacing; blocks only this pipeline's task.
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues("huggingface", "error").Inc()
			return nil, err
		}
		out = append(out, vecs...)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues("huggingface", "success").Inc()
	return out, nil
}

// embedBatch runs one sub-batch with retries. Retryable conditions are
// an explicit rate-limit response, "model loading", and 503/504-class
// transient failures; the delay grows linearly with the attempt.
func (e *HFEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		vecs, retryable, err := e.call(ctx, batch)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !retryable || attempt == e.maxRetries {
			return nil, err
		}

		delay := time.Duration(attempt) * e.retryDelay
		e.logger.Warn("embedding call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

type hfRequest struct {
	Inputs  []string  `json:"inputs"`
	Options hfOptions `json:"options"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type hfError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

func (e *HFEmbedder) call(ctx context.Context, batch []string) (vecs [][]float32, retryable bool, err error) {
	body, err := json.Marshal(hfRequest{Inputs: batch, Options: hfOptions{WaitForModel: true}})
	if err != nil {
		return nil, false, err
	}

	url := e.baseURL + "/pipeline/feature-extraction/" + e.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		// Network-level failures are transient from our point of view.
		return nil, true, fmt.Errorf("embedding request: %v: %w", err, core.ErrEmbeddingProvider)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read embedding response: %v: %w", err, core.ErrEmbeddingProvider)
	}

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode == http.StatusServiceUnavailable ||
			resp.StatusCode == http.StatusGatewayTimeout ||
			isModelLoading(respBody)
		return nil, retry, fmt.Errorf("embedding API status %d: %s: %w",
			resp.StatusCode, truncate(respBody, 200), core.ErrEmbeddingProvider)
	}

	vecs, err = parseVectors(respBody, len(batch))
	if err != nil {
		return nil, false, err
	}
	for i, v := range vecs {
		if len(v) != e.dim {
			return nil, false, fmt.Errorf("vector %d has %d dims, expected %d: %w",
				i, len(v), e.dim, core.ErrDimensionMismatch)
		}
	}
	return vecs, false, nil
}

// parseVectors accepts both the flat shape ([[...], ...]) and the
// nested shape some deployments return ([[[...]], ...]), flattening the
// single-element level transparently.
func parseVectors(data []byte, want int) ([][]float32, error) {
	var flat [][]float32
	if err := json.Unmarshal(data, &flat); err == nil {
		if len(flat) != want {
			return nil, fmt.Errorf("embedding count mismatch: got %d want %d: %w",
				len(flat), want, core.ErrEmbeddingProvider)
		}
		return flat, nil
	}

	var nested [][][]float32
	if err := json.Unmarshal(data, &nested); err == nil {
		if len(nested) != want {
			return nil, fmt.Errorf("embedding count mismatch: got %d want %d: %w",
				len(nested), want, core.ErrEmbeddingProvider)
		}
		out := make([][]float32, len(nested))
		for i, group := range nested {
			if len(group) != 1 {
				return nil, fmt.Errorf("unexpected nested embedding shape at %d: %w",
					i, core.ErrEmbeddingProvider)
			}
			out[i] = group[0]
		}
		return out, nil
	}

	return nil, fmt.Errorf("unparsable embedding response: %w", core.ErrEmbeddingProvider)
}

func isModelLoading(body []byte) bool {
	var e hfError
	if json.Unmarshal(body, &e) != nil {
		return false
	}
	return strings.Contains(strings.ToLower(e.Error), "loading")
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
