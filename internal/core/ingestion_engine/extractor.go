package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"github.com/dslipak/pdf"
	"go.uber.org/zap"

	"github.com/prismdocs/prism-server/internal/core"
	"github.com/prismdocs/prism-server/internal/models"
)

// baselineJump is the vertical distance between two text fragments that
// we treat as a line break when reassembling page text.
const baselineJump = 3.0

// pageTimeout bounds one page's content parse; malformed pages can send
// the parser into an unbounded loop.
const pageTimeout = 10 * time.Second

// PdfExtractor pulls plain text and document info out of a PDF. The
// primary path walks pages with a native parser; if that parser cannot
// open the file at all we fall back to a generic converter, which loses
// page boundaries but still recovers text from most odd encodings.
type PdfExtractor struct {
	maxPages int
	logger   *zap.Logger
}

var _ core.TextExtractor = (*PdfExtractor)(nil)

func NewPdfExtractor(maxPages int, logger *zap.Logger) *PdfExtractor {
	return &PdfExtractor{maxPages: maxPages, logger: logger}
}

func (e *PdfExtractor) Extract(ctx context.Context, data []byte) (*models.ExtractResult, error) {
	res, err := e.extractNative(ctx, data)
	if err == nil {
		// Empty text is a valid outcome: an image-only scan carries no
		// extractable text but still renders pages and completes.
		res.Metadata = DetectMetadata(res.Text)
		return res, nil
	}
	if errors.Is(err, core.ErrExtractionFailed) || ctx.Err() != nil {
		return nil, err
	}

	// The native parser could not open the stream; the generic
	// converter recovers text from some odd encodings at the cost of
	// page boundaries and document info.
	e.logger.Warn("native pdf extraction failed, trying converter fallback", zap.Error(err))

	text, fallbackErr := e.extractFallback(data)
	if fallbackErr != nil {
		return nil, fmt.Errorf("unparsable pdf stream: %w", core.ErrExtractionFailed)
	}
	return &models.ExtractResult{
		Text:     text,
		Metadata: DetectMetadata(text),
	}, nil
}

// extractNative walks each page and reassembles its text fragments into
// lines using baseline positions. Unparsable pages are skipped; the
// document fails only if nothing at all comes out.
func (e *PdfExtractor) extractNative(ctx context.Context, data []byte) (*models.ExtractResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	numPages := reader.NumPage()
	if e.maxPages > 0 && numPages > e.maxPages {
		return nil, fmt.Errorf("pdf has %d pages, limit is %d: %w",
			numPages, e.maxPages, core.ErrExtractionFailed)
	}

	title, author := readDocInfo(reader)

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		// A page without a content stream is legal (blank or
		// annotation-only); the content parser does not terminate on it.
		if page.V.IsNull() || page.V.Key("Contents").IsNull() {
			continue
		}

		text, err := pageTextGuarded(ctx, page)
		if err != nil {
			e.logger.Warn("skipping unparsable page", zap.Int("page", i), zap.Error(err))
			continue
		}
		if text != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}

	return &models.ExtractResult{
		Text:      sb.String(),
		PageCount: numPages,
		Title:     title,
		Author:    author,
	}, nil
}

// pageTextGuarded runs pageText under a deadline. The content parser
// can loop forever on malformed pages, so the parse happens in its own
// goroutine and we abandon it on timeout rather than hang the worker.
func pageTextGuarded(ctx context.Context, page pdf.Page) (string, error) {
	type pageResult struct {
		text string
		err  error
	}
	res := make(chan pageResult, 1)
	go func() {
		text, err := pageText(page)
		res <- pageResult{text: text, err: err}
	}()

	select {
	case r := <-res:
		return r.text, r.err
	case <-time.After(pageTimeout):
		return "", errors.New("page content parse timed out")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// pageText joins the page's positioned fragments, inserting a newline
// whenever the baseline moves by more than baselineJump.
func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page content panic: %v", r)
		}
	}()

	content := page.Content()
	if len(content.Text) == 0 {
		return "", nil
	}

	var sb strings.Builder
	lastY := content.Text[0].Y
	for _, t := range content.Text {
		if math.Abs(t.Y-lastY) > baselineJump {
			sb.WriteString("\n")
		}
		sb.WriteString(t.S)
		lastY = t.Y
	}
	return sb.String(), nil
}

func (e *PdfExtractor) extractFallback(data []byte) (string, error) {
	res, _, err := docconv.ConvertPDF(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("converter fallback: %w", err)
	}
	return res, nil
}

func readDocInfo(reader *pdf.Reader) (title, author string) {
	defer func() {
		_ = recover() // malformed Info dicts are ignored
	}()

	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return "", ""
	}
	title = info.Key("Title").Text()
	author = info.Key("Author").Text()
	return strings.TrimSpace(title), strings.TrimSpace(author)
}
