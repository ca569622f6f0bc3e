package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/prismdocs/prism-server/internal/core"
)

// buildOnePagePDF assembles a minimal but well-formed single-page PDF.
// With withContents the page carries an empty content stream, the shape
// of an image-only scan; without it the page has no /Contents key at
// all, which some producers emit for blank pages.
func buildOnePagePDF(withContents bool) []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
	}
	page := "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792]"
	if withContents {
		page += " /Contents 4 0 R"
	}
	page += " >>"
	objs = append(objs, page)
	if withContents {
		objs = append(objs, "<< /Length 0 >>\nstream\n\nendstream")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs)+1)
	for i, body := range objs {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objs); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objs)+1, xref)
	return buf.Bytes()
}

func TestExtractRejectsGarbage(t *testing.T) {
	e := NewPdfExtractor(0, zap.NewNop())

	for _, data := range [][]byte{
		nil,
		{},
		[]byte("this is not a pdf"),
		[]byte("%PDF-1.7 truncated nonsense"),
	} {
		_, err := e.Extract(context.Background(), data)
		if !errors.Is(err, core.ErrExtractionFailed) {
			t.Errorf("Extract(%d bytes) err = %v, want ErrExtractionFailed", len(data), err)
		}
	}
}

func TestExtractTextFreeDocumentSucceeds(t *testing.T) {
	e := NewPdfExtractor(0, zap.NewNop())

	res, err := e.Extract(context.Background(), buildOnePagePDF(true))
	if err != nil {
		t.Fatalf("Extract() err = %v, want nil for a scan with no text layer", err)
	}
	if strings.TrimSpace(res.Text) != "" {
		t.Errorf("Text = %q, want empty", res.Text)
	}
	if res.PageCount != 1 {
		t.Errorf("PageCount = %d, want 1", res.PageCount)
	}
}

func TestExtractSkipsPageWithoutContents(t *testing.T) {
	e := NewPdfExtractor(0, zap.NewNop())

	done := make(chan struct{})
	var (
		text      string
		pageCount int
		err       error
	)
	go func() {
		defer close(done)
		r, extractErr := e.Extract(context.Background(), buildOnePagePDF(false))
		if extractErr == nil {
			text = r.Text
			pageCount = r.PageCount
		}
		err = extractErr
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Extract() did not return for a page with no content stream")
	}
	if err != nil {
		t.Fatalf("Extract() err = %v, want nil", err)
	}
	if strings.TrimSpace(text) != "" {
		t.Errorf("Text = %q, want empty", text)
	}
	if pageCount != 1 {
		t.Errorf("PageCount = %d, want 1", pageCount)
	}
}
