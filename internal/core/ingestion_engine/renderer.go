package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"path"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prismdocs/prism-server/internal/core"
	"github.com/prismdocs/prism-server/internal/models"
)

// ImageRenderer rasterizes PDF pages to JPEG via MuPDF and writes them
// to the file store under <outputDir>/<documentID>/. A failed page is
// logged and skipped; rendering fails as a whole only when the PDF
// cannot be opened at all.
type ImageRenderer struct {
	store     core.FileStore
	outputDir string
	scale     float64
	quality   int
	maxPages  int
	timeout   time.Duration
	logger    *zap.Logger
}

var _ core.PageRenderer = (*ImageRenderer)(nil)

func NewImageRenderer(store core.FileStore, outputDir string, scale float64, quality, maxPages int, timeout time.Duration, logger *zap.Logger) *ImageRenderer {
	if scale <= 0 {
		scale = 1.4
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &ImageRenderer{
		store:     store,
		outputDir: outputDir,
		scale:     scale,
		quality:   quality,
		maxPages:  maxPages,
		timeout:   timeout,
		logger:    logger,
	}
}

func (r *ImageRenderer) RenderPages(ctx context.Context, data []byte, documentID string) ([]models.PageImage, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf for rendering: %v: %w", err, core.ErrRenderFailed)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	if r.maxPages > 0 && numPages > r.maxPages {
		numPages = r.maxPages
	}

	var images []models.PageImage
	for i := 0; i < numPages; i++ {
		if err := ctx.Err(); err != nil {
			return images, err
		}

		img, err := doc.ImageDPI(i, 72*r.scale)
		if err != nil {
			r.logger.Warn("failed to render page",
				zap.String("document_id", documentID),
				zap.Int("page", i+1),
				zap.Error(err))
			continue
		}

		encoded, err := r.encodeJPEG(img)
		if err != nil {
			r.logger.Warn("failed to encode page",
				zap.String("document_id", documentID),
				zap.Int("page", i+1),
				zap.Error(err))
			continue
		}

		p := path.Join(r.outputDir, documentID, fmt.Sprintf("page_%03d.jpg", i+1))
		if err := r.store.Write(ctx, p, encoded); err != nil {
			r.logger.Warn("failed to store page image",
				zap.String("document_id", documentID),
				zap.Int("page", i+1),
				zap.Error(err))
			continue
		}

		bounds := img.Bounds()
		images = append(images, models.PageImage{
			ID:          uuid.NewString(),
			DocumentID:  documentID,
			PageNumber:  i + 1,
			ImageIndex:  len(images),
			StoragePath: p,
			Width:       bounds.Dx(),
			Height:      bounds.Dy(),
			Format:      "jpeg",
			FileSize:    int64(len(encoded)),
		})
	}
	return images, nil
}

// encodeJPEG flattens any alpha onto a white background before
// encoding; JPEG has no transparency.
func (r *ImageRenderer) encodeJPEG(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(flat, bounds, img, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: r.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *ImageRenderer) DeletePages(ctx context.Context, documentID string) error {
	return r.store.DeleteTree(ctx, path.Join(r.outputDir, documentID))
}
