package ingestion_engine

import (
	"strings"

	"github.com/prismdocs/prism-server/internal/models"
)

// Chunker splits normalized text into fixed-size overlapping windows.
// Sizes are measured in runes so multibyte text never splits mid-rune.
type Chunker struct {
	size      int
	overlap   int
	minLength int
}

func NewChunker(size, overlap, minLength int) *Chunker {
	if size <= 0 {
		size = 500
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}
	return &Chunker{size: size, overlap: overlap, minLength: minLength}
}

// Chunk normalizes whitespace, windows the text, and tags each chunk
// with an estimated source page. Page numbers are a proportional
// estimate from the chunk's position in the full text; when pageCount
// is unknown (zero) every chunk reports page 1.
//
// Chunks shorter than minLength after trimming are dropped. An empty or
// whitespace-only input yields nil.
func (c *Chunker) Chunk(text string, pageCount int) []models.TextChunk {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	total := len(runes)
	step := c.size - c.overlap

	var chunks []models.TextChunk
	index := 0
	for start := 0; start < total; start += step {
		end := start + c.size
		if end > total {
			end = total
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(piece)) >= c.minLength {
			chunks = append(chunks, models.TextChunk{
				Text:       piece,
				ChunkIndex: index,
				PageNumber: estimatePage(start, total, pageCount),
			})
			index++
		}

		if end == total {
			break
		}
	}
	return chunks
}

func estimatePage(start, total, pageCount int) int {
	if pageCount <= 0 || total == 0 {
		return 1
	}
	page := (start*pageCount)/total + 1
	if page > pageCount {
		page = pageCount
	}
	return page
}
