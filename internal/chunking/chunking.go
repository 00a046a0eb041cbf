package chunking

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"tagforge/internal/models"
)

const (
	// DefaultChunkSize is the window size in characters used when none is configured.
	DefaultChunkSize = 1000
	// DefaultOverlap is the number of characters shared by consecutive chunks.
	DefaultOverlap = 200
)

// Chunker defines the interface for splitting text into chunks.
type Chunker interface {
	Chunk(text string) ([]models.TextChunk, error)
}

// BoundaryChunker cuts text at sentence or word boundaries where it can.
type BoundaryChunker struct {
	Size    int
	Overlap int
}

// NewBoundaryChunker validates the window parameters and returns a chunker.
func NewBoundaryChunker(size, overlap int) (*BoundaryChunker, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &BoundaryChunker{Size: size, Overlap: overlap}, nil
}

// Chunk implements Chunker.
func (c *BoundaryChunker) Chunk(text string) ([]models.TextChunk, error) {
	return Chunk(text, c.Size, c.Overlap)
}

func validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d: %w", size, models.ErrInvalidArgument)
	}
	if overlap < 0 {
		return fmt.Errorf("overlap must be non-negative, got %d: %w", overlap, models.ErrInvalidArgument)
	}
	if overlap >= size {
		return fmt.Errorf("overlap (%d) must be less than chunk size (%d): %w", overlap, size, models.ErrInvalidArgument)
	}
	return nil
}

// Chunk splits text into overlapping windows of at most size characters.
//
// Each window is cut after the last sentence terminator when one lies past the
// window midpoint, otherwise at the last space, otherwise mid-word. The next
// window starts overlap characters before the previous cut. Positions are
// counted in runes.
func Chunk(text string, size, overlap int) ([]models.TextChunk, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return []models.TextChunk{}, nil
	}

	runes := []rune(trimmed)
	n := len(runes)
	if n <= size {
		return []models.TextChunk{{Text: trimmed, Ordinal: 0}}, nil
	}

	var chunks []models.TextChunk
	start := 0
	for start < n {
		end := start + size
		if end < n {
			end = cutPoint(runes, start, end, size)
		} else {
			end = n
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, models.TextChunk{Text: piece, Ordinal: len(chunks)})
		}

		if end >= n {
			break
		}
		next := end - overlap
		if next <= start {
			// The cut landed inside the overlap distance; drop the overlap for
			// this step so the scan always moves forward.
			next = end
		}
		start = next
	}

	log.Debugf("Chunked %d characters into %d chunks (size=%d, overlap=%d)", n, len(chunks), size, overlap)
	return chunks, nil
}

// cutPoint picks the end of the window [start, end).
func cutPoint(runes []rune, start, end, size int) int {
	sentenceEnd := -1
	for i := end - 1; i >= start; i-- {
		if r := runes[i]; r == '.' || r == '!' || r == '?' {
			sentenceEnd = i
			break
		}
	}
	if sentenceEnd > start+size/2 {
		return sentenceEnd + 1
	}

	for i := end - 1; i > start; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return end
}
