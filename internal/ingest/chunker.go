package ingest

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/soliscan/soliscan/internal/config"
)

// Chunker splits document text into overlapping segments no longer than
// maxSize bytes. Cut points prefer paragraph breaks, then line breaks, then
// word boundaries, before falling back to a raw cut at the size limit.
//
// Segments are contiguous windows of the input: each one starts exactly
// overlap bytes before the previous one ended. Concatenating the first
// segment with every later segment's text after its overlap prefix
// reproduces the input byte for byte.
type Chunker struct {
	maxSize int
	overlap int
}

// NewChunker validates the splitting configuration. overlap must be a
// positive integer smaller than maxSize; anything else is a configuration
// error surfaced at startup.
func NewChunker(maxSize, overlap int) (*Chunker, error) {
	switch {
	case maxSize <= 0:
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", config.ErrInvalid, maxSize)
	case overlap <= 0:
		return nil, fmt.Errorf("%w: chunk overlap must be positive, got %d", config.ErrInvalid, overlap)
	case overlap >= maxSize:
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", config.ErrInvalid, overlap, maxSize)
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}, nil
}

// Split produces the ordered segment sequence for text. Empty input yields
// an empty sequence; input within the size limit yields a single segment.
// The result is deterministic for identical input and configuration.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.maxSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + c.maxSize
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			return chunks
		}
		cut := c.cutPoint(text, start, end)
		chunks = append(chunks, text[start:cut])
		start = cut - c.overlap
	}
}

// cutPoint picks where the segment starting at start should end. Candidate
// separators are searched backwards through the window; a candidate is only
// usable if it leaves the next segment a positive advance (cut beyond
// start+overlap), otherwise splitting would stall.
func (c *Chunker) cutPoint(text string, start, end int) int {
	window := text[start:end]
	floor := c.overlap + 1

	if idx := strings.LastIndex(window, "\n\n"); idx >= 0 && idx+2 >= floor {
		return start + idx + 2
	}
	if idx := strings.LastIndexByte(window, '\n'); idx >= 0 && idx+1 >= floor {
		return start + idx + 1
	}
	if idx := strings.LastIndexByte(window, ' '); idx >= 0 && idx+1 >= floor {
		return start + idx + 1
	}

	// Raw cut at the size limit; back off to a rune start so multi-byte
	// characters are not split unless the floor forbids it.
	cut := end
	for cut > start+floor && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}

// Overlap reports the configured overlap, used when reassembling document
// text from its stored segments.
func (c *Chunker) Overlap() int { return c.overlap }

// MaxSize reports the configured segment size limit.
func (c *Chunker) MaxSize() int { return c.maxSize }
