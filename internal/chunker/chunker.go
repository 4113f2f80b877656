package chunker

import (
	"strings"

	"askdocs/internal/loader"
)

// Chunk is a bounded text segment carrying the metadata of the unit it was
// derived from.
type Chunk struct {
	Text     string
	Metadata loader.Metadata
}

// Splitter cuts loader units into overlapping rune windows. Splitting never
// crosses unit boundaries, so every chunk stays attributable to a single
// source location.
type Splitter struct {
	size    int
	overlap int
}

func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = 512
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Splitter{size: size, overlap: overlap}
}

// Split is deterministic for identical input and configuration.
func (s *Splitter) Split(units []loader.Unit) []Chunk {
	var chunks []Chunk
	for _, unit := range units {
		for _, text := range s.splitText(unit.Text) {
			chunks = append(chunks, Chunk{Text: text, Metadata: unit.Metadata})
		}
	}
	return chunks
}

func (s *Splitter) splitText(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var parts []string
	for i := 0; i < len(runes); {
		end := i + s.size
		if end > len(runes) {
			end = len(runes)
		}
		// Windows landing inside a long whitespace run carry no content.
		if part := string(runes[i:end]); strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
		if end == len(runes) {
			break
		}
		i += s.size - s.overlap
	}
	return parts
}
