// Package textsplit cuts extracted document text into overlapping chunks.
//
// The text is split on a fixed separator, empty pieces are dropped, and the
// pieces are merged greedily (re-joined with the separator) until adding the
// next one would exceed the chunk size. When a chunk is emitted, pieces are
// dropped from its front until at most ChunkOverlap characters remain, and
// those carry over into the next chunk. Lengths are counted in runes. A single
// piece longer than the chunk size becomes its own oversized chunk.
package textsplit

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultSeparator    = "\n"
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

type Splitter struct {
	separator    string
	chunkSize    int
	chunkOverlap int
}

func New(separator string, chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", chunkOverlap)
	}
	if chunkOverlap > chunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) larger than chunk size (%d)", chunkOverlap, chunkSize)
	}
	return &Splitter{
		separator:    separator,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}, nil
}

// Default returns the splitter used for PDF ingestion.
func Default() *Splitter {
	return &Splitter{
		separator:    DefaultSeparator,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}
}

func (s *Splitter) Split(text string) []string {
	var raw []string
	if s.separator == "" {
		raw = strings.Split(text, "")
	} else {
		raw = strings.Split(text, s.separator)
	}

	pieces := raw[:0]
	for _, p := range raw {
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return s.merge(pieces)
}

func (s *Splitter) merge(pieces []string) []string {
	sepLen := utf8.RuneCountInString(s.separator)
	joinCost := func(n int) int {
		if n > 0 {
			return sepLen
		}
		return 0
	}

	var (
		chunks  []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n+joinCost(len(current)) > s.chunkSize && len(current) > 0 {
			if chunk := s.join(current); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.chunkOverlap ||
				(total+n+joinCost(len(current)) > s.chunkSize && total > 0) {
				total -= utf8.RuneCountInString(current[0]) + joinCost(len(current)-1)
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n + joinCost(len(current)-1)
	}
	if chunk := s.join(current); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (s *Splitter) join(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, s.separator))
}
