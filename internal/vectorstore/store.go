// Package vectorstore indexes document chunks by embedding and answers
// nearest-neighbour queries. A Store owns its embedding function: callers
// hand it text and get text back.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Chunk is one indexed piece of a source document.
type Chunk struct {
	ID      string
	Content string
	Source  string
}

// Match is a chunk returned by Query, best first.
type Match struct {
	Chunk
	Score float64
}

type Store interface {
	// Existing reports which of ids are already indexed.
	Existing(ctx context.Context, ids []string) (map[string]struct{}, error)
	// Add embeds and indexes chunks. Ids already present are left untouched.
	Add(ctx context.Context, chunks []Chunk) error
	// Query returns up to k chunks ranked by similarity to text.
	Query(ctx context.Context, text string, k int) ([]Match, error)
	Close() error
}

// ChunkID is the stable id of the index-th chunk of filename, so re-uploading
// a file yields the same ids.
func ChunkID(filename string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", filename, index)
}

func contents(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}
