package vectorstore

import (
	"math"
	"testing"
)

func TestEmbeddingBlobRoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, float32(math.Pi)}
	blob := encodeEmbedding(in)
	if len(blob) != 16 {
		t.Fatalf("blob length = %d, want 16", len(blob))
	}
	out, err := decodeEmbedding(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestDecodeEmbedding_BadLength(t *testing.T) {
	if _, err := decodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for 3-byte blob")
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatalf("cosineSimilarity: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("cosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChunkID(t *testing.T) {
	if got := ChunkID("report.pdf", 7); got != "report.pdf_chunk_7" {
		t.Fatalf("ChunkID = %q", got)
	}
}

func TestPointIDIsStable(t *testing.T) {
	a := pointID("docs", "report.pdf_chunk_0").GetUuid()
	b := pointID("docs", "report.pdf_chunk_0").GetUuid()
	c := pointID("docs", "report.pdf_chunk_1").GetUuid()
	if a == "" || a != b {
		t.Fatalf("pointID not stable: %q vs %q", a, b)
	}
	if a == c {
		t.Fatal("different chunk ids mapped to the same point id")
	}
}
