package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"gopherai-pdfqa/internal/ai"
)

type QdrantConfig struct {
	Host       string
	Port       int
	UseTLS     bool
	APIKey     string
	Collection string
}

// QdrantStore indexes chunks in a Qdrant collection. Qdrant only accepts
// UUID or integer point ids, so each chunk id is mapped to a name-based UUID
// and kept verbatim in the payload.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	embedder   ai.Embedder

	mu    sync.Mutex
	ready bool
}

func NewQdrantStore(ctx context.Context, cfg QdrantConfig, embedder ai.Embedder) (*QdrantStore, error) {
	if cfg.Collection == "" {
		return nil, errors.New("empty collection name")
	}
	if embedder == nil {
		return nil, fmt.Errorf("qdrant store: embedder is nil")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client failed: %w", err)
	}

	s := &QdrantStore{client: client, collection: cfg.Collection, embedder: embedder}
	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check qdrant collection failed: %w", err)
	}
	s.ready = exists
	return s, nil
}

func pointID(collection, chunkID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(collection+"/"+chunkID)).String())
}

func (s *QdrantStore) isReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// ensureCollection creates the collection on first write, once the vector
// size is known from the embedder.
func (s *QdrantStore) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check qdrant collection failed: %w", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create qdrant collection failed: %w", err)
		}
	}
	s.ready = true
	return nil
}

func (s *QdrantStore) Existing(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(ids) == 0 || !s.isReady() {
		return found, nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(s.collection, id)
	}
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant get points failed: %w", err)
	}
	for _, p := range points {
		if id := p.Payload["chunk_id"].GetStringValue(); id != "" {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

func (s *QdrantStore) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := s.embedder.Embed(ctx, contents(chunks))
	if err != nil {
		return fmt.Errorf("embed chunks failed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      pointID(s.collection, c.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id": c.ID,
				"content":  c.Content,
				"source":   c.Source,
			}),
		}
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

func (s *QdrantStore) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if k <= 0 || !s.isReady() {
		return nil, nil
	}
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for query", len(vectors))
	}

	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vectors[0]...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		matches = append(matches, Match{
			Chunk: Chunk{
				ID:      hit.Payload["chunk_id"].GetStringValue(),
				Content: hit.Payload["content"].GetStringValue(),
				Source:  hit.Payload["source"].GetStringValue(),
			},
			Score: float64(hit.Score),
		})
	}
	return matches, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

var _ Store = (*QdrantStore)(nil)
