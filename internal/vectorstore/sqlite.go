package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopherai-pdfqa/internal/ai"

	_ "modernc.org/sqlite"
)

// lookupBatch keeps IN (...) lists well below SQLite's variable limit.
const lookupBatch = 500

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	content    TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	embedding  BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (collection, id)
)`

// SQLiteStore keeps chunks and their embeddings in a single SQLite file and
// ranks them by brute-force cosine similarity.
type SQLiteStore struct {
	db         *sql.DB
	collection string
	embedder   ai.Embedder
}

// OpenSQLite opens (or creates) the index at path. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, path, collection string, embedder ai.Embedder) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create vector index dir failed: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite failed: %w", err)
	}
	// One writer; also keeps a ":memory:" database shared across calls.
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(ctx, db, collection, embedder)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func NewSQLiteStore(ctx context.Context, db *sql.DB, collection string, embedder ai.Embedder) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store: db is nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("sqlite store: embedder is nil")
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create chunks table failed: %w", err)
	}
	return &SQLiteStore{db: db, collection: collection, embedder: embedder}, nil
}

func (s *SQLiteStore) Existing(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	for start := 0; start < len(ids); start += lookupBatch {
		end := start + lookupBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		args := make([]interface{}, 0, len(batch)+1)
		args = append(args, s.collection)
		for _, id := range batch {
			args = append(args, id)
		}
		query := `SELECT id FROM chunks WHERE collection = ? AND id IN (?` +
			strings.Repeat(",?", len(batch)-1) + `)`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("lookup chunk ids failed: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan chunk id failed: %w", err)
			}
			found[id] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("lookup chunk ids failed: %w", err)
		}
	}
	return found, nil
}

func (s *SQLiteStore) Add(ctx context.Context, chunks []Chunk) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx failed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO chunks(collection, id, content, source, embedding) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert failed: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk %d has empty id", i)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, c.ID, c.Content, c.Source, encodeEmbedding(vectors[i])); err != nil {
			return fmt.Errorf("insert chunk %s failed: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for query", len(vectors))
	}
	query := vectors[0]

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, source, embedding FROM chunks WHERE collection = ? ORDER BY rowid`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("scan chunks failed: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m    Match
			blob []byte
		)
		if err := rows.Scan(&m.ID, &m.Content, &m.Source, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk failed: %w", err)
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", m.ID, err)
		}
		m.Score, err = cosineSimilarity(query, vec)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", m.ID, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan chunks failed: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, s.collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks failed: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
