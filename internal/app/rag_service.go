package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"gopherai-pdfqa/internal/ai"
	"gopherai-pdfqa/internal/logger"
	"gopherai-pdfqa/internal/metrics"
	"gopherai-pdfqa/internal/model"
	"gopherai-pdfqa/internal/vectorstore"
)

const (
	DefaultModel       = ai.BackendOpenAI
	UnknownModelAnswer = "Unknown model selected."

	defaultTopK        = 3
	defaultInsertBatch = 64
	maxBackendColumn   = 32
)

var (
	ErrNoFile        = errors.New("no file received")
	ErrEmptyQuestion = errors.New("msg is required")
	ErrNoDocuments   = errors.New("no relevant documents found")
)

type TextExtractor interface {
	ExtractText(r io.Reader) (string, error)
}

type TextSplitter interface {
	Split(text string) []string
}

// HistoryRecorder persists an answered question, either directly or through
// the persist queue.
type HistoryRecorder interface {
	Record(ctx context.Context, qa *model.QuestionAnswer) error
}

type HistoryInvalidator interface {
	Invalidate(ctx context.Context, userID uint) error
}

type RAGService struct {
	extractor   TextExtractor
	splitter    TextSplitter
	store       vectorstore.Store
	backends    *ai.Registry
	recorder    HistoryRecorder
	invalidator HistoryInvalidator
	topK        int
	insertBatch int
	log         *slog.Logger
}

type RAGOptions struct {
	TopK        int
	InsertBatch int
}

func NewRAGService(
	extractor TextExtractor,
	splitter TextSplitter,
	store vectorstore.Store,
	backends *ai.Registry,
	recorder HistoryRecorder,
	invalidator HistoryInvalidator,
	opts RAGOptions,
) *RAGService {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.InsertBatch <= 0 {
		opts.InsertBatch = defaultInsertBatch
	}
	return &RAGService{
		extractor:   extractor,
		splitter:    splitter,
		store:       store,
		backends:    backends,
		recorder:    recorder,
		invalidator: invalidator,
		topK:        opts.TopK,
		insertBatch: opts.InsertBatch,
		log:         logger.New("rag"),
	}
}

type IngestResult struct {
	Chunks  int `json:"chunks"`
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Ingest extracts, splits and indexes a PDF. Chunks whose id is already in
// the store are skipped. Batches written before a failure stay written.
func (s *RAGService) Ingest(ctx context.Context, filename string, r io.Reader) (*IngestResult, error) {
	if r == nil || strings.TrimSpace(filename) == "" {
		return nil, ErrNoFile
	}

	text, err := s.extractor.ExtractText(r)
	if err != nil {
		return nil, fmt.Errorf("extract %s failed: %w", filename, err)
	}
	pieces := s.splitter.Split(text)
	result := &IngestResult{Chunks: len(pieces)}
	if len(pieces) == 0 {
		return result, nil
	}

	ids := make([]string, len(pieces))
	for i := range pieces {
		ids[i] = vectorstore.ChunkID(filename, i)
	}
	existing, err := s.store.Existing(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup existing chunks failed: %w", err)
	}

	fresh := make([]vectorstore.Chunk, 0, len(pieces))
	for i, content := range pieces {
		if _, ok := existing[ids[i]]; ok {
			continue
		}
		fresh = append(fresh, vectorstore.Chunk{ID: ids[i], Content: content, Source: filename})
	}
	result.Skipped = len(pieces) - len(fresh)
	metrics.AddChunksSkipped(result.Skipped)

	for start := 0; start < len(fresh); start += s.insertBatch {
		end := start + s.insertBatch
		if end > len(fresh) {
			end = len(fresh)
		}
		if err := s.store.Add(ctx, fresh[start:end]); err != nil {
			return result, fmt.Errorf("add chunks %d-%d of %s failed: %w", start, end-1, filename, err)
		}
		result.Added += end - start
		metrics.AddChunksIngested(end - start)
	}

	s.log.Info("pdf ingested",
		"file", filename,
		"chunks", result.Chunks,
		"added", result.Added,
		"skipped", result.Skipped,
	)
	return result, nil
}

type AskInput struct {
	UserID   uint
	Question string
	Model    string
}

type AskResult struct {
	Question string
	Answer   string
	Model    string
	// Degraded is set when Answer stands in for a failed backend call.
	Degraded bool
}

// Ask answers question from the top-k indexed chunks using the backend named
// by Model and records the exchange.
func (s *RAGService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	question := input.Question
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	modelName := strings.TrimSpace(input.Model)
	if modelName == "" {
		modelName = DefaultModel
	}

	matches, err := s.store.Query(ctx, question, s.topK)
	if err != nil {
		return nil, fmt.Errorf("query vector store failed: %w", err)
	}
	if len(matches) == 0 {
		return nil, ErrNoDocuments
	}

	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Content
	}
	prompt := question + "\n" + strings.Join(texts, "\n")

	result := &AskResult{Question: question, Model: modelName}
	backend, err := s.backends.Get(modelName)
	if err != nil {
		result.Answer = UnknownModelAnswer
	} else {
		result.Answer, result.Degraded = s.generate(ctx, backend, prompt)
	}

	qa := &model.QuestionAnswer{
		UserID:    input.UserID,
		Question:  question,
		Answer:    result.Answer,
		Backend:   clip(modelName, maxBackendColumn),
		CreatedAt: time.Now(),
	}
	if err := s.recorder.Record(ctx, qa); err != nil {
		return nil, fmt.Errorf("record history failed: %w", err)
	}
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, input.UserID); err != nil {
			s.log.Warn("invalidate history cache failed", "user_id", input.UserID, "err", err)
		}
	}
	return result, nil
}

func (s *RAGService) generate(ctx context.Context, backend ai.Backend, prompt string) (string, bool) {
	start := time.Now()
	answer, err := backend.Generate(ctx, prompt)
	metrics.ObserveBackend(backend.Name(), time.Since(start), err)
	if err != nil {
		s.log.Error("backend call failed", "backend", backend.Name(), "err", err)
		return backend.Label() + " Error: request failed", true
	}
	return answer, false
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
