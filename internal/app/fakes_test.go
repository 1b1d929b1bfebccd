package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"gopherai-pdfqa/internal/model"
	"gopherai-pdfqa/internal/repository"
	"gopherai-pdfqa/internal/vectorstore"
)

type fakeUsers struct {
	mu     sync.Mutex
	nextID uint
	byName map[string]*model.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byName: map[string]*model.User{}}
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byName[u.Username]; ok {
		return repository.ErrDuplicate
	}
	f.nextID++
	u.ID = f.nextID
	cp := *u
	f.byName[u.Username] = &cp
	return nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, name string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byName[name]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uint) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byName {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeRevoker struct {
	revoked map[string]time.Time
	err     error
}

func newFakeRevoker() *fakeRevoker {
	return &fakeRevoker{revoked: map[string]time.Time{}}
}

func (f *fakeRevoker) Revoke(_ context.Context, id string, exp time.Time) error {
	f.revoked[id] = exp
	return nil
}

func (f *fakeRevoker) IsRevoked(_ context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.revoked[id]
	return ok, nil
}

// memStore is an in-memory vectorstore.Store that ranks by insertion order.
type memStore struct {
	mu       sync.Mutex
	chunks   []vectorstore.Chunk
	addCalls int
	failAdd  int // fail the n-th Add call (1-based) when > 0
	queryErr error
	queries  []string
}

func (m *memStore) Existing(_ context.Context, ids []string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := map[string]struct{}{}
	for _, id := range ids {
		for _, c := range m.chunks {
			if c.ID == id {
				found[id] = struct{}{}
			}
		}
	}
	return found, nil
}

func (m *memStore) Add(_ context.Context, chunks []vectorstore.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls++
	if m.failAdd > 0 && m.addCalls == m.failAdd {
		return errors.New("store unavailable")
	}
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memStore) Query(_ context.Context, text string, k int) ([]vectorstore.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, text)
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var out []vectorstore.Match
	for _, c := range m.chunks {
		if len(out) == k {
			break
		}
		out = append(out, vectorstore.Match{Chunk: c, Score: 1})
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.chunks))
	for i, c := range m.chunks {
		out[i] = c.ID
	}
	return out
}

// textExtractor returns the uploaded bytes as text.
type textExtractor struct{ err error }

func (e textExtractor) ExtractText(r io.Reader) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	b, err := io.ReadAll(r)
	return string(b), err
}

// lineSplitter makes one chunk per non-empty line.
type lineSplitter struct{}

func (lineSplitter) Split(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

type recordingBackend struct {
	name    string
	label   string
	answer  string
	err     error
	prompts []string
}

func (b *recordingBackend) Name() string  { return b.name }
func (b *recordingBackend) Label() string { return b.label }
func (b *recordingBackend) Generate(_ context.Context, prompt string) (string, error) {
	b.prompts = append(b.prompts, prompt)
	if b.err != nil {
		return "", b.err
	}
	return b.answer, nil
}

type memHistory struct {
	mu   sync.Mutex
	rows []model.QuestionAnswer
	err  error
}

func (h *memHistory) Create(_ context.Context, qa *model.QuestionAnswer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	qa.ID = uint(len(h.rows) + 1)
	h.rows = append(h.rows, *qa)
	return nil
}

func (h *memHistory) ListByUserSince(_ context.Context, userID uint, since time.Time) ([]model.QuestionAnswer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []model.QuestionAnswer
	for i := len(h.rows) - 1; i >= 0; i-- {
		r := h.rows[i]
		if r.UserID == userID && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

type countingInvalidator struct {
	users []uint
}

func (c *countingInvalidator) Invalidate(_ context.Context, userID uint) error {
	c.users = append(c.users, userID)
	return nil
}
