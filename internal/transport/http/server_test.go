package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redisv9 "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	appsvc "gopherai-pdfqa/internal/app"
	"gopherai-pdfqa/internal/ai"
	"gopherai-pdfqa/internal/cache"
	"gopherai-pdfqa/internal/model"
	"gopherai-pdfqa/internal/repository"
	"gopherai-pdfqa/internal/transport/http/handler"
	"gopherai-pdfqa/internal/transport/http/middleware"
	"gopherai-pdfqa/internal/vectorstore"
)

const cookieName = "session_token"

type memUsers struct {
	mu    sync.Mutex
	users []model.User
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return repository.ErrDuplicate
		}
	}
	u.ID = uint(len(m.users) + 1)
	m.users = append(m.users, *u)
	return nil
}

func (m *memUsers) GetByUsername(_ context.Context, name string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == name {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memUsers) GetByID(_ context.Context, id uint) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

type memHistory struct {
	mu   sync.Mutex
	rows []model.QuestionAnswer
}

func (m *memHistory) Record(_ context.Context, qa *model.QuestionAnswer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	qa.ID = uint(len(m.rows) + 1)
	m.rows = append(m.rows, *qa)
	return nil
}

func (m *memHistory) ListByUserSince(_ context.Context, userID uint, since time.Time) ([]model.QuestionAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.QuestionAnswer
	for i := len(m.rows) - 1; i >= 0; i-- {
		if r := m.rows[i]; r.UserID == userID && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

// memStore matches chunks containing any word of the query.
type memStore struct {
	mu     sync.Mutex
	chunks []vectorstore.Chunk
}

func (s *memStore) Existing(_ context.Context, ids []string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]struct{}{}
	for _, id := range ids {
		for _, c := range s.chunks {
			if c.ID == id {
				out[id] = struct{}{}
			}
		}
	}
	return out, nil
}

func (s *memStore) Add(_ context.Context, chunks []vectorstore.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *memStore) Query(_ context.Context, text string, k int) ([]vectorstore.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []vectorstore.Match
	for _, c := range s.chunks {
		for _, word := range strings.Fields(strings.ToLower(text)) {
			if strings.Contains(strings.ToLower(c.Content), word) {
				out = append(out, vectorstore.Match{Chunk: c, Score: 1})
				break
			}
		}
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

type plainExtractor struct{}

func (plainExtractor) ExtractText(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	return string(b), err
}

type lineSplitter struct{}

func (lineSplitter) Split(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

type echoBackend struct {
	name string
	err  error
}

func (b echoBackend) Name() string  { return b.name }
func (b echoBackend) Label() string { return strings.ToUpper(b.name) }
func (b echoBackend) Generate(_ context.Context, prompt string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	return b.name + ": " + strings.SplitN(prompt, "\n", 2)[0], nil
}

type testServer struct {
	engine  *gin.Engine
	store   *memStore
	history *memHistory
}

func newTestServer(t *testing.T, limiter *middleware.IPRateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := &memStore{}
	history := &memHistory{}
	historyCache := cache.NewHistoryCache(rdb, time.Minute, 5*time.Second)
	authService := appsvc.NewAuthService(&memUsers{}, cache.NewTokenBlocklist(rdb), "test-secret", time.Hour)
	ragService := appsvc.NewRAGService(
		plainExtractor{},
		lineSplitter{},
		store,
		ai.NewRegistry(
			echoBackend{name: ai.BackendOpenAI},
			echoBackend{name: ai.BackendLlama, err: errors.New("connection refused")},
		),
		history,
		historyCache,
		appsvc.RAGOptions{},
	)
	historyService := appsvc.NewHistoryService(history, historyCache, time.UTC)

	engine := NewEngine(Handlers{
		Auth:          handler.NewAuthHandler(authService, handler.CookieConfig{Name: cookieName}),
		RAG:           handler.NewRAGHandler(ragService, 1<<10),
		History:       handler.NewHistoryHandler(historyService),
		Health:        handler.NewHealthHandler("pdfqa-test", "test", time.Now(), nil),
		Authenticator: authService,
		CookieName:    cookieName,
		Limiter:       limiter,
		Location:      time.UTC,
	})
	return &testServer{engine: engine, store: store, history: history}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) signup(t *testing.T, username string) *http.Cookie {
	t.Helper()
	form := url.Values{
		"username":  {username},
		"password1": {"correct-horse-1"},
		"password2": {"correct-horse-1"},
	}
	req := httptest.NewRequest(http.MethodPost, "/signup/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := s.do(req)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("signup status = %d, location = %q, body = %s", w.Code, w.Header().Get("Location"), w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("signup did not set a session cookie")
	return nil
}

func askRequest(cookie *http.Cookie, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/get-value/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func uploadRequest(t *testing.T, cookie *http.Cookie, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = part.Write([]byte(content))
	} else {
		_ = mw.WriteField("note", "no file here")
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload-pdf/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func TestAnonymousAccess(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/signin/" {
		t.Fatalf("GET / status = %d, location = %q", w.Code, w.Header().Get("Location"))
	}

	w = s.do(askRequest(nil, `{"msg":"hello"}`))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("POST /get-value/ status = %d, want 401", w.Code)
	}

	w = s.do(uploadRequest(t, nil, "pdf_file", "a.pdf", "text"))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("POST /upload-pdf/ status = %d, want 401", w.Code)
	}
	if len(s.store.chunks) != 0 {
		t.Fatal("anonymous upload reached the store")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(httptest.NewRequest(http.MethodGet, "/upload-pdf/", nil))
	if w.Code != http.StatusMethodNotAllowed || w.Body.String() != "Invalid request method" {
		t.Fatalf("GET /upload-pdf/ = %d %q", w.Code, w.Body.String())
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/get-value/", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /get-value/ status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "Invalid request method, only POST allowed" {
		t.Fatalf("body = %v", body)
	}
}

func TestUploadThenAsk(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := s.signup(t, "alice")

	w := s.do(askRequest(cookie, `{"msg":"gophers"}`))
	if w.Code != http.StatusNotFound {
		t.Fatalf("ask before upload status = %d, want 404", w.Code)
	}
	if len(s.history.rows) != 0 {
		t.Fatal("a failed ask must not record history")
	}

	w = s.do(uploadRequest(t, cookie, "pdf_file", "guide.pdf", "gophers dig tunnels\nrabbits hop"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(s.store.chunks) != 2 || s.store.chunks[0].ID != "guide.pdf_chunk_0" {
		t.Fatalf("indexed chunks = %+v", s.store.chunks)
	}

	w = s.do(uploadRequest(t, cookie, "pdf_file", "guide.pdf", "gophers dig tunnels\nrabbits hop"))
	if w.Code != http.StatusNoContent || len(s.store.chunks) != 2 {
		t.Fatalf("re-upload status = %d, chunks = %d", w.Code, len(s.store.chunks))
	}

	w = s.do(askRequest(cookie, `{"msg":"gophers"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("ask status = %d, body = %s", w.Code, w.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["msg"] != "gophers" || got["res"] != "openai: gophers" || got["model"] != "openai" {
		t.Fatalf("body = %v", got)
	}
	if _, ok := got["degraded"]; ok {
		t.Fatalf("healthy answer marked degraded: %v", got)
	}
	if len(s.history.rows) != 1 || s.history.rows[0].Backend != "openai" {
		t.Fatalf("history rows = %+v", s.history.rows)
	}

	page := httptest.NewRequest(http.MethodGet, "/", nil)
	page.AddCookie(cookie)
	w = s.do(page)
	if w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "alice") || !strings.Contains(w.Body.String(), "gophers") {
		t.Fatalf("index page missing username or question:\n%s", w.Body.String())
	}
}

func TestAskRouting(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := s.signup(t, "bob")
	s.store.chunks = []vectorstore.Chunk{{ID: "seed.pdf_chunk_0", Content: "tunnels"}}

	tests := []struct {
		name     string
		body     string
		wantRes  string
		degraded bool
	}{
		{name: "default model", body: `{"msg":"tunnels"}`, wantRes: "openai: tunnels"},
		{name: "model is case insensitive", body: `{"msg":"tunnels","model":"OpenAI"}`, wantRes: "openai: tunnels"},
		{name: "failing backend", body: `{"msg":"tunnels","model":"llama"}`, wantRes: "LLAMA Error: request failed", degraded: true},
		{name: "unknown model", body: `{"msg":"tunnels","model":"gemini"}`, wantRes: appsvc.UnknownModelAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(askRequest(cookie, tt.body))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			var got struct {
				Res      string `json:"res"`
				Degraded bool   `json:"degraded"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Res != tt.wantRes || got.Degraded != tt.degraded {
				t.Fatalf("got %+v, want res %q degraded %v", got, tt.wantRes, tt.degraded)
			}
		})
	}
	if len(s.history.rows) != len(tests) {
		t.Fatalf("history rows = %d, want %d", len(s.history.rows), len(tests))
	}
}

func TestAskBadRequests(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := s.signup(t, "carol")
	s.store.chunks = []vectorstore.Chunk{{ID: "seed.pdf_chunk_0", Content: "tunnels"}}

	for _, body := range []string{`{"msg":`, `{"msg":"   "}`, `{}`} {
		w := s.do(askRequest(cookie, body))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, w.Code)
		}
	}
	if len(s.history.rows) != 0 {
		t.Fatalf("rejected asks recorded %d rows", len(s.history.rows))
	}
}

func TestUploadErrors(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := s.signup(t, "dave")

	w := s.do(uploadRequest(t, cookie, "", "", ""))
	if w.Code != http.StatusBadRequest || w.Body.String() != "No file received" {
		t.Fatalf("missing file = %d %q", w.Code, w.Body.String())
	}

	w = s.do(uploadRequest(t, cookie, "pdf_file", "big.pdf", strings.Repeat("x", 2<<10)))
	if w.Code != http.StatusBadRequest || w.Body.String() != "File too large" {
		t.Fatalf("oversized file = %d %q", w.Code, w.Body.String())
	}
	if len(s.store.chunks) != 0 {
		t.Fatalf("rejected uploads indexed %d chunks", len(s.store.chunks))
	}
}

func TestSigninAndSignout(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := s.signup(t, "erin")
	s.store.chunks = []vectorstore.Chunk{{ID: "seed.pdf_chunk_0", Content: "tunnels"}}

	form := url.Values{"username": {"erin"}, "password": {"wrong-password"}}
	req := httptest.NewRequest(http.MethodPost, "/signin/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := s.do(req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Invalid Credentials") {
		t.Fatalf("bad signin = %d\n%s", w.Code, w.Body.String())
	}

	page := httptest.NewRequest(http.MethodGet, "/signin/", nil)
	page.AddCookie(cookie)
	if w := s.do(page); w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("signed-in GET /signin/ = %d %q", w.Code, w.Header().Get("Location"))
	}

	out := httptest.NewRequest(http.MethodGet, "/signout/", nil)
	out.AddCookie(cookie)
	w = s.do(out)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/signin/" {
		t.Fatalf("signout = %d %q", w.Code, w.Header().Get("Location"))
	}

	if w := s.do(askRequest(cookie, `{"msg":"tunnels"}`)); w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token ask status = %d, want 401", w.Code)
	}
}

func TestAskRateLimited(t *testing.T) {
	s := newTestServer(t, middleware.NewIPRateLimiter(rate.Limit(0.001), 1))
	cookie := s.signup(t, "frank")
	s.store.chunks = []vectorstore.Chunk{{ID: "seed.pdf_chunk_0", Content: "tunnels"}}

	if w := s.do(askRequest(cookie, `{"msg":"tunnels"}`)); w.Code != http.StatusOK {
		t.Fatalf("first ask status = %d", w.Code)
	}
	if w := s.do(askRequest(cookie, `{"msg":"tunnels"}`)); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second ask status = %d, want 429", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"app":"pdfqa-test"`) {
		t.Fatalf("healthz = %d %s", w.Code, w.Body.String())
	}
}
