package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/suPer8Hu/ai-component-studio/internal/config"
	"github.com/suPer8Hu/ai-component-studio/internal/db"
	"github.com/suPer8Hu/ai-component-studio/internal/generator"
	"github.com/suPer8Hu/ai-component-studio/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-component-studio/internal/logger"
	"github.com/suPer8Hu/ai-component-studio/internal/studio"
	"github.com/suPer8Hu/ai-component-studio/internal/store/memcache"
)

type stubGenerator struct {
	mu sync.Mutex
	n  int
}

func (g *stubGenerator) Generate(_ context.Context, prompt string, _ *generator.Source, _ []generator.Turn) generator.Source {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return generator.Source{
		JSX: fmt.Sprintf("export default function V%d(){return <div>%s</div>}", g.n, prompt),
		CSS: ".v{color:red}",
	}
}

type recordingPublisher struct {
	mu   sync.Mutex
	ids  []string
	fail bool
}

func (p *recordingPublisher) PublishTurnJob(_ context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.ids = append(p.ids, jobID)
	return nil
}

type testServer struct {
	r   *gin.Engine
	svc *studio.Service
}

func newTestServer(t *testing.T, jobs handlers.JobPublisher) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.Replace(zap.NewNop())

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.Open("sqlite:file:" + name + "?mode=memory&cache=shared&_pragma=foreign_keys(1)")
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))

	cfg := config.Config{
		JWTSecret:     "test-secret",
		JWTTTL:        time.Hour,
		MaxImageBytes: 1024,
		AIProvider:    "ollama",
	}
	repo := studio.NewRepo(gdb)
	engine := studio.NewEngine(&stubGenerator{}, repo, 10)
	svc := studio.NewService(repo, engine, memcache.NewSummaryCache(16, time.Minute), cfg.MaxImageBytes)

	h := handlers.NewHandler(gdb, cfg, svc, jobs, nil)
	return &testServer{r: NewRouter(h), svc: svc}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(t, req, token)
}

func (s *testServer) send(t *testing.T, req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (s *testServer) register(t *testing.T, email string) string {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/users", "", map[string]string{"email": email, "password": "password123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func (s *testServer) createSession(t *testing.T, token string) string {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/sessions", token, map[string]string{"name": "Pricing card"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out.ID
}

func TestAccounts(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register(t, "Dev@Example.com")

	w, _ := s.do(t, http.MethodPost, "/users", "", map[string]string{"email": "dev@example.com", "password": "password123"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/users", "", map[string]string{"email": "short@example.com", "password": "123"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/login", "", map[string]string{"email": "dev@example.com", "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := s.do(t, http.MethodPost, "/login", "", map[string]string{"email": "dev@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, env.Code)

	w, env = s.do(t, http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), `"email":"dev@example.com"`)

	w, env = s.do(t, http.MethodGet, "/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, 40101, env.Code)

	w, _ = s.do(t, http.MethodGet, "/me", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register(t, "owner@example.com")
	id := s.createSession(t, token)

	// 1) first turn installs a component, second archives it
	w, env := s.do(t, http.MethodPost, "/sessions/"+id+"/messages", token, map[string]string{"content": "a button"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var turn studio.TurnResult
	require.NoError(t, json.Unmarshal(env.Data, &turn))
	require.Equal(t, studio.RoleAssistant, turn.Message.Role)
	require.Contains(t, turn.Component.JSX, "V1")

	w, _ = s.do(t, http.MethodPost, "/sessions/"+id+"/messages", token, map[string]string{"content": "make it blue"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/sessions/"+id+"/messages", token, map[string]string{"content": "  "})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// 2) history lists both versions newest first
	w, env = s.do(t, http.MethodGet, "/sessions/"+id+"/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist []studio.Component
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	require.Len(t, hist, 2)
	require.Contains(t, hist[0].JSX, "V2")

	// 3) revert bounds and success
	w, _ = s.do(t, http.MethodPost, "/sessions/"+id+"/revert/7", token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodPost, "/sessions/"+id+"/revert/x", token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w, env = s.do(t, http.MethodPost, "/sessions/"+id+"/revert/0", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &turn))
	require.Contains(t, turn.Component.JSX, "V1")

	// 4) full session view
	w, env = s.do(t, http.MethodGet, "/sessions/"+id, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sess studio.Session
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	require.Len(t, sess.Messages, 5)
	require.Len(t, sess.History, 2)
	require.Contains(t, sess.Current.JSX, "V1")

	// 5) listing and rename
	w, _ = s.do(t, http.MethodPatch, "/sessions/"+id, token, map[string]string{"name": "Hero"})
	require.Equal(t, http.StatusOK, w.Code)
	w, env = s.do(t, http.MethodGet, "/sessions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []studio.SessionSummary
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	require.Equal(t, "Hero", list[0].Name)
	require.Equal(t, 5, int(list[0].MessageCount))
	require.True(t, list[0].HasComponent)

	// 6) delete
	w, _ = s.do(t, http.MethodDelete, "/sessions/"+id, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodGet, "/sessions/"+id, token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionOwnership(t *testing.T) {
	s := newTestServer(t, nil)
	owner := s.register(t, "a@example.com")
	other := s.register(t, "b@example.com")
	id := s.createSession(t, owner)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/sessions/" + id},
		{http.MethodGet, "/sessions/" + id + "/history"},
		{http.MethodDelete, "/sessions/" + id},
		{http.MethodGet, "/sessions/not-a-ulid"},
	} {
		w, _ := s.do(t, tc.method, tc.path, other, nil)
		require.Equal(t, http.StatusNotFound, w.Code, tc.path)
	}
	w, _ := s.do(t, http.MethodPost, "/sessions/"+id+"/messages", other, map[string]string{"content": "steal"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMultipartImageTurn(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register(t, "img@example.com")
	id := s.createSession(t, token)

	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "shot.png")
	require.NoError(t, err)
	_, _ = fw.Write(png)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/messages", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w, _ := s.send(t, req, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sess, err := s.svc.GetSession(context.Background(), 1, id)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sess.Messages[0].Image, "data:image/png;base64,"))

	// oversized upload
	body.Reset()
	mw = multipart.NewWriter(&body)
	_ = mw.WriteField("content", "x")
	fw, _ = mw.CreateFormFile("image", "big.png")
	_, _ = fw.Write(append(png, make([]byte, 2048)...))
	require.NoError(t, mw.Close())
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/messages", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w, _ = s.send(t, req, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreviewAndExport(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register(t, "pv@example.com")
	id := s.createSession(t, token)

	w, _ := s.do(t, http.MethodGet, "/sessions/"+id+"/preview", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodGet, "/sessions/"+id+"/export", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodPost, "/sessions/"+id+"/messages", token, map[string]string{"content": "card"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/sessions/"+id+"/preview", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "sandbox allow-scripts", w.Header().Get("Content-Security-Policy"))
	require.Contains(t, w.Body.String(), "V1")

	w, _ = s.do(t, http.MethodGet, "/sessions/"+id+"/preview?version=0", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodGet, "/sessions/"+id+"/preview?version=-1", token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/sessions/"+id+"/export", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), `filename="Pricing card.zip"`)
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 4)

	w, env := s.do(t, http.MethodPost, "/sessions/"+id+"/exports", token, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, 50302, env.Code)
}

func TestAsyncTurns(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestServer(t, pub)
	token := s.register(t, "async@example.com")
	id := s.createSession(t, token)

	post := func(key string) (*httptest.ResponseRecorder, envelope) {
		req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/messages/async", strings.NewReader(`{"content":"a table"}`))
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		return s.send(t, req, token)
	}

	w, env := post("k1")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var out struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))

	w, env = post("k1")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Contains(t, string(env.Data), out.JobID)
	require.Equal(t, []string{out.JobID}, pub.ids)

	w, _ = post("")
	require.Equal(t, http.StatusConflict, w.Code)

	w, env = s.do(t, http.MethodGet, "/jobs/"+out.JobID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), `"status":"queued"`)

	other := s.register(t, "spy@example.com")
	w, _ = s.do(t, http.MethodGet, "/jobs/"+out.JobID, other, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, s.svc.ProcessJob(context.Background(), out.JobID))
	w, env = s.do(t, http.MethodGet, "/jobs/"+out.JobID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), `"status":"succeeded"`)
	require.Contains(t, string(env.Data), `"result_message_seq":1`)
}

func TestAsyncPublishFailureFreesSession(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	s := newTestServer(t, pub)
	token := s.register(t, "down@example.com")
	id := s.createSession(t, token)

	w, _ := s.do(t, http.MethodPost, "/sessions/"+id+"/messages/async", token, map[string]string{"content": "x"})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	pub.fail = false
	w, _ = s.do(t, http.MethodPost, "/sessions/"+id+"/messages/async", token, map[string]string{"content": "x"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
}

func TestAsyncDisabled(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register(t, "off@example.com")
	id := s.createSession(t, token)
	w, _ := s.do(t, http.MethodPost, "/sessions/"+id+"/messages/async", token, map[string]string{"content": "x"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPublicRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodGet, "/ping", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, env := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), `"database":true`)
	require.Contains(t, string(env.Data), `"hasAIKey":true`)

	w, env = s.do(t, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, 40400, env.Code)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w, _ = s.send(t, req, "")
	require.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestPreviewLink(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register(t, "frame@example.com")
	id := s.createSession(t, token)
	otherID := s.createSession(t, token)

	w, _ := s.do(t, http.MethodPost, "/sessions/"+id+"/messages", token, map[string]string{"content": "card"})
	require.Equal(t, http.StatusOK, w.Code)

	w, env := s.do(t, http.MethodPost, "/sessions/"+id+"/preview-link", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var link struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &link))
	require.True(t, strings.HasPrefix(link.URL, "/preview/"+id+"?token="))

	// loads without an Authorization header and keeps the sandbox header
	w, _ = s.do(t, http.MethodGet, link.URL, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "sandbox allow-scripts", w.Header().Get("Content-Security-Policy"))
	require.Contains(t, w.Body.String(), "V1")

	linkToken := link.URL[strings.Index(link.URL, "token=")+len("token="):]

	// bound to its session
	w, _ = s.do(t, http.MethodGet, "/preview/"+otherID+"?token="+linkToken, "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(t, http.MethodGet, "/preview/"+id+"?token=garbage", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(t, http.MethodGet, "/preview/"+id, "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// not usable as an API token
	w, _ = s.do(t, http.MethodGet, "/sessions/"+id, linkToken, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// only the owner can mint one
	other := s.register(t, "peek@example.com")
	w, _ = s.do(t, http.MethodPost, "/sessions/"+id+"/preview-link", other, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
