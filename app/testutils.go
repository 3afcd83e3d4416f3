package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sushihentaime/teamblog/internal/blogservice"
	"github.com/sushihentaime/teamblog/internal/common"
	"github.com/sushihentaime/teamblog/internal/notificationservice"
	"github.com/sushihentaime/teamblog/internal/storage"
	"github.com/sushihentaime/teamblog/internal/userservice"
)

type testServer struct {
	*httptest.Server
}

func newTestServer(t *testing.T, h http.Handler) *testServer {
	ts := httptest.NewServer(h)

	t.Cleanup(ts.Close)

	return &testServer{ts}
}

// recordingProducer stands in for the broker and keeps what was published.
type recordingProducer struct {
	mu   sync.Mutex
	keys []common.BindingKey
	msgs [][]byte
}

func (p *recordingProducer) Publish(ctx context.Context, msg []byte, key common.BindingKey, exchange common.Exchange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingProducer) count(key common.BindingKey) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, k := range p.keys {
		if k == key {
			n++
		}
	}
	return n
}

func testConfig(t *testing.T) *Config {
	cfg, err := loadConfig("")
	require.NoError(t, err)

	cfg.Environment = "testing"
	cfg.Limiter.Enabled = false
	cfg.Storage.UploadDir = t.TempDir()
	cfg.Storage.MaxUploadSize = 1 << 20

	return cfg
}

func newTestApplication(t *testing.T) (*application, *sql.DB, *recordingProducer) {
	db := common.TestDB("file://../migrations", t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t)
	producer := &recordingProducer{}

	files, err := storage.NewDiskStore(cfg.Storage.UploadDir)
	require.NoError(t, err)

	userService := userservice.NewUserService(db, producer, common.NewCache(time.Minute, time.Minute))
	unread := notificationservice.NewMemoryUnreadCache(common.NewCache(time.Minute, time.Minute), time.Minute)
	clock := common.TestClock(time.Now(), time.Second)
	ns := notificationservice.NewNotificationService(blogservice.NewBlogModel(db), notificationservice.NewPostgresWatermarks(db), unread, logger, notificationservice.WithClock(clock))

	app := &application{
		config:              cfg,
		logger:              logger,
		db:                  db,
		userService:         userService,
		notificationService: ns,
		blogService: blogservice.NewBlogService(db, logger,
			blogservice.WithClock(clock),
			blogservice.WithNotifier(ns),
			blogservice.WithFileRemover(files),
			blogservice.WithPostEvents(producer, userService),
		),
		files: files,
		done:  make(chan struct{}),
	}
	t.Cleanup(func() { close(app.done) })

	return app, db, producer
}

func readResponse(t *testing.T, res *http.Response) (int, http.Header, envelope) {
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	var env envelope
	err = json.Unmarshal(responseBody, &env)
	require.NoError(t, err, "body: %s", responseBody)

	return res.StatusCode, res.Header, env
}

func (ts *testServer) do(t *testing.T, method, path string, token string, payload any) (int, http.Header, envelope) {
	var body io.Reader
	if payload != nil {
		jsonPayload, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(jsonPayload)
	}

	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(t, err)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	res, err := ts.Client().Do(req)
	require.NoError(t, err)

	return readResponse(t, res)
}

func (ts *testServer) get(t *testing.T, path, token string) (int, http.Header, envelope) {
	return ts.do(t, http.MethodGet, path, token, nil)
}

func (ts *testServer) post(t *testing.T, path, token string, payload any) (int, http.Header, envelope) {
	return ts.do(t, http.MethodPost, path, token, payload)
}

func (ts *testServer) put(t *testing.T, path, token string, payload any) (int, http.Header, envelope) {
	return ts.do(t, http.MethodPut, path, token, payload)
}

func (ts *testServer) delete(t *testing.T, path, token string) (int, http.Header, envelope) {
	return ts.do(t, http.MethodDelete, path, token, nil)
}

// upload posts a multipart form with a single file and the given fields.
func (ts *testServer) upload(t *testing.T, path, token, filename string, content []byte, fields map[string]string) (int, http.Header, envelope) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}

	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := ts.Client().Do(req)
	require.NoError(t, err)

	return readResponse(t, res)
}

type testUser struct {
	ID    string
	Token string
}

// registerUser signs up, activates and logs in a user through the API.
func (ts *testServer) registerUser(t *testing.T, username string) testUser {
	status, _, body := ts.post(t, "/v1/users/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "Test_1234!",
	})
	require.Equal(t, http.StatusCreated, status, body.JSON())

	status, _, body = ts.put(t, "/v1/users/activate", "", map[string]string{"token": body["token"].(string)})
	require.Equal(t, http.StatusOK, status, body.JSON())

	status, _, body = ts.post(t, "/v1/users/login", "", map[string]string{"username": username, "password": "Test_1234!"})
	require.Equal(t, http.StatusOK, status, body.JSON())

	token := body["token"].(map[string]any)
	return testUser{ID: token["user_id"].(string), Token: token["access_token"].(string)}
}

// field walks nested JSON objects, e.g. field(body, "blog", "id").
func field(env map[string]any, path ...string) any {
	var cur any = env
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}
