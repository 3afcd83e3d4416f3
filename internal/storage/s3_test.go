package storage

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers the handful of path-style calls S3Store makes.
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	requests []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	io.Copy(io.Discard, r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	p := strings.Trim(r.URL.Path, "/")
	f.requests = append(f.requests, r.Method+" /"+p)

	parts := strings.SplitN(p, "/", 2)
	bucket := parts[0]

	switch {
	case r.Method == http.MethodHead && len(parts) == 1:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && len(parts) == 1:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeS3) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{buckets: map[string]bool{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewS3Store(ctx, S3Config{
		Region:    "us-east-1",
		Bucket:    "teamblog",
		AccessKey: "test",
		SecretKey: "test",
		Endpoint:  srv.URL,
	}, logger)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "attachments/a.png", strings.NewReader("png"), "image/png"))
	require.NoError(t, s.Delete(ctx, "attachments/a.png"))
	assert.ErrorIs(t, s.Delete(ctx, "../a.png"), ErrInvalidKey)

	assert.Equal(t, []string{
		"HEAD /teamblog",
		"PUT /teamblog",
		"PUT /teamblog/attachments/a.png",
		"DELETE /teamblog/attachments/a.png",
	}, fake.Requests())

	// A second store finds the bucket already there.
	_, err = NewS3Store(ctx, S3Config{Region: "us-east-1", Bucket: "teamblog", AccessKey: "test", SecretKey: "test", Endpoint: srv.URL}, logger)
	require.NoError(t, err)
	assert.Len(t, fake.Requests(), 5)
}
