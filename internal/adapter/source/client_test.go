package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/covid-tracker/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/states", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"state":"MN","positive":1}]`))
	}))
	defer srv.Close()

	body, err := NewClient(5*time.Second, discardLogger()).Fetch(context.Background(), srv.URL+"/api/states")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"state":"MN","positive":1}]`, string(body))
}

func TestFetch_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer srv.Close()

	_, err := NewClient(5*time.Second, discardLogger()).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.Status)
	assert.Equal(t, srv.URL, fetchErr.URL)
	assert.Contains(t, fetchErr.Err.Error(), "maintenance")
}

func TestFetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(time.Second, discardLogger()).Fetch(context.Background(), url)

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 0, fetchErr.Status)
	assert.Equal(t, "fetch", domain.ErrorKind(err))
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(50*time.Millisecond, discardLogger()).Fetch(context.Background(), srv.URL)

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
}

func TestFetch_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(time.Second, discardLogger()).Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetch_BadURL(t *testing.T) {
	_, err := NewClient(time.Second, discardLogger()).Fetch(context.Background(), "://nope")

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
}

func TestFetch_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 65))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, discardLogger())
	c.maxBody = 64

	_, err := c.Fetch(context.Background(), srv.URL)
	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr), "got %v", err)
	assert.Equal(t, http.StatusOK, fetchErr.Status)
	assert.Contains(t, fetchErr.Err.Error(), "exceeds 64 bytes")
}

func TestFetch_BodyAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, discardLogger())
	c.maxBody = 64

	body, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, body, 64)
}
