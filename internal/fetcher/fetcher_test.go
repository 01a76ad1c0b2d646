package fetcher

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.RetryDelay = time.Millisecond
	opts.Timeout = 2 * time.Second
	return opts
}

func TestFetchPlain(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><title>ok</title></html>"))
	}))
	defer srv.Close()

	f := New(testOptions(), nil)
	text, meta, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "<html><title>ok</title></html>", text)
	assert.Equal(t, http.StatusOK, meta.StatusCode)
	assert.Equal(t, srv.URL, meta.FinalURL)
	assert.Contains(t, DefaultUserAgents(), gotHeaders.Get("User-Agent"))
	assert.Equal(t, "gzip, deflate", gotHeaders.Get("Accept-Encoding"))
	assert.Equal(t, "no-cache", gotHeaders.Get("Pragma"))
}

func TestFetchDecompresses(t *testing.T) {
	page := "<html><body>compressed page</body></html>"

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write([]byte(page))
	gw.Close()

	var zl bytes.Buffer
	zw := zlib.NewWriter(&zl)
	zw.Write([]byte(page))
	zw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{"gzip", "gzip", gz.Bytes()},
		{"deflate", "deflate", zl.Bytes()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", tt.encoding)
				w.Header().Set("Content-Type", "text/html")
				w.Write(tt.body)
			}))
			defer srv.Close()

			text, meta, err := New(testOptions(), nil).Fetch(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.Equal(t, page, text)
			assert.Equal(t, tt.encoding, meta.ContentEncoding)
		})
	}
}

func TestFetchBrokenEncodingFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Write([]byte("<p>plain after all</p>"))
	}))
	defer srv.Close()

	text, _, err := New(testOptions(), nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>plain after all</p>", text)
}

func TestFetchCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("caf\xe9"))
	}))
	defer srv.Close()

	text, _, err := New(testOptions(), nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "café", text)
}

func TestFetchRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("third time"))
	}))
	defer srv.Close()

	text, _, err := New(testOptions(), nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "third time", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchExhaustsAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, meta, err := New(testOptions(), nil).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Nil(t, meta)
	assert.ErrorIs(t, err, ErrAttemptsFailed)
	assert.Equal(t, int32(DefaultMaxAttempts), atomic.LoadInt32(&calls))
}

func TestFetchContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := testOptions()
	opts.RetryDelay = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := New(opts, nil).Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
