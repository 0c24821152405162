package limit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCeiling = 1 << 20 // 1 MiB keeps test payloads small

func TestCheckSizeHeadDeclaresOversize(t *testing.T) {
	var gets atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.Header().Set("Content-Length", fmt.Sprint(testCeiling+1))
		case http.MethodGet:
			gets.Add(1)
		}
	}))
	defer srv.Close()

	p := NewProber(srv.Client(), testCeiling)
	err := p.CheckSize(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Zero(t, gets.Load(), "oversize HEAD must not trigger a download")
}

func TestCheckSizeHeadDeclaresWithinBounds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "512")
		}
	}))
	defer srv.Close()

	p := NewProber(srv.Client(), testCeiling)
	require.NoError(t, p.CheckSize(context.Background(), srv.URL))
}

func TestCheckSizeFallsBackToStreamingCount(t *testing.T) {
	big := strings.Repeat("x", testCeiling+1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		// Flush in pieces so no Content-Length is ever declared.
		fl := w.(http.Flusher)
		for i := 0; i < len(big); i += 64 * 1024 {
			end := i + 64*1024
			if end > len(big) {
				end = len(big)
			}
			if _, err := w.Write([]byte(big[i:end])); err != nil {
				return
			}
			fl.Flush()
		}
	}))
	defer srv.Close()

	p := NewProber(srv.Client(), testCeiling)
	err := p.CheckSize(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestCheckSizeStreamWithinBounds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		fl := w.(http.Flusher)
		_, _ = w.Write([]byte(strings.Repeat("x", 1024)))
		fl.Flush()
	}))
	defer srv.Close()

	p := NewProber(srv.Client(), testCeiling)
	require.NoError(t, p.CheckSize(context.Background(), srv.URL))
}

func TestCheckSizeNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	p := NewProber(http.DefaultClient, testCeiling)
	err := p.CheckSize(context.Background(), srv.URL)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTooLarge)
}
