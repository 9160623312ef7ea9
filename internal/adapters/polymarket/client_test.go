package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybridge/internal/adapters/polymarket"
)

func TestServerTime_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("1756000000"))
	}))
	defer srv.Close()

	c := polymarket.NewClient(srv.URL, "")
	ts, err := c.ServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1756000000), ts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestServerTime_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("1756000000"))
	}))
	defer srv.Close()

	c := polymarket.NewClient(srv.URL, "")
	ts, err := c.ServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1756000000), ts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestServerTime_ClientErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	defer srv.Close()

	c := polymarket.NewClient(srv.URL, "")
	_, err := c.ServerTime(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client error 418")
	assert.Equal(t, int32(1), calls.Load(), "4xx is not retried")
}
