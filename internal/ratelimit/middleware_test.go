package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pricing/summary", nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewStore(client, "pricing:ratelimit")
	require.NoError(t, err)
	counted := Handler{Limiter: NewLimiter(store, 1)}.Middleware(okHandler)

	rr1 := serve(counted, "10.0.0.1:1234")
	require.Equal(t, http.StatusOK, rr1.Code)
	require.Equal(t, "0", rr1.Header().Get("X-RateLimit-Remaining"))

	rr2 := serve(counted, "10.0.0.1:1234")
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.Equal(t, "1", rr2.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, rr2.Header().Get("Retry-After"))

	rr3 := serve(counted, "10.0.0.2:1234")
	require.Equal(t, http.StatusOK, rr3.Code)
}

func TestHandlerMiddlewareMemoryStore(t *testing.T) {
	store, err := NewStore(nil, "test")
	require.NoError(t, err)
	counted := Handler{
		Limiter: NewLimiter(store, 2),
		Key:     func(*http.Request) string { return "static" },
	}.Middleware(okHandler)

	require.Equal(t, http.StatusOK, serve(counted, "10.0.0.1:1").Code)
	require.Equal(t, http.StatusOK, serve(counted, "10.0.0.2:1").Code)
	require.Equal(t, http.StatusTooManyRequests, serve(counted, "10.0.0.3:1").Code)
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewStore(client, "pricing:ratelimit")
	require.NoError(t, err)
	mr.Close()

	var reported error
	counted := Handler{
		Limiter: NewLimiter(store, 1),
		OnError: func(err error) { reported = err },
	}.Middleware(okHandler)

	rr := serve(counted, "10.0.0.1:1234")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Error(t, reported)
}

func TestHandlerMiddlewareDisabled(t *testing.T) {
	store, err := NewStore(nil, "test")
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, serve(Handler{}.Middleware(okHandler), "10.0.0.1:1").Code)
	require.Equal(t, http.StatusOK, serve(Handler{Limiter: NewLimiter(store, 0)}.Middleware(okHandler), "10.0.0.1:1").Code)
}
