package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	})
	handler := backpressureMiddleware(1, slow)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}()
	<-started

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("saturated request expected 503, got %d", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 503 response")
	}

	close(release)
	wg.Wait()
}

func TestBackpressureMiddlewareDisabledWithZeroLimit(t *testing.T) {
	handler := backpressureMiddleware(0, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
}

func TestRequestIDMiddlewarePreservesInboundID(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "client-supplied-id")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if seen != "client-supplied-id" {
		t.Fatalf("request id = %q, want client-supplied-id", seen)
	}
	if res.Header().Get(requestIDHeader) != "client-supplied-id" {
		t.Fatalf("response header = %q", res.Header().Get(requestIDHeader))
	}
}
