package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGzipMiddleware(t *testing.T) {
	handler := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Hello World"))
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Error("Expected Content-Encoding: gzip")
	}

	// Verify body is gzipped
	gr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("Failed to create gzip reader: %v", err)
	}
	defer gr.Close()

	body, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("Failed to read gzip body: %v", err)
	}

	if string(body) != "Hello World" {
		t.Errorf("Expected 'Hello World', got '%s'", string(body))
	}
}

func TestGzipMiddleware_ErrorResponse(t *testing.T) {
	// Simulate http.Error behavior: WriteHeader then Write
	handler := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Error("Expected Content-Encoding: gzip even for error responses")
	}
}

func TestGzipMiddleware_ErrorResponse_RealServer(t *testing.T) {
	handler := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	}))

	srv := httptest.NewServer(handler)
	defer srv.Close()

	req, _ := http.NewRequest("GET", srv.URL, nil)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}

	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Error("Expected Content-Encoding: gzip")
	}
}

func TestGzipMiddleware_NoGzipAccept(t *testing.T) {
	handler := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello World"))
	}))

	req := httptest.NewRequest("GET", "/", nil)
	// No Accept-Encoding header
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") == "gzip" {
		t.Error("Expected no Content-Encoding: gzip")
	}

	if w.Body.String() != "Hello World" {
		t.Errorf("Expected 'Hello World', got '%s'", w.Body.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/health", nil))

	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("Expected X-Frame-Options: DENY")
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must only be sent over TLS")
	}
}

func TestLoggingMiddleware_Preflight(t *testing.T) {
	called := false
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("OPTIONS", "/api/v1/traces", nil))

	if called {
		t.Error("preflight reached the handler")
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS origin header")
	}
}

func TestRateLimitIngest(t *testing.T) {
	handler := RateLimitIngest(NewRateLimiter(), 2, time.Minute, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	post := func() int {
		req := httptest.NewRequest("POST", "/api/v1/traces", nil)
		req.RemoteAddr = "10.0.0.5:41000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}
	if post() != http.StatusCreated || post() != http.StatusCreated {
		t.Fatal("requests within the limit were rejected")
	}
	if code := post(); code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", code)
	}

	// Reads are never limited.
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/traces", nil)
	req.RemoteAddr = "10.0.0.5:41000"
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("GET was limited: %d", w.Code)
	}
}

func TestRateLimiterWindowExpires(t *testing.T) {
	rl := NewRateLimiter()
	if ok, _, _ := rl.Allow("k", 1, 20*time.Millisecond); !ok {
		t.Fatal("first request rejected")
	}
	if ok, _, _ := rl.Allow("k", 1, 20*time.Millisecond); ok {
		t.Fatal("second request allowed")
	}
	time.Sleep(30 * time.Millisecond)
	if ok, remaining, _ := rl.Allow("k", 1, 20*time.Millisecond); !ok || remaining != 0 {
		t.Errorf("after window: ok=%v remaining=%d", ok, remaining)
	}
}

func TestRateLimitIngestIgnoresForwardedHeaders(t *testing.T) {
	handler := RateLimitIngest(NewRateLimiter(), 1, time.Minute, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	post := func(forwarded string) int {
		req := httptest.NewRequest("POST", "/api/v1/traces", nil)
		req.RemoteAddr = "10.0.0.5:41000"
		req.Header.Set("X-Forwarded-For", forwarded)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}
	if code := post("1.1.1.1"); code != http.StatusCreated {
		t.Fatalf("first request = %d", code)
	}
	if code := post("2.2.2.2"); code != http.StatusTooManyRequests {
		t.Errorf("changed X-Forwarded-For = %d, want 429", code)
	}
}

func TestRateLimitIngestTrustedProxy(t *testing.T) {
	handler := RateLimitIngest(NewRateLimiter(), 1, time.Minute, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	for _, client := range []string{"1.1.1.1", "2.2.2.2"} {
		req := httptest.NewRequest("POST", "/api/v1/traces", nil)
		req.RemoteAddr = "10.0.0.1:8080"
		req.Header.Set("X-Forwarded-For", client)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Errorf("client %s = %d", client, w.Code)
		}
	}
}

func TestRateLimiterEvictsIdleKeys(t *testing.T) {
	rl := NewRateLimiter()
	window := 20 * time.Millisecond
	for _, key := range []string{"a", "b", "c"} {
		rl.Allow(key, 5, window)
	}
	time.Sleep(30 * time.Millisecond)
	rl.Allow("d", 5, window)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.requests) != 1 {
		t.Errorf("keys after sweep = %d, want 1", len(rl.requests))
	}
	if _, ok := rl.requests["d"]; !ok {
		t.Error("active key evicted")
	}
}
