package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestGreetingForAnyMethodAndPath tests that routing never changes the answer
func TestGreetingForAnyMethodAndPath(t *testing.T) {
	srv := newTestServer(t, "")
	handler := srv.httpServer.Handler

	tests := []struct {
		method string
		target string
		body   string
	}{
		{http.MethodGet, "/", ""},
		{http.MethodPost, "/login", `{"user":"alice","password":"secret"}`},
		{http.MethodPut, "/users/42", "payload"},
		{http.MethodDelete, "/session", ""},
		{http.MethodPatch, "/token?refresh=1", "x"},
		{http.MethodOptions, "/", ""},
		{"BREW", "/coffee", ""},
		{http.MethodGet, "/a/../b", ""},
		{http.MethodGet, "//double//slash", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
			}
			if got := w.Body.String(); got != Greeting {
				t.Errorf("Expected body %q, got %q", Greeting, got)
			}
		})
	}
}

// TestGreetingIgnoresHeadersAndBody tests that request content does not leak into the response
func TestGreetingIgnoresHeadersAndBody(t *testing.T) {
	srv := newTestServer(t, "")
	handler := srv.httpServer.Handler

	plain := httptest.NewRecorder()
	handler.ServeHTTP(plain, httptest.NewRequest(http.MethodPost, "/login", nil))

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(strings.Repeat("z", 1<<16)))
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", "session=1")
	decorated := httptest.NewRecorder()
	handler.ServeHTTP(decorated, req)

	if plain.Code != decorated.Code {
		t.Errorf("Status differs: %d vs %d", plain.Code, decorated.Code)
	}
	if plain.Body.String() != decorated.Body.String() {
		t.Errorf("Body differs: %q vs %q", plain.Body.String(), decorated.Body.String())
	}
	if plain.Header().Get("Content-Type") != decorated.Header().Get("Content-Type") {
		t.Errorf("Content-Type differs: %q vs %q",
			plain.Header().Get("Content-Type"), decorated.Header().Get("Content-Type"))
	}
}

// TestGreetingIsRepeatable tests that consecutive requests get the same response
func TestGreetingIsRepeatable(t *testing.T) {
	srv := newTestServer(t, "")
	handler := srv.httpServer.Handler

	var bodies []string
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Request %d: expected status %d, got %d", i, http.StatusOK, w.Code)
		}
		bodies = append(bodies, w.Body.String())
	}

	if bodies[0] != bodies[1] {
		t.Errorf("Responses differ: %q vs %q", bodies[0], bodies[1])
	}
}

// TestAccessLogAtDebugLevel tests the access log line carries a request id and status
func TestAccessLogAtDebugLevel(t *testing.T) {
	srv, logs := newTestServerWithLog(t, "")

	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))

	out := logs.String()
	for _, want := range []string{`msg="Request served"`, "requestID=", "method=POST", "path=/login", "status=200", "bytes=24"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected access log to contain %q, got %q", want, out)
		}
	}
	if w.Body.String() != Greeting {
		t.Errorf("Expected body %q, got %q", Greeting, w.Body.String())
	}
}

// TestAccessLogSilentAtInfoLevel tests that nothing is logged per request by default
func TestAccessLogSilentAtInfoLevel(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	srv := New(loadTestConfig(t, ""), logger)

	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Contains(logs.String(), "Request served") {
		t.Errorf("Expected no access log at info level, got %q", logs.String())
	}
}
