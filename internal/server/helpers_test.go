package server

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"auth-service/pkg/config"
)

// newTestServer creates a server from the given application.yaml content, logging to io.Discard
func newTestServer(t *testing.T, yaml string) *Server {
	t.Helper()
	return New(loadTestConfig(t, yaml), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newTestServerWithLog creates a server that logs at debug level into the returned buffer
func newTestServerWithLog(t *testing.T, yaml string) (*Server, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(loadTestConfig(t, yaml), logger), buf
}

func loadTestConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if yaml != "" {
		if err := os.WriteFile(filepath.Join(dir, "application.yaml"), []byte(yaml), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
	}
	cfg, err := config.LoadDir(dir)
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

// doRequest sends a request without keep-alive so no client goroutines outlive the test
func doRequest(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	transport := &http.Transport{DisableKeepAlives: true}
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: transport}

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	return resp.StatusCode, string(data)
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes of connection goroutines
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
