// Copyright 2025 Joseph Cumines
//
// Audit logger unit tests

package server

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewAuditLogger_Disabled(t *testing.T) {
	logger, err := NewAuditLogger("")
	if err != nil {
		t.Fatalf("NewAuditLogger('') error = %v", err)
	}
	if logger.IsEnabled() {
		t.Error("expected logger to be disabled when no file path provided")
	}
	logger.LogToolCall("tap", nil, "success", "OK", time.Second)
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	var nilLogger *AuditLogger
	if nilLogger.IsEnabled() {
		t.Error("nil logger reports enabled")
	}
	nilLogger.LogToolCall("tap", nil, "success", "OK", 0)
}

func TestNewAuditLogger_InvalidPath(t *testing.T) {
	if _, err := NewAuditLogger(filepath.Join(t.TempDir(), "missing", "audit.log")); err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestAuditLogger_File(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewAuditLogger(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !logger.IsEnabled() {
		t.Fatal("expected logger to be enabled")
	}

	logger.LogToolCall("build_sim", json.RawMessage(`{"scheme":"App"}`), "failure", "Aborted", 1500*time.Millisecond)
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	logger.LogToolCall("ignored", nil, "success", "OK", 0)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1:\n%s", len(lines), content)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	for key, want := range map[string]any{
		"msg":              "tool_invocation",
		"tool":             "build_sim",
		"arguments":        `{"scheme":"App"}`,
		"status":           "failure",
		"code":             "Aborted",
		"duration_seconds": 1.5,
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %v", key, entry[key], want)
		}
	}
	if _, ok := entry["time"]; !ok {
		t.Error("missing time")
	}
}

func TestRedactArguments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", ``, `{}`},
		{"unparseable", `{`, `[unparseable]`},
		{"plain", `{"projectPath":"/p.xcodeproj","scheme":"App"}`, `{"projectPath":"/p.xcodeproj","scheme":"App"}`},
		{"case insensitive substring", `{"API_KEY":"k","githubToken":"t","keyCode":40}`, `{"API_KEY":"[REDACTED]","githubToken":"[REDACTED]","keyCode":40}`},
		{"nested", `{"env":{"CODE_SIGN_PASSWORD":"p","DEVELOPER_DIR":"/x"}}`, `{"env":{"CODE_SIGN_PASSWORD":"[REDACTED]","DEVELOPER_DIR":"/x"}}`},
		{"arrays", `{"items":[{"secret":"s"},"plain"]}`, `{"items":[{"secret":"[REDACTED]"},"plain"]}`},
		{"redacted object", `{"credentials":{"user":"u"}}`, `{"credentials":"[REDACTED]"}`},
		{"non-object", `["a"]`, `["a"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redactArguments(json.RawMessage(tt.in)); got != tt.want {
				t.Errorf("redactArguments(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestAuditLogger_Concurrent(t *testing.T) {
	var buf syncWriter
	logger := newAuditLogger(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.LogToolCall("tap", json.RawMessage(`{"x":1}`), "success", "OK", time.Millisecond)
		}()
	}
	wg.Wait()
	_ = logger.Close()

	if n := strings.Count(buf.String(), "\n"); n != 20 {
		t.Errorf("got %d lines, want 20", n)
	}
}

type syncWriter struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
