// Copyright 2025 Joseph Cumines
//
// Audit logging for MCP tool invocations

package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// AuditLogger writes one JSON line per tool invocation: tool name, redacted
// arguments, outcome, status code and duration. The zero value and nil are
// disabled loggers.
type AuditLogger struct {
	logger *slog.Logger
	closer io.Closer
	mu     sync.RWMutex
}

// sensitiveKeys are matched case-insensitively as substrings of argument
// names. Tool arguments are mostly paths and identifiers, but extraArgs and
// env maps can carry signing credentials.
var sensitiveKeys = []string{
	"password",
	"passphrase",
	"secret",
	"token",
	"apikey",
	"api_key",
	"credential",
	"private_key",
	"authorization",
	"cookie",
}

// NewAuditLogger appends to filePath. An empty path returns a disabled
// logger.
func NewAuditLogger(filePath string) (*AuditLogger, error) {
	if filePath == "" {
		return &AuditLogger{}, nil
	}
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	a := newAuditLogger(file)
	a.closer = file
	return a, nil
}

func newAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{
		logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
}

// Close closes the underlying file. Safe to call more than once.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logger = nil
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

// IsEnabled reports whether entries are being written.
func (a *AuditLogger) IsEnabled() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.logger != nil
}

// LogToolCall records one invocation. status is success, failure or error;
// code is the gRPC status code name.
func (a *AuditLogger) LogToolCall(tool string, args json.RawMessage, status, code string, duration time.Duration) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.logger == nil {
		return
	}
	a.logger.Info("tool_invocation",
		slog.String("tool", tool),
		slog.String("arguments", redactArguments(args)),
		slog.String("status", status),
		slog.String("code", code),
		slog.Float64("duration_seconds", duration.Seconds()),
	)
}

func redactArguments(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	var parsed any
	if err := json.Unmarshal(args, &parsed); err != nil {
		return "[unparseable]"
	}
	redacted, err := json.Marshal(redactValue(parsed))
	if err != nil {
		return "[error]"
	}
	return string(redacted)
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func redactValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			if isSensitive(k) {
				x[k] = "[REDACTED]"
			} else {
				x[k] = redactValue(val)
			}
		}
	case []any:
		for i, val := range x {
			x[i] = redactValue(val)
		}
	}
	return v
}
