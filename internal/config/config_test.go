// Copyright 2025 Joseph Cumines
//
// Configuration unit tests

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadEnv_Defaults(t *testing.T) {
	cfg, err := LoadEnv(map[string]string{})
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if cfg.Transport != TransportStdio {
		t.Errorf("Transport = %s, want stdio", cfg.Transport)
	}
	if cfg.HTTPAddress != ":8080" {
		t.Errorf("HTTPAddress = %s, want :8080", cfg.HTTPAddress)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.HeartbeatInterval)
	}
	if cfg.CORSOrigin != "*" {
		t.Errorf("CORSOrigin = %s, want *", cfg.CORSOrigin)
	}
	if cfg.CommandTimeout != 0 {
		t.Errorf("CommandTimeout = %v, want 0", cfg.CommandTimeout)
	}
	if cfg.LogRetention != 72*time.Hour {
		t.Errorf("LogRetention = %v, want 72h", cfg.LogRetention)
	}
	if cfg.EnabledWorkflows != nil {
		t.Errorf("EnabledWorkflows = %v, want nil", cfg.EnabledWorkflows)
	}
	if cfg.TLSEnabled() {
		t.Error("TLSEnabled() = true, want false")
	}
}

func TestLoadEnv_Environment(t *testing.T) {
	cfg, err := LoadEnv(map[string]string{
		"MCP_TRANSPORT":                    "sse",
		"MCP_HTTP_ADDRESS":                 "127.0.0.1:9000",
		"MCP_API_KEY":                      "secret",
		"MCP_RATE_LIMIT":                   "2.5",
		"MCP_HEARTBEAT_INTERVAL":           "5s",
		"XCODEBUILD_MCP_DEBUG":             "true",
		"XCODEBUILD_MCP_COMMAND_TIMEOUT":   "10m",
		"XCODEBUILD_MCP_LOG_RETENTION":     "1h",
		"XCODEBUILD_MCP_LOG_DIR":           "/var/tmp/logs",
		"AXE_PATH":                         "/opt/axe",
		"XCODEBUILD_MCP_ENABLED_WORKFLOWS": "simulator, ui,,logging",
	})
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if cfg.Transport != TransportHTTP {
		t.Errorf("Transport = %s, want sse", cfg.Transport)
	}
	if cfg.HTTPAddress != "127.0.0.1:9000" {
		t.Errorf("HTTPAddress = %s", cfg.HTTPAddress)
	}
	if cfg.APIKey != "secret" {
		t.Errorf("APIKey = %s", cfg.APIKey)
	}
	if cfg.RateLimit != 2.5 {
		t.Errorf("RateLimit = %g, want 2.5", cfg.RateLimit)
	}
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 5s", cfg.HeartbeatInterval)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	if cfg.CommandTimeout != 10*time.Minute {
		t.Errorf("CommandTimeout = %v, want 10m", cfg.CommandTimeout)
	}
	if cfg.LogRetention != time.Hour {
		t.Errorf("LogRetention = %v, want 1h", cfg.LogRetention)
	}
	if cfg.LogDir != "/var/tmp/logs" || cfg.AxePath != "/opt/axe" {
		t.Errorf("LogDir = %s, AxePath = %s", cfg.LogDir, cfg.AxePath)
	}
	if want := []string{"simulator", "ui", "logging"}; !reflect.DeepEqual(cfg.EnabledWorkflows, want) {
		t.Errorf("EnabledWorkflows = %v, want %v", cfg.EnabledWorkflows, want)
	}
}

func TestLoadEnv_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(`
transport: sse
httpAddress: ":9999"
commandTimeout: 90s
enabledWorkflows: [device, project]
`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadEnv(map[string]string{
		FileEnv:            path,
		"MCP_HTTP_ADDRESS": ":7000",
	})
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if cfg.Transport != TransportHTTP {
		t.Errorf("Transport = %s, want sse (from file)", cfg.Transport)
	}
	if cfg.HTTPAddress != ":7000" {
		t.Errorf("HTTPAddress = %s, want :7000 (env overrides file)", cfg.HTTPAddress)
	}
	if cfg.CommandTimeout != 90*time.Second {
		t.Errorf("CommandTimeout = %v, want 90s", cfg.CommandTimeout)
	}
	if cfg.CORSOrigin != "*" {
		t.Errorf("CORSOrigin = %s, want default *", cfg.CORSOrigin)
	}
	if want := []string{"device", "project"}; !reflect.DeepEqual(cfg.EnabledWorkflows, want) {
		t.Errorf("EnabledWorkflows = %v, want %v", cfg.EnabledWorkflows, want)
	}
}

func TestLoadEnv_FileErrors(t *testing.T) {
	if _, err := LoadEnv(map[string]string{FileEnv: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("expected error for missing config file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("transport: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadEnv(map[string]string{FileEnv: path}); err == nil {
		t.Error("expected error for malformed config file")
	}
}

func TestLoadEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		want    string
	}{
		{"transport", map[string]string{"MCP_TRANSPORT": "websocket"}, "invalid transport type: websocket"},
		{"duration syntax", map[string]string{"XCODEBUILD_MCP_COMMAND_TIMEOUT": "soon"}, "invalid environment"},
		{"negative timeout", map[string]string{"XCODEBUILD_MCP_COMMAND_TIMEOUT": "-1s"}, "command timeout must not be negative"},
		{"negative rate", map[string]string{"MCP_RATE_LIMIT": "-3"}, "rate limit must not be negative"},
		{"tls half", map[string]string{"MCP_TLS_CERT_FILE": "/c.pem"}, "TLS requires both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadEnv(tt.environ)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Transport = "nope"
	cfg.RateLimit = -1
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"invalid transport type", "rate limit"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestTLSEnabled(t *testing.T) {
	cfg := Default()
	cfg.TLSCertFile, cfg.TLSKeyFile = "/c.pem", "/k.pem"
	if !cfg.TLSEnabled() {
		t.Error("TLSEnabled() = false, want true")
	}
}
