// Copyright 2025 Joseph Cumines
//
// Configuration package for the xcodebuild MCP server

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// TransportType represents the MCP transport type
type TransportType string

const (
	// TransportStdio uses stdin/stdout for communication
	TransportStdio TransportType = "stdio"
	// TransportHTTP uses HTTP/SSE for communication
	TransportHTTP TransportType = "sse"
)

// FileEnv names the environment variable holding an optional YAML config file.
const FileEnv = "XCODEBUILD_MCP_CONFIG"

// Config holds the server configuration. Values are layered: defaults, then
// the YAML file named by XCODEBUILD_MCP_CONFIG, then environment variables.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Config struct {
	Transport         TransportType `yaml:"transport" env:"MCP_TRANSPORT"`
	HTTPAddress       string        `yaml:"httpAddress" env:"MCP_HTTP_ADDRESS"`
	HTTPSocketPath    string        `yaml:"httpSocket" env:"MCP_HTTP_SOCKET"`
	CORSOrigin        string        `yaml:"corsOrigin" env:"MCP_CORS_ORIGIN"`
	TLSCertFile       string        `yaml:"tlsCertFile" env:"MCP_TLS_CERT_FILE"`
	TLSKeyFile        string        `yaml:"tlsKeyFile" env:"MCP_TLS_KEY_FILE"`
	APIKey            string        `yaml:"apiKey" env:"MCP_API_KEY"`
	RateLimit         float64       `yaml:"rateLimit" env:"MCP_RATE_LIMIT"`
	AuditLogFile      string        `yaml:"auditLogFile" env:"MCP_AUDIT_LOG_FILE"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval" env:"MCP_HEARTBEAT_INTERVAL"`
	HTTPReadTimeout   time.Duration `yaml:"httpReadTimeout" env:"MCP_HTTP_READ_TIMEOUT"`
	HTTPWriteTimeout  time.Duration `yaml:"httpWriteTimeout" env:"MCP_HTTP_WRITE_TIMEOUT"`

	Debug bool `yaml:"debug" env:"XCODEBUILD_MCP_DEBUG"`
	// CommandTimeout bounds each external command. Zero disables the bound.
	CommandTimeout time.Duration `yaml:"commandTimeout" env:"XCODEBUILD_MCP_COMMAND_TIMEOUT"`
	// LogRetention is how long stale capture logs are kept.
	LogRetention time.Duration `yaml:"logRetention" env:"XCODEBUILD_MCP_LOG_RETENTION"`
	// LogDir receives capture logs. Empty means the OS temp dir.
	LogDir           string   `yaml:"logDir" env:"XCODEBUILD_MCP_LOG_DIR"`
	AxePath          string   `yaml:"axePath" env:"AXE_PATH"`
	EnabledWorkflows []string `yaml:"enabledWorkflows" env:"XCODEBUILD_MCP_ENABLED_WORKFLOWS" envSeparator:","`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Transport:         TransportStdio,
		HTTPAddress:       ":8080",
		CORSOrigin:        "*",
		HeartbeatInterval: 30 * time.Second,
		HTTPReadTimeout:   30 * time.Second,
		LogRetention:      72 * time.Hour,
	}
}

// Load loads the configuration from the process environment.
func Load() (*Config, error) {
	return LoadEnv(env.ToMap(os.Environ()))
}

// LoadEnv loads the configuration from the given environment.
func LoadEnv(environ map[string]string) (*Config, error) {
	cfg := Default()

	if path := environ[FileEnv]; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	cfg.EnabledWorkflows = cleanList(cfg.EnabledWorkflows)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error
	if c.Transport != TransportStdio && c.Transport != TransportHTTP {
		errs = append(errs, fmt.Errorf("invalid transport type: %s (must be 'stdio' or 'sse')", c.Transport))
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"heartbeat interval", c.HeartbeatInterval},
		{"HTTP read timeout", c.HTTPReadTimeout},
		{"HTTP write timeout", c.HTTPWriteTimeout},
		{"command timeout", c.CommandTimeout},
		{"log retention", c.LogRetention},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative: %s", d.name, d.value))
		}
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative: %g", c.RateLimit))
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, errors.New("TLS requires both a certificate and a key file"))
	}
	return errors.Join(errs...)
}

// TLSEnabled reports whether the HTTP transport should serve TLS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
