// Copyright 2025 Joseph Cumines
//
// MCP server implementation

// Package server answers MCP JSON-RPC requests by dispatching tool calls to
// the plugin registry.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"slices"
	"time"

	"github.com/joeycumines/xcodebuild-mcp/internal/axe"
	"github.com/joeycumines/xcodebuild-mcp/internal/config"
	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"github.com/joeycumines/xcodebuild-mcp/internal/fsys"
	"github.com/joeycumines/xcodebuild-mcp/internal/logcap"
	"github.com/joeycumines/xcodebuild-mcp/internal/plugin"
	"github.com/joeycumines/xcodebuild-mcp/internal/plugins"
	"github.com/joeycumines/xcodebuild-mcp/internal/response"
	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
	"github.com/joeycumines/xcodebuild-mcp/internal/transport"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/encoding/protojson"
)

// ServerName is reported in the initialize handshake.
const ServerName = "xcodebuild-mcp"

// protocolVersions lists the MCP revisions understood, newest first.
var protocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

// Options customise NewMCPServer. Zero values are replaced with production
// defaults.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Options struct {
	Version string
	Logger  *slog.Logger
	Metrics *transport.MetricsRegistry
	// Deps replaces the host collaborators (executor, file system, log
	// sessions); tests use it to avoid running real commands.
	Deps *plugin.Deps
	// Audit replaces the logger opened from the config.
	Audit *AuditLogger
}

// MCPServer represents an MCP server
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type MCPServer struct {
	registry *plugin.Registry
	deps     *plugin.Deps
	metrics  *transport.MetricsRegistry
	audit    *AuditLogger
	version  string
}

// NewMCPServer wires the configuration into plugin dependencies and
// registers the enabled workflows.
func NewMCPServer(cfg *config.Config, opts Options) (*MCPServer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = transport.NewMetricsRegistry()
	}

	deps := opts.Deps
	if deps == nil {
		deps = hostDeps(cfg, logger, metrics)
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	if deps.Version == "" {
		deps.Version = opts.Version
	}

	audit := opts.Audit
	if audit == nil {
		var err error
		if audit, err = NewAuditLogger(cfg.AuditLogFile); err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	s := &MCPServer{
		registry: plugin.NewRegistry(),
		deps:     deps,
		metrics:  metrics,
		audit:    audit,
		version:  opts.Version,
	}
	s.registry.Observer = s.observe

	if err := plugins.Register(s.registry, cfg.EnabledWorkflows); err != nil {
		_ = audit.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// hostDeps builds collaborators that run real commands on this machine.
// Every command execution is counted in metrics.
func hostDeps(cfg *config.Config, logger *slog.Logger, metrics *transport.MetricsRegistry) *plugin.Deps {
	runner := executor.Observe(
		&executor.OS{Logger: logger, Timeout: cfg.CommandTimeout},
		func(cmd executor.CommandSpec, res *executor.Result, err error, elapsed time.Duration) {
			if len(cmd.Args) > 0 {
				metrics.RecordCommand(cmd.Args[0], executor.Status(res, err), elapsed)
			}
		},
	)
	fs := fsys.OS{}
	spawner := executor.OSSpawner{}

	sessions := logcap.NewManager(spawner, fs, logger)
	sessions.Dir = cfg.LogDir
	if cfg.LogRetention > 0 {
		sessions.Retention = cfg.LogRetention
	}
	sessions.OnChange = metrics.SetLogSessions

	return &plugin.Deps{
		Executor: runner,
		Spawner:  spawner,
		FS:       fs,
		Sessions: sessions,
		Axe:      axe.NewLocator(cfg.AxePath),
		UI:       axe.NewTracker(),
		Logger:   logger,
	}
}

// Registry returns the tool registry.
func (s *MCPServer) Registry() *plugin.Registry { return s.registry }

// Deps returns the collaborators handed to tools.
func (s *MCPServer) Deps() *plugin.Deps { return s.deps }

// Metrics returns the registry tool calls are recorded in.
func (s *MCPServer) Metrics() *transport.MetricsRegistry { return s.metrics }

// Serve runs the server over tr until the peer disconnects or ctx is done.
func (s *MCPServer) Serve(ctx context.Context, tr transport.Transport) error {
	log.Printf("MCP server starting with %d tools", s.registry.Len())
	err := tr.Serve(ctx, s.Handle)
	log.Println("MCP server stopped")
	return err
}

// Shutdown stops every active log capture and closes the audit log.
func (s *MCPServer) Shutdown(ctx context.Context) error {
	var errs []error
	if s.deps.Sessions != nil {
		if err := s.deps.Sessions.StopAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop log sessions: %w", err))
		}
	}
	if err := s.audit.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close audit log: %w", err))
	}
	return errors.Join(errs...)
}

// CallTool invokes a tool directly, outside of JSON-RPC.
func (s *MCPServer) CallTool(ctx context.Context, name string, args json.RawMessage) (*response.ToolResult, error) {
	res, err := s.registry.Invoke(ctx, name, args, s.deps)
	if errors.Is(err, plugin.ErrUnknownTool) {
		s.audit.LogToolCall(name, args, "error", codes.NotFound.String(), 0)
		s.metrics.RecordToolCall(name, "error", 0)
	}
	return res, err
}

// observe feeds every registered tool invocation to metrics and audit.
func (s *MCPServer) observe(name string, args json.RawMessage, res *response.ToolResult, cause error, elapsed time.Duration) {
	status, code := "success", codes.OK
	switch {
	case cause != nil:
		status, code = "error", toolerr.KindOf(cause).Code()
	case res.IsError:
		status, code = "failure", toolerr.KindCommandFailure.Code()
	}
	s.metrics.RecordToolCall(name, status, elapsed)
	s.audit.LogToolCall(name, args, status, code.String(), elapsed)
}

// Handle answers one JSON-RPC message. It is a transport.Handler.
func (s *MCPServer) Handle(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	if msg.JSONRPC != transport.Version || (msg.Method == "" && msg.Result == nil && msg.Error == nil) {
		if len(msg.ID) == 0 {
			return nil, nil
		}
		return transport.NewError(msg.ID, transport.ErrCodeInvalidRequest, "Invalid Request"), nil
	}

	// Responses need no reply, since the server issues no requests, and
	// neither do notifications such as notifications/initialized.
	if msg.Method == "" || msg.IsNotification() {
		return nil, nil
	}

	var (
		result any
		rpcErr *transport.Message
	)
	switch msg.Method {
	case "initialize":
		result = s.initialize(msg.Params)
	case "ping":
		result = struct{}{}
	case "tools/list":
		result = s.listTools()
	case "tools/call":
		result, rpcErr = s.callTool(ctx, msg)
	default:
		rpcErr = transport.NewError(msg.ID, transport.ErrCodeMethodNotFound, "Method not found: "+msg.Method)
	}
	if rpcErr != nil {
		return rpcErr, nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s result: %w", msg.Method, err)
	}
	return &transport.Message{JSONRPC: transport.Version, ID: msg.ID, Result: data}, nil
}

func (s *MCPServer) initialize(params json.RawMessage) any {
	var req struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	_ = json.Unmarshal(params, &req)
	version := protocolVersions[0]
	if slices.Contains(protocolVersions, req.ProtocolVersion) {
		version = req.ProtocolVersion
	}
	return map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": s.version,
		},
	}
}

type toolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func (s *MCPServer) listTools() any {
	list := s.registry.List()
	tools := make([]toolInfo, 0, len(list))
	for _, p := range list {
		tools = append(tools, toolInfo{
			Name:        p.Name,
			Description: p.Description,
			InputSchema: p.Params.Schema(),
		})
	}
	return map[string]any{"tools": tools}
}

func (s *MCPServer) callTool(ctx context.Context, msg *transport.Message) (any, *transport.Message) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, transport.NewError(msg.ID, transport.ErrCodeInvalidParams, fmt.Sprintf("Invalid params: %v", err))
	}
	if params.Name == "" {
		return nil, transport.NewError(msg.ID, transport.ErrCodeInvalidParams, "Invalid params: missing tool name")
	}

	res, err := s.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		rpcErr := transport.NewError(msg.ID, transport.ErrCodeMethodNotFound, "Tool not found: "+params.Name)
		if data, merr := protojson.Marshal(toolerr.Proto(toolerr.NotFound("Tool", params.Name))); merr == nil {
			rpcErr.Error.Data = data
		}
		return nil, rpcErr
	}
	return res, nil
}
