// Copyright 2025 Joseph Cumines
//
// MCP protocol integration tests over the HTTP/SSE transport. None of the
// calls here reach Xcode, so they pass on any host.

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestMCPInitialize_ProtocolVersion(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s := startHTTPServer(t, ctx)

	for _, tc := range []struct{ requested, want string }{
		{"2025-03-26", "2025-03-26"},
		{"1999-01-01", "2025-06-18"},
	} {
		status, body := s.post(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"`+tc.requested+`","capabilities":{}}}`)
		if status != http.StatusOK {
			t.Fatalf("Initialize returned status %d, body: %s", status, body)
		}
		resp := decodeResponse(t, body)
		if resp.Error != nil {
			t.Fatalf("Initialize returned error: %+v", resp.Error)
		}

		var result struct {
			ProtocolVersion string `json:"protocolVersion"`
			Capabilities    struct {
				Tools map[string]any `json:"tools"`
			} `json:"capabilities"`
			ServerInfo struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"serverInfo"`
		}
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			t.Fatalf("Failed to unmarshal init result: %v", err)
		}
		if result.ProtocolVersion != tc.want {
			t.Errorf("requested %s: protocolVersion = %q, want %q", tc.requested, result.ProtocolVersion, tc.want)
		}
		if result.ServerInfo.Name != "xcodebuild-mcp" {
			t.Errorf("serverInfo.name = %q", result.ServerInfo.Name)
		}
		if result.Capabilities.Tools == nil {
			t.Error("capabilities.tools missing")
		}
	}
}

func TestMCPNotificationsInitialized_HandledSilently(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s := startHTTPServer(t, ctx)

	status, body := s.post(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if status != http.StatusAccepted {
		t.Errorf("status = %d, want 202", status)
	}
	if len(strings.TrimSpace(string(body))) != 0 {
		t.Errorf("notification produced a body: %s", body)
	}
}

func TestMCPToolsList(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s := startHTTPServer(t, ctx)

	_, body := s.post(t, `{"jsonrpc":"2.0","id":"list","method":"tools/list"}`)
	resp := decodeResponse(t, body)
	if string(resp.ID) != `"list"` {
		t.Errorf("id = %s", resp.ID)
	}
	var result struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}

	names := make(map[string]bool)
	for _, tool := range result.Tools {
		names[tool.Name] = true
		if tool.Description == "" || tool.InputSchema["type"] != "object" {
			t.Errorf("tool %s: description %q, schema %v", tool.Name, tool.Description, tool.InputSchema)
		}
	}
	for _, want := range []string{"build_sim", "boot_sim", "list_devices", "build_macos", "discover_projs", "start_sim_log_cap", "tap", "doctor"} {
		if !names[want] {
			t.Errorf("tools/list is missing %s", want)
		}
	}
}

func TestMCPToolsList_WorkflowFilter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s := startHTTPServer(t, ctx, "XCODEBUILD_MCP_ENABLED_WORKFLOWS=logging")

	_, body := s.post(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp := decodeResponse(t, body)
	var result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Tools) == 0 {
		t.Fatal("no tools listed")
	}
	for _, tool := range result.Tools {
		if !strings.Contains(tool.Name, "log") {
			t.Errorf("unexpected tool %s outside the logging workflow", tool.Name)
		}
	}
}

func TestMCPToolsCall(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s := startHTTPServer(t, ctx)

	_, body := s.post(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"list_log_sessions","arguments":{}}}`)
	resp := decodeResponse(t, body)
	if resp.Error != nil {
		t.Fatalf("error = %+v", resp.Error)
	}
	var res toolResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatal(err)
	}
	if res.IsError || len(res.Content) != 1 || res.Content[0].Text != "No active log capture sessions." {
		t.Errorf("result = %+v", res)
	}
}

func TestMCPToolsCall_ValidationError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s := startHTTPServer(t, ctx)

	_, body := s.post(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"boot_sim","arguments":{}}}`)
	resp := decodeResponse(t, body)
	if resp.Error != nil {
		t.Fatalf("validation failures belong in the result envelope, got error %+v", resp.Error)
	}
	var res toolResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatal(err)
	}
	if !res.IsError || len(res.Content) == 0 || !strings.Contains(res.Content[0].Text, "simulatorUuid") {
		t.Errorf("result = %+v", res)
	}

	status, metrics := s.get(t, "/metrics")
	if status != http.StatusOK {
		t.Fatalf("/metrics status = %d", status)
	}
	if want := `xcodebuild_mcp_tool_calls_total{tool="boot_sim",status="error"} 1`; !strings.Contains(string(metrics), want) {
		t.Errorf("metrics missing %s:\n%s", want, metrics)
	}
}

func TestMCPToolsCall_UnknownTool(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s := startHTTPServer(t, ctx)

	_, body := s.post(t, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"nope"}}`)
	resp := decodeResponse(t, body)
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("error = %+v", resp.Error)
	}
	var status struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(resp.Error.Data, &status); err != nil || status.Code != 5 {
		t.Errorf("error data = %s (%v)", resp.Error.Data, err)
	}
}

func TestMCPAuthentication(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s := startHTTPServer(t, ctx, "MCP_API_KEY=integration-secret")

	if status, body := s.post(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`); status != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, body %s", status, body)
	}

	s.apiKey = "integration-secret"
	status, body := s.post(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if status != http.StatusOK {
		t.Fatalf("authenticated status = %d, body %s", status, body)
	}
	if resp := decodeResponse(t, body); string(resp.Result) != "{}" {
		t.Errorf("ping result = %s", resp.Result)
	}
}
