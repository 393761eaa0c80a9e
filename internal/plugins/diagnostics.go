// Copyright 2025 Joseph Cumines
//
// Environment diagnostics

package plugins

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"github.com/joeycumines/xcodebuild-mcp/internal/plugin"
	"github.com/joeycumines/xcodebuild-mcp/internal/response"
)

// doctorEnv are the environment variables reported by doctor.
var doctorEnv = []string{
	"XCODEBUILD_MCP_CONFIG",
	"XCODEBUILD_MCP_DEBUG",
	"XCODEBUILD_MCP_COMMAND_TIMEOUT",
	"XCODEBUILD_MCP_LOG_DIR",
	"XCODEBUILD_MCP_LOG_RETENTION",
	"XCODEBUILD_MCP_ENABLED_WORKFLOWS",
	"AXE_PATH",
	"MCP_TRANSPORT",
	"DEVELOPER_DIR",
}

func diagnosticsPlugins() []*plugin.Plugin {
	return []*plugin.Plugin{
		{
			Name:        "doctor",
			Description: "Reports information about the development environment and the server.",
			Workflow:    WorkflowDiagnostics,
			Handler:     doctor,
		},
	}
}

func doctor(ctx context.Context, d *plugin.Deps, _ plugin.Args) (*response.ToolResult, error) {
	var b strings.Builder
	b.WriteString("XcodeBuild MCP Doctor\n")
	fmt.Fprintf(&b, "\nServer version: %s\n", orUnknown(d.Version))
	fmt.Fprintf(&b, "Platform: %s/%s (%s)\n", runtime.GOOS, runtime.GOARCH, runtime.Version())

	b.WriteString("\nXcode:\n")
	for _, check := range []struct {
		label string
		args  []string
	}{
		{"xcodebuild", []string{"xcodebuild", "-version"}},
		{"xcode-select", []string{"xcode-select", "-p"}},
		{"xcrun", []string{"xcrun", "--version"}},
	} {
		res, err := run(ctx, d, executor.CommandSpec{Args: check.args, Label: "Doctor: " + check.label})
		switch {
		case err != nil:
			fmt.Fprintf(&b, "- %s: unavailable (%v)\n", check.label, err)
		case !res.Success:
			fmt.Fprintf(&b, "- %s: failed (%s)\n", check.label, strings.TrimSpace(res.Error))
		default:
			fmt.Fprintf(&b, "- %s: %s\n", check.label, strings.ReplaceAll(strings.TrimSpace(res.Output), "\n", "; "))
		}
	}

	b.WriteString("\nUI automation:\n")
	if d.Axe == nil {
		b.WriteString("- axe: not configured\n")
	} else if bin, err := d.Axe.Locate(); err != nil {
		fmt.Fprintf(&b, "- axe: unavailable (%v)\n", err)
	} else {
		fmt.Fprintf(&b, "- axe: %s\n", bin.Path)
	}

	b.WriteString("\nEnvironment:\n")
	for _, k := range doctorEnv {
		v, ok := os.LookupEnv(k)
		if !ok {
			v = "(not set)"
		}
		fmt.Fprintf(&b, "- %s: %s\n", k, v)
	}

	b.WriteString("\nLog capture:\n")
	if d.Sessions == nil {
		b.WriteString("- not configured\n")
	} else {
		fmt.Fprintf(&b, "- active sessions: %d\n", len(d.Sessions.List()))
	}

	b.WriteString("\nTools:\n")
	counts := make(map[string]int)
	for _, p := range All() {
		counts[p.Workflow]++
	}
	for _, w := range Workflows {
		fmt.Fprintf(&b, "- %s: %d\n", w, counts[w])
	}

	return response.Text(strings.TrimRight(b.String(), "\n")), nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
