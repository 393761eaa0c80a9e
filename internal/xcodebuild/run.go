// Copyright 2025 Joseph Cumines
//
// Build, test and app path flows

package xcodebuild

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"github.com/joeycumines/xcodebuild-mcp/internal/fsys"
	"github.com/joeycumines/xcodebuild-mcp/internal/parse"
	"github.com/joeycumines/xcodebuild-mcp/internal/response"
	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
)

// Runner executes xcodebuild flows.
type Runner struct {
	Executor executor.Executor
	FS       fsys.FS
	Logger   *slog.Logger
}

func (r Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// BuildOptions describe how a build result is reported.
type BuildOptions struct {
	// Action is the terminal xcodebuild action, e.g. build, test or clean.
	Action string
	// Label names the operation in summary lines, e.g. "iOS Device Build".
	Label string
	// NextSteps is appended on success.
	NextSteps string
}

// Build runs xcodebuild. Warning and error lines from stdout become their
// own content blocks. The returned error is only set when the command could
// not be constructed or started; a failed build is an error envelope.
func (r Runner) Build(ctx context.Context, p Params, o BuildOptions) (*response.ToolResult, error) {
	if o.Action == "" {
		o.Action = "build"
	}
	cmd, err := Command(p, o.Action)
	if err != nil {
		return nil, err
	}
	if o.Label != "" {
		cmd.Label = o.Label
	}

	r.logger().Info("running xcodebuild",
		slog.String("label", cmd.Label),
		slog.String("scheme", p.Scheme),
		slog.String("action", o.Action))

	res, err := r.Executor.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var diags []string
	for _, d := range parse.Diagnostics(res.Output) {
		diags = append(diags, d.String())
	}

	if !res.Success {
		blocks := diags
		if strings.TrimSpace(res.Error) != "" {
			blocks = append(blocks, response.StderrLine(res.Error))
		}
		blocks = append(blocks, fmt.Sprintf("❌ %s %s failed for scheme %s.", o.Label, o.Action, p.Scheme))
		return response.Error(blocks...), nil
	}

	blocks := append([]string{fmt.Sprintf("✅ %s %s succeeded for scheme %s.", o.Label, o.Action, p.Scheme)}, diags...)
	if o.NextSteps != "" {
		blocks = append(blocks, o.NextSteps)
	}
	return response.Text(blocks...), nil
}

// Test runs `xcodebuild test` with a result bundle in a fresh temp
// directory, then appends the xcresult summary. A summary that cannot be
// produced leaves the test result unchanged. The temp directory is removed
// in every case.
func (r Runner) Test(ctx context.Context, p Params, label string) (*response.ToolResult, error) {
	dir, err := r.FS.MkdirTemp("", "xcodebuild-test-")
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindSystem, err, "failed to create temp directory")
	}
	defer func() {
		if err := r.FS.RemoveAll(dir); err != nil {
			r.logger().Warn("failed to clean up temp directory", slog.String("dir", dir), slog.Any("error", err))
		}
	}()

	bundle := filepath.Join(dir, "TestResults.xcresult")
	p.ExtraArgs = append(append([]string(nil), p.ExtraArgs...), "-resultBundlePath", bundle)

	result, err := r.Build(ctx, p, BuildOptions{Action: "test", Label: label})
	if err != nil {
		return nil, err
	}

	summary, err := r.summarize(ctx, bundle)
	if err != nil {
		r.logger().Warn("failed to parse xcresult bundle, returning original test result",
			slog.String("bundle", bundle),
			slog.Any("error", err))
		return result, nil
	}
	return result.Append(response.TextContent("\nTest Results Summary:\n" + summary.Format())), nil
}

func (r Runner) summarize(ctx context.Context, bundle string) (*parse.TestSummary, error) {
	if _, err := r.FS.Stat(bundle); err != nil {
		return nil, toolerr.Wrap(toolerr.KindParseFailure, err, "xcresult bundle not found")
	}
	res, err := r.Executor.Execute(ctx, executor.CommandSpec{
		Args:  []string{"xcrun", "xcresulttool", "get", "test-results", "summary", "--path", bundle},
		Label: "Parse xcresult bundle",
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, toolerr.CommandFailuref("xcresulttool failed: %s", strings.TrimSpace(res.Error))
	}
	return parse.ParseTestSummary([]byte(res.Output))
}

// AppPath resolves the built product path from build settings.
func (r Runner) AppPath(ctx context.Context, p Params) (string, error) {
	cmd, err := ShowBuildSettingsCommand(p)
	if err != nil {
		return "", err
	}
	res, err := r.Executor.Execute(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", toolerr.CommandFailuref("Failed to get app path: %s", strings.TrimSpace(res.Error))
	}
	return parse.AppPath(res.Output)
}

// BuildSettings returns the raw build settings output.
func (r Runner) BuildSettings(ctx context.Context, p Params) (string, error) {
	cmd, err := ShowBuildSettingsCommand(p)
	if err != nil {
		return "", err
	}
	cmd.Label = "Show Build Settings"
	res, err := r.Executor.Execute(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", toolerr.CommandFailuref("Failed to get build settings: %s", strings.TrimSpace(res.Error))
	}
	return res.Output, nil
}
