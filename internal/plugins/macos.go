// Copyright 2025 Joseph Cumines
//
// macOS tools

package plugins

import (
	"context"
	"fmt"
	"strconv"

	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"github.com/joeycumines/xcodebuild-mcp/internal/plugin"
	"github.com/joeycumines/xcodebuild-mcp/internal/response"
	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
	"github.com/joeycumines/xcodebuild-mcp/internal/xcodebuild"
)

var paramArch = plugin.String("arch", "Architecture to build for").OneOf("arm64", "x86_64")

func macosPlugins() []*plugin.Plugin {
	return []*plugin.Plugin{
		{
			Name:        "build_macos",
			Description: "Builds a macOS app. Provide exactly one of projectPath or workspacePath.",
			Workflow:    WorkflowMacOS,
			Params:      buildParams(paramArch),
			Handler:     buildMacOS,
		},
		{
			Name:        "build_run_macos",
			Description: "Builds and launches a macOS app.",
			Workflow:    WorkflowMacOS,
			Params:      buildParams(paramArch),
			Handler:     buildRunMacOS,
		},
		{
			Name:        "test_macos",
			Description: "Runs macOS tests and reports the xcresult summary.",
			Workflow:    WorkflowMacOS,
			Params:      buildParams(paramArch),
			Handler:     testMacOS,
		},
		{
			Name:        "get_macos_app_path",
			Description: "Gets the path of a built macOS app.",
			Workflow:    WorkflowMacOS,
			Params:      withProject(paramScheme, paramConfiguration, paramArch),
			Handler:     getMacOSAppPath,
		},
		{
			Name:        "launch_mac_app",
			Description: "Launches a macOS app.",
			Workflow:    WorkflowMacOS,
			Params: plugin.Params{
				paramAppPath,
				plugin.StringArray("args", "Arguments passed to the app"),
			},
			Handler: launchMacApp,
		},
		{
			Name:        "stop_mac_app",
			Description: "Stops a running macOS app by name or process ID.",
			Workflow:    WorkflowMacOS,
			Params: plugin.Params{
				plugin.String("appName", "Name of the app to stop, e.g. 'Calculator'"),
				plugin.Integer("processId", "Process ID of the app"),
			},
			Handler: stopMacApp,
		},
	}
}

func macParams(args plugin.Args) (xcodebuild.Params, error) {
	if err := requireProject(args); err != nil {
		return xcodebuild.Params{}, err
	}
	p := xcodeParams(args, xcodebuild.PlatformMacOS)
	p.Arch = args.String("arch")
	return p, nil
}

func buildMacOS(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	p, err := macParams(args)
	if err != nil {
		return nil, err
	}
	hint := append(projectHint(args), "scheme", p.Scheme)
	return d.Xcodebuild().Build(ctx, p, xcodebuild.BuildOptions{
		Label: "macOS Build",
		NextSteps: response.NextSteps(
			"Get app path: get_macos_app_path("+quoteArgs(hint...)+")",
			"Get bundle ID: get_mac_bundle_id({ appPath: 'PATH_FROM_STEP_1' })",
			"Launch: launch_mac_app({ appPath: 'PATH_FROM_STEP_1' })",
		),
	})
}

func buildRunMacOS(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	p, err := macParams(args)
	if err != nil {
		return nil, err
	}
	runner := d.Xcodebuild()

	built, err := runner.Build(ctx, p, xcodebuild.BuildOptions{Label: "macOS Build"})
	if err != nil || built.IsError {
		return built, err
	}

	appPath, err := runner.AppPath(ctx, p)
	if err != nil {
		return appPathError(err, "build_run_macos"), nil
	}

	res, err := run(ctx, d, executor.CommandSpec{Args: []string{"open", appPath}, Label: "Launch macOS App"})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return failure(res, "Failed to launch app "+appPath), nil
	}
	return built.Append(response.TextContent("✅ macOS app launched successfully: " + appPath)), nil
}

func testMacOS(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	p, err := macParams(args)
	if err != nil {
		return nil, err
	}
	return d.Xcodebuild().Test(ctx, p, "macOS Test")
}

func getMacOSAppPath(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	p, err := macParams(args)
	if err != nil {
		return nil, err
	}
	appPath, err := d.Xcodebuild().AppPath(ctx, p)
	if err != nil {
		return appPathError(err, "get_macos_app_path"), nil
	}
	return response.Text(
		"✅ App path retrieved successfully: "+appPath,
		response.NextSteps(
			"Get bundle ID: get_mac_bundle_id("+quoteArgs("appPath", appPath)+")",
			"Launch app: launch_mac_app("+quoteArgs("appPath", appPath)+")",
		),
	), nil
}

func launchMacApp(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	appPath := args.String("appPath")
	if _, err := d.FS.Stat(appPath); err != nil {
		return fileNotFound(appPath), nil
	}
	cmd := executor.CommandSpec{Args: []string{"open", appPath}, Label: "Launch macOS App"}
	if extra := args.Strings("args"); len(extra) > 0 {
		cmd.Args = append(append(cmd.Args, "--args"), extra...)
	}
	res, err := run(ctx, d, cmd)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return failure(res, "Failed to launch macOS app"), nil
	}
	return response.Text("✅ macOS app launched successfully: " + appPath), nil
}

func stopMacApp(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	if err := args.RequireOneOf("appName", "processId"); err != nil {
		return nil, err
	}

	var (
		cmd    executor.CommandSpec
		target string
	)
	if pid, ok := args.Int("processId"); ok {
		if pid <= 0 {
			return nil, toolerr.Validationf("processId must be positive, got %d", pid)
		}
		target = "PID " + strconv.Itoa(pid)
		cmd = executor.CommandSpec{Args: []string{"kill", strconv.Itoa(pid)}, Label: "Stop macOS App"}
	} else {
		name := args.String("appName")
		target = name
		cmd = executor.CommandSpec{Args: []string{"pkill", "-f", name}, Label: "Stop macOS App"}
	}

	res, err := run(ctx, d, cmd)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return failure(res, fmt.Sprintf("Failed to stop macOS app (%s)", target)), nil
	}
	return response.Textf("✅ macOS app stopped successfully: %s", target), nil
}
