// Copyright 2025 Joseph Cumines
//
// Package plugins is the tool catalogue: build, test, install, launch, log
// capture, and UI automation for Apple platforms.
//
// Workflows:
//   - device: physical iOS/watchOS/tvOS/visionOS devices via devicectl
//   - simulator: simulators via simctl
//   - macos: macOS apps
//   - project: project discovery and introspection
//   - logging: background log capture sessions
//   - ui: simulator UI automation via axe
//   - diagnostics: environment checks
package plugins

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"github.com/joeycumines/xcodebuild-mcp/internal/plugin"
	"github.com/joeycumines/xcodebuild-mcp/internal/response"
	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
	"github.com/joeycumines/xcodebuild-mcp/internal/xcodebuild"
)

// Workflow names.
const (
	WorkflowDevice      = "device"
	WorkflowSimulator   = "simulator"
	WorkflowMacOS       = "macos"
	WorkflowProject     = "project"
	WorkflowLogging     = "logging"
	WorkflowUI          = "ui"
	WorkflowDiagnostics = "diagnostics"
)

// Workflows lists every workflow in catalogue order.
var Workflows = []string{
	WorkflowDevice,
	WorkflowSimulator,
	WorkflowMacOS,
	WorkflowProject,
	WorkflowLogging,
	WorkflowUI,
	WorkflowDiagnostics,
}

// All returns the full catalogue.
func All() []*plugin.Plugin {
	var out []*plugin.Plugin
	out = append(out, devicePlugins()...)
	out = append(out, simulatorPlugins()...)
	out = append(out, macosPlugins()...)
	out = append(out, projectPlugins()...)
	out = append(out, loggingPlugins()...)
	out = append(out, uiPlugins()...)
	out = append(out, diagnosticsPlugins()...)
	return out
}

// Enabled returns the catalogue restricted to the named workflows. An empty
// filter enables everything.
func Enabled(workflows []string) ([]*plugin.Plugin, error) {
	if len(workflows) == 0 {
		return All(), nil
	}
	want := make(map[string]bool, len(workflows))
	for _, w := range workflows {
		w = strings.TrimSpace(strings.ToLower(w))
		if w == "" {
			continue
		}
		known := false
		for _, k := range Workflows {
			if k == w {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown workflow %q (valid: %s)", w, strings.Join(Workflows, ", "))
		}
		want[w] = true
	}
	var out []*plugin.Plugin
	for _, p := range All() {
		if want[p.Workflow] {
			out = append(out, p)
		}
	}
	return out, nil
}

// Register adds the enabled plugins to reg.
func Register(reg *plugin.Registry, workflows []string) error {
	ps, err := Enabled(workflows)
	if err != nil {
		return err
	}
	return reg.Register(ps...)
}

// Shared parameter declarations.
var (
	paramProjectPath     = plugin.String("projectPath", "Path to the .xcodeproj file. Provide projectPath or workspacePath, not both.")
	paramWorkspacePath   = plugin.String("workspacePath", "Path to the .xcworkspace file. Provide workspacePath or projectPath, not both.")
	paramScheme          = plugin.String("scheme", "The scheme to use").Req()
	paramConfiguration   = plugin.String("configuration", "Build configuration").WithDefault(xcodebuild.DefaultConfiguration)
	paramDerivedDataPath = plugin.String("derivedDataPath", "Path where build products and other derived data will go")
	paramExtraArgs       = plugin.StringArray("extraArgs", "Additional xcodebuild arguments")
	paramSimulatorID     = plugin.String("simulatorId", "UUID of the simulator (from list_sims). Provide simulatorId or simulatorName, not both.")
	paramSimulatorName   = plugin.String("simulatorName", "Name of the simulator, e.g. 'iPhone 16'. Provide simulatorName or simulatorId, not both.")
	paramUseLatestOS     = plugin.Bool("useLatestOS", "Whether to use the latest OS version for the named simulator")
	paramSimulatorUUID   = plugin.String("simulatorUuid", "UUID of the simulator (from list_sims)").Req()
	paramDeviceID        = plugin.String("deviceId", "UDID of the device (from list_devices)").Req()
	paramBundleID        = plugin.String("bundleId", "Bundle identifier of the app, e.g. 'com.example.MyApp'").Req()
	paramAppPath         = plugin.String("appPath", "Path to the .app bundle").Req()
)

func withProject(params ...plugin.Param) plugin.Params {
	ps := plugin.Params{paramProjectPath, paramWorkspacePath}
	return append(ps, params...)
}

func buildParams(extra ...plugin.Param) plugin.Params {
	ps := withProject(paramScheme)
	ps = append(ps, extra...)
	return append(ps, paramConfiguration, paramDerivedDataPath, paramExtraArgs)
}

// xcodeParams maps the shared arguments. The caller validates the
// project/workspace choice first via requireProject.
func xcodeParams(args plugin.Args, platform xcodebuild.Platform) xcodebuild.Params {
	return xcodebuild.Params{
		ProjectPath:     args.String("projectPath"),
		WorkspacePath:   args.String("workspacePath"),
		Scheme:          args.String("scheme"),
		Configuration:   args.StringOr("configuration", xcodebuild.DefaultConfiguration),
		Platform:        platform,
		SimulatorID:     args.String("simulatorId"),
		SimulatorName:   args.String("simulatorName"),
		UseLatestOS:     args.Bool("useLatestOS"),
		DerivedDataPath: args.String("derivedDataPath"),
		ExtraArgs:       args.Strings("extraArgs"),
	}
}

func requireProject(args plugin.Args) error {
	return args.ExactlyOneOf("projectPath", "workspacePath")
}

func requireSimulator(args plugin.Args) error {
	return args.ExactlyOneOf("simulatorId", "simulatorName")
}

// platformArg resolves an optional platform argument.
func platformArg(args plugin.Args, def xcodebuild.Platform) (xcodebuild.Platform, error) {
	s := args.String("platform")
	if s == "" {
		return def, nil
	}
	return xcodebuild.ParsePlatform(s)
}

func platformNames(filter func(xcodebuild.Platform) bool) []string {
	var out []string
	for _, p := range xcodebuild.Platforms {
		if filter(p) {
			out = append(out, string(p))
		}
	}
	return out
}

// run executes cmd, returning an error only for environment failures.
func run(ctx context.Context, d *plugin.Deps, cmd executor.CommandSpec) (*executor.Result, error) {
	d.Log().Debug("executing command", "label", cmd.Label, "command", cmd.String())
	return d.Executor.Execute(ctx, cmd)
}

func xcrun(label string, args ...string) executor.CommandSpec {
	return executor.CommandSpec{Args: append([]string{"xcrun"}, args...), Label: label}
}

// failure renders a failed command as "<what>: <stderr>".
func failure(res *executor.Result, what string) *response.ToolResult {
	msg := strings.TrimSpace(res.Error)
	if msg == "" {
		msg = strings.TrimSpace(res.Output)
	}
	if msg == "" {
		return response.Error(what)
	}
	return response.Errorf("%s: %s", what, msg)
}

// appPathError keeps parse failures verbatim, since they are addressed to
// the caller.
func appPathError(err error, tool string) *response.ToolResult {
	if toolerr.KindOf(err) == toolerr.KindParseFailure {
		return response.Error(err.Error())
	}
	return response.FromError(err, tool)
}

// formatNumber renders a float without trailing zeros.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// quoteArgs renders a call hint argument list.
func quoteArgs(kv ...string) string {
	var parts []string
	for i := 0; i+1 < len(kv); i += 2 {
		parts = append(parts, fmt.Sprintf("%s: '%s'", kv[i], kv[i+1]))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// projectHint renders the project/workspace argument of a call hint.
func projectHint(args plugin.Args) []string {
	if ws := args.String("workspacePath"); ws != "" {
		return []string{"workspacePath", ws}
	}
	return []string{"projectPath", args.String("projectPath")}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func fileNotFound(path string) *response.ToolResult {
	return response.Errorf("File not found: '%s'. Please check the path and try again.", path)
}
