// Copyright 2025 Joseph Cumines
//
// Project discovery and introspection tools

package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"github.com/joeycumines/xcodebuild-mcp/internal/parse"
	"github.com/joeycumines/xcodebuild-mcp/internal/plugin"
	"github.com/joeycumines/xcodebuild-mcp/internal/response"
	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
	"github.com/joeycumines/xcodebuild-mcp/internal/xcodebuild"
)

const defaultMaxDepth = 5

// skipDirs are never descended into during discovery.
var skipDirs = map[string]bool{
	"build":        true,
	"DerivedData":  true,
	"Pods":         true,
	"node_modules": true,
	"Carthage":     true,
}

func projectPlugins() []*plugin.Plugin {
	return []*plugin.Plugin{
		{
			Name:        "discover_projs",
			Description: "Scans a directory for .xcodeproj and .xcworkspace files.",
			Workflow:    WorkflowProject,
			Params: plugin.Params{
				plugin.String("workspaceRoot", "The absolute path of the workspace root to scan within").Req(),
				plugin.String("scanPath", "Optional path relative to workspaceRoot to scan"),
				plugin.Integer("maxDepth", "Maximum directory depth to scan").WithDefault(defaultMaxDepth),
			},
			Handler: discoverProjects,
		},
		{
			Name:        "list_schemes",
			Description: "Lists the schemes of a project or workspace.",
			Workflow:    WorkflowProject,
			Params:      withProject(),
			Handler:     listSchemes,
		},
		{
			Name:        "show_build_settings",
			Description: "Shows the build settings of a scheme.",
			Workflow:    WorkflowProject,
			Params:      withProject(paramScheme),
			Handler:     showBuildSettings,
		},
		{
			Name:        "clean",
			Description: "Cleans build products. A scheme is required for workspaces.",
			Workflow:    WorkflowProject,
			Params: withProject(
				plugin.String("scheme", "The scheme to clean"),
				paramConfiguration,
				paramDerivedDataPath,
				paramExtraArgs,
			),
			Handler: clean,
		},
		{
			Name:        "get_app_bundle_id",
			Description: "Extracts the bundle identifier of an iOS, watchOS, tvOS or visionOS app bundle.",
			Workflow:    WorkflowProject,
			Params:      plugin.Params{paramAppPath},
			Handler:     getAppBundleID,
		},
		{
			Name:        "get_mac_bundle_id",
			Description: "Extracts the bundle identifier of a macOS app bundle.",
			Workflow:    WorkflowProject,
			Params:      plugin.Params{paramAppPath},
			Handler:     getMacBundleID,
		},
	}
}

type discovery struct {
	projects   []string
	workspaces []string
}

func discoverProjects(_ context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	root := filepath.Clean(args.String("workspaceRoot"))
	scan := root
	if rel := args.String("scanPath"); rel != "" {
		scan = filepath.Clean(filepath.Join(root, rel))
		if scan != root && !strings.HasPrefix(scan, root+string(filepath.Separator)) {
			return nil, toolerr.Validationf("scanPath must be within workspaceRoot: %s", rel)
		}
	}
	maxDepth := defaultMaxDepth
	if n, ok := args.Int("maxDepth"); ok {
		maxDepth = n
	}

	info, err := d.FS.Stat(scan)
	if err != nil {
		return response.Errorf("Failed to access scan path: %s. Error: %v", scan, err), nil
	}
	if !info.IsDir() {
		return response.Errorf("Scan path is not a directory: %s", scan), nil
	}

	var found discovery
	walkProjects(d, scan, 0, maxDepth, &found)
	sort.Strings(found.projects)
	sort.Strings(found.workspaces)

	blocks := []string{fmt.Sprintf("Discovery finished. Found %d projects and %d workspaces.",
		len(found.projects), len(found.workspaces))}
	if len(found.projects) > 0 {
		blocks = append(blocks, "Projects found:\n - "+strings.Join(found.projects, "\n - "))
	}
	if len(found.workspaces) > 0 {
		blocks = append(blocks, "Workspaces found:\n - "+strings.Join(found.workspaces, "\n - "))
	}
	return response.Text(blocks...), nil
}

// walkProjects records project and workspace bundles under dir. Bundles are
// not descended into, so workspaces embedded in projects are skipped.
func walkProjects(d *plugin.Deps, dir string, depth, maxDepth int, found *discovery) {
	if depth > maxDepth {
		return
	}
	entries, err := d.FS.ReadDir(dir)
	if err != nil {
		d.Log().Debug("skipping unreadable directory", "dir", dir, "error", err)
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || skipDirs[name] {
			continue
		}
		full := filepath.Join(dir, name)
		switch filepath.Ext(name) {
		case ".xcodeproj":
			found.projects = append(found.projects, full)
		case ".xcworkspace":
			found.workspaces = append(found.workspaces, full)
		default:
			walkProjects(d, full, depth+1, maxDepth, found)
		}
	}
}

func listSchemes(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	if err := requireProject(args); err != nil {
		return nil, err
	}
	cmd, err := xcodebuild.ListCommand(xcodeParams(args, ""))
	if err != nil {
		return nil, err
	}
	res, err := run(ctx, d, cmd)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return failure(res, "Failed to list schemes"), nil
	}
	schemes := parse.Schemes(res.Output)
	if len(schemes) == 0 {
		return response.Error("No schemes found in the output"), nil
	}

	first := schemes[0]
	hint := append(projectHint(args), "scheme", first)
	return response.Text(
		"✅ Available schemes:",
		strings.Join(schemes, "\n"),
		response.NextSteps(
			"Build for macOS: build_macos("+quoteArgs(hint...)+")",
			"Build for simulator: build_sim("+quoteArgs(append(hint, "simulatorName", "iPhone 16")...)+")",
			"Show build settings: show_build_settings("+quoteArgs(hint...)+")",
		),
	), nil
}

func showBuildSettings(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	if err := requireProject(args); err != nil {
		return nil, err
	}
	scheme := args.String("scheme")
	out, err := d.Xcodebuild().BuildSettings(ctx, xcodeParams(args, ""))
	if err != nil {
		return nil, err
	}
	return response.Text(
		fmt.Sprintf("✅ Build settings for scheme %s:", scheme),
		out,
	), nil
}

func clean(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	if err := requireProject(args); err != nil {
		return nil, err
	}
	p := xcodeParams(args, xcodebuild.PlatformMacOS)
	if p.Scheme == "" {
		if p.WorkspacePath != "" {
			return nil, toolerr.Validation(plugin.MissingParam("scheme"))
		}
		return cleanProject(ctx, d, p)
	}
	return d.Xcodebuild().Build(ctx, p, xcodebuild.BuildOptions{Action: "clean", Label: "Clean"})
}

// cleanProject cleans every target of a project when no scheme is given.
func cleanProject(ctx context.Context, d *plugin.Deps, p xcodebuild.Params) (*response.ToolResult, error) {
	args := []string{"xcodebuild", "-project", p.ProjectPath, "-configuration", p.Configuration}
	if p.DerivedDataPath != "" {
		args = append(args, "-derivedDataPath", p.DerivedDataPath)
	}
	args = append(append(args, p.ExtraArgs...), "clean")
	res, err := run(ctx, d, executor.CommandSpec{Args: args, Label: "Clean"})
	if err != nil {
		return nil, err
	}
	return response.FromExecution(res, response.Outcome{
		Success: "Clean succeeded for project " + p.ProjectPath + ".",
		Failure: "Clean failed for project " + p.ProjectPath + ".",
	}), nil
}

func getAppBundleID(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	appPath := args.String("appPath")
	if _, err := d.FS.Stat(appPath); err != nil {
		return fileNotFound(appPath), nil
	}
	id, errResult, err := bundleIDOf(ctx, d, appPath)
	if err != nil || errResult != nil {
		return errResult, err
	}
	return response.Text(
		"✅ Bundle ID: "+id,
		response.NextSteps(
			"Simulator: install_app_sim + launch_app_sim",
			"Device: install_app_device + launch_app_device",
		),
	), nil
}

func getMacBundleID(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	appPath := args.String("appPath")
	if _, err := d.FS.Stat(appPath); err != nil {
		return fileNotFound(appPath), nil
	}
	id, errResult, err := plistValue(ctx, d, filepath.Join(appPath, "Contents", "Info.plist"))
	if err != nil || errResult != nil {
		return errResult, err
	}
	return response.Text(
		"✅ Bundle ID: "+id,
		response.NextSteps("Launch: launch_mac_app("+quoteArgs("appPath", appPath)+")"),
	), nil
}

// bundleIDOf reads CFBundleIdentifier from an iOS-style bundle.
func bundleIDOf(ctx context.Context, d *plugin.Deps, appPath string) (string, *response.ToolResult, error) {
	return plistValue(ctx, d, filepath.Join(appPath, "Info.plist"))
}

func plistValue(ctx context.Context, d *plugin.Deps, plist string) (string, *response.ToolResult, error) {
	res, err := run(ctx, d, executor.CommandSpec{
		Args:  []string{"plutil", "-extract", "CFBundleIdentifier", "raw", plist},
		Label: "Extract bundle ID",
	})
	if err != nil {
		return "", nil, err
	}
	id := strings.TrimSpace(res.Output)
	if !res.Success || id == "" {
		return "", failure(res, "Could not extract bundle ID from Info.plist"), nil
	}
	return id, nil, nil
}
