// Copyright 2025 Joseph Cumines
//
// Simulator tools

package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"github.com/joeycumines/xcodebuild-mcp/internal/parse"
	"github.com/joeycumines/xcodebuild-mcp/internal/plugin"
	"github.com/joeycumines/xcodebuild-mcp/internal/response"
	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
	"github.com/joeycumines/xcodebuild-mcp/internal/xcodebuild"
)

var paramSimulatorPlatform = plugin.String("platform", "Target simulator platform").
	OneOf(platformNames(xcodebuild.Platform.IsSimulator)...).
	WithDefault(string(xcodebuild.PlatformIOSSimulator))

func simulatorBuildParams() plugin.Params {
	return buildParams(paramSimulatorID, paramSimulatorName, paramUseLatestOS, paramSimulatorPlatform)
}

func simulatorPlugins() []*plugin.Plugin {
	return []*plugin.Plugin{
		{
			Name:        "build_sim",
			Description: "Builds an app for a simulator. Provide exactly one of projectPath or workspacePath, and exactly one of simulatorId or simulatorName.",
			Workflow:    WorkflowSimulator,
			Params:      simulatorBuildParams(),
			Handler:     buildSim,
		},
		{
			Name:        "build_run_sim",
			Description: "Builds an app, then installs and launches it on a simulator.",
			Workflow:    WorkflowSimulator,
			Params:      simulatorBuildParams(),
			Handler:     buildRunSim,
		},
		{
			Name:        "test_sim",
			Description: "Runs tests on a simulator and reports the xcresult summary.",
			Workflow:    WorkflowSimulator,
			Params:      simulatorBuildParams(),
			Handler:     testSim,
		},
		{
			Name:        "get_sim_app_path",
			Description: "Gets the path of the app built for a simulator.",
			Workflow:    WorkflowSimulator,
			Params: withProject(paramScheme, paramSimulatorPlatform.Req(),
				paramSimulatorID, paramSimulatorName, paramUseLatestOS, paramConfiguration),
			Handler: getSimAppPath,
		},
		{
			Name:        "install_app_sim",
			Description: "Installs an app on a simulator.",
			Workflow:    WorkflowSimulator,
			Params:      plugin.Params{paramSimulatorUUID, paramAppPath},
			Handler:     installAppSim,
		},
		{
			Name:        "launch_app_sim",
			Description: "Launches an installed app on a simulator.",
			Workflow:    WorkflowSimulator,
			Params: plugin.Params{
				paramSimulatorUUID,
				paramBundleID,
				plugin.StringArray("args", "Arguments passed to the app"),
			},
			Handler: launchAppSim,
		},
		{
			Name:        "stop_app_sim",
			Description: "Terminates an app on a simulator.",
			Workflow:    WorkflowSimulator,
			Params:      plugin.Params{paramSimulatorUUID, paramBundleID},
			Handler:     stopAppSim,
		},
		{
			Name:        "list_sims",
			Description: "Lists available simulators.",
			Workflow:    WorkflowSimulator,
			Handler:     listSims,
		},
		{
			Name:        "boot_sim",
			Description: "Boots a simulator.",
			Workflow:    WorkflowSimulator,
			Params:      plugin.Params{paramSimulatorUUID},
			Handler:     bootSim,
		},
		{
			Name:        "open_sim",
			Description: "Opens the Simulator app.",
			Workflow:    WorkflowSimulator,
			Handler:     openSim,
		},
		{
			Name:        "screenshot",
			Description: "Captures a PNG screenshot of a simulator.",
			Workflow:    WorkflowSimulator,
			Params:      plugin.Params{paramSimulatorUUID},
			Handler:     screenshot,
		},
	}
}

func simParams(args plugin.Args) (xcodebuild.Params, error) {
	if err := requireProject(args); err != nil {
		return xcodebuild.Params{}, err
	}
	if err := requireSimulator(args); err != nil {
		return xcodebuild.Params{}, err
	}
	platform, err := platformArg(args, xcodebuild.PlatformIOSSimulator)
	if err != nil {
		return xcodebuild.Params{}, err
	}
	if !platform.IsSimulator() {
		return xcodebuild.Params{}, toolerr.Validationf("%s is not a simulator platform", platform)
	}
	return xcodeParams(args, platform), nil
}

func buildSim(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	p, err := simParams(args)
	if err != nil {
		return nil, err
	}
	hint := append(projectHint(args), "scheme", p.Scheme, "platform", string(p.Platform))
	if p.SimulatorID != "" {
		hint = append(hint, "simulatorId", p.SimulatorID)
	} else {
		hint = append(hint, "simulatorName", p.SimulatorName)
	}
	return d.Xcodebuild().Build(ctx, p, xcodebuild.BuildOptions{
		Label: fmt.Sprintf("%s Build", p.Platform),
		NextSteps: response.NextSteps(
			"Get app path: get_sim_app_path("+quoteArgs(hint...)+")",
			"Get bundle ID: get_app_bundle_id({ appPath: 'PATH_FROM_STEP_1' })",
			"Launch: install_app_sim, then launch_app_sim",
		),
	})
}

func testSim(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	p, err := simParams(args)
	if err != nil {
		return nil, err
	}
	return d.Xcodebuild().Test(ctx, p, fmt.Sprintf("%s Test", p.Platform))
}

func getSimAppPath(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	p, err := simParams(args)
	if err != nil {
		return nil, err
	}
	appPath, err := d.Xcodebuild().AppPath(ctx, p)
	if err != nil {
		return appPathError(err, "get_sim_app_path"), nil
	}
	return response.Text(
		"✅ App path retrieved successfully: "+appPath,
		response.NextSteps(
			"Get bundle ID: get_app_bundle_id("+quoteArgs("appPath", appPath)+")",
			"Boot simulator: boot_sim({ simulatorUuid: 'SIMULATOR_UUID' })",
			"Install app: install_app_sim("+quoteArgs("simulatorUuid", "SIMULATOR_UUID", "appPath", appPath)+")",
			"Launch app: launch_app_sim("+quoteArgs("simulatorUuid", "SIMULATOR_UUID", "bundleId", "BUNDLE_ID")+")",
		),
	), nil
}

// buildRunSim chains build, app path, simulator lookup, boot, install,
// bundle id and launch. The first failing step's envelope is returned.
func buildRunSim(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	p, err := simParams(args)
	if err != nil {
		return nil, err
	}
	runner := d.Xcodebuild()

	built, err := runner.Build(ctx, p, xcodebuild.BuildOptions{Label: fmt.Sprintf("%s Build", p.Platform)})
	if err != nil || built.IsError {
		return built, err
	}

	appPath, err := runner.AppPath(ctx, p)
	if err != nil {
		return appPathError(err, "build_run_sim"), nil
	}

	sim, errResult, err := findSimulator(ctx, d, p.SimulatorID, p.SimulatorName)
	if err != nil || errResult != nil {
		return errResult, err
	}

	if !sim.Booted() {
		res, err := run(ctx, d, xcrun("Boot simulator", "simctl", "boot", sim.UDID))
		if err != nil {
			return nil, err
		}
		if !res.Success && !strings.Contains(res.Error, "current state: Booted") {
			return failure(res, "Failed to boot simulator"), nil
		}
	}

	if res, err := run(ctx, d, executor.CommandSpec{Args: []string{"open", "-a", "Simulator"}, Label: "Open Simulator"}); err != nil {
		return nil, err
	} else if !res.Success {
		d.Log().Warn("failed to open Simulator app", "error", strings.TrimSpace(res.Error))
	}

	res, err := run(ctx, d, xcrun("Install app in simulator", "simctl", "install", sim.UDID, appPath))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return failure(res, "Failed to install app"), nil
	}

	bundleID, errResult, err := bundleIDOf(ctx, d, appPath)
	if err != nil || errResult != nil {
		return errResult, err
	}

	res, err = run(ctx, d, xcrun("Launch app in simulator", "simctl", "launch", sim.UDID, bundleID))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return failure(res, "Failed to launch app"), nil
	}

	return response.Text(
		fmt.Sprintf("✅ %s build and run succeeded for scheme %s.", p.Platform, p.Scheme),
		fmt.Sprintf("The app (%s) is now running in %s (%s).", bundleID, sim.Name, sim.UDID),
		response.NextSteps(
			"Capture logs: start_sim_log_cap("+quoteArgs("simulatorUuid", sim.UDID, "bundleId", bundleID)+")",
			"Inspect UI: describe_ui("+quoteArgs("simulatorUuid", sim.UDID)+")",
			"Stop app: stop_app_sim("+quoteArgs("simulatorUuid", sim.UDID, "bundleId", bundleID)+")",
		),
	), nil
}

// findSimulator resolves a simulator by id or name from the simctl listing.
func findSimulator(ctx context.Context, d *plugin.Deps, id, name string) (parse.Simulator, *response.ToolResult, error) {
	list, errResult, err := simulatorList(ctx, d)
	if err != nil || errResult != nil {
		return parse.Simulator{}, errResult, err
	}
	key := id
	if key == "" {
		key = name
	}
	sim, ok := list.Find(key)
	if !ok {
		return parse.Simulator{}, response.Errorf("Simulator not found: %s", key), nil
	}
	return sim, nil, nil
}

func simulatorList(ctx context.Context, d *plugin.Deps) (*parse.SimulatorList, *response.ToolResult, error) {
	res, err := run(ctx, d, xcrun("List simulators", "simctl", "list", "devices", "available", "--json"))
	if err != nil {
		return nil, nil, err
	}
	if !res.Success {
		return nil, failure(res, "Failed to list simulators"), nil
	}
	list, err := parse.ParseSimulatorList([]byte(res.Output))
	if err != nil {
		return nil, nil, err
	}
	return list, nil, nil
}

func installAppSim(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	udid, appPath := args.String("simulatorUuid"), args.String("appPath")
	if _, err := d.FS.Stat(appPath); err != nil {
		return fileNotFound(appPath), nil
	}
	res, err := run(ctx, d, xcrun("Install app in simulator", "simctl", "install", udid, appPath))
	if err != nil {
		return nil, err
	}
	return response.FromExecution(res, response.Outcome{
		Success: fmt.Sprintf("App installed successfully in simulator %s", udid),
		Failure: "Install app in simulator operation failed.",
		NextSteps: response.NextSteps(
			"Open the Simulator app: open_sim({})",
			"Launch the app: launch_app_sim("+quoteArgs("simulatorUuid", udid, "bundleId", "BUNDLE_ID")+")",
		),
	}), nil
}

func launchAppSim(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	udid, bundleID := args.String("simulatorUuid"), args.String("bundleId")

	res, err := run(ctx, d, xcrun("Check app installed", "simctl", "get_app_container", udid, bundleID, "app"))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return response.Error("App is not installed on the simulator. Please use install_app_sim before launching."), nil
	}

	cmd := xcrun("Launch app in simulator", "simctl", "launch", udid, bundleID)
	cmd.Args = append(cmd.Args, args.Strings("args")...)
	res, err = run(ctx, d, cmd)
	if err != nil {
		return nil, err
	}
	return response.FromExecution(res, response.Outcome{
		Success: fmt.Sprintf("App launched successfully in simulator %s", udid),
		Failure: "Launch app in simulator operation failed.",
		NextSteps: response.NextSteps(
			"Capture logs: start_sim_log_cap("+quoteArgs("simulatorUuid", udid, "bundleId", bundleID)+")",
			"Inspect UI: describe_ui("+quoteArgs("simulatorUuid", udid)+")",
		),
	}), nil
}

func stopAppSim(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	udid, bundleID := args.String("simulatorUuid"), args.String("bundleId")
	res, err := run(ctx, d, xcrun("Stop app in simulator", "simctl", "terminate", udid, bundleID))
	if err != nil {
		return nil, err
	}
	return response.FromExecution(res, response.Outcome{
		Success: fmt.Sprintf("App %s stopped successfully in simulator %s", bundleID, udid),
		Failure: "Stop app in simulator operation failed.",
	}), nil
}

func listSims(ctx context.Context, d *plugin.Deps, _ plugin.Args) (*response.ToolResult, error) {
	list, errResult, err := simulatorList(ctx, d)
	if errResult != nil {
		return errResult, nil
	}
	if err != nil {
		if toolerr.KindOf(err) != toolerr.KindParseFailure {
			return nil, err
		}
		// Unparseable JSON: show the plain listing instead.
		d.Log().Warn("failed to parse simctl JSON, falling back to text listing", "error", err)
		res, err := run(ctx, d, xcrun("List simulators", "simctl", "list", "devices", "available"))
		if err != nil {
			return nil, err
		}
		if !res.Success {
			return failure(res, "Failed to list simulators"), nil
		}
		return response.Text("Available Simulators:\n" + res.Output), nil
	}
	return response.Text(
		list.Format(),
		response.NextSteps(
			"Boot a simulator: boot_sim({ simulatorUuid: 'UUID_FROM_ABOVE' })",
			"Open the Simulator app: open_sim({})",
			"Build for simulator: build_sim({ scheme: 'SCHEME', simulatorId: 'UUID_FROM_ABOVE' })",
		),
	), nil
}

func bootSim(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	udid := args.String("simulatorUuid")
	res, err := run(ctx, d, xcrun("Boot simulator", "simctl", "boot", udid))
	if err != nil {
		return nil, err
	}
	return response.FromExecution(res, response.Outcome{
		Success: "Simulator booted successfully.",
		Failure: "Boot simulator operation failed.",
		NextSteps: response.NextSteps(
			"Open the Simulator app: open_sim({})",
			"Install an app: install_app_sim("+quoteArgs("simulatorUuid", udid, "appPath", "PATH_TO_YOUR_APP")+")",
		),
	}), nil
}

func openSim(ctx context.Context, d *plugin.Deps, _ plugin.Args) (*response.ToolResult, error) {
	res, err := run(ctx, d, executor.CommandSpec{Args: []string{"open", "-a", "Simulator"}, Label: "Open Simulator"})
	if err != nil {
		return nil, err
	}
	return response.FromExecution(res, response.Outcome{
		Success: "Simulator app opened successfully.",
		Failure: "Open simulator operation failed.",
		NextSteps: response.NextSteps(
			"Boot a simulator if needed: boot_sim({ simulatorUuid: 'UUID_FROM_LIST_SIMS' })",
		),
	}), nil
}

func screenshot(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	udid := args.String("simulatorUuid")
	path := filepath.Join(d.FS.TempDir(), "screenshot_"+uuid.NewString()+".png")
	defer removeQuietly(d, path)

	res, err := run(ctx, d, xcrun("Screenshot", "simctl", "io", udid, "screenshot", path))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return failure(res, "Failed to capture screenshot"), nil
	}
	data, err := d.FS.ReadFile(path)
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindSystem, err, "failed to read screenshot")
	}
	return &response.ToolResult{Content: []response.Content{response.ImageContent(data, "image/png")}}, nil
}
