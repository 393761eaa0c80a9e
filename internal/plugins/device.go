// Copyright 2025 Joseph Cumines
//
// Physical device tools

package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/joeycumines/xcodebuild-mcp/internal/parse"
	"github.com/joeycumines/xcodebuild-mcp/internal/plugin"
	"github.com/joeycumines/xcodebuild-mcp/internal/response"
	"github.com/joeycumines/xcodebuild-mcp/internal/xcodebuild"
)

var paramDevicePlatform = plugin.String("platform", "Target device platform").
	OneOf(platformNames(func(p xcodebuild.Platform) bool { return p != xcodebuild.PlatformMacOS && !p.IsSimulator() })...).
	WithDefault(string(xcodebuild.PlatformIOS))

func devicePlugins() []*plugin.Plugin {
	return []*plugin.Plugin{
		{
			Name:        "build_device",
			Description: "Builds an app for a physical Apple device. Provide exactly one of projectPath or workspacePath.",
			Workflow:    WorkflowDevice,
			Params:      buildParams(paramDevicePlatform),
			Handler:     buildDevice,
		},
		{
			Name:        "test_device",
			Description: "Runs tests on a physical Apple device and reports the xcresult summary.",
			Workflow:    WorkflowDevice,
			Params: append(withProject(paramScheme, paramDeviceID, paramDevicePlatform),
				paramConfiguration, paramDerivedDataPath, paramExtraArgs),
			Handler: testDevice,
		},
		{
			Name:        "get_device_app_path",
			Description: "Gets the path of the app built for a physical device.",
			Workflow:    WorkflowDevice,
			Params:      withProject(paramScheme, paramDevicePlatform, paramConfiguration),
			Handler:     getDeviceAppPath,
		},
		{
			Name:        "install_app_device",
			Description: "Installs an app on a physical device.",
			Workflow:    WorkflowDevice,
			Params:      plugin.Params{paramDeviceID, paramAppPath},
			Handler:     installAppDevice,
		},
		{
			Name:        "launch_app_device",
			Description: "Launches an app on a physical device.",
			Workflow:    WorkflowDevice,
			Params:      plugin.Params{paramDeviceID, paramBundleID},
			Handler:     launchAppDevice,
		},
		{
			Name:        "stop_app_device",
			Description: "Stops an app running on a physical device.",
			Workflow:    WorkflowDevice,
			Params: plugin.Params{
				paramDeviceID,
				plugin.Integer("processId", "Process ID of the app (from launch_app_device)").Req(),
			},
			Handler: stopAppDevice,
		},
		{
			Name:        "list_devices",
			Description: "Lists connected physical Apple devices.",
			Workflow:    WorkflowDevice,
			Handler:     listDevices,
		},
	}
}

func buildDevice(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	if err := requireProject(args); err != nil {
		return nil, err
	}
	platform, err := platformArg(args, xcodebuild.PlatformIOS)
	if err != nil {
		return nil, err
	}
	scheme := args.String("scheme")
	hint := append(projectHint(args), "scheme", scheme)
	return d.Xcodebuild().Build(ctx, xcodeParams(args, platform), xcodebuild.BuildOptions{
		Label: fmt.Sprintf("%s Device Build", platform),
		NextSteps: response.NextSteps(
			"Get app path: get_device_app_path("+quoteArgs(hint...)+")",
			"Get bundle ID: get_app_bundle_id({ appPath: 'PATH_FROM_STEP_1' })",
			"Install and launch: install_app_device, then launch_app_device",
		),
	})
}

func testDevice(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	if err := requireProject(args); err != nil {
		return nil, err
	}
	platform, err := platformArg(args, xcodebuild.PlatformIOS)
	if err != nil {
		return nil, err
	}
	p := xcodeParams(args, platform)
	p.DeviceID = args.String("deviceId")
	return d.Xcodebuild().Test(ctx, p, fmt.Sprintf("%s Device Test", platform))
}

func getDeviceAppPath(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	if err := requireProject(args); err != nil {
		return nil, err
	}
	platform, err := platformArg(args, xcodebuild.PlatformIOS)
	if err != nil {
		return nil, err
	}
	appPath, err := d.Xcodebuild().AppPath(ctx, xcodeParams(args, platform))
	if err != nil {
		return appPathError(err, "get_device_app_path"), nil
	}
	return response.Text(
		"✅ App path retrieved successfully: "+appPath,
		response.NextSteps(
			"Get bundle ID: get_app_bundle_id("+quoteArgs("appPath", appPath)+")",
			"Install app: install_app_device("+quoteArgs("deviceId", "DEVICE_UDID", "appPath", appPath)+")",
			"Launch app: launch_app_device("+quoteArgs("deviceId", "DEVICE_UDID", "bundleId", "BUNDLE_ID")+")",
		),
	), nil
}

func installAppDevice(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	deviceID, appPath := args.String("deviceId"), args.String("appPath")
	res, err := run(ctx, d, xcrun("Install app on device", "devicectl", "device", "install", "app", "--device", deviceID, appPath))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return failure(res, "Failed to install app"), nil
	}
	return response.Text(
		fmt.Sprintf("✅ App installed successfully on device %s", deviceID),
		response.NextSteps("Launch app: launch_app_device("+quoteArgs("deviceId", deviceID, "bundleId", "BUNDLE_ID")+")"),
	), nil
}

func launchAppDevice(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	deviceID, bundleID := args.String("deviceId"), args.String("bundleId")
	out := filepath.Join(d.FS.TempDir(), "launch-"+uuid.NewString()+".json")
	defer removeQuietly(d, out)

	res, err := run(ctx, d, xcrun("Launch app on device",
		"devicectl", "device", "process", "launch",
		"--device", deviceID,
		"--json-output", out,
		"--terminate-existing",
		bundleID))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return failure(res, "Failed to launch app"), nil
	}

	blocks := []string{fmt.Sprintf("✅ App launched successfully on device %s", deviceID)}
	if data, err := d.FS.ReadFile(out); err == nil {
		if pid, ok := parse.LaunchedPID(data); ok {
			blocks = append(blocks,
				fmt.Sprintf("Process ID: %d", pid),
				response.NextSteps("Stop app: stop_app_device({ deviceId: '"+deviceID+"', processId: "+strconv.Itoa(pid)+" })"))
		}
	}
	return response.Text(blocks...), nil
}

func stopAppDevice(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	deviceID := args.String("deviceId")
	pid, _ := args.Int("processId")
	res, err := run(ctx, d, xcrun("Stop app on device",
		"devicectl", "device", "process", "terminate", "--device", deviceID, "--pid", strconv.Itoa(pid)))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return failure(res, "Failed to stop app"), nil
	}
	return response.Textf("✅ App stopped successfully (process %d)", pid), nil
}

func listDevices(ctx context.Context, d *plugin.Deps, _ plugin.Args) (*response.ToolResult, error) {
	out := filepath.Join(d.FS.TempDir(), "devicectl-"+uuid.NewString()+".json")
	defer removeQuietly(d, out)

	res, err := run(ctx, d, xcrun("List devices", "devicectl", "list", "devices", "--json-output", out))
	if err != nil {
		return nil, err
	}
	if res.Success {
		data, err := d.FS.ReadFile(out)
		if err == nil {
			devices, perr := parse.ParseDeviceList(data)
			if perr == nil {
				return response.Text(
					parse.FormatDeviceList(devices),
					response.NextSteps(
						"Build for device: build_device({ scheme: 'SCHEME', projectPath: 'PATH' })",
						"Run tests: test_device({ scheme: 'SCHEME', deviceId: 'DEVICE_UDID' })",
					),
				), nil
			}
			err = perr
		}
		d.Log().Warn("failed to read devicectl output, falling back to xctrace", "error", err)
	}

	// Older toolchains lack devicectl.
	fallback, err := run(ctx, d, xcrun("List devices (xctrace)", "xctrace", "list", "devices"))
	if err != nil {
		return nil, err
	}
	if !fallback.Success {
		return failure(fallback, "Failed to list devices"), nil
	}
	return response.Text("Device listing (xctrace):\n" + fallback.Output), nil
}

// removeQuietly deletes a scratch file, logging unexpected failures.
func removeQuietly(d *plugin.Deps, path string) {
	if err := d.FS.Remove(path); err != nil && !isNotExist(err) {
		d.Log().Warn("failed to remove temp file", "path", path, "error", err)
	}
}
