// Copyright 2025 Joseph Cumines
//
// Log capture tools

package plugins

import (
	"context"
	"fmt"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"github.com/joeycumines/xcodebuild-mcp/internal/logcap"
	"github.com/joeycumines/xcodebuild-mcp/internal/plugin"
	"github.com/joeycumines/xcodebuild-mcp/internal/response"
	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
	"google.golang.org/protobuf/encoding/protojson"
)

var paramLogSessionID = plugin.String("logSessionId", "The session ID returned by the start tool").Req()

func loggingPlugins() []*plugin.Plugin {
	return []*plugin.Plugin{
		{
			Name:        "start_sim_log_cap",
			Description: "Starts capturing logs from a simulator app. Returns a session ID.",
			Workflow:    WorkflowLogging,
			Params: plugin.Params{
				paramSimulatorUUID,
				paramBundleID,
				plugin.Bool("captureConsole", "Also relaunch the app and capture its console output"),
			},
			Handler: startSimLogCap,
		},
		{
			Name:        "stop_sim_log_cap",
			Description: "Stops a simulator log capture session and returns the captured logs.",
			Workflow:    WorkflowLogging,
			Params:      plugin.Params{paramLogSessionID},
			Handler:     stopLogCap(logcap.TargetSimulator),
		},
		{
			Name:        "start_device_log_cap",
			Description: "Launches an app on a physical device and captures its console output. Returns a session ID.",
			Workflow:    WorkflowLogging,
			Params:      plugin.Params{paramDeviceID, paramBundleID},
			Handler:     startDeviceLogCap,
		},
		{
			Name:        "stop_device_log_cap",
			Description: "Stops a device log capture session and returns the captured logs.",
			Workflow:    WorkflowLogging,
			Params:      plugin.Params{paramLogSessionID},
			Handler:     stopLogCap(logcap.TargetDevice),
		},
		{
			Name:        "list_log_sessions",
			Description: "Lists active log capture sessions as long-running operations.",
			Workflow:    WorkflowLogging,
			Handler:     listLogSessions,
		},
	}
}

func sessions(d *plugin.Deps) (*logcap.Manager, error) {
	if d.Sessions == nil {
		return nil, toolerr.DependencyMissing("Log capture is not available.", "The server was started without a log session manager.")
	}
	return d.Sessions, nil
}

func startSimLogCap(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	m, err := sessions(d)
	if err != nil {
		return nil, err
	}
	udid, bundleID := args.String("simulatorUuid"), args.String("bundleId")

	cmds := []executor.CommandSpec{xcrun("Simulator log stream",
		"simctl", "spawn", udid, "log", "stream",
		"--level=debug",
		"--predicate", fmt.Sprintf("subsystem == \"%s\"", bundleID))}
	if args.Bool("captureConsole") {
		cmds = append(cmds, xcrun("Simulator console",
			"simctl", "launch", "--console-pty", "--terminate-running-process", udid, bundleID))
	}

	s, err := m.Start(ctx, logcap.StartRequest{
		Target:   logcap.TargetSimulator,
		DeviceID: udid,
		BundleID: bundleID,
		Commands: cmds,
	})
	if err != nil {
		return nil, err
	}

	blocks := []string{fmt.Sprintf("✅ Log capture started successfully. Session ID: %s", s.ID)}
	if args.Bool("captureConsole") {
		blocks = append(blocks, "Note: The app was relaunched to capture console output.")
	}
	blocks = append(blocks, response.NextSteps(
		"Interact with your app in the simulator",
		"Stop capture and retrieve logs: stop_sim_log_cap("+quoteArgs("logSessionId", s.ID)+")",
	))
	return response.Text(blocks...), nil
}

func startDeviceLogCap(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	m, err := sessions(d)
	if err != nil {
		return nil, err
	}
	deviceID, bundleID := args.String("deviceId"), args.String("bundleId")

	s, err := m.Start(ctx, logcap.StartRequest{
		Target:   logcap.TargetDevice,
		DeviceID: deviceID,
		BundleID: bundleID,
		Commands: []executor.CommandSpec{xcrun("Device console",
			"devicectl", "device", "process", "launch",
			"--console",
			"--terminate-existing",
			"--device", deviceID,
			bundleID)},
	})
	if err != nil {
		return nil, err
	}
	return response.Text(
		fmt.Sprintf("✅ Device log capture started successfully. Session ID: %s", s.ID),
		"Note: The app was relaunched on the device to capture console output.",
		response.NextSteps(
			"Interact with your app on the device",
			"Stop capture and retrieve logs: stop_device_log_cap("+quoteArgs("logSessionId", s.ID)+")",
		),
	), nil
}

// stopLogCap stops sessions of one target only; a session started by the
// other start tool is reported as not found.
func stopLogCap(target logcap.Target) plugin.Handler {
	return func(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
		m, err := sessions(d)
		if err != nil {
			return nil, err
		}
		id := args.String("logSessionId")
		if s, ok := m.Get(id); !ok || s.Target != target {
			return nil, toolerr.NotFound("Log capture session", id)
		}
		logs, err := m.Stop(ctx, id)
		if err != nil {
			return nil, err
		}
		return response.Textf("✅ Log capture session %s stopped successfully. Log content follows:\n\n%s", id, logs), nil
	}
}

func listLogSessions(_ context.Context, d *plugin.Deps, _ plugin.Args) (*response.ToolResult, error) {
	m, err := sessions(d)
	if err != nil {
		return nil, err
	}
	active := m.List()
	if len(active) == 0 {
		return response.Text("No active log capture sessions."), nil
	}
	list := &longrunningpb.ListOperationsResponse{}
	for _, s := range active {
		list.Operations = append(list.Operations, s.Operation())
	}
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(list)
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindSystem, err, "failed to render log sessions")
	}
	return response.Text(
		fmt.Sprintf("Active log capture sessions: %d", len(active)),
		string(data),
	), nil
}
