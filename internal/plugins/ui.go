// Copyright 2025 Joseph Cumines
//
// Simulator UI automation tools, driven by axe

package plugins

import (
	"context"
	"fmt"
	"strconv"

	"github.com/joeycumines/xcodebuild-mcp/internal/axe"
	"github.com/joeycumines/xcodebuild-mcp/internal/plugin"
	"github.com/joeycumines/xcodebuild-mcp/internal/response"
	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
)

var (
	paramX         = plugin.Integer("x", "X coordinate").Req()
	paramY         = plugin.Integer("y", "Y coordinate").Req()
	paramPreDelay  = plugin.Number("preDelay", "Delay before the action, in seconds")
	paramPostDelay = plugin.Number("postDelay", "Delay after the action, in seconds")
	paramDuration  = plugin.Number("duration", "Duration in seconds")
)

var gesturePresets = []string{
	"scroll-up",
	"scroll-down",
	"scroll-left",
	"scroll-right",
	"swipe-from-left-edge",
	"swipe-from-right-edge",
	"swipe-from-top-edge",
	"swipe-from-bottom-edge",
}

func uiPlugins() []*plugin.Plugin {
	return []*plugin.Plugin{
		{
			Name:        "describe_ui",
			Description: "Gets the accessibility hierarchy of the simulator screen, with precise frame coordinates for every element. Call this before coordinate-based actions.",
			Workflow:    WorkflowUI,
			Params:      plugin.Params{paramSimulatorUUID},
			Handler:     describeUI,
		},
		{
			Name:        "tap",
			Description: "Taps at the given coordinates.",
			Workflow:    WorkflowUI,
			Params:      plugin.Params{paramSimulatorUUID, paramX, paramY, paramPreDelay, paramPostDelay},
			Handler:     tap,
		},
		{
			Name:        "long_press",
			Description: "Long presses at the given coordinates.",
			Workflow:    WorkflowUI,
			Params: plugin.Params{
				paramSimulatorUUID, paramX, paramY,
				plugin.Number("duration", "Press duration in milliseconds").Req(),
			},
			Handler: longPress,
		},
		{
			Name:        "swipe",
			Description: "Swipes between two points.",
			Workflow:    WorkflowUI,
			Params: plugin.Params{
				paramSimulatorUUID,
				plugin.Integer("x1", "Start X coordinate").Req(),
				plugin.Integer("y1", "Start Y coordinate").Req(),
				plugin.Integer("x2", "End X coordinate").Req(),
				plugin.Integer("y2", "End Y coordinate").Req(),
				paramDuration,
				plugin.Number("delta", "Distance between touch points"),
				paramPreDelay,
				paramPostDelay,
			},
			Handler: swipe,
		},
		{
			Name:        "touch",
			Description: "Sends touch down and/or up events at the given coordinates.",
			Workflow:    WorkflowUI,
			Params: plugin.Params{
				paramSimulatorUUID, paramX, paramY,
				plugin.Bool("down", "Send a touch down event"),
				plugin.Bool("up", "Send a touch up event"),
				plugin.Number("delay", "Delay between down and up, in seconds"),
			},
			Handler: touch,
		},
		{
			Name:        "type_text",
			Description: "Types text into the focused field. Tap the field first.",
			Workflow:    WorkflowUI,
			Params: plugin.Params{
				paramSimulatorUUID,
				plugin.String("text", "Text to type").Req(),
			},
			Handler: typeText,
		},
		{
			Name:        "button",
			Description: "Presses a hardware button.",
			Workflow:    WorkflowUI,
			Params: plugin.Params{
				paramSimulatorUUID,
				plugin.String("buttonType", "Button to press").Req().OneOf("apple-pay", "home", "lock", "side-button", "siri"),
				paramDuration,
			},
			Handler: button,
		},
		{
			Name:        "key_press",
			Description: "Presses a key by HID keycode, e.g. 40 for Return.",
			Workflow:    WorkflowUI,
			Params: plugin.Params{
				paramSimulatorUUID,
				plugin.Integer("keyCode", "HID keycode (0-255)").Req(),
				paramDuration,
			},
			Handler: keyPress,
		},
		{
			Name:        "gesture",
			Description: "Performs a preset gesture.",
			Workflow:    WorkflowUI,
			Params: plugin.Params{
				paramSimulatorUUID,
				plugin.String("preset", "Gesture preset").Req().OneOf(gesturePresets...),
				plugin.Integer("screenWidth", "Screen width in points"),
				plugin.Integer("screenHeight", "Screen height in points"),
				paramDuration,
				plugin.Number("delta", "Distance between touch points"),
				paramPreDelay,
				paramPostDelay,
			},
			Handler: gesture,
		},
	}
}

// runAxe executes an axe subcommand against the simulator. A failed
// command is returned as an error envelope.
func runAxe(ctx context.Context, d *plugin.Deps, udid, action string, args ...string) (string, *response.ToolResult, error) {
	if d.Axe == nil {
		return "", nil, toolerr.DependencyMissing("Bundled axe tool not found. UI automation features are not available.", "")
	}
	bin, err := d.Axe.Locate()
	if err != nil {
		return "", nil, err
	}
	res, err := run(ctx, d, axe.Command(bin, udid, args...))
	if err != nil {
		return "", nil, err
	}
	if !res.Success {
		return "", failure(res, fmt.Sprintf("Failed to %s", action)), nil
	}
	return res.Output, nil, nil
}

// coordinateResult appends the stale-coordinates warning, if any.
func coordinateResult(d *plugin.Deps, udid, msg string) *response.ToolResult {
	if d.UI != nil {
		if w := d.UI.Warning(udid); w != "" {
			return response.Text(msg, w)
		}
	}
	return response.Text(msg)
}

// appendSeconds adds "--flag <n>" when a non-negative number argument is set.
func appendSeconds(argv []string, args plugin.Args, name, flag string) ([]string, error) {
	v, ok := args.Float(name)
	if !ok {
		return argv, nil
	}
	if v < 0 {
		return nil, toolerr.Validationf("%s must be non-negative", name)
	}
	return append(argv, flag, formatNumber(v)), nil
}

func delays(argv []string, args plugin.Args) ([]string, error) {
	argv, err := appendSeconds(argv, args, "preDelay", "--pre-delay")
	if err != nil {
		return nil, err
	}
	return appendSeconds(argv, args, "postDelay", "--post-delay")
}

func point(args plugin.Args, xName, yName string) (int, int) {
	x, _ := args.Int(xName)
	y, _ := args.Int(yName)
	return x, y
}

func describeUI(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	udid := args.String("simulatorUuid")
	out, errResult, err := runAxe(ctx, d, udid, "get accessibility hierarchy", "describe-ui")
	if err != nil || errResult != nil {
		return errResult, err
	}
	if d.UI != nil {
		d.UI.Described(udid)
	}
	return response.Text(
		"Accessibility hierarchy retrieved successfully:\n```json\n"+out+"\n```",
		"Tips:\n"+
			"- Use frame coordinates for tap/swipe (center: x+width/2, y+height/2)\n"+
			"- If a debugger is paused, resume before UI automation\n"+
			"- Call describe_ui again after layout changes",
	), nil
}

func tap(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	udid := args.String("simulatorUuid")
	x, y := point(args, "x", "y")
	argv, err := delays([]string{"tap", "-x", strconv.Itoa(x), "-y", strconv.Itoa(y)}, args)
	if err != nil {
		return nil, err
	}
	if _, errResult, err := runAxe(ctx, d, udid, "simulate tap", argv...); err != nil || errResult != nil {
		return errResult, err
	}
	return coordinateResult(d, udid, fmt.Sprintf("Tap at (%d, %d) simulated successfully.", x, y)), nil
}

func longPress(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	udid := args.String("simulatorUuid")
	x, y := point(args, "x", "y")
	ms, _ := args.Float("duration")
	if ms <= 0 {
		return nil, toolerr.Validation("duration must be positive")
	}
	argv := []string{"touch", "-x", strconv.Itoa(x), "-y", strconv.Itoa(y),
		"--down", "--up", "--delay", formatNumber(ms / 1000)}
	if _, errResult, err := runAxe(ctx, d, udid, "simulate long press", argv...); err != nil || errResult != nil {
		return errResult, err
	}
	return coordinateResult(d, udid,
		fmt.Sprintf("Long press at (%d, %d) for %sms simulated successfully.", x, y, formatNumber(ms))), nil
}

func swipe(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	udid := args.String("simulatorUuid")
	x1, y1 := point(args, "x1", "y1")
	x2, y2 := point(args, "x2", "y2")
	argv := []string{"swipe",
		"--start-x", strconv.Itoa(x1), "--start-y", strconv.Itoa(y1),
		"--end-x", strconv.Itoa(x2), "--end-y", strconv.Itoa(y2)}
	var err error
	if argv, err = appendSeconds(argv, args, "duration", "--duration"); err != nil {
		return nil, err
	}
	if argv, err = appendSeconds(argv, args, "delta", "--delta"); err != nil {
		return nil, err
	}
	if argv, err = delays(argv, args); err != nil {
		return nil, err
	}
	if _, errResult, err := runAxe(ctx, d, udid, "simulate swipe", argv...); err != nil || errResult != nil {
		return errResult, err
	}
	msg := fmt.Sprintf("Swipe from (%d, %d) to (%d, %d)", x1, y1, x2, y2)
	if v, ok := args.Float("duration"); ok {
		msg += " duration=" + formatNumber(v) + "s"
	}
	return coordinateResult(d, udid, msg+" simulated successfully."), nil
}

func touch(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	udid := args.String("simulatorUuid")
	down, up := args.Bool("down"), args.Bool("up")
	if !down && !up {
		return nil, toolerr.Validation("At least one of 'down' or 'up' must be true")
	}
	x, y := point(args, "x", "y")
	argv := []string{"touch", "-x", strconv.Itoa(x), "-y", strconv.Itoa(y)}
	if down {
		argv = append(argv, "--down")
	}
	if up {
		argv = append(argv, "--up")
	}
	argv, err := appendSeconds(argv, args, "delay", "--delay")
	if err != nil {
		return nil, err
	}
	if _, errResult, err := runAxe(ctx, d, udid, "simulate touch", argv...); err != nil || errResult != nil {
		return errResult, err
	}
	action := "touch down+up"
	switch {
	case !up:
		action = "touch down"
	case !down:
		action = "touch up"
	}
	return coordinateResult(d, udid, fmt.Sprintf("Touch event (%s) at (%d, %d) executed successfully.", action, x, y)), nil
}

func typeText(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	udid, text := args.String("simulatorUuid"), args.String("text")
	if _, errResult, err := runAxe(ctx, d, udid, "simulate text typing", "type", text); err != nil || errResult != nil {
		return errResult, err
	}
	return response.Textf("Text typing simulated successfully: %q", response.Truncate(text)), nil
}

func button(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	udid, kind := args.String("simulatorUuid"), args.String("buttonType")
	argv, err := appendSeconds([]string{"button", kind}, args, "duration", "--duration")
	if err != nil {
		return nil, err
	}
	if _, errResult, err := runAxe(ctx, d, udid, "press button", argv...); err != nil || errResult != nil {
		return errResult, err
	}
	return response.Textf("Hardware button '%s' pressed successfully.", kind), nil
}

func keyPress(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	udid := args.String("simulatorUuid")
	code, _ := args.Int("keyCode")
	if code < 0 || code > 255 {
		return nil, toolerr.Validationf("keyCode must be between 0 and 255, got %d", code)
	}
	argv, err := appendSeconds([]string{"key", strconv.Itoa(code)}, args, "duration", "--duration")
	if err != nil {
		return nil, err
	}
	if _, errResult, err := runAxe(ctx, d, udid, "simulate key press", argv...); err != nil || errResult != nil {
		return errResult, err
	}
	return response.Textf("Key press (code: %d) simulated successfully.", code), nil
}

func gesture(ctx context.Context, d *plugin.Deps, args plugin.Args) (*response.ToolResult, error) {
	udid, preset := args.String("simulatorUuid"), args.String("preset")
	argv := []string{"gesture", preset}
	for _, dim := range []struct{ name, flag string }{
		{"screenWidth", "--screen-width"},
		{"screenHeight", "--screen-height"},
	} {
		if v, ok := args.Int(dim.name); ok {
			if v <= 0 {
				return nil, toolerr.Validationf("%s must be positive", dim.name)
			}
			argv = append(argv, dim.flag, strconv.Itoa(v))
		}
	}
	var err error
	if argv, err = appendSeconds(argv, args, "duration", "--duration"); err != nil {
		return nil, err
	}
	if argv, err = appendSeconds(argv, args, "delta", "--delta"); err != nil {
		return nil, err
	}
	if argv, err = delays(argv, args); err != nil {
		return nil, err
	}
	if _, errResult, err := runAxe(ctx, d, udid, "execute gesture", argv...); err != nil || errResult != nil {
		return errResult, err
	}
	return response.Textf("Gesture '%s' executed successfully.", preset), nil
}
