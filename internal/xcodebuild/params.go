// Copyright 2025 Joseph Cumines
//
// Package xcodebuild builds and runs xcodebuild invocations and normalizes
// their results.
package xcodebuild

import (
	"fmt"
	"strings"

	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
)

// Platform is an xcodebuild destination platform.
type Platform string

const (
	PlatformMacOS             Platform = "macOS"
	PlatformIOS               Platform = "iOS"
	PlatformIOSSimulator      Platform = "iOS Simulator"
	PlatformWatchOS           Platform = "watchOS"
	PlatformWatchOSSimulator  Platform = "watchOS Simulator"
	PlatformTvOS              Platform = "tvOS"
	PlatformTvOSSimulator     Platform = "tvOS Simulator"
	PlatformVisionOS          Platform = "visionOS"
	PlatformVisionOSSimulator Platform = "visionOS Simulator"
)

// Platforms lists every supported platform.
var Platforms = []Platform{
	PlatformMacOS,
	PlatformIOS,
	PlatformIOSSimulator,
	PlatformWatchOS,
	PlatformWatchOSSimulator,
	PlatformTvOS,
	PlatformTvOSSimulator,
	PlatformVisionOS,
	PlatformVisionOSSimulator,
}

// ParsePlatform validates s.
func ParsePlatform(s string) (Platform, error) {
	for _, p := range Platforms {
		if string(p) == s {
			return p, nil
		}
	}
	return "", toolerr.Validationf("Unsupported platform: %s", s)
}

// IsSimulator reports whether p is a simulator platform.
func (p Platform) IsSimulator() bool {
	return strings.HasSuffix(string(p), " Simulator")
}

// DefaultConfiguration is applied when no configuration is given.
const DefaultConfiguration = "Debug"

// Params are the inputs shared by every xcodebuild invocation.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Params struct {
	ProjectPath     string
	WorkspacePath   string
	Scheme          string
	Configuration   string
	Platform        Platform
	SimulatorID     string
	SimulatorName   string
	UseLatestOS     bool
	DeviceID        string
	Arch            string
	DerivedDataPath string
	ExtraArgs       []string
}

func (p Params) configuration() string {
	if p.Configuration == "" {
		return DefaultConfiguration
	}
	return p.Configuration
}

// Destination renders the -destination argument.
func (p Params) Destination() (string, error) {
	switch {
	case p.Platform == "":
		return "", toolerr.Validation("platform is required")
	case p.Platform == PlatformMacOS:
		if p.Arch != "" {
			return "platform=macOS,arch=" + p.Arch, nil
		}
		return "platform=macOS", nil
	case !p.Platform.IsSimulator():
		if p.DeviceID != "" {
			return fmt.Sprintf("platform=%s,id=%s", p.Platform, p.DeviceID), nil
		}
		return "generic/platform=" + string(p.Platform), nil
	case p.SimulatorID != "":
		return fmt.Sprintf("platform=%s,id=%s", p.Platform, p.SimulatorID), nil
	case p.SimulatorName != "":
		d := fmt.Sprintf("platform=%s,name=%s", p.Platform, p.SimulatorName)
		if p.UseLatestOS {
			d += ",OS=latest"
		}
		return d, nil
	default:
		return "generic/platform=" + string(p.Platform), nil
	}
}

func (p Params) container() ([]string, error) {
	switch {
	case p.WorkspacePath != "" && p.ProjectPath != "":
		return nil, toolerr.Validation("projectPath and workspacePath are mutually exclusive. Provide only one.")
	case p.WorkspacePath != "":
		return []string{"-workspace", p.WorkspacePath}, nil
	case p.ProjectPath != "":
		return []string{"-project", p.ProjectPath}, nil
	default:
		return nil, toolerr.Validation("Either projectPath or workspacePath is required.")
	}
}

// Command builds `xcodebuild ... <action>`. Simulator destinations contain
// spaces and commas, so they run through the shell.
func Command(p Params, action string) (executor.CommandSpec, error) {
	container, err := p.container()
	if err != nil {
		return executor.CommandSpec{}, err
	}
	if p.Scheme == "" {
		return executor.CommandSpec{}, toolerr.Validation("scheme is required")
	}
	dest, err := p.Destination()
	if err != nil {
		return executor.CommandSpec{}, err
	}

	args := append([]string{"xcodebuild"}, container...)
	args = append(args,
		"-scheme", p.Scheme,
		"-configuration", p.configuration(),
		"-skipMacroValidation",
		"-destination", dest,
	)
	if p.DerivedDataPath != "" {
		args = append(args, "-derivedDataPath", p.DerivedDataPath)
	}
	args = append(args, p.ExtraArgs...)
	args = append(args, action)

	return executor.CommandSpec{
		Args:     args,
		Label:    fmt.Sprintf("%s %s", p.Platform, action),
		UseShell: p.Platform.IsSimulator(),
	}, nil
}

// ShowBuildSettingsCommand builds `xcodebuild -showBuildSettings ...`.
func ShowBuildSettingsCommand(p Params) (executor.CommandSpec, error) {
	container, err := p.container()
	if err != nil {
		return executor.CommandSpec{}, err
	}
	if p.Scheme == "" {
		return executor.CommandSpec{}, toolerr.Validation("scheme is required")
	}
	args := append([]string{"xcodebuild", "-showBuildSettings"}, container...)
	args = append(args, "-scheme", p.Scheme, "-configuration", p.configuration())
	if p.Platform != "" {
		dest, err := p.Destination()
		if err != nil {
			return executor.CommandSpec{}, err
		}
		args = append(args, "-destination", dest)
	}
	if p.DerivedDataPath != "" {
		args = append(args, "-derivedDataPath", p.DerivedDataPath)
	}
	args = append(args, p.ExtraArgs...)
	return executor.CommandSpec{
		Args:     args,
		Label:    "Get App Path",
		UseShell: p.Platform.IsSimulator(),
	}, nil
}

// ListCommand builds `xcodebuild -list` for a project or workspace.
func ListCommand(p Params) (executor.CommandSpec, error) {
	container, err := p.container()
	if err != nil {
		return executor.CommandSpec{}, err
	}
	return executor.CommandSpec{
		Args:  append([]string{"xcodebuild", "-list"}, container...),
		Label: "List Schemes",
	}, nil
}
