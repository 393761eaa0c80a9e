// Copyright 2025 Joseph Cumines
//
// xcresulttool test summaries

package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
)

// TestSummary is the output of `xcrun xcresulttool get test-results summary`.
// Counts default to zero; every other field is optional.
type TestSummary struct {
	Title                    string         `json:"title,omitempty"`
	Result                   string         `json:"result,omitempty"`
	TotalTestCount           int            `json:"totalTestCount"`
	PassedTests              int            `json:"passedTests"`
	FailedTests              int            `json:"failedTests"`
	SkippedTests             int            `json:"skippedTests"`
	ExpectedFailures         int            `json:"expectedFailures"`
	EnvironmentDescription   string         `json:"environmentDescription,omitempty"`
	DevicesAndConfigurations []DeviceConfig `json:"devicesAndConfigurations,omitempty"`
	TestFailures             []TestFailure  `json:"testFailures,omitempty"`
	TopInsights              []TestInsight  `json:"topInsights,omitempty"`
}

// DeviceConfig describes the device a test run executed on.
type DeviceConfig struct {
	Device *TestDevice `json:"device,omitempty"`
}

// TestDevice is the device descriptor of a test run.
type TestDevice struct {
	DeviceName string `json:"deviceName,omitempty"`
	Platform   string `json:"platform,omitempty"`
	OSVersion  string `json:"osVersion,omitempty"`
}

// TestFailure is a single failed test.
type TestFailure struct {
	TestName    string `json:"testName,omitempty"`
	TargetName  string `json:"targetName,omitempty"`
	FailureText string `json:"failureText,omitempty"`
}

// TestInsight is a single insight reported by xcresulttool.
type TestInsight struct {
	Impact string `json:"impact,omitempty"`
	Text   string `json:"text,omitempty"`
}

// ParseTestSummary decodes the JSON summary. Anything other than a JSON
// object is a parse failure.
func ParseTestSummary(data []byte) (*TestSummary, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, toolerr.ParseFailuref("invalid test summary JSON")
	}
	var s TestSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, toolerr.ParseFailuref("unexpected test summary shape: %v", err)
	}
	return &s, nil
}

// Device returns the first device descriptor, if any.
func (s *TestSummary) Device() *TestDevice {
	for _, dc := range s.DevicesAndConfigurations {
		if dc.Device != nil {
			return dc.Device
		}
	}
	return nil
}

// Format renders the summary as human-readable text. Optional sections are
// omitted entirely when their data is absent.
func (s *TestSummary) Format() string {
	var b strings.Builder

	title := s.Title
	if title == "" {
		title = "Unknown"
	}
	result := s.Result
	if result == "" {
		result = "Unknown"
	}
	fmt.Fprintf(&b, "Test Summary: %s\n", title)
	fmt.Fprintf(&b, "Overall Result: %s\n", result)
	b.WriteString("\nTest Counts:\n")
	fmt.Fprintf(&b, "  Total: %d\n", s.TotalTestCount)
	fmt.Fprintf(&b, "  Passed: %d\n", s.PassedTests)
	fmt.Fprintf(&b, "  Failed: %d\n", s.FailedTests)
	fmt.Fprintf(&b, "  Skipped: %d\n", s.SkippedTests)
	fmt.Fprintf(&b, "  Expected Failures: %d\n", s.ExpectedFailures)

	if s.EnvironmentDescription != "" {
		fmt.Fprintf(&b, "\nEnvironment: %s\n", s.EnvironmentDescription)
	}

	if d := s.Device(); d != nil {
		fmt.Fprintf(&b, "\nDevice: %s (%s %s)\n", d.DeviceName, d.Platform, d.OSVersion)
	}

	if len(s.TestFailures) > 0 {
		b.WriteString("\nTest Failures:\n")
		for i, f := range s.TestFailures {
			fmt.Fprintf(&b, "  %d. %s (%s)\n", i+1, f.TestName, f.TargetName)
			if f.FailureText != "" {
				fmt.Fprintf(&b, "     %s\n", f.FailureText)
			}
		}
	}

	if len(s.TopInsights) > 0 {
		b.WriteString("\nInsights:\n")
		for i, in := range s.TopInsights {
			impact := in.Impact
			if impact == "" {
				impact = "Unknown"
			}
			fmt.Fprintf(&b, "  %d. [%s] %s\n", i+1, impact, in.Text)
		}
	}

	return b.String()
}
