// Copyright 2025 Joseph Cumines
//
// xcodebuild -list

package parse

import (
	"bufio"
	"strings"
)

// Schemes extracts the scheme names from `xcodebuild -list` output.
func Schemes(output string) []string {
	var (
		schemes []string
		in      bool
	)
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "Schemes:":
			in = true
		case !in:
		case line == "" || strings.HasSuffix(line, ":"):
			in = false
		default:
			schemes = append(schemes, line)
		}
	}
	return schemes
}

// Diagnostic is a compiler or build system message.
type Diagnostic struct {
	Warning bool
	Text    string
}

// Diagnostics extracts warning and error lines from xcodebuild output.
// Lines match case-insensitively on "warning:" and "error:".
func Diagnostics(output string) []Diagnostic {
	var out []Diagnostic
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "warning:"):
			out = append(out, Diagnostic{Warning: true, Text: line})
		case strings.Contains(lower, "error:"):
			out = append(out, Diagnostic{Text: line})
		}
	}
	return out
}

// String renders the diagnostic as a content line.
func (d Diagnostic) String() string {
	if d.Warning {
		return "⚠️ Warning: " + d.Text
	}
	return "❌ Error: " + d.Text
}
