// Copyright 2025 Joseph Cumines
//
// Package parse extracts structured records from the text and JSON output of
// the Apple developer tools.
//
// Every parser is total: malformed input yields a ParseFailure error or a
// zero-valued record, never a panic.
package parse

import (
	"path"
	"regexp"
	"strings"

	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
)

// Build setting keys consumed by AppPath.
const (
	KeyBuiltProductsDir = "BUILT_PRODUCTS_DIR"
	KeyFullProductName  = "FULL_PRODUCT_NAME"
	KeyBundleIdentifier = "PRODUCT_BUNDLE_IDENTIFIER"
)

// ErrAppPathMessage is reported when the product location cannot be derived.
const ErrAppPathMessage = "Failed to extract app path from build settings. Make sure the app has been built first."

var settingLine = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*) = (.*)$`)

// BuildSettings scans `xcodebuild -showBuildSettings` output. The first
// occurrence of a key wins; values are trimmed.
func BuildSettings(output string) map[string]string {
	settings := make(map[string]string)
	// No line length cap: one oversized value must not hide the keys after it.
	for line := range strings.Lines(output) {
		m := settingLine.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
		if m == nil {
			continue
		}
		if _, ok := settings[m[1]]; ok {
			continue
		}
		settings[m[1]] = strings.TrimSpace(m[2])
	}
	return settings
}

// Setting returns the first value of key in output.
func Setting(output, key string) (string, bool) {
	v, ok := BuildSettings(output)[key]
	return v, ok && v != ""
}

// AppPath joins BUILT_PRODUCTS_DIR and FULL_PRODUCT_NAME.
func AppPath(output string) (string, error) {
	settings := BuildSettings(output)
	dir, name := settings[KeyBuiltProductsDir], settings[KeyFullProductName]
	if dir == "" || name == "" {
		return "", toolerr.ParseFailure(ErrAppPathMessage)
	}
	return path.Join(dir, name), nil
}
