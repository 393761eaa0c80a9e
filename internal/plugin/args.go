// Copyright 2025 Joseph Cumines
//
// Typed argument access

package plugin

import (
	"fmt"
	"math"
	"strings"

	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
)

// Args are decoded tool arguments. Accessors never panic on a wrong type;
// they report absence instead, since the schema check has already run.
type Args map[string]any

// Has reports whether name is present and non-null.
func (a Args) Has(name string) bool {
	v, ok := a[name]
	return ok && v != nil
}

// set treats empty strings as absent.
func (a Args) set(name string) bool {
	return a.Has(name) && a[name] != ""
}

// String returns a string argument, or "".
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// StringOr returns a string argument, or def when absent or empty.
func (a Args) StringOr(name, def string) string {
	if s := a.String(name); s != "" {
		return s
	}
	return def
}

// Bool returns a boolean argument, or false.
func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// Float returns a numeric argument.
func (a Args) Float(name string) (float64, bool) {
	switch v := a[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int returns an integral numeric argument.
func (a Args) Int(name string) (int, bool) {
	f, ok := a.Float(name)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// Strings returns an array of strings argument. Non-string elements are
// skipped.
func (a Args) Strings(name string) []string {
	switch v := a[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// MissingParam is the message for an absent required parameter.
func MissingParam(name string) string {
	return fmt.Sprintf("Required parameter '%s' is missing. Please provide a value for this parameter.", name)
}

// Require checks names in order and reports the first missing one.
func (a Args) Require(names ...string) error {
	for _, n := range names {
		if !a.Has(n) {
			return toolerr.Validation(MissingParam(n))
		}
	}
	return nil
}

// RequireOneOf requires at least one of names to be set.
func (a Args) RequireOneOf(names ...string) error {
	for _, n := range names {
		if a.set(n) {
			return nil
		}
	}
	return toolerr.Validationf("Either %s must be provided.", joinOr(names))
}

// Exclusive rejects more than one of names being set.
func (a Args) Exclusive(names ...string) error {
	var set []string
	for _, n := range names {
		if a.set(n) {
			set = append(set, n)
		}
	}
	if len(set) > 1 {
		return toolerr.Validationf("%s are mutually exclusive. Provide only one.", strings.Join(set, " and "))
	}
	return nil
}

// ExactlyOneOf combines RequireOneOf and Exclusive.
func (a Args) ExactlyOneOf(names ...string) error {
	if err := a.RequireOneOf(names...); err != nil {
		return err
	}
	return a.Exclusive(names...)
}

func joinOr(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
	}
}
