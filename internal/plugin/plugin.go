// Copyright 2025 Joseph Cumines
//
// Package plugin defines the schema-validated tool operations exposed by the
// server, and the registry that dispatches them.
//
// Every invocation follows the same steps: required parameters are checked
// in declaration order, the arguments are validated against the tool's JSON
// schema, then the handler runs. Errors and panics never leave Invoke; they
// are rendered as error envelopes.
package plugin

import (
	"context"

	"github.com/joeycumines/xcodebuild-mcp/internal/response"
)

// Handler implements a plugin. A returned error is rendered into an error
// envelope by the registry.
type Handler func(ctx context.Context, deps *Deps, args Args) (*response.ToolResult, error)

// Plugin is a named tool operation.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Plugin struct {
	Name        string
	Description string
	// Workflow groups related plugins, e.g. "simulator" or "logging".
	Workflow string
	Params   Params
	Handler  Handler
}

// Param declares one tool parameter.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Enum        []string
	Default     any
	// Items is the element type of array parameters.
	Items string
}

// String declares a string parameter.
func String(name, description string) Param {
	return Param{Name: name, Type: "string", Description: description}
}

// Bool declares a boolean parameter.
func Bool(name, description string) Param {
	return Param{Name: name, Type: "boolean", Description: description}
}

// Number declares a numeric parameter.
func Number(name, description string) Param {
	return Param{Name: name, Type: "number", Description: description}
}

// Integer declares an integer parameter.
func Integer(name, description string) Param {
	return Param{Name: name, Type: "integer", Description: description}
}

// StringArray declares an array of strings.
func StringArray(name, description string) Param {
	return Param{Name: name, Type: "array", Description: description, Items: "string"}
}

// Req marks the parameter required.
func (p Param) Req() Param {
	p.Required = true
	return p
}

// OneOf restricts the parameter to the given values.
func (p Param) OneOf(values ...string) Param {
	p.Enum = values
	return p
}

// WithDefault documents the default applied by the handler.
func (p Param) WithDefault(v any) Param {
	p.Default = v
	return p
}

// Params is an ordered parameter list. Declaration order is validation order.
type Params []Param

// Required returns the required parameter names in declaration order.
func (ps Params) Required() []string {
	var out []string
	for _, p := range ps {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// Schema returns the JSON schema of the parameter object.
func (ps Params) Schema() map[string]any {
	props := make(map[string]any, len(ps))
	for _, p := range ps {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for i, v := range p.Enum {
				enum[i] = v
			}
			prop["enum"] = enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Items != "" {
			prop["items"] = map[string]any{"type": p.Items}
		}
		props[p.Name] = prop
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if req := ps.Required(); len(req) > 0 {
		r := make([]any, len(req))
		for i, v := range req {
			r[i] = v
		}
		schema["required"] = r
	}
	return schema
}
