// Copyright 2025 Joseph Cumines
//
// Plugin registry and dispatch

package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joeycumines/xcodebuild-mcp/internal/response"
	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ErrUnknownTool is returned by Invoke for names that are not registered.
var ErrUnknownTool = errors.New("tool not found")

type entry struct {
	plugin *Plugin
	schema *jsonschema.Schema
}

// Observer is notified after every invocation of a registered plugin. cause
// is the error rendered into an error envelope, if any; a handler that
// returns a failure envelope directly leaves it nil.
type Observer func(name string, args json.RawMessage, res *response.ToolResult, cause error, elapsed time.Duration)

// Registry holds plugins by name.
type Registry struct {
	// Observer must be set before the registry is shared.
	Observer Observer

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds plugins, compiling their parameter schemas.
func (r *Registry) Register(plugins ...*Plugin) error {
	for _, p := range plugins {
		if p.Name == "" || p.Handler == nil {
			return fmt.Errorf("plugin %q: name and handler are required", p.Name)
		}
		sch, err := compile(p)
		if err != nil {
			return fmt.Errorf("plugin %s: %w", p.Name, err)
		}
		r.mu.Lock()
		if _, dup := r.entries[p.Name]; dup {
			r.mu.Unlock()
			return fmt.Errorf("plugin %s: already registered", p.Name)
		}
		r.entries[p.Name] = &entry{plugin: p, schema: sch}
		r.mu.Unlock()
	}
	return nil
}

func compile(p *Plugin) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(p.Params.Schema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	url := p.Name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return sch, nil
}

// Get returns the plugin registered as name.
func (r *Registry) Get(name string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.plugin, true
}

// List returns all plugins sorted by name.
func (r *Registry) List() []*Plugin {
	r.mu.RLock()
	out := make([]*Plugin, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.plugin)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Invoke runs the named plugin. The only error returned is ErrUnknownTool;
// every other failure is an error envelope.
func (r *Registry) Invoke(ctx context.Context, name string, rawArgs json.RawMessage, deps *Deps) (*response.ToolResult, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	start := time.Now()
	res, cause := e.invoke(ctx, rawArgs, deps)
	if r.Observer != nil {
		r.Observer(name, rawArgs, res, cause, time.Since(start))
	}
	return res, nil
}

func (e *entry) invoke(ctx context.Context, rawArgs json.RawMessage, deps *Deps) (result *response.ToolResult, cause error) {
	name := e.plugin.Name
	fail := func(err error) (*response.ToolResult, error) {
		return response.FromError(err, name), err
	}
	defer func() {
		if rec := recover(); rec != nil {
			deps.Log().Error("plugin panicked", slog.String("tool", name), slog.Any("panic", rec))
			result, cause = fail(toolerr.From(rec))
		}
	}()

	if len(bytes.TrimSpace(rawArgs)) == 0 || bytes.Equal(bytes.TrimSpace(rawArgs), []byte("null")) {
		rawArgs = json.RawMessage(`{}`)
	}
	var args Args
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return fail(toolerr.Validationf("Invalid arguments for %s: %v", name, err))
	}
	if args == nil {
		args = Args{}
	}

	if err := args.Require(e.plugin.Params.Required()...); err != nil {
		return fail(err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(rawArgs))
	if err != nil {
		return fail(toolerr.Validationf("Invalid arguments for %s: %v", name, err))
	}
	if err := e.schema.Validate(inst); err != nil {
		return fail(toolerr.Validationf("Invalid parameters for %s: %s", name, schemaMessage(err)))
	}

	res, err := e.plugin.Handler(ctx, deps, args)
	switch {
	case err != nil:
		deps.Log().Debug("plugin failed", slog.String("tool", name), slog.Any("error", err))
		return fail(err)
	case res == nil || len(res.Content) == 0:
		return fail(toolerr.System(errors.New("no result")))
	default:
		return res, nil
	}
}

// schemaMessage flattens a jsonschema validation error to its leaf causes.
func schemaMessage(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	printer := message.NewPrinter(language.English)
	var msgs []string
	var walk func(*jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			loc := "/" + strings.Join(v.InstanceLocation, "/")
			msgs = append(msgs, fmt.Sprintf("%s: %s", loc, v.ErrorKind.LocalizedString(printer)))
			return
		}
		for _, c := range v.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(msgs, "; ")
}
