package agent

import (
	"context"
	"fmt"

	"github.com/careerpilot/careerpilot/internal/provider"
)

// ToolHandler executes a tool call and returns the result as a string.
type ToolHandler func(ctx context.Context, args string) (string, error)

// ToolRegistry holds available tools and their handlers. Registration is
// plain map semantics: re-registering a name replaces the previous entry.
type ToolRegistry struct {
	order    []string
	defs     map[string]provider.Tool
	handlers map[string]ToolHandler
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		defs:     make(map[string]provider.Tool),
		handlers: make(map[string]ToolHandler),
	}
}

// Register adds a tool definition and its handler. Last write wins.
func (r *ToolRegistry) Register(def provider.Tool, handler ToolHandler) {
	name := def.Function.Name
	if _, exists := r.defs[name]; !exists {
		r.order = append(r.order, name)
	}
	r.defs[name] = def
	r.handlers[name] = handler
}

// Lookup returns the definition for a tool name.
func (r *ToolRegistry) Lookup(name string) (provider.Tool, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Definitions returns tool definitions for the given names, preserving
// registration order. With no names it returns every registered tool.
func (r *ToolRegistry) Definitions(names ...string) []provider.Tool {
	if len(names) == 0 {
		out := make([]provider.Tool, 0, len(r.order))
		for _, n := range r.order {
			out = append(out, r.defs[n])
		}
		return out
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []provider.Tool
	for _, n := range r.order {
		if want[n] {
			out = append(out, r.defs[n])
		}
	}
	return out
}

// Execute runs a tool by name with the given JSON arguments. Failures
// propagate to the caller; the registry performs no retries.
func (r *ToolRegistry) Execute(ctx context.Context, name, args string) (string, error) {
	h, ok := r.handlers[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return h(ctx, args)
}
