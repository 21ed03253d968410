// Package tools defines the tool-registry contract the executor invokes
// tools through. The engine never implements a tool body; registries are
// collaborators supplied at construction.
package tools

import (
	"context"
	"fmt"
	"sync"
)

// Registry resolves and invokes tools by name. Implementations must be safe
// for concurrent use: many executions share one registry.
type Registry interface {
	// Invoke calls the named tool with resolved arguments and returns its
	// result text. Tool failures come back as errors; the caller decides
	// whether and how to remediate.
	Invoke(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// Func is a single tool implementation.
type Func func(ctx context.Context, args map[string]interface{}) (string, error)

// FuncRegistry is a Registry backed by a name→function map. Read-mostly:
// registration happens at startup, invocation afterwards.
type FuncRegistry struct {
	mu    sync.RWMutex
	tools map[string]Func
}

// NewFuncRegistry creates an empty FuncRegistry.
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{tools: map[string]Func{}}
}

// Register adds or replaces a tool.
func (r *FuncRegistry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = fn
}

// Invoke implements Registry.
func (r *FuncRegistry) Invoke(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	r.mu.RLock()
	fn, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("tool %q not registered", name)
	}
	return fn(ctx, args)
}
