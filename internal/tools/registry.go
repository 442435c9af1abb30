package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"safetycopilot/internal/llm"
	"safetycopilot/internal/logging"
)

// Registry holds the tools available to an agent.
// It is thread-safe and keeps registration order for the model declarations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

// NewRegistry creates a new registry holding the given tools.
func NewRegistry(tools ...*Tool) *Registry {
	r := &Registry{tools: make(map[string]*Tool)}
	for _, t := range tools {
		r.MustRegister(t)
	}
	return r
}

// Register adds a tool to the registry.
// Returns an error if a tool with the same name already exists.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}

	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)

	logging.ToolsDebug("Registered tool: %s", tool.Name)
	return nil
}

// MustRegister registers a tool and panics on error.
// Use this for static tool registration.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Specs returns the model declarations in registration order.
func (r *Registry) Specs() []llm.ToolSpec {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

// Execute runs the tool a model asked for. Unknown tools, invalid arguments
// and execution failures become error results for the model; they never
// abort the caller.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	start := time.Now()
	result := llm.ToolResult{CallID: call.ID, Name: call.Name}

	tool := r.Get(call.Name)
	if tool == nil {
		logging.ToolsWarn("Model called unknown tool: %s", call.Name)
		return errorResult(result, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name))
	}
	if err := validateArgs(tool, call.Args); err != nil {
		logging.ToolsWarn("Tool %s rejected arguments: %v", tool.Name, err)
		return errorResult(result, err)
	}

	logging.ToolsDebug("Executing tool: %s", tool.Name)
	out, err := tool.Execute(ctx, call.Args)
	logging.ToolsDebug("Tool %s completed in %v (success=%v)", tool.Name, time.Since(start), err == nil)
	if err != nil {
		return errorResult(result, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	result.Content = out
	return result
}

func errorResult(r llm.ToolResult, err error) llm.ToolResult {
	r.IsError = true
	r.Content = map[string]any{"error": err.Error()}
	return r
}

// validateArgs checks that all required arguments are present.
func validateArgs(tool *Tool, args map[string]any) error {
	for _, required := range tool.required() {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, required)
		}
	}
	return nil
}

// stringArg reads a string argument. Missing optional arguments yield "".
func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidArgType, name, v)
	}
	return s, nil
}
