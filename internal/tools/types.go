// Package tools exposes the deterministic safety functions (standard lookup,
// checklist formatting) as model-callable tools.
//
// Architecture:
//
//	Model → llm.ToolCall → Registry.Execute() → Tool.Execute() → llm.ToolResult
package tools

import (
	"context"
	"errors"

	"safetycopilot/internal/llm"
)

// Tool registry errors.
var (
	// ErrToolNotFound is returned when a tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameEmpty is returned when a tool has no name.
	ErrToolNameEmpty = errors.New("tool name cannot be empty")

	// ErrToolExecuteNil is returned when a tool has no execute function.
	ErrToolExecuteNil = errors.New("tool execute function cannot be nil")

	// ErrToolAlreadyRegistered is returned when registering a duplicate.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrMissingRequiredArg is returned when a required argument is missing.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidArgType is returned when an argument has the wrong type.
	ErrInvalidArgType = errors.New("invalid argument type")
)

// ExecuteFunc runs a tool. The returned map is sent back to the model as the
// function response.
type ExecuteFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// Tool is a function the model may call.
type Tool struct {
	// Name is the identifier the model uses in its calls.
	Name string

	// Description explains what the tool does.
	Description string

	// Parameters describes the expected arguments as a JSON schema object.
	Parameters *llm.Schema

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Spec returns the declaration advertised to the model.
func (t *Tool) Spec() llm.ToolSpec {
	return llm.ToolSpec{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
}

func (t *Tool) required() []string {
	if t.Parameters == nil {
		return nil
	}
	return t.Parameters.Required
}
