// Package llm defines the text-generation contract used by the agents and
// its providers: Gemini (google.golang.org/genai), OpenRouter and a
// deterministic offline model.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Role identifies the author of a message in a conversation.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// Message is one entry of the conversation sent to a model.
//
// User and model messages carry Text. A model message may carry ToolCalls
// instead of (or in addition to) text; the following tool message carries
// one ToolResult per call.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	CallID  string         `json:"call_id,omitempty"`
	Name    string         `json:"name"`
	Content map[string]any `json:"content"`
	IsError bool           `json:"is_error,omitempty"`
}

// Schema is a JSON-schema subset describing tool parameters.
type Schema struct {
	Type        string             `json:"type"` // object, string, array, integer, number, boolean
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// ToolSpec advertises a callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *Schema
}

// Request is a single generation call.
type Request struct {
	// Model overrides the provider's default model when set.
	Model           string
	System          string
	Messages        []Message
	Tools           []ToolSpec
	// Temperature is left to the provider when nil.
	Temperature     *float64
	MaxOutputTokens int
}

// Usage reports token consumption of one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the model's answer to a Request.
type Response struct {
	Model     string
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// HasToolCalls reports whether the model asked for tools to run.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Model generates responses for requests.
type Model interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	// Name is the default model identifier, e.g. "gemini-2.0-flash".
	Name() string
	// Provider is the backend name, e.g. "gemini".
	Provider() string
}

var (
	ErrNoAPIKey        = errors.New("API key not configured")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrEmptyResponse   = errors.New("no candidates returned")
)

// LastUserText returns the text of the most recent user message.
func LastUserText(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Text
		}
	}
	return ""
}

// toJSONMap converts any JSON-serialisable value into a generic map. Tool
// results are produced in-process as typed values and must be sent to
// providers as plain JSON objects.
func toJSONMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
