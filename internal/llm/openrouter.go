package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"safetycopilot/internal/logging"
)

const (
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel   = "google/gemini-2.0-flash-001"
)

// openRouterMaxRetries bounds retries on 429 responses.
const openRouterMaxRetries = 3

// OpenRouter implements Model against an OpenAI-compatible chat completions
// endpoint.
type OpenRouter struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	timeout     time.Duration
	backoff     func(attempt int) time.Duration
	mu          sync.Mutex
	lastRequest time.Time
}

type orMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []orToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

type orToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type orTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string  `json:"name"`
		Description string  `json:"description,omitempty"`
		Parameters  *Schema `json:"parameters,omitempty"`
	} `json:"function"`
}

type orRequest struct {
	Model       string      `json:"model"`
	Messages    []orMessage `json:"messages"`
	Tools       []orTool    `json:"tools,omitempty"`
	ToolChoice  string      `json:"tool_choice,omitempty"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
}

type orResponse struct {
	Choices []struct {
		Message      orMessage `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenRouter creates an OpenRouter model client.
func NewOpenRouter(cfg ProviderConfig) (*OpenRouter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter: %w", ErrNoAPIKey)
	}
	c := &OpenRouter{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		timeout: cfg.timeout(),
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt-1)) * time.Second
		},
		httpClient: cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultOpenRouterBaseURL
	}
	if c.model == "" {
		c.model = DefaultOpenRouterModel
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

func (c *OpenRouter) Name() string     { return c.model }
func (c *OpenRouter) Provider() string { return "openrouter" }

// Generate posts the conversation to /chat/completions, retrying on 429.
func (c *OpenRouter) Generate(ctx context.Context, req *Request) (*Response, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	startTime := time.Now()
	body, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}
	logging.APIDebug("[OpenRouter] Generate: model=%s messages=%d tools=%d", body.Model, len(body.Messages), len(body.Tools))

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= openRouterMaxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(c.backoff(i)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("X-Title", "SafetyCopilot")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			logging.APIDebug("[OpenRouter] Generate: 429 on attempt %d", i+1)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(raw))
		}

		var orResp orResponse
		if err := json.Unmarshal(raw, &orResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if orResp.Error != nil {
			return nil, fmt.Errorf("API error: %s", orResp.Error.Message)
		}
		if len(orResp.Choices) == 0 {
			return nil, fmt.Errorf("openrouter: %w", ErrEmptyResponse)
		}

		msg := orResp.Choices[0].Message
		out := &Response{
			Model: body.Model,
			Text:  strings.TrimSpace(msg.Content),
			Usage: Usage{
				InputTokens:  orResp.Usage.PromptTokens,
				OutputTokens: orResp.Usage.CompletionTokens,
			},
		}
		for _, tc := range msg.ToolCalls {
			args := map[string]any{}
			if strings.TrimSpace(tc.Function.Arguments) != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					return nil, fmt.Errorf("failed to parse arguments of %s: %w", tc.Function.Name, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
		}

		logging.API("[OpenRouter] Generate: completed in %v text_len=%d tool_calls=%d", time.Since(startTime), len(out.Text), len(out.ToolCalls))
		return out, nil
	}

	logging.APIError("[OpenRouter] Generate: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *OpenRouter) buildRequest(req *Request) (*orRequest, error) {
	body := &orRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
	}
	if body.Model == "" {
		body.Model = c.model
	}
	if req.System != "" {
		body.Messages = append(body.Messages, orMessage{Role: "system", Content: req.System})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			body.Messages = append(body.Messages, orMessage{Role: "user", Content: m.Text})
		case RoleModel:
			msg := orMessage{Role: "assistant", Content: m.Text}
			for _, tc := range m.ToolCalls {
				args, err := json.Marshal(tc.Args)
				if err != nil {
					return nil, fmt.Errorf("failed to encode arguments of %s: %w", tc.Name, err)
				}
				call := orToolCall{ID: tc.ID, Type: "function"}
				call.Function.Name = tc.Name
				call.Function.Arguments = string(args)
				msg.ToolCalls = append(msg.ToolCalls, call)
			}
			body.Messages = append(body.Messages, msg)
		case RoleTool:
			for _, tr := range m.ToolResults {
				content, err := json.Marshal(tr.Content)
				if err != nil {
					return nil, fmt.Errorf("failed to encode result of %s: %w", tr.Name, err)
				}
				body.Messages = append(body.Messages, orMessage{
					Role:       "tool",
					Content:    string(content),
					ToolCallID: tr.CallID,
				})
			}
		default:
			return nil, fmt.Errorf("openrouter: unsupported message role %q", m.Role)
		}
	}

	for _, t := range req.Tools {
		tool := orTool{Type: "function"}
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.Parameters
		body.Tools = append(body.Tools, tool)
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = "auto"
	}
	return body, nil
}
