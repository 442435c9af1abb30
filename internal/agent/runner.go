package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"safetycopilot/internal/llm"
	"safetycopilot/internal/logging"
	"safetycopilot/internal/session"
	"safetycopilot/internal/usage"
)

// DefaultMaxToolRounds bounds the tool-call loop of a single run.
const DefaultMaxToolRounds = 8

// ErrToolLoop is returned when the model keeps calling tools.
var ErrToolLoop = errors.New("tool call limit exceeded")

// Runner executes one agent against one model and session service.
type Runner struct {
	appName       string
	agent         *Agent
	model         llm.Model
	sessions      session.Service
	maxToolRounds int
	tracker       *usage.Tracker
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxToolRounds sets the tool round limit. Values below 1 are ignored.
func WithMaxToolRounds(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxToolRounds = n
		}
	}
}

// WithUsageTracker records every model call. Without it the tracker carried
// by the run's context, if any, is used.
func WithUsageTracker(t *usage.Tracker) RunnerOption {
	return func(r *Runner) { r.tracker = t }
}

// NewRunner creates a runner for agent a.
func NewRunner(appName string, a *Agent, model llm.Model, sessions session.Service, opts ...RunnerOption) *Runner {
	r := &Runner{
		appName:       appName,
		agent:         a,
		model:         model,
		sessions:      sessions,
		maxToolRounds: DefaultMaxToolRounds,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Agent returns the runner's agent.
func (r *Runner) Agent() *Agent { return r.agent }

// AppName returns the application the runner's sessions belong to.
func (r *Runner) AppName() string { return r.appName }

// Run sends message in the given session and streams the resulting events.
// The last event of a successful run is final. On success the user message
// and the final response are appended to the session history.
func (r *Runner) Run(ctx context.Context, userID, sessionID, message string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		key := session.Key{AppName: r.appName, UserID: userID, ID: sessionID}
		author := r.agent.Name
		start := time.Now()

		sess, err := r.sessions.GetSession(ctx, key)
		if err != nil {
			yield(Event{}, fmt.Errorf("%s: %w", author, err))
			return
		}

		msgs := historyMessages(sess.Turns)
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Text: message})
		logging.AgentDebug("[%s] run: session=%s history=%d", author, sessionID, len(sess.Turns))

		var total llm.Usage
		for round := 0; ; round++ {
			if err := ctx.Err(); err != nil {
				yield(Event{}, err)
				return
			}

			resp, err := r.model.Generate(ctx, &llm.Request{
				Model:           r.agent.Model,
				System:          r.agent.Instruction,
				Messages:        msgs,
				Tools:           r.agent.Tools.Specs(),
				Temperature:     r.agent.Temperature,
				MaxOutputTokens: r.agent.MaxOutputTokens,
			})
			if err != nil {
				logging.AgentWarn("[%s] model call failed: %v", author, err)
				yield(Event{}, fmt.Errorf("%s: %w", author, err))
				return
			}
			total.InputTokens += resp.Usage.InputTokens
			total.OutputTokens += resp.Usage.OutputTokens
			r.track(ctx, sessionID, resp)

			if !resp.HasToolCalls() {
				if err := r.sessions.AppendTurn(ctx, key,
					session.Turn{Role: session.RoleUser, Author: "user", Text: message},
					session.Turn{Role: session.RoleModel, Author: author, Text: resp.Text},
				); err != nil {
					yield(Event{}, fmt.Errorf("%s: save history: %w", author, err))
					return
				}
				logging.Agent("[%s] run finished in %v: rounds=%d text_len=%d", author, time.Since(start), round, len(resp.Text))
				yield(Event{Author: author, Kind: KindFinal, Text: resp.Text, Usage: total}, nil)
				return
			}

			if round >= r.maxToolRounds {
				logging.AgentWarn("[%s] tool loop exceeded %d rounds", author, r.maxToolRounds)
				yield(Event{}, fmt.Errorf("%s: %w (%d rounds)", author, ErrToolLoop, r.maxToolRounds))
				return
			}

			msgs = append(msgs, llm.Message{Role: llm.RoleModel, Text: resp.Text, ToolCalls: resp.ToolCalls})
			results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
			for i := range resp.ToolCalls {
				call := resp.ToolCalls[i]
				if !yield(Event{Author: author, Kind: KindToolCall, Call: &call}, nil) {
					return
				}
				result := r.agent.Tools.Execute(ctx, call)
				results = append(results, result)
				if !yield(Event{Author: author, Kind: KindToolResult, Call: &call, Result: &result}, nil) {
					return
				}
			}
			msgs = append(msgs, llm.Message{Role: llm.RoleTool, ToolResults: results})
		}
	}
}

func (r *Runner) track(ctx context.Context, sessionID string, resp *llm.Response) {
	t := r.tracker
	if t == nil {
		t = usage.FromContext(ctx)
	}
	if t == nil {
		return
	}
	model := resp.Model
	if model == "" {
		model = r.model.Name()
	}
	t.Track(usage.UsageEvent{
		Timestamp:    time.Now(),
		Provider:     r.model.Provider(),
		Model:        model,
		Agent:        r.agent.Name,
		SessionID:    sessionID,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	})
}

func historyMessages(turns []session.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns)+1)
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == session.RoleModel {
			role = llm.RoleModel
		}
		msgs = append(msgs, llm.Message{Role: role, Text: t.Text})
	}
	return msgs
}
