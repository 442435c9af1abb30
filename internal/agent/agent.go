// Package agent runs LLM-backed agents over persistent sessions. A Runner
// sends an agent's instruction and history to a model, executes the tools
// the model asks for and reports the exchange as a stream of events.
package agent

import (
	"iter"

	"safetycopilot/internal/llm"
	"safetycopilot/internal/tools"
)

// Built-in agent names.
const (
	PlannerName = "planner_agent"
	CheckerName = "checker_agent"
)

// Agent is a named instruction plus the tools it may call.
type Agent struct {
	Name        string
	Instruction string
	// Tools may be nil for agents that rely only on the model.
	Tools *tools.Registry

	// Model overrides the model's default identifier when set.
	Model           string
	Temperature     *float64 // nil = provider default
	MaxOutputTokens int
}

// NewPlanner returns the planning agent with the lookup and formatter tools.
func NewPlanner() *Agent {
	return &Agent{
		Name:        PlannerName,
		Instruction: PlannerInstruction,
		Tools:       tools.PlannerRegistry(),
	}
}

// NewChecker returns the reviewing agent. It has no tools.
func NewChecker() *Agent {
	return &Agent{
		Name:        CheckerName,
		Instruction: CheckerInstruction,
	}
}

// EventKind classifies an Event.
type EventKind string

const (
	KindToolCall   EventKind = "tool_call"
	KindToolResult EventKind = "tool_result"
	KindFinal      EventKind = "final"
)

// Event is one step of a run.
type Event struct {
	Author string
	Kind   EventKind
	// Text is set on final events. It may be empty.
	Text   string
	Call   *llm.ToolCall
	Result *llm.ToolResult
	// Usage is the cumulative usage of the run, set on final events.
	Usage llm.Usage
}

// IsFinal reports whether the event carries the run's response.
func (e Event) IsFinal() bool { return e.Kind == KindFinal }

// FinalText drains a run and returns the text of its last final event, or
// "" when the run produced none.
func FinalText(events iter.Seq2[Event, error]) (string, error) {
	text := ""
	for ev, err := range events {
		if err != nil {
			return "", err
		}
		if ev.IsFinal() {
			text = ev.Text
		}
	}
	return text, nil
}
