// Package checklist groups proposed safety tasks by phase and renders them as
// Markdown checkbox lists.
package checklist

import (
	"strings"
)

// DefaultPhase is used for tasks that carry no phase.
const DefaultPhase = "general"

// Unchecked prefixes every formatted checklist line.
const Unchecked = "- [ ] "

// Task is a proposed checklist item.
type Task struct {
	Phase       string `json:"phase,omitempty" yaml:"phase,omitempty"`
	Topic       string `json:"topic,omitempty" yaml:"topic,omitempty"`
	Description string `json:"description" yaml:"description"`
}

// Group is the ordered list of lines for one phase.
type Group struct {
	Phase string   `json:"phase"`
	Items []string `json:"items"`
}

// Checklist holds groups in first-seen phase order.
type Checklist []Group

// Format groups tasks by phase. Tasks without a phase fall into
// DefaultPhase and tasks whose trimmed description is empty are dropped.
func Format(tasks []Task) Checklist {
	var out Checklist
	index := make(map[string]int)

	for _, t := range tasks {
		desc := strings.TrimSpace(t.Description)
		if desc == "" {
			continue
		}
		phase := t.Phase
		if phase == "" {
			phase = DefaultPhase
		}

		i, ok := index[phase]
		if !ok {
			i = len(out)
			index[phase] = i
			out = append(out, Group{Phase: phase})
		}
		out[i].Items = append(out[i].Items, Unchecked+desc)
	}
	return out
}

// Phases returns the phase names in output order.
func (c Checklist) Phases() []string {
	phases := make([]string, len(c))
	for i, g := range c {
		phases[i] = g.Phase
	}
	return phases
}

// Items returns the lines of phase, or nil.
func (c Checklist) Items(phase string) []string {
	for _, g := range c {
		if g.Phase == phase {
			return g.Items
		}
	}
	return nil
}

// Len counts lines across all phases.
func (c Checklist) Len() int {
	n := 0
	for _, g := range c {
		n += len(g.Items)
	}
	return n
}

// Markdown renders one "### <Phase> phase" section per group.
func (c Checklist) Markdown() string {
	var sb strings.Builder
	for i, phase := range c.Phases() {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("### ")
		sb.WriteString(PhaseTitle(phase))
		sb.WriteString(" phase\n")
		for _, line := range c.Items(phase) {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// PhaseTitle turns "safety_case" into "Safety case".
func PhaseTitle(phase string) string {
	p := strings.ReplaceAll(strings.TrimSpace(phase), "_", " ")
	if p == "" {
		return ""
	}
	return strings.ToUpper(p[:1]) + p[1:]
}

// TasksFromMaps decodes loosely-typed task objects, as produced by a model's
// tool call arguments. Fields that are missing or not strings are treated as
// absent.
func TasksFromMaps(raw []map[string]any) []Task {
	tasks := make([]Task, 0, len(raw))
	for _, m := range raw {
		tasks = append(tasks, Task{
			Phase:       stringField(m, "phase"),
			Topic:       stringField(m, "topic"),
			Description: stringField(m, "description"),
		})
	}
	return tasks
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
