package tools

import (
	"context"
	"fmt"

	"safetycopilot/internal/checklist"
	"safetycopilot/internal/knowledge"
	"safetycopilot/internal/llm"
)

// Tool names as seen by the model.
const (
	StandardLookupName     = "standard_lookup"
	ChecklistFormatterName = "checklist_formatter"
)

// StandardLookup returns the tool wrapping knowledge.Lookup.
func StandardLookup() *Tool {
	return &Tool{
		Name: StandardLookupName,
		Description: "Look up simplified functional-safety activities of a standard " +
			"profile for one development phase.",
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"standard": {Type: "string", Description: "Standard profile, e.g. iso26262 or generic_safety."},
				"phase": {
					Type:        "string",
					Description: "Development phase.",
					Enum:        phaseNames(),
				},
			},
			Required: []string{"standard", "phase"},
		},
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			standard, err := stringArg(args, "standard")
			if err != nil {
				return nil, err
			}
			phase, err := stringArg(args, "phase")
			if err != nil {
				return nil, err
			}
			entries := knowledge.Lookup(standard, phase)
			if entries == nil {
				entries = []knowledge.Entry{}
			}
			return map[string]any{"entries": entries}, nil
		},
	}
}

// ChecklistFormatter returns the tool wrapping checklist.Format.
func ChecklistFormatter() *Tool {
	return &Tool{
		Name: ChecklistFormatterName,
		Description: "Group checklist tasks by phase into Markdown checkbox lines. " +
			"Returns the groups in first-seen phase order.",
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"tasks": {
					Type:        "array",
					Description: "Checklist items to group.",
					Items: &llm.Schema{
						Type: "object",
						Properties: map[string]*llm.Schema{
							"phase":       {Type: "string"},
							"topic":       {Type: "string"},
							"description": {Type: "string", Description: "Short imperative task."},
						},
						Required: []string{"description"},
					},
				},
			},
			Required: []string{"tasks"},
		},
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			raw, ok := args["tasks"].([]any)
			if !ok && args["tasks"] != nil {
				return nil, fmt.Errorf("%w: tasks must be an array, got %T", ErrInvalidArgType, args["tasks"])
			}
			maps := make([]map[string]any, 0, len(raw))
			for _, item := range raw {
				if m, ok := item.(map[string]any); ok {
					maps = append(maps, m)
				}
			}
			cl := checklist.Format(checklist.TasksFromMaps(maps))
			if cl == nil {
				cl = checklist.Checklist{}
			}
			return map[string]any{"checklist": cl}, nil
		},
	}
}

// PlannerRegistry returns a registry with the planner's tools.
func PlannerRegistry() *Registry {
	return NewRegistry(StandardLookup(), ChecklistFormatter())
}

func phaseNames() []string {
	names := make([]string, len(knowledge.Phases))
	for i, p := range knowledge.Phases {
		names[i] = string(p)
	}
	return names
}
