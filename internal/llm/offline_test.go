package llm

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safetycopilot/internal/checklist"
	"safetycopilot/internal/knowledge"
)

var plannerTools = []ToolSpec{{Name: "standard_lookup"}, {Name: "checklist_formatter"}}

const plannerPrompt = "System description:\nBrake controller\n\n" +
	"Domain: automotive\nTarget standard: iso26262\nRisk level (pre-estimated): high\n"

// entriesResult mimics what the lookup tool returns in-process.
func entriesResult(standard string, phase knowledge.Phase) map[string]any {
	return map[string]any{"entries": knowledge.Lookup(standard, string(phase))}
}

func TestOffline_PlannerProtocol(t *testing.T) {
	m := NewOffline()
	ctx := context.Background()
	msgs := []Message{{Role: RoleUser, Text: plannerPrompt}}

	// Round 1: one lookup per phase.
	resp, err := m.Generate(ctx, &Request{Messages: msgs, Tools: plannerTools})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, len(knowledge.Phases))
	for i, call := range resp.ToolCalls {
		assert.Equal(t, "standard_lookup", call.Name)
		assert.Equal(t, "iso26262", call.Args["standard"])
		assert.Equal(t, string(knowledge.Phases[i]), call.Args["phase"])
	}

	results := make([]ToolResult, 0, len(resp.ToolCalls))
	for _, call := range resp.ToolCalls {
		results = append(results, ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Content: entriesResult("iso26262", knowledge.Phase(call.Args["phase"].(string))),
		})
	}
	msgs = append(msgs,
		Message{Role: RoleModel, ToolCalls: resp.ToolCalls},
		Message{Role: RoleTool, ToolResults: results},
	)

	// Round 2: format every entry.
	resp, err = m.Generate(ctx, &Request{Messages: msgs, Tools: plannerTools})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	format := resp.ToolCalls[0]
	assert.Equal(t, "checklist_formatter", format.Name)
	tasks, ok := format.Args["tasks"].([]any)
	require.True(t, ok)
	profile, _ := knowledge.Profile("iso26262")
	assert.Len(t, tasks, len(profile))

	raw := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		raw = append(raw, task.(map[string]any))
	}
	formatted := checklist.Format(checklist.TasksFromMaps(raw))
	msgs = append(msgs,
		Message{Role: RoleModel, ToolCalls: resp.ToolCalls},
		Message{Role: RoleTool, ToolResults: []ToolResult{{
			CallID:  format.ID,
			Name:    format.Name,
			Content: map[string]any{"checklist": formatted},
		}}},
	)

	// Round 3: final Markdown.
	resp, err = m.Generate(ctx, &Request{Messages: msgs, Tools: plannerTools})
	require.NoError(t, err)
	assert.False(t, resp.HasToolCalls())
	assert.Contains(t, resp.Text, "high-risk system under iso26262")
	assert.Contains(t, resp.Text, "### Concept phase\n- [ ] Perform a hazard analysis")
	assert.Contains(t, resp.Text, "(HARA)")
	assert.Contains(t, resp.Text, "### Safety case phase")
	assert.Greater(t, resp.Usage.InputTokens, 0)
	assert.Greater(t, resp.Usage.OutputTokens, 0)
}

func TestOffline_PlannerNewUserMessageRestarts(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Text: plannerPrompt},
		{Role: RoleModel, ToolCalls: []ToolCall{{Name: "standard_lookup"}}},
		{Role: RoleTool, ToolResults: []ToolResult{{Name: "standard_lookup", Content: map[string]any{"entries": []any{}}}}},
		{Role: RoleModel, Text: "old plan"},
		{Role: RoleUser, Text: strings.Replace(plannerPrompt, "iso26262", "generic_safety", 1)},
	}
	resp, err := NewOffline().Generate(context.Background(), &Request{Messages: msgs, Tools: plannerTools})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, len(knowledge.Phases))
	assert.Equal(t, "generic_safety", resp.ToolCalls[0].Args["standard"])
}

func TestOffline_CheckerAddsMissingConcepts(t *testing.T) {
	prompt := "Risk level: high\nTarget standard: iso26262\n\n" +
		"Current checklist or plan from the PlannerAgent:\n" +
		`"""Plan.` + "\n\n### Concept phase\n- [ ] Perform HARA\n\n### Design phase\n- [ ] Derive safety requirements\n" + `"""` + "\n"

	resp, err := NewOffline().Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Text: prompt}},
	})
	require.NoError(t, err)

	text := resp.Text
	for _, section := range []string{"## Executive summary", "## Gaps & risks", "## Updated checklist", "## Suggested improvements"} {
		assert.Contains(t, text, section)
	}
	assert.Contains(t, text, "- [x] Perform HARA")
	assert.Contains(t, text, "- [x] Derive safety requirements")
	assert.Contains(t, text, "- [ ] Define safety goals")
	assert.Contains(t, text, "### Verification phase\n- [ ] Write a verification and test plan")
	assert.Contains(t, text, "### Safety case phase\n- [ ] Plan the safety case")
	assert.NotContains(t, text, "does not address HARA")
	assert.Contains(t, text, "covers 1 of 4 critical concepts")
}

func TestOffline_CheckerEmptyPlan(t *testing.T) {
	resp, err := NewOffline().Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Text: `plan: """"""`}},
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "covers 0 of 4 critical concepts")
	assert.Contains(t, resp.Text, "0 items were reused")
}

func TestOffline_ToolErrorResultsAreIgnored(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Text: plannerPrompt},
		{Role: RoleModel, ToolCalls: []ToolCall{{Name: "standard_lookup"}}},
		{Role: RoleTool, ToolResults: []ToolResult{{Name: "standard_lookup", IsError: true, Content: map[string]any{"error": "boom"}}}},
	}
	resp, err := NewOffline().Generate(context.Background(), &Request{Messages: msgs, Tools: plannerTools})
	require.NoError(t, err)
	assert.Len(t, resp.ToolCalls, len(knowledge.Phases))
}

func TestOffline_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOffline().Generate(ctx, &Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToJSONMap(t *testing.T) {
	m, err := toJSONMap(map[string]any{"entries": knowledge.Lookup("generic_safety", "design")})
	require.NoError(t, err)
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"topic":"controls"`)
}
