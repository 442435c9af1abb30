package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"safetycopilot/internal/checklist"
	"safetycopilot/internal/knowledge"
)

// Tool names the offline model knows how to drive.
const (
	offlineLookupTool    = "standard_lookup"
	offlineFormatterTool = "checklist_formatter"
)

var (
	standardLine = regexp.MustCompile(`(?mi)^Target standard:\s*(\S+)`)
	riskLine     = regexp.MustCompile(`(?mi)^Risk level[^:\n]*:\s*(\S+)`)
	phaseHeading = regexp.MustCompile(`(?i)^#{2,4}\s+(.+?)\s+phase\s*$`)
)

// Offline is a deterministic, network-free Model.
//
// When the request advertises tools it plays the planner: it looks up every
// phase of the requested standard, formats the entries with the checklist
// tool and answers with the phase-headed plan. Without tools it plays the
// checker: it reuses the plan embedded in the prompt, ticks the reused items
// and adds the critical concepts that are missing.
type Offline struct{}

// NewOffline returns the offline model.
func NewOffline() *Offline { return &Offline{} }

func (o *Offline) Name() string     { return "offline" }
func (o *Offline) Provider() string { return "offline" }

// Generate answers one turn.
func (o *Offline) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var resp *Response
	var err error
	if len(req.Tools) > 0 {
		resp, err = o.plan(req)
	} else {
		resp = &Response{Text: review(LastUserText(req.Messages))}
	}
	if err != nil {
		return nil, err
	}

	resp.Model = o.Name()
	resp.Usage = Usage{InputTokens: requestTokens(req), OutputTokens: responseTokens(resp)}
	return resp, nil
}

func (o *Offline) plan(req *Request) (*Response, error) {
	prompt := LastUserText(req.Messages)
	standard := firstMatch(standardLine, prompt, knowledge.ISO26262)

	lookups, formatted, err := toolProgress(req.Messages)
	if err != nil {
		return nil, err
	}

	switch {
	case formatted != nil:
		return &Response{Text: planText(standard, firstMatch(riskLine, prompt, "unknown"), formatted)}, nil

	case lookups != nil && hasTool(req.Tools, offlineFormatterTool):
		tasks := make([]any, 0, len(lookups))
		for _, e := range lookups {
			tasks = append(tasks, map[string]any{
				"phase":       string(e.Phase),
				"topic":       e.Topic,
				"description": taskDescription(e),
			})
		}
		return &Response{ToolCalls: []ToolCall{{
			ID:   "call_format",
			Name: offlineFormatterTool,
			Args: map[string]any{"tasks": tasks},
		}}}, nil

	case lookups == nil && hasTool(req.Tools, offlineLookupTool):
		calls := make([]ToolCall, 0, len(knowledge.Phases))
		for _, phase := range knowledge.Phases {
			calls = append(calls, ToolCall{
				ID:   "call_lookup_" + string(phase),
				Name: offlineLookupTool,
				Args: map[string]any{"standard": standard, "phase": string(phase)},
			})
		}
		return &Response{ToolCalls: calls}, nil
	}

	return &Response{Text: planText(standard, firstMatch(riskLine, prompt, "unknown"), nil)}, nil
}

// toolProgress inspects the tool results that follow the last user message.
// lookups is non-nil once any lookup result arrived; formatted is non-nil
// once the formatter answered.
func toolProgress(msgs []Message) (lookups []knowledge.Entry, formatted checklist.Checklist, err error) {
	start := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			start = i + 1
			break
		}
	}

	for _, m := range msgs[start:] {
		if m.Role != RoleTool {
			continue
		}
		for _, r := range m.ToolResults {
			if r.IsError {
				continue
			}
			switch r.Name {
			case offlineLookupTool:
				var out struct {
					Entries []knowledge.Entry `json:"entries"`
				}
				if err := remarshal(r.Content, &out); err != nil {
					return nil, nil, fmt.Errorf("offline: decode lookup result: %w", err)
				}
				if lookups == nil {
					lookups = []knowledge.Entry{}
				}
				lookups = append(lookups, out.Entries...)
			case offlineFormatterTool:
				var out struct {
					Checklist checklist.Checklist `json:"checklist"`
				}
				if err := remarshal(r.Content, &out); err != nil {
					return nil, nil, fmt.Errorf("offline: decode formatter result: %w", err)
				}
				formatted = out.Checklist
				if formatted == nil {
					formatted = checklist.Checklist{}
				}
			}
		}
	}
	return lookups, formatted, nil
}

func taskDescription(e knowledge.Entry) string {
	summary := strings.TrimSuffix(strings.TrimSpace(e.Summary), ".")
	return fmt.Sprintf("%s (%s)", summary, strings.ReplaceAll(e.Topic, "_", " "))
}

func planText(standard, risk string, cl checklist.Checklist) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Safety work plan for a %s-risk system under %s: %d activities across %d phases.\n",
		risk, standard, cl.Len(), len(cl))
	if len(cl) > 0 {
		sb.WriteString("\n")
		sb.WriteString(cl.Markdown())
	}
	return sb.String()
}

// criticalConcept is a topic the checker insists on.
type criticalConcept struct {
	name    string
	phase   string
	item    string
	present func(lower string) bool
}

var criticalConcepts = []criticalConcept{
	{
		name:  "HARA or risk assessment",
		phase: string(knowledge.PhaseConcept),
		item:  "Perform a hazard analysis and risk assessment (HARA) for the system",
		present: func(s string) bool {
			return strings.Contains(s, "hara") || strings.Contains(s, "hazard analysis") || strings.Contains(s, "risk assessment")
		},
	},
	{
		name:    "safety goals",
		phase:   string(knowledge.PhaseConcept),
		item:    "Define safety goals for the most critical hazards",
		present: func(s string) bool { return strings.Contains(s, "safety goal") },
	},
	{
		name:  "verification or test plan",
		phase: string(knowledge.PhaseVerification),
		item:  "Write a verification and test plan that covers every safety requirement",
		present: func(s string) bool {
			return (strings.Contains(s, "verification") && strings.Contains(s, "plan")) || strings.Contains(s, "test plan")
		},
	},
	{
		name:  "safety case",
		phase: string(knowledge.PhaseSafetyCase),
		item:  "Plan the safety case and the supporting safety documentation",
		present: func(s string) bool {
			return strings.Contains(s, "safety case") || strings.Contains(s, "safety documentation")
		},
	},
}

// review produces the checker answer for a prompt that embeds the planner
// output in triple quotes.
func review(prompt string) string {
	plan := quoted(prompt)
	risk := firstMatch(riskLine, prompt, "unknown")
	standard := firstMatch(standardLine, prompt, "the target standard")

	var tasks []checklist.Task
	phase := ""
	for _, line := range strings.Split(plan, "\n") {
		line = strings.TrimSpace(line)
		if m := phaseHeading.FindStringSubmatch(line); m != nil {
			phase = strings.ReplaceAll(strings.ToLower(m[1]), " ", "_")
			continue
		}
		for _, prefix := range []string{"- [ ]", "- [x]", "- [X]"} {
			if strings.HasPrefix(line, prefix) {
				tasks = append(tasks, checklist.Task{Phase: phase, Description: strings.TrimPrefix(line, prefix)})
				break
			}
		}
	}

	updated := checklist.Format(tasks)
	reused := updated.Len()
	for i := range updated {
		for j, item := range updated[i].Items {
			updated[i].Items[j] = "- [x] " + strings.TrimPrefix(item, checklist.Unchecked)
		}
	}

	lowerPlan := strings.ToLower(plan)
	var missing []criticalConcept
	for _, c := range criticalConcepts {
		if !c.present(lowerPlan) {
			missing = append(missing, c)
			updated = addItem(updated, c.phase, checklist.Unchecked+c.item)
		}
	}

	var sb strings.Builder
	sb.WriteString("## Executive summary\n")
	fmt.Fprintf(&sb, "- The plan covers %d of %d critical concepts for a %s-risk system under %s.\n",
		len(criticalConcepts)-len(missing), len(criticalConcepts), risk, standard)
	fmt.Fprintf(&sb, "- %d items were reused from the original plan and %d were added.\n", reused, len(missing))

	sb.WriteString("\n## Gaps & risks\n")
	if len(missing) == 0 {
		sb.WriteString("- No critical concept is missing from the original plan.\n")
	}
	for _, c := range missing {
		fmt.Fprintf(&sb, "- The original plan does not address %s.\n", c.name)
	}

	sb.WriteString("\n## Updated checklist\n")
	sb.WriteString(updated.Markdown())

	sb.WriteString("\n## Suggested improvements\n")
	for _, c := range missing {
		fmt.Fprintf(&sb, "- Added: %s.\n", c.item)
	}
	sb.WriteString("- This review matches keywords only and assumes the plan wording reflects the actual work.\n")
	return sb.String()
}

func addItem(cl checklist.Checklist, phase, line string) checklist.Checklist {
	for i := range cl {
		if cl[i].Phase == phase {
			cl[i].Items = append(cl[i].Items, line)
			return cl
		}
	}
	return append(cl, checklist.Group{Phase: phase, Items: []string{line}})
}

// quoted returns the text between the first and the last triple quote, or
// the whole prompt when no quoted block exists.
func quoted(prompt string) string {
	first := strings.Index(prompt, `"""`)
	last := strings.LastIndex(prompt, `"""`)
	if first < 0 || last <= first {
		return prompt
	}
	return prompt[first+3 : last]
}

func firstMatch(re *regexp.Regexp, s, fallback string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return fallback
}

func hasTool(specs []ToolSpec, name string) bool {
	for _, s := range specs {
		if s.Name == name {
			return true
		}
	}
	return false
}

func remarshal(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Roughly four characters per token.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

func requestTokens(req *Request) int {
	n := estimateTokens(req.System)
	for _, m := range req.Messages {
		n += estimateTokens(m.Text)
		for _, r := range m.ToolResults {
			data, _ := json.Marshal(r.Content)
			n += estimateTokens(string(data))
		}
	}
	return n
}

func responseTokens(resp *Response) int {
	n := estimateTokens(resp.Text)
	for _, c := range resp.ToolCalls {
		data, _ := json.Marshal(c.Args)
		n += estimateTokens(string(data))
	}
	return n
}
