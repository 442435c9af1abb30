package pipeline

import (
	"fmt"

	"safetycopilot/internal/risk"
)

// PlannerPrompt builds the planner's user message.
func PlannerPrompt(sys System, standard string, level risk.Level) string {
	return fmt.Sprintf("System description:\n%s\n\n"+
		"Domain: %s\n"+
		"Target standard: %s\n"+
		"Risk level (pre-estimated): %s\n\n"+
		"Your task:\n"+
		"1. Propose a safety and compliance work plan for this system, "+
		"grouped by phase.\n"+
		"2. Mention key concepts such as HARA / risk assessment, safety goals,\n"+
		"   safety requirements, verification / test plan, and safety case "+
		"where appropriate.\n"+
		"3. Keep the answer concise (ideally under 200 words).\n",
		sys.Description, sys.Domain, standard, level)
}

// CheckerPrompt builds the checker's user message. The planner output is
// embedded verbatim between triple quotes.
func CheckerPrompt(sys System, standard string, level risk.Level, plannerText string) string {
	return fmt.Sprintf("System description:\n%s\n\n"+
		"Domain: %s\n"+
		"Target standard: %s\n"+
		"Risk level: %s\n\n"+
		"Current checklist or plan from the PlannerAgent:\n"+
		"\"\"\"%s\"\"\"\n\n"+
		"Your task:\n"+
		"1. Check whether the checklist includes at least the following "+
		"critical concepts for medium and high risk systems: HARA / "+
		"risk assessment, safety goals, verification or test plan, and "+
		"safety case or safety documentation.\n"+
		"2. If something is missing, add additional checklist items to fill "+
		"the gaps.\n"+
		"3. Return an updated grouped checklist plus a short textual review "+
		"(2–4 bullet points).\n"+
		"4. Keep the whole answer concise (ideally under 200 words).\n",
		sys.Description, sys.Domain, standard, level, plannerText)
}
