// Package knowledge holds the built-in mini-standard: a small, paraphrased
// table of functional-safety activities inspired by ISO 26262 and IEC 61508.
//
// The entries are NOT official standard text. They are simplified summaries
// that the planner agent retrieves through the standard_lookup tool.
package knowledge

import (
	"fmt"
	"sort"
)

// Phase is one stage of the development lifecycle.
type Phase string

const (
	PhaseConcept        Phase = "concept"
	PhaseDesign         Phase = "design"
	PhaseImplementation Phase = "implementation"
	PhaseVerification   Phase = "verification"
	PhaseSafetyCase     Phase = "safety_case"
)

// Phases lists the lifecycle phases in canonical order.
var Phases = []Phase{
	PhaseConcept,
	PhaseDesign,
	PhaseImplementation,
	PhaseVerification,
	PhaseSafetyCase,
}

// Priority ranks how important an activity is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Entry is one activity of a standard profile.
type Entry struct {
	ID       string   `json:"id" yaml:"id"`
	Phase    Phase    `json:"phase" yaml:"phase"`
	Topic    string   `json:"topic" yaml:"topic"`
	Priority Priority `json:"priority" yaml:"priority"`
	Summary  string   `json:"summary" yaml:"summary"`
}

// Validate reports whether the entry is well formed.
func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entry has no id")
	}
	if e.Topic == "" || e.Summary == "" {
		return fmt.Errorf("entry %s: topic and summary are required", e.ID)
	}
	switch e.Phase {
	case PhaseConcept, PhaseDesign, PhaseImplementation, PhaseVerification, PhaseSafetyCase:
	default:
		return fmt.Errorf("entry %s: unknown phase %q", e.ID, e.Phase)
	}
	switch e.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return fmt.Errorf("entry %s: unknown priority %q", e.ID, e.Priority)
	}
	return nil
}

// Built-in profile names.
const (
	ISO26262      = "iso26262"
	GenericSafety = "generic_safety"
)

// profiles maps a standard name to its ordered entries. Never mutated.
var profiles = map[string][]Entry{
	ISO26262: {
		// Concept
		{
			ID:       "iso26262-concept-hara",
			Phase:    PhaseConcept,
			Topic:    "HARA",
			Priority: PriorityHigh,
			Summary: "Perform a hazard analysis and risk assessment for the system, " +
				"identifying potential hazards and their risk levels.",
		},
		{
			ID:       "iso26262-concept-safety-goals",
			Phase:    PhaseConcept,
			Topic:    "safety_goals",
			Priority: PriorityHigh,
			Summary: "Define safety goals that mitigate the most critical hazards " +
				"and document their rationale.",
		},

		// Design
		{
			ID:       "iso26262-design-reqs",
			Phase:    PhaseDesign,
			Topic:    "safety_requirements",
			Priority: PriorityHigh,
			Summary: "Derive and allocate safety requirements to system, hardware, " +
				"and software elements.",
		},
		{
			ID:       "iso26262-design-traceability",
			Phase:    PhaseDesign,
			Topic:    "traceability",
			Priority: PriorityMedium,
			Summary: "Ensure traceability from safety goals to technical safety " +
				"requirements and design elements.",
		},

		// Implementation
		{
			ID:       "iso26262-impl-sw-implementation",
			Phase:    PhaseImplementation,
			Topic:    "sw_implementation",
			Priority: PriorityMedium,
			Summary: "Implement software in accordance with coding guidelines, " +
				"defensive programming, and safety mechanisms.",
		},

		// Verification & validation
		{
			// The id typo is kept so existing references keep resolving.
			ID:       "iso262262-verif-test-plan",
			Phase:    PhaseVerification,
			Topic:    "verification_plan",
			Priority: PriorityHigh,
			Summary: "Plan verification and validation activities, including unit, " +
				"integration, and system-level tests to show that safety " +
				"requirements are met.",
		},
		{
			ID:       "iso26262-verif-independent-review",
			Phase:    PhaseVerification,
			Topic:    "independent_review",
			Priority: PriorityMedium,
			Summary: "Schedule independent reviews or assessments for key safety " +
				"work products.",
		},

		// Safety case & documentation
		{
			ID:       "iso26262-safety-case",
			Phase:    PhaseSafetyCase,
			Topic:    "safety_case",
			Priority: PriorityHigh,
			Summary: "Plan and maintain a safety case that collects evidence and " +
				"arguments for releasing the system.",
		},
		{
			ID:       "iso26262-safety-manual",
			Phase:    PhaseSafetyCase,
			Topic:    "safety_manual",
			Priority: PriorityMedium,
			Summary: "Prepare safety manuals or usage guidelines for integrators " +
				"and downstream users.",
		},
	},

	GenericSafety: {
		{
			ID:       "generic-risk-assessment",
			Phase:    PhaseConcept,
			Topic:    "risk_assessment",
			Priority: PriorityHigh,
			Summary: "Identify hazards, estimate risks, and decide which risks " +
				"require mitigation.",
		},
		{
			ID:       "generic-controls",
			Phase:    PhaseDesign,
			Topic:    "controls",
			Priority: PriorityMedium,
			Summary: "Design technical and organizational controls to reduce " +
				"or monitor risks.",
		},
		{
			ID:       "generic-test",
			Phase:    PhaseVerification,
			Topic:    "testing",
			Priority: PriorityMedium,
			Summary: "Plan and execute tests or other verification activities to " +
				"check that controls work as intended.",
		},
		{
			ID:       "generic-documentation",
			Phase:    PhaseSafetyCase,
			Topic:    "documentation",
			Priority: PriorityMedium,
			Summary: "Document assumptions, limitations, and residual risks " +
				"for stakeholders.",
		},
	},
}

// Standards returns the names of the built-in profiles, sorted.
func Standards() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profile returns a copy of every entry in the named profile.
func Profile(name string) ([]Entry, bool) {
	entries, ok := profiles[name]
	if !ok {
		return nil, false
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, true
}
