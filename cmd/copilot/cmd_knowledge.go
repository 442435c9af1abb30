package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"safetycopilot/internal/knowledge"
	"safetycopilot/internal/risk"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <standard> <phase>",
	Short: "List the activities of a standard profile for one phase",
	Long: `Looks up the built-in knowledge base, the same way the planner agent's
standard_lookup tool does.

Phases: concept, design, implementation, verification, safety_case

Example:
  copilot lookup iso26262 concept`,
	Args: cobra.ExactArgs(2),
	RunE: runLookup,
}

var riskCmd = &cobra.Command{
	Use:   "risk <description...>",
	Short: "Estimate the risk level of a system description",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRisk,
}

var standardsCmd = &cobra.Command{
	Use:   "standards",
	Short: "List the built-in standard profiles",
	RunE:  runStandards,
}

func runLookup(cmd *cobra.Command, args []string) error {
	entries := knowledge.Lookup(args[0], args[1])
	if len(entries) == 0 {
		fmt.Printf("No activities found for %s / %s\n", args[0], args[1])
		return nil
	}

	fmt.Println(sectionStyle.Render(fmt.Sprintf("%s - %s phase", args[0], args[1])))
	for _, e := range entries {
		fmt.Printf("  %-26s %-7s %s\n", e.ID, e.Priority, e.Topic)
		fmt.Printf("  %s\n\n", e.Summary)
	}
	return nil
}

func runRisk(cmd *cobra.Command, args []string) error {
	desc := joinArgs(args)
	level := risk.Estimate(desc)
	style, ok := riskStyles[level]
	if !ok {
		style = riskStyles[risk.Low]
	}
	fmt.Printf("Risk level: %s (score %d)\n", style.Render(string(level)), risk.Score(desc))
	return nil
}

func runStandards(cmd *cobra.Command, args []string) error {
	for _, name := range knowledge.Standards() {
		entries, _ := knowledge.Profile(name)
		phases := make(map[knowledge.Phase]bool)
		for _, e := range entries {
			phases[e.Phase] = true
		}
		fmt.Printf("%-16s %2d activities across %d phases\n", name, len(entries), len(phases))
	}
	return nil
}
