package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"safetycopilot/internal/pipeline"
	"safetycopilot/internal/risk"
	"safetycopilot/internal/watch"
)

var (
	planFile     string
	planName     string
	planDomain   string
	planStandard string
	planShowPlan bool
	planRender   bool
	planWatch    bool
	planFresh    bool
)

var planCmd = &cobra.Command{
	Use:   "plan [description...]",
	Short: "Draft and review a safety work plan for a system",
	Long: `Runs the planner agent on a system description and then the checker agent
on the planner's draft. The description is taken from the arguments or from
--file.

Planner and checker keep their conversation history in the session store, so
consecutive runs see earlier exchanges unless --fresh is given.

Examples:
  copilot plan "An automotive brake control ECU for a high-voltage powertrain"
  copilot plan --file brake_ecu.txt --domain automotive --render
  copilot plan --file brake_ecu.txt --watch`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planFile, "file", "f", "", "Read the system description from a file")
	planCmd.Flags().StringVar(&planName, "name", "", "System name")
	planCmd.Flags().StringVar(&planDomain, "domain", "", "System domain (e.g. automotive, railway, consumer)")
	planCmd.Flags().StringVarP(&planStandard, "standard", "s", "", "Standard profile (default from config)")
	planCmd.Flags().BoolVar(&planShowPlan, "show-plan", false, "Also print the planner draft")
	planCmd.Flags().BoolVar(&planRender, "render", false, "Render the Markdown output for the terminal")
	planCmd.Flags().BoolVar(&planWatch, "watch", false, "Re-run when --file changes")
	planCmd.Flags().BoolVar(&planFresh, "fresh", false, "Drop the planner and checker history before running")
}

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3"))
	riskStyles   = map[risk.Level]lipgloss.Style{
		risk.High:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e53935")),
		risk.Medium: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFC107")),
		risk.Low:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A")),
	}
)

func runPlan(cmd *cobra.Command, args []string) error {
	if planWatch && planFile == "" {
		return fmt.Errorf("--watch requires --file")
	}

	d := timeout
	if planWatch {
		// watching runs until interrupted
		d = 0
	}
	ctx, cancel := commandContext(d)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}
	if planFresh {
		if err := p.Reset(ctx); err != nil {
			return err
		}
	}

	run := func(ctx context.Context) error {
		sys, err := planSystem(args)
		if err != nil {
			return err
		}
		logger.Info("Planning", zap.String("system", sys.ID), zap.String("standard", a.standard(planStandard)))
		res, err := p.RunDetailed(ctx, sys, a.standard(planStandard))
		if err != nil {
			return describeError(err)
		}
		printResult(res)
		return nil
	}

	if err := run(ctx); err != nil {
		return err
	}
	if !planWatch {
		return nil
	}

	fmt.Printf("\nWatching %s for changes (Ctrl+C to stop)...\n", planFile)
	return watch.File(ctx, planFile, watch.DefaultDebounce, func(ctx context.Context) error {
		fmt.Printf("\n%s changed, re-running\n\n", planFile)
		return run(ctx)
	})
}

// planSystem builds the system from the flags, the arguments or --file.
func planSystem(args []string) (pipeline.System, error) {
	desc := joinArgs(args)
	if planFile != "" {
		data, err := os.ReadFile(planFile)
		if err != nil {
			return pipeline.System{}, fmt.Errorf("failed to read %s: %w", planFile, err)
		}
		desc = strings.TrimSpace(string(data))
	}
	if desc == "" {
		return pipeline.System{}, fmt.Errorf("a system description is required (arguments or --file)")
	}

	id := planName
	if id == "" {
		id = "cli_system"
	}
	return pipeline.System{
		ID:          strings.ReplaceAll(strings.ToLower(id), " ", "_"),
		Name:        planName,
		Domain:      planDomain,
		Description: desc,
	}, nil
}

func printResult(res *pipeline.Result) {
	style, ok := riskStyles[res.Risk]
	if !ok {
		style = riskStyles[risk.Low]
	}
	fmt.Printf("Risk level (pre-estimated): %s\n\n", style.Render(string(res.Risk)))

	if planShowPlan {
		fmt.Println(sectionStyle.Render("Planner draft"))
		fmt.Println(renderMarkdown(res.PlannerText))
		fmt.Println()
		fmt.Println(sectionStyle.Render("Checker review"))
	}
	fmt.Println(renderMarkdown(res.CheckerText))
}

func renderMarkdown(text string) string {
	if !planRender {
		return text
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		logger.Debug("Markdown renderer unavailable", zap.Error(err))
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		logger.Debug("Markdown render failed", zap.Error(err))
		return text
	}
	return strings.TrimRight(out, "\n")
}
