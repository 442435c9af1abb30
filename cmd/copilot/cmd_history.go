package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"safetycopilot/internal/config"
	"safetycopilot/internal/eval"
	"safetycopilot/internal/usage"
)

var (
	historyLimit int
	historyRun   string
	initForce    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved evaluation runs",
	Long: `Lists the evaluation runs saved with "copilot eval --save", newest first.
Use --run to print the reports of one run.`,
	RunE: runHistory,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token usage by provider, model, agent and session",
	RunE:  runUsage,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration to the workspace",
	Long: `Creates <workspace>/.copilot/config.yaml with the default settings.
An existing file is kept unless --force is given.`,
	RunE: runInit,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Maximum number of runs (0 = all)")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show the reports of one run")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(timeout)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if a.store == nil {
		return fmt.Errorf("evaluation history requires the sqlite store backend")
	}

	if historyRun != "" {
		run, err := a.store.GetRun(ctx, historyRun)
		if err != nil {
			return err
		}
		fmt.Printf("Run %s (%s, %s/%s, %s)\n\n", run.ID, run.Standard, run.Provider, run.Model,
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Print(eval.RenderTable(run.Reports))
		return nil
	}

	runs, err := a.store.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No evaluation runs saved yet (use: copilot eval --save)")
		return nil
	}

	fmt.Println(sectionStyle.Render(fmt.Sprintf("%-36s  %-19s  %-14s  %-28s  %s",
		"id", "created", "standard", "provider/model", "mean coverage")))
	for _, run := range runs {
		s := run.Summary()
		fmt.Printf("%-36s  %-19s  %-14s  %-28s  %.1f%% (%d/%d fully covered)\n",
			run.ID,
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			run.Standard,
			run.Provider+"/"+run.Model,
			s.MeanCoverage, s.FullyCovered, s.Systems)
	}
	return nil
}

func runUsage(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}
	tracker, err := usage.NewTracker(filepath.Join(ws, config.Dir))
	if err != nil {
		return err
	}

	stats := tracker.Stats()
	fmt.Printf("%d model calls, %d tokens (%d in / %d out)\n",
		stats.Calls, stats.Total.Total, stats.Total.Input, stats.Total.Output)
	printUsageBreakdown("Provider", stats.ByProvider)
	printUsageBreakdown("Model", stats.ByModel)
	printUsageBreakdown("Agent", stats.ByAgent)
	printUsageBreakdown("Session", stats.BySession)
	return nil
}

func printUsageBreakdown(title string, counts map[string]usage.TokenCounts) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println()
	fmt.Println(sectionStyle.Render(title))
	for _, k := range keys {
		c := counts[k]
		fmt.Printf("  %-40s %8d in %8d out %8d total\n", k, c.Input, c.Output, c.Total)
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}
	path := resolveConfigPath(ws)

	if _, err := os.Stat(path); err == nil && !initForce {
		fmt.Printf("Config already exists at %s (use --force to overwrite)\n", path)
		return nil
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote default config to %s\n", path)
	fmt.Println("Set GEMINI_API_KEY or OPENROUTER_API_KEY to use a hosted model; the offline provider is the default.")
	return nil
}
