// Command copilot drafts and reviews safety work plans for system
// descriptions, and evaluates the planner/checker pipeline over batches.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"safetycopilot/internal/agent"
	"safetycopilot/internal/config"
	"safetycopilot/internal/llm"
	"safetycopilot/internal/logging"
	"safetycopilot/internal/pipeline"
	"safetycopilot/internal/session"
	"safetycopilot/internal/store"
	"safetycopilot/internal/usage"
)

var (
	// Global flags
	verbose      bool
	workspace    string
	configPath   string
	providerName string
	modelName    string
	timeout      time.Duration

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "SafetyCopilot - planner/checker agents for functional-safety work plans",
	Long: `SafetyCopilot estimates the risk of a system description, asks a planner
agent for a phased safety work plan (ISO 26262 or a generic safety profile)
and asks a checker agent to review it for missing critical concepts.

Without an API key the offline provider is used, which answers
deterministically from the built-in knowledge base.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/.copilot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "", "LLM provider: gemini, openrouter, offline")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "Model identifier for both agents")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout (0 = none)")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(riskCmd)
	rootCmd.AddCommand(standardsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext cancels on SIGINT/SIGTERM and after d (0 = never).
func commandContext(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if d <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		stop()
	}
}

func resolveWorkspace() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}

func resolveConfigPath(ws string) string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath(ws)
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(ws string) (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath(ws))
	if err != nil {
		return nil, err
	}
	if providerName != "" {
		cfg.LLM.Provider = providerName
	}
	if modelName != "" {
		cfg.LLM.Model = modelName
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app bundles what the pipeline commands share.
type app struct {
	workspace string
	cfg       *config.Config
	model     llm.Model
	sessions  session.Service
	store     *store.LocalStore // nil with the memory backend
	tracker   *usage.Tracker
}

func openApp() (*app, error) {
	ws, err := resolveWorkspace()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}
	cfg, err := loadConfig(ws)
	if err != nil {
		return nil, err
	}

	if err := logging.Initialize(ws, logging.Config{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		logger.Warn("Failed to initialize file logging", zap.Error(err))
	}

	model, err := llm.New(llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.GetLLMTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}
	logger.Debug("Model ready", zap.String("provider", model.Provider()), zap.String("model", model.Name()))

	a := &app{workspace: ws, cfg: cfg, model: model}

	switch cfg.Store.Backend {
	case "memory":
		a.sessions = session.NewInMemory()
	default:
		st, err := store.NewLocalStore(cfg.DBPath(ws))
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		a.store = st
		a.sessions = st
	}

	tracker, err := usage.NewTracker(filepath.Join(ws, config.Dir))
	if err != nil {
		// a corrupt usage file is replaced on the next save
		logger.Warn("Usage data not loaded", zap.Error(err))
	}
	a.tracker = tracker
	return a, nil
}

func (a *app) Close() {
	if a.tracker != nil {
		if err := a.tracker.Save(); err != nil {
			logger.Warn("Failed to save usage data", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}
}

// newPipeline builds a set-up pipeline from the configuration.
func (a *app) newPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	planner := agent.NewPlanner()
	planner.Model = a.cfg.ModelFor("planner")
	planner.Temperature = a.cfg.TemperatureFor("planner")
	planner.MaxOutputTokens = a.cfg.LLM.MaxOutputTokens

	checker := agent.NewChecker()
	checker.Model = a.cfg.ModelFor("checker")
	checker.Temperature = a.cfg.TemperatureFor("checker")
	checker.MaxOutputTokens = a.cfg.LLM.MaxOutputTokens
	logger.Debug("Agents configured",
		zap.Strings("planner_tools", planner.Tools.Names()),
		zap.Strings("checker_tools", checker.Tools.Names()))

	opts := []pipeline.Option{
		pipeline.WithAppName(a.cfg.Pipeline.AppName),
		pipeline.WithUserID(a.cfg.Pipeline.UserID),
		pipeline.WithSessionIDs(a.cfg.Pipeline.PlannerSession, a.cfg.Pipeline.CheckerSession),
		pipeline.WithPlanner(planner),
		pipeline.WithChecker(checker),
		pipeline.WithMaxToolRounds(a.cfg.Pipeline.MaxToolRounds),
	}
	if a.tracker != nil {
		opts = append(opts, pipeline.WithUsageTracker(a.tracker))
	}

	p := pipeline.New(a.model, a.sessions, opts...)
	if err := p.Setup(ctx); err != nil {
		return nil, fmt.Errorf("failed to set up pipeline: %w", err)
	}
	return p, nil
}

func (a *app) standard(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.Pipeline.Standard
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// describeError turns common failures into a hint for the user.
func describeError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w (increase --timeout)", err)
	case errors.Is(err, llm.ErrNoAPIKey):
		return fmt.Errorf("%w (set GEMINI_API_KEY or OPENROUTER_API_KEY, or use --provider offline)", err)
	}
	return err
}
