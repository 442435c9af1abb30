package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Dir is the per-workspace directory holding config, database, usage and logs.
const Dir = ".copilot"

// Config holds all SafetyCopilot configuration.
type Config struct {
	Name string `yaml:"name"`

	// LLM configuration shared by both agents
	LLM LLMConfig `yaml:"llm"`

	// Per-agent overrides
	Agents AgentsConfig `yaml:"agents"`

	// Planner -> checker pipeline settings
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Session and evaluation-run persistence
	Store StoreConfig `yaml:"store"`

	// Batch evaluation
	Eval EvalConfig `yaml:"eval"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the text-generation provider.
type LLMConfig struct {
	Provider        string   `yaml:"provider"` // gemini, openrouter, offline
	APIKey          string   `yaml:"api_key"`
	Model           string   `yaml:"model"`
	BaseURL         string   `yaml:"base_url"`
	Timeout         string   `yaml:"timeout"`
	Temperature     *float64 `yaml:"temperature,omitempty"` // nil = provider default
	MaxOutputTokens int      `yaml:"max_output_tokens"`
}

// AgentProfile overrides LLM settings for one agent. Unset values inherit.
type AgentProfile struct {
	Model       string   `yaml:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// AgentsConfig holds the planner and checker profiles.
type AgentsConfig struct {
	Planner AgentProfile `yaml:"planner"`
	Checker AgentProfile `yaml:"checker"`
}

// PipelineConfig configures the conversational contexts of the pipeline.
type PipelineConfig struct {
	Standard       string `yaml:"standard"`
	AppName        string `yaml:"app_name"`
	UserID         string `yaml:"user_id"`
	PlannerSession string `yaml:"planner_session"`
	CheckerSession string `yaml:"checker_session"`
	MaxToolRounds  int    `yaml:"max_tool_rounds"`
}

// StoreConfig selects where sessions and evaluation runs live.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite
	Path    string `yaml:"path"`    // relative paths resolve against the workspace
}

// EvalConfig configures batch evaluation.
type EvalConfig struct {
	Dataset  string `yaml:"dataset"` // empty = built-in example systems
	Parallel int    `yaml:"parallel"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`      // debug, info, warn, error
	DebugMode  bool            `yaml:"debug_mode"` // Master toggle - false = no log files
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "SafetyCopilot",

		LLM: LLMConfig{
			Provider:        "offline",
			Timeout:         "120s",
			MaxOutputTokens: 2048,
		},

		Pipeline: PipelineConfig{
			Standard:       "iso26262",
			AppName:        "safety_copilot_app",
			UserID:         "demo_user",
			PlannerSession: "planner_session",
			CheckerSession: "checker_session",
			MaxToolRounds:  8,
		},

		Store: StoreConfig{
			Backend: "sqlite",
			Path:    filepath.Join(Dir, "copilot.db"),
		},

		Eval: EvalConfig{
			Parallel: 1,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns <workspace>/.copilot/config.yaml.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, Dir, "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// API keys, lowest priority first
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openrouter"
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	if p := os.Getenv("COPILOT_PROVIDER"); p != "" {
		c.LLM.Provider = p
	}
	if m := os.Getenv("COPILOT_MODEL"); m != "" {
		c.LLM.Model = m
	}
	if s := os.Getenv("COPILOT_STANDARD"); s != "" {
		c.Pipeline.Standard = s
	}
	if path := os.Getenv("COPILOT_DB"); path != "" {
		c.Store.Path = path
	}
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"gemini", "openrouter", "offline"}

// ValidBackends lists the supported session store backends.
var ValidBackends = []string{"memory", "sqlite"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.Provider != "offline" && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured for %s (set GEMINI_API_KEY, GOOGLE_API_KEY or OPENROUTER_API_KEY)", c.LLM.Provider)
	}
	if !contains(ValidBackends, c.Store.Backend) {
		return fmt.Errorf("invalid store backend: %s (valid: %v)", c.Store.Backend, ValidBackends)
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for the sqlite backend")
	}
	if c.Pipeline.MaxToolRounds < 1 {
		return fmt.Errorf("pipeline.max_tool_rounds must be >= 1, got %d", c.Pipeline.MaxToolRounds)
	}
	if c.Pipeline.PlannerSession != "" && c.Pipeline.PlannerSession == c.Pipeline.CheckerSession {
		return fmt.Errorf("planner and checker must use different sessions")
	}
	if c.Eval.Parallel < 0 {
		return fmt.Errorf("eval.parallel must be >= 0, got %d", c.Eval.Parallel)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// ModelFor returns the model configured for an agent ("planner" or
// "checker"), falling back to the shared LLM model.
func (c *Config) ModelFor(agent string) string {
	if p := c.profile(agent); p.Model != "" {
		return p.Model
	}
	return c.LLM.Model
}

// TemperatureFor returns the sampling temperature for an agent, or nil when
// neither the agent profile nor the shared LLM section sets one.
func (c *Config) TemperatureFor(agent string) *float64 {
	if p := c.profile(agent); p.Temperature != nil {
		return p.Temperature
	}
	return c.LLM.Temperature
}

func (c *Config) profile(agent string) AgentProfile {
	switch agent {
	case "planner":
		return c.Agents.Planner
	case "checker":
		return c.Agents.Checker
	}
	return AgentProfile{}
}

// DBPath resolves the SQLite path against workspace.
func (c *Config) DBPath(workspace string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(workspace, c.Store.Path)
}
