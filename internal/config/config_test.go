package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENROUTER_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY",
		"COPILOT_PROVIDER", "COPILOT_MODEL", "COPILOT_STANDARD", "COPILOT_DB",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LLM.Provider != "offline" {
		t.Errorf("expected Provider=offline, got %s", cfg.LLM.Provider)
	}
	if cfg.Pipeline.Standard != "iso26262" {
		t.Errorf("expected Standard=iso26262, got %s", cfg.Pipeline.Standard)
	}
	if cfg.Pipeline.PlannerSession != "planner_session" || cfg.Pipeline.CheckerSession != "checker_session" {
		t.Errorf("unexpected session ids: %+v", cfg.Pipeline)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), Dir, "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = "gemini"
	cfg.LLM.APIKey = "test-key"
	cfg.Agents.Checker.Model = "gemini-2.5-pro"
	cfg.Eval.Parallel = 3

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LLM.Provider != "gemini" || loaded.LLM.APIKey != "test-key" {
		t.Errorf("llm not round-tripped: %+v", loaded.LLM)
	}
	if loaded.Agents.Checker.Model != "gemini-2.5-pro" {
		t.Errorf("checker model not round-tripped: %+v", loaded.Agents)
	}
	if loaded.Eval.Parallel != 3 {
		t.Errorf("expected Parallel=3, got %d", loaded.Eval.Parallel)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "SafetyCopilot" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("llm: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Provider = "gemini"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing API key")
	}

	cfg.LLM.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}

	cfg.LLM.Provider = "invalid-provider"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid provider")
	}

	cfg = DefaultConfig()
	cfg.Store.Backend = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid backend")
	}

	cfg = DefaultConfig()
	cfg.Pipeline.MaxToolRounds = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for zero tool rounds")
	}

	cfg = DefaultConfig()
	cfg.Pipeline.CheckerSession = cfg.Pipeline.PlannerSession
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for shared session")
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.GetLLMTimeout(); got != 120*time.Second {
		t.Errorf("GetLLMTimeout() = %v", got)
	}
	cfg.LLM.Timeout = "not-a-duration"
	if got := cfg.GetLLMTimeout(); got != 120*time.Second {
		t.Errorf("GetLLMTimeout() fallback = %v", got)
	}

	cfg.LLM.Model = "gemini-2.0-flash"
	cfg.Agents.Checker.Model = "gemini-2.5-pro"
	if got := cfg.ModelFor("planner"); got != "gemini-2.0-flash" {
		t.Errorf("ModelFor(planner) = %s", got)
	}
	if got := cfg.ModelFor("checker"); got != "gemini-2.5-pro" {
		t.Errorf("ModelFor(checker) = %s", got)
	}

	if got := cfg.TemperatureFor("checker"); got != nil {
		t.Errorf("TemperatureFor(checker) unset = %v, want nil", *got)
	}
	shared, planner := 0.2, 0.7
	cfg.LLM.Temperature = &shared
	cfg.Agents.Planner.Temperature = &planner
	if got := cfg.TemperatureFor("planner"); got == nil || *got != 0.7 {
		t.Errorf("TemperatureFor(planner) = %v", got)
	}
	if got := cfg.TemperatureFor("checker"); got == nil || *got != 0.2 {
		t.Errorf("TemperatureFor(checker) = %v", got)
	}

	ws := t.TempDir()
	if got := cfg.DBPath(ws); got != filepath.Join(ws, Dir, "copilot.db") {
		t.Errorf("DBPath() = %s", got)
	}
	abs := filepath.Join(ws, "elsewhere.db")
	cfg.Store.Path = abs
	if got := cfg.DBPath("/ignored"); got != abs {
		t.Errorf("DBPath() absolute = %s", got)
	}
}
