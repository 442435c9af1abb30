package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetForTest(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		CloseAll()
		configMu.Lock()
		config = Config{}
		logLevel = LevelInfo
		configMu.Unlock()
		loggersMu.Lock()
		logsDir = ""
		loggersMu.Unlock()
	})
}

func readLog(t *testing.T, ws string, cat Category) string {
	t.Helper()
	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(ws, ".copilot", "logs", date+"_"+string(cat)+".log"))
	if err != nil {
		t.Fatalf("read %s log: %v", cat, err)
	}
	return string(data)
}

func TestInitializeRequiresWorkspace(t *testing.T) {
	if err := Initialize("", Config{}); err == nil {
		t.Fatal("expected error for empty workspace")
	}
}

func TestDisabledModeWritesNothing(t *testing.T) {
	resetForTest(t)
	ws := t.TempDir()

	if err := Initialize(ws, Config{DebugMode: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	Pipeline("should not be written")

	if _, err := os.Stat(filepath.Join(ws, ".copilot", "logs")); !os.IsNotExist(err) {
		t.Fatalf("logs dir should not exist in production mode, stat err=%v", err)
	}
	if IsDebugMode() {
		t.Fatal("debug mode should be off")
	}
}

func TestCategoryFilesAndLevels(t *testing.T) {
	resetForTest(t)
	ws := t.TempDir()

	cfg := Config{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"store": false},
	}
	if err := Initialize(ws, cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	Pipeline("planner finished for %s", "bms")
	PipelineDebug("hidden debug line")
	Store("disabled category")

	out := readLog(t, ws, CategoryPipeline)
	if !strings.Contains(out, "[INFO] planner finished for bms") {
		t.Fatalf("pipeline log missing info line: %q", out)
	}
	if strings.Contains(out, "hidden debug line") {
		t.Fatal("debug line written at info level")
	}

	if IsCategoryEnabled(CategoryStore) {
		t.Fatal("store category should be disabled")
	}
	if !IsCategoryEnabled(CategoryEval) {
		t.Fatal("unlisted categories default to enabled")
	}
}

func TestJSONFormat(t *testing.T) {
	resetForTest(t)
	ws := t.TempDir()

	if err := Initialize(ws, Config{DebugMode: true, Level: "debug", JSONFormat: true}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	Get(CategoryEval).StructuredLog("info", "run done", map[string]interface{}{"systems": 3})
	CloseAll()

	out := strings.TrimSpace(readLog(t, ws, CategoryEval))
	// Strip the log.Logger date prefix: the JSON starts at the first brace.
	idx := strings.Index(out, "{")
	if idx < 0 {
		t.Fatalf("no JSON in log: %q", out)
	}
	var entry StructuredLogEntry
	if err := json.Unmarshal([]byte(out[idx:]), &entry); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, out)
	}
	if entry.Category != "eval" || entry.Message != "run done" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestTimer(t *testing.T) {
	timer := StartTimer(CategoryAPI, "generate")
	if d := timer.Stop(); d < 0 {
		t.Fatalf("negative duration %v", d)
	}
	if d := StartTimer(CategoryAPI, "generate").StopWithThreshold(time.Hour); d > time.Hour {
		t.Fatalf("unexpected duration %v", d)
	}
}
