package usage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestTracker_TrackAggregatesAndPersists(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewTracker(dir)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	tracker.Track(UsageEvent{Provider: "gemini", Model: "gemini-2.0-flash", Agent: "planner", SessionID: "planner_session", InputTokens: 10, OutputTokens: 5})
	tracker.Track(UsageEvent{Provider: "gemini", Model: "gemini-2.0-flash", Agent: "checker", SessionID: "checker_session", InputTokens: 2, OutputTokens: 3})

	stats := tracker.Stats()
	if stats.Calls != 2 {
		t.Fatalf("Calls=%d, want 2", stats.Calls)
	}
	if stats.Total.Input != 12 || stats.Total.Output != 8 || stats.Total.Total != 20 {
		t.Fatalf("Total=%+v, want input=12 output=8 total=20", stats.Total)
	}
	if got := stats.ByProvider["gemini"]; got.Total != 20 {
		t.Fatalf("ByProvider[gemini]=%+v, want total=20", got)
	}
	if got := stats.ByAgent["planner"]; got.Total != 15 {
		t.Fatalf("ByAgent[planner]=%+v, want total=15", got)
	}
	if got := stats.BySession["checker_session"]; got.Total != 5 {
		t.Fatalf("BySession[checker_session]=%+v, want total=5", got)
	}

	if err := tracker.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read usage.json: %v", err)
	}
	var persisted UsageData
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("unmarshal usage.json: %v", err)
	}
	if persisted.Aggregate.Total.Total != 20 {
		t.Fatalf("persisted total=%d, want 20", persisted.Aggregate.Total.Total)
	}

	reloaded, err := NewTracker(dir)
	if err != nil {
		t.Fatalf("NewTracker reload: %v", err)
	}
	if got := reloaded.Stats().ByModel["gemini-2.0-flash"]; got.Total != 20 {
		t.Fatalf("reloaded ByModel=%+v, want total=20", got)
	}
}

func TestTracker_UnknownDimensions(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	tracker.Track(UsageEvent{InputTokens: 1})
	if got := tracker.Stats().ByAgent["unknown"]; got.Input != 1 {
		t.Fatalf("ByAgent[unknown]=%+v", got)
	}
}

func TestTracker_StatsIsACopy(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	tracker.Track(UsageEvent{Agent: "planner", InputTokens: 1})
	stats := tracker.Stats()
	stats.ByAgent["planner"] = TokenCounts{}
	if tracker.Stats().ByAgent["planner"].Input != 1 {
		t.Fatal("Stats leaked internal map")
	}
}

func TestTracker_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	tracker, err := NewTracker(dir)
	if err == nil {
		t.Fatal("expected load error for corrupt file")
	}
	if tracker == nil {
		t.Fatal("tracker should still be usable")
	}
	tracker.Track(UsageEvent{Agent: "checker", OutputTokens: 4})
	if tracker.Stats().Total.Output != 4 {
		t.Fatal("tracker did not record after load failure")
	}
}

func TestTracker_ContextHelpers(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	ctx := NewContext(context.Background(), tracker)
	if got := FromContext(ctx); got != tracker {
		t.Fatalf("FromContext mismatch")
	}
	if got := FromContext(context.Background()); got != nil {
		t.Fatalf("FromContext on empty context = %v", got)
	}
}
