package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type contextKey struct{}

// FileName is the usage file inside the workspace config directory.
const FileName = "usage.json"

// Tracker manages token usage recording and persistence.
type Tracker struct {
	mu       sync.Mutex
	data     UsageData
	filePath string
}

// NewTracker creates a tracker persisted at <dir>/usage.json. Existing data
// is loaded; a corrupt file is reported and replaced on the next Save.
func NewTracker(dir string) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create usage dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(dir, FileName),
		data:     UsageData{Version: "1.0"},
	}
	t.data.Aggregate.ensureMaps()

	if err := t.Load(); err != nil {
		return t, fmt.Errorf("failed to load usage data: %w", err)
	}
	return t, nil
}

// Path returns the persistence path.
func (t *Tracker) Path() string { return t.filePath }

// Load reads the usage data from disk.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var loaded UsageData
	if err := json.Unmarshal(data, &loaded); err != nil {
		return err
	}
	loaded.Aggregate.ensureMaps()
	t.data = loaded
	return nil
}

// Save writes the usage data to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, data, 0644)
}

// Track records a model call.
func (t *Tracker) Track(ev UsageEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	agg := &t.data.Aggregate
	agg.Calls++
	agg.Total.Add(ev.InputTokens, ev.OutputTokens)
	addToMap(agg.ByProvider, orUnknown(ev.Provider), ev.InputTokens, ev.OutputTokens)
	addToMap(agg.ByModel, orUnknown(ev.Model), ev.InputTokens, ev.OutputTokens)
	addToMap(agg.ByAgent, orUnknown(ev.Agent), ev.InputTokens, ev.OutputTokens)
	addToMap(agg.BySession, orUnknown(ev.SessionID), ev.InputTokens, ev.OutputTokens)
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByProvider = copyTokenCountsMap(stats.ByProvider)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByAgent = copyTokenCountsMap(stats.ByAgent)
	stats.BySession = copyTokenCountsMap(stats.BySession)
	return stats
}

func (a *AggregatedStats) ensureMaps() {
	if a.ByProvider == nil {
		a.ByProvider = make(map[string]TokenCounts)
	}
	if a.ByModel == nil {
		a.ByModel = make(map[string]TokenCounts)
	}
	if a.ByAgent == nil {
		a.ByAgent = make(map[string]TokenCounts)
	}
	if a.BySession == nil {
		a.BySession = make(map[string]TokenCounts)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	if src == nil {
		return nil
	}
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}

// NewContext returns a new context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext retrieves the tracker from the context, or nil.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(contextKey{}).(*Tracker)
	return t
}
