package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"safetycopilot/internal/agent"
	"safetycopilot/internal/llm"
	"safetycopilot/internal/logging"
	"safetycopilot/internal/pipeline"
	"safetycopilot/internal/risk"
	"safetycopilot/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCovered(t *testing.T) {
	tests := []struct {
		keyword string
		text    string
		want    bool
	}{
		{"hara", "perform hara early", true},
		{"hara", "run a hazard analysis", true},
		{"HARA", "perform hara early", true},
		{"hara", "hazard log only", false},
		{"verification_plan", "a plan for verification", true},
		{"verification_plan", "write the test plan", true},
		{"verification_plan", "verification only", false},
		{"safety_goals", "define safety goals", true},
		{"safety_goals", "define safety_goals", false},
		{"safety_case", "assemble the safety case", true},
		{"testing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.keyword+"/"+tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Covered(tt.keyword, tt.text))
		})
	}
}

func TestCoverage(t *testing.T) {
	covered, pct := Coverage([]string{"hara", "safety_goals", "safety_case"}, "Perform HARA. Define Safety Goals.")
	assert.Equal(t, 2, covered)
	assert.Equal(t, 66.7, pct)

	covered, pct = Coverage(nil, "anything")
	assert.Equal(t, 0, covered)
	assert.Equal(t, 0.0, pct)

	_, pct = Coverage([]string{"hara"}, "HAZARD ANALYSIS")
	assert.Equal(t, 100.0, pct)
}

func TestCoverage_RoundsHalfToEven(t *testing.T) {
	expected := []string{"hara"}
	for i := 1; i < 16; i++ {
		expected = append(expected, fmt.Sprintf("topic_%d", i))
	}
	_, pct := Coverage(expected, "hara")
	assert.Equal(t, 6.2, pct)

	_, pct = Coverage(expected, "hara topic 1 topic 2")
	assert.Equal(t, 18.8, pct)

	s := Summary([]Report{{CoveragePercent: 0.5}, {CoveragePercent: 0}})
	assert.Equal(t, 0.2, s.MeanCoverage)
}

func TestSummary(t *testing.T) {
	reports := []Report{
		{ID: "a", ExpectedTopics: 3, CoveredTopics: 3, CoveragePercent: 100},
		{ID: "b", ExpectedTopics: 3, CoveredTopics: 2, CoveragePercent: 66.7},
		{ID: "c", ExpectedTopics: 0, CoveredTopics: 0, CoveragePercent: 0},
	}
	want := Stats{Systems: 3, MeanCoverage: 55.6, FullyCovered: 1, ExpectedTotal: 6, CoveredTotal: 5}
	if diff := cmp.Diff(want, Summary(reports)); diff != "" {
		t.Errorf("Summary mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Stats{}, Summary(nil))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, []Report{{ID: "bms", Risk: risk.High, ExpectedTopics: 2, CoveredTopics: 1, CoveragePercent: 50}}))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "high", decoded[0]["risk"])
	assert.Equal(t, 50.0, decoded[0]["coverage_%"])
	assert.Equal(t, 1.0, decoded[0]["covered_topics"])

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestRenderTable(t *testing.T) {
	out := RenderTable([]Report{
		{ID: "brake_ecu", Name: "Brake", Domain: "automotive", Risk: risk.High, ExpectedTopics: 4, CoveredTopics: 4, CoveragePercent: 100},
		{ID: "step_tracker", Name: "Steps", Domain: "consumer", Risk: risk.Low, ExpectedTopics: 2, CoveredTopics: 1, CoveragePercent: 50},
	})
	for _, col := range tableColumns {
		assert.Contains(t, out, col)
	}
	assert.Contains(t, out, "brake_ecu")
	assert.Contains(t, out, "100.0")
	assert.Contains(t, out, "50.0")
	assert.Contains(t, out, "2 systems, mean coverage 75.0%, 1 fully covered")
}

func TestParseDataset(t *testing.T) {
	list := []byte(`
- id: bms
  name: BMS
  domain: automotive
  description: Battery management
  expected_must_have: [hara, safety_case]
`)
	ds, err := ParseDataset(list)
	require.NoError(t, err)
	require.Len(t, ds.Systems, 1)
	assert.Empty(t, ds.Standard)
	assert.Equal(t, []string{"hara", "safety_case"}, ds.Systems[0].ExpectedMustHave)

	mapping := []byte(`
standard: iec61508
systems:
  - id: pump
    description: Infusion pump controller
`)
	ds, err = ParseDataset(mapping)
	require.NoError(t, err)
	require.Len(t, ds.Systems, 1)
	assert.Equal(t, "pump", ds.Systems[0].ID)
	assert.Equal(t, "iec61508", ds.Standard)

	ds, err = ParseDataset([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, ds.Systems)

	_, err = ParseDataset([]byte("- name: no id\n  description: x\n"))
	assert.ErrorContains(t, err, "id is required")

	_, err = ParseDataset([]byte("- id: x\n"))
	assert.ErrorContains(t, err, "description is required")

	_, err = ParseDataset([]byte("just a string"))
	assert.Error(t, err)
}

func TestLoadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "systems.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- id: a\n  description: A step tracker app\n"), 0644))

	ds, err := LoadDataset(path)
	require.NoError(t, err)
	require.Len(t, ds.Systems, 1)

	_, err = LoadDataset(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuiltinSystems(t *testing.T) {
	systems := BuiltinSystems()
	require.Len(t, systems, 3)
	assert.Equal(t, risk.High, risk.Estimate(systems[0].Description))
	assert.Equal(t, risk.Low, risk.Estimate(systems[2].Description))
	for _, s := range systems {
		assert.NotEmpty(t, s.ExpectedMustHave, s.ID)
	}
}

// topicModel answers the checker with the system description it was given,
// so coverage depends only on the system.
type topicModel struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (m *topicModel) Name() string     { return "topic" }
func (m *topicModel) Provider() string { return "test" }

func (m *topicModel) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.fail {
		return nil, errors.New("quota exhausted")
	}
	if req.System == agent.PlannerInstruction {
		return &llm.Response{Text: "plan"}, nil
	}
	prompt := llm.LastUserText(req.Messages)
	desc, _, _ := strings.Cut(strings.TrimPrefix(prompt, "System description:\n"), "\n\n")
	return &llm.Response{Text: desc}, nil
}

func evalSystems() []pipeline.System {
	return []pipeline.System{
		{ID: "one", Description: "Brake-by-wire for a battery pack with hazard analysis", ExpectedMustHave: []string{"hara", "safety_case"}},
		{ID: "two", Description: "Step tracker app", ExpectedMustHave: []string{"step tracker"}},
		{ID: "three", Description: "Lamp", ExpectedMustHave: []string{"safety_case"}},
	}
}

func TestEvaluate_SequentialAndParallelAgree(t *testing.T) {
	ctx := context.Background()

	var results [][]Report
	for _, parallel := range []int{0, 3} {
		p := pipeline.New(&topicModel{}, session.NewInMemory())
		require.NoError(t, p.Setup(ctx))

		reports, err := New(p, Options{Parallel: parallel}).Evaluate(ctx, evalSystems(), "iso26262")
		require.NoError(t, err)
		results = append(results, reports)
	}

	ids := make([]string, 0, 3)
	for _, r := range results[1] {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"one", "two", "three"}, ids)
	if diff := cmp.Diff(results[0], results[1]); diff != "" {
		t.Errorf("parallel reports differ (-sequential +parallel):\n%s", diff)
	}

	assert.Equal(t, 50.0, results[0][0].CoveragePercent)
	assert.Equal(t, 100.0, results[0][1].CoveragePercent)
	assert.Equal(t, 0.0, results[0][2].CoveragePercent)
	assert.Equal(t, risk.High, results[0][0].Risk)
}

func TestEvaluate_ParallelDiscardsForks(t *testing.T) {
	ctx := context.Background()
	svc := session.NewInMemory()
	p := pipeline.New(&topicModel{}, svc)
	require.NoError(t, p.Setup(ctx))

	_, err := New(p, Options{Parallel: 2}).Evaluate(ctx, evalSystems(), "")
	require.NoError(t, err)

	planner, checker, err := p.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, planner.Turns)
	assert.Empty(t, checker.Turns)
}

func TestEvaluate_SequentialSharesHistory(t *testing.T) {
	ctx := context.Background()
	p := pipeline.New(&topicModel{}, session.NewInMemory())
	require.NoError(t, p.Setup(ctx))

	_, err := New(p, Options{}).Evaluate(ctx, evalSystems(), "")
	require.NoError(t, err)

	planner, _, err := p.History(ctx)
	require.NoError(t, err)
	assert.Len(t, planner.Turns, 6)
}

func TestEvaluate_Errors(t *testing.T) {
	ctx := context.Background()

	for _, parallel := range []int{0, 1, 2} {
		model := &topicModel{}
		p := pipeline.New(model, session.NewInMemory())
		reports, err := New(p, Options{Parallel: parallel}).Evaluate(ctx, evalSystems(), "iso26262")
		assert.ErrorIs(t, err, pipeline.ErrNotInitialized, "parallel=%d", parallel)
		assert.Nil(t, reports)
		assert.Zero(t, model.calls)
	}

	for _, parallel := range []int{1, 2} {
		p := pipeline.New(&topicModel{fail: true}, session.NewInMemory())
		require.NoError(t, p.Setup(ctx))
		_, err := New(p, Options{Parallel: parallel}).Evaluate(ctx, evalSystems(), "")
		require.Error(t, err)
		assert.ErrorContains(t, err, "quota exhausted")
	}
}

func TestEvaluate_OfflineBuiltins(t *testing.T) {
	ctx := context.Background()
	p := pipeline.New(llm.NewOffline(), session.NewInMemory())
	require.NoError(t, p.Setup(ctx))

	reports, err := New(p, Options{Parallel: 2}).Evaluate(ctx, BuiltinSystems(), "iso26262")
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, 100.0, reports[0].CoveragePercent)
	assert.Equal(t, 100.0, reports[1].CoveragePercent)
}

func TestEvaluate_LogsSummary(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, logging.Initialize(ws, logging.Config{DebugMode: true, Level: "info", JSONFormat: true}))
	t.Cleanup(func() { _ = logging.Initialize(ws, logging.Config{}) })

	ctx := context.Background()
	p := pipeline.New(&topicModel{}, session.NewInMemory())
	require.NoError(t, p.Setup(ctx))
	_, err := New(p, Options{}).Evaluate(ctx, evalSystems(), "iso26262")
	require.NoError(t, err)
	logging.CloseAll()

	data, err := os.ReadFile(filepath.Join(ws, ".copilot", "logs", time.Now().Format("2006-01-02")+"_eval.log"))
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"evaluation finished"`)
	assert.Contains(t, out, `"mean_coverage":50`)
	assert.Contains(t, out, `"standard":"iso26262"`)
}
