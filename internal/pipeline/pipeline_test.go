package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safetycopilot/internal/agent"
	"safetycopilot/internal/llm"
	"safetycopilot/internal/logging"
	"safetycopilot/internal/risk"
	"safetycopilot/internal/session"
)

var brakeECU = System{
	ID:          "brake_ecu",
	Name:        "Brake ECU",
	Domain:      "automotive",
	Description: "Electronic control unit for a brake-by-wire system with emergency braking.",
}

// echoModel answers the planner with a fixed plan and the checker with its
// own prompt, so tests can see exactly what the checker received.
type echoModel struct {
	mu       sync.Mutex
	plan     string
	messages map[string][]int // system instruction -> message counts per call
}

func (m *echoModel) Name() string     { return "echo" }
func (m *echoModel) Provider() string { return "test" }

func (m *echoModel) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.messages == nil {
		m.messages = make(map[string][]int)
	}
	m.messages[req.System] = append(m.messages[req.System], len(req.Messages))
	if req.System == agent.PlannerInstruction {
		return &llm.Response{Text: m.plan}, nil
	}
	return &llm.Response{Text: "REVIEW\n" + llm.LastUserText(req.Messages)}, nil
}

func TestRun_NotInitialized(t *testing.T) {
	p := New(&echoModel{}, session.NewInMemory())
	_, err := p.Run(context.Background(), brakeECU, "iso26262")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestSetup_Idempotent(t *testing.T) {
	svc := session.NewInMemory()
	p := New(&echoModel{}, svc)
	require.NoError(t, p.Setup(context.Background()))
	require.NoError(t, p.Setup(context.Background()))

	_, err := svc.GetSession(context.Background(), session.Key{AppName: DefaultAppName, UserID: DefaultUserID, ID: DefaultPlannerSession})
	assert.NoError(t, err)
	_, err = svc.GetSession(context.Background(), session.Key{AppName: DefaultAppName, UserID: DefaultUserID, ID: DefaultCheckerSession})
	assert.NoError(t, err)
}

func TestSetup_LogsAgentTools(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, logging.Initialize(ws, logging.Config{DebugMode: true, Level: "debug"}))
	t.Cleanup(func() { _ = logging.Initialize(ws, logging.Config{}) })

	p := New(&echoModel{}, session.NewInMemory(), WithAppName("brake_app"))
	require.NoError(t, p.Setup(context.Background()))
	logging.CloseAll()

	data, err := os.ReadFile(filepath.Join(ws, ".copilot", "logs", time.Now().Format("2006-01-02")+"_pipeline.log"))
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "app=brake_app")
	assert.Contains(t, out, "Agent "+agent.PlannerName+" tools=[checklist_formatter standard_lookup]")
	assert.Contains(t, out, "Agent "+agent.CheckerName+" tools=[]")
}

func TestRunDetailed_PromptsAndHandoff(t *testing.T) {
	model := &echoModel{plan: "### Concept phase\n- [ ] Perform HARA"}
	p := New(model, session.NewInMemory())
	require.NoError(t, p.Setup(context.Background()))

	res, err := p.RunDetailed(context.Background(), brakeECU, "iso26262")
	require.NoError(t, err)

	assert.Equal(t, risk.High, res.Risk)
	assert.Contains(t, res.PlannerPrompt, "Risk level (pre-estimated): high\n")
	assert.Contains(t, res.PlannerPrompt, "Target standard: iso26262\n")
	assert.Contains(t, res.PlannerPrompt, "ideally under 200 words")
	assert.Equal(t, model.plan, res.PlannerText)

	assert.Contains(t, res.CheckerPrompt, "\"\"\""+model.plan+"\"\"\"")
	assert.Contains(t, res.CheckerPrompt, "Risk level: high\n")
	assert.Equal(t, "REVIEW\n"+res.CheckerPrompt, res.CheckerText)
}

func TestRun_PassesStandardThrough(t *testing.T) {
	p := New(&echoModel{}, session.NewInMemory())
	require.NoError(t, p.Setup(context.Background()))

	for _, standard := range []string{"", "do178c"} {
		res, err := p.RunDetailed(context.Background(), brakeECU, standard)
		require.NoError(t, err)
		assert.Contains(t, res.PlannerPrompt, "Target standard: "+standard+"\n")
		assert.Contains(t, res.CheckerPrompt, "Target standard: "+standard+"\n")
	}
}

func TestRun_EmptyPlannerText(t *testing.T) {
	p := New(&echoModel{plan: ""}, session.NewInMemory())
	require.NoError(t, p.Setup(context.Background()))

	res, err := p.RunDetailed(context.Background(), brakeECU, "iso26262")
	require.NoError(t, err)
	assert.Contains(t, res.CheckerPrompt, "PlannerAgent:\n\"\"\"\"\"\"\n")
}

func TestRun_HistoryAccumulatesUntilReset(t *testing.T) {
	model := &echoModel{plan: "plan"}
	p := New(model, session.NewInMemory())
	ctx := context.Background()
	require.NoError(t, p.Setup(ctx))

	_, err := p.Run(ctx, brakeECU, "iso26262")
	require.NoError(t, err)
	_, err = p.Run(ctx, brakeECU, "iso26262")
	require.NoError(t, err)

	planner, checker, err := p.History(ctx)
	require.NoError(t, err)
	assert.Len(t, planner.Turns, 4)
	assert.Len(t, checker.Turns, 4)
	assert.Equal(t, []int{1, 3}, model.messages[agent.PlannerInstruction])

	require.NoError(t, p.Reset(ctx))
	_, err = p.Run(ctx, brakeECU, "iso26262")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 1}, model.messages[agent.PlannerInstruction])
}

func TestFork_IsolatesHistory(t *testing.T) {
	svc := session.NewInMemory()
	ctx := context.Background()
	p := New(&echoModel{plan: "plan"}, svc)
	require.NoError(t, p.Setup(ctx))
	_, err := p.Run(ctx, brakeECU, "iso26262")
	require.NoError(t, err)

	fork, err := p.Fork(ctx)
	require.NoError(t, err)
	fp, fc := fork.SessionIDs()
	assert.True(t, strings.HasPrefix(fp, DefaultPlannerSession+"-"))
	assert.True(t, strings.HasPrefix(fc, DefaultCheckerSession+"-"))

	_, err = fork.Run(ctx, brakeECU, "iso26262")
	require.NoError(t, err)

	planner, _, err := fork.History(ctx)
	require.NoError(t, err)
	assert.Len(t, planner.Turns, 2)

	planner, _, err = p.History(ctx)
	require.NoError(t, err)
	assert.Len(t, planner.Turns, 2)

	require.NoError(t, fork.Discard(ctx))
	_, err = fork.Run(ctx, brakeECU, "iso26262")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = svc.GetSession(ctx, session.Key{AppName: DefaultAppName, UserID: DefaultUserID, ID: fp})
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestFork_RequiresSetup(t *testing.T) {
	ctx := context.Background()
	svc := session.NewInMemory()
	p := New(&echoModel{}, svc)

	_, err := p.Fork(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, p.Setup(ctx))
	require.NoError(t, p.Discard(ctx))
	_, err = p.Fork(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestRun_OfflineEndToEnd(t *testing.T) {
	p := New(llm.NewOffline(), session.NewInMemory())
	require.NoError(t, p.Setup(context.Background()))

	res, err := p.RunDetailed(context.Background(), brakeECU, "iso26262")
	require.NoError(t, err)

	assert.Contains(t, res.PlannerText, "### Concept phase")
	for _, section := range []string{"## Executive summary", "## Gaps & risks", "## Updated checklist", "## Suggested improvements"} {
		assert.Contains(t, res.CheckerText, section)
	}
	assert.Contains(t, res.CheckerText, "- [x] Perform a hazard analysis")
	assert.Contains(t, res.CheckerText, "covers 4 of 4 critical concepts")
}

func TestPlannerPrompt_Exact(t *testing.T) {
	sys := System{Description: "A step tracker app.", Domain: "consumer"}
	want := "System description:\nA step tracker app.\n\n" +
		"Domain: consumer\n" +
		"Target standard: generic_safety\n" +
		"Risk level (pre-estimated): low\n\n" +
		"Your task:\n" +
		"1. Propose a safety and compliance work plan for this system, grouped by phase.\n" +
		"2. Mention key concepts such as HARA / risk assessment, safety goals,\n" +
		"   safety requirements, verification / test plan, and safety case where appropriate.\n" +
		"3. Keep the answer concise (ideally under 200 words).\n"
	assert.Equal(t, want, PlannerPrompt(sys, "generic_safety", risk.Low))
}
