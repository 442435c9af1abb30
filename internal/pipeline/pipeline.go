// Package pipeline chains the planner and checker agents: it estimates the
// risk of a system, asks the planner for a work plan and asks the checker to
// review it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"safetycopilot/internal/agent"
	"safetycopilot/internal/llm"
	"safetycopilot/internal/logging"
	"safetycopilot/internal/risk"
	"safetycopilot/internal/session"
	"safetycopilot/internal/usage"
)

// ErrNotInitialized is returned by Run before Setup succeeded.
var ErrNotInitialized = errors.New("agents (planner/checker) are not initialized")

// Defaults for the conversational contexts.
const (
	DefaultAppName        = "safety_copilot_app"
	DefaultUserID         = "demo_user"
	DefaultPlannerSession = "planner_session"
	DefaultCheckerSession = "checker_session"
)

// System is the description of a system to plan for.
type System struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name" yaml:"name"`
	Domain           string   `json:"domain" yaml:"domain"`
	Description      string   `json:"description" yaml:"description"`
	ExpectedMustHave []string `json:"expected_must_have,omitempty" yaml:"expected_must_have,omitempty"`
}

// Result holds the intermediate artefacts of one run.
type Result struct {
	Risk          risk.Level
	PlannerPrompt string
	PlannerText   string
	CheckerPrompt string
	CheckerText   string
}

// Pipeline owns the two runners and their sessions. It replaces module-level
// runner state with an explicit value; a zero-history pipeline is obtained
// with Reset or Fork.
type Pipeline struct {
	model    llm.Model
	sessions session.Service

	appName        string
	userID         string
	plannerSession string
	checkerSession string
	planner        *agent.Agent
	checker        *agent.Agent
	maxToolRounds  int
	tracker        *usage.Tracker

	mu            sync.Mutex
	plannerRunner *agent.Runner
	checkerRunner *agent.Runner
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAppName sets the application name of the sessions.
func WithAppName(name string) Option {
	return func(p *Pipeline) {
		if name != "" {
			p.appName = name
		}
	}
}

// WithUserID sets the user the sessions belong to.
func WithUserID(id string) Option {
	return func(p *Pipeline) {
		if id != "" {
			p.userID = id
		}
	}
}

// WithSessionIDs sets the planner and checker session identifiers.
func WithSessionIDs(planner, checker string) Option {
	return func(p *Pipeline) {
		if planner != "" {
			p.plannerSession = planner
		}
		if checker != "" {
			p.checkerSession = checker
		}
	}
}

// WithPlanner replaces the planner agent, e.g. to pin a model.
func WithPlanner(a *agent.Agent) Option {
	return func(p *Pipeline) {
		if a != nil {
			p.planner = a
		}
	}
}

// WithChecker replaces the checker agent.
func WithChecker(a *agent.Agent) Option {
	return func(p *Pipeline) {
		if a != nil {
			p.checker = a
		}
	}
}

// WithMaxToolRounds bounds the planner's tool loop.
func WithMaxToolRounds(n int) Option {
	return func(p *Pipeline) { p.maxToolRounds = n }
}

// WithUsageTracker records the token usage of both agents.
func WithUsageTracker(t *usage.Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// New creates a pipeline. Call Setup before Run.
func New(model llm.Model, sessions session.Service, opts ...Option) *Pipeline {
	p := &Pipeline{
		model:          model,
		sessions:       sessions,
		appName:        DefaultAppName,
		userID:         DefaultUserID,
		plannerSession: DefaultPlannerSession,
		checkerSession: DefaultCheckerSession,
		planner:        agent.NewPlanner(),
		checker:        agent.NewChecker(),
		maxToolRounds:  agent.DefaultMaxToolRounds,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SessionIDs returns the planner and checker session identifiers.
func (p *Pipeline) SessionIDs() (planner, checker string) {
	return p.plannerSession, p.checkerSession
}

// Setup creates both sessions and both runners. Calling it again is a no-op.
func (p *Pipeline) Setup(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range []string{p.plannerSession, p.checkerSession} {
		if err := p.ensureSession(ctx, id); err != nil {
			return err
		}
	}

	opts := []agent.RunnerOption{agent.WithMaxToolRounds(p.maxToolRounds)}
	if p.tracker != nil {
		opts = append(opts, agent.WithUsageTracker(p.tracker))
	}
	if p.plannerRunner == nil {
		p.plannerRunner = agent.NewRunner(p.appName, p.planner, p.model, p.sessions, opts...)
	}
	if p.checkerRunner == nil {
		p.checkerRunner = agent.NewRunner(p.appName, p.checker, p.model, p.sessions, opts...)
	}

	logging.Pipeline("Runners ready: app=%s user=%s planner=%s checker=%s",
		p.plannerRunner.AppName(), p.userID, p.plannerSession, p.checkerSession)
	for _, r := range []*agent.Runner{p.plannerRunner, p.checkerRunner} {
		logging.PipelineDebug("Agent %s tools=%v", r.Agent().Name, r.Agent().Tools.Names())
	}
	return nil
}

func (p *Pipeline) ensureSession(ctx context.Context, id string) error {
	_, err := p.sessions.CreateSession(ctx, p.key(id))
	if err != nil && !errors.Is(err, session.ErrExists) {
		return fmt.Errorf("failed to create session %s: %w", id, err)
	}
	return nil
}

func (p *Pipeline) key(id string) session.Key {
	return session.Key{AppName: p.appName, UserID: p.userID, ID: id}
}

func (p *Pipeline) runners() (*agent.Runner, *agent.Runner) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plannerRunner, p.checkerRunner
}

// Run executes planner then checker for sys and returns the checker's text.
func (p *Pipeline) Run(ctx context.Context, sys System, standard string) (string, error) {
	res, err := p.RunDetailed(ctx, sys, standard)
	if err != nil {
		return "", err
	}
	return res.CheckerText, nil
}

// RunDetailed is Run returning the prompts and both responses.
func (p *Pipeline) RunDetailed(ctx context.Context, sys System, standard string) (*Result, error) {
	planner, checker := p.runners()
	if planner == nil || checker == nil {
		return nil, ErrNotInitialized
	}

	start := time.Now()
	res := &Result{Risk: risk.Estimate(sys.Description)}
	logging.PipelineDebug("Run %q: standard=%s risk=%s", sys.ID, standard, res.Risk)

	res.PlannerPrompt = PlannerPrompt(sys, standard, res.Risk)
	text, err := agent.FinalText(planner.Run(ctx, p.userID, p.plannerSession, res.PlannerPrompt))
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	res.PlannerText = text

	res.CheckerPrompt = CheckerPrompt(sys, standard, res.Risk, res.PlannerText)
	text, err = agent.FinalText(checker.Run(ctx, p.userID, p.checkerSession, res.CheckerPrompt))
	if err != nil {
		return nil, fmt.Errorf("checker: %w", err)
	}
	res.CheckerText = text

	logging.Pipeline("Run %q finished in %v: plan_len=%d review_len=%d",
		sys.ID, time.Since(start), len(res.PlannerText), len(res.CheckerText))
	return res, nil
}

// Reset drops both histories by recreating the sessions.
func (p *Pipeline) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range []string{p.plannerSession, p.checkerSession} {
		if err := p.sessions.DeleteSession(ctx, p.key(id)); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", id, err)
		}
		if err := p.ensureSession(ctx, id); err != nil {
			return err
		}
	}
	logging.Pipeline("Sessions reset: planner=%s checker=%s", p.plannerSession, p.checkerSession)
	return nil
}

// Fork returns a set-up pipeline that shares the model and session service
// but uses fresh sessions, so its runs see no history of p. p must be set up.
func (p *Pipeline) Fork(ctx context.Context) (*Pipeline, error) {
	if planner, checker := p.runners(); planner == nil || checker == nil {
		return nil, ErrNotInitialized
	}
	suffix := uuid.NewString()
	fork := &Pipeline{
		model:          p.model,
		sessions:       p.sessions,
		appName:        p.appName,
		userID:         p.userID,
		plannerSession: p.plannerSession + "-" + suffix,
		checkerSession: p.checkerSession + "-" + suffix,
		planner:        p.planner,
		checker:        p.checker,
		maxToolRounds:  p.maxToolRounds,
		tracker:        p.tracker,
	}
	if err := fork.Setup(ctx); err != nil {
		return nil, err
	}
	return fork, nil
}

// Discard deletes both sessions. The pipeline must be set up again before
// further use.
func (p *Pipeline) Discard(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range []string{p.plannerSession, p.checkerSession} {
		if err := p.sessions.DeleteSession(ctx, p.key(id)); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", id, err)
		}
	}
	p.plannerRunner, p.checkerRunner = nil, nil
	return nil
}

// History returns the planner and checker sessions.
func (p *Pipeline) History(ctx context.Context) (planner, checker *session.Session, err error) {
	planner, err = p.sessions.GetSession(ctx, p.key(p.plannerSession))
	if err != nil {
		return nil, nil, err
	}
	checker, err = p.sessions.GetSession(ctx, p.key(p.checkerSession))
	if err != nil {
		return nil, nil, err
	}
	return planner, checker, nil
}
