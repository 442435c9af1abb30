// Package eval runs the planner/checker pipeline over a batch of systems and
// scores each final text by keyword coverage of the expected topics.
package eval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"safetycopilot/internal/logging"
	"safetycopilot/internal/pipeline"
	"safetycopilot/internal/risk"
)

// Options configures an Evaluator.
type Options struct {
	// Parallel > 1 runs systems concurrently on forked pipelines with
	// isolated histories. 0 or 1 runs them in order on the shared pipeline.
	Parallel int
}

// Evaluator scores pipeline output.
type Evaluator struct {
	pipeline *pipeline.Pipeline
	opts     Options
}

// New creates an evaluator over a set-up pipeline.
func New(p *pipeline.Pipeline, opts Options) *Evaluator {
	return &Evaluator{pipeline: p, opts: opts}
}

// Evaluate runs every system and returns one report per system in input
// order. The first pipeline error aborts the batch.
func (e *Evaluator) Evaluate(ctx context.Context, systems []pipeline.System, standard string) ([]Report, error) {
	timer := logging.StartTimer(logging.CategoryEval, "Evaluate")
	defer timer.Stop()

	logging.Eval("Evaluating %d systems: standard=%s parallel=%d", len(systems), standard, e.opts.Parallel)
	var (
		reports []Report
		err     error
	)
	if e.opts.Parallel > 1 {
		reports, err = e.evaluateParallel(ctx, systems, standard)
	} else {
		reports, err = e.evaluateSequential(ctx, systems, standard)
	}
	if err != nil {
		return nil, err
	}

	s := Summary(reports)
	logging.Get(logging.CategoryEval).StructuredLog("INFO", "evaluation finished", map[string]interface{}{
		"standard":      standard,
		"systems":       s.Systems,
		"mean_coverage": s.MeanCoverage,
		"fully_covered": s.FullyCovered,
		"parallel":      e.opts.Parallel,
	})
	return reports, nil
}

func (e *Evaluator) evaluateSequential(ctx context.Context, systems []pipeline.System, standard string) ([]Report, error) {
	reports := make([]Report, 0, len(systems))
	for _, sys := range systems {
		text, err := e.pipeline.Run(ctx, sys, standard)
		if err != nil {
			return nil, fmt.Errorf("system %s: %w", sys.ID, err)
		}
		reports = append(reports, Score(sys, text))
	}
	return reports, nil
}

func (e *Evaluator) evaluateParallel(ctx context.Context, systems []pipeline.System, standard string) ([]Report, error) {
	reports := make([]Report, len(systems))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallel)

	for i, sys := range systems {
		g.Go(func() error {
			start := time.Now()
			fork, err := e.pipeline.Fork(ctx)
			if err != nil {
				return fmt.Errorf("system %s: %w", sys.ID, err)
			}
			defer func() {
				if err := fork.Discard(context.WithoutCancel(ctx)); err != nil {
					logging.EvalDebug("failed to discard forked sessions for %s: %v", sys.ID, err)
				}
			}()

			text, err := fork.Run(ctx, sys, standard)
			if err != nil {
				return fmt.Errorf("system %s: %w", sys.ID, err)
			}
			reports[i] = Score(sys, text)
			logging.EvalDebug("System %s scored %.1f%% in %v", sys.ID, reports[i].CoveragePercent, time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// Score builds the report for one system's final text.
func Score(sys pipeline.System, text string) Report {
	covered, percent := Coverage(sys.ExpectedMustHave, text)
	return Report{
		ID:              sys.ID,
		Name:            sys.Name,
		Domain:          sys.Domain,
		Risk:            risk.Estimate(sys.Description),
		ExpectedTopics:  len(sys.ExpectedMustHave),
		CoveredTopics:   covered,
		CoveragePercent: percent,
	}
}
