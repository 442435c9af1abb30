package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"safetycopilot/internal/eval"
)

var (
	evalDataset  string
	evalStandard string
	evalParallel int
	evalJSON     bool
	evalSave     bool
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate the pipeline over a batch of systems",
	Long: `Runs planner and checker for every system of a dataset and scores each
checker review by how many of the system's expected topics it mentions.

The dataset is a YAML or JSON list of systems (id, name, domain, description,
expected_must_have), or a mapping with a "systems" key and an optional
"standard" used when --standard is not given. Without --dataset the built-in
example systems are used.

With --parallel N > 1 systems run concurrently, each on its own fresh
sessions. Otherwise they run in order and share the conversation history.`,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVarP(&evalDataset, "dataset", "d", "", "Dataset file (default: built-in systems)")
	evalCmd.Flags().StringVarP(&evalStandard, "standard", "s", "", "Standard profile (default from config)")
	evalCmd.Flags().IntVarP(&evalParallel, "parallel", "p", 0, "Number of systems evaluated concurrently (default from config)")
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "Print the reports as JSON")
	evalCmd.Flags().BoolVar(&evalSave, "save", false, "Save the run to the evaluation history")
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(timeout)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if evalSave && a.store == nil {
		return fmt.Errorf("--save requires the sqlite store backend")
	}

	ds, err := evalDatasetFor(a)
	if err != nil {
		return err
	}
	systems := ds.Systems

	parallel := a.cfg.Eval.Parallel
	if cmd.Flags().Changed("parallel") {
		parallel = evalParallel
	}
	standard := evalStandard
	if standard == "" {
		standard = a.standard(ds.Standard)
	}

	p, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}

	logger.Info("Evaluating", zap.Int("systems", len(systems)), zap.String("standard", standard), zap.Int("parallel", parallel))
	reports, err := eval.New(p, eval.Options{Parallel: parallel}).Evaluate(ctx, systems, standard)
	if err != nil {
		return describeError(err)
	}

	if evalJSON {
		if err := eval.WriteJSON(os.Stdout, reports); err != nil {
			return err
		}
	} else {
		fmt.Print(eval.RenderTable(reports))
	}

	if evalSave {
		id, err := a.store.SaveEvaluation(ctx, standard, a.model.Provider(), a.model.Name(), reports)
		if err != nil {
			return err
		}
		if evalJSON {
			logger.Info("Saved evaluation run", zap.String("id", id))
		} else {
			fmt.Printf("Saved run %s\n", id)
		}
	}
	return nil
}

// evalDatasetFor loads --dataset, the configured dataset or the built-in
// systems, in that order.
func evalDatasetFor(a *app) (*eval.Dataset, error) {
	path := evalDataset
	if path == "" {
		path = a.cfg.Eval.Dataset
	}
	if path == "" {
		return &eval.Dataset{Systems: eval.BuiltinSystems()}, nil
	}
	ds, err := eval.LoadDataset(path)
	if err != nil {
		return nil, err
	}
	if len(ds.Systems) == 0 {
		return nil, fmt.Errorf("dataset %s contains no systems", path)
	}
	return ds, nil
}
