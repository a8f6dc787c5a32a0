package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/planbuilder/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario name glob
	GoldenDir string // default: golden/ next to the scenarios directory
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// ScenarioSummary holds the overall result.
type ScenarioSummary struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run scripted editing scenarios against an in-memory store with a manual
clock, checking each scenario's assertions and, when a golden file exists,
its trace.

Golden files are read from <golden-dir>/<name>.golden; by default the golden
directory is a "golden" directory next to <scenarios-dir>.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  planbuilder scenario ./testdata/scenarios
  planbuilder scenario ./testdata/scenarios --filter "cascade_*"
  planbuilder scenario ./testdata/scenarios --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "golden file directory")
	return cmd
}

func runScenarios(opts *ScenarioOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return WrapExitError(ExitCommandError, "invalid filter pattern", err)
		}
	}
	goldenDir := opts.GoldenDir
	if goldenDir == "" {
		goldenDir = filepath.Join(filepath.Dir(filepath.Clean(dir)), "golden")
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	summary := ScenarioSummary{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	w := cmd.OutOrStdout()
	for _, file := range files {
		res := runScenarioFile(file, goldenDir, opts.Update)
		summary.Scenarios = append(summary.Scenarios, res)
		if res.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}

		if opts.Format == "json" {
			continue
		}
		if res.Pass {
			fmt.Fprintf(w, "✓ %s\n", res.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", res.Name)
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	f := opts.formatter(cmd)
	if f.JSON() {
		if err := f.Success(summary, ""); err != nil {
			return err
		}
	} else if summary.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
	} else {
		fmt.Fprintf(w, "\nSummary: %d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed))
	}
	return nil
}

// findScenarioFiles lists .yaml/.yml files under dir whose base name
// matches filter.
func findScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			if ok, _ := filepath.Match(filter, name); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func runScenarioFile(file, goldenDir string, update bool) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	errs := append([]string{}, result.Errors...)
	snapshot := harness.TraceSnapshot{ScenarioName: scenario.Name, Trace: result.Trace}
	trace, err := snapshot.Marshal()
	if err != nil {
		errs = append(errs, fmt.Sprintf("failed to marshal trace: %v", err))
		return ScenarioResult{Name: scenario.Name, Errors: errs}
	}

	goldenPath := filepath.Join(goldenDir, scenario.Name+".golden")
	switch {
	case update:
		if err := os.MkdirAll(goldenDir, 0755); err != nil {
			errs = append(errs, fmt.Sprintf("failed to create golden directory: %v", err))
		} else if err := os.WriteFile(goldenPath, trace, 0644); err != nil {
			errs = append(errs, fmt.Sprintf("failed to write golden file: %v", err))
		}
	default:
		golden, err := os.ReadFile(goldenPath)
		switch {
		case os.IsNotExist(err):
			// assertions only
		case err != nil:
			errs = append(errs, fmt.Sprintf("failed to read golden file: %v", err))
		case !bytes.Equal(golden, trace):
			errs = append(errs, "trace does not match golden file (run with --update to regenerate)")
		}
	}

	return ScenarioResult{
		Name:   scenario.Name,
		Pass:   len(errs) == 0,
		Errors: errs,
	}
}
