package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskgrid/taskgrid/pkg/config"
	"github.com/taskgrid/taskgrid/pkg/engine"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <submission>",
		Short: "Validate a graph submission file",
		Long: `Validate a YAML graph submission without running it.

This command checks:
  - YAML syntax and unknown fields
  - Field ranges (priority, estimates) and task types
  - Dependency references and duplicate node ids
  - Dependency cycles
  - Orphan nodes (warning only)`,
		Example: `  # Validate a submission
  taskgrid validate pipeline.yaml

  # Machine-readable findings
  taskgrid validate --json pipeline.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := validateSubmission(args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			printFindings(report)
			if !report.OK() {
				return fmt.Errorf("validation failed with %d error(s)", len(report.Errors))
			}
			fmt.Println("Submission is valid.")
			return nil
		},
	}

	return cmd
}

// validateSubmission parses a submission file and runs the engine validator
// over the resulting graph.
func validateSubmission(path string) (*engine.ValidationReport, error) {
	sub, err := config.NewParser().ParseFile(path)
	if err != nil {
		return nil, err
	}
	g, err := sub.BuildGraph()
	if err != nil {
		return nil, err
	}
	return engine.NewValidator().Validate(g), nil
}

func printFindings(report *engine.ValidationReport) {
	for _, f := range report.Errors {
		if f.NodeID != "" {
			fmt.Printf("ERROR [%s] %s: %s\n", f.Check, f.NodeID, f.Message)
		} else {
			fmt.Printf("ERROR [%s] %s\n", f.Check, f.Message)
		}
	}
	for _, f := range report.Warnings {
		if f.NodeID != "" {
			fmt.Printf("WARN  [%s] %s: %s\n", f.Check, f.NodeID, f.Message)
		} else {
			fmt.Printf("WARN  [%s] %s\n", f.Check, f.Message)
		}
	}
}
