package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"stackframe/internal/analysis"
	"stackframe/internal/ui/colorize"
)

func newIRCmd() *cobra.Command {
	irCmd := &cobra.Command{
		Use:   "ir [file.yaml]",
		Short: "Recover frames in an IR module and print the rewritten IR",
		Example: `
# Show each function before and after
stackframe ir module.yaml

# Only the rewritten functions
stackframe ir --after module.yaml
  `,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveFile(args[0])
			if err != nil {
				return err
			}
			if !isIRFile(path) {
				return fmt.Errorf("%s: not a YAML IR module", args[0])
			}
			cfg := configFromFlags(cmd)
			lg := newLogger(cfg)
			defer lg.Close()

			report, err := analyze(cmd, path, cfg, lg)
			if err != nil {
				return err
			}
			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			after, _ := cmd.Flags().GetBool("after")
			return writeIR(cmd.OutOrStdout(), report, after)
		},
	}
	irCmd.Flags().Bool("after", false, "Only print the rewritten IR")
	irCmd.Flags().BoolP("json", "j", false, "Print the report as JSON")
	return irCmd
}

func writeIR(w io.Writer, report *analysis.Report, afterOnly bool) error {
	for _, fn := range report.Functions {
		fmt.Fprintf(w, "; %s: %s\n", fn.Name, fn.Status)
		if fn.Error != "" {
			fmt.Fprintf(w, "; %s\n", fn.Error)
		}
		text := fn.After
		if !afterOnly && fn.Status == analysis.Recovered {
			text = fn.Before + "\n; rewritten\n" + fn.After
		}
		out, err := colorize.IR(text)
		if err != nil {
			out = text
		}
		if _, err := fmt.Fprintln(w, out); err != nil {
			return err
		}
	}
	return nil
}
