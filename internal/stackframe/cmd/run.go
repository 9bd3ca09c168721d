package cmd

import (
	"log/slog"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	run := &cobra.Command{
		Use:   "run [file]",
		Short: "Print the frame report without the TUI",
		Long: `Run recovers the frames of a binary or IR module in non-interactive mode,
prints the report and exits.`,
		Example: `
# Report every function
stackframe run /path/to/binary

# Include disassembly and IR, as JSON
stackframe run --full --json /path/to/binary
  `,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quiet, _ := cmd.Flags().GetBool("quiet")
			full, _ := cmd.Flags().GetBool("full")
			jsonOutput, _ := cmd.Flags().GetBool("json")

			path, err := resolveFile(args[0])
			if err != nil {
				return err
			}
			cfg := configFromFlags(cmd)
			lg := newLogger(cfg)
			defer lg.Close()
			if quiet {
				lg.SetLevel(charmlog.ErrorLevel)
			}

			report, err := analyze(cmd, path, cfg, lg)
			if err != nil {
				return err
			}
			slog.Debug("analysis finished", "file", path, "functions", len(report.Functions))
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return writeReport(cmd.OutOrStdout(), report, full)
		},
	}
	run.Flags().BoolP("quiet", "q", false, "Only log errors")
	run.Flags().BoolP("full", "f", false, "Include disassembly and IR")
	run.Flags().BoolP("json", "j", false, "Print the report as JSON")
	return run
}
