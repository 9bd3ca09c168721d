package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	pathpkg "path/filepath"
	"runtime/pprof"
	"strings"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	charmlog "github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"stackframe/internal/analysis"
	"stackframe/internal/ir/irfile"
	"stackframe/internal/logging"
	"stackframe/internal/stackframe/log"
	"stackframe/internal/stackframe/styles"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stackframe [file]",
		Short: "Recover stack frames from AArch64 binaries",
		Long: `Stackframe lifts the functions of an AArch64 ELF binary, follows the
constant offsets taken from the stack pointer and recovers each frame as a
packed struct. IR modules written as YAML are accepted as well.`,
		Example: `
# Browse the recovered frames interactively
stackframe /path/to/binary

# Print a report for one function
stackframe -n -s parse_header /path/to/binary

# Recover frames from an IR module
stackframe ir module.yaml
  `,
		Args: cobra.ExactArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			debug, _ := cmd.Flags().GetBool("debug")
			log.Setup(os.Getenv("STACKFRAME_SLOG_FILE"), debug)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			stop, err := startProfiles(cmd)
			if err != nil {
				return err
			}
			defer stop()

			absPath, err := resolveFile(args[0])
			if err != nil {
				return err
			}

			noTUI, _ := cmd.Flags().GetBool("no-tui")
			showFull, _ := cmd.Flags().GetBool("full")
			jsonOutput, _ := cmd.Flags().GetBool("json")

			// --full implies --no-tui
			if showFull {
				noTUI = true
			}
			if !term.IsTerminal(os.Stdout.Fd()) {
				noTUI = true
			}
			if noTUI {
				os.Setenv("STACKFRAME_NO_COLOR", "1")
			}

			cfg := configFromFlags(cmd)
			lg := newLogger(cfg)
			defer lg.Close()

			if jsonOutput || noTUI {
				report, err := analyze(cmd, absPath, cfg, lg)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				return writeReport(cmd.OutOrStdout(), report, showFull)
			}

			// Stderr shares the terminal with the alt screen.
			if !cfg.Debug {
				lg.SetLevel(charmlog.WarnLevel)
			}
			program := tea.NewProgram(
				NewModel(absPath, func() (*analysis.Report, error) {
					return analyze(cmd, absPath, cfg, lg)
				}),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			if _, err := program.Run(); err != nil {
				slog.Error("TUI run error", "error", err)
				return fmt.Errorf("TUI error: %v", err)
			}
			return nil
		},
	}

	addConfigFlags(root)
	root.Flags().BoolP("no-tui", "n", false, "Print the report without the TUI")
	root.Flags().BoolP("full", "f", false, "Include disassembly and IR in the report (implies --no-tui)")
	root.Flags().BoolP("json", "j", false, "Print the report as JSON")
	root.Flags().String("cpuprofile", "", "Write CPU profile to file")
	root.Flags().String("memprofile", "", "Write memory profile to file")

	root.AddCommand(newRunCmd(), newIRCmd(), newLogsCmd(), newSchemaCmd())
	return root
}

func newLogger(cfg Config) *logging.LoggerCloser {
	lg := logging.NewLogger()
	if cfg.Debug {
		lg.SetLevel(charmlog.DebugLevel)
	}
	return lg
}

// isIRFile reports whether path names a YAML IR module rather than a binary.
func isIRFile(path string) bool {
	switch strings.ToLower(pathpkg.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// analyze builds the report for a binary or an IR module.
func analyze(cmd *cobra.Command, path string, cfg Config, lg *logging.LoggerCloser) (*analysis.Report, error) {
	opts := cfg.Options(lg.Logger)
	if !isIRFile(path) {
		return analysis.Binary(path, opts)
	}
	m, err := irfile.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if !layoutChanged(cmd) {
		opts.Layout = nil
	}
	r := analysis.Module(m, opts)
	if cfg.Symbol != "" {
		var kept []analysis.FunctionReport
		for _, fn := range r.Functions {
			if strings.Contains(fn.Name, cfg.Symbol) {
				kept = append(kept, fn)
			}
		}
		r.Functions = kept
	}
	r.Path = path
	if r.Digest, err = analysis.Digest(path); err != nil {
		return nil, err
	}
	return r, nil
}

func resolveFile(file string) (string, error) {
	absPath, err := pathpkg.Abs(file)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %v", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", file)
		}
		return "", fmt.Errorf("cannot access file: %v", err)
	}
	return absPath, nil
}

func writeJSON(w io.Writer, report *analysis.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %v", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeReport(w io.Writer, report *analysis.Report, full bool) error {
	_, err := io.WriteString(w, styles.Render(report.Markdown(full), 100))
	return err
}

// startProfiles starts the CPU profile and arranges for the heap profile,
// as requested by flags. The returned function finishes both.
func startProfiles(cmd *cobra.Command) (func(), error) {
	var stops []func()
	if path, _ := cmd.Flags().GetString("cpuprofile"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("could not create CPU profile: %v", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("could not start CPU profile: %v", err)
		}
		stops = append(stops, func() {
			pprof.StopCPUProfile()
			f.Close()
		})
	}
	if path, _ := cmd.Flags().GetString("memprofile"); path != "" {
		stops = append(stops, func() {
			f, err := os.Create(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
				return
			}
			defer f.Close()
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
			}
		})
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}, nil
}

func Execute() {
	rootCmd := newRootCmd()

	// Bypass fang's markdown rendering for plain or piped output.
	noTUI := !term.IsTerminal(os.Stdout.Fd())
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" || arg == "--full" || arg == "-f" || arg == "--json" || arg == "-j" {
			noTUI = true
			break
		}
	}

	if noTUI {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
