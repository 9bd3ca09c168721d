package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"stackframe/internal/analysis"
	"stackframe/internal/ir"
)

// Config is the analysis configuration. Every field has a flag of the same
// name.
type Config struct {
	Debug       bool   `json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
	PointerSize uint64 `json:"pointer_size" jsonschema:"title=Pointer Size,description=Pointer size in bytes of the data layout,default=8"`
	MaxAlign    uint64 `json:"max_align" jsonschema:"title=Maximum Alignment,description=Largest alignment of the data layout in bytes,default=16"`
	MaxInsns    int    `json:"max_insns" jsonschema:"title=Instruction Limit,description=Instructions lifted per function (0 for no limit)"`
	Verify      bool   `json:"verify" jsonschema:"title=Verify,description=Check every rewritten address against the offset it replaces"`
	Symbol      string `json:"symbol,omitempty" jsonschema:"title=Symbol,description=Only analyze functions whose name contains this"`
}

func addConfigFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.BoolP("debug", "d", false, "Debug")
	f.Uint64("pointer-size", 8, "Pointer size of the data layout")
	f.Uint64("max-align", 16, "Largest alignment of the data layout")
	f.Int("max-insns", 0, "Instructions lifted per function (0 for no limit)")
	f.Bool("verify", true, "Check rewritten addresses")
	f.StringP("symbol", "s", "", "Only analyze functions whose name contains this")
}

func configFromFlags(cmd *cobra.Command) Config {
	var c Config
	f := cmd.Flags()
	c.Debug, _ = f.GetBool("debug")
	c.PointerSize, _ = f.GetUint64("pointer-size")
	c.MaxAlign, _ = f.GetUint64("max-align")
	c.MaxInsns, _ = f.GetInt("max-insns")
	c.Verify, _ = f.GetBool("verify")
	c.Symbol, _ = f.GetString("symbol")
	return c
}

// layoutChanged reports whether the layout was set on the command line,
// overriding the one an IR file declares.
func layoutChanged(cmd *cobra.Command) bool {
	return cmd.Flags().Changed("pointer-size") || cmd.Flags().Changed("max-align")
}

func (c Config) Layout() ir.Layout {
	return &ir.DataLayout{PointerSize: c.PointerSize, MaxAlign: c.MaxAlign}
}

func (c Config) Options(lg *log.Logger) analysis.Options {
	return analysis.Options{
		Symbol:   c.Symbol,
		MaxInsns: c.MaxInsns,
		Verify:   c.Verify,
		Layout:   c.Layout(),
		Logger:   lg,
	}
}
