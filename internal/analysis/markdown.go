package analysis

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Markdown renders the report for glamour. Full adds the disassembly and
// the IR before and after the rewrite of every function.
func (r *Report) Markdown(full bool) string {
	var sb strings.Builder
	sb.WriteString("# Stack frames\n\n```\n")
	fmt.Fprintf(&sb, "; %s\n", filepath.Base(r.Path))
	if r.Digest != "" {
		fmt.Fprintf(&sb, "; %s\n", r.Digest)
	}
	fmt.Fprintf(&sb, "; %d recovered, %d skipped, %d abandoned, %d failed\n",
		r.Recovered, r.Skipped, r.Abandoned, r.Failed)
	sb.WriteString("```\n")

	for _, fn := range r.Functions {
		sb.WriteString("\n")
		sb.WriteString(fn.Markdown(full))
	}
	return sb.String()
}

// Markdown renders one function.
func (fn *FunctionReport) Markdown(full bool) string {
	var sb strings.Builder
	title := fn.Name
	if fn.Demangled != "" {
		title = fn.Demangled
	}
	fmt.Fprintf(&sb, "## %s\n\n", escapeBackticks(title))
	if fn.Addr != 0 {
		fmt.Fprintf(&sb, "`0x%x` ", fn.Addr)
	}
	fmt.Fprintf(&sb, "**%s**", fn.Status)
	if fn.Lift != nil {
		fmt.Fprintf(&sb, ", %d instructions, %d stack accesses, %d byte frame",
			fn.Lift.Insns, fn.Lift.Accesses, fn.Lift.FrameSize)
	}
	sb.WriteString("\n\n")

	if fn.Error != "" {
		fmt.Fprintf(&sb, "> %s\n\n", fn.Error)
	}
	if fn.Frame != "" {
		fmt.Fprintf(&sb, "```llvm\n%%stackframe = alloca %s\n```\n\n", fn.Frame)
		sb.WriteString("| offset | type | path |\n|---:|---|---|\n")
		for _, s := range fn.Slots {
			fmt.Fprintf(&sb, "| %d | `%s` | `%s` |\n", s.Offset+fn.Shift, s.Type, s.Path)
		}
		sb.WriteString("\n")
	}
	if !full {
		return sb.String()
	}
	if fn.Disasm != "" {
		fmt.Fprintf(&sb, "### Disassembly\n\n```armasm\n%s```\n\n", fn.Disasm)
	}
	fmt.Fprintf(&sb, "### Before\n\n```llvm\n%s```\n\n", fn.Before)
	if fn.Status == Recovered {
		fmt.Fprintf(&sb, "### After\n\n```llvm\n%s```\n\n", fn.After)
	}
	return sb.String()
}

func escapeBackticks(s string) string {
	return strings.ReplaceAll(s, "`", "\\`")
}
