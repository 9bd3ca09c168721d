// Package colorize highlights lifted IR and disassembly for the terminal.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Disabled reports whether STACKFRAME_NO_COLOR turns highlighting off.
func Disabled() bool {
	return os.Getenv("STACKFRAME_NO_COLOR") != ""
}

// lexer returns the first available lexer among names.
func lexer(names ...string) chroma.Lexer {
	for _, name := range names {
		if l := lexers.Get(name); l != nil {
			return l
		}
	}
	return nil
}

func style() *chroma.Style {
	for _, name := range []string{StyleName, "dracula", "monokai"} {
		if s := styles.Get(name); s != nil {
			return s
		}
	}
	return styles.Fallback
}

func formatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if f := formatters.Get(name); f != nil {
			return f
		}
	}
	return formatters.Fallback
}

func highlight(l chroma.Lexer, code string) (string, error) {
	if Disabled() || l == nil {
		return code, nil
	}
	it, err := l.Tokenise(nil, code)
	if err != nil {
		return code, err
	}
	var buf strings.Builder
	if err := formatter().Format(&buf, style(), it); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// IR highlights textual IR with the LLVM lexer.
func IR(code string) (string, error) {
	return highlight(lexer("llvm"), code)
}

// Assembly highlights AArch64 assembly.
func Assembly(code string) (string, error) {
	return highlight(lexer("armasm", "gas", "nasm"), code)
}

// DisasmLine colors one "address  instruction" line, with the address in
// gray.
func DisasmLine(line string) string {
	if Disabled() {
		return line
	}
	addr, rest, ok := strings.Cut(line, " ")
	if !ok || !isHex(addr) {
		out, _ := Assembly(line)
		return out
	}
	out, err := Assembly(rest)
	if err != nil {
		out = rest
	}
	return fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m %s", addr, out)
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if !((ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')) {
			return false
		}
	}
	return true
}

// StripANSI removes color escape sequences.
func StripANSI(s string) string {
	var out strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			out.WriteRune(r)
		}
	}
	return out.String()
}
