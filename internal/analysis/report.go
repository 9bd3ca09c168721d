// Package analysis drives frame recovery over whole binaries and IR
// modules and collects the results into reports.
package analysis

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"stackframe/internal/elfx"
	"stackframe/internal/ir"
	"stackframe/internal/lift"
	"stackframe/internal/locals"
)

// Status is the outcome of frame recovery for one function.
type Status string

const (
	Recovered Status = "recovered"
	// Skipped functions never touch the stack.
	Skipped   Status = "skipped"
	Abandoned Status = "abandoned"
	Failed    Status = "failed"
)

type Options struct {
	// Symbol keeps only functions whose name contains it.
	Symbol   string
	MaxInsns int
	Verify   bool
	Layout   ir.Layout
	Logger   *log.Logger
}

func (o Options) logger() *log.Logger {
	if o.Logger == nil {
		return log.New(io.Discard)
	}
	return o.Logger
}

type SlotReport struct {
	Offset int64  `json:"offset"`
	Type   string `json:"type"`
	Path   string `json:"path"` // getelementptr indices from the frame
}

type FunctionReport struct {
	Name      string       `json:"name"`
	Demangled string       `json:"demangled,omitempty"`
	Addr      uint64       `json:"addr,omitempty"`
	Lift      *lift.Stats  `json:"lift,omitempty"`
	Status    Status       `json:"status"`
	Frame     string       `json:"frame,omitempty"`
	Shift     int64        `json:"shift,omitempty"`
	Slots     []SlotReport `json:"slots,omitempty"`
	Error     string       `json:"error,omitempty"`

	Before string `json:"-"`
	After  string `json:"-"`
	Disasm string `json:"-"`
}

type Report struct {
	Path      string           `json:"path"`
	Digest    string           `json:"digest,omitempty"`
	Functions []FunctionReport `json:"functions"`
	Recovered int              `json:"recovered"`
	Skipped   int              `json:"skipped"`
	Abandoned int              `json:"abandoned"`
	Failed    int              `json:"failed"`
}

func (r *Report) count(s Status) {
	switch s {
	case Recovered:
		r.Recovered++
	case Skipped:
		r.Skipped++
	case Abandoned:
		r.Abandoned++
	case Failed:
		r.Failed++
	}
}

// Binary lifts the functions of an AArch64 ELF file and recovers their
// frames.
func Binary(path string, opts Options) (*Report, error) {
	im, err := elfx.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	defer im.Close()

	digest, err := Digest(path)
	if err != nil {
		return nil, err
	}

	keep := make(map[uint64]Symbol)
	for _, sym := range Functions(im, opts.Symbol) {
		keep[sym.Addr] = sym
	}
	lg := opts.logger()
	_, lifted, err := lift.Image(im, lift.Options{Logger: lg, MaxInsns: opts.MaxInsns}, func(fn elfx.Func) bool {
		_, ok := keep[fn.Addr]
		return ok
	})
	if err != nil {
		return nil, err
	}

	r := &Report{Path: path, Digest: digest}
	p := newPass(opts)
	for _, l := range lifted {
		fr := FunctionReport{
			Name:      l.Func.Name,
			Demangled: keep[l.Func.Addr].Demangled,
			Addr:      l.Func.Addr,
			Lift:      &l.Stats,
			Disasm:    l.Code.String(),
		}
		recoverFrame(p, l.IR, &fr)
		r.count(fr.Status)
		r.Functions = append(r.Functions, fr)
	}
	lg.Info("analyzed binary", "path", path, "functions", len(r.Functions), "recovered", r.Recovered)
	return r, nil
}

// Module recovers the frames of every defined function of m.
func Module(m *ir.Module, opts Options) *Report {
	if opts.Layout == nil {
		opts.Layout = m.Layout
	}
	r := &Report{Path: m.Name}
	p := newPass(opts)
	for _, fn := range m.Functions {
		if len(fn.Blocks) == 0 {
			continue
		}
		fr := FunctionReport{Name: fn.Name, Demangled: CachedDemangle(fn.Name)}
		if fr.Demangled == fn.Name {
			fr.Demangled = ""
		}
		recoverFrame(p, fn, &fr)
		r.count(fr.Status)
		r.Functions = append(r.Functions, fr)
	}
	return r
}

func newPass(opts Options) *locals.Pass {
	return locals.New(opts.Layout, locals.WithLogger(opts.logger()), locals.WithVerify(opts.Verify))
}

// recoverFrame runs the pass over fn and records the outcome in fr. A broken
// invariant fails the function rather than the whole run.
func recoverFrame(p *locals.Pass, fn *ir.Function, fr *FunctionReport) {
	fr.Before = fn.String()
	defer func() {
		fr.After = fn.String()
		if r := recover(); r != nil {
			var ie *locals.InvariantError
			if err, ok := r.(error); ok && errors.As(err, &ie) {
				fr.Status, fr.Error = Failed, ie.Error()
				return
			}
			panic(r)
		}
	}()

	frame, err := p.Run(fn)
	switch {
	case errors.Is(err, locals.ErrUnsupported):
		fr.Status, fr.Error = Abandoned, err.Error()
	case err != nil:
		fr.Status, fr.Error = Failed, err.Error()
	case frame == nil:
		fr.Status = Skipped
	default:
		fr.Status = Recovered
		fr.Frame = frame.Type.String()
		fr.Shift = frame.Shift
		for _, s := range frame.Slots {
			fr.Slots = append(fr.Slots, SlotReport{Offset: s.Offset, Type: s.Type.String(), Path: s.PathString()})
		}
	}
}

// Digest returns the SHA-256 of the file at path in hex.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to calculate digest: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
