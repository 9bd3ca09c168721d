// Package locals recovers stack frames. It follows the constant offsets
// taken from a function's stack pointer argument, infers a type for every
// object addressed that way, and replaces the integer address arithmetic
// with getelementptrs into a single packed struct allocated on entry.
package locals

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"stackframe/internal/ir"
)

// Pass rewrites stack pointer arithmetic into frame accesses.
type Pass struct {
	layout ir.Layout
	logger *log.Logger
	verify bool
}

type Option func(*Pass)

// WithLogger sets the logger used for per-function diagnostics.
func WithLogger(lg *log.Logger) Option {
	return func(p *Pass) { p.logger = lg }
}

// WithVerify makes the pass check, before rewriting, that every address
// path folds to the offset it replaces. A mismatch panics with an
// *InvariantError and leaves the function untouched.
func WithVerify(verify bool) Option {
	return func(p *Pass) { p.verify = verify }
}

func New(layout ir.Layout, opts ...Option) *Pass {
	if layout == nil {
		layout = ir.DefaultLayout
	}
	p := &Pass{layout: layout, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Analyze recovers the frame of fn without changing it. It returns a nil
// frame when fn has no body or no use of a stack pointer argument.
func (p *Pass) Analyze(fn *ir.Function) (*Frame, error) {
	sp := ir.StackPointer(fn)
	if sp == nil || fn.Entry() == nil || len(sp.Users()) == 0 {
		return nil, nil
	}
	tree, err := BuildTree(sp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name, err)
	}
	p.logger.Debug("stack objects", "function", fn.Name, "tree", tree)
	frame, err := BuildFrame(p.layout, tree)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name, err)
	}
	return frame, nil
}

// Run recovers the frame of fn and rewrites fn to use it. When recovery
// fails fn is left untouched and the error wraps ErrUnsupported. A nil frame
// and nil error mean there was nothing to do.
func (p *Pass) Run(fn *ir.Function) (*Frame, error) {
	frame, err := p.Analyze(fn)
	if err != nil || frame == nil {
		return nil, err
	}
	p.materialize(fn, frame)
	p.logger.Info("recovered frame", "function", fn.Name, "type", frame.Type, "slots", len(frame.Slots))
	return frame, nil
}

// Summary counts the outcome of a module run.
type Summary struct {
	Recovered int
	Skipped   int
	Abandoned int
	Frames    map[string]*Frame
	Errors    map[string]error
}

// RunModule runs the pass over every function of m. Unsupported frames are
// logged and skipped; other failures are returned.
func (p *Pass) RunModule(m *ir.Module) (Summary, error) {
	s := Summary{Frames: make(map[string]*Frame), Errors: make(map[string]error)}
	for _, fn := range m.Functions {
		frame, err := p.Run(fn)
		switch {
		case errors.Is(err, ErrUnsupported):
			p.logger.Debug("abandoned frame", "function", fn.Name, "err", err)
			s.Errors[fn.Name] = err
			s.Abandoned++
		case err != nil:
			return s, err
		case frame == nil:
			s.Skipped++
		default:
			s.Frames[fn.Name] = frame
			s.Recovered++
		}
	}
	return s, nil
}

func (p *Pass) materialize(fn *ir.Function, frame *Frame) {
	if p.verify {
		p.check(fn, frame)
	}

	entry := fn.Entry()
	b := ir.NewBuilder(entry)
	if first := entry.FirstInsertionPoint(); first != nil {
		b.SetInsertPoint(first)
	}
	alloca := b.Alloca(frame.Type, "stackframe")
	ir.SetStackFrame(alloca)
	frame.Alloca = alloca

	for _, slot := range frame.Slots {
		if inst, ok := slot.Value.(*ir.Instruction); ok {
			b.SetInsertPoint(inst)
		} else {
			setInsertAfter(b, alloca)
		}
		ir.ReplaceAllUsesWith(slot.Value, address(b, alloca, slot))
	}
}

// check panics unless every slot's path folds to the offset its address
// had from the stack pointer. It runs before fn is changed.
func (p *Pass) check(fn *ir.Function, frame *Frame) {
	sp := ir.StackPointer(fn)
	for _, slot := range frame.Slots {
		base, off := ir.BaseOffset(p.layout, slot.Value)
		invariant(base == ir.Value(sp), "%s is not based on the stack pointer", slot.Value.Ref())
		want := off - frame.Shift
		invariant(slot.Offset == want, "%s laid out at %d, want %d", slot.Value.Ref(), slot.Offset, want)
		got, err := pathOffset(p.layout, frame.Type, slot.Path)
		invariant(err == nil && got == want, "%s path reaches %d (%v), want %d", slot.Value.Ref(), got, err, want)
	}
}

// address emits the getelementptrs reaching slot from the frame and converts
// the result back to the type of the address it replaces.
func address(b *ir.Builder, frame *ir.Instruction, slot Slot) ir.Value {
	var result ir.Value = frame
	var indices []ir.Value
	for _, s := range slot.Path {
		indices = append(indices, indexConst(len(indices), s.Index))
		if s.Cast {
			result = b.GEP(result, indices, "")
			result = b.BitCast(result, ir.Ptr(s.Expected), "")
			indices = []ir.Value{indexConst(0, 0)}
		}
	}
	if len(indices) > 1 {
		result = b.GEP(result, indices, "")
	}

	want := slot.Value.Type()
	switch {
	case ir.Equal(result.Type(), want):
		return result
	case want.Kind() == ir.PointerKind:
		return b.BitCast(result, want, "")
	default:
		return b.PtrToInt(result, want, "")
	}
}

func setInsertAfter(b *ir.Builder, inst *ir.Instruction) {
	block := inst.Block()
	i := slices.Index(block.Instrs, inst)
	if i+1 < len(block.Instrs) {
		b.SetInsertPoint(block.Instrs[i+1])
		return
	}
	b.SetInsertPointAtEnd(block)
}
