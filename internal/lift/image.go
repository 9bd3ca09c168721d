package lift

import (
	"stackframe/internal/disasm"
	"stackframe/internal/elfx"
	"stackframe/internal/ir"
)

// Lifted pairs a function symbol with its lifted body.
type Lifted struct {
	Func  elfx.Func
	IR    *ir.Function
	Code  disasm.Stream
	Stats Stats
}

// Image lifts every function of im accepted by keep (all of them when keep
// is nil) into one module. The image resolves call targets unless opts
// names another resolver.
func Image(im *elfx.Image, opts Options, keep func(elfx.Func) bool) (*ir.Module, []Lifted, error) {
	if opts.Resolver == nil {
		opts.Resolver = im
	}
	m := ir.NewModule(im.Path, ir.DefaultLayout)
	var out []Lifted
	for _, fn := range im.Funcs {
		if keep != nil && !keep(fn) {
			continue
		}
		code, err := im.FuncBytes(fn)
		if err != nil {
			return nil, nil, err
		}
		stream := disasm.Decode(fn.Addr, code)
		f, stats, err := Function(fn.Name, stream, opts)
		if err != nil {
			return nil, nil, err
		}
		m.AddFunction(f)
		out = append(out, Lifted{Func: fn, IR: f, Code: stream, Stats: stats})
	}
	return m, out, nil
}
