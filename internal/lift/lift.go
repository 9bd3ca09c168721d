// Package lift turns AArch64 functions into IR whose stack accesses are
// integer arithmetic on a stack pointer parameter, the shape the locals pass
// recovers frames from.
//
// The lifted function takes the stack pointer at its lowest point (after the
// prologue has reserved the frame) as parameter 0, followed by the argument
// registers x0-x7. Code is swept linearly as a single block; only the data
// flow through the stack and the argument registers is modelled.
package lift

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/arch/arm64/arm64asm"

	"stackframe/internal/disasm"
	"stackframe/internal/ir"
)

// Resolver names call targets.
type Resolver interface {
	SymbolAt(va uint64) (string, bool)
}

type Options struct {
	Resolver Resolver
	Logger   *log.Logger
	// MaxInsns stops the sweep after this many instructions; 0 means no
	// limit.
	MaxInsns int
}

// Stats describes what the lifter saw in one function.
type Stats struct {
	Insns    int `json:"insns"`
	Accesses int `json:"accesses"`
	// Skipped counts stack accesses below the lowest stack pointer.
	Skipped int `json:"skipped,omitempty"`
	// FrameSize is how far the stack pointer was lowered.
	FrameSize int64 `json:"frame_size"`
}

type lifter struct {
	opts Options
	lg   *log.Logger

	spd   int64
	low   int64
	stack map[int]int64

	// Emission state, unset during the sizing pass.
	emit  bool
	fn    *ir.Function
	b     *ir.Builder
	base  int64
	regs  map[int]ir.Value
	fregs map[int]ir.Value
	addrs map[int64]ir.Value
	stats Stats
}

// Function lifts the instructions of one function.
func Function(name string, code disasm.Stream, opts Options) (*ir.Function, Stats, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.MaxInsns > 0 && len(code) > opts.MaxInsns {
		code = code[:opts.MaxInsns]
	}

	sizing := newLifter(opts)
	for _, in := range code {
		if err := sizing.step(in); err != nil {
			return nil, Stats{}, fmt.Errorf("%s: %w", name, err)
		}
	}

	names := []string{"sp", "x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7"}
	types := make([]ir.Type, len(names))
	for i := range types {
		types[i] = ir.I64
	}
	fn := ir.NewFunction(name, ir.Void, names, types...)
	ir.SetStackPointerArgument(fn, 0)

	l := newLifter(opts)
	l.emit = true
	l.fn = fn
	l.b = ir.NewBuilder(fn.NewBlock("entry"))
	l.base = sizing.low
	l.regs = make(map[int]ir.Value)
	l.fregs = make(map[int]ir.Value)
	l.addrs = make(map[int64]ir.Value)
	for _, in := range code {
		if err := l.step(in); err != nil {
			return nil, Stats{}, fmt.Errorf("%s: %w", name, err)
		}
	}
	l.b.Ret(nil)

	l.stats.Insns = len(code)
	l.stats.FrameSize = -sizing.low
	return fn, l.stats, nil
}

func newLifter(opts Options) *lifter {
	return &lifter{opts: opts, lg: opts.Logger, stack: make(map[int]int64)}
}

func (l *lifter) setSP(d int64) {
	l.spd = d
	l.low = min(l.low, d)
}

func (l *lifter) step(in disasm.Inst) error {
	if !in.Valid {
		return nil
	}
	inst := in.Dec
	switch inst.Op {
	case arm64asm.RET:
		// Another path may follow the epilogue; it runs with the body's
		// stack pointer.
		l.spd = l.low
		return nil
	case arm64asm.ADD, arm64asm.SUB:
		if l.addSub(inst) {
			return nil
		}
	case arm64asm.MOV:
		if l.mov(inst) {
			return nil
		}
	case arm64asm.BL, arm64asm.BLR:
		l.call(in)
		return nil
	}
	if m, ok := memOps[inst.Op]; ok {
		if handled, err := l.memory(inst, m); handled || err != nil {
			return err
		}
	}
	l.clobber(inst)
	return nil
}

// addSub handles immediate additions to stack addresses.
func (l *lifter) addSub(inst arm64asm.Inst) bool {
	dst, ok1 := inst.Args[0].(arm64asm.RegSP)
	src, ok2 := inst.Args[1].(arm64asm.RegSP)
	imm, ok3 := inst.Args[2].(arm64asm.ImmShift)
	if !ok1 || !ok2 || !ok3 {
		return false
	}
	from, ok := l.stackAddr(arm64asm.Reg(src))
	if !ok {
		return false
	}
	n, err := parseImmShift(imm.String())
	if err != nil {
		return false
	}
	if inst.Op == arm64asm.SUB {
		n = -n
	}
	l.setStackReg(arm64asm.Reg(dst), from+n)
	return true
}

// mov handles register moves that carry stack addresses.
func (l *lifter) mov(inst arm64asm.Inst) bool {
	var dst, src arm64asm.Reg
	switch d := inst.Args[0].(type) {
	case arm64asm.RegSP:
		dst = arm64asm.Reg(d)
	case arm64asm.Reg:
		dst = d
	default:
		return false
	}
	zero := false
	switch s := inst.Args[1].(type) {
	case arm64asm.RegSP:
		src = arm64asm.Reg(s)
	case arm64asm.Reg:
		// Register 31 is the zero register here, not sp.
		src, zero = s, s == arm64asm.XZR || s == arm64asm.WZR
	default:
		return false
	}
	if d, ok := l.stackAddr(src); ok && !zero {
		l.setStackReg(dst, d)
		return true
	}
	if dst == arm64asm.SP || !isGP(dst) {
		return false
	}
	if l.emit {
		l.write(dst, l.read(src))
	}
	delete(l.stack, gpNum(dst))
	return true
}

// stackAddr returns the entry-relative address held by r.
func (l *lifter) stackAddr(r arm64asm.Reg) (int64, bool) {
	if r == arm64asm.SP {
		return l.spd, true
	}
	if !isGP(r) || r == arm64asm.WZR || r == arm64asm.XZR {
		return 0, false
	}
	d, ok := l.stack[gpNum(r)]
	return d, ok
}

func (l *lifter) setStackReg(r arm64asm.Reg, d int64) {
	if r == arm64asm.SP {
		l.setSP(d)
		return
	}
	n := gpNum(r)
	l.stack[n] = d
	if l.emit {
		if v := l.addr(d - l.base); v != nil {
			l.regs[n] = v
		} else {
			delete(l.regs, n)
		}
	}
}

// addr returns the integer address at off bytes from the frame base, or nil
// for addresses below it.
func (l *lifter) addr(off int64) ir.Value {
	if off < 0 {
		return nil
	}
	sp := l.fn.Param(0)
	if off == 0 {
		return sp
	}
	if v, ok := l.addrs[off]; ok {
		return v
	}
	v := l.b.Add(sp, ir.ConstInt(ir.I64, off), "sp"+strconv.FormatInt(off, 10))
	l.addrs[off] = v
	return v
}

type memOp struct {
	store  bool
	pair   bool
	signed bool
	// size is the access width in bytes; 0 means the register width.
	size int
}

var memOps = map[arm64asm.Op]memOp{
	arm64asm.STR:    {store: true},
	arm64asm.STUR:   {store: true},
	arm64asm.STRB:   {store: true, size: 1},
	arm64asm.STURB:  {store: true, size: 1},
	arm64asm.STRH:   {store: true, size: 2},
	arm64asm.STURH:  {store: true, size: 2},
	arm64asm.STP:    {store: true, pair: true},
	arm64asm.LDR:    {},
	arm64asm.LDUR:   {},
	arm64asm.LDRB:   {size: 1},
	arm64asm.LDURB:  {size: 1},
	arm64asm.LDRH:   {size: 2},
	arm64asm.LDURH:  {size: 2},
	arm64asm.LDRSB:  {size: 1, signed: true},
	arm64asm.LDURSB: {size: 1, signed: true},
	arm64asm.LDRSH:  {size: 2, signed: true},
	arm64asm.LDURSH: {size: 2, signed: true},
	arm64asm.LDRSW:  {size: 4, signed: true},
	arm64asm.LDURSW: {size: 4, signed: true},
	arm64asm.LDP:    {pair: true},
	arm64asm.LDPSW:  {pair: true, size: 4, signed: true},
}

// memory lifts a load or store through a stack address. It reports false
// for other memory operations, which only clobber their destinations.
func (l *lifter) memory(inst arm64asm.Inst, m memOp) (bool, error) {
	regs := []arm64asm.Reg{}
	var mem arm64asm.MemImmediate
	found := false
	for _, a := range inst.Args {
		switch a := a.(type) {
		case arm64asm.Reg:
			regs = append(regs, a)
		case arm64asm.MemImmediate:
			mem, found = a, true
		}
	}
	if !found || len(regs) == 0 || (m.pair && len(regs) != 2) {
		return false, nil
	}
	baseReg := arm64asm.Reg(mem.Base)
	baseAddr, ok := l.stackAddr(baseReg)
	if !ok {
		return false, nil
	}
	imm, err := parseMemImm(mem.String())
	if err != nil {
		return false, fmt.Errorf("%s: %w", inst, err)
	}

	ea := baseAddr
	if mem.Mode != arm64asm.AddrPostIndex {
		ea += imm
	}
	if mem.Mode == arm64asm.AddrPreIndex || mem.Mode == arm64asm.AddrPostIndex {
		defer l.setStackReg(baseReg, baseAddr+imm)
	}
	if !l.emit {
		if !m.store {
			for _, r := range regs {
				if isGP(r) {
					delete(l.stack, gpNum(r))
				}
			}
		}
		return true, nil
	}

	for i, r := range regs {
		rt := regType(r)
		mt := rt
		if m.size != 0 {
			mt = ir.Int(8 * m.size)
		}
		off := ea - l.base + int64(i)*int64(ir.DefaultLayout.StoreSize(mt))
		ptrInt := l.addr(off)
		if ptrInt == nil {
			l.stats.Skipped++
			l.lg.Debug("stack access below the frame", "inst", inst.String(), "offset", off)
			if !m.store {
				l.write(r, nil)
			}
			continue
		}
		l.stats.Accesses++
		ptr := l.b.IntToPtr(ptrInt, ir.Ptr(mt), "")
		if m.store {
			l.b.Store(l.convert(l.read(r), mt), ptr)
			continue
		}
		v := ir.Value(l.b.Load(ptr, ""))
		if !ir.Equal(mt, rt) {
			op := ir.OpZExt
			if m.signed {
				op = ir.OpSExt
			}
			v = l.b.Cast(op, v, rt, "")
		}
		l.write(r, v)
	}
	return true, nil
}

func (l *lifter) call(in disasm.Inst) {
	if l.emit {
		callee := "indirect"
		if target, ok := in.BranchTarget(); ok {
			callee = fmt.Sprintf("sub_%x", target)
			if l.opts.Resolver != nil {
				if name, ok := l.opts.Resolver.SymbolAt(target); ok {
					callee = name
				}
			}
		}
		// Stack addresses passed in argument registers escape to the callee.
		var args []ir.Value
		for n := 0; n < 8; n++ {
			if _, ok := l.stack[n]; ok {
				args = append(args, l.regs[n])
			}
		}
		args = compact(args)
		ret := l.b.Call(callee, ir.I64, args, "")
		for n := 0; n <= 18; n++ {
			delete(l.regs, n)
		}
		l.regs[0] = ret
	}
	for n := 0; n <= 18; n++ {
		delete(l.stack, n)
	}
}

// clobber forgets what an unmodelled instruction overwrites.
func (l *lifter) clobber(inst arm64asm.Inst) {
	op := inst.Op.String()
	for _, prefix := range []string{"ST", "CB", "TB", "CMP", "CMN", "TST", "CCM", "FCMP", "PRFM", "BR", "MSR"} {
		if strings.HasPrefix(op, prefix) {
			return
		}
	}
	if m, ok := memOps[inst.Op]; ok && !m.store {
		for _, a := range inst.Args {
			if r, ok := a.(arm64asm.Reg); ok {
				l.forget(r)
			}
		}
		return
	}
	var dst arm64asm.Reg
	switch d := inst.Args[0].(type) {
	case arm64asm.Reg:
		dst = d
	case arm64asm.RegSP:
		dst = arm64asm.Reg(d)
		if dst == arm64asm.SP {
			l.lg.Debug("untracked stack pointer update", "inst", inst.String())
			return
		}
	default:
		return
	}
	l.forget(dst)
}

func (l *lifter) forget(r arm64asm.Reg) {
	if isGP(r) {
		delete(l.stack, gpNum(r))
	}
	if l.emit {
		l.write(r, nil)
	}
}

func compact(vs []ir.Value) []ir.Value {
	out := vs[:0]
	for _, v := range vs {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// parseImmShift reads "#0x10" or "#0x10, LSL #12".
func parseImmShift(s string) (int64, error) {
	s = strings.TrimPrefix(s, "#")
	shift := 0
	if i := strings.Index(s, ", LSL #"); i >= 0 {
		n, err := strconv.Atoi(s[i+len(", LSL #"):])
		if err != nil {
			return 0, fmt.Errorf("bad shift in %q", s)
		}
		shift, s = n, s[:i]
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad immediate %q", s)
	}
	return v << shift, nil
}

// parseMemImm reads the offset of "[SP]", "[SP,#8]", "[SP,#-16]!" or
// "[SP],#16".
func parseMemImm(s string) (int64, error) {
	i := strings.LastIndex(s, "#")
	if i < 0 {
		return 0, nil
	}
	v := strings.TrimSuffix(strings.TrimSuffix(s[i+1:], "!"), "]")
	n, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad memory operand %q", s)
	}
	return n, nil
}
