package lift

import (
	"golang.org/x/arch/arm64/arm64asm"

	"stackframe/internal/ir"
)

func isGP(r arm64asm.Reg) bool { return r <= arm64asm.XZR }

// gpNum is the architectural number of a general purpose register, so that
// w3 and x3 share a slot.
func gpNum(r arm64asm.Reg) int {
	if r >= arm64asm.X0 {
		return int(r - arm64asm.X0)
	}
	return int(r - arm64asm.W0)
}

func fpNum(r arm64asm.Reg) int { return int(r-arm64asm.B0) % 32 }

func regType(r arm64asm.Reg) ir.Type {
	switch {
	case r <= arm64asm.WZR:
		return ir.I32
	case r <= arm64asm.XZR:
		return ir.I64
	case r <= arm64asm.B31:
		return ir.I8
	case r <= arm64asm.H31:
		return &ir.FloatType{Bits: 16}
	case r <= arm64asm.S31:
		return ir.Float
	case r <= arm64asm.D31:
		return ir.Double
	}
	return ir.I128
}

// read returns the value of r typed by its register class.
func (l *lifter) read(r arm64asm.Reg) ir.Value {
	t := regType(r)
	if r == arm64asm.WZR || r == arm64asm.XZR {
		return ir.ConstInt(t.(*ir.IntType), 0)
	}
	var v ir.Value
	if isGP(r) {
		n := gpNum(r)
		v = l.regs[n]
		if v == nil && n < 8 {
			v = l.fn.Param(n + 1)
		}
	} else {
		v = l.fregs[fpNum(r)]
	}
	if v == nil {
		return ir.NewUndef(t)
	}
	return l.convert(v, t)
}

// write records v as the new value of r; nil marks it unknown.
func (l *lifter) write(r arm64asm.Reg, v ir.Value) {
	if r == arm64asm.WZR || r == arm64asm.XZR {
		return
	}
	m, n := l.fregs, fpNum(r)
	if isGP(r) {
		m, n = l.regs, gpNum(r)
		delete(l.stack, n)
	}
	if v == nil {
		// An unknown argument register must not fall back to the parameter.
		v = ir.NewUndef(regType(r))
	}
	m[n] = v
}

// convert reinterprets v as t: integers are truncated or zero extended and
// same-sized values are bitcast. Anything else is undefined.
func (l *lifter) convert(v ir.Value, t ir.Type) ir.Value {
	from := v.Type()
	if ir.Equal(from, t) {
		return v
	}
	if _, ok := v.(*ir.Undef); ok {
		return ir.NewUndef(t)
	}
	fi, fok := from.(*ir.IntType)
	ti, tok := t.(*ir.IntType)
	switch {
	case fok && tok && fi.Bits > ti.Bits:
		return l.b.Cast(ir.OpTrunc, v, t, "")
	case fok && tok:
		return l.b.Cast(ir.OpZExt, v, t, "")
	case ir.DefaultLayout.StoreSize(from) == ir.DefaultLayout.StoreSize(t):
		return l.b.BitCast(v, t, "")
	}
	return ir.NewUndef(t)
}
