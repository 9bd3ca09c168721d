// Package disasm decodes AArch64 code into a common instruction
// representation used by the lifter and the function views.
package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint64  // virtual address of instruction
	Text string  // formatted disassembly string
	Op   string  // mnemonic in lowercase
	Raw  [4]byte // raw encoding (for BL target calc)
	// Dec is the full decoding; it is only meaningful when Valid is set.
	Dec   arm64asm.Inst
	Valid bool
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// Decode disassembles code starting at va. Words that do not decode are
// kept as ".word" entries so the stream stays aligned with the code.
func Decode(va uint64, code []byte) Stream {
	out := make(Stream, 0, len(code)/4)
	for off := 0; off+4 <= len(code); off += 4 {
		in := Inst{VA: va + uint64(off)}
		copy(in.Raw[:], code[off:off+4])
		dec, err := arm64asm.Decode(in.Raw[:])
		if err != nil {
			in.Text = fmt.Sprintf(".word 0x%08x", binary.LittleEndian.Uint32(in.Raw[:]))
			in.Op = ".word"
		} else {
			in.Dec = dec
			in.Valid = true
			in.Text = strings.TrimSpace(strings.ToLower(dec.String()))
			in.Op = strings.ToLower(dec.Op.String())
		}
		out = append(out, in)
	}
	return out
}

// BranchTarget returns the destination of a direct B or BL.
func (in Inst) BranchTarget() (uint64, bool) {
	if !in.Valid || (in.Dec.Op != arm64asm.BL && in.Dec.Op != arm64asm.B) {
		return 0, false
	}
	rel, ok := in.Dec.Args[0].(arm64asm.PCRel)
	if !ok {
		return 0, false
	}
	return uint64(int64(in.VA) + int64(rel)), true
}

// String renders the stream one instruction per line with addresses.
func (s Stream) String() string {
	var sb strings.Builder
	for _, in := range s {
		fmt.Fprintf(&sb, "%x  %s\n", in.VA, in.Text)
	}
	return sb.String()
}
