// Package elftest writes minimal AArch64 ELF executables for tests: one
// executable PT_LOAD segment holding .text, plus a symbol table.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Base is the virtual address the file is loaded at.
const Base = 0x400000

const textOff = 0x100

// Func is a function to place in .text.
type Func struct {
	Name string
	Code []uint32
}

// TextVA is the address of the first function.
func TextVA() uint64 { return Base + textOff }

// Build lays out funcs back to back in .text and returns the file contents.
func Build(funcs ...Func) []byte {
	var text bytes.Buffer
	strtab := []byte{0}
	syms := []elf.Sym64{{}}
	for _, fn := range funcs {
		syms = append(syms, elf.Sym64{
			Name:  uint32(len(strtab)),
			Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
			Shndx: 1,
			Value: TextVA() + uint64(text.Len()),
			Size:  uint64(4 * len(fn.Code)),
		})
		strtab = append(append(strtab, fn.Name...), 0)
		for _, w := range fn.Code {
			binary.Write(&text, binary.LittleEndian, w)
		}
	}

	shstrtab := []byte("\x00.text\x00.symtab\x00.strtab\x00.shstrtab\x00")
	name := func(s string) uint32 {
		return uint32(bytes.Index(shstrtab, []byte("\x00"+s+"\x00")) + 1)
	}

	var symtab bytes.Buffer
	for _, s := range syms {
		binary.Write(&symtab, binary.LittleEndian, s)
	}

	symOff := align(textOff+uint64(text.Len()), 8)
	strOff := symOff + uint64(symtab.Len())
	shstrOff := strOff + uint64(len(strtab))
	shOff := align(shstrOff+uint64(len(shstrtab)), 8)
	size := shOff + 5*64

	var out bytes.Buffer
	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_AARCH64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     TextVA(),
		Phoff:     64,
		Shoff:     shOff,
		Ehsize:    64,
		Phentsize: 56,
		Phnum:     1,
		Shentsize: 64,
		Shnum:     5,
		Shstrndx:  4,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	binary.Write(&out, binary.LittleEndian, hdr)
	binary.Write(&out, binary.LittleEndian, elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Vaddr:  Base,
		Paddr:  Base,
		Filesz: size,
		Memsz:  size,
		Align:  0x1000,
	})

	pad(&out, textOff)
	out.Write(text.Bytes())
	pad(&out, symOff)
	out.Write(symtab.Bytes())
	out.Write(strtab)
	out.Write(shstrtab)
	pad(&out, shOff)

	sections := []elf.Section64{
		{},
		{
			Name: name(".text"), Type: uint32(elf.SHT_PROGBITS),
			Flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Addr:  TextVA(), Off: textOff, Size: uint64(text.Len()), Addralign: 4,
		},
		{
			Name: name(".symtab"), Type: uint32(elf.SHT_SYMTAB),
			Off: symOff, Size: uint64(symtab.Len()), Link: 3, Info: 1, Addralign: 8, Entsize: 24,
		},
		{Name: name(".strtab"), Type: uint32(elf.SHT_STRTAB), Off: strOff, Size: uint64(len(strtab)), Addralign: 1},
		{Name: name(".shstrtab"), Type: uint32(elf.SHT_STRTAB), Off: shstrOff, Size: uint64(len(shstrtab)), Addralign: 1},
	}
	for _, s := range sections {
		binary.Write(&out, binary.LittleEndian, s)
	}
	return out.Bytes()
}

// WriteFile builds an executable into a temporary directory and returns its
// path.
func WriteFile(t testing.TB, funcs ...Func) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.out")
	if err := os.WriteFile(path, Build(funcs...), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func align(n, a uint64) uint64 { return (n + a - 1) / a * a }

func pad(b *bytes.Buffer, off uint64) {
	for uint64(b.Len()) < off {
		b.WriteByte(0)
	}
}
