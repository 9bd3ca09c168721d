// Package elfx opens AArch64 ELF binaries, maps them into memory and lists
// the functions their symbol tables describe.
package elfx

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"slices"
	"strings"
	"syscall"
)

type Image struct {
	Path  string
	File  *elf.File
	All   []byte
	Loads []Seg
	Text  Section
	PLT   Section
	// Funcs are the defined function symbols, sorted by address.
	Funcs []Func
	// PLTNames maps a PLT stub address to the symbol it binds.
	PLTNames map[uint64]string
	f        *os.File
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

type Section struct {
	Name          string
	VA, Off, Size uint64
}

// Func is a function symbol with a known extent.
type Func struct {
	Name string
	Addr uint64
	Size uint64
}

func (fn Func) Contains(va uint64) bool {
	return va >= fn.Addr && va < fn.Addr+fn.Size
}

func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}
	if f.Machine != elf.EM_AARCH64 {
		f.Close()
		return nil, fmt.Errorf("open elf: unsupported machine %s", f.Machine)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im := &Image{Path: path, File: f, All: all, f: of, PLTNames: make(map[uint64]string)}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Flags:  p.Flags,
		})
	}

	for _, s := range f.Sections {
		switch s.Name {
		case ".text":
			im.Text = Section{s.Name, s.Addr, s.Offset, s.Size}
		case ".plt":
			im.PLT = Section{s.Name, s.Addr, s.Offset, s.Size}
		}
	}
	if im.Text.Size == 0 {
		for _, l := range im.Loads {
			if l.Flags&elf.PF_X != 0 && l.Filesz > 0 {
				im.Text = Section{"LOAD(exec)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}

	im.loadFuncs()
	im.loadPLTNames()
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil {
		err1 = syscall.Munmap(im.All)
		im.All = nil
	}
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	return 0, false
}

// ReadBytesVA returns size bytes of the mapped file starting at va, or false
// when the range is unmapped.
func (im *Image) ReadBytesVA(va uint64, size int) ([]byte, bool) {
	if size <= 0 {
		return []byte{}, true
	}
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	end := off + uint64(size)
	if end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

// FuncBytes returns the code of fn.
func (im *Image) FuncBytes(fn Func) ([]byte, error) {
	code, ok := im.ReadBytesVA(fn.Addr, int(fn.Size))
	if !ok {
		return nil, fmt.Errorf("%s at 0x%x: %d bytes not mapped", fn.Name, fn.Addr, fn.Size)
	}
	return code, nil
}

// FuncAt returns the function containing va.
func (im *Image) FuncAt(va uint64) (Func, bool) {
	i, found := slices.BinarySearchFunc(im.Funcs, va, func(fn Func, va uint64) int {
		switch {
		case fn.Addr > va:
			return 1
		case fn.Addr < va:
			return -1
		}
		return 0
	})
	if found {
		return im.Funcs[i], true
	}
	if i > 0 && im.Funcs[i-1].Contains(va) {
		return im.Funcs[i-1], true
	}
	return Func{}, false
}

// FuncByName finds a function by its symbol name.
func (im *Image) FuncByName(name string) (Func, bool) {
	for _, fn := range im.Funcs {
		if fn.Name == name {
			return fn, true
		}
	}
	return Func{}, false
}

// SymbolAt names the call target va: a function starting there, or the
// symbol bound by a PLT stub.
func (im *Image) SymbolAt(va uint64) (string, bool) {
	if name, ok := im.PLTNames[va]; ok {
		return name, true
	}
	if fn, ok := im.FuncAt(va); ok && fn.Addr == va {
		return fn.Name, true
	}
	return "", false
}

// loadFuncs collects defined STT_FUNC symbols from .symtab and .dynsym.
func (im *Image) loadFuncs() {
	seen := make(map[uint64]bool)
	add := func(syms []elf.Symbol) {
		for _, sym := range syms {
			if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Value == 0 || sym.Size == 0 {
				continue
			}
			if sym.Section == elf.SHN_UNDEF || seen[sym.Value] {
				continue
			}
			seen[sym.Value] = true
			im.Funcs = append(im.Funcs, Func{Name: sym.Name, Addr: sym.Value, Size: sym.Size})
		}
	}
	if syms, err := im.File.Symbols(); err == nil {
		add(syms)
	}
	if syms, err := im.File.DynamicSymbols(); err == nil {
		add(syms)
	}
	slices.SortFunc(im.Funcs, func(a, b Func) int {
		switch {
		case a.Addr < b.Addr:
			return -1
		case a.Addr > b.Addr:
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
}

// loadPLTNames binds PLT stubs to the symbols of their .rela.plt entries.
//
// ARM64 PLT stubs are 16 bytes:
//
//	adrp x16, <page>
//	ldr  x17, [x16, #offset]
//	add  x16, x16, #offset
//	br   x17
func (im *Image) loadPLTNames() {
	if im.PLT.Size == 0 {
		return
	}
	rela := im.File.Section(".rela.plt")
	if rela == nil {
		return
	}
	data, err := rela.Data()
	if err != nil {
		return
	}
	dynsyms, err := im.File.DynamicSymbols()
	if err != nil {
		return
	}

	// GOT slot -> symbol, from 24-byte RELA entries.
	slots := make(map[uint64]string)
	for off := 0; off+24 <= len(data); off += 24 {
		gotAddr := binary.LittleEndian.Uint64(data[off:])
		symIndex := binary.LittleEndian.Uint64(data[off+8:]) >> 32
		if symIndex > 0 && int(symIndex) <= len(dynsyms) {
			slots[gotAddr] = dynsyms[symIndex-1].Name
		}
	}

	// PLT[0] is the resolver.
	for addr := im.PLT.VA + 32; addr+16 <= im.PLT.VA+im.PLT.Size; addr += 16 {
		if got, ok := im.pltSlot(addr); ok {
			if name, ok := slots[got]; ok {
				im.PLTNames[addr] = name
			}
		}
	}
}

// pltSlot decodes the GOT address a PLT stub jumps through.
func (im *Image) pltSlot(stub uint64) (uint64, bool) {
	code, ok := im.ReadBytesVA(stub, 8)
	if !ok {
		return 0, false
	}
	adrp := binary.LittleEndian.Uint32(code)
	if adrp&0x9f00001f != 0x90000010 {
		return 0, false
	}
	immLo := (adrp >> 29) & 3
	immHi := (adrp >> 5) & 0x7ffff
	page := int64(immHi<<2 | immLo)
	if page&(1<<20) != 0 {
		page |= ^((1 << 21) - 1)
	}
	base := int64(stub&^0xfff) + page<<12

	ldr := binary.LittleEndian.Uint32(code[4:])
	if ldr&0xffc003ff != 0xf9400211 {
		return 0, false
	}
	return uint64(base) + uint64((ldr>>10)&0xfff)<<3, true
}
