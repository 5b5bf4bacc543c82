// Package elfx provides ELF loading helpers for AArch64 executables and
// shared objects.
package elfx

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

var (
	ErrNotELF       = errors.New("elfx: not an ELF file")
	ErrNotARM64     = errors.New("elfx: not ARM64 (EM_AARCH64)")
	ErrNotLoadable  = errors.New("elfx: not an executable or shared object")
	ErrNot64Bit     = errors.New("elfx: not 64-bit ELF")
	ErrNoSymbol     = errors.New("elfx: symbol not found")
	ErrNoSegment    = errors.New("elfx: no PT_LOAD segment covers address")
	ErrSymbolNoSize = errors.New("elfx: symbol has zero size")
	ErrNotCode      = errors.New("elfx: function lies outside executable segments")
)

// File wraps a debug/elf.File with convenience methods for code analysis.
type File struct {
	ELF  *elf.File
	raw  io.ReaderAt
	size int64
}

// Open opens an ELF file and validates it is an ARM64 executable or shared
// object.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfx: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("elfx: stat: %w", err)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}

	if ef.Class != elf.ELFCLASS64 {
		ef.Close()
		return nil, ErrNot64Bit
	}
	if ef.Machine != elf.EM_AARCH64 {
		ef.Close()
		return nil, ErrNotARM64
	}
	if ef.Type != elf.ET_DYN && ef.Type != elf.ET_EXEC {
		ef.Close()
		return nil, ErrNotLoadable
	}

	return &File{ELF: ef, raw: f, size: info.Size()}, nil
}

// Close releases resources.
func (f *File) Close() error {
	return f.ELF.Close()
}

// FileSize returns the size of the underlying file.
func (f *File) FileSize() int64 { return f.size }

// symbols returns the static and dynamic symbol tables, either of which may
// be absent.
func (f *File) symbols() ([]elf.Symbol, error) {
	static, err := f.ELF.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("elfx: symtab: %w", err)
	}
	dyn, err := f.ELF.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("elfx: dynsym: %w", err)
	}
	return append(static, dyn...), nil
}

// Symbol looks up a static or dynamic symbol by exact name.
// Returns the symbol's virtual address and size.
func (f *File) Symbol(name string) (addr, size uint64, err error) {
	syms, err := f.symbols()
	if err != nil {
		return 0, 0, err
	}
	for _, s := range syms {
		if s.Name == name {
			return s.Value, s.Size, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: %s", ErrNoSymbol, name)
}

// Func is a function symbol with a known extent.
type Func struct {
	Name string
	Addr uint64
	Size uint64
}

// FuncSymbols returns the STT_FUNC symbols with a non-zero size, ordered by
// address. An address named more than once is reported under its first name.
func (f *File) FuncSymbols() ([]Func, error) {
	syms, err := f.symbols()
	if err != nil {
		return nil, err
	}
	seen := make(map[uint64]bool)
	var out []Func
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Size == 0 || s.Value == 0 {
			continue
		}
		if seen[s.Value] {
			continue
		}
		seen[s.Value] = true
		out = append(out, Func{Name: s.Name, Addr: s.Value, Size: s.Size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out, nil
}

// ReadFunc returns the code bytes of fn. The whole extent must sit inside a
// single executable PT_LOAD segment and be backed by file bytes.
func (f *File) ReadFunc(fn Func) ([]byte, error) {
	if fn.Size == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNoSize, fn.Name)
	}
	seg, err := f.segmentFor(fn.Addr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name, err)
	}
	if !seg.Executable() || fn.Addr+fn.Size > seg.Vaddr+seg.Filesz {
		return nil, fmt.Errorf("%w: %s @ 0x%x", ErrNotCode, fn.Name, fn.Addr)
	}
	code, err := f.ReadBytesAtVA(fn.Addr, int(fn.Size))
	if err != nil {
		return nil, err
	}
	if uint64(len(code)) != fn.Size {
		return nil, fmt.Errorf("elfx: %s: short read, %d of %d bytes", fn.Name, len(code), fn.Size)
	}
	return code, nil
}

// Lookup returns a name resolver over the function symbols.
func (f *File) Lookup() (func(addr uint64) (string, bool), error) {
	funcs, err := f.FuncSymbols()
	if err != nil {
		return nil, err
	}
	names := make(map[uint64]string, len(funcs))
	for _, fn := range funcs {
		names[fn.Addr] = fn.Name
	}
	return func(addr uint64) (string, bool) {
		n, ok := names[addr]
		return n, ok
	}, nil
}

// SegmentInfo describes a PT_LOAD segment.
type SegmentInfo struct {
	Vaddr  uint64
	Memsz  uint64
	Filesz uint64
	Offset uint64
	Flags  elf.ProgFlag
}

// Contains reports whether va falls inside the segment's memory image.
func (s SegmentInfo) Contains(va uint64) bool {
	return va >= s.Vaddr && va < s.Vaddr+s.Memsz
}

// Executable reports whether the segment is mapped PF_X.
func (s SegmentInfo) Executable() bool { return s.Flags&elf.PF_X != 0 }

// LoadSegments returns all PT_LOAD segments in program header order.
func (f *File) LoadSegments() []SegmentInfo {
	var segs []SegmentInfo
	for _, p := range f.ELF.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		segs = append(segs, SegmentInfo{
			Vaddr:  p.Vaddr,
			Memsz:  p.Memsz,
			Filesz: p.Filesz,
			Offset: p.Off,
			Flags:  p.Flags,
		})
	}
	return segs
}

func (f *File) segmentFor(va uint64) (SegmentInfo, error) {
	for _, s := range f.LoadSegments() {
		if s.Contains(va) {
			return s, nil
		}
	}
	return SegmentInfo{}, fmt.Errorf("%w: VA 0x%x", ErrNoSegment, va)
}

// VAToFileOffset converts a virtual address to a file offset using PT_LOAD segments.
func (f *File) VAToFileOffset(va uint64) (uint64, error) {
	seg, err := f.segmentFor(va)
	if err != nil {
		return 0, err
	}
	offset := va - seg.Vaddr + seg.Offset
	if offset >= uint64(f.size) {
		return 0, fmt.Errorf("elfx: VA 0x%x maps to offset 0x%x beyond file size 0x%x", va, offset, f.size)
	}
	return offset, nil
}

// ReadBytesAtVA reads n bytes starting at the given virtual address. The
// read is clamped to the end of the file.
func (f *File) ReadBytesAtVA(va uint64, n int) ([]byte, error) {
	off, err := f.VAToFileOffset(va)
	if err != nil {
		return nil, err
	}
	if avail := f.size - int64(off); int64(n) > avail {
		n = int(avail)
	}
	buf := make([]byte, n)
	_, err = f.raw.ReadAt(buf, int64(off))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("elfx: read at 0x%x: %w", off, err)
	}
	return buf, nil
}
