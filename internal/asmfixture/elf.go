package asmfixture

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
)

// Func is one named function in an ELF image.
type Func struct {
	Name string
	Code []byte
}

// BaseAddr is the virtual address of the single PT_LOAD segment.
const BaseAddr = 0x400000

const textOff = 0x100

// ELF returns a minimal little-endian AArch64 ET_EXEC image with one
// executable PT_LOAD segment, a .text section holding funcs back to back,
// and a .symtab with one STT_FUNC symbol per function. It also returns each
// function's address.
func ELF(funcs []Func) ([]byte, []uint64, error) {
	var text bytes.Buffer
	addrs := make([]uint64, len(funcs))
	for i, f := range funcs {
		if len(f.Code)%4 != 0 {
			return nil, nil, fmt.Errorf("asmfixture: %s: code size %d not a multiple of 4", f.Name, len(f.Code))
		}
		addrs[i] = BaseAddr + textOff + uint64(text.Len())
		text.Write(f.Code)
	}

	strtab := []byte{0}
	syms := []elf.Sym64{{}}
	for i, f := range funcs {
		syms = append(syms, elf.Sym64{
			Name:  uint32(len(strtab)),
			Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
			Shndx: 1,
			Value: addrs[i],
			Size:  uint64(len(f.Code)),
		})
		strtab = append(strtab, f.Name...)
		strtab = append(strtab, 0)
	}

	shstrtab := []byte{0}
	shname := func(s string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, s...)
		shstrtab = append(shstrtab, 0)
		return off
	}
	nameText, nameSym, nameStr, nameShstr := shname(".text"), shname(".symtab"), shname(".strtab"), shname(".shstrtab")

	symOff := align(textOff+uint64(text.Len()), 8)
	symSize := uint64(len(syms)) * 24
	strOff := symOff + symSize
	shstrOff := strOff + uint64(len(strtab))
	shOff := align(shstrOff+uint64(len(shstrtab)), 8)
	fileSize := shOff + 5*64

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_AARCH64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     BaseAddr + textOff,
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

	prog := elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Off:    0,
		Vaddr:  BaseAddr,
		Paddr:  BaseAddr,
		Filesz: fileSize,
		Memsz:  fileSize,
		Align:  0x1000,
	}

	sections := []elf.Section64{
		{},
		{
			Name: nameText, Type: uint32(elf.SHT_PROGBITS),
			Flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Addr:  BaseAddr + textOff, Off: textOff, Size: uint64(text.Len()),
			Addralign: 4,
		},
		{
			Name: nameSym, Type: uint32(elf.SHT_SYMTAB),
			Off: symOff, Size: symSize, Link: 3, Info: 1,
			Addralign: 8, Entsize: 24,
		},
		{
			Name: nameStr, Type: uint32(elf.SHT_STRTAB),
			Off: strOff, Size: uint64(len(strtab)), Addralign: 1,
		},
		{
			Name: nameShstr, Type: uint32(elf.SHT_STRTAB),
			Off: shstrOff, Size: uint64(len(shstrtab)), Addralign: 1,
		},
	}

	var out bytes.Buffer
	le := binary.LittleEndian
	write := func(v any) {
		// bytes.Buffer writes cannot fail.
		_ = binary.Write(&out, le, v)
	}
	pad := func(to uint64) {
		for uint64(out.Len()) < to {
			out.WriteByte(0)
		}
	}
	write(hdr)
	write(prog)
	pad(textOff)
	out.Write(text.Bytes())
	pad(symOff)
	write(syms)
	out.Write(strtab)
	out.Write(shstrtab)
	pad(shOff)
	write(sections)
	return out.Bytes(), addrs, nil
}

// WriteELF writes the image for funcs to path.
func WriteELF(path string, funcs []Func) ([]uint64, error) {
	img, addrs, err := ELF(funcs)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, img, 0644); err != nil {
		return nil, fmt.Errorf("asmfixture: write %s: %w", path, err)
	}
	return addrs, nil
}

func align(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}
