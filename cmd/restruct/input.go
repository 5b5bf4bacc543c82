package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"restruct/internal/disasm"
	"restruct/internal/elfx"
	"restruct/internal/output"
	"restruct/internal/pipeline"
)

// inputFlags selects the functions a command works on.
type inputFlags struct {
	elf  string
	raw  string
	base string
	fn   string
}

func (in *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.elf, "elf", "", "ARM64 ELF executable or shared object")
	cmd.Flags().StringVar(&in.raw, "raw", "", "raw ARM64 code bytes of one function")
	cmd.Flags().StringVar(&in.base, "base", "0", "load address of --raw code")
	cmd.Flags().StringVar(&in.fn, "func", "", "only this function (ELF) or its name (raw)")
	cmd.MarkFlagsMutuallyExclusive("elf", "raw")
	cmd.MarkFlagsOneRequired("elf", "raw")
}

// input is the loaded code plus whatever names the binary provides.
type input struct {
	funcs   []pipeline.Func
	symbols []output.SymbolEntry
	lookup  disasm.SymbolLookup
}

func (in *inputFlags) load(a *app) (*input, error) {
	if in.raw != "" {
		return in.loadRaw()
	}
	return in.loadELF(a)
}

func (in *inputFlags) loadRaw() (*input, error) {
	base, err := strconv.ParseUint(in.base, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("--base %q: %w", in.base, err)
	}
	code, err := os.ReadFile(in.raw)
	if err != nil {
		return nil, fmt.Errorf("read raw: %w", err)
	}
	name := in.fn
	if name == "" {
		name = fmt.Sprintf("sub_%x", base)
	}
	return &input{funcs: []pipeline.Func{{Name: name, Addr: base, Code: code}}}, nil
}

func (in *inputFlags) loadELF(a *app) (*input, error) {
	ef, err := elfx.Open(in.elf)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer ef.Close()

	syms, err := ef.FuncSymbols()
	if err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}
	lookup, err := ef.Lookup()
	if err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}

	res := &input{lookup: lookup}
	for _, s := range syms {
		res.symbols = append(res.symbols, output.SymbolEntry{Address: s.Addr, Name: s.Name, Size: s.Size})
		if in.fn != "" && s.Name != in.fn {
			continue
		}
		code, err := ef.ReadFunc(s)
		if errors.Is(err, elfx.ErrSymbolNoSize) {
			a.log.Debug("skipping sizeless symbol", "func", s.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.Name, err)
		}
		res.funcs = append(res.funcs, pipeline.Func{Name: s.Name, Addr: s.Addr, Code: code})
	}
	if in.fn != "" && len(res.funcs) == 0 {
		return nil, fmt.Errorf("%w: %s", elfx.ErrNoSymbol, in.fn)
	}
	a.log.Info("loaded", "elf", in.elf, "functions", len(res.funcs))
	return res, nil
}
