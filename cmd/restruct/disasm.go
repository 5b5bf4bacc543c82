package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"restruct/internal/disasm"
	"restruct/internal/output"
)

// regWindow bounds how long an ADR/ADRP result annotates later uses.
const regWindow = 8

func newDisasmCmd(a *app) *cobra.Command {
	var in inputFlags
	var outDir string
	cmd := &cobra.Command{
		Use:   "disasm",
		Short: "Print or write annotated disassembly",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := in.load(a)
			if err != nil {
				return err
			}
			if outDir != "" {
				if err := os.MkdirAll(outDir, 0755); err != nil {
					return fmt.Errorf("mkdir output: %w", err)
				}
			}
			for _, fn := range src.funcs {
				insts := disasm.Disassemble(fn.Code, disasm.Options{BaseAddr: fn.Addr, Symbols: src.lookup})
				anns := []disasm.Annotator{
					disasm.TargetAnnotator(src.lookup),
					disasm.AddressAnnotator(insts, src.lookup, regWindow),
				}
				if outDir == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%s:\n%s\n", fn.Name, disasm.Format(insts, src.lookup, anns...))
					continue
				}
				if err := output.WriteASM(outDir, fn.Name, insts, src.lookup, anns...); err != nil {
					return err
				}
			}
			if outDir == "" {
				return nil
			}
			if len(src.symbols) > 0 {
				if err := output.WriteSymbolsJSON(outDir, src.symbols); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d function disassemblies to %s\n", len(src.funcs), outDir)
			return nil
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default: stdout)")
	return cmd
}
