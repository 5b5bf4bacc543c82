package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zboralski/lattice"
	latrender "github.com/zboralski/lattice/render"

	"restruct/internal/cfgexport"
	"restruct/internal/output"
	"restruct/internal/pipeline"
	"restruct/internal/render"
)

func newCFGCmd(a *app) *cobra.Command {
	var in inputFlags
	var outDir string
	cmd := &cobra.Command{
		Use:   "cfg",
		Short: "Write per-function CFG and region DOT files",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := in.load(a)
			if err != nil {
				return err
			}
			opts, err := pipelineOptions(a)
			if err != nil {
				return err
			}
			opts.Symbols = src.lookup

			var written int
			for _, fn := range src.funcs {
				res, err := pipeline.Structure(cmd.Context(), fn, opts)
				if err != nil {
					a.log.Warn("skipping function", "func", fn.Name, "err", err)
					continue
				}
				if err := writeDOTs(outDir, fn.Name, res); err != nil {
					return err
				}
				written++
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote DOT files for %d functions to %s\n", written, outDir)
			return nil
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&outDir, "out", "", "output directory")
	cmd.MarkFlagRequired("out")
	return cmd
}

// writeDOTs writes the four views of one function: the lattice CFG as
// disassembled, the themed block CFG, the regions after reduction and the
// lattice CFG of those regions.
func writeDOTs(dir, name string, res pipeline.Result) error {
	lcfg := cfgexport.FromDisasm(&res.CFG, res.Record.Calls)
	views := []struct {
		suffix string
		dot    string
	}{
		{"cfg", latrender.DOTCFG(&lattice.CFGGraph{Funcs: []*lattice.FuncCFG{lcfg}}, name)},
		{"blocks", render.CFGDOT(res.CFG, render.NASA)},
		{"regions", render.RegionDOT(name, res.Graph, render.NASA)},
		{"residual", latrender.DOTCFG(&lattice.CFGGraph{Funcs: []*lattice.FuncCFG{cfgexport.Residual(name, res.Graph)}}, name)},
	}
	for _, v := range views {
		if v.dot == "" {
			continue
		}
		if err := output.WriteDOT(dir, name+"."+v.suffix, v.dot); err != nil {
			return err
		}
	}
	return nil
}
