package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"restruct/internal/diag"
	"restruct/internal/metrics"
	"restruct/internal/output"
	"restruct/internal/pipeline"
	"restruct/internal/structure"
)

func newStructureCmd(a *app) *cobra.Command {
	var in inputFlags
	var (
		outDir      string
		metricsPath string
		workers     int
		strict      bool
		order       string
		format      string
		compress    bool
	)
	cmd := &cobra.Command{
		Use:   "structure",
		Short: "Recover structured control flow and write pseudo-code",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("workers") {
				a.cfg.Workers = workers
			}
			if flags.Changed("strict") {
				a.cfg.Mode = diag.ModeBestEffort.String()
				if strict {
					a.cfg.Mode = diag.ModeStrict.String()
				}
			}
			if flags.Changed("order") {
				a.cfg.Order = order
			}
			if flags.Changed("format") {
				a.cfg.Output.Format = format
			}
			if flags.Changed("compress") {
				a.cfg.Output.Compress = compress
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			src, err := in.load(a)
			if err != nil {
				return err
			}
			opts, err := pipelineOptions(a)
			if err != nil {
				return err
			}
			opts.Symbols = src.lookup
			reg := prometheus.NewRegistry()
			opts.Metrics = metrics.New(reg)

			results, runErr := pipeline.Run(cmd.Context(), src.funcs, opts)

			var structured, residual, failed int
			for _, r := range results {
				switch {
				case r.Record.Name == "":
				case r.Record.Error != "":
					failed++
				case r.Record.Structured:
					structured++
				default:
					residual++
				}
			}
			if outDir == "" {
				for _, r := range results {
					if r.Record.Name != "" {
						fmt.Fprintf(cmd.OutOrStdout(), "// %s @ 0x%x\n%s\n", r.Record.Name, r.Record.Addr, r.Pseudo)
					}
				}
			} else if err := writeResults(a, outDir, results); err != nil {
				return err
			}
			if metricsPath != "" {
				if err := metrics.WriteTextfile(metricsPath, reg); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "structured %d/%d functions (%d residual, %d failed)\n",
				structured, len(src.funcs), residual, failed)
			return runErr
		},
	}
	in.register(cmd)
	f := cmd.Flags()
	f.StringVar(&outDir, "out", "", "output directory (default: pseudo-code on stdout)")
	f.StringVar(&metricsPath, "metrics", "", "write Prometheus metrics to this textfile")
	f.IntVar(&workers, "workers", 0, "functions reduced concurrently")
	f.BoolVar(&strict, "strict", false, "abort on the first invariant violation")
	f.StringVar(&order, "order", "", "node traversal order (rpo, dom-depth)")
	f.StringVar(&format, "format", "", "record format (jsonl, msgpack)")
	f.BoolVar(&compress, "compress", false, "zstd-compress the record file")
	return cmd
}

func writeResults(a *app, dir string, results []pipeline.Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir output: %w", err)
	}
	format, err := output.ParseFormat(a.cfg.Output.Format)
	if err != nil {
		return err
	}
	w, err := output.CreateRecords(dir, format, a.cfg.Output.Compress)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Record.Name == "" {
			continue
		}
		if err := w.Write(&r.Record); err != nil {
			w.Close()
			return err
		}
		if r.Pseudo != "" {
			if err := output.WritePseudo(dir, r.Record.Name, r.Pseudo); err != nil {
				w.Close()
				return err
			}
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	a.log.Info("wrote records", "path", w.Path(), "count", w.Count())
	return nil
}

// pipelineOptions translates the loaded config.
func pipelineOptions(a *app) (pipeline.Options, error) {
	mode, err := diag.ParseMode(a.cfg.Mode)
	if err != nil {
		return pipeline.Options{}, err
	}
	order, ok := structure.ParseOrder(a.cfg.Order)
	if !ok {
		return pipeline.Options{}, fmt.Errorf("unknown order %q", a.cfg.Order)
	}
	return pipeline.Options{
		Mode:    mode,
		Workers: a.cfg.Workers,
		Reduce: structure.Options{
			Order:               order,
			MaxTailDuplications: a.cfg.TailDuplication,
			MaxTailSize:         a.cfg.MaxTailSize,
			MaxSteps:            a.cfg.MaxSteps,
			Checked:             a.cfg.Checked,
		},
		Logger: a.log,
	}, nil
}
