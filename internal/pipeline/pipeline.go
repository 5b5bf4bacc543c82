// Package pipeline drives functions through disassembly, CFG construction,
// ingestion and reduction, several functions at a time.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"restruct/internal/diag"
	"restruct/internal/disasm"
	"restruct/internal/metrics"
	"restruct/internal/output"
	"restruct/internal/structure"
)

// callWindow is how many instructions a materialized address stays live for
// BLR target resolution.
const callWindow = 8

// ErrInvariant wraps a graph invariant violation raised while reducing.
var ErrInvariant = errors.New("pipeline: invariant violated")

// Func is one function to structure.
type Func struct {
	Name string
	Addr uint64
	Code []byte
}

// Options configures a run.
type Options struct {
	Mode    diag.Mode
	Workers int // <= 0 means 1
	// Reduce is the template passed to structure.Reduce for every function.
	// Its Logger is replaced by a per-function child of Logger.
	Reduce structure.Options
	// Symbols names call targets in the records; may be nil.
	Symbols disasm.SymbolLookup

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer("restruct/pipeline")
	}
	return o
}

// Result is the outcome for one function.
type Result struct {
	Record output.FuncRecord
	// Pseudo is the DumpGraph rendering: the structured tree, or labeled
	// residual nodes with gotos.
	Pseudo string
	CFG    disasm.FuncCFG
	// Graph is the graph after reduction; nil when ingestion or reduction
	// failed.
	Graph *structure.Graph
}

// Run structures funcs concurrently and returns one Result per function in
// input order. In strict mode the first failure cancels the run and is
// returned; in best-effort mode failures are recorded in Result.Record.Error.
// Cancelling ctx stops scheduling new functions.
func Run(ctx context.Context, funcs []Func, opts Options) ([]Result, error) {
	opts = opts.withDefaults()
	ctx, span := opts.Tracer.Start(ctx, "restruct.run",
		trace.WithAttributes(
			attribute.Int("restruct.functions", len(funcs)),
			attribute.Int("restruct.workers", opts.Workers),
			attribute.String("restruct.mode", opts.Mode.String()),
		),
	)
	defer span.End()

	results := make([]Result, len(funcs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, fn := range funcs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := Structure(gctx, fn, opts)
			results[i] = res
			if err != nil && opts.Mode == diag.ModeStrict {
				return fmt.Errorf("%s: %w", fn.Name, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return results, err
	}
	return results, nil
}

// Structure runs one function through the whole chain. A failed ingestion
// or a broken graph invariant is returned as an error and also recorded in
// the result, so callers in best-effort mode can keep going.
func Structure(ctx context.Context, fn Func, opts Options) (Result, error) {
	opts = opts.withDefaults()
	_, span := opts.Tracer.Start(ctx, "restruct.function",
		trace.WithAttributes(
			attribute.String("restruct.func", fn.Name),
			attribute.Int64("restruct.addr", int64(fn.Addr)),
		),
	)
	defer span.End()
	log := opts.Logger.With("func", fn.Name)
	start := time.Now()

	var d diag.Diags
	insts := disasm.Disassemble(fn.Code, disasm.Options{BaseAddr: fn.Addr, Symbols: opts.Symbols, Diags: &d})
	cfg := disasm.BuildCFG(fn.Name, insts)
	res := Result{
		CFG: cfg,
		Record: output.FuncRecord{
			Name:   fn.Name,
			Addr:   fn.Addr,
			Size:   uint64(len(fn.Code)),
			Insts:  len(insts),
			Blocks: len(cfg.Blocks),
			Calls:  disasm.ExtractCallEdges(insts, opts.Symbols, callWindow),
		},
	}
	rec := &res.Record

	fail := func(err error) (Result, error) {
		rec.Error = err.Error()
		rec.Diags = d.Items()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		opts.Metrics.ObserveFunction(metrics.OutcomeFailed, 0, nil, 0, time.Since(start))
		log.Warn("structure failed", "err", err)
		return res, err
	}

	g, err := structure.FromCFG(cfg, &d)
	if err != nil {
		return fail(err)
	}

	ro := opts.Reduce
	ro.Logger = log
	out, err := reduce(g, ro)
	if err != nil {
		d.Add(fn.Addr, diag.KindInvariant, err.Error())
		return fail(err)
	}
	res.Graph = g

	if out.Exhausted {
		d.Addf(fn.Addr, diag.KindStepLimit, "stopped after %d steps", out.Steps)
	}
	if !out.Structured {
		d.Addf(fn.Addr, diag.KindIrreducible, "%d nodes left unstructured", len(out.Residual))
	}

	var buf bytes.Buffer
	if err := structure.DumpGraph(&buf, g); err != nil {
		return fail(err)
	}
	res.Pseudo = buf.String()

	rec.Structured = out.Structured
	if out.Structured {
		rec.Root = out.Root.Kind().String()
	}
	rec.Steps = out.Steps
	rec.Duplicated = out.Duplicated
	rec.Normalized = out.Normalized
	rec.Residual = len(out.Residual)
	rec.Exhausted = out.Exhausted
	if len(out.Applied) > 0 {
		rec.Applied = make(map[string]int, len(out.Applied))
		for k, n := range out.Applied {
			rec.Applied[k.String()] = n
		}
	}
	rec.Diags = d.Items()

	outcome := metrics.OutcomeStructured
	if !out.Structured {
		outcome = metrics.OutcomeResidual
	}
	elapsed := time.Since(start)
	opts.Metrics.ObserveFunction(outcome, out.Steps, rec.Applied, out.Duplicated, elapsed)
	span.SetAttributes(
		attribute.Bool("restruct.structured", out.Structured),
		attribute.Int("restruct.steps", out.Steps),
	)
	log.Debug("structured", "outcome", outcome, "steps", out.Steps, "residual", rec.Residual, "elapsed", elapsed)
	return res, nil
}

// reduce runs structure.Reduce and turns an invariant panic into an error.
// Other panics propagate.
func reduce(g *structure.Graph, o structure.Options) (res structure.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*structure.InvariantError)
			if !ok {
				panic(r)
			}
			err = fmt.Errorf("%w: %w", ErrInvariant, ie)
		}
	}()
	return structure.Reduce(g, o), nil
}
