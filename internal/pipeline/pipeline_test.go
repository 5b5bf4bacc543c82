package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"restruct/internal/asmfixture"
	"restruct/internal/diag"
	"restruct/internal/metrics"
	"restruct/internal/structure"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func canned(t *testing.T) []Func {
	t.Helper()
	fixtures, err := asmfixture.Canned()
	require.NoError(t, err)
	funcs := make([]Func, len(fixtures))
	addr := uint64(asmfixture.BaseAddr)
	for i, f := range fixtures {
		funcs[i] = Func{Name: f.Name, Addr: addr, Code: f.Code}
		addr += uint64(len(f.Code))
	}
	return funcs
}

func tangle(t *testing.T) Func {
	t.Helper()
	code, err := asmfixture.Tangle()
	require.NoError(t, err)
	return Func{Name: "tangle", Addr: 0x500000, Code: code}
}

// boom makes every reduction fail on its first pattern application.
func boom(structure.Kind, structure.Node) {
	panic(&structure.InvariantError{Op: "test", Msg: "boom"})
}

func TestRunCanned(t *testing.T) {
	funcs := canned(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	results, err := Run(context.Background(), funcs, Options{
		Workers: 3,
		Reduce:  structure.Options{Checked: true},
		Metrics: m,
	})
	require.NoError(t, err)
	require.Len(t, results, len(funcs))

	for i, res := range results {
		rec := res.Record
		assert.Equal(t, funcs[i].Name, rec.Name, "results keep input order")
		assert.Equal(t, funcs[i].Addr, rec.Addr)
		assert.True(t, rec.Structured, "%s:\n%s", rec.Name, res.Pseudo)
		assert.NotEmpty(t, rec.Root)
		assert.Zero(t, rec.Residual)
		assert.Empty(t, rec.Error)
		assert.Equal(t, len(funcs[i].Code)/4, rec.Insts)
		assert.NotContains(t, res.Pseudo, "goto")
		assert.NotNil(t, res.Graph)
	}
	assert.Equal(t, float64(len(funcs)),
		testutil.ToFloat64(m.FunctionsTotal.WithLabelValues(metrics.OutcomeStructured)))
}

func TestStructureIrreducible(t *testing.T) {
	res, err := Structure(context.Background(), tangle(t), Options{
		Reduce: structure.Options{Checked: true, MaxTailDuplications: 4},
	})
	require.NoError(t, err)
	rec := res.Record
	assert.False(t, rec.Structured)
	assert.Empty(t, rec.Root)
	assert.Equal(t, 3, rec.Residual)
	require.Len(t, rec.Diags, 1)
	assert.Equal(t, diag.KindIrreducible, rec.Diags[0].Kind)
	assert.Contains(t, res.Pseudo, "goto L_")
	assert.Equal(t, 3, rec.Blocks)
}

func TestStructureRecordsCalls(t *testing.T) {
	// BL +0x100; RET
	code := []byte{0x40, 0x00, 0x00, 0x94, 0xc0, 0x03, 0x5f, 0xd6}
	lookup := func(addr uint64) (string, bool) {
		if addr == 0x1100 {
			return "helper", true
		}
		return "", false
	}
	res, err := Structure(context.Background(), Func{Name: "caller", Addr: 0x1000, Code: code},
		Options{Symbols: lookup})
	require.NoError(t, err)
	require.Len(t, res.Record.Calls, 1)
	assert.Equal(t, "helper", res.Record.Calls[0].Callee())
	assert.True(t, res.Record.Structured)
	assert.Equal(t, "bb", res.Record.Root, "a single block is already structured")
}

func TestStructureEmpty(t *testing.T) {
	res, err := Structure(context.Background(), Func{Name: "empty", Addr: 0x1000}, Options{})
	require.ErrorIs(t, err, structure.ErrEmptyFunction)
	assert.Contains(t, res.Record.Error, "empty")
}

func TestBestEffortRecordsInvariant(t *testing.T) {
	funcs := canned(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	results, err := Run(context.Background(), funcs, Options{
		Mode:    diag.ModeBestEffort,
		Workers: 2,
		Reduce:  structure.Options{OnApply: boom},
		Metrics: m,
	})
	require.NoError(t, err)
	for _, res := range results {
		assert.Contains(t, res.Record.Error, "boom")
		assert.Nil(t, res.Graph)
		require.NotEmpty(t, res.Record.Diags)
		assert.Equal(t, diag.KindInvariant, res.Record.Diags[len(res.Record.Diags)-1].Kind)
	}
	assert.Equal(t, float64(len(funcs)),
		testutil.ToFloat64(m.FunctionsTotal.WithLabelValues(metrics.OutcomeFailed)))
}

func TestStrictAbortsOnInvariant(t *testing.T) {
	_, err := Run(context.Background(), canned(t), Options{
		Mode:    diag.ModeStrict,
		Workers: 2,
		Reduce:  structure.Options{OnApply: boom},
	})
	require.ErrorIs(t, err, ErrInvariant)
	var ie *structure.InvariantError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "test", ie.Op)
}

func TestOtherPanicsPropagate(t *testing.T) {
	fn := canned(t)[0]
	assert.PanicsWithValue(t, "unrelated", func() {
		Structure(context.Background(), fn, Options{
			Reduce: structure.Options{OnApply: func(structure.Kind, structure.Node) { panic("unrelated") }},
		})
	})
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := Run(ctx, canned(t), Options{Workers: 1})
	require.ErrorIs(t, err, context.Canceled)
	for _, res := range results {
		assert.Empty(t, res.Record.Name, "nothing is scheduled after cancellation")
	}
}

func TestSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	funcs := canned(t)[:2]
	_, err := Run(context.Background(), funcs, Options{Tracer: tp.Tracer("test"), Workers: 2})
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range rec.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["restruct.run"])
	assert.Equal(t, 2, names["restruct.function"])
}

func TestLogsPerFunction(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, err := Structure(context.Background(), canned(t)[0], Options{Logger: log})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "func=diamond")
	assert.Equal(t, 1, strings.Count(out, "msg=structured"))
}
