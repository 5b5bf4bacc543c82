package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveFunction(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFunction(OutcomeStructured, 3, map[string]int{"seq": 2, "ifelse": 1}, 0, time.Millisecond)
	m.ObserveFunction(OutcomeStructured, 1, map[string]int{"seq": 1}, 2, time.Millisecond)
	m.ObserveFunction(OutcomeResidual, 0, nil, 0, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FunctionsTotal.WithLabelValues(OutcomeStructured)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FunctionsTotal.WithLabelValues(OutcomeResidual)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PatternsTotal.WithLabelValues("seq")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DuplicatedTotal))

	n, err := testutil.GatherAndCount(reg, "restruct_reduction_steps")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expected := `
# HELP restruct_patterns_applied_total Structural pattern applications, by pattern.
# TYPE restruct_patterns_applied_total counter
restruct_patterns_applied_total{pattern="ifelse"} 1
restruct_patterns_applied_total{pattern="seq"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "restruct_patterns_applied_total"))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFunction(OutcomeFailed, 0, nil, 0, 0)
	})
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveFunction(OutcomeFailed, 0, nil, 0, time.Microsecond)

	path := filepath.Join(t.TempDir(), "restruct.prom")
	require.NoError(t, WriteTextfile(path, reg))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `restruct_functions_total{outcome="failed"} 1`)
}
