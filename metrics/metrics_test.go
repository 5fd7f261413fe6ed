package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRegistered(t *testing.T) {
	before := testutil.ToFloat64(RowsSkipped.WithLabelValues("metrics_test"))
	RowsSkipped.WithLabelValues("metrics_test").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RowsSkipped.WithLabelValues("metrics_test")))

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"cvdtrader_bars_total",
		"cvdtrader_optimizer_bailouts_total",
		"cvdtrader_rows_skipped_total",
	} {
		assert.True(t, names[want], want)
	}
}
