package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	var total float64
	for m := range ch {
		var pb dto.Metric
		require.NoError(t, m.Write(&pb))
		switch {
		case pb.Counter != nil:
			total += pb.Counter.GetValue()
		case pb.Gauge != nil:
			total += pb.Gauge.GetValue()
		}
	}
	return total
}

func TestIncOpcodeIncrementsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.IncOpcode("QUERY")
	r.IncOpcode("QUERY")
	r.IncOpcode("INSERT")

	require.Equal(t, float64(2), counterValue(t, r.opsByOpcode.WithLabelValues("QUERY")))
	require.Equal(t, float64(1), counterValue(t, r.opsByOpcode.WithLabelValues("INSERT")))
}

func TestSetOpenCursorsAndActiveOps(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.SetOpenCursors(3)
	r.SetActiveOps(7)

	require.Equal(t, float64(3), counterValue(t, r.openCursors))
	require.Equal(t, float64(7), counterValue(t, r.activeOps))
}

func TestNilRecorderMethodsAreNoOps(t *testing.T) {
	var r *Recorder
	require.NotPanics(t, func() {
		r.IncOpcode("QUERY")
		r.IncSlowOp("QUERY")
		r.SetOpenCursors(1)
		r.SetActiveOps(1)
		r.IncStorageOp("commit")
		r.IncStorageError("not-found")
		r.IncLockUpgrade()
	})
}
