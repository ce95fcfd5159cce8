// Package metrics exposes the dispatch core's operational counters and
// gauges as Prometheus instrumentation, grounded on the pattern used by
// pkg/metrics/prometheus in the reference fleet: a registry-backed
// constructor whose methods are nil-receiver safe so the dispatcher can hold
// a *Recorder unconditionally and never branch on whether metrics are
// enabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects dispatch-core counters and gauges. A nil *Recorder is
// valid and every method on it is a no-op.
type Recorder struct {
	opsByOpcode  *prometheus.CounterVec
	slowOps      *prometheus.CounterVec
	openCursors  prometheus.Gauge
	activeOps    prometheus.Gauge
	storageOps   *prometheus.CounterVec
	storageErrs  *prometheus.CounterVec
	lockUpgrades prometheus.Counter
}

// NewRecorder registers the dispatch core's instrumentation against reg. If
// reg is nil, prometheus.DefaultRegisterer is used.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Recorder{
		opsByOpcode: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "docdbd_dispatch_ops_total",
				Help: "Total number of dispatched requests by opcode.",
			},
			[]string{"opcode"},
		),
		slowOps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "docdbd_dispatch_slow_ops_total",
				Help: "Total number of operations that crossed the slow-op threshold.",
			},
			[]string{"opcode"},
		),
		openCursors: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "docdbd_dispatch_open_cursors",
				Help: "Number of cursors currently held open by the cursor registry.",
			},
		),
		activeOps: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "docdbd_dispatch_active_ops",
				Help: "Number of in-progress operations across all clients.",
			},
		),
		storageOps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "docdbd_storage_ops_total",
				Help: "Total number of storage engine transactions by outcome.",
			},
			[]string{"outcome"},
		),
		storageErrs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "docdbd_storage_errors_total",
				Help: "Total number of storage engine errors by code.",
			},
			[]string{"code"},
		),
		lockUpgrades: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "docdbd_lockmgr_upgrades_total",
				Help: "Total number of read-to-write lock upgrades.",
			},
		),
	}
}

// IncOpcode records one dispatched request for the given opcode.
func (r *Recorder) IncOpcode(opcode string) {
	if r == nil {
		return
	}
	r.opsByOpcode.WithLabelValues(opcode).Inc()
}

// IncSlowOp records one slow-threshold crossing for the given opcode.
func (r *Recorder) IncSlowOp(opcode string) {
	if r == nil {
		return
	}
	r.slowOps.WithLabelValues(opcode).Inc()
}

// SetOpenCursors reports the current cursor registry size.
func (r *Recorder) SetOpenCursors(n int) {
	if r == nil {
		return
	}
	r.openCursors.Set(float64(n))
}

// SetActiveOps reports the current number of in-progress operations.
func (r *Recorder) SetActiveOps(n int) {
	if r == nil {
		return
	}
	r.activeOps.Set(float64(n))
}

// IncStorageOp records one storage transaction outcome ("commit" or
// "abort").
func (r *Recorder) IncStorageOp(outcome string) {
	if r == nil {
		return
	}
	r.storageOps.WithLabelValues(outcome).Inc()
}

// IncStorageError records one storage engine error by its code name.
func (r *Recorder) IncStorageError(code string) {
	if r == nil {
		return
	}
	r.storageErrs.WithLabelValues(code).Inc()
}

// IncLockUpgrade records one read-to-write lock upgrade.
func (r *Recorder) IncLockUpgrade() {
	if r == nil {
		return
	}
	r.lockUpgrades.Inc()
}
