// Package metrics exports Prometheus counters and histograms for the
// MarFS-specific events the File Handle & I/O Engine and Trash Manager
// produce: chunk PUT/GET latency, RESTART recoveries, trash moves, and
// N:1 finalizations. Each Recorder registers its own collectors with the
// registerer it is given, and covers only the handful of series this
// engine actually emits.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder aggregates the MarFS engine's Prometheus series. A nil
// *Recorder is safe to call methods on; every method is a no-op in that
// case, so callers that don't care about metrics can pass nil through.
type Recorder struct {
	chunkOpCounter   *prometheus.CounterVec
	chunkOpDuration  *prometheus.HistogramVec
	restartRecovered prometheus.Counter
	trashMoves       *prometheus.CounterVec
	nto1Finalized    prometheus.Counter
	nto1ChunkCount   prometheus.Histogram
}

// New builds a Recorder and registers its collectors with reg. Pass
// prometheus.NewRegistry() for an isolated registry or
// prometheus.DefaultRegisterer to export alongside the rest of
// a process's metrics.
func New(reg prometheus.Registerer, namespace string) (*Recorder, error) {
	r := &Recorder{
		chunkOpCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marfs",
			Name:      "chunk_ops_total",
			Help:      "Total chunk object PUT/GET operations by method and outcome.",
		}, []string{"method", "status"}),
		chunkOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marfs",
			Name:      "chunk_op_duration_seconds",
			Help:      "Latency of a chunk object PUT or GET, open to close.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"method"}),
		restartRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marfs",
			Name:      "restart_recoveries_total",
			Help:      "Files whose RESTART marker was found and repaired.",
		}),
		trashMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marfs",
			Name:      "trash_moves_total",
			Help:      "Files moved into the trash directory, by mode.",
		}, []string{"mode"}),
		nto1Finalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marfs",
			Name:      "nto1_finalizations_total",
			Help:      "N:1 coordinating files finalized via FinalizeNTo1.",
		}),
		nto1ChunkCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marfs",
			Name:      "nto1_chunk_count",
			Help:      "Number of chunks reconciled per N:1 finalization.",
			Buckets:   prometheus.LinearBuckets(1, 4, 16),
		}),
	}

	collectors := []prometheus.Collector{
		r.chunkOpCounter, r.chunkOpDuration, r.restartRecovered,
		r.trashMoves, r.nto1Finalized, r.nto1ChunkCount,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RecordChunkOp records one chunk PUT or GET's outcome and latency.
// method is "PUT" or "GET"; ok is false when the stream reported an error.
func (r *Recorder) RecordChunkOp(method string, d time.Duration, ok bool) {
	if r == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	r.chunkOpCounter.WithLabelValues(method, status).Inc()
	r.chunkOpDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordRestartRecovered records that open found and repaired a stale
// RESTART marker left by a prior crashed write.
func (r *Recorder) RecordRestartRecovered() {
	if r == nil {
		return
	}
	r.restartRecovered.Inc()
}

// RecordTrashMove records a Trash Manager move, mode being "truncate" or
// "unlink".
func (r *Recorder) RecordTrashMove(mode string) {
	if r == nil {
		return
	}
	r.trashMoves.WithLabelValues(mode).Inc()
}

// RecordNTo1Finalize records a completed FinalizeNTo1 call and how many
// chunks it reconciled.
func (r *Recorder) RecordNTo1Finalize(chunks int) {
	if r == nil {
		return
	}
	r.nto1Finalized.Inc()
	r.nto1ChunkCount.Observe(float64(chunks))
}
