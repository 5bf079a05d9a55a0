// Package metrics collects per-job Prometheus metrics and writes them in the
// node_exporter textfile format.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chunkscribe"

// Metrics contains all metrics for one transcription job.
type Metrics struct {
	reg *prometheus.Registry

	JobInfo          *prometheus.GaugeVec
	StageDuration    *prometheus.HistogramVec
	ChunksPrepared   prometheus.Counter
	ChunkSize        prometheus.Histogram
	CompressionRatio prometheus.Gauge
	Fallbacks        prometheus.Counter

	FragmentsTranscribed prometheus.Counter
	FragmentsResumed     prometheus.Counter
	Retries              prometheus.Counter
	Tokens               prometheus.Counter
	OverlapTrims         prometheus.Counter
	Cancelled            prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		JobInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_info",
			Help:      "Provider and plan of the job (always 1)",
		}, []string{"provider", "plan"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27 minutes
		}, []string{"stage"}),
		ChunksPrepared: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_prepared_total",
			Help:      "Number of chunks prepared for dispatch",
		}),
		ChunkSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_size_bytes",
			Help:      "Size of dispatched chunks in bytes",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 2, 10), // 64KB to ~32MB
		}),
		CompressionRatio: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "compression_ratio",
			Help:      "Original size divided by compressed size",
		}),
		Fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Number of times temporal chunking fell back to compression",
		}),
		FragmentsTranscribed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_transcribed_total",
			Help:      "Number of chunks transcribed by the provider",
		}),
		FragmentsResumed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_resumed_total",
			Help:      "Number of fragments taken from a checkpoint",
		}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_retries_total",
			Help:      "Number of requests retried after a rate limit",
		}),
		Tokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by the provider",
		}),
		OverlapTrims: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlap_trims_total",
			Help:      "Number of chunk boundaries where duplicated speech was removed",
		}),
		Cancelled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_cancelled",
			Help:      "1 if the job was cancelled before completion",
		}),
	}
}

// Registry returns the registry holding the job metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// RecordJob sets the job info labels.
func (m *Metrics) RecordJob(provider, plan string) {
	if m == nil {
		return
	}
	m.JobInfo.WithLabelValues(provider, plan).Set(1)
}

// ObserveStage records the time spent in stage since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordChunk counts one prepared chunk of size bytes.
func (m *Metrics) RecordChunk(size int64) {
	if m == nil {
		return
	}
	m.ChunksPrepared.Inc()
	m.ChunkSize.Observe(float64(size))
}

// SetCompressionRatio records the compressor's ratio.
func (m *Metrics) SetCompressionRatio(ratio float64) {
	if m == nil {
		return
	}
	m.CompressionRatio.Set(ratio)
}

// RecordFallback counts a temporal chunking fallback.
func (m *Metrics) RecordFallback() {
	if m == nil {
		return
	}
	m.Fallbacks.Inc()
}

// RecordFragment counts a transcribed fragment and its tokens.
func (m *Metrics) RecordFragment(tokens int) {
	if m == nil {
		return
	}
	m.FragmentsTranscribed.Inc()
	m.Tokens.Add(float64(tokens))
}

// RecordResumed counts fragments loaded from a checkpoint.
func (m *Metrics) RecordResumed(n int) {
	if m == nil {
		return
	}
	m.FragmentsResumed.Add(float64(n))
}

// RecordRetry counts a rate-limit retry.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

// RecordTrims counts accepted overlap trims.
func (m *Metrics) RecordTrims(n int) {
	if m == nil {
		return
	}
	m.OverlapTrims.Add(float64(n))
}

// SetCancelled marks the job as cancelled.
func (m *Metrics) SetCancelled(cancelled bool) {
	if m == nil {
		return
	}
	v := 0.0
	if cancelled {
		v = 1
	}
	m.Cancelled.Set(v)
}

// WriteTextfile writes all metrics to path in the textfile collector
// format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.reg)
}
