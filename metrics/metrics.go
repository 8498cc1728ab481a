// Package metrics exposes optional Prometheus instrumentation for the
// pipeline (SPEC_FULL.md's supplemented "DumpMetrics" feature). This is
// an ambient/operational concern, not part of the inference wire
// protocol, so it is outside spec.md §1's non-goals.
//
// Grounded on the teacher's stats/target_stats.go registration idiom
// (named counters/gauges registered once, updated via small setter
// methods scattered through the hot path) using prometheus/client_golang
// directly rather than the teacher's home-grown stats runner, since this
// client has no periodic flush daemon to house one.
/*
 * Copyright (c) 2024-2026, DeGirum Corp. All rights reserved.
 */
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records per-stream pipeline activity. The nil *Recorder is
// valid and discards everything, so the pipeline can hold one
// unconditionally without a separate no-op type.
type Recorder struct {
	registry    *prometheus.Registry
	submitted   prometheus.Counter
	dispatched  prometheus.Counter
	errors      prometheus.Counter
	outstanding prometheus.Gauge
}

// New creates a Recorder registered against its own registry, so that
// multiple Client instances in the same process don't collide.
func New(namespace string) *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_submitted_total",
			Help: "Total FrameBatches submitted on the stream channel.",
		}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_dispatched_total",
			Help: "Total results dispatched to the result callback.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stream_errors_total",
			Help: "Total transport-level stream failures (read timeout, connection or write failure, undecodable result); server-reported errors and submit queue-wait timeouts are not counted.",
		}),
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "frames_outstanding",
			Help: "Current outstanding_count(): frames submitted but not yet dispatched.",
		}),
	}
	reg.MustRegister(r.submitted, r.dispatched, r.errors, r.outstanding)
	return r
}

// NoOp returns a Recorder-shaped value that discards everything, used
// when the caller doesn't configure metrics. It is simply a nil
// *Recorder; every method below tolerates a nil receiver.
func NoOp() *Recorder { return nil }

func (r *Recorder) IncSubmitted() {
	if r != nil {
		r.submitted.Inc()
	}
}

func (r *Recorder) IncDispatched() {
	if r != nil {
		r.dispatched.Inc()
	}
}

func (r *Recorder) IncErrors() {
	if r != nil {
		r.errors.Inc()
	}
}

func (r *Recorder) SetOutstanding(n int) {
	if r != nil {
		r.outstanding.Set(float64(n))
	}
}

// Handler returns an http.Handler exposing this recorder's metrics in the
// Prometheus text exposition format. Returns nil if r is a no-op.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return nil
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
