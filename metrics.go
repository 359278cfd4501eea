package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/towerops-app/poolserver/pool"
)

const metricsNamespace = "poolserver"

// statsSource is the part of *pool.ThreadPool the admin surface reads.
type statsSource interface {
	Stats() pool.Stats
}

// newRegistry returns a registry exposing pool counters plus the standard Go
// and process collectors. Values are read from src at scrape time.
func newRegistry(src statsSource) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gauge := func(name, help string, fn func(pool.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return fn(src.Stats()) })
	}
	counter := func(name, help string, fn func(pool.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(fn(src.Stats())) })
	}

	reg.MustRegister(
		gauge("workers", "Number of worker goroutines, fixed at startup.",
			func(s pool.Stats) float64 { return float64(s.Size) }),
		gauge("workers_busy", "Workers currently executing a job.",
			func(s pool.Stats) float64 { return float64(s.Busy) }),
		gauge("jobs_queued", "Jobs waiting for an idle worker.",
			func(s pool.Stats) float64 { return float64(s.Queued) }),
		gauge("state", "Pool lifecycle state (1 running, 2 shutting down, 3 terminated).",
			func(s pool.Stats) float64 { return float64(s.State) }),
		counter("jobs_submitted_total", "Jobs accepted by the pool.",
			func(s pool.Stats) uint64 { return s.Submitted }),
		counter("jobs_completed_total", "Jobs that ran to completion.",
			func(s pool.Stats) uint64 { return s.Completed }),
		counter("jobs_faulted_total", "Jobs that panicked on a worker.",
			func(s pool.Stats) uint64 { return s.Faulted }),
		counter("jobs_rejected_total", "Submissions rejected after shutdown began.",
			func(s pool.Stats) uint64 { return s.Rejected }),
	)
	return reg
}

// statsStruct converts s into a protobuf Struct for the /stats endpoint.
func statsStruct(s pool.Stats) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"size":      s.Size,
		"state":     s.State.String(),
		"submitted": s.Submitted,
		"completed": s.Completed,
		"faulted":   s.Faulted,
		"rejected":  s.Rejected,
		"queued":    s.Queued,
		"busy":      s.Busy,
	})
}
