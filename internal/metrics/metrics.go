// Package metrics exposes ingest counters over Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trailscope/internal/logger"
)

var (
	// RecordsConsumed counts raw records popped from the queue.
	RecordsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailscope_records_consumed_total",
		Help: "Raw audit records consumed from the input queue.",
	})

	// RecordsNormalized counts records that normalized cleanly.
	RecordsNormalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailscope_records_normalized_total",
		Help: "Records normalized into canonical events.",
	})

	// RecordsMalformed counts records dropped during normalization.
	RecordsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailscope_records_malformed_total",
		Help: "Records skipped because they could not be normalized.",
	})

	// EventsSpooled counts canonical events written to spool segments.
	EventsSpooled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailscope_events_spooled_total",
		Help: "Canonical events written to spool segments.",
	})

	// SegmentsRotated counts finished spool segments.
	SegmentsRotated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailscope_spool_segments_total",
		Help: "Spool segments rotated to completion.",
	})
)

// Serve starts the metrics HTTP listener on addr. It returns immediately;
// listener failures are logged, not fatal, since metrics are best-effort.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Infof("Metrics listener on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("Metrics listener failed: %v", err)
		}
	}()
}
