package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	uploadRequestOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "handwriting",
			Subsystem: "extractor",
			Name:      "upload_requests_total",
			Help:      "The total number of upload requests by response status.",
		},
		[]string{"status"},
	)

	extractionOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "handwriting",
			Subsystem: "extractor",
			Name:      "extractions_total",
			Help:      "The total number of extractions by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	extractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "handwriting",
			Subsystem: "extractor",
			Name:      "extraction_duration_seconds",
			Help:      "Time taken to extract an uploaded image.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(uploadRequestOps)
	prometheus.MustRegister(extractionOps)
	prometheus.MustRegister(extractionDuration)
}

// recordUpload counts an upload request by its HTTP status
func recordUpload(status int) {
	uploadRequestOps.WithLabelValues(strconv.Itoa(status)).Inc()
}

// recordExtraction counts an extraction and observes its duration
func recordExtraction(provider string, success bool, seconds float64) {
	if provider == "" {
		provider = "none"
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	extractionOps.WithLabelValues(provider, outcome).Inc()
	extractionDuration.WithLabelValues(provider).Observe(seconds)
}
