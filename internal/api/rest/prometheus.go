package rest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfe",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rfe",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"method", "route"},
	)

	forecastsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rfe",
			Subsystem: "forecast",
			Name:      "served_total",
			Help:      "Material forecasts returned to API clients",
		},
		[]string{"domain", "risk_level"},
	)

	historyDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rfe",
			Subsystem: "forecast",
			Name:      "history_unavailable_total",
			Help:      "Forecast responses computed without history because the store failed",
		},
	)
)
