package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tw_refresh_total",
			Help: "Completed refresh rounds",
		},
	)

	indicatorsFetched = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tw_indicators_stored",
			Help: "Indicators stored by the most recent refresh",
		},
	)

	feedErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tw_feed_errors_total",
			Help: "Per-feed errors across all refresh rounds",
		},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tw_http_requests_total",
			Help: "API requests by route and status",
		},
		[]string{"route", "status"},
	)
)
