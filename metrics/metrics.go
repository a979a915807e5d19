// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoanStatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microfin_loan_status_transitions_total",
			Help: "Loan status transitions by source and target status.",
		},
		[]string{"from", "to"},
	)

	RepaymentsPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microfin_repayments_posted_total",
			Help: "Repayments recorded, by method.",
		},
		[]string{"method"},
	)

	RepaymentAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "microfin_repayment_amount_total",
			Help: "Sum of recorded repayment amounts.",
		},
	)

	EventPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "microfin_event_publish_errors_total",
			Help: "Domain events that could not be published.",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microfin_http_requests_total",
			Help: "HTTP requests by method, route template and status code.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "microfin_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route template.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)
)

func ObserveTransition(from, to string) {
	LoanStatusTransitions.WithLabelValues(from, to).Inc()
}

func ObserveRepayment(method string, amount float64) {
	RepaymentsPosted.WithLabelValues(method).Inc()
	RepaymentAmount.Add(amount)
}
