package routing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	forwardQuotes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amber_routing_forward_quotes_total",
		Help: "Forward quote requests issued to the routing oracle",
	})

	reverseAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amber_routing_reverse_attempts_total",
		Help: "Reverse (exact amount out) route resolutions attempted",
	})

	reverseFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amber_routing_reverse_fallbacks_total",
		Help: "Reverse resolutions that fell back to the binary search",
	})

	searchIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "amber_routing_search_iterations",
		Help:    "Iterations used by the binary search before returning",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})
)
