// Package metrics exposes the worker's Prometheus instrumentation.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts requests popped from the shared queue.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cecibot_requests_total",
		Help: "Requests popped from the shared request queue.",
	}, []string{"medium"})

	// ResponsesTotal counts responses pushed back, by outcome.
	ResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cecibot_responses_total",
		Help: "Responses pushed to per-medium response queues.",
	}, []string{"medium", "kind"})

	// RequestQueueDepth is the sampled length of the shared request queue;
	// there is no admission control beyond per-identity rate limiting, so
	// operators watch this.
	RequestQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cecibot_request_queue_depth",
		Help: "Length of the shared request queue.",
	})
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SampleQueueDepth periodically updates RequestQueueDepth until ctx ends.
func SampleQueueDepth(ctx context.Context, interval time.Duration, depth func(context.Context) (int64, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := depth(ctx); err == nil {
				RequestQueueDepth.Set(float64(n))
			}
		}
	}
}
