package loader

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeLabel = "outcome"

	outcomeSkipped  = "skipped"
	outcomeCanceled = "canceled"
	outcomeEmpty    = "empty"
	outcomeDropped  = "dropped"
	outcomeApplied  = "applied"
)

var (
	loaderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loader_requests",
		Help: "The number of finished tile load requests by outcome.",
	}, []string{
		outcomeLabel,
	})

	loaderInvokeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "loader_invoke_latency",
		Help: "The time to assemble the data of a tile.",
	})
)

func instrumentRequest(outcome string) {
	loaderRequests.WithLabelValues(outcome).Inc()
}

func instrumentInvoke(start time.Time) {
	loaderInvokeLatency.Observe(time.Since(start).Seconds())
}
