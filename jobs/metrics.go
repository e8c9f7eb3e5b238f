package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobs_submitted",
		Help: "The number of submitted jobs.",
	})

	jobsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobs_discarded",
		Help: "The number of jobs discarded before being invoked.",
	})

	jobsInvoking = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jobs_invoking",
		Help: "The number of jobs being invoked.",
	})

	jobsInvokeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "jobs_invoke_latency",
		Help: "The time to invoke a job.",
	})

	jobsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobs_applied",
		Help: "The number of applied jobs.",
	})

	jobsFrameLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jobs_frame_latency",
		Help:    "The time to apply the jobs of a frame.",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
	})
)

func instrumentSubmit() {
	jobsSubmitted.Inc()
}

func instrumentDiscard() {
	jobsDiscarded.Inc()
}

func instrumentInvokeStart() {
	jobsInvoking.Inc()
}

func instrumentInvokeEnd(start time.Time) {
	jobsInvoking.Dec()
	jobsInvokeLatency.Observe(time.Since(start).Seconds())
}

func instrumentFrame(start time.Time, applied int) {
	jobsApplied.Add(float64(applied))
	jobsFrameLatency.Observe(time.Since(start).Seconds())
}
