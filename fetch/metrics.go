package fetch

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	sourceLabel  = "source"
	outcomeLabel = "outcome"
	formatLabel  = "format"

	outcomeOK = "ok"
)

var (
	fetchReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_reads",
		Help: "The number of uri reads by source and outcome.",
	}, []string{
		sourceLabel,
		outcomeLabel,
	})

	fetchReadBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_read_bytes",
		Help: "The number of bytes read from uris.",
	}, []string{
		sourceLabel,
	})

	fetchReadLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "fetch_read_latency",
		Help: "The time to read a uri.",
	}, []string{
		sourceLabel,
	})

	fetchDecodedImages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_decoded_images",
		Help: "The number of decoded images by format.",
	}, []string{
		formatLabel,
	})
)

func instrumentRead(remote bool, start time.Time, n int, err error) {
	source := "local"
	if remote {
		source = "remote"
	}

	outcome := outcomeOK
	if err != nil {
		outcome = errors.Type(err)
	}

	fetchReads.With(prometheus.Labels{
		sourceLabel:  source,
		outcomeLabel: outcome,
	}).Inc()

	fetchReadLatency.With(prometheus.Labels{
		sourceLabel: source,
	}).Observe(time.Since(start).Seconds())

	if n != 0 {
		fetchReadBytes.With(prometheus.Labels{
			sourceLabel: source,
		}).Add(float64(n))
	}
}

func instrumentDecode(format string) {
	fetchDecodedImages.With(prometheus.Labels{
		formatLabel: format,
	}).Inc()
}
