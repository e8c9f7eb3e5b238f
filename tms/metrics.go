package tms

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultLabel  = "result"
	outcomeLabel = "outcome"

	resultImage       = "image"
	resultPlaceholder = "placeholder"
	resultNoData      = "no_data"
)

var (
	tmsInitializations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tms_initializations",
		Help: "The number of tms source initializations by outcome.",
	}, []string{
		outcomeLabel,
	})

	tmsImages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tms_images",
		Help: "The number of tms image requests by result.",
	}, []string{
		resultLabel,
	})
)

func instrumentInitialize(err error) {
	outcome := "ok"
	if err != nil {
		outcome = errors.Type(err)
	}
	tmsInitializations.WithLabelValues(outcome).Inc()
}

func instrumentCreateImage(result string) {
	tmsImages.WithLabelValues(result).Inc()
}
