package cache

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	layerLabel   = "layer"
	resultLabel  = "result"
	outcomeLabel = "outcome"

	lookupHit    = "hit"
	lookupMiss   = "miss"
	lookupBypass = "bypass"
	lookupStale  = "stale"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups",
		Help: "The number of tile cache lookups by layer and result.",
	}, []string{
		layerLabel,
		resultLabel,
	})

	cacheWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_writes",
		Help: "The number of tile cache writes by layer and outcome.",
	}, []string{
		layerLabel,
		outcomeLabel,
	})
)

func instrumentLookup(layer, result string) {
	cacheLookups.WithLabelValues(layer, result).Inc()
}

func instrumentWrite(layer string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = errors.Type(err)
	}
	cacheWrites.WithLabelValues(layer, outcome).Inc()
}
