package scene

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sceneNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scene_nodes",
		Help: "The number of live tile nodes.",
	})

	sceneEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scene_evictions",
		Help: "The number of evicted tile nodes.",
	})

	sceneReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scene_releases",
		Help: "The number of tile nodes whose resources were released.",
	})
)

func instrumentNodeGauge(n int) {
	sceneNodes.Set(float64(n))
}

func instrumentEviction() {
	sceneEvictions.Inc()
}

func instrumentRelease() {
	sceneReleases.Inc()
}
