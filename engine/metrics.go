package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	layerLabel  = "layer"
	resultLabel = "result"
)

var (
	engineLayerImages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_layer_images",
		Help: "The number of layer image requests by layer and result.",
	}, []string{
		layerLabel,
		resultLabel,
	})

	engineModels = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_tile_models",
		Help: "The number of assembled tile models by result.",
	}, []string{
		resultLabel,
	})

	engineModelLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "engine_tile_model_latency",
		Help: "The time to assemble a tile model.",
	})
)

func instrumentLayer(layer string, ok bool) {
	result := "image"
	if !ok {
		result = "no_data"
	}
	engineLayerImages.WithLabelValues(layer, result).Inc()
}

func instrumentModel(start time.Time, m *DataModel) {
	result := "valid"
	switch {
	case m.canceled:
		result = "canceled"
	case !m.Valid():
		result = "empty"
	}

	engineModels.WithLabelValues(result).Inc()
	engineModelLatency.Observe(time.Since(start).Seconds())
}
