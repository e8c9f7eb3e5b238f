package websocket

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
)

var (
	wsConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "The number of connected clients.",
	})

	wsSentMsgs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_sent_msgs",
		Help: "The number of messages sent to WebSocket connections.",
	})

	wsSentBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_sent_bytes",
		Help: "The number of bytes sent to WebSocket connections.",
	})

	wsSendError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_send_errors",
		Help: "The errors that occured while sending a websocket message.",
	}, []string{
		errTypeLabel,
	})

	wsDroppedMsgs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_dropped_msgs",
		Help: "The number of messages dropped for slow clients.",
	})
)

func instrumentConnect() {
	wsConnectedClients.Inc()
}

func instrumentDisconnect() {
	wsConnectedClients.Dec()
}

func instrumentSend(n int, err error) {
	if err != nil {
		wsSendError.
			With(prometheus.Labels{errTypeLabel: errors.Type(err)}).
			Inc()
		return
	}

	wsSentMsgs.Inc()
	wsSentBytes.Add(float64(n))
}

func instrumentDrop() {
	wsDroppedMsgs.Inc()
}
