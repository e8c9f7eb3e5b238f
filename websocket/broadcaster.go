// Package websocket streams terrain events to WebSocket clients.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tilestream/engine"
	"github.com/aukilabs/tilestream/tile"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize = 64

	// EventTileAdded is the type of the event sent when a tile is merged into
	// the terrain.
	EventTileAdded = "tile_added"

	// ErrTypeSend is the error type of a message that could not be sent.
	ErrTypeSend = "ws_send"
)

// TileEvent is the JSON message sent to clients.
type TileEvent struct {
	Type     string    `json:"type"`
	Tile     string    `json:"tile"`
	Level    uint32    `json:"level"`
	X        uint32    `json:"x"`
	Y        uint32    `json:"y"`
	SRS      string    `json:"srs,omitempty"`
	Samplers []string  `json:"samplers,omitempty"`
	Time     time.Time `json:"time"`
}

// Broadcaster is a terrain listener sending an event to every connected
// client for each added tile. Slow clients miss events rather than delaying
// the frame dispatcher.
type Broadcaster struct {
	mutex   sync.RWMutex
	clients map[string]chan []byte
	closed  bool
}

// TileAdded implements engine.TileListener.
func (b *Broadcaster) TileAdded(key tile.Address, surface engine.Surface) {
	e := TileEvent{
		Type:  EventTileAdded,
		Tile:  key.String(),
		Level: key.Level,
		X:     key.X,
		Y:     key.Y,
		Time:  time.Now().UTC(),
	}
	if key.Profile != nil {
		e.SRS = key.Profile.SRS
	}
	if surface != nil {
		e.Samplers = surface.Samplers()
	}

	msg, err := json.Marshal(e)
	if err != nil {
		logs.Warn(errors.New("encoding tile event failed").
			WithTag("tile", e.Tile).
			Wrap(err))
		return
	}

	b.mutex.RLock()
	defer b.mutex.RUnlock()

	for id, send := range b.clients {
		select {
		case send <- msg:
		default:
			instrumentDrop()
			logs.WithTag("client_id", id).
				WithTag("tile", e.Tile).
				Debug("client too slow, tile event dropped")
		}
	}
}

// Handler returns a WebSocket handler subscribing connections to the events.
func (b *Broadcaster) Handler(ctx context.Context) websocket.Handler {
	return func(conn *websocket.Conn) {
		defer conn.Close()
		b.Handle(ctx, conn)
	}
}

// Handle sends events to the connection until the client disconnects, the
// context is done or the broadcaster is closed.
func (b *Broadcaster) Handle(ctx context.Context, conn *websocket.Conn) {
	id := uuid.New().String()
	send, ok := b.add(id)
	if !ok {
		return
	}
	defer b.remove(id)

	logs.WithTag("client_id", id).Info("new client is connected")
	instrumentConnect()
	defer instrumentDisconnect()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer cancel()

		// Clients are not expected to talk. Reading detects disconnections.
		var msg string
		for {
			if err := websocket.Message.Receive(conn, &msg); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logs.WithTag("client_id", id).Info("client is disconnected")
			return

		case msg, ok := <-send:
			if !ok {
				return
			}

			if err := websocket.Message.Send(conn, string(msg)); err != nil {
				err = errors.New("sending tile event failed").
					WithType(ErrTypeSend).
					Wrap(err)
				instrumentSend(0, err)
				logs.WithTag("client_id", id).Debug(err)
				return
			}
			instrumentSend(len(msg), nil)
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.clients)
}

// Close disconnects every client. Later connections are refused.
func (b *Broadcaster) Close() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.closed = true
	for id, send := range b.clients {
		delete(b.clients, id)
		close(send)
	}
}

func (b *Broadcaster) add(id string) (chan []byte, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return nil, false
	}
	if b.clients == nil {
		b.clients = make(map[string]chan []byte)
	}

	send := make(chan []byte, sendChanSize)
	b.clients[id] = send
	return send, true
}

func (b *Broadcaster) remove(id string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if send, ok := b.clients[id]; ok {
		delete(b.clients, id)
		close(send)
	}
}
