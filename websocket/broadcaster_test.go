package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aukilabs/tilestream/engine"
	"github.com/aukilabs/tilestream/scene"
	"github.com/aukilabs/tilestream/tile"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

var _ engine.TileListener = (*Broadcaster)(nil)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(server.URL, "http"), "", "http://localhost/")
	require.NoError(t, err)
	return conn
}

func TestBroadcaster(t *testing.T) {
	key, err := tile.NewAddress(3, 4, 2, tile.GlobalGeodetic())
	require.NoError(t, err)

	node := scene.NewTileNode(key)
	node.Merge(&engine.DataModel{
		Key:    key,
		Layers: []engine.LayerData{{Name: "imagery"}},
	}, nil)

	t.Run("sends tile events", func(t *testing.T) {
		var b Broadcaster
		server := httptest.NewServer(b.Handler(context.Background()))
		defer server.Close()

		conn := dial(t, server)
		defer conn.Close()

		require.Eventually(t, func() bool {
			return b.ClientCount() == 1
		}, time.Second, time.Millisecond)

		b.TileAdded(key, node.SurfaceNode())

		var msg string
		require.NoError(t, websocket.Message.Receive(conn, &msg))

		var e TileEvent
		require.NoError(t, json.Unmarshal([]byte(msg), &e))
		require.Equal(t, EventTileAdded, e.Type)
		require.Equal(t, "3/4/2", e.Tile)
		require.Equal(t, uint32(4), e.X)
		require.Equal(t, tile.SRSGeodetic, e.SRS)
		require.Equal(t, []string{"imagery"}, e.Samplers)
	})

	t.Run("client disconnects", func(t *testing.T) {
		var b Broadcaster
		server := httptest.NewServer(b.Handler(context.Background()))
		defer server.Close()

		conn := dial(t, server)
		require.Eventually(t, func() bool {
			return b.ClientCount() == 1
		}, time.Second, time.Millisecond)

		conn.Close()
		require.Eventually(t, func() bool {
			return b.ClientCount() == 0
		}, time.Second, time.Millisecond)

		require.NotPanics(t, func() { b.TileAdded(key, nil) })
	})

	t.Run("close", func(t *testing.T) {
		var b Broadcaster
		server := httptest.NewServer(b.Handler(context.Background()))
		defer server.Close()

		conn := dial(t, server)
		defer conn.Close()
		require.Eventually(t, func() bool {
			return b.ClientCount() == 1
		}, time.Second, time.Millisecond)

		b.Close()
		require.Zero(t, b.ClientCount())

		var msg string
		require.Error(t, websocket.Message.Receive(conn, &msg))
	})

	t.Run("slow client", func(t *testing.T) {
		var b Broadcaster
		send, ok := b.add("slow")
		require.True(t, ok)

		for i := 0; i < sendChanSize+10; i++ {
			b.TileAdded(key, nil)
		}
		require.Len(t, send, sendChanSize)
	})
}
