package engine

import (
	"context"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilestream/progress"
	"github.com/aukilabs/tilestream/tile"
	"github.com/aukilabs/tilestream/tilesource"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	calls   int32
	noData  bool
	onImage func()
}

func (s *stubSource) Initialize(ctx context.Context) error { return nil }

func (s *stubSource) CreateImage(ctx context.Context, a tile.Address, m progress.Monitor) (image.Image, bool) {
	atomic.AddInt32(&s.calls, 1)
	if s.onImage != nil {
		s.onImage()
	}
	if s.noData {
		return nil, false
	}
	return image.NewNRGBA(image.Rect(0, 0, 2, 2)), true
}

func (s *stubSource) Profile() *tile.Profile         { return tile.GlobalGeodetic() }
func (s *stubSource) DataExtents() []tile.DataExtent { return nil }
func (s *stubSource) PixelsPerTile() uint32          { return 2 }
func (s *stubSource) Extension() string              { return "png" }
func (s *stubSource) LastModified() time.Time        { return time.Time{} }

func (s *stubSource) CachePolicyHint(*tile.Profile) tilesource.CachePolicy {
	return tilesource.CachePolicyDefault
}

func key(t *testing.T) tile.Address {
	t.Helper()

	a, err := tile.NewAddress(1, 2, 1, tile.GlobalGeodetic())
	require.NoError(t, err)
	return a
}

func TestMap(t *testing.T) {
	t.Run("add layer", func(t *testing.T) {
		m := NewMap()
		require.NoError(t, m.AddLayer(Layer{Name: "imagery", Source: &stubSource{}}))
		require.Equal(t, uint64(2), m.Revision())

		err := m.AddLayer(Layer{Name: "imagery", Source: &stubSource{}})
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeLayer))

		err = m.AddLayer(Layer{Name: "streets"})
		require.Error(t, err)

		_, ok := m.Layer("imagery")
		require.True(t, ok)
		_, ok = m.Layer("streets")
		require.False(t, ok)
	})

	t.Run("frame kept through layer changes", func(t *testing.T) {
		m := NewMap(
			Layer{Name: "imagery", Source: &stubSource{}},
			Layer{Name: "labels", Source: &stubSource{}},
		)

		f := m.Frame()
		require.True(t, f.IsValid())
		require.Len(t, f.Layers(), 2)

		require.True(t, m.RemoveLayer("labels"))
		require.False(t, m.RemoveLayer("labels"))
		require.True(t, f.IsValid())
		require.Len(t, f.Layers(), 2)
		require.Len(t, m.Layers(), 1)
		require.Less(t, f.Revision(), m.Revision())
		require.Equal(t, m.Revision(), m.Frame().Revision())
	})

	t.Run("frame invalidated by close", func(t *testing.T) {
		m := NewMap()
		f := m.Frame()
		m.Close()
		require.False(t, f.IsValid())
	})

	t.Run("zero frame", func(t *testing.T) {
		var f MapFrame
		require.False(t, f.IsValid())
	})
}

func TestLayerFilter(t *testing.T) {
	require.True(t, LayerFilter{}.Accept("imagery"))
	require.True(t, LayerFilter{Names: []string{"imagery"}}.Accept("imagery"))
	require.False(t, LayerFilter{Names: []string{"imagery"}}.Accept("labels"))
}

func TestRenderBindings(t *testing.T) {
	sampler, ok := RenderBindings(nil).Sampler("imagery")
	require.True(t, ok)
	require.Equal(t, "imagery", sampler)

	b := RenderBindings{{Layer: "imagery", Sampler: "color"}}
	sampler, ok = b.Sampler("imagery")
	require.True(t, ok)
	require.Equal(t, "color", sampler)

	_, ok = b.Sampler("labels")
	require.False(t, ok)
}

func TestTileModelFactory(t *testing.T) {
	ctx := context.Background()

	t.Run("selected layers", func(t *testing.T) {
		imagery := &stubSource{}
		labels := &stubSource{}
		m := NewMap(
			Layer{Name: "imagery", Source: imagery},
			Layer{Name: "labels", Source: labels},
		)

		f := NewTileModelFactory(nil)
		model := f.CreateTileModel(ctx, m.Frame(), key(t), LayerFilter{Names: []string{"imagery"}}, progress.Never)
		require.True(t, model.Valid())
		require.Len(t, model.Layers, 1)
		require.Equal(t, "imagery", model.Layers[0].Name)
		require.True(t, model.Key.Equal(key(t)))
		require.Equal(t, m.Revision(), model.Revision())
		require.Zero(t, atomic.LoadInt32(&labels.calls))
	})

	t.Run("no data", func(t *testing.T) {
		m := NewMap(Layer{Name: "imagery", Source: &stubSource{noData: true}})

		model := NewTileModelFactory(nil).CreateTileModel(ctx, m.Frame(), key(t), LayerFilter{}, progress.Never)
		require.NotNil(t, model)
		require.False(t, model.Valid())
	})

	t.Run("canceled", func(t *testing.T) {
		var canceled atomic.Bool
		monitor := progress.Func(canceled.Load)

		first := &stubSource{onImage: func() { canceled.Store(true) }}
		second := &stubSource{}
		m := NewMap(
			Layer{Name: "imagery", Source: first},
			Layer{Name: "labels", Source: second},
		)

		model := NewTileModelFactory(nil).CreateTileModel(ctx, m.Frame(), key(t), LayerFilter{}, monitor)
		require.False(t, model.Valid())
		require.Len(t, model.Layers, 1)
		require.Zero(t, atomic.LoadInt32(&second.calls))
	})

	t.Run("nil model", func(t *testing.T) {
		var model *DataModel
		require.False(t, model.Valid())
	})
}

func TestTerrain(t *testing.T) {
	var terrain Terrain
	var added []string

	remove := terrain.AddListener(TileListenerFunc(func(key tile.Address, surface Surface) {
		added = append(added, key.String())
	}))
	require.Equal(t, 1, terrain.ListenerCount())

	terrain.NotifyTileAdded(key(t), nil)
	require.Equal(t, []string{"1/2/1"}, added)

	remove()
	remove()
	require.Zero(t, terrain.ListenerCount())

	terrain.NotifyTileAdded(key(t), nil)
	require.Len(t, added, 1)
}

func TestIDGenerator(t *testing.T) {
	var g idGenerator
	require.Equal(t, uint32(1), g.New())
	require.Equal(t, uint32(2), g.New())

	g.Reuse(1)
	require.Equal(t, uint32(1), g.New())
	require.Equal(t, uint32(3), g.New())
}

func TestContext(t *testing.T) {
	m := NewMap()
	e := NewTileModelFactory(nil)
	bindings := RenderBindings{{Layer: "imagery", Sampler: "color"}}
	selection := SelectionInfo{MinLevel: 0, MaxLevel: 18}

	c := NewContext(e, m, bindings, selection)
	require.Same(t, m, c.Map())
	require.Equal(t, Engine(e), c.Engine())
	require.Equal(t, bindings, c.RenderBindings())
	require.True(t, c.SelectionInfo().Contains(18))
	require.False(t, c.SelectionInfo().Contains(19))
}
