package scene

import (
	"image"
	"sync"
	"testing"

	"github.com/aukilabs/tilestream/engine"
	"github.com/aukilabs/tilestream/tile"
	"github.com/stretchr/testify/require"
)

var _ engine.Surface = (*Surface)(nil)

func key(t *testing.T, level, x, y uint32) tile.Address {
	t.Helper()

	a, err := tile.NewAddress(level, x, y, tile.GlobalGeodetic())
	require.NoError(t, err)
	return a
}

func model(k tile.Address, layers ...string) *engine.DataModel {
	m := &engine.DataModel{Key: k}
	for _, name := range layers {
		m.Layers = append(m.Layers, engine.LayerData{
			Name:  name,
			Image: image.NewNRGBA(image.Rect(0, 0, 1, 1)),
		})
	}
	return m
}

func TestTileNode(t *testing.T) {
	t.Run("new node is dirty", func(t *testing.T) {
		n := NewTileNode(key(t, 2, 1, 1))
		require.True(t, n.Dirty())
		require.Equal(t, "2/1/1", n.Key().String())

		n.SetDirty(false)
		require.False(t, n.Dirty())
	})

	t.Run("merge", func(t *testing.T) {
		k := key(t, 2, 1, 1)
		n := NewTileNode(k)

		n.Merge(model(k, "imagery", "labels"), nil)
		require.Equal(t, []string{"imagery", "labels"}, n.SurfaceNode().Samplers())

		_, ok := n.Layer("imagery")
		require.True(t, ok)
	})

	t.Run("merge with bindings", func(t *testing.T) {
		k := key(t, 2, 1, 1)
		n := NewTileNode(k)

		n.Merge(model(k, "imagery", "labels"), engine.RenderBindings{
			{Layer: "imagery", Sampler: "color"},
		})
		require.Equal(t, []string{"color"}, n.SurfaceNode().Samplers())
	})

	t.Run("merge invalid model", func(t *testing.T) {
		k := key(t, 2, 1, 1)
		n := NewTileNode(k)

		n.Merge(model(k), nil)
		n.Merge(nil, nil)
		require.Empty(t, n.SurfaceNode().Samplers())
	})
}

func TestRef(t *testing.T) {
	t.Run("lock", func(t *testing.T) {
		n := NewTileNode(key(t, 0, 0, 0))
		r := n.Ref()

		locked, release, ok := r.Lock()
		require.True(t, ok)
		require.Same(t, n, locked)
		release()
		release()
		require.False(t, n.Released())
	})

	t.Run("lock after eviction", func(t *testing.T) {
		n := NewTileNode(key(t, 0, 0, 0))
		n.Merge(model(n.Key(), "imagery"), nil)
		r := n.Ref()

		n.Evict()
		require.True(t, n.Evicted())
		require.True(t, n.Released())
		require.Empty(t, n.SurfaceNode().Samplers())

		locked, release, ok := r.Lock()
		require.False(t, ok)
		require.Nil(t, locked)
		release()
		require.Equal(t, "0/0/0", r.Key().String())
	})

	t.Run("eviction while locked", func(t *testing.T) {
		n := NewTileNode(key(t, 0, 0, 0))
		n.Merge(model(n.Key(), "imagery"), nil)

		_, release, ok := n.Ref().Lock()
		require.True(t, ok)

		n.Evict()
		require.False(t, n.Released())
		require.Equal(t, []string{"imagery"}, n.SurfaceNode().Samplers())

		_, _, ok = n.Ref().Lock()
		require.False(t, ok)

		release()
		require.True(t, n.Released())
		require.Empty(t, n.SurfaceNode().Samplers())
	})

	t.Run("nil ref", func(t *testing.T) {
		var r *Ref
		_, release, ok := r.Lock()
		require.False(t, ok)
		release()
	})

	t.Run("concurrent locks", func(t *testing.T) {
		n := NewTileNode(key(t, 0, 0, 0))
		r := n.Ref()

		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, release, ok := r.Lock(); ok {
					release()
				}
			}()
		}
		n.Evict()
		wg.Wait()
		require.True(t, n.Released())
	})
}

func TestRegistry(t *testing.T) {
	var r Registry
	k := key(t, 3, 2, 1)

	n, created := r.GetOrCreate(k)
	require.True(t, created)
	require.Equal(t, 1, r.Len())

	again, created := r.GetOrCreate(k)
	require.False(t, created)
	require.Same(t, n, again)

	got, ok := r.Get(k)
	require.True(t, ok)
	require.Same(t, n, got)

	mercator, err := tile.NewAddress(3, 2, 1, tile.SphericalMercator())
	require.NoError(t, err)
	_, created = r.GetOrCreate(mercator)
	require.True(t, created)
	require.Equal(t, 2, r.Len())

	require.True(t, r.Evict(k))
	require.False(t, r.Evict(k))
	require.True(t, n.Evicted())
	_, ok = r.Get(k)
	require.False(t, ok)

	r.EvictAll()
	require.Zero(t, r.Len())
}
