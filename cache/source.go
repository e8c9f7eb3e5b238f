package cache

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tilestream/progress"
	"github.com/aukilabs/tilestream/tile"
	"github.com/aukilabs/tilestream/tilesource"
)

// Source is a tile source that reads through a store. Tiles are cached as
// PNG unless the wrapped source hints otherwise for the requested profile.
// Placeholders are never cached and tiles stored before the last
// modification of the wrapped source are fetched again.
type Source struct {
	tilesource.TileSource

	Layer string
	Store *Store
}

// Wrap returns a caching source for the tiles of a layer.
func Wrap(src tilesource.TileSource, layer string, store *Store) *Source {
	return &Source{
		TileSource: src,
		Layer:      layer,
		Store:      store,
	}
}

func (s *Source) CreateImage(ctx context.Context, a tile.Address, m progress.Monitor) (image.Image, bool) {
	if s.Store == nil || s.CachePolicyHint(a.Profile) == tilesource.CachePolicyNoCache {
		instrumentLookup(s.Layer, lookupBypass)
		return s.TileSource.CreateImage(ctx, a, m)
	}

	e, ok, err := s.Store.Get(ctx, KeyOf(s.Layer, a))
	if err != nil {
		logs.WithTag("layer", s.Layer).
			WithTag("tile", a.String()).
			Warn(err)
	}
	stale := ok && e.Created.Before(s.LastModified())
	if stale {
		instrumentLookup(s.Layer, lookupStale)
		ok = false
	}
	if ok {
		img, err := png.Decode(bytes.NewReader(e.Data))
		if err == nil {
			instrumentLookup(s.Layer, lookupHit)
			return img, true
		}
		logs.WithTag("layer", s.Layer).
			WithTag("tile", a.String()).
			Warn(err)
	}
	if !stale {
		instrumentLookup(s.Layer, lookupMiss)
	}

	img, ok := s.TileSource.CreateImage(ctx, a, m)
	if !ok || tilesource.IsPlaceholder(img) {
		return img, ok
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		instrumentWrite(s.Layer, err)
		logs.WithTag("layer", s.Layer).
			WithTag("tile", a.String()).
			Warn(err)
		return img, true
	}

	err = s.Store.Put(ctx, s.Layer, a, buf.Bytes())
	instrumentWrite(s.Layer, err)
	if err != nil {
		logs.WithTag("layer", s.Layer).
			WithTag("tile", a.String()).
			Warn(err)
	}
	return img, true
}
