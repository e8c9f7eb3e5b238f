package engine

import (
	"context"
	"time"

	"github.com/aukilabs/tilestream/progress"
	"github.com/aukilabs/tilestream/tile"
)

// TileModelFactory is an engine that builds tile models from the images of
// the map layers.
type TileModelFactory struct {
	terrain *Terrain
}

// NewTileModelFactory returns a factory notifying the given terrain. A nil
// terrain is replaced by an empty one.
func NewTileModelFactory(t *Terrain) *TileModelFactory {
	if t == nil {
		t = &Terrain{}
	}
	return &TileModelFactory{terrain: t}
}

func (f *TileModelFactory) Terrain() *Terrain {
	return f.terrain
}

func (f *TileModelFactory) CreateTileModel(ctx context.Context, frame MapFrame, key tile.Address, filter LayerFilter, m progress.Monitor) *DataModel {
	start := time.Now()
	model := &DataModel{
		Key:      key,
		revision: frame.Revision(),
	}

	for _, l := range frame.Layers() {
		if progress.Canceled(m) {
			break
		}
		if !filter.Accept(l.Name) {
			continue
		}

		img, ok := l.Source.CreateImage(ctx, key, m)
		instrumentLayer(l.Name, ok)
		if !ok {
			continue
		}

		model.Layers = append(model.Layers, LayerData{
			Name:  l.Name,
			Image: img,
		})
	}

	model.canceled = progress.Canceled(m)
	instrumentModel(start, model)
	return model
}
