// Package loader loads the data of tile nodes in two phases: the model is
// assembled on a worker and merged into the node on the frame dispatcher.
package loader

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tilestream/engine"
	"github.com/aukilabs/tilestream/jobs"
	"github.com/aukilabs/tilestream/progress"
	"github.com/aukilabs/tilestream/scene"
	"github.com/aukilabs/tilestream/tile"
	"github.com/google/uuid"
)

// LoadTileData is a single use request loading the data of a tile node. It
// only keeps a weak reference to the node, which can be evicted at any time.
type LoadTileData struct {
	// The request id, used in logs.
	ID string

	ref     *scene.Ref
	key     tile.Address
	context engine.Context
	frame   engine.MapFrame
	filter  engine.LayerFilter
	idle    atomic.Bool

	// Written by Invoke and read by Apply, which the job queue orders.
	model *engine.DataModel
}

// New returns a request loading the layers selected by the filter into the
// node, from the current frame of the context map.
func New(node *scene.TileNode, ctx engine.Context, filter engine.LayerFilter) *LoadTileData {
	return &LoadTileData{
		ID:      uuid.New().String(),
		ref:     node.Ref(),
		key:     node.Key(),
		context: ctx,
		frame:   ctx.Map().Frame(),
		filter:  filter,
	}
}

// Key returns the tile the request loads.
func (l *LoadTileData) Key() tile.Address {
	return l.key
}

// IsCanceled reports whether the request was set idle or canceled.
func (l *LoadTileData) IsCanceled() bool {
	return l.idle.Load()
}

// SetIdle sets the idle state of the request. An idle request stops fetching
// as soon as possible.
func (l *LoadTileData) SetIdle(v bool) {
	l.idle.Store(v)
}

func (l *LoadTileData) Cancel() {
	l.SetIdle(true)
}

// Invoke assembles the data model of the tile. It does nothing when the node
// was evicted or the map changed since the request was created.
func (l *LoadTileData) Invoke(ctx context.Context) {
	_, release, ok := l.ref.Lock()
	release()

	if !ok || !l.frame.IsValid() {
		logs.WithTag("request_id", l.ID).
			WithTag("tile", l.key.String()).
			Debug("tile load skipped")
		instrumentRequest(outcomeSkipped)
		return
	}

	start := time.Now()
	l.model = l.context.Engine().CreateTileModel(ctx, l.frame, l.key, l.filter, progress.Func(l.IsCanceled))
	instrumentInvoke(start)
}

// Apply merges the model into the node, clears its dirty flag and notifies
// the terrain. The model is dropped when the node was evicted in the
// meantime.
func (l *LoadTileData) Apply(stamp jobs.FrameStamp) {
	model := l.model
	l.model = nil

	if !model.Valid() {
		if l.IsCanceled() {
			instrumentRequest(outcomeCanceled)
		} else if model != nil {
			instrumentRequest(outcomeEmpty)
		}
		return
	}

	node, release, ok := l.ref.Lock()
	if !ok {
		logs.WithTag("request_id", l.ID).
			WithTag("tile", l.key.String()).
			WithTag("frame", stamp).
			Debug("tile evicted while loading")
		instrumentRequest(outcomeDropped)
		return
	}
	defer release()

	node.Merge(model, l.context.RenderBindings())
	node.SetDirty(false)
	l.context.Engine().Terrain().NotifyTileAdded(l.key, node.SurfaceNode())
	instrumentRequest(outcomeApplied)
}
