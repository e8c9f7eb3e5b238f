// Package engine assembles tile data models from the layers of a map and
// notifies listeners of the tiles added to the terrain.
package engine

import (
	"context"
	"image"

	"github.com/aukilabs/tilestream/progress"
	"github.com/aukilabs/tilestream/tile"
)

// Engine builds the data models of tiles.
type Engine interface {
	// CreateTileModel assembles the data of the layers selected by the filter
	// for the given tile. It never returns nil; the model is invalid when no
	// data could be produced.
	CreateTileModel(ctx context.Context, frame MapFrame, key tile.Address, filter LayerFilter, m progress.Monitor) *DataModel

	Terrain() *Terrain
}

// Context is the environment a tile is loaded in.
type Context interface {
	Engine() Engine
	RenderBindings() RenderBindings
	SelectionInfo() SelectionInfo
	Map() *Map
}

// LayerData is the image produced by one layer for a tile.
type LayerData struct {
	Name  string
	Image image.Image
}

// DataModel is the assembled payload of a tile, waiting to be merged into its
// node.
type DataModel struct {
	Key    tile.Address
	Layers []LayerData

	revision uint64
	canceled bool
}

// Valid reports whether the model carries data and was not canceled while
// being assembled.
func (m *DataModel) Valid() bool {
	return m != nil && !m.canceled && len(m.Layers) != 0
}

// Revision returns the map revision the model was built from.
func (m *DataModel) Revision() uint64 {
	return m.revision
}

// RenderBinding assigns a layer to a sampler of the renderer.
type RenderBinding struct {
	Layer   string
	Sampler string
}

// RenderBindings lists the layers a surface renders. No bindings means every
// layer is rendered under its own name.
type RenderBindings []RenderBinding

// Sampler returns the sampler a layer is bound to.
func (b RenderBindings) Sampler(layer string) (string, bool) {
	if len(b) == 0 {
		return layer, true
	}
	for _, rb := range b {
		if rb.Layer == layer {
			return rb.Sampler, true
		}
	}
	return "", false
}

// SelectionInfo is the range of levels the terrain pages in.
type SelectionInfo struct {
	MinLevel uint32
	MaxLevel uint32
}

// Contains reports whether tiles of the level can be selected.
func (s SelectionInfo) Contains(level uint32) bool {
	return level >= s.MinLevel && level <= s.MaxLevel
}

// Surface is the renderable state of a tile node.
type Surface interface {
	Key() tile.Address
	Layer(sampler string) (image.Image, bool)
	Samplers() []string
}

// LayerFilter selects layers by name. An empty filter selects every layer.
type LayerFilter struct {
	Names []string
}

// Accept reports whether the named layer is selected.
func (f LayerFilter) Accept(name string) bool {
	if len(f.Names) == 0 {
		return true
	}
	for _, n := range f.Names {
		if n == name {
			return true
		}
	}
	return false
}

type mapContext struct {
	engine    Engine
	m         *Map
	bindings  RenderBindings
	selection SelectionInfo
}

// NewContext returns a context loading the tiles of a map with the given
// engine.
func NewContext(e Engine, m *Map, bindings RenderBindings, selection SelectionInfo) Context {
	return &mapContext{
		engine:    e,
		m:         m,
		bindings:  bindings,
		selection: selection,
	}
}

func (c *mapContext) Engine() Engine                 { return c.engine }
func (c *mapContext) Map() *Map                      { return c.m }
func (c *mapContext) RenderBindings() RenderBindings { return c.bindings }
func (c *mapContext) SelectionInfo() SelectionInfo   { return c.selection }
