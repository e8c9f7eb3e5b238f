// Package scene holds the live tile nodes of the terrain.
package scene

import (
	"image"
	"sort"
	"sync"

	"github.com/aukilabs/tilestream/engine"
	"github.com/aukilabs/tilestream/tile"
)

// TileNode is the scene node of one tile. It is created dirty, meaning it
// needs data, and is reached by loaders only through a Ref.
type TileNode struct {
	key     tile.Address
	surface *Surface

	mutex    sync.Mutex
	dirty    bool
	refs     int
	evicted  bool
	released bool
	revision uint64
}

// NewTileNode returns a dirty node for the given tile.
func NewTileNode(key tile.Address) *TileNode {
	return &TileNode{
		key:     key,
		surface: newSurface(key),
		dirty:   true,
	}
}

func (n *TileNode) Key() tile.Address {
	return n.key
}

// SurfaceNode returns the renderable state of the node.
func (n *TileNode) SurfaceNode() *Surface {
	return n.surface
}

// Dirty reports whether the node needs data.
func (n *TileNode) Dirty() bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.dirty
}

func (n *TileNode) SetDirty(v bool) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.dirty = v
}

// Revision returns the map revision of the last merged model.
func (n *TileNode) Revision() uint64 {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.revision
}

// Merge binds the layers of the model to the surface. Layers without a render
// binding are ignored.
func (n *TileNode) Merge(model *engine.DataModel, bindings engine.RenderBindings) {
	if !model.Valid() {
		return
	}

	for _, l := range model.Layers {
		sampler, ok := bindings.Sampler(l.Name)
		if !ok {
			continue
		}
		n.surface.set(sampler, l.Image)
	}

	n.mutex.Lock()
	n.revision = model.Revision()
	n.mutex.Unlock()
}

// Layer returns the image bound to a sampler of the surface.
func (n *TileNode) Layer(sampler string) (image.Image, bool) {
	return n.surface.Layer(sampler)
}

// Ref returns a weak reference to the node.
func (n *TileNode) Ref() *Ref {
	return &Ref{node: n}
}

// Evict detaches the node from the scene. Every later Lock on its references
// fails. The surface is cleared once the last strong reference is released.
func (n *TileNode) Evict() {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.evicted {
		return
	}
	n.evicted = true
	n.releaseIfUnused()
}

// Evicted reports whether the node was detached from the scene.
func (n *TileNode) Evicted() bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.evicted
}

// Released reports whether the node resources were released.
func (n *TileNode) Released() bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.released
}

func (n *TileNode) acquire() bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.evicted {
		return false
	}
	n.refs++
	return true
}

func (n *TileNode) release() {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.refs--
	n.releaseIfUnused()
}

func (n *TileNode) releaseIfUnused() {
	if n.evicted && n.refs == 0 && !n.released {
		n.released = true
		n.surface.clear()
		instrumentRelease()
	}
}

// Ref is a weak reference to a tile node.
type Ref struct {
	node *TileNode
}

// Lock returns the node and a function releasing the temporary strong
// reference taken on it. It fails once the node is evicted.
func (r *Ref) Lock() (*TileNode, func(), bool) {
	if r == nil || r.node == nil || !r.node.acquire() {
		return nil, func() {}, false
	}

	var once sync.Once
	return r.node, func() { once.Do(r.node.release) }, true
}

// Key returns the tile of the referenced node, even when it was evicted.
func (r *Ref) Key() tile.Address {
	return r.node.key
}

// Surface holds the images bound to the samplers of a tile. It is safe for
// concurrent use.
type Surface struct {
	key tile.Address

	mutex  sync.RWMutex
	layers map[string]image.Image
}

func newSurface(key tile.Address) *Surface {
	return &Surface{
		key:    key,
		layers: make(map[string]image.Image),
	}
}

func (s *Surface) Key() tile.Address {
	return s.key
}

func (s *Surface) Layer(sampler string) (image.Image, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	img, ok := s.layers[sampler]
	return img, ok
}

// Samplers returns the sorted names of the bound samplers.
func (s *Surface) Samplers() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	names := make([]string, 0, len(s.layers))
	for name := range s.layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Surface) set(sampler string, img image.Image) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.layers[sampler] = img
}

func (s *Surface) clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	clear(s.layers)
}
