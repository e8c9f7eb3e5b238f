package scene

import (
	"sync"

	"github.com/aukilabs/tilestream/tile"
)

// Registry is the set of live tile nodes keyed by tile. It is safe for
// concurrent use.
type Registry struct {
	initOnce sync.Once
	mutex    sync.RWMutex
	nodes    map[string]*TileNode
}

func (r *Registry) init() {
	r.nodes = make(map[string]*TileNode)
}

// GetOrCreate returns the node of a tile, creating it when missing. The
// boolean is true when the node was created.
func (r *Registry) GetOrCreate(key tile.Address) (*TileNode, bool) {
	r.initOnce.Do(r.init)
	r.mutex.Lock()
	defer r.mutex.Unlock()

	id := nodeID(key)
	if n, ok := r.nodes[id]; ok {
		return n, false
	}

	n := NewTileNode(key)
	r.nodes[id] = n
	instrumentNodeGauge(len(r.nodes))
	return n, true
}

func (r *Registry) Get(key tile.Address) (*TileNode, bool) {
	r.initOnce.Do(r.init)
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	n, ok := r.nodes[nodeID(key)]
	return n, ok
}

// Evict removes the node of a tile from the registry and evicts it.
func (r *Registry) Evict(key tile.Address) bool {
	r.initOnce.Do(r.init)
	r.mutex.Lock()
	defer r.mutex.Unlock()

	id := nodeID(key)
	n, ok := r.nodes[id]
	if !ok {
		return false
	}

	delete(r.nodes, id)
	n.Evict()
	instrumentNodeGauge(len(r.nodes))
	instrumentEviction()
	return true
}

// EvictAll evicts every node.
func (r *Registry) EvictAll() {
	r.initOnce.Do(r.init)
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id, n := range r.nodes {
		delete(r.nodes, id)
		n.Evict()
		instrumentEviction()
	}
	instrumentNodeGauge(0)
}

func (r *Registry) Len() int {
	r.initOnce.Do(r.init)
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.nodes)
}

func nodeID(key tile.Address) string {
	srs := ""
	if key.Profile != nil {
		srs = key.Profile.SRS
	}
	return srs + "/" + key.String()
}
