package engine

import "sync"

// idGenerator returns increasing ids, preferring the released ones.
type idGenerator struct {
	mutex    sync.Mutex
	last     uint32
	released []uint32
}

func (g *idGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if n := len(g.released); n != 0 {
		id := g.released[n-1]
		g.released = g.released[:n-1]
		return id
	}

	g.last++
	return g.last
}

func (g *idGenerator) Reuse(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.released = append(g.released, id)
}
