package engine

import (
	"sync"

	"github.com/aukilabs/tilestream/tile"
)

// TileListener is notified of the tiles merged into the terrain.
type TileListener interface {
	TileAdded(key tile.Address, surface Surface)
}

// TileListenerFunc is a function that satisfies the TileListener interface.
type TileListenerFunc func(key tile.Address, surface Surface)

func (f TileListenerFunc) TileAdded(key tile.Address, surface Surface) {
	f(key, surface)
}

// Terrain fans out tile events to its listeners. It is safe for concurrent
// use.
type Terrain struct {
	mutex       sync.RWMutex
	listenerIDs idGenerator
	listeners   map[uint32]TileListener
}

// AddListener registers a listener until the returned function is called.
func (t *Terrain) AddListener(l TileListener) (remove func()) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.listeners == nil {
		t.listeners = make(map[uint32]TileListener)
	}

	id := t.listenerIDs.New()
	t.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mutex.Lock()
			defer t.mutex.Unlock()

			delete(t.listeners, id)
			t.listenerIDs.Reuse(id)
		})
	}
}

// NotifyTileAdded calls every listener with the merged tile.
func (t *Terrain) NotifyTileAdded(key tile.Address, surface Surface) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	for _, l := range t.listeners {
		l.TileAdded(key, surface)
	}
}

// ListenerCount returns the number of registered listeners.
func (t *Terrain) ListenerCount() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.listeners)
}
