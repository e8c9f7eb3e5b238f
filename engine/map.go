package engine

import (
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilestream/tilesource"
)

// ErrTypeLayer is the error type of an invalid map layer change.
const ErrTypeLayer = "layer"

// Layer is a named image layer of a map.
type Layer struct {
	Name   string
	Source tilesource.TileSource
}

// Map is an ordered list of image layers. Each change increases its revision
// and invalidates the frames taken before. It is safe for concurrent use.
type Map struct {
	mutex    sync.RWMutex
	layers   []Layer
	revision uint64
	closed   bool
}

// NewMap returns a map with the given layers.
func NewMap(layers ...Layer) *Map {
	return &Map{
		layers:   append([]Layer(nil), layers...),
		revision: 1,
	}
}

// AddLayer appends a layer. Layer names are unique.
func (m *Map) AddLayer(l Layer) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if l.Name == "" || l.Source == nil {
		return errors.New("layer requires a name and a source").
			WithType(ErrTypeLayer)
	}
	for _, existing := range m.layers {
		if existing.Name == l.Name {
			return errors.New("layer already exists").
				WithType(ErrTypeLayer).
				WithTag("layer", l.Name)
		}
	}

	m.layers = append(m.layers, l)
	m.revision++
	return nil
}

// RemoveLayer removes the named layer.
func (m *Map) RemoveLayer(name string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, l := range m.layers {
		if l.Name == name {
			m.layers = append(m.layers[:i:i], m.layers[i+1:]...)
			m.revision++
			return true
		}
	}
	return false
}

// Layer returns the named layer.
func (m *Map) Layer(name string) (Layer, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, l := range m.layers {
		if l.Name == name {
			return l, true
		}
	}
	return Layer{}, false
}

// Layers returns the layers in map order.
func (m *Map) Layers() []Layer {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return append([]Layer(nil), m.layers...)
}

func (m *Map) Revision() uint64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.revision
}

// Frame returns a snapshot of the current layers.
func (m *Map) Frame() MapFrame {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return MapFrame{
		m:        m,
		revision: m.revision,
		layers:   append([]Layer(nil), m.layers...),
	}
}

// Close invalidates every frame of the map.
func (m *Map) Close() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
}

// MapFrame is a snapshot of the layers of a map at one revision.
type MapFrame struct {
	m        *Map
	revision uint64
	layers   []Layer
}

// IsValid reports whether the map of the frame is still open. Layer changes
// made after the frame was taken do not affect its snapshot.
func (f MapFrame) IsValid() bool {
	if f.m == nil {
		return false
	}

	f.m.mutex.RLock()
	defer f.m.mutex.RUnlock()
	return !f.m.closed
}

// Revision returns the map revision the frame was taken at.
func (f MapFrame) Revision() uint64 {
	return f.revision
}

func (f MapFrame) Layers() []Layer {
	return f.layers
}
