// Package tilesource defines the capabilities shared by every tile image
// provider.
package tilesource

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/aukilabs/tilestream/progress"
	"github.com/aukilabs/tilestream/tile"
)

// CachePolicy is an advisory hint consumed by caching layers.
type CachePolicy int

const (
	CachePolicyDefault CachePolicy = iota
	CachePolicyNoCache
)

func (p CachePolicy) String() string {
	switch p {
	case CachePolicyNoCache:
		return "no_cache"
	default:
		return "default"
	}
}

// TileSource provides tile images for addresses of its profile.
type TileSource interface {
	// Initialize prepares the source. It must succeed before any other
	// method returns meaningful values.
	Initialize(ctx context.Context) error

	// CreateImage returns the image at the given address. The boolean is false
	// when the source has no data for the address. Per tile failures are never
	// reported as errors.
	CreateImage(ctx context.Context, a tile.Address, m progress.Monitor) (image.Image, bool)

	Profile() *tile.Profile
	DataExtents() []tile.DataExtent
	PixelsPerTile() uint32
	Extension() string
	LastModified() time.Time
	CachePolicyHint(target *tile.Profile) CachePolicy
}

// Status tracks whether a source finished its initialization.
type Status struct {
	mutex sync.RWMutex
	err   error
	ready bool
}

// Set records the outcome of an initialization.
func (s *Status) Set(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.err = err
	s.ready = err == nil
}

// Ready reports whether the source initialized successfully.
func (s *Status) Ready() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.ready
}

// Err returns the initialization error, if any.
func (s *Status) Err() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.err
}

// Placeholder returns a fully transparent image of the given size. It marks a
// tile known to be empty.
func Placeholder(width, height uint32) image.Image {
	return &placeholder{
		Uniform: image.NewUniform(color.Transparent),
		rect:    image.Rect(0, 0, int(width), int(height)),
	}
}

// IsPlaceholder reports whether the image was returned by Placeholder.
func IsPlaceholder(img image.Image) bool {
	_, ok := img.(*placeholder)
	return ok
}

type placeholder struct {
	*image.Uniform
	rect image.Rectangle
}

func (p *placeholder) Bounds() image.Rectangle {
	return p.rect
}
