// Package tms implements a tile source reading from a Tile Map Service
// server.
package tms

import (
	"context"
	"image"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tilestream/catalog"
	"github.com/aukilabs/tilestream/fetch"
	"github.com/aukilabs/tilestream/progress"
	"github.com/aukilabs/tilestream/tile"
	"github.com/aukilabs/tilestream/tilesource"
)

const (
	// TypeTMS numbers rows from the bottom of the extent.
	TypeTMS = "tms"

	// TypeGoogle numbers rows from the top of the extent.
	TypeGoogle = "google"

	DefaultFormat   = "png"
	DefaultTileSize = 256

	// ErrTypeConfig is the error type of a source that is not configured
	// well enough to address tiles.
	ErrTypeConfig = "config"
)

// Options configures a Source.
type Options struct {
	// The location of the tile map descriptor. Required.
	URL string

	// The payload extension. Defaults to png.
	Format string

	// The tile width and height in pixels. Defaults to 256.
	TileSize uint32

	// The row numbering convention: tms or google.
	Type string

	// When set, the descriptor is not read and a catalog is synthesized for
	// this profile.
	Profile *tile.Profile
}

// Source is a tile source backed by a TMS server.
type Source struct {
	options Options
	client  *fetch.Client
	reader  catalog.Reader
	status  tilesource.Status
	state   atomic.Pointer[state]
}

type state struct {
	catalog *catalog.Catalog
	profile *tile.Profile
	extents []tile.DataExtent
}

// New returns a source configured with the given options. A nil reader reads
// JSON descriptors with the given client.
func New(opts Options, client *fetch.Client, reader catalog.Reader) *Source {
	if opts.Format == "" {
		opts.Format = DefaultFormat
	}
	if opts.TileSize == 0 {
		opts.TileSize = DefaultTileSize
	}
	if client == nil {
		client = &fetch.Client{}
	}
	if reader == nil {
		reader = catalog.JSONReader{Client: client}
	}

	return &Source{
		options: opts,
		client:  client,
		reader:  reader,
	}
}

// Initialize resolves the catalog and the profile of the source. A failed
// initialization leaves the source unusable.
func (s *Source) Initialize(ctx context.Context) error {
	st, err := s.resolve(ctx)
	s.status.Set(err)
	instrumentInitialize(err)
	if err != nil {
		return err
	}

	s.state.Store(st)
	return nil
}

func (s *Source) resolve(ctx context.Context) (*state, error) {
	url := s.options.URL
	if url == "" {
		return nil, errors.New("tms source requires a url").
			WithType(ErrTypeConfig)
	}

	var c *catalog.Catalog
	profile := s.options.Profile

	if profile != nil {
		c = catalog.Create(url, profile, s.options.Format, s.options.TileSize, s.options.TileSize)
	} else {
		var err error
		if c, err = s.reader.ReadCatalog(ctx, url); err != nil {
			return nil, errors.New("reading tile map failed").
				WithType(catalog.ErrTypeCatalog).
				WithTag("url", url).
				Wrap(err)
		}

		logs.WithTag("url", url).
			WithTag("timestamp", c.Timestamp.Format(time.RFC1123)).
			Info("tile map loaded")

		profile = c.CreateProfile()
	}

	if profile == nil {
		return nil, errors.New("tile map does not define a profile").
			WithType(ErrTypeConfig).
			WithTag("url", url)
	}

	st := &state{
		catalog: c,
		profile: profile,
	}

	if len(c.TileSets) != 0 {
		if len(c.DataExtents) != 0 {
			st.extents = append(st.extents, c.DataExtents...)
		} else {
			st.extents = []tile.DataExtent{
				{
					Bound:    profile.Extent,
					MinLevel: 0,
					MaxLevel: c.MaxLevel,
				},
			}
		}
	}

	return st, nil
}

// Err returns the error of the last initialization.
func (s *Source) Err() error {
	return s.status.Err()
}

func (s *Source) CreateImage(ctx context.Context, a tile.Address, m progress.Monitor) (image.Image, bool) {
	st := s.state.Load()
	if st == nil || !st.catalog.Valid() || a.Level > st.catalog.MaxLevel {
		instrumentCreateImage(resultNoData)
		return nil, false
	}

	c := st.catalog
	url := c.URL(a, s.invertY())

	if url != "" {
		img, err := s.client.ReadImage(ctx, url, m)
		if err == nil {
			instrumentCreateImage(resultImage)
			return img, true
		}

		if errors.IsType(err, progress.ErrTypeCanceled) {
			logs.WithTag("url", url).Debug("tile fetch canceled")
		} else {
			logs.WithTag("url", url).Debug(err)
		}
	}

	if url == "" || !c.IntersectsAddress(a) {
		instrumentCreateImage(resultPlaceholder)
		return tilesource.Placeholder(c.Format.Width, c.Format.Height), true
	}

	instrumentCreateImage(resultNoData)
	return nil, false
}

func (s *Source) Profile() *tile.Profile {
	if st := s.state.Load(); st != nil {
		return st.profile
	}
	return nil
}

func (s *Source) DataExtents() []tile.DataExtent {
	if st := s.state.Load(); st != nil {
		return st.extents
	}
	return nil
}

func (s *Source) PixelsPerTile() uint32 {
	if st := s.state.Load(); st != nil {
		return st.catalog.Format.Width
	}
	return s.options.TileSize
}

func (s *Source) Extension() string {
	if st := s.state.Load(); st != nil {
		return st.catalog.Format.Extension
	}
	return s.options.Format
}

func (s *Source) LastModified() time.Time {
	if st := s.state.Load(); st != nil {
		return st.catalog.Timestamp
	}
	return time.Time{}
}

// CachePolicyHint advises against caching tiles read from local storage for
// a target profile that matches the source one.
func (s *Source) CachePolicyHint(target *tile.Profile) tilesource.CachePolicy {
	p := s.Profile()
	if !fetch.IsRemote(s.options.URL) && p != nil && target != nil && target.IsEquivalentTo(p) {
		return tilesource.CachePolicyNoCache
	}
	return tilesource.CachePolicyDefault
}

func (s *Source) invertY() bool {
	return strings.EqualFold(s.options.Type, TypeGoogle)
}
