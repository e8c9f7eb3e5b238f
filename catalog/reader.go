package catalog

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilestream/fetch"
	"github.com/aukilabs/tilestream/progress"
	"github.com/aukilabs/tilestream/tile"
	"github.com/paulmach/orb"
	"github.com/segmentio/encoding/json"
)

const (
	// ErrTypeCatalog is the error type of a catalog that could not be read or
	// parsed.
	ErrTypeCatalog = "catalog"
)

// Reader reads the catalog published at a location.
type Reader interface {
	ReadCatalog(ctx context.Context, url string) (*Catalog, error)
}

// ReaderFunc is a function that satisfies the Reader interface.
type ReaderFunc func(ctx context.Context, url string) (*Catalog, error)

func (f ReaderFunc) ReadCatalog(ctx context.Context, url string) (*Catalog, error) {
	return f(ctx, url)
}

// JSONReader reads catalogs published as JSON documents.
type JSONReader struct {
	Client *fetch.Client
}

func (r JSONReader) ReadCatalog(ctx context.Context, url string) (*Catalog, error) {
	client := r.Client
	if client == nil {
		client = &fetch.Client{}
	}

	b, err := client.ReadBytes(ctx, url, progress.Never)
	if err != nil {
		return nil, errors.New("reading catalog failed").
			WithType(ErrTypeCatalog).
			WithTag("url", url).
			Wrap(err)
	}

	c, err := Decode(b)
	if err != nil {
		return nil, errors.New("decoding catalog failed").
			WithType(ErrTypeCatalog).
			WithTag("url", url).
			Wrap(err)
	}

	c.Filename = url
	return c, nil
}

// Decode parses a JSON catalog document.
func Decode(b []byte) (*Catalog, error) {
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}

	c := &Catalog{
		Title:     doc.Title,
		SRS:       doc.SRS,
		Bounds:    doc.BoundingBox.bound(),
		TilesWide: doc.TilesWide,
		TilesHigh: doc.TilesHigh,
		Format:    NewFormat(doc.TileFormat.Extension, doc.TileFormat.Width, doc.TileFormat.Height),
	}
	if doc.Origin != nil {
		c.Origin = &orb.Point{doc.Origin.X, doc.Origin.Y}
	}
	if doc.TileFormat.MimeType != "" {
		c.Format.MimeType = doc.TileFormat.MimeType
	}

	for _, ts := range doc.TileSets {
		c.TileSets = append(c.TileSets, TileSet{
			Level:         ts.Order,
			UnitsPerPixel: ts.UnitsPerPixel,
		})
	}

	for _, e := range doc.DataExtents {
		c.DataExtents = append(c.DataExtents, tile.DataExtent{
			Bound:    e.bound(),
			MinLevel: e.MinLevel,
			MaxLevel: e.MaxLevel,
		})
	}

	if doc.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, doc.Timestamp)
		if err != nil {
			return nil, errors.New("invalid catalog timestamp").
				WithTag("timestamp", doc.Timestamp).
				Wrap(err)
		}
		c.Timestamp = ts
	}

	c.ComputeLevels()
	return c, nil
}

type document struct {
	Title       string           `json:"title"`
	SRS         string           `json:"srs"`
	BoundingBox box              `json:"bounding_box"`
	Origin      *point           `json:"origin"`
	TilesWide   uint32           `json:"tiles_wide"`
	TilesHigh   uint32           `json:"tiles_high"`
	TileFormat  tileFormat       `json:"tile_format"`
	TileSets    []tileSet        `json:"tile_sets"`
	DataExtents []dataExtentJSON `json:"data_extents"`
	Timestamp   string           `json:"timestamp"`
}

type box struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

func (b box) bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinX, b.MinY},
		Max: orb.Point{b.MaxX, b.MaxY},
	}
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type tileFormat struct {
	Width     uint32 `json:"width"`
	Height    uint32 `json:"height"`
	MimeType  string `json:"mime_type"`
	Extension string `json:"extension"`
}

type tileSet struct {
	Order         uint32  `json:"order"`
	UnitsPerPixel float64 `json:"units_per_pixel"`
}

type dataExtentJSON struct {
	box
	MinLevel uint32 `json:"min_level"`
	MaxLevel uint32 `json:"max_level"`
}
