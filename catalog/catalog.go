// Package catalog holds the server declared description of a tile map: its
// levels, payload format and coverage.
package catalog

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aukilabs/tilestream/tile"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// DefaultLevels is the number of levels of a catalog synthesized from
// configuration.
const DefaultLevels = 20

// Format describes the payload of every tile of a catalog.
type Format struct {
	Width     uint32
	Height    uint32
	MimeType  string
	Extension string
}

// TileSet describes one level of a catalog.
type TileSet struct {
	Level         uint32
	UnitsPerPixel float64
}

// Catalog is the parsed tile map of a tile server. It is built once when a
// source initializes and only read afterwards, which makes it safe for
// concurrent use.
type Catalog struct {
	// The location of the descriptor. Tile URLs are resolved relative to its
	// directory.
	Filename string

	Title     string
	SRS       string
	Bounds    orb.Bound
	Origin    *orb.Point
	TilesWide uint32
	TilesHigh uint32

	Format      Format
	TileSets    []TileSet
	MinLevel    uint32
	MaxLevel    uint32
	DataExtents []tile.DataExtent
	Timestamp   time.Time
}

// Create synthesizes a catalog for the given profile without contacting the
// server.
func Create(url string, p *tile.Profile, format string, width, height uint32) *Catalog {
	origin := p.Extent.Min
	c := &Catalog{
		Filename:  url,
		SRS:       p.SRS,
		Bounds:    p.Extent,
		Origin:    &origin,
		TilesWide: p.TilesWide,
		TilesHigh: p.TilesHigh,
		Format:    NewFormat(format, width, height),
	}

	cols, _ := p.NumTiles(0)
	upp := (p.Extent.Max[0] - p.Extent.Min[0]) / float64(cols*width)
	for level := uint32(0); level < DefaultLevels; level++ {
		c.TileSets = append(c.TileSets, TileSet{
			Level:         level,
			UnitsPerPixel: upp,
		})
		upp /= 2
	}

	c.ComputeLevels()
	return c
}

// NewFormat returns the format for a payload extension such as "png" or
// "jpg".
func NewFormat(extension string, width, height uint32) Format {
	ext := strings.TrimPrefix(strings.ToLower(extension), ".")

	var mime string
	switch ext {
	case "png":
		mime = "image/png"
	case "jpg", "jpeg":
		mime = "image/jpeg"
	case "gif":
		mime = "image/gif"
	case "webp":
		mime = "image/webp"
	case "tif", "tiff":
		mime = "image/tiff"
	default:
		mime = "application/octet-stream"
	}

	return Format{
		Width:     width,
		Height:    height,
		MimeType:  mime,
		Extension: ext,
	}
}

// Valid reports whether the catalog can be used to address tiles.
func (c *Catalog) Valid() bool {
	return c != nil && c.Format.Width > 0 && c.Format.Height > 0
}

// ComputeLevels sets the min and max levels from the tile set list.
func (c *Catalog) ComputeLevels() {
	c.MinLevel, c.MaxLevel = 0, 0

	for i, ts := range c.TileSets {
		if i == 0 || ts.Level < c.MinLevel {
			c.MinLevel = ts.Level
		}
		if ts.Level > c.MaxLevel {
			c.MaxLevel = ts.Level
		}
	}
}

// CreateProfile returns the profile declared by the catalog or nil when the
// catalog does not carry enough information. A declared origin anchors the
// grid of a custom SRS; for well known SRS it must be the corner of the
// profile extent.
func (c *Catalog) CreateProfile() *tile.Profile {
	var p *tile.Profile

	switch strings.ToUpper(c.SRS) {
	case "":
		return nil

	case tile.SRSGeodetic, "OSGEO:4326":
		p = tile.GlobalGeodetic()

	case tile.SRSSphericalMercator, "EPSG:900913", "OSGEO:41001":
		p = tile.SphericalMercator()

	default:
		if !c.hasBounds() {
			return nil
		}
		p = &tile.Profile{
			SRS:    c.SRS,
			Extent: c.Bounds,
		}
		if c.Origin != nil {
			o := *c.Origin
			p.Extent = orb.Bound{
				Min: o,
				Max: orb.Point{
					o[0] + c.Bounds.Max[0] - c.Bounds.Min[0],
					o[1] + c.Bounds.Max[1] - c.Bounds.Min[1],
				},
			}
		}
	}

	if c.Origin != nil && !sameCorner(*c.Origin, p.Extent) {
		return nil
	}

	if c.TilesWide != 0 {
		p.TilesWide = c.TilesWide
	}
	if c.TilesHigh != 0 {
		p.TilesHigh = c.TilesHigh
	}
	return p
}

// sameCorner reports whether o is the bottom left corner of b, within a
// millionth of its width.
func sameCorner(o orb.Point, b orb.Bound) bool {
	tolerance := (b.Max[0] - b.Min[0]) * 1e-6
	return math.Abs(o[0]-b.Min[0]) <= tolerance && math.Abs(o[1]-b.Min[1]) <= tolerance
}

// IntersectsAddress reports whether the address overlaps the catalog bounds
// and, when data extents are declared, whether one of them covers it.
func (c *Catalog) IntersectsAddress(a tile.Address) bool {
	if !a.Valid() {
		return false
	}

	if c.hasBounds() {
		b := a.Bound()
		inter := c.Bounds.Intersects(b)

		// Mercator servers sometimes declare their bounds in lat/lon.
		if !inter && isMercator(a.Profile.SRS) && looksGeodetic(c.Bounds) {
			ll := orb.Bound{
				Min: project.Mercator.ToWGS84(b.Min),
				Max: project.Mercator.ToWGS84(b.Max),
			}
			inter = c.Bounds.Intersects(ll)
		}

		if !inter {
			return false
		}
	}

	if len(c.DataExtents) == 0 {
		return true
	}

	for _, e := range c.DataExtents {
		if e.Covers(a) {
			return true
		}
	}
	return false
}

// URL returns the location of the tile at the given address, or an empty
// string when the catalog does not contain it.
//
// Catalog rows are numbered from the bottom of the extent. The row of the
// address is inverted unless invertY is set, which is the case for servers
// that number rows from the top like Google Maps.
func (c *Catalog) URL(a tile.Address, invertY bool) string {
	if !c.IntersectsAddress(a) {
		return ""
	}

	y := a.Y
	if !invertY {
		y = tile.InvertRow(a.Rows(), y)
	}

	if len(c.TileSets) != 0 && !c.hasLevel(a.Level) {
		return ""
	}

	var b strings.Builder
	if base := basePath(c.Filename); base != "" {
		b.WriteString(base)
		b.WriteByte('/')
	}
	fmt.Fprintf(&b, "%d/%d/%d.%s", a.Level, a.X, y, c.Format.Extension)
	return b.String()
}

func (c *Catalog) hasLevel(level uint32) bool {
	for _, ts := range c.TileSets {
		if ts.Level == level {
			return true
		}
	}
	return false
}

func (c *Catalog) hasBounds() bool {
	return c.Bounds != orb.Bound{}
}

func basePath(filename string) string {
	i := strings.LastIndexAny(filename, `/\`)
	if i < 0 {
		return ""
	}
	return filename[:i]
}

func isMercator(srs string) bool {
	switch strings.ToUpper(srs) {
	case tile.SRSSphericalMercator, "EPSG:900913", "OSGEO:41001":
		return true
	default:
		return false
	}
}

func looksGeodetic(b orb.Bound) bool {
	return b.Min[0] >= -180 && b.Max[0] <= 180 && b.Min[1] >= -90 && b.Max[1] <= 90
}
