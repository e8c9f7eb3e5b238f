// Package tile provides tile addressing over a spatial profile.
package tile

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

const (
	SRSGeodetic          = "EPSG:4326"
	SRSSphericalMercator = "EPSG:3857"

	mercatorHalfExtent = 20037508.342789244
)

// Profile describes the spatial reference, the total extent and the level 0
// tile layout used to interpret tile addresses. Row 0 is at the top (max Y)
// of the extent.
type Profile struct {
	SRS       string
	Extent    orb.Bound
	TilesWide uint32
	TilesHigh uint32
}

// GlobalGeodetic returns the whole-earth lat/lon profile with two tiles at
// level 0.
func GlobalGeodetic() *Profile {
	return &Profile{
		SRS:       SRSGeodetic,
		Extent:    orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}},
		TilesWide: 2,
		TilesHigh: 1,
	}
}

// SphericalMercator returns the web mercator profile with a single tile at
// level 0.
func SphericalMercator() *Profile {
	return &Profile{
		SRS: SRSSphericalMercator,
		Extent: orb.Bound{
			Min: orb.Point{-mercatorHalfExtent, -mercatorHalfExtent},
			Max: orb.Point{mercatorHalfExtent, mercatorHalfExtent},
		},
		TilesWide: 1,
		TilesHigh: 1,
	}
}

// NumTiles returns the number of columns and rows at the given level. Counts
// larger than the range of a tile index are capped to math.MaxUint32.
func (p *Profile) NumTiles(level uint32) (cols, rows uint32) {
	c, r := p.numTiles(level)
	return capIndex(c), capIndex(r)
}

func (p *Profile) numTiles(level uint32) (cols, rows uint64) {
	return shiftTiles(p.tilesWide(), level), shiftTiles(p.tilesHigh(), level)
}

// TileBound returns the extent covered by the cell at level, x, y.
func (p *Profile) TileBound(level, x, y uint32) orb.Bound {
	cols, rows := p.numTiles(level)
	w := (p.Extent.Max[0] - p.Extent.Min[0]) / float64(cols)
	h := (p.Extent.Max[1] - p.Extent.Min[1]) / float64(rows)

	minX := p.Extent.Min[0] + float64(x)*w
	maxY := p.Extent.Max[1] - float64(y)*h
	return orb.Bound{
		Min: orb.Point{minX, maxY - h},
		Max: orb.Point{minX + w, maxY},
	}
}

// IsEquivalentTo reports whether both profiles describe the same tiling.
func (p *Profile) IsEquivalentTo(o *Profile) bool {
	if p == nil || o == nil {
		return false
	}
	if p == o {
		return true
	}

	return strings.EqualFold(p.SRS, o.SRS) &&
		p.tilesWide() == o.tilesWide() &&
		p.tilesHigh() == o.tilesHigh() &&
		almostEqual(p.Extent.Min[0], o.Extent.Min[0]) &&
		almostEqual(p.Extent.Min[1], o.Extent.Min[1]) &&
		almostEqual(p.Extent.Max[0], o.Extent.Max[0]) &&
		almostEqual(p.Extent.Max[1], o.Extent.Max[1])
}

func (p *Profile) String() string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s [%g,%g,%g,%g] %dx%d",
		p.SRS,
		p.Extent.Min[0], p.Extent.Min[1], p.Extent.Max[0], p.Extent.Max[1],
		p.tilesWide(), p.tilesHigh())
}

func (p *Profile) tilesWide() uint32 {
	if p.TilesWide == 0 {
		return 1
	}
	return p.TilesWide
}

func (p *Profile) tilesHigh() uint32 {
	if p.TilesHigh == 0 {
		return 1
	}
	return p.TilesHigh
}

func shiftTiles(n, level uint32) uint64 {
	if level >= 32 {
		return math.MaxUint64
	}
	return uint64(n) << level
}

func capIndex(n uint64) uint32 {
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

func almostEqual(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= 1e-9*scale
}
