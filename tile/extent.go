package tile

import "github.com/paulmach/orb"

// DataExtent is a region with data between two levels, both inclusive.
type DataExtent struct {
	Bound    orb.Bound
	MinLevel uint32
	MaxLevel uint32
}

// Covers reports whether the address level is in range and its extent
// overlaps the region.
func (e DataExtent) Covers(a Address) bool {
	if a.Level < e.MinLevel || a.Level > e.MaxLevel {
		return false
	}
	return e.Bound.Intersects(a.Bound())
}
