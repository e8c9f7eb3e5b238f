package tile

import (
	"fmt"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/paulmach/orb"
)

const (
	// MaxLevel is the deepest level an address can reference.
	MaxLevel = 30

	// ErrTypeAddress is the error type of an address outside its profile.
	ErrTypeAddress = "tile_address"
)

// Address identifies one cell of the LOD quadtree. Rows are numbered from the
// top of the profile extent.
type Address struct {
	Level   uint32
	X       uint32
	Y       uint32
	Profile *Profile
}

// NewAddress returns an address after checking it lies within the profile.
func NewAddress(level, x, y uint32, p *Profile) (Address, error) {
	a := Address{Level: level, X: x, Y: y, Profile: p}
	if !a.Valid() {
		return Address{}, errors.New("tile out of range").
			WithType(ErrTypeAddress).
			WithTag("tile", a.String()).
			WithTag("profile", p.String())
	}
	return a, nil
}

// Valid reports whether the address references an existing cell.
func (a Address) Valid() bool {
	if a.Profile == nil || a.Level > MaxLevel {
		return false
	}
	cols, rows := a.Profile.numTiles(a.Level)
	return uint64(a.X) < cols && uint64(a.Y) < rows
}

// Equal compares all fields, profiles by structural equivalence.
func (a Address) Equal(o Address) bool {
	if a.Level != o.Level || a.X != o.X || a.Y != o.Y {
		return false
	}
	if a.Profile == nil || o.Profile == nil {
		return a.Profile == o.Profile
	}
	return a.Profile.IsEquivalentTo(o.Profile)
}

// Bound returns the extent covered by the address.
func (a Address) Bound() orb.Bound {
	return a.Profile.TileBound(a.Level, a.X, a.Y)
}

// Rows returns the number of rows of the address level.
func (a Address) Rows() uint32 {
	_, rows := a.Profile.NumTiles(a.Level)
	return rows
}

func (a Address) String() string {
	return fmt.Sprintf("%d/%d/%d", a.Level, a.X, a.Y)
}

// InvertRow switches a row index between top-left and bottom-left origin
// numbering for a level with the given row count.
func InvertRow(rows, y uint32) uint32 {
	return rows - y - 1
}
