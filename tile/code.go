package tile

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/hilbert"
)

// Code returns a unique index for the address: the hilbert curve position of
// the cell within its level, offset by the cells of all the levels above.
// Neighboring cells get close codes.
func Code(a Address) (uint64, error) {
	if !a.Valid() {
		return 0, errors.New("invalid tile").
			WithType(ErrTypeAddress).
			WithTag("tile", a.String()).
			WithTag("profile", a.Profile.String())
	}

	var offset uint64
	for l := uint32(0); l < a.Level; l++ {
		side := sideAt(a.Profile, l)
		offset += side * side
	}

	h, err := hilbert.NewHilbert(int(sideAt(a.Profile, a.Level)))
	if err != nil {
		return 0, errors.New("creating hilbert curve failed").
			WithType(ErrTypeAddress).
			WithTag("tile", a.String()).
			Wrap(err)
	}
	c, err := h.MapInverse(int(a.X), int(a.Y))
	if err != nil {
		return 0, errors.New("computing hilbert code failed").
			WithType(ErrTypeAddress).
			WithTag("tile", a.String()).
			Wrap(err)
	}
	return offset + uint64(c), nil
}

// sideAt returns the smallest power of two that fits the level grid.
func sideAt(p *Profile, level uint32) uint64 {
	cols, rows := p.numTiles(level)
	n := cols
	if rows > n {
		n = rows
	}

	side := uint64(1)
	for side < n {
		side <<= 1
	}
	return side
}
