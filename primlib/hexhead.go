package primlib

import (
	"errors"

	math "github.com/chewxy/math32"
	"github.com/soypat/raymarch"
	"github.com/soypat/raymarch/glbuild"
)

// HexRound selects which faces of a hex head are rounded.
type HexRound uint8

const (
	HexRoundNone HexRound = iota
	HexRoundTop
	HexRoundBottom
	HexRoundBoth
)

// NewHexHead returns the hex head of a nut or bolt with its axis along Z.
// radius is the distance from the axis to the hexagon's corners.
// Rounded faces are the intersection of the prism with a large sphere
// that passes through the hexagon's inscribed circle.
func NewHexHead(bld *raymarch.Builder, radius, height float32, round HexRound) (glbuild.Shader3D, error) {
	if radius <= 0 || height <= 0 {
		return nil, errors.New("zero or negative hex head dimension")
	} else if round > HexRoundBoth {
		return nil, errors.New("invalid hex head rounding")
	}
	apothem := radius * tribisect
	hex := NewHexagonalPrism(bld, 2*apothem, height)
	if round == HexRoundNone {
		return hex, nil
	}
	topRound := radius * 1.6
	zOfs := math.Sqrt(topRound*topRound-apothem*apothem) - height/2
	if round == HexRoundTop || round == HexRoundBoth {
		hex = bld.Intersection(hex, bld.Translate(bld.NewSphere(topRound), 0, 0, -zOfs))
	}
	if round == HexRoundBottom || round == HexRoundBoth {
		hex = bld.Intersection(hex, bld.Translate(bld.NewSphere(topRound), 0, 0, zOfs))
	}
	return hex, nil
}
