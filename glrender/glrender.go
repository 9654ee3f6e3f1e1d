// Package glrender renders SDF scenes on the CPU. [Raymarcher] reproduces the sphere
// tracing and shading of the fragment shader generated by package glbuild so scenes
// can be previewed and tested without a GPU. [SliceRenderer] renders cross-sections of
// distance fields.
package glrender

import (
	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

// OrbitCamera returns a camera at distance dist from target looking at it. yaw rotates around the
// world Y axis and pitch elevates the camera, both in radians. pitch must lie within (-π/2, π/2)
// since camera directions parallel to the Y axis are undefined.
func OrbitCamera(target ms3.Vec, dist, yaw, pitch, fovTan float32) Camera {
	s, c := sincos(pitch)
	sy, cy := sincos(yaw)
	offset := ms3.Vec{X: dist * c * sy, Y: dist * s, Z: dist * c * cy}
	pos := ms3.Add(target, offset)
	return Camera{
		Pos:    pos,
		Dir:    ms3.Unit(ms3.Sub(target, pos)),
		FovTan: fovTan,
	}
}

func sincos(a float32) (sin, cos float32) {
	return math32.Sin(a), math32.Cos(a)
}
