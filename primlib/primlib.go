// Package primlib provides primitive types beyond the built-in ones of package raymarch.
// Declare them in a scene with [Declare] before instancing them.
package primlib

import (
	"errors"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/math/ms1"
	"github.com/soypat/raymarch"
	"github.com/soypat/raymarch/glbuild"
)

// tribisect is cos(pi/6), the ratio of an equilateral triangle's height to its side.
const tribisect = 0.8660254038

var (
	// RoundBox is a box with half extents d and edges rounded by radius r.
	//
	//	RoundBox(d vec3, r float)
	RoundBox = &raymarch.PrimitiveType{
		Name:   "RoundBox",
		Params: []raymarch.Param{{Name: "d", Type: raymarch.ParamVec3}, {Name: "r", Type: raymarch.ParamFloat}},
		Body: `vec3 q = abs(p)-o.d+o.r;
return length(max(q,0.0)) + min(max(q.x,max(q.y,q.z)),0.0)-o.r;`,
		Eval: func(p ms3.Vec, args []raymarch.Value) float32 {
			d, r := args[0].Vec3(), args[1].Float()
			q := ms3.AddScalar(r, ms3.Sub(ms3.AbsElem(p), d))
			return ms3.Norm(ms3.MaxElem(q, ms3.Vec{})) + math32.Min(math32.Max(q.X, math32.Max(q.Y, q.Z)), 0) - r
		},
		Bounds: func(args []raymarch.Value) ms3.Box {
			d := args[0].Vec3()
			return ms3.Box{Min: ms3.Scale(-1, d), Max: d}
		},
		Check: func(args []raymarch.Value) error {
			d, r := args[0].Vec3(), args[1].Float()
			if !(d.X > 0 && d.Y > 0 && d.Z > 0) {
				return errors.New("zero or negative box dimension")
			} else if r < 0 || r > minElem(d) {
				return errors.New("invalid box rounding value")
			}
			return nil
		},
	}

	// BoxFrame is the edges of a box with half extents d built from square beams of half thickness e.
	//
	//	BoxFrame(d vec3, e float)
	BoxFrame = &raymarch.PrimitiveType{
		Name:   "BoxFrame",
		Params: []raymarch.Param{{Name: "d", Type: raymarch.ParamVec3}, {Name: "e", Type: raymarch.ParamFloat}},
		Body: `p = abs(p)-o.d;
vec3 q = abs(p+o.e)-o.e;
return min(min(
	length(max(vec3(p.x,q.y,q.z),0.0))+min(max(p.x,max(q.y,q.z)),0.0),
	length(max(vec3(q.x,p.y,q.z),0.0))+min(max(q.x,max(p.y,q.z)),0.0)),
	length(max(vec3(q.x,q.y,p.z),0.0))+min(max(q.x,max(q.y,p.z)),0.0));`,
		Eval: func(p ms3.Vec, args []raymarch.Value) float32 {
			d, e := args[0].Vec3(), args[1].Float()
			var z3 ms3.Vec
			p = ms3.Sub(ms3.AbsElem(p), d)
			q := ms3.AddScalar(-e, ms3.AbsElem(ms3.AddScalar(e, p)))

			s1 := math32.Min(0, math32.Max(p.X, math32.Max(q.Y, q.Z)))
			n1 := ms3.Norm(ms3.MaxElem(ms3.Vec{X: p.X, Y: q.Y, Z: q.Z}, z3)) + s1

			s2 := math32.Min(0, math32.Max(q.X, math32.Max(p.Y, q.Z)))
			n2 := ms3.Norm(ms3.MaxElem(ms3.Vec{X: q.X, Y: p.Y, Z: q.Z}, z3)) + s2

			s3 := math32.Min(0, math32.Max(q.X, math32.Max(q.Y, p.Z)))
			n3 := ms3.Norm(ms3.MaxElem(ms3.Vec{X: q.X, Y: q.Y, Z: p.Z}, z3)) + s3
			return math32.Min(n1, math32.Min(n2, n3))
		},
		Bounds: func(args []raymarch.Value) ms3.Box {
			d := args[0].Vec3()
			return ms3.Box{Min: ms3.Scale(-1, d), Max: d}
		},
		Check: func(args []raymarch.Value) error {
			d, e := args[0].Vec3(), args[1].Float()
			if !(d.X > 0 && d.Y > 0 && d.Z > 0 && e > 0) {
				return errors.New("negative or zero BoxFrame dimension")
			} else if 2*e > minElem(d) {
				return errors.New("BoxFrame edge thickness too large")
			}
			return nil
		},
	}

	// HexPrism is a hexagonal prism along the Z axis. side is the apothem of the
	// hexagon, half the face to face distance, and h2 is half the prism length.
	//
	//	HexPrism(side float, h2 float)
	HexPrism = &raymarch.PrimitiveType{
		Name:   "HexPrism",
		Params: []raymarch.Param{{Name: "side", Type: raymarch.ParamFloat}, {Name: "h2", Type: raymarch.ParamFloat}},
		Body: `const vec3 k = vec3(-0.8660254038, 0.5, 0.57735);
p = abs(p);
p.xy -= 2.0*min(dot(k.xy, p.xy), 0.0)*k.xy;
vec2 aux = p.xy-vec2(clamp(p.x,-k.z*o.side,k.z*o.side), o.side);
vec2 d = vec2(length(aux)*sign(p.y-o.side), p.z-o.h2);
return min(max(d.x,d.y),0.0) + length(max(d,0.0));`,
		Eval: func(p ms3.Vec, args []raymarch.Value) float32 {
			const k1, k2, k3 = -tribisect, 0.5, 0.57735
			h1, h2 := args[0].Float(), args[1].Float()
			clm := k3 * h1
			p = ms3.AbsElem(p)
			pm := math32.Min(k1*p.X+k2*p.Y, 0)
			p.X -= 2 * k1 * pm
			p.Y -= 2 * k2 * pm
			aux := ms2.Vec{X: p.X - ms1.Clamp(p.X, -clm, clm), Y: p.Y - h1}
			d1 := ms2.Norm(aux) * sign(p.Y-h1)
			d2 := p.Z - h2
			return math32.Min(math32.Max(d1, d2), 0) + math32.Hypot(math32.Max(d1, 0), math32.Max(d2, 0))
		},
		Bounds: func(args []raymarch.Value) ms3.Box {
			l, h2 := args[0].Float(), args[1].Float()
			lx := l / tribisect
			return ms3.Box{
				Min: ms3.Vec{X: -lx, Y: -l, Z: -h2},
				Max: ms3.Vec{X: lx, Y: l, Z: h2},
			}
		},
		Check: func(args []raymarch.Value) error {
			if !(args[0].Float() > 0 && args[1].Float() > 0) {
				return errors.New("invalid hexagonal prism parameter")
			}
			return nil
		},
	}

	// RoundCylinder is a cylinder along the Y axis with given radius and half height
	// whose rims are rounded by radius r.
	//
	//	RoundCylinder(radius float, h2 float, r float)
	RoundCylinder = &raymarch.PrimitiveType{
		Name: "RoundCylinder",
		Params: []raymarch.Param{
			{Name: "radius", Type: raymarch.ParamFloat},
			{Name: "h2", Type: raymarch.ParamFloat},
			{Name: "r", Type: raymarch.ParamFloat},
		},
		Body: `vec2 d = vec2(length(p.xz)-o.radius+o.r, abs(p.y)-o.h2+o.r);
return min(max(d.x,d.y),0.0) + length(max(d,0.0)) - o.r;`,
		Eval: func(p ms3.Vec, args []raymarch.Value) float32 {
			radius, h2, r := args[0].Float(), args[1].Float(), args[2].Float()
			dx := math32.Hypot(p.X, p.Z) - radius + r
			dy := math32.Abs(p.Y) - h2 + r
			return math32.Min(math32.Max(dx, dy), 0) + math32.Hypot(math32.Max(dx, 0), math32.Max(dy, 0)) - r
		},
		Bounds: func(args []raymarch.Value) ms3.Box {
			radius, h2 := args[0].Float(), args[1].Float()
			return ms3.Box{
				Min: ms3.Vec{X: -radius, Y: -h2, Z: -radius},
				Max: ms3.Vec{X: radius, Y: h2, Z: radius},
			}
		},
		Check: func(args []raymarch.Value) error {
			radius, h2, r := args[0].Float(), args[1].Float(), args[2].Float()
			if !(radius > 0 && h2 > 0) {
				return errors.New("bad cylinder dimension")
			} else if r < 0 || r > radius || r > h2 {
				return errors.New("invalid cylinder rounding")
			}
			return nil
		},
	}
)

// Types returns all primitive types of the package.
func Types() []*raymarch.PrimitiveType {
	return []*raymarch.PrimitiveType{RoundBox, BoxFrame, HexPrism, RoundCylinder}
}

// Declare declares all primitive types of the package in sc.
func Declare(sc *raymarch.Scene) error {
	for _, pt := range Types() {
		err := sc.Declare(pt)
		if err != nil {
			return err
		}
	}
	return nil
}

// NewRoundBox creates a box centered at the origin with x,y,z dimensions and a rounding parameter to round edges.
func NewRoundBox(bld *raymarch.Builder, x, y, z, round float32) glbuild.Shader3D {
	d := ms3.Vec{X: x / 2, Y: y / 2, Z: z / 2}
	return bld.NewInstance(RoundBox, raymarch.Vec3(d), raymarch.Float(round))
}

// NewBoxFrame creates a framed box with the frame being composed of square beams of thickness e.
func NewBoxFrame(bld *raymarch.Builder, dimX, dimY, dimZ, e float32) glbuild.Shader3D {
	d := ms3.Vec{X: dimX / 2, Y: dimY / 2, Z: dimZ / 2}
	return bld.NewInstance(BoxFrame, raymarch.Vec3(d), raymarch.Float(e/2))
}

// NewHexagonalPrism creates a hexagonal prism given a face-to-face dimension and length.
// The prism's length is in the z axis.
func NewHexagonalPrism(bld *raymarch.Builder, face2Face, length float32) glbuild.Shader3D {
	return bld.NewInstance(HexPrism, raymarch.Float(face2Face/2), raymarch.Float(length/2))
}

// NewRoundCylinder creates a cylinder centered at the origin with given radius, height and rim rounding.
// The cylinder's axis points in y direction.
func NewRoundCylinder(bld *raymarch.Builder, r, h, rounding float32) glbuild.Shader3D {
	return bld.NewInstance(RoundCylinder, raymarch.Float(r), raymarch.Float(h/2), raymarch.Float(rounding))
}

func minElem(v ms3.Vec) float32 {
	return math32.Min(v.X, math32.Min(v.Y, v.Z))
}

func sign(x float32) float32 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
