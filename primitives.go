package raymarch

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/raymarch/glbuild"
)

// Built-in primitive types. Every [Scene] created with [NewScene] declares them.
var (
	sphereType = &PrimitiveType{
		Name:   "Sphere",
		Params: []Param{{Name: "r", Type: ParamFloat}},
		Body:   "return length(p) - o.r;",
		Eval: func(p ms3.Vec, args []Value) float32 {
			return ms3.Norm(p) - args[0].Float()
		},
		Bounds: func(args []Value) ms3.Box {
			r := args[0].Float()
			return ms3.Box{Min: ms3.Vec{X: -r, Y: -r, Z: -r}, Max: ms3.Vec{X: r, Y: r, Z: r}}
		},
		Check: func(args []Value) error {
			if !(args[0].Float() > 0) {
				return errors.New("zero or negative sphere radius")
			}
			return nil
		},
	}
	aabboxType = &PrimitiveType{
		Name:   "AABBox",
		Params: []Param{{Name: "r", Type: ParamVec3}},
		Body: `vec3 d = abs(p) - o.r;
return min(max(d.x, max(d.y, d.z)), 0.0) + length(max(d, 0.0));`,
		Eval: func(p ms3.Vec, args []Value) float32 {
			d := ms3.Sub(ms3.AbsElem(p), args[0].Vec3())
			return minf(maxf(d.X, maxf(d.Y, d.Z)), 0) + ms3.Norm(ms3.MaxElem(d, ms3.Vec{}))
		},
		Bounds: func(args []Value) ms3.Box {
			r := args[0].Vec3()
			return ms3.Box{Min: ms3.Scale(-1, r), Max: r}
		},
		Check: func(args []Value) error {
			r := args[0].Vec3()
			if !(r.X > 0 && r.Y > 0 && r.Z > 0) {
				return errors.New("zero or negative box dimension")
			}
			return nil
		},
	}
	planeType = &PrimitiveType{
		Name: "Plane",
		Body: "return abs(p.y);",
		Eval: func(p ms3.Vec, args []Value) float32 {
			return absf(p.Y)
		},
		Bounds: func(args []Value) ms3.Box {
			return ms3.Box{
				Min: ms3.Vec{X: -largenum, Z: -largenum},
				Max: ms3.Vec{X: largenum, Z: largenum},
			}
		},
	}
	cylinderType = &PrimitiveType{
		Name:   "Cylinder",
		Params: []Param{{Name: "radius", Type: ParamFloat}, {Name: "height2", Type: ParamFloat}},
		Body: `vec2 d = vec2(length(p.xz) - o.radius, abs(p.y) - o.height2);
return min(max(d.x, d.y), 0.0) + length(max(d, 0.0));`,
		Eval: func(p ms3.Vec, args []Value) float32 {
			dx := hypotf(p.X, p.Z) - args[0].Float()
			dy := absf(p.Y) - args[1].Float()
			return minf(maxf(dx, dy), 0) + hypotf(maxf(dx, 0), maxf(dy, 0))
		},
		Bounds: func(args []Value) ms3.Box {
			r, h2 := args[0].Float(), args[1].Float()
			return ms3.Box{Min: ms3.Vec{X: -r, Y: -h2, Z: -r}, Max: ms3.Vec{X: r, Y: h2, Z: r}}
		},
		Check: func(args []Value) error {
			if !(args[0].Float() > 0 && args[1].Float() > 0) {
				return errors.New("bad cylinder dimension")
			}
			return nil
		},
	}
	torusType = &PrimitiveType{
		Name:   "Torus",
		Params: []Param{{Name: "major", Type: ParamFloat}, {Name: "minor", Type: ParamFloat}},
		Body: `vec2 q = vec2(length(p.xz) - o.major, p.y);
return length(q) - o.minor;`,
		Eval: func(p ms3.Vec, args []Value) float32 {
			q := ms2.Vec{X: hypotf(p.X, p.Z) - args[0].Float(), Y: p.Y}
			return ms2.Norm(q) - args[1].Float()
		},
		Bounds: func(args []Value) ms3.Box {
			R, r := args[0].Float(), args[1].Float()
			return ms3.Box{Min: ms3.Vec{X: -R - r, Y: -r, Z: -R - r}, Max: ms3.Vec{X: R + r, Y: r, Z: R + r}}
		},
		Check: func(args []Value) error {
			R, r := args[0].Float(), args[1].Float()
			if !(R > 0 && r > 0) {
				return errors.New("zero or negative torus radius")
			} else if R < r {
				return errors.New("torus greater radius must be larger than lesser radius")
			}
			return nil
		},
	}
)

// BuiltinTypes returns the primitive types every [Scene] created with [NewScene]
// declares: Sphere, AABBox, Plane, Cylinder and Torus. The returned types are shared and must not be modified.
func BuiltinTypes() []*PrimitiveType {
	return []*PrimitiveType{sphereType, aabboxType, planeType, cylinderType, torusType}
}

// instance is a placement of a primitive type in the world.
type instance struct {
	pt   *PrimitiveType
	decl glbuild.ShaderObject
	args []Value
	t    Transform
}

// NewInstance creates an instance of a primitive type at the origin with the given arguments.
// The type must also be declared in the [Scene] the instance is rendered in.
func (bld *Builder) NewInstance(pt *PrimitiveType, args ...Value) glbuild.Shader3D {
	if pt == nil {
		panic("nil PrimitiveType argument to NewInstance")
	}
	decl, err := pt.ShaderObject()
	if err != nil {
		bld.shapeErrorf("%s", err)
	} else if err = pt.ValidateArgs(args); err != nil {
		bld.shapeErrorf("%s", err)
	}
	return &instance{pt: pt, decl: decl, args: append([]Value(nil), args...), t: IdentityTransform()}
}

// NewSphere creates a sphere centered at the origin of radius r.
func (bld *Builder) NewSphere(r float32) glbuild.Shader3D {
	return bld.NewInstance(sphereType, Float(r))
}

// NewBox creates an axis aligned box centered at the origin with x,y,z dimensions.
func (bld *Builder) NewBox(x, y, z float32) glbuild.Shader3D {
	return bld.NewInstance(aabboxType, Vec3(ms3.Vec{X: x / 2, Y: y / 2, Z: z / 2}))
}

// NewPlane creates the infinite XZ plane through the origin.
func (bld *Builder) NewPlane() glbuild.Shader3D {
	return bld.NewInstance(planeType)
}

// NewCylinder creates a cylinder centered at the origin with given radius and height.
// The cylinder's axis points in y direction.
func (bld *Builder) NewCylinder(r, h float32) glbuild.Shader3D {
	return bld.NewInstance(cylinderType, Float(r), Float(h/2))
}

// NewTorus creates a torus lying on the XZ plane centered at the origin.
// greaterRadius is the distance from the center to the tube's center and lesserRadius the tube's radius.
func (bld *Builder) NewTorus(greaterRadius, lesserRadius float32) glbuild.Shader3D {
	return bld.NewInstance(torusType, Float(greaterRadius), Float(lesserRadius))
}

// NodeName returns the name of the instance's primitive type.
func (s *instance) NodeName() string { return s.pt.Name }

// PrimitiveType returns the type the instance was created from.
func (s *instance) PrimitiveType() *PrimitiveType { return s.pt }

// Transform returns the instance's local to world transform.
func (s *instance) Transform() Transform { return s.t }

func (s *instance) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (s *instance) AppendShaderExpr(b []byte) []byte {
	b = append(b, "sdist(p,"...)
	b = append(b, s.pt.Name...)
	b = append(b, '(')
	for _, arg := range s.args {
		b = arg.AppendGLSL(b)
		b = append(b, ',')
	}
	b = s.t.AppendGLSL(b)
	b = append(b, "))"...)
	return b
}

func (s *instance) AppendShaderObjects(objects []glbuild.ShaderObject) []glbuild.ShaderObject {
	return append(objects, s.decl)
}

func (s *instance) Bounds() ms3.Box {
	return s.t.Bounds(s.pt.localBounds(s.args))
}

func (s *instance) transformed(T Transform) (glbuild.Shader3D, error) {
	cp := *s
	cp.t = s.t.Then(T)
	return &cp, nil
}

func (s *instance) String() string {
	return fmt.Sprintf("%s%v", s.pt.Name, s.args)
}

// emptiness is the scene with no surfaces. Its distance is +Inf everywhere.
type emptiness struct{}

// Emptiness returns the SDF of a scene with no surfaces. Its distance is +Inf everywhere.
func Emptiness() glbuild.Shader3D { return emptiness{} }

func (emptiness) NodeName() string { return "Emptiness" }

func (emptiness) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (emptiness) AppendShaderExpr(b []byte) []byte {
	return append(b, "INF"...)
}

func (emptiness) AppendShaderObjects(objects []glbuild.ShaderObject) []glbuild.ShaderObject {
	return objects
}

func (emptiness) Bounds() ms3.Box { return ms3.Box{} }

func (e emptiness) transformed(T Transform) (glbuild.Shader3D, error) { return e, nil }
