// Package scenefile builds [raymarch.Scene]s from a small text format.
//
// A scene file holds an optional name header followed by a single shape expression:
//
//	// Comments run to the end of the line.
//	scene "Snowman"
//	smooth_union(0.2,
//		Sphere(1),
//		translate(Sphere(r: 0.6), (0, 1.3, 0)),
//		rotate(Torus(major: 1, minor: 0.1), 1.5708, (1, 0, 0)),
//	)
//
// Shapes are instances of declared primitive types. Their arguments are given positionally
// in parameter order or by parameter name. Float parameters take numbers and vecN parameters
// take N-tuples. The operations are:
//
//	union(a, b, ...)
//	intersection(a, b, ...)
//	difference(a, b)
//	smooth_union(k, a, b, ...)
//	translate(s, (x, y, z))
//	rotate(s, radians, (x, y, z))
//	scale(s, k)
//
// Operation names take precedence over primitive types declared with the same name.
package scenefile

import (
	"fmt"
	"os"

	"github.com/soypat/raymarch"
	"github.com/soypat/raymarch/glbuild"
)

// Parse builds a new scene from src. Built-in primitive types are always declared
// and types declares additional ones.
func Parse(src []byte, types ...*raymarch.PrimitiveType) (*raymarch.Scene, error) {
	sc := raymarch.NewScene("")
	for _, pt := range types {
		err := sc.Declare(pt)
		if err != nil {
			return nil, err
		}
	}
	err := Build(sc, src)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// ParseFile is like [Parse] but reads the scene from the named file.
// Errors in the file are prefixed with its name.
func ParseFile(filename string, types ...*raymarch.PrimitiveType) (*raymarch.Scene, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(src, types...)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", filename, err)
	}
	return sc, nil
}

// Build parses src and sets the resulting shape as the SDF of sc using the primitive
// types declared in sc. The scene's name is set if src has a name header.
// sc is not modified on error.
func Build(sc *raymarch.Scene, src []byte) error {
	f, err := parse(string(src))
	if err != nil {
		return err
	}
	var sdf glbuild.Shader3D
	if f.root != nil {
		b := sceneBuilder{sc: sc}
		err = b.bld.SetFlags(raymarch.FlagNoDimensionPanic)
		if err != nil {
			return err
		}
		sdf, err = b.shape(f.root)
		if err != nil {
			return err
		}
	}
	if f.hasName {
		sc.Name = f.name
	}
	sc.SetSDF(sdf)
	return nil
}

type sceneBuilder struct {
	sc  *raymarch.Scene
	bld raymarch.Builder
}

// check converts errors accumulated by the builder into an error at pos.
func (b *sceneBuilder) check(pos Pos) error {
	err := b.bld.Err()
	if err != nil {
		b.bld.ClearErrors()
		return &Error{Pos: pos, Msg: err.Error()}
	}
	return nil
}

func (b *sceneBuilder) shape(n *node) (glbuild.Shader3D, error) {
	if n.kind != nodeCall {
		return nil, errorf(n.pos, "want shape, got %s", n.describe())
	}
	var s glbuild.Shader3D
	switch n.name {
	case "union", "intersection":
		if len(n.args) < 2 {
			return nil, errorf(n.pos, "%s: need at least 2 shapes, got %d", n.name, len(n.args))
		}
		shapes, err := b.shapeArgs(n, n.args)
		if err != nil {
			return nil, err
		}
		if n.name == "union" {
			s = b.bld.Union(shapes...)
		} else {
			s = b.bld.Intersection(shapes...)
		}

	case "difference":
		err := positional(n, 2)
		if err != nil {
			return nil, err
		}
		shapes, err := b.shapeArgs(n, n.args)
		if err != nil {
			return nil, err
		}
		s = b.bld.Difference(shapes[0], shapes[1])

	case "smooth_union":
		if len(n.args) < 3 {
			return nil, errorf(n.pos, "smooth_union: need blend radius and at least 2 shapes")
		}
		if n.args[0].name != "" {
			return nil, errorf(n.args[0].pos, "smooth_union does not accept named arguments")
		}
		k, err := number(n, n.args[0])
		if err != nil {
			return nil, err
		}
		shapes, err := b.shapeArgs(n, n.args[1:])
		if err != nil {
			return nil, err
		}
		s = b.bld.SmoothUnion(k, shapes...)

	case "translate":
		err := positional(n, 2)
		if err != nil {
			return nil, err
		}
		child, err := b.shape(n.args[0].val)
		if err != nil {
			return nil, err
		}
		v, err := vec3(n, n.args[1])
		if err != nil {
			return nil, err
		}
		s = b.bld.Translate(child, v.X, v.Y, v.Z)

	case "rotate":
		err := positional(n, 3)
		if err != nil {
			return nil, err
		}
		child, err := b.shape(n.args[0].val)
		if err != nil {
			return nil, err
		}
		angle, err := number(n, n.args[1])
		if err != nil {
			return nil, err
		}
		axis, err := vec3(n, n.args[2])
		if err != nil {
			return nil, err
		}
		s = b.bld.Rotate(child, angle, axis)

	case "scale":
		err := positional(n, 2)
		if err != nil {
			return nil, err
		}
		child, err := b.shape(n.args[0].val)
		if err != nil {
			return nil, err
		}
		k, err := number(n, n.args[1])
		if err != nil {
			return nil, err
		}
		s = b.bld.Scale(child, k)

	default:
		var err error
		s, err = b.instance(n)
		if err != nil {
			return nil, err
		}
	}
	return s, b.check(n.pos)
}

func (b *sceneBuilder) instance(n *node) (glbuild.Shader3D, error) {
	pt := b.sc.Lookup(n.name)
	if pt == nil {
		return nil, errorf(n.pos, "undeclared primitive type %q", n.name)
	}
	if len(n.args) > len(pt.Params) {
		return nil, errorf(n.pos, "%s: want %d arguments, got %d", pt.Name, len(pt.Params), len(n.args))
	}
	bound := make([]*arg, len(pt.Params))
	named := false
	for i := range n.args {
		a := &n.args[i]
		idx := i
		if a.name != "" {
			named = true
			idx = paramIndex(pt, a.name)
			if idx < 0 {
				return nil, errorf(a.pos, "%s has no parameter %q", pt.Name, a.name)
			}
		} else if named {
			return nil, errorf(a.pos, "%s: positional argument after named argument", pt.Name)
		}
		if bound[idx] != nil {
			return nil, errorf(a.pos, "%s: parameter %q given more than once", pt.Name, pt.Params[idx].Name)
		}
		bound[idx] = a
	}
	args := make([]raymarch.Value, len(pt.Params))
	for i, param := range pt.Params {
		a := bound[i]
		if a == nil {
			return nil, errorf(n.pos, "%s: missing argument %q", pt.Name, param.Name)
		}
		v, err := value(pt, param, a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return b.bld.NewInstance(pt, args...), nil
}

func paramIndex(pt *raymarch.PrimitiveType, name string) int {
	for i, param := range pt.Params {
		if param.Name == name {
			return i
		}
	}
	return -1
}

func value(pt *raymarch.PrimitiveType, param raymarch.Param, a *arg) (raymarch.Value, error) {
	n := a.val
	mismatch := func() (raymarch.Value, error) {
		return raymarch.Value{}, errorf(a.pos, "%s: argument %q want %s, got %s", pt.Name, param.Name, param.Type, n.describe())
	}
	switch param.Type {
	case raymarch.ParamFloat:
		if n.kind != nodeNumber {
			return mismatch()
		}
		return raymarch.Float(n.num), nil
	case raymarch.ParamVec2:
		if n.kind != nodeTuple || len(n.elem) != 2 {
			return mismatch()
		}
		return raymarch.Vec2(n.vec2()), nil
	case raymarch.ParamVec3:
		if n.kind != nodeTuple || len(n.elem) != 3 {
			return mismatch()
		}
		return raymarch.Vec3(n.vec3()), nil
	case raymarch.ParamVec4:
		if n.kind != nodeTuple || len(n.elem) != 4 {
			return mismatch()
		}
		return raymarch.Vec4(n.elem[0], n.elem[1], n.elem[2], n.elem[3]), nil
	}
	return raymarch.Value{}, errorf(a.pos, "%s: parameter %q of type %s cannot be set from a scene file", pt.Name, param.Name, param.Type)
}
