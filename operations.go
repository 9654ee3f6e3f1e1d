package raymarch

import (
	"fmt"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/raymarch/glbuild"
)

// transformable is implemented by every node created by a [Builder]. Transforms are pushed
// down into the primitive instances at the leaves of the tree so the generated GLSL never
// has to rebind the query point.
type transformable interface {
	transformed(T Transform) (glbuild.Shader3D, error)
}

func transformShader(s glbuild.Shader3D, T Transform) (glbuild.Shader3D, error) {
	tf, ok := s.(transformable)
	if !ok {
		return nil, fmt.Errorf("%T can not be transformed, build it with a raymarch.Builder", s)
	}
	return tf.transformed(T)
}

func transformAll(shaders []glbuild.Shader3D, T Transform) ([]glbuild.Shader3D, error) {
	out := make([]glbuild.Shader3D, len(shaders))
	for i, s := range shaders {
		ts, err := transformShader(s, T)
		if err != nil {
			return nil, err
		}
		out[i] = ts
	}
	return out, nil
}

// OpUnion is the result of the [Builder.Union] operation. Prefer using [Builder.Union] to using this type directly.
//
// Primitives and the results of other operations in this package are not exported.
// OpUnion is the exception since it is the most common operation and users may want to
// traverse a [glbuild.Shader3D] tree looking for unions to section them by bounding box.
type OpUnion struct {
	// joined contains 2 or more 3D SDFs.
	// OpUnion methods will panic if joined has less than 2 elements.
	joined []glbuild.Shader3D
}

// Union joins the shapes of several 3D SDFs into one. Is exact.
// Union aggregates nested Union results into its own. To prevent this behaviour use [OpUnion] directly.
func (bld *Builder) Union(shaders ...glbuild.Shader3D) glbuild.Shader3D {
	if len(shaders) < 2 {
		panic("need at least 2 arguments to Union")
	}
	var U OpUnion
	for i, s := range shaders {
		if s == nil {
			bld.nilsdf(fmt.Sprintf("nil arg[%d] to Union", i))
		}
		if subU, ok := s.(*OpUnion); ok {
			U.joined = append(U.joined, subU.joined...)
		} else {
			U.joined = append(U.joined, s)
		}
	}
	return &U
}

// NodeName implements the naming used by [glbuild.FormatShader].
func (u *OpUnion) NodeName() string { return "union" }

// Bounds returns the union of all joined SDFs. Implements [glbuild.Shader3D] and [gleval.SDF3].
func (u *OpUnion) Bounds() ms3.Box {
	u.mustValidate()
	bb := u.joined[0].Bounds()
	for _, s := range u.joined[1:] {
		bb = bb.Union(s.Bounds())
	}
	return bb
}

// ForEachChild implements [glbuild.Shader3D].
func (u *OpUnion) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	u.mustValidate()
	for i := range u.joined {
		err := fn(userData, &u.joined[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// AppendShaderExpr implements [glbuild.Shader]. Unions are written as nested min calls: min(a,min(b,c)).
func (u *OpUnion) AppendShaderExpr(b []byte) []byte {
	u.mustValidate()
	return appendFold(b, "min(", "", u.joined)
}

// AppendShaderObjects implements [glbuild.Shader]. This method returns the argument buffer with no modifications.
func (u *OpUnion) AppendShaderObjects(objects []glbuild.ShaderObject) []glbuild.ShaderObject {
	u.mustValidate()
	return objects
}

func (u *OpUnion) transformed(T Transform) (glbuild.Shader3D, error) {
	u.mustValidate()
	joined, err := transformAll(u.joined, T)
	if err != nil {
		return nil, err
	}
	return &OpUnion{joined: joined}, nil
}

func (u *OpUnion) mustValidate() {
	if len(u.joined) < 2 {
		panic("OpUnion must have at least 2 elements. please prefer using Builder.Union over OpUnion")
	}
}

// appendFold appends a right nested fold of a binary GLSL function over shaders:
// open+a+","+open+b+","+c+suffix+")"+suffix+")". suffix is appended before every closing parenthesis.
func appendFold(b []byte, open, suffix string, shaders []glbuild.Shader3D) []byte {
	last := len(shaders) - 1
	for _, s := range shaders[:last] {
		b = append(b, open...)
		b = s.AppendShaderExpr(b)
		b = append(b, ',')
	}
	b = shaders[last].AppendShaderExpr(b)
	for range shaders[:last] {
		b = append(b, suffix...)
		b = append(b, ')')
	}
	return b
}

// Intersection is the SDF intersection of all shaders. Does not produce an exact SDF.
func (bld *Builder) Intersection(shaders ...glbuild.Shader3D) glbuild.Shader3D {
	if len(shaders) < 2 {
		panic("need at least 2 arguments to Intersection")
	}
	for i, s := range shaders {
		if s == nil {
			bld.nilsdf(fmt.Sprintf("nil arg[%d] to Intersection", i))
		}
	}
	return &intersect{joined: append([]glbuild.Shader3D(nil), shaders...)}
}

type intersect struct {
	joined []glbuild.Shader3D
}

func (s *intersect) NodeName() string { return "intersection" }

func (s *intersect) Bounds() ms3.Box {
	bb := s.joined[0].Bounds()
	for _, child := range s.joined[1:] {
		bb = bb.Intersect(child.Bounds())
	}
	return bb
}

func (s *intersect) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	for i := range s.joined {
		err := fn(userData, &s.joined[i])
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *intersect) AppendShaderExpr(b []byte) []byte {
	return appendFold(b, "max(", "", s.joined)
}

func (s *intersect) AppendShaderObjects(objects []glbuild.ShaderObject) []glbuild.ShaderObject {
	return objects
}

func (s *intersect) transformed(T Transform) (glbuild.Shader3D, error) {
	joined, err := transformAll(s.joined, T)
	if err != nil {
		return nil, err
	}
	return &intersect{joined: joined}, nil
}

// Difference is the SDF difference of a-b. Does not produce a true SDF.
func (bld *Builder) Difference(a, b glbuild.Shader3D) glbuild.Shader3D {
	if a == nil || b == nil {
		bld.nilsdf("Difference")
	}
	return &diff{s1: a, s2: b}
}

type diff struct {
	s1, s2 glbuild.Shader3D // Performs s1-s2.
}

func (s *diff) NodeName() string { return "difference" }

func (s *diff) Bounds() ms3.Box {
	return s.s1.Bounds()
}

func (s *diff) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	err := fn(userData, &s.s1)
	if err != nil {
		return err
	}
	return fn(userData, &s.s2)
}

func (s *diff) AppendShaderExpr(b []byte) []byte {
	b = append(b, "max("...)
	b = s.s1.AppendShaderExpr(b)
	b = append(b, ",-"...)
	b = s.s2.AppendShaderExpr(b)
	b = append(b, ')')
	return b
}

func (s *diff) AppendShaderObjects(objects []glbuild.ShaderObject) []glbuild.ShaderObject {
	return objects
}

func (s *diff) transformed(T Transform) (glbuild.Shader3D, error) {
	s1, err := transformShader(s.s1, T)
	if err != nil {
		return nil, err
	}
	s2, err := transformShader(s.s2, T)
	if err != nil {
		return nil, err
	}
	return &diff{s1: s1, s2: s2}, nil
}

// SmoothUnion joins the shapes of several SDFs blending the seams between them with
// blend radius k. The result is folded to the right: smin(a,smin(b,c,k),k).
// As k approaches zero the result converges to [Builder.Union].
func (bld *Builder) SmoothUnion(k float32, shaders ...glbuild.Shader3D) glbuild.Shader3D {
	if len(shaders) < 2 {
		panic("need at least 2 arguments to SmoothUnion")
	}
	for i, s := range shaders {
		if s == nil {
			bld.nilsdf(fmt.Sprintf("nil arg[%d] to SmoothUnion", i))
		}
	}
	if !(k > 0) || !isFinite(k) {
		bld.shapeErrorf("smooth union blend radius must be positive and finite")
	}
	return &smoothUnion{k: k, joined: append([]glbuild.Shader3D(nil), shaders...)}
}

type smoothUnion struct {
	k      float32
	joined []glbuild.Shader3D
}

func (s *smoothUnion) NodeName() string { return "smooth_union" }

// Bounds pads the union of the joined bounds since every smin fold can
// dip up to k/4 below the minimum of its arguments.
func (s *smoothUnion) Bounds() ms3.Box {
	bb := s.joined[0].Bounds()
	for _, child := range s.joined[1:] {
		bb = bb.Union(child.Bounds())
	}
	pad := s.k * float32(len(s.joined)-1) / 4
	return ms3.Box{Min: ms3.AddScalar(-pad, bb.Min), Max: ms3.AddScalar(pad, bb.Max)}
}

func (s *smoothUnion) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	for i := range s.joined {
		err := fn(userData, &s.joined[i])
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *smoothUnion) AppendShaderExpr(b []byte) []byte {
	suffix := glbuild.AppendFloat([]byte{','}, '-', '.', s.k)
	return appendFold(b, "smin(", string(suffix), s.joined)
}

func (s *smoothUnion) AppendShaderObjects(objects []glbuild.ShaderObject) []glbuild.ShaderObject {
	return objects
}

// transformed scales the blend radius with the transform since smin(ka,kb,kk) = k*smin(a,b,k).
func (s *smoothUnion) transformed(T Transform) (glbuild.Shader3D, error) {
	joined, err := transformAll(s.joined, T)
	if err != nil {
		return nil, err
	}
	return &smoothUnion{k: s.k * T.Scale, joined: joined}, nil
}

// Transform moves s by the similarity transform T. T is applied after any transform
// s already has. T's rotation need not be normalized.
func (bld *Builder) Transform(s glbuild.Shader3D, T Transform) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Transform")
	}
	T, err := T.normalized()
	if err != nil {
		bld.shapeErrorf("%s", err)
		return s
	}
	ts, err := transformShader(s, T)
	if err != nil {
		bld.shapeErrorf("%s", err)
		return s
	}
	return ts
}

// Translate moves the SDF s in the given direction (dirX, dirY, dirZ) and returns the result.
func (bld *Builder) Translate(s glbuild.Shader3D, dirX, dirY, dirZ float32) glbuild.Shader3D {
	T := IdentityTransform()
	T.Translation = ms3.Vec{X: dirX, Y: dirY, Z: dirZ}
	return bld.Transform(s, T)
}

// Rotate returns the SDF s rotated around axis by the given angle in radians.
// Positive angles rotate counter clockwise looking down the axis.
func (bld *Builder) Rotate(s glbuild.Shader3D, radians float32, axis ms3.Vec) glbuild.Shader3D {
	if ms3.Norm(axis) < epstol {
		bld.shapeErrorf("rotation axis must be non-zero")
		return s
	} else if !isFinite(radians) {
		bld.shapeErrorf("rotation angle must be finite")
		return s
	}
	T := IdentityTransform()
	T.Rotation = ms3.Rotation(radians, ms3.Unit(axis))
	return bld.Transform(s, T)
}

// RotateQuat returns the SDF s rotated by quaternion q. q need not be normalized.
func (bld *Builder) RotateQuat(s glbuild.Shader3D, q ms3.Quat) glbuild.Shader3D {
	T := IdentityTransform()
	T.Rotation = q
	return bld.Transform(s, T)
}

// Scale scales s by scaleFactor around the origin. Scaling is uniform so the result is exact.
func (bld *Builder) Scale(s glbuild.Shader3D, scaleFactor float32) glbuild.Shader3D {
	T := IdentityTransform()
	T.Scale = scaleFactor
	return bld.Transform(s, T)
}
