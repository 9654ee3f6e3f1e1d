package raymarch

import (
	"errors"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/raymarch/glbuild"
)

// appendQuat appends the GLSL vec4 literal of q. The vector part maps to xyz and W to w.
func appendQuat(b []byte, q ms3.Quat) []byte {
	return glbuild.AppendVec4(b, q.I, q.J, q.K, q.W)
}

// Transform is a similarity transform: a rotation followed by a uniform scale and a translation,
// mapping local points x to world points Scale*Rotation(x)+Translation.
// Distance fields stay exact under Transform since the scale is uniform.
type Transform struct {
	Rotation    ms3.Quat
	Translation ms3.Vec
	Scale       float32
}

// IdentityTransform returns the transform that leaves points unchanged.
func IdentityTransform() Transform {
	return Transform{Rotation: ms3.QuatIdent(), Scale: 1}
}

// Apply maps a local point to world space.
func (t Transform) Apply(local ms3.Vec) ms3.Vec {
	return ms3.Add(ms3.Scale(t.Scale, t.Rotation.Rotate(local)), t.Translation)
}

// ApplyInverse maps a world point to the local frame.
func (t Transform) ApplyInverse(world ms3.Vec) ms3.Vec {
	return t.Rotation.Conjugate().Rotate(ms3.Scale(1/t.Scale, ms3.Sub(world, t.Translation)))
}

// Then returns the transform that applies t first and outer second.
func (t Transform) Then(outer Transform) Transform {
	return Transform{
		Rotation:    outer.Rotation.Mul(t.Rotation),
		Translation: ms3.Add(ms3.Scale(outer.Scale, outer.Rotation.Rotate(t.Translation)), outer.Translation),
		Scale:       outer.Scale * t.Scale,
	}
}

// Bounds returns the world space axis aligned box enclosing the local box bb after transformation.
func (t Transform) Bounds(bb ms3.Box) ms3.Box {
	var out ms3.Box
	for i := 0; i < 8; i++ {
		corner := bb.Min
		if i&1 != 0 {
			corner.X = bb.Max.X
		}
		if i&2 != 0 {
			corner.Y = bb.Max.Y
		}
		if i&4 != 0 {
			corner.Z = bb.Max.Z
		}
		corner = t.Apply(corner)
		if i == 0 {
			out = ms3.Box{Min: corner, Max: corner}
			continue
		}
		out.Min = minElem(out.Min, corner)
		out.Max = ms3.MaxElem(out.Max, corner)
	}
	return out
}

// AppendGLSL appends the GLSL Transform constructor of t.
func (t Transform) AppendGLSL(b []byte) []byte {
	b = append(b, "Transform("...)
	b = appendQuat(b, t.Rotation)
	b = append(b, ',')
	b = glbuild.AppendVec3(b, t.Translation)
	b = append(b, ',')
	b = glbuild.AppendFloat(b, '-', '.', t.Scale)
	b = append(b, ')')
	return b
}

// normalized validates t and returns it with a unit rotation quaternion.
func (t Transform) normalized() (Transform, error) {
	qnorm := t.Rotation.Norm()
	switch {
	case !isFinite(t.Scale) || t.Scale <= epstol:
		return t, errors.New("transform scale must be positive and finite")
	case !isFinite(qnorm) || qnorm < epstol:
		return t, errors.New("transform rotation must be a non-zero quaternion")
	case !isFiniteVec(t.Translation):
		return t, errors.New("transform translation must be finite")
	}
	t.Rotation = t.Rotation.Unit()
	return t, nil
}

func minElem(a, b ms3.Vec) ms3.Vec {
	return ms3.Vec{X: minf(a.X, b.X), Y: minf(a.Y, b.Y), Z: minf(a.Z, b.Z)}
}
