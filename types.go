package raymarch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/raymarch/glbuild"
)

// ParamType is the GLSL type of a [PrimitiveType] parameter.
type ParamType uint8

const (
	paramUndefined ParamType = iota
	ParamFloat
	ParamVec2
	ParamVec3
	ParamVec4
	// ParamTransform is a nested [Transform] parameter. Bodies can use it
	// as in `applyInverse(o.inner, p)`.
	ParamTransform
)

// String returns the GLSL type name.
func (pt ParamType) String() string {
	switch pt {
	case ParamFloat:
		return "float"
	case ParamVec2:
		return "vec2"
	case ParamVec3:
		return "vec3"
	case ParamVec4:
		return "vec4"
	case ParamTransform:
		return "Transform"
	}
	return "ParamType(" + fmt.Sprint(uint8(pt)) + ")"
}

func (pt ParamType) isValid() bool {
	return pt > paramUndefined && pt <= ParamTransform
}

// Param is a named field of a [PrimitiveType].
type Param struct {
	Name string
	Type ParamType
}

// Value is an argument to a [PrimitiveType] parameter. Create them with
// [Float], [Vec2], [Vec3], [Vec4] and [TransformValue].
type Value struct {
	typ ParamType
	v   [4]float32
	t   Transform
}

// Float returns a float [Value].
func Float(f float32) Value { return Value{typ: ParamFloat, v: [4]float32{f}} }

// Vec2 returns a vec2 [Value].
func Vec2(v ms2.Vec) Value { return Value{typ: ParamVec2, v: [4]float32{v.X, v.Y}} }

// Vec3 returns a vec3 [Value].
func Vec3(v ms3.Vec) Value { return Value{typ: ParamVec3, v: [4]float32{v.X, v.Y, v.Z}} }

// Vec4 returns a vec4 [Value].
func Vec4(x, y, z, w float32) Value { return Value{typ: ParamVec4, v: [4]float32{x, y, z, w}} }

// TransformValue returns a nested transform [Value]. The rotation is normalized to a
// unit quaternion. Invalid transforms are kept as given and rejected on validation.
func TransformValue(t Transform) Value {
	if tn, err := t.normalized(); err == nil {
		t = tn
	}
	return Value{typ: ParamTransform, t: t}
}

// Type returns the GLSL type of the value.
func (v Value) Type() ParamType { return v.typ }

// Float returns the value of a float. Panics if v is not a float.
func (v Value) Float() float32 {
	v.mustBe(ParamFloat)
	return v.v[0]
}

// Vec2 returns the value of a vec2. Panics if v is not a vec2.
func (v Value) Vec2() ms2.Vec {
	v.mustBe(ParamVec2)
	return ms2.Vec{X: v.v[0], Y: v.v[1]}
}

// Vec3 returns the value of a vec3. Panics if v is not a vec3.
func (v Value) Vec3() ms3.Vec {
	v.mustBe(ParamVec3)
	return ms3.Vec{X: v.v[0], Y: v.v[1], Z: v.v[2]}
}

// Vec4 returns the value of a vec4. Panics if v is not a vec4.
func (v Value) Vec4() [4]float32 {
	v.mustBe(ParamVec4)
	return v.v
}

// Transform returns the value of a nested transform. Panics if v is not a transform.
func (v Value) Transform() Transform {
	v.mustBe(ParamTransform)
	return v.t
}

func (v Value) mustBe(typ ParamType) {
	if v.typ != typ {
		panic("raymarch: want " + typ.String() + " value, got " + v.typ.String())
	}
}

// AppendGLSL appends the GLSL literal of v.
func (v Value) AppendGLSL(b []byte) []byte {
	switch v.typ {
	case ParamFloat:
		return glbuild.AppendFloat(b, '-', '.', v.v[0])
	case ParamVec2:
		return glbuild.AppendVec2(b, v.v[0], v.v[1])
	case ParamVec3:
		return glbuild.AppendVec3(b, ms3.Vec{X: v.v[0], Y: v.v[1], Z: v.v[2]})
	case ParamVec4:
		return glbuild.AppendVec4(b, v.v[0], v.v[1], v.v[2], v.v[3])
	case ParamTransform:
		return v.t.AppendGLSL(b)
	}
	panic("raymarch: undefined Value")
}

func (v Value) validate() error {
	switch v.typ {
	case ParamTransform:
		_, err := v.t.normalized()
		return err
	case ParamFloat, ParamVec2, ParamVec3, ParamVec4:
		for _, f := range v.v {
			if !isFinite(f) {
				return errors.New("non-finite " + v.typ.String() + " value")
			}
		}
		return nil
	}
	return errors.New("undefined value")
}

// PrimitiveType is a user declarable SDF primitive. Its distance function is written
// in the primitive's local, untransformed frame. Instances of a PrimitiveType place it
// in the world with a [Transform].
//
// The GLSL generated for a primitive type named Name is:
//
//	struct Name {<params>; Transform t;};
//	float sdName(vec3 p, Name o) {<Body>}
//	float sdist(vec3 p, Name o) {return sdName(applyInverse(o.t, p), o) * o.t.scale;}
type PrimitiveType struct {
	// Name is the GLSL struct name of the type.
	Name string
	// Params are the struct fields in declaration order. The body reads them as o.<Name>.
	Params []Param
	// Body is the GLSL body of the local frame distance function with arguments
	// `vec3 p` and `<Name> o`. Line comments and preprocessor directives are not
	// allowed since the body is injected through a macro.
	Body string
	// Eval is the CPU implementation of Body. It is required for CPU evaluation and
	// rendering with package glrender.
	Eval func(p ms3.Vec, args []Value) float32
	// Bounds returns the local frame bounding box for the given arguments.
	// If nil the primitive is treated as unbounded.
	Bounds func(args []Value) ms3.Box
	// Check optionally validates argument values, i.e: positive radii.
	// It is called after argument count and types are checked.
	Check func(args []Value) error
}

// Validate checks the type can be lowered to valid GLSL.
func (pt *PrimitiveType) Validate() error {
	if pt == nil {
		return errors.New("nil PrimitiveType")
	}
	if !glbuild.IsIdentifier(pt.Name) {
		return fmt.Errorf("invalid primitive type name %q", pt.Name)
	} else if isReservedName(pt.Name) || isReservedName("sd"+pt.Name) {
		// The local distance function sd<Name> must not shadow template functions.
		return fmt.Errorf("primitive type name %q is reserved", pt.Name)
	}
	for i, param := range pt.Params {
		switch {
		case !glbuild.IsIdentifier(param.Name):
			return fmt.Errorf("%s: invalid parameter name %q", pt.Name, param.Name)
		case param.Name == "t" || isReservedName(param.Name):
			return fmt.Errorf("%s: parameter name %q is reserved", pt.Name, param.Name)
		case !param.Type.isValid():
			return fmt.Errorf("%s: parameter %q has undefined type", pt.Name, param.Name)
		}
		for _, prev := range pt.Params[:i] {
			if prev.Name == param.Name {
				return fmt.Errorf("%s: duplicate parameter name %q", pt.Name, param.Name)
			}
		}
	}
	body := strings.TrimSpace(pt.Body)
	switch {
	case body == "":
		return fmt.Errorf("%s: empty body", pt.Name)
	case strings.Contains(body, "//"):
		return fmt.Errorf("%s: body contains a line comment, use /* */ comments", pt.Name)
	case strings.Contains(body, "#"):
		return fmt.Errorf("%s: body contains a preprocessor directive", pt.Name)
	case strings.Count(body, "{") != strings.Count(body, "}"):
		return fmt.Errorf("%s: body has unbalanced braces", pt.Name)
	}
	return nil
}

// ValidateArgs checks args match the type's parameters in count and type.
func (pt *PrimitiveType) ValidateArgs(args []Value) error {
	if len(args) != len(pt.Params) {
		return fmt.Errorf("%s: want %d arguments, got %d", pt.Name, len(pt.Params), len(args))
	}
	for i, arg := range args {
		param := pt.Params[i]
		if arg.typ != param.Type {
			return fmt.Errorf("%s: argument %q want %s, got %s", pt.Name, param.Name, param.Type, arg.typ)
		}
		err := arg.validate()
		if err != nil {
			return fmt.Errorf("%s: argument %q: %w", pt.Name, param.Name, err)
		}
	}
	if pt.Check != nil {
		err := pt.Check(args)
		if err != nil {
			return fmt.Errorf("%s: %w", pt.Name, err)
		}
	}
	return nil
}

// ShaderObject returns the GLSL declaration of the type. The type must be valid.
func (pt *PrimitiveType) ShaderObject() (glbuild.ShaderObject, error) {
	err := pt.Validate()
	if err != nil {
		return glbuild.ShaderObject{}, err
	}
	return glbuild.MakeShaderDecl(pt.Name, pt.AppendDecl(nil))
}

// AppendDecl appends the GLSL struct, local distance function and sdist overload of the type.
func (pt *PrimitiveType) AppendDecl(b []byte) []byte {
	b = append(b, "struct "...)
	b = append(b, pt.Name...)
	b = append(b, " {"...)
	for _, param := range pt.Params {
		b = append(b, param.Type.String()...)
		b = append(b, ' ')
		b = append(b, param.Name...)
		b = append(b, "; "...)
	}
	b = append(b, "Transform t;};\n"...)

	b = append(b, "float sd"...)
	b = append(b, pt.Name...)
	b = append(b, "(vec3 p, "...)
	b = append(b, pt.Name...)
	b = append(b, " o) {\n"...)
	b = append(b, strings.TrimSpace(pt.Body)...)
	b = append(b, "\n}\n"...)

	b = append(b, "float sdist(vec3 p, "...)
	b = append(b, pt.Name...)
	b = append(b, " o) {return sd"...)
	b = append(b, pt.Name...)
	b = append(b, "(applyInverse(o.t, p), o) * o.t.scale;}"...)
	return b
}

func (pt *PrimitiveType) localBounds(args []Value) ms3.Box {
	if pt.Bounds == nil {
		return unboundedBox()
	}
	return pt.Bounds(args)
}

var reservedNames = map[string]bool{}

func init() {
	// Names used by the fragment template.
	const template = "Transform sdist sdScene smin qrotate qconj applyInverse normalAtPoint raymarch lightCoef " +
		"hitColor skyColor rayDirection isMiss main p o INF EPSILON SURFACE_COLOR AMBIENT SKY_AWAY_COLOR " +
		"SKY_SUN_COLOR SUN_DISK_COLOR SUN_DISK_COS fragColor Scene"
	// GLSL keywords and builtin types.
	const keywords = "attribute const uniform varying buffer shared coherent volatile restrict readonly writeonly " +
		"layout centroid flat smooth noperspective patch sample break continue do for while switch case default " +
		"if else subroutine in out inout float double int void bool true false invariant precise discard return " +
		"mat2 mat3 mat4 dmat2 dmat3 dmat4 vec2 vec3 vec4 ivec2 ivec3 ivec4 bvec2 bvec3 bvec4 dvec2 dvec3 dvec4 " +
		"uint uvec2 uvec3 uvec4 lowp mediump highp precision struct sampler1D sampler2D sampler3D samplerCube " +
		"image1D image2D image3D atomic_uint common partition active asm class union enum typedef template this " +
		"resource goto inline noinline public static extern external interface long short half fixed unsigned " +
		"superp input output sizeof cast namespace using"
	for _, name := range strings.Fields(template + " " + keywords) {
		reservedNames[name] = true
	}
}

func isReservedName(name string) bool {
	return reservedNames[name]
}
