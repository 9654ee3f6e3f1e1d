package raymarch_test

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/raymarch"
	"github.com/soypat/raymarch/glbuild"
	"github.com/soypat/raymarch/gleval"
)

type shaderTestConfig struct {
	bld     *raymarch.Builder
	posbuf  []ms3.Vec
	posbuf2 []ms3.Vec
	distbuf []float32
	dist2   []float32
	vp      gleval.VecPool
	rng     *rand.Rand
}

func newShaderTestConfig() *shaderTestConfig {
	const bufsize = 1024
	return &shaderTestConfig{
		bld:     &raymarch.Builder{},
		posbuf:  make([]ms3.Vec, bufsize),
		posbuf2: make([]ms3.Vec, bufsize),
		distbuf: make([]float32, bufsize),
		dist2:   make([]float32, bufsize),
		rng:     rand.New(rand.NewSource(1)),
	}
}

// randomPositions fills the position buffer with points in the box [-size,size]^3.
func (cfg *shaderTestConfig) randomPositions(size float32) []ms3.Vec {
	for i := range cfg.posbuf {
		cfg.posbuf[i] = ms3.Vec{
			X: size * (2*cfg.rng.Float32() - 1),
			Y: size * (2*cfg.rng.Float32() - 1),
			Z: size * (2*cfg.rng.Float32() - 1),
		}
	}
	return cfg.posbuf
}

func (cfg *shaderTestConfig) evaluate(t *testing.T, s glbuild.Shader3D, pos []ms3.Vec, dist []float32) {
	t.Helper()
	sdf, err := gleval.AssertSDF3(s)
	if err != nil {
		t.Fatal(err)
	}
	err = sdf.Evaluate(pos, dist[:len(pos)], &cfg.vp)
	if err != nil {
		t.Fatal(err)
	}
	err = cfg.vp.AssertAllReleased()
	if err != nil {
		t.Fatal(err)
	}
}

func (cfg *shaderTestConfig) randomTransform() raymarch.Transform {
	rng := cfg.rng
	var axis ms3.Vec
	for ms3.Norm(axis) < .5 {
		axis = ms3.Vec{X: rng.Float32()*2 - 1, Y: rng.Float32()*2 - 1, Z: rng.Float32()*2 - 1}
	}
	return raymarch.Transform{
		Rotation:    ms3.Rotation(2*math.Pi*(rng.Float32()-0.5), ms3.Unit(axis)),
		Translation: ms3.Vec{X: 4 * (rng.Float32() - 0.5), Y: 4 * (rng.Float32() - 0.5), Z: 4 * (rng.Float32() - 0.5)},
		Scale:       0.25 + 3*rng.Float32(),
	}
}

func testShapes(bld *raymarch.Builder) []glbuild.Shader3D {
	sphere := bld.NewSphere(1)
	box := bld.NewBox(1, 0.5, 0.8)
	cyl := bld.NewCylinder(0.5, 1.2)
	torus := bld.NewTorus(1, 0.25)
	return []glbuild.Shader3D{
		sphere,
		box,
		cyl,
		torus,
		bld.NewPlane(),
		bld.Union(sphere, bld.Translate(box, 1, 0, 0)),
		bld.Intersection(sphere, box, cyl),
		bld.Difference(box, bld.Scale(sphere, 0.4)),
		bld.SmoothUnion(0.3, sphere, bld.Translate(torus, 0, 1, 0), bld.Rotate(cyl, 1, ms3.Vec{X: 1})),
	}
}

func TestSphereAnalytic(t *testing.T) {
	cfg := newShaderTestConfig()
	const r = 1.5
	sphere := cfg.bld.NewSphere(r)
	pos := cfg.randomPositions(3)
	dist := cfg.distbuf
	cfg.evaluate(t, sphere, pos, dist)
	var inside, outside int
	for i, p := range pos {
		want := math32.Sqrt(p.X*p.X+p.Y*p.Y+p.Z*p.Z) - r
		if math32.Abs(dist[i]-want) > 1e-5 {
			t.Fatalf("sphere distance at %v: got %f, want %f", p, dist[i], want)
		}
		if want < 0 {
			inside++
		} else {
			outside++
		}
	}
	if inside == 0 || outside == 0 {
		t.Fatal("expected samples both inside and outside of sphere", inside, outside)
	}
}

func TestTransformScalesDistance(t *testing.T) {
	cfg := newShaderTestConfig()
	for _, shape := range testShapes(cfg.bld) {
		for n := 0; n < 4; n++ {
			T := cfg.randomTransform()
			transformed := cfg.bld.Transform(shape, T)
			local := cfg.randomPositions(2)
			world := cfg.posbuf2[:len(local)]
			for i, p := range local {
				world[i] = T.Apply(p)
			}
			cfg.evaluate(t, shape, local, cfg.distbuf)
			cfg.evaluate(t, transformed, world, cfg.dist2)
			for i, dLocal := range cfg.distbuf[:len(local)] {
				want := T.Scale * dLocal
				got := cfg.dist2[i]
				tol := 2e-4 * (1 + math32.Abs(want))
				if math32.Abs(got-want) > tol {
					t.Fatalf("%s: scale=%f at local %v: got %f, want %f", glbuild.FormatShader(shape), T.Scale, local[i], got, want)
				}
			}
		}
	}
	if err := cfg.bld.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestTransformCompose(t *testing.T) {
	cfg := newShaderTestConfig()
	for n := 0; n < 16; n++ {
		T1 := cfg.randomTransform()
		T2 := cfg.randomTransform()
		composed := T1.Then(T2)
		for _, p := range cfg.randomPositions(3)[:32] {
			want := T2.Apply(T1.Apply(p))
			got := composed.Apply(p)
			if ms3.Norm(ms3.Sub(got, want)) > 1e-3*(1+ms3.Norm(want)) {
				t.Fatalf("composed transform: got %v, want %v", got, want)
			}
			back := composed.ApplyInverse(got)
			if ms3.Norm(ms3.Sub(back, p)) > 1e-3 {
				t.Fatalf("inverse transform: got %v, want %v", back, p)
			}
		}
	}
}

func TestRotate(t *testing.T) {
	cfg := newShaderTestConfig()
	bld := cfg.bld
	box := bld.NewBox(2, 0.5, 0.25)
	// Non-unit axis: a quarter turn about Z maps the box's long side onto Y.
	rotated := bld.Rotate(box, math.Pi/2, ms3.Vec{Z: 2})
	pos := []ms3.Vec{{X: 0.9}, {Y: 0.9}, {Y: -0.5}, {X: 0.5}}
	cfg.evaluate(t, rotated, pos, cfg.distbuf)
	for i, p := range pos {
		inside := cfg.distbuf[i] < 0
		if wantInside := p.Y != 0; inside != wantInside {
			t.Errorf("rotated box at %v: distance %f, want inside=%v", p, cfg.distbuf[i], wantInside)
		}
	}
	q := ms3.Rotation(math.Pi/2, ms3.Unit(ms3.Vec{Z: 2}))
	T := raymarch.IdentityTransform()
	T.Rotation = q
	got := T.Apply(ms3.Vec{X: 1})
	if ms3.Norm(ms3.Sub(got, ms3.Vec{Y: 1})) > 1e-6 {
		t.Errorf("rotate x 90 degrees about z: got %v", got)
	}
	v := ms3.Vec{X: 1, Y: 2, Z: 3}
	if back := T.ApplyInverse(T.Apply(v)); ms3.Norm(ms3.Sub(back, v)) > 1e-5 {
		t.Errorf("inverse did not undo rotation: %v", back)
	}
	if got := raymarch.IdentityTransform().Apply(v); got != v {
		t.Errorf("identity transform changed vector: %v", got)
	}
	if err := bld.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestSmoothUnionConvergesToUnion(t *testing.T) {
	cfg := newShaderTestConfig()
	bld := cfg.bld
	a := bld.NewSphere(1)
	b := bld.Translate(bld.NewBox(1, 1, 1), 1.2, 0, 0)
	const k = 1e-4
	union := bld.Union(a, b)
	smooth := bld.SmoothUnion(k, a, b)
	pos := cfg.randomPositions(3)
	da := make([]float32, len(pos))
	db := make([]float32, len(pos))
	cfg.evaluate(t, a, pos, da)
	cfg.evaluate(t, b, pos, db)
	cfg.evaluate(t, union, pos, cfg.distbuf)
	cfg.evaluate(t, smooth, pos, cfg.dist2)
	tested := 0
	for i := range pos {
		if math32.Abs(da[i]-db[i]) < 10*k {
			continue // Mutual boundary.
		}
		tested++
		if cfg.distbuf[i] != cfg.dist2[i] {
			t.Fatalf("at %v: smooth union %f != union %f", pos[i], cfg.dist2[i], cfg.distbuf[i])
		}
	}
	if tested < len(pos)/2 {
		t.Fatal("too few points tested", tested)
	}
}

func TestSmoothUnionFoldOrder(t *testing.T) {
	var bld raymarch.Builder
	a := bld.NewSphere(1)
	b := bld.NewSphere(2)
	c := bld.NewSphere(3)
	s := bld.SmoothUnion(0.5, a, b, c)
	got := string(s.AppendShaderExpr(nil))
	if !strings.HasPrefix(got, "smin(sdist(p,Sphere(1.,") {
		t.Errorf("smooth union must start with first argument: %s", got)
	}
	if !strings.HasSuffix(got, "),0.5),0.5)") {
		t.Errorf("smooth union must be a right fold: %s", got)
	}
	if n := strings.Count(got, "smin("); n != 2 {
		t.Errorf("want 2 smin calls, got %d", n)
	}
}

func TestBounds(t *testing.T) {
	cfg := newShaderTestConfig()
	const eps = 1e-2
	shapes := testShapes(cfg.bld)
	for _, shape := range shapes {
		if strings.Contains(glbuild.FormatShader(shape), "Plane") {
			continue // Unbounded.
		}
		for _, T := range []raymarch.Transform{raymarch.IdentityTransform(), cfg.randomTransform()} {
			s := cfg.bld.Transform(shape, T)
			bb := s.Bounds()
			size := bb.Size()
			offs := [3]float32{-1, 0, 1}
			for _, xo := range offs {
				for _, yo := range offs {
					for _, zo := range offs {
						if xo == 0 && yo == 0 && zo == 0 {
							continue
						}
						off := ms3.Vec{X: xo * (size.X + eps), Y: yo * (size.Y + eps), Z: zo * (size.Z + eps)}
						pos := ms3.AppendGrid(cfg.posbuf[:0], bb.Add(off), 6, 6, 6)
						cfg.evaluate(t, s, pos, cfg.distbuf)
						for i, d := range cfg.distbuf[:len(pos)] {
							if d < 0 {
								t.Fatalf("%s: point %v outside bounds %+v has negative distance %f", glbuild.FormatShader(s), pos[i], bb, d)
							}
						}
					}
				}
			}
		}
	}
}

func TestSceneShader(t *testing.T) {
	var bld raymarch.Builder
	scene := raymarch.NewScene("ball")
	scene.SetSDF(bld.NewSphere(1))
	var buf bytes.Buffer
	n, err := scene.WriteShader(&buf)
	if err != nil {
		t.Fatal(err)
	} else if n != buf.Len() {
		t.Error("mismatched length")
	}
	src := buf.String()
	for _, want := range []string{
		glbuild.VersionStr + "#define TEMPLATE_SDFTYPES \\\n",
		"struct Sphere {float r; Transform t;};",
		"float sdist(vec3 p, Sphere o) {return sdSphere(applyInverse(o.t, p), o) * o.t.scale;}",
		"#define TEMPLATE_SDSCENE \\\nreturn sdist(p,Sphere(1.,Transform(vec4(0.,0.,0.,1.),vec3(0.,0.,0.),1.)));\n",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("shader missing %q", want)
		}
	}
	// Every built-in type is declared exactly once.
	for _, pt := range raymarch.BuiltinTypes() {
		if c := strings.Count(src, "struct "+pt.Name+" {"); c != 1 {
			t.Errorf("want %s declared once, got %d", pt.Name, c)
		}
	}
}

func TestSceneEmpty(t *testing.T) {
	scene := raymarch.NewScene("")
	if got := scene.DisplayName(); got != "Unnamed scene" {
		t.Errorf("want default scene name, got %q", got)
	}
	var buf bytes.Buffer
	_, err := scene.WriteShader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "#define TEMPLATE_SDSCENE \\\nreturn INF;\n") {
		t.Error("empty scene must return INF")
	}
	sdf, err := gleval.AssertSDF3(scene.SDF())
	if err != nil {
		t.Fatal(err)
	}
	dist := []float32{0, 0}
	err = sdf.Evaluate([]ms3.Vec{{}, {X: 100}}, dist, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range dist {
		if !math32.IsInf(d, 1) {
			t.Errorf("empty scene distance must be +Inf, got %f", d)
		}
	}
}

var gyroidType = &raymarch.PrimitiveType{
	Name: "Gyroid",
	Params: []raymarch.Param{
		{Name: "scale", Type: raymarch.ParamFloat},
		{Name: "thickness", Type: raymarch.ParamFloat},
	},
	Body: `vec3 q = p * o.scale;
return abs(dot(sin(q), cos(q.zxy))) / o.scale - o.thickness;`,
	Eval: func(p ms3.Vec, args []raymarch.Value) float32 {
		s, th := args[0].Float(), args[1].Float()
		q := ms3.Scale(s, p)
		d := math32.Sin(q.X)*math32.Cos(q.Z) + math32.Sin(q.Y)*math32.Cos(q.X) + math32.Sin(q.Z)*math32.Cos(q.Y)
		return math32.Abs(d)/s - th
	},
}

func TestUndeclaredType(t *testing.T) {
	var bld raymarch.Builder
	scene := raymarch.NewScene("gyroid")
	g := bld.NewInstance(gyroidType, raymarch.Float(3), raymarch.Float(0.1))
	scene.SetSDF(bld.Union(bld.NewSphere(1), g))
	_, err := scene.WriteShader(&bytes.Buffer{})
	if err == nil {
		t.Fatal("expected undeclared type error")
	} else if !strings.Contains(err.Error(), `undeclared primitive type "Gyroid"`) {
		t.Fatalf("unexpected error: %s", err)
	}
	if scene.Validate() == nil {
		t.Error("expected Validate to fail")
	}

	err = scene.Declare(gyroidType)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	_, err = scene.WriteShader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "struct Gyroid {float scale; float thickness; Transform t;};") {
		t.Error("missing Gyroid declaration")
	}
	if scene.Lookup("Gyroid") != gyroidType {
		t.Error("lookup of declared type failed")
	}
}

func TestDeclareConflict(t *testing.T) {
	scene := raymarch.NewScene("conflict")
	err := scene.Declare(gyroidType)
	if err != nil {
		t.Fatal(err)
	}
	// Redeclaring the same definition is allowed.
	err = scene.Declare(gyroidType)
	if err != nil {
		t.Fatal(err)
	}
	other := *gyroidType
	other.Body = "return length(p) - o.thickness;"
	err = scene.Declare(&other)
	if err == nil {
		t.Fatal("expected conflicting declaration error")
	}
	ntypes := len(raymarch.BuiltinTypes()) + 1
	if got := len(scene.Types()); got != ntypes {
		t.Errorf("want %d declared types, got %d", ntypes, got)
	}
}

func TestPrimitiveTypeValidate(t *testing.T) {
	valid := func() raymarch.PrimitiveType { return *gyroidType }
	var tests = []struct {
		desc   string
		modify func(pt *raymarch.PrimitiveType)
	}{
		{"bad name", func(pt *raymarch.PrimitiveType) { pt.Name = "2Gyroid" }},
		{"reserved name", func(pt *raymarch.PrimitiveType) { pt.Name = "Transform" }},
		{"local function shadows sdist", func(pt *raymarch.PrimitiveType) { pt.Name = "ist" }},
		{"local function shadows sdScene", func(pt *raymarch.PrimitiveType) { pt.Name = "Scene" }},
		{"keyword name", func(pt *raymarch.PrimitiveType) { pt.Name = "vec3" }},
		{"gl prefix", func(pt *raymarch.PrimitiveType) { pt.Name = "gl_Thing" }},
		{"param t", func(pt *raymarch.PrimitiveType) { pt.Params[0].Name = "t" }},
		{"duplicate param", func(pt *raymarch.PrimitiveType) { pt.Params[1].Name = pt.Params[0].Name }},
		{"undefined param type", func(pt *raymarch.PrimitiveType) { pt.Params[0].Type = 0 }},
		{"empty body", func(pt *raymarch.PrimitiveType) { pt.Body = " \n" }},
		{"line comment", func(pt *raymarch.PrimitiveType) { pt.Body = "return 1.0; // one" }},
		{"directive", func(pt *raymarch.PrimitiveType) { pt.Body = "#define X 1\nreturn X;" }},
		{"unbalanced", func(pt *raymarch.PrimitiveType) { pt.Body = "if (true) { return 1.0;" }},
	}
	pt := valid()
	if err := pt.Validate(); err != nil {
		t.Fatal(err)
	}
	for _, test := range tests {
		pt := valid()
		pt.Params = append([]raymarch.Param(nil), pt.Params...)
		test.modify(&pt)
		if err := pt.Validate(); err == nil {
			t.Errorf("%s: expected error", test.desc)
		}
	}
}

var warpType = &raymarch.PrimitiveType{
	Name: "Warp",
	Params: []raymarch.Param{
		{Name: "inner", Type: raymarch.ParamTransform},
		{Name: "size", Type: raymarch.ParamVec2},
		{Name: "tint", Type: raymarch.ParamVec4},
	},
	Body: `return length(applyInverse(o.inner, p)) - o.size.x;`,
	Eval: func(p ms3.Vec, args []raymarch.Value) float32 {
		return ms3.Norm(args[0].Transform().ApplyInverse(p)) - args[1].Vec2().X
	},
}

func TestTransformValueNormalized(t *testing.T) {
	// Quarter turn about Z with a quaternion of norm sqrt(2).
	v := raymarch.TransformValue(raymarch.Transform{Rotation: ms3.Quat{K: 1, W: 1}, Scale: 1})
	T := v.Transform()
	if n := T.Rotation.Norm(); math32.Abs(n-1) > 1e-6 {
		t.Fatalf("want unit rotation, got norm %f", n)
	}
	got := T.ApplyInverse(ms3.Vec{X: 1})
	if ms3.Norm(ms3.Sub(got, ms3.Vec{Y: -1})) > 1e-6 {
		t.Errorf("inverse quarter turn of x: got %v, want %v", got, ms3.Vec{Y: -1})
	}
	glsl := string(v.AppendGLSL(nil))
	if !strings.HasPrefix(glsl, "Transform(vec4(0.,0.,0.7071") {
		t.Errorf("want unit quaternion in GLSL, got %s", glsl)
	}

	var bld raymarch.Builder
	bld.SetFlags(raymarch.FlagNoDimensionPanic)
	size := ms2.Vec{X: 0.5, Y: 2}
	w := bld.NewInstance(warpType, v, raymarch.Vec2(size), raymarch.Vec4(1, 0.5, 0.25, 1))
	if err := bld.Err(); err != nil {
		t.Fatal(err)
	}
	scene := raymarch.NewScene("warp")
	if err := scene.Declare(warpType); err != nil {
		t.Fatal(err)
	}
	scene.SetSDF(w)
	var buf bytes.Buffer
	_, err := scene.WriteShader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	src := buf.String()
	for _, want := range []string{
		"struct Warp {Transform inner; vec2 size; vec4 tint; Transform t;};",
		"vec2(0.5,2.),vec4(1.,0.5,0.25,1.)",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("shader missing %q", want)
		}
	}
	if strings.Contains(src, "vec4(0.,0.,1.,1.)") {
		t.Error("shader contains non-unit rotation quaternion")
	}
	sdf, err := gleval.AssertSDF3(w)
	if err != nil {
		t.Fatal(err)
	}
	dist := []float32{0}
	err = sdf.Evaluate([]ms3.Vec{{X: 2}}, dist, nil)
	if err != nil {
		t.Fatal(err)
	} else if math32.Abs(dist[0]-1.5) > 1e-5 {
		t.Errorf("want distance 1.5, got %f", dist[0])
	}

	// Values round trip through their accessors.
	if got := raymarch.Vec2(size).Vec2(); got != size {
		t.Errorf("vec2 value: got %v", got)
	}
	if got := raymarch.Vec4(1, 2, 3, 4).Vec4(); got != [4]float32{1, 2, 3, 4} {
		t.Errorf("vec4 value: got %v", got)
	}

	// A zero quaternion has no rotation to normalize to.
	bld.NewInstance(warpType, raymarch.TransformValue(raymarch.Transform{Scale: 1}), raymarch.Vec2(size), raymarch.Vec4(0, 0, 0, 0))
	if bld.Err() == nil {
		t.Error("expected zero quaternion error")
	}
	bld.ClearErrors()
	bld.NewInstance(warpType, raymarch.TransformValue(raymarch.Transform{Rotation: ms3.QuatIdent()}), raymarch.Vec2(size), raymarch.Vec4(0, 0, 0, 0))
	if bld.Err() == nil {
		t.Error("expected zero scale error")
	}
}

func TestBuilderErrors(t *testing.T) {
	var bld raymarch.Builder
	bld.SetFlags(raymarch.FlagNoDimensionPanic)
	s := bld.NewSphere(-1)
	if s == nil {
		t.Error("expecting non-nil shape")
	}
	if bld.Err() == nil {
		t.Error("expecting error in raymarch.Builder")
	}
	bld.ClearErrors()
	if bld.Err() != nil {
		t.Error("expected builder error to be cleared")
	}
	bld.NewInstance(gyroidType, raymarch.Float(1))
	if bld.Err() == nil {
		t.Error("expected argument count error")
	}
	bld.ClearErrors()
	bld.NewInstance(gyroidType, raymarch.Float(1), raymarch.Vec3(ms3.Vec{}))
	if bld.Err() == nil {
		t.Error("expected argument type error")
	}
	bld.ClearErrors()
	bld.Scale(bld.NewSphere(1), 0)
	if bld.Err() == nil {
		t.Error("expected zero scale error")
	}
	bld.ClearErrors()
	bld.Rotate(bld.NewSphere(1), 1, ms3.Vec{})
	if bld.Err() == nil {
		t.Error("expected zero axis error")
	}

	var panicBld raymarch.Builder
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic without FlagNoDimensionPanic")
			}
		}()
		panicBld.NewBox(1, -1, 1)
	}()
}

func TestFormatShader(t *testing.T) {
	var bld raymarch.Builder
	shape := bld.Union(
		bld.NewSphere(1),
		bld.Difference(bld.NewBox(1, 1, 1), bld.NewCylinder(0.2, 2)),
		bld.Union(bld.NewTorus(1, 0.1), bld.NewPlane()),
	)
	got := glbuild.FormatShader(shape)
	const want = "union(Sphere,difference(AABBox,Cylinder),Torus,Plane)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func ExampleScene_WriteShader() {
	var bld raymarch.Builder
	scene := raymarch.NewScene("example")
	scene.SetSDF(bld.Translate(bld.NewSphere(1), 0, 1, 0))
	var buf bytes.Buffer
	_, err := scene.WriteShader(&buf)
	if err != nil {
		panic(err)
	}
	fmt.Println(strings.Contains(buf.String(), "vec3(0.,1.,0.)"))
	// Output:
	// true
}
