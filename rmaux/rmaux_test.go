package rmaux

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/raymarch"
	"github.com/soypat/raymarch/glbuild"
)

func sphereScene(name string) *raymarch.Scene {
	var bld raymarch.Builder
	sc := raymarch.NewScene(name)
	sc.SetSDF(bld.Translate(bld.NewSphere(1), 0.5, 0, 0))
	return sc
}

func TestRender(t *testing.T) {
	var shader, pic bytes.Buffer
	cfg := RenderConfig{
		ShaderOutput: &shader,
		PNGOutput:    &pic,
		Width:        32,
		Height:       24,
		Supersample:  2,
		Caption:      true,
		Workers:      3,
		Silent:       true,
	}
	err := Render(sphereScene("ball"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(shader.String(), glbuild.VersionStr) || !strings.Contains(shader.String(), "Sphere(1.,") {
		t.Error("unexpected shader output")
	}
	img, err := png.Decode(&pic)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 24 {
		t.Fatalf("unexpected image size %v", img.Bounds())
	}

	cfg.PNGOutput, cfg.ShaderOutput = nil, nil
	cfg.Caption = false
	cfg.Supersample = 0
	empty, err := RenderImage(raymarch.NewScene(""), cfg)
	if err != nil {
		t.Fatal(err)
	}
	ball, err := RenderImage(sphereScene("ball"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if empty.RGBAAt(16, 12) == ball.RGBAAt(16, 12) {
		t.Error("framed sphere not visible at image center")
	}
	if err := Render(sphereScene(""), RenderConfig{}); err == nil {
		t.Error("expected error without outputs")
	}
}

func TestRenderUndeclaredType(t *testing.T) {
	gyroid := &raymarch.PrimitiveType{
		Name:   "Gyroid",
		Params: []raymarch.Param{{Name: "k", Type: raymarch.ParamFloat}},
		Body:   "return dot(sin(p*o.k), cos(p.zxy*o.k)) / o.k;",
	}
	var bld raymarch.Builder
	sc := raymarch.NewScene("undeclared")
	sc.SetSDF(bld.NewInstance(gyroid, raymarch.Float(2)))
	var buf bytes.Buffer
	err := Render(sc, RenderConfig{ShaderOutput: &buf, Silent: true})
	if err == nil || !strings.Contains(err.Error(), `undeclared primitive type "Gyroid"`) {
		t.Errorf("expected undeclared type error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("no shader should be written for invalid scene")
	}
}

func TestFramingCamera(t *testing.T) {
	boxes := []ms3.Box{
		{Min: ms3.Vec{X: -1, Y: -2, Z: -3}, Max: ms3.Vec{X: 4, Y: 5, Z: 6}},
		{Min: ms3.Vec{X: 10, Y: 10, Z: 10}, Max: ms3.Vec{X: 10.5, Y: 11, Z: 10.1}},
		{},
		{Min: ms3.Vec{X: -1e20, Z: -1e20}, Max: ms3.Vec{X: 1e20, Z: 1e20}},
	}
	for _, bb := range boxes {
		cam := FramingCamera(bb)
		if math32.Abs(ms3.Norm(cam.Dir)-1) > 1e-5 {
			t.Errorf("%v: camera direction not unit: %v", bb, cam.Dir)
		}
		framed := framedBox(bb)
		toCenter := ms3.Unit(ms3.Sub(framed.Center(), cam.Pos))
		if ms3.Dot(toCenter, cam.Dir) < 1-1e-4 {
			t.Errorf("%v: camera not looking at center", bb)
		}
		halfFov := math32.Atan(cam.FovTan)
		for _, corner := range []ms3.Vec{framed.Min, framed.Max} {
			toCorner := ms3.Unit(ms3.Sub(corner, cam.Pos))
			angle := math32.Acos(ms1Clamp(ms3.Dot(toCorner, cam.Dir)))
			if angle > halfFov {
				t.Errorf("%v: corner %v outside field of view", bb, corner)
			}
		}
	}
}

func ms1Clamp(x float32) float32 { return math32.Max(-1, math32.Min(1, x)) }

func TestOrbit(t *testing.T) {
	o := newOrbit(ms3.Box{Min: ms3.Vec{X: -1, Y: -1, Z: -1}, Max: ms3.Vec{X: 1, Y: 1, Z: 1}})
	for i := 0; i < 1000; i++ {
		o.drag(3, 50)
		o.zoom(5)
	}
	if o.pitch >= math32.Pi/2 {
		t.Errorf("pitch not clamped: %f", o.pitch)
	}
	if o.dist < o.minDist || o.dist <= 0 {
		t.Errorf("zoom not clamped: %f", o.dist)
	}
	cam := o.camera()
	if math32.Abs(ms3.Norm(cam.Dir)-1) > 1e-4 || math32.Abs(cam.Dir.Y) > 0.99999 {
		t.Errorf("bad camera direction %v", cam.Dir)
	}
	for i := 0; i < 1000; i++ {
		o.zoom(-5)
	}
	if o.dist > o.maxDist {
		t.Errorf("zoom not clamped: %f", o.dist)
	}
}

func TestColorConversions(t *testing.T) {
	conv := ColorConversionInigoQuilez(1)
	if conv(math32.NaN()) != red {
		t.Error("NaN must be red")
	}
	if conv(-0.5) == conv(0.5) {
		t.Error("inside and outside must differ")
	}
	if c := conv(0).(color.RGBA); c.R != 255 || c.G != 255 || c.B != 255 {
		t.Errorf("surface must be white, got %v", c)
	}

	const length = 2
	grad := ColorConversionLinearGradient(length, color.Black, color.White)
	if grad(-length) != color.Black || grad(length) != color.White {
		t.Error("gradient ends must be the given colors")
	}
	mid := grad(0).(color.RGBA)
	if mid.R < 126 || mid.R > 129 || mid.R != mid.G || mid.G != mid.B {
		t.Errorf("unexpected gradient midpoint %v", mid)
	}
	hard := ColorConversionLinearGradient(0, color.Black, color.White)
	if hard(-1e-6) != color.Black || hard(1e-6) != color.White {
		t.Error("zero length gradient must be a step")
	}
}

func TestHSVRoundTrip(t *testing.T) {
	for _, rgb := range []ms3.Vec{
		{X: 1}, {Y: 1}, {Z: 1}, {X: 0.2, Y: 0.4, Z: 0.6}, {X: 0.9, Y: 0.1, Z: 0.5}, {X: 0.5, Y: 0.5, Z: 0.5},
	} {
		got := hsvToRGB(rgbToHSV(rgb))
		if ms3.Norm(ms3.Sub(got, rgb)) > 1e-5 {
			t.Errorf("round trip of %v gave %v", rgb, got)
		}
	}
}

func TestRenderSlicePNG(t *testing.T) {
	var bld raymarch.Builder
	filename := filepath.Join(t.TempDir(), "slice.png")
	err := RenderSlicePNG(filename, bld.NewSphere(1), 0, 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	fp, err := os.Open(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Close()
	img, _, err := image.Decode(fp)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 50 || img.Bounds().Dy() != 50 {
		t.Errorf("unexpected slice image size %v", img.Bounds())
	}
	err = RenderSlicePNG(filename, bld.NewPlane(), 0, 50, nil)
	if err == nil {
		t.Error("expected error rendering unbounded slice")
	}
}

func TestUIConfigValidate(t *testing.T) {
	err := UI(sphereScene(""), UIConfig{})
	if err == nil {
		t.Error("expected error for zero window size")
	}
}
