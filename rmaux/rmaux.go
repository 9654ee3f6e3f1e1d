// Package rmaux contains auxiliary functions to get started rendering raymarch scenes quickly.
// Ideally users should implement their own rendering functions since applications may vary widely.
package rmaux

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/chewxy/math32"
	"github.com/golang/freetype"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/math/ms1"
	"github.com/soypat/raymarch"
	"github.com/soypat/raymarch/glbuild"
	"github.com/soypat/raymarch/gleval"
	"github.com/soypat/raymarch/glrender"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/goregular"
)

// RenderConfig configures [Render]. At least one output must be set.
type RenderConfig struct {
	// ShaderOutput receives the scene's complete fragment shader.
	ShaderOutput io.Writer
	// PNGOutput receives a PNG image of the scene rendered on the CPU.
	PNGOutput io.Writer
	// Width and Height of the PNG image in pixels. Zero values default to 640x480.
	Width, Height int
	// Supersample renders the image at Supersample times the resolution and
	// downscales the result. Values below 2 disable supersampling.
	Supersample int
	// Camera views the scene. If nil a camera framing the scene's bounds is used.
	Camera *glrender.Camera
	// SunDir is the direction towards the sun. Zero value uses a default elevated sun.
	SunDir ms3.Vec
	// Raymarch configures sphere tracing. Zero value uses [glrender.DefaultRenderConfig].
	Raymarch glrender.RenderConfig
	// Caption draws the scene's display name on the bottom left of the image.
	Caption bool
	// Workers is the number of goroutines rendering the image. Zero uses all CPUs.
	Workers int
	Silent  bool
}

func (cfg *RenderConfig) Validate() error {
	switch {
	case cfg.ShaderOutput == nil && cfg.PNGOutput == nil:
		return errors.New("Render requires output parameter in config")
	case cfg.Width < 0 || cfg.Height < 0:
		return errors.New("negative image dimension")
	case cfg.Supersample < 0 || cfg.Supersample > 8:
		return errors.New("supersample factor must be in range 0..8")
	case cfg.Workers < 0:
		return errors.New("negative worker count")
	}
	return nil
}

// Render is an auxiliary function to aid users in getting setup in using raymarch quickly.
// It writes the scene's fragment shader and/or a CPU rendered PNG image of the scene.
func Render(sc *raymarch.Scene, cfg RenderConfig) (err error) {
	err = cfg.Validate()
	if err != nil {
		return err
	}
	log := func(args ...any) {
		if !cfg.Silent {
			fmt.Println(args...)
		}
	}
	err = sc.Validate()
	if err != nil {
		return fmt.Errorf("validating scene %q: %w", sc.DisplayName(), err)
	}
	if cfg.ShaderOutput != nil {
		watch := stopwatch()
		n, err := sc.WriteShader(cfg.ShaderOutput)
		if err != nil {
			return fmt.Errorf("writing GLSL: %w", err)
		}
		log("wrote", outputName(cfg.ShaderOutput, "GLSL shader"), n, "bytes in", watch())
	}
	if cfg.PNGOutput != nil {
		watch := stopwatch()
		img, err := RenderImage(sc, cfg)
		if err != nil {
			return err
		}
		log("rendered", img.Bounds().Dx(), "x", img.Bounds().Dy(), "image of", sc.DisplayName(), "in", watch())
		watch = stopwatch()
		err = png.Encode(cfg.PNGOutput, img)
		if err != nil {
			return fmt.Errorf("writing PNG: %w", err)
		}
		log("wrote", outputName(cfg.PNGOutput, "PNG"), "in", watch())
	}
	return nil
}

// RenderPNGFile renders the scene with the CPU ray marcher and saves result to a PNG file with said filename.
// The PNGOutput field of cfg is ignored.
func RenderPNGFile(filename string, sc *raymarch.Scene, cfg RenderConfig) error {
	fp, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	cfg.PNGOutput = fp
	err = Render(sc, cfg)
	if err != nil {
		return err
	}
	return fp.Sync()
}

// RenderImage renders the scene as it would be displayed by the generated fragment shader.
func RenderImage(sc *raymarch.Scene, cfg RenderConfig) (*image.RGBA, error) {
	sdf, err := gleval.AssertSDF3(sc.SDF())
	if err != nil {
		return nil, err
	}
	width, height := cfg.Width, cfg.Height
	if width == 0 {
		width = 640
	}
	if height == 0 {
		height = 480
	}
	ss := max(cfg.Supersample, 1)
	frame := glrender.Frame{
		Resolution: ms2.Vec{X: float32(width * ss), Y: float32(height * ss)},
		SunDir:     cfg.SunDir,
		Config:     cfg.Raymarch,
	}
	if frame.SunDir == (ms3.Vec{}) {
		frame.SunDir = DefaultSunDir()
	}
	if frame.Config == (glrender.RenderConfig{}) {
		frame.Config = glrender.DefaultRenderConfig()
	}
	if cfg.Camera != nil {
		frame.Camera = *cfg.Camera
	} else {
		frame.Camera = FramingCamera(sdf.Bounds())
	}
	err = frame.Validate()
	if err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	full := image.NewRGBA(image.Rect(0, 0, width*ss, height*ss))
	err = glrender.NewRaymarcher(sdf).RenderParallel(full, &frame, workers)
	if err != nil {
		return nil, err
	}
	img := full
	if ss > 1 {
		img = image.NewRGBA(image.Rect(0, 0, width, height))
		xdraw.CatmullRom.Scale(img, img.Bounds(), full, full.Bounds(), draw.Over, nil)
	}
	if cfg.Caption {
		err = drawCaption(img, sc.DisplayName())
		if err != nil {
			return nil, fmt.Errorf("drawing caption: %w", err)
		}
	}
	return img, nil
}

// DefaultSunDir is the sun direction used when none is configured.
func DefaultSunDir() ms3.Vec {
	return ms3.Unit(ms3.Vec{X: 0.4, Y: 1, Z: 0.3})
}

// FramingCamera returns a camera looking at the center of bb from a distance at which
// the whole box is in view. Unbounded or empty boxes are framed as the unit cube around the origin.
func FramingCamera(bb ms3.Box) glrender.Camera {
	const (
		fovTan = 0.6
		yaw    = math32.Pi / 5
		pitch  = math32.Pi / 8
	)
	bb = framedBox(bb)
	radius := ms3.Norm(bb.Size()) / 2
	dist := 1.2 * radius / math32.Sin(math32.Atan(fovTan))
	return glrender.OrbitCamera(bb.Center(), dist, yaw, pitch, fovTan)
}

// framedBox returns bb or the cube [-1,1]³ if bb is empty or too large to frame.
func framedBox(bb ms3.Box) ms3.Box {
	size := bb.Size()
	if !isFiniteVec(bb.Min) || !isFiniteVec(bb.Max) || size.X > 1e6 || size.Y > 1e6 || size.Z > 1e6 ||
		size == (ms3.Vec{}) {
		return ms3.Box{Min: ms3.Vec{X: -1, Y: -1, Z: -1}, Max: ms3.Vec{X: 1, Y: 1, Z: 1}}
	}
	return bb
}

func drawCaption(img draw.Image, text string) error {
	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	fontSize := max(8, float64(bounds.Dy())/24)
	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(f)
	ctx.SetFontSize(fontSize)
	ctx.SetClip(bounds)
	ctx.SetDst(img)
	ctx.SetSrc(image.NewUniform(color.White))
	margin := int(fontSize / 2)
	pt := freetype.Pt(bounds.Min.X+margin, bounds.Max.Y-margin)
	_, err = ctx.DrawString(text, pt)
	return err
}

// RenderSlicePNG renders the cross-section of s at height z as an image and saves result to a PNG file
// with said filename. The image width is sized automatically from the image height argument to preserve
// the aspect ratio of the XY bounds of s. If a nil color conversion function is passed then one is automatically chosen.
func RenderSlicePNG(filename string, s glbuild.Shader3D, z float32, picHeight int, colorConversion func(float32) color.Color) error {
	sdf, err := gleval.AssertSDF3(s)
	if err != nil {
		return err
	}
	bb := sdf.Bounds()
	sz := bb.Size()
	if !(sz.X > 0 && sz.Y > 0) || sz.X > 1e6 || sz.Y > 1e6 {
		return errors.New("slice rendering requires finite non-empty XY bounds")
	}
	if colorConversion == nil {
		colorConversion = ColorConversionInigoQuilez(ms2.Norm(ms2.Vec{X: sz.X, Y: sz.Y}) / 3)
	}
	pixPerUnit := float64(picHeight) / float64(sz.Y)
	picWidth := max(1, int(pixPerUnit*float64(sz.X)))
	img := image.NewRGBA(image.Rect(0, 0, picWidth, picHeight))
	renderer, err := glrender.NewSliceRenderer(max(4096, picHeight), colorConversion)
	if err != nil {
		return err
	}
	var vp gleval.VecPool
	err = renderer.Render(sdf, z, img, &vp)
	if err != nil {
		return err
	}
	fp, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	err = png.Encode(fp, img)
	if err != nil {
		return err
	}
	return fp.Sync()
}

func outputName(w io.Writer, fallback string) string {
	if fp, ok := w.(*os.File); ok {
		return fp.Name()
	}
	return fallback
}

func isFiniteVec(v ms3.Vec) bool {
	return !math32.IsInf(v.X, 0) && !math32.IsInf(v.Y, 0) && !math32.IsInf(v.Z, 0) &&
		!math32.IsNaN(v.X) && !math32.IsNaN(v.Y) && !math32.IsNaN(v.Z)
}

func stopwatch() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}

// UIConfig configures [UI].
type UIConfig struct {
	// Width and Height of the window in pixels.
	Width, Height int
	// Raymarch configures sphere tracing. Zero value uses [glrender.DefaultRenderConfig].
	Raymarch glrender.RenderConfig
	// SunDir is the direction towards the sun. Zero value uses a default elevated sun.
	SunDir ms3.Vec
	// Context cancels the UI loop when done. May be nil.
	Context context.Context
}

func (cfg *UIConfig) Validate() error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return errors.New("UI window dimensions must be positive")
	}
	return nil
}

// UI opens a window displaying the scene rendered by its generated fragment shader on the GPU.
// Dragging with the left mouse button orbits the camera around the scene and scrolling zooms.
// UI blocks until the window is closed and requires cgo.
func UI(sc *raymarch.Scene, cfg UIConfig) error {
	err := cfg.Validate()
	if err != nil {
		return err
	}
	if cfg.Raymarch == (glrender.RenderConfig{}) {
		cfg.Raymarch = glrender.DefaultRenderConfig()
	}
	err = cfg.Raymarch.Validate()
	if err != nil {
		return err
	}
	if cfg.SunDir == (ms3.Vec{}) {
		cfg.SunDir = DefaultSunDir()
	}
	err = sc.Validate()
	if err != nil {
		return fmt.Errorf("validating scene %q: %w", sc.DisplayName(), err)
	}
	return ui(sc, cfg)
}

// orbit is the state of a camera orbiting a target, controlled by mouse input.
type orbit struct {
	target     ms3.Vec
	dist       float32
	yaw, pitch float32
	fovTan     float32
	minDist    float32
	maxDist    float32
}

func newOrbit(bb ms3.Box) orbit {
	cam := FramingCamera(bb)
	target := framedBox(bb).Center()
	dist := ms3.Norm(ms3.Sub(cam.Pos, target))
	return orbit{
		target:  target,
		dist:    dist,
		yaw:     math32.Pi / 5,
		pitch:   math32.Pi / 8,
		fovTan:  cam.FovTan,
		minDist: dist * 1e-5,
		maxDist: dist * 10,
	}
}

// drag rotates the camera by mouse displacement in pixels. Pitch is clamped short of the
// poles since camera directions parallel to the Y axis are undefined.
func (o *orbit) drag(dx, dy float32) {
	const sensitivity = 0.005
	const maxPitch = math32.Pi/2 - 0.01
	o.yaw -= dx * sensitivity
	o.pitch = ms1.Clamp(o.pitch+dy*sensitivity, -maxPitch, maxPitch)
}

// zoom moves the camera towards the target for positive scroll offsets.
func (o *orbit) zoom(scroll float32) {
	o.dist -= scroll * (o.dist*.1 + .01)
	o.dist = ms1.Clamp(o.dist, o.minDist, o.maxDist)
}

func (o *orbit) camera() glrender.Camera {
	return glrender.OrbitCamera(o.target, o.dist, o.yaw, o.pitch, o.fovTan)
}
