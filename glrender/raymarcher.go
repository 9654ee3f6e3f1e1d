package glrender

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/math/ms1"
	"github.com/soypat/raymarch/gleval"
)

// Shading constants. These match the embedded GLSL fragment template.
const (
	ambient    = 0.25
	sunDiskCos = 0.995
)

var (
	surfaceColor = ms3.Vec{X: 0.85, Y: 0.8, Z: 0.75}
	skyAwayColor = ms3.Vec{X: 0.1, Y: 0.2, Z: 0.45}
	skySunColor  = ms3.Vec{X: 0.55, Y: 0.75, Z: 1.0}
	sunDiskColor = ms3.Vec{X: 1.0, Y: 0.98, Z: 0.8}
	worldUp      = ms3.Vec{Y: 1}
)

// RenderConfig configures the sphere tracing of a frame.
type RenderConfig struct {
	// Shadows enables casting a secondary ray towards the sun from every hit.
	Shadows bool
	// RenderDistance is the maximum distance a camera ray travels before it is considered a miss.
	RenderDistance float32
	// MinHitDist is the distance to a surface under which a ray is considered to have hit it.
	MinHitDist float32
	// MaxSteps is the maximum amount of scene evaluations per ray.
	MaxSteps int
}

// DefaultRenderConfig returns the configuration used when the host does not override it.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		Shadows:        true,
		RenderDistance: 100,
		MinHitDist:     1e-3,
		MaxSteps:       256,
	}
}

// Validate checks marching with the configuration can converge.
func (cfg RenderConfig) Validate() error {
	switch {
	case !(cfg.MinHitDist > 0):
		return errors.New("minimum hit distance must be positive")
	case !(cfg.RenderDistance < math32.Inf(1)):
		return errors.New("render distance must be finite")
	case !(cfg.MinHitDist*100 < cfg.RenderDistance):
		return errors.New("minimum hit distance must be much smaller than render distance")
	case cfg.MaxSteps <= 0:
		return errors.New("max steps must be positive")
	}
	return nil
}

// Epsilon is the step used for normal estimation and the shadow self hit tolerance.
func (cfg RenderConfig) Epsilon() float32 { return 2 * cfg.MinHitDist }

// Camera is a pinhole camera. Ray directions are built from Dir and a fixed world up vector (0,1,0),
// so rendering with Dir parallel to the Y axis is undefined.
type Camera struct {
	Pos ms3.Vec
	// Dir is the unit view direction.
	Dir ms3.Vec
	// FovTan is the tangent of half the vertical field of view.
	FovTan float32
}

// Frame is the immutable per-frame input to rendering. It holds what a GPU host
// would upload as uniforms.
type Frame struct {
	Time float32
	// Resolution is the viewport width and height in pixels.
	Resolution ms2.Vec
	Camera     Camera
	// SunDir is the unit direction towards the sun.
	SunDir ms3.Vec
	Config RenderConfig
}

// Validate checks the frame can be rendered.
func (f *Frame) Validate() error {
	err := f.Config.Validate()
	if err != nil {
		return err
	}
	switch {
	case !(f.Resolution.X >= 1 && f.Resolution.Y >= 1):
		return errors.New("resolution must be at least 1x1")
	case !isUnit(f.Camera.Dir):
		return errors.New("camera direction must be a unit vector")
	case !(f.Camera.FovTan > 0):
		return errors.New("camera field of view tangent must be positive")
	case !isUnit(f.SunDir):
		return errors.New("sun direction must be a unit vector")
	}
	return nil
}

func isUnit(v ms3.Vec) bool {
	return math32.Abs(ms3.Norm(v)-1) < 1e-3
}

// IsMiss reports whether p is the sentinel position returned for rays that hit nothing.
func IsMiss(p ms3.Vec) bool { return math32.IsInf(p.X, 0) }

func missPos() ms3.Vec {
	inf := math32.Inf(1)
	return ms3.Vec{X: inf, Y: inf, Z: inf}
}

// MarchResult is the outcome of sphere tracing a single ray.
type MarchResult struct {
	// Pos is the hit position or the infinite sentinel position on miss. See [IsMiss].
	Pos ms3.Vec
	// Steps is the number of scene evaluations performed.
	Steps int
}

// Hit reports whether the ray hit a surface.
func (mr MarchResult) Hit() bool { return !IsMiss(mr.Pos) }

// Raymarcher is a CPU implementation of the sphere tracer and shading of the
// generated fragment shader. A Raymarcher is not safe for concurrent use.
type Raymarcher struct {
	sdf    gleval.SDF3
	vp     gleval.VecPool
	active []int
	hitIdx []int
	frags  []ms2.Vec
	colors []ms3.Vec
}

// NewRaymarcher returns a Raymarcher of the scene sdf. A nil sdf is an empty scene
// whose distance is +Inf everywhere.
func NewRaymarcher(sdf gleval.SDF3) *Raymarcher {
	return &Raymarcher{sdf: sdf}
}

// VecPool returns the buffer pool passed as userData to the SDF's Evaluate calls.
func (rm *Raymarcher) VecPool() *gleval.VecPool { return &rm.vp }

func (rm *Raymarcher) sdScene(pos []ms3.Vec, dist []float32) error {
	if rm.sdf == nil {
		inf := math32.Inf(1)
		for i := range dist {
			dist[i] = inf
		}
		return nil
	}
	return rm.sdf.Evaluate(pos, dist, &rm.vp)
}

// SDScene returns the signed distance from p to the scene.
func (rm *Raymarcher) SDScene(p ms3.Vec) (float32, error) {
	var dist [1]float32
	err := rm.sdScene([]ms3.Vec{p}, dist[:])
	return dist[0], err
}

// NormalAtPoint estimates the unit surface normal at p with central differences
// of step [RenderConfig.Epsilon] around p. The result is only meaningful near a surface.
func (rm *Raymarcher) NormalAtPoint(p ms3.Vec, cfg RenderConfig) (ms3.Vec, error) {
	var n [1]ms3.Vec
	err := rm.normals(n[:], []ms3.Vec{p}, cfg)
	return n[0], err
}

func (rm *Raymarcher) normals(dst, pos []ms3.Vec, cfg RenderConfig) error {
	if rm.sdf == nil {
		return errors.New("normals of empty scene")
	}
	// Samples are taken at ±Epsilon.
	err := gleval.NormalsCentralDiff(rm.sdf, pos, dst, 2*cfg.Epsilon(), &rm.vp)
	if err != nil {
		return err
	}
	for i, n := range dst {
		dst[i] = ms3.Unit(n)
	}
	return nil
}

// Raymarch sphere traces the ray starting at ro in unit direction rd for up to maxDist
// distance or cfg.MaxSteps scene evaluations.
func (rm *Raymarcher) Raymarch(ro, rd ms3.Vec, maxDist float32, cfg RenderConfig) (MarchResult, error) {
	var hit [1]ms3.Vec
	var steps [1]int
	err := rm.march(hit[:], []ms3.Vec{ro}, []ms3.Vec{rd}, steps[:], maxDist, cfg)
	return MarchResult{Pos: hit[0], Steps: steps[0]}, err
}

// march sphere traces all rays ro[i]+t*rd[i] in lockstep so that every step is
// a single batch evaluation of the scene. Hit positions, or the miss sentinel, are stored in dst.
// steps may be nil.
func (rm *Raymarcher) march(dst, ro, rd []ms3.Vec, steps []int, maxDist float32, cfg RenderConfig) error {
	n := len(ro)
	if n == 0 {
		return nil
	}
	vp := &rm.vp
	depth := vp.Float.Acquire(n)
	defer vp.Float.Release(depth)
	dist := vp.Float.Acquire(n)
	defer vp.Float.Release(dist)
	pos := vp.V3.Acquire(n)
	defer vp.V3.Release(pos)

	miss := missPos()
	active := rm.active[:0]
	for i := 0; i < n; i++ {
		depth[i] = 0
		dst[i] = miss
		active = append(active, i)
	}
	if steps != nil {
		clear(steps)
	}
	minHit := cfg.MinHitDist
	backstep := 0.1 * minHit
	for step := 0; step < cfg.MaxSteps && len(active) > 0; step++ {
		for j, i := range active {
			pos[j] = ms3.Add(ro[i], ms3.Scale(depth[i], rd[i]))
		}
		err := rm.sdScene(pos[:len(active)], dist[:len(active)])
		if err != nil {
			return err
		}
		still := active[:0]
		for j, i := range active {
			if steps != nil {
				steps[i]++
			}
			d := math32.Abs(dist[j])
			if d < minHit {
				p := pos[j]
				if d < backstep {
					// Pull the hit to just outside the surface.
					p = ms3.Sub(p, ms3.Scale(backstep, rd[i]))
				}
				dst[i] = p
				continue
			}
			depth[i] += d
			if depth[i] >= maxDist {
				continue
			}
			still = append(still, i)
		}
		active = still
	}
	rm.active = active[:0]
	return nil
}

// LightCoef returns the unclamped Lambertian coefficient of a surface at p with unit normal n.
// With shadows enabled the coefficient is halved if the point is occluded from the sun.
func (rm *Raymarcher) LightCoef(p, n ms3.Vec, frame *Frame) (float32, error) {
	var lc [1]float32
	err := rm.lightCoefs(lc[:], []ms3.Vec{p}, []ms3.Vec{n}, frame)
	return lc[0], err
}

func (rm *Raymarcher) lightCoefs(dst []float32, pos, normals []ms3.Vec, frame *Frame) error {
	sun := frame.SunDir
	cfg := frame.Config
	for i, n := range normals {
		dst[i] = ms3.Dot(n, sun)
	}
	if !cfg.Shadows || len(pos) == 0 {
		return nil
	}
	vp := &rm.vp
	origins := vp.V3.Acquire(len(pos))
	defer vp.V3.Release(origins)
	sunDirs := vp.V3.Acquire(len(pos))
	defer vp.V3.Release(sunDirs)
	hits := vp.V3.Acquire(len(pos))
	defer vp.V3.Release(hits)
	for i, p := range pos {
		origins[i] = ms3.Add(p, ms3.Scale(cfg.MinHitDist, normals[i]))
		sunDirs[i] = sun
	}
	err := rm.march(hits, origins, sunDirs, nil, 3*cfg.RenderDistance, cfg)
	if err != nil {
		return err
	}
	eps := cfg.Epsilon()
	for i, hit := range hits {
		if !IsMiss(hit) && ms3.Norm(ms3.Sub(hit, origins[i])) > eps {
			dst[i] *= 0.5
		}
	}
	return nil
}

// HitColor returns the shaded surface color at p with unit normal n.
func (rm *Raymarcher) HitColor(p, n ms3.Vec, frame *Frame) (ms3.Vec, error) {
	lc, err := rm.LightCoef(p, n, frame)
	if err != nil {
		return ms3.Vec{}, err
	}
	return hitColor(lc), nil
}

func hitColor(lightCoef float32) ms3.Vec {
	return ms3.Scale(ambient+(1-ambient)*lightCoef, surfaceColor)
}

// SkyColor returns the color of a ray with unit direction rd that hit nothing. It is a gradient
// between the sky color away from and towards the sun, with a hard edged sun disk.
func SkyColor(rd, sunDir ms3.Vec) ms3.Vec {
	c := ms3.Dot(rd, sunDir)
	if c > sunDiskCos {
		return sunDiskColor
	}
	t := 0.5 + 0.5*c
	return ms3.InterpElem(skyAwayColor, skySunColor, ms3.Vec{X: t, Y: t, Z: t})
}

// RayDirection returns the unit world direction of the camera ray through fragCoord, the pixel
// coordinate with origin at the bottom left of the viewport. The result is undefined when the
// camera direction is parallel to the world up vector (0,1,0).
func RayDirection(fragCoord ms2.Vec, frame *Frame) ms3.Vec {
	res := frame.Resolution
	uv := ms2.Scale(1/res.Y, ms2.Sub(ms2.Scale(2, fragCoord), res))
	forward := frame.Camera.Dir
	right := ms3.Unit(ms3.Cross(forward, worldUp))
	up := ms3.Cross(right, forward)
	offset := ms3.Add(ms3.Scale(uv.X, right), ms3.Scale(uv.Y, up))
	return ms3.Unit(ms3.Add(forward, ms3.Scale(frame.Camera.FovTan, offset)))
}

// PixelColor returns the color of the pixel at fragCoord. See [RayDirection].
func (rm *Raymarcher) PixelColor(fragCoord ms2.Vec, frame *Frame) (ms3.Vec, error) {
	var col [1]ms3.Vec
	err := rm.pixelColors(col[:], []ms2.Vec{fragCoord}, frame)
	return col[0], err
}

// pixelColors shades a batch of pixels. It is the batched form of the fragment shader's main.
func (rm *Raymarcher) pixelColors(dst []ms3.Vec, frags []ms2.Vec, frame *Frame) error {
	n := len(frags)
	vp := &rm.vp
	ro := vp.V3.Acquire(n)
	defer vp.V3.Release(ro)
	rd := vp.V3.Acquire(n)
	defer vp.V3.Release(rd)
	hits := vp.V3.Acquire(n)
	defer vp.V3.Release(hits)
	for i, frag := range frags {
		ro[i] = frame.Camera.Pos
		rd[i] = RayDirection(frag, frame)
	}
	err := rm.march(hits, ro, rd, nil, frame.Config.RenderDistance, frame.Config)
	if err != nil {
		return err
	}
	hitIdx := rm.hitIdx[:0]
	for i, hit := range hits {
		if IsMiss(hit) {
			dst[i] = SkyColor(rd[i], frame.SunDir)
		} else {
			hitIdx = append(hitIdx, i)
		}
	}
	rm.hitIdx = hitIdx[:0]
	nh := len(hitIdx)
	if nh == 0 {
		return nil
	}
	hitPos := vp.V3.Acquire(nh)
	defer vp.V3.Release(hitPos)
	normals := vp.V3.Acquire(nh)
	defer vp.V3.Release(normals)
	lc := vp.Float.Acquire(nh)
	defer vp.Float.Release(lc)
	for j, i := range hitIdx {
		hitPos[j] = hits[i]
	}
	err = rm.normals(normals, hitPos, frame.Config)
	if err != nil {
		return err
	}
	err = rm.lightCoefs(lc, hitPos, normals, frame)
	if err != nil {
		return err
	}
	for j, i := range hitIdx {
		dst[i] = hitColor(lc[j])
	}
	return nil
}

type setImage = interface {
	image.Image
	Set(x, y int, c color.Color)
}

// Render ray marches every pixel of img, one image row per batch. The frame's resolution
// must match the image size. Image rows are flipped so that the bottom image row is fragment row 0.
func (rm *Raymarcher) Render(img setImage, frame *Frame) error {
	err := rm.checkImage(img, frame)
	if err != nil {
		return err
	}
	bb := img.Bounds()
	for y := 0; y < bb.Dy(); y++ {
		err = rm.renderRow(img, y, frame)
		if err != nil {
			return err
		}
	}
	return nil
}

func (rm *Raymarcher) checkImage(img setImage, frame *Frame) error {
	err := frame.Validate()
	if err != nil {
		return err
	}
	bb := img.Bounds()
	if float32(bb.Dx()) != frame.Resolution.X || float32(bb.Dy()) != frame.Resolution.Y {
		return fmt.Errorf("image size %dx%d does not match frame resolution %vx%v", bb.Dx(), bb.Dy(), frame.Resolution.X, frame.Resolution.Y)
	}
	return nil
}

func (rm *Raymarcher) renderRow(img setImage, y int, frame *Frame) error {
	bb := img.Bounds()
	w := bb.Dx()
	if cap(rm.frags) < w {
		rm.frags = make([]ms2.Vec, w)
		rm.colors = make([]ms3.Vec, w)
	}
	frags := rm.frags[:w]
	colors := rm.colors[:w]
	fragY := float32(bb.Dy()-y) - 0.5
	for x := range frags {
		frags[x] = ms2.Vec{X: float32(x) + 0.5, Y: fragY}
	}
	err := rm.pixelColors(colors, frags, frame)
	if err != nil {
		return err
	}
	for x, c := range colors {
		img.Set(bb.Min.X+x, bb.Min.Y+y, ColorToRGBA(c))
	}
	return nil
}

// RenderParallel renders img like [Raymarcher.Render] splitting rows between workers goroutines.
// Each worker owns its buffers so img must support concurrent Set calls on distinct pixels, as [image.RGBA] does.
func (rm *Raymarcher) RenderParallel(img setImage, frame *Frame, workers int) error {
	if workers <= 0 {
		return errors.New("need at least one worker")
	}
	err := rm.checkImage(img, frame)
	if err != nil {
		return err
	}
	rows := img.Bounds().Dy()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for w := 0; w < workers; w++ {
		worker := NewRaymarcher(rm.sdf)
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			for y := start; y < rows; y += workers {
				err := worker.renderRow(img, y, frame)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		}(w)
	}
	wg.Wait()
	return firstErr
}

// ColorToRGBA converts a linear color with components in [0,1] to an 8 bit RGBA color.
// Components are clamped to [0,1].
func ColorToRGBA(c ms3.Vec) color.RGBA {
	return color.RGBA{
		R: uint8(ms1.Clamp(c.X, 0, 1)*255 + 0.5),
		G: uint8(ms1.Clamp(c.Y, 0, 1)*255 + 0.5),
		B: uint8(ms1.Clamp(c.Z, 0, 1)*255 + 0.5),
		A: 255,
	}
}
