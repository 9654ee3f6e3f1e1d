package rmaux

import (
	"image/color"

	math "github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/math/ms1"
	"github.com/soypat/raymarch/glrender"
)

// HSV conversion adapted from Esme Lamb's (@dedelala) color manipulation work
// presented at Gophercon AU 2024. https://github.com/dedelala/disco/tree/main/color

var red = color.RGBA{R: 255, A: 255}

// ColorConversionInigoQuilez creates a new color conversion using [Inigo Quilez]'s style
// for SDF slices. A good value for characteristic distance is the bounding box diagonal
// divided by 3. Returns red for NaN values.
//
// [Inigo Quilez]: https://iquilezles.org/articles/distfunctions2d/
func ColorConversionInigoQuilez(characteristicDistance float32) func(float32) color.Color {
	inv := 1. / characteristicDistance
	one := ms3.Vec{X: 1, Y: 1, Z: 1}
	return func(d float32) color.Color {
		if math.IsNaN(d) {
			return red
		}
		d *= inv
		var c ms3.Vec
		if d > 0 {
			c = ms3.Vec{X: 0.9, Y: 0.6, Z: 0.3}
		} else {
			c = ms3.Vec{X: 0.65, Y: 0.85, Z: 1.0}
		}
		c = ms3.Scale(1-math.Exp(-6*math.Abs(d)), c)
		c = ms3.Scale(0.8+0.2*math.Cos(150*d), c)
		edge := 1 - ms1.SmoothStep(0, 0.01, math.Abs(d))
		c = ms3.InterpElem(c, one, ms3.Vec{X: edge, Y: edge, Z: edge})
		return glrender.ColorToRGBA(c)
	}
}

// ColorConversionLinearGradient creates a color conversion function that creates a gradient
// centered along d=0 that extends gradientLength. Colors are interpolated in HSV space.
func ColorConversionLinearGradient(gradientLength float32, c0, c1 color.Color) func(d float32) color.Color {
	if gradientLength <= 0 {
		return func(d float32) color.Color {
			if d < 0 {
				return c0
			}
			return c1
		}
	}
	hsv0 := rgbToHSV(colorToRGB(c0))
	hsv1 := rgbToHSV(colorToRGB(c1))
	return func(d float32) color.Color {
		blend := d/gradientLength + 0.5
		if blend <= 0 {
			return c0
		} else if blend >= 1 {
			return c1
		}
		return glrender.ColorToRGBA(hsvToRGB(interpHSV(hsv0, hsv1, blend)))
	}
}

// interpHSV interpolates hue along the shortest path around the color wheel.
func interpHSV(a, b ms3.Vec, t float32) ms3.Vec {
	switch {
	case b.X-a.X > 0.5:
		a.X += 1
	case b.X-a.X < -0.5:
		b.X += 1
	}
	c := ms3.InterpElem(a, b, ms3.Vec{X: t, Y: t, Z: t})
	if c.X > 1 {
		c.X -= 1
	}
	return c
}

func colorToRGB(c color.Color) ms3.Vec {
	r, g, b, _ := c.RGBA()
	const maxc = 0xffff
	return ms3.Vec{X: float32(r) / maxc, Y: float32(g) / maxc, Z: float32(b) / maxc}
}

// hsvToRGB converts hue, saturation and value in range [0,1] stored in X,Y,Z to RGB.
func hsvToRGB(hsv ms3.Vec) ms3.Vec {
	h, s, v := hsv.X, hsv.Y, hsv.Z
	c := s * v
	x := c * (1 - math.Abs(math.Mod(h*6, 2)-1))
	m := v - c
	var rgb ms3.Vec
	switch {
	case h <= 1.0/6:
		rgb = ms3.Vec{X: c, Y: x}
	case h <= 2.0/6:
		rgb = ms3.Vec{X: x, Y: c}
	case h <= 3.0/6:
		rgb = ms3.Vec{Y: c, Z: x}
	case h <= 4.0/6:
		rgb = ms3.Vec{Y: x, Z: c}
	case h <= 5.0/6:
		rgb = ms3.Vec{X: x, Z: c}
	default:
		rgb = ms3.Vec{X: c, Z: x}
	}
	return ms3.AddScalar(m, rgb)
}

// rgbToHSV converts RGB components in range [0,1] to hue, saturation and value stored in X,Y,Z.
func rgbToHSV(rgb ms3.Vec) ms3.Vec {
	r, g, b := rgb.X, rgb.Y, rgb.Z
	xmax := max(r, g, b)
	c := xmax - min(r, g, b)
	var hsv ms3.Vec
	hsv.Z = xmax
	switch {
	case c == 0:
	case xmax == r:
		hsv.X = (g - b) / (c * 6)
	case xmax == g:
		hsv.X = 1.0/3 + (b-r)/(c*6)
	default:
		hsv.X = 2.0/3 + (r-g)/(c*6)
	}
	if hsv.X < 0 {
		hsv.X += 1
	}
	if xmax > 0 {
		hsv.Y = c / xmax
	}
	return hsv
}
