package glrender

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/raymarch/gleval"
)

// SliceRenderer renders constant Z cross-sections of 3D SDFs to images.
// It is useful for inspecting the distance field of a primitive type.
type SliceRenderer struct {
	conv func(f float32) color.Color
	pos  []ms3.Vec
	dist []float32
}

// NewSliceRenderer instances a new [SliceRenderer]. A nil float->color conversion
// function results in a simple black-white color scheme where black is the interior of the SDF (negative distance).
func NewSliceRenderer(evalBufferSize int, conversion func(float32) color.Color) (*SliceRenderer, error) {
	if evalBufferSize <= 64 {
		return nil, errors.New("too small evaluation buffer size")
	}
	if conversion == nil {
		conversion = func(f float32) color.Color {
			switch {
			case math32.IsNaN(f) || math32.IsInf(f, 0):
				return color.RGBA{R: 255, A: 255}
			case f > 0:
				return color.White
			default:
				return color.Black
			}
		}
	}
	sr := &SliceRenderer{
		conv: conversion,
		pos:  make([]ms3.Vec, evalBufferSize),
		dist: make([]float32, evalBufferSize),
	}
	return sr, nil
}

// Render maps the XY area of the SDF's bounding box at height z to the image and renders it.
// It uses userData as an argument to all [gleval.SDF3.Evaluate] calls.
func (sr *SliceRenderer) Render(sdf gleval.SDF3, z float32, img setImage, userData any) error {
	bb3 := sdf.Bounds()
	bb := ms2.Box{
		Min: ms2.Vec{X: bb3.Min.X, Y: bb3.Min.Y},
		Max: ms2.Vec{X: bb3.Max.X, Y: bb3.Max.Y},
	}
	return sr.RenderArea(sdf, bb, z, img, userData)
}

// RenderArea renders the area bb of the plane at height z to the image.
func (sr *SliceRenderer) RenderArea(sdf gleval.SDF3, bb ms2.Box, z float32, img setImage, userData any) error {
	imgBB := img.Bounds()
	dxi := imgBB.Dx()
	dyi := imgBB.Dy()
	if len(sr.dist) < dyi {
		return fmt.Errorf("require evaluation buffer (%d) to be at least of length of image columns (%d)", len(sr.dist), dyi)
	}
	sz := bb.Size()
	if !(sz.X > 0 && sz.Y > 0) || math32.IsInf(sz.X, 0) || math32.IsInf(sz.Y, 0) {
		return errors.New("slice area must be finite and non-empty")
	}
	dx := sz.X / float32(dxi)
	dy := sz.Y / float32(dyi)
	start := ms2.Add(bb.Min, ms2.Vec{X: dx / 2, Y: dy / 2}) // Offset to pixel centers.
	for i := 0; i < dxi; i++ {
		x := float32(i)*dx + start.X
		err := sr.renderColumn(sdf, i, x, start.Y, dy, z, imgBB, img, userData)
		if err != nil {
			return err
		}
	}
	return nil
}

func (sr *SliceRenderer) renderColumn(sdf gleval.SDF3, col int, x, ymin, dy, z float32, imgBB image.Rectangle, img setImage, userData any) error {
	dyi := imgBB.Dy()
	for j := 0; j < dyi; j++ {
		// Image Y grows downwards.
		y := float32(dyi-1-j)*dy + ymin
		sr.pos[j] = ms3.Vec{X: x, Y: y, Z: z}
	}
	err := sdf.Evaluate(sr.pos[:dyi], sr.dist[:dyi], userData)
	if err != nil {
		return err
	}
	conv := sr.conv
	for j := 0; j < dyi; j++ {
		img.Set(col+imgBB.Min.X, j+imgBB.Min.Y, conv(sr.dist[j]))
	}
	return nil
}
