package gleval

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/ms3"
)

// SDF3 implements a 3D signed distance field in vectorized
// form suitable for batch evaluation on the CPU.
type SDF3 interface {
	// Evaluate evaluates the signed distance field over pos positions.
	// dist and pos must be of same length.  Resulting distances are stored
	// in dist.
	//
	// userData facilitates getting data to the evaluators for use in processing, such as [VecPool].
	Evaluate(pos []ms3.Vec, dist []float32, userData any) error
	// Bounds returns the SDF's bounding box such that all of the shape is contained within.
	Bounds() ms3.Box
}

// bounder3 is implemented by both [SDF3] and glbuild.Shader3D. Using it instead of `any`
// aids in catching mistakes at compile time.
type bounder3 = interface{ Bounds() ms3.Box }

var (
	errEmptyBuffers         = errors.New("empty buffers")
	errMismatchBufferLength = errors.New("position and distance buffer length mismatch")
)

// AssertSDF3 asserts the argument as a [SDF3] and returns a descriptive error if the assertion fails.
func AssertSDF3(s bounder3) (SDF3, error) {
	evaluator, ok := s.(SDF3)
	if !ok {
		return nil, fmt.Errorf("%T does not implement gleval.SDF3", s)
	}
	return evaluator, nil
}

// ValidateBuffers checks position and distance buffers are usable for an [SDF3.Evaluate] call.
func ValidateBuffers(pos []ms3.Vec, dist []float32) error {
	if len(pos) != len(dist) {
		return errMismatchBufferLength
	} else if len(pos) == 0 {
		return errEmptyBuffers
	}
	return nil
}

// NormalsCentralDiff uses central differences algorithm for normal calculation, which are stored in normals for each position.
// Each axis is sampled at ±step/2 around the position.
// The returned normals are not normalized (converted to unit length).
func NormalsCentralDiff(s SDF3, pos []ms3.Vec, normals []ms3.Vec, step float32, userData any) error {
	step *= 0.5
	if step <= 0 {
		return errors.New("invalid step")
	} else if len(pos) != len(normals) {
		return errors.New("length of position must match length of normals")
	} else if s == nil {
		return errors.New("nil SDF3")
	} else if len(pos) == 0 {
		return errEmptyBuffers
	}
	vp, err := GetVecPool(userData)
	if err != nil {
		return fmt.Errorf("VecPool required for normal calculation: %s", err)
	}
	d1 := vp.Float.Acquire(len(pos))
	d2 := vp.Float.Acquire(len(pos))
	auxPos := vp.V3.Acquire(len(pos))
	defer vp.Float.Release(d1)
	defer vp.Float.Release(d2)
	defer vp.V3.Release(auxPos)
	var vecs = [3]ms3.Vec{{X: step}, {Y: step}, {Z: step}}
	for dim := 0; dim < 3; dim++ {
		h := vecs[dim]
		for i, p := range pos {
			auxPos[i] = ms3.Add(p, h)
		}
		err = s.Evaluate(auxPos, d1, userData)
		if err != nil {
			return err
		}
		for i, p := range pos {
			auxPos[i] = ms3.Sub(p, h)
		}
		err = s.Evaluate(auxPos, d2, userData)
		if err != nil {
			return err
		}

		switch dim {
		case 0:
			for i, d := range d1 {
				normals[i].X = d - d2[i]
			}
		case 1:
			for i, d := range d1 {
				normals[i].Y = d - d2[i]
			}
		case 2:
			for i, d := range d1 {
				normals[i].Z = d - d2[i]
			}
		}
	}
	return nil
}

// CountingSDF3 wraps an [SDF3] and counts the positions it evaluated.
type CountingSDF3 struct {
	SDF   SDF3
	evals uint64
	calls uint64
}

// Evaluate implements [SDF3] by delegating to the wrapped SDF.
func (c *CountingSDF3) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	err := c.SDF.Evaluate(pos, dist, userData)
	if err != nil {
		return err
	}
	c.evals += uint64(len(pos))
	c.calls++
	return nil
}

// Bounds returns the wrapped SDF's bounding box.
func (c *CountingSDF3) Bounds() ms3.Box { return c.SDF.Bounds() }

// Evaluations returns total positions evaluated succesfully during the SDF's lifetime.
func (c *CountingSDF3) Evaluations() uint64 { return c.evals }

// Calls returns the amount of batch Evaluate calls that succeeded.
func (c *CountingSDF3) Calls() uint64 { return c.calls }

// Reset zeroes the counters.
func (c *CountingSDF3) Reset() {
	c.evals = 0
	c.calls = 0
}
