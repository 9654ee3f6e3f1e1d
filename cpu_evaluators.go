package raymarch

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/raymarch/gleval"
)

// minReduce takes element-wise minimum of arguments and stores to first argument.
func minReduce(d1AndDst, d2 []float32) {
	for i := range d1AndDst {
		d1AndDst[i] = math32.Min(d1AndDst[i], d2[i])
	}
}

// maxReduce takes element-wise maximum of arguments and stores to first argument.
func maxReduce(d1AndDst, d2 []float32) {
	for i := range d1AndDst {
		d1AndDst[i] = math32.Max(d1AndDst[i], d2[i])
	}
}

func evaluateSDF3(obj bounder3, pos []ms3.Vec, dist []float32, userData any) error {
	sdf, err := gleval.AssertSDF3(obj)
	if err != nil {
		return err
	}
	return sdf.Evaluate(pos, dist, userData)
}

type bounder3 = interface{ Bounds() ms3.Box }

// Evaluate implements [gleval.SDF3]. Positions are mapped into the primitive's local
// frame, evaluated with the type's Eval function and scaled back to world distances.
func (s *instance) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if s.pt.Eval == nil {
		return fmt.Errorf("primitive type %q has no CPU evaluator", s.pt.Name)
	}
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	local := vp.V3.Acquire(len(pos))
	defer vp.V3.Release(local)
	t := s.t
	invRot := t.Rotation.Conjugate()
	invScale := 1 / t.Scale
	for i, p := range pos {
		local[i] = invRot.Rotate(ms3.Scale(invScale, ms3.Sub(p, t.Translation)))
	}
	eval := s.pt.Eval
	args := s.args
	for i, p := range local {
		dist[i] = eval(p, args) * t.Scale
	}
	return nil
}

func (emptiness) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	inf := math32.Inf(1)
	for i := range dist {
		dist[i] = inf
	}
	return nil
}

// Evaluate implements [gleval.SDF3].
func (u *OpUnion) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	u.mustValidate()
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	auxDist := vp.Float.Acquire(len(dist))
	defer vp.Float.Release(auxDist)
	err = evaluateSDF3(u.joined[0], pos, dist, userData)
	if err != nil {
		return err
	}
	for _, shape := range u.joined[1:] {
		err = evaluateSDF3(shape, pos, auxDist, userData)
		if err != nil {
			return err
		}
		minReduce(dist, auxDist)
	}
	return nil
}

func (s *intersect) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	auxDist := vp.Float.Acquire(len(dist))
	defer vp.Float.Release(auxDist)
	err = evaluateSDF3(s.joined[0], pos, dist, userData)
	if err != nil {
		return err
	}
	for _, shape := range s.joined[1:] {
		err = evaluateSDF3(shape, pos, auxDist, userData)
		if err != nil {
			return err
		}
		maxReduce(dist, auxDist)
	}
	return nil
}

func (s *diff) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	d1 := dist
	d2 := vp.Float.Acquire(len(dist))
	defer vp.Float.Release(d2)
	err = evaluateSDF3(s.s1, pos, d1, userData)
	if err != nil {
		return err
	}
	err = evaluateSDF3(s.s2, pos, d2, userData)
	if err != nil {
		return err
	}
	for i := range d1 {
		dist[i] = maxf(d1[i], -d2[i])
	}
	return nil
}

// Evaluate folds from the last shape towards the first to match the generated GLSL smin(a,smin(b,c,k),k).
func (s *smoothUnion) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	auxDist := vp.Float.Acquire(len(dist))
	defer vp.Float.Release(auxDist)
	last := len(s.joined) - 1
	err = evaluateSDF3(s.joined[last], pos, dist, userData)
	if err != nil {
		return err
	}
	k := s.k
	for i := last - 1; i >= 0; i-- {
		err = evaluateSDF3(s.joined[i], pos, auxDist, userData)
		if err != nil {
			return err
		}
		for j, a := range auxDist {
			dist[j] = smin(a, dist[j], k)
		}
	}
	return nil
}
