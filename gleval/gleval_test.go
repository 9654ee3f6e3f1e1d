package gleval

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

type testSphere struct{ r float32 }

func (s testSphere) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if err := ValidateBuffers(pos, dist); err != nil {
		return err
	}
	for i, p := range pos {
		dist[i] = ms3.Norm(p) - s.r
	}
	return nil
}

func (s testSphere) Bounds() ms3.Box {
	return ms3.NewCenteredBox(ms3.Vec{}, ms3.Vec{X: 2 * s.r, Y: 2 * s.r, Z: 2 * s.r})
}

func TestNormalsCentralDiff(t *testing.T) {
	var vp VecPool
	sdf := testSphere{r: 1}
	pos := []ms3.Vec{
		{X: 1}, {Y: 1}, {Z: 1}, {X: -1},
		ms3.Unit(ms3.Vec{X: 1, Y: 1, Z: 1}),
	}
	normals := make([]ms3.Vec, len(pos))
	err := NormalsCentralDiff(sdf, pos, normals, 1e-3, &vp)
	if err != nil {
		t.Fatal(err)
	}
	for i, n := range normals {
		got := ms3.Unit(n)
		want := ms3.Unit(pos[i])
		if ms3.Norm(ms3.Sub(got, want)) > 1e-3 {
			t.Errorf("pos=%+v want normal %+v, got %+v", pos[i], want, got)
		}
	}
	if err := vp.AssertAllReleased(); err != nil {
		t.Error(err)
	}
}

func TestNormalsCentralDiffErrors(t *testing.T) {
	var vp VecPool
	sdf := testSphere{r: 1}
	pos := make([]ms3.Vec, 2)
	if NormalsCentralDiff(sdf, pos, make([]ms3.Vec, 1), 1e-3, &vp) == nil {
		t.Error("expected length mismatch error")
	}
	if NormalsCentralDiff(sdf, pos, make([]ms3.Vec, 2), 0, &vp) == nil {
		t.Error("expected invalid step error")
	}
	if NormalsCentralDiff(sdf, pos, make([]ms3.Vec, 2), 1e-3, nil) == nil {
		t.Error("expected missing VecPool error")
	}
}

func TestVecPool(t *testing.T) {
	var vp VecPool
	a := vp.Float.Acquire(16)
	b := vp.Float.Acquire(8)
	if len(a) != 16 || len(b) != 8 {
		t.Fatal("bad acquired lengths", len(a), len(b))
	}
	if vp.AssertAllReleased() == nil {
		t.Error("expected unreleased buffer error")
	}
	if err := vp.Float.Release(a); err != nil {
		t.Fatal(err)
	}
	if err := vp.Float.Release(a); err == nil {
		t.Error("expected double release error")
	}
	c := vp.Float.Acquire(10) // Should reuse a's storage.
	if vp.Float.NumBuffers() != 2 {
		t.Errorf("expected buffer reuse, got %d buffers", vp.Float.NumBuffers())
	}
	vp.Float.Release(b)
	vp.Float.Release(c)
	if err := vp.AssertAllReleased(); err != nil {
		t.Error(err)
	}
	if err := vp.Float.Release(make([]float32, 3)); err == nil {
		t.Error("expected foreign buffer release error")
	}
}

func TestGetVecPool(t *testing.T) {
	vp := &VecPool{}
	got, err := GetVecPool(vp)
	if err != nil || got != vp {
		t.Error("expected same VecPool", err)
	}
	if _, err = GetVecPool(nil); err == nil {
		t.Error("expected nil userData error")
	}
	if _, err = GetVecPool(1); err == nil {
		t.Error("expected type error")
	}
}

func TestCountingSDF3(t *testing.T) {
	c := &CountingSDF3{SDF: testSphere{r: 2}}
	pos := []ms3.Vec{{}, {X: 3}}
	dist := make([]float32, 2)
	err := c.Evaluate(pos, dist, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Evaluations() != 2 || c.Calls() != 1 {
		t.Errorf("bad counters evals=%d calls=%d", c.Evaluations(), c.Calls())
	}
	if math32.Abs(dist[0]+2) > 1e-6 || math32.Abs(dist[1]-1) > 1e-6 {
		t.Errorf("bad distances %v", dist)
	}
	if err = c.Evaluate(pos, dist[:1], nil); err == nil {
		t.Error("expected buffer mismatch error")
	}
	if c.Calls() != 1 {
		t.Error("failed evaluation should not count")
	}
}
