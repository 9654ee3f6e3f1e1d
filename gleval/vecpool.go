package gleval

import (
	"errors"
	"fmt"
	"strconv"
	"unsafe"

	"github.com/soypat/geometry/ms3"
)

// VecPool provides reusable buffers to evaluators so that nested operations
// do not allocate on every [SDF3.Evaluate] call. A VecPool is not safe for concurrent use,
// each goroutine evaluating SDFs should own one.
type VecPool struct {
	V3    bufPool[ms3.Vec]
	Float bufPool[float32]
}

// GetVecPool extracts a [*VecPool] from userData. userData may be a *VecPool or
// implement `VecPool() *VecPool`.
func GetVecPool(userData any) (*VecPool, error) {
	switch v := userData.(type) {
	case *VecPool:
		if v == nil {
			return nil, errors.New("nil VecPool")
		}
		return v, nil
	case interface{ VecPool() *VecPool }:
		vp := v.VecPool()
		if vp == nil {
			return nil, errors.New("nil VecPool returned by userData")
		}
		return vp, nil
	case nil:
		return nil, errors.New("nil userData, expected *gleval.VecPool")
	}
	return nil, fmt.Errorf("want userData type *gleval.VecPool, got %T", userData)
}

// AssertAllReleased checks all buffers acquired from the pool have been released.
func (vp *VecPool) AssertAllReleased() error {
	err := vp.Float.assertAllReleased()
	if err != nil {
		return fmt.Errorf("float pool: %w", err)
	}
	err = vp.V3.assertAllReleased()
	if err != nil {
		return fmt.Errorf("vec3 pool: %w", err)
	}
	return nil
}

type bufPool[T any] struct {
	_ins      [][]T
	_acquired []bool
}

// Acquire returns a buffer of the given length from the pool, allocating a new one if needed.
// The contents of the buffer are not zeroed.
func (bp *bufPool[T]) Acquire(length int) []T {
	for i, locked := range bp._acquired {
		if !locked && cap(bp._ins[i]) >= length {
			bp._acquired[i] = true
			return bp._ins[i][:length]
		}
	}
	newSlice := make([]T, length)
	bp._ins = append(bp._ins, newSlice)
	bp._acquired = append(bp._acquired, true)
	return newSlice
}

// Release returns a buffer previously obtained with Acquire to the pool.
func (bp *bufPool[T]) Release(buf []T) error {
	if cap(buf) == 0 {
		return errors.New("release of zero capacity buffer")
	}
	for i, instance := range bp._ins {
		if cap(instance) == cap(buf) && &instance[:1][0] == &buf[:1][0] {
			if !bp._acquired[i] {
				return errors.New("release of unacquired resource")
			}
			bp._acquired[i] = false
			return nil
		}
	}
	return errors.New("release of non-existent resource")
}

func (bp *bufPool[T]) assertAllReleased() error {
	for i, locked := range bp._acquired {
		if locked {
			return fmt.Errorf("buffer %d of %d not released", i, len(bp._ins))
		}
	}
	return nil
}

// NumBuffers returns the amount of buffers allocated by the pool.
func (bp *bufPool[T]) NumBuffers() int { return len(bp._ins) }

// TotalAlloc returns the amount of bytes allocated by the pool.
func (bp *bufPool[T]) TotalAlloc() int {
	var z T
	size := int(unsafe.Sizeof(z))
	n := 0
	for _, instance := range bp._ins {
		n += size * cap(instance)
	}
	return n
}

func (bp *bufPool[T]) String() string {
	return strconv.Itoa(bp.NumBuffers()) + " buffers, " + strconv.Itoa(bp.TotalAlloc()) + " bytes"
}
