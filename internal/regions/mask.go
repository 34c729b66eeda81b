package regions

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when mask data does not fill its shape exactly.
var ErrShapeMismatch = errors.New("mask data length does not match shape")

// Mask is a labeled N-D array in row-major order.
type Mask struct {
	shape   []int
	strides []int
	data    []int
}

// NewMask wraps data as a mask of the given shape. The slices are copied.
func NewMask(shape []int, data []int) (*Mask, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("mask must have at least one dimension")
	}
	n := 1
	for i, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("mask dimension %d has invalid size %d", i, d)
		}
		n *= d
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: shape %v holds %d values, got %d", ErrShapeMismatch, shape, n, len(data))
	}

	m := &Mask{
		shape:   append([]int(nil), shape...),
		strides: make([]int, len(shape)),
		data:    append([]int(nil), data...),
	}
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		m.strides[i] = stride
		stride *= shape[i]
	}
	return m, nil
}

// Shape returns a copy of the mask dimensions.
func (m *Mask) Shape() []int {
	return append([]int(nil), m.shape...)
}

// Ndim returns the number of dimensions.
func (m *Mask) Ndim() int {
	return len(m.shape)
}

// Len returns the total number of elements.
func (m *Mask) Len() int {
	return len(m.data)
}

// At returns the label at the given multi-index.
func (m *Mask) At(index ...int) (int, error) {
	if len(index) != len(m.shape) {
		return 0, fmt.Errorf("index has %d dimensions, mask has %d", len(index), len(m.shape))
	}
	off := 0
	for i, v := range index {
		if v < 0 || v >= m.shape[i] {
			return 0, fmt.Errorf("index %v outside mask shape %v", index, m.shape)
		}
		off += v * m.strides[i]
	}
	return m.data[off], nil
}

// unravel writes the multi-index of flat offset off into idx.
func (m *Mask) unravel(off int, idx []int) {
	for i, s := range m.strides {
		idx[i] = off / s
		off %= s
	}
}
