// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements Tensor, a multidimensional array kept in host
// memory, defined by a shape (a data type and its axes' dimensions) and its
// content, stored as a flat (1D) slice of the corresponding Go type.
//
// It is the currency of the imgseq generator: image batches are rank-4
// tensors shaped `[batch, height, width, channels]` and one-hot label batches
// are rank-2 tensors shaped `[batch, num_classes]`.
//
// There are a few ways to construct a Tensor:
//
//   - FromShape(shape shapes.Shape): creates a tensor with the given shape,
//     initialized with zeros.
//
//   - FromScalarAndDimensions[T](value T, dimensions ...int): creates a Tensor
//     with the given dimensions, filled with the scalar value given.
//
//   - FromFlatDataAndDimensions[T](data []T, dimensions ...int): creates a
//     Tensor with the given dimensions, and sets the flattened values with the
//     given data. Example:
//
//     t := tensors.FromFlatDataAndDimensions([]int8{1, 2, 3, 4}, 2, 2) // [[1,2], [3,4]]
//
// Access to the data is done with ConstFlatData and MutableFlatData (and
// their generics variants), which hold the Tensor locked for the duration of
// the access function.
package tensors

import (
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/imgseq/shapes"
)

// Tensor represents a multidimensional array (from a scalar with 0 dimensions
// to arbitrarily large dimensions), defined by its shape and its content,
// always stored as a flat slice of the underlying DType.
//
// The shape is immutable after construction; the contents can be mutated with
// MutableFlatData.
type Tensor struct {
	// shape of the tensor. Immutable, only cleared when the Tensor is finalized.
	shape shapes.Shape

	// mu protects flat, but not the shape.
	mu sync.Mutex

	// flat holds the slice with the actual data, of the Go type for the
	// shape's dtype.
	flat any
}

// Shape of the Tensor, includes the DType.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType returns the DType of the tensor's shape.
// It is a shortcut to `Tensor.Shape().DType`.
func (t *Tensor) DType() dtypes.DType {
	if t == nil {
		return dtypes.InvalidDType
	}
	return t.shape.DType
}

// Rank returns the rank of the tensor's shape.
// It is a shortcut to `Tensor.Shape().Rank()`.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// IsScalar returns whether the tensor represents a scalar value.
func (t *Tensor) IsScalar() bool { return t.shape.IsScalar() }

// Size returns the number of elements in the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory returns the number of bytes used to store the tensor.
// An alias to Tensor.Shape().Memory().
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// Ok returns whether the Tensor is in a valid state: it is not nil and it
// hasn't been finalized.
func (t *Tensor) Ok() bool {
	return t != nil && t.shape.Ok() && t.flat != nil
}

// CheckValid returns an error if the tensor is nil, has been finalized, or if
// its shape is invalid.
func (t *Tensor) CheckValid() error {
	if t == nil {
		return errors.New("Tensor is nil")
	}
	if !t.shape.Ok() {
		return errors.New("Tensor shape is invalid")
	}
	if t.flat == nil {
		return errors.New("Tensor has no data, was it finalized?")
	}
	return nil
}

// AssertValid panics if the tensor is nil, has been finalized, or if its
// shape is invalid.
func (t *Tensor) AssertValid() {
	if err := t.CheckValid(); err != nil {
		panic(err)
	}
}

// Finalize immediately frees the tensor data and leaves the Tensor in an
// invalid state. It is a no-op if the tensor was already finalized.
func (t *Tensor) Finalize() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flat = nil
	t.shape = shapes.Invalid()
}

// must panics if the given error is non-nil.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
