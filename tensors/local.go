// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"fmt"
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/imgseq/shapes"
)

// FromShape returns a Tensor with the given shape, with the data initialized
// with zeros.
//
// It panics if the shape is invalid.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		panic(errors.New("invalid shape"))
	}
	flatV := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), shape.Size(), shape.Size())
	return &Tensor{
		shape: shape.Clone(),
		flat:  flatV.Interface(),
	}
}

// FromScalarAndDimensions creates a Tensor with the given dimensions, filled
// with the given scalar value.
func FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	t := FromShape(shape)
	MustMutableFlatData(t, func(flat []T) {
		for ii := range flat {
			flat[ii] = value
		}
	})
	return t
}

// FromFlatDataAndDimensions creates a Tensor with the given dimensions,
// initialized with the flattened data given -- len(data) must match the size
// of the shape (the product of the dimensions).
//
// It panics if the sizes don't match.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("tensors.FromFlatDataAndDimensions(): data size is %d, but dimensions size is %d",
			len(data), shape.Size())
	}
	t := FromShape(shape)
	MustMutableFlatData(t, func(flat []T) {
		copy(flat, data)
	})
	return t
}

// Clone returns a deep copy of the Tensor.
func (t *Tensor) Clone() *Tensor {
	t.AssertValid()
	clone := FromShape(t.shape)
	t.MustConstFlatData(func(flat any) {
		reflect.Copy(reflect.ValueOf(clone.flat), reflect.ValueOf(flat))
	})
	return clone
}

// ConstFlatData calls accessFn with the flattened data as a slice of the Go
// type corresponding to the DType. Even scalar values have a flattened data
// representation of one element.
//
// It locks the Tensor until accessFn returns.
//
// It provides accessFn with the actual Tensor data (not a copy), owned by the
// Tensor; it must not be changed -- see Tensor.MutableFlatData for that.
func (t *Tensor) ConstFlatData(accessFn func(flat any)) error {
	if err := t.CheckValid(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	accessFn(t.flat)
	return nil
}

// MustConstFlatData is like Tensor.ConstFlatData, but panics on error.
func (t *Tensor) MustConstFlatData(accessFn func(flat any)) {
	must(t.ConstFlatData(accessFn))
}

// MutableFlatData calls accessFn with the flattened data as a slice of the Go
// type corresponding to the DType. The contents of the slice can be changed
// until accessFn returns. During this time the Tensor is locked.
func (t *Tensor) MutableFlatData(accessFn func(flat any)) error {
	if err := t.CheckValid(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	accessFn(t.flat)
	return nil
}

// MustMutableFlatData is like Tensor.MutableFlatData, but panics on error.
func (t *Tensor) MustMutableFlatData(accessFn func(flat any)) {
	must(t.MutableFlatData(accessFn))
}

// ConstFlatData is the generics version of Tensor.ConstFlatData. It returns an
// error if T doesn't match the tensor's dtype.
func ConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) error {
	if t.shape.DType != dtypes.FromGenericsType[T]() {
		var v T
		return errors.Errorf("ConstFlatData[%T] is incompatible with Tensor's dtype %s -- expected dtype %s",
			v, t.shape.DType, dtypes.FromGenericsType[T]())
	}
	return t.ConstFlatData(func(anyFlat any) {
		accessFn(anyFlat.([]T))
	})
}

// MustConstFlatData is the generics version of Tensor.MustConstFlatData.
// It panics if T doesn't match the tensor's dtype.
func MustConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	must(ConstFlatData(t, accessFn))
}

// MutableFlatData is the generics version of Tensor.MutableFlatData. It
// returns an error if T doesn't match the tensor's dtype.
func MutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) error {
	if t.shape.DType != dtypes.FromGenericsType[T]() {
		var v T
		return errors.Errorf("MutableFlatData[%T] is incompatible with Tensor's dtype %s -- expected dtype %s",
			v, t.shape.DType, dtypes.FromGenericsType[T]())
	}
	return t.MutableFlatData(func(anyFlat any) {
		accessFn(anyFlat.([]T))
	})
}

// MustMutableFlatData is the generics version of Tensor.MustMutableFlatData.
// It panics if T doesn't match the tensor's dtype.
func MustMutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	must(MutableFlatData(t, accessFn))
}

// Equal checks whether t == t2, comparing shapes and contents.
//
// A nil or finalized tensor is only Equal to another nil or finalized tensor.
func (t *Tensor) Equal(t2 *Tensor) bool {
	if !t.Ok() || !t2.Ok() {
		return t.Ok() == t2.Ok()
	}
	if !t.shape.Equal(t2.shape) {
		return false
	}
	equal := false
	t.MustConstFlatData(func(flat any) {
		t2.MustConstFlatData(func(flat2 any) {
			equal = reflect.DeepEqual(flat, flat2)
		})
	})
	return equal
}

// maxStringSize is the largest number of elements included in Tensor.String.
const maxStringSize = 64

// String prints the shape of the tensor, and its contents if it holds at most
// 64 elements.
func (t *Tensor) String() string {
	if t == nil || !t.Ok() {
		return "tensors.Tensor(nil)"
	}
	if t.Size() > maxStringSize {
		return fmt.Sprintf("%s: (... too large, %d values ...)", t.shape, t.Size())
	}
	var str string
	t.MustConstFlatData(func(flat any) {
		str = fmt.Sprintf("%s: %v", t.shape, flat)
	})
	return str
}
