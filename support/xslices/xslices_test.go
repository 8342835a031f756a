// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAt(t *testing.T) {
	s := []int{10, 20, 30}
	assert.Equal(t, 10, At(s, 0))
	assert.Equal(t, 30, At(s, -1))
	assert.Equal(t, 20, At(s, -2))
	assert.Equal(t, 30, Last(s))
}

func TestCopy(t *testing.T) {
	s := []int{1, 2, 3}
	s2 := Copy(s)
	require.Equal(t, s, s2)
	s2[0] = 7
	assert.Equal(t, 1, s[0])
	assert.Nil(t, Copy([]int(nil)))
}

func TestSliceWithValue(t *testing.T) {
	assert.Equal(t, []float32{3, 3, 3, 3}, SliceWithValue[float32](4, 3))
	assert.Empty(t, SliceWithValue(0, 1))
}

func TestIota(t *testing.T) {
	assert.Equal(t, []float64{3, 4}, Iota(3.0, 2))
	assert.Equal(t, []int{0, 1, 2}, Iota(0, 3))
}

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"dog": 1, "cat": 0}
	assert.Equal(t, []string{"cat", "dog"}, SortedKeys(m))
}

func TestMap(t *testing.T) {
	in := []int{1, 2, 3}
	double := func(x int) int { return 2 * x }
	assert.Equal(t, []int{2, 4, 6}, Map(in, double))
	assert.Equal(t, []int{2, 4, 6}, MapParallel(in, double))

	large := Iota(0, 1000)
	assert.Equal(t, Map(large, double), MapParallel(large, double))
}

func TestMaxMin(t *testing.T) {
	s := []int{3, 7, 1, 5}
	assert.Equal(t, 7, Max(s))
	assert.Equal(t, 1, Min(s))
	assert.Equal(t, 0, Max([]int{}))
}
