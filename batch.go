// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package imgseq

import (
	"image"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"

	"github.com/gomlx/imgseq/shapes"
	"github.com/gomlx/imgseq/support/xslices"
	"github.com/gomlx/imgseq/tensors"
	"github.com/gomlx/imgseq/tensors/images"
)

// padToTensor converts a batch of (possibly differently sized) images to one
// tensor shaped `[batch_size, max_height, max_width, channels]`, where the
// maxima are taken over the batch.
//
// Images smaller than the maxima are anchored at the top-left corner (offset
// 0,0) and the rest is left zero. Since the conversion maps pixels to
// [-1, 1), the zero padding reads as mid-gray, not black.
func padToTensor(tt *images.ToTensorConfig, batch []image.Image) *tensors.Tensor {
	maxHeight := xslices.Max(xslices.Map(batch, func(img image.Image) int { return img.Bounds().Dy() }))
	maxWidth := xslices.Max(xslices.Map(batch, func(img image.Image) int { return img.Bounds().Dx() }))
	uniform := true
	for _, img := range batch {
		if img.Bounds().Dy() != maxHeight || img.Bounds().Dx() != maxWidth {
			uniform = false
			break
		}
	}
	if uniform {
		// No padding needed.
		return tt.Batch(batch)
	}

	batchT := tensors.FromShape(shapes.Make(tt.DType(), len(batch), maxHeight, maxWidth, tt.Channels()))
	switch tt.DType() {
	case dtypes.Float32:
		padBatchImpl[float32](tt, batchT, batch)
	case dtypes.Float64:
		padBatchImpl[float64](tt, batchT, batch)
	case dtypes.Float16:
		padBatchImpl[float16.Float16](tt, batchT, batch)
	case dtypes.BFloat16:
		padBatchImpl[bfloat16.BFloat16](tt, batchT, batch)
	default:
		exceptions.Panicf("imgseq does not support dtype %s for image batches", tt.DType())
	}
	return batchT
}

// padBatchImpl converts each image individually and copies it row-by-row into
// the top-left corner of its slot in the batch tensor.
func padBatchImpl[T dtypes.Supported](tt *images.ToTensorConfig, batchT *tensors.Tensor, batch []image.Image) {
	shape := batchT.Shape()
	maxHeight, maxWidth, channels := shape.Dim(1), shape.Dim(2), shape.Dim(3)
	imageStride := maxHeight * maxWidth * channels
	tensors.MustMutableFlatData(batchT, func(flat []T) {
		for imgIdx, img := range batch {
			single := tt.Single(img)
			height, width := single.Shape().Dim(0), single.Shape().Dim(1)
			tensors.MustConstFlatData(single, func(singleFlat []T) {
				rowLen := width * channels
				for y := 0; y < height; y++ {
					rowStart := imgIdx*imageStride + y*maxWidth*channels
					copy(flat[rowStart:rowStart+rowLen], singleFlat[y*rowLen:(y+1)*rowLen])
				}
			})
		}
	})
}

// oneHot encodes the given class ids as a one-hot tensor shaped
// `(Float32)[len(labels), numClasses]`.
func oneHot(labels []int, numClasses int) *tensors.Tensor {
	t := tensors.FromShape(shapes.Make(dtypes.Float32, len(labels), numClasses))
	tensors.MustMutableFlatData(t, func(flat []float32) {
		for ii, label := range labels {
			if label < 0 || label >= numClasses {
				exceptions.Panicf("label id %d out-of-range for %d classes", label, numClasses)
			}
			flat[ii*numClasses+label] = 1
		}
	})
	return t
}
