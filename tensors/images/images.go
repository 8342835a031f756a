// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package images provides functions to load images from disk, resize them
// anchored on their shorter side, and convert them to tensors.
package images

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gomlx/imgseq/shapes"
	"github.com/gomlx/imgseq/tensors"
)

// ChannelOrder indicates the order in which the color channels of a pixel are
// laid out in a converted tensor.
type ChannelOrder uint8

const (
	// ChannelOrderRGB is the natural decode order: red, green, blue.
	ChannelOrderRGB ChannelOrder = iota

	// ChannelOrderBGR reverses the color channels: blue, green, red. Commonly
	// expected by models converted from OpenCV-based pipelines.
	ChannelOrderBGR
)

// String implements fmt.Stringer.
func (c ChannelOrder) String() string {
	switch c {
	case ChannelOrderRGB:
		return "RGB"
	case ChannelOrderBGR:
		return "BGR"
	}
	return "InvalidChannelOrder"
}

// Open reads and decodes the image stored in the given file.
//
// There is no filtering by file name: any file is attempted, and a file whose
// contents cannot be decoded as an image returns an error.
func Open(filePath string) (image.Image, error) {
	img, err := imaging.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image file %q", filePath)
	}
	return img, nil
}

// ResizeMinSide resizes img so that the shorter of (height, width) becomes
// exactly minSide, preserving the aspect ratio, using a box (area-averaging)
// filter -- appropriate for downscaling without aliasing.
//
// Images whose shorter side is already >= minSide are returned unchanged:
// there is no upscaling above the target, and no downscaling at all.
//
// New dimensions are the floor of the scaled ones. It returns the resized
// image and the height/width scale ratios actually applied, which may differ
// slightly from the nominal scale because of the integer truncation.
func ResizeMinSide(img image.Image, minSide int) (resized image.Image, ratioH, ratioW float64) {
	size := img.Bounds().Size()
	width, height := size.X, size.Y
	if min(width, height) >= minSide {
		return img, 1.0, 1.0
	}
	var scale float64
	if height < width {
		scale = float64(minSide) / float64(height)
	} else {
		scale = float64(minSide) / float64(width)
	}
	newWidth := int(float64(width) * scale)
	newHeight := int(float64(height) * scale)
	resized = imaging.Resize(img, newWidth, newHeight, imaging.Box)
	return resized, float64(newHeight) / float64(height), float64(newWidth) / float64(width)
}

// ToTensorConfig holds the configuration returned by the ToTensor function.
// Once configured, use Single or Batch to actually convert.
type ToTensorConfig struct {
	channels     int
	maxValue     float64
	zeroCentered bool
	order        ChannelOrder
	dtype        dtypes.DType
}

// ToTensor converts an image (or a batch of same-size images) to a tensor.
//
// It returns a configuration object that can be further configured. Once set,
// use Single or Batch methods to convert an image or a batch of images.
//
// It panics if dtype is not one of Float32, Float64, Float16 or BFloat16.
func ToTensor(dtype dtypes.DType) *ToTensorConfig {
	switch dtype {
	case dtypes.Float32, dtypes.Float64, dtypes.Float16, dtypes.BFloat16:
	default:
		exceptions.Panicf("images.ToTensor does not support dtype %s", dtype)
	}
	return &ToTensorConfig{
		channels: 3,
		maxValue: 1.0,
		order:    ChannelOrderRGB,
		dtype:    dtype,
	}
}

// WithAlpha configures the ToTensorConfig object to include the alpha channel
// in the conversion, so the converted tensor will have 4 channels. The default
// is dropping the alpha channel.
//
// It returns the ToTensorConfig object, so configuration calls can be cascaded.
func (tt *ToTensorConfig) WithAlpha() *ToTensorConfig {
	tt.channels = 4
	return tt
}

// MaxValue sets the maximum value of each channel. It defaults to 1.0, so
// channels range in [0, 1].
//
// It returns the ToTensorConfig object, so configuration calls can be cascaded.
func (tt *ToTensorConfig) MaxValue(v float64) *ToTensorConfig {
	tt.maxValue = v
	tt.zeroCentered = false
	return tt
}

// ZeroCentered configures the conversion to map channel values to [-1, 1]:
// a raw 0 maps to -1.0 and the maximum raw value to 1.0, sample-wise. The
// midpoint of the raw range maps to ~0 -- so a zero in the converted tensor
// corresponds to a mid-gray pixel, not a black one.
//
// It returns the ToTensorConfig object, so configuration calls can be cascaded.
func (tt *ToTensorConfig) ZeroCentered() *ToTensorConfig {
	tt.zeroCentered = true
	return tt
}

// WithChannelOrder sets the order in which color channels are written to the
// tensor. It defaults to ChannelOrderRGB.
//
// It returns the ToTensorConfig object, so configuration calls can be cascaded.
func (tt *ToTensorConfig) WithChannelOrder(order ChannelOrder) *ToTensorConfig {
	if order != ChannelOrderRGB && order != ChannelOrderBGR {
		exceptions.Panicf("images.ToTensorConfig: invalid channel order %d", order)
	}
	tt.order = order
	return tt
}

// Channels returns the number of channels the conversion will emit per pixel.
func (tt *ToTensorConfig) Channels() int { return tt.channels }

// DType returns the dtype the conversion will emit.
func (tt *ToTensorConfig) DType() dtypes.DType { return tt.dtype }

// Single converts the given img to a tensor, using the ToTensorConfig.
//
// It returns a 3D tensor, shaped as `[height, width, channels]`.
func (tt *ToTensorConfig) Single(img image.Image) *tensors.Tensor {
	return toTensorImpl(tt, []image.Image{img}, false)
}

// Batch converts the given same-size images to a tensor, using the
// ToTensorConfig.
//
// It returns a 4D tensor, shaped as `[batch_size, height, width, channels]`.
// It panics if the images don't all have the same size -- see the imgseq
// Generator for padding images of different sizes to a common shape.
func (tt *ToTensorConfig) Batch(images []image.Image) *tensors.Tensor {
	return toTensorImpl(tt, images, true)
}

func toTensorImpl(tt *ToTensorConfig, images []image.Image, batch bool) (t *tensors.Tensor) {
	switch tt.dtype {
	case dtypes.Float32:
		t = toTensorGenericsImpl[float32](tt, images, batch)
	case dtypes.Float64:
		t = toTensorGenericsImpl[float64](tt, images, batch)
	case dtypes.Float16:
		t = toTensorGenericsImpl[float16.Float16](tt, images, batch)
	case dtypes.BFloat16:
		t = toTensorGenericsImpl[bfloat16.BFloat16](tt, images, batch)
	default:
		exceptions.Panicf("images.ToTensor does not support dtype %s", tt.dtype)
	}
	return
}

func toTensorGenericsImpl[T dtypes.NumberNotComplex | float16.Float16 | bfloat16.BFloat16](
	tt *ToTensorConfig, images []image.Image, batch bool) (t *tensors.Tensor) {
	if !batch && len(images) != 1 {
		exceptions.Panicf("images.ToTensor in non-batch mode, but %d images requested for conversion", len(images))
	}
	imgSize := images[0].Bounds().Size()
	if batch {
		t = tensors.FromShape(shapes.Make(tt.dtype, len(images), imgSize.Y, imgSize.X, tt.channels))
	} else {
		t = tensors.FromShape(shapes.Make(tt.dtype, imgSize.Y, imgSize.X, tt.channels))
	}

	// convertToDType converts one RGBA channel value to the target DType.
	// color.Color.RGBA() returns 16 bits values packaged in uint32.
	var convertToDType func(val uint32) T
	normalize := func(val uint32) float32 {
		if tt.zeroCentered {
			return float32(val)*2/float32(0xFFFF) - 1
		}
		return float32(val) * float32(tt.maxValue) / float32(0xFFFF)
	}
	switch tt.dtype {
	case dtypes.Float16:
		convertToDType = func(val uint32) T {
			return T(float16.Fromfloat32(normalize(val)))
		}
	case dtypes.BFloat16:
		convertToDType = func(val uint32) T {
			return T(bfloat16.FromFloat32(normalize(val)))
		}
	default:
		convertToDType = func(val uint32) T {
			return T(normalize(val))
		}
	}

	t.MustMutableFlatData(func(flatAny any) {
		flat := flatAny.([]T)
		pos := 0
		for imgIdx, img := range images {
			if !img.Bounds().Size().Eq(imgSize) {
				exceptions.Panicf(
					"image[%d] has size %s, but image[0] has size %s -- they must all be the same",
					imgIdx, img.Bounds().Size(), imgSize)
			}
			for y := 0; y < imgSize.Y; y++ {
				for x := 0; x < imgSize.X; x++ {
					r, g, b, a := img.At(img.Bounds().Min.X+x, img.Bounds().Min.Y+y).RGBA()
					if tt.order == ChannelOrderBGR {
						r, b = b, r
					}
					channels := [4]uint32{r, g, b, a}
					for _, channel := range channels[:tt.channels] {
						flat[pos] = convertToDType(channel)
						pos++
					}
				}
			}
		}
		if pos != t.Shape().Size() {
			exceptions.Panicf(
				"images.ToTensor failed to set the values for all pixels (%d written out of %d)",
				pos, t.Shape().Size())
		}
	})
	return
}
