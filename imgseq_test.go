// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package imgseq

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/imgseq/tensors"
)

const (
	catClass = 0
	dogClass = 1
)

// testImage creates a width x height image filled with the given color.
func testImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

var (
	catColor = color.NRGBA{R: 255, A: 255}
	dogColor = color.NRGBA{B: 255, A: 255}
)

// makeTestDataset creates a dataset directory with 2 red 4x4 "cat" images and
// 3 blue 4x4 "dog" images.
func makeTestDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, class := range []struct {
		name  string
		count int
		color color.NRGBA
	}{{"cat", 2, catColor}, {"dog", 3, dogColor}} {
		classDir := filepath.Join(dir, class.name)
		require.NoError(t, os.Mkdir(classDir, 0755))
		for ii := 0; ii < class.count; ii++ {
			fileName := filepath.Join(classDir, string(rune('a'+ii))+".png")
			require.NoError(t, imaging.Save(testImage(4, 4, class.color), fileName))
		}
	}
	return dir
}

// classOfSlot reads which class the image at the given batch slot belongs to,
// from its color: the channel order is BGR, so a blue (dog) image has its
// first channel saturated and a red (cat) image its last.
func classOfSlot(t *testing.T, batchImages *tensors.Tensor, slot int) int {
	t.Helper()
	shape := batchImages.Shape()
	require.Equal(t, 4, shape.Rank())
	pixels := shape.Dim(1) * shape.Dim(2) * shape.Dim(3)
	class := -1
	tensors.MustConstFlatData(batchImages, func(flat []float32) {
		base := slot * pixels
		switch {
		case flat[base] > 0.5:
			class = dogClass
		case flat[base+2] > 0.5:
			class = catClass
		}
	})
	require.GreaterOrEqual(t, class, 0, "slot %d has neither a saturated blue nor red channel", slot)
	return class
}

// labelOfSlot decodes the one-hot label of the given batch slot.
func labelOfSlot(t *testing.T, batchLabels *tensors.Tensor, slot int) int {
	t.Helper()
	numClasses := batchLabels.Shape().Dim(-1)
	label := -1
	tensors.MustConstFlatData(batchLabels, func(flat []float32) {
		for class := 0; class < numClasses; class++ {
			if flat[slot*numClasses+class] == 1 {
				require.Equal(t, -1, label, "slot %d has more than one label set", slot)
				label = class
			}
		}
	})
	require.GreaterOrEqual(t, label, 0, "slot %d has no label set", slot)
	return label
}

func TestNewScansClasses(t *testing.T) {
	gen, err := New(makeTestDataset(t))
	require.NoError(t, err)
	classes := gen.Classes()
	assert.Equal(t, 2, classes.NumClasses())
	assert.Equal(t, []string{"cat", "dog"}, classes.Names())
	assert.Equal(t, 5, gen.NumExamples())

	id, found := classes.IndexOf("dog")
	require.True(t, found)
	assert.Equal(t, dogClass, id)
	_, found = classes.IndexOf("bird")
	assert.False(t, found)
	assert.Equal(t, "cat", classes.Name(catClass))
	require.Panics(t, func() { classes.Name(2) })
}

func TestNewErrors(t *testing.T) {
	_, err := New("/this/path/does/not/exist")
	require.Error(t, err)

	// A directory without class sub-directories is not a dataset.
	emptyDir := t.TempDir()
	_, err = New(emptyDir)
	require.ErrorContains(t, err, "no class sub-directories")

	onlyFiles := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(onlyFiles, "stray.png"), []byte("x"), 0644))
	_, err = New(onlyFiles)
	require.ErrorContains(t, err, "no class sub-directories")
}

func TestLenAndWraparound(t *testing.T) {
	gen, err := New(makeTestDataset(t))
	require.NoError(t, err)
	gen.WithShuffle(false).WithBatchSize(2).WithMinSide(1)

	// 5 examples in batches of 2: 3 batches, the last one wrapping around.
	require.Equal(t, 3, gen.Len())

	// Scan order is cat/a, cat/b, dog/a, dog/b, dog/c.
	wantLabels := [][]int{
		{catClass, catClass},
		{dogClass, dogClass},
		{dogClass, catClass}, // dog/c then wrap-around to cat/a.
	}
	for batchIdx, want := range wantLabels {
		batchImages, batchLabels, err := gen.At(batchIdx)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 4, 4, 3}, batchImages.Shape().Dimensions)
		assert.Equal(t, []int{2, 2}, batchLabels.Shape().Dimensions)
		assert.Equal(t, dtypes.Float32, batchLabels.DType())
		for slot, wantClass := range want {
			assert.Equal(t, wantClass, labelOfSlot(t, batchLabels, slot), "batch %d slot %d", batchIdx, slot)
			assert.Equal(t, wantClass, classOfSlot(t, batchImages, slot), "batch %d slot %d", batchIdx, slot)
		}
	}
}

func TestBatchLargerThanDataset(t *testing.T) {
	gen, err := New(makeTestDataset(t))
	require.NoError(t, err)
	gen.WithShuffle(false).WithBatchSize(10).WithMinSide(1)

	require.Equal(t, 1, gen.Len())
	batchImages, batchLabels, err := gen.At(0)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 4, 4, 3}, batchImages.Shape().Dimensions)

	// The 5 examples repeat to fill the batch.
	want := []int{catClass, catClass, dogClass, dogClass, dogClass}
	for slot := 0; slot < 10; slot++ {
		assert.Equal(t, want[slot%5], labelOfSlot(t, batchLabels, slot), "slot %d", slot)
	}
}

func TestShuffleIsDeterministic(t *testing.T) {
	dir := makeTestDataset(t)
	gen1, err := New(dir)
	require.NoError(t, err)
	gen2, err := New(dir)
	require.NoError(t, err)
	for _, gen := range []*Generator{gen1, gen2} {
		gen.WithBatchSize(2).WithMinSide(1).WithSeed(123)
	}

	for batchIdx := 0; batchIdx < gen1.Len(); batchIdx++ {
		images1, labels1, err := gen1.At(batchIdx)
		require.NoError(t, err)
		images2, labels2, err := gen2.At(batchIdx)
		require.NoError(t, err)
		assert.True(t, images1.Equal(images2), "batch %d images differ", batchIdx)
		assert.True(t, labels1.Equal(labels2), "batch %d labels differ", batchIdx)
	}
}

func TestShuffleKeepsImageLabelPairs(t *testing.T) {
	gen, err := New(makeTestDataset(t))
	require.NoError(t, err)
	gen.WithBatchSize(2).WithMinSide(1)
	for batchIdx := 0; batchIdx < gen.Len(); batchIdx++ {
		batchImages, batchLabels, err := gen.At(batchIdx)
		require.NoError(t, err)
		for slot := 0; slot < 2; slot++ {
			assert.Equal(t, classOfSlot(t, batchImages, slot), labelOfSlot(t, batchLabels, slot),
				"batch %d slot %d: image and label disagree", batchIdx, slot)
		}
	}
}

func TestReconfigureIsIdempotent(t *testing.T) {
	dir := makeTestDataset(t)
	gen1, err := New(dir)
	require.NoError(t, err)
	gen1.WithBatchSize(2).WithMinSide(1).WithSeed(7)

	// Same final configuration reached through a different sequence of calls.
	gen2, err := New(dir)
	require.NoError(t, err)
	gen2.WithSeed(99).WithShuffle(false).WithMinSide(1).WithShuffle(true).WithSeed(7).WithBatchSize(2)

	for batchIdx := 0; batchIdx < gen1.Len(); batchIdx++ {
		_, labels1, err := gen1.At(batchIdx)
		require.NoError(t, err)
		_, labels2, err := gen2.At(batchIdx)
		require.NoError(t, err)
		assert.True(t, labels1.Equal(labels2), "batch %d labels differ", batchIdx)
	}
}

func TestPadding(t *testing.T) {
	dir := t.TempDir()
	classDir := filepath.Join(dir, "white")
	require.NoError(t, os.Mkdir(classDir, 0755))
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	require.NoError(t, imaging.Save(testImage(3, 2, white), filepath.Join(classDir, "small.png")))
	require.NoError(t, imaging.Save(testImage(4, 4, white), filepath.Join(classDir, "large.png")))

	gen, err := New(dir)
	require.NoError(t, err)
	gen.WithShuffle(false).WithBatchSize(2).WithMinSide(1)

	batchImages, _, err := gen.At(0)
	require.NoError(t, err)
	// Padded to the batch maxima.
	require.Equal(t, []int{2, 4, 4, 3}, batchImages.Shape().Dimensions)

	// Scan order: large.png first. Slot 1 holds the 3x2 image anchored at the
	// top-left, the rest of the slot is zero (mid-gray after normalization).
	tensors.MustConstFlatData(batchImages, func(flat []float32) {
		at := func(slot, y, x, channel int) float32 {
			return flat[((slot*4+y)*4+x)*3+channel]
		}
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				assert.Equal(t, float32(1), at(0, y, x, 0), "large image at (%d, %d)", y, x)
				inside := y < 2 && x < 3
				for channel := 0; channel < 3; channel++ {
					want := float32(0)
					if inside {
						want = 1
					}
					assert.Equal(t, want, at(1, y, x, channel), "small image at (%d, %d)", y, x)
				}
			}
		}
	})
}

func TestMinSideUpscaling(t *testing.T) {
	gen, err := New(makeTestDataset(t))
	require.NoError(t, err)
	gen.WithShuffle(false).WithBatchSize(2)

	// Default minimum side is 24: the 4x4 images are upscaled to 24x24.
	batchImages, _, err := gen.At(0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 24, 24, 3}, batchImages.Shape().Dimensions)
}

func TestAtErrors(t *testing.T) {
	gen, err := New(makeTestDataset(t))
	require.NoError(t, err)
	gen.WithBatchSize(2)

	_, _, err = gen.At(-1)
	require.ErrorContains(t, err, "out-of-range")
	_, _, err = gen.At(gen.Len())
	require.ErrorContains(t, err, "out-of-range")

	// A file that is not a decodable image only fails when its batch is read.
	dir := t.TempDir()
	classDir := filepath.Join(dir, "junk")
	require.NoError(t, os.Mkdir(classDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(classDir, "notes.txt"), []byte("not an image"), 0644))
	gen, err = New(dir)
	require.NoError(t, err)
	_, _, err = gen.At(0)
	require.Error(t, err)
}

func TestConfigPanics(t *testing.T) {
	gen, err := New(makeTestDataset(t))
	require.NoError(t, err)
	require.Panics(t, func() { gen.WithBatchSize(0) })
	require.Panics(t, func() { gen.WithMinSide(0) })
	require.Panics(t, func() { gen.WithDType(dtypes.Int64) })
}

func TestWithDType(t *testing.T) {
	gen, err := New(makeTestDataset(t))
	require.NoError(t, err)
	gen.WithShuffle(false).WithBatchSize(2).WithMinSide(1).WithDType(dtypes.Float16)

	batchImages, batchLabels, err := gen.At(0)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float16, batchImages.DType())
	// Labels are always one-hot Float32.
	assert.Equal(t, dtypes.Float32, batchLabels.DType())
}
