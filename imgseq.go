// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package imgseq implements a batched data generator for image classification
// datasets stored as a directory of class sub-directories:
//
//	<root>/<class_name>/<image_file>
//
// Every file under a class sub-directory is taken as one example of that
// class. The generator partitions the examples into fixed-size batches and
// converts each batch on demand to a pair of tensors: the images, resized so
// their shorter side is at least a minimum, normalized to [-1, 1) and
// zero-padded to a common per-batch shape; and the one-hot encoded labels.
//
// Basic usage:
//
//	gen, err := imgseq.New("/data/train")
//	if err != nil { ... }
//	gen.WithBatchSize(32).WithMinSide(24)
//	for i := 0; i < gen.Len(); i++ {
//		images, labels, err := gen.At(i)
//		...
//	}
//
// For streaming an epoch as a dataset, or reading batches ahead in parallel,
// see NewDataset and CustomParallel.
package imgseq

import (
	"image"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/imgseq/support/xslices"
	"github.com/gomlx/imgseq/tensors"
	"github.com/gomlx/imgseq/tensors/images"
)

// Defaults used by New. They can be changed with the Generator.WithXxx
// configuration methods.
const (
	// DefaultBatchSize is the number of examples per batch.
	DefaultBatchSize = 32

	// DefaultMinSide is the minimum length of the shorter side of the images,
	// below which they are upscaled.
	DefaultMinSide = 24

	// DefaultSeed seeds the shuffling of the examples.
	DefaultSeed = 4321
)

// ClassIndex maps class names (the sub-directory names) to contiguous integer
// ids in [0, NumClasses), assigned in lexicographic order of the names.
//
// The mapping is stable for a directory tree: rescanning the same tree yields
// the same ids.
type ClassIndex struct {
	names []string
	ids   map[string]int
}

func newClassIndex(sortedNames []string) *ClassIndex {
	c := &ClassIndex{
		names: sortedNames,
		ids:   make(map[string]int, len(sortedNames)),
	}
	for id, name := range sortedNames {
		c.ids[name] = id
	}
	return c
}

// NumClasses returns the number of distinct classes.
func (c *ClassIndex) NumClasses() int { return len(c.names) }

// Names returns a copy of the class names, ordered by their ids.
func (c *ClassIndex) Names() []string { return xslices.Copy(c.names) }

// IndexOf returns the id of the given class name, or false if the class is
// unknown.
func (c *ClassIndex) IndexOf(name string) (int, bool) {
	id, found := c.ids[name]
	return id, found
}

// Name returns the class name for the given id.
//
// It panics if id is out-of-range.
func (c *ClassIndex) Name(id int) string {
	if id < 0 || id >= len(c.names) {
		exceptions.Panicf("ClassIndex.Name(%d) out-of-range, there are %d classes", id, len(c.names))
	}
	return c.names[id]
}

// scan reads the dataset directory tree and returns the class index and the
// examples, as parallel slices of file paths and class ids, in scan order:
// classes in lexicographic order, and within a class the files in
// lexicographic order.
func scan(dirPath string) (classes *ClassIndex, paths []string, labels []int, err error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "failed to scan dataset directory %q", dirPath)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil, nil, errors.Errorf("no class sub-directories found in dataset directory %q", dirPath)
	}
	// os.ReadDir returns entries sorted by name, which fixes the class ids.
	classes = newClassIndex(names)
	for id, name := range names {
		classDir := filepath.Join(dirPath, name)
		files, err := os.ReadDir(classDir)
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "failed to scan class directory %q", classDir)
		}
		count := 0
		for _, file := range files {
			if !file.Type().IsRegular() {
				continue
			}
			paths = append(paths, filepath.Join(classDir, file.Name()))
			labels = append(labels, id)
			count++
		}
		klog.V(1).Infof("imgseq: class %q (id %d): %d examples", name, id, count)
	}
	klog.V(1).Infof("imgseq: scanned %q: %d classes, %d examples", dirPath, classes.NumClasses(), len(paths))
	return
}

// Generator yields batches of a directory-stored image classification
// dataset, as (images, labels) tensor pairs. See the package documentation
// for the expected directory layout.
//
// Create it with New and configure it with the WithXxx methods -- they return
// the updated Generator, so calls can be cascaded:
//
//	gen = gen.WithBatchSize(64).WithShuffle(false)
//
// Generator implements Sequence. Its batches are indexed, and reading
// different batches concurrently is safe; the configuration methods are not
// safe to call concurrently with reads.
type Generator struct {
	name    string
	dirPath string

	batchSize int
	minSide   int
	shuffle   bool
	seed      int64
	dtype     dtypes.DType
	order     images.ChannelOrder

	classes *ClassIndex

	// Examples in scan order. Immutable after New.
	scanPaths  []string
	scanLabels []int

	// Examples in iteration order (scan order, possibly shuffled), and their
	// partition into batches of indices. Rebuilt by the configuration methods.
	paths    []string
	labels   []int
	groups   [][]int
	toTensor *images.ToTensorConfig
}

// New creates a Generator for the dataset stored under dirPath.
//
// It scans the directory tree immediately: the class sub-directories define
// the classes, and every regular file under them is one example. It returns
// an error if dirPath cannot be read or contains no class sub-directories.
// Files are not decoded at scan time, so a non-image file is only reported
// when the batch containing it is requested.
//
// The returned Generator shuffles the examples with the default seed and uses
// DefaultBatchSize and DefaultMinSide. Use the WithXxx methods to change any
// of that.
func New(dirPath string) (*Generator, error) {
	classes, paths, labels, err := scan(dirPath)
	if err != nil {
		return nil, err
	}
	g := &Generator{
		name:       filepath.Base(dirPath),
		dirPath:    dirPath,
		batchSize:  DefaultBatchSize,
		minSide:    DefaultMinSide,
		shuffle:    true,
		seed:       DefaultSeed,
		dtype:      dtypes.Float32,
		order:      images.ChannelOrderBGR,
		classes:    classes,
		scanPaths:  paths,
		scanLabels: labels,
	}
	g.rebuild()
	return g, nil
}

// WithName sets the name of the generator, used for logging and by the
// Dataset adapter. It defaults to the base name of the dataset directory.
//
// It returns the updated Generator, so calls can be cascaded.
func (g *Generator) WithName(name string) *Generator {
	g.name = name
	return g
}

// WithBatchSize sets the number of examples per batch. It defaults to
// DefaultBatchSize.
//
// It panics if batchSize <= 0.
//
// It returns the updated Generator, so calls can be cascaded.
func (g *Generator) WithBatchSize(batchSize int) *Generator {
	if batchSize <= 0 {
		exceptions.Panicf("Generator.WithBatchSize(%d): batch size must be > 0", batchSize)
	}
	g.batchSize = batchSize
	g.rebuild()
	return g
}

// WithMinSide sets the minimum length of the shorter side of the images: any
// image whose shorter side is below it is upscaled (preserving the aspect
// ratio) so the shorter side becomes the minimum. Larger images are left
// unchanged. It defaults to DefaultMinSide.
//
// It panics if minSide <= 0.
//
// It returns the updated Generator, so calls can be cascaded.
func (g *Generator) WithMinSide(minSide int) *Generator {
	if minSide <= 0 {
		exceptions.Panicf("Generator.WithMinSide(%d): minimum side must be > 0", minSide)
	}
	g.minSide = minSide
	return g
}

// WithShuffle sets whether the examples are shuffled (once, at construction
// or reconfiguration) before being partitioned into batches. If false, the
// examples are taken in scan order. It defaults to true.
//
// The shuffle is deterministic on the seed (see WithSeed): two generators
// over the same directory with the same seed produce identical batches.
//
// It returns the updated Generator, so calls can be cascaded.
func (g *Generator) WithShuffle(shuffle bool) *Generator {
	g.shuffle = shuffle
	g.rebuild()
	return g
}

// WithSeed sets the seed of the shuffle. It defaults to DefaultSeed. It has
// no effect if shuffling is disabled.
//
// It returns the updated Generator, so calls can be cascaded.
func (g *Generator) WithSeed(seed int64) *Generator {
	g.seed = seed
	g.rebuild()
	return g
}

// WithDType sets the dtype of the image batch tensors. One of Float32 (the
// default), Float64, Float16 or BFloat16 -- anything else panics. Labels are
// always one-hot encoded as Float32.
//
// It returns the updated Generator, so calls can be cascaded.
func (g *Generator) WithDType(dtype dtypes.DType) *Generator {
	g.dtype = dtype
	g.rebuild() // Panics on an unsupported dtype, before g.toTensor is replaced.
	return g
}

// WithChannelOrder sets the order of the color channels in the image batch
// tensors. It defaults to images.ChannelOrderBGR.
//
// It returns the updated Generator, so calls can be cascaded.
func (g *Generator) WithChannelOrder(order images.ChannelOrder) *Generator {
	g.order = order
	g.rebuild()
	return g
}

// rebuild recomputes the iteration order and the batch partition from the
// current configuration. It always starts over from the scan order, so
// reconfiguring is idempotent: the result depends only on the final
// configuration, not on the sequence of calls that led to it.
func (g *Generator) rebuild() {
	g.toTensor = images.ToTensor(g.dtype).ZeroCentered().WithChannelOrder(g.order)
	g.paths = xslices.Copy(g.scanPaths)
	g.labels = xslices.Copy(g.scanLabels)
	if g.shuffle {
		rng := rand.New(rand.NewSource(g.seed))
		rng.Shuffle(len(g.paths), func(i, j int) {
			g.paths[i], g.paths[j] = g.paths[j], g.paths[i]
			g.labels[i], g.labels[j] = g.labels[j], g.labels[i]
		})
	}

	// Partition into groups of exactly batchSize indices: the last group wraps
	// around to the start of the example list, so examples that started an
	// epoch may also close it.
	numExamples := len(g.paths)
	g.groups = nil
	if numExamples == 0 {
		return
	}
	numGroups := (numExamples + g.batchSize - 1) / g.batchSize
	g.groups = make([][]int, numGroups)
	for groupIdx := range g.groups {
		group := make([]int, g.batchSize)
		start := groupIdx * g.batchSize
		for ii := range group {
			group[ii] = (start + ii) % numExamples
		}
		g.groups[groupIdx] = group
	}
}

// Name returns the name of the generator.
func (g *Generator) Name() string { return g.name }

// Classes returns the class index of the dataset.
func (g *Generator) Classes() *ClassIndex { return g.classes }

// NumExamples returns the total number of examples found in the dataset
// directory.
func (g *Generator) NumExamples() int { return len(g.paths) }

// BatchSize returns the configured number of examples per batch.
func (g *Generator) BatchSize() int { return g.batchSize }

// DType returns the dtype of the image batch tensors.
func (g *Generator) DType() dtypes.DType { return g.dtype }

// Len returns the number of batches: ceil(NumExamples() / BatchSize()). The
// last batch is completed by wrapping around to the first examples, so all
// batches have exactly BatchSize() examples.
func (g *Generator) Len() int { return len(g.groups) }

// At loads, converts and returns batch index as a pair of tensors:
//
//   - batchImages, shaped `(dtype)[batch_size, max_height, max_width, 3]`,
//     where max_height and max_width are the maxima over the images of this
//     batch after resizing. Pixel channels are mapped to [-1, 1) and images
//     smaller than the maxima are anchored at the top-left corner, with the
//     padding left zero (mid-gray).
//   - batchLabels, the one-hot encoded labels, shaped
//     `(Float32)[batch_size, num_classes]`.
//
// It returns an error if index is out-of-range or if any image file of the
// batch cannot be read or decoded.
//
// At is safe for concurrent use, as long as the Generator is not being
// reconfigured.
func (g *Generator) At(index int) (batchImages, batchLabels *tensors.Tensor, err error) {
	if index < 0 || index >= len(g.groups) {
		return nil, nil, errors.Errorf("batch index %d out-of-range: generator %q has %d batches",
			index, g.name, len(g.groups))
	}
	group := g.groups[index]
	batch := make([]image.Image, len(group))
	labels := make([]int, len(group))
	for ii, exampleIdx := range group {
		img, err := images.Open(g.paths[exampleIdx])
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "loading batch %d of generator %q", index, g.name)
		}
		img, _, _ = images.ResizeMinSide(img, g.minSide)
		batch[ii] = img
		labels[ii] = g.labels[exampleIdx]
	}
	batchImages = padToTensor(g.toTensor, batch)
	batchLabels = oneHot(labels, g.classes.NumClasses())
	return
}

// Sequence is an indexed collection of batches: Len batches, each retrievable
// with At. Generator implements it; NewDataset adapts it to a streaming
// Dataset.
type Sequence interface {
	// Len returns the number of batches.
	Len() int

	// At returns the batch with the given index, in [0, Len).
	At(index int) (batchImages, batchLabels *tensors.Tensor, err error)
}

var _ Sequence = (*Generator)(nil)
