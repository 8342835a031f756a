// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// imgseq-demo iterates over an image classification dataset stored as a
// directory of class sub-directories (`<root>/<class>/<file>`), reporting the
// classes found and the shapes and sizes of the generated batches.
//
// Example:
//
//	imgseq-demo --data=~/tmp/dogs_vs_cats/train --batch=32 --parallelism=8
package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/gomlx/imgseq"
	"github.com/gomlx/imgseq/support/fsutil"
)

var (
	flagDataDir     = flag.String("data", "", "Training dataset directory, with one sub-directory per class.")
	flagValDataDir  = flag.String("val_data", "", "Optional validation dataset directory, same layout as --data.")
	flagBatchSize   = flag.Int("batch", imgseq.DefaultBatchSize, "Batch size.")
	flagMinSide     = flag.Int("min_side", imgseq.DefaultMinSide, "Minimum length of the images' shorter side: smaller images are upscaled.")
	flagShuffle     = flag.Bool("shuffle", true, "Shuffle the examples before batching.")
	flagSeed        = flag.Int64("seed", imgseq.DefaultSeed, "Seed of the shuffle.")
	flagDType       = flag.String("dtype", "float32", "DType of the image batches: float32, float64, float16 or bfloat16.")
	flagParallelism = flag.Int("parallelism", 0, "Number of goroutines loading batches. 0 means one per core plus one.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagDataDir == "" {
		klog.Exitf("Please set --data to the dataset directory.")
	}

	dataDir := fsutil.MustReplaceTildeInDir(*flagDataDir)
	dtype := must.M1(dtypes.DTypeString(*flagDType))
	gen := must.M1(imgseq.New(dataDir))
	gen.WithBatchSize(*flagBatchSize).
		WithMinSide(*flagMinSide).
		WithShuffle(*flagShuffle).
		WithSeed(*flagSeed).
		WithDType(dtype)

	classes := gen.Classes()
	fmt.Printf("Dataset %q: %d examples, %d classes: %s\n",
		gen.Name(), gen.NumExamples(), classes.NumClasses(), strings.Join(classes.Names(), ", "))
	fmt.Printf("Batches: %d of size %d (last one wraps around)\n", gen.Len(), gen.BatchSize())

	if *flagValDataDir != "" {
		valGen := must.M1(imgseq.New(fsutil.MustReplaceTildeInDir(*flagValDataDir)))
		valGen.WithBatchSize(*flagBatchSize).WithMinSide(*flagMinSide).WithShuffle(false).WithDType(dtype)
		fmt.Printf("Validation dataset %q: %d examples, %d batches\n",
			valGen.Name(), valGen.NumExamples(), valGen.Len())
	}

	images, labels := must.M2(gen.At(0))
	fmt.Printf("First batch: images %s, labels %s\n", images.Shape(), labels.Shape())

	ds := imgseq.CustomParallel(imgseq.NewDataset(gen.Name(), gen)).
		Parallelism(*flagParallelism).
		Buffer(*flagBatchSize).
		Start()
	defer ds.Done()

	bar := progressbar.NewOptions(gen.Len(),
		progressbar.OptionSetDescription("reading"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("batches"),
	)
	var totalBytes uintptr
	for {
		_, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		must.M(err)
		for _, t := range inputs {
			totalBytes += t.Memory()
		}
		for _, t := range labels {
			totalBytes += t.Memory()
		}
		must.M(bar.Add(1))
	}
	must.M(bar.Finish())
	fmt.Printf("\nRead one epoch: %s of tensor data.\n", humanize.Bytes(uint64(totalBytes)))
}
