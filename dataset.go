// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package imgseq

import (
	"io"
	"sync"

	"github.com/gomlx/imgseq/tensors"
)

// Dataset provides data one batch at a time, for training or evaluation
// loops. A batch is a slice of input tensors and a slice of label tensors.
//
// Yield returns io.EOF at the end of an epoch; Reset restarts the dataset
// from the beginning, so another epoch can be read.
type Dataset interface {
	// Name identifies the dataset. Used for debugging and pretty-printing.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after
	// io.EOF is reached, for instance to run another epoch.
	Reset()

	// Yield one batch: a spec for the dataset (opaque to the caller, may be
	// nil), a slice of inputs and a slice of labels tensors. It returns
	// io.EOF when the epoch finished; any other error interrupts the epoch.
	Yield() (spec any, inputs, labels []*tensors.Tensor, err error)
}

// sequenceDataset adapts a Sequence to the Dataset interface, yielding its
// batches in order, once per epoch.
type sequenceDataset struct {
	name string
	seq  Sequence

	mu   sync.Mutex
	next int
}

// NewDataset adapts a Sequence (e.g. a Generator) to the Dataset interface:
// each epoch yields the batches seq.At(0) .. seq.At(seq.Len()-1) in order,
// followed by io.EOF.
//
// Yield is safe for concurrent use if the Sequence's At is -- the batch
// indices are handed out under a lock, the batch loading itself runs
// concurrently. See CustomParallel to exploit that.
func NewDataset(name string, seq Sequence) Dataset {
	return &sequenceDataset{name: name, seq: seq}
}

// Name implements Dataset.
func (ds *sequenceDataset) Name() string { return ds.name }

// Reset implements Dataset.
func (ds *sequenceDataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.next = 0
}

// Yield implements Dataset. The spec returned is the underlying Sequence.
func (ds *sequenceDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	ds.mu.Lock()
	index := ds.next
	if index >= ds.seq.Len() {
		ds.mu.Unlock()
		return nil, nil, nil, io.EOF
	}
	ds.next++
	ds.mu.Unlock()

	batchImages, batchLabels, err := ds.seq.At(index)
	if err != nil {
		return nil, nil, nil, err
	}
	return ds.seq, []*tensors.Tensor{batchImages}, []*tensors.Tensor{batchLabels}, nil
}
