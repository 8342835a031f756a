// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package imgseq

import (
	"io"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/imgseq/tensors"
)

// ParallelDataset is a wrapper around a Dataset that parallelizes calls to
// Yield. See details in CustomParallel.
type ParallelDataset struct {
	// Dataset is the underlying dataset being read in parallel.
	Dataset Dataset

	name string

	// parallelism is the number of goroutines started generating batches.
	parallelism int

	// extraBufferSize is the size of the buffer of pre-generated batches.
	extraBufferSize int

	// impl is the actual implementation, nil before Start and after Done.
	impl *parallelDatasetImpl
}

type yieldUnit struct {
	spec   any
	inputs []*tensors.Tensor
	labels []*tensors.Tensor
}

// parallelDatasetImpl separates the implementation of ParallelDataset, so the
// goroutines don't hold a reference back to the ParallelDataset.
type parallelDatasetImpl struct {
	dataset     Dataset
	parallelism int

	err   error
	muErr sync.Mutex

	buffer                                chan yieldUnit
	epochFinished, stopEpoch, stopDataset chan struct{}
	stopOnce                              sync.Once

	// wg counts the generating goroutines of the current epoch.
	wg *sync.WaitGroup
}

// Parallel parallelizes the Yield calls of any thread-safe Dataset, such as
// the one returned by NewDataset.
//
// It uses CustomParallel and automatically starts it with the default
// parameters. To avoid leaking goroutines, call ParallelDataset.Done when
// finished with it.
//
// The order of the yields is not preserved: batches that finish loading
// faster may be yielded first.
//
// Example:
//
//	ds := imgseq.Parallel(imgseq.NewDataset(gen.Name(), gen))
//	defer ds.Done()
func Parallel(ds Dataset) *ParallelDataset {
	pds := CustomParallel(ds)
	return pds.Buffer(pds.parallelism).Start()
}

// CustomParallel builds a ParallelDataset that parallelizes any Dataset, as
// long as the underlying dataset is thread-safe.
//
// The ParallelDataset can be further configured (see Parallelism and Buffer),
// and then one has to call Start before actually using it.
//
// To avoid leaking goroutines, call ParallelDataset.Done when finished with
// it.
//
// Example:
//
//	ds := imgseq.CustomParallel(imgseq.NewDataset(gen.Name(), gen)).Buffer(10).Start()
//	defer ds.Done()
func CustomParallel(ds Dataset) *ParallelDataset {
	pd := &ParallelDataset{
		name:    ds.Name(),
		Dataset: ds,
	}
	pd.Parallelism(0) // 0 means the number of cores available.
	return pd
}

// Parallelism sets the number of goroutines started, each calling
// Dataset.Yield in parallel to accelerate the generation of batches. If set
// to 0 (the default), it uses the number of cores in the system plus 1.
//
// This must be called before Start.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset) Parallelism(n int) *ParallelDataset {
	if pd.impl != nil {
		klog.Errorf("ParallelDataset invalid configuration change after Start has been called.")
		return nil
	}
	if n == 0 {
		n = runtime.NumCPU() + 1
	}
	pd.parallelism = n
	return pd
}

// Buffer sets the size of the channel that collects the parallel yields.
// Notice there is already an intrinsic buffering in the goroutines sampling
// in parallel.
//
// This must be called before Start.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset) Buffer(n int) *ParallelDataset {
	if pd.impl != nil {
		klog.Errorf("ParallelDataset invalid configuration change after Start has been called.")
		return nil
	}
	pd.extraBufferSize = n
	return pd
}

// Start indicates that the dataset is finished being configured, and starts
// the generating goroutines. After Start the configuration can no longer be
// changed.
//
// It returns the updated ParallelDataset, so calls can be cascaded.
func (pd *ParallelDataset) Start() *ParallelDataset {
	if pd.impl != nil {
		klog.Errorf("ParallelDataset.Start called more than once!?")
		return nil
	}
	impl := &parallelDatasetImpl{
		dataset:     pd.Dataset,
		parallelism: pd.parallelism,
		buffer:      make(chan yieldUnit, pd.extraBufferSize),
		stopDataset: make(chan struct{}),
	}
	pd.impl = impl
	impl.startGoroutines()
	return pd
}

func (impl *parallelDatasetImpl) startGoroutines() {
	impl.epochFinished = make(chan struct{})
	impl.stopEpoch = make(chan struct{})
	wg := &sync.WaitGroup{}
	impl.wg = wg
	for ii := 0; ii < impl.parallelism; ii++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-impl.stopEpoch:
					return
				case <-impl.stopDataset:
					return
				default:
					// Move forward and generate the next batch.
				}
				var unit yieldUnit
				var err error
				unit.spec, unit.inputs, unit.labels, err = impl.dataset.Yield()
				if err == io.EOF {
					return
				}
				if err != nil {
					klog.Errorf("ParallelDataset: %+v", err)
					// Fatal error, stop everything.
					impl.muErr.Lock()
					if impl.err == nil {
						impl.err = err
					}
					impl.muErr.Unlock()
					impl.stopOnce.Do(func() { close(impl.stopDataset) })
					return
				}
				select {
				case <-impl.stopEpoch:
					return
				case <-impl.stopDataset:
					return
				case impl.buffer <- unit:
					// Batch generated and cached, move to the next.
				}
			}
		}()
	}

	// Controller: closes epochFinished when all goroutines of this epoch
	// returned, unless the whole dataset was stopped.
	epochFinished := impl.epochFinished
	go func() {
		wg.Wait()
		select {
		case <-impl.stopDataset:
			return
		default:
			close(epochFinished)
		}
	}()
}

// Name implements Dataset.
func (pd *ParallelDataset) Name() string {
	return pd.name
}

// Done stops the parallel generation and waits for the goroutines to finish.
// The ParallelDataset can no longer be used afterwards.
func (pd *ParallelDataset) Done() {
	impl := pd.impl
	if impl == nil {
		return
	}
	pd.impl = nil
	impl.stopOnce.Do(func() { close(impl.stopDataset) })
	// Drain the buffer so goroutines blocked on sending can observe the stop.
	for {
		select {
		case <-impl.buffer:
			continue
		default:
		}
		break
	}
	impl.wg.Wait()
}

// Reset implements Dataset: it discards the batches generated so far in the
// current epoch, resets the underlying dataset and starts generating again.
func (pd *ParallelDataset) Reset() {
	impl := pd.impl
	if impl == nil {
		klog.Warningf("ParallelDataset.Reset was called before Start or after Done")
		return
	}

	// Indicate to generators to stop, and drain whatever is still buffered.
	close(impl.stopEpoch)
drainEpoch:
	for {
		select {
		case <-impl.stopDataset:
			return
		case <-impl.epochFinished:
			break drainEpoch
		case <-impl.buffer:
			// Discard remaining entries that were in the buffer.
		}
	}
	for {
		// The buffer may still hold batches generated before epochFinished.
		select {
		case <-impl.buffer:
			continue
		default:
		}
		break
	}

	impl.dataset.Reset()
	impl.startGoroutines()
}

// Yield implements Dataset. It returns one of the batches generated in
// parallel, not necessarily in the underlying dataset's order, and io.EOF
// once the underlying dataset's epoch finished and the buffer is exhausted.
func (pd *ParallelDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	impl := pd.impl
	if impl == nil {
		err = errors.Errorf("ParallelDataset.Yield was called before Start or after Done")
		return
	}
	var unit yieldUnit
	select {
	case <-impl.stopDataset:
		// An error occurred, the dataset is closed.
		impl.muErr.Lock()
		err = impl.err
		impl.muErr.Unlock()
		if err == nil {
			err = errors.Errorf("ParallelDataset %q was stopped", pd.name)
		}
		return
	case unit = <-impl.buffer:
		// We got a new batch.
	case <-impl.epochFinished:
		// No more batches being produced until Reset, but the buffer may
		// still hold some.
		select {
		case unit = <-impl.buffer:
		default:
			err = io.EOF
			return
		}
	}
	spec, inputs, labels = unit.spec, unit.inputs, unit.labels
	return
}

var _ Dataset = (*ParallelDataset)(nil)
