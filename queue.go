// {{{ Copyright (c) Paul R. Tagliamonte <paultag@gmail.com> 2020-2021
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

package persistq

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/semaphore"

	"github.com/accurit/persistq/codec"
)

type queueState int32

const (
	stateOpen queueState = iota
	stateClearing
	stateClosed
)

// Queue is a bounded, blocking FIFO backed by a fixed-size memory-mapped
// file. See the package doc for the on-disk layout and the overall
// algorithm; construct one with Open.
type Queue[T any] struct {
	mf  *mappedFile
	buf []byte

	blockSize    int32
	fileSize     int32
	firstUsable  int32
	usableBlocks int32

	// blocks counts free blocks available to producers; slots counts
	// records available to consumers. Both are fair, weighted, and
	// context-cancellable (golang.org/x/sync/semaphore), coordinating all
	// backpressure between producers and consumers without either side
	// ever busy-spinning.
	blocks *semaphore.Weighted
	slots  *semaphore.Weighted

	// blocksAvail and slotsAvail mirror the two semaphores' available
	// permits for the non-blocking, unsynchronized observers (Size,
	// IsEmpty, Peek's fast path). They are best-effort and approximate
	// under concurrent mutation by design.
	blocksAvail atomic.Int32
	slotsAvail  atomic.Int32

	// count, head and tail are the authoritative ring cursors. They are
	// only ever mutated while headerMu is held for writing, but are
	// stored atomically so the unsynchronized observers can read them
	// without racing the race detector.
	count atomic.Int32
	head  atomic.Int32
	tail  atomic.Int32

	// headerMu guards the header bytes and the cursor fields above.
	// sync.RWMutex is used rather than a hand-rolled ticket lock: since
	// Go 1.9 a blocked writer stops new readers from starving it, which
	// is enough to satisfy this package's fairness requirement without
	// reinventing a primitive nothing in the example corpus supplies.
	headerMu sync.RWMutex

	codec  codec.Codec[T]
	state  atomic.Int32
	logger log.Logger
	cfg    *queueConfig[T]

	path string
}

// Open opens (or creates) the queue file at path with the given block and
// file sizes, using c to (de)serialize elements. If the file already holds
// data, its header is validated against blockSize and fileSize and, on a
// match, the ring's state is recovered; any mismatch is a fast, fatal
// ErrIllegalState. A fresh or empty file gets a new, empty header.
func Open[T any](path string, blockSize, fileSize int32, c codec.Codec[T], opts ...Option[T]) (*Queue[T], error) {
	cfg := defaultConfig[T]()
	for _, opt := range opts {
		opt(cfg)
	}

	if blockSize < 4 {
		return nil, wrapIllegalArgument("block_size must be >= 4")
	}
	if fileSize < blockSize {
		return nil, wrapIllegalArgument("file_size must be >= block_size")
	}
	if fileSize%blockSize != 0 {
		return nil, wrapIllegalArgument("file_size must be a multiple of block_size")
	}

	firstUsable := firstUsableBlock(blockSize)
	usableBlocks := (fileSize - firstUsable) / blockSize
	if usableBlocks <= 0 {
		return nil, wrapIllegalArgument("file_size leaves no usable blocks after the header")
	}

	mf, existed, err := openMappedFile(path, fileSize, cfg.dontCloseFile)
	if err != nil {
		return nil, err
	}

	q := &Queue[T]{
		mf:           mf,
		buf:          mf.bytes(),
		blockSize:    blockSize,
		fileSize:     fileSize,
		firstUsable:  firstUsable,
		usableBlocks: usableBlocks,
		codec:        c,
		logger:       cfg.logger,
		cfg:          cfg,
		path:         path,
	}

	var count, head, tail int32
	if existed {
		h := readFileHeader(q.buf[:headerSize])
		if h.fileSize != fileSize || h.blockSize != blockSize {
			_ = mf.Close()
			return nil, wrapIllegalState("open", fmt.Errorf(
				"on-disk header (file_size=%d, block_size=%d) does not match constructor parameters (file_size=%d, block_size=%d)",
				h.fileSize, h.blockSize, fileSize, blockSize))
		}
		count, head, tail = h.count, h.head, h.tail
	} else {
		count, head, tail = 0, firstUsable, firstUsable
	}

	q.count.Store(count)
	q.head.Store(head)
	q.tail.Store(tail)

	occupied := occupiedBlocks(count, head, tail, usableBlocks, blockSize, fileSize, firstUsable)
	q.blocks = newWeightedWithAvailable(usableBlocks, usableBlocks-occupied)
	q.slots = newWeightedWithAvailable(usableBlocks, count)
	q.blocksAvail.Store(usableBlocks - occupied)
	q.slotsAvail.Store(count)

	if !existed {
		q.headerMu.Lock()
		q.writeHeaderLocked()
		q.headerMu.Unlock()
	}

	return q, nil
}

// occupiedBlocks resolves the classic empty-vs-full ambiguity of a ring
// whose head equals its tail using the persisted count as the
// disambiguator (invariant 2): count == 0 means empty regardless of
// cursor equality, count > 0 with head == tail means the ring is entirely
// full.
func occupiedBlocks(count, head, tail, usableBlocks, blockSize, fileSize, firstUsable int32) int32 {
	if count == 0 {
		return 0
	}
	if head == tail {
		return usableBlocks
	}
	ringBytes := fileSize - firstUsable
	used := tail - head
	if used < 0 {
		used += ringBytes
	}
	return used / blockSize
}

func newWeightedWithAvailable(max, available int32) *semaphore.Weighted {
	w := semaphore.NewWeighted(int64(max))
	if used := max - available; used > 0 {
		if !w.TryAcquire(int64(used)) {
			panic("persistq: internal: fresh semaphore could not be pre-acquired")
		}
	}
	return w
}

func (q *Queue[T]) ring() ringGeometry {
	return ringGeometry{fileSize: q.fileSize, firstUsable: q.firstUsable}
}

// writeHeaderLocked persists count/head/tail to the mapped header. The
// caller must hold headerMu for writing.
func (q *Queue[T]) writeHeaderLocked() {
	h := fileHeader{
		fileSize:  q.fileSize,
		blockSize: q.blockSize,
		count:     q.count.Load(),
		head:      q.head.Load(),
		tail:      q.tail.Load(),
	}
	h.writeTo(q.buf[:headerSize])
}

func (q *Queue[T]) checkOpen() error {
	if queueState(q.state.Load()) != stateOpen {
		return ErrIllegalState
	}
	return nil
}

// Close flushes and unmaps the backing file. In the closed state every
// operation fails with ErrIllegalState.
func (q *Queue[T]) Close() error {
	if !q.state.CompareAndSwap(int32(stateOpen), int32(stateClosed)) {
		if queueState(q.state.Load()) == stateClosed {
			return nil
		}
		return ErrIllegalState
	}
	return q.mf.Close()
}

// Flush requests that the OS write the mapping's dirty pages back to
// disk. This is best-effort: no durability barrier (no fsync ordering
// guarantee across crashes) is promised, and mapping errors are swallowed
// rather than surfaced, matching this package's non-goals.
func (q *Queue[T]) Flush() error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	if err := q.mf.Flush(); err != nil {
		level.Warn(q.logger).Log("component", "persistq", "op", "flush", "err", err)
	}
	return nil
}

// Clear drains both semaphores and resets the ring to empty. Per its
// contract, Clear must be externally synchronized with any concurrent
// producers or consumers; calling it concurrently with Offer/Put/Poll/Take
// leaves the queue's accounting undefined.
func (q *Queue[T]) Clear() error {
	if !q.state.CompareAndSwap(int32(stateOpen), int32(stateClearing)) {
		return ErrIllegalState
	}
	defer q.state.Store(int32(stateOpen))

	q.headerMu.Lock()
	defer q.headerMu.Unlock()

	q.blocks = semaphore.NewWeighted(int64(q.usableBlocks))
	q.slots = newWeightedWithAvailable(q.usableBlocks, 0)
	q.blocksAvail.Store(q.usableBlocks)
	q.slotsAvail.Store(0)

	q.count.Store(0)
	q.head.Store(q.firstUsable)
	q.tail.Store(q.firstUsable)
	q.writeHeaderLocked()
	return nil
}

// Size returns the number of currently enqueued records. It mirrors the
// consumer semaphore's available permits and is read without the header
// lock, so it is only approximate under concurrent mutation.
func (q *Queue[T]) Size() int {
	return int(q.slotsAvail.Load())
}

// IsEmpty reports count == 0, read without synchronization.
func (q *Queue[T]) IsEmpty() bool {
	return q.count.Load() == 0
}

// RemainingCapacity always returns the maximum positive int: this queue is
// bounded by bytes, not by a fixed element count.
func (q *Queue[T]) RemainingCapacity() int {
	return math.MaxInt
}

// Contains always returns false; this queue does not support identity
// lookups.
func (q *Queue[T]) Contains(T) bool { return false }

// RemoveValue, RetainAll, RemoveAll, ContainsAll and ToArray are unsupported:
// this queue has no notion of element identity beyond FIFO order.
func (q *Queue[T]) RemoveValue(T) error          { return ErrUnsupported }
func (q *Queue[T]) RetainAll([]T) error           { return ErrUnsupported }
func (q *Queue[T]) RemoveAll([]T) error           { return ErrUnsupported }
func (q *Queue[T]) ContainsAll([]T) (bool, error) { return false, ErrUnsupported }
func (q *Queue[T]) ToArray() ([]T, error)         { return nil, ErrUnsupported }

// vim: foldmethod=marker
