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
	"context"
	"errors"
	"math"
	"time"
)

// TryPoll removes and returns the head element without blocking. ok is
// false if the queue was empty.
func (q *Queue[T]) TryPoll() (v T, ok bool, err error) {
	if err = q.checkOpen(); err != nil {
		return v, false, err
	}
	if !q.slots.TryAcquire(1) {
		q.recordRejected(OpDequeue)
		return v, false, nil
	}
	v, blocksFreed, err := q.commitDequeue()
	if err != nil {
		return v, false, err
	}
	_ = blocksFreed
	return v, true, nil
}

// PollTimeout removes and returns the head element, blocking for up to
// timeout for one to become available. ok is false on timeout.
func (q *Queue[T]) PollTimeout(timeout time.Duration) (v T, ok bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	v, err = q.dequeueCtx(ctx)
	if err == nil {
		return v, true, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return v, false, nil
	}
	return v, false, err
}

// Take removes and returns the head element, blocking until one is
// available or ctx is done.
func (q *Queue[T]) Take(ctx context.Context) (T, error) {
	return q.dequeueCtx(ctx)
}

// Peek returns the head element without removing it, or ok=false if the
// queue is empty. The fast path consults the unsynchronized slotsAvail
// mirror first; on the (rare, racy) chance it disagrees with the locked
// read, Peek re-checks under the header lock before deciding the queue is
// truly empty, per this package's documented double-check discipline.
func (q *Queue[T]) Peek() (v T, ok bool, err error) {
	if err = q.checkOpen(); err != nil {
		return v, false, err
	}
	if q.slotsAvail.Load() <= 0 && q.count.Load() == 0 {
		return v, false, nil
	}

	q.headerMu.RLock()
	defer q.headerMu.RUnlock()

	if q.count.Load() == 0 {
		return v, false, nil
	}
	head := q.head.Load()
	vw := newView(q.buf, q.ring(), head)
	length := vw.readUint32()
	payload := vw.readBytes(length)
	decoded, err := q.codec.Decode(payload)
	if err != nil {
		return v, false, wrapIllegalState("peek", err)
	}
	return decoded, true, nil
}

// Element is Peek without the ok return: it fails with ErrNoSuchElement
// instead of reporting emptiness via a boolean.
func (q *Queue[T]) Element() (T, error) {
	v, ok, err := q.Peek()
	if err != nil {
		return v, err
	}
	if !ok {
		return v, ErrNoSuchElement
	}
	return v, nil
}

// Remove removes and returns the head element, failing with
// ErrNoSuchElement instead of a boolean when the queue is empty.
func (q *Queue[T]) Remove() (T, error) {
	v, ok, err := q.TryPoll()
	if err != nil {
		return v, err
	}
	if !ok {
		return v, ErrNoSuchElement
	}
	return v, nil
}

func (q *Queue[T]) dequeueCtx(ctx context.Context) (T, error) {
	var zero T
	if err := q.checkOpen(); err != nil {
		return zero, err
	}
	if err := q.slots.Acquire(ctx, 1); err != nil {
		q.recordRejected(OpDequeue)
		return zero, translateCancellation(err)
	}
	v, _, err := q.commitDequeue()
	return v, err
}

// commitDequeue reads and removes the head record. The caller must already
// hold one permit on q.slots.
func (q *Queue[T]) commitDequeue() (v T, blocksFreed int32, err error) {
	timer := q.startTimer(OpDequeue)
	defer q.stopTimer(timer)

	q.headerMu.Lock()
	head := q.head.Load()
	vw := newView(q.buf, q.ring(), head)
	length := vw.readUint32()
	payload := vw.readBytes(length)
	blocksFreed = blocksFor(length, q.blockSize)
	q.head.Store(advancePos(head, blocksFreed*q.blockSize, q.ring()))
	q.count.Add(-1)
	q.writeHeaderLocked()
	q.headerMu.Unlock()

	q.slotsAvail.Add(-1)
	q.blocksAvail.Add(blocksFreed)
	q.blocks.Release(int64(blocksFreed))

	// The payload bytes were already copied out of the mapping above, so
	// decoding needs no lock for correctness; the read lock is taken here
	// only to keep this step serialized with Clear the way every other
	// observer of the ring is.
	q.headerMu.RLock()
	decoded, decErr := q.codec.Decode(payload)
	q.headerMu.RUnlock()
	if decErr != nil {
		return v, blocksFreed, wrapIllegalState("dequeue", decErr)
	}
	return decoded, blocksFreed, nil
}

// DrainTo atomically removes up to min(current count, max) elements,
// in FIFO order, appending them to out, and returns the number drained. An
// omitted max drains everything currently available. Unlike repeated
// TryPoll calls, the whole removal is a single critical section under the
// header lock, so it never interleaves with a concurrent Offer/Put/Poll/
// Take; decoding happens afterward, on bytes already copied out of the
// mapping, matching commitDequeue's own lock-span discipline.
func (q *Queue[T]) DrainTo(out *[]T, max ...int) (int, error) {
	if err := q.checkOpen(); err != nil {
		return 0, err
	}
	limit := int32(math.MaxInt32)
	if len(max) > 0 {
		if max[0] < 0 {
			return 0, wrapIllegalArgument("max must be >= 0")
		}
		limit = int32(max[0])
	}

	timer := q.startTimer(OpDequeue)
	defer q.stopTimer(timer)

	payloads := make([][]byte, 0, min(limit, q.count.Load()))
	blocksFreedTotal := int32(0)

	q.headerMu.Lock()
	for int32(len(payloads)) < limit {
		if !q.slots.TryAcquire(1) {
			break
		}
		head := q.head.Load()
		vw := newView(q.buf, q.ring(), head)
		length := vw.readUint32()
		payload := vw.readBytes(length)
		blocksFreed := blocksFor(length, q.blockSize)
		q.head.Store(advancePos(head, blocksFreed*q.blockSize, q.ring()))
		q.count.Add(-1)
		q.slotsAvail.Add(-1)
		payloads = append(payloads, payload)
		blocksFreedTotal += blocksFreed
	}
	if len(payloads) > 0 {
		q.writeHeaderLocked()
	}
	q.headerMu.Unlock()

	if blocksFreedTotal > 0 {
		q.blocksAvail.Add(blocksFreedTotal)
		q.blocks.Release(int64(blocksFreedTotal))
	}

	for i, payload := range payloads {
		decoded, err := q.codec.Decode(payload)
		if err != nil {
			return i, wrapIllegalState("drainTo", err)
		}
		*out = append(*out, decoded)
	}
	return len(payloads), nil
}

// vim: foldmethod=marker
