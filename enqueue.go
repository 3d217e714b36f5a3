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
	"fmt"
	"time"
)

// TryOffer attempts to enqueue v without blocking. It returns false, nil if
// there is not currently enough free space.
func (q *Queue[T]) TryOffer(v T) (bool, error) {
	if err := q.checkOpen(); err != nil {
		return false, err
	}
	payload, blocksNeeded, err := q.encodeForEnqueue(v)
	if err != nil {
		return false, err
	}
	if !q.blocks.TryAcquire(int64(blocksNeeded)) {
		q.recordRejected(OpEnqueue)
		return false, nil
	}
	q.commitEnqueue(payload, blocksNeeded)
	return true, nil
}

// OfferTimeout attempts to enqueue v, blocking for up to timeout for room to
// become available. It returns false, nil on timeout, distinguishing it
// from a hard error.
func (q *Queue[T]) OfferTimeout(timeout time.Duration, v T) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := q.enqueueCtx(ctx, v)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	return false, err
}

// Put enqueues v, blocking until room is available or ctx is done. A
// cancelled or expired ctx surfaces as ErrInterrupted.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	return q.enqueueCtx(ctx, v)
}

// Add enqueues v without blocking, returning ErrCapacity instead of a bare
// false when there is no room. Offer (TryOffer here) is the capacity-aware
// sibling that lets a caller decide how to react; Add is for callers that
// treat a full queue as exceptional.
func (q *Queue[T]) Add(v T) error {
	ok, err := q.TryOffer(v)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCapacity
	}
	return nil
}

func (q *Queue[T]) enqueueCtx(ctx context.Context, v T) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	payload, blocksNeeded, err := q.encodeForEnqueue(v)
	if err != nil {
		return err
	}
	if err := q.blocks.Acquire(ctx, int64(blocksNeeded)); err != nil {
		q.recordRejected(OpEnqueue)
		return translateCancellation(err)
	}
	q.commitEnqueue(payload, blocksNeeded)
	return nil
}

// encodeForEnqueue serializes v and computes how many blocks the resulting
// record needs. A record whose blocksNeeded exceeds q.usableBlocks is
// never rejected here: it is left to q.blocks itself, which TryAcquire
// reports as unsatisfiable (so TryOffer/Add simply return false/ErrCapacity)
// and which Acquire blocks on forever absent a ctx deadline (so Put hangs
// exactly as it would for any other unsatisfiable request), matching this
// package's documented boundary behavior for an over-sized record.
func (q *Queue[T]) encodeForEnqueue(v T) (payload []byte, blocksNeeded int32, err error) {
	payload, err = q.codec.Encode(v)
	if err != nil {
		return nil, 0, fmt.Errorf("persistq: encode: %w", err)
	}
	blocksNeeded = blocksFor(int32(len(payload)), q.blockSize)
	return payload, blocksNeeded, nil
}

// commitEnqueue writes the record and publishes it to consumers. The
// caller must already hold blocksNeeded permits on q.blocks.
func (q *Queue[T]) commitEnqueue(payload []byte, blocksNeeded int32) {
	timer := q.startTimer(OpEnqueue)
	defer q.stopTimer(timer)

	q.headerMu.Lock()
	tail := q.tail.Load()
	v := newView(q.buf, q.ring(), tail)
	v.writeUint32(int32(len(payload)))
	v.writeBytes(payload)
	q.tail.Store(advancePos(tail, blocksNeeded*q.blockSize, q.ring()))
	q.count.Add(1)
	q.writeHeaderLocked()
	q.headerMu.Unlock()

	q.blocksAvail.Add(-blocksNeeded)
	q.slotsAvail.Add(1)
	q.slots.Release(1)
}

func (q *Queue[T]) startTimer(op Op) Timer {
	if q.cfg.metrics == nil {
		return nil
	}
	return q.cfg.metrics.StartTimer(op)
}

func (q *Queue[T]) stopTimer(t Timer) {
	if t != nil {
		t.Stop()
	}
}

func (q *Queue[T]) recordRejected(op Op) {
	if q.cfg.metrics != nil {
		q.cfg.metrics.Rejected(op)
	}
}

// translateCancellation maps a context error from a semaphore.Weighted
// Acquire call into this package's blocking-call error vocabulary.
func translateCancellation(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, err)
}

// vim: foldmethod=marker
