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

// Package persistq implements a bounded, blocking FIFO queue backed by a
// fixed-size, memory-mapped file. Elements are serialized through a
// pluggable codec.Codec, written into block-aligned, length-prefixed
// records inside a ring area, and read back in the order they were
// written — including across a process restart, since the ring's cursors
// and record count are persisted in a 20-byte header at the start of the
// file.
//
// Capacity is counted in blocks, not elements: block_size divides the file
// into fixed-size allocation units, and every record occupies a whole
// number of them. Two fair, weighted semaphores do all of the queue's
// backpressure accounting — one counts free blocks for producers, the
// other counts enqueued records for consumers — so Offer, Put, Poll and
// Take never spin and never oversubscribe the file.
//
// The sibling onceinit and ringsample packages are not specific to this
// queue: onceinit is a one-shot initialization barrier usable by any lazy
// service locator, and ringsample is the lock-free sampling ring the
// metrics package uses to derive enqueue/dequeue latency distributions.
package persistq

// vim: foldmethod=marker
