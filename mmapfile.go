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
	"os"

	"github.com/edsrzf/mmap-go"
)

// mappedFile owns the os.File and its single mmap.MMap mapping. Unlike the
// double virtual-memory mirroring trick this package's ancestor used to get
// free wraparound reads, this queue's wraparound is handled explicitly by
// view's split writes/reads (see cursor.go), so a single, ordinary mapping
// is enough.
type mappedFile struct {
	f             *os.File
	m             mmap.MMap
	dontCloseFile bool
}

// openMappedFile opens (creating if necessary) the file at path, truncates
// it to fileSize if it was just created or was empty, and maps it
// read/write. existed reports whether the file already held data, which
// the caller uses to decide whether to trust an on-disk header or write a
// fresh one.
func openMappedFile(path string, fileSize int32, dontCloseFile bool) (mf *mappedFile, existed bool, err error) {
	fi, statErr := os.Stat(path)
	existed = statErr == nil && fi.Size() > 0

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("persistq: open %s: %w", path, err)
	}

	if !existed {
		if err := f.Truncate(int64(fileSize)); err != nil {
			_ = f.Close()
			return nil, false, fmt.Errorf("persistq: truncate %s: %w", path, err)
		}
	}

	m, err := mmap.MapRegion(f, int(fileSize), mmap.RDWR, 0, 0)
	if err != nil {
		_ = f.Close()
		return nil, false, fmt.Errorf("persistq: mmap %s: %w", path, err)
	}

	return &mappedFile{f: f, m: m, dontCloseFile: dontCloseFile}, existed, nil
}

func (mf *mappedFile) bytes() []byte { return mf.m }

// Flush requests the OS write dirty pages back to the file. Best-effort:
// callers that want this to be non-fatal should swallow the error, per the
// no-durability-barrier contract of Queue.Flush.
func (mf *mappedFile) Flush() error {
	return mf.m.Flush()
}

func (mf *mappedFile) Close() error {
	if err := mf.m.Unmap(); err != nil {
		return fmt.Errorf("persistq: munmap: %w", err)
	}
	if mf.dontCloseFile {
		return nil
	}
	return mf.f.Close()
}

// vim: foldmethod=marker
