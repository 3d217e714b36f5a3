package persistq

import "encoding/binary"

// ringGeometry is the fixed, immutable shape of a queue's ring area.
type ringGeometry struct {
	fileSize    int32
	firstUsable int32
}

// view is a thread-local cursor over the shared, mapped byte slice. Each
// enqueue, dequeue, peek and iterator step constructs its own view rather
// than sharing position state across goroutines; only the underlying bytes
// are shared, and only while the caller holds the appropriate header lock.
type view struct {
	buf []byte
	g   ringGeometry
	pos int32
}

func newView(buf []byte, g ringGeometry, pos int32) *view {
	return &view{buf: buf, g: g, pos: pos}
}

// writeUint32 writes a big-endian length prefix. Contiguous by invariant:
// the caller always starts a record at a block boundary, and block_size is
// required to be at least 4.
func (v *view) writeUint32(x int32) {
	binary.BigEndian.PutUint32(v.buf[v.pos:v.pos+4], uint32(x))
	v.pos += 4
	if v.pos >= v.g.fileSize {
		v.pos = v.g.firstUsable
	}
}

// readUint32 reads a big-endian length prefix, contiguous for the same
// reason writeUint32 is.
func (v *view) readUint32() int32 {
	x := int32(binary.BigEndian.Uint32(v.buf[v.pos : v.pos+4]))
	v.pos += 4
	if v.pos >= v.g.fileSize {
		v.pos = v.g.firstUsable
	}
	return x
}

// writeBytes writes data starting at the current position, splitting and
// wrapping to firstUsable if data would cross fileSize.
func (v *view) writeBytes(data []byte) {
	n := int32(len(data))
	remaining := v.g.fileSize - v.pos
	if remaining >= n {
		copy(v.buf[v.pos:], data)
		v.pos += n
		if v.pos >= v.g.fileSize {
			v.pos = v.g.firstUsable
		}
		return
	}
	copy(v.buf[v.pos:v.g.fileSize], data[:remaining])
	copy(v.buf[v.g.firstUsable:], data[remaining:])
	v.pos = v.g.firstUsable + (n - remaining)
}

// advancePos moves pos forward by delta bytes within the ring area
// [firstUsable, fileSize), wrapping as needed. Used to advance head/tail by
// a whole number of blocks once a record's bytes have been written or
// consumed.
func advancePos(pos, delta int32, g ringGeometry) int32 {
	ringBytes := g.fileSize - g.firstUsable
	rel := (pos - g.firstUsable + delta) % ringBytes
	return g.firstUsable + rel
}

// readBytes returns a fresh copy of n bytes starting at the current
// position, reassembling across the wrap if necessary. The copy is taken
// so callers may release the header lock before decoding without risking a
// concurrent writer overwriting the bytes out from under them.
func (v *view) readBytes(n int32) []byte {
	out := make([]byte, n)
	remaining := v.g.fileSize - v.pos
	if remaining >= n {
		copy(out, v.buf[v.pos:v.pos+n])
		v.pos += n
		if v.pos >= v.g.fileSize {
			v.pos = v.g.firstUsable
		}
		return out
	}
	copy(out, v.buf[v.pos:v.g.fileSize])
	copy(out[remaining:], v.buf[v.g.firstUsable:v.g.firstUsable+(n-remaining)])
	v.pos = v.g.firstUsable + (n - remaining)
	return out
}
