package persistq

import "encoding/binary"

// headerSize is the fixed, on-disk layout of the queue header: five
// big-endian signed 32-bit integers, written at offset 0 of the mapped
// file: file_size, block_size, count, head, tail.
const headerSize = 20

type fileHeader struct {
	fileSize  int32
	blockSize int32
	count     int32
	head      int32
	tail      int32
}

func readFileHeader(buf []byte) fileHeader {
	return fileHeader{
		fileSize:  int32(binary.BigEndian.Uint32(buf[0:4])),
		blockSize: int32(binary.BigEndian.Uint32(buf[4:8])),
		count:     int32(binary.BigEndian.Uint32(buf[8:12])),
		head:      int32(binary.BigEndian.Uint32(buf[12:16])),
		tail:      int32(binary.BigEndian.Uint32(buf[16:20])),
	}
}

func (h fileHeader) writeTo(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.fileSize))
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.blockSize))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.count))
	binary.BigEndian.PutUint32(buf[12:16], uint32(h.head))
	binary.BigEndian.PutUint32(buf[16:20], uint32(h.tail))
}

// firstUsableBlock returns the first block-aligned offset past the header,
// i.e. ceil(headerSize / blockSize) * blockSize.
func firstUsableBlock(blockSize int32) int32 {
	return ceilDiv(headerSize, blockSize) * blockSize
}

func ceilDiv(a, b int32) int32 {
	return (a + b - 1) / b
}

// alignUp rounds x up to the next multiple of block (x itself if already
// aligned).
func alignUp(x, block int32) int32 {
	return ceilDiv(x, block) * block
}

// blocksFor returns the number of whole blocks a record of payloadLen
// bytes occupies, including its 4-byte length prefix.
func blocksFor(payloadLen int32, blockSize int32) int32 {
	return ceilDiv(4+payloadLen, blockSize)
}
