package recstore

import (
	"encoding/binary"
	"math/bits"
)

// hostLittleEndian is true when the running machine stores the least
// significant byte of a word first.
var hostLittleEndian = isLittleEndian()

// canonical converts between host words and the on-disk little-endian form.
var canonical = wordOrder{little: hostLittleEndian}

func isLittleEndian() bool {
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 0x0001)
	return probe[0] != 0
}

func swap32(v uint32) uint32 { return bits.ReverseBytes32(v) }

// wordOrder loads and stores words the way a host of the given byte order
// sees them in memory, swapping on big-endian hosts so that the bytes on
// disk are always little-endian.
type wordOrder struct {
	little bool
}

// native is the layout of a word in host memory.
func (o wordOrder) native() binary.ByteOrder {
	if o.little {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (o wordOrder) getWord(b []byte) uint32 {
	v := o.native().Uint32(b)
	if !o.little {
		v = swap32(v)
	}
	return v
}

func (o wordOrder) putWord(b []byte, v uint32) {
	if !o.little {
		v = swap32(v)
	}
	o.native().PutUint32(b, v)
}

func (o wordOrder) getHeader(b []byte) fileHeader {
	_ = b[headerSize-1]

	n := o.native()
	h := fileHeader{
		IndexBlock:      n.Uint32(b[0:]),
		IndexBlockCount: n.Uint32(b[4:]),
		IndexByteLength: n.Uint32(b[8:]),
		NumIndices:      n.Uint32(b[12:]),
		Version:         n.Uint32(b[28:]),
	}
	if !o.little {
		h = h.swapped()
	}
	return h
}

func (o wordOrder) putHeader(b []byte, h fileHeader) {
	_ = b[headerSize-1]

	if !o.little {
		h = h.swapped()
	}
	n := o.native()
	n.PutUint32(b[0:], h.IndexBlock)
	n.PutUint32(b[4:], h.IndexBlockCount)
	n.PutUint32(b[8:], h.IndexByteLength)
	n.PutUint32(b[12:], h.NumIndices)
	n.PutUint32(b[16:], 0) // reserved
	n.PutUint32(b[20:], 0)
	n.PutUint32(b[24:], 0)
	n.PutUint32(b[28:], h.Version)
}

func (o wordOrder) getEntry(b []byte) IndexEntry {
	_ = b[entrySize-1]

	n := o.native()
	e := IndexEntry{
		Block:         n.Uint32(b[0:]),
		Offset:        n.Uint32(b[4:]),
		Length:        n.Uint32(b[8:]),
		Type:          DataType(n.Uint32(b[12:])),
		VirtualLength: n.Uint32(b[16:]),
	}
	if !o.little {
		e = e.swapped()
	}
	return e
}

func (o wordOrder) putEntry(b []byte, e IndexEntry) {
	_ = b[entrySize-1]

	if !o.little {
		e = e.swapped()
	}
	n := o.native()
	n.PutUint32(b[0:], e.Block)
	n.PutUint32(b[4:], e.Offset)
	n.PutUint32(b[8:], e.Length)
	n.PutUint32(b[12:], uint32(e.Type))
	n.PutUint32(b[16:], e.VirtualLength)
	n.PutUint32(b[20:], 0) // reserved
	n.PutUint32(b[24:], 0)
	n.PutUint32(b[28:], 0)
}
