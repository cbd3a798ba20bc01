package recstore

import (
	"math"

	"github.com/pkg/errors"
)

// cursor is a position in the block stream. Records are laid out
// contiguously, so moving past the end of a block continues at offset 0 of
// the next one.
type cursor struct {
	bf    *blockFile
	block uint32
	off   int
}

func (c *cursor) seek(pos int64) {
	c.block = uint32(pos / BlockSize)
	c.off = int(pos % BlockSize)
}

func (c *cursor) pos() int64 { return int64(c.block)*BlockSize + int64(c.off) }

// write copies p into the stream, spilling into as many following blocks as
// needed.
func (c *cursor) write(p []byte) error {
	for len(p) != 0 {
		if c.off == BlockSize {
			c.block++
			c.off = 0
		}
		if _, err := c.bf.load(c.block); err != nil {
			return err
		}

		n := c.bf.put(c.off, p)
		c.off += n
		p = p[n:]
	}
	return nil
}

func (c *cursor) writeWord(v uint32) error {
	var tmp [wordSize]byte
	canonical.putWord(tmp[:], v)
	return c.write(tmp[:])
}

// pad writes n zero bytes.
func (c *cursor) pad(n int) error {
	var zero [wordSize]byte
	for n > 0 {
		m := n
		if m > len(zero) {
			m = len(zero)
		}
		if err := c.write(zero[:m]); err != nil {
			return err
		}
		n -= m
	}
	return nil
}

// finish word-aligns the cursor. When no word fits in the rest of the
// block, the block is written and the cursor moves to the next one.
func (c *cursor) finish() error {
	if n := c.off % wordSize; n != 0 {
		c.off += wordSize - n
	}
	if c.off+wordSize > BlockSize {
		if err := c.bf.flush(); err != nil {
			return err
		}
		c.block++
		c.off = 0
	}
	return nil
}

// --------------------------------------------------------------------

// record is a value that can be stored.
type record interface {
	dataType() DataType
	// size is the encoded length in bytes, prefix included.
	size() int64
	// empty reports an array without elements.
	empty() bool
	encode(c *cursor) error
}

type wordRecord uint32

func (wordRecord) dataType() DataType { return TypeWord }
func (wordRecord) size() int64        { return wordSize }
func (wordRecord) empty() bool        { return false }

func (r wordRecord) encode(c *cursor) error { return c.writeWord(uint32(r)) }

type wordsRecord []uint32

func (wordsRecord) dataType() DataType { return TypeWords }
func (r wordsRecord) size() int64      { return int64(len(r)+1) * wordSize }
func (r wordsRecord) empty() bool      { return len(r) == 0 }

func (r wordsRecord) encode(c *cursor) error {
	buf := fetchBuffer(int(r.size()))
	defer releaseBuffer(buf)

	canonical.putWord(buf, uint32(len(r)))
	for i, w := range r {
		canonical.putWord(buf[(i+1)*wordSize:], w)
	}
	return c.write(buf)
}

type stringRecord string

func (stringRecord) dataType() DataType { return TypeString }
func (r stringRecord) size() int64      { return wordSize + int64(len(r)) }
func (stringRecord) empty() bool        { return false }

func (r stringRecord) encode(c *cursor) error {
	if err := c.writeWord(uint32(len(r))); err != nil {
		return err
	}
	return c.write([]byte(r))
}

type stringsRecord []string

func (stringsRecord) dataType() DataType { return TypeStrings }
func (r stringsRecord) empty() bool      { return len(r) == 0 }

func (r stringsRecord) size() int64 {
	n := int64(len(r)+1) * wordSize
	for _, s := range r {
		n += int64(len(s))
	}
	return n
}

func (r stringsRecord) encode(c *cursor) error {
	buf := fetchBuffer((len(r) + 1) * wordSize)
	defer releaseBuffer(buf)

	canonical.putWord(buf, uint32(len(r)))
	for i, s := range r {
		canonical.putWord(buf[(i+1)*wordSize:], uint32(len(s)))
	}
	if err := c.write(buf); err != nil {
		return err
	}

	for _, s := range r {
		if err := c.write([]byte(s)); err != nil {
			return err
		}
	}
	return nil
}

func recordLength(r record) (uint32, error) {
	n := r.size()
	if n > math.MaxUint32-wordSize {
		return 0, errors.Wrapf(ErrTooLarge, "%s of %d bytes", r.dataType(), n)
	}
	return uint32(n), nil
}

// --------------------------------------------------------------------

// writeAt encodes r at index, which is either an existing entry updated in
// place or len(s.index) for an append.
func (s *Store) writeAt(index int, r record) error {
	length, err := recordLength(r)
	if err != nil {
		return err
	}

	appending := index == len(s.index)
	if appending {
		s.cur.seek(alignWord(s.tail))
	} else {
		s.cur.seek(s.index[index].pos())
	}
	if _, err := s.bf.load(s.cur.block); err != nil {
		return err
	}

	ent := IndexEntry{
		Block:         s.cur.block,
		Offset:        uint32(s.cur.off),
		Length:        length,
		Type:          r.dataType(),
		VirtualLength: virtualLength(length),
	}
	if !appending {
		ent.VirtualLength = s.index[index].VirtualLength
	}

	if err := r.encode(&s.cur); err != nil {
		return err
	}
	if n := s.cur.pos() - ent.pos(); n != int64(length) {
		return errors.Wrapf(ErrInvalidState, "encoded %d bytes for a %s of length %d", n, ent.Type, length)
	}
	if err := s.cur.pad(int(ent.VirtualLength - length)); err != nil {
		return err
	}
	if err := s.cur.finish(); err != nil {
		return err
	}

	if appending {
		s.index = append(s.index, ent)
	} else {
		s.index[index] = ent
	}
	if end := ent.end(); end > s.tail {
		s.tail = end
	}
	return nil
}

func alignWord(pos int64) int64 {
	return (pos + wordSize - 1) &^ (wordSize - 1)
}
