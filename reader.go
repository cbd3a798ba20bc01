package recstore

import (
	"sync"

	"github.com/pkg/errors"
)

// read fills p from the stream, following the record into the next blocks.
// It fails if a block holds fewer bytes than the record needs.
func (c *cursor) read(p []byte) error {
	for len(p) != 0 {
		if c.off == BlockSize {
			c.block++
			c.off = 0
		}
		valid, err := c.bf.load(c.block)
		if err != nil {
			return err
		}
		if c.off >= valid {
			return errors.Wrapf(ErrShortRead, "block %d has %d bytes, need offset %d", c.block, valid, c.off)
		}

		n := copy(p, c.bf.buf[c.off:valid])
		c.off += n
		p = p[n:]
	}
	return nil
}

func (c *cursor) readWord() (uint32, error) {
	var tmp [wordSize]byte
	if err := c.read(tmp[:]); err != nil {
		return 0, err
	}
	return canonical.getWord(tmp[:]), nil
}

// --------------------------------------------------------------------

// ReadWord reads the word stored at index.
func (s *Store) ReadWord(index int) (uint32, error) {
	const op = "read word"

	ent, err := s.lookup(op, index, TypeWord)
	if err != nil {
		return 0, err
	}
	if ent.Length != wordSize {
		return 0, errors.Wrapf(ErrInvalidState, "%s %d: length %d", op, index, ent.Length)
	}

	s.cur.seek(ent.pos())
	w, err := s.cur.readWord()
	if err != nil {
		return 0, errors.WithMessagef(err, "%s %d", op, index)
	}
	return w, nil
}

// ReadWords reads the word array stored at index.
func (s *Store) ReadWords(index int) ([]uint32, error) {
	const op = "read words"

	ent, err := s.lookup(op, index, TypeWords)
	if err != nil {
		return nil, err
	}

	s.cur.seek(ent.pos())
	num, err := s.cur.readWord()
	if err != nil {
		return nil, errors.WithMessagef(err, "%s %d", op, index)
	}
	if want := (int64(num) + 1) * wordSize; want != int64(ent.Length) {
		return nil, errors.Wrapf(ErrInvalidState, "%s %d: %d words do not match length %d", op, index, num, ent.Length)
	}

	buf := fetchBuffer(int(num) * wordSize)
	defer releaseBuffer(buf)

	if err := s.cur.read(buf); err != nil {
		return nil, errors.WithMessagef(err, "%s %d", op, index)
	}

	words := make([]uint32, num)
	for i := range words {
		words[i] = canonical.getWord(buf[i*wordSize:])
	}
	return words, nil
}

// ReadString reads the string stored at index.
func (s *Store) ReadString(index int) (string, error) {
	const op = "read string"

	ent, err := s.lookup(op, index, TypeString)
	if err != nil {
		return "", err
	}

	s.cur.seek(ent.pos())
	size, err := s.cur.readWord()
	if err != nil {
		return "", errors.WithMessagef(err, "%s %d", op, index)
	}
	if want := int64(size) + wordSize; want != int64(ent.Length) {
		return "", errors.Wrapf(ErrInvalidState, "%s %d: %d bytes do not match length %d", op, index, size, ent.Length)
	}

	buf := fetchBuffer(int(size))
	defer releaseBuffer(buf)

	if err := s.cur.read(buf); err != nil {
		return "", errors.WithMessagef(err, "%s %d", op, index)
	}
	return string(buf), nil
}

// ReadStrings reads the string array stored at index.
func (s *Store) ReadStrings(index int) ([]string, error) {
	const op = "read strings"

	ent, err := s.lookup(op, index, TypeStrings)
	if err != nil {
		return nil, err
	}

	s.cur.seek(ent.pos())
	num, err := s.cur.readWord()
	if err != nil {
		return nil, errors.WithMessagef(err, "%s %d", op, index)
	}
	if prefix := (int64(num) + 1) * wordSize; prefix > int64(ent.Length) {
		return nil, errors.Wrapf(ErrInvalidState, "%s %d: %d strings do not fit length %d", op, index, num, ent.Length)
	}

	sizes := fetchBuffer(int(num) * wordSize)
	defer releaseBuffer(sizes)

	if err := s.cur.read(sizes); err != nil {
		return nil, errors.WithMessagef(err, "%s %d", op, index)
	}

	total := (int64(num) + 1) * wordSize
	for i := 0; i < int(num); i++ {
		total += int64(canonical.getWord(sizes[i*wordSize:]))
	}
	if total != int64(ent.Length) {
		return nil, errors.Wrapf(ErrInvalidState, "%s %d: %d bytes do not match length %d", op, index, total, ent.Length)
	}

	data := fetchBuffer(int(total - (int64(num)+1)*wordSize))
	defer releaseBuffer(data)

	if err := s.cur.read(data); err != nil {
		return nil, errors.WithMessagef(err, "%s %d", op, index)
	}

	strs := make([]string, num)
	for i := range strs {
		n := int(canonical.getWord(sizes[i*wordSize:]))
		strs[i] = string(data[:n])
		data = data[n:]
	}
	return strs, nil
}

// lookup returns the live entry at index, checking that it holds a record of
// the given type.
func (s *Store) lookup(op string, index int, typ DataType) (IndexEntry, error) {
	if err := s.checkMode(op, s.mode.canRead()); err != nil {
		return IndexEntry{}, err
	}
	if index < 0 || index >= len(s.index) {
		return IndexEntry{}, errors.Wrapf(ErrInvalidIndex, "%s %d", op, index)
	}

	ent := s.index[index]
	if ent.Deleted() {
		return ent, errors.Wrapf(ErrInvalidState, "%s %d: entry is deleted", op, index)
	}
	if ent.Type != typ {
		return ent, errors.Wrapf(ErrInvalidState, "%s %d: entry holds %s", op, index, ent.Type)
	}

	s.log.V(1).Info(op, "index", index, "block", ent.Block, "offset", ent.Offset, "length", ent.Length)
	return ent, nil
}

// --------------------------------------------------------------------

var bufPool sync.Pool

func fetchBuffer(sz int) []byte {
	if v := bufPool.Get(); v != nil {
		if p := v.([]byte); sz <= cap(p) {
			return p[:sz]
		}
	}
	return make([]byte, sz)
}

func releaseBuffer(p []byte) {
	if cap(p) != 0 {
		bufPool.Put(p)
	}
}
