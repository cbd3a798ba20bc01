package recstore

import (
	"github.com/pkg/errors"
)

const (
	headerSize      = 32
	entrySize       = 32
	entriesPerBlock = BlockSize / entrySize
)

// fileHeader is the content of block 0.
type fileHeader struct {
	IndexBlock      uint32 // first block of the index table
	IndexBlockCount uint32 // number of index blocks
	IndexByteLength uint32 // NumIndices * entrySize
	NumIndices      uint32 // number of persisted index entries
	Version         uint32
}

func emptyHeader() fileHeader {
	return fileHeader{IndexBlock: 2, IndexBlockCount: 1, Version: FormatVersion}
}

func (h fileHeader) swapped() fileHeader {
	return fileHeader{
		IndexBlock:      swap32(h.IndexBlock),
		IndexBlockCount: swap32(h.IndexBlockCount),
		IndexByteLength: swap32(h.IndexByteLength),
		NumIndices:      swap32(h.NumIndices),
		Version:         swap32(h.Version),
	}
}

func (h fileHeader) validate() error {
	if uint64(h.NumIndices)*entrySize != uint64(h.IndexByteLength) {
		return errors.Wrapf(ErrInvalidState, "header index length %d does not match %d entries", h.IndexByteLength, h.NumIndices)
	}
	if h.NumIndices != 0 && h.IndexBlock < 2 {
		return errors.Wrapf(ErrInvalidState, "header index block %d", h.IndexBlock)
	}
	if h.IndexBlockCount < 1 {
		return errors.Wrapf(ErrInvalidState, "header index block count %d", h.IndexBlockCount)
	}
	if need := (h.NumIndices + entriesPerBlock - 1) / entriesPerBlock; h.IndexBlockCount < need {
		return errors.Wrapf(ErrInvalidState, "header index block count %d cannot hold %d entries", h.IndexBlockCount, h.NumIndices)
	}
	return nil
}

// --------------------------------------------------------------------

// IndexEntry describes where a logical record lives.
type IndexEntry struct {
	Block         uint32   // first block of the record, 0 if deleted
	Offset        uint32   // byte offset within Block
	Length        uint32   // encoded length, prefix included
	Type          DataType // record kind
	VirtualLength uint32   // bytes reserved for the record
}

// Deleted returns true if the entry is a tombstone.
func (e IndexEntry) Deleted() bool { return e.Block == 0 }

func (e IndexEntry) swapped() IndexEntry {
	return IndexEntry{
		Block:         swap32(e.Block),
		Offset:        swap32(e.Offset),
		Length:        swap32(e.Length),
		Type:          DataType(swap32(uint32(e.Type))),
		VirtualLength: swap32(e.VirtualLength),
	}
}

// pos is the absolute position of the record in the file.
func (e IndexEntry) pos() int64 { return int64(e.Block)*BlockSize + int64(e.Offset) }

// end is the absolute position just past the reserved space.
func (e IndexEntry) end() int64 { return e.pos() + int64(e.VirtualLength) }

func (e IndexEntry) validate(indexBlock uint32) error {
	switch {
	case !e.Type.isValid():
		return errors.Wrapf(ErrInvalidState, "index entry has unknown %s", e.Type)
	case e.Offset >= BlockSize || e.Offset%wordSize != 0:
		return errors.Wrapf(ErrInvalidState, "index entry has offset %d", e.Offset)
	case e.VirtualLength < e.Length:
		return errors.Wrapf(ErrInvalidState, "index entry length %d exceeds virtual length %d", e.Length, e.VirtualLength)
	case e.VirtualLength%wordSize != 0:
		return errors.Wrapf(ErrInvalidState, "index entry has unaligned virtual length %d", e.VirtualLength)
	case e.end() > int64(indexBlock)*BlockSize:
		return errors.Wrapf(ErrInvalidState, "index entry at block %d overlaps the index", e.Block)
	}
	return nil
}

// virtualLength rounds n up to a multiple of the word size.
func virtualLength(n uint32) uint32 {
	return (n + wordSize - 1) &^ (wordSize - 1)
}

// --------------------------------------------------------------------

// readIndex loads the header and the live index entries and positions the
// append point after the last byte they reserve.
func (s *Store) readIndex() error {
	m, err := s.bf.load(0)
	if err != nil {
		return err
	}
	if m < headerSize {
		return errors.Wrapf(ErrShortRead, "header is %d bytes", m)
	}

	h := canonical.getHeader(s.bf.buf)
	if err := h.validate(); err != nil {
		return err
	}
	if h.Version != FormatVersion {
		return errors.Wrapf(ErrVersion, "file has version %d, want %d", h.Version, FormatVersion)
	}
	s.hdr = h
	if h.NumIndices == 0 {
		return nil
	}

	deleted := 0
	for i := uint32(0); i < h.IndexBlockCount; i++ {
		first := i * entriesPerBlock
		if first >= h.NumIndices {
			break
		}
		inBlock := h.NumIndices - first
		if inBlock > entriesPerBlock {
			inBlock = entriesPerBlock
		}

		block := h.IndexBlock + i
		m, err := s.bf.load(block)
		if err != nil {
			return err
		}
		if m < int(inBlock)*entrySize {
			return errors.Wrapf(ErrShortRead, "index block %d is %d bytes", block, m)
		}

		for j := uint32(0); j < inBlock; j++ {
			ent := canonical.getEntry(s.bf.buf[j*entrySize:])
			if ent.Deleted() {
				deleted++
				continue
			}
			if err := ent.validate(h.IndexBlock); err != nil {
				return errors.WithMessagef(err, "index entry %d", first+j)
			}
			s.index = append(s.index, ent)
			if end := ent.end(); end > s.tail {
				s.tail = end
			}
		}
	}

	s.log.V(1).Info("index loaded", "entries", len(s.index), "deleted", deleted,
		"indexBlock", h.IndexBlock, "indexBlocks", h.IndexBlockCount)
	return nil
}

// writeIndex stores the index table after the data and the header in
// block 0. The resident block must have been flushed.
func (s *Store) writeIndex() error {
	num := uint32(len(s.index))
	count := (num + entriesPerBlock - 1) / entriesPerBlock
	if count == 0 {
		count = 1
	}
	first := uint32((s.tail + BlockSize - 1) / BlockSize)
	if first < 2 {
		first = 2
	}

	for i := uint32(0); i < count; i++ {
		block := first + i
		if err := s.bf.reset(block); err != nil {
			return err
		}

		lo := i * entriesPerBlock
		hi := lo + entriesPerBlock
		if hi > num {
			hi = num
		}
		for j, ent := range s.index[lo:hi] {
			canonical.putEntry(s.bf.buf[j*entrySize:], ent)
		}
		if _, err := s.bf.writeBlock(block); err != nil {
			return err
		}
	}

	s.hdr = fileHeader{
		IndexBlock:      first,
		IndexBlockCount: count,
		IndexByteLength: num * entrySize,
		NumIndices:      num,
		Version:         FormatVersion,
	}
	if err := s.bf.reset(0); err != nil {
		return err
	}
	canonical.putHeader(s.bf.buf, s.hdr)
	if _, err := s.bf.writeBlock(0); err != nil {
		return err
	}

	s.log.V(1).Info("index written", "entries", num, "indexBlock", first, "indexBlocks", count)
	return nil
}
