package recstore

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// blockFile performs block-sized I/O on a single file through exactly one
// resident buffer.
type blockFile struct {
	f *os.File

	buf       []byte // the resident block
	resident  int64  // number of the resident block, -1 if none
	valid     int    // meaningful bytes in buf
	dirty     bool   // buf holds unwritten changes
	numBlocks uint32 // physical blocks in the file
}

func openBlockFile(name string, mode Mode, perm os.FileMode) (*blockFile, error) {
	flag := os.O_RDONLY
	switch mode {
	case ModeCreate:
		flag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case ModeUpdate:
		flag = os.O_RDWR | os.O_CREATE
	}

	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, errors.Wrapf(err, "recstore: open %s", name)
	}

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "recstore: seek to the end of %s", name)
	}

	return &blockFile{
		f:         f,
		buf:       make([]byte, BlockSize),
		resident:  -1,
		numBlocks: uint32((size + BlockSize - 1) / BlockSize),
	}, nil
}

// readBlock reads block n into the buffer and returns the number of bytes
// read. A short final block yields fewer than BlockSize bytes.
func (b *blockFile) readBlock(n uint32) (int, error) {
	if _, err := b.f.Seek(int64(n)*BlockSize, io.SeekStart); err != nil {
		return 0, errors.Wrapf(err, "recstore: seek to block %d", n)
	}

	m, err := io.ReadFull(b.f, b.buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	if err != nil {
		b.resident, b.valid = -1, 0
		return m, errors.Wrapf(err, "recstore: read block %d", n)
	}

	clear(b.buf[m:])
	b.resident, b.valid, b.dirty = int64(n), m, false
	return m, nil
}

// writeBlock writes the buffer as block n and returns the number of bytes
// written.
func (b *blockFile) writeBlock(n uint32) (int, error) {
	if _, err := b.f.Seek(int64(n)*BlockSize, io.SeekStart); err != nil {
		return 0, errors.Wrapf(err, "recstore: seek to block %d", n)
	}

	m, err := b.f.Write(b.buf)
	if err != nil {
		return m, errors.Wrapf(err, "recstore: write block %d", n)
	}
	if n >= b.numBlocks {
		b.numBlocks = n + 1
	}
	b.resident, b.valid, b.dirty = int64(n), BlockSize, false
	return m, nil
}

// load makes block n resident and returns the number of meaningful bytes in
// it. A dirty resident block is written back before it is replaced.
func (b *blockFile) load(n uint32) (int, error) {
	if b.resident == int64(n) {
		return b.valid, nil
	}
	return b.replace(n, true)
}

// reset makes a zeroed block n resident without reading it.
func (b *blockFile) reset(n uint32) error {
	_, err := b.replace(n, false)
	return err
}

// replace is the only way the resident block changes identity.
func (b *blockFile) replace(n uint32, read bool) (int, error) {
	if err := b.flush(); err != nil {
		return 0, err
	}
	if read && n < b.numBlocks {
		return b.readBlock(n)
	}

	clear(b.buf)
	b.resident, b.valid = int64(n), 0
	return 0, nil
}

// put copies p into the resident block at off and returns the number of
// bytes copied.
func (b *blockFile) put(off int, p []byte) int {
	n := copy(b.buf[off:], p)
	b.dirty = true
	b.valid = BlockSize
	return n
}

// flush writes the resident block back if it holds unwritten changes.
func (b *blockFile) flush() error {
	if !b.dirty {
		return nil
	}
	_, err := b.writeBlock(uint32(b.resident))
	return err
}

func (b *blockFile) sync() error {
	if err := b.f.Sync(); err != nil {
		return errors.Wrap(err, "recstore: sync")
	}
	return nil
}

func (b *blockFile) close() error {
	if err := b.f.Close(); err != nil {
		return errors.Wrap(err, "recstore: close")
	}
	return nil
}
