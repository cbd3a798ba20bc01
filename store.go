package recstore

import (
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/pkg/errors"
)

// Options define store specific options.
type Options struct {
	// Verbose enables diagnostic logging to stderr when no Logger is set.
	// It raises the process-wide stdr verbosity to 1, which affects every
	// stdr logger in the process.
	Verbose bool

	// Logger receives diagnostic output. Detailed per-record messages are
	// logged at V(1).
	// Default: discards all output, unless Verbose is set.
	Logger logr.Logger

	// FileMode sets the permissions of newly created files.
	// Default: 0600.
	FileMode os.FileMode
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}

	if oo.FileMode == 0 {
		oo.FileMode = 0600
	}
	if oo.Logger.GetSink() == nil {
		if oo.Verbose {
			if v := stdr.SetVerbosity(1); v > 1 {
				stdr.SetVerbosity(v)
			}
			std := log.New(os.Stderr, "", log.LstdFlags)
			oo.Logger = stdr.New(std).WithName("recstore")
		} else {
			oo.Logger = logr.Discard()
		}
	}

	return &oo
}

// Store is a single-file record store. It maps records to numeric indices
// which are stable for the lifetime of the open store. Stores are not safe
// for concurrent use.
//
// Indices of deleted records are not persisted: after reopening a file,
// the remaining records are renumbered consecutively in their original
// order.
type Store struct {
	name string
	mode Mode
	log  logr.Logger

	bf  *blockFile
	cur cursor

	hdr   fileHeader
	index []IndexEntry
	tail  int64 // position after the last reserved data byte
}

// Open opens the named file. ModeCreate truncates any existing content,
// ModeRead and ModeUpdate load the index of an existing file.
func Open(name string, mode Mode, o *Options) (*Store, error) {
	if name == "" {
		return nil, errors.Wrap(ErrEmpty, "open: no file name")
	}
	if !mode.isValid() {
		return nil, errors.Wrapf(ErrMode, "open: invalid %s", mode)
	}
	o = o.norm()

	bf, err := openBlockFile(name, mode, o.FileMode)
	if err != nil {
		return nil, err
	}

	s := &Store{
		name: name,
		mode: mode,
		log:  o.Logger.WithValues("file", name),
		bf:   bf,
		cur:  cursor{bf: bf, block: 1},
		hdr:  emptyHeader(),
		tail: BlockSize,
	}

	// a file with fewer than 3 blocks has never been closed properly
	if mode != ModeCreate && bf.numBlocks >= 3 {
		if err := s.readIndex(); err != nil {
			_ = bf.close()
			return nil, errors.WithMessagef(err, "open %s", name)
		}
	}

	s.log.Info("opened", "mode", mode.String(), "blocks", bf.numBlocks, "entries", len(s.index))
	return s, nil
}

// Len returns the number of indices, deleted ones included.
func (s *Store) Len() int { return len(s.index) }

// NumBlocks returns the number of blocks written to the file.
func (s *Store) NumBlocks() int {
	if s.bf == nil {
		return 0
	}
	return int(s.bf.numBlocks)
}

// Entry returns the index entry at index.
func (s *Store) Entry(index int) (IndexEntry, error) {
	if index < 0 || index >= len(s.index) {
		return IndexEntry{}, errors.Wrapf(ErrInvalidIndex, "entry %d", index)
	}
	return s.index[index], nil
}

// WriteWord appends a word and returns its index.
func (s *Store) WriteWord(v uint32) (int, error) {
	return s.append("write word", wordRecord(v))
}

// WriteWords appends a word array and returns its index.
func (s *Store) WriteWords(v []uint32) (int, error) {
	return s.append("write words", wordsRecord(v))
}

// WriteString appends a string and returns its index.
func (s *Store) WriteString(v string) (int, error) {
	return s.append("write string", stringRecord(v))
}

// WriteStrings appends a string array and returns its index.
func (s *Store) WriteStrings(v []string) (int, error) {
	return s.append("write strings", stringsRecord(v))
}

// UpdateWord replaces the word at index and returns the index of the new
// value, which may differ from the given one.
func (s *Store) UpdateWord(v uint32, index int) (int, error) {
	return s.update("update word", wordRecord(v), index)
}

// UpdateWords replaces the word array at index and returns the index of
// the new value. Values that do not fit into the space of the old one are
// relocated, leaving the old index deleted.
func (s *Store) UpdateWords(v []uint32, index int) (int, error) {
	return s.update("update words", wordsRecord(v), index)
}

// UpdateString replaces the string at index and returns the index of the
// new value. Values that do not fit into the space of the old one are
// relocated, leaving the old index deleted.
func (s *Store) UpdateString(v string, index int) (int, error) {
	return s.update("update string", stringRecord(v), index)
}

// UpdateStrings replaces the string array at index and returns the index
// of the new value. Values that do not fit into the space of the old one
// are relocated, leaving the old index deleted.
func (s *Store) UpdateStrings(v []string, index int) (int, error) {
	return s.update("update strings", stringsRecord(v), index)
}

// Delete marks the record at index as deleted. Its space is not reclaimed.
func (s *Store) Delete(index int) error {
	const op = "delete"

	if err := s.checkMode(op, s.mode.canWrite()); err != nil {
		return err
	}
	if index < 0 || index >= len(s.index) {
		return errors.Wrapf(ErrInvalidIndex, "%s %d", op, index)
	}

	s.index[index].Block = 0
	s.log.V(1).Info(op, "index", index)
	return nil
}

// Flush writes all pending data together with the index and the header and
// syncs the file. The store remains open. Subsequent appends are placed
// after the committed index, which stays valid until the next Flush or Close.
func (s *Store) Flush() error {
	if err := s.checkMode("flush", s.mode.canWrite()); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		return err
	}

	// appends continue after the committed index
	if end := int64(s.hdr.IndexBlock+s.hdr.IndexBlockCount) * BlockSize; end > s.tail {
		s.tail = end
	}
	return s.bf.sync()
}

// Close closes the store. In ModeCreate and ModeUpdate, data and index are
// only committed to disk at this point.
func (s *Store) Close() error {
	if s.bf == nil {
		return ErrClosed
	}

	var err error
	if s.mode.canWrite() {
		err = s.persist()
	}
	if e := s.bf.close(); err == nil {
		err = e
	}
	s.bf = nil
	s.cur.bf = nil

	s.log.Info("closed", "entries", len(s.index))
	return err
}

func (s *Store) persist() error {
	if err := s.bf.flush(); err != nil {
		return err
	}
	return s.writeIndex()
}

func (s *Store) append(op string, r record) (int, error) {
	if err := s.checkMode(op, s.mode.canWrite()); err != nil {
		return 0, err
	}

	index := len(s.index)
	if err := s.writeAt(index, r); err != nil {
		return 0, errors.WithMessagef(err, "%s %d", op, index)
	}

	ent := s.index[index]
	s.log.V(1).Info(op, "index", index, "block", ent.Block, "offset", ent.Offset, "length", ent.Length)
	return index, nil
}

func (s *Store) update(op string, r record, index int) (int, error) {
	if err := s.checkMode(op, s.mode.canWrite()); err != nil {
		return 0, err
	}
	if index < 0 || index >= len(s.index) {
		return 0, errors.Wrapf(ErrInvalidIndex, "%s %d", op, index)
	}

	ent := s.index[index]
	if ent.Deleted() {
		return 0, errors.Wrapf(ErrInvalidState, "%s %d: entry is deleted", op, index)
	}
	if ent.Type != r.dataType() {
		return 0, errors.Wrapf(ErrInvalidState, "%s %d: entry holds %s", op, index, ent.Type)
	}
	if r.empty() {
		return 0, errors.Wrapf(ErrEmpty, "%s %d", op, index)
	}

	length, err := recordLength(r)
	if err != nil {
		return 0, errors.WithMessagef(err, "%s %d", op, index)
	}
	if virtualLength(length) > ent.VirtualLength {
		if err := s.Delete(index); err != nil {
			return 0, err
		}
		s.log.V(1).Info("relocating", "index", index, "length", length, "capacity", ent.VirtualLength)
		return s.append(op, r)
	}

	if err := s.writeAt(index, r); err != nil {
		return 0, errors.WithMessagef(err, "%s %d", op, index)
	}
	s.log.V(1).Info(op, "index", index, "block", ent.Block, "offset", ent.Offset, "length", length)
	return index, nil
}

func (s *Store) checkMode(op string, permitted bool) error {
	if s.bf == nil {
		return errors.Wrap(ErrClosed, op)
	}
	if !permitted {
		return errors.Wrapf(ErrMode, "%s in %s mode", op, s.mode)
	}
	return nil
}
