package recstore

import (
	"errors"
	"fmt"
)

const (
	// BlockSize is the size of a single file block in bytes.
	BlockSize = 4096

	// FormatVersion is the on-disk format version stored in the header.
	FormatVersion = 1

	wordSize = 4
)

// Error kinds. Errors returned by the store wrap one of these and can be
// matched with errors.Is.
var (
	ErrMode         = errors.New("recstore: operation not permitted in this mode")
	ErrInvalidIndex = errors.New("recstore: invalid index")
	ErrInvalidState = errors.New("recstore: invalid state")
	ErrShortRead    = errors.New("recstore: short read")
	ErrEmpty        = errors.New("recstore: empty value")
	ErrTooLarge     = errors.New("recstore: record too large")
	ErrVersion      = errors.New("recstore: format version mismatch")
	ErrClosed       = errors.New("recstore: is closed")
)

// --------------------------------------------------------------------

// Mode is the mode a store is opened in.
type Mode int

// Supported modes.
const (
	// ModeRead opens an existing file for reading only.
	ModeRead Mode = iota
	// ModeCreate truncates or creates the file; the store is write-only.
	ModeCreate
	// ModeUpdate opens or creates the file for reading and writing.
	ModeUpdate
	unknownMode
)

func (m Mode) isValid() bool  { return m >= ModeRead && m < unknownMode }
func (m Mode) canRead() bool  { return m == ModeRead || m == ModeUpdate }
func (m Mode) canWrite() bool { return m == ModeCreate || m == ModeUpdate }

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeCreate:
		return "create"
	case ModeUpdate:
		return "update"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// --------------------------------------------------------------------

// DataType tags the kind of a stored record.
type DataType uint32

// Supported record kinds.
const (
	TypeWord    DataType = iota + 1 // a single 32-bit word
	TypeWords                       // an array of 32-bit words
	TypeString                      // a byte string
	TypeStrings                     // an array of byte strings
)

func (t DataType) isValid() bool { return t >= TypeWord && t <= TypeStrings }

func (t DataType) String() string {
	switch t {
	case TypeWord:
		return "word"
	case TypeWords:
		return "words"
	case TypeString:
		return "string"
	case TypeStrings:
		return "strings"
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}
