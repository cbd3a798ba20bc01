package recstore

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// DumpEntry is a single line of Dump output.
type DumpEntry struct {
	Index         int         `json:"index"`
	Type          string      `json:"type"`
	Block         uint32      `json:"block"`
	Offset        uint32      `json:"offset"`
	Length        uint32      `json:"length"`
	VirtualLength uint32      `json:"virtual_length"`
	Deleted       bool        `json:"deleted,omitempty"`
	Value         interface{} `json:"value,omitempty"`
}

// DumpIndex writes one JSON object per index entry to w.
func (s *Store) DumpIndex(w io.Writer) error {
	return s.dump(w, false)
}

// Dump writes one JSON object per index entry to w, including the decoded
// value of each live record. It requires a readable store.
func (s *Store) Dump(w io.Writer) error {
	if err := s.checkMode("dump", s.mode.canRead()); err != nil {
		return err
	}
	return s.dump(w, true)
}

func (s *Store) dump(w io.Writer, values bool) error {
	enc := json.NewEncoder(w)
	for i, ent := range s.index {
		de := DumpEntry{
			Index:         i,
			Type:          ent.Type.String(),
			Block:         ent.Block,
			Offset:        ent.Offset,
			Length:        ent.Length,
			VirtualLength: ent.VirtualLength,
			Deleted:       ent.Deleted(),
		}
		if values && !de.Deleted {
			v, err := s.readValue(i, ent.Type)
			if err != nil {
				return err
			}
			de.Value = v
		}
		if err := enc.Encode(de); err != nil {
			return errors.Wrapf(err, "recstore: dump entry %d", i)
		}
	}
	return nil
}

func (s *Store) readValue(index int, typ DataType) (interface{}, error) {
	switch typ {
	case TypeWord:
		return s.ReadWord(index)
	case TypeWords:
		return s.ReadWords(index)
	case TypeString:
		return s.ReadString(index)
	case TypeStrings:
		return s.ReadStrings(index)
	}
	return nil, errors.Wrapf(ErrInvalidState, "dump %d: unknown %s", index, typ)
}
