package faststart

import (
	"fmt"
	"io"
	"math"
)

// ScanEntry describes one atom discovered by a Scanner.
type ScanEntry struct {
	Type       BoxType
	Size       int64 // resolved total size including header
	Offset     int64 // byte offset from start of stream
	HeaderSize int   // 8 or 16
}

// DataSize returns the size of the atom payload (excluding the header).
func (e ScanEntry) DataSize() int64 {
	return e.Size - int64(e.HeaderSize)
}

// Scanner reads atom headers from an io.ReadSeeker without loading
// payloads into memory. This lets callers discover atom positions and
// sizes, then selectively read only the spans they need.
//
// Typical usage:
//
//	f, _ := os.Open("video.mp4")
//	sc := faststart.NewScanner(f)
//	for sc.Next() {
//	    e := sc.Entry()
//	    // inspect e.Type, e.Offset, e.Size ...
//	}
//	if err := sc.Err(); err != nil { ... }
type Scanner struct {
	rs    io.ReadSeeker
	hdr   [16]byte // reusable header buffer
	entry ScanEntry
	err   error
	pos   int64 // current position in stream
	end   int64 // end of the scan window
	root  bool  // top level: zero sizes resolve, trailing bytes are an error
}

// NewScanner creates a Scanner over the top-level atoms of rs.
func NewScanner(rs io.ReadSeeker) Scanner {
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return Scanner{rs: rs, err: fmt.Errorf("seek to end: %w: %w", ErrIO, err)}
	}
	s := newScanner(rs, 0, end)
	s.root = true
	return s
}

// newScanner creates a Scanner over the window [start, end), used for
// descending into container atoms. Slack shorter than a header is
// tolerated inside a container.
func newScanner(rs io.ReadSeeker, start, end int64) Scanner {
	s := Scanner{rs: rs, pos: start, end: end}
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		s.err = fmt.Errorf("seek to %d: %w: %w", start, ErrIO, err)
	}
	return s
}

// Next advances to the next atom in the window. Returns false when the
// window is exhausted or an error occurs. Check Err() after the loop.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	rem := s.end - s.pos
	if rem < 8 {
		if rem > 0 && s.root {
			s.err = fmt.Errorf("atom at %d: %w: %d trailing bytes do not form an atom", s.pos, ErrMalformedContainer, rem)
		}
		return false
	}

	boxStart := s.pos
	if _, err := io.ReadFull(s.rs, s.hdr[:8]); err != nil {
		s.err = readErr(boxStart, err)
		return false
	}
	size := int64(be.Uint32(s.hdr[:4]))
	var t BoxType
	copy(t[:], s.hdr[4:8])
	headerSize := 8

	if size == 1 {
		// Extended 64-bit size follows the type.
		if rem < 16 {
			s.err = fmt.Errorf("atom %s at %d: %w: truncated extended size", t, boxStart, ErrMalformedContainer)
			return false
		}
		if _, err := io.ReadFull(s.rs, s.hdr[8:16]); err != nil {
			s.err = readErr(boxStart, err)
			return false
		}
		usize := be.Uint64(s.hdr[8:16])
		if usize > math.MaxInt64 {
			s.err = fmt.Errorf("atom %s at %d: %w: extended size %d out of range", t, boxStart, ErrMalformedContainer, usize)
			return false
		}
		size = int64(usize)
		headerSize = 16
	}

	if size == 0 {
		// Atom extends to the end of the file; legal at top level only.
		if !s.root {
			s.err = fmt.Errorf("atom %s at %d: %w: zero size inside a container", t, boxStart, ErrMalformedContainer)
			return false
		}
		size = s.end - boxStart
	}

	if size < int64(headerSize) {
		s.err = fmt.Errorf("atom %s at %d: %w: declared size %d smaller than %d-byte header", t, boxStart, ErrMalformedContainer, size, headerSize)
		return false
	}
	if size > rem {
		s.err = fmt.Errorf("atom %s at %d: %w: size %d overruns end at %d", t, boxStart, ErrMalformedContainer, size, s.end)
		return false
	}

	s.entry = ScanEntry{
		Type:       t,
		Size:       size,
		Offset:     boxStart,
		HeaderSize: headerSize,
	}

	// Skip past this atom's payload to position for the next call.
	s.pos = boxStart + size
	if _, err := s.rs.Seek(s.pos, io.SeekStart); err != nil {
		s.err = fmt.Errorf("seek to %d: %w: %w", s.pos, ErrIO, err)
		return false
	}
	return true
}

// Entry returns the current atom entry. Only valid after Next returns true.
func (s *Scanner) Entry() ScanEntry {
	return s.entry
}

// Err returns the first error encountered by the Scanner.
func (s *Scanner) Err() error {
	return s.err
}

func readErr(off int64, err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("atom at %d: %w: truncated header", off, ErrMalformedContainer)
	}
	return fmt.Errorf("read at %d: %w: %w", off, ErrIO, err)
}

// Index is the parsed top-level view of a container file.
type Index struct {
	Atoms []*Atom // top-level atoms in file order
	Ftyp  *Atom   // first ftyp, if any
	Moov  *Atom   // first moov; subtree parsed down to the chunk offset tables
	Mdat  *Atom   // first mdat
	Size  int64   // total file size
}

// ReadIndex scans every top-level atom of rs and parses the subtree of
// each moov down to the chunk offset tables. Payloads of mdat and of
// atoms outside the moov descent are never read.
func ReadIndex(rs io.ReadSeeker) (*Index, error) {
	sc := NewScanner(rs)
	idx := &Index{Size: sc.end}
	for sc.Next() {
		e := sc.Entry()
		a := &Atom{Type: e.Type, Offset: e.Offset, Size: e.Size, HeaderSize: e.HeaderSize}
		idx.Atoms = append(idx.Atoms, a)
		switch {
		case a.Type == TypeFtyp && idx.Ftyp == nil:
			idx.Ftyp = a
		case a.Type == TypeMoov && idx.Moov == nil:
			idx.Moov = a
		case a.Type == TypeMdat && idx.Mdat == nil:
			idx.Mdat = a
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for _, a := range idx.Atoms {
		if a.Type == TypeMoov {
			if err := parseChildren(rs, a); err != nil {
				return nil, err
			}
		}
	}
	return idx, nil
}

// parseChildren fills in an atom's child list and recurses through the
// containers that lead to the chunk offset tables. Children of other
// container kinds are left opaque.
func parseChildren(rs io.ReadSeeker, parent *Atom) error {
	sc := newScanner(rs, parent.DataOffset(), parent.End())
	for sc.Next() {
		e := sc.Entry()
		parent.Children = append(parent.Children, &Atom{
			Type:       e.Type,
			Offset:     e.Offset,
			Size:       e.Size,
			HeaderSize: e.HeaderSize,
		})
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("in container %s: %w", parent.Type, err)
	}
	for _, child := range parent.Children {
		if moovContainers[child.Type] {
			if err := parseChildren(rs, child); err != nil {
				return err
			}
		}
	}
	return nil
}
