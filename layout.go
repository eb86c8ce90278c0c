package faststart

import (
	"fmt"
	"io"
)

// layoutKind is the rewrite strategy chosen for a file.
type layoutKind int

const (
	layoutFastStart layoutKind = iota // moov already precedes mdat; verbatim copy
	layoutInPlace                     // moov replaces padding before mdat; delta is zero
	layoutRelocate                    // full rewrite with patched tables
)

// plan is the relocation decision for one file: what moves, by how
// much, which tables get patched, and how large the output must be.
type plan struct {
	kind    layoutKind
	idx     *Index
	tables  []chunkTable
	pad     *Atom          // padding atom reused by the in-place path
	drop    map[*Atom]bool // top-level atoms omitted by the full rewrite
	delta   int64          // change of mdat's start position
	outSize int64          // expected output size, asserted after writing
}

// classify inspects the indexed container and decides how to relocate
// moov. It rejects layouts the rewrite cannot handle and, on the paths
// that move data, validates every chunk offset against the mdat span.
func classify(rs io.ReadSeeker, idx *Index, forceRewrite bool) (*plan, error) {
	var moovs, mdats int
	for _, a := range idx.Atoms {
		switch a.Type {
		case TypeMoov:
			moovs++
		case TypeMdat:
			mdats++
		case TypeMoof, TypeMfra:
			return nil, fmt.Errorf("%w: fragmented movie (%s atom at %d)", ErrUnsupportedLayout, a.Type, a.Offset)
		}
	}
	if moovs == 0 {
		return nil, fmt.Errorf("%w: moov atom not found", ErrUnsupportedLayout)
	}
	if mdats == 0 {
		return nil, fmt.Errorf("%w: mdat atom not found", ErrUnsupportedLayout)
	}
	if moovs > 1 {
		return nil, fmt.Errorf("%w: %d moov atoms", ErrUnsupportedLayout, moovs)
	}
	if mdats > 1 {
		return nil, fmt.Errorf("%w: %d mdat atoms", ErrUnsupportedLayout, mdats)
	}

	moov, mdat := idx.Moov, idx.Mdat
	for _, c := range moov.Children {
		if c.Type == TypeCmov {
			return nil, fmt.Errorf("%w: compressed moov atom", ErrUnsupportedLayout)
		}
	}

	p := &plan{idx: idx}

	if moov.Offset < mdat.Offset {
		p.kind = layoutFastStart
		p.outSize = idx.Size
		return p, nil
	}

	// moov will be rewritten; its size field must stay representable.
	if moov.HeaderSize == 8 && moov.Size > uint32Max {
		return nil, fmt.Errorf("%w: moov size %d does not fit its compact header", ErrUnsupportedLayout, moov.Size)
	}

	tables, err := collectTables(rs, moov)
	if err != nil {
		return nil, err
	}
	if err := validateEntries(rs, moov, mdat, tables); err != nil {
		return nil, err
	}
	p.tables = tables

	if !forceRewrite {
		if pad := paddingBefore(idx, mdat); pad != nil {
			rem := pad.Size - moov.Size
			if rem == 0 || (rem >= 8 && rem <= uint32Max) {
				p.kind = layoutInPlace
				p.pad = pad
				p.outSize = idx.Size - moov.Size
				return p, nil
			}
		}
	}

	p.kind = layoutRelocate
	p.drop = make(map[*Atom]bool)
	var dropped int64
	for _, a := range idx.Atoms {
		if a.Offset < mdat.Offset && (isPadding(a.Type) || a.Type == typeZero) {
			p.drop[a] = true
			dropped += a.Size
		}
	}
	var ftypSize int64
	if idx.Ftyp != nil {
		ftypSize = idx.Ftyp.Size
	}
	p.delta = ftypSize + moov.Size - mdat.Offset
	p.outSize = idx.Size - dropped
	return p, nil
}

// paddingBefore returns the free/skip atom ending exactly where mdat
// begins, or nil.
func paddingBefore(idx *Index, mdat *Atom) *Atom {
	for _, a := range idx.Atoms {
		if isPadding(a.Type) && a.End() == mdat.Offset {
			return a
		}
	}
	return nil
}

// collectTables gathers every stco and co64 atom under moov, checking
// that each declared entry count fits its payload.
func collectTables(rs io.ReadSeeker, moov *Atom) ([]chunkTable, error) {
	var tables []chunkTable
	var walk func(a *Atom) error
	walk = func(a *Atom) error {
		for _, c := range a.Children {
			switch c.Type {
			case TypeStco, TypeCo64:
				t, err := readTableHeader(rs, moov, c)
				if err != nil {
					return err
				}
				tables = append(tables, t)
			default:
				if err := walk(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(moov); err != nil {
		return nil, err
	}
	return tables, nil
}

// readTableHeader reads the version/flags word and entry count of a
// chunk offset table.
func readTableHeader(rs io.ReadSeeker, moov, table *Atom) (chunkTable, error) {
	if table.DataSize() < 8 {
		return chunkTable{}, fmt.Errorf("%s at %d: %w: payload too small for a table header", table.Type, table.Offset, ErrMalformedContainer)
	}
	if _, err := rs.Seek(table.DataOffset(), io.SeekStart); err != nil {
		return chunkTable{}, fmt.Errorf("seek to %s at %d: %w: %w", table.Type, table.Offset, ErrIO, err)
	}
	var hdr [8]byte
	if _, err := io.ReadFull(rs, hdr[:]); err != nil {
		return chunkTable{}, fmt.Errorf("read %s at %d: %w: %w", table.Type, table.Offset, ErrIO, err)
	}

	t := chunkTable{
		atom:     table,
		is64:     table.Type == TypeCo64,
		count:    int(be.Uint32(hdr[4:8])),
		entryPos: table.DataOffset() - moov.Offset + 8,
	}
	if int64(t.count)*t.entryWidth() > table.DataSize()-8 {
		return chunkTable{}, fmt.Errorf("%s at %d: %w: %d entries exceed payload length %d", table.Type, table.Offset, ErrMalformedContainer, t.count, table.DataSize())
	}
	return t, nil
}

// validateEntries checks the pre-relocation invariant: every chunk
// offset points into the mdat span. Offsets elsewhere would not shift
// by the single delta and the rewrite would corrupt them.
func validateEntries(rs io.ReadSeeker, moov, mdat *Atom, tables []chunkTable) error {
	var buf [4096]byte
	for _, t := range tables {
		width := int(t.entryWidth())
		if _, err := rs.Seek(moov.Offset+t.entryPos, io.SeekStart); err != nil {
			return fmt.Errorf("seek to %s entries: %w: %w", t.atom.Type, ErrIO, err)
		}
		idx := 0
		for rem := t.count; rem > 0; {
			n := len(buf) / width
			if n > rem {
				n = rem
			}
			chunk := buf[:n*width]
			if _, err := io.ReadFull(rs, chunk); err != nil {
				return fmt.Errorf("read %s entries: %w: %w", t.atom.Type, ErrIO, err)
			}
			for i := 0; i < n; i++ {
				var off int64
				if t.is64 {
					off = int64(be.Uint64(chunk[i*8:]))
				} else {
					off = int64(be.Uint32(chunk[i*4:]))
				}
				if off < mdat.Offset || off >= mdat.End() {
					return fmt.Errorf("%s entry %d: %w: chunk offset %d outside mdat [%d,%d)", t.atom.Type, idx, ErrMalformedContainer, off, mdat.Offset, mdat.End())
				}
				idx++
			}
			rem -= n
		}
	}
	return nil
}
