package faststart

import (
	"fmt"
	"io"
)

// executePlan writes the planned layout to w, streaming payload spans
// from src unchanged. Only the moov image is held in memory.
func executePlan(w io.Writer, src io.ReadSeeker, p *plan) error {
	switch p.kind {
	case layoutFastStart:
		return copyRange(w, src, 0, p.idx.Size)
	case layoutInPlace:
		moovBuf, err := loadMoov(src, p.idx.Moov)
		if err != nil {
			return err
		}
		// mdat does not move, so the tables stay as they are.
		return writeInPlace(w, src, p, moovBuf)
	default:
		moovBuf, err := loadMoov(src, p.idx.Moov)
		if err != nil {
			return err
		}
		if err := patchChunkOffsets(moovBuf, p.tables, p.delta); err != nil {
			return err
		}
		return writeRelocated(w, src, p, moovBuf)
	}
}

// writeRelocated writes the full-rewrite order: ftyp first when
// present, then the patched moov, then mdat, then the remaining atoms
// in original order minus dropped padding.
func writeRelocated(w io.Writer, src io.ReadSeeker, p *plan, moovBuf []byte) error {
	idx := p.idx
	if idx.Ftyp != nil {
		if err := copyRange(w, src, idx.Ftyp.Offset, idx.Ftyp.Size); err != nil {
			return err
		}
	}
	if _, err := w.Write(moovBuf); err != nil {
		return fmt.Errorf("write moov: %w: %w", ErrIO, err)
	}
	if err := copyRange(w, src, idx.Mdat.Offset, idx.Mdat.Size); err != nil {
		return err
	}
	for _, a := range idx.Atoms {
		if a == idx.Ftyp || a == idx.Moov || a == idx.Mdat || p.drop[a] {
			continue
		}
		if err := copyRange(w, src, a.Offset, a.Size); err != nil {
			return err
		}
	}
	return nil
}

// writeInPlace reuses the padding atom ending at mdat: every byte up to
// the padding is copied verbatim, moov lands where the padding was, a
// zero-filled free atom covers the remainder, and everything from mdat
// on follows unchanged except that the original trailing moov is
// dropped.
func writeInPlace(w io.Writer, src io.ReadSeeker, p *plan, moovBuf []byte) error {
	idx, pad, moov := p.idx, p.pad, p.idx.Moov
	if err := copyRange(w, src, 0, pad.Offset); err != nil {
		return err
	}
	if _, err := w.Write(moovBuf); err != nil {
		return fmt.Errorf("write moov: %w: %w", ErrIO, err)
	}
	if rem := pad.Size - moov.Size; rem > 0 {
		if err := writeFree(w, rem); err != nil {
			return err
		}
	}
	if err := copyRange(w, src, idx.Mdat.Offset, moov.Offset-idx.Mdat.Offset); err != nil {
		return err
	}
	return copyRange(w, src, moov.End(), idx.Size-moov.End())
}

// loadMoov reads the moov atom into memory and normalizes its size
// field, materializing a size that was declared as zero.
func loadMoov(src io.ReadSeeker, moov *Atom) ([]byte, error) {
	buf := make([]byte, moov.Size)
	if _, err := src.Seek(moov.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to moov at %d: %w: %w", moov.Offset, ErrIO, err)
	}
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, fmt.Errorf("read moov at %d: %w: %w", moov.Offset, ErrIO, err)
	}
	if moov.HeaderSize == 8 {
		be.PutUint32(buf[0:4], uint32(moov.Size))
	}
	return buf, nil
}

// writeFree writes a zero-filled free atom of the given total size.
func writeFree(w io.Writer, size int64) error {
	var hdr [8]byte
	be.PutUint32(hdr[0:4], uint32(size))
	copy(hdr[4:8], TypeFree[:])
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write free atom: %w: %w", ErrIO, err)
	}
	if _, err := io.CopyN(w, zeroReader{}, size-8); err != nil {
		return fmt.Errorf("write free atom: %w: %w", ErrIO, err)
	}
	return nil
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// copyRange streams n bytes of src starting at off into w.
func copyRange(w io.Writer, src io.ReadSeeker, off, n int64) error {
	if n == 0 {
		return nil
	}
	if _, err := src.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w: %w", off, ErrIO, err)
	}
	if _, err := io.CopyN(w, src, n); err != nil {
		return fmt.Errorf("copy %d bytes at %d: %w: %w", n, off, ErrIO, err)
	}
	return nil
}

// verifyOutput re-reads the freshly written bytes and asserts the
// fast-start shape: moov precedes mdat and the size matches the plan.
func verifyOutput(rs io.ReadSeeker, p *plan) error {
	out, err := ReadIndex(rs)
	if err != nil {
		return fmt.Errorf("output verification: %w", err)
	}
	if out.Moov == nil || out.Mdat == nil || out.Moov.Offset >= out.Mdat.Offset {
		return fmt.Errorf("output verification: %w: moov does not precede mdat", ErrMalformedContainer)
	}
	if out.Size != p.outSize {
		return fmt.Errorf("output verification: %w: size %d, expected %d", ErrMalformedContainer, out.Size, p.outSize)
	}
	return nil
}
