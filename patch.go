package faststart

import (
	"fmt"
	"math"
)

// chunkTable locates one stco or co64 table inside the moov span.
type chunkTable struct {
	atom     *Atom
	is64     bool
	count    int
	entryPos int64 // position of the first entry relative to moov's start
}

func (t chunkTable) entryWidth() int64 {
	if t.is64 {
		return 8
	}
	return 4
}

// patchChunkOffsets applies delta to every entry of every table inside
// the moov image. It is a pure transform of the image: the same scalar
// is added to each entry, so applying -delta restores the original.
func patchChunkOffsets(moov []byte, tables []chunkTable, delta int64) error {
	for _, t := range tables {
		if t.is64 {
			if err := patchCo64(moov, t, delta); err != nil {
				return err
			}
			continue
		}
		if err := patchStco(moov, t, delta); err != nil {
			return err
		}
	}
	return nil
}

// --- stco ---

func patchStco(moov []byte, t chunkTable, delta int64) error {
	b := moov[t.entryPos:]
	for i := 0; i < t.count; i++ {
		old := int64(be.Uint32(b[i*4:]))
		v := old + delta
		if v < 0 || v > uint32Max {
			return fmt.Errorf("stco entry %d: %w: %d%+d does not fit in 32 bits", i, ErrOffsetOverflow, old, delta)
		}
		be.PutUint32(b[i*4:], uint32(v))
	}
	return nil
}

// --- co64 ---

func patchCo64(moov []byte, t chunkTable, delta int64) error {
	b := moov[t.entryPos:]
	for i := 0; i < t.count; i++ {
		old := be.Uint64(b[i*8:])
		if delta < 0 && old < uint64(-delta) {
			return fmt.Errorf("co64 entry %d: %w: %d%+d is negative", i, ErrOffsetOverflow, old, delta)
		}
		if delta > 0 && old > math.MaxUint64-uint64(delta) {
			return fmt.Errorf("co64 entry %d: %w: %d%+d does not fit in 64 bits", i, ErrOffsetOverflow, old, delta)
		}
		be.PutUint64(b[i*8:], old+uint64(delta))
	}
	return nil
}
