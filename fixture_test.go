package faststart

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// buildAtom assembles an atom with the given type and payload.
func buildAtom(typ string, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	be.PutUint32(buf[0:4], uint32(8+len(payload)))
	copy(buf[4:8], typ)
	copy(buf[8:], payload)
	return buf
}

// buildExtAtom assembles an atom carrying an extended 64-bit size field.
func buildExtAtom(typ string, payload []byte) []byte {
	buf := make([]byte, 16+len(payload))
	be.PutUint32(buf[0:4], 1)
	copy(buf[4:8], typ)
	be.PutUint64(buf[8:16], uint64(16+len(payload)))
	copy(buf[16:], payload)
	return buf
}

// buildContainer nests children into a container atom.
func buildContainer(typ string, children ...[]byte) []byte {
	return buildAtom(typ, bytes.Join(children, nil))
}

// buildFullAtom prepends a zero version+flags word to the payload.
func buildFullAtom(typ string, payload []byte) []byte {
	full := make([]byte, 4+len(payload))
	copy(full[4:], payload)
	return buildAtom(typ, full)
}

// buildStco assembles an stco atom from 32-bit chunk offsets.
func buildStco(offsets ...uint32) []byte {
	payload := make([]byte, 4+4*len(offsets))
	be.PutUint32(payload[0:4], uint32(len(offsets)))
	for i, o := range offsets {
		be.PutUint32(payload[4+i*4:], o)
	}
	return buildFullAtom("stco", payload)
}

// buildCo64 assembles a co64 atom from 64-bit chunk offsets.
func buildCo64(offsets ...uint64) []byte {
	payload := make([]byte, 4+8*len(offsets))
	be.PutUint32(payload[0:4], uint32(len(offsets)))
	for i, o := range offsets {
		be.PutUint64(payload[4+i*8:], o)
	}
	return buildFullAtom("co64", payload)
}

// buildTrak wraps offset tables in the mdia>minf>stbl chain.
func buildTrak(tables ...[]byte) []byte {
	return buildContainer("trak",
		buildContainer("mdia",
			buildContainer("minf",
				buildContainer("stbl", tables...))))
}

// buildFtyp returns a minimal isom ftyp atom.
func buildFtyp() []byte {
	payload := append([]byte("isom"), 0, 0, 2, 0)
	payload = append(payload, []byte("isomiso2")...)
	return buildAtom("ftyp", payload)
}

// buildFree returns a zero-filled free atom of the given total size.
func buildFree(size int) []byte {
	return buildAtom("free", make([]byte, size-8))
}

// testMovie is a small relocatable container and the pieces it was
// assembled from.
type testMovie struct {
	file []byte
	ftyp []byte
	mdat []byte
	moov []byte
}

// buildSimpleMovie lays out ftyp, mdat, moov with two 10-byte chunks
// and stco entries pointing at them.
func buildSimpleMovie() testMovie {
	ftyp := buildFtyp()
	mdat := buildAtom("mdat", []byte("chunk-one!chunk-two!"))
	dataStart := uint32(len(ftyp)) + 8
	moov := buildContainer("moov", buildTrak(buildStco(dataStart, dataStart+10)))
	m := testMovie{ftyp: ftyp, mdat: mdat, moov: moov}
	m.file = bytes.Join([][]byte{ftyp, mdat, moov}, nil)
	return m
}

// tableEntries returns every chunk offset stored in file, in table order.
func tableEntries(t *testing.T, file []byte) []int64 {
	t.Helper()
	rs := bytes.NewReader(file)
	idx, err := ReadIndex(rs)
	if err != nil {
		t.Fatal(err)
	}
	tables, err := collectTables(rs, idx.Moov)
	if err != nil {
		t.Fatal(err)
	}
	var entries []int64
	for _, tb := range tables {
		for i := 0; i < tb.count; i++ {
			pos := idx.Moov.Offset + tb.entryPos + int64(i)*tb.entryWidth()
			if tb.is64 {
				entries = append(entries, int64(be.Uint64(file[pos:])))
			} else {
				entries = append(entries, int64(be.Uint32(file[pos:])))
			}
		}
	}
	return entries
}

// chunkBytes reads back the n bytes addressed by each chunk offset.
func chunkBytes(t *testing.T, file []byte, n int) []string {
	t.Helper()
	var chunks []string
	for _, off := range tableEntries(t, file) {
		chunks = append(chunks, string(file[off:off+int64(n)]))
	}
	return chunks
}

// writeTestFile places data in a fresh temp directory.
func writeTestFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
