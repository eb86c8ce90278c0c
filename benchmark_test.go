package faststart

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// benchMovie synthesizes a relocatable movie with the given number of
// 64-byte chunks, each addressed by one stco entry.
func benchMovie(chunks int) []byte {
	ftyp := buildFtyp()
	mdat := buildAtom("mdat", make([]byte, chunks*64))
	offsets := make([]uint32, chunks)
	for i := range offsets {
		offsets[i] = uint32(len(ftyp) + 8 + i*64)
	}
	moov := buildContainer("moov", buildTrak(buildStco(offsets...)))
	return bytes.Join([][]byte{ftyp, mdat, moov}, nil)
}

func BenchmarkReadIndex(b *testing.B) {
	file := benchMovie(4096)
	b.SetBytes(int64(len(file)))

	for i := 0; i < b.N; i++ {
		if _, err := ReadIndex(bytes.NewReader(file)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPatchChunkOffsets(b *testing.B) {
	file := benchMovie(4096)
	rs := bytes.NewReader(file)
	idx, err := ReadIndex(rs)
	if err != nil {
		b.Fatal(err)
	}
	tables, err := collectTables(rs, idx.Moov)
	if err != nil {
		b.Fatal(err)
	}
	moov := make([]byte, idx.Moov.Size)
	copy(moov, file[idx.Moov.Offset:])
	b.SetBytes(int64(len(moov)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := patchChunkOffsets(moov, tables, 4096); err != nil {
			b.Fatal(err)
		}
		if err := patchChunkOffsets(moov, tables, -4096); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConvert(b *testing.B) {
	dir := b.TempDir()
	src := filepath.Join(dir, "in.mp4")
	file := benchMovie(1024)
	if err := os.WriteFile(src, file, 0o644); err != nil {
		b.Fatal(err)
	}
	dst := filepath.Join(dir, "out.mp4")
	b.SetBytes(int64(len(file)))

	for i := 0; i < b.N; i++ {
		if _, err := Convert(src, dst); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConvertFile(b *testing.B) {
	path := "testdata/big-buck-bunny-480p-30sec.mp4"
	info, err := os.Stat(path)
	if err != nil {
		b.Skipf("test file not available: %v", err)
	}
	b.SetBytes(info.Size())
	dst := filepath.Join(b.TempDir(), "out.mp4")

	for i := 0; i < b.N; i++ {
		if _, err := Convert(path, dst); err != nil {
			b.Fatal(err)
		}
	}
}
