package faststart

import (
	"encoding/binary"
	"math"
)

var be = binary.BigEndian

const uint32Max = math.MaxUint32

// BoxType is a 4-byte atom type identifier.
type BoxType [4]byte

func (t BoxType) String() string {
	return string(t[:])
}

// newBoxType creates a BoxType from a 4-character string.
func newBoxType(s string) BoxType {
	var t BoxType
	copy(t[:], s)
	return t
}

// Known atom types.
var (
	TypeFtyp = newBoxType("ftyp")
	TypeMoov = newBoxType("moov")
	TypeMdat = newBoxType("mdat")
	TypeFree = newBoxType("free")
	TypeSkip = newBoxType("skip")
	TypeWide = newBoxType("wide")
	TypeMoof = newBoxType("moof")
	TypeMfra = newBoxType("mfra")
	TypeCmov = newBoxType("cmov")
	TypeTrak = newBoxType("trak")
	TypeMdia = newBoxType("mdia")
	TypeMinf = newBoxType("minf")
	TypeStbl = newBoxType("stbl")
	TypeStco = newBoxType("stco")
	TypeCo64 = newBoxType("co64")
)

// typeZero is the all-zero identifier some writers leave behind as junk
// padding before mdat.
var typeZero = BoxType{}

// moovContainers is the descent path from moov down to the chunk offset
// tables. Only these containers are parsed recursively; everything else
// under moov stays an opaque leaf.
var moovContainers = map[BoxType]bool{
	TypeTrak: true,
	TypeMdia: true,
	TypeMinf: true,
	TypeStbl: true,
}

// isPadding reports whether t marks reclaimable padding.
func isPadding(t BoxType) bool {
	return t == TypeFree || t == TypeSkip
}

// Atom is one node of the container tree: a typed byte span within the
// source file. Containers on the moov descent path carry Children;
// every other atom, mdat included, is an opaque leaf whose payload is
// never loaded.
type Atom struct {
	Type       BoxType
	Offset     int64 // position of the atom within the file
	Size       int64 // resolved total size including header
	HeaderSize int   // 8, or 16 when an extended size field is present
	Children   []*Atom
}

// End returns the offset one past the atom's last byte.
func (a *Atom) End() int64 {
	return a.Offset + a.Size
}

// DataOffset returns the position of the atom's payload.
func (a *Atom) DataOffset() int64 {
	return a.Offset + int64(a.HeaderSize)
}

// DataSize returns the payload length excluding the header.
func (a *Atom) DataSize() int64 {
	return a.Size - int64(a.HeaderSize)
}
