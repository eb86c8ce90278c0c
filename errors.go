package faststart

import "errors"

// Sentinel errors returned by Convert and the lower-level readers.
// Returned errors carry positional context around these; match with
// errors.Is.
var (
	// ErrMalformedContainer reports a structural inconsistency in the
	// input: a bad or truncated size field, an atom overrunning its
	// parent or the file, or a chunk offset pointing outside mdat.
	ErrMalformedContainer = errors.New("malformed container")

	// ErrUnsupportedLayout reports a structurally valid container this
	// package cannot relocate: missing or duplicate moov/mdat, a
	// fragmented movie, or a compressed movie index.
	ErrUnsupportedLayout = errors.New("unsupported layout")

	// ErrOffsetOverflow reports a chunk offset that would leave the
	// representable range of its table after relocation.
	ErrOffsetOverflow = errors.New("chunk offset out of range")

	// ErrIO wraps read, write, seek and rename failures from the
	// storage layer. The underlying cause stays matchable with
	// errors.Is.
	ErrIO = errors.New("io failure")

	// ErrSamePath reports that source and destination name the same
	// file.
	ErrSamePath = errors.New("source and destination are the same file")
)
