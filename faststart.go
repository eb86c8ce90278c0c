// Package faststart rewrites ISO Base Media File Format (MP4/QuickTime)
// containers so the moov atom precedes mdat, letting playback begin
// before the whole file has arrived. Media bytes are streamed through
// unchanged; only the chunk offset tables inside moov are shifted, by
// the single delta the move introduces.
package faststart

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Result describes a completed conversion.
type Result struct {
	AlreadyFastStart bool  // input already had moov before mdat; output is a verified copy
	InPlace          bool  // moov was placed into existing padding; mdat did not move
	Delta            int64 // change of mdat's start position, applied to every chunk offset
	MoovSize         int64 // size of the moov atom written
	TablesPatched    int   // number of stco/co64 tables rewritten
	BytesWritten     int64 // total size of the destination file
}

// converter carries per-conversion configuration.
type converter struct {
	log          zerolog.Logger
	forceRewrite bool
}

// Option configures a conversion.
type Option func(*converter)

// WithLogger sets the logger used for progress events. The default
// discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *converter) { c.log = l }
}

// WithForceRewrite disables the in-place padding fast path so the
// output is always a fully rewritten file.
func WithForceRewrite() Option {
	return func(c *converter) { c.forceRewrite = true }
}

// Convert rewrites the container at src into dst with the moov atom in
// front. src is opened read-only and never modified. The output is
// assembled in a temporary file next to dst and renamed into place only
// after it verifies, so no partial destination is ever left behind and
// an existing dst survives any failure. Converting the same src twice
// produces byte-identical output.
func Convert(src, dst string, opts ...Option) (*Result, error) {
	c := converter{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&c)
	}
	return c.convert(src, dst)
}

func (c *converter) convert(src, dst string) (*Result, error) {
	if err := checkDistinct(src, dst); err != nil {
		return nil, err
	}

	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open source: %w: %w", ErrIO, err)
	}
	defer in.Close()

	idx, err := ReadIndex(in)
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("source", src).Int("atoms", len(idx.Atoms)).Int64("size", idx.Size).Msg("indexed container")

	p, err := classify(in, idx, c.forceRewrite)
	if err != nil {
		return nil, err
	}

	res := &Result{MoovSize: idx.Moov.Size}
	switch p.kind {
	case layoutFastStart:
		res.AlreadyFastStart = true
		c.log.Info().Str("source", src).Msg("already fast start, copying verbatim")
	case layoutInPlace:
		res.InPlace = true
		c.log.Info().Int64("padding", p.pad.Size).Int64("moov", idx.Moov.Size).Msg("placing moov into padding before mdat")
	case layoutRelocate:
		res.Delta = p.delta
		res.TablesPatched = len(p.tables)
		c.log.Info().Int64("delta", p.delta).Int("tables", len(p.tables)).Msg("relocating moov")
	}

	tmp := dst + "." + uuid.NewString() + ".tmp"
	out, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create destination: %w: %w", ErrIO, err)
	}
	if err := c.writeAndVerify(out, in, p); err != nil {
		out.Close()
		os.Remove(tmp)
		return nil, err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("close destination: %w: %w", ErrIO, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("rename into place: %w: %w", ErrIO, err)
	}

	res.BytesWritten = p.outSize
	c.log.Info().Str("destination", dst).Int64("bytes", p.outSize).Msg("wrote fast start file")
	return res, nil
}

func (c *converter) writeAndVerify(out *os.File, in io.ReadSeeker, p *plan) error {
	w := bufio.NewWriter(out)
	if err := executePlan(w, in, p); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush destination: %w: %w", ErrIO, err)
	}
	return verifyOutput(out, p)
}

// checkDistinct rejects converting a file onto itself. The paths are
// compared after resolution, and the destination is also compared by
// file identity when it already exists, catching links.
func checkDistinct(src, dst string) error {
	sa, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("resolve source path: %w: %w", ErrIO, err)
	}
	da, err := filepath.Abs(dst)
	if err != nil {
		return fmt.Errorf("resolve destination path: %w: %w", ErrIO, err)
	}
	if sa == da {
		return fmt.Errorf("%w: %s", ErrSamePath, src)
	}
	si, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w: %w", ErrIO, err)
	}
	if di, err := os.Stat(dst); err == nil && os.SameFile(si, di) {
		return fmt.Errorf("%w: %s", ErrSamePath, src)
	}
	return nil
}
