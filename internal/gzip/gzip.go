// Package gzip provides a streaming gzip compressor that reports how many
// input bytes it has consumed.
package gzip

import (
	"compress/gzip"
	"io"
	"sync/atomic"
)

// Streamer reads from an input stream and yields the gzip encoding of that
// stream. It is an io.Reader whose content is the compressed input.
type Streamer struct {
	input io.ReadCloser
	pr    *io.PipeReader
	size  atomic.Int64
}

// New creates a new Streamer. Call Reset() before use.
func New() *Streamer {
	return &Streamer{}
}

// Reset sets the input stream and starts compression. Any previous stream
// must be drained first. The input is closed once fully consumed.
func (s *Streamer) Reset(r io.ReadCloser) {
	s.input = r
	s.size.Store(0)

	pr, pw := io.Pipe()
	s.pr = pr

	go func() {
		zw := gzip.NewWriter(pw)
		n, err := io.Copy(zw, r)
		s.size.Store(n)
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
		r.Close()
	}()
}

// Read implements io.Reader, yielding compressed bytes.
func (s *Streamer) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close aborts the stream. The compressing goroutine unblocks, closes the
// input, and exits.
func (s *Streamer) Close() error {
	if s.pr == nil {
		return nil
	}
	return s.pr.Close()
}

// InputSize returns the number of uncompressed input bytes consumed so far.
// It is only accurate once Read has returned io.EOF.
func (s *Streamer) InputSize() int64 {
	return s.size.Load()
}

// Compress wraps reader with a Streamer. The reader is closed when drained
// if it implements io.Closer.
func Compress(reader io.Reader) *Streamer {
	var rc io.ReadCloser
	var ok bool
	if rc, ok = reader.(io.ReadCloser); !ok {
		rc = io.NopCloser(reader)
	}
	s := New()
	s.Reset(rc)
	return s
}
