package uploader

import (
	"io"
	"sync/atomic"

	"github.com/stratalake/strata-ingest-go/internal/gzip"
	"github.com/stratalake/strata-ingest-go/internal/properties"
)

// Compressor adapts a source byte stream for transmission. Implementations
// must report how many raw source bytes they consumed so the job descriptor
// can carry the uncompressed size.
type Compressor interface {
	// Wrap returns the stream whose bytes are transmitted.
	Wrap(r io.Reader) io.Reader
	// InputSize reports the raw source bytes consumed. Only accurate once
	// the wrapped stream has been drained.
	InputSize() int64
	// Encoding is the compression of the transmitted bytes.
	Encoding() properties.CompressionType
}

// ForSource picks the compressor for a source: gzip for uncompressed sources
// in a format that benefits, passthrough for everything else.
func ForSource(format properties.DataFormat, compression properties.CompressionType, dontCompress bool) Compressor {
	if shouldCompress(format, compression, dontCompress) {
		return &gzipCompressor{}
	}
	return &passthrough{encoding: compression}
}

func shouldCompress(format properties.DataFormat, compression properties.CompressionType, dontCompress bool) bool {
	if dontCompress {
		return false
	}
	if compression == properties.GZIP || compression == properties.ZIP {
		return false
	}
	return format.Compressible()
}

type gzipCompressor struct {
	s *gzip.Streamer
}

func (g *gzipCompressor) Wrap(r io.Reader) io.Reader {
	g.s = gzip.Compress(r)
	return g.s
}

func (g *gzipCompressor) InputSize() int64 {
	if g.s == nil {
		return 0
	}
	return g.s.InputSize()
}

func (g *gzipCompressor) Encoding() properties.CompressionType {
	return properties.GZIP
}

// passthrough transmits the source bytes untouched, counting them as they go
// by.
type passthrough struct {
	encoding properties.CompressionType
	n        atomic.Int64
}

func (p *passthrough) Wrap(r io.Reader) io.Reader {
	return &countReader{r: r, n: &p.n}
}

func (p *passthrough) InputSize() int64 {
	return p.n.Load()
}

func (p *passthrough) Encoding() properties.CompressionType {
	return p.encoding
}

type countReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n.Add(int64(n))
	return n, err
}
