package strataingest

import (
	"io"

	"github.com/google/uuid"

	"github.com/stratalake/strata-ingest-go/internal/properties"
)

// DataFormat indicates the encoding of source data.
type DataFormat = properties.DataFormat

// Data formats accepted by the service.
const (
	// DFUnknown indicates the format is not set.
	DFUnknown = properties.DFUnknown
	// AVRO is the Apache Avro container format.
	AVRO = properties.AVRO
	// ApacheAVRO is the avro2json variant.
	ApacheAVRO = properties.ApacheAVRO
	// CSV is comma separated values.
	CSV = properties.CSV
	// JSON is one record per line.
	JSON = properties.JSON
	// MultiJSON is a JSON array or concatenated documents.
	MultiJSON = properties.MultiJSON
	// ORC is the Apache ORC columnar format.
	ORC = properties.ORC
	// Parquet is the Apache Parquet columnar format.
	Parquet = properties.Parquet
	// PSV is pipe separated values.
	PSV = properties.PSV
	// TSV is tab separated values.
	TSV = properties.TSV
	// TXT is newline delimited text.
	TXT = properties.TXT
	// W3CLogFile is the W3C extended log format.
	W3CLogFile = properties.W3CLogFile
)

// CompressionType is a source's compression state.
type CompressionType = properties.CompressionType

const (
	// CTUnknown indicates the compression was not set.
	CTUnknown = properties.CTUnknown
	// CTNone indicates the source is not compressed.
	CTNone = properties.CTNone
	// GZIP indicates gzip compression.
	GZIP = properties.GZIP
	// ZIP indicates zip compression.
	ZIP = properties.ZIP
)

type sourceKind int

const (
	kindNone sourceKind = iota
	kindFile
	kindReader
	kindBlob
)

// Source is one unit of data to ingest: a local file, a reader, or an
// already-staged blob. Construct with FileSource, ReaderSource, or
// BlobSource.
type Source struct {
	kind sourceKind

	path    string
	reader  io.Reader
	blobURL string

	// name is what blob naming and discovery key off. Defaults to the path
	// or blob URL.
	name         string
	format       DataFormat
	compression  CompressionType
	id           uuid.UUID
	size         int64
	dontCompress bool
}

// SourceOption configures a Source at construction.
type SourceOption func(*Source)

// SourceFormat states the source's data format, overriding extension
// discovery.
func SourceFormat(f DataFormat) SourceOption {
	return func(s *Source) {
		s.format = f
	}
}

// SourceCompression states the source's compression, overriding extension
// discovery.
func SourceCompression(c CompressionType) SourceOption {
	return func(s *Source) {
		s.compression = c
	}
}

// SourceID attaches the caller's identifier to the source. It shows up in
// per-blob status records. A fresh UUID is generated when unset.
func SourceID(id uuid.UUID) SourceOption {
	return func(s *Source) {
		s.id = id
	}
}

// SourceSize declares the raw (uncompressed) size of the source in bytes,
// which helps the service size its batches. Measured automatically for
// staged local sources.
func SourceSize(n int64) SourceOption {
	return func(s *Source) {
		s.size = n
	}
}

// DontCompress suppresses gzip compression during staging or streaming even
// for compressible formats.
func DontCompress() SourceOption {
	return func(s *Source) {
		s.dontCompress = true
	}
}

// FileSource describes a local file to ingest. Format and compression are
// discovered from the file's extension unless stated.
func FileSource(path string, options ...SourceOption) Source {
	s := Source{kind: kindFile, path: path, name: path}
	return s.complete(options)
}

// ReaderSource describes a stream to ingest. The name is used for blob
// naming and, when it has an extension, format discovery.
func ReaderSource(name string, r io.Reader, options ...SourceOption) Source {
	s := Source{kind: kindReader, reader: r, name: name}
	return s.complete(options)
}

// BlobSource describes data already staged in cloud storage, by URL. The URL
// must carry whatever credential the service needs to read it.
func BlobSource(blobURL string, options ...SourceOption) Source {
	s := Source{kind: kindBlob, blobURL: blobURL, name: blobURL}
	return s.complete(options)
}

// complete applies options and fills the discoverable gaps. An
// undiscoverable format defaults to csv, the service's own default.
func (s Source) complete(options []SourceOption) Source {
	for _, opt := range options {
		opt(&s)
	}
	if s.compression == CTUnknown {
		s.compression = properties.CompressionDiscovery(s.name)
	}
	if s.format == DFUnknown {
		s.format = properties.DataFormatDiscovery(s.name)
	}
	if s.format == DFUnknown {
		s.format = CSV
	}
	return s
}
