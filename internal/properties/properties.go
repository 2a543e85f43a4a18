// Package properties provides the REST properties that are serialized and
// sent to the service based upon the type of ingestion we are doing.
package properties

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stratalake/strata-ingest-go/errors"
)

// CompressionType is a source's compression type.
type CompressionType int8

const (
	// CTUnknown indicates that the compression type was unset.
	CTUnknown CompressionType = 0
	// CTNone indicates that the source is not compressed.
	CTNone CompressionType = 1
	// GZIP indicates that the source is GZIP compressed.
	GZIP CompressionType = 2
	// ZIP indicates that the source is ZIP compressed.
	ZIP CompressionType = 3
)

// String implements fmt.Stringer.
func (c CompressionType) String() string {
	switch c {
	case CTNone:
		return "none"
	case GZIP:
		return "gzip"
	case ZIP:
		return "zip"
	}
	return "unknown compression type"
}

// Ext returns the file extension conventionally used for the compression, or
// "" when none applies.
func (c CompressionType) Ext() string {
	switch c {
	case GZIP:
		return "gz"
	case ZIP:
		return "zip"
	}
	return ""
}

// DataFormat indicates what type of encoding format was used for source data.
type DataFormat int

const (
	// DFUnknown indicates the format is not set.
	DFUnknown DataFormat = 0
	// AVRO indicates the source is encoded in Apache Avro format.
	AVRO DataFormat = 1
	// ApacheAVRO indicates the source is encoded in Apache avro2json format.
	ApacheAVRO DataFormat = 2
	// CSV indicates the source is encoded in comma separated values.
	CSV DataFormat = 3
	// JSON indicates the source is encoded as one or more lines, each
	// containing a record in JavaScript Object Notation.
	JSON DataFormat = 4
	// MultiJSON indicates the source is a JSON array of records, or
	// concatenated JSON documents.
	MultiJSON DataFormat = 5
	// ORC indicates the source is encoded in Apache Optimized Row Columnar
	// format.
	ORC DataFormat = 6
	// Parquet indicates the source is encoded in Apache Parquet format.
	Parquet DataFormat = 7
	// PSV is pipe "|" separated values.
	PSV DataFormat = 8
	// TSV is a file containing tab separated values.
	TSV DataFormat = 9
	// TXT is a text file with lines delimited by "\n".
	TXT DataFormat = 10
	// W3CLogFile is the W3C extended log file format.
	W3CLogFile DataFormat = 11
)

// String returns the wire name of the format, used for the streamFormat
// query value and for blob name hints.
func (d DataFormat) String() string {
	switch d {
	case AVRO:
		return "avro"
	case ApacheAVRO:
		return "apacheavro"
	case CSV:
		return "csv"
	case JSON:
		return "json"
	case MultiJSON:
		return "multijson"
	case ORC:
		return "orc"
	case Parquet:
		return "parquet"
	case PSV:
		return "psv"
	case TSV:
		return "tsv"
	case TXT:
		return "txt"
	case W3CLogFile:
		return "w3clogfile"
	}
	return ""
}

// MarshalJSON implements json.Marshaler.
func (d DataFormat) MarshalJSON() ([]byte, error) {
	s := d.String()
	if s == "" {
		return nil, fmt.Errorf("DataFormat(%d) has no wire name", int(d))
	}
	return []byte(fmt.Sprintf("%q", s)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DataFormat) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for f := AVRO; f <= W3CLogFile; f++ {
		if f.String() == s {
			*d = f
			return nil
		}
	}
	return fmt.Errorf("unknown data format %q", s)
}

// Compressible reports whether the format benefits from gzip before upload.
// Binary columnar and Avro containers carry their own compression.
func (d DataFormat) Compressible() bool {
	switch d {
	case AVRO, ApacheAVRO, ORC, Parquet:
		return false
	}
	return true
}

// DataFormatDiscovery looks at a file name or URL and tries to discern the
// data format from the extension, ignoring compression suffixes.
func DataFormatDiscovery(fName string) DataFormat {
	name := fName
	if u, err := url.Parse(fName); err == nil && u.Scheme != "" {
		name = u.Path
	}

	ext := filepath.Ext(strings.TrimSuffix(strings.TrimSuffix(strings.ToLower(name), ".zip"), ".gz"))

	switch ext {
	case ".avro":
		return AVRO
	case ".csv":
		return CSV
	case ".json":
		return JSON
	case ".multijson":
		return MultiJSON
	case ".orc":
		return ORC
	case ".parquet":
		return Parquet
	case ".psv":
		return PSV
	case ".tsv":
		return TSV
	case ".txt":
		return TXT
	case ".log":
		return W3CLogFile
	}
	return DFUnknown
}

// CompressionDiscovery looks at the file extension. If it is one we support,
// the matching CompressionType is returned, otherwise CTNone.
func CompressionDiscovery(fName string) CompressionType {
	name := fName
	if u, err := url.Parse(fName); err == nil && u.Scheme != "" {
		name = u.Path
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz":
		return GZIP
	case ".zip":
		return ZIP
	}
	return CTNone
}

// Ingestion is the JSON serializable option set posted to the service as the
// job's "properties" object.
type Ingestion struct {
	Format                    DataFormat `json:"format,omitempty"`
	IngestionMappingRef       string     `json:"ingestionMappingReference,omitempty"`
	IngestionMapping          string     `json:"ingestionMapping,omitempty"`
	Tags                      []string   `json:"tags,omitempty"`
	IngestIfNotExists         []string   `json:"ingestIfNotExists,omitempty"`
	EnableTracking            bool       `json:"enableTracking,omitempty"`
	SkipBatching              bool       `json:"skipBatching,omitempty"`
	DeleteAfterDownload       bool       `json:"deleteAfterDownload,omitempty"`
	IgnoreSizeLimit           bool       `json:"ignoreSizeLimit,omitempty"`
	IgnoreFirstRecord         bool       `json:"ignoreFirstRecord,omitempty"`
	IgnoreLastRecordIfInvalid bool       `json:"ignoreLastRecordIfInvalid,omitempty"`
	ExtendSchema              bool       `json:"extendSchema,omitempty"`
	RecreateSchema            bool       `json:"recreateSchema,omitempty"`
	CreationTime              *time.Time `json:"creationTime,omitempty"`
	ZipPattern                string     `json:"zipPattern,omitempty"`
	ValidationPolicy          string     `json:"validationPolicy,omitempty"`
}

// SourceOptions are options that describe the source being ingested, rather
// than how the service should treat it.
type SourceOptions struct {
	// ID identifies the source across staging and status reporting. A zero
	// ID is replaced at validation time.
	ID uuid.UUID

	// OriginalName is the file name or stream name the data came from. Used
	// for blob naming and format discovery.
	OriginalName string

	// DontCompress suppresses gzip compression on upload.
	DontCompress bool

	// Size is the caller-declared raw size of the source, 0 when unknown.
	Size int64
}

// All holds the complete property set for one ingest call.
type All struct {
	// Database is the target database.
	Database string
	// Table is the target table.
	Table string
	// Ingestion is the option set serialized to the service.
	Ingestion Ingestion
	// Source describes the source being staged.
	Source SourceOptions
	// ClientRequestID is sent as x-ms-client-request-id when set.
	ClientRequestID string
}

// Validate checks cross-field constraints and fills generated defaults.
func (a *All) Validate() error {
	if a.Database == "" {
		return errors.ES(errors.OpUnknown, errors.KClientArgs, "database name cannot be empty").SetNoRetry()
	}
	if a.Table == "" {
		return errors.ES(errors.OpUnknown, errors.KClientArgs, "table name cannot be empty").SetNoRetry()
	}
	if a.Ingestion.IngestionMapping != "" && a.Ingestion.IngestionMappingRef != "" {
		return errors.ES(
			errors.OpUnknown, errors.KClientArgs,
			"ingest into %s.%s: an inline ingestion mapping and a mapping reference are mutually exclusive",
			a.Database, a.Table,
		).SetNoRetry()
	}
	if a.Source.ID == uuid.Nil {
		a.Source.ID = uuid.New()
	}
	return nil
}

// BlobDescriptor is one staged blob reference inside a queued ingest job.
type BlobDescriptor struct {
	// BlobPath is the blob URL, including any SAS credential.
	BlobPath string `json:"blobPath"`
	// SourceID ties the blob back to the caller's source.
	SourceID uuid.UUID `json:"sourceId"`
	// RawSize is the uncompressed source size, 0 when unknown.
	RawSize int64 `json:"rawSize,omitempty"`
}

// Job is the queued ingest descriptor posted to the data-management service.
type Job struct {
	Timestamp  time.Time        `json:"timestamp"`
	Database   string           `json:"database"`
	Table      string           `json:"table"`
	Blobs      []BlobDescriptor `json:"blobs"`
	Properties Ingestion        `json:"properties"`
}
