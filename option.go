package strataingest

import (
	"net/http"
	"time"

	"github.com/stratalake/strata-ingest-go/internal/properties"
	"github.com/stratalake/strata-ingest-go/internal/uploader"
)

// Upload methods a call can force with WithUploadMethod. When neither the
// caller nor the service states a preference, storage containers are used.
const (
	UploadMethodStorage = uploader.MethodStorage
	UploadMethodLake    = uploader.MethodLake
)

// ingestOptions collects the per-call configuration.
type ingestOptions struct {
	ingestion       properties.Ingestion
	clientRequestID string
	method          string
}

// Option configures a single ingest call.
type Option func(*ingestOptions)

// WithFormat states the job's data format. Normally the sources carry their
// own formats; this forces one for the whole call.
func WithFormat(f DataFormat) Option {
	return func(o *ingestOptions) {
		o.ingestion.Format = f
	}
}

// WithMappingReference names a pre-created ingestion mapping on the target
// table. Mutually exclusive with WithIngestionMapping.
func WithMappingReference(name string) Option {
	return func(o *ingestOptions) {
		o.ingestion.IngestionMappingRef = name
	}
}

// WithIngestionMapping supplies an inline ingestion mapping. Mutually
// exclusive with WithMappingReference.
func WithIngestionMapping(mapping string) Option {
	return func(o *ingestOptions) {
		o.ingestion.IngestionMapping = mapping
	}
}

// WithTags attaches extent tags to the ingested data.
func WithTags(tags ...string) Option {
	return func(o *ingestOptions) {
		o.ingestion.Tags = append(o.ingestion.Tags, tags...)
	}
}

// WithIngestIfNotExists skips the ingestion if data with a matching
// ingest-by tag already exists.
func WithIngestIfNotExists(values ...string) Option {
	return func(o *ingestOptions) {
		o.ingestion.IngestIfNotExists = append(o.ingestion.IngestIfNotExists, values...)
	}
}

// WithTracking asks the service to persist per-blob status, enabling
// OperationDetails and PollUntilCompletion on the returned operation.
func WithTracking() Option {
	return func(o *ingestOptions) {
		o.ingestion.EnableTracking = true
	}
}

// WithSkipBatching asks the service to ingest immediately rather than wait
// for its batching policy to fill.
func WithSkipBatching() Option {
	return func(o *ingestOptions) {
		o.ingestion.SkipBatching = true
	}
}

// WithDeleteAfterDownload asks the service to delete the staged blob once
// downloaded.
func WithDeleteAfterDownload() Option {
	return func(o *ingestOptions) {
		o.ingestion.DeleteAfterDownload = true
	}
}

// WithIgnoreSizeLimit admits sources over the staging size limit.
func WithIgnoreSizeLimit() Option {
	return func(o *ingestOptions) {
		o.ingestion.IgnoreSizeLimit = true
	}
}

// WithIgnoreFirstRecord skips the first record of each source, for files
// with header rows.
func WithIgnoreFirstRecord() Option {
	return func(o *ingestOptions) {
		o.ingestion.IgnoreFirstRecord = true
	}
}

// WithIgnoreLastRecordIfInvalid drops a trailing malformed record instead of
// failing the blob.
func WithIgnoreLastRecordIfInvalid() Option {
	return func(o *ingestOptions) {
		o.ingestion.IgnoreLastRecordIfInvalid = true
	}
}

// WithExtendSchema allows the ingestion to add columns to the table schema.
func WithExtendSchema() Option {
	return func(o *ingestOptions) {
		o.ingestion.ExtendSchema = true
	}
}

// WithRecreateSchema allows the ingestion to replace the table schema.
func WithRecreateSchema() Option {
	return func(o *ingestOptions) {
		o.ingestion.RecreateSchema = true
	}
}

// WithCreationTime overrides the extent creation time the service records.
func WithCreationTime(t time.Time) Option {
	return func(o *ingestOptions) {
		o.ingestion.CreationTime = &t
	}
}

// WithZipPattern selects which entries of a zip archive are ingested.
func WithZipPattern(pattern string) Option {
	return func(o *ingestOptions) {
		o.ingestion.ZipPattern = pattern
	}
}

// WithValidationPolicy names the validation policy applied during ingestion.
func WithValidationPolicy(policy string) Option {
	return func(o *ingestOptions) {
		o.ingestion.ValidationPolicy = policy
	}
}

// WithClientRequestID sets the x-ms-client-request-id sent with the call,
// for correlating client and service logs.
func WithClientRequestID(id string) Option {
	return func(o *ingestOptions) {
		o.clientRequestID = id
	}
}

// WithUploadMethod forces staging to storage containers or lake folders,
// overriding the service's advertised preference.
func WithUploadMethod(method string) Option {
	return func(o *ingestOptions) {
		o.method = method
	}
}

func buildOptions(options []Option) *ingestOptions {
	o := &ingestOptions{}
	for _, opt := range options {
		opt(o)
	}
	return o
}

func (o *ingestOptions) properties(database, table string) properties.All {
	return properties.All{
		Database:        database,
		Table:           table,
		Ingestion:       o.ingestion,
		ClientRequestID: o.clientRequestID,
	}
}

// clientOptions collects client-construction configuration.
type clientOptions struct {
	httpClient     *http.Client
	maxConcurrency int
	maxAttempts    int
	noCorrection   bool
	sharedFrom     *Ingestion
}

// ClientOption configures a client at construction.
type ClientOption func(*clientOptions)

// WithHTTPClient replaces the HTTP client used for engine and
// data-management calls.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

// WithMaxConcurrency bounds how many sources are staged at once. The
// effective bound is min(n, GOMAXPROCS).
func WithMaxConcurrency(n int) ClientOption {
	return func(o *clientOptions) {
		o.maxConcurrency = n
	}
}

// WithMaxAttempts sets how many staging attempts are made per source before
// the upload fails.
func WithMaxAttempts(n int) ClientOption {
	return func(o *clientOptions) {
		o.maxAttempts = n
	}
}

// WithoutEndpointCorrection stops the client from adding or removing the
// "ingest-" host prefix and uses the endpoint exactly as given.
func WithoutEndpointCorrection() ClientOption {
	return func(o *clientOptions) {
		o.noCorrection = true
	}
}

// WithUploaderFrom shares another queued client's staging machinery (its
// uploader, account ranking, and resource cache). The new client does not
// close the shared machinery; the owning client must outlive it.
func WithUploaderFrom(owner *Ingestion) ClientOption {
	return func(o *clientOptions) {
		o.sharedFrom = owner
	}
}
