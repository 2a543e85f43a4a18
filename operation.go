package strataingest

import (
	"context"
	"io"
	"time"

	"github.com/stratalake/strata-ingest-go/internal/status"
)

// OperationKind says which path produced an Operation.
type OperationKind string

const (
	// KindStreaming marks operations produced by the streaming client.
	KindStreaming OperationKind = "streaming"
	// KindQueued marks operations produced by the queued client.
	KindQueued OperationKind = "queued"
)

// Operation identifies one accepted ingestion. Queued operations carry the
// service-assigned ID and can be polled; streaming operations carry a
// client-generated ID for correlation only.
type Operation struct {
	ID       string
	Database string
	Table    string
	Kind     OperationKind
}

// StatusCode is the per-blob ingestion status reported by the service.
type StatusCode = status.StatusCode

// Ingestion status codes.
const (
	// Pending means the service has not picked up the blob yet.
	Pending = status.Pending
	// InProgress means the blob is being processed.
	InProgress = status.InProgress
	// Succeeded means the data was ingested.
	Succeeded = status.Succeeded
	// Failed means the data was not ingested.
	Failed = status.Failed
	// PartiallySucceeded means part of the data was ingested.
	PartiallySucceeded = status.PartiallySucceeded
	// SkippedDueToDedup means a matching ingest-by tag already existed.
	SkippedDueToDedup = status.SkippedDueToDedup
	// Canceled means the operation was canceled server side.
	Canceled = status.Canceled
)

// FailureStatusCode classifies a reported failure.
type FailureStatusCode = status.FailureStatusCode

const (
	// FailureUnknown is an undefined failure state.
	FailureUnknown = status.Unknown
	// FailurePermanent will not benefit from a retry.
	FailurePermanent = status.Permanent
	// FailureTransient is retryable.
	FailureTransient = status.Transient
	// FailureExhausted is retryable but used up its attempts.
	FailureExhausted = status.Exhausted
)

// BlobStatus is one per-blob record from a detailed status read.
type BlobStatus = status.BlobStatus

// StatusSummary is the aggregate form of a status read.
type StatusSummary = status.Summary

// StatusResponse is the detailed form of a status read.
type StatusResponse = status.Response

// Ingestor is the interface both client flavors satisfy.
type Ingestor interface {
	// Ingest ingests one source into database.table.
	Ingest(ctx context.Context, database, table string, source Source, options ...Option) (*Operation, error)
	// IngestMany ingests the sources as one operation, preserving their
	// order. The streaming flavor accepts exactly one source.
	IngestMany(ctx context.Context, database, table string, sources []Source, options ...Option) (*Operation, error)
	// OperationSummary reads the aggregate status of op.
	OperationSummary(ctx context.Context, op *Operation) (StatusSummary, error)
	// OperationDetails reads the per-blob status records of op.
	OperationDetails(ctx context.Context, op *Operation) (StatusResponse, error)
	// PollUntilCompletion re-reads op until every blob is terminal, the
	// timeout lapses, or ctx is done. Zero interval and timeout select the
	// defaults.
	PollUntilCompletion(ctx context.Context, op *Operation, interval, timeout time.Duration) (StatusResponse, error)

	io.Closer
}
