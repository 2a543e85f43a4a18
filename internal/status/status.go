// Package status holds the typed ingestion status records returned by the
// status endpoint.
package status

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StatusCode is the per-blob ingestion status reported by the service.
type StatusCode string

const (
	// Pending status represents a temporary status. It may change as the
	// service works through the queued operation.
	Pending StatusCode = "Pending"
	// InProgress indicates the service has picked up the blob.
	InProgress StatusCode = "InProgress"
	// Succeeded indicates the data was ingested.
	Succeeded StatusCode = "Succeeded"
	// Failed indicates the data was not ingested.
	Failed StatusCode = "Failed"
	// PartiallySucceeded indicates part of the data was ingested.
	PartiallySucceeded StatusCode = "PartiallySucceeded"
	// SkippedDueToDedup indicates the service skipped the blob because data
	// tagged with a matching ingest-by tag already exists.
	SkippedDueToDedup StatusCode = "SkippedDueToDedup"
	// Canceled indicates the operation was canceled server side.
	Canceled StatusCode = "Canceled"
)

// IsTerminal reports whether the status will no longer change.
func (s StatusCode) IsTerminal() bool {
	switch s {
	case Succeeded, Failed, PartiallySucceeded, SkippedDueToDedup:
		return true
	}
	return false
}

// FailureStatusCode classifies a reported failure.
type FailureStatusCode string

const (
	// Unknown represents an undefined or unset failure state.
	Unknown FailureStatusCode = "Unknown"
	// Permanent represents a failure that will not benefit from a retry.
	Permanent FailureStatusCode = "Permanent"
	// Transient represents a retryable failure state.
	Transient FailureStatusCode = "Transient"
	// Exhausted represents a retryable failure that has used up all its
	// retry attempts.
	Exhausted FailureStatusCode = "Exhausted"
)

// BlobStatus is one per-blob record from a detailed status read.
type BlobStatus struct {
	// SourceID is the identifier the caller attached to the source.
	SourceID uuid.UUID `json:"sourceId"`
	// Status is the blob's current ingestion status.
	Status StatusCode `json:"status"`
	// StartedAt is when the service began processing the blob.
	StartedAt time.Time `json:"startedAt"`
	// LastUpdatedAt is when the record last changed.
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	// ErrorCode is set when the blob failed.
	ErrorCode string `json:"errorCode,omitempty"`
	// FailureStatus classifies a failure as transient or permanent.
	FailureStatus FailureStatusCode `json:"failureStatus,omitempty"`
	// Details carries the service's failure description.
	Details string `json:"details,omitempty"`
}

// String renders the record for diagnostics.
func (b BlobStatus) String() string {
	return fmt.Sprintf("SourceID: '%s', Status: '%s', FailureStatus: '%s', ErrorCode: '%s', Details: '%s'",
		b.SourceID, b.Status, b.FailureStatus, b.ErrorCode, b.Details)
}

// Summary is the aggregate form of a status read.
type Summary struct {
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	InProgress int `json:"inProgress"`
	Canceled   int `json:"canceled"`
}

// Response is the detailed form of a status read.
type Response struct {
	Records []BlobStatus `json:"records"`
}

// IsTerminal reports whether every record is terminal. An empty response is
// not terminal; the service has not seen the blobs yet.
func (r Response) IsTerminal() bool {
	if len(r.Records) == 0 {
		return false
	}
	for _, rec := range r.Records {
		if !rec.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// HasPermanentFailure reports whether any record carries a permanent failure.
func (r Response) HasPermanentFailure() bool {
	for _, rec := range r.Records {
		if rec.FailureStatus == Permanent || rec.FailureStatus == Exhausted {
			return true
		}
	}
	return false
}
