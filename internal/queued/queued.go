// Package queued implements queued ingestion: sources are staged into cloud
// storage, a job descriptor referencing them is posted to the
// data-management service, and the operation's progress can be polled.
package queued

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/stratalake/strata-ingest-go/errors"
	"github.com/stratalake/strata-ingest-go/internal/conn"
	"github.com/stratalake/strata-ingest-go/internal/properties"
	"github.com/stratalake/strata-ingest-go/internal/resources"
	"github.com/stratalake/strata-ingest-go/internal/status"
	"github.com/stratalake/strata-ingest-go/internal/uploader"
)

const (
	// DefaultPollInterval is how often a tracked operation is re-read.
	DefaultPollInterval = 30 * time.Second
	// DefaultPollTimeout bounds how long PollUntilCompletion waits for the
	// operation to reach a terminal state.
	DefaultPollTimeout = 5 * time.Minute
)

// Blob is one staged blob reference submitted as part of a job.
type Blob struct {
	// URL is the blob URL, credential included.
	URL string
	// SourceID ties the blob to the caller's source. A zero ID is replaced.
	SourceID uuid.UUID
	// RawSize is the uncompressed source size, 0 when unknown.
	RawSize int64
	// Format is the blob's data format. Discovered from the URL when unset.
	Format properties.DataFormat
}

// stager stages local sources into staging storage. Satisfied by
// uploader.Uploader; replaced in tests.
type stager interface {
	UploadMany(ctx context.Context, snap resources.Snapshot, method string, sources []uploader.Local) ([]uploader.Result, []error)
}

// Ingestor is the queued ingestion engine.
type Ingestor struct {
	dm    *conn.DM
	cache *resources.Cache
	up    stager
	now   func() time.Time
}

// New creates a queued Ingestor over the given data-management connection,
// resource cache, and uploader.
func New(dm *conn.DM, cache *resources.Cache, up *uploader.Uploader) *Ingestor {
	return &Ingestor{dm: dm, cache: cache, up: up, now: time.Now}
}

// Item is one entry in a queued batch: an already-staged blob or a local
// source that still needs staging. Exactly one field is set.
type Item struct {
	Blob  *Blob
	Local *uploader.Local
}

// IngestSources stages the batch's local entries concurrently and submits
// one job referencing every entry, preserving the caller's order. If any
// staging fails, nothing is submitted. Returns the service-assigned
// operation ID.
func (q *Ingestor) IngestSources(ctx context.Context, items []Item, method string, props properties.All) (string, error) {
	op := errors.OpIngestQueued

	if len(items) == 0 {
		return "", errors.ES(op, errors.KClientArgs, "no sources were provided").
			SetNoRetry().SetCode(errors.SourceEmpty)
	}

	snap, err := q.cache.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if len(items) > snap.BatchLimit() {
		return "", errors.ES(
			op, errors.KLimitsExceeded,
			"%d sources exceed the %d blob batch limit", len(items), snap.BatchLimit(),
		).SetNoRetry().SetCode(errors.MultiIngestExceededLimit)
	}

	// Split the batch: blobs keep their slot, locals are staged and put back
	// into the slots they came from.
	blobs := make([]Blob, len(items))
	var locals []uploader.Local
	var localSlots []int
	for i, item := range items {
		switch {
		case item.Blob != nil && item.Local == nil:
			blobs[i] = *item.Blob
		case item.Local != nil && item.Blob == nil:
			locals = append(locals, *item.Local)
			localSlots = append(localSlots, i)
		default:
			return "", errors.ES(op, errors.KClientArgs,
				"batch entry %d does not name exactly one source", i).
				SetNoRetry().SetCode(errors.UnsupportedSourceKind)
		}
	}

	if len(locals) > 0 {
		results, errs := q.up.UploadMany(ctx, snap, method, locals)

		failed := lo.Filter(errs, func(e error, _ int) bool { return e != nil })
		if len(failed) > 0 {
			outer := errors.ES(op, errors.KBlobstore,
				"staging failed for %d of %d sources", len(failed), len(locals))
			if first := errors.GetIngestError(failed[0]); first != nil {
				return "", errors.W(first, outer)
			}
			return "", outer
		}

		for j, res := range results {
			blobs[localSlots[j]] = Blob{
				URL:      res.BlobPath,
				SourceID: res.SourceID,
				RawSize:  res.RawSize,
				Format:   locals[j].Format,
			}
		}
	}

	return q.IngestBlobs(ctx, blobs, props)
}

// IngestBlobs submits one job referencing already-staged blobs. The blobs
// must share a single data format and must be distinct. Tracking-enabled
// jobs need the service to advertise a status table.
func (q *Ingestor) IngestBlobs(ctx context.Context, blobs []Blob, props properties.All) (string, error) {
	if err := props.Validate(); err != nil {
		return "", err
	}

	snap, err := q.cache.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if props.Ingestion.EnableTracking {
		if _, err := snap.StatusTable(); err != nil {
			return "", err
		}
	}

	format, err := validateBlobs(blobs, props.Ingestion.Format, snap.BatchLimit())
	if err != nil {
		return "", err
	}

	descriptors := make([]properties.BlobDescriptor, len(blobs))
	for i := range blobs {
		if blobs[i].SourceID == uuid.Nil {
			blobs[i].SourceID = uuid.New()
		}
		descriptors[i] = properties.BlobDescriptor{
			BlobPath: blobs[i].URL,
			SourceID: blobs[i].SourceID,
			RawSize:  blobs[i].RawSize,
		}
	}

	ingestion := props.Ingestion
	ingestion.Format = format

	job := properties.Job{
		Timestamp:  q.now().UTC(),
		Database:   props.Database,
		Table:      props.Table,
		Blobs:      descriptors,
		Properties: ingestion,
	}

	opID, err := q.dm.PostQueuedIngest(ctx, job, props.ClientRequestID)
	if err != nil {
		return "", err
	}
	zerolog.Ctx(ctx).Info().
		Str("operationId", opID).
		Str("db", props.Database).
		Str("table", props.Table).
		Int("blobs", len(blobs)).
		Msg("queued ingest accepted")
	return opID, nil
}

// validateBlobs enforces the batch invariants and resolves the job's single
// data format.
func validateBlobs(blobs []Blob, jobFormat properties.DataFormat, batchLimit int) (properties.DataFormat, error) {
	op := errors.OpIngestQueued

	if len(blobs) == 0 {
		return 0, errors.ES(op, errors.KClientArgs, "no blobs were provided").
			SetNoRetry().SetCode(errors.SourceEmpty)
	}
	if len(blobs) > batchLimit {
		return 0, errors.ES(
			op, errors.KLimitsExceeded,
			"%d blobs exceed the %d blob batch limit", len(blobs), batchLimit,
		).SetNoRetry().SetCode(errors.MultiIngestExceededLimit)
	}

	// One job carries one format. Blobs that do not state one fall back to
	// extension discovery, then to the job-level format.
	format := jobFormat
	for i, b := range blobs {
		bf := b.Format
		if bf == properties.DFUnknown {
			bf = properties.DataFormatDiscovery(b.URL)
		}
		if bf == properties.DFUnknown {
			bf = jobFormat
		}
		if bf == properties.DFUnknown {
			bf = properties.CSV
		}
		if format == properties.DFUnknown {
			format = bf
		}
		if bf != format {
			return 0, errors.ES(
				op, errors.KClientArgs,
				"blob %d has format %s while the job format is %s; one job carries one format",
				i, bf, format,
			).SetNoRetry().SetCode(errors.FormatMismatch)
		}
	}

	// The same blob submitted twice would be ingested twice.
	seen := map[string][]uuid.UUID{}
	for _, b := range blobs {
		key := errors.ScrubURL(b.URL)
		seen[key] = append(seen[key], b.SourceID)
	}
	var dups []string
	for key, ids := range seen {
		if len(ids) < 2 {
			continue
		}
		rendered := lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() })
		dups = append(dups, fmt.Sprintf("%s (sourceIds: %s)", key, strings.Join(rendered, ", ")))
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return 0, errors.ES(
			op, errors.KClientArgs,
			"the same blob appears more than once in the batch: %s", strings.Join(dups, "; "),
		).SetNoRetry().SetCode(errors.DuplicateBlob)
	}

	return format, nil
}

// OperationSummary reads the aggregate status of a queued operation.
func (q *Ingestor) OperationSummary(ctx context.Context, db, table, operationID string) (status.Summary, error) {
	return q.dm.StatusSummary(ctx, db, table, operationID)
}

// OperationDetails reads the per-blob status records of a queued operation.
func (q *Ingestor) OperationDetails(ctx context.Context, db, table, operationID string) (status.Response, error) {
	return q.dm.StatusDetails(ctx, db, table, operationID)
}

// PollUntilCompletion re-reads the operation until every blob reaches a
// terminal state. Transient read failures are tolerated; the poll keeps
// going. On timeout or cancellation the last observed snapshot is returned
// alongside the error.
func (q *Ingestor) PollUntilCompletion(ctx context.Context, db, table, operationID string, interval, timeout time.Duration) (status.Response, error) {
	op := errors.OpStatus

	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	logger := zerolog.Ctx(ctx).With().
		Str("function", "PollUntilCompletion").
		Str("operationId", operationID).
		Logger()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	var last status.Response
	for {
		resp, err := q.OperationDetails(ctx, db, table, operationID)
		switch {
		case err == nil:
			last = resp
			if resp.IsTerminal() {
				return resp, nil
			}
		case !errors.Retry(err):
			return last, err
		default:
			logger.Warn().Err(err).Msg("status read failed, will retry")
		}

		select {
		case <-ctx.Done():
			return last, errors.E(op, errors.KCancelled, ctx.Err()).SetCode(errors.Cancelled)
		case <-deadline.C:
			return last, errors.ES(
				op, errors.KTimeout,
				"operation %s did not complete within %s", operationID, timeout,
			).SetCode(errors.OperationTimeout)
		case <-tick.C:
		}
	}
}
