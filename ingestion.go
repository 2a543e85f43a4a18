package strataingest

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/stratalake/strata-ingest-go/errors"
	"github.com/stratalake/strata-ingest-go/internal/conn"
	"github.com/stratalake/strata-ingest-go/internal/queued"
	"github.com/stratalake/strata-ingest-go/internal/resources"
	"github.com/stratalake/strata-ingest-go/internal/retry"
	"github.com/stratalake/strata-ingest-go/internal/uploader"
)

// Ingestion is the queued ingestion client. Sources are staged in cloud
// storage and submitted to the cluster's data-management service as one job.
// It is safe for concurrent use.
type Ingestion struct {
	dm       *conn.DM
	cache    *resources.Cache
	uploader *uploader.Uploader
	engine   *queued.Ingestor

	// ownsStaging is false when the staging machinery was borrowed via
	// WithUploaderFrom; Close then leaves it running.
	ownsStaging bool
}

var _ Ingestor = (*Ingestion)(nil)

// New creates a queued ingestion client for the cluster at endpoint. The
// data-management host is derived by prefixing "ingest-" unless
// WithoutEndpointCorrection is set.
func New(endpoint string, cred azcore.TokenCredential, options ...ClientOption) (*Ingestion, error) {
	o := &clientOptions{}
	for _, opt := range options {
		opt(o)
	}

	dmEndpoint := endpoint
	if !o.noCorrection {
		var err error
		if dmEndpoint, err = addIngestPrefix(endpoint); err != nil {
			return nil, err
		}
	}

	dm, err := conn.NewDM(dmEndpoint, cred, o.httpClient)
	if err != nil {
		return nil, err
	}

	i := &Ingestion{dm: dm}
	if o.sharedFrom != nil {
		i.cache = o.sharedFrom.cache
		i.uploader = o.sharedFrom.uploader
	} else {
		retryOpts := []retry.Option{}
		if o.maxAttempts > 0 {
			retryOpts = append(retryOpts, retry.WithMaxAttempts(o.maxAttempts))
		}
		upOpts := []uploader.Option{}
		if o.maxConcurrency > 0 {
			upOpts = append(upOpts, uploader.WithParallelism(o.maxConcurrency))
		}

		i.cache = resources.New(dm)
		i.uploader = uploader.New(resources.NewDefaultRankedAccountSet(), retry.NewPolicy(retryOpts...), upOpts...)
		i.ownsStaging = true
	}
	i.engine = queued.New(dm, i.cache, i.uploader)
	return i, nil
}

// Ingest ingests one source into database.table.
func (i *Ingestion) Ingest(ctx context.Context, database, table string, source Source, options ...Option) (*Operation, error) {
	return i.IngestMany(ctx, database, table, []Source{source}, options...)
}

// IngestMany ingests the sources as a single job, preserving their order in
// the submitted descriptor. Local sources are staged first, concurrently; if
// any staging fails, nothing is submitted.
func (i *Ingestion) IngestMany(ctx context.Context, database, table string, sources []Source, options ...Option) (*Operation, error) {
	ctx = withLogger(ctx)
	o := buildOptions(options)

	items := make([]queued.Item, len(sources))
	for idx, src := range sources {
		item, err := queuedItem(src, database, table, o)
		if err != nil {
			return nil, err
		}
		items[idx] = item
	}

	opID, err := i.engine.IngestSources(ctx, items, o.method, o.properties(database, table))
	if err != nil {
		return nil, err
	}
	return &Operation{ID: opID, Database: database, Table: table, Kind: KindQueued}, nil
}

// queuedItem converts a public Source into the engine's batch entry.
func queuedItem(src Source, database, table string, o *ingestOptions) (queued.Item, error) {
	switch src.kind {
	case kindBlob:
		return queued.Item{Blob: &queued.Blob{
			URL:      src.blobURL,
			SourceID: src.id,
			RawSize:  src.size,
			Format:   src.format,
		}}, nil

	case kindFile, kindReader:
		local := &uploader.Local{
			Database:        database,
			Table:           table,
			FilePath:        src.path,
			Reader:          src.reader,
			OriginalName:    src.name,
			Format:          src.format,
			Compression:     src.compression,
			DontCompress:    src.dontCompress,
			IgnoreSizeLimit: o.ingestion.IgnoreSizeLimit,
			SourceID:        src.id,
			Size:            src.size,
		}
		return queued.Item{Local: local}, nil

	default:
		return queued.Item{}, errors.ES(errors.OpIngestQueued, errors.KClientArgs,
			"a source must be built with FileSource, ReaderSource, or BlobSource").
			SetNoRetry().SetCode(errors.UnsupportedSourceKind)
	}
}

// OperationSummary reads the aggregate status of op. Streaming operations
// have no server-side tracking; their summary is empty.
func (i *Ingestion) OperationSummary(ctx context.Context, op *Operation) (StatusSummary, error) {
	if err := checkOperation(op); err != nil {
		return StatusSummary{}, err
	}
	if op.Kind != KindQueued {
		return StatusSummary{}, nil
	}
	return i.engine.OperationSummary(withLogger(ctx), op.Database, op.Table, op.ID)
}

// OperationDetails reads the per-blob status records of op. Streaming
// operations have no server-side tracking; their record set is empty.
func (i *Ingestion) OperationDetails(ctx context.Context, op *Operation) (StatusResponse, error) {
	if err := checkOperation(op); err != nil {
		return StatusResponse{}, err
	}
	if op.Kind != KindQueued {
		return StatusResponse{}, nil
	}
	return i.engine.OperationDetails(withLogger(ctx), op.Database, op.Table, op.ID)
}

// PollUntilCompletion re-reads op until every blob reaches a terminal state,
// the timeout lapses, or ctx is done. Zero interval and timeout select
// DefaultPollInterval and DefaultPollTimeout. Transient status-read failures
// do not end the poll.
func (i *Ingestion) PollUntilCompletion(ctx context.Context, op *Operation, interval, timeout time.Duration) (StatusResponse, error) {
	if err := checkOperation(op); err != nil {
		return StatusResponse{}, err
	}
	if op.Kind != KindQueued {
		return StatusResponse{}, nil
	}
	return i.engine.PollUntilCompletion(withLogger(ctx), op.Database, op.Table, op.ID, interval, timeout)
}

func checkOperation(op *Operation) error {
	if op == nil || op.ID == "" {
		return errors.ES(errors.OpStatus, errors.KClientArgs, "a valid operation is required").SetNoRetry()
	}
	return nil
}

// Close releases the client's background refresh loops. Borrowed staging
// machinery (WithUploaderFrom) is left running for its owner.
func (i *Ingestion) Close() error {
	if !i.ownsStaging {
		return nil
	}
	return i.cache.Close()
}

// Poll defaults used when PollUntilCompletion gets zero values.
const (
	DefaultPollInterval = queued.DefaultPollInterval
	DefaultPollTimeout  = queued.DefaultPollTimeout
)
