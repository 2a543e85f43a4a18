package strataingest

import (
	"context"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/stratalake/strata-ingest-go/errors"
	"github.com/stratalake/strata-ingest-go/internal/conn"
	"github.com/stratalake/strata-ingest-go/internal/properties"
)

// Streaming is the streaming ingestion client. Payloads go straight to the
// engine and become queryable within seconds, at the cost of a per-request
// size bound. It is safe for concurrent use.
type Streaming struct {
	conn *conn.Conn
}

var _ Ingestor = (*Streaming)(nil)

// NewStreaming creates a streaming client for the cluster at endpoint. A
// data-management ("ingest-") host is corrected back to the engine host
// unless WithoutEndpointCorrection is set.
func NewStreaming(endpoint string, cred azcore.TokenCredential, options ...ClientOption) (*Streaming, error) {
	o := &clientOptions{}
	for _, opt := range options {
		opt(o)
	}

	engineEndpoint := endpoint
	if !o.noCorrection {
		var err error
		if engineEndpoint, err = removeIngestPrefix(endpoint); err != nil {
			return nil, err
		}
	}

	c, err := conn.New(engineEndpoint, cred, o.httpClient)
	if err != nil {
		return nil, err
	}
	return &Streaming{conn: c}, nil
}

// Ingest posts one source to the engine. Local sources are size checked
// against the per-format streaming bound before any bytes are transmitted;
// oversized sources fail with RequestTooLarge and belong on the queued path.
func (s *Streaming) Ingest(ctx context.Context, database, table string, source Source, options ...Option) (*Operation, error) {
	ctx = withLogger(ctx)
	op := errors.OpIngestStream
	o := buildOptions(options)

	props := o.properties(database, table)
	props.Source = properties.SourceOptions{
		ID:           source.id,
		OriginalName: source.name,
		DontCompress: source.dontCompress,
		Size:         source.size,
	}
	if err := props.Validate(); err != nil {
		return nil, err
	}

	format := source.format
	if o.ingestion.Format != DFUnknown {
		format = o.ingestion.Format
	}

	payload := conn.Payload{Format: format, Compression: source.compression}
	switch source.kind {
	case kindBlob:
		payload.BlobURL = source.blobURL

	case kindFile:
		stat, err := os.Stat(source.path)
		if err != nil {
			return nil, errors.ES(op, errors.KLocalFileSystem, "source file %s is not readable: %s", source.path, err).
				SetNoRetry().SetCode(errors.SourceNotReadable)
		}
		if stat.Size() == 0 {
			return nil, errors.ES(op, errors.KClientArgs, "source file %s is empty", source.path).
				SetNoRetry().SetCode(errors.SourceEmpty)
		}
		f, err := os.Open(source.path)
		if err != nil {
			return nil, errors.ES(op, errors.KLocalFileSystem, "source file %s is not readable: %s", source.path, err).
				SetNoRetry().SetCode(errors.SourceNotReadable)
		}
		defer f.Close()
		payload.Reader = f

	case kindReader:
		if source.reader == nil {
			return nil, errors.ES(op, errors.KClientArgs, "reader source has a nil reader").
				SetNoRetry().SetCode(errors.SourceEmpty)
		}
		payload.Reader = source.reader

	default:
		return nil, errors.ES(op, errors.KClientArgs,
			"a source must be built with FileSource, ReaderSource, or BlobSource").
			SetNoRetry().SetCode(errors.UnsupportedSourceKind)
	}

	if payload.Reader != nil {
		payload.Compress = !source.dontCompress && source.compression == CTNone && format.Compressible()
	}

	err := s.conn.StreamIngest(ctx, database, table, payload, o.ingestion.IngestionMappingRef, props.ClientRequestID)
	if err != nil {
		return nil, err
	}
	return &Operation{
		ID:       props.Source.ID.String(),
		Database: database,
		Table:    table,
		Kind:     KindStreaming,
	}, nil
}

// IngestMany accepts exactly one source; streaming requests carry a single
// payload. Batches belong on the queued client.
func (s *Streaming) IngestMany(ctx context.Context, database, table string, sources []Source, options ...Option) (*Operation, error) {
	if len(sources) != 1 {
		return nil, errors.ES(errors.OpIngestStream, errors.KClientArgs,
			"the streaming client ingests one source per call, got %d", len(sources)).SetNoRetry()
	}
	return s.Ingest(ctx, database, table, sources[0], options...)
}

// OperationSummary implements Ingestor. Streaming operations have no
// server-side tracking; the summary is always empty.
func (s *Streaming) OperationSummary(ctx context.Context, op *Operation) (StatusSummary, error) {
	if op == nil {
		return StatusSummary{}, errors.ES(errors.OpStatus, errors.KClientArgs, "a valid operation is required").SetNoRetry()
	}
	return StatusSummary{}, nil
}

// OperationDetails implements Ingestor. The record set is always empty.
func (s *Streaming) OperationDetails(ctx context.Context, op *Operation) (StatusResponse, error) {
	if op == nil {
		return StatusResponse{}, errors.ES(errors.OpStatus, errors.KClientArgs, "a valid operation is required").SetNoRetry()
	}
	return StatusResponse{}, nil
}

// PollUntilCompletion implements Ingestor. A streaming operation is complete
// once Ingest returns, so this returns immediately.
func (s *Streaming) PollUntilCompletion(ctx context.Context, op *Operation, interval, timeout time.Duration) (StatusResponse, error) {
	return s.OperationDetails(ctx, op)
}

// Close implements io.Closer. The streaming client holds no background
// resources.
func (s *Streaming) Close() error {
	return nil
}
