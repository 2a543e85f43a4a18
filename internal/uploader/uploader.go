// Package uploader stages local data into the service's staging storage,
// preferring healthy storage accounts and retrying transient failures.
package uploader

import (
	"context"
	stderrors "errors"
	"io"
	"net/url"
	"os"
	"path"
	"runtime"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	lakefile "github.com/Azure/azure-sdk-for-go/sdk/storage/azdatalake/file"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stratalake/strata-ingest-go/errors"
	"github.com/stratalake/strata-ingest-go/internal/properties"
	"github.com/stratalake/strata-ingest-go/internal/resources"
	"github.com/stratalake/strata-ingest-go/internal/retry"
)

const (
	// BlockSize is the size of a single upload block.
	BlockSize = 8 * 1024 * 1024 // 8 MiB
	// Concurrency is the per-upload block parallelism.
	Concurrency = 50
	// DefaultTimeout bounds a single staging upload.
	DefaultTimeout = 1 * time.Hour
	// DefaultParallelism bounds how many sources UploadMany stages at once.
	DefaultParallelism = 8
	// MaxSourceSize is the largest source accepted for staging unless the
	// caller sets IgnoreSizeLimit.
	MaxSourceSize = 4 * 1024 * 1024 * 1024 // 4 GiB
)

// Upload methods. The service may state a preference; a per-call override
// wins over it.
const (
	MethodStorage = "storage"
	MethodLake    = "lake"
)

// Local describes one local source to stage: either a file path or a reader,
// never both.
type Local struct {
	Database string
	Table    string

	// FilePath is the local file to stage. Empty for reader sources.
	FilePath string
	// Reader is the stream to stage. Nil for file sources.
	Reader io.Reader

	// OriginalName is used for blob naming. Defaults to FilePath's base.
	OriginalName string

	Format      properties.DataFormat
	Compression properties.CompressionType

	// DontCompress suppresses gzip even for compressible formats.
	DontCompress bool
	// IgnoreSizeLimit admits sources larger than MaxSourceSize.
	IgnoreSizeLimit bool

	SourceID uuid.UUID
	// Size is the caller-declared raw size, 0 when unknown.
	Size int64
}

// Result describes one staged blob.
type Result struct {
	// BlobPath is the staged blob URL, credential included.
	BlobPath string
	// RawSize is the uncompressed source size in bytes.
	RawSize int64
	// SourceID ties the blob back to the source.
	SourceID uuid.UUID
}

// Uploader stages sources into staging storage. It is safe for concurrent
// use.
type Uploader struct {
	ranker      *resources.RankedAccountSet
	policy      retry.Policy
	timeout     time.Duration
	parallelism int

	// Replaced in tests to avoid network traffic.
	uploadBlobStream func(ctx context.Context, from io.Reader, client *azblob.Client, container, blob string, o *azblob.UploadStreamOptions) error
	uploadBlobFile   func(ctx context.Context, from *os.File, client *azblob.Client, container, blob string, o *azblob.UploadFileOptions) error
	uploadLakeStream func(ctx context.Context, from io.Reader, client *lakefile.Client, o *lakefile.UploadStreamOptions) error
	uploadLakeFile   func(ctx context.Context, from *os.File, client *lakefile.Client, o *lakefile.UploadFileOptions) error
	sleep            func(ctx context.Context, d time.Duration) error
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithTimeout bounds each staging upload.
func WithTimeout(d time.Duration) Option {
	return func(u *Uploader) {
		u.timeout = d
	}
}

// WithParallelism bounds how many sources UploadMany stages at once.
func WithParallelism(n int) Option {
	return func(u *Uploader) {
		u.parallelism = n
	}
}

// New creates an Uploader that ranks accounts with ranker and retries per
// policy.
func New(ranker *resources.RankedAccountSet, policy retry.Policy, options ...Option) *Uploader {
	u := &Uploader{
		ranker:      ranker,
		policy:      policy,
		timeout:     DefaultTimeout,
		parallelism: DefaultParallelism,

		uploadBlobStream: func(ctx context.Context, from io.Reader, client *azblob.Client, container, blob string, o *azblob.UploadStreamOptions) error {
			_, err := client.UploadStream(ctx, container, blob, from, o)
			return err
		},
		uploadBlobFile: func(ctx context.Context, from *os.File, client *azblob.Client, container, blob string, o *azblob.UploadFileOptions) error {
			_, err := client.UploadFile(ctx, container, blob, from, o)
			return err
		},
		uploadLakeStream: func(ctx context.Context, from io.Reader, client *lakefile.Client, o *lakefile.UploadStreamOptions) error {
			return client.UploadStream(ctx, from, o)
		},
		uploadLakeFile: func(ctx context.Context, from *os.File, client *lakefile.Client, o *lakefile.UploadFileOptions) error {
			return client.UploadFile(ctx, from, o)
		},
		sleep: func(ctx context.Context, d time.Duration) error {
			if d <= 0 {
				return ctx.Err()
			}
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
	for _, opt := range options {
		opt(u)
	}
	return u
}

// Upload stages one source, cycling through staging targets in rank order
// until an attempt succeeds, a permanent error occurs, or the retry policy
// is exhausted.
func (u *Uploader) Upload(ctx context.Context, snap resources.Snapshot, method string, src Local) (Result, error) {
	op := errors.OpUpload

	if err := u.validate(&src); err != nil {
		return Result{}, err
	}

	method, targets, err := u.targets(snap, method)
	if err != nil {
		return Result{}, err
	}

	logger := zerolog.Ctx(ctx).With().
		Str("function", "Upload").
		Str("sourceId", src.SourceID.String()).
		Str("method", method).
		Logger()

	// A reader source is consumed by its first attempt; only file sources
	// can be replayed.
	replayable := src.FilePath != ""

	var lastErr *errors.Error
	seq := u.policy.Start()
	for i := 0; ; i++ {
		target := targets[i%len(targets)]
		res, err := u.attempt(ctx, target, method, &src)
		if err == nil {
			u.ranker.AddResult(target.Account(), true)
			return res, nil
		}
		u.ranker.AddResult(target.Account(), false)
		lastErr = wrapUploadErr(err, target)
		logger.Warn().Err(lastErr).Str("account", target.Account()).Int("attempt", seq.Attempt()).Msg("staging attempt failed")

		if !errors.Retry(lastErr) {
			return Result{}, lastErr
		}
		if !replayable {
			return Result{}, errors.W(lastErr, errors.ES(
				op, errors.KBlobstore,
				"staging source %s cannot be retried, its reader was consumed", src.SourceID,
			).SetCode(errors.UploadFailed))
		}
		again, wait := seq.MoveNext()
		if !again {
			break
		}
		if err := u.sleep(ctx, wait); err != nil {
			return Result{}, cancelErr(op, err)
		}
	}

	return Result{}, errors.W(lastErr, errors.ES(
		op, errors.KBlobstore,
		"staging source %s failed after %d attempts", src.SourceID, seq.Attempt(),
	).SetCode(errors.UploadFailed))
}

// UploadMany stages sources concurrently, preserving input order in the
// returned slices. A permanent failure cancels the sources still pending.
func (u *Uploader) UploadMany(ctx context.Context, snap resources.Snapshot, method string, sources []Local) ([]Result, []error) {
	results := make([]Result, len(sources))
	errs := make([]error, len(sources))

	limit := u.parallelism
	if procs := runtime.GOMAXPROCS(0); procs < limit {
		limit = procs
	}
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range sources {
		i := i
		g.Go(func() error {
			res, err := u.Upload(gctx, snap, method, sources[i])
			if err != nil {
				errs[i] = err
				if !errors.Retry(err) {
					// Cancel what is still pending; the batch cannot be
					// submitted anyway.
					return err
				}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	g.Wait() //nolint:errcheck // per-source errors carry the outcome

	return results, errs
}

func (u *Uploader) validate(src *Local) error {
	op := errors.OpUpload

	switch {
	case src.FilePath != "" && src.Reader != nil:
		return errors.ES(op, errors.KClientArgs, "a source cannot have both a file path and a reader").SetNoRetry()
	case src.FilePath == "" && src.Reader == nil:
		return errors.ES(op, errors.KClientArgs, "a source needs a file path or a reader").
			SetNoRetry().SetCode(errors.SourceEmpty)
	}
	if src.SourceID == uuid.Nil {
		src.SourceID = uuid.New()
	}

	if src.FilePath == "" {
		return nil
	}
	if src.OriginalName == "" {
		src.OriginalName = src.FilePath
	}

	stat, err := os.Stat(src.FilePath)
	if err != nil {
		return errors.ES(op, errors.KLocalFileSystem, "source file %s is not readable: %s", src.FilePath, err).
			SetNoRetry().SetCode(errors.SourceNotReadable)
	}
	if stat.IsDir() {
		return errors.ES(op, errors.KLocalFileSystem, "source %s is a directory", src.FilePath).
			SetNoRetry().SetCode(errors.SourceNotReadable)
	}
	if stat.Size() == 0 {
		return errors.ES(op, errors.KClientArgs, "source file %s is empty", src.FilePath).
			SetNoRetry().SetCode(errors.SourceEmpty)
	}
	if stat.Size() > MaxSourceSize && !src.IgnoreSizeLimit {
		return errors.ES(
			op, errors.KLimitsExceeded,
			"source file %s is %d bytes, over the %d byte staging limit", src.FilePath, stat.Size(), int64(MaxSourceSize),
		).SetNoRetry().SetCode(errors.SourceSizeLimitExceeded)
	}
	if src.Size == 0 {
		src.Size = stat.Size()
	}
	return nil
}

// targets resolves the effective upload method and returns that method's
// staging URIs in rank order.
func (u *Uploader) targets(snap resources.Snapshot, method string) (string, []*resources.URI, error) {
	if method == "" {
		method = snap.PreferredUploadMethod
	}
	if method == "" {
		method = MethodStorage
	}

	pool := snap.Containers
	if method == MethodLake {
		pool = snap.LakeFolders
	}
	// Fall back to the other storage kind rather than failing a staging-less
	// snapshot outright.
	if len(pool) == 0 {
		if method == MethodLake && len(snap.Containers) > 0 {
			method, pool = MethodStorage, snap.Containers
		} else if method == MethodStorage && len(snap.LakeFolders) > 0 {
			method, pool = MethodLake, snap.LakeFolders
		}
	}
	if len(pool) == 0 {
		return "", nil, errors.ES(errors.OpUpload, errors.KNoResource,
			"ingestion resources do not include any staging storage").SetNoRetry().SetCode(errors.NoContainers)
	}

	for _, target := range pool {
		u.ranker.Register(target.Account())
	}
	byAccount := map[string][]*resources.URI{}
	for _, target := range pool {
		byAccount[target.Account()] = append(byAccount[target.Account()], target)
	}

	ordered := make([]*resources.URI, 0, len(pool))
	for _, account := range u.ranker.RankedShuffled() {
		ordered = append(ordered, byAccount[account]...)
		delete(byAccount, account)
	}
	// Accounts the ranker does not know about yet go last.
	for _, rest := range byAccount {
		ordered = append(ordered, rest...)
	}
	return method, ordered, nil
}

// attempt performs one upload of src to target and returns the staged blob.
func (u *Uploader) attempt(ctx context.Context, target *resources.URI, method string, src *Local) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	comp := ForSource(src.Format, src.Compression, src.DontCompress)
	name := blobName(src.Database, src.Table, src.OriginalName, src.SourceID, src.Format, comp.Encoding())

	var body io.Reader
	var file *os.File
	rawSize := src.Size

	if src.FilePath != "" {
		f, err := os.Open(src.FilePath)
		if err != nil {
			return Result{}, errors.ES(errors.OpUpload, errors.KLocalFileSystem,
				"source file %s is not readable: %s", src.FilePath, err).SetNoRetry().SetCode(errors.SourceNotReadable)
		}
		defer f.Close()
		if _, ok := comp.(*passthrough); ok {
			// Already-compressed or binary files go up as-is; the SDK can
			// parallelize blocks when it has the whole file.
			file = f
		} else {
			body = comp.Wrap(f)
		}
	} else {
		body = comp.Wrap(src.Reader)
	}

	var err error
	if method == MethodLake {
		err = u.attemptLake(ctx, target, name, body, file)
	} else {
		err = u.attemptStorage(ctx, target, name, body, file)
	}
	if err != nil {
		return Result{}, err
	}

	if body != nil {
		if measured := comp.InputSize(); measured > 0 {
			rawSize = measured
		}
	}
	if rawSize == 0 && file == nil {
		return Result{}, errors.ES(errors.OpUpload, errors.KClientArgs,
			"source %s yielded no data", src.SourceID).SetNoRetry().SetCode(errors.SourceEmpty)
	}

	blob := *target.URL()
	blob.Path = path.Join(blob.Path, name)
	return Result{BlobPath: blob.String(), RawSize: rawSize, SourceID: src.SourceID}, nil
}

func (u *Uploader) attemptStorage(ctx context.Context, target *resources.URI, name string, body io.Reader, file *os.File) error {
	serviceURL := url.URL{
		Scheme:   target.URL().Scheme,
		Host:     target.URL().Host,
		RawQuery: target.SAS().Encode(),
	}
	client, err := azblob.NewClientWithNoCredential(serviceURL.String(), nil)
	if err != nil {
		return errors.E(errors.OpUpload, errors.KBlobstore, err).SetNoRetry()
	}

	if file != nil {
		return u.uploadBlobFile(ctx, file, client, target.ObjectName(), name, &azblob.UploadFileOptions{
			BlockSize:   BlockSize,
			Concurrency: Concurrency,
		})
	}
	return u.uploadBlobStream(ctx, body, client, target.ObjectName(), name, &azblob.UploadStreamOptions{
		BlockSize:   BlockSize,
		Concurrency: Concurrency,
	})
}

func (u *Uploader) attemptLake(ctx context.Context, target *resources.URI, name string, body io.Reader, file *os.File) error {
	fileURL := *target.URL()
	fileURL.Path = path.Join(fileURL.Path, name)
	client, err := lakefile.NewClientWithNoCredential(fileURL.String(), nil)
	if err != nil {
		return errors.E(errors.OpUpload, errors.KBlobstore, err).SetNoRetry()
	}

	if file != nil {
		return u.uploadLakeFile(ctx, file, client, &lakefile.UploadFileOptions{
			ChunkSize:   BlockSize,
			Concurrency: Concurrency,
		})
	}
	return u.uploadLakeStream(ctx, body, client, &lakefile.UploadStreamOptions{
		ChunkSize:   BlockSize,
		Concurrency: Concurrency,
	})
}

// wrapUploadErr classifies a storage SDK error. Service rejections in the
// 4xx range, save for timeouts and throttling, will not improve on retry.
func wrapUploadErr(err error, target *resources.URI) *errors.Error {
	if e := errors.GetIngestError(err); e != nil {
		return e
	}

	var respErr *azcore.ResponseError
	if stderrors.As(err, &respErr) {
		e := errors.ES(errors.OpUpload, errors.KBlobstore,
			"upload to %s was rejected: %s (HTTP %d)", target.SafeString(), respErr.ErrorCode, respErr.StatusCode)
		switch {
		case respErr.StatusCode == 404, respErr.StatusCode == 408, respErr.StatusCode == 429:
		case respErr.StatusCode >= 400 && respErr.StatusCode < 500:
			e.SetNoRetry()
		}
		return e
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return cancelErr(errors.OpUpload, err)
	}
	return errors.ES(errors.OpUpload, errors.KBlobstore, "upload to %s failed: %s", target.SafeString(), err)
}

func cancelErr(op errors.Op, err error) *errors.Error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.E(op, errors.KTimeout, err).SetCode(errors.OperationTimeout)
	}
	return errors.E(op, errors.KCancelled, err).SetCode(errors.Cancelled)
}
