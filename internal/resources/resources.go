// Package resources discovers and caches the ingest resources the service
// advertises: staging containers and lake folders, ingestion queues, the
// status table, and the per-tenant ingestion authorization token.
package resources

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/stratalake/strata-ingest-go/errors"
)

const (
	// DefaultRefreshInterval is how long a successfully fetched section is
	// considered fresh.
	DefaultRefreshInterval = 1 * time.Hour
	// FailureRefreshInterval is how soon a refresh is retried after a
	// failed fetch.
	FailureRefreshInterval = 15 * time.Minute
	// DefaultMaxBlobsPerBatch bounds one queued ingest job when the service
	// does not advertise a limit.
	DefaultMaxBlobsPerBatch = 500
)

// Ingest holds the service-advertised ingest resources, minus the token.
type Ingest struct {
	// Containers are the writable blob staging containers.
	Containers []*URI
	// LakeFolders are the writable data lake staging folders.
	LakeFolders []*URI
	// Queues are the ingestion queues. Carried for completeness; the queued
	// engine posts job descriptors over REST.
	Queues []*URI
	// StatusTables are the per-blob status tables.
	StatusTables []*URI
	// PreferredUploadMethod is "storage" or "lake" when the service states
	// a preference, otherwise "".
	PreferredUploadMethod string
	// MaxBlobsPerBatch is the advertised batch cap, 0 when absent.
	MaxBlobsPerBatch int
}

// Snapshot is one coherent view of the cached configuration.
type Snapshot struct {
	Ingest
	// AuthToken is the per-tenant ingestion authorization token.
	AuthToken string
}

// StatusTable returns the status table resource, or a NoStatusTable error.
func (s Snapshot) StatusTable() (*URI, error) {
	if len(s.StatusTables) == 0 {
		return nil, errors.ES(errors.OpResources, errors.KNoResource,
			"ingestion resources do not include a status table").SetNoRetry().SetCode(errors.NoStatusTable)
	}
	return s.StatusTables[0], nil
}

// BatchLimit returns the effective per-job blob cap.
func (s Snapshot) BatchLimit() int {
	if s.MaxBlobsPerBatch > 0 {
		return s.MaxBlobsPerBatch
	}
	return DefaultMaxBlobsPerBatch
}

// Fetcher retrieves the two sections of the configuration from the service.
type Fetcher interface {
	FetchResources(ctx context.Context) (Ingest, error)
	FetchAuthToken(ctx context.Context) (string, error)
}

// section is one independently refreshed part of the cache: a value swapped
// atomically as a whole, a single-writer lock, and a refresh deadline.
type section[T any] struct {
	value  atomic.Pointer[T]
	mu     sync.Mutex
	expiry atomic.Int64 // unix nanos
}

func (s *section[T]) fresh(now time.Time) bool {
	return s.value.Load() != nil && now.UnixNano() < s.expiry.Load()
}

// Cache caches the ingest configuration, refreshing each section on its own
// schedule. Readers always observe a previously completed snapshot; a
// refresh never blocks them.
type Cache struct {
	fetcher Fetcher

	resources section[Ingest]
	token     section[string]

	refreshInterval time.Duration
	failureInterval time.Duration
	now             func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Cache.
type Option func(*Cache)

// WithRefreshIntervals overrides the success and failure refresh intervals.
func WithRefreshIntervals(success, failure time.Duration) Option {
	return func(c *Cache) {
		c.refreshInterval = success
		c.failureInterval = failure
	}
}

// withNow overrides the clock for tests.
func withNow(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a Cache over fetcher and starts its background refresh loops.
// Close must be called to stop them.
func New(fetcher Fetcher, options ...Option) *Cache {
	c := &Cache{
		fetcher:         fetcher,
		refreshInterval: DefaultRefreshInterval,
		failureInterval: FailureRefreshInterval,
		now:             time.Now,
		done:            make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}

	go c.refreshLoop(c.refreshResources)
	go c.refreshLoop(c.refreshToken)
	return c
}

// refreshLoop re-runs refresh on the interval the previous outcome dictates.
func (c *Cache) refreshLoop(refresh func(ctx context.Context) error) {
	for {
		interval := c.refreshInterval
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := refresh(ctx); err != nil {
			interval = c.failureInterval
		}
		cancel()

		timer := time.NewTimer(interval)
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Cache) refreshResources(ctx context.Context) error {
	return c.refreshResourcesLocked(ctx, false)
}

// refreshResourcesLocked fetches the resources section under its writer
// lock. A concurrent non-blocking refresh attempt is a no-op; callers with
// no previous value to fall back on pass block=true and wait their turn.
func (c *Cache) refreshResourcesLocked(ctx context.Context, block bool) error {
	if block {
		c.resources.mu.Lock()
	} else if !c.resources.mu.TryLock() {
		return nil
	}
	defer c.resources.mu.Unlock()

	if block && c.resources.fresh(c.now()) {
		return nil
	}

	logger := zerolog.Ctx(ctx).With().Str("function", "refreshResources").Logger()

	res, err := c.fetcher.FetchResources(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("resource refresh failed")
		c.resources.expiry.Store(c.now().Add(c.failureInterval).UnixNano())
		return err
	}
	c.resources.value.Store(&res)
	c.resources.expiry.Store(c.now().Add(c.refreshInterval).UnixNano())
	logger.Info().
		Int("containers", len(res.Containers)).
		Int("lakeFolders", len(res.LakeFolders)).
		Int("queues", len(res.Queues)).
		Msg("resources refreshed")
	return nil
}

func (c *Cache) refreshToken(ctx context.Context) error {
	return c.refreshTokenLocked(ctx, false)
}

// refreshToken fetches the token section under its own writer lock.
func (c *Cache) refreshTokenLocked(ctx context.Context, block bool) error {
	if block {
		c.token.mu.Lock()
	} else if !c.token.mu.TryLock() {
		return nil
	}
	defer c.token.mu.Unlock()

	if block && c.token.fresh(c.now()) {
		return nil
	}

	token, err := c.fetcher.FetchAuthToken(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("auth token refresh failed")
		c.token.expiry.Store(c.now().Add(c.failureInterval).UnixNano())
		return err
	}
	c.token.value.Store(&token)
	c.token.expiry.Store(c.now().Add(c.refreshInterval).UnixNano())
	return nil
}

// Snapshot returns a coherent configuration snapshot, refreshing stale or
// missing sections inline. When another goroutine holds a section's writer
// lock, the previous value of that section is used without blocking.
func (c *Cache) Snapshot(ctx context.Context) (Snapshot, error) {
	now := c.now()

	if !c.resources.fresh(now) {
		// Block only when there is no previous value to serve.
		block := c.resources.value.Load() == nil
		if err := c.refreshResourcesLocked(ctx, block); err != nil && c.resources.value.Load() == nil {
			return Snapshot{}, errors.E(errors.OpResources, errors.KIO, err).SetNoRetry().SetCode(errors.ConfigurationUnavailable)
		}
	}
	if !c.token.fresh(now) {
		block := c.token.value.Load() == nil
		if err := c.refreshTokenLocked(ctx, block); err != nil && c.token.value.Load() == nil {
			return Snapshot{}, errors.E(errors.OpResources, errors.KIO, err).SetNoRetry().SetCode(errors.ConfigurationUnavailable)
		}
	}

	res := c.resources.value.Load()
	token := c.token.value.Load()
	if res == nil || token == nil {
		return Snapshot{}, errors.ES(errors.OpResources, errors.KIO,
			"ingestion configuration has not been fetched yet").SetNoRetry().SetCode(errors.ConfigurationUnavailable)
	}
	return Snapshot{Ingest: *res, AuthToken: *token}, nil
}

// Close stops the background refresh loops.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}
