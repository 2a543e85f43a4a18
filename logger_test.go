package strataingest

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	defer pkgLogger.Store(nil)

	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	ctx := withLogger(context.Background())
	zerolog.Ctx(ctx).Info().Msg("staging started")

	assert.Contains(t, buf.String(), "staging started")
}

func TestWithLoggerKeepsContextLogger(t *testing.T) {
	defer pkgLogger.Store(nil)

	var fallback, carried bytes.Buffer
	SetLogger(zerolog.New(&fallback))

	ctx := zerolog.New(&carried).WithContext(context.Background())
	ctx = withLogger(ctx)
	zerolog.Ctx(ctx).Info().Msg("hello")

	assert.Empty(t, fallback.String())
	assert.Contains(t, carried.String(), "hello")
}

func TestSetLoggerConcurrent(t *testing.T) {
	defer pkgLogger.Store(nil)

	var mu sync.Mutex
	var buf bytes.Buffer
	logger := zerolog.New(lockedWriter{mu: &mu, w: &buf})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			SetLogger(logger)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := withLogger(context.Background())
			zerolog.Ctx(ctx).Info().Msg("tick")
		}()
	}
	wg.Wait()

	ctx := withLogger(context.Background())
	zerolog.Ctx(ctx).Info().Msg("done")

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.Contains(buf.String(), "done"))
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
