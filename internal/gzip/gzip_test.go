package gzip

import (
	"bytes"
	gzipStd "compress/gzip"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamerRoundTrip(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 3*1024*1024)
	_, err := rand.New(rand.NewSource(42)).Read(payload)
	require.NoError(t, err)

	s := New()
	s.Reset(io.NopCloser(bytes.NewReader(payload)))

	compressed, err := io.ReadAll(s)
	require.NoError(t, err)

	zr, err := gzipStd.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	got, err := io.ReadAll(zr)
	require.NoError(t, err)

	assert.Equal(t, payload, got)
	assert.Equal(t, int64(len(payload)), s.InputSize())
}

func TestCompressTextShrinks(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("field1,field2,field3\n"), 10000)
	s := Compress(bytes.NewReader(payload))

	compressed, err := io.ReadAll(s)
	require.NoError(t, err)

	assert.Less(t, len(compressed), len(payload))
	assert.Equal(t, int64(len(payload)), s.InputSize())
}

func TestStreamerCloseUnblocksWriter(t *testing.T) {
	t.Parallel()

	// A reader bigger than the pipe buffer so the compressing goroutine is
	// mid-write when we abandon the stream.
	payload := make([]byte, 8*1024*1024)
	s := Compress(bytes.NewReader(payload))

	buf := make([]byte, 512)
	_, err := s.Read(buf)
	require.NoError(t, err)

	require.NoError(t, s.Close())

	_, err = io.ReadAll(s)
	assert.Error(t, err)
}
