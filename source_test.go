package strataingest

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFileSourceDiscovery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path            string
		wantFormat      DataFormat
		wantCompression CompressionType
	}{
		{"/data/events.json.gz", JSON, GZIP},
		{"/data/events.csv", CSV, CTNone},
		{"/data/archive.tsv.zip", TSV, ZIP},
		{"/data/part-0001.parquet", Parquet, CTNone},
		{"/data/readings", CSV, CTNone}, // no extension defaults to csv
	}

	for _, test := range tests {
		src := FileSource(test.path)
		assert.Equal(t, kindFile, src.kind, test.path)
		assert.Equal(t, test.wantFormat, src.format, test.path)
		assert.Equal(t, test.wantCompression, src.compression, test.path)
	}
}

func TestReaderSourceDiscovery(t *testing.T) {
	t.Parallel()

	src := ReaderSource("payload.multijson", strings.NewReader("{}"))
	assert.Equal(t, kindReader, src.kind)
	assert.Equal(t, MultiJSON, src.format)
	assert.Equal(t, CTNone, src.compression)

	// A nameless stream still gets the csv default.
	src = ReaderSource("", strings.NewReader("a,b\n"))
	assert.Equal(t, CSV, src.format)
}

func TestBlobSourceDiscovery(t *testing.T) {
	t.Parallel()

	src := BlobSource("https://acct.blob.core.windows.net/c/events.json.gz?sig=x")
	assert.Equal(t, kindBlob, src.kind)
	assert.Equal(t, JSON, src.format)
	assert.Equal(t, GZIP, src.compression)
}

func TestSourceOptionsOverrideDiscovery(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	src := FileSource("/data/export.dat",
		SourceFormat(PSV),
		SourceCompression(GZIP),
		SourceID(id),
		SourceSize(12345),
		DontCompress(),
	)

	assert.Equal(t, PSV, src.format)
	assert.Equal(t, GZIP, src.compression)
	assert.Equal(t, id, src.id)
	assert.Equal(t, int64(12345), src.size)
	assert.True(t, src.dontCompress)
}

func TestEndpointCorrection(t *testing.T) {
	t.Parallel()

	got, err := addIngestPrefix("https://cluster.region.stratalake.net")
	assert.NoError(t, err)
	assert.Equal(t, "https://ingest-cluster.region.stratalake.net", got)

	got, err = addIngestPrefix("https://ingest-cluster.region.stratalake.net")
	assert.NoError(t, err)
	assert.Equal(t, "https://ingest-cluster.region.stratalake.net", got, "already corrected hosts are left alone")

	got, err = removeIngestPrefix("https://ingest-cluster.region.stratalake.net")
	assert.NoError(t, err)
	assert.Equal(t, "https://cluster.region.stratalake.net", got)

	got, err = removeIngestPrefix("https://cluster.region.stratalake.net")
	assert.NoError(t, err)
	assert.Equal(t, "https://cluster.region.stratalake.net", got)

	_, err = addIngestPrefix("not a cluster url")
	assert.Error(t, err)
	_, err = removeIngestPrefix("")
	assert.Error(t, err)
}
