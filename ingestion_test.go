package strataingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratalake/strata-ingest-go/errors"
	"github.com/stratalake/strata-ingest-go/internal/properties"
	"github.com/stratalake/strata-ingest-go/internal/status"
)

// fakeCluster is a data-management service for facade tests: discovery, auth
// context, queued submission, and status reads.
type fakeCluster struct {
	mu       sync.Mutex
	jobs     []properties.Job
	posts    atomic.Int64
	statuses []status.Response
	reads    atomic.Int64
}

func (f *fakeCluster) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/rest/ingestResources", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"containerSettings": {
				"containers": [{"url": "https://stage.blob.core.windows.net/c1?sig=x"}],
				"preferredUploadMethod": "storage"
			},
			"queueSettings": {"queues": []},
			"statusTable": {"url": "https://stage.table.core.windows.net/status?sig=t"},
			"ingestionSettings": {"maxBlobsPerBatch": 500}
		}`))
	})
	mux.HandleFunc("/v1/rest/ingestAuthToken", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"authorizationContext":"auth-ctx"}`))
	})
	mux.HandleFunc("/v1/rest/queuedIngest/", func(w http.ResponseWriter, r *http.Request) {
		f.posts.Add(1)
		var job properties.Job
		json.NewDecoder(r.Body).Decode(&job)
		f.mu.Lock()
		f.jobs = append(f.jobs, job)
		f.mu.Unlock()
		w.Write([]byte(`{"ingestionOperationId":"op-7"}`))
	})
	mux.HandleFunc("/v1/rest/ingestStatus/", func(w http.ResponseWriter, r *http.Request) {
		i := int(f.reads.Add(1)) - 1
		f.mu.Lock()
		resp := f.statuses[len(f.statuses)-1]
		if i < len(f.statuses) {
			resp = f.statuses[i]
		}
		f.mu.Unlock()
		json.NewEncoder(w).Encode(resp)
	})
	return httptest.NewTLSServer(mux)
}

func (f *fakeCluster) lastJob() properties.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[len(f.jobs)-1]
}

func newQueuedClient(t *testing.T, srv *httptest.Server) *Ingestion {
	t.Helper()
	i, err := New(srv.URL, nil, WithHTTPClient(srv.Client()), WithoutEndpointCorrection())
	require.NoError(t, err)
	return i
}

func TestIngestionIngestBlob(t *testing.T) {
	sourceID := uuid.New()
	cluster := &fakeCluster{statuses: []status.Response{
		{Records: []status.BlobStatus{{SourceID: sourceID, Status: status.InProgress}}},
		{Records: []status.BlobStatus{{SourceID: sourceID, Status: status.Succeeded}}},
	}}
	srv := cluster.server()
	defer srv.Close()

	client := newQueuedClient(t, srv)
	defer client.Close()

	op, err := client.Ingest(context.Background(), "db", "tbl",
		BlobSource("https://acct.blob.core.windows.net/c/events.json?sig=b", SourceID(sourceID)),
		WithTracking(),
		WithTags("batch:2026-08-01"),
		WithSkipBatching(),
	)
	require.NoError(t, err)

	assert.Equal(t, "op-7", op.ID)
	assert.Equal(t, KindQueued, op.Kind)
	assert.Equal(t, "db", op.Database)
	assert.Equal(t, "tbl", op.Table)

	job := cluster.lastJob()
	assert.False(t, job.Timestamp.IsZero())
	job.Timestamp = time.Time{}
	want := properties.Job{
		Database: "db",
		Table:    "tbl",
		Blobs: []properties.BlobDescriptor{{
			BlobPath: "https://acct.blob.core.windows.net/c/events.json?sig=b",
			SourceID: sourceID,
		}},
		Properties: properties.Ingestion{
			Format:         properties.JSON,
			Tags:           []string{"batch:2026-08-01"},
			EnableTracking: true,
			SkipBatching:   true,
		},
	}
	if diff := pretty.Compare(want, job); diff != "" {
		t.Errorf("submitted job mismatch (-want/+got):\n%s", diff)
	}

	details, err := client.OperationDetails(context.Background(), op)
	require.NoError(t, err)
	require.Len(t, details.Records, 1)
	assert.Equal(t, status.InProgress, details.Records[0].Status)

	final, err := client.PollUntilCompletion(context.Background(), op, 5*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.True(t, final.IsTerminal())
}

func TestIngestionRejectsInvalidSource(t *testing.T) {
	cluster := &fakeCluster{}
	srv := cluster.server()
	defer srv.Close()

	client := newQueuedClient(t, srv)
	defer client.Close()

	_, err := client.Ingest(context.Background(), "db", "tbl", Source{})

	e := errors.GetIngestError(err)
	require.NotNil(t, e)
	assert.Equal(t, errors.UnsupportedSourceKind, e.Code)
	assert.EqualValues(t, 0, cluster.posts.Load())
}

func TestIngestionOperationChecks(t *testing.T) {
	cluster := &fakeCluster{}
	srv := cluster.server()
	defer srv.Close()

	client := newQueuedClient(t, srv)
	defer client.Close()

	_, err := client.OperationSummary(context.Background(), nil)
	assert.Error(t, err)

	_, err = client.OperationDetails(context.Background(), &Operation{})
	assert.Error(t, err)

	// A streaming operation has no queued status to read.
	summary, err := client.OperationSummary(context.Background(), &Operation{ID: uuid.NewString(), Kind: KindStreaming})
	require.NoError(t, err)
	assert.Equal(t, StatusSummary{}, summary)
}

func TestIngestionSharedStaging(t *testing.T) {
	cluster := &fakeCluster{statuses: []status.Response{{}}}
	srv := cluster.server()
	defer srv.Close()

	owner := newQueuedClient(t, srv)
	defer owner.Close()

	shared, err := New(srv.URL, nil,
		WithHTTPClient(srv.Client()),
		WithoutEndpointCorrection(),
		WithUploaderFrom(owner),
	)
	require.NoError(t, err)

	_, err = shared.Ingest(context.Background(), "db", "tbl",
		BlobSource("https://acct.blob.core.windows.net/c/a.csv?sig=b"))
	require.NoError(t, err)

	// Closing the borrower leaves the owner's staging machinery running.
	require.NoError(t, shared.Close())

	_, err = owner.Ingest(context.Background(), "db", "tbl",
		BlobSource("https://acct.blob.core.windows.net/c/b.csv?sig=b"))
	require.NoError(t, err)

	assert.EqualValues(t, 2, cluster.posts.Load())
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	t.Parallel()

	_, err := New("not a cluster url", nil)
	assert.Error(t, err)
}
