package conn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratalake/strata-ingest-go/errors"
	"github.com/stratalake/strata-ingest-go/internal/properties"
	"github.com/stratalake/strata-ingest-go/internal/status"
)

func TestPostQueuedIngest(t *testing.T) {
	var gotPath string
	var gotJob properties.Job
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotJob))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ingestionOperationId":"op-42"}`))
	}))
	defer srv.Close()

	d, err := NewDM(srv.URL, nil, srv.Client())
	require.NoError(t, err)

	id1 := uuid.New()
	id2 := uuid.New()
	job := properties.Job{
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Database:  "db",
		Table:     "tbl",
		Blobs: []properties.BlobDescriptor{
			{BlobPath: "https://a.blob.core.windows.net/c/b1?sas=x", SourceID: id1, RawSize: 100},
			{BlobPath: "https://a.blob.core.windows.net/c/b2?sas=x", SourceID: id2},
		},
		Properties: properties.Ingestion{Format: properties.JSON, EnableTracking: true},
	}

	opID, err := d.PostQueuedIngest(context.Background(), job, "")
	require.NoError(t, err)

	assert.Equal(t, "op-42", opID)
	assert.Equal(t, "/v1/rest/queuedIngest/db/tbl", gotPath)
	require.Len(t, gotJob.Blobs, 2)
	assert.Equal(t, id1, gotJob.Blobs[0].SourceID)
	assert.Equal(t, int64(100), gotJob.Blobs[0].RawSize)
	assert.Equal(t, properties.JSON, gotJob.Properties.Format)
	assert.True(t, gotJob.Properties.EnableTracking)
}

func TestPostQueuedIngestNotFound(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d, err := NewDM(srv.URL, nil, srv.Client())
	require.NoError(t, err)

	_, err = d.PostQueuedIngest(context.Background(), properties.Job{Database: "db", Table: "tbl"}, "")

	e := errors.GetIngestError(err)
	require.NotNil(t, e)
	assert.Equal(t, errors.EndpointNotFound, e.Code)
	assert.True(t, errors.Retry(e))
}

func TestPostQueuedIngestMissingOperationID(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	d, err := NewDM(srv.URL, nil, srv.Client())
	require.NoError(t, err)

	_, err = d.PostQueuedIngest(context.Background(), properties.Job{Database: "db", Table: "tbl"}, "")
	assert.Error(t, err)
}

func TestStatusReads(t *testing.T) {
	sourceID := uuid.New()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/rest/ingestStatus/db/tbl/op-42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("details") {
		case "false":
			w.Write([]byte(`{"succeeded":2,"failed":1,"inProgress":3,"canceled":0}`))
		case "true":
			resp := status.Response{Records: []status.BlobStatus{{
				SourceID:      sourceID,
				Status:        status.Failed,
				ErrorCode:     "BadFormat",
				FailureStatus: status.Permanent,
			}}}
			json.NewEncoder(w).Encode(resp)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	d, err := NewDM(srv.URL, nil, srv.Client())
	require.NoError(t, err)

	summary, err := d.StatusSummary(context.Background(), "db", "tbl", "op-42")
	require.NoError(t, err)
	assert.Equal(t, status.Summary{Succeeded: 2, Failed: 1, InProgress: 3}, summary)

	details, err := d.StatusDetails(context.Background(), "db", "tbl", "op-42")
	require.NoError(t, err)
	require.Len(t, details.Records, 1)
	assert.Equal(t, sourceID, details.Records[0].SourceID)
	assert.True(t, details.IsTerminal())
	assert.True(t, details.HasPermanentFailure())
}

func TestStatusRequiresOperationID(t *testing.T) {
	d, err := NewDM("https://ingest-cluster.region.stratalake.net", nil, nil)
	require.NoError(t, err)

	_, err = d.StatusSummary(context.Background(), "db", "tbl", "")
	assert.Error(t, err)
}

func TestFetchResources(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/rest/ingestResources", r.URL.Path)
		w.Write([]byte(`{
			"containerSettings": {
				"containers": [
					{"url": "https://a.blob.core.windows.net/staging-01?sig=x"},
					{"url": "https://b.blob.core.windows.net/staging-02?sig=y"},
					{"url": "not a resource uri"}
				],
				"lakeFolders": [{"url": "https://a.dfs.core.windows.net/fs/tmp?sig=z"}],
				"preferredUploadMethod": "lake"
			},
			"queueSettings": {"queues": [{"url": "https://a.queue.core.windows.net/ready-01?sig=q"}]},
			"statusTable": {"url": "https://a.table.core.windows.net/status?sig=t"},
			"ingestionSettings": {"maxBlobsPerBatch": 250}
		}`))
	}))
	defer srv.Close()

	d, err := NewDM(srv.URL, nil, srv.Client())
	require.NoError(t, err)

	got, err := d.FetchResources(context.Background())
	require.NoError(t, err)

	require.Len(t, got.Containers, 2, "the unparseable entry is skipped")
	assert.Equal(t, "a", got.Containers[0].Account())
	assert.Equal(t, "b", got.Containers[1].Account())
	require.Len(t, got.LakeFolders, 1)
	require.Len(t, got.Queues, 1)
	require.Len(t, got.StatusTables, 1)
	assert.Equal(t, "lake", got.PreferredUploadMethod)
	assert.Equal(t, 250, got.MaxBlobsPerBatch)
}

func TestFetchAuthToken(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/rest/ingestAuthToken", r.URL.Path)
		w.Write([]byte(`{"authorizationContext":"ctx-token"}`))
	}))
	defer srv.Close()

	d, err := NewDM(srv.URL, nil, srv.Client())
	require.NoError(t, err)

	token, err := d.FetchAuthToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ctx-token", token)
}

func TestFetchAuthTokenEmpty(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	d, err := NewDM(srv.URL, nil, srv.Client())
	require.NoError(t, err)

	_, err = d.FetchAuthToken(context.Background())
	assert.Error(t, err)
}
