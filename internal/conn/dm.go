package conn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/rs/zerolog"

	"github.com/stratalake/strata-ingest-go/errors"
	"github.com/stratalake/strata-ingest-go/internal/properties"
	"github.com/stratalake/strata-ingest-go/internal/resources"
	"github.com/stratalake/strata-ingest-go/internal/status"
)

// DM provides connectivity to the data-management service: queued job
// submission, status reads, and resource discovery.
type DM struct {
	base
	baseURL *url.URL
}

// NewDM returns a data-management connection for the service at endpoint.
func NewDM(endpoint string, cred azcore.TokenCredential, client *http.Client) (*DM, error) {
	if !validURL.MatchString(endpoint) {
		return nil, errors.ES(
			errors.OpIngestQueued, errors.KClientArgs,
			"endpoint is not valid(%s) for the data-management service", endpoint,
		).SetNoRetry()
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.ES(
			errors.OpIngestQueued, errors.KClientArgs,
			"could not parse the endpoint(%s): %s", endpoint, err,
		).SetNoRetry()
	}

	return &DM{
		base:    newBase(endpoint, cred, client),
		baseURL: &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/v1/rest/"},
	}, nil
}

func (d *DM) url(parts ...string) *url.URL {
	u, _ := url.Parse(d.baseURL.String()) // Safe copy of a known good URL object
	u.Path = path.Join(append([]string{u.Path}, parts...)...)
	return u
}

// PostQueuedIngest submits one queued ingest job and returns the operation ID
// the service assigned to it.
func (d *DM) PostQueuedIngest(ctx context.Context, job properties.Job, clientRequestID string) (string, error) {
	op := errors.OpIngestQueued

	logger := zerolog.Ctx(ctx).With().
		Str("function", "PostQueuedIngest").
		Str("db", job.Database).
		Str("table", job.Table).
		Int("blobs", len(job.Blobs)).
		Logger()

	doc, err := json.Marshal(job)
	if err != nil {
		return "", errors.E(op, errors.KInternal, err)
	}

	headers := d.headers(clientRequestID, "SGC.queuedIngest")
	headers.Add("Content-Type", "application/json")

	u := d.url("queuedIngest", job.Database, job.Table)
	resp, err := d.do(ctx, op, http.MethodPost, u, headers, bytes.NewReader(doc))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// The DM URL may simply be misconfigured; leave the error retriable.
		return "", errors.ES(op, errors.KHTTPError,
			"queued ingest endpoint for %s.%s was not found; verify the data-management URL",
			job.Database, job.Table).SetCode(errors.EndpointNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		translated, terr := translateBody(resp, op)
		if terr != nil {
			return "", terr
		}
		defer translated.Close()
		err = errors.HTTP(op, resp.Status, resp.StatusCode, translated,
			fmt.Sprintf("queued ingest into %s.%s", job.Database, job.Table))
		logger.Error().Err(err).Msg("queued ingest submission failed")
		return "", err
	}

	translated, terr := translateBody(resp, op)
	if terr != nil {
		return "", terr
	}
	defer translated.Close()

	var out struct {
		IngestionOperationID string `json:"ingestionOperationId"`
	}
	if err := json.NewDecoder(translated).Decode(&out); err != nil {
		return "", errors.ES(op, errors.KInternal, "could not decode the queued ingest response: %s", err)
	}
	if out.IngestionOperationID == "" {
		return "", errors.ES(op, errors.KInternal, "queued ingest response did not carry an operation id")
	}

	logger.Info().Str("operationId", out.IngestionOperationID).Msg("queued ingest submitted")
	return out.IngestionOperationID, nil
}

// StatusSummary reads the aggregate status of a queued operation.
func (d *DM) StatusSummary(ctx context.Context, db, table, operationID string) (status.Summary, error) {
	var summary status.Summary
	err := d.getStatus(ctx, db, table, operationID, false, &summary)
	return summary, err
}

// StatusDetails reads the per-blob status records of a queued operation.
func (d *DM) StatusDetails(ctx context.Context, db, table, operationID string) (status.Response, error) {
	var details status.Response
	err := d.getStatus(ctx, db, table, operationID, true, &details)
	return details, err
}

func (d *DM) getStatus(ctx context.Context, db, table, operationID string, details bool, out interface{}) error {
	op := errors.OpStatus

	if operationID == "" {
		return errors.ES(op, errors.KClientArgs, "operation id cannot be empty").SetNoRetry()
	}

	u := d.url("ingestStatus", db, table, operationID)
	u.RawQuery = url.Values{"details": []string{strconv.FormatBool(details)}}.Encode()

	resp, err := d.do(ctx, op, http.MethodGet, u, d.headers("", "SGC.ingestStatus"), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	translated, terr := translateBody(resp, op)
	if terr != nil {
		return terr
	}
	defer translated.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.HTTP(op, resp.Status, resp.StatusCode, translated,
			fmt.Sprintf("status of operation %s on %s.%s", operationID, db, table))
	}

	if err := json.NewDecoder(translated).Decode(out); err != nil {
		return errors.ES(op, errors.KInternal, "could not decode the status response: %s", err)
	}
	return nil
}

// resourceRef is one {url} entry in the discovery document.
type resourceRef struct {
	URL string `json:"url"`
}

// FetchResources retrieves the advertised ingest resources. It implements
// part of resources.Fetcher.
func (d *DM) FetchResources(ctx context.Context) (resources.Ingest, error) {
	op := errors.OpResources

	var doc struct {
		ContainerSettings struct {
			Containers            []resourceRef `json:"containers"`
			LakeFolders           []resourceRef `json:"lakeFolders"`
			PreferredUploadMethod string        `json:"preferredUploadMethod"`
		} `json:"containerSettings"`
		QueueSettings struct {
			Queues []resourceRef `json:"queues"`
		} `json:"queueSettings"`
		StatusTable       *resourceRef `json:"statusTable"`
		IngestionSettings struct {
			MaxBlobsPerBatch int `json:"maxBlobsPerBatch"`
		} `json:"ingestionSettings"`
	}
	if err := d.getJSON(ctx, op, "ingestResources", &doc); err != nil {
		return resources.Ingest{}, err
	}

	parse := func(kind string, refs []resourceRef) []*resources.URI {
		var out []*resources.URI
		for _, ref := range refs {
			u, err := resources.Parse(ref.URL)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("kind", kind).Msg("skipping unparseable resource URI")
				continue
			}
			out = append(out, u)
		}
		return out
	}

	ingest := resources.Ingest{
		Containers:            parse("container", doc.ContainerSettings.Containers),
		LakeFolders:           parse("lakeFolder", doc.ContainerSettings.LakeFolders),
		Queues:                parse("queue", doc.QueueSettings.Queues),
		PreferredUploadMethod: doc.ContainerSettings.PreferredUploadMethod,
		MaxBlobsPerBatch:      doc.IngestionSettings.MaxBlobsPerBatch,
	}
	if doc.StatusTable != nil {
		ingest.StatusTables = parse("statusTable", []resourceRef{*doc.StatusTable})
	}
	return ingest, nil
}

// FetchAuthToken retrieves the per-tenant ingestion authorization token. It
// implements part of resources.Fetcher.
func (d *DM) FetchAuthToken(ctx context.Context) (string, error) {
	var doc struct {
		AuthorizationContext string `json:"authorizationContext"`
	}
	if err := d.getJSON(ctx, errors.OpResources, "ingestAuthToken", &doc); err != nil {
		return "", err
	}
	if doc.AuthorizationContext == "" {
		return "", errors.ES(errors.OpResources, errors.KInternal, "auth token response did not carry an authorization context")
	}
	return doc.AuthorizationContext, nil
}

func (d *DM) getJSON(ctx context.Context, op errors.Op, endpoint string, out interface{}) error {
	resp, err := d.do(ctx, op, http.MethodGet, d.url(endpoint), d.headers("", "SGC."+endpoint), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	translated, terr := translateBody(resp, op)
	if terr != nil {
		return terr
	}
	defer translated.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.HTTP(op, resp.Status, resp.StatusCode, translated, endpoint)
	}
	if err := json.NewDecoder(translated).Decode(out); err != nil {
		return errors.ES(op, errors.KInternal, "could not decode the %s response: %s", endpoint, err)
	}
	return nil
}

var _ resources.Fetcher = (*DM)(nil)
