// Package conn holds the HTTP connections to the engine's streaming ingest
// endpoint and to the data-management service.
package conn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stratalake/strata-ingest-go/errors"
	"github.com/stratalake/strata-ingest-go/internal/gzip"
	"github.com/stratalake/strata-ingest-go/internal/properties"
	"github.com/stratalake/strata-ingest-go/internal/version"
)

var validURL = regexp.MustCompile(`https://([a-zA-Z0-9_-]+\.){1,2}.*\??`)

// BuffPool provides a pool of *bytes.Buffer objects for request bodies.
var BuffPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

// base carries what every service connection needs: the HTTP client, the
// credential, and the standing request headers.
type base struct {
	client     *http.Client
	cred       azcore.TokenCredential
	scopes     []string
	reqHeaders http.Header
}

func newBase(endpoint string, cred azcore.TokenCredential, client *http.Client) base {
	headers := http.Header{}
	headers.Add("Accept", "application/json")
	headers.Add("Accept-Encoding", "gzip,deflate")
	headers.Add("x-ms-client-version", "Strata.Go.Client:"+version.Ingest)
	headers.Add("Connection", "Keep-Alive")

	if client == nil {
		client = &http.Client{}
	}
	return base{
		client:     client,
		cred:       cred,
		scopes:     []string{strings.TrimSuffix(endpoint, "/") + "/.default"},
		reqHeaders: headers,
	}
}

func (b *base) headers(clientRequestID, prefix string) http.Header {
	headers := make(http.Header, len(b.reqHeaders)+2)
	for k, v := range b.reqHeaders {
		headers[k] = v
	}
	if clientRequestID == "" {
		clientRequestID = prefix + ";" + uuid.New().String()
	}
	headers.Add("x-ms-client-request-id", clientRequestID)
	return headers
}

// do issues one request, attaching the bearer token when a credential is
// configured, and returns the raw response.
func (b *base) do(ctx context.Context, op errors.Op, method string, u *url.URL, headers http.Header, body io.Reader) (*http.Response, error) {
	if b.cred != nil {
		token, err := b.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: b.scopes})
		if err != nil {
			return nil, errors.ES(op, errors.KInternal, "error while getting token: %s", err)
		}
		headers.Set("Authorization", "Bearer "+token.Token)
	}

	var rc io.ReadCloser
	if body != nil {
		var ok bool
		if rc, ok = body.(io.ReadCloser); !ok {
			rc = io.NopCloser(body)
		}
	}

	req := &http.Request{
		Method: method,
		URL:    u,
		Header: headers,
		Body:   rc,
	}

	resp, err := b.client.Do(req.WithContext(ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cancelErr(op, ctxErr)
		}
		return nil, errors.E(op, errors.KHTTPError, err)
	}
	return resp, nil
}

// cancelErr converts a context error into the client's taxonomy.
func cancelErr(op errors.Op, ctxErr error) *errors.Error {
	if ctxErr == context.DeadlineExceeded {
		return errors.E(op, errors.KTimeout, ctxErr).SetCode(errors.OperationTimeout)
	}
	return errors.E(op, errors.KCancelled, ctxErr).SetCode(errors.Cancelled)
}

// Conn provides connectivity to the engine's streaming ingestion endpoint.
type Conn struct {
	base
	baseURL *url.URL
}

// New returns a streaming ingest connection for the engine at endpoint.
// A nil cred disables the Authorization header; a nil client uses a default.
func New(endpoint string, cred azcore.TokenCredential, client *http.Client) (*Conn, error) {
	if !validURL.MatchString(endpoint) {
		return nil, errors.ES(
			errors.OpIngestStream, errors.KClientArgs,
			"endpoint is not valid(%s) for streaming ingestion", endpoint,
		).SetNoRetry()
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.ES(
			errors.OpIngestStream, errors.KClientArgs,
			"could not parse the endpoint(%s): %s", endpoint, err,
		).SetNoRetry()
	}

	return &Conn{
		base:    newBase(endpoint, cred, client),
		baseURL: &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/v1/rest/ingest/"},
	}, nil
}

// Payload is one streaming request body: either local bytes or a blob
// reference, never both.
type Payload struct {
	// Reader yields the source bytes when streaming local data.
	Reader io.Reader
	// BlobURL references already-staged data, credential included.
	BlobURL string
	// Format is the data format of the source.
	Format properties.DataFormat
	// Compression is the compression state of the source bytes. It drives
	// the size bound's factor.
	Compression properties.CompressionType
	// Compress gzips the source bytes for transport. Only meaningful for
	// uncompressed reader payloads.
	Compress bool
}

// StreamIngest posts one payload to the engine for database db and table
// table. Local payloads are size checked against the engine's streaming
// bound before any bytes are transmitted.
func (c *Conn) StreamIngest(ctx context.Context, db, table string, payload Payload, mappingRef, clientRequestID string) error {
	op := errors.OpIngestStream

	logger := zerolog.Ctx(ctx).With().
		Str("function", "StreamIngest").
		Str("db", db).
		Str("table", table).
		Str("format", payload.Format.String()).
		Logger()

	headers := c.headers(clientRequestID, "SGC.streamingIngest")

	u, _ := url.Parse(c.baseURL.String()) // Safe copy of a known good URL object
	u.Path = path.Join(u.Path, db, table)

	qv := url.Values{}
	if mappingRef != "" {
		qv.Add("mappingName", mappingRef)
	}
	qv.Add("streamFormat", payload.Format.String())
	u.RawQuery = qv.Encode()

	var body io.Reader
	switch {
	case payload.BlobURL != "":
		doc, err := json.Marshal(map[string]string{"SourceUri": payload.BlobURL})
		if err != nil {
			return errors.E(op, errors.KInternal, err)
		}
		body = bytes.NewReader(doc)
		headers.Add("Content-Type", "application/json")
		headers.Add("x-ms-source-kind", "uri")

	case payload.Reader != nil:
		// The bound applies to the source bytes as given, before any
		// transport compression.
		buffered, err := c.bound(payload)
		if err != nil {
			return err
		}
		defer func() {
			buffered.Reset()
			BuffPool.Put(buffered)
		}()
		headers.Add("Content-Type", "application/octet-stream")
		switch {
		case payload.Compress && payload.Compression != properties.GZIP && payload.Compression != properties.ZIP:
			body = gzip.Compress(buffered)
			headers.Add("Content-Encoding", "gzip")
		case payload.Compression == properties.GZIP:
			body = buffered
			headers.Add("Content-Encoding", "gzip")
		default:
			body = buffered
		}

	default:
		return errors.ES(op, errors.KClientArgs, "streaming payload had neither data nor a blob reference").
			SetNoRetry().SetCode(errors.SourceEmpty)
	}

	logger.Info().Msg("posting streaming ingest")

	resp, err := c.do(ctx, op, http.MethodPost, u, headers, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusNotFound {
		// The endpoint or the streaming policy is not there; retrying the
		// same request cannot fix that.
		return errors.ES(op, errors.KHTTPError,
			"streaming ingest endpoint for %s.%s was not found; verify the engine URL and that the streaming "+
				"ingestion policy is enabled on the database or table", db, table,
		).SetNoRetry().SetCode(errors.EndpointNotFound)
	}

	translated, terr := translateBody(resp, op)
	if terr != nil {
		return terr
	}
	defer translated.Close()
	err = errors.HTTP(op, resp.Status, resp.StatusCode, translated, fmt.Sprintf("streaming ingest into %s.%s", db, table))
	logger.Error().Err(err).Msg("streaming ingest failed")
	return err
}

// bound reads the payload into a pooled buffer, rejecting it once it
// exceeds the engine's streaming bound for the payload's format.
func (c *Conn) bound(payload Payload) (*bytes.Buffer, error) {
	maxSize := MaxBodySize(payload.Format, payload.Compression)

	buf := BuffPool.Get().(*bytes.Buffer)
	buf.Reset()

	n, err := io.Copy(buf, io.LimitReader(payload.Reader, maxSize+1))
	if err != nil {
		buf.Reset()
		BuffPool.Put(buf)
		return nil, errors.E(errors.OpIngestStream, errors.KIO, err).SetCode(errors.SourceNotReadable)
	}
	if n > maxSize {
		buf.Reset()
		BuffPool.Put(buf)
		return nil, errors.ES(
			errors.OpIngestStream, errors.KLimitsExceeded,
			"streaming payload exceeds the maximum body size of %d bytes for format %s", maxSize, payload.Format,
		).SetNoRetry().SetCode(errors.RequestTooLarge)
	}
	return buf, nil
}
