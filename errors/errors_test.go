package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		desc string
		err  error
		want bool
	}{
		{desc: "nil error", err: nil, want: false},
		{desc: "stdlib error is retriable", err: stdErrors.New("boom"), want: true},
		{desc: "transient error", err: ES(OpUpload, KIO, "flaky"), want: true},
		{desc: "permanent error", err: ES(OpUpload, KClientArgs, "bad arg").SetNoRetry(), want: false},
		{desc: "permanent inside fmt wrap", err: fmt.Errorf("outer: %w", ES(OpUpload, KClientArgs, "bad").SetNoRetry()), want: false},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, Retry(test.err), test.desc)
	}
}

func TestWPropagatesPermanence(t *testing.T) {
	t.Parallel()

	inner := ES(OpUpload, KBlobstore, "storage said no").SetNoRetry()
	outer := W(inner, ES(OpIngestQueued, KBlobstore, "staging failed"))

	assert.True(t, outer.Permanent())
	assert.False(t, Retry(outer))
	assert.Contains(t, outer.Error(), "storage said no")
}

func TestE_CopiesWrappedErrorState(t *testing.T) {
	t.Parallel()

	inner := ES(OpUpload, KIO, "io broke").SetCode(SourceNotReadable).SetNoRetry()
	outer := E(OpIngestQueued, KBlobstore, inner)

	assert.Equal(t, SourceNotReadable, outer.Code)
	assert.True(t, outer.Permanent())
}

func TestHTTP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		desc          string
		statusCode    int
		body          string
		wantCode      string
		wantSubCode   string
		wantPermanent bool
	}{
		{
			desc:       "envelope with transient service failure",
			statusCode: 500,
			body:       `{"error":{"code":"General_InternalServerError","message":"something gave way","@permanent":false}}`,
			wantCode:   "General_InternalServerError",
		},
		{
			desc:          "envelope marked permanent",
			statusCode:    500,
			body:          `{"error":{"code":"Sealed","message":"database is sealed","@failureCode":"BadRequest","@permanent":true}}`,
			wantCode:      "Sealed",
			wantSubCode:   "BadRequest",
			wantPermanent: true,
		},
		{
			desc:          "4xx other than 404 is permanent",
			statusCode:    403,
			body:          `{"error":{"code":"Forbidden","message":"not yours"}}`,
			wantCode:      "Forbidden",
			wantPermanent: true,
		},
		{
			desc:       "404 with a parseable body stays retriable",
			statusCode: 404,
			body:       `{"error":{"code":"NotFound","message":"no such table"}}`,
			wantCode:   "NotFound",
		},
		{
			desc:       "unparseable 5xx body stays retriable",
			statusCode: 500,
			body:       "<html>gateway exploded</html>",
			wantCode:   ServiceError,
		},
		{
			desc:          "unparseable 4xx body is a permanent request error",
			statusCode:    400,
			body:          "<html>bad</html>",
			wantCode:      RequestError,
			wantPermanent: true,
		},
	}

	for _, test := range tests {
		err := HTTP(OpIngestStream, fmt.Sprintf("%d Status", test.statusCode), test.statusCode, strings.NewReader(test.body), "ingest into d.t")
		require.NotNil(t, err, test.desc)

		assert.Equal(t, test.wantCode, err.Code, test.desc)
		assert.Equal(t, test.wantSubCode, err.SubCode, test.desc)
		assert.Equal(t, test.wantPermanent, err.Permanent(), test.desc)
		assert.Contains(t, err.Error(), "ingest into d.t", test.desc)
	}
}

func TestScrubURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{"https://acct.blob.core.windows.net/c/b?sig=secret&se=2030", "https://acct.blob.core.windows.net/c/b"},
		{"https://acct.blob.core.windows.net/c/b", "https://acct.blob.core.windows.net/c/b"},
		{"://not a url?sig=secret", "://not a url"},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, ScrubURL(test.raw))
	}
}

func TestGetIngestError(t *testing.T) {
	t.Parallel()

	e := ES(OpStatus, KTimeout, "took too long").SetCode(OperationTimeout)
	wrapped := fmt.Errorf("outer: %w", e)

	got := GetIngestError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, OperationTimeout, got.Code)

	assert.Nil(t, GetIngestError(stdErrors.New("plain")))
}
