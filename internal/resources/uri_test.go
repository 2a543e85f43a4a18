package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		desc           string
		uri            string
		wantErr        bool
		wantAccount    string
		wantObjectType string
		wantObjectName string
	}{
		{
			desc:           "blob container with SAS",
			uri:            "https://acct.blob.core.windows.net/staging-01?sig=abc&se=2030",
			wantAccount:    "acct",
			wantObjectType: "blob",
			wantObjectName: "staging-01",
		},
		{
			desc:           "lake folder with nested path",
			uri:            "https://acct.dfs.core.windows.net/fs/ingest/tmp?sig=abc",
			wantAccount:    "acct",
			wantObjectType: "dfs",
			wantObjectName: "fs",
		},
		{
			desc:           "queue",
			uri:            "https://acct.queue.core.windows.net/ready-01?sig=abc",
			wantAccount:    "acct",
			wantObjectType: "queue",
			wantObjectName: "ready-01",
		},
		{
			desc:    "http scheme rejected",
			uri:     "http://acct.blob.core.windows.net/c?sig=abc",
			wantErr: true,
		},
		{
			desc:    "host too short",
			uri:     "https://localhost/c",
			wantErr: true,
		},
		{
			desc:    "no object name",
			uri:     "https://acct.blob.core.windows.net/?sig=abc",
			wantErr: true,
		},
	}

	for _, test := range tests {
		got, err := Parse(test.uri)
		if test.wantErr {
			assert.Error(t, err, test.desc)
			continue
		}
		require.NoError(t, err, test.desc)

		assert.Equal(t, test.wantAccount, got.Account(), test.desc)
		assert.Equal(t, test.wantObjectType, got.ObjectType(), test.desc)
		assert.Equal(t, test.wantObjectName, got.ObjectName(), test.desc)
		assert.Equal(t, test.uri, got.String(), test.desc)
	}
}

func TestURISafeString(t *testing.T) {
	t.Parallel()

	u, err := Parse("https://acct.blob.core.windows.net/c?sig=verysecret")
	require.NoError(t, err)

	assert.NotContains(t, u.SafeString(), "verysecret")
	assert.Equal(t, "verysecret", u.SAS().Get("sig"))
}
