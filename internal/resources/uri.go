package resources

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/stratalake/strata-ingest-go/errors"
)

// URI represents a parsed storage resource URI advertised by the service,
// shaped like: https://<account>.<objectType>.<domain>/<objectName>?<sas>
type URI struct {
	u                               *url.URL
	account, objectType, objectName string
	sas                             url.Values
}

// Parse parses a storage resource URI into its components. The query string,
// when present, is treated as the resource's SAS credential.
func Parse(uri string) (*URI, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.E(errors.OpResources, errors.KClientArgs, err).SetNoRetry()
	}

	if u.Scheme != "https" {
		return nil, errors.ES(errors.OpResources, errors.KClientArgs,
			"URI %s does not have a valid scheme, must be https", errors.ScrubURL(uri)).SetNoRetry()
	}

	hostParts := strings.Split(u.Host, ".")
	if len(hostParts) < 3 {
		return nil, errors.ES(errors.OpResources, errors.KClientArgs,
			"URI %s is not a valid resource URI, host must be <account>.<type>.<domain>", errors.ScrubURL(uri)).SetNoRetry()
	}
	account := hostParts[0]
	objectType := hostParts[1]
	if account == "" || objectType == "" {
		return nil, errors.ES(errors.OpResources, errors.KClientArgs,
			"URI %s is missing an account or object type", errors.ScrubURL(uri)).SetNoRetry()
	}

	objectName := strings.Trim(u.EscapedPath(), "/")
	if objectName == "" {
		return nil, errors.ES(errors.OpResources, errors.KClientArgs,
			"URI %s does not name an object", errors.ScrubURL(uri)).SetNoRetry()
	}
	// Nested lake folder paths keep only the filesystem as the object name
	// root; the remainder rides along in the URL itself.
	objectName = strings.Split(objectName, "/")[0]

	return &URI{
		u:          u,
		account:    account,
		objectType: objectType,
		objectName: objectName,
		sas:        u.Query(),
	}, nil
}

// Account returns the storage account name.
func (u *URI) Account() string {
	return u.account
}

// ObjectType returns the service type component of the host, such as "blob"
// or "dfs".
func (u *URI) ObjectType() string {
	return u.objectType
}

// ObjectName returns the container, filesystem, queue, or table name.
func (u *URI) ObjectName() string {
	return u.objectName
}

// SAS returns the SAS credential attached to the URI. May be empty.
func (u *URI) SAS() url.Values {
	return u.sas
}

// URL returns the parsed URL.
func (u *URI) URL() *url.URL {
	return u.u
}

// String implements fmt.Stringer, keeping the credential.
func (u *URI) String() string {
	return u.u.String()
}

// SafeString returns the URI without its credential, for logs and errors.
func (u *URI) SafeString() string {
	return errors.ScrubURL(u.u.String())
}

var _ fmt.Stringer = (*URI)(nil)
