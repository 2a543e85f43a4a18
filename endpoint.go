package strataingest

import (
	"net/url"
	"strings"

	"github.com/stratalake/strata-ingest-go/errors"
)

// Clusters expose the engine at <cluster>.<domain> and the data-management
// service at ingest-<cluster>.<domain>. Clients correct the host for the
// service they talk to unless WithoutEndpointCorrection is set.
const ingestPrefix = "ingest-"

func addIngestPrefix(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", errors.ES(errors.OpIngestQueued, errors.KClientArgs,
			"endpoint %s is not a valid cluster URL", endpoint).SetNoRetry()
	}
	if strings.HasPrefix(u.Host, ingestPrefix) {
		return endpoint, nil
	}
	u.Host = ingestPrefix + u.Host
	return u.String(), nil
}

func removeIngestPrefix(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", errors.ES(errors.OpIngestStream, errors.KClientArgs,
			"endpoint %s is not a valid cluster URL", endpoint).SetNoRetry()
	}
	u.Host = strings.TrimPrefix(u.Host, ingestPrefix)
	return u.String(), nil
}
