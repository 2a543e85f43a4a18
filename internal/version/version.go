// Package version holds the client version reported to the service.
package version

// Ingest is the version of this ingest client. It is sent on every request
// in the x-ms-client-version header.
const Ingest = "0.3.0"
