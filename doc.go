/*
Package strataingest provides a client for ingesting data into a Strata
analytics cluster.

Two client flavors exist. The streaming client posts small payloads straight
to the engine for low-latency availability:

	client, err := strataingest.NewStreaming("https://cluster.region.stratalake.net", cred)
	if err != nil {
		// Do something
	}
	op, err := client.Ingest(ctx, "db", "table",
		strataingest.FileSource("events.json"),
	)

The queued client stages data in cloud storage and submits a batch job to the
cluster's data-management service, which is the right path for anything
larger than a few megabytes:

	client, err := strataingest.New("https://cluster.region.stratalake.net", cred)
	if err != nil {
		// Do something
	}
	op, err := client.Ingest(ctx, "db", "table",
		strataingest.FileSource("events.csv.gz"),
		strataingest.WithTracking(),
	)
	if err != nil {
		// Do something
	}
	final, err := client.PollUntilCompletion(ctx, op, 0, 10*time.Minute)

Sources are local files, readers, or already-staged blobs; formats and
compression are discovered from file extensions when not stated. All failures
are *errors.Error values carrying a permanence bit that upstream retry
policies can consult.
*/
package strataingest
