package strataingest_test

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	strataingest "github.com/stratalake/strata-ingest-go"
)

func ExampleStreaming_Ingest() {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		panic(err)
	}

	client, err := strataingest.NewStreaming("https://cluster.region.stratalake.net", cred)
	if err != nil {
		panic(err)
	}
	defer client.Close()

	rows := strings.NewReader("device-1,22.5\ndevice-2,23.1\n")
	op, err := client.Ingest(context.Background(), "telemetry", "readings",
		strataingest.ReaderSource("readings.csv", rows),
	)
	if err != nil {
		panic(err)
	}
	fmt.Println("streamed as", op.ID)
}

func ExampleIngestion_Ingest() {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		panic(err)
	}

	client, err := strataingest.New("https://cluster.region.stratalake.net", cred)
	if err != nil {
		panic(err)
	}
	defer client.Close()

	ctx := context.Background()
	op, err := client.Ingest(ctx, "telemetry", "readings",
		strataingest.FileSource("/data/readings-2026-08.csv.gz"),
		strataingest.WithTracking(),
	)
	if err != nil {
		panic(err)
	}

	final, err := client.PollUntilCompletion(ctx, op, 30*time.Second, 10*time.Minute)
	if err != nil {
		panic(err)
	}
	if final.HasPermanentFailure() {
		panic("some blobs were rejected")
	}
	fmt.Println("ingested")
}

func ExampleIngestion_IngestMany() {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		panic(err)
	}

	client, err := strataingest.New("https://cluster.region.stratalake.net", cred)
	if err != nil {
		panic(err)
	}
	defer client.Close()

	// One job: a blob that is already staged plus two local files. The job
	// keeps this order.
	sources := []strataingest.Source{
		strataingest.BlobSource("https://acct.blob.core.windows.net/exports/day1.csv.gz?sp=r&sig=..."),
		strataingest.FileSource("/data/day2.csv"),
		strataingest.FileSource("/data/day3.csv"),
	}

	op, err := client.IngestMany(context.Background(), "telemetry", "readings", sources)
	if err != nil {
		panic(err)
	}
	fmt.Println("queued as", op.ID)
}
