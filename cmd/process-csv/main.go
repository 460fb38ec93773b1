package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/sales_backend/config"
	"bitbucket.org/mmdatafocus/sales_backend/ingest"
	"bitbucket.org/mmdatafocus/sales_backend/models"
	"github.com/joho/godotenv"
)

// process-csv ingests a sales export from the local filesystem, bypassing the
// HTTP surface. Useful for bulk backfills and for re-running files whose
// upload failed mid-way (already-imported orders are skipped as duplicates).
func main() {
	filePath := flag.String("file", "", "Required: path to the CSV file to ingest")
	platform := flag.String("platform", "", "Optional: platform name applied to every row, overriding the Platform column")
	maxRows := flag.Int("max-rows", 0, "Optional: row ceiling for this run (default MAX_INGEST_ROWS or 10000)")
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "-file is required")
		flag.Usage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	logger := config.NewLogger()

	db := config.ConnectDatabaseWithRetry()
	models.MigrateTable(db)

	f, err := os.Open(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *filePath, err)
		os.Exit(1)
	}
	defer f.Close()

	pipeline := ingest.NewPipeline(db, logger, *maxRows)
	summary, err := pipeline.ProcessCSV(context.Background(), f, *platform)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingestion failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("status=%s attempted=%d succeeded=%d failed=%d\n",
		summary.Status, summary.RowsAttempted, summary.RowsSucceeded, summary.RowsFailed)
	for _, failure := range summary.Failures {
		fmt.Printf("  row %d: %s\n", failure.Row, failure.Reason)
	}
	if summary.RowsFailed > 0 {
		os.Exit(2)
	}
}
