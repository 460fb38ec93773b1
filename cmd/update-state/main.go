package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/sales_backend/config"
	"bitbucket.org/mmdatafocus/sales_backend/models"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// update-state re-parses every delivery address and backfills the extracted
// city/state columns. Safe to re-run; rows whose address still does not parse
// are counted as skipped and left untouched.
func main() {
	_ = godotenv.Load()
	logger := config.NewLogger()

	db := config.ConnectDatabaseWithRetry()

	updated, skipped, err := models.BackfillCityState(context.Background(), db)
	if err != nil {
		config.LogError(logger, "update-state", "main", "BackfillCityState", nil, err)
		fmt.Fprintf(os.Stderr, "backfill failed: %v\n", err)
		os.Exit(1)
	}
	logger.WithFields(logrus.Fields{
		"updated": updated,
		"skipped": skipped,
	}).Info("city/state backfill complete")
	fmt.Printf("updated=%d skipped=%d\n", updated, skipped)
}
