package ingest_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/sales_backend/config"
	"bitbucket.org/mmdatafocus/sales_backend/ingest"
	"bitbucket.org/mmdatafocus/sales_backend/models"
	"bitbucket.org/mmdatafocus/sales_backend/models/reports"
)

// End-to-end: ingest a 25-row export into MySQL, then read every report back
// through Redis-backed caching.
//
// Run (requires Docker): INTEGRATION_TESTS=1 go test ./ingest -run EndToEnd -v
func TestIngestAndReportsEndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "sales_test")

	logger := config.NewLogger()
	db := config.ConnectDatabaseWithRetry()
	rdb, _ := config.ConnectRedisWithRetry()
	models.MigrateTable(db)

	engine := reports.NewEngine(db, reports.NewRedisCache(rdb), logger)

	// Reports over an empty store: empty series, zero KPIs, no errors.
	emptyVolumes, err := engine.GetMonthlySalesVolume(ctx, "2023-01-01", "2023-12-31")
	if err != nil {
		t.Fatalf("GetMonthlySalesVolume on empty store: %v", err)
	}
	if len(emptyVolumes) != 0 {
		t.Fatalf("expected empty series, got %+v", emptyVolumes)
	}
	emptyMetrics, err := engine.GetSummaryMetrics(ctx, "2023-01-01", "2023-12-31")
	if err != nil {
		t.Fatalf("GetSummaryMetrics on empty store: %v", err)
	}
	if emptyMetrics.TotalOrders != 0 || emptyMetrics.TotalUnitsSold != 0 || emptyMetrics.TotalCustomers != 0 {
		t.Fatalf("expected zero counts, got %+v", emptyMetrics)
	}
	if !emptyMetrics.TotalRevenue.IsZero() || !emptyMetrics.AverageOrderValue.IsZero() ||
		!emptyMetrics.CancellationRate.IsZero() || !emptyMetrics.DeliverySuccessRate.IsZero() {
		t.Fatalf("expected zero-valued KPIs, got %+v", emptyMetrics)
	}
	if emptyMetrics.TopProductName != nil {
		t.Fatalf("expected no top product, got %s", *emptyMetrics.TopProductName)
	}

	csvData := buildSalesCSV()
	pipeline := ingest.NewPipeline(db, logger, 0)

	summary, err := pipeline.ProcessCSV(ctx, strings.NewReader(csvData), "")
	if err != nil {
		t.Fatalf("ProcessCSV: %v", err)
	}
	if summary.RowsAttempted != 25 || summary.RowsSucceeded != 25 || summary.RowsFailed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	// Re-ingest the same file: every order already exists, every row fails in
	// isolation, and the reference entities are not duplicated.
	summary2, err := pipeline.ProcessCSV(ctx, strings.NewReader(csvData), "")
	if err != nil {
		t.Fatalf("ProcessCSV re-ingest: %v", err)
	}
	if summary2.RowsSucceeded != 0 || summary2.RowsFailed != 25 {
		t.Fatalf("re-ingest expected 25 isolated failures: %+v", summary2)
	}
	var customerCount, orderCount int64
	if err := db.WithContext(ctx).Model(&models.Customer{}).Count(&customerCount).Error; err != nil {
		t.Fatalf("count customers: %v", err)
	}
	if err := db.WithContext(ctx).Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if customerCount != 3 {
		t.Fatalf("expected 3 customers after re-ingest, got %d", customerCount)
	}
	if orderCount != 25 {
		t.Fatalf("expected 25 orders after re-ingest, got %d", orderCount)
	}

	volumes, err := engine.GetMonthlySalesVolume(ctx, "2024-01-01", "2024-02-29")
	if err != nil {
		t.Fatalf("GetMonthlySalesVolume: %v", err)
	}
	if len(volumes) != 2 {
		t.Fatalf("expected 2 month buckets, got %d: %+v", len(volumes), volumes)
	}
	if volumes[0].Month != "2024-01" || volumes[1].Month != "2024-02" {
		t.Fatalf("months out of order: %+v", volumes)
	}
	// Every row sells 2 units; 12 January orders, 13 February orders.
	if volumes[0].QuantitySold != 24 || volumes[1].QuantitySold != 26 {
		t.Fatalf("unexpected volumes: %+v", volumes)
	}

	revenue, err := engine.GetMonthlyRevenue(ctx, "2024-01-01", "2024-02-29")
	if err != nil {
		t.Fatalf("GetMonthlyRevenue: %v", err)
	}
	// 12 * 2 * 10.50
	if revenue[0].TotalRevenue.String() != "252" {
		t.Fatalf("January revenue expected 252, got %s", revenue[0].TotalRevenue)
	}

	if _, err := engine.GetMonthlySalesVolume(ctx, "2024-01-01", ""); err == nil {
		t.Fatal("expected ErrInvalidRange for missing end_date")
	}

	metrics, err := engine.GetSummaryMetrics(ctx, "", "")
	if err != nil {
		t.Fatalf("GetSummaryMetrics: %v", err)
	}
	if metrics.TotalOrders != 25 || metrics.TotalUnitsSold != 50 || metrics.TotalCustomers != 3 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
	// 20 delivered, 3 canceled, 2 in transit over 25 deliveries.
	if metrics.DeliverySuccessRate.String() != "80" {
		t.Fatalf("delivery success rate expected 80, got %s", metrics.DeliverySuccessRate)
	}
	if metrics.CancellationRate.String() != "12" {
		t.Fatalf("cancellation rate expected 12, got %s", metrics.CancellationRate)
	}

	page3, err := engine.GetFilterableTable(ctx, &reports.TableFilters{Page: 3, Limit: 10})
	if err != nil {
		t.Fatalf("GetFilterableTable: %v", err)
	}
	if page3.TotalItems != 25 || page3.TotalPages != 3 {
		t.Fatalf("unexpected pagination: %+v", page3)
	}
	if len(page3.Rows) != 5 {
		t.Fatalf("page 3 of 25/10 expected 5 rows, got %d", len(page3.Rows))
	}

	statusFilter := "Canceled"
	canceled, err := engine.GetFilterableTable(ctx, &reports.TableFilters{DeliveryStatus: &statusFilter, Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("GetFilterableTable canceled: %v", err)
	}
	if canceled.TotalItems != 3 {
		t.Fatalf("expected 3 canceled orders, got %d", canceled.TotalItems)
	}

	top, err := engine.GetTopSellingProducts(ctx)
	if err != nil {
		t.Fatalf("GetTopSellingProducts: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 products, got %d", len(top))
	}
	if top[0].ProductId != "PROD-1" {
		t.Fatalf("expected PROD-1 on top, got %s", top[0].ProductId)
	}

	shares, err := engine.GetPlatformSalesShare(ctx)
	if err != nil {
		t.Fatalf("GetPlatformSalesShare: %v", err)
	}
	for _, s := range shares {
		if s.SharePercent.IsNegative() {
			t.Fatalf("negative share: %+v", s)
		}
	}

	// City/state backfill over the parseable addresses.
	updated, skipped, err := models.BackfillCityState(ctx, db)
	if err != nil {
		t.Fatalf("BackfillCityState: %v", err)
	}
	if updated == 0 {
		t.Fatalf("expected some backfilled deliveries, updated=%d skipped=%d", updated, skipped)
	}

	// Cached reads are bounded-stale: the summary does not see new rows until
	// the TTL lapses.
	extra := strings.Join(requiredHeader(), ",") + "\n" +
		"CUST-9,New Customer,new@example.com,9876500000,PROD-9,Webcam,Electronics,30.00,ORD-99,2,2024-02-20,addr,2024-02-24,Delivered,Amazon\n"
	if _, err := pipeline.ProcessCSV(ctx, strings.NewReader(extra), ""); err != nil {
		t.Fatalf("ProcessCSV extra: %v", err)
	}
	metricsAgain, err := engine.GetSummaryMetrics(ctx, "", "")
	if err != nil {
		t.Fatalf("GetSummaryMetrics cached: %v", err)
	}
	if metricsAgain.TotalOrders != 25 {
		t.Fatalf("expected cached summary with 25 orders, got %d", metricsAgain.TotalOrders)
	}
}

func requiredHeader() []string {
	return []string{
		"CustomerID", "CustomerName", "ContactEmail", "PhoneNumber",
		"ProductID", "ProductName", "Category", "SellingPrice",
		"OrderID", "QuantitySold", "DateOfSale",
		"DeliveryAddress", "DeliveryDate", "DeliveryStatus", "Platform",
	}
}

// 25 orders: 12 in January, 13 in February 2024. 3 customers, 2 products,
// every row 2 units at 10.50. Delivery statuses: 20 Delivered, 3 Canceled,
// 2 In Transit. PROD-1 appears on 15 orders, PROD-2 on 10.
func buildSalesCSV() string {
	var b strings.Builder
	b.WriteString(strings.Join(requiredHeader(), ",") + "\n")

	customers := []string{"CUST-1", "CUST-2", "CUST-3"}
	platforms := []string{
		string(models.PlatformAmazon),
		string(models.PlatformFlipkart),
		string(models.PlatformMeesho),
	}
	for i := 0; i < 25; i++ {
		customer := customers[i%3]
		product := "PROD-1"
		productName := "Wireless Mouse"
		if i >= 15 {
			product = "PROD-2"
			productName = "USB Keyboard"
		}
		var date string
		if i < 12 {
			date = fmt.Sprintf("2024-01-%02d", i+1)
		} else {
			date = fmt.Sprintf("2024-02-%02d", i-11)
		}
		status := "Delivered"
		switch {
		case i < 3:
			status = "Canceled"
		case i < 5:
			status = "In Transit"
		}
		b.WriteString(fmt.Sprintf(
			"%s,Customer %s,%s@example.com,987650%04d,%s,%s,Electronics,10.50,ORD-%d,2,%s,\"12 Main St, Springfield-45, Illinois-12\",%s,%s,%s\n",
			customer, customer, customer, i, product, productName, i+1, date, date, status, platforms[i%3]))
	}
	return b.String()
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("sales-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("sales-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=sales_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
