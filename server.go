package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/sales_backend/config"
	"bitbucket.org/mmdatafocus/sales_backend/ingest"
	"bitbucket.org/mmdatafocus/sales_backend/models"
	"bitbucket.org/mmdatafocus/sales_backend/models/reports"
	"bitbucket.org/mmdatafocus/sales_backend/utils"
	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const defaultPort = "8080"

const maxUploadSizeBytes int64 = 20 * 1024 * 1024

var tracer = otel.Tracer("sales-dashboard")

// app carries the injected process-wide dependencies. Routes are registered
// before the stores are connected (the container must listen on $PORT
// quickly), so handlers read through this struct behind the ready gate.
type app struct {
	ready    atomic.Bool
	logger   *logrus.Logger
	db       *gorm.DB
	rdb      *redis.Client
	locker   *redislock.Client
	engine   *reports.Engine
	pipeline *ingest.Pipeline
}

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
}

type rangeQuery struct {
	StartDate string `form:"start_date" binding:"required"`
	EndDate   string `form:"end_date" binding:"required"`
}

type optionalRangeQuery struct {
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

type tableQuery struct {
	StartDate      *string `form:"start_date"`
	EndDate        *string `form:"end_date"`
	Category       *string `form:"category"`
	DeliveryStatus *string `form:"delivery_status"`
	Platform       *string `form:"platform"`
	State          *string `form:"state"`
	Page           int     `form:"page,default=1" binding:"min=1"`
	Limit          int     `form:"limit,default=10" binding:"min=1"`
}

type listQuery struct {
	Page  int `form:"page,default=1" binding:"min=1"`
	Limit int `form:"limit,default=10" binding:"min=1"`
}

func reportError(c *gin.Context, logger *logrus.Logger, funcName string, err error) {
	if errors.Is(err, reports.ErrInvalidRange) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	config.LogError(logger, "server.go", funcName, "report query", nil, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute report"})
}

func (a *app) uploadHandler(format string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "ingest.upload")
		defer span.End()

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 20MB limit"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}
		defer file.Close()

		body, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}

		requestID := uuid.NewString()
		span.SetAttributes(
			attribute.String("upload.file_name", fileHeader.Filename),
			attribute.Int64("upload.size", fileHeader.Size),
			attribute.String("upload.request_id", requestID),
		)

		// Best-effort double-submit guard: identical bytes uploaded twice
		// concurrently race on the same lock. Redis being down never blocks
		// ingestion; per-row order uniqueness is the real arbiter.
		if a.locker != nil {
			lockKey := fmt.Sprintf("ingest:lock:%x", sha256.Sum256(body))
			lock, lockErr := a.locker.Obtain(ctx, lockKey, 5*time.Minute, nil)
			if lockErr == redislock.ErrNotObtained {
				c.JSON(http.StatusConflict, gin.H{"error": "this file is already being processed"})
				return
			}
			if lockErr == nil {
				defer func() {
					if releaseErr := lock.Release(ctx); releaseErr != nil {
						a.logger.WithFields(logrus.Fields{
							"request_id": requestID,
						}).Warn("failed to release ingest lock: " + releaseErr.Error())
					}
				}()
			} else {
				a.logger.WithFields(logrus.Fields{
					"request_id": requestID,
				}).Warn("could not obtain ingest lock; proceeding: " + lockErr.Error())
			}
		}

		platformOverride := c.PostForm("platform")

		started := time.Now()
		var summary *ingest.Summary
		switch format {
		case "xlsx":
			summary, err = a.pipeline.ProcessXLSX(ctx, bytes.NewReader(body), platformOverride)
		default:
			summary, err = a.pipeline.ProcessCSV(ctx, bytes.NewReader(body), platformOverride)
		}
		if err != nil {
			// File-level failure: nothing was ingested.
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		a.logger.WithFields(logrus.Fields{
			"request_id":     requestID,
			"file_name":      fileHeader.Filename,
			"rows_attempted": summary.RowsAttempted,
			"rows_succeeded": summary.RowsSucceeded,
			"rows_failed":    summary.RowsFailed,
			"elapsed_ms":     time.Since(started).Milliseconds(),
		}).Info("[ingest.upload]")

		c.JSON(http.StatusCreated, gin.H{
			"message": "Data successfully imported!",
			"summary": summary,
		})
	}
}

func (a *app) updateStateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		updated, skipped, err := models.BackfillCityState(c.Request.Context(), a.db)
		if err != nil {
			config.LogError(a.logger, "server.go", "updateStateHandler", "BackfillCityState", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update city/state"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated, "skipped": skipped})
	}
}

func (a *app) monthlySalesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q rangeQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ValidationErrorMessages(err)})
			return
		}
		result, err := a.engine.GetMonthlySalesVolume(c.Request.Context(), q.StartDate, q.EndDate)
		if err != nil {
			reportError(c, a.logger, "monthlySalesHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

func (a *app) monthlyRevenueHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q rangeQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ValidationErrorMessages(err)})
			return
		}
		result, err := a.engine.GetMonthlyRevenue(c.Request.Context(), q.StartDate, q.EndDate)
		if err != nil {
			reportError(c, a.logger, "monthlyRevenueHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

func (a *app) summaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q optionalRangeQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ValidationErrorMessages(err)})
			return
		}
		result, err := a.engine.GetSummaryMetrics(c.Request.Context(), q.StartDate, q.EndDate)
		if err != nil {
			reportError(c, a.logger, "summaryHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

func (a *app) tableHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q tableQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ValidationErrorMessages(err)})
			return
		}
		result, err := a.engine.GetFilterableTable(c.Request.Context(), &reports.TableFilters{
			StartDate:      q.StartDate,
			EndDate:        q.EndDate,
			Category:       q.Category,
			DeliveryStatus: q.DeliveryStatus,
			Platform:       q.Platform,
			State:          q.State,
			Page:           q.Page,
			Limit:          q.Limit,
		})
		if err != nil {
			reportError(c, a.logger, "tableHandler", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (a *app) platformShareHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := a.engine.GetPlatformSalesShare(c.Request.Context())
		if err != nil {
			reportError(c, a.logger, "platformShareHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

func (a *app) topProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := a.engine.GetTopSellingProducts(c.Request.Context())
		if err != nil {
			reportError(c, a.logger, "topProductsHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

func (a *app) listCustomersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q listQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ValidationErrorMessages(err)})
			return
		}
		customers, total, err := models.ListCustomers(c.Request.Context(), a.db, q.Page, q.Limit)
		if err != nil {
			config.LogError(a.logger, "server.go", "listCustomersHandler", "ListCustomers", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list customers"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": customers, "total_items": total})
	}
}

func (a *app) listProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q listQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ValidationErrorMessages(err)})
			return
		}
		products, total, err := models.ListProducts(c.Request.Context(), a.db, q.Page, q.Limit)
		if err != nil {
			config.LogError(a.logger, "server.go", "listProductsHandler", "ListProducts", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list products"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": products, "total_items": total})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.NewLogger()
	a := &app{logger: logger}

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()

	// Correlation IDs: generate once per request and attach to logs via header.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Next()
	})

	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate endpoints on dependency readiness.
		if !a.ready.Load() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.POST("/upload-csv", a.uploadHandler("csv"))
	api.POST("/upload-xlsx", a.uploadHandler("xlsx"))
	api.POST("/update-state", a.updateStateHandler())
	api.GET("/sales/monthly", a.monthlySalesHandler())
	api.GET("/revenue/monthly", a.monthlyRevenueHandler())
	api.GET("/summary", a.summaryHandler())
	api.GET("/table", a.tableHandler())
	api.GET("/topsp", a.topProductsHandler())
	api.GET("/orderbyplatform", a.platformShareHandler())
	api.GET("/customers", a.listCustomersHandler())
	api.GET("/products", a.listProductsHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	db := config.ConnectDatabaseWithRetry()
	rdb, locker := config.ConnectRedisWithRetry()

	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable(db)
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	a.db = db
	a.rdb = rdb
	a.locker = locker
	a.engine = reports.NewEngine(db, reports.NewRedisCache(rdb), logger)
	a.pipeline = ingest.NewPipeline(db, logger, 0)
	a.ready.Store(true)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on port " + port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
