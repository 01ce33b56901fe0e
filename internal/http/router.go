// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, compression,
// CORS, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS posture
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/estateops/go-estate-backend/internal/config"
	"github.com/estateops/go-estate-backend/internal/domain"
	"github.com/estateops/go-estate-backend/internal/http/handlers"
	"github.com/estateops/go-estate-backend/internal/http/middleware"
	"github.com/estateops/go-estate-backend/internal/repo"
	"github.com/estateops/go-estate-backend/internal/services"
)

// houseRepoShim adapts the repository free functions to the
// services.HouseRepo interface expected by the HouseService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type houseRepoShim struct{}

// List proxies repo.ListHouses, mapping the service query to a repo filter.
func (houseRepoShim) List(ctx context.Context, db *gorm.DB, q services.HouseQuery, offset, limit int) ([]domain.House, error) {
	return repo.ListHouses(ctx, db, houseFilter(q), offset, limit)
}

// Count proxies repo.CountHouses.
func (houseRepoShim) Count(ctx context.Context, db *gorm.DB, q services.HouseQuery) (int64, error) {
	return repo.CountHouses(ctx, db, houseFilter(q))
}

// Get proxies repo.GetHouse.
func (houseRepoShim) Get(ctx context.Context, db *gorm.DB, id string) (*domain.House, error) {
	return repo.GetHouse(ctx, db, id)
}

// Create proxies repo.CreateHouse.
func (houseRepoShim) Create(ctx context.Context, db *gorm.DB, h *domain.House) error {
	return repo.CreateHouse(ctx, db, h)
}

// Save proxies repo.SaveHouse.
func (houseRepoShim) Save(ctx context.Context, db *gorm.DB, h *domain.House) error {
	return repo.SaveHouse(ctx, db, h)
}

// IncrementViews proxies repo.IncrementHouseViews.
func (houseRepoShim) IncrementViews(ctx context.Context, db *gorm.DB, id string) error {
	return repo.IncrementHouseViews(ctx, db, id)
}

func houseFilter(q services.HouseQuery) repo.HouseFilter {
	return repo.HouseFilter{
		DistrictID: q.DistrictID,
		Status:     q.Status,
		HouseType:  q.HouseType,
		MinPrice:   q.MinPrice,
		MaxPrice:   q.MaxPrice,
	}
}

// statsRepoShim adapts the repository free functions to services.StatsRepo.
type statsRepoShim struct{}

func (statsRepoShim) ListDistricts(ctx context.Context, db *gorm.DB) ([]domain.District, error) {
	return repo.ListDistricts(ctx, db)
}

func (statsRepoShim) AggregateDistrict(ctx context.Context, db *gorm.DB, districtID string) (repo.DistrictAggregates, error) {
	return repo.AggregateDistrict(ctx, db, districtID)
}

func (statsRepoShim) ListDealsSince(ctx context.Context, db *gorm.DB, districtID string, since time.Time) ([]repo.Deal, error) {
	return repo.ListDealsSince(ctx, db, districtID, since)
}

func (statsRepoShim) HouseEngagement(ctx context.Context, db *gorm.DB, houseID string, now time.Time) (repo.Engagement, error) {
	return repo.HouseEngagement(ctx, db, houseID, now)
}

func (statsRepoShim) GetHouse(ctx context.Context, db *gorm.DB, id string) (*domain.House, error) {
	return repo.GetHouse(ctx, db, id)
}

// alertRepoShim adapts the repository free functions to services.AlertRepo.
type alertRepoShim struct{}

func (alertRepoShim) ListActive(ctx context.Context, db *gorm.DB) ([]domain.PriceAlert, error) {
	return repo.ListActiveAlerts(ctx, db)
}

func (alertRepoShim) Get(ctx context.Context, db *gorm.DB, id, userID string) (*domain.PriceAlert, error) {
	return repo.GetAlert(ctx, db, id, userID)
}

func (alertRepoShim) Create(ctx context.Context, db *gorm.DB, userID, houseID string, target, current decimal.Decimal) (*domain.PriceAlert, error) {
	return repo.CreateAlert(ctx, db, userID, houseID, target, current)
}

func (alertRepoShim) Save(ctx context.Context, db *gorm.DB, a *domain.PriceAlert) error {
	return repo.SaveAlert(ctx, db, a)
}

func (alertRepoShim) GetHouse(ctx context.Context, db *gorm.DB, id string) (*domain.House, error) {
	return repo.GetHouse(ctx, db, id)
}

// reportRepoShim adapts the repository free functions to services.ReportRepo.
type reportRepoShim struct{}

func (reportRepoShim) GetDistrict(ctx context.Context, db *gorm.DB, id string) (*domain.District, error) {
	return repo.GetDistrict(ctx, db, id)
}

func (reportRepoShim) AggregateAvailable(ctx context.Context, db *gorm.DB, districtID string) (repo.DistrictAggregates, error) {
	return repo.AggregateAvailable(ctx, db, districtID)
}

func (reportRepoShim) ListDealsSince(ctx context.Context, db *gorm.DB, districtID string, since time.Time) ([]repo.Deal, error) {
	return repo.ListDealsSince(ctx, db, districtID, since)
}

func (reportRepoShim) Create(ctx context.Context, db *gorm.DB, r *domain.MarketReport) error {
	return repo.CreateReport(ctx, db, r)
}

func (reportRepoShim) ListRecent(ctx context.Context, db *gorm.DB, districtID, reportType string, limit int) ([]domain.MarketReport, error) {
	return repo.ListReports(ctx, db, districtID, reportType, limit)
}

// districtStore adapts the repository free functions to handlers.DistrictStore.
type districtStore struct {
	db *gorm.DB
}

// List proxies repo.ListDistricts.
func (s districtStore) List(ctx context.Context) ([]domain.District, error) {
	return repo.ListDistricts(ctx, s.db)
}

// Get proxies repo.GetDistrict, translating the repo sentinel.
func (s districtStore) Get(ctx context.Context, id string) (*domain.District, error) {
	d, err := repo.GetDistrict(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, services.ErrDistrictNotFound
		}
		return nil, err
	}
	return d, nil
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting,
// CORS and compression, health and metrics endpoints, and then mounts the
// versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per user/IP)
//  8. CORS and gzip compression
func RegisterRoutes(r *gin.Engine, db *gorm.DB, tasks handlers.TaskRunners, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Compress JSON responses; listing pages benefit the most.
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db
	houseSvc := services.NewHouseService(db, houseRepoShim{})
	analysisSvc := services.NewAnalysisService(db, statsRepoShim{})
	reportSvc := NewReportService(db)
	h := handlers.New(houseSvc, districtStore{db: db}, analysisSvc, reportSvc, tasks)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Houses
		api.GET("/houses", h.ListHouses)
		api.POST("/houses", h.CreateHouse)
		api.GET("/houses/:id", h.GetHouse)
		api.PUT("/houses/:id/status", h.UpdateHouseStatus)

		// Districts
		api.GET("/districts", h.ListDistricts)
		api.GET("/districts/:id", h.GetDistrict)

		// Analysis
		api.GET("/analysis/trend", h.PriceTrend)
		api.GET("/analysis/districts", h.DistrictComparison)
		api.GET("/analysis/houses/:id/heat", h.HouseHeat)
		api.GET("/analysis/houses/:id/investment", h.HouseInvestment)
		api.GET("/analysis/reports", h.ListMarketReports)

		// Scheduler task triggers
		api.POST("/tasks/scrape", h.RunScrape)
		api.POST("/tasks/import", h.RunImport)
		api.POST("/tasks/alerts", h.RunAlertSweep)
		api.POST("/tasks/reports", h.RunReportGeneration)
	}
}

// NewAlertService builds the alert service over the shared repo shims so the
// scheduler task wiring in cmd/server uses the same persistence path as the
// HTTP layer.
func NewAlertService(db *gorm.DB) *services.AlertService {
	return services.NewAlertService(db, alertRepoShim{}, log.With().Str("component", "alerts").Logger())
}

// NewReportService builds the market report service over the shared repo
// shims, used by both the analysis read endpoint and the scheduler task
// wiring in cmd/server.
func NewReportService(db *gorm.DB) *services.ReportService {
	return services.NewReportService(db, reportRepoShim{}, log.With().Str("component", "reports").Logger())
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
