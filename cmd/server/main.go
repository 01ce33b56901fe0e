// Command server runs the estate platform: the HTTP API plus the ingestion
// pipeline stages (scraper, importer, alert sweep, report generation)
// exposed as scheduler task endpoints. With -job it runs a single pipeline stage and exits, which is
// how cron invokes the stages without keeping a second process around.
//
// Usage:
//
//	server                 # serve the HTTP API
//	server -job scrape     # one-shot: fetch + export, then exit
//	server -job import     # one-shot: import pending spreadsheets, then exit
//	server -job alerts     # one-shot: sweep price alerts, then exit
//	server -job reports    # one-shot: generate the city-wide monthly report, then exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/estateops/go-estate-backend/internal/config"
	"github.com/estateops/go-estate-backend/internal/domain"
	httpapi "github.com/estateops/go-estate-backend/internal/http"
	"github.com/estateops/go-estate-backend/internal/http/handlers"
	"github.com/estateops/go-estate-backend/internal/importer"
	"github.com/estateops/go-estate-backend/internal/observability"
	"github.com/estateops/go-estate-backend/internal/repo"
	"github.com/estateops/go-estate-backend/internal/scraper"
	"github.com/estateops/go-estate-backend/internal/services"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	job := flag.String("job", "", "run a single pipeline stage (scrape|import|alerts|reports) and exit")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogging(cfg)

	db, err := repo.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Fatal().Err(err).Msg("failed to instrument database")
		}
	}

	scr := scraper.New(cfg.Scraper, log.With().Str("component", "scraper").Logger())
	imp := importer.New(db, cfg.Importer, log.With().Str("component", "importer").Logger())
	alerts := httpapi.NewAlertService(db)
	reports := httpapi.NewReportService(db)

	if *job != "" {
		if err := runJob(ctx, *job, scr, imp, alerts, reports); err != nil {
			log.Fatal().Err(err).Str("job", *job).Msg("job failed")
		}
		return
	}

	serve(ctx, db, cfg, handlers.TaskRunners{
		Scraper:  scr,
		Importer: imp,
		Alerts:   alerts,
		Reports:  reports,
	})
}

// runJob executes one pipeline stage to completion.
func runJob(ctx context.Context, name string, scr *scraper.Scraper, imp *importer.Importer, alerts *services.AlertService, reports *services.ReportService) error {
	switch name {
	case "scrape":
		res, err := scr.Run(ctx)
		if err != nil {
			return err
		}
		log.Info().Int("listings", res.Count).Str("output", res.OutputPath).Msg("scrape completed")
	case "import":
		summary, err := imp.ImportAll(ctx)
		if err != nil {
			return err
		}
		log.Info().
			Int("created", summary.TotalCreated).
			Int("updated", summary.TotalUpdated).
			Int("errors", summary.TotalErrors).
			Msg("import completed")
	case "alerts":
		res, err := alerts.Sweep(ctx)
		if err != nil {
			return err
		}
		log.Info().Int("checked", res.Checked).Int("triggered", res.Triggered).Msg("alert sweep completed")
	case "reports":
		report, err := reports.Generate(ctx, "", domain.ReportMonthly)
		if err != nil {
			return err
		}
		log.Info().Str("report_id", report.ID).Str("title", report.Title).Msg("market report completed")
	default:
		return fmt.Errorf("unknown job %q (want scrape, import, alerts, or reports)", name)
	}
	return nil
}

// setupLogging configures the global zerolog logger from config.
func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// serve runs the HTTP API until the context is cancelled, then drains
// in-flight requests.
func serve(ctx context.Context, db *gorm.DB, cfg config.Config, tasks handlers.TaskRunners) {
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, tasks, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
