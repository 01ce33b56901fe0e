// Scheduler task HTTP handlers.
//
// This file exposes the task trigger endpoints an external scheduler (cron,
// systemd timer) calls to run the pipeline stages on demand:
//   - POST /tasks/scrape   (fetch the source page and export a spreadsheet)
//   - POST /tasks/import   (import pending spreadsheets into the store)
//   - POST /tasks/alerts   (sweep active price alerts)
//   - POST /tasks/reports  (generate a market report snapshot)
//
// The handlers run the stage synchronously and return its summary; the
// scheduler's timeout bounds the work via the request context.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/estateops/go-estate-backend/internal/domain"
	"github.com/estateops/go-estate-backend/internal/importer"
	"github.com/estateops/go-estate-backend/internal/scraper"
	"github.com/estateops/go-estate-backend/internal/services"
)

// ScrapeRunner runs one scrape-and-export cycle.
type ScrapeRunner interface {
	Run(ctx context.Context) (scraper.RunResult, error)
}

// ImportRunner imports all pending spreadsheets.
type ImportRunner interface {
	ImportAll(ctx context.Context) (importer.Summary, error)
}

// AlertSweeper sweeps active price alerts.
type AlertSweeper interface {
	Sweep(ctx context.Context) (services.SweepResult, error)
}

// ReportGenerator builds and persists one market report snapshot.
type ReportGenerator interface {
	Generate(ctx context.Context, districtID, reportType string) (*domain.MarketReport, error)
}

// TaskRunners bundles the pipeline stages exposed as scheduler tasks.
type TaskRunners struct {
	Scraper  ScrapeRunner
	Importer ImportRunner
	Alerts   AlertSweeper
	Reports  ReportGenerator
}

// RunScrape fetches the source page, parses its listings, and exports them to
// a spreadsheet. A fetch failure maps to 502 since the upstream site, not
// this service, failed.
func (h *Handlers) RunScrape(c *gin.Context) {
	res, err := h.tasks.Scraper.Run(c.Request.Context())
	if err != nil {
		var fe *scraper.FetchError
		if errors.As(err, &fe) {
			fail(c, http.StatusBadGateway, ErrCodeTaskFailed, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeTaskFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, res)
}

// RunImport imports every pending spreadsheet and returns the per-file
// summary.
func (h *Handlers) RunImport(c *gin.Context) {
	summary, err := h.tasks.Importer.ImportAll(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeTaskFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, summary)
}

// RunAlertSweep refreshes active price alerts and triggers those whose target
// has been reached.
func (h *Handlers) RunAlertSweep(c *gin.Context) {
	res, err := h.tasks.Alerts.Sweep(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeTaskFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, res)
}

// reportRequest is the optional body of POST /tasks/reports. An absent body
// generates a city-wide monthly report.
type reportRequest struct {
	DistrictID string `json:"district_id"`
	ReportType string `json:"report_type"`
}

// RunReportGeneration builds a market report for the requested district and
// period and returns the stored snapshot.
func (h *Handlers) RunReportGeneration(c *gin.Context) {
	var req reportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}

	report, err := h.tasks.Reports.Generate(c.Request.Context(), req.DistrictID, req.ReportType)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidReportType):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrDistrictNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "district not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeTaskFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, report)
}
