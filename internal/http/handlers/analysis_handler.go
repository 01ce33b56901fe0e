// Market analysis HTTP handlers.
//
// This file exposes the read-only analytics endpoints:
//   - GET /analysis/trend                     (monthly price trend)
//   - GET /analysis/districts                 (per-district comparison)
//   - GET /analysis/houses/{id}/heat          (listing heat index)
//   - GET /analysis/houses/{id}/investment    (gross-yield metrics)
//   - GET /analysis/reports                   (stored market reports)
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/estateops/go-estate-backend/internal/domain"
	"github.com/estateops/go-estate-backend/internal/services"
	"github.com/estateops/go-estate-backend/internal/utils"
)

// AnalysisService defines the analytics operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AnalysisService interface {
	// PriceTrend returns monthly deal buckets for a district (or city-wide).
	PriceTrend(ctx context.Context, districtID string, months int) ([]services.TrendPoint, error)
	// DistrictComparison aggregates every district's available listings.
	DistrictComparison(ctx context.Context) ([]services.DistrictStat, error)
	// Heat scores one listing's engagement.
	Heat(ctx context.Context, houseID string) (services.HeatIndex, error)
	// Investment computes gross rental yield metrics for a listing.
	Investment(ctx context.Context, houseID string, monthlyRent decimal.Decimal) (services.InvestmentMetrics, error)
}

// ReportStore lists stored market reports for the read side of the API.
type ReportStore interface {
	// Recent returns reports newest first, optionally filtered by district
	// and report type.
	Recent(ctx context.Context, districtID, reportType string, limit int) ([]domain.MarketReport, error)
}

// PriceTrend returns monthly average prices over the requested window.
// Query params: district_id (optional), months (default 12).
func (h *Handlers) PriceTrend(c *gin.Context) {
	months := utils.AtoiDefault(c.Query("months"), 12)
	points, err := h.analysisSvc.PriceTrend(c.Request.Context(), c.Query("district_id"), months)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"trend": points})
}

// DistrictComparison returns price aggregates per district.
func (h *Handlers) DistrictComparison(c *gin.Context) {
	stats, err := h.analysisSvc.DistrictComparison(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"districts": stats})
}

// HouseHeat returns the heat index for one listing.
func (h *Handlers) HouseHeat(c *gin.Context) {
	heat, err := h.analysisSvc.Heat(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrHouseNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "house not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, heat)
}

// HouseInvestment returns gross-yield metrics for one listing. The assumed
// monthly rent (元) is passed via the monthly_rent query parameter.
func (h *Handlers) HouseInvestment(c *gin.Context) {
	rent := utils.DecimalPtr(c.Query("monthly_rent"))
	if rent == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "monthly_rent is required")
		return
	}

	m, err := h.analysisSvc.Investment(c.Request.Context(), c.Param("id"), *rent)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrHouseNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "house not found")
		case errors.Is(err, services.ErrNoPriceData):
			fail(c, http.StatusUnprocessableEntity, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, m)
}

// ListMarketReports returns stored market reports, newest first.
// Query params: district_id, report_type (both optional), limit (default 10).
func (h *Handlers) ListMarketReports(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 10)
	reports, err := h.reports.Recent(c.Request.Context(), c.Query("district_id"), c.Query("report_type"), limit)
	if err != nil {
		if errors.Is(err, services.ErrInvalidReportType) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"reports": reports})
}
