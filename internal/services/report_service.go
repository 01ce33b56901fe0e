// Package services – ReportService
//
// This file implements the ReportService, which snapshots the market into
// persisted reports: on-market aggregates plus deal volume for a trailing
// window, with the average deal price compared against the preceding window
// of the same length. Reports are generated from the scheduler task endpoint
// and read back through the analysis API.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/estateops/go-estate-backend/internal/domain"
	"github.com/estateops/go-estate-backend/internal/repo"
)

// ReportRepo defines the repository contract required by ReportService.
type ReportRepo interface {
	// GetDistrict fetches a district by ID.
	GetDistrict(ctx context.Context, db *gorm.DB, id string) (*domain.District, error)

	// AggregateAvailable returns price aggregates over available houses,
	// city-wide when districtID is empty.
	AggregateAvailable(ctx context.Context, db *gorm.DB, districtID string) (repo.DistrictAggregates, error)

	// ListDealsSince returns deals on or after since, optionally scoped to a
	// district.
	ListDealsSince(ctx context.Context, db *gorm.DB, districtID string, since time.Time) ([]repo.Deal, error)

	// Create inserts a generated report.
	Create(ctx context.Context, db *gorm.DB, r *domain.MarketReport) error

	// ListRecent returns stored reports, newest first.
	ListRecent(ctx context.Context, db *gorm.DB, districtID, reportType string, limit int) ([]domain.MarketReport, error)
}

// reportWindowDays maps a report type to its trailing window length.
var reportWindowDays = map[string]int{
	domain.ReportMonthly:   30,
	domain.ReportQuarterly: 90,
	domain.ReportYearly:    365,
}

// reportPeriodLabel is the period word used in report titles.
var reportPeriodLabel = map[string]string{
	domain.ReportMonthly:   "月度",
	domain.ReportQuarterly: "季度",
	domain.ReportYearly:    "年度",
}

// ReportService generates and lists market report snapshots.
type ReportService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the report repository used by this service.
	Repo ReportRepo
	// Log receives generation progress.
	Log zerolog.Logger

	// Now is the clock; injectable for deterministic tests.
	Now func() time.Time
}

// NewReportService constructs a ReportService on the real clock.
func NewReportService(db *gorm.DB, r ReportRepo, log zerolog.Logger) *ReportService {
	return &ReportService{DB: db, Repo: r, Log: log, Now: time.Now}
}

// Generate builds and persists one market report. An empty districtID
// produces a city-wide report; an empty reportType defaults to monthly.
// The price change rate compares the window's average deal price against
// the preceding window of the same length, zero when the previous window
// had no deals.
func (s *ReportService) Generate(ctx context.Context, districtID, reportType string) (*domain.MarketReport, error) {
	if reportType == "" {
		reportType = domain.ReportMonthly
	}
	days, ok := reportWindowDays[reportType]
	if !ok {
		return nil, ErrInvalidReportType
	}

	now := s.Now()
	start := now.AddDate(0, 0, -days)
	prevStart := start.AddDate(0, 0, -days)

	title := "全市" + reportPeriodLabel[reportType] + "市场报告"
	var districtRef *string
	if districtID != "" {
		d, err := s.Repo.GetDistrict(ctx, s.DB, districtID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrDistrictNotFound
			}
			return nil, err
		}
		title = d.Name + reportPeriodLabel[reportType] + "市场报告"
		districtRef = &d.ID
	}

	agg, err := s.Repo.AggregateAvailable(ctx, s.DB, districtID)
	if err != nil {
		return nil, err
	}

	// One query covers both windows; the boundary splits them here.
	deals, err := s.Repo.ListDealsSince(ctx, s.DB, districtID, prevStart)
	if err != nil {
		return nil, err
	}
	var curSum, prevSum float64
	var curN, prevN int
	for _, deal := range deals {
		if deal.DealDate.Before(start) {
			prevSum += deal.Price
			prevN++
		} else {
			curSum += deal.Price
			curN++
		}
	}

	var changeRate float64
	if prevN > 0 {
		prevAvg := prevSum / float64(prevN)
		var curAvg float64
		if curN > 0 {
			curAvg = curSum / float64(curN)
		}
		if prevAvg > 0 {
			changeRate = (curAvg - prevAvg) / prevAvg * 100
		}
	}

	direction := "下降"
	if changeRate > 0 {
		direction = "上涨"
	}
	summary := fmt.Sprintf(
		"本期平均价格%.2f万元，平均单价%.2f元/平米，在售房源%d套，成交%d套，价格%s%.2f%%",
		agg.AvgPrice, agg.AvgUnitPrice, agg.Count, curN, direction, absFloat(changeRate),
	)

	report := &domain.MarketReport{
		Title:             title,
		ReportType:        reportType,
		DistrictID:        districtRef,
		ReportDate:        now,
		AvgPrice:          decimal.NewFromFloat(agg.AvgPrice).Round(2),
		AvgUnitPrice:      decimal.NewFromFloat(agg.AvgUnitPrice).Round(2),
		TotalListings:     int(agg.Count),
		TotalTransactions: curN,
		PriceChangeRate:   decimal.NewFromFloat(changeRate).Round(2),
		Summary:           summary,
		Content:           fmt.Sprintf("报告时间范围: %s 至 %s", start.Format("2006-01-02"), now.Format("2006-01-02")),
	}
	if err := s.Repo.Create(ctx, s.DB, report); err != nil {
		return nil, err
	}
	s.Log.Info().Str("report_id", report.ID).Str("title", title).
		Int("listings", report.TotalListings).Int("deals", curN).
		Msg("market report generated")
	return report, nil
}

// Recent lists stored reports, newest first. A non-empty reportType must be
// one of the known periods.
func (s *ReportService) Recent(ctx context.Context, districtID, reportType string, limit int) ([]domain.MarketReport, error) {
	if reportType != "" {
		if _, ok := reportWindowDays[reportType]; !ok {
			return nil, ErrInvalidReportType
		}
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return s.Repo.ListRecent(ctx, s.DB, districtID, reportType, limit)
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
