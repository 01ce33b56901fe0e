// Package services – AnalysisService
//
// This file implements the AnalysisService, which derives market statistics
// from stored listings and transactions: monthly price trends, per-district
// comparisons, a listing heat index, and simple gross-yield investment
// metrics. Monthly bucketing happens here rather than in SQL so the same
// code serves both the SQLite and MySQL backends.
package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/estateops/go-estate-backend/internal/domain"
	"github.com/estateops/go-estate-backend/internal/repo"
)

// wanToYuan converts the stored 万元 prices to 元 for unit-price arithmetic.
var wanToYuan = decimal.NewFromInt(10000)

// StatsRepo defines the repository contract required by AnalysisService.
type StatsRepo interface {
	// ListDistricts returns all districts ordered by name.
	ListDistricts(ctx context.Context, db *gorm.DB) ([]domain.District, error)

	// AggregateDistrict returns price aggregates over a district's available
	// houses.
	AggregateDistrict(ctx context.Context, db *gorm.DB, districtID string) (repo.DistrictAggregates, error)

	// ListDealsSince returns deals on or after since, optionally scoped to a
	// district.
	ListDealsSince(ctx context.Context, db *gorm.DB, districtID string, since time.Time) ([]repo.Deal, error)

	// HouseEngagement returns view, favorite, and recent-deal counts for a
	// house.
	HouseEngagement(ctx context.Context, db *gorm.DB, houseID string, now time.Time) (repo.Engagement, error)

	// GetHouse fetches a house by ID.
	GetHouse(ctx context.Context, db *gorm.DB, id string) (*domain.House, error)
}

// TrendPoint is one month of deal activity.
type TrendPoint struct {
	Month        string          `json:"month"` // YYYY-MM
	AvgPrice     decimal.Decimal `json:"avg_price"`
	AvgUnitPrice decimal.Decimal `json:"avg_unit_price"`
	Deals        int             `json:"deals"`
}

// DistrictStat is one district's aggregate row in a comparison.
type DistrictStat struct {
	DistrictID   string          `json:"district_id"`
	District     string          `json:"district"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	AvgUnitPrice decimal.Decimal `json:"avg_unit_price"`
	MinPrice     decimal.Decimal `json:"min_price"`
	MaxPrice     decimal.Decimal `json:"max_price"`
	Listings     int64           `json:"listings"`
}

// HeatIndex scores a listing's buyer interest.
type HeatIndex struct {
	HouseID     string `json:"house_id"`
	Views       int64  `json:"views"`
	Favorites   int64  `json:"favorites"`
	RecentDeals int64  `json:"recent_deals"`
	Score       int64  `json:"score"`
	Level       string `json:"level"` // low, medium, high
}

// InvestmentMetrics holds gross-yield style arithmetic for one listing.
type InvestmentMetrics struct {
	HouseID       string          `json:"house_id"`
	Price         decimal.Decimal `json:"price"` // 万元
	MonthlyRent   decimal.Decimal `json:"monthly_rent"`
	AnnualRent    decimal.Decimal `json:"annual_rent"`
	GrossYieldPct decimal.Decimal `json:"gross_yield_pct"`
	PaybackYears  decimal.Decimal `json:"payback_years"`
	PricePerSqm   decimal.Decimal `json:"price_per_sqm"`
	RentPerSqm    decimal.Decimal `json:"rent_per_sqm,omitempty"`
	AreaKnown     bool            `json:"area_known"`
}

// AnalysisService derives market statistics from the stored rows.
type AnalysisService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the statistics repository used by this service.
	Repo StatsRepo

	// Now is the clock; injectable for deterministic tests.
	Now func() time.Time
}

// NewAnalysisService constructs an AnalysisService on the real clock.
func NewAnalysisService(db *gorm.DB, r StatsRepo) *AnalysisService {
	return &AnalysisService{DB: db, Repo: r, Now: time.Now}
}

// PriceTrend buckets the district's deals of the trailing months window by
// calendar month and averages each bucket. Months without deals are omitted.
// An empty districtID means city-wide.
func (s *AnalysisService) PriceTrend(ctx context.Context, districtID string, months int) ([]TrendPoint, error) {
	if months < 1 {
		months = 12
	}
	since := s.Now().AddDate(0, -months, 0)
	deals, err := s.Repo.ListDealsSince(ctx, s.DB, districtID, since)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		priceSum float64
		unitSum  float64
		unitN    int
		n        int
	}
	buckets := map[string]*bucket{}
	for _, deal := range deals {
		key := deal.DealDate.Format("2006-01")
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.priceSum += deal.Price
		b.n++
		if deal.Area > 0 {
			b.unitSum += deal.Price * 10000 / deal.Area
			b.unitN++
		}
	}

	out := make([]TrendPoint, 0, len(buckets))
	for month, b := range buckets {
		p := TrendPoint{Month: month, Deals: b.n}
		p.AvgPrice = decimal.NewFromFloat(b.priceSum / float64(b.n)).Round(2)
		if b.unitN > 0 {
			p.AvgUnitPrice = decimal.NewFromFloat(b.unitSum / float64(b.unitN)).Round(2)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

// DistrictComparison aggregates every district's available listings. Districts
// without listings are included with zero aggregates.
func (s *AnalysisService) DistrictComparison(ctx context.Context) ([]DistrictStat, error) {
	districts, err := s.Repo.ListDistricts(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	out := make([]DistrictStat, 0, len(districts))
	for _, d := range districts {
		agg, err := s.Repo.AggregateDistrict(ctx, s.DB, d.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, DistrictStat{
			DistrictID:   d.ID,
			District:     d.Name,
			AvgPrice:     decimal.NewFromFloat(agg.AvgPrice).Round(2),
			AvgUnitPrice: decimal.NewFromFloat(agg.AvgUnitPrice).Round(2),
			MinPrice:     decimal.NewFromFloat(agg.MinPrice),
			MaxPrice:     decimal.NewFromFloat(agg.MaxPrice),
			Listings:     agg.Count,
		})
	}
	return out, nil
}

// Heat index weights. Favorites signal stronger intent than views, and a
// recent deal in the building stronger still.
const (
	heatViewWeight = 1
	heatFavWeight  = 5
	heatDealWeight = 10

	heatMediumThreshold = 50
	heatHighThreshold   = 200
)

// Heat scores one listing's engagement over the trailing 90 days of deals.
func (s *AnalysisService) Heat(ctx context.Context, houseID string) (HeatIndex, error) {
	if _, err := s.Repo.GetHouse(ctx, s.DB, houseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return HeatIndex{}, ErrHouseNotFound
		}
		return HeatIndex{}, err
	}
	eng, err := s.Repo.HouseEngagement(ctx, s.DB, houseID, s.Now())
	if err != nil {
		return HeatIndex{}, err
	}
	score := int64(eng.Views)*heatViewWeight + eng.Favorites*heatFavWeight + eng.RecentDeals*heatDealWeight
	level := "low"
	switch {
	case score >= heatHighThreshold:
		level = "high"
	case score >= heatMediumThreshold:
		level = "medium"
	}
	return HeatIndex{
		HouseID:     houseID,
		Views:       int64(eng.Views),
		Favorites:   eng.Favorites,
		RecentDeals: eng.RecentDeals,
		Score:       score,
		Level:       level,
	}, nil
}

// Investment computes gross rental yield metrics for a listing given an
// assumed monthly rent in 元. Prices are stored in 万元.
func (s *AnalysisService) Investment(ctx context.Context, houseID string, monthlyRent decimal.Decimal) (InvestmentMetrics, error) {
	h, err := s.Repo.GetHouse(ctx, s.DB, houseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return InvestmentMetrics{}, ErrHouseNotFound
		}
		return InvestmentMetrics{}, err
	}
	if !h.Price.IsPositive() {
		return InvestmentMetrics{}, ErrNoPriceData
	}

	priceYuan := h.Price.Mul(wanToYuan)
	annualRent := monthlyRent.Mul(decimal.NewFromInt(12))

	m := InvestmentMetrics{
		HouseID:     houseID,
		Price:       h.Price,
		MonthlyRent: monthlyRent,
		AnnualRent:  annualRent,
	}
	if annualRent.IsPositive() {
		m.GrossYieldPct = annualRent.Div(priceYuan).Mul(decimal.NewFromInt(100)).Round(2)
		m.PaybackYears = priceYuan.Div(annualRent).Round(1)
	}
	if h.Area.IsPositive() {
		m.AreaKnown = true
		m.PricePerSqm = priceYuan.Div(h.Area).Round(2)
		if monthlyRent.IsPositive() {
			m.RentPerSqm = monthlyRent.Div(h.Area).Round(2)
		}
	}
	return m, nil
}
