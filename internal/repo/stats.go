// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries that
// feed the analysis service. Each function is context-aware and safe to call
// from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/estateops/go-estate-backend/internal/domain"
)

// DistrictAggregates summarizes the on-market inventory of one district.
type DistrictAggregates struct {
	AvgPrice     float64
	AvgUnitPrice float64
	MinPrice     float64
	MaxPrice     float64
	Count        int64
}

// AggregateDistrict computes price aggregates over available houses in a
// district. When the district has no available houses, Count is 0 and the
// price fields are zero.
func AggregateDistrict(ctx context.Context, db *gorm.DB, districtID string) (DistrictAggregates, error) {
	return AggregateAvailable(ctx, db, districtID)
}

// AggregateAvailable computes price aggregates over available houses,
// optionally scoped to one district. An empty districtID aggregates the
// whole city.
func AggregateAvailable(ctx context.Context, db *gorm.DB, districtID string) (DistrictAggregates, error) {
	var agg DistrictAggregates
	q := db.WithContext(ctx).Model(&domain.House{}).
		Where("status = ?", domain.StatusAvailable)
	if districtID != "" {
		q = q.Where("district_id = ?", districtID)
	}

	if err := q.Count(&agg.Count).Error; err != nil {
		return agg, err
	}
	if agg.Count == 0 {
		return agg, nil
	}

	row := struct {
		AvgPrice     float64
		AvgUnitPrice float64
		MinPrice     float64
		MaxPrice     float64
	}{}
	err := q.Select(
		"AVG(price) AS avg_price, AVG(unit_price) AS avg_unit_price, MIN(price) AS min_price, MAX(price) AS max_price",
	).Scan(&row).Error
	if err != nil {
		return agg, err
	}
	agg.AvgPrice = row.AvgPrice
	agg.AvgUnitPrice = row.AvgUnitPrice
	agg.MinPrice = row.MinPrice
	agg.MaxPrice = row.MaxPrice
	return agg, nil
}

// Deal is one transaction joined with the area of its house, the unit the
// analysis service buckets by month.
type Deal struct {
	DealDate time.Time
	Price    float64
	Area     float64
}

// ListDealsSince returns transactions from the window [since, now], newest
// last, optionally scoped to one district. Monthly bucketing is done in the
// service layer to stay portable across SQLite and MySQL date functions.
func ListDealsSince(ctx context.Context, db *gorm.DB, districtID string, since time.Time) ([]Deal, error) {
	q := db.WithContext(ctx).Model(&domain.Transaction{}).
		Select("transactions.deal_date AS deal_date, transactions.deal_price AS price, houses.area AS area").
		Joins("JOIN houses ON houses.id = transactions.house_id").
		Where("transactions.deal_date >= ?", since)
	if districtID != "" {
		q = q.Where("houses.district_id = ?", districtID)
	}

	var out []Deal
	if err := q.Order("transactions.deal_date ASC").Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Engagement carries the raw signals behind the heat index of one house.
type Engagement struct {
	Views       int
	Favorites   int64
	RecentDeals int64
}

// HouseEngagement collects view count, favorite count, and the number of
// transactions in the trailing 90 days for a house.
func HouseEngagement(ctx context.Context, db *gorm.DB, houseID string, now time.Time) (Engagement, error) {
	var e Engagement

	var h domain.House
	if err := db.WithContext(ctx).Select("views").Where("id = ?", houseID).First(&h).Error; err != nil {
		return e, err
	}
	e.Views = h.Views

	if err := db.WithContext(ctx).Model(&domain.Favorite{}).
		Where("house_id = ?", houseID).Count(&e.Favorites).Error; err != nil {
		return e, err
	}

	err := db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("house_id = ? AND deal_date >= ?", houseID, now.AddDate(0, 0, -90)).
		Count(&e.RecentDeals).Error
	return e, err
}
