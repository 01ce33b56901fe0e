// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for House and
// HouseImage rows.
//
// The importer dedups houses on the (title, district_id, address) triple:
// FindHouseByKey resolves that natural key, and the caller decides between
// CreateHouse and SaveHouse. Image helpers guarantee the "at least one image
// per house" invariant without ever inserting a duplicate path.
//
// Functions:
//
//   - FindHouseByKey(ctx, db, title, districtID, address) -> *domain.House, error
//     Natural-key lookup; ErrNotFound when no row matches.
//
//   - CreateHouse(ctx, db, h) / SaveHouse(ctx, db, h)
//     Insert a new row (UUID assigned here) / persist all fields of an
//     existing row.
//
//   - HouseImageExists / CreateHouseImage
//     Existence check and insert for the (house, image path) pair.
//
//   - ListHouses(ctx, db, f, offset, limit) / CountHouses(ctx, db, f)
//     Filtered listing for the HTTP layer.
//
//   - GetHouse / IncrementHouseViews
//     Single-row fetch with images preloaded, and the view counter bump.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/estateops/go-estate-backend/internal/domain"
)

// HouseFilter narrows ListHouses/CountHouses. Zero values mean "no filter".
type HouseFilter struct {
	DistrictID string
	Status     string
	HouseType  string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
}

func (f HouseFilter) apply(q *gorm.DB) *gorm.DB {
	if f.DistrictID != "" {
		q = q.Where("district_id = ?", f.DistrictID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.HouseType != "" {
		q = q.Where("house_type = ?", f.HouseType)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	return q
}

// FindHouseByKey resolves the importer's natural key, or ErrNotFound.
func FindHouseByKey(ctx context.Context, db *gorm.DB, title, districtID, address string) (*domain.House, error) {
	var h domain.House
	err := db.WithContext(ctx).
		Where("title = ? AND district_id = ? AND address = ?", title, districtID, address).
		First(&h).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// CreateHouse inserts a new house row, assigning its UUID and CreatedAt.
func CreateHouse(ctx context.Context, db *gorm.DB, h *domain.House) error {
	h.ID = uuid.NewString()
	h.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(h).Error
}

// SaveHouse persists every field of an existing house row.
func SaveHouse(ctx context.Context, db *gorm.DB, h *domain.House) error {
	return db.WithContext(ctx).Save(h).Error
}

// HouseImageExists reports whether the house already references the image path.
func HouseImageExists(ctx context.Context, db *gorm.DB, houseID, image string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.HouseImage{}).
		Where("house_id = ? AND image = ?", houseID, image).
		Count(&n).Error
	return n > 0, err
}

// CreateHouseImage attaches an image to a house at the given order slot.
func CreateHouseImage(ctx context.Context, db *gorm.DB, houseID, image string, order int) (*domain.HouseImage, error) {
	img := &domain.HouseImage{
		ID:        uuid.NewString(),
		HouseID:   houseID,
		Image:     image,
		Order:     order,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(img).Error; err != nil {
		return nil, err
	}
	return img, nil
}

// CountHouseImages returns the number of images attached to a house.
func CountHouseImages(ctx context.Context, db *gorm.DB, houseID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.HouseImage{}).
		Where("house_id = ?", houseID).
		Count(&n).Error
	return n, err
}

// ListHouses returns a page of houses matching the filter, newest first.
func ListHouses(ctx context.Context, db *gorm.DB, f HouseFilter, offset, limit int) ([]domain.House, error) {
	var out []domain.House
	err := f.apply(db.WithContext(ctx).Model(&domain.House{})).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountHouses returns the number of houses matching the filter.
func CountHouses(ctx context.Context, db *gorm.DB, f HouseFilter) (int64, error) {
	var n int64
	err := f.apply(db.WithContext(ctx).Model(&domain.House{})).Count(&n).Error
	return n, err
}

// GetHouse fetches a house with its images preloaded, or ErrNotFound.
func GetHouse(ctx context.Context, db *gorm.DB, id string) (*domain.House, error) {
	var h domain.House
	err := db.WithContext(ctx).
		Preload("Images", func(q *gorm.DB) *gorm.DB { return q.Order("sort_order ASC") }).
		Where("id = ?", id).
		First(&h).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// IncrementHouseViews bumps the view counter without racing other readers.
func IncrementHouseViews(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Model(&domain.House{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + 1")).Error
}
