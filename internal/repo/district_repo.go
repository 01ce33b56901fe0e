// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the District
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a district is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// The importer's get-or-create idiom is deliberately split into FindDistrict
// and CreateDistrict so both halves are testable in isolation; the importer
// composes them inside a row transaction.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/estateops/go-estate-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// FindDistrict fetches a district by its unique name, or ErrNotFound.
func FindDistrict(ctx context.Context, db *gorm.DB, name string) (*domain.District, error) {
	var d domain.District
	if err := db.WithContext(ctx).Where("name = ?", name).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDistrict inserts a new district row with a UUID primary key.
func CreateDistrict(ctx context.Context, db *gorm.DB, name, city, description string) (*domain.District, error) {
	d := &domain.District{
		ID:          uuid.NewString(),
		Name:        name,
		City:        city,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// PatchDistrict applies a partial update to an existing district. Empty
// updates are a no-op. The pipeline uses this to correct the city and
// backfill the description; it never deletes districts.
func PatchDistrict(ctx context.Context, db *gorm.DB, d *domain.District, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(d).Updates(updates).Error
}

// ListDistricts returns all districts ordered by name.
func ListDistricts(ctx context.Context, db *gorm.DB) ([]domain.District, error) {
	var out []domain.District
	if err := db.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// GetDistrict fetches a district by ID, or ErrNotFound.
func GetDistrict(ctx context.Context, db *gorm.DB, id string) (*domain.District, error) {
	var d domain.District
	if err := db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}
