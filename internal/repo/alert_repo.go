package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/estateops/go-estate-backend/internal/domain"
)

// ListActiveAlerts returns every alert still waiting for its target price,
// oldest first.
func ListActiveAlerts(ctx context.Context, db *gorm.DB) ([]domain.PriceAlert, error) {
	var out []domain.PriceAlert
	err := db.WithContext(ctx).
		Where("status = ?", domain.AlertActive).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// GetAlert fetches an alert by ID, scoped to its owner.
func GetAlert(ctx context.Context, db *gorm.DB, id, userID string) (*domain.PriceAlert, error) {
	var a domain.PriceAlert
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAlert inserts a new active alert for the given user and house.
func CreateAlert(ctx context.Context, db *gorm.DB, userID, houseID string, target, current decimal.Decimal) (*domain.PriceAlert, error) {
	a := &domain.PriceAlert{
		ID:           uuid.NewString(),
		UserID:       userID,
		HouseID:      houseID,
		TargetPrice:  target,
		CurrentPrice: current,
		Status:       domain.AlertActive,
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// SaveAlert persists the alert's mutable fields.
func SaveAlert(ctx context.Context, db *gorm.DB, a *domain.PriceAlert) error {
	return db.WithContext(ctx).Save(a).Error
}
