// Package services – AlertService
//
// This file implements the AlertService, which manages price alerts: creating
// them against existing listings and sweeping active alerts to refresh the
// observed price and trigger those whose target has been reached. The sweep
// runs from the scheduler task endpoint after each import.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/estateops/go-estate-backend/internal/domain"
)

// AlertRepo defines the repository contract required by AlertService.
type AlertRepo interface {
	// ListActive returns every alert still waiting for its target price.
	ListActive(ctx context.Context, db *gorm.DB) ([]domain.PriceAlert, error)

	// Get fetches an alert by ID, scoped to its owner.
	Get(ctx context.Context, db *gorm.DB, id, userID string) (*domain.PriceAlert, error)

	// Create inserts a new active alert.
	Create(ctx context.Context, db *gorm.DB, userID, houseID string, target, current decimal.Decimal) (*domain.PriceAlert, error)

	// Save persists the alert's mutable fields.
	Save(ctx context.Context, db *gorm.DB, a *domain.PriceAlert) error

	// GetHouse fetches the watched house.
	GetHouse(ctx context.Context, db *gorm.DB, id string) (*domain.House, error)
}

// SweepResult summarizes one alert sweep.
type SweepResult struct {
	Checked   int `json:"checked"`
	Triggered int `json:"triggered"`
	Errors    int `json:"errors"`
}

// AlertService manages price alerts over the listing catalog.
type AlertService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the alert repository used by this service.
	Repo AlertRepo
	// Log receives sweep progress.
	Log zerolog.Logger

	// Now is the clock; injectable for deterministic tests.
	Now func() time.Time
}

// NewAlertService constructs an AlertService on the real clock.
func NewAlertService(db *gorm.DB, r AlertRepo, log zerolog.Logger) *AlertService {
	return &AlertService{DB: db, Repo: r, Log: log, Now: time.Now}
}

// Create registers an alert for userID on the given house. The house's
// current price is captured at creation time.
func (s *AlertService) Create(ctx context.Context, userID, houseID string, target decimal.Decimal) (*domain.PriceAlert, error) {
	if !target.IsPositive() {
		return nil, ErrInvalidTargetPrice
	}
	h, err := s.Repo.GetHouse(ctx, s.DB, houseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHouseNotFound
		}
		return nil, err
	}
	return s.Repo.Create(ctx, s.DB, userID, houseID, target, h.Price)
}

// Cancel marks an alert cancelled. Only the owner may cancel it.
func (s *AlertService) Cancel(ctx context.Context, id, userID string) error {
	a, err := s.Repo.Get(ctx, s.DB, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAlertNotFound
		}
		return err
	}
	a.Status = domain.AlertCancelled
	return s.Repo.Save(ctx, s.DB, a)
}

// Sweep walks every active alert, refreshes its observed price from the
// house, and triggers it once the price has dropped to the target. A failure
// on one alert is counted and the sweep continues.
func (s *AlertService) Sweep(ctx context.Context) (SweepResult, error) {
	alerts, err := s.Repo.ListActive(ctx, s.DB)
	if err != nil {
		return SweepResult{}, err
	}

	var res SweepResult
	for i := range alerts {
		a := &alerts[i]
		res.Checked++

		h, err := s.Repo.GetHouse(ctx, s.DB, a.HouseID)
		if err != nil {
			res.Errors++
			s.Log.Error().Err(err).Str("alert_id", a.ID).Str("house_id", a.HouseID).Msg("alert sweep: house lookup failed")
			continue
		}

		a.CurrentPrice = h.Price
		if h.Price.IsPositive() && h.Price.LessThanOrEqual(a.TargetPrice) {
			now := s.Now()
			a.Status = domain.AlertTriggered
			a.TriggeredAt = &now
			res.Triggered++
			s.Log.Info().Str("alert_id", a.ID).Str("house_id", a.HouseID).
				Str("price", h.Price.String()).Str("target", a.TargetPrice.String()).
				Msg("price alert triggered")
		}
		if err := s.Repo.Save(ctx, s.DB, a); err != nil {
			res.Errors++
			s.Log.Error().Err(err).Str("alert_id", a.ID).Msg("alert sweep: save failed")
		}
	}
	return res, nil
}
