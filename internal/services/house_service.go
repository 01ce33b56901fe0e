// Package services – HouseService
//
// This file implements the HouseService, which serves the listing catalog:
// filtered and paginated listing pages, detail lookups (which count a view),
// creation of new listings, and status transitions. Validation of filter
// ranges and status values happens here so handlers can map the sentinel
// errors to HTTP results consistently.
package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/estateops/go-estate-backend/internal/domain"
)

// HouseQuery narrows a listing page. Zero values mean "no constraint".
type HouseQuery struct {
	DistrictID string
	Status     string
	HouseType  string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
}

// HouseRepo defines the repository contract required by HouseService.
type HouseRepo interface {
	// List returns a page of houses matching the query, newest first.
	List(ctx context.Context, db *gorm.DB, q HouseQuery, offset, limit int) ([]domain.House, error)

	// Count returns the total number of houses matching the query.
	Count(ctx context.Context, db *gorm.DB, q HouseQuery) (int64, error)

	// Get fetches a house by ID with its images preloaded.
	Get(ctx context.Context, db *gorm.DB, id string) (*domain.House, error)

	// Create inserts a new house row.
	Create(ctx context.Context, db *gorm.DB, h *domain.House) error

	// Save persists the house's mutable fields.
	Save(ctx context.Context, db *gorm.DB, h *domain.House) error

	// IncrementViews bumps the house's view counter atomically.
	IncrementViews(ctx context.Context, db *gorm.DB, id string) error
}

// HouseService provides catalog-level operations over houses.
type HouseService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the house repository used by this service.
	Repo HouseRepo

	// PageSizeDefault applies when a request omits the page size.
	PageSizeDefault int
	// PageSizeMax caps the page size a client may request.
	PageSizeMax int
}

// NewHouseService constructs a HouseService with sane pagination defaults.
func NewHouseService(db *gorm.DB, r HouseRepo) *HouseService {
	return &HouseService{
		DB:              db,
		Repo:            r,
		PageSizeDefault: 20,
		PageSizeMax:     100,
	}
}

// ListPage returns a page of houses matching the query plus the total count.
// Invalid page/pageSize fall back to defaults; an inverted price range or an
// unknown status is rejected.
func (s *HouseService) ListPage(ctx context.Context, q HouseQuery, page, pageSize int) ([]domain.House, int64, error) {
	if err := validateQuery(q); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.PageSizeDefault
	}
	if pageSize > s.PageSizeMax {
		pageSize = s.PageSizeMax
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.Count(ctx, s.DB, q)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.House{}, 0, nil
	}

	items, err := s.Repo.List(ctx, s.DB, q, offset, pageSize)
	return items, total, err
}

// Get fetches a house by ID and counts the access as a view. The returned
// house reflects the incremented counter.
func (s *HouseService) Get(ctx context.Context, id string) (*domain.House, error) {
	h, err := s.Repo.Get(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHouseNotFound
		}
		return nil, err
	}
	if err := s.Repo.IncrementViews(ctx, s.DB, id); err != nil {
		return nil, err
	}
	h.Views++
	return h, nil
}

// Create inserts a new house after validating the required fields. A blank
// status defaults to available.
func (s *HouseService) Create(ctx context.Context, h *domain.House) error {
	if h.Title == "" {
		return ErrMissingTitle
	}
	if h.DistrictID == "" {
		return ErrMissingDistrict
	}
	if h.Status == "" {
		h.Status = domain.StatusAvailable
	}
	if !validStatus(h.Status) {
		return ErrInvalidStatus
	}
	return s.Repo.Create(ctx, s.DB, h)
}

// UpdateStatus transitions a house to the given status.
func (s *HouseService) UpdateStatus(ctx context.Context, id, status string) (*domain.House, error) {
	if !validStatus(status) {
		return nil, ErrInvalidStatus
	}
	h, err := s.Repo.Get(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHouseNotFound
		}
		return nil, err
	}
	h.Status = status
	if err := s.Repo.Save(ctx, s.DB, h); err != nil {
		return nil, err
	}
	return h, nil
}

func validateQuery(q HouseQuery) error {
	if q.Status != "" && !validStatus(q.Status) {
		return ErrInvalidStatus
	}
	if q.MinPrice != nil && q.MaxPrice != nil && q.MinPrice.GreaterThan(*q.MaxPrice) {
		return ErrInvalidPriceRange
	}
	return nil
}

func validStatus(status string) bool {
	switch status {
	case domain.StatusAvailable, domain.StatusSold, domain.StatusReserved:
		return true
	}
	return false
}
