// House and district HTTP handlers.
//
// This file exposes REST endpoints for the listing catalog:
//   - GET    /houses          (list, filtered and paginated)
//   - GET    /houses/{id}     (detail, counts a view)
//   - POST   /houses          (create)
//   - PUT    /houses/{id}/status (status transition)
//   - GET    /districts       (list)
//   - GET    /districts/{id}  (detail)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/estateops/go-estate-backend/internal/domain"
	"github.com/estateops/go-estate-backend/internal/services"
	"github.com/estateops/go-estate-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// HouseService defines catalog operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type HouseService interface {
	// ListPage returns a page of houses matching the query and the total count.
	ListPage(ctx context.Context, q services.HouseQuery, page, pageSize int) ([]domain.House, int64, error)
	// Get fetches a house by ID and counts the access as a view.
	Get(ctx context.Context, id string) (*domain.House, error)
	// Create inserts a new house.
	Create(ctx context.Context, h *domain.House) error
	// UpdateStatus transitions a house to the given status.
	UpdateStatus(ctx context.Context, id, status string) (*domain.House, error)
}

// DistrictStore defines the district lookups consumed by HTTP handlers.
type DistrictStore interface {
	// List returns all districts ordered by name.
	List(ctx context.Context) ([]domain.District, error)
	// Get fetches a district by ID.
	Get(ctx context.Context, id string) (*domain.District, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for houses, districts, analysis, market
// reports, and scheduler tasks. It depends on abstract service interfaces to keep
// transport concerns separate from business logic.
type Handlers struct {
	houseSvc    HouseService
	districts   DistrictStore
	analysisSvc AnalysisService
	reports     ReportStore
	tasks       TaskRunners
}

// New constructs and returns a Handlers instance bound to the given services.
func New(houseSvc HouseService, districts DistrictStore, analysisSvc AnalysisService, reports ReportStore, tasks TaskRunners) *Handlers {
	return &Handlers{
		houseSvc:    houseSvc,
		districts:   districts,
		analysisSvc: analysisSvc,
		reports:     reports,
		tasks:       tasks,
	}
}

//
// DTOs
//

// CreateHouseRequest is the JSON payload for creating a house.
type CreateHouseRequest struct {
	Title       string `json:"title" binding:"required,min=1,max=200"`
	DistrictID  string `json:"district_id" binding:"required"`
	Address     string `json:"address"`
	Price       string `json:"price"`
	UnitPrice   string `json:"unit_price"`
	Area        string `json:"area"`
	HouseType   string `json:"house_type"`
	Floor       string `json:"floor"`
	TotalFloors int    `json:"total_floors"`
	Orientation string `json:"orientation"`
	Decoration  string `json:"decoration"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// UpdateHouseStatusRequest is the JSON payload for a status transition.
type UpdateHouseStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListHousesResponse wraps a page of houses and pagination information.
type ListHousesResponse struct {
	Houses     []domain.House `json:"houses"`
	Pagination Pagination     `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// houseQuery builds the service filter from query parameters.
func houseQuery(c *gin.Context) services.HouseQuery {
	return services.HouseQuery{
		DistrictID: c.Query("district_id"),
		Status:     c.Query("status"),
		HouseType:  c.Query("house_type"),
		MinPrice:   utils.DecimalPtr(c.Query("min_price")),
		MaxPrice:   utils.DecimalPtr(c.Query("max_price")),
	}
}

// parseDecimal parses an optional request decimal, quantized to two places.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero.Round(2)
	}
	return d.Round(2)
}

//
// Handlers
//

// ListHouses returns a page of houses filtered by district, status, house
// type, and price range.
func (h *Handlers) ListHouses(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.houseSvc.ListPage(c.Request.Context(), houseQuery(c), page, pageSize)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidStatus), errors.Is(err, services.ErrInvalidPriceRange):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListHousesResponse{
		Houses: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetHouse returns a house with its images and counts the access as a view.
func (h *Handlers) GetHouse(c *gin.Context) {
	house, err := h.houseSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrHouseNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "house not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, house)
}

// CreateHouse inserts a new listing.
func (h *Handlers) CreateHouse(c *gin.Context) {
	var req CreateHouseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	house := &domain.House{
		Title:       strings.TrimSpace(req.Title),
		DistrictID:  req.DistrictID,
		Address:     strings.TrimSpace(req.Address),
		Price:       parseDecimal(req.Price),
		UnitPrice:   parseDecimal(req.UnitPrice),
		Area:        parseDecimal(req.Area),
		HouseType:   req.HouseType,
		Floor:       req.Floor,
		TotalFloors: req.TotalFloors,
		Orientation: req.Orientation,
		Decoration:  req.Decoration,
		Description: req.Description,
		Status:      req.Status,
	}
	if err := h.houseSvc.Create(c.Request.Context(), house); err != nil {
		switch {
		case errors.Is(err, services.ErrMissingTitle),
			errors.Is(err, services.ErrMissingDistrict),
			errors.Is(err, services.ErrInvalidStatus):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, house)
}

// UpdateHouseStatus transitions a house to the requested status.
func (h *Handlers) UpdateHouseStatus(c *gin.Context) {
	var req UpdateHouseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	house, err := h.houseSvc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidStatus):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrHouseNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "house not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, house)
}

// ListDistricts returns all districts.
func (h *Handlers) ListDistricts(c *gin.Context) {
	districts, err := h.districts.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, districts)
}

// GetDistrict returns one district by ID.
func (h *Handlers) GetDistrict(c *gin.Context) {
	d, err := h.districts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrDistrictNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "district not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, d)
}
