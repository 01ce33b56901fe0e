package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/estateops/go-estate-backend/internal/domain"
)

// ----- Fake repo -----

type fakeHouseRepo struct {
	listQuery  HouseQuery
	listOffset int
	listLimit  int
	listItems  []domain.House
	listErr    error

	countTotal int64
	countErr   error

	getID    string
	getHouse *domain.House
	getErr   error

	created *domain.House
	saved   *domain.House

	incrementedID string
	incrementErr  error
}

func (r *fakeHouseRepo) List(ctx context.Context, db *gorm.DB, q HouseQuery, offset, limit int) ([]domain.House, error) {
	r.listQuery, r.listOffset, r.listLimit = q, offset, limit
	return r.listItems, r.listErr
}

func (r *fakeHouseRepo) Count(ctx context.Context, db *gorm.DB, q HouseQuery) (int64, error) {
	return r.countTotal, r.countErr
}

func (r *fakeHouseRepo) Get(ctx context.Context, db *gorm.DB, id string) (*domain.House, error) {
	r.getID = id
	return r.getHouse, r.getErr
}

func (r *fakeHouseRepo) Create(ctx context.Context, db *gorm.DB, h *domain.House) error {
	r.created = h
	return nil
}

func (r *fakeHouseRepo) Save(ctx context.Context, db *gorm.DB, h *domain.House) error {
	r.saved = h
	return nil
}

func (r *fakeHouseRepo) IncrementViews(ctx context.Context, db *gorm.DB, id string) error {
	r.incrementedID = id
	return r.incrementErr
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// ----- Tests -----

func TestHouseListPage_DefaultsAndOffsets(t *testing.T) {
	repo := &fakeHouseRepo{
		countTotal: 45,
		listItems:  []domain.House{{ID: "h1"}, {ID: "h2"}},
	}
	svc := NewHouseService(nil, repo)

	items, total, err := svc.ListPage(context.Background(), HouseQuery{}, 3, 0)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 45 || len(items) != 2 {
		t.Fatalf("total=%d items=%d", total, len(items))
	}
	if repo.listOffset != 40 || repo.listLimit != 20 {
		t.Errorf("offset/limit = %d/%d, want 40/20", repo.listOffset, repo.listLimit)
	}
}

func TestHouseListPage_CapsPageSize(t *testing.T) {
	repo := &fakeHouseRepo{countTotal: 1, listItems: []domain.House{{ID: "h1"}}}
	svc := NewHouseService(nil, repo)

	if _, _, err := svc.ListPage(context.Background(), HouseQuery{}, 1, 500); err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if repo.listLimit != svc.PageSizeMax {
		t.Errorf("limit = %d, want capped at %d", repo.listLimit, svc.PageSizeMax)
	}
}

func TestHouseListPage_EmptyShortCircuits(t *testing.T) {
	repo := &fakeHouseRepo{countTotal: 0}
	svc := NewHouseService(nil, repo)

	items, total, err := svc.ListPage(context.Background(), HouseQuery{}, 1, 10)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Fatalf("total=%d items=%d", total, len(items))
	}
	if repo.listLimit != 0 {
		t.Errorf("List should not run when count is zero")
	}
}

func TestHouseListPage_RejectsInvertedPriceRange(t *testing.T) {
	svc := NewHouseService(nil, &fakeHouseRepo{})
	q := HouseQuery{MinPrice: dec("900"), MaxPrice: dec("100")}
	if _, _, err := svc.ListPage(context.Background(), q, 1, 10); !errors.Is(err, ErrInvalidPriceRange) {
		t.Fatalf("err = %v, want ErrInvalidPriceRange", err)
	}
}

func TestHouseListPage_RejectsUnknownStatus(t *testing.T) {
	svc := NewHouseService(nil, &fakeHouseRepo{})
	if _, _, err := svc.ListPage(context.Background(), HouseQuery{Status: "pending"}, 1, 10); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestHouseGet_CountsView(t *testing.T) {
	repo := &fakeHouseRepo{getHouse: &domain.House{ID: "h1", Views: 7}}
	svc := NewHouseService(nil, repo)

	h, err := svc.Get(context.Background(), "h1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if repo.incrementedID != "h1" {
		t.Errorf("view not counted")
	}
	if h.Views != 8 {
		t.Errorf("views = %d, want 8", h.Views)
	}
}

func TestHouseGet_NotFound(t *testing.T) {
	repo := &fakeHouseRepo{getErr: gorm.ErrRecordNotFound}
	svc := NewHouseService(nil, repo)
	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, ErrHouseNotFound) {
		t.Fatalf("err = %v, want ErrHouseNotFound", err)
	}
}

func TestHouseCreate_Validation(t *testing.T) {
	repo := &fakeHouseRepo{}
	svc := NewHouseService(nil, repo)

	if err := svc.Create(context.Background(), &domain.House{DistrictID: "d1"}); !errors.Is(err, ErrMissingTitle) {
		t.Fatalf("err = %v, want ErrMissingTitle", err)
	}
	if err := svc.Create(context.Background(), &domain.House{Title: "t"}); !errors.Is(err, ErrMissingDistrict) {
		t.Fatalf("err = %v, want ErrMissingDistrict", err)
	}

	h := &domain.House{Title: "t", DistrictID: "d1"}
	if err := svc.Create(context.Background(), h); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if h.Status != domain.StatusAvailable {
		t.Errorf("status = %q, want default available", h.Status)
	}
	if repo.created != h {
		t.Errorf("house not persisted")
	}
}

func TestHouseUpdateStatus(t *testing.T) {
	repo := &fakeHouseRepo{getHouse: &domain.House{ID: "h1", Status: domain.StatusAvailable}}
	svc := NewHouseService(nil, repo)

	h, err := svc.UpdateStatus(context.Background(), "h1", domain.StatusSold)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if h.Status != domain.StatusSold || repo.saved != h {
		t.Errorf("status not persisted: %+v", h)
	}

	if _, err := svc.UpdateStatus(context.Background(), "h1", "gone"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}
