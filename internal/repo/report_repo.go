package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/estateops/go-estate-backend/internal/domain"
)

// CreateReport inserts a generated market report, assigning its ID.
func CreateReport(ctx context.Context, db *gorm.DB, r *domain.MarketReport) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Create(r).Error
}

// ListReports returns stored market reports, newest report date first,
// optionally filtered by district and report type. An empty districtID
// matches city-wide and district reports alike.
func ListReports(ctx context.Context, db *gorm.DB, districtID, reportType string, limit int) ([]domain.MarketReport, error) {
	q := db.WithContext(ctx).Model(&domain.MarketReport{})
	if districtID != "" {
		q = q.Where("district_id = ?", districtID)
	}
	if reportType != "" {
		q = q.Where("report_type = ?", reportType)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []domain.MarketReport
	err := q.Order("report_date DESC, created_at DESC").Find(&out).Error
	return out, err
}
