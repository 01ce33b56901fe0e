package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/estateops/go-estate-backend/internal/domain"
)

func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func newFullDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newRepoDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func mustDistrict(t *testing.T, db *gorm.DB, name string) *domain.District {
	t.Helper()
	d, err := CreateDistrict(context.Background(), db, name, "北京", "")
	if err != nil {
		t.Fatalf("create district: %v", err)
	}
	return d
}

func mustHouse(t *testing.T, db *gorm.DB, districtID, title, address string, price string) *domain.House {
	t.Helper()
	h := &domain.House{
		Title:       title,
		DistrictID:  districtID,
		Address:     address,
		Price:       decimal.RequireFromString(price),
		HouseType:   "2室",
		Floor:       "中层",
		TotalFloors: 18,
		Orientation: "南北",
		Decoration:  "精装",
		Status:      domain.StatusAvailable,
	}
	if err := CreateHouse(context.Background(), db, h); err != nil {
		t.Fatalf("create house: %v", err)
	}
	return h
}

// ----- Districts -----

func TestDistrictRepo_CreateFindPatch(t *testing.T) {
	db := newRepoDB(t, &domain.District{})
	ctx := context.Background()

	if _, err := FindDistrict(ctx, db, "朝阳"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	d, err := CreateDistrict(ctx, db, "朝阳", "北京", "朝阳-国贸")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.ID == "" {
		t.Fatalf("expected generated id")
	}

	got, err := FindDistrict(ctx, db, "朝阳")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != d.ID || got.City != "北京" {
		t.Fatalf("got %+v", got)
	}

	// empty patch is a no-op
	if err := PatchDistrict(ctx, db, got, map[string]any{}); err != nil {
		t.Fatalf("empty patch: %v", err)
	}
	if err := PatchDistrict(ctx, db, got, map[string]any{"description": "東二環"}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	got2, _ := GetDistrict(ctx, db, d.ID)
	if got2.Description != "東二環" {
		t.Fatalf("description = %q", got2.Description)
	}
}

// ----- Users -----

func TestUserRepo_AgentLookupsAndCreate(t *testing.T) {
	db := newRepoDB(t, &domain.User{})
	ctx := context.Background()

	if _, err := FirstAgent(ctx, db); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound on empty table", err)
	}

	a, err := CreateAgent(ctx, db, "bj_wang", "13100000001", "王小明", "北京经纪联盟")
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if a.Role != domain.RoleAgent || !a.Verified {
		t.Fatalf("agent = %+v", a)
	}

	if _, err := FindAgentByRealName(ctx, db, "王小明"); err != nil {
		t.Fatalf("by real name: %v", err)
	}
	if _, err := FindAgentByUsername(ctx, db, "bj_wang"); err != nil {
		t.Fatalf("by username: %v", err)
	}

	exists, err := UsernameExists(ctx, db, "bj_wang")
	if err != nil || !exists {
		t.Fatalf("username exists = %v, %v", exists, err)
	}
	exists, err = PhoneExists(ctx, db, "13100000001")
	if err != nil || !exists {
		t.Fatalf("phone exists = %v, %v", exists, err)
	}
	exists, _ = PhoneExists(ctx, db, "13199999999")
	if exists {
		t.Fatalf("unexpected phone hit")
	}

	if err := SetAgentRealName(ctx, db, a, "王明"); err != nil {
		t.Fatalf("set real name: %v", err)
	}
	got, _ := FindAgentByUsername(ctx, db, "bj_wang")
	if got.RealName != "王明" {
		t.Fatalf("real name = %q", got.RealName)
	}
}

func TestFirstAgent_ReturnsOldest(t *testing.T) {
	db := newRepoDB(t, &domain.User{})
	ctx := context.Background()

	first, _ := CreateAgent(ctx, db, "bj_a", "13100000001", "甲", "公司")
	// Force distinct created_at ordering.
	db.Model(first).Update("created_at", time.Now().Add(-time.Hour))
	CreateAgent(ctx, db, "bj_b", "13100000002", "乙", "公司")

	got, err := FirstAgent(ctx, db)
	if err != nil {
		t.Fatalf("first agent: %v", err)
	}
	if got.Username != "bj_a" {
		t.Fatalf("got %q, want oldest agent", got.Username)
	}
}

// ----- Houses -----

func TestHouseRepo_KeyLookupAndSave(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	d := mustDistrict(t, db, "海淀")

	if _, err := FindHouseByKey(ctx, db, "标题", d.ID, "地址"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	h := mustHouse(t, db, d.ID, "标题", "地址", "500")
	got, err := FindHouseByKey(ctx, db, "标题", d.ID, "地址")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != h.ID {
		t.Fatalf("got %q, want %q", got.ID, h.ID)
	}

	got.Price = decimal.RequireFromString("520")
	if err := SaveHouse(ctx, db, got); err != nil {
		t.Fatalf("save: %v", err)
	}
	again, _ := FindHouseByKey(ctx, db, "标题", d.ID, "地址")
	if !again.Price.Equal(decimal.RequireFromString("520")) {
		t.Fatalf("price = %s", again.Price)
	}
}

func TestHouseRepo_ListFilterAndCount(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	d1 := mustDistrict(t, db, "朝阳")
	d2 := mustDistrict(t, db, "海淀")

	mustHouse(t, db, d1.ID, "甲", "一号", "300")
	mustHouse(t, db, d1.ID, "乙", "二号", "800")
	h3 := mustHouse(t, db, d2.ID, "丙", "三号", "600")
	h3.Status = domain.StatusSold
	SaveHouse(ctx, db, h3)

	min := decimal.RequireFromString("500")
	f := HouseFilter{DistrictID: d1.ID, MinPrice: &min}
	items, err := ListHouses(ctx, db, f, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Title != "乙" {
		t.Fatalf("items = %+v", items)
	}

	n, err := CountHouses(ctx, db, HouseFilter{Status: domain.StatusAvailable})
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

func TestHouseRepo_ImagesAndViews(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	d := mustDistrict(t, db, "朝阳")
	h := mustHouse(t, db, d.ID, "甲", "一号", "300")

	exists, err := HouseImageExists(ctx, db, h.ID, "houses/images/a.jpg")
	if err != nil || exists {
		t.Fatalf("exists = %v, %v", exists, err)
	}
	if _, err := CreateHouseImage(ctx, db, h.ID, "houses/images/a.jpg", 0); err != nil {
		t.Fatalf("create image: %v", err)
	}
	exists, _ = HouseImageExists(ctx, db, h.ID, "houses/images/a.jpg")
	if !exists {
		t.Fatalf("image not found after create")
	}
	n, _ := CountHouseImages(ctx, db, h.ID)
	if n != 1 {
		t.Fatalf("image count = %d", n)
	}

	if err := IncrementHouseViews(ctx, db, h.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := IncrementHouseViews(ctx, db, h.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}
	got, err := GetHouse(ctx, db, h.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Views != 2 {
		t.Fatalf("views = %d", got.Views)
	}
	if len(got.Images) != 1 {
		t.Fatalf("images not preloaded: %+v", got.Images)
	}
}

func TestCreateHouse_Error_NoTable(t *testing.T) {
	db := newRepoDB(t) // no migration
	h := &domain.House{Title: "甲", DistrictID: "d", Address: "一号"}
	if err := CreateHouse(context.Background(), db, h); err == nil {
		t.Fatalf("expected error when table is missing")
	}
}

// ----- Alerts -----

func TestAlertRepo_Lifecycle(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	d := mustDistrict(t, db, "朝阳")
	h := mustHouse(t, db, d.ID, "甲", "一号", "300")

	a, err := CreateAlert(ctx, db, "u1", h.ID, decimal.RequireFromString("280"), h.Price)
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}

	active, err := ListActiveAlerts(ctx, db)
	if err != nil || len(active) != 1 {
		t.Fatalf("active = %d, %v", len(active), err)
	}

	if _, err := GetAlert(ctx, db, a.ID, "someone-else"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("owner scoping broken: %v", err)
	}

	now := time.Now()
	a.Status = domain.AlertTriggered
	a.TriggeredAt = &now
	if err := SaveAlert(ctx, db, a); err != nil {
		t.Fatalf("save alert: %v", err)
	}
	active, _ = ListActiveAlerts(ctx, db)
	if len(active) != 0 {
		t.Fatalf("triggered alert still listed as active")
	}
}

// ----- Stats -----

func TestAggregateDistrict(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	d := mustDistrict(t, db, "朝阳")

	agg, err := AggregateDistrict(ctx, db, d.ID)
	if err != nil {
		t.Fatalf("aggregate empty: %v", err)
	}
	if agg.Count != 0 {
		t.Fatalf("count = %d", agg.Count)
	}

	mustHouse(t, db, d.ID, "甲", "一号", "300")
	mustHouse(t, db, d.ID, "乙", "二号", "500")
	sold := mustHouse(t, db, d.ID, "丙", "三号", "900")
	sold.Status = domain.StatusSold
	SaveHouse(ctx, db, sold)

	agg, err = AggregateDistrict(ctx, db, d.ID)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Count != 2 || agg.AvgPrice != 400 || agg.MinPrice != 300 || agg.MaxPrice != 500 {
		t.Fatalf("agg = %+v", agg)
	}
}

func TestListDealsSinceAndEngagement(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	d := mustDistrict(t, db, "朝阳")
	h := mustHouse(t, db, d.ID, "甲", "一号", "300")

	now := time.Now()
	deals := []domain.Transaction{
		{ID: uuid.NewString(), HouseID: h.ID, DealPrice: decimal.RequireFromString("290"), DealDate: now.AddDate(0, -1, 0)},
		{ID: uuid.NewString(), HouseID: h.ID, DealPrice: decimal.RequireFromString("310"), DealDate: now.AddDate(-1, 0, 0)},
	}
	for i := range deals {
		if err := db.Create(&deals[i]).Error; err != nil {
			t.Fatalf("seed deal: %v", err)
		}
	}
	fav := domain.Favorite{ID: uuid.NewString(), UserID: "u1", HouseID: h.ID}
	if err := db.Create(&fav).Error; err != nil {
		t.Fatalf("seed favorite: %v", err)
	}

	got, err := ListDealsSince(ctx, db, d.ID, now.AddDate(0, -6, 0))
	if err != nil {
		t.Fatalf("deals: %v", err)
	}
	if len(got) != 1 || got[0].Price != 290 {
		t.Fatalf("deals = %+v", got)
	}

	// unscoped query sees the same window city-wide
	all, _ := ListDealsSince(ctx, db, "", now.AddDate(-2, 0, 0))
	if len(all) != 2 {
		t.Fatalf("all deals = %d", len(all))
	}

	eng, err := HouseEngagement(ctx, db, h.ID, now)
	if err != nil {
		t.Fatalf("engagement: %v", err)
	}
	if eng.Favorites != 1 || eng.RecentDeals != 1 {
		t.Fatalf("engagement = %+v", eng)
	}
}

func TestAggregateAvailable_CityWideAndScoped(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	d1 := mustDistrict(t, db, "朝阳")
	d2 := mustDistrict(t, db, "海淀")

	mustHouse(t, db, d1.ID, "甲", "一号", "300")
	mustHouse(t, db, d2.ID, "乙", "二号", "500")

	all, err := AggregateAvailable(ctx, db, "")
	if err != nil {
		t.Fatalf("city-wide: %v", err)
	}
	if all.Count != 2 || all.AvgPrice != 400 {
		t.Fatalf("city-wide agg = %+v", all)
	}

	scoped, err := AggregateAvailable(ctx, db, d2.ID)
	if err != nil {
		t.Fatalf("scoped: %v", err)
	}
	if scoped.Count != 1 || scoped.AvgPrice != 500 {
		t.Fatalf("scoped agg = %+v", scoped)
	}
}

// ----- Reports -----

func TestReportRepo_CreateAndList(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	d := mustDistrict(t, db, "朝阳")

	mk := func(title, reportType string, districtID *string, day int) *domain.MarketReport {
		r := &domain.MarketReport{
			Title:           title,
			ReportType:      reportType,
			DistrictID:      districtID,
			ReportDate:      time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
			AvgPrice:        decimal.RequireFromString("400"),
			AvgUnitPrice:    decimal.RequireFromString("58000"),
			PriceChangeRate: decimal.RequireFromString("1.5"),
			Summary:         "summary",
		}
		if err := CreateReport(ctx, db, r); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		return r
	}

	mk("全市月度市场报告", domain.ReportMonthly, nil, 1)
	newest := mk("全市月度市场报告", domain.ReportMonthly, nil, 15)
	mk("朝阳季度市场报告", domain.ReportQuarterly, &d.ID, 10)

	if newest.ID == "" {
		t.Fatal("CreateReport did not assign an ID")
	}

	all, err := ListReports(ctx, db, "", "", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].ID != newest.ID {
		t.Fatalf("all = %d reports, first %q", len(all), all[0].Title)
	}

	monthly, err := ListReports(ctx, db, "", domain.ReportMonthly, 1)
	if err != nil {
		t.Fatalf("list monthly: %v", err)
	}
	if len(monthly) != 1 || monthly[0].ID != newest.ID {
		t.Fatalf("monthly = %+v", monthly)
	}

	scoped, err := ListReports(ctx, db, d.ID, "", 0)
	if err != nil {
		t.Fatalf("list scoped: %v", err)
	}
	if len(scoped) != 1 || scoped[0].Title != "朝阳季度市场报告" {
		t.Fatalf("scoped = %+v", scoped)
	}
}
