// Package domain defines the persistence models for the listings platform:
// users (including agents), districts, houses and their images, transactions,
// favorites, price alerts, and market reports. These types are mapped with
// GORM and form the core data layer of the application.
//
// Money columns (total price in 万元, unit price in 元/㎡) and coordinates are
// stored as fixed-precision decimals via shopspring/decimal so that the
// importer's quantization rules survive the round trip through the database.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User roles. Agents are ordinary user rows with RoleAgent; the importer
// synthesizes placeholder agents when a scraped row names an unknown one.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
	RoleAdmin = "admin"
)

// House listing statuses.
const (
	StatusAvailable = "available"
	StatusSold      = "sold"
	StatusReserved  = "reserved"
)

// HouseTypeMax is the catch-all layout category for >= 5 rooms.
const HouseTypeMax = "5室及以上"

// HouseTypes is the closed set of layout categories.
var HouseTypes = []string{"1室", "2室", "3室", "4室", HouseTypeMax}

// DecorationChoices is the closed set of decoration categories. Inputs that
// match none of them snap to DecorationChoices[0] on import.
var DecorationChoices = []string{"精装", "简装", "毛坯"}

// PriceAlert statuses.
const (
	AlertActive    = "active"
	AlertTriggered = "triggered"
	AlertCancelled = "cancelled"
)

// Market report cadences.
const (
	ReportMonthly   = "monthly"
	ReportQuarterly = "quarterly"
	ReportYearly    = "yearly"
)

// User represents a platform account. Agents resolved or created by the
// importer always carry RoleAgent, a unique synthesized username, and a
// unique phone number.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Username: unique login name; importer-synthesized for placeholder agents.
//   - Phone: unique 11-digit phone number.
//   - RealName: display name; the importer's primary agent lookup key.
//   - Company: employing agency, defaulted for placeholder agents.
//   - Verified: whether the account passed identity verification.
type User struct {
	ID        string         `json:"id"        gorm:"type:char(36);primaryKey"`
	Username  string         `json:"username"  gorm:"type:varchar(100);not null;uniqueIndex"`
	Phone     string         `json:"phone"     gorm:"type:varchar(11);not null;uniqueIndex"`
	Role      string         `json:"role"      gorm:"type:varchar(10);not null;default:'user';check:role IN ('user','agent','admin')"`
	RealName  string         `json:"real_name" gorm:"type:varchar(50);index"`
	Company   string         `json:"company"   gorm:"type:varchar(100)"`
	Avatar    string         `json:"avatar,omitempty" gorm:"type:varchar(255)"`
	Verified  bool           `json:"is_verified"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"         gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// District is a canonical administrative area. Districts are looked up by
// name and created on first sight by the importer; the pipeline may backfill
// city/description but never deletes rows.
type District struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"        gorm:"type:varchar(50);not null;uniqueIndex"`
	City        string    `json:"city"        gorm:"type:varchar(50);not null;default:'北京'"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for District.
func (District) TableName() string { return "districts" }

// House is the canonical listing entity. The importer's natural key is the
// (Title, DistrictID, Address) triple: a matching triple is the same listing
// and is updated in place, a non-matching one creates a new row.
//
// Field semantics follow what the ingestion pipeline produces:
//   - Price: total price in 万元, quantized to 2 decimal places.
//   - UnitPrice: 元/㎡, quantized to 2 decimal places.
//   - Area: building area in ㎡, quantized to 2 decimal places.
//   - Longitude/Latitude: quantized to 7 decimal places.
//   - Views: read counter maintained by the HTTP layer; an import overwrites
//     it to 0 along with the other computed fields.
type House struct {
	ID          string          `json:"id"           gorm:"type:char(36);primaryKey"`
	Title       string          `json:"title"        gorm:"type:varchar(200);not null;index:idx_house_key,priority:1"`
	DistrictID  string          `json:"district_id"  gorm:"type:char(36);not null;index:idx_house_key,priority:2;index:idx_district_status,priority:1"`
	Address     string          `json:"address"      gorm:"type:varchar(200);not null;index:idx_house_key,priority:3"`
	Price       decimal.Decimal `json:"price"        gorm:"type:decimal(10,2);not null;index"`
	UnitPrice   decimal.Decimal `json:"unit_price"   gorm:"type:decimal(10,2);not null"`
	Area        decimal.Decimal `json:"area"         gorm:"type:decimal(8,2);not null"`
	HouseType   string          `json:"house_type"   gorm:"type:varchar(20);not null;index"`
	Floor       string          `json:"floor"        gorm:"type:varchar(20)"`
	TotalFloors int             `json:"total_floors"`
	Orientation string          `json:"orientation"  gorm:"type:varchar(10)"`
	Decoration  string          `json:"decoration"   gorm:"type:varchar(50);default:'精装'"`
	BuildYear   *int            `json:"build_year,omitempty"`
	Longitude   decimal.Decimal `json:"longitude"    gorm:"type:decimal(10,7)"`
	Latitude    decimal.Decimal `json:"latitude"     gorm:"type:decimal(10,7)"`
	Description string          `json:"description"  gorm:"type:text"`
	CoverImage  string          `json:"cover_image"  gorm:"type:varchar(255)"`
	Status      string          `json:"status"       gorm:"type:varchar(20);not null;default:'available';index:idx_district_status,priority:2;check:status IN ('available','sold','reserved')"`
	AgentID     *string         `json:"agent_id,omitempty" gorm:"type:char(36);index"`
	Views       int             `json:"views"        gorm:"not null;default:0"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `json:"-"            gorm:"index"`

	District District `json:"-" gorm:"foreignKey:DistrictID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	// Agent is nullable: removing an agent must not take its listings down.
	Agent  *User        `json:"-" gorm:"foreignKey:AgentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Images []HouseImage `json:"images,omitempty" gorm:"foreignKey:HouseID"`
}

// TableName returns the database table name for House.
func (House) TableName() string { return "houses" }

// HouseImage is an ordered image attached to a house. Order 0 is the primary
// slot; the importer guarantees at least one image per imported house by
// attaching a placeholder at order 0 when none exists.
type HouseImage struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	HouseID   string    `json:"house_id" gorm:"type:char(36);not null;index"`
	Image     string    `json:"image"    gorm:"type:varchar(255);not null"`
	Order     int       `json:"order"    gorm:"column:sort_order;not null;default:0"`
	CreatedAt time.Time `json:"created_at"`

	House House `json:"-" gorm:"foreignKey:HouseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for HouseImage.
func (HouseImage) TableName() string { return "house_images" }

// Transaction records a completed deal for a house.
type Transaction struct {
	ID        string          `json:"id"         gorm:"type:char(36);primaryKey"`
	HouseID   string          `json:"house_id"   gorm:"type:char(36);not null;index"`
	DealPrice decimal.Decimal `json:"deal_price" gorm:"type:decimal(10,2);not null"`
	DealDate  time.Time       `json:"deal_date"  gorm:"type:date;not null;index"`
	BuyerName string          `json:"buyer_name" gorm:"type:varchar(50)"`
	CreatedAt time.Time       `json:"created_at"`

	House House `json:"-" gorm:"foreignKey:HouseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// Favorite bookmarks a house for a user. One row per (user, house).
type Favorite struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"  gorm:"type:char(36);not null;uniqueIndex:ux_fav_user_house"`
	HouseID   string    `json:"house_id" gorm:"type:char(36);not null;uniqueIndex:ux_fav_user_house;index"`
	Note      string    `json:"note"     gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`

	User  User  `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	House House `json:"-" gorm:"foreignKey:HouseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Favorite.
func (Favorite) TableName() string { return "favorites" }

// PriceAlert asks to be notified when a house's price drops to the target.
// The alert sweep refreshes CurrentPrice and flips Status to AlertTriggered
// (stamping TriggeredAt) once price <= target.
type PriceAlert struct {
	ID           string          `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID       string          `json:"user_id"       gorm:"type:char(36);not null;index"`
	HouseID      string          `json:"house_id"      gorm:"type:char(36);not null;index"`
	TargetPrice  decimal.Decimal `json:"target_price"  gorm:"type:decimal(10,2);not null"`
	CurrentPrice decimal.Decimal `json:"current_price" gorm:"type:decimal(10,2);not null"`
	Status       string          `json:"status"        gorm:"type:varchar(20);not null;default:'active';index;check:status IN ('active','triggered','cancelled')"`
	TriggeredAt  *time.Time      `json:"triggered_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	User  User  `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	House House `json:"-" gorm:"foreignKey:HouseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for PriceAlert.
func (PriceAlert) TableName() string { return "price_alerts" }

// MarketReport is a periodically generated summary of a district's market.
// DistrictID is nil for city-wide reports.
type MarketReport struct {
	ID                string          `json:"id"          gorm:"type:char(36);primaryKey"`
	Title             string          `json:"title"       gorm:"type:varchar(200);not null"`
	ReportType        string          `json:"report_type" gorm:"type:varchar(20);not null;default:'monthly';check:report_type IN ('monthly','quarterly','yearly')"`
	DistrictID        *string         `json:"district_id,omitempty" gorm:"type:char(36);index"`
	ReportDate        time.Time       `json:"report_date" gorm:"type:date;not null;index"`
	AvgPrice          decimal.Decimal `json:"avg_price"          gorm:"type:decimal(10,2);not null"`
	AvgUnitPrice      decimal.Decimal `json:"avg_unit_price"     gorm:"type:decimal(10,2);not null"`
	TotalListings     int             `json:"total_listings"     gorm:"not null"`
	TotalTransactions int             `json:"total_transactions" gorm:"not null"`
	PriceChangeRate   decimal.Decimal `json:"price_change_rate"  gorm:"type:decimal(5,2);not null"`
	Summary           string          `json:"summary"     gorm:"type:text;not null"`
	Content           string          `json:"content"     gorm:"type:text"`
	CreatedAt         time.Time       `json:"created_at"`

	District *District `json:"-" gorm:"foreignKey:DistrictID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for MarketReport.
func (MarketReport) TableName() string { return "market_reports" }
