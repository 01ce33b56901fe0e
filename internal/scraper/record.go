// Package scraper fetches the Fang.com top-listings page, parses each
// listing node into a normalized record, and exports the batch to a
// spreadsheet under the data directory. It is the producer half of the
// ingestion pipeline; the importer consumes its output through the
// filesystem.
package scraper

import "time"

// ListingRecord is one scraped listing, flattened for spreadsheet export.
//
// Numeric fields extracted from free text are pointers: nil means the source
// fragment was absent or unparsable. The exporter leaves such cells empty
// rather than writing zero, so the importer can apply its own coercion rules.
type ListingRecord struct {
	SourceID      string    // stable dedup key; falls back to Title when absent
	Title         string
	HouseURL      string
	Layout        string    // raw layout fragment, e.g. "3室2厅"
	HouseType     string    // normalized category, e.g. "3室" or "5室及以上"
	AreaSqm       *float64  // building area in ㎡
	Floor         string    // floor descriptor, e.g. "中层"
	TotalFloors   *int
	Orientation   string    // compass term with the trailing 向 stripped
	PriceTotalWan *float64  // total price in 万元
	UnitPrice     *float64  // 元/㎡
	AgentName     string
	AgentStoreURL string
	AgentID       string
	Community     string
	Region        string    // raw region fragment, e.g. "朝阳-望京"
	DistrictName  string    // leading segment of Region
	SubDistrict   string
	Address       string    // "community / region"
	Tags          []string
	CoverImage    string
	Status        string
	Decoration    string
	BuildYear     int
	Description   string
	Longitude     float64
	Latitude      float64
	City          string
	DataSource    string
	ScrapedAt     time.Time
}

// Columns is the spreadsheet header row, in export order. The importer
// resolves fields by these names, so the two sides share this single list.
var Columns = []string{
	"source_id", "title", "house_url", "layout", "house_type", "area_sqm",
	"floor", "total_floors", "orientation", "price_total_wan", "unit_price",
	"agent_name", "agent_store_url", "agent_id", "community", "region",
	"district_name", "sub_district", "address", "tags", "cover_image",
	"status", "decoration", "build_year", "description", "longitude",
	"latitude", "city", "data_source", "scraped_at",
}
