package scraper

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Export writes the batch to a timestamp-named .xlsx file under the data
// directory and returns its path and row count. The batch is de-duplicated
// on SourceID (last occurrence wins) before writing. An empty batch writes
// nothing and returns an empty path.
func (s *Scraper) Export(listings []ListingRecord) (string, int, error) {
	listings = dedupBySourceID(listings)
	if len(listings) == 0 {
		return "", 0, nil
	}

	if err := os.MkdirAll(s.DataDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create data dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.xlsx", s.FilePrefix, s.Now().Format("20060102_150405"))
	path := filepath.Join(s.DataDir, name)

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	if err := f.SetSheetRow(sheet, "A1", &Columns); err != nil {
		return "", 0, fmt.Errorf("write header: %w", err)
	}
	for i, rec := range listings {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := recordRow(rec)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return "", 0, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return "", 0, fmt.Errorf("save %s: %w", path, err)
	}
	s.Log.Info().Str("path", path).Int("rows", len(listings)).Msg("exported listing batch")
	return path, len(listings), nil
}

// dedupBySourceID keeps one record per source id, last occurrence winning,
// while preserving the position of the first occurrence.
func dedupBySourceID(listings []ListingRecord) []ListingRecord {
	if len(listings) == 0 {
		return listings
	}
	index := make(map[string]int, len(listings))
	out := make([]ListingRecord, 0, len(listings))
	for _, rec := range listings {
		if i, seen := index[rec.SourceID]; seen {
			out[i] = rec
			continue
		}
		index[rec.SourceID] = len(out)
		out = append(out, rec)
	}
	return out
}

// recordRow flattens a record into cell values following Columns order.
// Nil numeric pointers become empty cells, not zeros.
func recordRow(r ListingRecord) []any {
	return []any{
		r.SourceID,
		r.Title,
		r.HouseURL,
		r.Layout,
		r.HouseType,
		floatCell(r.AreaSqm),
		r.Floor,
		intCell(r.TotalFloors),
		r.Orientation,
		floatCell(r.PriceTotalWan),
		floatCell(r.UnitPrice),
		r.AgentName,
		r.AgentStoreURL,
		r.AgentID,
		r.Community,
		r.Region,
		r.DistrictName,
		r.SubDistrict,
		r.Address,
		strings.Join(r.Tags, ", "),
		r.CoverImage,
		r.Status,
		r.Decoration,
		strconv.Itoa(r.BuildYear),
		r.Description,
		strconv.FormatFloat(r.Longitude, 'f', 6, 64),
		strconv.FormatFloat(r.Latitude, 'f', 6, 64),
		r.City,
		r.DataSource,
		r.ScrapedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func floatCell(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func intCell(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}
