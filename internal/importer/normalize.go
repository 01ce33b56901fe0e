// Package importer consumes the spreadsheets produced by the scraper: it
// scans the data directory, reads each file row by row, resolves or creates
// the referenced district and agent, normalizes every field, and upserts a
// canonical House row inside a per-row transaction. Processed files are moved
// to an archive subdirectory.
//
// This file holds the pure field-normalization rules. They deliberately
// coerce empty/unparsable numeric input to zero-quantized decimals — the
// scraper's in-memory records keep such values absent instead, and the two
// policies meet at the spreadsheet boundary: an empty cell entering the
// importer becomes a zero in the store.
package importer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/estateops/go-estate-backend/internal/domain"
)

const (
	// maxDescriptionRunes caps the assembled house description.
	maxDescriptionRunes = 1000
	maxAddressRunes     = 200
	maxFloorRunes       = 20
)

var digitsPattern = regexp.MustCompile(`(\d+)`)

// ToDecimal parses a cell into a decimal quantized to the given number of
// places. Empty, "null", and unparsable input all normalize to the
// zero-quantized value (e.g. "0.00" for 2 places, "0.0000000" for 7).
func ToDecimal(value string, places int32) decimal.Decimal {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "null") {
		return decimal.Zero.Round(places)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero.Round(places)
	}
	return d.Round(places)
}

// ToInt parses a cell into an int, accepting float-formatted input ("18.0").
// Empty, "null", and unparsable input return the default.
func ToInt(value string, def int) int {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "null") {
		return def
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return int(f)
}

// ToIntPtr is ToInt with a nil default, used for optional columns such as
// the construction year.
func ToIntPtr(value string) *int {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "null") {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	n := int(f)
	return &n
}

// NormalizeHouseType snaps a layout cell onto the closed house-type set.
// Values already in the set pass through; otherwise the leading integer is
// extracted, with >= 5 collapsing to the top category. Empty or digit-free
// input maps to the smallest category.
func NormalizeHouseType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.HouseTypes[0]
	}
	for _, t := range domain.HouseTypes {
		if value == t {
			return value
		}
	}
	m := digitsPattern.FindStringSubmatch(value)
	if m == nil {
		return domain.HouseTypes[0]
	}
	rooms, err := strconv.Atoi(m[1])
	if err != nil {
		return domain.HouseTypes[0]
	}
	if rooms >= 5 {
		return domain.HouseTypeMax
	}
	return fmt.Sprintf("%d室", rooms)
}

// NormalizeOrientation strips the trailing 向 particle.
func NormalizeOrientation(value string) string {
	if value == "" {
		return ""
	}
	return strings.TrimSpace(strings.ReplaceAll(value, "向", ""))
}

// NormalizeDecoration snaps onto the closed decoration set, defaulting to
// the first category.
func NormalizeDecoration(value string) string {
	value = strings.TrimSpace(value)
	for _, d := range domain.DecorationChoices {
		if value == d {
			return value
		}
	}
	return domain.DecorationChoices[0]
}

// NormalizeStatus snaps onto the house status set, defaulting to available.
func NormalizeStatus(value string) string {
	switch strings.TrimSpace(value) {
	case domain.StatusSold:
		return domain.StatusSold
	case domain.StatusReserved:
		return domain.StatusReserved
	default:
		return domain.StatusAvailable
	}
}

// BuildDescription assembles the stored description from the scraped text, a
// provenance note, and the flattened tags, truncated to the storage cap.
func BuildDescription(description, dataSource, houseURL, sourceID, tags string) string {
	if dataSource == "" {
		dataSource = "fang.com/top"
	}
	provenance := fmt.Sprintf("来源: %s | 链接: %s | ID: %s", dataSource, houseURL, sourceID)
	var parts []string
	for _, p := range []string{description, provenance, tags} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return TruncateRunes(strings.Join(parts, "\n"), maxDescriptionRunes)
}

// TruncateRunes clips s to at most n runes.
func TruncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
