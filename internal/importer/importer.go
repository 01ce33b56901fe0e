package importer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/estateops/go-estate-backend/internal/config"
	"github.com/estateops/go-estate-backend/internal/domain"
	"github.com/estateops/go-estate-backend/internal/repo"
)

// phonePrefixes is the pool synthesized agent phone numbers draw from.
var phonePrefixes = []string{
	"131", "132", "133", "134", "135", "136",
	"137", "138", "139", "150", "151", "152",
}

// maxPhoneAttempts bounds the unique-phone retry loop.
const maxPhoneAttempts = 10000

// ErrPhoneSpaceExhausted is returned when no unused phone number could be
// found within maxPhoneAttempts draws.
var ErrPhoneSpaceExhausted = errors.New("phone number space exhausted")

// defaultPlaceholderImage is the cover used when the media pool is empty.
const defaultPlaceholderImage = "houses/images/shutterstock_1722002524.jpg"

var nonAlnumPattern = regexp.MustCompile(`[^A-Za-z0-9]`)

// FileStats reports the outcome of one spreadsheet.
type FileStats struct {
	File          string   `json:"file"`
	Created       int      `json:"created"`
	Updated       int      `json:"updated"`
	Skipped       int      `json:"skipped"`
	Errors        int      `json:"errors"`
	ErrorMessages []string `json:"error_messages"`
}

// Summary aggregates all files of one import run.
type Summary struct {
	Files        []FileStats `json:"files"`
	TotalCreated int         `json:"total_created"`
	TotalUpdated int         `json:"total_updated"`
	TotalErrors  int         `json:"total_errors"`
}

// Importer synchronizes exported spreadsheets into the canonical store.
// Randomness (cover choice, phone numbers) flows through Rand and timestamps
// through Now so tests can pin both.
type Importer struct {
	DB           *gorm.DB
	Log          zerolog.Logger
	DataDir      string
	ArchiveDir   string
	DefaultCity  string
	AgentCompany string

	Rand *rand.Rand
	Now  func() time.Time

	placeholders []string
}

// New constructs an Importer and loads the placeholder cover pool from
// <MediaRoot>/houses/images.
func New(db *gorm.DB, cfg config.ImporterConfig, log zerolog.Logger) *Importer {
	return &Importer{
		DB:           db,
		Log:          log,
		DataDir:      cfg.DataDir,
		ArchiveDir:   filepath.Join(cfg.DataDir, cfg.ArchiveDirName),
		DefaultCity:  cfg.DefaultCity,
		AgentCompany: cfg.AgentCompany,
		Rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		Now:          time.Now,
		placeholders: loadPlaceholderImages(cfg.MediaRoot),
	}
}

// loadPlaceholderImages lists the cover pool as paths relative to the media
// root. A missing or empty pool directory yields the single hardcoded
// fallback.
func loadPlaceholderImages(mediaRoot string) []string {
	dir := filepath.Join(mediaRoot, "houses", "images")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{defaultPlaceholderImage}
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, path.Join("houses", "images", e.Name()))
		}
	}
	if len(out) == 0 {
		return []string{defaultPlaceholderImage}
	}
	return out
}

// ImportAll scans the data directory non-recursively for spreadsheets and
// processes each file independently; one file's failure never blocks the
// others. Processed files are archived.
func (imp *Importer) ImportAll(ctx context.Context) (Summary, error) {
	var summary Summary

	if _, err := os.Stat(imp.DataDir); err != nil {
		imp.Log.Info().Str("dir", imp.DataDir).Msg("data directory does not exist, skipping import")
		return summary, nil
	}

	files, err := filepath.Glob(filepath.Join(imp.DataDir, "*.xlsx"))
	if err != nil {
		return summary, fmt.Errorf("scan %s: %w", imp.DataDir, err)
	}
	sort.Strings(files)

	for _, f := range files {
		stats := imp.processFile(ctx, f)
		summary.Files = append(summary.Files, stats)
		summary.TotalCreated += stats.Created
		summary.TotalUpdated += stats.Updated
		summary.TotalErrors += stats.Errors
	}

	imp.Log.Info().
		Int("created", summary.TotalCreated).
		Int("updated", summary.TotalUpdated).
		Int("errors", summary.TotalErrors).
		Msg("spreadsheet import completed")
	return summary, nil
}

// processFile imports every row of one spreadsheet and archives it. A row
// failure rolls back only that row; a read failure abandons the file without
// archiving so the next run can retry it.
func (imp *Importer) processFile(ctx context.Context, filePath string) FileStats {
	stats := FileStats{File: filePath, ErrorMessages: []string{}}
	imp.Log.Info().Str("file", filePath).Msg("processing spreadsheet")

	rows, err := readRows(filePath)
	if err != nil {
		stats.Errors++
		stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("read failed: %v", err))
		imp.Log.Error().Err(err).Str("file", filePath).Msg("failed to read spreadsheet")
		return stats
	}

	for _, row := range rows {
		if strings.TrimSpace(row["title"]) == "" {
			stats.Skipped++
			continue
		}
		created, err := imp.importRow(ctx, row)
		if err != nil {
			stats.Errors++
			stats.ErrorMessages = append(stats.ErrorMessages, err.Error())
			imp.Log.Error().Err(err).Str("file", filePath).Msg("failed to import row")
			continue
		}
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
	}

	imp.archiveFile(filePath)
	return stats
}

// importRow runs the full district → agent → house → image chain inside one
// transaction; any failure rolls back the whole row.
func (imp *Importer) importRow(ctx context.Context, row map[string]string) (created bool, err error) {
	err = imp.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		district, err := imp.getOrCreateDistrict(ctx, tx, row)
		if err != nil {
			return err
		}
		agent, err := imp.resolveAgent(ctx, tx, row)
		if err != nil {
			return err
		}
		house, isNew, err := imp.upsertHouse(ctx, tx, row, district, agent)
		if err != nil {
			return err
		}
		created = isNew
		return imp.ensureHouseImage(ctx, tx, house.ID, house.CoverImage)
	})
	return created, err
}

// getOrCreateDistrict resolves the district named by the leading segment of
// the hyphen-delimited region, creating it with defaults on first sight.
// Existing rows may get their city corrected and description backfilled.
func (imp *Importer) getOrCreateDistrict(ctx context.Context, tx *gorm.DB, row map[string]string) (*domain.District, error) {
	name := strings.TrimSpace(row["district_name"])
	if name == "" {
		name = strings.TrimSpace(row["region"])
	}
	if name == "" {
		name = "未知区域"
	}
	name, _, _ = strings.Cut(name, "-")
	name = strings.TrimSpace(name)

	region := strings.TrimSpace(row["region"])

	d, err := repo.FindDistrict(ctx, tx, name)
	if errors.Is(err, repo.ErrNotFound) {
		return repo.CreateDistrict(ctx, tx, name, imp.DefaultCity, region)
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if d.City != imp.DefaultCity {
		updates["city"] = imp.DefaultCity
	}
	if d.Description == "" && region != "" {
		updates["description"] = region
	}
	if err := repo.PatchDistrict(ctx, tx, d, updates); err != nil {
		return nil, err
	}
	return d, nil
}

// resolveAgent matches by display name first, then by username; otherwise it
// creates a placeholder agent with a synthesized username and unique phone.
// Rows without an agent name fall back to the oldest agent on record.
func (imp *Importer) resolveAgent(ctx context.Context, tx *gorm.DB, row map[string]string) (*domain.User, error) {
	name := strings.TrimSpace(row["agent_name"])
	if name == "" {
		return imp.defaultAgent(ctx, tx)
	}

	a, err := repo.FindAgentByRealName(ctx, tx, name)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	a, err = repo.FindAgentByUsername(ctx, tx, name)
	if err == nil {
		if a.RealName == "" {
			if err := repo.SetAgentRealName(ctx, tx, a, name); err != nil {
				return nil, err
			}
			a.RealName = name
		}
		return a, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	username := sanitizeUsername(name)
	exists, err := repo.UsernameExists(ctx, tx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		now := imp.Now()
		username = fmt.Sprintf("%s_%s%06d", username, now.Format("150405"), now.Nanosecond()/1000)
	}

	phone, err := imp.GeneratePhone(ctx, tx)
	if err != nil {
		return nil, err
	}
	return repo.CreateAgent(ctx, tx, username, phone, name, imp.AgentCompany)
}

// defaultAgent returns the oldest agent, creating the city-wide placeholder
// when the store holds none.
func (imp *Importer) defaultAgent(ctx context.Context, tx *gorm.DB) (*domain.User, error) {
	a, err := repo.FirstAgent(ctx, tx)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	phone, err := imp.GeneratePhone(ctx, tx)
	if err != nil {
		return nil, err
	}
	return repo.CreateAgent(ctx, tx, "beijing_agent", phone, "北京经纪人", imp.AgentCompany)
}

// GeneratePhone draws prefix+8 random digits until the number is unused.
// The loop is bounded: a saturated number space surfaces as
// ErrPhoneSpaceExhausted instead of spinning forever.
func (imp *Importer) GeneratePhone(ctx context.Context, tx *gorm.DB) (string, error) {
	for i := 0; i < maxPhoneAttempts; i++ {
		var b strings.Builder
		b.WriteString(phonePrefixes[imp.Rand.Intn(len(phonePrefixes))])
		for j := 0; j < 8; j++ {
			b.WriteByte(byte('0' + imp.Rand.Intn(10)))
		}
		phone := b.String()
		exists, err := repo.PhoneExists(ctx, tx, phone)
		if err != nil {
			return "", err
		}
		if !exists {
			return phone, nil
		}
	}
	return "", ErrPhoneSpaceExhausted
}

// upsertHouse builds the normalized house fields and updates the row matched
// by (title, district, address), or creates a new one.
func (imp *Importer) upsertHouse(ctx context.Context, tx *gorm.DB, row map[string]string, district *domain.District, agent *domain.User) (*domain.House, bool, error) {
	title := strings.TrimSpace(row["title"])
	address := TruncateRunes(strings.TrimSpace(row["address"]), maxAddressRunes)

	floor := strings.TrimSpace(row["floor"])
	if floor == "" {
		floor = "未知楼层"
	}
	floor = TruncateRunes(floor, maxFloorRunes)

	layout := row["house_type"]
	if strings.TrimSpace(layout) == "" {
		layout = row["layout"]
	}

	orientation := NormalizeOrientation(row["orientation"])
	if orientation == "" {
		orientation = "南北"
	}

	fields := domain.House{
		Title:       title,
		DistrictID:  district.ID,
		Address:     address,
		Price:       ToDecimal(row["price_total_wan"], 2),
		UnitPrice:   ToDecimal(row["unit_price"], 2),
		Area:        ToDecimal(row["area_sqm"], 2),
		HouseType:   NormalizeHouseType(layout),
		Floor:       floor,
		TotalFloors: ToInt(row["total_floors"], 1),
		Orientation: orientation,
		Decoration:  NormalizeDecoration(row["decoration"]),
		BuildYear:   ToIntPtr(row["build_year"]),
		Longitude:   ToDecimal(row["longitude"], 7),
		Latitude:    ToDecimal(row["latitude"], 7),
		Description: BuildDescription(row["description"], row["data_source"], row["house_url"], row["source_id"], row["tags"]),
		CoverImage:  imp.chooseCover(),
		Status:      NormalizeStatus(row["status"]),
		Views:       0,
	}
	if agent != nil {
		fields.AgentID = &agent.ID
	}

	existing, err := repo.FindHouseByKey(ctx, tx, title, district.ID, address)
	if errors.Is(err, repo.ErrNotFound) {
		if err := repo.CreateHouse(ctx, tx, &fields); err != nil {
			return nil, false, err
		}
		imp.Log.Debug().Str("title", title).Str("id", fields.ID).Msg("created house")
		return &fields, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	fields.ID = existing.ID
	fields.CreatedAt = existing.CreatedAt
	if err := repo.SaveHouse(ctx, tx, &fields); err != nil {
		return nil, false, err
	}
	imp.Log.Debug().Str("title", title).Str("id", fields.ID).Msg("updated house")
	return &fields, false, nil
}

// chooseCover picks a placeholder cover uniformly from the pool.
func (imp *Importer) chooseCover() string {
	return imp.placeholders[imp.Rand.Intn(len(imp.placeholders))]
}

// ensureHouseImage guarantees the house references the cover at order 0,
// skipping when an identical image row already exists.
func (imp *Importer) ensureHouseImage(ctx context.Context, tx *gorm.DB, houseID, image string) error {
	image = strings.TrimPrefix(image, "/media/")
	exists, err := repo.HouseImageExists(ctx, tx, houseID, image)
	if err != nil || exists {
		return err
	}
	_, err = repo.CreateHouseImage(ctx, tx, houseID, image, 0)
	return err
}

// archiveFile moves a processed spreadsheet into the archive directory with
// a timestamp suffix. Failure to archive is logged and otherwise ignored.
func (imp *Importer) archiveFile(filePath string) {
	if err := os.MkdirAll(imp.ArchiveDir, 0o755); err != nil {
		imp.Log.Warn().Err(err).Str("file", filePath).Msg("failed to create archive directory")
		return
	}
	ext := filepath.Ext(filePath)
	stem := strings.TrimSuffix(filepath.Base(filePath), ext)
	dest := filepath.Join(imp.ArchiveDir, fmt.Sprintf("%s_%s%s", stem, imp.Now().Format("20060102_150405"), ext))
	if err := os.Rename(filePath, dest); err != nil {
		imp.Log.Warn().Err(err).Str("file", filePath).Msg("failed to archive spreadsheet")
		return
	}
	imp.Log.Info().Str("file", filePath).Str("dest", dest).Msg("archived spreadsheet")
}

// sanitizeUsername reduces a display name to an ASCII username: bj_ prefix,
// lowercase alphanumerics, capped at 12 characters, "agent" when nothing
// survives the filter.
func sanitizeUsername(name string) string {
	ascii := nonAlnumPattern.ReplaceAllString(name, "")
	if ascii == "" {
		ascii = "agent"
	}
	ascii = strings.ToLower(ascii)
	if len(ascii) > 12 {
		ascii = ascii[:12]
	}
	return "bj_" + ascii
}

// readRows loads all rows of the first sheet eagerly, mapping header names
// to cell values. Short rows are padded with empty strings.
func readRows(filePath string) ([]map[string]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		m := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(r) {
				m[h] = r[i]
			} else {
				m[h] = ""
			}
		}
		out = append(out, m)
	}
	return out, nil
}
