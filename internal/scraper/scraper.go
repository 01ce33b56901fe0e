package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"

	"github.com/estateops/go-estate-backend/internal/config"
	"github.com/estateops/go-estate-backend/internal/domain"
)

// userAgents is the rotation pool; one is picked at random per request.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 " +
		"(KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 " +
		"(KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
}

var baseHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language": "zh-CN,zh;q=0.9",
	"Cache-Control":   "no-cache",
	"Connection":      "keep-alive",
	"Pragma":          "no-cache",
	"Referer":         "https://esf.fang.com/",
}

// Coordinates are not present on the source page; each record gets a random
// point inside the Beijing administrative bounding box instead.
var (
	beijingLonRange = [2]float64{115.40, 117.60}
	beijingLatRange = [2]float64{39.40, 41.10}
)

var (
	areaPattern       = regexp.MustCompile(`([\d.]+)\s*㎡`)
	totalFloorPattern = regexp.MustCompile(`共(\d+)层`)
	unitPricePattern  = regexp.MustCompile(`([\d,]+)`)
	roomCountPattern  = regexp.MustCompile(`(\d+)室`)
)

// listingSelector marks one listing node on the source page.
const listingSelector = `dl[dataflag="bg"]`

// FetchError reports a failed page fetch: network failure, timeout, or a
// non-2xx response. It is fatal for the current run; the next scheduled run
// retries from scratch.
type FetchError struct {
	URL        string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RunResult summarizes one scrape-and-export run.
type RunResult struct {
	Count      int       `json:"count"`
	OutputPath string    `json:"output_path"`
	Timestamp  time.Time `json:"timestamp"`
}

// Scraper fetches, parses, and exports listings. Randomness (user-agent
// rotation, coordinates, decoration, build year) flows through Rand and
// timestamps through Now, so tests can pin both.
type Scraper struct {
	URL        string
	Client     *http.Client
	Log        zerolog.Logger
	City       string
	SourceName string
	DataDir    string
	FilePrefix string

	Rand *rand.Rand
	Now  func() time.Time
}

// New constructs a Scraper from configuration with time-seeded randomness.
func New(cfg config.ScraperConfig, log zerolog.Logger) *Scraper {
	return &Scraper{
		URL:        cfg.SourceURL,
		Client:     &http.Client{Timeout: cfg.Timeout},
		Log:        log,
		City:       cfg.City,
		SourceName: cfg.SourceName,
		DataDir:    cfg.DataDir,
		FilePrefix: cfg.FilePrefix,
		Rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
		Now:        time.Now,
	}
}

// Run executes one full fetch → parse → export cycle.
func (s *Scraper) Run(ctx context.Context) (RunResult, error) {
	body, err := s.FetchHTML(ctx)
	if err != nil {
		return RunResult{}, err
	}
	listings := s.ParseListings(body)
	path, n, err := s.Export(listings)
	if err != nil {
		return RunResult{}, err
	}
	res := RunResult{Count: n, OutputPath: path, Timestamp: s.Now()}
	s.Log.Info().Int("count", res.Count).Str("output", res.OutputPath).Msg("scrape run finished")
	return res, nil
}

// FetchHTML issues one GET against the source page and returns the decoded
// body. The response is decoded using the server-declared charset, falling
// back to content sniffing when the header is silent (the source serves GBK).
func (s *Scraper) FetchHTML(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return "", &FetchError{URL: s.URL, Err: err}
	}
	for k, v := range baseHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", userAgents[s.Rand.Intn(len(userAgents))])

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", &FetchError{URL: s.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{URL: s.URL, StatusCode: resp.StatusCode}
	}

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", &FetchError{URL: s.URL, Err: fmt.Errorf("decode body: %w", err)}
	}
	var b strings.Builder
	if _, err := io.Copy(&b, reader); err != nil {
		return "", &FetchError{URL: s.URL, Err: fmt.Errorf("read body: %w", err)}
	}
	return b.String(), nil
}

// ParseListings extracts one ListingRecord per listing node. A failure on one
// node is logged and skipped; it never aborts the batch.
func (s *Scraper) ParseListings(htmlText string) []ListingRecord {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		s.Log.Warn().Err(err).Msg("failed to build document from page body")
		return nil
	}

	var listings []ListingRecord
	doc.Find(listingSelector).Each(func(i int, node *goquery.Selection) {
		rec, err := s.parseNode(node)
		if err != nil {
			s.Log.Warn().Err(err).Int("node", i).Msg("failed to parse listing node")
			return
		}
		if rec != nil {
			listings = append(listings, *rec)
		}
	})
	return listings
}

// parseNode maps one listing node to a record. A nil record with nil error
// means the node carries no usable title and is silently dropped.
func (s *Scraper) parseNode(node *goquery.Selection) (*ListingRecord, error) {
	meta := extractMetadata(node)

	titleLink := node.Find("dd h4 a").First()
	if titleLink.Length() == 0 {
		return nil, nil
	}
	title := strings.TrimSpace(titleLink.Text())
	if title == "" {
		return nil, nil
	}
	houseURL := s.normalizeURL(titleLink.AttrOr("href", ""))

	layout, area, floorText, totalFloors, orientation := extractHouseInfo(node)
	priceTotal, unitPrice := extractPriceInfo(node)

	agentAnchor := node.Find("p.tel_shop span.people_name a").First()
	agentName := strings.TrimSpace(agentAnchor.Text())
	agentStoreURL := ""
	if agentAnchor.Length() > 0 {
		agentStoreURL = s.normalizeURL(agentAnchor.AttrOr("href", ""))
	}

	community, region := extractLocation(node)
	var tags []string
	node.Find("p.label span").Each(func(_ int, sp *goquery.Selection) {
		if t := strings.TrimSpace(sp.Text()); t != "" {
			tags = append(tags, t)
		}
	})
	cover := s.extractCover(node)

	districtName, subDistrict := splitRegion(region)
	address := joinNonEmpty(" / ", community, region)
	lon, lat := s.randomCoordinates()

	sourceID := meta["houseid"]
	if sourceID == "" {
		sourceID = title
	}

	return &ListingRecord{
		SourceID:      sourceID,
		Title:         title,
		HouseURL:      houseURL,
		Layout:        layout,
		HouseType:     ToHouseType(layout),
		AreaSqm:       area,
		Floor:         floorText,
		TotalFloors:   totalFloors,
		Orientation:   NormalizeOrientation(orientation),
		PriceTotalWan: priceTotal,
		UnitPrice:     unitPrice,
		AgentName:     agentName,
		AgentStoreURL: agentStoreURL,
		AgentID:       meta["agentid"],
		Community:     community,
		Region:        region,
		DistrictName:  districtName,
		SubDistrict:   subDistrict,
		Address:       address,
		Tags:          tags,
		CoverImage:    cover,
		Status:        domain.StatusAvailable,
		Decoration:    domain.DecorationChoices[s.Rand.Intn(len(domain.DecorationChoices))],
		BuildYear:     1995 + s.Rand.Intn(s.Now().Year()-1995+1),
		Description:   strings.Join(tags, " | "),
		Longitude:     lon,
		Latitude:      lat,
		City:          s.City,
		DataSource:    s.SourceName,
		ScrapedAt:     s.Now(),
	}, nil
}

// extractMetadata decodes the JSON blob in the node's data-bg attribute.
// Values are stringified; a missing or malformed attribute yields an empty map.
func extractMetadata(node *goquery.Selection) map[string]string {
	out := map[string]string{}
	raw, ok := node.Attr("data-bg")
	if !ok || raw == "" {
		return out
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(html.UnescapeString(raw)), &m); err != nil {
		return out
	}
	for k, v := range m {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return out
}

// extractHouseInfo splits the p.tel_shop fragment into its layout, area,
// floor, and orientation parts.
func extractHouseInfo(node *goquery.Selection) (layout string, area *float64, floorText string, totalFloors *int, orientation string) {
	telShop := node.Find("p.tel_shop").First()
	if telShop.Length() == 0 {
		return "", nil, "", nil, ""
	}

	parts := textParts(telShop)
	if len(parts) > 0 {
		layout = parts[0]
	}

	for _, part := range parts {
		if strings.Contains(part, "㎡") {
			if m := areaPattern.FindStringSubmatch(part); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					area = &v
				}
			}
			break
		}
	}

	for _, part := range parts {
		if strings.Contains(part, "层") {
			if m := totalFloorPattern.FindStringSubmatch(part); m != nil {
				if v, err := strconv.Atoi(m[1]); err == nil {
					totalFloors = &v
				}
			}
			floorText, _, _ = strings.Cut(part, "（")
			break
		}
	}

	for _, part := range parts {
		if strings.HasSuffix(part, "向") {
			orientation = part
			break
		}
	}
	return layout, area, floorText, totalFloors, orientation
}

// extractPriceInfo pulls the total price (万元) and unit price (元/㎡) from
// the price column.
func extractPriceInfo(node *goquery.Selection) (total, unit *float64) {
	if t := strings.TrimSpace(node.Find("dd.price_right span.red b").First().Text()); t != "" {
		if v, err := strconv.ParseFloat(t, 64); err == nil {
			total = &v
		}
	}
	unitNode := node.Find("dd.price_right span:nth-of-type(2)").First()
	if unitNode.Length() > 0 {
		if m := unitPricePattern.FindStringSubmatch(unitNode.Text()); m != nil {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
				unit = &v
			}
		}
	}
	return total, unit
}

func extractLocation(node *goquery.Selection) (community, region string) {
	addShop := node.Find("p.add_shop").First()
	if addShop.Length() == 0 {
		return "", ""
	}
	community = strings.TrimSpace(addShop.Find("a").First().Text())
	region = strings.TrimSpace(addShop.Find("span").First().Text())
	return community, region
}

func (s *Scraper) extractCover(node *goquery.Selection) string {
	img := node.Find("dt img").First()
	if img.Length() == 0 {
		return ""
	}
	cover := img.AttrOr("data-src", "")
	if cover == "" {
		cover = img.AttrOr("src", "")
	}
	return s.normalizeURL(cover)
}

// splitRegion splits "朝阳-望京" into district and sub-district segments.
func splitRegion(region string) (district, sub string) {
	if d, s, found := strings.Cut(region, "-"); found {
		return strings.TrimSpace(d), strings.TrimSpace(s)
	}
	return region, ""
}

// normalizeURL upgrades protocol-relative URLs to HTTPS, resolves relative
// URLs against the source base, and passes absolute URLs through unchanged.
func (s *Scraper) normalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	if strings.HasPrefix(raw, "http") {
		return raw
	}
	base, err := url.Parse(s.URL)
	if err != nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

// NormalizeOrientation strips the trailing 向 particle, leaving the raw
// compass term ("南北向" -> "南北").
func NormalizeOrientation(value string) string {
	if value == "" {
		return ""
	}
	return strings.TrimSpace(strings.ReplaceAll(value, "向", ""))
}

// ToHouseType maps a layout fragment to its category: room counts 1-4 map to
// "N室", anything >= 5 collapses to the top category, and a layout without a
// parseable room count maps to the empty string.
func ToHouseType(layout string) string {
	m := roomCountPattern.FindStringSubmatch(layout)
	if m == nil {
		return ""
	}
	rooms, err := strconv.Atoi(m[1])
	if err != nil {
		return ""
	}
	if rooms >= 5 {
		return domain.HouseTypeMax
	}
	return fmt.Sprintf("%d室", rooms)
}

func (s *Scraper) randomCoordinates() (lon, lat float64) {
	lon = round6(beijingLonRange[0] + s.Rand.Float64()*(beijingLonRange[1]-beijingLonRange[0]))
	lat = round6(beijingLatRange[0] + s.Rand.Float64()*(beijingLatRange[1]-beijingLatRange[0]))
	return lon, lat
}

func round6(v float64) float64 {
	return float64(int64(v*1e6+0.5)) / 1e6
}

// textParts walks the node's text content and returns the trimmed, non-empty
// fragments in document order. Element boundaries act as separators, mirroring
// how the source page delimits layout/area/floor/orientation spans.
func textParts(sel *goquery.Selection) []string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
				return
			}
			walk(c)
		})
	}
	walk(sel)
	return parts
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
