package scraper

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/estateops/go-estate-backend/internal/config"
)

const fixtureHTML = `<html><body>
<dl dataflag="bg" data-bg="{&quot;houseid&quot;:&quot;H100&quot;,&quot;agentid&quot;:&quot;A9&quot;}">
  <dt><img data-src="//img.example.com/covers/1.jpg"></dt>
  <dd>
    <h4><a href="/house/100.html">阳光花园 南北通透</a></h4>
    <p class="tel_shop"><span>3室2厅</span><span>89.5㎡</span><span>中层（共18层）</span><span>南北向</span><span class="people_name"><a href="//agent.example.com/a9">王建国</a></span></p>
    <p class="add_shop"><a>阳光花园</a><span>朝阳-望京</span></p>
    <p class="label"><span>满五唯一</span><span>近地铁</span></p>
  </dd>
  <dd class="price_right"><span class="red"><b>300</b></span><span>33,519元/㎡</span></dd>
</dl>
<dl dataflag="bg">
  <dt></dt>
  <dd>
    <h4><a href="detail2.html">商住两用大平层</a></h4>
    <p class="tel_shop"><span>6室3厅</span></p>
  </dd>
</dl>
<dl dataflag="bg"><dd><p>no title link here</p></dd></dl>
</body></html>`

func newTestScraper(t *testing.T) *Scraper {
	t.Helper()
	s := New(config.ScraperConfig{
		SourceURL:  "https://esf.fang.com/top/",
		Timeout:    5 * time.Second,
		DataDir:    t.TempDir(),
		City:       "北京",
		SourceName: "fang.com/top",
		FilePrefix: "fang_top",
	}, zerolog.Nop())
	s.Rand = rand.New(rand.NewSource(42))
	s.Now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestParseListings_FullNode(t *testing.T) {
	s := newTestScraper(t)
	got := s.ParseListings(fixtureHTML)
	if len(got) != 2 {
		t.Fatalf("want 2 parsed listings (third has no title), got %d", len(got))
	}

	r := got[0]
	if r.SourceID != "H100" {
		t.Errorf("SourceID = %q, want H100", r.SourceID)
	}
	if r.Title != "阳光花园 南北通透" {
		t.Errorf("Title = %q", r.Title)
	}
	if r.HouseURL != "https://esf.fang.com/house/100.html" {
		t.Errorf("relative URL not resolved: %q", r.HouseURL)
	}
	if r.Layout != "3室2厅" || r.HouseType != "3室" {
		t.Errorf("layout/house type: %q / %q", r.Layout, r.HouseType)
	}
	if r.AreaSqm == nil || *r.AreaSqm != 89.5 {
		t.Errorf("AreaSqm = %v, want 89.5", r.AreaSqm)
	}
	if r.Floor != "中层" {
		t.Errorf("Floor = %q, want 中层", r.Floor)
	}
	if r.TotalFloors == nil || *r.TotalFloors != 18 {
		t.Errorf("TotalFloors = %v, want 18", r.TotalFloors)
	}
	if r.Orientation != "南北" {
		t.Errorf("Orientation = %q, want 南北", r.Orientation)
	}
	if r.PriceTotalWan == nil || *r.PriceTotalWan != 300 {
		t.Errorf("PriceTotalWan = %v, want 300", r.PriceTotalWan)
	}
	if r.UnitPrice == nil || *r.UnitPrice != 33519 {
		t.Errorf("UnitPrice = %v, want 33519", r.UnitPrice)
	}
	if r.AgentName != "王建国" || r.AgentID != "A9" {
		t.Errorf("agent: %q / %q", r.AgentName, r.AgentID)
	}
	if r.AgentStoreURL != "https://agent.example.com/a9" {
		t.Errorf("protocol-relative agent URL not upgraded: %q", r.AgentStoreURL)
	}
	if r.Community != "阳光花园" || r.Region != "朝阳-望京" {
		t.Errorf("location: %q / %q", r.Community, r.Region)
	}
	if r.DistrictName != "朝阳" || r.SubDistrict != "望京" {
		t.Errorf("region split: %q / %q", r.DistrictName, r.SubDistrict)
	}
	if r.Address != "阳光花园 / 朝阳-望京" {
		t.Errorf("Address = %q", r.Address)
	}
	if len(r.Tags) != 2 || r.Tags[0] != "满五唯一" || r.Tags[1] != "近地铁" {
		t.Errorf("Tags = %v", r.Tags)
	}
	if r.CoverImage != "https://img.example.com/covers/1.jpg" {
		t.Errorf("CoverImage = %q", r.CoverImage)
	}
	if r.Description != "满五唯一 | 近地铁" {
		t.Errorf("Description = %q", r.Description)
	}
	if r.Longitude < 115.40 || r.Longitude > 117.60 || r.Latitude < 39.40 || r.Latitude > 41.10 {
		t.Errorf("coordinates outside Beijing bounds: %v/%v", r.Longitude, r.Latitude)
	}
	found := false
	for _, d := range []string{"精装", "简装", "毛坯"} {
		if r.Decoration == d {
			found = true
		}
	}
	if !found {
		t.Errorf("Decoration = %q not in allowed pool", r.Decoration)
	}
	if r.BuildYear < 1995 || r.BuildYear > 2025 {
		t.Errorf("BuildYear = %d outside [1995, 2025]", r.BuildYear)
	}
	if !r.ScrapedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("ScrapedAt not stamped from injected clock: %v", r.ScrapedAt)
	}

	// Second node: no source id attribute -> title is the fallback key; no
	// parseable numbers -> nil, not zero.
	r2 := got[1]
	if r2.SourceID != r2.Title {
		t.Errorf("missing houseid must fall back to title, got %q", r2.SourceID)
	}
	if r2.AreaSqm != nil || r2.PriceTotalWan != nil || r2.UnitPrice != nil || r2.TotalFloors != nil {
		t.Errorf("unparsable numerics must stay nil: %+v", r2)
	}
	if r2.HouseType != "5室及以上" {
		t.Errorf("6-room layout must map to 5室及以上, got %q", r2.HouseType)
	}
}

func TestToHouseType(t *testing.T) {
	cases := map[string]string{
		"1室1厅":  "1室",
		"2室1厅":  "2室",
		"3室2厅":  "3室",
		"4室2厅":  "4室",
		"5室3厅":  "5室及以上",
		"7室2厅":  "5室及以上",
		"12室":   "5室及以上",
		"开间":    "",
		"":      "",
	}
	for in, want := range cases {
		if got := ToHouseType(in); got != want {
			t.Errorf("ToHouseType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeOrientation(t *testing.T) {
	for in, want := range map[string]string{
		"南北向": "南北",
		"东南向": "东南",
		"":    "",
		" 西向 ": "西",
	} {
		if got := NormalizeOrientation(in); got != want {
			t.Errorf("NormalizeOrientation(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	s := newTestScraper(t)
	for in, want := range map[string]string{
		"//img.example.com/x.jpg":     "https://img.example.com/x.jpg",
		"https://a.example.com/p":     "https://a.example.com/p",
		"http://a.example.com/p":      "http://a.example.com/p",
		"/house/7.html":               "https://esf.fang.com/house/7.html",
		"":                            "",
	} {
		if got := s.normalizeURL(in); got != want {
			t.Errorf("normalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFetchHTML_DecodesDeclaredCharset(t *testing.T) {
	gbkBody, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(`<html><title>北京二手房</title></html>`))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=gbk")
		_, _ = w.Write(gbkBody)
	}))
	defer srv.Close()

	s := newTestScraper(t)
	s.URL = srv.URL
	body, err := s.FetchHTML(context.Background())
	if err != nil {
		t.Fatalf("FetchHTML: %v", err)
	}
	if !strings.Contains(body, "北京二手房") {
		t.Fatalf("GBK body not decoded: %q", body)
	}
	inPool := false
	for _, ua := range userAgents {
		if gotUA == ua {
			inPool = true
		}
	}
	if !inPool {
		t.Fatalf("User-Agent %q not from rotation pool", gotUA)
	}
}

func TestFetchHTML_NonOKStatusIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := newTestScraper(t)
	s.URL = srv.URL
	_, err := s.FetchHTML(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FetchError, got %T (%v)", err, err)
	}
	if fe.StatusCode != http.StatusForbidden {
		t.Fatalf("StatusCode = %d, want 403", fe.StatusCode)
	}
}

func TestFetchHTML_NetworkFailureIsFetchError(t *testing.T) {
	s := newTestScraper(t)
	s.URL = "http://127.0.0.1:1/unreachable"
	s.Client.Timeout = 500 * time.Millisecond
	_, err := s.FetchHTML(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FetchError, got %T (%v)", err, err)
	}
}

func TestRun_FetchFailureIsFatalNoExport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := newTestScraper(t)
	s.URL = srv.URL
	if _, err := s.Run(context.Background()); err == nil {
		t.Fatal("Run must fail when the fetch fails")
	}
}
