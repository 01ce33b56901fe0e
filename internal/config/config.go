// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database connection, the listings scraper,
// the spreadsheet importer, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// DBConfig defines the relational store connection.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|mysql
	Path   string // DB_PATH: sqlite file (sqlite driver)
	DSN    string // DB_DSN: full DSN (mysql driver)
}

// ScraperConfig defines the listings fetcher/exporter settings.
type ScraperConfig struct {
	SourceURL   string        // SCRAPE_SOURCE_URL: listings page to fetch
	Timeout     time.Duration // SCRAPE_TIMEOUT: full request deadline
	DataDir     string        // DATA_DIR: where exported spreadsheets land
	City        string        // DEFAULT_CITY: stamped on every record
	SourceName  string        // SCRAPE_SOURCE_NAME: provenance label
	FilePrefix  string        // SCRAPE_FILE_PREFIX: exported file name prefix
}

// ImporterConfig defines the spreadsheet importer settings.
type ImporterConfig struct {
	DataDir        string // DATA_DIR: directory scanned for spreadsheets
	ArchiveDirName string // IMPORT_ARCHIVE_DIR: subdirectory for processed files
	MediaRoot      string // MEDIA_ROOT: root of stored media; placeholder covers live under houses/images
	DefaultCity    string // DEFAULT_CITY
	AgentCompany   string // IMPORT_AGENT_COMPANY: company for synthesized agents
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-estate-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	APIBasePath string // base path for API routes
	DB          DBConfig
	Scraper     ScraperConfig
	Importer    ImporterConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS CORSConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	dataDir := getenv("DATA_DIR", "data")
	city := getenv("DEFAULT_CITY", "北京")

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "estate.db"),
			DSN:    getenv("DB_DSN", ""),
		},
		Scraper: ScraperConfig{
			SourceURL:  getenv("SCRAPE_SOURCE_URL", "https://esf.fang.com/top/"),
			Timeout:    getdur("SCRAPE_TIMEOUT", 20*time.Second),
			DataDir:    dataDir,
			City:       city,
			SourceName: getenv("SCRAPE_SOURCE_NAME", "fang.com/top"),
			FilePrefix: getenv("SCRAPE_FILE_PREFIX", "fang_top"),
		},
		Importer: ImporterConfig{
			DataDir:        dataDir,
			ArchiveDirName: getenv("IMPORT_ARCHIVE_DIR", "processed"),
			MediaRoot:      getenv("MEDIA_ROOT", "media"),
			DefaultCity:    city,
			AgentCompany:   getenv("IMPORT_AGENT_COMPANY", "北京经纪联盟"),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-estate-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty for the sqlite driver")
		}
	case "mysql":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DB_DSN must not be empty for the mysql driver")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, mysql")
	}
	if strings.TrimSpace(cfg.Scraper.SourceURL) == "" {
		return cfg, errors.New("SCRAPE_SOURCE_URL must not be empty")
	}
	if cfg.Scraper.Timeout <= 0 {
		return cfg, errors.New("SCRAPE_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.Scraper.DataDir) == "" {
		return cfg, errors.New("DATA_DIR must not be empty")
	}
	if strings.TrimSpace(cfg.Importer.ArchiveDirName) == "" {
		return cfg, errors.New("IMPORT_ARCHIVE_DIR must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
