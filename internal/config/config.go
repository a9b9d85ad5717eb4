package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"
)

// CAI listing pages: surveillance decisions and documents released in
// response to access requests.
var defaultListingURLs = []string{
	"https://www.cai.gouv.qc.ca/commission-acces-information/acces-information-de-la-commission/decisions-de-commission-section-surveillance",
	"https://www.cai.gouv.qc.ca/commission-acces-information/acces-information-de-la-commission/decisions-documents-transmis-cadre-demande-acces-information",
}

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Log      LogConfig
	Scrape   ScrapeConfig
	Schedule ScheduleConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type ScrapeConfig struct {
	ListingURLs    []string
	UserAgent      string
	ListingTimeout time.Duration
	PDFTimeout     time.Duration
	PDFWorkers     int
	// TempDir holds PDFs while their text is extracted. Defaults to
	// <data_dir>/temp-pdfs.
	TempDir     string
	RepairLimit int
}

type ScheduleConfig struct {
	Enabled    bool
	ScrapeCron string
	RepairCron string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 5000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Scrape: ScrapeConfig{
			ListingURLs:    append([]string(nil), defaultListingURLs...),
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			ListingTimeout: 15 * time.Second,
			PDFTimeout:     10 * time.Second,
			PDFWorkers:     4,
			RepairLimit:    500,
		},
		Schedule: ScheduleConfig{
			ScrapeCron: "0 2 * * *",
			RepairCron: "0 3 * * *",
		},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.kalambet.caiarchive).
// On Linux the backend is a YAML file at $XDG_CONFIG_HOME/caiarchive/config.yaml.
//
// Environment variables (CAI_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Scrape.TempDir == "" {
		cfg.Scrape.TempDir = filepath.Join(cfg.Storage.DataDir, "temp-pdfs")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	if len(c.Scrape.ListingURLs) == 0 {
		return fmt.Errorf("invalid config: scrape.listing_urls is empty")
	}
	for _, u := range c.Scrape.ListingURLs {
		if err := checkListingURL(u); err != nil {
			return fmt.Errorf("invalid config: scrape.listing_urls: %w", err)
		}
	}
	if c.Scrape.PDFWorkers < 1 {
		return fmt.Errorf("invalid config: scrape.pdf_workers must be at least 1, got %d", c.Scrape.PDFWorkers)
	}
	if c.Scrape.RepairLimit < 1 {
		return fmt.Errorf("invalid config: scrape.repair_limit must be at least 1, got %d", c.Scrape.RepairLimit)
	}
	if c.Scrape.ListingTimeout <= 0 || c.Scrape.PDFTimeout <= 0 {
		return fmt.Errorf("invalid config: scrape timeouts must be positive")
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid config: log.level %q: %w", c.Log.Level, err)
	}
	return nil
}

func checkListingURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}

// LogLevel returns the configured slog level, defaulting to info.
func (c Config) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
