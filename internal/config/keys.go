package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
	kList // comma-separated strings
	kCron // standard 5-field cron spec or @descriptor
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CAI_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CAI_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "CAI_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "scrape.listing_urls", typ: kList, env: "CAI_SCRAPE_LISTING_URLS",
		apply:   func(cfg *Config, v any) { cfg.Scrape.ListingURLs = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Scrape.ListingURLs, ",") },
	},
	{
		key: "scrape.user_agent", typ: kString, env: "CAI_SCRAPE_USER_AGENT",
		apply:   func(cfg *Config, v any) { cfg.Scrape.UserAgent = v.(string) },
		extract: func(cfg Config) any { return cfg.Scrape.UserAgent },
	},
	{
		key: "scrape.listing_timeout", typ: kDuration, env: "CAI_SCRAPE_LISTING_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Scrape.ListingTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Scrape.ListingTimeout },
	},
	{
		key: "scrape.pdf_timeout", typ: kDuration, env: "CAI_SCRAPE_PDF_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Scrape.PDFTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Scrape.PDFTimeout },
	},
	{
		key: "scrape.pdf_workers", typ: kInt, env: "CAI_SCRAPE_PDF_WORKERS",
		apply:   func(cfg *Config, v any) { cfg.Scrape.PDFWorkers = v.(int) },
		extract: func(cfg Config) any { return cfg.Scrape.PDFWorkers },
	},
	{
		key: "scrape.temp_dir", typ: kString, env: "CAI_SCRAPE_TEMP_DIR",
		apply:   func(cfg *Config, v any) { cfg.Scrape.TempDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Scrape.TempDir },
	},
	{
		key: "scrape.repair_limit", typ: kInt, env: "CAI_SCRAPE_REPAIR_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Scrape.RepairLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Scrape.RepairLimit },
	},
	{
		key: "schedule.enabled", typ: kBool, env: "CAI_SCHEDULE_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Schedule.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Schedule.Enabled },
	},
	{
		key: "schedule.scrape_cron", typ: kCron, env: "CAI_SCHEDULE_SCRAPE_CRON",
		apply:   func(cfg *Config, v any) { cfg.Schedule.ScrapeCron = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.ScrapeCron },
	},
	{
		key: "schedule.repair_cron", typ: kCron, env: "CAI_SCHEDULE_REPAIR_CRON",
		apply:   func(cfg *Config, v any) { cfg.Schedule.RepairCron = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.RepairCron },
	},
}

// parseValue converts a raw string into the Go type of typ.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	case kList:
		return splitList(raw), nil
	case kCron:
		if _, err := cron.ParseStandard(raw); err != nil {
			return nil, err
		}
		return raw, nil
	default:
		return raw, nil
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
