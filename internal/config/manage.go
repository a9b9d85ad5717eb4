package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	// FromEnv is set when EnvVar currently overrides the stored value.
	FromEnv bool
}

// ShowAll returns all config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		result = append(result, KeyInfo{
			Key:     s.key,
			EnvVar:  s.env,
			Value:   fmt.Sprintf("%v", s.extract(cfg)),
			FromEnv: s.env != "" && os.Getenv(s.env) != "",
		})
	}
	return result
}

// SetKey validates value and writes it to the platform backend.
func SetKey(key, value string) error {
	return setKey(newPlatformBackend(), key, value)
}

func setKey(b ConfigBackend, key, value string) error {
	s, ok := lookup(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		return b.SetInt(key, i)
	case kList:
		items := splitList(value)
		if len(items) == 0 {
			return fmt.Errorf("invalid value for %s: empty list", key)
		}
		if key == "scrape.listing_urls" {
			for _, u := range items {
				if err := checkListingURL(u); err != nil {
					return fmt.Errorf("invalid value for %s: %w", key, err)
				}
			}
		}
		return b.SetString(key, strings.Join(items, ","))
	}

	if _, err := parseValue(s.typ, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return b.SetString(key, value)
}

// ResetKey removes a stored value so the default applies again.
func ResetKey(key string) error {
	return resetKey(newPlatformBackend(), key)
}

func resetKey(b ConfigBackend, key string) error {
	if _, ok := lookup(key); !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if err := b.Delete(key); err != nil {
		return fmt.Errorf("resetting %s: %w", key, err)
	}
	return nil
}

// ValidKeys returns the list of valid config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}

func lookup(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}
