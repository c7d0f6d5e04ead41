// Package config provides the small set of environment-variable helpers
// every gateway's main.go uses to build its typed config at startup.
package config

import (
	"os"
	"strconv"
	"time"
)

// String returns the env var's value, or fallback if unset/empty.
func String(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Hours returns the env var parsed as a float and converted to a duration in
// hours, or fallback if unset/unparseable. Used for FILE_MAX_AGE_HOURS and
// SESSION_MAX_AGE_HOURS.
func Hours(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Hour))
		}
	}
	return fallback
}

// Minutes returns the env var parsed as a float and converted to a duration
// in minutes, or fallback if unset/unparseable. Used for the per-gateway
// run timeouts (IMAGE_TIMEOUT_MIN etc.).
func Minutes(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Minute))
		}
	}
	return fallback
}
