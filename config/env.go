// Package config reads process configuration from the environment once at
// startup. Components never read the environment themselves; everything is
// passed in at construction.
package config

import (
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// String returns the value of key or def when unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the integer value of key or def. A set-but-unparseable value
// is a deployment bug, so it is fatal.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return n
}

// Duration returns the duration value of key or def.
func Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return d
}
