// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/config.go
// Summary: Environment configuration for the slate server process.

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var ErrMissingDatabaseURL = errors.New("config: DATABASE_URL is required")

// Defaults applied when the corresponding variable is unset.
const (
	DefaultPort                = 8080
	DefaultCompactionThreshold = 5000
	DefaultCursorBatchMS       = 50
	DefaultDrawBucketSize      = 30
	DefaultDrawRefillRate      = 60
	DefaultCursorBucketSize    = 60
	DefaultCursorRefillRate    = 120
)

// Config carries every tunable the process reads from the environment.
type Config struct {
	DatabaseURL         string
	Port                int
	AuthSecretKey       string
	CompactionThreshold int64
	CursorBatchInterval time.Duration
	DrawBucketSize      int
	DrawRefillRate      float64
	CursorBucketSize    int
	CursorRefillRate    float64
	StaticDir           string
	VerboseLogs         bool
}

// FromEnv reads the process environment and validates it. DATABASE_URL is
// the only required variable; everything else has a default.
func FromEnv() (Config, error) {
	cfg := Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		Port:                DefaultPort,
		AuthSecretKey:       os.Getenv("AUTH_SECRET_KEY"),
		CompactionThreshold: DefaultCompactionThreshold,
		CursorBatchInterval: DefaultCursorBatchMS * time.Millisecond,
		DrawBucketSize:      DefaultDrawBucketSize,
		DrawRefillRate:      DefaultDrawRefillRate,
		CursorBucketSize:    DefaultCursorBucketSize,
		CursorRefillRate:    DefaultCursorRefillRate,
		StaticDir:           os.Getenv("SLATE_STATIC_DIR"),
		VerboseLogs:         os.Getenv("SLATE_VERBOSE_LOGS") == "1",
	}
	if cfg.DatabaseURL == "" {
		return Config{}, ErrMissingDatabaseURL
	}

	var err error
	if cfg.Port, err = intEnv("PORT", cfg.Port); err != nil {
		return Config{}, err
	}
	threshold, err := intEnv("COMPACTION_THRESHOLD", int(cfg.CompactionThreshold))
	if err != nil {
		return Config{}, err
	}
	cfg.CompactionThreshold = int64(threshold)
	batchMS, err := intEnv("CURSOR_BATCH_MS", DefaultCursorBatchMS)
	if err != nil {
		return Config{}, err
	}
	cfg.CursorBatchInterval = time.Duration(batchMS) * time.Millisecond
	if cfg.DrawBucketSize, err = intEnv("DRAW_BUCKET_SIZE", cfg.DrawBucketSize); err != nil {
		return Config{}, err
	}
	if cfg.DrawRefillRate, err = floatEnv("DRAW_REFILL_RATE", cfg.DrawRefillRate); err != nil {
		return Config{}, err
	}
	if cfg.CursorBucketSize, err = intEnv("CURSOR_BUCKET_SIZE", cfg.CursorBucketSize); err != nil {
		return Config{}, err
	}
	if cfg.CursorRefillRate, err = floatEnv("CURSOR_REFILL_RATE", cfg.CursorRefillRate); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %d", name, v)
	}
	return v, nil
}

func floatEnv(name string, fallback float64) (float64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %v", name, v)
	}
	return v, nil
}
