package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"ImageToText/logic"
)

type Config struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	SettleDelay time.Duration
	PgURL       string
	Workers     int
}

// loadConfig reads the environment. .env is loaded beforehand by run.
func loadConfig() (Config, error) {
	cfg := Config{
		APIKey:      os.Getenv("IMG2TEXT_API_KEY"),
		BaseURL:     os.Getenv("IMG2TEXT_BASE_URL"),
		Timeout:     logic.DefaultTimeout,
		SettleDelay: logic.DefaultSettleDelay,
		PgURL:       os.Getenv("PG_URL"),
		Workers:     3,
	}

	if cfg.APIKey == "" {
		return cfg, errors.New("IMG2TEXT_API_KEY is not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = logic.DefaultBaseURL
	}

	var err error
	if cfg.Timeout, err = durationEnv("IMG2TEXT_TIMEOUT", cfg.Timeout); err != nil {
		return cfg, err
	}
	if cfg.SettleDelay, err = durationEnv("IMG2TEXT_SETTLE_DELAY", cfg.SettleDelay); err != nil {
		return cfg, err
	}

	if v := os.Getenv("IMG2TEXT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("IMG2TEXT_WORKERS must be a positive integer, got %q", v)
		}
		cfg.Workers = n
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration, got %q", key, v)
	}
	return d, nil
}
