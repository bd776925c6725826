package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeServices()
	c.normalizeStorage()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.RunsDir) == "" {
		c.Paths.RunsDir = defaultRunsDir
	}
	if c.Paths.RunsDir, err = expandPath(c.Paths.RunsDir); err != nil {
		return fmt.Errorf("paths.runs_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AssetDir) == "" {
		c.Paths.AssetDir = defaultAssetDir
	}
	if c.Paths.AssetDir, err = expandPath(c.Paths.AssetDir); err != nil {
		return fmt.Errorf("paths.asset_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	for i, asset := range c.Pipeline.IntroAssets {
		if c.Pipeline.IntroAssets[i], err = expandPath(strings.TrimSpace(asset)); err != nil {
			return fmt.Errorf("pipeline.intro_assets[%d]: %w", i, err)
		}
	}
	return nil
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.MaxQueue <= 0 {
		c.Pipeline.MaxQueue = defaultMaxQueue
	}
	if c.Pipeline.MaxConcurrent < 1 {
		c.Pipeline.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Pipeline.MaxConcurrent > MaxConcurrentLimit {
		c.Pipeline.MaxConcurrent = MaxConcurrentLimit
	}
	c.Pipeline.DefaultLanguage = strings.TrimSpace(c.Pipeline.DefaultLanguage)
	if c.Pipeline.DefaultLanguage == "" {
		c.Pipeline.DefaultLanguage = defaultLanguage
	}
	if c.Pipeline.DefaultSpeed <= 0 {
		c.Pipeline.DefaultSpeed = defaultSpeed
	}
}

func (c *Config) normalizeServices() {
	normalizeService(&c.Services.Media, defaultMediaBaseURL)
	normalizeService(&c.Services.ASR, defaultASRBaseURL)
	normalizeService(&c.Services.Translate, defaultTranslateBaseURL)
	normalizeService(&c.Services.TTS, defaultTTSBaseURL)
}

func normalizeService(svc *Service, fallbackURL string) {
	svc.BaseURL = strings.TrimRight(strings.TrimSpace(svc.BaseURL), "/")
	if svc.BaseURL == "" {
		svc.BaseURL = fallbackURL
	}
	if svc.TimeoutSeconds <= 0 {
		svc.TimeoutSeconds = defaultServiceTimeoutSeconds
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
	c.Storage.AccessKey = strings.TrimSpace(c.Storage.AccessKey)
	c.Storage.SecretKey = strings.TrimSpace(c.Storage.SecretKey)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
