package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.MaxQueue <= 0 {
		return errors.New("pipeline.max_queue must be positive")
	}
	if c.Pipeline.MaxConcurrent < 1 || c.Pipeline.MaxConcurrent > MaxConcurrentLimit {
		return fmt.Errorf("pipeline.max_concurrent must be between 1 and %d", MaxConcurrentLimit)
	}
	if c.Pipeline.DefaultSpeed <= 0 {
		return errors.New("pipeline.default_speed must be positive")
	}
	return nil
}

func (c *Config) validateServices() error {
	for name, svc := range map[string]Service{
		"services.media":     c.Services.Media,
		"services.asr":       c.Services.ASR,
		"services.translate": c.Services.Translate,
		"services.tts":       c.Services.TTS,
	} {
		if strings.TrimSpace(svc.BaseURL) == "" {
			return fmt.Errorf("%s.base_url must be set", name)
		}
		if svc.TimeoutSeconds <= 0 {
			return fmt.Errorf("%s.timeout_seconds must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.Enabled {
		return nil
	}
	if c.Storage.Endpoint == "" {
		return errors.New("storage.endpoint must be set when storage.enabled is true")
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket must be set when storage.enabled is true")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return errors.New("storage.access_key and storage.secret_key must be set when storage.enabled is true")
	}
	return nil
}
