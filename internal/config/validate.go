package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSource() error {
	if strings.TrimSpace(c.Source.Token) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/readcast/config.toml"
		}
		return fmt.Errorf("source.token is required. Edit %s (create with 'readcast config init')", defaultPath)
	}
	if c.Source.BaseURL == "" {
		return errors.New("source.base_url must be set")
	}
	if c.Source.RequestTimeout <= 0 {
		return errors.New("source.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if c.Generation.BaseURL == "" {
		return errors.New("generation.base_url must be set")
	}
	if c.Generation.RequestTimeout <= 0 {
		return errors.New("generation.request_timeout must be positive")
	}
	if c.Generation.MinArtifactBytes < 0 {
		return errors.New("generation.min_artifact_bytes must not be negative")
	}
	if c.Generation.MaxJobAgeSeconds <= 0 {
		return errors.New("generation.max_job_age_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePublish() error {
	if strings.TrimSpace(c.Publish.Endpoint) == "" {
		return errors.New("publish.endpoint must be set")
	}
	if strings.TrimSpace(c.Publish.Bucket) == "" {
		return errors.New("publish.bucket must be set")
	}
	if strings.TrimSpace(c.Publish.AccessKeyID) == "" || strings.TrimSpace(c.Publish.SecretAccessKey) == "" {
		return errors.New("publish.access_key_id and publish.secret_access_key must be set")
	}
	if strings.TrimSpace(c.Publish.PublicBaseURL) == "" {
		return errors.New("publish.public_base_url must be set")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.RunLimit <= 0 {
		return errors.New("pipeline.run_limit must be positive")
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return errors.New("pipeline.max_attempts must be positive")
	}
	if c.Pipeline.BackoffInitialSeconds < 0 || c.Pipeline.BackoffMaxSeconds < 0 {
		return errors.New("pipeline backoff intervals must not be negative")
	}
	if c.Pipeline.BackoffMaxSeconds > 0 && c.Pipeline.BackoffInitialSeconds > c.Pipeline.BackoffMaxSeconds {
		return errors.New("pipeline.backoff_initial_seconds must not exceed pipeline.backoff_max_seconds")
	}
	return nil
}
