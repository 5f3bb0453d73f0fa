package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRefinement()
	c.normalizePipeline()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.CascadeDir, err = expandPath(c.Paths.CascadeDir); err != nil {
		return fmt.Errorf("paths.cascade_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRefinement() {
	c.Refinement.BaseURL = strings.TrimRight(strings.TrimSpace(c.Refinement.BaseURL), "/")
	if c.Refinement.RequestTimeout <= 0 {
		c.Refinement.RequestTimeout = defaultRequestTimeout
	}
	if expanded, err := expandPath(strings.TrimSpace(c.Refinement.PayloadPath)); err == nil {
		if strings.TrimSpace(c.Refinement.PayloadPath) != "" {
			c.Refinement.PayloadPath = expanded
		}
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = defaultWorkers
	}
	if strings.TrimSpace(c.Pipeline.FFmpegBinary) == "" {
		c.Pipeline.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(c.Pipeline.FFprobeBinary) == "" {
		c.Pipeline.FFprobeBinary = "ffprobe"
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
