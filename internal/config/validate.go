package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMask(); err != nil {
		return err
	}
	if err := c.validateDetector(); err != nil {
		return err
	}
	if err := c.validateRefinement(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMask() error {
	if c.Mask.DilateIterations < 0 {
		return errors.New("mask.dilate_iterations must not be negative")
	}
	if c.Mask.BlurKernel < 3 {
		return errors.New("mask.blur_kernel must be at least 3")
	}
	if c.Mask.BlurKernel%2 == 0 {
		return fmt.Errorf("mask.blur_kernel must be odd, got %d", c.Mask.BlurKernel)
	}
	return nil
}

func (c *Config) validateDetector() error {
	if c.Detector.MinFaceSize <= 0 {
		return errors.New("detector.min_face_size must be positive")
	}
	if c.Detector.MaxFaceSize < c.Detector.MinFaceSize {
		return errors.New("detector.max_face_size must be at least detector.min_face_size")
	}
	if c.Detector.ShiftFactor <= 0 || c.Detector.ShiftFactor > 1 {
		return errors.New("detector.shift_factor must be in (0, 1]")
	}
	if c.Detector.ScaleFactor <= 1 {
		return errors.New("detector.scale_factor must be greater than 1")
	}
	return nil
}

func (c *Config) validateRefinement() error {
	if !c.Refinement.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Refinement.BaseURL) == "" {
		return errors.New("refinement.base_url must be set when refinement.enabled is true")
	}
	if c.Refinement.DenoisingStrength < 0 || c.Refinement.DenoisingStrength > 1 {
		return errors.New("refinement.denoising_strength must be between 0 and 1")
	}
	if c.Refinement.MaskBlur < 0 {
		return errors.New("refinement.mask_blur must not be negative")
	}
	return nil
}
