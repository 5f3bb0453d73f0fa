package main

import (
	"time"

	"relip/internal/config"
	"relip/internal/faces"
)

const timeRounding = 100 * time.Millisecond

func detectorSettings(cfg *config.Config) faces.Settings {
	return faces.Settings{
		MinFaceSize:      cfg.Detector.MinFaceSize,
		MaxFaceSize:      cfg.Detector.MaxFaceSize,
		ShiftFactor:      cfg.Detector.ShiftFactor,
		ScaleFactor:      cfg.Detector.ScaleFactor,
		QualityThreshold: cfg.Detector.QualityThreshold,
		Perturbs:         cfg.Detector.Perturbs,
	}
}
