package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir    string `toml:"work_dir"`
	LogDir     string `toml:"log_dir"`
	CascadeDir string `toml:"cascade_dir"`
}

// Detector contains face detection tuning for the pigo cascade classifier.
type Detector struct {
	MinFaceSize      int     `toml:"min_face_size"`
	MaxFaceSize      int     `toml:"max_face_size"`
	ShiftFactor      float64 `toml:"shift_factor"`
	ScaleFactor      float64 `toml:"scale_factor"`
	QualityThreshold float64 `toml:"quality_threshold"`
	Perturbs         int     `toml:"perturbs"`
}

// Mask contains mouth mask construction parameters.
type Mask struct {
	// DilateIterations expands the landmark polygon to cover mouth motion
	// beyond the exact landmark positions.
	DilateIterations int `toml:"dilate_iterations"`
	// BlurKernel is the Gaussian kernel size producing graduated mask edges.
	// Must be odd.
	BlurKernel int `toml:"blur_kernel"`
}

// Refinement contains configuration for the remote img2img enhancement pass.
type Refinement struct {
	Enabled           bool    `toml:"enabled"`
	BaseURL           string  `toml:"base_url"`
	DenoisingStrength float64 `toml:"denoising_strength"`
	MaskBlur          int     `toml:"mask_blur"`
	// FrameLimit caps how many frames are sent to the remote service per run.
	// Zero disables refinement, negative means no cap.
	FrameLimit     int `toml:"frame_limit"`
	RequestTimeout int `toml:"request_timeout"`
	// PayloadPath points at a JSON file whose object is merged verbatim into
	// the img2img request body before the reserved fields are set.
	PayloadPath string `toml:"payload_path"`
}

// Pipeline contains frame processing and external binary settings.
type Pipeline struct {
	Workers       int    `toml:"workers"`
	KeepWork      bool   `toml:"keep_work"`
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for relip.
//
// Sections by subsystem:
//   - Paths: work/log directories and the cascade model asset directory
//   - Detector: pigo cascade tuning
//   - Mask: mouth mask dilation and blur
//   - Refinement: remote Stable Diffusion img2img settings
//   - Pipeline: worker count, cache retention, ffmpeg/ffprobe binaries
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Detector   Detector   `toml:"detector"`
	Mask       Mask       `toml:"mask"`
	Refinement Refinement `toml:"refinement"`
	Pipeline   Pipeline   `toml:"pipeline"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/relip/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("relip.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the work and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
