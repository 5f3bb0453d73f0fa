package config

const (
	defaultWorkDir    = "~/.local/share/relip/work"
	defaultLogDir     = "~/.local/share/relip/logs"
	defaultCascadeDir = "~/.local/share/relip/cascades"
	defaultLogFormat  = "console"
	defaultLogLevel   = "info"

	defaultMinFaceSize      = 60
	defaultMaxFaceSize      = 1000
	defaultShiftFactor      = 0.1
	defaultScaleFactor      = 1.1
	defaultQualityThreshold = 5.0
	defaultPerturbs         = 50

	defaultDilateIterations = 8
	defaultBlurKernel       = 15

	defaultDenoisingStrength = 0.4
	defaultRefinementBlur    = 15
	defaultFrameLimit        = 10
	defaultRequestTimeout    = 300

	defaultWorkers = 1
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:    defaultWorkDir,
			LogDir:     defaultLogDir,
			CascadeDir: defaultCascadeDir,
		},
		Detector: Detector{
			MinFaceSize:      defaultMinFaceSize,
			MaxFaceSize:      defaultMaxFaceSize,
			ShiftFactor:      defaultShiftFactor,
			ScaleFactor:      defaultScaleFactor,
			QualityThreshold: defaultQualityThreshold,
			Perturbs:         defaultPerturbs,
		},
		Mask: Mask{
			DilateIterations: defaultDilateIterations,
			BlurKernel:       defaultBlurKernel,
		},
		Refinement: Refinement{
			Enabled:           false,
			DenoisingStrength: defaultDenoisingStrength,
			MaskBlur:          defaultRefinementBlur,
			FrameLimit:        defaultFrameLimit,
			RequestTimeout:    defaultRequestTimeout,
		},
		Pipeline: Pipeline{
			Workers:       defaultWorkers,
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
