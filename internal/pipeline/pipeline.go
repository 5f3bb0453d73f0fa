// Package pipeline orchestrates the frame-level enhancement run: decode the
// lip-synced and original videos in lockstep, composite the mouth region of
// each synced frame onto its original frame under a soft landmark mask,
// optionally refine frames through a remote img2img service, and reassemble
// the output video with the original audio.
//
// Finished frames are cached on disk, so an interrupted run resumes from the
// first missing frame and a completed run repeated with the same arguments
// performs no per-frame work at all.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"relip/internal/composite"
	"relip/internal/config"
	"relip/internal/faces"
	"relip/internal/fileutil"
	"relip/internal/mask"
	"relip/internal/media/video"
	"relip/internal/refine"
	"relip/internal/services"
)

// FrameSource yields decoded frames plus the stream metadata the assembler
// needs. Satisfied by video.Source.
type FrameSource interface {
	Next() (*image.RGBA, error)
	Close() error
	Bounds() image.Rectangle
	// FrameRate is the probed rational, e.g. "30000/1001".
	FrameRate() string
	FrameCount() int
	HasAudio() bool
}

// SourceOpener opens a FrameSource for a container path.
type SourceOpener func(ctx context.Context, path string) (FrameSource, error)

// Assembler reassembles cached frames into the output video. Satisfied by
// video.Assembler.
type Assembler interface {
	Assemble(ctx context.Context, spec video.AssembleSpec) error
}

// Request identifies one enhancement run.
type Request struct {
	SyncedPath   string
	OriginalPath string
	OutputPath   string
}

// Result summarizes a completed run.
type Result struct {
	Frames   int
	Cached   int
	NoFace   int
	Duration time.Duration
}

// Options configures a Pipeline. Config and Locator are required; the
// remaining fields default to the real implementations and exist so tests can
// substitute deterministic stand-ins.
type Options struct {
	Config     *config.Config
	Logger     *slog.Logger
	Locator    faces.Locator
	Refiner    refine.Refiner
	OpenSource SourceOpener
	Assembler  Assembler
	// Progress, when set, is called after every finished frame with the count
	// of frames done so far and the total when known (0 otherwise).
	Progress func(done, total int)
}

// Pipeline runs enhancement jobs. Safe for sequential reuse across jobs.
type Pipeline struct {
	cfg        *config.Config
	logger     *slog.Logger
	locator    faces.Locator
	refiner    refine.Refiner
	openSource SourceOpener
	assembler  Assembler
	builder    mask.Builder
	progress   func(done, total int)

	mu   sync.Mutex
	done int
}

// New constructs a Pipeline from options, wiring defaults for anything unset.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, errors.New("pipeline: config required")
	}
	if opts.Locator == nil {
		return nil, errors.New("pipeline: landmark locator required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	bins := video.Binaries{
		FFmpeg:  opts.Config.Pipeline.FFmpegBinary,
		FFprobe: opts.Config.Pipeline.FFprobeBinary,
	}
	openSource := opts.OpenSource
	if openSource == nil {
		openSource = func(ctx context.Context, path string) (FrameSource, error) {
			return video.Open(ctx, bins, path)
		}
	}
	assembler := opts.Assembler
	if assembler == nil {
		assembler = video.NewAssembler(bins)
	}

	refiner := opts.Refiner
	if refiner == nil {
		var err error
		refiner, err = refinerFromConfig(opts.Config.Refinement, logger)
		if err != nil {
			return nil, err
		}
	}

	return &Pipeline{
		cfg:        opts.Config,
		logger:     logger,
		locator:    opts.Locator,
		refiner:    refiner,
		openSource: openSource,
		assembler:  assembler,
		builder: mask.Builder{
			DilateIterations: opts.Config.Mask.DilateIterations,
			BlurKernel:       opts.Config.Mask.BlurKernel,
		},
		progress: opts.Progress,
	}, nil
}

func refinerFromConfig(cfg config.Refinement, logger *slog.Logger) (refine.Refiner, error) {
	if !cfg.Enabled || cfg.FrameLimit == 0 {
		return refine.Disabled{}, nil
	}
	opts := []refine.Option{
		refine.WithTimeout(time.Duration(cfg.RequestTimeout) * time.Second),
	}
	if cfg.PayloadPath != "" {
		opt, err := refine.WithPayloadFile(cfg.PayloadPath)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "load refinement payload", cfg.PayloadPath, err)
		}
		opts = append(opts, opt)
	}
	client, err := refine.NewClient(cfg.BaseURL, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "build refinement client", cfg.BaseURL, err)
	}
	return &refine.Budgeted{
		Client:            client,
		Logger:            logger,
		DenoisingStrength: cfg.DenoisingStrength,
		MaskBlur:          cfg.MaskBlur,
		FrameLimit:        cfg.FrameLimit,
	}, nil
}

// Run executes one enhancement job and writes the output video. When the
// context carries a queue job id, every log line of the run is tagged with it.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	var result Result
	logger := p.runLogger(ctx)

	for _, input := range []string{req.SyncedPath, req.OriginalPath} {
		if !fileutil.Exists(input) {
			return result, services.Wrap(services.ErrNotFound, "pipeline", "validate inputs", input, nil)
		}
	}
	if req.OutputPath == "" {
		return result, services.Wrap(services.ErrValidation, "pipeline", "validate inputs", "output path required", nil)
	}

	synced, err := p.openSource(ctx, req.SyncedPath)
	if err != nil {
		return result, err
	}
	defer synced.Close()
	original, err := p.openSource(ctx, req.OriginalPath)
	if err != nil {
		return result, err
	}
	defer original.Close()

	if synced.Bounds() != original.Bounds() {
		return result, services.Wrap(services.ErrValidation, "pipeline", "validate inputs",
			fmt.Sprintf("dimension mismatch: synced %v vs original %v", synced.Bounds(), original.Bounds()), nil)
	}

	cache, err := newFrameCache(p.cfg.Paths.WorkDir, jobKey(req.SyncedPath, req.OriginalPath, req.OutputPath))
	if err != nil {
		return result, services.Wrap(services.ErrConfiguration, "pipeline", "prepare cache", p.cfg.Paths.WorkDir, err)
	}
	logger.Info("starting enhancement run",
		"component", "pipeline",
		"synced", req.SyncedPath,
		"original", req.OriginalPath,
		"cache", cache.root)

	frames, err := p.processFrames(ctx, logger, cache, synced, original, &result)
	if err != nil {
		return result, err
	}
	if frames == 0 {
		return result, services.Wrap(services.ErrValidation, "pipeline", "process frames", "no frames decoded", nil)
	}
	result.Frames = frames

	if dir := filepath.Dir(req.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return result, services.Wrap(services.ErrConfiguration, "pipeline", "prepare output directory", dir, err)
		}
	}

	audioSource := ""
	if synced.HasAudio() {
		audioSource = req.SyncedPath
	}
	if err := p.assembler.Assemble(ctx, video.AssembleSpec{
		FramesDir:   cache.imagesDir,
		Pattern:     frameFilePattern,
		FrameCount:  frames,
		FrameRate:   original.FrameRate(),
		AudioSource: audioSource,
		OutputPath:  req.OutputPath,
	}); err != nil {
		return result, err
	}

	if !p.cfg.Pipeline.KeepWork {
		if err := cache.remove(); err != nil {
			logger.Warn("failed to remove frame cache",
				"component", "pipeline", "cache", cache.root, "error", err)
		}
	}

	result.Duration = time.Since(start)
	logger.Info("enhancement run complete",
		"component", "pipeline",
		"frames", result.Frames,
		"cached", result.Cached,
		"no_face", result.NoFace,
		"output", req.OutputPath,
		"duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

// processFrames iterates both sources in lockstep, stopping at the shorter
// stream, and returns the number of frames available for assembly. Reads stay
// sequential; per-frame work runs on a bounded worker pool.
func (p *Pipeline) processFrames(ctx context.Context, logger *slog.Logger, cache *frameCache, synced, original FrameSource, result *Result) (int, error) {
	workers := p.cfg.Pipeline.Workers
	if workers < 1 {
		workers = 1
	}
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	p.mu.Lock()
	p.done = 0
	p.mu.Unlock()

	var noFace, cached int
	var statMu sync.Mutex
	total := synced.FrameCount()
	index := 0

loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		default:
		}

		syncedFrame, err := synced.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, services.Wrap(services.ErrExternalTool, "pipeline", "decode synced frame", fmt.Sprintf("frame %d", index), err)
		}
		originalFrame, err := original.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, services.Wrap(services.ErrExternalTool, "pipeline", "decode original frame", fmt.Sprintf("frame %d", index), err)
		}

		frameIndex := index
		index++

		if cache.hasImage(frameIndex) {
			cached++
			p.reportProgress(total)
			continue
		}

		group.Go(func() error {
			faceless, err := p.processFrame(gctx, logger, cache, frameIndex, syncedFrame, originalFrame)
			if err != nil {
				return err
			}
			if faceless {
				statMu.Lock()
				noFace++
				statMu.Unlock()
			}
			p.reportProgress(total)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, services.Wrap(services.ErrTimeout, "pipeline", "process frames", "run cancelled", err)
	}

	result.Cached = cached
	result.NoFace = noFace
	return index, nil
}

// processFrame does the per-frame work: landmark detection on the synced
// frame, mask construction, compositing onto the original frame, optional
// refinement, and the cache write. It reports whether the frame passed through
// without a usable face. Per-frame detection problems degrade to pass-through;
// only cache write failures propagate.
func (p *Pipeline) processFrame(ctx context.Context, logger *slog.Logger, cache *frameCache, index int, syncedFrame, originalFrame *image.RGBA) (bool, error) {
	combined := p.buildCombinedMask(logger, index, syncedFrame)
	if combined == nil {
		// No usable face this frame. The original frame passes through
		// untouched so the output stays byte-identical outside synced mouths.
		return true, wrapCacheWrite(index, cache.writeImage(index, originalFrame))
	}

	blended, err := composite.Blend(originalFrame, syncedFrame, combined)
	if err != nil {
		logger.Warn("composite failed, passing frame through",
			"component", "pipeline", "frame", index, "error", err)
		return true, wrapCacheWrite(index, cache.writeImage(index, originalFrame))
	}

	blended = p.refiner.Refine(ctx, index, blended, combined)

	if err := cache.writeMask(index, combined); err != nil {
		return false, wrapCacheWrite(index, err)
	}
	return false, wrapCacheWrite(index, cache.writeImage(index, blended))
}

// wrapCacheWrite folds a frame cache write failure into the shared error
// taxonomy. Cache writes fail on filesystem problems, which read as
// configuration faults of the work directory rather than transient ones.
func wrapCacheWrite(index int, err error) error {
	if err == nil {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "pipeline", "write frame cache", fmt.Sprintf("frame %d", index), err)
}

// buildCombinedMask detects faces on the synced frame and returns the
// per-pixel maximum of their mouth masks, or nil when no face yields one.
func (p *Pipeline) buildCombinedMask(logger *slog.Logger, index int, syncedFrame *image.RGBA) *image.Gray {
	found, err := p.locator.Detect(syncedFrame)
	if err != nil {
		logger.Warn("face detection failed",
			"component", "pipeline", "frame", index, "error", err)
		return nil
	}
	if len(found) == 0 {
		logger.Warn("no face detected",
			"component", "pipeline", "frame", index)
		return nil
	}

	var masks []*image.Gray
	for _, landmarks := range found {
		mouth := landmarks.Mouth()
		if len(mouth) < 3 {
			continue
		}
		m, err := p.builder.Build(syncedFrame.Bounds(), mouth)
		if err != nil {
			logger.Warn("mask construction failed",
				"component", "pipeline", "frame", index, "error", err)
			continue
		}
		masks = append(masks, m)
	}
	if len(masks) == 0 {
		logger.Warn("no usable mouth landmarks",
			"component", "pipeline", "frame", index, "faces", len(found))
		return nil
	}

	combined, err := composite.CombineMasks(masks)
	if err != nil {
		logger.Warn("mask combination failed",
			"component", "pipeline", "frame", index, "error", err)
		return nil
	}
	return combined
}

// runLogger tags the pipeline logger with the queue job id when the context
// carries one, so frame-level log lines can be traced back to their job.
func (p *Pipeline) runLogger(ctx context.Context) *slog.Logger {
	if id, ok := services.JobIDFromContext(ctx); ok {
		return p.logger.With("job", id)
	}
	return p.logger
}

func (p *Pipeline) reportProgress(total int) {
	p.mu.Lock()
	p.done++
	done := p.done
	p.mu.Unlock()
	if p.progress != nil {
		p.progress(done, total)
	}
}
