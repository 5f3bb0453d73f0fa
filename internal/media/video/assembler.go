package video

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"relip/internal/services"
)

// AssembleSpec describes one reassembly of cached frames into a final video.
type AssembleSpec struct {
	FramesDir  string
	Pattern    string // e.g. "frame_%05d.png"
	FrameCount int
	// FrameRate is the ffprobe rational for the source video, e.g.
	// "30000/1001". Passing the rational through keeps NTSC rates exact.
	FrameRate string
	// AudioSource is the container whose audio track is muxed onto the
	// encode. Empty means the output stays silent.
	AudioSource string
	OutputPath  string
}

// Assembler encodes ordered frame images back into a video container and
// reattaches the audio track. Any failure here is fatal for the run; there is
// no partial-video recovery.
type Assembler struct {
	bins Binaries
}

// NewAssembler constructs an Assembler using the given external binaries.
func NewAssembler(bins Binaries) *Assembler {
	return &Assembler{bins: bins}
}

// Assemble encodes the frame sequence and, when an audio source is given,
// muxes its audio track onto the result.
func (a *Assembler) Assemble(ctx context.Context, spec AssembleSpec) error {
	if spec.FrameCount <= 0 {
		return services.Wrap(services.ErrValidation, "assembler", "encode", "no frames to assemble", nil)
	}
	if strings.TrimSpace(spec.FrameRate) == "" {
		return services.Wrap(services.ErrValidation, "assembler", "encode", "missing frame rate", nil)
	}

	if spec.AudioSource == "" {
		return a.encodeFrames(ctx, spec, spec.OutputPath)
	}

	workDir := filepath.Dir(spec.OutputPath)
	silent := filepath.Join(workDir, ".relip-silent-"+filepath.Base(spec.OutputPath))
	audio := filepath.Join(workDir, ".relip-audio-"+strings.TrimSuffix(filepath.Base(spec.OutputPath), filepath.Ext(spec.OutputPath))+".mka")
	defer func() {
		_ = os.Remove(silent)
		_ = os.Remove(audio)
	}()

	if err := a.encodeFrames(ctx, spec, silent); err != nil {
		return err
	}
	if err := a.extractAudio(ctx, spec.AudioSource, audio); err != nil {
		return err
	}
	return a.muxAudio(ctx, silent, audio, spec.OutputPath)
}

func (a *Assembler) encodeFrames(ctx context.Context, spec AssembleSpec, output string) error {
	args := encodeArgs(spec, output)
	if err := a.runFFmpeg(ctx, args); err != nil {
		return services.Wrap(services.ErrExternalTool, "assembler", "encode frames", output, err)
	}
	return nil
}

func (a *Assembler) extractAudio(ctx context.Context, source, output string) error {
	args := extractAudioArgs(source, output)
	if err := a.runFFmpeg(ctx, args); err != nil {
		return services.Wrap(services.ErrExternalTool, "assembler", "extract audio", source, err)
	}
	return nil
}

func (a *Assembler) muxAudio(ctx context.Context, videoPath, audioPath, output string) error {
	args := muxAudioArgs(videoPath, audioPath, output)
	if err := a.runFFmpeg(ctx, args); err != nil {
		return services.Wrap(services.ErrExternalTool, "assembler", "mux audio", output, err)
	}
	return nil
}

func (a *Assembler) runFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, a.bins.ffmpeg(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, tail(string(output)))
	}
	return nil
}

func encodeArgs(spec AssembleSpec, output string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-framerate", spec.FrameRate,
		"-start_number", "0",
		"-i", filepath.Join(spec.FramesDir, spec.Pattern),
		"-vframes", strconv.Itoa(spec.FrameCount),
		"-b:v", "5000k",
		output,
	}
}

func extractAudioArgs(source, output string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-i", source,
		"-vn",
		"-acodec", "copy",
		output,
	}
}

func muxAudioArgs(videoPath, audioPath, output string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		output,
	}
}

func tail(text string) string {
	trimmed := strings.TrimSpace(text)
	const max = 400
	if len(trimmed) > max {
		trimmed = trimmed[len(trimmed)-max:]
	}
	return trimmed
}
