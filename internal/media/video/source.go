package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"

	"relip/internal/media/ffprobe"
	"relip/internal/services"
)

// Binaries names the external tools the package shells out to.
type Binaries struct {
	FFmpeg  string
	FFprobe string
}

func (b Binaries) ffmpeg() string {
	if strings.TrimSpace(b.FFmpeg) == "" {
		return "ffmpeg"
	}
	return b.FFmpeg
}

func (b Binaries) ffprobe() string {
	if strings.TrimSpace(b.FFprobe) == "" {
		return "ffprobe"
	}
	return b.FFprobe
}

// Source streams decoded frames from a video container. It is forward-only;
// restarting playback requires a fresh Open.
type Source struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	stderr     bytes.Buffer
	width      int
	height     int
	frameRate  string
	frameCount int
	hasAudio   bool
	buf        []byte
	closed     bool
}

// Open probes path and starts an ffmpeg rawvideo decode of its first video
// stream. An unopenable container or one without video is a fatal error.
func Open(ctx context.Context, bins Binaries, path string) (*Source, error) {
	probe, err := ffprobe.Inspect(ctx, bins.ffprobe(), path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "frame source", "probe", path, err)
	}
	stream, ok := probe.FirstVideoStream()
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "frame source", "probe", fmt.Sprintf("%s has no video stream", path), nil)
	}
	if stream.Width <= 0 || stream.Height <= 0 {
		return nil, services.Wrap(services.ErrValidation, "frame source", "probe", fmt.Sprintf("%s reports invalid dimensions %dx%d", path, stream.Width, stream.Height), nil)
	}

	src := &Source{
		width:      stream.Width,
		height:     stream.Height,
		frameRate:  stream.FrameRateSpec(),
		frameCount: stream.FrameCount(),
		hasAudio:   probe.HasAudio(),
		buf:        make([]byte, stream.Width*stream.Height*3),
	}

	cmd := exec.CommandContext(ctx, bins.ffmpeg(),
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "frame source", "open", path, err)
	}
	cmd.Stderr = &src.stderr
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "frame source", "start ffmpeg", path, err)
	}
	src.cmd = cmd
	src.stdout = stdout
	return src, nil
}

// Next returns the next decoded frame, or io.EOF once the stream is exhausted.
func (s *Source) Next() (*image.RGBA, error) {
	if s.closed {
		return nil, io.EOF
	}
	n, err := io.ReadFull(s.stdout, s.buf)
	if err != nil {
		if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("truncated frame: read %d of %d bytes: %s", n, len(s.buf), s.stderrTail())
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}

	frame := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	src := s.buf
	for i, j := 0, 0; i < len(src); i, j = i+3, j+4 {
		frame.Pix[j+0] = src[i+0]
		frame.Pix[j+1] = src[i+1]
		frame.Pix[j+2] = src[i+2]
		frame.Pix[j+3] = 0xFF
	}
	return frame, nil
}

// Close terminates the decoder. Safe to call multiple times.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stdout.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}

// Bounds returns the frame rectangle.
func (s *Source) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.width, s.height)
}

// FrameRate returns the encoded frame rate as the probed rational string,
// e.g. "30000/1001". It must be reused at assembly time or the output drifts
// out of audio sync. Empty when the container reports no usable rate.
func (s *Source) FrameRate() string { return s.frameRate }

// FrameCount returns the container-reported frame count, or 0 when unknown.
func (s *Source) FrameCount() int { return s.frameCount }

// HasAudio reports whether the container carries an audio stream.
func (s *Source) HasAudio() bool { return s.hasAudio }

func (s *Source) stderrTail() string {
	text := strings.TrimSpace(s.stderr.String())
	const max = 300
	if len(text) > max {
		text = text[len(text)-max:]
	}
	return text
}
