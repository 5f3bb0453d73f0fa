package video

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestEncodeArgs(t *testing.T) {
	spec := AssembleSpec{
		FramesDir:  "/tmp/work/images",
		Pattern:    "frame_%05d.png",
		FrameCount: 240,
		FrameRate:  "30000/1001",
	}
	args := encodeArgs(spec, "/tmp/out.mp4")
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-framerate 30000/1001") {
		t.Fatalf("expected exact rational framerate, got %q", joined)
	}
	if !strings.Contains(joined, "-start_number 0") {
		t.Fatalf("expected start number 0, got %q", joined)
	}
	if !strings.Contains(joined, filepath.Join("/tmp/work/images", "frame_%05d.png")) {
		t.Fatalf("expected frame pattern input, got %q", joined)
	}
	if !strings.Contains(joined, "-vframes 240") {
		t.Fatalf("expected frame cap, got %q", joined)
	}
}

func TestEncodeArgsWholeFrameRate(t *testing.T) {
	args := encodeArgs(AssembleSpec{FramesDir: "d", Pattern: "p", FrameCount: 1, FrameRate: "25/1"}, "o")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-framerate 25/1 ") {
		t.Fatalf("rational should pass through untouched: %q", joined)
	}
}

func TestExtractAudioArgsStreamCopy(t *testing.T) {
	args := extractAudioArgs("in.mp4", "audio.mka")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-vn") || !strings.Contains(joined, "-acodec copy") {
		t.Fatalf("expected lossless audio extraction, got %q", joined)
	}
}

func TestMuxAudioArgsCopiesVideo(t *testing.T) {
	args := muxAudioArgs("silent.mp4", "audio.mka", "final.mp4")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-c:v copy") {
		t.Fatalf("video must be stream-copied during mux, got %q", joined)
	}
	if !strings.Contains(joined, "-c:a aac") {
		t.Fatalf("audio should be encoded to aac, got %q", joined)
	}
}

func TestAssembleRejectsEmptySequence(t *testing.T) {
	assembler := NewAssembler(Binaries{})
	err := assembler.Assemble(context.Background(), AssembleSpec{FrameCount: 0, FrameRate: "25/1"})
	if err == nil {
		t.Fatal("expected error for empty frame sequence")
	}
	err = assembler.Assemble(context.Background(), AssembleSpec{FrameCount: 10, FrameRate: ""})
	if err == nil {
		t.Fatal("expected error for missing frame rate")
	}
}
