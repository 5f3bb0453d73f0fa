package ffprobe_test

import (
	"math"
	"testing"

	"relip/internal/media/ffprobe"
)

const sampleJSON = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "h264",
      "codec_type": "video",
      "width": 1280,
      "height": 720,
      "avg_frame_rate": "30000/1001",
      "r_frame_rate": "30000/1001",
      "nb_frames": "300"
    },
    {
      "index": 1,
      "codec_name": "aac",
      "codec_type": "audio",
      "sample_rate": "48000",
      "channels": 2
    }
  ],
  "format": {
    "filename": "clip.mp4",
    "nb_streams": 2,
    "duration": "10.010000",
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2"
  }
}`

func TestDecodeStreams(t *testing.T) {
	result, err := ffprobe.Decode([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	video, ok := result.FirstVideoStream()
	if !ok {
		t.Fatal("expected a video stream")
	}
	if video.Width != 1280 || video.Height != 720 {
		t.Fatalf("unexpected dimensions %dx%d", video.Width, video.Height)
	}
	if video.FrameCount() != 300 {
		t.Fatalf("unexpected frame count %d", video.FrameCount())
	}
	if got := video.FrameRateSpec(); got != "30000/1001" {
		t.Fatalf("frame rate = %q, want 30000/1001", got)
	}
	if !result.HasAudio() {
		t.Fatal("expected audio stream")
	}
	if got := result.DurationSeconds(); math.Abs(got-10.01) > 1e-9 {
		t.Fatalf("duration = %f", got)
	}
}

func TestDecodeSilentContainer(t *testing.T) {
	payload := `{"streams":[{"index":0,"codec_type":"video","width":640,"height":480,"avg_frame_rate":"25/1"}],"format":{"nb_streams":1}}`
	result, err := ffprobe.Decode([]byte(payload))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if result.HasAudio() {
		t.Fatal("expected no audio stream")
	}
	video, ok := result.FirstVideoStream()
	if !ok {
		t.Fatal("expected video stream")
	}
	if got := video.FrameRateSpec(); got != "25/1" {
		t.Fatalf("frame rate = %q", got)
	}
	if video.FrameCount() != 0 {
		t.Fatalf("missing nb_frames should yield 0, got %d", video.FrameCount())
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := ffprobe.Decode([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFrameRateSpecKeepsExactRational(t *testing.T) {
	cases := []struct {
		avg  string
		r    string
		want string
	}{
		{"30000/1001", "30000/1001", "30000/1001"},
		{"0/0", "24/1", "24/1"},
		{"", "25/1", "25/1"},
		{"", "", ""},
	}
	for _, tc := range cases {
		stream := ffprobe.Stream{AvgFrameRate: tc.avg, RFrameRate: tc.r}
		if got := stream.FrameRateSpec(); got != tc.want {
			t.Fatalf("FrameRateSpec(avg=%q, r=%q) = %q, want %q", tc.avg, tc.r, got, tc.want)
		}
	}
}
