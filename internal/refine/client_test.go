package refine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func testFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = 0xFF
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestRefineRoundTrip(t *testing.T) {
	refined := testFrame(8, 8, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sdapi/v1/img2img" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"images": []string{encodePNG(t, refined)},
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	frame := testFrame(8, 8, color.RGBA{R: 9, G: 9, B: 9, A: 255})
	mask := image.NewGray(image.Rect(0, 0, 8, 8))
	got, err := client.Refine(context.Background(), Request{
		Frame:             frame,
		Mask:              mask,
		DenoisingStrength: 0.4,
		MaskBlur:          15,
	})
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if !bytes.Equal(got.Pix, refined.Pix) {
		t.Fatal("refined frame does not match server response")
	}

	inits, ok := captured["init_images"].([]any)
	if !ok || len(inits) != 1 {
		t.Fatalf("init_images malformed: %v", captured["init_images"])
	}
	if s := inits[0].(string); len(s) == 0 || s[:22] != "data:image/png;base64," {
		t.Fatalf("init image is not a PNG data URI: %.40s", s)
	}
	if captured["denoising_strength"].(float64) != 0.4 {
		t.Fatalf("denoising_strength = %v", captured["denoising_strength"])
	}
	if captured["mask_blur"].(float64) != 15 {
		t.Fatalf("mask_blur = %v", captured["mask_blur"])
	}
}

func TestRefineAcceptsDataURIResponse(t *testing.T) {
	refined := testFrame(4, 4, color.RGBA{R: 7, A: 255})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"images": []string{"data:image/png;base64," + encodePNG(t, refined)},
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	got, err := client.Refine(context.Background(), Request{
		Frame: testFrame(4, 4, color.RGBA{A: 255}),
		Mask:  image.NewGray(image.Rect(0, 0, 4, 4)),
	})
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if !bytes.Equal(got.Pix, refined.Pix) {
		t.Fatal("data-URI response not decoded correctly")
	}
}

func TestRefineErrorsOnServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "cuda out of memory", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	_, err = client.Refine(context.Background(), Request{
		Frame: testFrame(4, 4, color.RGBA{A: 255}),
		Mask:  image.NewGray(image.Rect(0, 0, 4, 4)),
	})
	if err == nil {
		t.Fatal("expected error for http 500")
	}
}

func TestRefineErrorsOnEmptyImages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"images": []string{}})
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	_, err = client.Refine(context.Background(), Request{
		Frame: testFrame(4, 4, color.RGBA{A: 255}),
		Mask:  image.NewGray(image.Rect(0, 0, 4, 4)),
	})
	if err == nil {
		t.Fatal("expected error for empty images array")
	}
}

func TestRefineErrorsOnDimensionChange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"images": []string{encodePNG(t, testFrame(9, 9, color.RGBA{A: 255}))},
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	_, err = client.Refine(context.Background(), Request{
		Frame: testFrame(4, 4, color.RGBA{A: 255}),
		Mask:  image.NewGray(image.Rect(0, 0, 4, 4)),
	})
	if err == nil {
		t.Fatal("expected error when the server changes dimensions")
	}
}

func TestWithPayloadFileMergesExtras(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.json")
	if err := os.WriteFile(path, []byte(`{"steps": 25, "sampler_name": "Euler a", "mask": "ignored"}`), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(map[string]any{
			"images": []string{encodePNG(t, testFrame(4, 4, color.RGBA{A: 255}))},
		})
	}))
	defer server.Close()

	opt, err := WithPayloadFile(path)
	if err != nil {
		t.Fatalf("WithPayloadFile failed: %v", err)
	}
	client, err := NewClient(server.URL, opt)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Refine(context.Background(), Request{
		Frame: testFrame(4, 4, color.RGBA{A: 255}),
		Mask:  image.NewGray(image.Rect(0, 0, 4, 4)),
	}); err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	if captured["steps"].(float64) != 25 {
		t.Fatalf("steps = %v", captured["steps"])
	}
	if captured["sampler_name"] != "Euler a" {
		t.Fatalf("sampler_name = %v", captured["sampler_name"])
	}
	// Owned fields win over the payload file.
	if s, _ := captured["mask"].(string); s == "ignored" {
		t.Fatal("payload file must not override the mask field")
	}
}

func TestBudgetedFallsBackWhenServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // connection refused from here on

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	budgeted := &Budgeted{
		Client: client,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	frame := testFrame(4, 4, color.RGBA{R: 42, A: 255})
	got := budgeted.Refine(context.Background(), 0, frame, image.NewGray(image.Rect(0, 0, 4, 4)))
	if got != frame {
		t.Fatal("unreachable server must fall back to the input frame")
	}
}

func TestBudgetedHonorsFrameLimit(t *testing.T) {
	calls := 0
	refined := testFrame(4, 4, color.RGBA{R: 1, A: 255})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{
			"images": []string{encodePNG(t, refined)},
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	budgeted := &Budgeted{
		Client:     client,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		FrameLimit: 2,
	}

	frame := testFrame(4, 4, color.RGBA{R: 9, A: 255})
	mask := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := 0; i < 5; i++ {
		budgeted.Refine(context.Background(), i, frame, mask)
	}
	if calls != 2 {
		t.Fatalf("server saw %d calls, want 2", calls)
	}
}
