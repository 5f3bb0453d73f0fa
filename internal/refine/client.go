// Package refine sends composited frames to a Stable Diffusion WebUI server
// for img2img enhancement of the mouth region.
package refine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	img2imgPath        = "/sdapi/v1/img2img"
	defaultHTTPTimeout = 300 * time.Second
)

// Client wraps the Stable Diffusion WebUI img2img API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	extra      map[string]any
}

// Option customizes the refinement client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout. img2img on a loaded GPU can take
// minutes per frame, so the default is generous.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithPayloadFile merges extra request parameters (sampler, steps, prompt and
// so on) from a JSON file into every img2img request. The wire fields the
// client owns cannot be overridden.
func WithPayloadFile(path string) (Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("refine payload: read %s: %w", path, err)
	}
	var extra map[string]any
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("refine payload: parse %s: %w", path, err)
	}
	return func(c *Client) {
		c.extra = extra
	}, nil
}

// NewClient constructs an img2img client against the given WebUI base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("refine: base url required")
	}
	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Request describes one frame refinement.
type Request struct {
	Frame             *image.RGBA
	Mask              *image.Gray
	DenoisingStrength float64
	MaskBlur          int
}

// Refine submits the frame and mouth mask and returns the refined frame. The
// server is trusted to keep dimensions; a dimension change is an error so the
// caller falls back to the unrefined composite.
func (c *Client) Refine(ctx context.Context, req Request) (*image.RGBA, error) {
	if req.Frame == nil || req.Mask == nil {
		return nil, errors.New("refine: frame and mask required")
	}

	body, err := c.buildBody(req)
	if err != nil {
		return nil, err
	}
	endpoint, err := url.JoinPath(c.baseURL, img2imgPath)
	if err != nil {
		return nil, fmt.Errorf("refine: build url: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("refine: request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("refine: request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("refine: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refine: http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed img2imgResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("refine: decode response: %w", err)
	}
	if len(parsed.Images) == 0 {
		return nil, errors.New("refine: response carried no images")
	}

	refined, err := decodeImage(parsed.Images[0])
	if err != nil {
		return nil, fmt.Errorf("refine: decode image: %w", err)
	}
	if refined.Bounds() != req.Frame.Bounds() {
		return nil, fmt.Errorf("refine: server changed dimensions from %v to %v",
			req.Frame.Bounds(), refined.Bounds())
	}
	return refined, nil
}

func (c *Client) buildBody(req Request) ([]byte, error) {
	frameURI, err := encodeDataURI(req.Frame)
	if err != nil {
		return nil, fmt.Errorf("refine: encode frame: %w", err)
	}
	maskURI, err := encodeDataURI(req.Mask)
	if err != nil {
		return nil, fmt.Errorf("refine: encode mask: %w", err)
	}

	payload := make(map[string]any, len(c.extra)+4)
	for k, v := range c.extra {
		payload[k] = v
	}
	payload["init_images"] = []string{frameURI}
	payload["mask"] = maskURI
	payload["denoising_strength"] = req.DenoisingStrength
	payload["mask_blur"] = req.MaskBlur

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("refine: encode request: %w", err)
	}
	return encoded, nil
}

type img2imgResponse struct {
	Images []string `json:"images"`
}

func encodeDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// decodeImage accepts both bare base64 and data-URI form, which differs
// between WebUI versions.
func decodeImage(encoded string) (*image.RGBA, error) {
	if idx := strings.Index(encoded, ","); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	decoded, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("png: %w", err)
	}
	if rgba, ok := decoded.(*image.RGBA); ok {
		return rgba, nil
	}
	bounds := decoded.Bounds()
	rgba := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			rgba.Set(x, y, decoded.At(x, y))
		}
	}
	return rgba, nil
}
