// Package composite blends a lip-synced frame onto its original frame under a
// soft intensity mask.
package composite

import (
	"fmt"
	"image"
)

// Blend computes, per pixel and channel,
//
//	out = (base*(255-w) + overlay*w + 127) / 255
//
// where w is the mask intensity. The rounding keeps the operation a convex
// combination: w=0 reproduces the base exactly and w=255 the overlay exactly,
// so unmasked regions stay byte-identical to the original footage.
func Blend(base, overlay *image.RGBA, mask *image.Gray) (*image.RGBA, error) {
	if base.Bounds() != overlay.Bounds() || base.Bounds() != mask.Bounds() {
		return nil, fmt.Errorf("blend: dimension mismatch base=%v overlay=%v mask=%v",
			base.Bounds(), overlay.Bounds(), mask.Bounds())
	}

	bounds := base.Bounds()
	out := image.NewRGBA(bounds)
	width, height := bounds.Dx(), bounds.Dy()

	for y := 0; y < height; y++ {
		bRow := base.Pix[y*base.Stride : y*base.Stride+width*4]
		oRow := overlay.Pix[y*overlay.Stride : y*overlay.Stride+width*4]
		mRow := mask.Pix[y*mask.Stride : y*mask.Stride+width]
		dRow := out.Pix[y*out.Stride : y*out.Stride+width*4]
		for x := 0; x < width; x++ {
			w := uint32(mRow[x])
			iw := 255 - w
			pi := x * 4
			dRow[pi+0] = uint8((uint32(bRow[pi+0])*iw + uint32(oRow[pi+0])*w + 127) / 255)
			dRow[pi+1] = uint8((uint32(bRow[pi+1])*iw + uint32(oRow[pi+1])*w + 127) / 255)
			dRow[pi+2] = uint8((uint32(bRow[pi+2])*iw + uint32(oRow[pi+2])*w + 127) / 255)
			dRow[pi+3] = 0xFF
		}
	}
	return out, nil
}

// CombineMasks merges per-face masks into one by taking the per-pixel maximum.
// Frames with several detected faces are composited once under the combined
// mask rather than repeatedly, which keeps the blend order-independent.
func CombineMasks(masks []*image.Gray) (*image.Gray, error) {
	if len(masks) == 0 {
		return nil, fmt.Errorf("combine masks: no masks given")
	}
	bounds := masks[0].Bounds()
	for _, m := range masks[1:] {
		if m.Bounds() != bounds {
			return nil, fmt.Errorf("combine masks: dimension mismatch %v vs %v", m.Bounds(), bounds)
		}
	}
	if len(masks) == 1 {
		return masks[0], nil
	}

	out := image.NewGray(bounds)
	copy(out.Pix, masks[0].Pix)
	for _, m := range masks[1:] {
		for i, v := range m.Pix {
			if v > out.Pix[i] {
				out.Pix[i] = v
			}
		}
	}
	return out, nil
}
