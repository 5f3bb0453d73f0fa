package refine

import (
	"context"
	"image"
	"log/slog"
	"sync/atomic"
)

// Refiner decides per frame whether and how to refine a composited frame.
// Implementations must never fail the pipeline: on any problem they return
// the input frame unchanged.
type Refiner interface {
	Refine(ctx context.Context, index int, frame *image.RGBA, mask *image.Gray) *image.RGBA
}

// Disabled performs no refinement.
type Disabled struct{}

func (Disabled) Refine(_ context.Context, _ int, frame *image.RGBA, _ *image.Gray) *image.RGBA {
	return frame
}

// Budgeted refines up to FrameLimit frames per run through the remote server.
// Past the budget, and on any request failure, frames pass through unchanged.
type Budgeted struct {
	Client            *Client
	Logger            *slog.Logger
	DenoisingStrength float64
	MaskBlur          int
	// FrameLimit caps how many frames are sent per run. Zero or negative
	// means unlimited.
	FrameLimit int

	attempted atomic.Int64
}

func (b *Budgeted) Refine(ctx context.Context, index int, frame *image.RGBA, mask *image.Gray) *image.RGBA {
	if b.FrameLimit > 0 && b.attempted.Add(1) > int64(b.FrameLimit) {
		return frame
	}

	refined, err := b.Client.Refine(ctx, Request{
		Frame:             frame,
		Mask:              mask,
		DenoisingStrength: b.DenoisingStrength,
		MaskBlur:          b.MaskBlur,
	})
	if err != nil {
		if b.Logger != nil {
			b.Logger.Warn("refinement failed, keeping composite frame",
				"component", "refine", "frame", index, "error", err)
		}
		return frame
	}
	return refined
}
