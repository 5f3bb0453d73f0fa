package mask

import (
	"image"
	"math"
)

// dilate applies iterations of binary 3x3 dilation in place. A pixel turns on
// when any of its eight neighbours (or itself) is on.
func dilate(mask *image.Gray, iterations int) {
	bounds := mask.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	current := mask.Pix
	next := make([]uint8, len(current))

	for iter := 0; iter < iterations; iter++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				idx := y*mask.Stride + x
				if current[idx] != 0 {
					next[idx] = 0xFF
					continue
				}
				on := false
				for dy := -1; dy <= 1 && !on; dy++ {
					ny := y + dy
					if ny < 0 || ny >= height {
						continue
					}
					for dx := -1; dx <= 1; dx++ {
						nx := x + dx
						if nx < 0 || nx >= width {
							continue
						}
						if current[ny*mask.Stride+nx] != 0 {
							on = true
							break
						}
					}
				}
				if on {
					next[idx] = 0xFF
				} else {
					next[idx] = 0
				}
			}
		}
		current, next = next, current
	}

	if iterations%2 == 1 {
		copy(mask.Pix, current)
	}
}

// gaussianBlur applies a separable Gaussian blur in place. Sigma is derived
// from the kernel size the same way OpenCV derives it, so a kernel of 15
// produces the familiar soft falloff.
func gaussianBlur(mask *image.Gray, kernelSize int) {
	radius := kernelSize / 2
	if radius < 1 {
		return
	}
	sigma := 0.3*(float64(kernelSize-1)*0.5-1) + 0.8

	kernel := make([]float64, kernelSize)
	sum := 0.0
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	bounds := mask.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	tmp := make([]float64, width*height)

	// Horizontal pass with edge clamping.
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				sx := x + k
				if sx < 0 {
					sx = 0
				} else if sx >= width {
					sx = width - 1
				}
				acc += kernel[k+radius] * float64(mask.Pix[y*mask.Stride+sx])
			}
			tmp[y*width+x] = acc
		}
	}

	// Vertical pass.
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				sy := y + k
				if sy < 0 {
					sy = 0
				} else if sy >= height {
					sy = height - 1
				}
				acc += kernel[k+radius] * tmp[sy*width+x]
			}
			value := math.Round(acc)
			if value < 0 {
				value = 0
			} else if value > 255 {
				value = 255
			}
			mask.Pix[y*mask.Stride+x] = uint8(value)
		}
	}
}
