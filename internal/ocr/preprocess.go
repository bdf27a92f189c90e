/**
 * Image preprocessor
 *
 * Cleans an input image buffer before recognition. The contract is fail-open:
 * any internal failure is logged and the original buffer is returned
 * unchanged, because degraded recognition beats no recognition at all.
 *
 * Basic path: grayscale + 1%-percentile linear contrast stretch.
 * Advanced path (enhancement enabled): grayscale, adaptive local threshold,
 * 3x3 median denoise, brightness-inversion correction.
 */

package ocr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sort"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/docuflow/ocr-worker/internal/logging"
)

// Preprocessor converts an input image buffer into a cleaned buffer more
// amenable to recognition.
type Preprocessor struct {
	// Enhance selects the advanced path (binarization + denoise) instead of
	// the plain contrast stretch.
	Enhance bool

	log *logging.Logger
}

// NewPreprocessor creates a preprocessor. enhance selects the advanced path.
func NewPreprocessor(enhance bool, log *logging.Logger) *Preprocessor {
	if log == nil {
		log = logging.NewLogger("preprocess")
	}
	return &Preprocessor{Enhance: enhance, log: log}
}

// Process returns the cleaned buffer, or the original buffer on any internal
// failure. It never fails outward.
func (p *Preprocessor) Process(data []byte) []byte {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		p.log.Warn("Preprocessing skipped: image decode failed", "error", err)
		return data
	}

	var out image.Image
	if p.Enhance {
		out = enhanceAdvanced(img)
	} else {
		out = contrastStretch(img)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		p.log.Warn("Preprocessing skipped: encode failed", "format", format, "error", err)
		return data
	}
	return buf.Bytes()
}

// luminance is the weighted sum Y = 0.299R + 0.587G + 0.114B over 8-bit
// channel values.
func luminance(c color.Color) uint8 {
	r, g, b, _ := c.RGBA()
	y := (299*(r>>8) + 587*(g>>8) + 114*(b>>8) + 500) / 1000
	if y > 255 {
		y = 255
	}
	return uint8(y)
}

func grayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.SetGray(x, y, color.Gray{Y: luminance(img.At(x, y))})
		}
	}
	return gray
}

// stretchBounds finds the luminance values at the 1% percentile from each
// end of the histogram. Guarantees high > low.
func stretchBounds(hist *[256]int, total int) (low, high int) {
	cut := total / 100
	if cut < 1 {
		cut = 1
	}

	cum := 0
	for i := 0; i < 256; i++ {
		cum += hist[i]
		if cum >= cut {
			low = i
			break
		}
	}

	cum = 0
	high = 255
	for i := 255; i >= 0; i-- {
		cum += hist[i]
		if cum >= cut {
			high = i
			break
		}
	}

	if high <= low {
		high = low + 1
	}
	return low, high
}

// contrastStretch applies a linear stretch between the 1% percentile
// luminance bounds. The output is grayscale written into an RGBA-shaped
// image. Reapplying with low=0/high=255 leaves the image unchanged.
func contrastStretch(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	gray := grayscale(img)

	var hist [256]int
	total := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
			total++
		}
	}

	low, high := stretchBounds(&hist, total)
	span := high - low

	out := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := int(gray.GrayAt(x, y).Y)
			v := (255*(g-low) + span/2) / span
			if v < 0 {
				v = 0
			}
			if v > 255 {
				v = 255
			}
			out.SetRGBA(x, y, color.RGBA{R: uint8(v), G: uint8(v), B: uint8(v), A: 255})
		}
	}
	return out
}

// adaptiveWindow is the half-width of the local-mean neighborhood used for
// binarization. Tunable, not a contract.
const adaptiveWindow = 7

// adaptiveThreshold binarizes against the local mean so uneven illumination
// does not wash out whole regions the way a single global threshold would.
func adaptiveThreshold(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	// Summed-area table for O(1) window means.
	integral := make([]int, (w+1)*(h+1))
	stride := w + 1
	for y := 0; y < h; y++ {
		rowSum := 0
		for x := 0; x < w; x++ {
			rowSum += int(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + rowSum
		}
	}

	out := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0 := max(0, x-adaptiveWindow)
			y0 := max(0, y-adaptiveWindow)
			x1 := min(w-1, x+adaptiveWindow)
			y1 := min(h-1, y+adaptiveWindow)

			count := (x1 - x0 + 1) * (y1 - y0 + 1)
			sum := integral[(y1+1)*stride+x1+1] - integral[y0*stride+x1+1] -
				integral[(y1+1)*stride+x0] + integral[y0*stride+x0]
			mean := sum / count

			v := uint8(255)
			if int(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)*10 < mean*9 {
				v = 0
			}
			out.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: v})
		}
	}
	return out
}

// medianDenoise applies a 3x3 median filter to knock out salt-and-pepper
// speckle left by binarization.
func medianDenoise(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	out := image.NewGray(bounds)
	window := make([]int, 0, 9)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < bounds.Min.X || nx >= bounds.Max.X || ny < bounds.Min.Y || ny >= bounds.Max.Y {
						continue
					}
					window = append(window, int(gray.GrayAt(nx, ny).Y))
				}
			}
			sort.Ints(window)
			out.SetGray(x, y, color.Gray{Y: uint8(window[len(window)/2])})
		}
	}
	return out
}

// enhanceAdvanced runs the full enhancement chain and corrects inverted
// scans so text is consistently dark-on-light.
func enhanceAdvanced(img image.Image) *image.RGBA {
	gray := grayscale(img)
	gray = adaptiveThreshold(gray)
	gray = medianDenoise(gray)

	bounds := gray.Bounds()
	sum := 0
	total := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			sum += int(gray.GrayAt(x, y).Y)
			total++
		}
	}
	invert := total > 0 && sum/total < 127

	out := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := gray.GrayAt(x, y).Y
			if invert {
				v = 255 - v
			}
			out.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}
