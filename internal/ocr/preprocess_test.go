package ocr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}
	return img
}

func grayAt(img image.Image, x, y int) int {
	r, _, _, _ := img.At(x, y).RGBA()
	return int(r >> 8)
}

// grayImage fills a square image with per-pixel values from fn.
func grayImage(size int, fn func(x, y int) uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := fn(x, y)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestProcessFailOpenOnGarbage(t *testing.T) {
	p := NewPreprocessor(false, nil)

	data := []byte("definitely not an image")
	got := p.Process(data)
	if !bytes.Equal(got, data) {
		t.Errorf("Process() altered undecodable input")
	}
}

func TestContrastStretchIdempotentOnFullRange(t *testing.T) {
	// Half black, half white: the percentile bounds are already 0 and 255,
	// so the stretch is the identity.
	src := grayImage(10, func(x, y int) uint8 {
		if x < 5 {
			return 0
		}
		return 255
	})

	p := NewPreprocessor(false, nil)
	out := decodePNG(t, p.Process(encodePNG(t, src)))

	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			want := 0
			if x >= 5 {
				want = 255
			}
			if got := grayAt(out, x, y); got != want {
				t.Fatalf("pixel (%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestContrastStretchExpandsNarrowRange(t *testing.T) {
	// Values 100 and 200 must map to the full 0..255 range.
	src := grayImage(10, func(x, y int) uint8 {
		if x < 5 {
			return 100
		}
		return 200
	})

	p := NewPreprocessor(false, nil)
	out := decodePNG(t, p.Process(encodePNG(t, src)))

	if got := grayAt(out, 0, 0); got != 0 {
		t.Errorf("dark pixel = %d, want stretched to 0", got)
	}
	if got := grayAt(out, 9, 0); got != 255 {
		t.Errorf("bright pixel = %d, want stretched to 255", got)
	}
}

func TestProcessKeepsDimensions(t *testing.T) {
	src := grayImage(16, func(x, y int) uint8 { return uint8(x * 16) })

	for _, enhance := range []bool{false, true} {
		p := NewPreprocessor(enhance, nil)
		out := decodePNG(t, p.Process(encodePNG(t, src)))
		if out.Bounds().Dx() != 16 || out.Bounds().Dy() != 16 {
			t.Errorf("enhance=%v: dimensions = %dx%d, want 16x16",
				enhance, out.Bounds().Dx(), out.Bounds().Dy())
		}
	}
}

func TestEnhanceBinarizesAndCorrectsInversion(t *testing.T) {
	// White-on-black stripes: a light column every third column. The
	// enhancement chain must end dark-on-light, i.e. majority white.
	src := grayImage(20, func(x, y int) uint8 {
		if x%3 == 0 {
			return 255
		}
		return 0
	})

	p := NewPreprocessor(true, nil)
	out := decodePNG(t, p.Process(encodePNG(t, src)))

	white, black := 0, 0
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			switch grayAt(out, x, y) {
			case 255:
				white++
			case 0:
				black++
			default:
				t.Fatalf("pixel (%d,%d) = %d, want binary output", x, y, grayAt(out, x, y))
			}
		}
	}
	if white <= black {
		t.Errorf("white=%d black=%d, want majority white after inversion correction", white, black)
	}
}

func TestStretchBounds(t *testing.T) {
	var hist [256]int
	hist[10] = 50
	hist[240] = 50

	low, high := stretchBounds(&hist, 100)
	if low != 10 || high != 240 {
		t.Errorf("stretchBounds = (%d,%d), want (10,240)", low, high)
	}

	// A flat histogram must never yield a zero span.
	var flat [256]int
	flat[128] = 100
	low, high = stretchBounds(&flat, 100)
	if high <= low {
		t.Errorf("stretchBounds = (%d,%d), want high > low", low, high)
	}
}
