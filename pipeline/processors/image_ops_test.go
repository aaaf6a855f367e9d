package processors

import (
	"image"
	"image/color"
	"testing"
)

func checkerboard(size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			} else {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return img
}

func TestToGrayscaleOp(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 200, G: 50, B: 50, A: 255})
	out, err := toGrayscaleOp(img, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := out.(*image.Gray); !ok {
		t.Fatalf("expected *image.Gray output, got %T", out)
	}
}

func TestBinarizeOp_FixedThreshold(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 1))
	gray.SetGray(0, 0, color.Gray{Y: 10})
	gray.SetGray(1, 0, color.Gray{Y: 250})

	out, err := binarizeOp(gray, map[string]any{"threshold": float64(128)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := out.(*image.Gray)
	if result.GrayAt(0, 0).Y != 0 {
		t.Fatalf("expected dark pixel to binarize to 0, got %d", result.GrayAt(0, 0).Y)
	}
	if result.GrayAt(1, 0).Y != 255 {
		t.Fatalf("expected bright pixel to binarize to 255, got %d", result.GrayAt(1, 0).Y)
	}
}

func TestEnhanceContrastOp_StretchesToFullRange(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 1))
	gray.SetGray(0, 0, color.Gray{Y: 100})
	gray.SetGray(1, 0, color.Gray{Y: 150})

	out, err := enhanceContrastOp(gray, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := out.(*image.Gray)
	if result.GrayAt(0, 0).Y != 0 {
		t.Fatalf("expected darkest pixel to stretch to 0, got %d", result.GrayAt(0, 0).Y)
	}
	if result.GrayAt(1, 0).Y != 255 {
		t.Fatalf("expected brightest pixel to stretch to 255, got %d", result.GrayAt(1, 0).Y)
	}
}

func TestOpeningAndClosingOp_PreserveDimensions(t *testing.T) {
	img := checkerboard(6)
	opened, err := openingOp(img, map[string]any{"radius": float64(1)})
	if err != nil {
		t.Fatalf("opening: unexpected error: %v", err)
	}
	if opened.Bounds() != img.Bounds() {
		t.Fatalf("expected opening to preserve bounds, got %v vs %v", opened.Bounds(), img.Bounds())
	}

	closed, err := closingOp(img, map[string]any{"radius": float64(1)})
	if err != nil {
		t.Fatalf("closing: unexpected error: %v", err)
	}
	if closed.Bounds() != img.Bounds() {
		t.Fatalf("expected closing to preserve bounds, got %v vs %v", closed.Bounds(), img.Bounds())
	}
}

func TestCannyOp_ProducesBinaryEdgeMap(t *testing.T) {
	img := checkerboard(4)
	out, err := cannyOp(img, map[string]any{"threshold": float64(50)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gray := out.(*image.Gray)
	bounds := gray.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := gray.GrayAt(x, y).Y
			if v != 0 && v != 255 {
				t.Fatalf("expected binary edge map, got pixel value %d at (%d,%d)", v, x, y)
			}
		}
	}
}

func TestCorrectPerspectiveOp_CropsToContent(t *testing.T) {
	// A 10x10 all-white (background) image with a single dark pixel at
	// (5,5): the crop should collapse to that single pixel.
	gray := image.NewGray(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			gray.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	gray.SetGray(5, 5, color.Gray{Y: 0})

	out, err := correctPerspectiveOp(gray, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bounds := out.Bounds()
	if bounds.Dx() != 1 || bounds.Dy() != 1 {
		t.Fatalf("expected crop to a single pixel, got bounds %v", bounds)
	}
}

func TestCorrectPerspectiveOp_AllBackgroundReturnsUnchanged(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			gray.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	out, err := correctPerspectiveOp(gray, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Bounds() != gray.Bounds() {
		t.Fatalf("expected unchanged bounds for all-background image, got %v vs %v", out.Bounds(), gray.Bounds())
	}
}

func TestDeskewOp_ReturnsSameSizeImage(t *testing.T) {
	img := checkerboard(8)
	out, err := deskewOp(img, map[string]any{"max_angle_degrees": float64(3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Bounds() != img.Bounds() {
		t.Fatalf("expected deskew to preserve bounds, got %v vs %v", out.Bounds(), img.Bounds())
	}
}

func TestDenoiseOp_ReturnsSameSizeImage(t *testing.T) {
	img := checkerboard(5)
	out, err := denoiseOp(img, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Bounds() != img.Bounds() {
		t.Fatalf("expected denoise to preserve bounds, got %v vs %v", out.Bounds(), img.Bounds())
	}
}
