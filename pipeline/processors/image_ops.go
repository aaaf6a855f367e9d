package processors

import (
	"image"
	"image/color"
	"math"
)

// The nine sub-ops below are stdlib-only approximations of the named
// image_preprocessor steps; none depend on a CGO image library.

func paramInt(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func paramFloat(params map[string]any, key string, def float64) float64 {
	if v, ok := params[key].(float64); ok {
		return v
	}
	return def
}

func toGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
		}
	}
	return gray
}

func toGrayscaleOp(img image.Image, _ map[string]any) (image.Image, error) {
	return toGray(img), nil
}

// denoiseOp applies a 3x3 median filter, the standard stdlib-reachable
// approximation of salt-and-pepper denoising.
func denoiseOp(img image.Image, _ map[string]any) (image.Image, error) {
	gray := toGray(img)
	bounds := gray.Bounds()
	out := image.NewGray(bounds)

	window := make([]uint8, 0, 9)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					px, py := clamp(x+dx, bounds.Min.X, bounds.Max.X-1), clamp(y+dy, bounds.Min.Y, bounds.Max.Y-1)
					window = append(window, gray.GrayAt(px, py).Y)
				}
			}
			out.SetGray(x, y, color.Gray{Y: median9(window)})
		}
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func median9(window []uint8) uint8 {
	sorted := append([]uint8(nil), window...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted[len(sorted)/2]
}

// binarizeOp thresholds to pure black/white at a configured fixed
// threshold if one is given, otherwise at the one Otsu's method picks.
func binarizeOp(img image.Image, params map[string]any) (image.Image, error) {
	gray := toGray(img)
	threshold := uint8(paramInt(params, "threshold", -1))
	if _, ok := params["threshold"]; !ok {
		threshold = otsuThreshold(gray)
	}

	bounds := gray.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if gray.GrayAt(x, y).Y >= threshold {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out, nil
}

func otsuThreshold(gray *image.Gray) uint8 {
	var histogram [256]int
	bounds := gray.Bounds()
	total := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			histogram[gray.GrayAt(x, y).Y]++
			total++
		}
	}
	if total == 0 {
		return 128
	}

	var sum float64
	for i, count := range histogram {
		sum += float64(i * count)
	}

	var sumB, wB float64
	var maxVariance float64
	threshold := uint8(128)

	for t := 0; t < 256; t++ {
		wB += float64(histogram[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * histogram[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		variance := wB * wF * (mB - mF) * (mB - mF)
		if variance > maxVariance {
			maxVariance = variance
			threshold = uint8(t)
		}
	}
	return threshold
}

// enhanceContrastOp stretches the grayscale histogram to span the full
// [0,255] range.
func enhanceContrastOp(img image.Image, _ map[string]any) (image.Image, error) {
	gray := toGray(img)
	bounds := gray.Bounds()

	lo, hi := uint8(255), uint8(0)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := gray.GrayAt(x, y).Y
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if hi <= lo {
		return gray, nil
	}

	out := image.NewGray(bounds)
	scale := 255.0 / float64(hi-lo)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := gray.GrayAt(x, y).Y
			stretched := uint8(math.Round(float64(v-lo) * scale))
			out.SetGray(x, y, color.Gray{Y: stretched})
		}
	}
	return out, nil
}

// erode/dilate are the morphology primitives opening/closing compose.
func erode(gray *image.Gray, radius int) *image.Gray {
	bounds := gray.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			min := uint8(255)
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					px, py := clamp(x+dx, bounds.Min.X, bounds.Max.X-1), clamp(y+dy, bounds.Min.Y, bounds.Max.Y-1)
					if v := gray.GrayAt(px, py).Y; v < min {
						min = v
					}
				}
			}
			out.SetGray(x, y, color.Gray{Y: min})
		}
	}
	return out
}

func dilate(gray *image.Gray, radius int) *image.Gray {
	bounds := gray.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			max := uint8(0)
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					px, py := clamp(x+dx, bounds.Min.X, bounds.Max.X-1), clamp(y+dy, bounds.Min.Y, bounds.Max.Y-1)
					if v := gray.GrayAt(px, py).Y; v > max {
						max = v
					}
				}
			}
			out.SetGray(x, y, color.Gray{Y: max})
		}
	}
	return out
}

// openingOp (erosion then dilation) removes small bright specks.
func openingOp(img image.Image, params map[string]any) (image.Image, error) {
	radius := paramInt(params, "radius", 1)
	gray := toGray(img)
	return dilate(erode(gray, radius), radius), nil
}

// closingOp (dilation then erosion) fills small dark gaps.
func closingOp(img image.Image, params map[string]any) (image.Image, error) {
	radius := paramInt(params, "radius", 1)
	gray := toGray(img)
	return erode(dilate(gray, radius), radius), nil
}

// cannyOp is a Sobel-gradient edge map thresholded at a configurable
// magnitude, an approximation of full Canny (no hysteresis pass).
func cannyOp(img image.Image, params map[string]any) (image.Image, error) {
	gray := toGray(img)
	bounds := gray.Bounds()
	out := image.NewGray(bounds)
	threshold := paramFloat(params, "threshold", 100)

	at := func(x, y int) float64 {
		px, py := clamp(x, bounds.Min.X, bounds.Max.X-1), clamp(y, bounds.Min.Y, bounds.Max.Y-1)
		return float64(gray.GrayAt(px, py).Y)
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gx := at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1) - at(x+1, y-1) - 2*at(x+1, y) - at(x+1, y+1)
			gy := at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1) - at(x-1, y+1) - 2*at(x, y+1) - at(x+1, y+1)
			magnitude := math.Hypot(gx, gy)
			if magnitude >= threshold {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out, nil
}

// deskewOp estimates a small rotation correction by scoring a handful of
// candidate angles against the variance of their horizontal row-sum
// projection profile (text rows produce high-variance profiles when
// level) and rotates by the winner via nearest-neighbor sampling.
func deskewOp(img image.Image, params map[string]any) (image.Image, error) {
	maxAngle := paramFloat(params, "max_angle_degrees", 5)
	gray := toGray(img)

	bestAngle := 0.0
	bestScore := rowProjectionVariance(gray, 0)
	for angle := -maxAngle; angle <= maxAngle; angle += 0.5 {
		if angle == 0 {
			continue
		}
		score := rowProjectionVariance(gray, angle)
		if score > bestScore {
			bestScore = score
			bestAngle = angle
		}
	}

	if bestAngle == 0 {
		return gray, nil
	}
	return rotateNearest(gray, bestAngle), nil
}

func rowProjectionVariance(gray *image.Gray, angleDegrees float64) float64 {
	rotated := gray
	if angleDegrees != 0 {
		rotated = rotateNearest(gray, angleDegrees)
	}
	bounds := rotated.Bounds()
	sums := make([]float64, bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		var sum float64
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			sum += float64(rotated.GrayAt(x, y).Y)
		}
		sums[y-bounds.Min.Y] = sum
	}
	return variance(sums)
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return sumSq / float64(len(values))
}

func rotateNearest(gray *image.Gray, angleDegrees float64) *image.Gray {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	cx, cy := float64(w)/2, float64(h)/2
	theta := angleDegrees * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)

	out := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Inverse-map destination pixel back to the source.
			dx, dy := float64(x)-cx, float64(y)-cy
			srcX := cos*dx + sin*dy + cx
			srcY := -sin*dx + cos*dy + cy
			sx, sy := int(math.Round(srcX)), int(math.Round(srcY))
			if sx < 0 || sx >= w || sy < 0 || sy >= h {
				out.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: 255})
				continue
			}
			out.SetGray(bounds.Min.X+x, bounds.Min.Y+y, gray.GrayAt(bounds.Min.X+sx, bounds.Min.Y+sy))
		}
	}
	return out
}

// correctPerspectiveOp crops to the bounding box of non-background
// content, an approximation of a full four-point perspective warp.
func correctPerspectiveOp(img image.Image, params map[string]any) (image.Image, error) {
	gray := toGray(img)
	bounds := gray.Bounds()
	threshold := uint8(paramInt(params, "background_threshold", 250))

	minX, minY := bounds.Max.X, bounds.Max.Y
	maxX, maxY := bounds.Min.X, bounds.Min.Y
	found := false
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if gray.GrayAt(x, y).Y < threshold {
				found = true
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	if !found {
		return gray, nil
	}

	cropped := image.NewGray(image.Rect(0, 0, maxX-minX+1, maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			cropped.SetGray(x-minX, y-minY, gray.GrayAt(x, y))
		}
	}
	return cropped, nil
}
