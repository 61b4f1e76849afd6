// imageprocessor.go - Image cleanup before OCR of bill photos and rendered pages

package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// enhancement is one preset of the adaptive cleanup.
type enhancement struct {
	sharpen    float64
	contrast   float64
	brightness float64
	gamma      float64
	denoise    bool
}

var (
	lightEnhancement      = enhancement{sharpen: 2.0, contrast: 30, gamma: 1.05}
	standardEnhancement   = enhancement{sharpen: 3.0, contrast: 45, brightness: 15, gamma: 1.15}
	aggressiveEnhancement = enhancement{sharpen: 4.0, contrast: 60, brightness: 25, gamma: 1.3, denoise: true}
)

// MediaTypeForPath maps a file extension to the MIME type sent to OCR providers.
func MediaTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}

// PreprocessForOCR resizes and enhances an image for text recognition.
// PDFs are returned untouched. Returns the encoded bytes and their MIME type.
func PreprocessForOCR(path string, maxDimension int) ([]byte, string, error) {
	if MediaTypeForPath(path) == "application/pdf" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read PDF: %w", err)
		}
		return data, "application/pdf", nil
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}

	img = fitWithin(img, maxDimension)
	img = enhance(img, pickEnhancement(imageQuality(img)))

	var buf bytes.Buffer
	mimeType := MediaTypeForPath(path)
	if mimeType == "image/png" {
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode processed image: %w", err)
	}
	return buf.Bytes(), mimeType, nil
}

func fitWithin(img image.Image, maxDimension int) image.Image {
	if maxDimension <= 0 {
		return img
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxDimension && height <= maxDimension {
		return img
	}
	if width > height {
		return imaging.Resize(img, maxDimension, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDimension, imaging.Lanczos)
}

func pickEnhancement(quality float64) enhancement {
	switch {
	case quality < 50:
		return aggressiveEnhancement
	case quality < 75:
		return standardEnhancement
	default:
		return lightEnhancement
	}
}

func enhance(img image.Image, e enhancement) image.Image {
	out := imaging.Sharpen(img, e.sharpen)
	out = imaging.AdjustContrast(out, e.contrast)
	if e.brightness != 0 {
		out = imaging.AdjustBrightness(out, e.brightness)
	}
	out = imaging.Grayscale(out)
	out = imaging.AdjustGamma(out, e.gamma)
	if e.denoise {
		out = imaging.Blur(out, 0.5)
		out = imaging.Sharpen(out, 2.5)
	}
	return imaging.Sharpen(out, 1.0)
}

// imageQuality scores brightness balance and contrast on a sampled grid (0-100).
func imageQuality(img image.Image) float64 {
	bounds := img.Bounds()

	var total float64
	minB, maxB := 255.0, 0.0
	samples := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 10 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 10 {
			r, g, b, _ := img.At(x, y).RGBA()
			brightness := (float64(r>>8) + float64(g>>8) + float64(b>>8)) / 3.0
			total += brightness
			minB = math.Min(minB, brightness)
			maxB = math.Max(maxB, brightness)
			samples++
		}
	}
	if samples == 0 {
		return 0
	}

	avg := total / float64(samples)
	brightnessScore := 100.0 - math.Abs(avg-128.0)/1.28
	contrastScore := math.Min((maxB-minB)/2.0, 100.0)
	return brightnessScore*0.4 + contrastScore*0.6
}
