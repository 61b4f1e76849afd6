// tesseract.go - Local OCR through the tesseract binary

package ai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bosocmputer/bill_analyzer_gemini/internal/common"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/processor"
)

// TesseractProvider recognizes raster images with tesseract. PDF pages must
// be rasterized first.
type TesseractProvider struct {
	Runner            processor.Runner
	Binary            string
	Lang              string
	Preprocess        bool
	MaxImageDimension int
}

func (t *TesseractProvider) GetProviderName() string {
	return "tesseract"
}

func (t *TesseractProvider) RecognizeText(ctx context.Context, path string, reqCtx *common.RequestContext) (string, *common.TokenUsage, error) {
	if processor.MediaTypeForPath(path) == "application/pdf" {
		return "", nil, fmt.Errorf("tesseract: cannot read PDF input %s", filepath.Base(path))
	}

	input := path
	if t.Preprocess {
		if data, _, err := processor.PreprocessForOCR(path, t.MaxImageDimension); err == nil {
			cleaned := path + ".ocr" + filepath.Ext(path)
			if err := os.WriteFile(cleaned, data, 0o600); err == nil {
				defer os.Remove(cleaned)
				input = cleaned
			}
		} else {
			reqCtx.LogWarning("Preprocessing failed, using original image: %v", err)
		}
	}

	lang := t.Lang
	if lang == "" {
		lang = "eng"
	}
	// tesseract <file> stdout -l <lang>
	out, stderr, err := t.Runner.Run(ctx, t.Binary, input, "stdout", "-l", lang)
	if err != nil {
		return "", nil, fmt.Errorf("tesseract: %w: %s", err, string(stderr))
	}
	return string(out), nil, nil
}
