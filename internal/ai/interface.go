// interface.go - OCR and analysis capabilities used by the bill pipeline

package ai

import (
	"context"
	"errors"

	"github.com/bosocmputer/bill_analyzer_gemini/internal/common"
)

// ErrModelInvocation marks a failed call to the generative model. The
// wrapped *GeminiError carries the category.
var ErrModelInvocation = errors.New("model invocation failed")

// OCRProvider recognizes the text of a single image or single-page PDF.
type OCRProvider interface {
	// RecognizeText returns the raw text of the file at path. Token usage is
	// nil for providers that do not meter.
	RecognizeText(ctx context.Context, path string, reqCtx *common.RequestContext) (string, *common.TokenUsage, error)

	// GetProviderName returns the name of the provider (e.g., "gemini", "tesseract")
	GetProviderName() string
}

// Analyzer sends a composed prompt to the model and returns its raw text.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string, reqCtx *common.RequestContext) (string, *common.TokenUsage, error)
}
