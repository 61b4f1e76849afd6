// factory.go - OCR provider selection

package ai

import (
	"fmt"
	"log"

	"github.com/bosocmputer/bill_analyzer_gemini/configs"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/processor"
)

// CreateOCRProvider returns the configured OCR provider and the page renderer
// that feeds it scanned PDF pages. A nil renderer means scanned PDFs cannot
// be OCRed in this deployment.
func CreateOCRProvider(name string, gemini *GeminiClient, runner processor.Runner) (OCRProvider, processor.PageRenderer, error) {
	switch name {
	case "gemini":
		if gemini == nil {
			return nil, nil, fmt.Errorf("gemini OCR provider requires a Gemini client")
		}
		log.Printf("Using Gemini OCR provider (%s)", gemini.cfg.OCRModel)
		return gemini, processor.SplitRenderer{}, nil

	case "tesseract":
		if !processor.LookPath(configs.TESSERACT_PATH) {
			return nil, nil, fmt.Errorf("tesseract binary %q not found", configs.TESSERACT_PATH)
		}
		provider := &TesseractProvider{
			Runner:            runner,
			Binary:            configs.TESSERACT_PATH,
			Lang:              configs.TESSERACT_LANG,
			Preprocess:        configs.ENABLE_IMAGE_PREPROCESSING,
			MaxImageDimension: configs.MAX_IMAGE_DIMENSION,
		}
		log.Printf("Using tesseract OCR provider (%s, lang %s)", configs.TESSERACT_PATH, configs.TESSERACT_LANG)

		if !processor.LookPath(configs.PDFTOPPM_PATH) {
			log.Printf("WARN pdftoppm %q not found, scanned PDFs will be rejected", configs.PDFTOPPM_PATH)
			return provider, nil, nil
		}
		return provider, processor.PdftoppmRenderer{
			Runner:   runner,
			Pdftoppm: configs.PDFTOPPM_PATH,
			DPI:      configs.OCR_DPI,
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported OCR provider: %s (supported: gemini, tesseract)", name)
	}
}
