// Package extract classifies uploaded bills and turns them into LLM-ready text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bosocmputer/bill_analyzer_gemini/internal/ai"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/common"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/processor"
)

var (
	ErrUnsupportedMediaType  = errors.New("unsupported media type")
	ErrUnsupportedScannedPDF = errors.New("scanned PDF cannot be processed")
	ErrExtractionEmpty       = errors.New("no readable text found in document")
	ErrOCRUnavailable        = errors.New("OCR is not available")
	ErrExtractionFailed      = errors.New("text extraction failed")
)

// Via records which strategy produced the text.
type Via string

const (
	ViaText Via = "text"
	ViaOCR  Via = "ocr"
)

// FileType is the coarse kind of an upload.
type FileType string

const (
	FileTypePDF   FileType = "pdf"
	FileTypeImage FileType = "image"
)

// Route is the extraction branch chosen for a declared media type.
type Route int

const (
	RouteImageOCR Route = iota + 1
	RoutePDF
)

// Result is the outcome of a successful extraction.
type Result struct {
	Text       string
	TotalPages int
	Via        Via
	FileType   FileType
}

// Classify picks the extraction branch from the declared media type. allowed
// restricts the accepted types; an empty list allows every supported type.
func Classify(mediaType string, allowed []string) (Route, FileType, error) {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	if len(allowed) > 0 {
		ok := false
		for _, a := range allowed {
			if a == mt {
				ok = true
				break
			}
		}
		if !ok {
			return 0, "", fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
		}
	}

	switch mt {
	case "image/jpeg", "image/jpg", "image/png":
		return RouteImageOCR, FileTypeImage, nil
	case "application/pdf":
		return RoutePDF, FileTypePDF, nil
	default:
		return 0, "", fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
	}
}

// Extractor runs the extraction branches. OCR and Renderer may be nil when
// the deployment has no OCR capability.
type Extractor struct {
	OCR                  ai.OCRProvider
	Renderer             processor.PageRenderer
	ScannedPDFOCREnabled bool
	MinTextLength        int
	AllowedMediaTypes    []string
	TempDir              string

	// replaced in tests
	readTextLayer func(path string) ([]string, error)
	countPages    func(path string) (int, error)
}

// NewExtractor wires the PDF helpers from the processor package.
func NewExtractor(ocr ai.OCRProvider, renderer processor.PageRenderer, scannedOCR bool, minTextLength int, allowed []string) *Extractor {
	return &Extractor{
		OCR:                  ocr,
		Renderer:             renderer,
		ScannedPDFOCREnabled: scannedOCR,
		MinTextLength:        minTextLength,
		AllowedMediaTypes:    allowed,
		readTextLayer:        processor.ReadTextLayer,
		countPages:           processor.CountPages,
	}
}

// Extract produces normalized text for the file at path.
func (e *Extractor) Extract(ctx context.Context, path, mediaType string, reqCtx *common.RequestContext) (*Result, error) {
	route, fileType, err := Classify(mediaType, e.AllowedMediaTypes)
	if err != nil {
		return nil, err
	}

	var res *Result
	switch route {
	case RouteImageOCR:
		res, err = e.extractImage(ctx, path, reqCtx)
	case RoutePDF:
		res, err = e.extractPDF(ctx, path, reqCtx)
	}
	if err != nil {
		return nil, err
	}
	res.FileType = fileType
	return res, nil
}

func (e *Extractor) extractImage(ctx context.Context, path string, reqCtx *common.RequestContext) (*Result, error) {
	if e.OCR == nil {
		return nil, ErrOCRUnavailable
	}
	text, usage, err := e.OCR.RecognizeText(ctx, path, reqCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: image ocr: %w", ErrExtractionFailed, err)
	}
	reqCtx.AddTokens(usage)

	normalized := Normalize([]string{text})
	if normalized == "" {
		return nil, ErrExtractionEmpty
	}
	return &Result{Text: normalized, TotalPages: 1, Via: ViaOCR}, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string, reqCtx *common.RequestContext) (*Result, error) {
	pages, err := e.readTextLayer(path)
	if err != nil {
		// an unreadable text layer is handled like a scanned PDF
		reqCtx.LogWarning("PDF text layer unreadable: %v", err)
		pages = nil
	}

	totalPages := e.pageCount(path, len(pages), reqCtx)

	text := Normalize(pages)
	if len([]rune(text)) > e.MinTextLength {
		reqCtx.LogInfo("PDF text layer accepted: %d chars over %d pages", len(text), totalPages)
		return &Result{Text: text, TotalPages: totalPages, Via: ViaText}, nil
	}

	reqCtx.LogInfo("PDF text layer too short (%d chars), treating as scanned", len(text))
	if !e.ScannedPDFOCREnabled || e.OCR == nil || e.Renderer == nil {
		return nil, ErrUnsupportedScannedPDF
	}

	ocrText, rendered, err := e.ocrPages(ctx, path, reqCtx)
	if err != nil {
		return nil, err
	}
	if ocrText == "" {
		return nil, ErrExtractionEmpty
	}
	if rendered > totalPages {
		totalPages = rendered
	}
	return &Result{Text: ocrText, TotalPages: totalPages, Via: ViaOCR}, nil
}

// ocrPages renders every page and OCRs them in page order.
func (e *Extractor) ocrPages(ctx context.Context, path string, reqCtx *common.RequestContext) (string, int, error) {
	workDir, err := os.MkdirTemp(e.TempDir, "bill-pages-*")
	if err != nil {
		return "", 0, fmt.Errorf("%w: scanned pdf: %w", ErrExtractionFailed, err)
	}
	defer os.RemoveAll(workDir)

	pagePaths, err := e.Renderer.RenderPages(ctx, path, workDir)
	if err != nil {
		return "", 0, fmt.Errorf("%w: scanned pdf: %w", ErrExtractionFailed, err)
	}

	texts := make([]string, 0, len(pagePaths))
	for i, page := range pagePaths {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		text, usage, err := e.OCR.RecognizeText(ctx, page, reqCtx)
		if err != nil {
			return "", 0, fmt.Errorf("%w: scanned pdf page %d: %w", ErrExtractionFailed, i+1, err)
		}
		reqCtx.AddTokens(usage)
		texts = append(texts, text)
	}
	reqCtx.LogInfo("OCRed %d scanned pages with %s", len(pagePaths), e.OCR.GetProviderName())
	return Normalize(texts), len(pagePaths), nil
}

func (e *Extractor) pageCount(path string, textLayerPages int, reqCtx *common.RequestContext) int {
	if e.countPages != nil {
		if n, err := e.countPages(path); err == nil && n > 0 {
			return n
		} else if err != nil {
			reqCtx.LogWarning("Page count failed: %v", err)
		}
	}
	if textLayerPages > 0 {
		return textLayerPages
	}
	return 1
}

// Normalize trims each page, drops empty pages and joins the rest with a
// blank line, keeping page order.
func Normalize(pages []string) string {
	kept := make([]string, 0, len(pages))
	for _, page := range pages {
		if trimmed := strings.TrimSpace(page); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n\n")
}
