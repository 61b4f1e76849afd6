package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/bosocmputer/bill_analyzer_gemini/internal/ai"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/bills"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/extract"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/storage"
	"github.com/gin-gonic/gin"
)

// writeError maps pipeline and store errors to HTTP responses. Provider
// details are only echoed when ExposeProviderErrors is set.
func (h *Handler) writeError(c *gin.Context, err error) {
	var quotaErr *bills.QuotaExceededError
	if errors.As(err, &quotaErr) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"message": fmt.Sprintf("You have reached the maximum limit of %d bills. Please wait for automatic deletion after %d hours before uploading more.",
				quotaErr.Max, int(h.Retention.Hours())),
			"currentBills": quotaErr.Current,
			"maxLimit":     quotaErr.Max,
		})
		return
	}

	status, message := http.StatusInternalServerError, "Failed to process document"
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status, message = http.StatusNotFound, "Bill analysis not found"
	case errors.Is(err, bills.ErrEmptyText):
		status, message = http.StatusBadRequest, "No text provided for analysis. Provide 'extractedText'"
	case errors.Is(err, extract.ErrUnsupportedMediaType):
		status, message = http.StatusBadRequest, "Unsupported file type. Upload a PDF, JPEG or PNG file."
	case errors.Is(err, extract.ErrUnsupportedScannedPDF):
		status, message = http.StatusUnprocessableEntity, "This PDF has no text layer and scanned PDFs cannot be processed. Upload a text-based PDF or an image of each page."
	case errors.Is(err, extract.ErrExtractionEmpty):
		status, message = http.StatusUnprocessableEntity, "No readable text found in the document"
	case errors.Is(err, extract.ErrOCRUnavailable):
		status, message = http.StatusUnprocessableEntity, "Image text recognition is not available"
	case errors.Is(err, extract.ErrExtractionFailed):
		status, message = http.StatusUnprocessableEntity, "Text extraction failed"
	case errors.Is(err, ai.ErrModelInvocation):
		status, message = http.StatusBadGateway, "Analysis failed"
	case errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusGatewayTimeout, "Processing timed out"
	}

	if status >= http.StatusInternalServerError {
		log.Printf("[%s] ERROR %s %s: %v", RequestIDFromContext(c), c.Request.Method, c.FullPath(), err)
	}

	body := gin.H{
		"success":    false,
		"message":    message,
		"request_id": RequestIDFromContext(c),
	}
	if errors.Is(err, extract.ErrUnsupportedMediaType) {
		body["field"] = "file"
	}
	if h.ExposeProviderErrors {
		body["error"] = err.Error()
		var gemErr *ai.GeminiError
		if errors.As(err, &gemErr) {
			body["suggestion"] = gemErr.Suggestion()
		}
	}
	c.JSON(status, body)
}
