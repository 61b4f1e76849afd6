// gemini_retry.go - Error categorization and retry for Gemini API calls

package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/bosocmputer/bill_analyzer_gemini/internal/common"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
)

// RetryConfig controls backoff for OCR calls.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig is used for OCR calls. Analysis calls are never retried.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        8 * time.Second,
	BackoffMultiple: 2.0,
}

// GeminiError is a categorized model failure.
type GeminiError struct {
	OriginalError error
	Category      string
	StatusCode    int
	Message       string
	Retryable     bool
}

func (e *GeminiError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gemini %s (%d): %s", e.Category, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gemini %s: %s", e.Category, e.Message)
}

func (e *GeminiError) Unwrap() error {
	return e.OriginalError
}

// Suggestion returns short guidance for the caller, safe to show to end users.
func (e *GeminiError) Suggestion() string {
	switch e.Category {
	case "rate_limit":
		return "Too many requests. Please wait a moment and try again."
	case "quota_exceeded":
		return "The analysis service quota is exhausted. Please try again later."
	case "unauthorized", "forbidden":
		return "The analysis service is misconfigured. Please contact support."
	case "payload_too_large":
		return "The document is too large. Please upload a smaller file."
	case "timeout":
		return "The analysis took too long. Please try again."
	case "server_error", "network_error":
		return "The analysis service is temporarily unavailable. Please try again in a few minutes."
	case "blocked":
		return "The document could not be analyzed. Please upload a clearer bill."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// apiStatus maps Gemini HTTP status codes to an error category.
type apiStatus struct {
	category  string
	message   string
	retryable bool
}

var apiStatuses = map[int]apiStatus{
	http.StatusBadRequest:            {"bad_request", "model rejected the request", false},
	http.StatusUnauthorized:          {"unauthorized", "model API key was rejected", false},
	http.StatusForbidden:             {"forbidden", "model API key lacks permission", false},
	http.StatusNotFound:              {"not_found", "model name is unknown", false},
	http.StatusRequestEntityTooLarge: {"payload_too_large", "bill text exceeds the model request limit", false},
	http.StatusTooManyRequests:       {"rate_limit", "model rate limit exceeded", true},
}

// categorizeGeminiError classifies a model failure and decides whether the
// call may be retried.
func categorizeGeminiError(err error) *GeminiError {
	if err == nil {
		return nil
	}

	var existing *GeminiError
	if errors.As(err, &existing) {
		return existing
	}

	out := &GeminiError{OriginalError: err, Category: "unknown", Message: err.Error()}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		out.StatusCode = apiErr.Code
		if st, ok := apiStatuses[apiErr.Code]; ok {
			out.Category, out.Message, out.Retryable = st.category, st.message, st.retryable
		} else if apiErr.Code >= http.StatusInternalServerError {
			out.Category, out.Message, out.Retryable = "server_error", fmt.Sprintf("model server error (%d)", apiErr.Code), true
		} else {
			out.Category, out.Message = "unknown_api_error", fmt.Sprintf("model API error: %s", apiErr.Message)
		}
		return out
	}

	switch msg := strings.ToLower(err.Error()); {
	case errors.Is(err, context.DeadlineExceeded):
		out.Category, out.Message, out.Retryable = "timeout", "model call timed out", true
	case errors.Is(err, context.Canceled):
		out.Category, out.Message = "canceled", "model call was canceled"
	case strings.Contains(msg, "quota"):
		out.Category, out.Message = "quota_exceeded", "model quota exhausted"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		out.Category, out.Message, out.Retryable = "timeout", "model call timed out", true
	case strings.Contains(msg, "connection"), strings.Contains(msg, "network"):
		out.Category, out.Message, out.Retryable = "network_error", "could not reach the model API", true
	}
	return out
}

// callGeminiWithRetry runs call until it succeeds, fails permanently or
// config.MaxAttempts is reached. Rate limit failures wait twice as long.
func callGeminiWithRetry(
	ctx context.Context,
	call func(ctx context.Context) (*genai.GenerateContentResponse, error),
	reqCtx *common.RequestContext,
	config RetryConfig,
) (*genai.GenerateContentResponse, error) {
	var lastErr *GeminiError

	for attempt := 1; ; attempt++ {
		resp, err := call(ctx)
		if err == nil {
			if attempt > 1 {
				reqCtx.LogInfo("Gemini call succeeded on attempt %d", attempt)
			}
			return resp, nil
		}

		lastErr = categorizeGeminiError(err)
		reqCtx.LogWarning("Gemini call failed (attempt %d/%d): %v", attempt, config.MaxAttempts, lastErr)
		if !lastErr.Retryable {
			return nil, lastErr
		}
		if attempt >= config.MaxAttempts {
			return nil, fmt.Errorf("gemini call failed after %d attempts: %w", attempt, lastErr)
		}

		wait := calculateBackoff(attempt, config)
		if lastErr.Category == "rate_limit" {
			wait *= 2
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, categorizeGeminiError(ctx.Err())
		case <-timer.C:
		}
	}
}

// calculateBackoff returns InitialDelay * BackoffMultiple^(attempt-1),
// capped at MaxDelay.
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	d := time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt-1)))
	return min(d, config.MaxDelay)
}
