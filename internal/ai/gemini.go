// gemini.go - Gemini client for bill analysis and vision OCR

package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bosocmputer/bill_analyzer_gemini/configs"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/common"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/processor"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/ratelimit"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const ocrPrompt = `Extract ALL visible text from this hospital bill page.
Read everything from top to bottom, left to right.
Include headers, line items, quantities, amounts, totals, footers and notes.
Keep one printed line per output line.
Return ONLY the extracted text, nothing else.`

// contentGenerator is the part of *genai.GenerativeModel the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey            string
	AnalysisModel     string
	OCRModel          string
	Temperature       float32
	MaxOutputTokens   int32
	Timeout           time.Duration
	RequestsPerMinute int
	Preprocess        bool
	MaxImageDimension int
}

// GeminiConfigFromEnv reads the client settings from configs.
func GeminiConfigFromEnv() GeminiConfig {
	return GeminiConfig{
		APIKey:            configs.GEMINI_API_KEY,
		AnalysisModel:     configs.MODEL_NAME,
		OCRModel:          configs.OCR_MODEL_NAME,
		Temperature:       float32(configs.ANALYSIS_TEMPERATURE),
		MaxOutputTokens:   int32(configs.ANALYSIS_MAX_OUTPUT_TOKENS),
		Timeout:           configs.ANALYSIS_TIMEOUT,
		RequestsPerMinute: configs.GEMINI_REQUESTS_PER_MINUTE,
		Preprocess:        configs.ENABLE_IMAGE_PREPROCESSING,
		MaxImageDimension: configs.MAX_IMAGE_DIMENSION,
	}
}

// GeminiClient analyzes bill text and recognizes page images with Gemini.
// It is safe for concurrent use.
type GeminiClient struct {
	cfg     GeminiConfig
	client  *genai.Client
	limiter *ratelimit.RateLimiter
	retry   RetryConfig

	// model returns a configured generator; replaced in tests.
	model func(name string, temperature float32, maxOutputTokens int32) contentGenerator
}

// NewGeminiClient connects to the Gemini API.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	g := newGeminiClient(cfg, func(name string, temperature float32, maxOutputTokens int32) contentGenerator {
		model := client.GenerativeModel(name)
		model.GenerationConfig = genai.GenerationConfig{
			Temperature:     &temperature,
			MaxOutputTokens: &maxOutputTokens,
		}
		return model
	})
	g.client = client
	return g, nil
}

func newGeminiClient(cfg GeminiConfig, model func(string, float32, int32) contentGenerator) *GeminiClient {
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 8192
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.OCRModel == "" {
		cfg.OCRModel = cfg.AnalysisModel
	}
	return &GeminiClient{
		cfg:     cfg,
		limiter: ratelimit.PerMinute(cfg.RequestsPerMinute),
		retry:   DefaultRetryConfig,
		model:   model,
	}
}

// Close releases the underlying API client.
func (g *GeminiClient) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *GeminiClient) GetProviderName() string {
	return "gemini"
}

// Analyze sends the prompt in a single call. Failures wrap ErrModelInvocation
// and are not retried.
func (g *GeminiClient) Analyze(ctx context.Context, prompt string, reqCtx *common.RequestContext) (string, *common.TokenUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrModelInvocation, categorizeGeminiError(err))
	}

	reqCtx.LogInfo("Analysis model: %s (temperature %.2f, max tokens %d, prompt %d chars)",
		g.cfg.AnalysisModel, g.cfg.Temperature, g.cfg.MaxOutputTokens, len(prompt))

	model := g.model(g.cfg.AnalysisModel, g.cfg.Temperature, g.cfg.MaxOutputTokens)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		gemErr := categorizeGeminiError(err)
		reqCtx.LogError("Analysis call failed: %s", gemErr.Error())
		return "", nil, fmt.Errorf("%w: %w", ErrModelInvocation, gemErr)
	}

	text, err := responseText(resp, reqCtx)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrModelInvocation, err)
	}
	return text, usageFrom(resp), nil
}

// RecognizeText runs vision OCR on an image or single-page PDF. Transient
// failures are retried.
func (g *GeminiClient) RecognizeText(ctx context.Context, path string, reqCtx *common.RequestContext) (string, *common.TokenUsage, error) {
	data, mimeType, err := g.loadForOCR(path, reqCtx)
	if err != nil {
		return "", nil, err
	}

	model := g.model(g.cfg.OCRModel, 0, 8192)
	call := func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
		return model.GenerateContent(callCtx, genai.Text(ocrPrompt), genai.Blob{MIMEType: mimeType, Data: data})
	}

	resp, err := callGeminiWithRetry(ctx, call, reqCtx, g.retry)
	if err != nil {
		return "", nil, fmt.Errorf("gemini ocr: %w", err)
	}
	text, err := responseText(resp, reqCtx)
	if err != nil {
		return "", nil, fmt.Errorf("gemini ocr: %w", err)
	}
	return text, usageFrom(resp), nil
}

func (g *GeminiClient) loadForOCR(path string, reqCtx *common.RequestContext) ([]byte, string, error) {
	if g.cfg.Preprocess {
		data, mimeType, err := processor.PreprocessForOCR(path, g.cfg.MaxImageDimension)
		if err == nil {
			return data, mimeType, nil
		}
		reqCtx.LogWarning("Preprocessing failed, using original file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	return data, processor.MediaTypeForPath(path), nil
}

// responseText joins the text parts of the first candidate. A response with
// no candidates (for example a safety block) is an error; an empty candidate
// is returned as empty text.
func responseText(resp *genai.GenerateContentResponse, reqCtx *common.RequestContext) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		reason := "no candidates"
		if resp != nil && resp.PromptFeedback != nil {
			reason = fmt.Sprintf("blocked: %v", resp.PromptFeedback.BlockReason)
		}
		return "", &GeminiError{
			OriginalError: errors.New(reason),
			Category:      "blocked",
			Message:       "Gemini returned no candidates (" + reason + ")",
		}
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonMaxTokens {
		reqCtx.LogWarning("Response was truncated (FinishReason: MAX_TOKENS)")
	}
	if candidate.Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

func usageFrom(resp *genai.GenerateContentResponse) *common.TokenUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	usage := common.CalculateTokenCost(
		int(resp.UsageMetadata.PromptTokenCount),
		int(resp.UsageMetadata.CandidatesTokenCount),
	)
	return &usage
}
