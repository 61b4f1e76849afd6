// request_context.go - Request tracking and logging for the bill pipeline

package common

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bosocmputer/bill_analyzer_gemini/configs"
	"github.com/google/uuid"
)

// RequestContext tracks one submission through the pipeline with timing and costs
type RequestContext struct {
	RequestID        string
	UserID           string
	StartTime        time.Time
	Steps            []StepLog
	TotalTokens      TokenUsage
	CurrentStep      string
	CurrentStepStart time.Time

	mu sync.Mutex
}

// StepLog is one finished pipeline step. Status is success, failed or
// fallback.
type StepLog struct {
	Name      string      `json:"name"`
	StartTime time.Time   `json:"start_time"`
	Duration  int64       `json:"duration_ms"`
	Status    string      `json:"status"`
	Tokens    *TokenUsage `json:"tokens,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// TokenUsage is model token consumption and its estimated cost.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	CostTHB      float64 `json:"cost_thb"`
}

// Add accumulates another usage record.
func (t *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.TotalTokens += other.TotalTokens
	t.CostUSD += other.CostUSD
	t.CostTHB += other.CostTHB
}

var stepDescriptions = map[string]string{
	"quota_check":  "Checking bill quota",
	"extract_text": "Extracting document text",
	"analyze":      "Analyzing bill with Gemini",
	"reconcile":    "Reconciling model response",
	"persist":      "Saving bill analysis",
}

// NewRequestContext creates a new request tracking context. An empty requestID
// gets a fresh uuid.
func NewRequestContext(requestID, userID string) *RequestContext {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	now := time.Now()

	log.Printf("[%s] new request | user: %s | at: %s", requestID, userID, now.Format("15:04:05"))

	return &RequestContext{
		RequestID: requestID,
		UserID:    userID,
		StartTime: now,
		Steps:     []StepLog{},
	}
}

// StartStep begins tracking a new processing step
func (rc *RequestContext) StartStep(stepName string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.CurrentStep = stepName
	rc.CurrentStepStart = time.Now()

	desc := stepDescriptions[stepName]
	if desc == "" {
		desc = stepName
	}
	log.Printf("[%s] ┌── %s", rc.RequestID, desc)
}

// EndStep completes the current step and records timing
func (rc *RequestContext) EndStep(status string, tokens *TokenUsage, err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	duration := time.Since(rc.CurrentStepStart).Milliseconds()

	stepLog := StepLog{
		Name:      rc.CurrentStep,
		StartTime: rc.CurrentStepStart,
		Duration:  duration,
		Status:    status,
		Tokens:    tokens,
	}

	if err != nil {
		stepLog.Error = err.Error()
		log.Printf("[%s] └── FAILED %s (%.2fs): %v",
			rc.RequestID, rc.CurrentStep, float64(duration)/1000, err)
	} else {
		logMsg := fmt.Sprintf("[%s] └── %s (%.2fs)", rc.RequestID, status, float64(duration)/1000)
		if tokens != nil {
			rc.TotalTokens.Add(tokens)
			logMsg += fmt.Sprintf(" | tokens: %d in + %d out = %d | cost: $%.4f",
				tokens.InputTokens, tokens.OutputTokens, tokens.TotalTokens, tokens.CostUSD)
		}
		log.Print(logMsg)
	}

	rc.Steps = append(rc.Steps, stepLog)
	rc.CurrentStep = ""
}

// AddTokens records usage that does not belong to a single step (per-page OCR).
func (rc *RequestContext) AddTokens(tokens *TokenUsage) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.TotalTokens.Add(tokens)
}

// CalculateTokenCost prices token counts with the configured per-million
// rates.
func CalculateTokenCost(inputTokens, outputTokens int) TokenUsage {
	usd := (float64(inputTokens)*configs.GEMINI_INPUT_PRICE_PER_MILLION +
		float64(outputTokens)*configs.GEMINI_OUTPUT_PRICE_PER_MILLION) / 1e6
	return TokenUsage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD:      usd,
		CostTHB:      usd * configs.USD_TO_THB,
	}
}

// Summary is the outcome of a tracked request.
type Summary struct {
	RequestID string           `json:"request_id"`
	UserID    string           `json:"user_id"`
	Duration  time.Duration    `json:"duration"`
	StepsMs   map[string]int64 `json:"steps_ms"`
	StepCount int              `json:"step_count"`
	Tokens    TokenUsage       `json:"tokens"`
}

// GetSummary logs and returns the per-step timings and token totals.
func (rc *RequestContext) GetSummary() Summary {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	sum := Summary{
		RequestID: rc.RequestID,
		UserID:    rc.UserID,
		Duration:  time.Since(rc.StartTime),
		StepsMs:   make(map[string]int64, len(rc.Steps)),
		StepCount: len(rc.Steps),
		Tokens:    rc.TotalTokens,
	}
	for _, step := range rc.Steps {
		sum.StepsMs[step.Name] += step.Duration
	}

	log.Printf("[%s] done in %.2fs | steps: %d | tokens: %s | cost: $%.4f (฿%.2f)",
		rc.RequestID, sum.Duration.Seconds(), sum.StepCount,
		formatNumber(sum.Tokens.TotalTokens), sum.Tokens.CostUSD, sum.Tokens.CostTHB)
	return sum
}

func (rc *RequestContext) logf(level, format string, args []interface{}) {
	log.Printf("[%s] %s %s", rc.RequestID, level, fmt.Sprintf(format, args...))
}

// LogInfo, LogWarning and LogError write one line prefixed with the request id.
func (rc *RequestContext) LogInfo(format string, args ...interface{}) {
	rc.logf("INFO", format, args)
}

func (rc *RequestContext) LogWarning(format string, args ...interface{}) {
	rc.logf("WARN", format, args)
}

func (rc *RequestContext) LogError(format string, args ...interface{}) {
	rc.logf("ERROR", format, args)
}

// formatNumber groups digits in threes: 1234567 -> "1,234,567".
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	digits := strconv.Itoa(n)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
