// Package bills runs the bill analysis pipeline and owns the lifecycle of
// stored bill records.
package bills

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/bosocmputer/bill_analyzer_gemini/internal/ai"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/analysis"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/common"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/extract"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/storage"
)

// ErrEmptyText is returned when text submitted for analysis is blank.
var ErrEmptyText = errors.New("extracted text is required")

// RecentLimit is the number of records shown in analytics.
const RecentLimit = 5

// Extractor turns an uploaded file into normalized text.
type Extractor interface {
	Extract(ctx context.Context, path, mediaType string, reqCtx *common.RequestContext) (*extract.Result, error)
}

// Submission is one uploaded bill. FilePath is a temporary file that the
// service removes when it is done with it.
type Submission struct {
	RequestID    string
	UserID       string
	FileName     string
	FilePath     string
	MediaType    string
	CustomPrompt string
}

// Config holds the service limits.
type Config struct {
	MaxBillsPerUser   int
	AnalyticsCacheTTL time.Duration
}

// Service is the bill record lifecycle manager.
type Service struct {
	store     storage.BillStore
	extractor Extractor
	analyzer  ai.Analyzer
	quota     *quota
	cache     *storage.AnalyticsCache
}

func NewService(store storage.BillStore, extractor Extractor, analyzer ai.Analyzer, cfg Config) *Service {
	return &Service{
		store:     store,
		extractor: extractor,
		analyzer:  analyzer,
		quota:     newQuota(store, cfg.MaxBillsPerUser),
		cache:     storage.NewAnalyticsCache(cfg.AnalyticsCacheTTL),
	}
}

// Submit checks the quota, extracts, analyzes and stores one bill. Failed
// runs store nothing.
func (s *Service) Submit(ctx context.Context, sub Submission) (*storage.BillRecord, error) {
	defer removeTemp(sub.FilePath)

	reqCtx := common.NewRequestContext(sub.RequestID, sub.UserID)
	defer reqCtx.GetSummary()

	reqCtx.StartStep("quota_check")
	release, err := s.quota.reserve(ctx, sub.UserID)
	if err != nil {
		reqCtx.EndStep("failed", nil, err)
		var quotaErr *QuotaExceededError
		if errors.As(err, &quotaErr) {
			submissionsTotal.WithLabelValues(resultQuotaExceeded).Inc()
		} else {
			submissionsTotal.WithLabelValues(resultStoreFailed).Inc()
		}
		return nil, err
	}
	defer release()
	reqCtx.EndStep("success", nil, nil)

	extracted, err := s.extract(ctx, sub.FilePath, sub.MediaType, reqCtx)
	if err != nil {
		submissionsTotal.WithLabelValues(resultExtractionFailed).Inc()
		return nil, err
	}

	result, err := s.analyze(ctx, extracted.Text, sub.CustomPrompt, reqCtx)
	if err != nil {
		submissionsTotal.WithLabelValues(resultModelFailed).Inc()
		return nil, err
	}

	rec := &storage.BillRecord{
		OriginalFileName: sub.FileName,
		FileType:         string(extracted.FileType),
		ExtractedText:    extracted.Text,
		TotalPages:       extracted.TotalPages,
		ExtractedVia:     string(extracted.Via),
		Analysis:         result,
		UserID:           sub.UserID,
		Status:           storage.StatusCompleted,
	}

	reqCtx.StartStep("persist")
	start := time.Now()
	err = s.store.Insert(ctx, rec)
	stageDuration.WithLabelValues("persist").Observe(time.Since(start).Seconds())
	if err != nil {
		reqCtx.EndStep("failed", nil, err)
		submissionsTotal.WithLabelValues(resultStoreFailed).Inc()
		return nil, fmt.Errorf("save bill analysis: %w", err)
	}
	reqCtx.EndStep("success", nil, nil)

	s.cache.Invalidate(sub.UserID)
	submissionsTotal.WithLabelValues(resultCompleted).Inc()
	reqCtx.LogInfo("Stored bill %s (%s, %d pages, via %s)", rec.ID.Hex(), rec.FileType, rec.TotalPages, rec.ExtractedVia)
	return rec, nil
}

// ExtractOnly runs extraction without quota or persistence.
func (s *Service) ExtractOnly(ctx context.Context, sub Submission) (*extract.Result, error) {
	defer removeTemp(sub.FilePath)

	reqCtx := common.NewRequestContext(sub.RequestID, sub.UserID)
	defer reqCtx.GetSummary()

	return s.extract(ctx, sub.FilePath, sub.MediaType, reqCtx)
}

// AnalyzeText analyzes already extracted text without persistence.
func (s *Service) AnalyzeText(ctx context.Context, requestID, userID, text, customPrompt string) (analysis.Analysis, error) {
	if strings.TrimSpace(text) == "" {
		return analysis.Analysis{}, ErrEmptyText
	}

	reqCtx := common.NewRequestContext(requestID, userID)
	defer reqCtx.GetSummary()

	return s.analyze(ctx, strings.TrimSpace(text), customPrompt, reqCtx)
}

func (s *Service) extract(ctx context.Context, path, mediaType string, reqCtx *common.RequestContext) (*extract.Result, error) {
	reqCtx.StartStep("extract_text")
	start := time.Now()
	res, err := s.extractor.Extract(ctx, path, mediaType, reqCtx)
	stageDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())
	if err != nil {
		reqCtx.EndStep("failed", nil, err)
		return nil, err
	}
	reqCtx.EndStep("success", nil, nil)
	return res, nil
}

func (s *Service) analyze(ctx context.Context, text, customPrompt string, reqCtx *common.RequestContext) (analysis.Analysis, error) {
	prompt := ai.Compose(text, customPrompt)

	reqCtx.StartStep("analyze")
	start := time.Now()
	raw, usage, err := s.analyzer.Analyze(ctx, prompt, reqCtx)
	stageDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	if err != nil {
		reqCtx.EndStep("failed", nil, err)
		return analysis.Analysis{}, err
	}
	reqCtx.EndStep("success", usage, nil)

	reqCtx.StartStep("reconcile")
	result := analysis.Reconcile(raw)
	if result.Kind == analysis.KindFallback {
		fallbackAnalysesTotal.Inc()
		reqCtx.EndStep("fallback", nil, nil)
	} else {
		reqCtx.EndStep("success", nil, nil)
	}
	return result, nil
}

// List returns one page of the user's records without extracted text.
func (s *Service) List(ctx context.Context, userID string, q storage.ListQuery) ([]storage.BillRecord, int64, error) {
	return s.store.ListForUser(ctx, userID, q)
}

// Get returns one of the user's records.
func (s *Service) Get(ctx context.Context, userID, id string) (*storage.BillRecord, error) {
	return s.store.FindForUser(ctx, id, userID)
}

// Delete removes one of the user's records.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteForUser(ctx, id, userID); err != nil {
		return err
	}
	s.cache.Invalidate(userID)
	return nil
}

// Analytics returns status counts and the most recent records for a user.
func (s *Service) Analytics(ctx context.Context, userID string) (*storage.UserAnalytics, error) {
	return s.cache.GetOrLoad(userID, func() (*storage.UserAnalytics, error) {
		counts, err := s.store.CountByStatus(ctx, userID)
		if err != nil {
			return nil, err
		}
		recent, err := s.store.RecentForUser(ctx, userID, RecentLimit)
		if err != nil {
			return nil, err
		}
		return &storage.UserAnalytics{Counts: counts, Recent: recent}, nil
	})
}

// InvalidateAnalytics drops all cached analytics.
func (s *Service) InvalidateAnalytics() {
	s.cache.Clear()
}

func removeTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN failed to remove temp file %s: %v", path, err)
	}
}
