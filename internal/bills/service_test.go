package bills

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bosocmputer/bill_analyzer_gemini/internal/ai"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/analysis"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/common"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/extract"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/storage"
	"github.com/bosocmputer/bill_analyzer_gemini/internal/testutil"
)

const billText = "Room charge: 5000 | Pharmacy: 1200 | Consultation fee: 800 | Total: 7000"

const fencedAnalysis = "```json\n" + `{
  "overall_summary": {"verdict": "looks_reasonable", "confidence_level": "medium", "one_line_summary": "Charges look typical."},
  "positive_points": [],
  "potential_issues": [],
  "insurance_attention_items": [],
  "room_and_package_notes": {"room_rent_observation": "", "package_mismatch": ""},
  "data_quality_notes": {"ocr_confidence": "high", "note": ""},
  "final_advice_for_patient": ["Keep your receipts."],
  "important_disclaimer": "Not medical or legal advice."
}` + "\n```"

type stubExtractor struct {
	mu     sync.Mutex
	calls  int
	result *extract.Result
	err    error
}

func (s *stubExtractor) Extract(ctx context.Context, path, mediaType string, reqCtx *common.RequestContext) (*extract.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	return &res, nil
}

type stubAnalyzer struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (s *stubAnalyzer) Analyze(ctx context.Context, prompt string, reqCtx *common.RequestContext) (string, *common.TokenUsage, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return "", nil, s.err
	}
	usage := common.CalculateTokenCost(100, 50)
	return s.reply, &usage, nil
}

func textResult() *extract.Result {
	return &extract.Result{Text: billText, TotalPages: 1, Via: extract.ViaText, FileType: extract.FileTypePDF}
}

func tempUpload(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("upload"), 0o600); err != nil {
		t.Fatalf("write temp upload: %v", err)
	}
	return path
}

func assertRemoved(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected temp file %s to be removed, stat err: %v", path, err)
	}
}

func newTestService(store storage.BillStore, ex Extractor, an ai.Analyzer, max int) *Service {
	return NewService(store, ex, an, Config{MaxBillsPerUser: max, AnalyticsCacheTTL: time.Minute})
}

func TestSubmitTextPDFWithFencedJSON(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteTextPDF(t, dir, "upload-1.pdf", billText)

	store := storage.NewMemoryBillStore()
	extractor := extract.NewExtractor(nil, nil, false, 50, []string{"application/pdf", "image/jpeg", "image/png"})
	analyzer := &stubAnalyzer{reply: fencedAnalysis}
	svc := newTestService(store, extractor, analyzer, 4)

	rec, err := svc.Submit(context.Background(), Submission{
		UserID:    "u1",
		FileName:  "bill.pdf",
		FilePath:  path,
		MediaType: "application/pdf",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	assertRemoved(t, path)

	if rec.Status != storage.StatusCompleted || rec.ExtractedVia != "text" || rec.TotalPages != 1 || rec.FileType != "pdf" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Analysis.Kind != analysis.KindStructured || rec.Analysis.OneLineSummary() != "Charges look typical." {
		t.Fatalf("expected structured analysis, got %+v", rec.Analysis)
	}
	if !strings.Contains(rec.ExtractedText, "Room charge: 5000") {
		t.Fatalf("unexpected extracted text %q", rec.ExtractedText)
	}

	stored, err := store.FindForUser(context.Background(), rec.ID.Hex(), "u1")
	if err != nil || stored.ExtractedText == "" {
		t.Fatalf("expected completed record with text in store: %+v %v", stored, err)
	}

	if len(analyzer.prompts) != 1 || !strings.HasPrefix(analyzer.prompts[0], strings.TrimSpace(ai.DefaultBillAnalysisPrompt)) {
		t.Fatalf("expected default prompt to be used")
	}
}

func TestSubmitNonJSONReplyStoresFallback(t *testing.T) {
	path := tempUpload(t, "upload.png")
	store := storage.NewMemoryBillStore()
	svc := newTestService(store, &stubExtractor{result: textResult()}, &stubAnalyzer{reply: "I cannot analyze this."}, 4)

	rec, err := svc.Submit(context.Background(), Submission{UserID: "u1", FileName: "bill.pdf", FilePath: path, MediaType: "application/pdf"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	assertRemoved(t, path)

	if rec.Status != storage.StatusCompleted {
		t.Fatalf("expected completed status, got %s", rec.Status)
	}
	if rec.Analysis.Kind != analysis.KindFallback || rec.Analysis.Fallback.RawResponse != "I cannot analyze this." {
		t.Fatalf("expected fallback analysis, got %+v", rec.Analysis)
	}
	if rec.Analysis.Fallback.ParseError == "" {
		t.Fatalf("expected parse error to be recorded")
	}
}

func TestSubmitCustomPromptReplacesDefault(t *testing.T) {
	analyzer := &stubAnalyzer{reply: `{"items": []}`}
	svc := newTestService(storage.NewMemoryBillStore(), &stubExtractor{result: textResult()}, analyzer, 4)

	_, err := svc.Submit(context.Background(), Submission{UserID: "u1", FilePath: tempUpload(t, "a.pdf"), MediaType: "application/pdf", CustomPrompt: "List the items."})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	want := "List the items." + ai.DocumentDelimiter + billText
	if analyzer.prompts[0] != want {
		t.Fatalf("expected %q, got %q", want, analyzer.prompts[0])
	}
}

func TestSubmitQuotaExceeded(t *testing.T) {
	store := storage.NewMemoryBillStore()
	for i := 0; i < 4; i++ {
		store.Insert(context.Background(), &storage.BillRecord{UserID: "u1", Status: storage.StatusCompleted, ExtractedText: "t"})
	}
	store.Insert(context.Background(), &storage.BillRecord{UserID: "u2", Status: storage.StatusCompleted, ExtractedText: "t"})

	extractor := &stubExtractor{result: textResult()}
	analyzer := &stubAnalyzer{reply: "{}"}
	svc := newTestService(store, extractor, analyzer, 4)

	path := tempUpload(t, "fifth.pdf")
	_, err := svc.Submit(context.Background(), Submission{UserID: "u1", FilePath: path, MediaType: "application/pdf"})

	var quotaErr *QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("expected QuotaExceededError, got %v", err)
	}
	if quotaErr.Current != 4 || quotaErr.Max != 4 {
		t.Fatalf("expected 4 of 4, got %d of %d", quotaErr.Current, quotaErr.Max)
	}
	if extractor.calls != 0 || len(analyzer.prompts) != 0 {
		t.Fatalf("quota rejection must not extract or analyze")
	}
	assertRemoved(t, path)

	if n, _ := store.CountByUser(context.Background(), "u1"); n != 4 {
		t.Fatalf("expected 4 stored records, got %d", n)
	}

	// another user is unaffected
	if _, err := svc.Submit(context.Background(), Submission{UserID: "u2", FilePath: tempUpload(t, "u2.pdf"), MediaType: "application/pdf"}); err != nil {
		t.Fatalf("expected u2 to be under quota, got %v", err)
	}
}

func TestSubmitInFlightCountsTowardQuota(t *testing.T) {
	store := storage.NewMemoryBillStore()
	analyzer := &stubAnalyzer{reply: "{}", block: make(chan struct{}), entered: make(chan struct{}, 1)}
	svc := newTestService(store, &stubExtractor{result: textResult()}, analyzer, 1)

	first := tempUpload(t, "first.pdf")
	errs := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), Submission{UserID: "u1", FilePath: first, MediaType: "application/pdf"})
		errs <- err
	}()
	<-analyzer.entered

	_, err := svc.Submit(context.Background(), Submission{UserID: "u1", FilePath: tempUpload(t, "second.pdf"), MediaType: "application/pdf"})
	var quotaErr *QuotaExceededError
	if !errors.As(err, &quotaErr) || quotaErr.Current != 1 {
		t.Fatalf("expected in-flight upload to hold the only slot, got %v", err)
	}

	close(analyzer.block)
	if err := <-errs; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if n, _ := store.CountByUser(context.Background(), "u1"); n != 1 {
		t.Fatalf("expected 1 stored record, got %d", n)
	}
}

func TestSubmitFailuresPersistNothing(t *testing.T) {
	cases := []struct {
		name      string
		extractor *stubExtractor
		analyzer  *stubAnalyzer
		want      error
	}{
		{"unsupported", &stubExtractor{err: extract.ErrUnsupportedMediaType}, &stubAnalyzer{}, extract.ErrUnsupportedMediaType},
		{"scanned", &stubExtractor{err: extract.ErrUnsupportedScannedPDF}, &stubAnalyzer{}, extract.ErrUnsupportedScannedPDF},
		{"empty", &stubExtractor{err: extract.ErrExtractionEmpty}, &stubAnalyzer{}, extract.ErrExtractionEmpty},
		{"model", &stubExtractor{result: textResult()}, &stubAnalyzer{err: ai.ErrModelInvocation}, ai.ErrModelInvocation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := storage.NewMemoryBillStore()
			svc := newTestService(store, tc.extractor, tc.analyzer, 4)
			path := tempUpload(t, "bill.pdf")

			_, err := svc.Submit(context.Background(), Submission{UserID: "u1", FilePath: path, MediaType: "application/pdf"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			assertRemoved(t, path)
			if n, _ := store.CountByUser(context.Background(), "u1"); n != 0 {
				t.Fatalf("expected nothing stored, got %d", n)
			}

			// the reservation was released
			if _, err := svc.quota.reserve(context.Background(), "u1"); err != nil {
				t.Fatalf("expected slot to be free, got %v", err)
			}
		})
	}
}

func TestGetAndDeleteAreOwnerScoped(t *testing.T) {
	store := storage.NewMemoryBillStore()
	svc := newTestService(store, &stubExtractor{result: textResult()}, &stubAnalyzer{reply: "{}"}, 4)
	rec, err := svc.Submit(context.Background(), Submission{UserID: "owner", FilePath: tempUpload(t, "b.pdf"), MediaType: "application/pdf"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := svc.Get(context.Background(), "intruder", rec.ID.Hex()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Delete(context.Background(), "intruder", rec.ID.Hex()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got, err := svc.Get(context.Background(), "owner", rec.ID.Hex()); err != nil || got.ID != rec.ID {
		t.Fatalf("owner Get: %v", err)
	}
	if err := svc.Delete(context.Background(), "owner", rec.ID.Hex()); err != nil {
		t.Fatalf("owner Delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), "owner", rec.ID.Hex()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected deleted record to be gone, got %v", err)
	}
}

func TestAnalyticsInvalidatedOnChange(t *testing.T) {
	store := storage.NewMemoryBillStore()
	svc := newTestService(store, &stubExtractor{result: textResult()}, &stubAnalyzer{reply: fencedAnalysis}, 4)
	ctx := context.Background()

	a, err := svc.Analytics(ctx, "u1")
	if err != nil || a.Counts.Total != 0 {
		t.Fatalf("unexpected analytics %+v %v", a, err)
	}

	rec, _ := svc.Submit(ctx, Submission{UserID: "u1", FileName: "bill.pdf", FilePath: tempUpload(t, "b.pdf"), MediaType: "application/pdf"})
	a, _ = svc.Analytics(ctx, "u1")
	if a.Counts.Total != 1 || a.Counts.Completed != 1 || len(a.Recent) != 1 {
		t.Fatalf("expected analytics to reflect new record, got %+v", a)
	}
	if a.Recent[0].Analysis.OneLineSummary() != "Charges look typical." {
		t.Fatalf("expected summary in recent list, got %+v", a.Recent[0])
	}

	svc.Delete(ctx, "u1", rec.ID.Hex())
	a, _ = svc.Analytics(ctx, "u1")
	if a.Counts.Total != 0 {
		t.Fatalf("expected analytics to reflect delete, got %+v", a.Counts)
	}
}

func TestExtractOnlyAndAnalyzeText(t *testing.T) {
	store := storage.NewMemoryBillStore()
	extractor := &stubExtractor{result: textResult()}
	svc := newTestService(store, extractor, &stubAnalyzer{reply: fencedAnalysis}, 4)
	ctx := context.Background()

	path := tempUpload(t, "b.pdf")
	res, err := svc.ExtractOnly(ctx, Submission{UserID: "u1", FilePath: path, MediaType: "application/pdf"})
	if err != nil || res.Text != billText {
		t.Fatalf("ExtractOnly: %+v %v", res, err)
	}
	assertRemoved(t, path)

	result, err := svc.AnalyzeText(ctx, "", "u1", billText, "")
	if err != nil || result.Kind != analysis.KindStructured {
		t.Fatalf("AnalyzeText: %+v %v", result, err)
	}
	if _, err := svc.AnalyzeText(ctx, "", "u1", "   ", ""); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}

	if n, _ := store.CountByUser(ctx, "u1"); n != 0 {
		t.Fatalf("extract/analyze must not persist, got %d", n)
	}
}

// slowUserStore blocks store reads for one user until release is closed.
type slowUserStore struct {
	*storage.MemoryBillStore
	slowUser string
	entered  chan struct{}
	release  chan struct{}
}

func (s *slowUserStore) wait(userID string) {
	if userID == s.slowUser {
		s.entered <- struct{}{}
		<-s.release
	}
}

func (s *slowUserStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	s.wait(userID)
	return s.MemoryBillStore.CountByUser(ctx, userID)
}

func (s *slowUserStore) CountByStatus(ctx context.Context, userID string) (storage.StatusCounts, error) {
	s.wait(userID)
	return s.MemoryBillStore.CountByStatus(ctx, userID)
}

func newSlowUserStore(user string) *slowUserStore {
	return &slowUserStore{
		MemoryBillStore: storage.NewMemoryBillStore(),
		slowUser:        user,
		entered:         make(chan struct{}, 1),
		release:         make(chan struct{}),
	}
}

func TestQuotaCheckDoesNotBlockOtherUsers(t *testing.T) {
	store := newSlowUserStore("alice")
	svc := newTestService(store, &stubExtractor{result: textResult()}, &stubAnalyzer{reply: fencedAnalysis}, 4)

	aliceUpload := tempUpload(t, "alice.pdf")
	aliceDone := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), Submission{UserID: "alice", FilePath: aliceUpload, MediaType: "application/pdf"})
		aliceDone <- err
	}()
	<-store.entered

	bobUpload := tempUpload(t, "bob.pdf")
	bobDone := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), Submission{UserID: "bob", FilePath: bobUpload, MediaType: "application/pdf"})
		bobDone <- err
	}()

	select {
	case err := <-bobDone:
		if err != nil {
			t.Fatalf("bob submit: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("bob's submission waited on alice's quota count")
	}

	close(store.release)
	if err := <-aliceDone; err != nil {
		t.Fatalf("alice submit: %v", err)
	}
}

func TestAnalyticsLoadDoesNotBlockOtherUsers(t *testing.T) {
	store := newSlowUserStore("alice")
	svc := newTestService(store, &stubExtractor{result: textResult()}, &stubAnalyzer{reply: fencedAnalysis}, 4)

	aliceDone := make(chan error, 1)
	go func() {
		_, err := svc.Analytics(context.Background(), "alice")
		aliceDone <- err
	}()
	<-store.entered

	bobDone := make(chan error, 1)
	go func() {
		_, err := svc.Analytics(context.Background(), "bob")
		if err == nil {
			err = svc.Delete(context.Background(), "bob", "000000000000000000000000")
			if errors.Is(err, storage.ErrNotFound) {
				err = nil
			}
		}
		bobDone <- err
	}()

	select {
	case err := <-bobDone:
		if err != nil {
			t.Fatalf("bob analytics: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("bob's analytics waited on alice's load")
	}

	close(store.release)
	if err := <-aliceDone; err != nil {
		t.Fatalf("alice analytics: %v", err)
	}
}
