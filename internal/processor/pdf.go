// pdf.go - PDF text layer, page counting and per-page rendering for OCR

package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ReadTextLayer returns the embedded text of every page, in page order.
// Pages that fail to decode come back empty.
func ReadTextLayer(path string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf text layer: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// CountPages returns the page count reported by pdfcpu.
func CountPages(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("count pdf pages: %w", err)
	}
	return n, nil
}

// PageRenderer turns a PDF into one file per page, in page order, inside workDir.
type PageRenderer interface {
	RenderPages(ctx context.Context, pdfPath, workDir string) ([]string, error)
}

// SplitRenderer splits a PDF into single-page PDFs with pdfcpu. Vision models
// accept PDF pages directly, so no rasterization is needed.
type SplitRenderer struct{}

func (SplitRenderer) RenderPages(ctx context.Context, pdfPath, workDir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	optimized := filepath.Join(workDir, "document.pdf")
	if err := api.OptimizeFile(pdfPath, optimized, cfg); err != nil {
		return nil, fmt.Errorf("optimize pdf: %w", err)
	}
	count, err := api.PageCountFile(optimized)
	if err != nil {
		return nil, fmt.Errorf("count pdf pages: %w", err)
	}
	if err := api.SplitFile(optimized, workDir, 1, cfg); err != nil {
		return nil, fmt.Errorf("split pdf: %w", err)
	}

	base := strings.TrimSuffix(optimized, filepath.Ext(optimized))
	pages := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		page := fmt.Sprintf("%s_%d.pdf", base, i)
		if _, err := os.Stat(page); err != nil {
			return nil, fmt.Errorf("split pdf: missing page %d: %w", i, err)
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// PdftoppmRenderer rasterizes pages to PNG with poppler's pdftoppm.
type PdftoppmRenderer struct {
	Runner   Runner
	Pdftoppm string
	DPI      int
}

func (r PdftoppmRenderer) RenderPages(ctx context.Context, pdfPath, workDir string) ([]string, error) {
	runner := r.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	bin := r.Pdftoppm
	if bin == "" {
		bin = "pdftoppm"
	}
	dpi := r.DPI
	if dpi <= 0 {
		dpi = 300
	}

	prefix := filepath.Join(workDir, "page")
	// pdftoppm -r <dpi> -png <pdf> <prefix>  ->  prefix-1.png, prefix-2.png, ...
	if _, stderr, err := runner.Run(ctx, bin, "-r", strconv.Itoa(dpi), "-png", pdfPath, prefix); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(stderr), 512))
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w", err)
	}
	if len(matches) == 0 {
		return nil, errors.New("pdftoppm: produced no pages")
	}
	sortByPageNumber(matches, prefix+"-")
	return matches, nil
}

// sortByPageNumber orders prefix-N.png paths numerically; pdftoppm zero-pads
// inconsistently across versions.
func sortByPageNumber(paths []string, prefix string) {
	pageNum := func(p string) int {
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(p, prefix), ".png"))
		if err != nil {
			return 1 << 30
		}
		return n
	}
	sort.SliceStable(paths, func(i, j int) bool {
		return pageNum(paths[i]) < pageNum(paths[j])
	})
}
