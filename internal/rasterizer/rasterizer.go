// Package rasterizer renders PDF pages to JPEG images so they can be fed to OCR.
package rasterizer

import (
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	intakeerrors "github.com/bloodmate/donor-service/internal/errors"
	"github.com/bloodmate/donor-service/internal/logging"
)

const (
	pagePrefix     = "page-"
	pageExtension  = ".jpg"
	defaultDPI     = 200
	defaultQuality = 90
)

func init() {
	// pdfcpu otherwise materializes a config dir under the user's home.
	api.DisableConfigDir()
}

// Page is one rendered page of a source PDF.
type Page struct {
	Source string // path of the PDF this page came from
	Index  int    // 1-based page number
	Path   string
}

// Config holds rasterizer settings
type Config struct {
	DPI     float64
	Quality int
	Timeout time.Duration
	Logger  *logging.Logger
}

// Rasterizer converts PDFs to per-page images on disk
type Rasterizer struct {
	dpi     float64
	quality int
	timeout time.Duration
	logger  *logging.Logger
}

// New creates a rasterizer, filling in defaults for zero values
func New(cfg *Config) *Rasterizer {
	r := &Rasterizer{
		dpi:     defaultDPI,
		quality: defaultQuality,
		timeout: 60 * time.Second,
	}
	if cfg != nil {
		if cfg.DPI > 0 {
			r.dpi = cfg.DPI
		}
		if cfg.Quality > 0 && cfg.Quality <= 100 {
			r.quality = cfg.Quality
		}
		if cfg.Timeout > 0 {
			r.timeout = cfg.Timeout
		}
		r.logger = cfg.Logger
	}
	if r.logger == nil {
		r.logger = logging.NewLogger("rasterizer")
	}
	return r
}

// OutputDir is the directory holding the pages of pdfPath: the same path
// with its extension stripped.
func OutputDir(pdfPath string) string {
	return strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath))
}

// PageFileName returns the lexicographically sortable name for a page.
func PageFileName(index int) string {
	return fmt.Sprintf("%s%03d%s", pagePrefix, index, pageExtension)
}

// Rasterize renders every page of pdfPath into OutputDir(pdfPath) and returns
// the pages in page order. A document with no pages yields an empty slice.
func (r *Rasterizer) Rasterize(ctx context.Context, pdfPath string) ([]Page, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		pages []Page
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		pages, err := r.rasterize(ctx, pdfPath)
		done <- outcome{pages: pages, err: err}
	}()

	var res outcome
	select {
	case <-ctx.Done():
		res.err = ctx.Err()
	case res = <-done:
	}

	switch {
	case res.err == nil:
		if len(res.pages) == 0 {
			r.logger.Warn("PDF has no pages", "pdf", pdfPath)
		} else {
			r.logger.Info("PDF rasterized", "pdf", pdfPath, "pages", len(res.pages), "dir", OutputDir(pdfPath), "duration", time.Since(startTime))
		}
		return res.pages, nil
	case errors.Is(res.err, context.DeadlineExceeded):
		return nil, intakeerrors.NewTimeoutError(intakeerrors.StageRasterization, pdfPath, r.timeout, res.err)
	default:
		return nil, intakeerrors.NewRasterizationError(pdfPath, res.err)
	}
}

// rasterize validates, counts and renders; ctx is checked between steps
func (r *Rasterizer) rasterize(ctx context.Context, pdfPath string) ([]Page, error) {
	pageCount, err := inspect(pdfPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pageCount == 0 {
		return []Page{}, nil
	}

	outDir := OutputDir(pdfPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return r.render(ctx, pdfPath, outDir)
}

// inspect validates the PDF structure and returns its page count.
// Encrypted and corrupt documents fail here with pdfcpu's diagnostic.
func inspect(pdfPath string) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.ValidateFile(pdfPath, conf); err != nil {
		return 0, fmt.Errorf("invalid PDF: %w", err)
	}

	count, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return count, nil
}

func (r *Rasterizer) render(ctx context.Context, pdfPath, outDir string) ([]Page, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	pages := make([]Page, 0, pageCount)

	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.ImageDPI(i, r.dpi)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}

		outPath := filepath.Join(outDir, PageFileName(i+1))
		f, err := os.Create(outPath)
		if err != nil {
			return nil, fmt.Errorf("create page %d image: %w", i+1, err)
		}

		err = jpeg.Encode(f, img, &jpeg.Options{Quality: r.quality})
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("encode page %d: %w", i+1, err)
		}

		pages = append(pages, Page{Source: pdfPath, Index: i + 1, Path: outPath})
	}

	return pages, nil
}
