/**
 * Upload intake pipeline
 *
 * One uploaded file in, one Result out:
 *   image -> OCR -> classify
 *   pdf   -> rasterize -> OCR per page -> join with "\n" -> classify
 *   other -> stored but not analyzed
 * Any OCR or rasterization failure aborts the request.
 */

package intake

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bloodmate/donor-service/internal/eligibility"
	intakeerrors "github.com/bloodmate/donor-service/internal/errors"
	"github.com/bloodmate/donor-service/internal/logging"
	"github.com/bloodmate/donor-service/internal/rasterizer"
)

var imageExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"bmp":  true,
	"tiff": true,
}

const pdfExtension = "pdf"

// TextExtractor recognizes text in a single raster image
type TextExtractor interface {
	Extract(ctx context.Context, imagePath string) (string, error)
}

// DocumentRasterizer renders a PDF into page images
type DocumentRasterizer interface {
	Rasterize(ctx context.Context, pdfPath string) ([]rasterizer.Page, error)
}

// CleanupScheduler arranges for a directory of rendered pages to be removed later
type CleanupScheduler interface {
	ScheduleCleanup(ctx context.Context, dir string) error
}

// PipelineConfig holds pipeline dependencies
type PipelineConfig struct {
	Extractor       TextExtractor
	Rasterizer      DocumentRasterizer
	Cleanup         CleanupScheduler // optional
	PageConcurrency int
	Logger          *logging.Logger
}

// Pipeline orchestrates OCR and eligibility for one uploaded document
type Pipeline struct {
	extractor       TextExtractor
	rasterizer      DocumentRasterizer
	cleanup         CleanupScheduler
	pageConcurrency int
	logger          *logging.Logger
}

// NewPipeline creates a new intake pipeline
func NewPipeline(cfg *PipelineConfig) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Extractor == nil {
		return nil, fmt.Errorf("text extractor is required")
	}

	if cfg.Rasterizer == nil {
		return nil, fmt.Errorf("rasterizer is required")
	}

	concurrency := cfg.PageConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("intake")
	}

	return &Pipeline{
		extractor:       cfg.Extractor,
		rasterizer:      cfg.Rasterizer,
		cleanup:         cfg.Cleanup,
		pageConcurrency: concurrency,
		logger:          logger,
	}, nil
}

// Process runs the document through the pipeline. A nil document yields a
// "Not checked" result with no file name.
func (p *Pipeline) Process(ctx context.Context, doc *UploadedDocument) (*Result, error) {
	if doc == nil {
		return notChecked(nil), nil
	}

	startTime := time.Now()
	fileName := strPtr(doc.StoredName)
	ext := doc.ext()
	log := p.logger.Ctx(ctx).With("file", doc.StoredName, "ext", ext)

	var (
		text      string
		pageCount int
		err       error
	)

	switch {
	case imageExtensions[ext]:
		log.Info("Step 1: Running OCR on image")
		text, err = p.extractor.Extract(ctx, doc.Path)
		if err != nil {
			log.Error("OCR failed", "err", err)
			return nil, asExtractionError(doc.Path, err)
		}
		pageCount = 1

	case ext == pdfExtension:
		log.Info("Step 1: Rasterizing PDF")
		pages, err := p.rasterizer.Rasterize(ctx, doc.Path)
		if err != nil {
			log.Error("Rasterization failed", "err", err)
			return nil, asRasterizationError(doc.Path, err)
		}

		if len(pages) == 0 {
			log.Warn("PDF produced no pages, nothing to classify")
			return &Result{
				FileName:      fileName,
				ExtractedText: strPtr(""),
				Eligibility:   eligibility.NoReadablePages(),
			}, nil
		}

		p.scheduleCleanup(ctx, log, rasterizer.OutputDir(doc.Path))

		log.Info("Step 2: Running OCR on pages", "pages", len(pages), "concurrency", p.pageConcurrency)
		text, err = p.extractPages(ctx, pages)
		if err != nil {
			log.Error("Page OCR failed", "err", err)
			return nil, err
		}
		pageCount = len(pages)

	default:
		log.Info("File type not analyzable, skipping OCR")
		return notChecked(fileName), nil
	}

	verdict := eligibility.Classify(text)
	log.Info("Eligibility evaluated",
		"eligible", *verdict.Eligible,
		"reason", verdict.Reason,
		"chars", len(text),
		"pages", pageCount,
		"duration", time.Since(startTime))

	return &Result{
		FileName:      fileName,
		ExtractedText: strPtr(text),
		Eligibility:   verdict,
		PageCount:     pageCount,
	}, nil
}

// extractPages runs OCR over every page and joins the texts in page order,
// independent of the order in which calls complete.
func (p *Pipeline) extractPages(ctx context.Context, pages []rasterizer.Page) (string, error) {
	ordered := make([]rasterizer.Page, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	texts := make([]string, len(ordered))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.pageConcurrency)

	for i, page := range ordered {
		eg.Go(func() error {
			text, err := p.extractor.Extract(gctx, page.Path)
			if err != nil {
				return asExtractionError(page.Path, err).WithDetail("page", page.Index)
			}
			texts[i] = text
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return "", err
	}

	return strings.Join(texts, "\n"), nil
}

func (p *Pipeline) scheduleCleanup(ctx context.Context, log *logging.Logger, dir string) {
	if p.cleanup == nil {
		return
	}
	if err := p.cleanup.ScheduleCleanup(ctx, dir); err != nil {
		log.Warn("Could not schedule page cleanup", "dir", dir, "err", err)
	}
}

func asExtractionError(path string, err error) *intakeerrors.IntakeError {
	if ie, ok := intakeerrors.AsIntakeError(err); ok {
		return ie
	}
	return intakeerrors.NewExtractionError(path, err)
}

func asRasterizationError(path string, err error) *intakeerrors.IntakeError {
	if ie, ok := intakeerrors.AsIntakeError(err); ok {
		return ie
	}
	return intakeerrors.NewRasterizationError(path, err)
}
