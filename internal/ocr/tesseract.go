/**
 * Tesseract OCR - text extraction for a single raster image
 *
 * One gosseract client per call; the language is fixed by configuration and
 * there is no fallback language or retry.
 */

package ocr

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/otiai10/gosseract/v2"

	intakeerrors "github.com/bloodmate/donor-service/internal/errors"
	"github.com/bloodmate/donor-service/internal/logging"
)

// recognizeFunc runs the OCR engine over one image file
type recognizeFunc func(imagePath, language, tessdataPrefix string) (string, error)

// TesseractExtractor handles OCR using Tesseract
type TesseractExtractor struct {
	language       string
	tessdataPrefix string
	timeout        time.Duration
	recognize      recognizeFunc
	logger         *logging.Logger
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Language       string
	TessdataPrefix string
	Timeout        time.Duration
	Logger         *logging.Logger
}

// NewTesseractExtractor creates a new Tesseract extractor
func NewTesseractExtractor(cfg *TesseractConfig) (*TesseractExtractor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Language == "" {
		return nil, fmt.Errorf("OCR language is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("ocr")
	}

	return &TesseractExtractor{
		language:       cfg.Language,
		tessdataPrefix: cfg.TessdataPrefix,
		timeout:        cfg.Timeout,
		recognize:      recognizeWithTesseract,
		logger:         logger,
	}, nil
}

// Language returns the configured language code
func (t *TesseractExtractor) Language() string {
	return t.language
}

// Extract performs OCR on the image at imagePath and returns the recognized
// text, which may be empty.
func (t *TesseractExtractor) Extract(ctx context.Context, imagePath string) (string, error) {
	startTime := time.Now()

	if _, err := os.Stat(imagePath); err != nil {
		return "", intakeerrors.NewExtractionError(imagePath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	// The engine call cannot be interrupted, so a timed out call finishes in
	// the background and its result is dropped.
	done := make(chan outcome, 1)
	go func() {
		text, err := t.recognize(imagePath, t.language, t.tessdataPrefix)
		done <- outcome{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		t.logger.Warn("OCR call abandoned", "image", imagePath, "elapsed", time.Since(startTime), "err", ctx.Err())
		if ctx.Err() == context.DeadlineExceeded {
			return "", intakeerrors.NewTimeoutError(intakeerrors.StageOCR, imagePath, t.timeout, ctx.Err())
		}
		return "", intakeerrors.NewExtractionError(imagePath, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", intakeerrors.NewExtractionError(imagePath, res.err)
		}
		t.logger.Debug("OCR complete", "image", imagePath, "chars", len(res.text), "duration", time.Since(startTime))
		return res.text, nil
	}
}

func recognizeWithTesseract(imagePath, language, tessdataPrefix string) (string, error) {
	// Create Tesseract client
	client := gosseract.NewClient()
	defer client.Close()

	if tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(tessdataPrefix); err != nil {
			return "", fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}

	if err := client.SetLanguage(language); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}

	if err := client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return text, nil
}
