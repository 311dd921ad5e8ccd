package rasterizer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intakeerrors "github.com/bloodmate/donor-service/internal/errors"
	"github.com/bloodmate/donor-service/internal/logging"
)

func TestOutputDirStripsExtension(t *testing.T) {
	assert.Equal(t, filepath.Join("uploads", "1757928452186-report"), OutputDir(filepath.Join("uploads", "1757928452186-report.pdf")))
	assert.Equal(t, filepath.Join("uploads", "scan.v2"), OutputDir(filepath.Join("uploads", "scan.v2.PDF")))
	assert.Equal(t, "noext", OutputDir("noext"))
}

func TestPageFileNamesSortInPageOrder(t *testing.T) {
	var names []string
	for i := 12; i >= 1; i-- {
		names = append(names, PageFileName(i))
	}
	sort.Strings(names)

	for i, name := range names {
		assert.Equal(t, PageFileName(i+1), name)
	}
	assert.Equal(t, "page-001.jpg", PageFileName(1))
	assert.Equal(t, "page-120.jpg", PageFileName(120))
}

func TestNewAppliesDefaults(t *testing.T) {
	r := New(&Config{Quality: 500, Logger: logging.NewNopLogger()})
	assert.Equal(t, float64(defaultDPI), r.dpi)
	assert.Equal(t, defaultQuality, r.quality)
	assert.Positive(t, r.timeout)
}

func TestRasterizeCorruptPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\nthis is not a pdf body"), 0o644))

	r := New(&Config{Logger: logging.NewNopLogger()})
	pages, err := r.Rasterize(context.Background(), path)
	require.Error(t, err)
	assert.Nil(t, pages)

	ie, ok := intakeerrors.AsIntakeError(err)
	require.True(t, ok)
	assert.Equal(t, intakeerrors.ErrorRasterizationFailed, ie.Code)
	assert.Equal(t, intakeerrors.StageRasterization, ie.Stage)
}

func TestRasterizeMissingFile(t *testing.T) {
	r := New(&Config{Logger: logging.NewNopLogger()})
	_, err := r.Rasterize(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.True(t, intakeerrors.IsFatalPipelineError(err))
}

// writePDF writes a minimal PDF with the given number of blank pages
func writePDF(t *testing.T, path string, pages int) {
	t.Helper()

	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, 0, pages)
	for i := 0; i < pages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", i+3))
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestRasterizeRendersPagesInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	writePDF(t, path, 3)

	r := New(&Config{DPI: 72, Logger: logging.NewNopLogger()})
	pages, err := r.Rasterize(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	assert.DirExists(t, filepath.Join(dir, "report"))
	for i, p := range pages {
		assert.Equal(t, i+1, p.Index)
		assert.Equal(t, path, p.Source)
		assert.Equal(t, filepath.Join(dir, "report", fmt.Sprintf("page-%03d.jpg", i+1)), p.Path)
		assert.FileExists(t, p.Path)
	}
}

func TestRasterizeZeroPages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.pdf")
	writePDF(t, path, 0)

	r := New(&Config{Logger: logging.NewNopLogger()})
	pages, err := r.Rasterize(context.Background(), path)
	require.NoError(t, err)
	assert.NotNil(t, pages)
	assert.Empty(t, pages)
	assert.NoDirExists(t, filepath.Join(dir, "empty"))
}

func TestRasterizeTimeoutCoversValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	writePDF(t, path, 3)

	r := New(&Config{Timeout: time.Nanosecond, Logger: logging.NewNopLogger()})
	pages, err := r.Rasterize(context.Background(), path)
	require.Error(t, err)
	assert.Nil(t, pages)

	ie, ok := intakeerrors.AsIntakeError(err)
	require.True(t, ok)
	assert.Equal(t, intakeerrors.ErrorRasterizationFailed, ie.Code)
	assert.Contains(t, ie.Message, "timed out")
	assert.Equal(t, time.Nanosecond.String(), ie.Details["timeout_duration"])
}
