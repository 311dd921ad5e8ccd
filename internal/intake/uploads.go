package intake

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	intakeerrors "github.com/bloodmate/donor-service/internal/errors"
)

// FilenameStrategy names a stored upload given the client's original name.
type FilenameStrategy func(originalName string) string

// TimestampFilename prefixes the original base name with unix milliseconds.
func TimestampFilename(originalName string) string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), safeBase(originalName))
}

// UUIDFilename discards the original name and keeps only its extension.
func UUIDFilename(originalName string) string {
	ext := strings.ToLower(filepath.Ext(safeBase(originalName)))
	return uuid.NewString() + ext
}

// FilenameStrategyByName resolves the configured strategy ("timestamp" or "uuid").
func FilenameStrategyByName(name string) (FilenameStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "timestamp":
		return TimestampFilename, nil
	case "uuid":
		return UUIDFilename, nil
	default:
		return nil, fmt.Errorf("unknown upload filename strategy %q", name)
	}
}

// safeBase strips any directory components a client may have sent.
func safeBase(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." {
		return "upload"
	}
	return base
}

// UploadStore writes client uploads into a single directory.
type UploadStore struct {
	dir      string
	filename FilenameStrategy
	maxBytes int64
	allowed  map[string]bool
}

// UploadStoreConfig holds upload store settings
type UploadStoreConfig struct {
	Dir               string
	Filename          FilenameStrategy
	MaxBytes          int64
	AllowedExtensions []string // empty allows everything
}

// NewUploadStore creates the upload directory if needed
func NewUploadStore(cfg *UploadStoreConfig) (*UploadStore, error) {
	if cfg == nil || cfg.Dir == "" {
		return nil, fmt.Errorf("upload dir is required")
	}

	// stored paths end up in cleanup tasks run by a worker with its own working dir
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir %s: %w", cfg.Dir, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}

	filename := cfg.Filename
	if filename == nil {
		filename = TimestampFilename
	}

	var allowed map[string]bool
	if len(cfg.AllowedExtensions) > 0 {
		allowed = make(map[string]bool, len(cfg.AllowedExtensions))
		for _, ext := range cfg.AllowedExtensions {
			allowed[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))] = true
		}
	}

	return &UploadStore{
		dir:      dir,
		filename: filename,
		maxBytes: cfg.MaxBytes,
		allowed:  allowed,
	}, nil
}

// Dir returns the upload directory
func (s *UploadStore) Dir() string {
	return s.dir
}

// MaxBytes returns the per-file size limit, 0 meaning unlimited
func (s *UploadStore) MaxBytes() int64 {
	return s.maxBytes
}

// Save streams r to a new file and returns its description. Files over the
// size limit are removed before the error is returned.
func (s *UploadStore) Save(r io.Reader, originalName, mimeType string) (*UploadedDocument, error) {
	ext := extensionOf(safeBase(originalName))
	if s.allowed != nil && !s.allowed[ext] {
		return nil, intakeerrors.NewUploadRejectedError(originalName,
			fmt.Sprintf("File type %q is not accepted", ext))
	}

	stored := s.filename(originalName)
	path := filepath.Join(s.dir, stored)

	if err := s.writeWithLimit(path, r); err != nil {
		return nil, err
	}

	return &UploadedDocument{
		Path:         path,
		StoredName:   stored,
		OriginalName: originalName,
		MimeType:     mimeType,
		Extension:    ext,
	}, nil
}

func (s *UploadStore) writeWithLimit(path string, r io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}

	cleanup := func(err error) error {
		out.Close()
		os.Remove(path)
		return err
	}

	src := r
	if s.maxBytes > 0 {
		// one extra byte tells "exactly at the limit" from "over it"
		src = io.LimitReader(r, s.maxBytes+1)
	}

	n, err := io.Copy(out, src)
	if err != nil {
		return cleanup(fmt.Errorf("write upload file: %w", err))
	}

	if s.maxBytes > 0 && n > s.maxBytes {
		return cleanup(intakeerrors.NewUploadTooLargeError(filepath.Base(path), s.maxBytes))
	}

	if err := out.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close upload file: %w", err)
	}

	return nil
}
