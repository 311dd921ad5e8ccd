package intake

import (
	"path/filepath"
	"strings"

	"github.com/bloodmate/donor-service/internal/domain"
	"github.com/bloodmate/donor-service/internal/eligibility"
)

// UploadedDocument is a file received from a client and already stored on disk.
type UploadedDocument struct {
	Path         string // location on local disk
	StoredName   string // name under the upload directory
	OriginalName string
	MimeType     string
	Extension    string // lower-case, without the dot
}

// NewLocalDocument describes a file that already exists on disk, such as one
// passed to the scan command.
func NewLocalDocument(path string) *UploadedDocument {
	name := filepath.Base(path)
	return &UploadedDocument{
		Path:         path,
		StoredName:   name,
		OriginalName: name,
		Extension:    extensionOf(name),
	}
}

// ext returns the document extension, falling back to the original filename.
func (d *UploadedDocument) ext() string {
	if d.Extension != "" {
		return strings.ToLower(strings.TrimPrefix(d.Extension, "."))
	}
	return extensionOf(d.OriginalName)
}

func extensionOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Submission is one donor registration request. HasFile is true only when
// Document is set.
type Submission struct {
	HasFile  bool
	Fields   domain.DonorFields
	Document *UploadedDocument
}

// Result is what the pipeline hands back to the donor writer.
type Result struct {
	FileName      *string             `json:"fileName"`
	ExtractedText *string             `json:"extractedText"`
	Eligibility   eligibility.Verdict `json:"eligibility"`
	PageCount     int                 `json:"pageCount,omitempty"`
}

func notChecked(fileName *string) *Result {
	return &Result{
		FileName:    fileName,
		Eligibility: eligibility.NotChecked(),
	}
}

func strPtr(s string) *string {
	return &s
}
