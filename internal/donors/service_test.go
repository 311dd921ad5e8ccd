package donors

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodmate/donor-service/internal/config"
	"github.com/bloodmate/donor-service/internal/domain"
	"github.com/bloodmate/donor-service/internal/eligibility"
	intakeerrors "github.com/bloodmate/donor-service/internal/errors"
	"github.com/bloodmate/donor-service/internal/intake"
	"github.com/bloodmate/donor-service/internal/logging"
	"github.com/bloodmate/donor-service/internal/rasterizer"
	"github.com/bloodmate/donor-service/internal/storage"
)

type stubExtractor map[string]string

func (s stubExtractor) Extract(ctx context.Context, path string) (string, error) {
	text, ok := s[path]
	if !ok {
		return "", errors.New("engine could not read image")
	}
	return text, nil
}

type stubRasterizer struct {
	pages []rasterizer.Page
}

func (s stubRasterizer) Rasterize(ctx context.Context, pdfPath string) ([]rasterizer.Page, error) {
	return s.pages, nil
}

type fixture struct {
	service *Service
	repo    *storage.Repository
}

func newFixture(t *testing.T, ex intake.TextExtractor, rz intake.DocumentRasterizer) *fixture {
	t.Helper()
	ctx := context.Background()

	repo, err := storage.Open(ctx, config.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Migrate(ctx))

	pipeline, err := intake.NewPipeline(&intake.PipelineConfig{
		Extractor:       ex,
		Rasterizer:      rz,
		PageConcurrency: 2,
		Logger:          logging.NewNopLogger(),
	})
	require.NoError(t, err)

	svc, err := NewService(pipeline, repo, logging.NewNopLogger())
	require.NoError(t, err)

	return &fixture{service: svc, repo: repo}
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	all, err := f.repo.List(context.Background())
	require.NoError(t, err)
	return len(all)
}

func age(v int) *int { return &v }

func TestRegisterWithoutFile(t *testing.T) {
	f := newFixture(t, stubExtractor{}, stubRasterizer{})

	reg, err := f.service.Register(context.Background(), intake.Submission{
		Fields: domain.DonorFields{Name: "Asha", Age: age(30), BloodGroup: "O+", City: "Pune", FirebaseUID: "u1"},
	})
	require.NoError(t, err)
	assert.Nil(t, reg.Intake)
	assert.Positive(t, reg.Donor.ID)
	assert.Nil(t, reg.Donor.Eligible)
	assert.Equal(t, domain.StatusAvailable, reg.Donor.Status)
	assert.Equal(t, 1, f.count(t))
}

func TestRegisterWithImageStoresVerdict(t *testing.T) {
	f := newFixture(t, stubExtractor{"/uploads/1-lab.png": "Age: 70"}, stubRasterizer{})

	reg, err := f.service.Register(context.Background(), intake.Submission{
		HasFile:  true,
		Fields:   domain.DonorFields{Name: "Old Timer", BloodGroup: "A+", City: "Goa"},
		Document: &intake.UploadedDocument{Path: "/uploads/1-lab.png", StoredName: "1-lab.png", Extension: "png"},
	})
	require.NoError(t, err)

	require.NotNil(t, reg.Intake)
	assert.Equal(t, eligibility.ReasonAgeOutOfRange, reg.Intake.Eligibility.Reason)

	stored, err := f.repo.GetByID(context.Background(), reg.Donor.ID)
	require.NoError(t, err)
	assert.Equal(t, "1-lab.png", *stored.MedicalReport)
	assert.Equal(t, "Age: 70", *stored.OCRText)
	require.NotNil(t, stored.Eligible)
	assert.False(t, *stored.Eligible)
	assert.Equal(t, eligibility.ReasonAgeOutOfRange, *stored.EligibilityReason)
}

func TestRegisterWithUnsupportedFileKeepsFileName(t *testing.T) {
	f := newFixture(t, stubExtractor{}, stubRasterizer{})

	reg, err := f.service.Register(context.Background(), intake.Submission{
		HasFile:  true,
		Fields:   domain.DonorFields{Name: "Doc Writer"},
		Document: &intake.UploadedDocument{Path: "/uploads/1-notes.docx", StoredName: "1-notes.docx", Extension: "docx"},
	})
	require.NoError(t, err)

	stored, err := f.repo.GetByID(context.Background(), reg.Donor.ID)
	require.NoError(t, err)
	assert.Equal(t, "1-notes.docx", *stored.MedicalReport)
	assert.Nil(t, stored.OCRText)
	assert.Nil(t, stored.Eligible)
	assert.Nil(t, stored.EligibilityReason)
}

func TestRegisterAbortsWithoutWriteOnPageFailure(t *testing.T) {
	dir := t.TempDir()
	pages := []rasterizer.Page{
		{Index: 1, Path: filepath.Join(dir, "r", "page-001.jpg")},
		{Index: 2, Path: filepath.Join(dir, "r", "page-002.jpg")},
		{Index: 3, Path: filepath.Join(dir, "r", "page-003.jpg")},
	}
	// page 2 is missing from the stub so its extraction fails
	ex := stubExtractor{pages[0].Path: "Page 1", pages[2].Path: "Page 3"}
	f := newFixture(t, ex, stubRasterizer{pages: pages})

	_, err := f.service.Register(context.Background(), intake.Submission{
		HasFile:  true,
		Fields:   domain.DonorFields{Name: "Asha", FirebaseUID: "u9"},
		Document: intake.NewLocalDocument(filepath.Join(dir, "r.pdf")),
	})
	require.Error(t, err)
	assert.True(t, intakeerrors.IsFatalPipelineError(err))
	assert.Zero(t, f.count(t))
}

func TestRegisterRejectsDuplicateIdentity(t *testing.T) {
	f := newFixture(t, stubExtractor{}, stubRasterizer{})
	ctx := context.Background()

	first, err := f.service.Register(ctx, intake.Submission{Fields: domain.DonorFields{Name: "A", FirebaseUID: "same"}})
	require.NoError(t, err)

	_, err = f.service.Register(ctx, intake.Submission{Fields: domain.DonorFields{Name: "B", FirebaseUID: "same"}})
	require.Error(t, err)

	var dup *DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, first.Donor.ID, dup.ExistingID)
	assert.ErrorIs(t, err, storage.ErrDuplicateFirebaseUID)
	assert.Equal(t, 1, f.count(t))
}

func TestRegisterRejectsInvalidStatus(t *testing.T) {
	f := newFixture(t, stubExtractor{}, stubRasterizer{})

	_, err := f.service.Register(context.Background(), intake.Submission{
		Fields: domain.DonorFields{Name: "A", Status: "Busy"},
	})
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Zero(t, f.count(t))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil)
	assert.Error(t, err)
}
