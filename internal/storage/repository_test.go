package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodmate/donor-service/internal/config"
	"github.com/bloodmate/donor-service/internal/domain"
	intakeerrors "github.com/bloodmate/donor-service/internal/errors"
)

func newSQLiteRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(context.Background(), config.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "user@/db")
	assert.Error(t, err)

	_, err = Open(context.Background(), config.DriverSQLite, "")
	assert.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	repo := newSQLiteRepository(t)
	assert.NoError(t, repo.Migrate(context.Background()))
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepository(t)

	d := domain.NewDonor(domain.DonorFields{
		Name: "Asha", Age: intPtr(29), BloodGroup: "O+", City: "Pune", FirebaseUID: "uid-1",
	})
	d.MedicalReport = strPtr("1757928452186-report.pdf")
	d.OCRText = strPtr("Age: 29\nHemoglobin: 13.1")
	d.Eligible = boolPtr(true)
	d.EligibilityReason = strPtr("Eligible for blood donation")

	id, err := repo.Create(ctx, d)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, id, d.ID)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.Name)
	require.NotNil(t, got.Age)
	assert.Equal(t, 29, *got.Age)
	assert.Equal(t, domain.StatusAvailable, got.Status)
	require.NotNil(t, got.Eligible)
	assert.True(t, *got.Eligible)
	assert.Equal(t, "1757928452186-report.pdf", *got.MedicalReport)
	assert.Equal(t, "Age: 29\nHemoglobin: 13.1", *got.OCRText)
	assert.False(t, got.CreatedAt.IsZero())

	byUID, err := repo.GetByFirebaseUID(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, id, byUID.ID)
}

func TestCreateWithoutReportLeavesColumnsNull(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepository(t)

	id, err := repo.Create(ctx, domain.NewDonor(domain.DonorFields{Name: "Ravi", BloodGroup: "A-", City: "Delhi"}))
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.Age)
	assert.Nil(t, got.FirebaseUID)
	assert.Nil(t, got.MedicalReport)
	assert.Nil(t, got.OCRText)
	assert.Nil(t, got.Eligible)
	assert.Nil(t, got.EligibilityReason)
}

func TestCreateDuplicateFirebaseUID(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepository(t)

	_, err := repo.Create(ctx, domain.NewDonor(domain.DonorFields{Name: "A", FirebaseUID: "dup"}))
	require.NoError(t, err)

	_, err = repo.Create(ctx, domain.NewDonor(domain.DonorFields{Name: "B", FirebaseUID: "dup"}))
	assert.ErrorIs(t, err, ErrDuplicateFirebaseUID)

	// donors without an identity never collide
	_, err = repo.Create(ctx, domain.NewDonor(domain.DonorFields{Name: "C"}))
	require.NoError(t, err)
	_, err = repo.Create(ctx, domain.NewDonor(domain.DonorFields{Name: "D"}))
	require.NoError(t, err)
}

func TestGetMissingDonor(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepository(t)

	_, err := repo.GetByID(ctx, 42)
	assert.ErrorIs(t, err, ErrDonorNotFound)

	_, err = repo.GetByFirebaseUID(ctx, "nobody")
	assert.ErrorIs(t, err, ErrDonorNotFound)

	_, err = repo.GetByFirebaseUID(ctx, "")
	assert.ErrorIs(t, err, ErrDonorNotFound)
}

func TestListAndSearch(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepository(t)

	for _, f := range []domain.DonorFields{
		{Name: "A", BloodGroup: "O+", City: "Pune"},
		{Name: "B", BloodGroup: "B+", City: "Pune"},
		{Name: "C", BloodGroup: "O+", City: "Mumbai"},
		{Name: "D", BloodGroup: "O+", City: "Pune"},
	} {
		_, err := repo.Create(ctx, domain.NewDonor(f))
		require.NoError(t, err)
	}

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	found, err := repo.Search(ctx, "O+", "Pune")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "A", found[0].Name)
	assert.Equal(t, "D", found[1].Name)

	none, err := repo.Search(ctx, "AB-", "Pune")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepository(t)

	id, err := repo.Create(ctx, domain.NewDonor(domain.DonorFields{Name: "A"}))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, id, domain.StatusRecentlyDonated))
	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRecentlyDonated, got.Status)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, id+100, domain.StatusInactive), ErrDonorNotFound)
	assert.Error(t, repo.UpdateStatus(ctx, id, "Sleeping"))
}

func TestClosedRepositoryReportsStorageFailure(t *testing.T) {
	repo := newSQLiteRepository(t)
	require.NoError(t, repo.Close())

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDonorNotFound))

	ie, ok := intakeerrors.AsIntakeError(err)
	require.True(t, ok)
	assert.Equal(t, intakeerrors.ErrorStorageFailed, ie.Code)
}
