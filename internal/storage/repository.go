/**
 * Donor repository
 *
 * Persists donor records in PostgreSQL (production) or SQLite (local runs and
 * tests). Both drivers accept $N placeholders and RETURNING, so the queries
 * are shared and only the DDL differs.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/bloodmate/donor-service/internal/config"
	"github.com/bloodmate/donor-service/internal/domain"
	intakeerrors "github.com/bloodmate/donor-service/internal/errors"
)

var (
	// ErrDonorNotFound is returned when no donor matches a lookup or update
	ErrDonorNotFound = errors.New("donor not found")

	// ErrDuplicateFirebaseUID is returned when a second donor is inserted for the same identity
	ErrDuplicateFirebaseUID = errors.New("donor already exists for this user")
)

const donorColumns = `
	id, name, age, bloodgroup, city, firebase_uid, status,
	medical_report, ocr_text, eligible, eligibility_reason, created_at`

// Repository handles donor table operations
type Repository struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured database and verifies the connection
func Open(ctx context.Context, driver, dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	if driver != config.DriverPostgres && driver != config.DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == config.DriverSQLite {
		// a single connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(2 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db, driver: driver}, nil
}

// Driver returns the database driver name
func (r *Repository) Driver() string {
	return r.driver
}

// Migrate creates the donors table and its indexes if they do not exist
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schemaFor(r.driver) {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return intakeerrors.NewStorageFailedError("migrate donors schema", err)
		}
	}
	return nil
}

// Create inserts a donor and sets its ID and CreatedAt
func (r *Repository) Create(ctx context.Context, d *domain.Donor) (int64, error) {
	if d == nil {
		return 0, fmt.Errorf("donor is required")
	}

	if d.Status == "" {
		d.Status = domain.StatusAvailable
	}
	createdAt := time.Now().UTC().Truncate(time.Second)

	query := `
		INSERT INTO donors (
			name, age, bloodgroup, city, firebase_uid, status,
			medical_report, ocr_text, eligible, eligibility_reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		query,
		d.Name,                          // $1
		nullInt(d.Age),                  // $2
		d.BloodGroup,                    // $3
		d.City,                          // $4
		nullString(d.FirebaseUID),       // $5
		d.Status,                        // $6
		nullString(d.MedicalReport),     // $7
		nullString(d.OCRText),           // $8
		nullBool(d.Eligible),            // $9
		nullString(d.EligibilityReason), // $10
		createdAt,                       // $11
	).Scan(&id)

	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateFirebaseUID
		}
		return 0, intakeerrors.NewStorageFailedError("insert donor", err)
	}

	d.ID = id
	d.CreatedAt = createdAt
	return id, nil
}

// GetByID retrieves a donor by primary key
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Donor, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+donorColumns+` FROM donors WHERE id = $1`, id)
	d, err := scanDonor(row)
	if err == sql.ErrNoRows {
		return nil, ErrDonorNotFound
	}
	if err != nil {
		return nil, intakeerrors.NewStorageFailedError("get donor", err)
	}
	return d, nil
}

// GetByFirebaseUID retrieves the donor registered by an external identity
func (r *Repository) GetByFirebaseUID(ctx context.Context, uid string) (*domain.Donor, error) {
	if uid == "" {
		return nil, ErrDonorNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+donorColumns+` FROM donors WHERE firebase_uid = $1`, uid)
	d, err := scanDonor(row)
	if err == sql.ErrNoRows {
		return nil, ErrDonorNotFound
	}
	if err != nil {
		return nil, intakeerrors.NewStorageFailedError("get donor by uid", err)
	}
	return d, nil
}

// List returns every donor ordered by ID
func (r *Repository) List(ctx context.Context) ([]*domain.Donor, error) {
	return r.query(ctx, "list donors", `SELECT `+donorColumns+` FROM donors ORDER BY id`)
}

// Search returns donors with an exact blood group and city match
func (r *Repository) Search(ctx context.Context, bloodGroup, city string) ([]*domain.Donor, error) {
	return r.query(ctx, "search donors",
		`SELECT `+donorColumns+` FROM donors WHERE bloodgroup = $1 AND city = $2 ORDER BY id`,
		bloodGroup, city)
}

// UpdateStatus sets a donor's availability status
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string) error {
	if !domain.IsValidStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}

	result, err := r.db.ExecContext(ctx, `UPDATE donors SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return intakeerrors.NewStorageFailedError("update donor status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return intakeerrors.NewStorageFailedError("update donor status", err)
	}
	if affected == 0 {
		return ErrDonorNotFound
	}
	return nil
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) query(ctx context.Context, op, query string, args ...interface{}) ([]*domain.Donor, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, intakeerrors.NewStorageFailedError(op, err)
	}
	defer rows.Close()

	donors := []*domain.Donor{}
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, intakeerrors.NewStorageFailedError(op, err)
		}
		donors = append(donors, d)
	}

	if err := rows.Err(); err != nil {
		return nil, intakeerrors.NewStorageFailedError(op, err)
	}
	return donors, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDonor(row rowScanner) (*domain.Donor, error) {
	var (
		d                                   domain.Donor
		age                                 sql.NullInt64
		firebaseUID, medicalReport, ocrText sql.NullString
		eligibilityReason                   sql.NullString
		eligible                            sql.NullBool
	)

	err := row.Scan(
		&d.ID, &d.Name, &age, &d.BloodGroup, &d.City, &firebaseUID, &d.Status,
		&medicalReport, &ocrText, &eligible, &eligibilityReason, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if age.Valid {
		v := int(age.Int64)
		d.Age = &v
	}
	if eligible.Valid {
		v := eligible.Bool
		d.Eligible = &v
	}
	d.FirebaseUID = stringPtr(firebaseUID)
	d.MedicalReport = stringPtr(medicalReport)
	d.OCRText = stringPtr(ocrText)
	d.EligibilityReason = stringPtr(eligibilityReason)

	return &d, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
