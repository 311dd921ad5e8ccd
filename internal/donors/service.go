// Package donors registers donors, running any attached medical report
// through the intake pipeline before the record is written.
package donors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bloodmate/donor-service/internal/domain"
	"github.com/bloodmate/donor-service/internal/intake"
	"github.com/bloodmate/donor-service/internal/logging"
	"github.com/bloodmate/donor-service/internal/storage"
)

// ErrInvalidStatus is returned for a submitted status outside domain.ValidStatuses
var ErrInvalidStatus = errors.New("invalid donor status")

// DuplicateError reports an existing donor for the submitted identity
type DuplicateError struct {
	FirebaseUID string
	ExistingID  int64
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("donor already exists for this user (id=%d)", e.ExistingID)
}

// Is lets errors.Is match the storage sentinel
func (e *DuplicateError) Is(target error) bool {
	return target == storage.ErrDuplicateFirebaseUID
}

// Intake analyzes an uploaded document
type Intake interface {
	Process(ctx context.Context, doc *intake.UploadedDocument) (*intake.Result, error)
}

// Store persists donors
type Store interface {
	Create(ctx context.Context, d *domain.Donor) (int64, error)
	GetByFirebaseUID(ctx context.Context, uid string) (*domain.Donor, error)
}

// Registration is the outcome of a successful Register call
type Registration struct {
	Donor  *domain.Donor
	Intake *intake.Result // nil when no file was submitted
}

// Service registers donors
type Service struct {
	intake Intake
	store  Store
	logger *logging.Logger
}

// NewService creates a registration service
func NewService(in Intake, store Store, logger *logging.Logger) (*Service, error) {
	if in == nil {
		return nil, fmt.Errorf("intake pipeline is required")
	}
	if store == nil {
		return nil, fmt.Errorf("donor store is required")
	}
	if logger == nil {
		logger = logging.NewLogger("donors")
	}
	return &Service{intake: in, store: store, logger: logger}, nil
}

// Register validates the submission, analyzes the attached document if any,
// and only then writes the donor. A pipeline failure leaves the database
// untouched.
func (s *Service) Register(ctx context.Context, sub intake.Submission) (*Registration, error) {
	startTime := time.Now()
	fields := sub.Fields

	if fields.Status != "" && !domain.IsValidStatus(fields.Status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, fields.Status)
	}

	if err := s.checkDuplicate(ctx, fields.FirebaseUID); err != nil {
		return nil, err
	}

	donor := domain.NewDonor(fields)
	reg := &Registration{Donor: donor}

	if sub.HasFile && sub.Document != nil {
		result, err := s.intake.Process(ctx, sub.Document)
		if err != nil {
			s.logger.Warn("Registration aborted by intake failure", "file", sub.Document.StoredName, "err", err)
			return nil, err
		}

		donor.MedicalReport = result.FileName
		donor.OCRText = result.ExtractedText
		if result.Eligibility.Evaluated() {
			reason := result.Eligibility.Reason
			donor.Eligible = result.Eligibility.Eligible
			donor.EligibilityReason = &reason
		}
		reg.Intake = result
	}

	if _, err := s.store.Create(ctx, donor); err != nil {
		if errors.Is(err, storage.ErrDuplicateFirebaseUID) {
			// lost a race with a concurrent registration
			return nil, s.duplicateOf(ctx, fields.FirebaseUID)
		}
		return nil, err
	}

	s.logger.Info("Donor registered",
		"donor_id", donor.ID,
		"with_report", reg.Intake != nil,
		"duration", time.Since(startTime))

	return reg, nil
}

func (s *Service) checkDuplicate(ctx context.Context, uid string) error {
	if uid == "" {
		return nil
	}

	existing, err := s.store.GetByFirebaseUID(ctx, uid)
	if errors.Is(err, storage.ErrDonorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Info("Donor already exists for identity", "firebase_uid", uid, "donor_id", existing.ID)
	return &DuplicateError{FirebaseUID: uid, ExistingID: existing.ID}
}

func (s *Service) duplicateOf(ctx context.Context, uid string) error {
	dup := &DuplicateError{FirebaseUID: uid}
	if existing, err := s.store.GetByFirebaseUID(ctx, uid); err == nil {
		dup.ExistingID = existing.ID
	}
	return dup
}
