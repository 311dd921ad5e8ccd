package domain

import (
	"time"
)

// Donor availability statuses accepted by the status endpoint.
const (
	StatusAvailable       = "Available"
	StatusRecentlyDonated = "Recently Donated"
	StatusUnavailable     = "Unavailable"
	StatusInactive        = "Inactive"
)

// ValidStatuses lists statuses in the order they are reported to clients.
var ValidStatuses = []string{StatusAvailable, StatusRecentlyDonated, StatusUnavailable, StatusInactive}

// IsValidStatus reports whether s is one of ValidStatuses.
func IsValidStatus(s string) bool {
	for _, v := range ValidStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// DonorFields are the form fields a client submits when registering.
type DonorFields struct {
	Name        string `json:"name"`
	Age         *int   `json:"age"`
	BloodGroup  string `json:"bloodgroup"`
	City        string `json:"city"`
	FirebaseUID string `json:"firebase_uid"`
	Status      string `json:"status"`
}

// Donor is a persisted donor record.
type Donor struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Age               *int      `json:"age"`
	BloodGroup        string    `json:"bloodgroup"`
	City              string    `json:"city"`
	FirebaseUID       *string   `json:"firebase_uid"`
	Status            string    `json:"status"`
	MedicalReport     *string   `json:"medical_report"`
	OCRText           *string   `json:"ocr_text"`
	Eligible          *bool     `json:"eligible"`
	EligibilityReason *string   `json:"eligibility_reason"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewDonor builds an unsaved donor from submitted fields, defaulting the status.
func NewDonor(f DonorFields) *Donor {
	d := &Donor{
		Name:       f.Name,
		Age:        f.Age,
		BloodGroup: f.BloodGroup,
		City:       f.City,
		Status:     f.Status,
	}
	if d.Status == "" {
		d.Status = StatusAvailable
	}
	if f.FirebaseUID != "" {
		uid := f.FirebaseUID
		d.FirebaseUID = &uid
	}
	return d
}
