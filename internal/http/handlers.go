package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bloodmate/donor-service/internal/domain"
	"github.com/bloodmate/donor-service/internal/donors"
	"github.com/bloodmate/donor-service/internal/eligibility"
	intakeerrors "github.com/bloodmate/donor-service/internal/errors"
	"github.com/bloodmate/donor-service/internal/intake"
	"github.com/bloodmate/donor-service/internal/logging"
	"github.com/bloodmate/donor-service/internal/qr"
	"github.com/bloodmate/donor-service/internal/storage"
)

const (
	medicalReportField = "medicalReport"
	ocrFileField       = "file"

	// files larger than this are spooled to temp files while parsing
	multipartMemory = 8 << 20
)

// DonorStore reads and updates donor records
type DonorStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Donor, error)
	GetByFirebaseUID(ctx context.Context, uid string) (*domain.Donor, error)
	List(ctx context.Context) ([]*domain.Donor, error)
	Search(ctx context.Context, bloodGroup, city string) ([]*domain.Donor, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	Ping(ctx context.Context) error
}

// Registrar creates donors, running attached documents through intake first
type Registrar interface {
	Register(ctx context.Context, sub intake.Submission) (*donors.Registration, error)
}

// Uploads stores incoming files
type Uploads interface {
	Save(r io.Reader, originalName, mimeType string) (*intake.UploadedDocument, error)
	MaxBytes() int64
}

// Intake analyzes a stored document
type Intake interface {
	Process(ctx context.Context, doc *intake.UploadedDocument) (*intake.Result, error)
}

// API holds handler dependencies
type API struct {
	donors        DonorStore
	registrar     Registrar
	uploads       Uploads
	intake        Intake
	publicBaseURL string
	logger        *logging.Logger
}

type messageResponse struct {
	Message string `json:"message"`
}

type createdResponse struct {
	Message     string              `json:"message"`
	ID          int64               `json:"id"`
	File        *string             `json:"file"`
	OCR         *string             `json:"ocr"`
	Eligibility eligibility.Verdict `json:"eligibility"`
}

type idResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

// donorRequest is the JSON body of POST /api/donors/add. Age is accepted as a
// number or a numeric string since browser forms often send the latter.
type donorRequest struct {
	Name        string      `json:"name"`
	Age         flexibleInt `json:"age"`
	BloodGroup  string      `json:"bloodgroup"`
	City        string      `json:"city"`
	FirebaseUID string      `json:"firebase_uid"`
	Status      string      `json:"status"`
}

type flexibleInt struct {
	Value *int
}

func (f *flexibleInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		f.Value = nil
		return nil
	}
	raw = strings.Trim(raw, `"`)
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("age must be an integer")
	}
	f.Value = &v
	return nil
}

func (req donorRequest) fields() domain.DonorFields {
	return domain.DonorFields{
		Name:        strings.TrimSpace(req.Name),
		Age:         req.Age.Value,
		BloodGroup:  strings.TrimSpace(req.BloodGroup),
		City:        strings.TrimSpace(req.City),
		FirebaseUID: strings.TrimSpace(req.FirebaseUID),
		Status:      strings.TrimSpace(req.Status),
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

type ocrUploadResponse struct {
	Message     string              `json:"message"`
	Filename    string              `json:"filename"`
	Text        *string             `json:"text,omitempty"`
	Eligibility eligibility.Verdict `json:"eligibility"`
}

func (a *API) root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "BloodMate Backend is running.")
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.donors.Ping(r.Context()); err != nil {
		a.logger.Ctx(r.Context()).Error("Health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"service":  "bloodmate",
			"database": "unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"service":  "bloodmate",
		"database": "ok",
	})
}

// addDonor handles POST /api/donors/add
func (a *API) addDonor(w http.ResponseWriter, r *http.Request) {
	var req donorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	reg, err := a.registrar.Register(r.Context(), intake.Submission{Fields: req.fields()})
	if err != nil {
		a.writeRegistrationError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, idResponse{
		Message: "Donor added successfully",
		ID:      reg.Donor.ID,
	})
}

// addDonorWithFile handles POST /api/donors/add-with-file
func (a *API) addDonorWithFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		a.writeMultipartError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	fields, err := formFields(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	sub := intake.Submission{Fields: fields}

	file, header, err := r.FormFile(medicalReportField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// registration without a report
	case err != nil:
		writeMessage(w, http.StatusBadRequest, "Could not read uploaded file")
		return
	default:
		defer file.Close()
		doc, err := a.save(file, header)
		if err != nil {
			a.writeIntakeError(w, r, err)
			return
		}
		sub.HasFile = true
		sub.Document = doc
	}

	reg, err := a.registrar.Register(r.Context(), sub)
	if err != nil {
		if sub.Document != nil && rejectedRegistration(err) {
			a.discardUpload(r, sub.Document)
		}
		a.writeRegistrationError(w, r, err)
		return
	}

	resp := createdResponse{
		Message:     "Donor added successfully",
		ID:          reg.Donor.ID,
		Eligibility: eligibility.NotChecked(),
	}
	if reg.Intake != nil {
		resp.File = reg.Intake.FileName
		resp.OCR = reg.Intake.ExtractedText
		resp.Eligibility = reg.Intake.Eligibility
	}
	writeJSON(w, http.StatusCreated, resp)
}

// listDonors handles GET /api/donors/all
func (a *API) listDonors(w http.ResponseWriter, r *http.Request) {
	list, err := a.donors.List(r.Context())
	if err != nil {
		a.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// searchDonors handles GET /api/donors/search?bloodgroup=&city=
func (a *API) searchDonors(w http.ResponseWriter, r *http.Request) {
	bloodGroup := normalizeBloodGroup(r.URL.Query().Get("bloodgroup"))
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if bloodGroup == "" || city == "" {
		writeMessage(w, http.StatusBadRequest, "bloodgroup and city are required")
		return
	}

	list, err := a.donors.Search(r.Context(), bloodGroup, city)
	if err != nil {
		a.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// donorByUID handles GET /api/donors/by-uid/{uid}
func (a *API) donorByUID(w http.ResponseWriter, r *http.Request) {
	d, err := a.donors.GetByFirebaseUID(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		a.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// donorByID handles GET /api/donors/{id}
func (a *API) donorByID(w http.ResponseWriter, r *http.Request) {
	id, ok := donorID(w, r)
	if !ok {
		return
	}

	d, err := a.donors.GetByID(r.Context(), id)
	if err != nil {
		a.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// updateStatus handles PUT /api/donors/{id}/status
func (a *API) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := donorID(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if !domain.IsValidStatus(req.Status) {
		writeMessage(w, http.StatusBadRequest,
			"Invalid status. Must be one of: "+strings.Join(domain.ValidStatuses, ", "))
		return
	}

	if err := a.donors.UpdateStatus(r.Context(), id, req.Status); err != nil {
		a.writeStorageError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Status updated successfully")
}

// donorQR handles GET /api/donors/{id}/qr
func (a *API) donorQR(w http.ResponseWriter, r *http.Request) {
	id, ok := donorID(w, r)
	if !ok {
		return
	}

	if _, err := a.donors.GetByID(r.Context(), id); err != nil {
		a.writeStorageError(w, r, err)
		return
	}

	size := 0
	if s := r.URL.Query().Get("size"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 64 || v > 1024 {
			writeMessage(w, http.StatusBadRequest, "size must be between 64 and 1024")
			return
		}
		size = v
	}

	png, err := qr.Encode(qr.DonorURL(a.publicBaseURL, id), size)
	if err != nil {
		a.logger.Ctx(r.Context()).Error("QR encoding failed", "donor_id", id, "err", err)
		writeMessage(w, http.StatusInternalServerError, "Could not generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// ocrUpload handles POST /api/ocr/upload
func (a *API) ocrUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file uploaded"})
			return
		}
		a.writeMultipartError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(ocrFileField)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file uploaded"})
		return
	}
	defer file.Close()

	doc, err := a.save(file, header)
	if err != nil {
		a.writeIntakeError(w, r, err)
		return
	}

	result, err := a.intake.Process(r.Context(), doc)
	if err != nil {
		a.writeIntakeError(w, r, err)
		return
	}

	resp := ocrUploadResponse{
		Message:     "File uploaded and OCR complete",
		Filename:    doc.StoredName,
		Text:        result.ExtractedText,
		Eligibility: result.Eligibility,
	}
	if result.ExtractedText == nil {
		resp.Message = "File uploaded (no OCR for this file type)"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) save(file multipart.File, header *multipart.FileHeader) (*intake.UploadedDocument, error) {
	if a.uploads.MaxBytes() > 0 && header.Size > a.uploads.MaxBytes() {
		return nil, intakeerrors.NewUploadTooLargeError(header.Filename, a.uploads.MaxBytes())
	}
	return a.uploads.Save(file, header.Filename, header.Header.Get("Content-Type"))
}

func formFields(r *http.Request) (domain.DonorFields, error) {
	f := domain.DonorFields{
		Name:        strings.TrimSpace(r.FormValue("name")),
		BloodGroup:  strings.TrimSpace(r.FormValue("bloodgroup")),
		City:        strings.TrimSpace(r.FormValue("city")),
		FirebaseUID: strings.TrimSpace(r.FormValue("firebase_uid")),
		Status:      strings.TrimSpace(r.FormValue("status")),
	}

	if raw := strings.TrimSpace(r.FormValue("age")); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil {
			return f, fmt.Errorf("age must be an integer")
		}
		f.Age = &age
	}
	return f, nil
}

// normalizeBloodGroup restores a "+" that arrived unescaped in a query
// string and was decoded as a space ("O+" -> "O ").
func normalizeBloodGroup(v string) string {
	t := strings.TrimSpace(v)
	if t != "" && strings.HasSuffix(v, " ") && !strings.HasSuffix(t, "+") && !strings.HasSuffix(t, "-") {
		return t + "+"
	}
	return t
}

func donorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid donor id")
		return 0, false
	}
	return id, true
}

// rejectedRegistration reports errors that refuse the donor outright, leaving
// nothing worth keeping from the upload
func rejectedRegistration(err error) bool {
	var dup *donors.DuplicateError
	return errors.As(err, &dup) || errors.Is(err, donors.ErrInvalidStatus)
}

func (a *API) discardUpload(r *http.Request, doc *intake.UploadedDocument) {
	if err := os.Remove(doc.Path); err != nil && !os.IsNotExist(err) {
		a.logger.Ctx(r.Context()).Warn("Failed to remove rejected upload", "path", doc.Path, "err", err)
	}
}

func (a *API) writeRegistrationError(w http.ResponseWriter, r *http.Request, err error) {
	var dup *donors.DuplicateError
	switch {
	case errors.As(err, &dup):
		writeJSON(w, http.StatusBadRequest, idResponse{
			Message: "Donor already exists for this user",
			ID:      dup.ExistingID,
		})
	case errors.Is(err, donors.ErrInvalidStatus):
		writeMessage(w, http.StatusBadRequest,
			"Invalid status. Must be one of: "+strings.Join(domain.ValidStatuses, ", "))
	default:
		if _, ok := intakeerrors.AsIntakeError(err); ok {
			a.writeIntakeError(w, r, err)
			return
		}
		a.writeStorageError(w, r, err)
	}
}

func (a *API) writeIntakeError(w http.ResponseWriter, r *http.Request, err error) {
	ie, ok := intakeerrors.AsIntakeError(err)
	if !ok {
		a.logger.Ctx(r.Context()).Error("Upload handling failed", "err", err)
		writeMessage(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	status := http.StatusInternalServerError
	switch ie.Code {
	case intakeerrors.ErrorUploadRejected:
		status = http.StatusBadRequest
	case intakeerrors.ErrorUploadTooLarge:
		status = http.StatusRequestEntityTooLarge
	case intakeerrors.ErrorStorageFailed:
		a.writeStorageError(w, r, err)
		return
	}

	body := map[string]interface{}{
		"message": ie.Message,
		"stage":   ie.Stage,
		"code":    string(ie.Code),
		"details": ie.Diagnostic(),
	}
	if page, ok := ie.Details["page"]; ok {
		body["page"] = page
	}

	if status >= http.StatusInternalServerError {
		a.logger.Ctx(r.Context()).Error("Intake failed", "code", ie.Code, "stage", ie.Stage, "err", err)
	}
	writeJSON(w, status, body)
}

func (a *API) writeMultipartError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]interface{}{
			"message": fmt.Sprintf("File exceeds the %d byte upload limit", a.uploads.MaxBytes()),
			"stage":   intakeerrors.StageUpload,
			"code":    string(intakeerrors.ErrorUploadTooLarge),
		})
		return
	}
	writeMessage(w, http.StatusBadRequest, "Expected multipart/form-data body")
}

func (a *API) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrDonorNotFound) {
		writeMessage(w, http.StatusNotFound, "Donor not found")
		return
	}
	a.logger.Ctx(r.Context()).Error("Database error", "err", err)
	writeMessage(w, http.StatusInternalServerError, "Database error")
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
