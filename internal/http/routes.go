package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/bloodmate/donor-service/internal/logging"
)

const (
	jsonBodyLimit = 1 << 20
	// room for the non-file form fields next to the file itself
	multipartOverhead = 1 << 20
)

// RouterConfig wires handler dependencies
type RouterConfig struct {
	Donors         DonorStore
	Registrar      Registrar
	Uploads        Uploads
	Intake         Intake
	PublicBaseURL  string
	AllowedOrigins []string
	RequestTimeout time.Duration
	Logger         *logging.Logger
}

// NewRouter creates the API router with all routes configured
func NewRouter(cfg *RouterConfig) (http.Handler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("router config is required")
	}
	if cfg.Donors == nil || cfg.Registrar == nil || cfg.Uploads == nil || cfg.Intake == nil {
		return nil, fmt.Errorf("donors, registrar, uploads and intake are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("http")
	}

	api := &API{
		donors:        cfg.Donors,
		registrar:     cfg.Registrar,
		uploads:       cfg.Uploads,
		intake:        cfg.Intake,
		publicBaseURL: cfg.PublicBaseURL,
		logger:        logger,
	}

	uploadLimit := int64(0)
	if cfg.Uploads.MaxBytes() > 0 {
		uploadLimit = cfg.Uploads.MaxBytes() + multipartOverhead
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(cfg.AllowedOrigins))

	timeout := func(next http.Handler) http.Handler { return next }
	if cfg.RequestTimeout > 0 {
		timeout = chimiddleware.Timeout(cfg.RequestTimeout)
	}

	r.With(timeout).Get("/", api.root)
	r.With(timeout).Get("/health", api.health)

	// Upload routes run without the request timeout: OCR and rasterization
	// carry their own per-call deadlines and a multi-page PDF can outlast it.
	r.Route("/api/donors", func(r chi.Router) {
		r.With(MaxBodySize(uploadLimit)).Post("/add-with-file", api.addDonorWithFile)

		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.With(MaxBodySize(jsonBodyLimit)).Post("/add", api.addDonor)
			r.Get("/all", api.listDonors)
			r.Get("/search", api.searchDonors)
			r.Get("/by-uid/{uid}", api.donorByUID)
			r.Get("/{id}", api.donorByID)
			r.Get("/{id}/qr", api.donorQR)
			r.With(MaxBodySize(jsonBodyLimit)).Put("/{id}/status", api.updateStatus)
		})
	})

	r.Route("/api/ocr", func(r chi.Router) {
		r.With(MaxBodySize(uploadLimit)).Post("/upload", api.ocrUpload)
	})

	return r, nil
}
