package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bloodmate/donor-service/internal/logging"
)

// Server runs the API until its context is cancelled
type Server struct {
	srv    *http.Server
	logger *logging.Logger
}

// NewServer binds handler to :port. There is no write timeout: upload
// routes are bounded by the OCR and rasterization deadlines instead.
func NewServer(port string, handler http.Handler, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewLogger("http")
	}
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		logger: logger,
	}
}

// Run serves until ctx is done, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server is running", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
