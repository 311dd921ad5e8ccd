/**
 * Storage Manager
 *
 * Coordinates the donor repository with the optional Redis lookup cache.
 * The database is the source of truth: cache failures are logged and the
 * request falls through to the repository.
 */

package storage

import (
	"context"
	"fmt"

	"github.com/bloodmate/donor-service/internal/domain"
	"github.com/bloodmate/donor-service/internal/logging"
)

// DonorCache caches donor records by ID and fans out status changes
type DonorCache interface {
	Get(ctx context.Context, id int64) (*domain.Donor, bool, error)
	Set(ctx context.Context, donor *domain.Donor) error
	Invalidate(ctx context.Context, id int64) error
	PublishStatusChange(ctx context.Context, id int64, status string) error
}

// Manager is the donor store used by the HTTP layer
type Manager struct {
	repo   *Repository
	cache  DonorCache
	logger *logging.Logger
}

// NewManager creates a storage manager. cache may be nil.
func NewManager(repo *Repository, cache DonorCache, logger *logging.Logger) (*Manager, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if logger == nil {
		logger = logging.NewLogger("storage")
	}
	return &Manager{repo: repo, cache: cache, logger: logger}, nil
}

// Create persists a new donor
func (m *Manager) Create(ctx context.Context, d *domain.Donor) (int64, error) {
	id, err := m.repo.Create(ctx, d)
	if err != nil {
		return 0, err
	}
	m.logger.Info("Donor stored", "donor_id", id, "has_report", d.MedicalReport != nil)
	return id, nil
}

// GetByID reads through the cache
func (m *Manager) GetByID(ctx context.Context, id int64) (*domain.Donor, error) {
	if m.cache != nil {
		cached, ok, err := m.cache.Get(ctx, id)
		if err != nil {
			m.logger.Warn("Donor cache read failed", "donor_id", id, "err", err)
		} else if ok {
			return cached, nil
		}
	}

	d, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		if err := m.cache.Set(ctx, d); err != nil {
			m.logger.Warn("Donor cache write failed", "donor_id", id, "err", err)
		}
	}
	return d, nil
}

// GetByFirebaseUID looks up a donor by external identity
func (m *Manager) GetByFirebaseUID(ctx context.Context, uid string) (*domain.Donor, error) {
	return m.repo.GetByFirebaseUID(ctx, uid)
}

// List returns all donors
func (m *Manager) List(ctx context.Context) ([]*domain.Donor, error) {
	return m.repo.List(ctx)
}

// Search filters donors by blood group and city
func (m *Manager) Search(ctx context.Context, bloodGroup, city string) ([]*domain.Donor, error) {
	return m.repo.Search(ctx, bloodGroup, city)
}

// UpdateStatus writes the new status, drops the cached copy and announces the change
func (m *Manager) UpdateStatus(ctx context.Context, id int64, status string) error {
	if err := m.repo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}

	if m.cache != nil {
		if err := m.cache.Invalidate(ctx, id); err != nil {
			m.logger.Warn("Donor cache invalidation failed", "donor_id", id, "err", err)
		}
		if err := m.cache.PublishStatusChange(ctx, id, status); err != nil {
			m.logger.Warn("Status change publish failed", "donor_id", id, "err", err)
		}
	}

	m.logger.Info("Donor status updated", "donor_id", id, "status", status)
	return nil
}

// Ping checks database connectivity
func (m *Manager) Ping(ctx context.Context) error {
	return m.repo.Ping(ctx)
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.repo.Close()
}
