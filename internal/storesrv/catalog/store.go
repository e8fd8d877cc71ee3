// Package catalog is the authoritative registry of tenant identity records.
// It is backed by the shared control-plane database and holds no per-tenant
// data; all operations are strongly consistent reads and writes.
package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/merchantry/merchantry/internal/common/apperrors"
)

// Store is the tenant catalog contract. Creation and deletion of records is
// driven by the lifecycle coordinator, never by request handlers.
type Store interface {
	// Create inserts a new tenant record. The tenant's ID and timestamps are
	// assigned here. Fails with ErrDuplicateDomain if the domain is taken and
	// ErrValidation if required fields are blank.
	Create(ctx context.Context, tenant *Tenant) apperrors.Error
	// GetByDomain returns the tenant addressed by domain, or ErrNotFound.
	GetByDomain(ctx context.Context, domain string) (*Tenant, apperrors.Error)
	// GetByID returns the tenant with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, apperrors.Error)
	// List returns every tenant record.
	List(ctx context.Context) ([]*Tenant, apperrors.Error)
	// UpdateStatus sets the tenant's status. Fails with ErrNotFound if no such
	// tenant and ErrInvalidStatus for a status outside the enumerated set.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Tenant, apperrors.Error)
	// Delete removes the catalog record only. Storage and pools are the
	// lifecycle coordinator's responsibility.
	Delete(ctx context.Context, id uuid.UUID) apperrors.Error
}

func validateTenant(tenant *Tenant) apperrors.Error {
	if tenant == nil {
		return ErrValidation.New("tenant is nil")
	}
	if tenant.Name == "" {
		return ErrValidation.New("tenant name is required")
	}
	if tenant.Domain == "" {
		return ErrValidation.New("tenant domain is required")
	}
	if tenant.StorageRef == "" {
		return ErrValidation.New("tenant storage ref is required")
	}
	if !tenant.Status.Valid() {
		return ErrInvalidStatus.New("invalid tenant status: " + string(tenant.Status))
	}
	return nil
}
