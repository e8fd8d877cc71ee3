// Package lifecycle sequences multi-component tenant creation and deletion
// so the catalog/storage existence invariant holds under partial failure: a
// tenant record exists if and only if its storage was provisioned.
package lifecycle

import (
	"context"
	"regexp"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/merchantry/merchantry/internal/common/apperrors"
	"github.com/merchantry/merchantry/internal/storesrv/catalog"
	"github.com/merchantry/merchantry/internal/storesrv/provisioner"
	"github.com/rs/zerolog/log"
)

// PoolEvictor is the slice of the pool registry the coordinator needs.
type PoolEvictor interface {
	Evict(ctx context.Context, storageRef string) apperrors.Error
}

// Coordinator drives tenant creation and deletion across the catalog, the
// provisioner and the pool registry, with compensating actions on partial
// failure. Operations for the same domain are serialized.
type Coordinator struct {
	store catalog.Store
	prov  provisioner.Provisioner
	pools PoolEvictor
	locks *keyedMutex
}

func New(store catalog.Store, prov provisioner.Provisioner, pools PoolEvictor) *Coordinator {
	return &Coordinator{
		store: store,
		prov:  prov,
		pools: pools,
		locks: newKeyedMutex(),
	}
}

var domainPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}$`)

const storageRefAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// storageRefForDomain mints a fresh backing store name for a domain. The
// random suffix keeps a recreated tenant from colliding with storage left
// behind by an earlier incarnation still inside its rollback window.
func storageRefForDomain(domain string) (string, apperrors.Error) {
	suffix, err := gonanoid.Generate(storageRefAlphabet, 8)
	if err != nil {
		return "", ErrLifecycle.New("failed to generate storage ref").Err(err)
	}
	ref := "store_" + strings.ReplaceAll(domain, "-", "_") + "_" + suffix
	if !provisioner.ValidStorageRef(ref) {
		return "", ErrInvalidInput.New("domain does not yield a valid storage ref: " + domain)
	}
	return ref, nil
}

// CreateTenant provisions storage first and records the tenant second. A
// catalog failure after successful provisioning triggers a compensating
// deprovision so no orphan storage remains, and the original catalog error
// is propagated.
func (c *Coordinator) CreateTenant(ctx context.Context, name, domain string) (*catalog.Tenant, apperrors.Error) {
	if name == "" {
		return nil, ErrInvalidInput.New("tenant name is required")
	}
	if !domainPattern.MatchString(domain) {
		return nil, ErrInvalidInput.New("invalid tenant domain: " + domain)
	}

	c.locks.lock(domain)
	defer c.locks.unlock(domain)

	storageRef, err := storageRefForDomain(domain)
	if err != nil {
		return nil, err
	}

	if err := c.prov.Provision(ctx, storageRef); err != nil {
		// provisioning is not atomic: tear down whatever partial structure
		// was applied, since a retried create mints a fresh storage ref
		log.Ctx(ctx).Error().Err(err).Str("domain", domain).Str("storage_ref", storageRef).Msg("provisioning failed, tenant not created")
		if compErr := c.deprovisionWithRetry(ctx, storageRef); compErr != nil {
			log.Ctx(ctx).Error().Err(compErr).Str("storage_ref", storageRef).Msg("cleanup of partially provisioned storage failed, orphan storage remains")
			return nil, err.Err(compErr)
		}
		return nil, err
	}

	tenant := &catalog.Tenant{
		Name:       name,
		Domain:     domain,
		StorageRef: storageRef,
		Status:     catalog.StatusActive,
	}
	if createErr := c.store.Create(ctx, tenant); createErr != nil {
		log.Ctx(ctx).Warn().Err(createErr).Str("domain", domain).Str("storage_ref", storageRef).Msg("catalog create failed, deprovisioning storage")
		if compErr := c.deprovisionWithRetry(ctx, storageRef); compErr != nil {
			log.Ctx(ctx).Error().Err(compErr).Str("storage_ref", storageRef).Msg("compensating deprovision failed, orphan storage remains")
			return nil, createErr.Err(compErr)
		}
		return nil, createErr
	}

	log.Ctx(ctx).Info().Str("domain", domain).Str("tenant_id", tenant.ID.String()).Str("storage_ref", storageRef).Msg("tenant created")
	return tenant, nil
}

// deprovisionWithRetry tears down storage as a compensating action, retrying
// transient failures a few times before giving up.
func (c *Coordinator) deprovisionWithRetry(ctx context.Context, storageRef string) error {
	return retry.Do(
		func() error {
			if derr := c.prov.Deprovision(ctx, storageRef); derr != nil {
				return derr
			}
			return nil
		},
		retry.Attempts(3),
		retry.Context(ctx),
	)
}

// DeleteTenant removes the catalog record first so no new request resolves
// to the tenant, then evicts the live pool, then destroys the storage. The
// catalog deletion is never rolled back: a failure in a later step leaves
// an orphaned pool/storage and is reported as a PartialDeleteError.
func (c *Coordinator) DeleteTenant(ctx context.Context, id uuid.UUID) apperrors.Error {
	tenant, err := c.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	c.locks.lock(tenant.Domain)
	defer c.locks.unlock(tenant.Domain)

	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}

	if err := c.pools.Evict(ctx, tenant.StorageRef); err != nil {
		pdErr := newPartialDeleteError(id, tenant.StorageRef, StepEvictPool, err)
		log.Ctx(ctx).Error().Err(pdErr).Str("tenant_id", id.String()).Msg("tenant delete left an orphaned pool")
		return pdErr
	}

	if err := c.prov.Deprovision(ctx, tenant.StorageRef); err != nil {
		pdErr := newPartialDeleteError(id, tenant.StorageRef, StepDeprovisionStorage, err)
		log.Ctx(ctx).Error().Err(pdErr).Str("tenant_id", id.String()).Msg("tenant delete left orphaned storage")
		return pdErr
	}

	log.Ctx(ctx).Info().Str("tenant_id", id.String()).Str("domain", tenant.Domain).Msg("tenant deleted")
	return nil
}

// SetTenantStatus changes a tenant's serving status.
func (c *Coordinator) SetTenantStatus(ctx context.Context, id uuid.UUID, status catalog.Status) (*catalog.Tenant, apperrors.Error) {
	return c.store.UpdateStatus(ctx, id, status)
}

// ListTenants returns every tenant record.
func (c *Coordinator) ListTenants(ctx context.Context) ([]*catalog.Tenant, apperrors.Error) {
	return c.store.List(ctx)
}

// GetTenant returns one tenant record by id.
func (c *Coordinator) GetTenant(ctx context.Context, id uuid.UUID) (*catalog.Tenant, apperrors.Error) {
	return c.store.GetByID(ctx, id)
}

// ApplySchemaChange applies an incremental changeset to every tenant,
// continuing past individual failures and reporting per-tenant outcomes.
func (c *Coordinator) ApplySchemaChange(ctx context.Context, cs provisioner.Changeset) ([]provisioner.TenantChangeResult, apperrors.Error) {
	tenants, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	storageRefs := make([]string, 0, len(tenants))
	for _, tenant := range tenants {
		storageRefs = append(storageRefs, tenant.StorageRef)
	}
	return provisioner.ApplyChangesetBatch(ctx, c.prov, storageRefs, cs)
}
