package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/merchantry/merchantry/internal/common/apperrors"
	"github.com/merchantry/merchantry/internal/storesrv/catalog"
	"github.com/merchantry/merchantry/internal/storesrv/provisioner"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvisioner struct {
	mu             sync.Mutex
	provisioned    []string
	deprovisioned  []string
	changesApplied []string

	failProvision     apperrors.Error
	failDeprovision   apperrors.Error
	deprovisionDenies int // fail this many Deprovision calls, then succeed

	delay     time.Duration
	active    int32
	maxActive int32
}

func (p *fakeProvisioner) Provision(ctx context.Context, storageRef string) apperrors.Error {
	n := atomic.AddInt32(&p.active, 1)
	defer atomic.AddInt32(&p.active, -1)
	for {
		max := atomic.LoadInt32(&p.maxActive)
		if n <= max || atomic.CompareAndSwapInt32(&p.maxActive, max, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failProvision != nil {
		return p.failProvision
	}
	p.provisioned = append(p.provisioned, storageRef)
	return nil
}

func (p *fakeProvisioner) Deprovision(ctx context.Context, storageRef string) apperrors.Error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deprovisionDenies > 0 {
		p.deprovisionDenies--
		return provisioner.ErrDeprovisionFailed.New("backend unavailable")
	}
	if p.failDeprovision != nil {
		return p.failDeprovision
	}
	p.deprovisioned = append(p.deprovisioned, storageRef)
	return nil
}

func (p *fakeProvisioner) ApplyChangeset(ctx context.Context, storageRef string, cs provisioner.Changeset) apperrors.Error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changesApplied = append(p.changesApplied, storageRef)
	return nil
}

type fakeEvictor struct {
	mu      sync.Mutex
	evicted []string
	fail    apperrors.Error
}

func (e *fakeEvictor) Evict(ctx context.Context, storageRef string) apperrors.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.evicted = append(e.evicted, storageRef)
	return nil
}

func newTestCoordinator() (*Coordinator, catalog.Store, *fakeProvisioner, *fakeEvictor) {
	store := catalog.NewMemoryStore()
	prov := &fakeProvisioner{}
	evictor := &fakeEvictor{}
	return New(store, prov, evictor), store, prov, evictor
}

func TestCreateTenant(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	coord, store, prov, _ := newTestCoordinator()

	tenant, err := coord.CreateTenant(ctx, "Acme Outdoor", "acme")
	require.NoError(t, asError(err))
	assert.NotEqual(t, uuid.Nil, tenant.ID)
	assert.Equal(t, catalog.StatusActive, tenant.Status)
	assert.True(t, strings.HasPrefix(tenant.StorageRef, "store_acme_"))
	assert.True(t, provisioner.ValidStorageRef(tenant.StorageRef))

	// storage was provisioned before the record was written
	require.Len(t, prov.provisioned, 1)
	assert.Equal(t, tenant.StorageRef, prov.provisioned[0])

	got, gerr := store.GetByDomain(ctx, "acme")
	require.NoError(t, asError(gerr))
	assert.Equal(t, tenant.ID, got.ID)
}

func TestCreateTenantInvalidInput(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	coord, _, prov, _ := newTestCoordinator()

	_, err := coord.CreateTenant(ctx, "", "acme")
	assert.ErrorIs(t, err, ErrInvalidInput)

	for _, domain := range []string{"", "Acme", "acme.shop", "-acme", "9acme", strings.Repeat("a", 64)} {
		_, err := coord.CreateTenant(ctx, "Acme", domain)
		assert.ErrorIs(t, err, ErrInvalidInput, "domain %q", domain)
	}
	assert.Empty(t, prov.provisioned)
}

func TestCreateTenantProvisionFailure(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	coord, store, prov, _ := newTestCoordinator()
	prov.failProvision = provisioner.ErrProvisionFailed.New("disk full")

	_, err := coord.CreateTenant(ctx, "Acme", "acme")
	require.Error(t, err)
	assert.ErrorIs(t, err, provisioner.ErrProvisionFailed)

	// no catalog record exists for the failed create
	_, gerr := store.GetByDomain(ctx, "acme")
	assert.ErrorIs(t, gerr, catalog.ErrNotFound)

	// the partially provisioned storage was torn down: a retried create
	// mints a fresh storage ref and would otherwise orphan this one
	require.Len(t, prov.deprovisioned, 1)
	assert.True(t, strings.HasPrefix(prov.deprovisioned[0], "store_acme_"))
}

func TestCreateTenantCompensatesOnCatalogFailure(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	coord, _, prov, _ := newTestCoordinator()

	_, err := coord.CreateTenant(ctx, "Acme", "acme")
	require.NoError(t, asError(err))

	// second create for the same domain provisions storage, fails on the
	// duplicate record, and deprovisions the fresh storage
	_, err = coord.CreateTenant(ctx, "Acme Again", "acme")
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrDuplicateDomain)

	require.Len(t, prov.provisioned, 2)
	require.Len(t, prov.deprovisioned, 1)
	assert.Equal(t, prov.provisioned[1], prov.deprovisioned[0])
	// the first tenant's storage was untouched
	assert.NotEqual(t, prov.provisioned[0], prov.deprovisioned[0])
}

func TestCreateTenantCompensationRetries(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	coord, _, prov, _ := newTestCoordinator()

	_, err := coord.CreateTenant(ctx, "Acme", "acme")
	require.NoError(t, asError(err))

	// first two deprovision attempts fail, third succeeds within the retry
	// budget, and the original duplicate error still comes back
	prov.deprovisionDenies = 2
	_, err = coord.CreateTenant(ctx, "Acme Again", "acme")
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrDuplicateDomain)
	assert.Len(t, prov.deprovisioned, 1)
}

func TestDeleteTenant(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	coord, store, prov, evictor := newTestCoordinator()

	tenant, err := coord.CreateTenant(ctx, "Acme", "acme")
	require.NoError(t, asError(err))

	require.NoError(t, asError(coord.DeleteTenant(ctx, tenant.ID)))

	_, gerr := store.GetByID(ctx, tenant.ID)
	assert.ErrorIs(t, gerr, catalog.ErrNotFound)
	assert.Equal(t, []string{tenant.StorageRef}, evictor.evicted)
	assert.Equal(t, []string{tenant.StorageRef}, prov.deprovisioned)
}

func TestDeleteTenantNotFound(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	coord, _, _, _ := newTestCoordinator()

	err := coord.DeleteTenant(ctx, uuid.New())
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestDeleteTenantEvictFailure(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	coord, store, prov, evictor := newTestCoordinator()

	tenant, err := coord.CreateTenant(ctx, "Acme", "acme")
	require.NoError(t, asError(err))

	evictor.fail = ErrLifecycle.New("pool registry unreachable")
	derr := coord.DeleteTenant(ctx, tenant.ID)
	require.Error(t, derr)
	assert.ErrorIs(t, derr, ErrPartialDeleteFailure)

	var pd *PartialDeleteError
	require.True(t, errors.As(derr, &pd))
	assert.Equal(t, tenant.ID, pd.TenantID)
	assert.Equal(t, tenant.StorageRef, pd.StorageRef)
	assert.Equal(t, StepEvictPool, pd.Step)

	// the catalog record is already gone: traffic stopped
	_, gerr := store.GetByID(ctx, tenant.ID)
	assert.ErrorIs(t, gerr, catalog.ErrNotFound)
	// storage was not touched after the failed eviction
	assert.Empty(t, prov.deprovisioned)
}

func TestDeleteTenantDeprovisionFailure(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	coord, _, prov, evictor := newTestCoordinator()

	tenant, err := coord.CreateTenant(ctx, "Acme", "acme")
	require.NoError(t, asError(err))

	prov.failDeprovision = provisioner.ErrDeprovisionFailed.New("sessions held")
	derr := coord.DeleteTenant(ctx, tenant.ID)
	require.Error(t, derr)

	var pd *PartialDeleteError
	require.True(t, errors.As(derr, &pd))
	assert.Equal(t, StepDeprovisionStorage, pd.Step)
	assert.Equal(t, []string{tenant.StorageRef}, evictor.evicted)
}

func TestConcurrentCreateSameDomain(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	coord, store, prov, _ := newTestCoordinator()
	prov.delay = 5 * time.Millisecond // widen the provision window

	const n = 8
	var wg sync.WaitGroup
	tenants := make([]*catalog.Tenant, n)
	errs := make([]apperrors.Error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tenants[i], errs[i] = coord.CreateTenant(ctx, "Acme", "acme")
		}(i)
	}
	wg.Wait()

	// exactly one create wins; the rest fail on the duplicate domain
	var winner *catalog.Tenant
	for i := 0; i < n; i++ {
		if errs[i] == nil {
			require.Nil(t, winner, "more than one create succeeded")
			winner = tenants[i]
		} else {
			assert.ErrorIs(t, errs[i], catalog.ErrDuplicateDomain)
		}
	}
	require.NotNil(t, winner)

	// same-domain operations never overlapped inside the provisioner
	assert.Equal(t, int32(1), atomic.LoadInt32(&prov.maxActive))

	// every losing create deprovisioned its own storage; the winner's survives
	assert.Len(t, prov.provisioned, n)
	assert.Len(t, prov.deprovisioned, n-1)
	assert.NotContains(t, prov.deprovisioned, winner.StorageRef)

	got, gerr := store.GetByDomain(ctx, "acme")
	require.NoError(t, asError(gerr))
	assert.Equal(t, winner.ID, got.ID)
}

func TestConcurrentDeleteSameTenant(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	coord, _, prov, _ := newTestCoordinator()

	tenant, err := coord.CreateTenant(ctx, "Acme", "acme")
	require.NoError(t, asError(err))

	var wg sync.WaitGroup
	errs := make([]apperrors.Error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = coord.DeleteTenant(ctx, tenant.ID)
		}(i)
	}
	wg.Wait()

	// one delete wins, the other observes the record already gone; the
	// storage is torn down exactly once
	succeeded := 0
	for i := 0; i < 2; i++ {
		if errs[i] == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, errs[i], catalog.ErrNotFound)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, []string{tenant.StorageRef}, prov.deprovisioned)
}

func TestRecreateAfterDelete(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	coord, _, _, _ := newTestCoordinator()

	first, err := coord.CreateTenant(ctx, "Acme", "acme")
	require.NoError(t, asError(err))
	require.NoError(t, asError(coord.DeleteTenant(ctx, first.ID)))

	second, err := coord.CreateTenant(ctx, "Acme Reborn", "acme")
	require.NoError(t, asError(err))
	assert.NotEqual(t, first.ID, second.ID)
	// a recreated tenant never reuses the old backing store
	assert.NotEqual(t, first.StorageRef, second.StorageRef)
}

func TestSetTenantStatus(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	coord, _, _, _ := newTestCoordinator()

	tenant, err := coord.CreateTenant(ctx, "Acme", "acme")
	require.NoError(t, asError(err))

	updated, err := coord.SetTenantStatus(ctx, tenant.ID, catalog.StatusSuspended)
	require.NoError(t, asError(err))
	assert.Equal(t, catalog.StatusSuspended, updated.Status)

	_, err = coord.SetTenantStatus(ctx, tenant.ID, catalog.Status("nonsense"))
	assert.ErrorIs(t, err, catalog.ErrInvalidStatus)
}

func TestApplySchemaChange(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	coord, _, prov, _ := newTestCoordinator()

	a, err := coord.CreateTenant(ctx, "Acme", "acme")
	require.NoError(t, asError(err))
	b, err := coord.CreateTenant(ctx, "Globex", "globex")
	require.NoError(t, asError(err))

	cs := provisioner.Changeset{
		Label: "add-product-weight",
		Changes: []provisioner.Change{
			{
				Kind:   provisioner.ChangeAddColumn,
				Table:  "products",
				Column: "weight_grams",
				DDL:    "ALTER TABLE products ADD COLUMN weight_grams INT",
			},
		},
	}

	results, err := coord.ApplySchemaChange(ctx, cs)
	require.NoError(t, asError(err))
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Applied)
	}
	assert.ElementsMatch(t, []string{a.StorageRef, b.StorageRef}, prov.changesApplied)
}

// asError converts a typed nil apperrors.Error into a plain nil error for
// assert.NoError.
func asError(err apperrors.Error) error {
	if err == nil {
		return nil
	}
	return err
}
