package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/merchantry/merchantry/internal/common/apperrors"
)

// memoryStore is an in-process Store used by tests and by single-binary
// development setups that run without a control-plane database. It applies
// the same validation and error semantics as the postgres store.
type memoryStore struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*Tenant
	byDomain map[string]uuid.UUID
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		byID:     make(map[uuid.UUID]*Tenant),
		byDomain: make(map[string]uuid.UUID),
	}
}

func (s *memoryStore) Create(ctx context.Context, tenant *Tenant) apperrors.Error {
	if err := validateTenant(tenant); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byDomain[tenant.Domain]; ok {
		return ErrDuplicateDomain.New("domain already exists: " + tenant.Domain)
	}
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	cp := *tenant
	s.byID[tenant.ID] = &cp
	s.byDomain[tenant.Domain] = tenant.ID
	return nil
}

func (s *memoryStore) GetByDomain(ctx context.Context, domain string) (*Tenant, apperrors.Error) {
	if domain == "" {
		return nil, ErrValidation.New("tenant domain is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDomain[domain]
	if !ok {
		return nil, ErrNotFound.New("tenant not found")
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *memoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, apperrors.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenant, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound.New("tenant not found")
	}
	cp := *tenant
	return &cp, nil
}

func (s *memoryStore) List(ctx context.Context) ([]*Tenant, apperrors.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenants := make([]*Tenant, 0, len(s.byID))
	for _, tenant := range s.byID {
		cp := *tenant
		tenants = append(tenants, &cp)
	}
	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].CreatedAt.Before(tenants[j].CreatedAt)
	})
	return tenants, nil
}

func (s *memoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Tenant, apperrors.Error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus.New("invalid tenant status: " + string(status))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound.New("tenant not found")
	}
	tenant.Status = status
	tenant.UpdatedAt = time.Now().UTC()
	cp := *tenant
	return &cp, nil
}

func (s *memoryStore) Delete(ctx context.Context, id uuid.UUID) apperrors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.byID[id]
	if !ok {
		return ErrNotFound.New("tenant not found")
	}
	delete(s.byDomain, tenant.Domain)
	delete(s.byID, id)
	return nil
}
