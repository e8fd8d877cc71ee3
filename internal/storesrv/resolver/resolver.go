// Package resolver maps an inbound request to a tenant record under one of
// two addressing modes, selected once at construction. Resolution is
// side-effect-free and safe to run on every request concurrently.
package resolver

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/merchantry/merchantry/internal/common/apperrors"
	"github.com/merchantry/merchantry/internal/storesrv/catalog"
	"github.com/rs/zerolog/log"
)

// Mode selects how the tenant token is extracted from a request. Changing
// the mode requires a process restart.
type Mode string

const (
	// ModeDirectory takes the token from the first path segment.
	ModeDirectory Mode = "directory"
	// ModeSubdomain takes the token from the leftmost host label, provided
	// the host has at least three dot-separated labels.
	ModeSubdomain Mode = "subdomain"
)

// Resolver turns a raw request into a validated, active tenant.
type Resolver struct {
	mode       Mode
	baseDomain string
	reserved   map[string]struct{}
	store      catalog.Store
	cache      *tenantCache
}

// New constructs a Resolver. reserved tokens are never tenant domains and
// short-circuit resolution before any catalog lookup. A non-zero cacheTTL
// enables a positive-result cache keyed by domain; Invalidate must be called
// on status or delete mutations.
func New(mode Mode, baseDomain string, reserved []string, store catalog.Store, cacheTTL time.Duration) (*Resolver, apperrors.Error) {
	if mode != ModeDirectory && mode != ModeSubdomain {
		return nil, ErrInvalidMode.New("invalid addressing mode: " + string(mode))
	}
	if mode == ModeSubdomain && baseDomain == "" {
		return nil, ErrInvalidMode.New("subdomain mode requires a base domain")
	}
	r := &Resolver{
		mode:       mode,
		baseDomain: strings.ToLower(baseDomain),
		reserved:   make(map[string]struct{}, len(reserved)),
		store:      store,
	}
	for _, token := range reserved {
		r.reserved[strings.ToLower(token)] = struct{}{}
	}
	if cacheTTL > 0 {
		r.cache = newTenantCache(cacheTTL)
	}
	return r, nil
}

// Mode returns the addressing mode the resolver was constructed with.
func (r *Resolver) Mode() Mode {
	return r.mode
}

// Resolve maps the request's host and path to an active tenant.
// Returns ErrNoTenantContext when no token is extractable or the token is
// reserved, ErrTenantNotFound for an unknown token, and ErrTenantInactive
// when the tenant exists but is not active.
func (r *Resolver) Resolve(ctx context.Context, host, path string) (*catalog.Tenant, apperrors.Error) {
	token, err := r.extractToken(host, path)
	if err != nil {
		return nil, err
	}
	if _, ok := r.reserved[token]; ok {
		return nil, ErrNoTenantContext.New("reserved token: " + token)
	}

	if r.cache != nil {
		if tenant, ok := r.cache.get(token); ok {
			return tenant, nil
		}
	}

	tenant, lookupErr := r.store.GetByDomain(ctx, token)
	if lookupErr != nil {
		if lookupErr.Is(catalog.ErrNotFound) {
			return nil, ErrTenantNotFound.New("no tenant for domain: " + token)
		}
		log.Ctx(ctx).Error().Err(lookupErr).Str("domain", token).Msg("catalog lookup failed")
		return nil, ErrResolver.New("catalog lookup failed").Err(lookupErr)
	}
	if tenant.Status != catalog.StatusActive {
		return nil, ErrTenantInactive.New("tenant is " + string(tenant.Status) + ": " + token)
	}

	if r.cache != nil {
		r.cache.put(token, tenant)
	}
	return tenant, nil
}

// Invalidate drops the cached entry for a domain. Called on any status or
// delete mutation so stale positive results never outlive the TTL window.
func (r *Resolver) Invalidate(domain string) {
	if r.cache != nil {
		r.cache.drop(strings.ToLower(domain))
	}
}

func (r *Resolver) extractToken(host, path string) (string, apperrors.Error) {
	switch r.mode {
	case ModeDirectory:
		return r.directoryToken(path)
	case ModeSubdomain:
		return r.subdomainToken(host)
	}
	return "", ErrInvalidMode.New("invalid addressing mode: " + string(r.mode))
}

func (r *Resolver) directoryToken(path string) (string, apperrors.Error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", ErrNoTenantContext.New("no path segment in request")
	}
	token := trimmed
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		token = trimmed[:i]
	}
	return strings.ToLower(token), nil
}

func (r *Resolver) subdomainToken(host string) (string, apperrors.Error) {
	if host == "" {
		return "", ErrNoTenantContext.New("no host in request")
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	labels := strings.Split(host, ".")
	// a bare base domain has no tenant label
	if len(labels) < 3 {
		return "", ErrNoTenantContext.New("host carries no tenant label: " + host)
	}
	if r.baseDomain != "" && !strings.HasSuffix(host, "."+r.baseDomain) {
		return "", ErrNoTenantContext.New("host is outside the base domain: " + host)
	}
	return labels[0], nil
}
