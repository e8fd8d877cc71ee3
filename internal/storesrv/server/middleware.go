package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/merchantry/merchantry/internal/common/httpx"
	"github.com/merchantry/merchantry/internal/storesrv/poolregistry"
	"github.com/merchantry/merchantry/internal/storesrv/resolver"
	"github.com/rs/zerolog/log"
)

// tenantContext resolves the request to an active tenant and stores the
// record in the request context. In directory mode it also strips the tenant
// segment so handlers route on tenant-relative paths.
func (s *StoreServer) tenantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.resolver.Resolve(r.Context(), r.Host, r.URL.Path)
		if err != nil {
			if err.Is(resolver.ErrNoTenantContext) {
				httpx.ErrNotATenantRoute().Send(w)
				return
			}
			log.Ctx(r.Context()).Debug().Err(err).Str("host", r.Host).Str("path", r.URL.Path).Msg("tenant resolution failed")
			httpx.SendError(w, err)
			return
		}

		ctx := resolver.SetTenantInContext(r.Context(), tenant)
		if s.resolver.Mode() == resolver.ModeDirectory {
			if rctx := chi.RouteContext(ctx); rctx != nil {
				rctx.RoutePath = tenantRelativePath(r.URL.Path)
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenantRelativePath drops the leading tenant segment from a directory-mode
// request path.
func tenantRelativePath(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[i:]
	}
	return "/"
}

func (s *StoreServer) getResolvedTenant(w http.ResponseWriter, r *http.Request) {
	tenant := resolver.TenantFromContext(r.Context())
	if tenant == nil {
		httpx.ErrNotATenantRoute().Send(w)
		return
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, tenant)
}

type pingRsp struct {
	Domain     string `json:"domain"`
	StorageRef string `json:"storageRef"`
	Status     string `json:"status"`
}

// pingStorefront checks that the tenant's backing store is reachable through
// its connection pool.
func (s *StoreServer) pingStorefront(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := resolver.TenantFromContext(ctx)
	if tenant == nil {
		httpx.ErrNotATenantRoute().Send(w)
		return
	}
	handle, err := s.pools.GetHandle(ctx, tenant.StorageRef)
	if err != nil {
		httpx.SendError(w, err)
		return
	}
	if err := handle.Ping(ctx); err != nil {
		if err.Is(poolregistry.ErrPoolExhausted) {
			w.Header().Set("Retry-After", "1")
		}
		httpx.SendError(w, err)
		return
	}
	httpx.SendJsonRsp(ctx, w, http.StatusOK, &pingRsp{
		Domain:     tenant.Domain,
		StorageRef: tenant.StorageRef,
		Status:     "ok",
	})
}
