package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/merchantry/merchantry/internal/common/httpx"
	"github.com/merchantry/merchantry/internal/storesrv/catalog"
	"github.com/merchantry/merchantry/internal/storesrv/lifecycle"
	"github.com/merchantry/merchantry/internal/storesrv/provisioner"
	"github.com/rs/zerolog/log"
)

func (s *StoreServer) mountAdminHandlers(r chi.Router) {
	r.Route("/tenants", func(r chi.Router) {
		r.Post("/", s.createTenant)
		r.Get("/", s.listTenants)
		r.Route("/{tenantID}", func(r chi.Router) {
			r.Get("/", s.getTenant)
			r.Delete("/", s.deleteTenant)
			r.Put("/status", s.setTenantStatus)
		})
	})
	r.Post("/schema/changes", s.applySchemaChange)
}

type createTenantReq struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

func (s *StoreServer) createTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Body == nil || r.ContentLength == 0 {
		httpx.ErrInvalidRequest().Send(w)
		return
	}
	var req createTenantReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.ErrUnableToParseReqData().Send(w)
		return
	}
	tenant, err := s.lifecycle.CreateTenant(ctx, req.Name, req.Domain)
	if err != nil {
		httpx.SendError(w, err)
		return
	}
	w.Header().Set("Location", "/admin/tenants/"+tenant.ID.String())
	httpx.SendJsonRsp(ctx, w, http.StatusCreated, tenant)
}

func (s *StoreServer) listTenants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenants, err := s.lifecycle.ListTenants(ctx)
	if err != nil {
		httpx.SendError(w, err)
		return
	}
	httpx.SendJsonRsp(ctx, w, http.StatusOK, tenants)
}

func (s *StoreServer) getTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}
	tenant, err := s.lifecycle.GetTenant(ctx, id)
	if err != nil {
		httpx.SendError(w, err)
		return
	}
	httpx.SendJsonRsp(ctx, w, http.StatusOK, tenant)
}

func (s *StoreServer) deleteTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}
	tenant, err := s.lifecycle.GetTenant(ctx, id)
	if err != nil {
		httpx.SendError(w, err)
		return
	}
	delErr := s.lifecycle.DeleteTenant(ctx, id)
	if delErr == nil || delErr.Is(lifecycle.ErrPartialDeleteFailure) {
		// the catalog record is gone either way: stop serving the domain
		s.resolver.Invalidate(tenant.Domain)
	}
	if delErr != nil {
		httpx.SendError(w, delErr)
		return
	}
	httpx.SendJsonRsp(ctx, w, http.StatusOK, map[string]string{"deleted": id.String()})
}

type setStatusReq struct {
	Status string `json:"status"`
}

func (s *StoreServer) setTenantStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}
	if r.Body == nil || r.ContentLength == 0 {
		httpx.ErrInvalidRequest().Send(w)
		return
	}
	var req setStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.ErrUnableToParseReqData().Send(w)
		return
	}
	tenant, err := s.lifecycle.SetTenantStatus(ctx, id, catalog.Status(req.Status))
	if err != nil {
		httpx.SendError(w, err)
		return
	}
	// status takes effect on the next request, not on cache expiry
	s.resolver.Invalidate(tenant.Domain)
	httpx.SendJsonRsp(ctx, w, http.StatusOK, tenant)
}

func (s *StoreServer) applySchemaChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Body == nil || r.ContentLength == 0 {
		httpx.ErrInvalidRequest().Send(w)
		return
	}
	var cs provisioner.Changeset
	if err := json.NewDecoder(r.Body).Decode(&cs); err != nil {
		httpx.ErrUnableToParseReqData().Send(w)
		return
	}
	results, err := s.lifecycle.ApplySchemaChange(ctx, cs)
	if err != nil {
		if len(results) > 0 {
			// partial outcome: report per-tenant results so the operator can
			// retry just the failed tenants
			log.Ctx(ctx).Warn().Err(err).Str("changeset", cs.Label).Msg("changeset partially applied")
			httpx.SendJsonRsp(ctx, w, http.StatusMultiStatus, results)
			return
		}
		httpx.SendError(w, err)
		return
	}
	httpx.SendJsonRsp(ctx, w, http.StatusOK, results)
}

func tenantIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpx.ErrInvalidTenantId().Send(w)
		return uuid.Nil, false
	}
	return id, true
}
