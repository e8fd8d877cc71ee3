// Package server assembles the HTTP surface: tenant-addressed storefront
// routes, the admin API, and operational endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/merchantry/merchantry/internal/common/apperrors"
	"github.com/merchantry/merchantry/internal/common/httpx"
	"github.com/merchantry/merchantry/internal/common/logtrace"
	commonmiddleware "github.com/merchantry/merchantry/internal/common/middleware"
	"github.com/merchantry/merchantry/internal/storesrv/config"
	"github.com/merchantry/merchantry/internal/storesrv/lifecycle"
	"github.com/merchantry/merchantry/internal/storesrv/poolregistry"
	"github.com/merchantry/merchantry/internal/storesrv/resolver"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// PoolHandles is the slice of the pool registry the request path needs.
type PoolHandles interface {
	GetHandle(ctx context.Context, storageRef string) (*poolregistry.Handle, apperrors.Error)
}

type StoreServer struct {
	Router    *chi.Mux
	resolver  *resolver.Resolver
	lifecycle *lifecycle.Coordinator
	pools     PoolHandles
}

func CreateNewServer(rsv *resolver.Resolver, coord *lifecycle.Coordinator, pools PoolHandles) (*StoreServer, error) {
	s := &StoreServer{
		resolver:  rsv,
		lifecycle: coord,
		pools:     pools,
	}
	s.Router = chi.NewRouter()
	return s, nil
}

func (s *StoreServer) MountHandlers() {
	s.Router.Use(commonmiddleware.RequestLogger)
	s.Router.Use(commonmiddleware.PanicHandler)
	if config.Config().HandleCORS {
		s.Router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"},
			MaxAge:         300,
		}))
	}
	s.Router.Get("/version", s.getVersion)
	s.Router.Handle("/metrics", promhttp.Handler())
	s.Router.Route("/admin", s.mountAdminHandlers)

	// everything else is tenant-addressed
	storefront := chi.NewRouter()
	storefront.Use(s.tenantContext)
	storefront.Get("/storefront/tenant", s.getResolvedTenant)
	storefront.Get("/storefront/ping", s.pingStorefront)
	s.Router.Mount("/", storefront)

	if logtrace.IsTraceEnabled() {
		fmt.Println("Routes in storefront router")
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			fmt.Printf("%s %s\n", method, route)
			return nil
		}
		if err := chi.Walk(s.Router, walkFunc); err != nil {
			fmt.Printf("Logging err: %s\n", err.Error())
		}
	}
}

type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`
	ApiVersion    string `json:"apiVersion"`
}

func (s *StoreServer) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	rsp := &GetVersionRsp{
		ServerVersion: "Merchantry Storefront Server: 0.1.0",
		ApiVersion:    "v1",
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, rsp)
}
