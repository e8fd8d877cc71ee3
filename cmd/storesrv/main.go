package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/merchantry/merchantry/internal/common/logtrace"
	"github.com/merchantry/merchantry/internal/storesrv/catalog"
	"github.com/merchantry/merchantry/internal/storesrv/config"
	"github.com/merchantry/merchantry/internal/storesrv/lifecycle"
	"github.com/merchantry/merchantry/internal/storesrv/poolregistry"
	"github.com/merchantry/merchantry/internal/storesrv/provisioner"
	"github.com/merchantry/merchantry/internal/storesrv/resolver"
	"github.com/merchantry/merchantry/internal/storesrv/server"
)

func init() {
	logtrace.InitLogger()
}

type cmdoptions struct {
	configFile *string
}

func main() {
	slog := log.With().Str("state", "init").Logger()
	opt := parseFlags()

	slog.Info().Str("config_file", *opt.configFile).Msg("loading config file")
	if err := config.LoadConfig(*opt.configFile); err != nil {
		slog.Error().Str("config_file", *opt.configFile).Err(err).Msg("unable to load config file")
		os.Exit(1)
	}
	if config.Config().ServerPort == "" {
		slog.Error().Msg("server port not defined")
		os.Exit(1)
	}

	controlDB, err := sql.Open("pgx", config.ControlDsn())
	if err != nil {
		slog.Error().Err(err).Msg("unable to open control database")
		os.Exit(1)
	}
	defer controlDB.Close()

	ctx := log.Logger.WithContext(context.Background())
	if err := controlDB.PingContext(ctx); err != nil {
		slog.Error().Err(err).Msg("control database is unreachable")
		os.Exit(1)
	}
	if serr := catalog.EnsureSchema(ctx, controlDB); serr != nil {
		slog.Error().Err(serr).Msg("unable to prepare control database schema")
		os.Exit(1)
	}

	store := catalog.NewPostgresStore(controlDB)

	rsv, rerr := resolver.New(
		resolver.Mode(config.Config().AddressingMode),
		config.Config().BaseDomain,
		config.Config().ReservedTokens,
		store,
		config.ResolverCacheTTL())
	if rerr != nil {
		slog.Error().Err(rerr).Msg("unable to create tenant resolver")
		os.Exit(1)
	}

	metrics := poolregistry.NewMetrics(prometheus.DefaultRegisterer)
	registry := poolregistry.New(
		poolregistry.NewPgxFactory(config.TenantDsn),
		poolregistry.Options{
			MaxOpenConns:   config.Config().TenantPools.MaxOpenConns,
			MaxIdleConns:   config.Config().TenantPools.MaxIdleConns,
			AcquireTimeout: config.AcquireTimeout(),
			DrainGrace:     config.DrainGrace(),
			Metrics:        metrics,
		})

	prov := provisioner.NewPostgresProvisioner(controlDB, func(ctx context.Context, storageRef string) (*sql.DB, error) {
		return sql.Open("pgx", config.TenantDsn(storageRef))
	})

	coord := lifecycle.New(store, prov, registry)

	s, err := server.CreateNewServer(rsv, coord, registry)
	if err != nil {
		slog.Error().Err(err).Msg("unable to create server")
		os.Exit(1)
	}
	s.MountHandlers()

	httpServer := &http.Server{
		Addr:    ":" + config.Config().ServerPort,
		Handler: s.Router,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info().Str("port", config.Config().ServerPort).Str("addressing_mode", config.Config().AddressingMode).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	slog.Info().Msg("shutting down")

	drainCtx, cancel := context.WithTimeout(log.Logger.WithContext(context.Background()), config.DrainGrace()+5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		slog.Error().Err(err).Msg("server shutdown failed")
	}
	if err := registry.CloseAll(drainCtx); err != nil {
		slog.Error().Err(err).Msg("pool shutdown failed")
	}
	slog.Info().Msg("shutdown complete")
}

func parseFlags() cmdoptions {
	var opt cmdoptions
	opt.configFile = flag.String("config", "", "Path to the config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
	}
	flag.Parse()
	return opt
}
