package provisioner

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/jackc/pgconn"
	"github.com/lib/pq"
	"github.com/merchantry/merchantry/internal/common/apperrors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// pgDuplicateDatabase is the SQLSTATE reported when CREATE DATABASE loses a
// race to a concurrent creation of the same database.
const pgDuplicateDatabase = "42P04"

// OpenFunc opens a connection pool to a tenant's backing database. The
// provisioner closes what it opens.
type OpenFunc func(ctx context.Context, storageRef string) (*sql.DB, error)

// postgresProvisioner provisions one PostgreSQL database per tenant.
type postgresProvisioner struct {
	control *sql.DB // control-plane connection, used for CREATE/DROP DATABASE
	open    OpenFunc
	defs    []Definition
}

// NewPostgresProvisioner returns a Provisioner that manages per-tenant
// PostgreSQL databases using the storefront definition set.
func NewPostgresProvisioner(control *sql.DB, open OpenFunc) Provisioner {
	return &postgresProvisioner{
		control: control,
		open:    open,
		defs:    storefrontDefinitions,
	}
}

func (p *postgresProvisioner) Provision(ctx context.Context, storageRef string) apperrors.Error {
	if !ValidStorageRef(storageRef) {
		return ErrInvalidStorageRef.New("invalid storage ref: " + storageRef)
	}
	if err := validateOrder(p.defs); err != nil {
		return err
	}
	if err := p.ensureDatabase(ctx, storageRef); err != nil {
		return err
	}

	db, errOpen := p.open(ctx, storageRef)
	if errOpen != nil {
		log.Ctx(ctx).Error().Err(errOpen).Str("storage_ref", storageRef).Msg("failed to connect to tenant store")
		return ErrProvisionFailed.New("failed to connect to storage: " + storageRef).Err(errOpen)
	}
	defer db.Close()

	for _, def := range p.defs {
		if _, err := db.ExecContext(ctx, def.DDL); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("storage_ref", storageRef).Str("definition", def.Name).Msg("failed to apply definition")
			return ErrProvisionFailed.New("failed to provision " + storageRef).Err(errors.Wrapf(err, "apply definition %s", def.Name))
		}
	}
	log.Ctx(ctx).Info().Str("storage_ref", storageRef).Int("definitions", len(p.defs)).Msg("storage provisioned")
	return nil
}

// ensureDatabase creates the tenant database when absent. PostgreSQL has no
// IF NOT EXISTS for CREATE DATABASE, so existence is probed first and the
// duplicate-database SQLSTATE covers the remaining creation race.
func (p *postgresProvisioner) ensureDatabase(ctx context.Context, storageRef string) apperrors.Error {
	var exists bool
	err := p.control.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", storageRef).Scan(&exists)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("storage_ref", storageRef).Msg("failed to probe for database")
		return ErrProvisionFailed.New("failed to probe for storage: " + storageRef).Err(err)
	}
	if exists {
		return nil
	}

	if _, err := p.control.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(storageRef)); err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == pgDuplicateDatabase {
			return nil
		}
		log.Ctx(ctx).Error().Err(err).Str("storage_ref", storageRef).Msg("failed to create database")
		return ErrProvisionFailed.New("failed to create storage: " + storageRef).Err(err)
	}
	return nil
}

func (p *postgresProvisioner) Deprovision(ctx context.Context, storageRef string) apperrors.Error {
	if !ValidStorageRef(storageRef) {
		return ErrInvalidStorageRef.New("invalid storage ref: " + storageRef)
	}

	// Sever remaining backends first so the drop does not block on
	// connections that were still draining.
	_, err := p.control.ExecContext(ctx,
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()", storageRef)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("storage_ref", storageRef).Msg("failed to terminate tenant backends")
		return ErrDeprovisionFailed.New("failed to terminate backends for " + storageRef).Err(err)
	}

	if _, err := p.control.ExecContext(ctx, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(storageRef)); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("storage_ref", storageRef).Msg("failed to drop database")
		return ErrDeprovisionFailed.New("failed to drop storage: " + storageRef).Err(err)
	}
	log.Ctx(ctx).Info().Str("storage_ref", storageRef).Msg("storage deprovisioned")
	return nil
}

func (p *postgresProvisioner) ApplyChangeset(ctx context.Context, storageRef string, cs Changeset) apperrors.Error {
	if !ValidStorageRef(storageRef) {
		return ErrInvalidStorageRef.New("invalid storage ref: " + storageRef)
	}
	if err := cs.Validate(); err != nil {
		return err
	}

	db, errOpen := p.open(ctx, storageRef)
	if errOpen != nil {
		return ErrChangeFailed.New("failed to connect to storage: " + storageRef).Err(errOpen)
	}
	defer db.Close()

	for _, change := range cs.Changes {
		exists, err := p.changeExists(ctx, db, change)
		if err != nil {
			return err
		}
		if exists {
			log.Ctx(ctx).Debug().Str("storage_ref", storageRef).Str("table", change.Table).Msg("change already applied, skipping")
			continue
		}
		if _, err := db.ExecContext(ctx, change.DDL); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("storage_ref", storageRef).Str("table", change.Table).Msg("failed to apply change")
			return ErrChangeFailed.New("failed to apply change to " + storageRef).Err(errors.Wrapf(err, "apply %s change on %s", change.Kind, change.Table))
		}
	}
	log.Ctx(ctx).Info().Str("storage_ref", storageRef).Str("changeset", cs.Label).Msg("changeset applied")
	return nil
}

// changeExists probes catalog state for the change's target. There is no
// persisted schema version to compare against; existence of the structure
// itself is the source of truth.
func (p *postgresProvisioner) changeExists(ctx context.Context, db *sql.DB, change Change) (bool, apperrors.Error) {
	var query string
	var args []any
	switch change.Kind {
	case ChangeAddTable:
		query = "SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)"
		args = []any{change.Table}
	case ChangeAddColumn:
		query = "SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2)"
		args = []any{change.Table, change.Column}
	case ChangeAddIndex:
		query = "SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE schemaname = 'public' AND indexname = $1)"
		args = []any{change.Index}
	default:
		return false, ErrInvalidChange.New("unknown change kind: " + string(change.Kind))
	}

	var exists bool
	if err := db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, ErrChangeFailed.New("failed to probe for existing structure").Err(err)
	}
	return exists, nil
}
