package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/merchantry/merchantry/internal/common/apperrors"
	"github.com/rs/zerolog/log"
)

// pgUniqueViolation is the SQLSTATE reported for unique constraint violations.
const pgUniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// postgresStore implements Store over the control-plane database.
type postgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a Store backed by the given control-plane database.
func NewPostgresStore(db *sql.DB) Store {
	return &postgresStore{db: db}
}

// EnsureSchema creates the control-plane tenants table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) apperrors.Error {
	query := `
		CREATE TABLE IF NOT EXISTS tenants (
			tenant_id UUID PRIMARY KEY,
			name VARCHAR(128) NOT NULL,
			domain VARCHAR(128) NOT NULL UNIQUE,
			storage_ref VARCHAR(128) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to ensure control-plane schema")
		return ErrCatalog.New("failed to ensure control-plane schema").Err(err)
	}
	return nil
}

func (s *postgresStore) Create(ctx context.Context, tenant *Tenant) apperrors.Error {
	if err := validateTenant(tenant); err != nil {
		return err
	}
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	query, args, errq := psql.Insert("tenants").
		Columns("tenant_id", "name", "domain", "storage_ref", "status", "created_at", "updated_at").
		Values(tenant.ID, tenant.Name, tenant.Domain, tenant.StorageRef, tenant.Status, tenant.CreatedAt, tenant.UpdatedAt).
		ToSql()
	if errq != nil {
		return ErrCatalog.New("failed to build insert query").Err(errq)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			log.Ctx(ctx).Info().Str("domain", tenant.Domain).Msg("tenant domain already exists")
			return ErrDuplicateDomain.New("domain already exists: " + tenant.Domain)
		}
		log.Ctx(ctx).Error().Err(err).Str("domain", tenant.Domain).Msg("failed to insert tenant")
		return ErrCatalog.New("failed to insert tenant").Err(err)
	}
	return nil
}

func (s *postgresStore) GetByDomain(ctx context.Context, domain string) (*Tenant, apperrors.Error) {
	if domain == "" {
		return nil, ErrValidation.New("tenant domain is required")
	}
	return s.getOne(ctx, sq.Eq{"domain": domain})
}

func (s *postgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, apperrors.Error) {
	if id == uuid.Nil {
		return nil, ErrValidation.New("tenant id is required")
	}
	return s.getOne(ctx, sq.Eq{"tenant_id": id})
}

func (s *postgresStore) getOne(ctx context.Context, pred sq.Eq) (*Tenant, apperrors.Error) {
	query, args, errq := psql.Select("tenant_id", "name", "domain", "storage_ref", "status", "created_at", "updated_at").
		From("tenants").
		Where(pred).
		ToSql()
	if errq != nil {
		return nil, ErrCatalog.New("failed to build select query").Err(errq)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	tenant := &Tenant{}
	err := row.Scan(&tenant.ID, &tenant.Name, &tenant.Domain, &tenant.StorageRef, &tenant.Status, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound.New("tenant not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to query tenant")
		return nil, ErrCatalog.New("failed to query tenant").Err(err)
	}
	return tenant, nil
}

func (s *postgresStore) List(ctx context.Context) ([]*Tenant, apperrors.Error) {
	query, args, errq := psql.Select("tenant_id", "name", "domain", "storage_ref", "status", "created_at", "updated_at").
		From("tenants").
		OrderBy("created_at ASC").
		ToSql()
	if errq != nil {
		return nil, ErrCatalog.New("failed to build list query").Err(errq)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list tenants")
		return nil, ErrCatalog.New("failed to list tenants").Err(err)
	}
	defer rows.Close()

	tenants := []*Tenant{}
	for rows.Next() {
		tenant := &Tenant{}
		if err := rows.Scan(&tenant.ID, &tenant.Name, &tenant.Domain, &tenant.StorageRef, &tenant.Status, &tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
			return nil, ErrCatalog.New("failed to scan tenant row").Err(err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrCatalog.New("failed to read tenant rows").Err(err)
	}
	return tenants, nil
}

func (s *postgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Tenant, apperrors.Error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus.New("invalid tenant status: " + string(status))
	}
	query, args, errq := psql.Update("tenants").
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"tenant_id": id}).
		Suffix("RETURNING tenant_id, name, domain, storage_ref, status, created_at, updated_at").
		ToSql()
	if errq != nil {
		return nil, ErrCatalog.New("failed to build update query").Err(errq)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	tenant := &Tenant{}
	err := row.Scan(&tenant.ID, &tenant.Name, &tenant.Domain, &tenant.StorageRef, &tenant.Status, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound.New("tenant not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("tenant_id", id.String()).Msg("failed to update tenant status")
		return nil, ErrCatalog.New("failed to update tenant status").Err(err)
	}
	return tenant, nil
}

func (s *postgresStore) Delete(ctx context.Context, id uuid.UUID) apperrors.Error {
	query, args, errq := psql.Delete("tenants").
		Where(sq.Eq{"tenant_id": id}).
		ToSql()
	if errq != nil {
		return ErrCatalog.New("failed to build delete query").Err(errq)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("tenant_id", id.String()).Msg("failed to delete tenant")
		return ErrCatalog.New("failed to delete tenant").Err(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound.New("tenant not found")
	}
	return nil
}
