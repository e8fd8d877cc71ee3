package provisioner

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/merchantry/merchantry/internal/common/apperrors"
	"github.com/rs/zerolog/log"
)

// ChangeKind classifies an incremental structural change.
type ChangeKind string

const (
	// ChangeAddTable creates a new table. Probed against
	// information_schema.tables before applying.
	ChangeAddTable ChangeKind = "add_table"
	// ChangeAddColumn adds a column to an existing table. Probed against
	// information_schema.columns before applying.
	ChangeAddColumn ChangeKind = "add_column"
	// ChangeAddIndex adds an index. Probed against pg_indexes before applying.
	ChangeAddIndex ChangeKind = "add_index"
)

// Change is one incremental structural change. The probe target (table,
// column, index name) is checked for existence before DDL runs, so applying
// a change to an already-evolved tenant is a safe no-op.
type Change struct {
	Kind   ChangeKind `json:"kind" toml:"kind"`
	Table  string     `json:"table" toml:"table"`
	Column string     `json:"column,omitempty" toml:"column"`
	Index  string     `json:"index,omitempty" toml:"index"`
	DDL    string     `json:"ddl" toml:"ddl"`
}

func (c Change) validate() apperrors.Error {
	if c.DDL == "" {
		return ErrInvalidChange.New("change has no ddl")
	}
	switch c.Kind {
	case ChangeAddTable:
		if c.Table == "" {
			return ErrInvalidChange.New("add_table change has no table")
		}
	case ChangeAddColumn:
		if c.Table == "" || c.Column == "" {
			return ErrInvalidChange.New("add_column change needs table and column")
		}
	case ChangeAddIndex:
		if c.Index == "" {
			return ErrInvalidChange.New("add_index change has no index name")
		}
	default:
		return ErrInvalidChange.New("unknown change kind: " + string(c.Kind))
	}
	return nil
}

// Changeset is a labeled batch of incremental changes applied as one unit
// per tenant.
type Changeset struct {
	Label   string   `json:"label" toml:"label"`
	Changes []Change `json:"changes" toml:"changes"`
}

// Validate checks every change in the set.
func (cs Changeset) Validate() apperrors.Error {
	if len(cs.Changes) == 0 {
		return ErrInvalidChange.New("changeset is empty")
	}
	for _, c := range cs.Changes {
		if err := c.validate(); err != nil {
			return err
		}
	}
	return nil
}

// TenantChangeResult records the outcome of one tenant in a changeset batch.
type TenantChangeResult struct {
	StorageRef string          `json:"storageRef"`
	Applied    bool            `json:"applied"`
	Err        apperrors.Error `json:"-"`
	Error      string          `json:"error,omitempty"`
}

// ApplyChangesetBatch applies a changeset across many tenants, continuing
// past individual failures: one tenant's schema drift must not block the
// rest. The returned error is nil when every tenant succeeded; otherwise it
// wraps the per-tenant failures.
func ApplyChangesetBatch(ctx context.Context, p Provisioner, storageRefs []string, cs Changeset) ([]TenantChangeResult, apperrors.Error) {
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	results := make([]TenantChangeResult, 0, len(storageRefs))
	var failures *multierror.Error
	for _, ref := range storageRefs {
		result := TenantChangeResult{StorageRef: ref}
		if err := p.ApplyChangeset(ctx, ref, cs); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("storage_ref", ref).Str("changeset", cs.Label).Msg("changeset failed for tenant")
			result.Err = err
			result.Error = err.ErrorAll()
			failures = multierror.Append(failures, err)
		} else {
			result.Applied = true
		}
		results = append(results, result)
	}
	if failures.ErrorOrNil() != nil {
		return results, ErrChangeBatchPartial.New("changeset " + cs.Label + " failed for one or more tenants").Err(failures)
	}
	return results, nil
}
