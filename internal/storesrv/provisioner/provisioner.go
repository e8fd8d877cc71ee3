// Package provisioner brings a tenant's isolated backing store to its
// expected structural state, idempotently. Provisioning is not atomic: a
// failure mid-way leaves the store partially applied, and the caller is
// responsible for deprovisioning as a compensating action.
package provisioner

import (
	"context"
	"regexp"

	"github.com/merchantry/merchantry/internal/common/apperrors"
)

// Provisioner creates, evolves and destroys per-tenant backing stores.
type Provisioner interface {
	// Provision creates the backing store if absent, then applies every
	// structural definition in dependency order. Safe to re-run: existing
	// structures are no-ops and newly-added definitions still apply.
	Provision(ctx context.Context, storageRef string) apperrors.Error
	// Deprovision irreversibly destroys the backing store and all its data.
	// Callers must have confirmed no component holds a live reference.
	Deprovision(ctx context.Context, storageRef string) apperrors.Error
	// ApplyChangeset applies an incremental changeset to one tenant,
	// probing for existing structure before each change.
	ApplyChangeset(ctx context.Context, storageRef string, cs Changeset) apperrors.Error
}

// storage refs are used as database identifiers and are never quoted by the
// caller, so the character set is restricted up front.
var storageRefPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidStorageRef reports whether ref is usable as a backing store name.
func ValidStorageRef(ref string) bool {
	return storageRefPattern.MatchString(ref)
}
