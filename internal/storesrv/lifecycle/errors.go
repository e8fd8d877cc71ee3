package lifecycle

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/merchantry/merchantry/internal/common/apperrors"
)

var (
	ErrLifecycle apperrors.Error = apperrors.New("tenant lifecycle error").SetStatusCode(http.StatusInternalServerError)

	ErrInvalidInput apperrors.Error = ErrLifecycle.New("invalid tenant input").SetStatusCode(http.StatusBadRequest)

	// ErrPartialDeleteFailure marks a delete that stopped traffic (the
	// catalog record is gone) but left a pool or storage behind. It always
	// needs operator attention and is never silently discarded.
	ErrPartialDeleteFailure apperrors.Error = ErrLifecycle.New("partial tenant delete failure")
)

// Delete steps reported in a PartialDeleteError.
const (
	StepEvictPool          = "evict_pool"
	StepDeprovisionStorage = "deprovision_storage"
)

// PartialDeleteError carries enough structured detail to drive manual or
// automated cleanup of the orphaned pool/storage. It travels inside the
// wrapped-error chain of ErrPartialDeleteFailure; retrieve it with errors.As.
type PartialDeleteError struct {
	TenantID   uuid.UUID
	StorageRef string
	Step       string
	cause      error
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("tenant %s storage %s: step %s failed", e.TenantID, e.StorageRef, e.Step)
}

func (e *PartialDeleteError) Unwrap() error {
	return e.cause
}

func newPartialDeleteError(tenantID uuid.UUID, storageRef, step string, cause error) apperrors.Error {
	pd := &PartialDeleteError{
		TenantID:   tenantID,
		StorageRef: storageRef,
		Step:       step,
		cause:      cause,
	}
	return ErrPartialDeleteFailure.New(pd.Error()).Err(pd)
}
