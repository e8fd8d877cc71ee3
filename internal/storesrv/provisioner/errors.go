package provisioner

import (
	"net/http"

	"github.com/merchantry/merchantry/internal/common/apperrors"
)

var (
	ErrProvisioner apperrors.Error = apperrors.New("schema provisioner error").SetStatusCode(http.StatusInternalServerError)

	// ErrDependencyOrder indicates a structural definition was declared before
	// one of its dependencies. This is a programming error in the definition
	// set, not a runtime condition.
	ErrDependencyOrder apperrors.Error = ErrProvisioner.New("definition dependency out of order")

	ErrInvalidStorageRef  apperrors.Error = ErrProvisioner.New("invalid storage ref").SetStatusCode(http.StatusBadRequest)
	ErrInvalidChange      apperrors.Error = ErrProvisioner.New("invalid schema change").SetStatusCode(http.StatusBadRequest)
	ErrProvisionFailed    apperrors.Error = ErrProvisioner.New("failed to provision storage")
	ErrDeprovisionFailed  apperrors.Error = ErrProvisioner.New("failed to deprovision storage")
	ErrChangeFailed       apperrors.Error = ErrProvisioner.New("failed to apply schema change")
	ErrChangeBatchPartial apperrors.Error = ErrProvisioner.New("schema change batch had failures")
)
