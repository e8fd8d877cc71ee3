package resolver

import (
	"net/http"

	"github.com/merchantry/merchantry/internal/common/apperrors"
)

var (
	ErrResolver apperrors.Error = apperrors.New("tenant resolver error").SetStatusCode(http.StatusInternalServerError)

	// ErrNoTenantContext is a routing signal, not a failure: the request
	// carries no tenant token at all and should continue unrouted.
	ErrNoTenantContext apperrors.Error = ErrResolver.New("no tenant context in request").SetStatusCode(http.StatusNotFound)

	ErrTenantNotFound apperrors.Error = ErrResolver.New("tenant not found").SetStatusCode(http.StatusNotFound)
	ErrTenantInactive apperrors.Error = ErrResolver.New("tenant is not serving traffic").SetStatusCode(http.StatusForbidden)
	ErrInvalidMode    apperrors.Error = ErrResolver.New("invalid addressing mode").SetStatusCode(http.StatusInternalServerError)
)
