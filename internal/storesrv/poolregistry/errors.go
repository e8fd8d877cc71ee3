package poolregistry

import (
	"net/http"

	"github.com/merchantry/merchantry/internal/common/apperrors"
)

var (
	ErrRegistry apperrors.Error = apperrors.New("connection pool registry error").SetStatusCode(http.StatusInternalServerError)

	// ErrPoolExhausted is the one condition callers are expected to retry
	// after backoff: acquisition timed out against a momentarily full pool.
	ErrPoolExhausted apperrors.Error = ErrRegistry.New("connection pool exhausted").SetStatusCode(http.StatusServiceUnavailable).SetRetryable(true)

	ErrPoolClosed     apperrors.Error = ErrRegistry.New("connection pool is closed").SetStatusCode(http.StatusServiceUnavailable)
	ErrRegistryClosed apperrors.Error = ErrRegistry.New("registry is shut down").SetStatusCode(http.StatusServiceUnavailable)
	ErrPoolCreate     apperrors.Error = ErrRegistry.New("failed to create connection pool")
	ErrQuery          apperrors.Error = ErrRegistry.New("query failed")
)
