package catalog

import (
	"net/http"

	"github.com/merchantry/merchantry/internal/common/apperrors"
)

var (
	ErrCatalog         apperrors.Error = apperrors.New("tenant catalog error").SetStatusCode(http.StatusInternalServerError)
	ErrValidation      apperrors.Error = ErrCatalog.New("invalid tenant input").SetStatusCode(http.StatusBadRequest)
	ErrDuplicateDomain apperrors.Error = ErrCatalog.New("domain already exists").SetStatusCode(http.StatusConflict)
	ErrNotFound        apperrors.Error = ErrCatalog.New("tenant not found").SetStatusCode(http.StatusNotFound)
	ErrInvalidStatus   apperrors.Error = ErrCatalog.New("invalid tenant status").SetStatusCode(http.StatusBadRequest)
)
