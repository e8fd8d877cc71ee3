package resolver

import (
	"context"

	"github.com/merchantry/merchantry/internal/storesrv/catalog"
)

// ctxTenantKeyType represents the key type for the resolved tenant in the context.
type ctxTenantKeyType string

const ctxTenantKey ctxTenantKeyType = "MerchantryTenant"

// SetTenantInContext attaches the resolved tenant to the provided context.
func SetTenantInContext(ctx context.Context, tenant *catalog.Tenant) context.Context {
	return context.WithValue(ctx, ctxTenantKey, tenant)
}

// TenantFromContext retrieves the resolved tenant from the provided context.
// Returns nil when the request carries no tenant.
func TenantFromContext(ctx context.Context) *catalog.Tenant {
	if tenant, ok := ctx.Value(ctxTenantKey).(*catalog.Tenant); ok {
		return tenant
	}
	return nil
}
