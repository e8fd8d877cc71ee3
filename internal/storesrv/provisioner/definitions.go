package provisioner

import "github.com/merchantry/merchantry/internal/common/apperrors"

// Definition is one structural unit of a tenant's backing store. Its DDL
// must be idempotent: applying it against a store that already carries the
// structure is a no-op. Requires names the definitions that must have been
// applied first (tables referenced by foreign keys, tables behind indexes).
type Definition struct {
	Name     string
	Requires []string
	DDL      string
}

// storefrontDefinitions is the full ordered table set of a merchant store.
// Order matters: a definition may only depend on entries that precede it.
var storefrontDefinitions = []Definition{
	{
		Name: "products",
		DDL: `
			CREATE TABLE IF NOT EXISTS products (
				product_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				sku VARCHAR(64) NOT NULL UNIQUE,
				name VARCHAR(256) NOT NULL,
				description TEXT,
				price_cents BIGINT NOT NULL DEFAULT 0,
				stock_count INT NOT NULL DEFAULT 0,
				is_visible BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);
		`,
	},
	{
		Name: "customers",
		DDL: `
			CREATE TABLE IF NOT EXISTS customers (
				customer_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				email VARCHAR(256) NOT NULL UNIQUE,
				name VARCHAR(256) NOT NULL,
				phone VARCHAR(32),
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);
		`,
	},
	{
		Name:     "orders",
		Requires: []string{"customers"},
		DDL: `
			CREATE TABLE IF NOT EXISTS orders (
				order_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				customer_id UUID NOT NULL REFERENCES customers(customer_id),
				state VARCHAR(16) NOT NULL DEFAULT 'pending',
				total_cents BIGINT NOT NULL DEFAULT 0,
				placed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);
		`,
	},
	{
		Name:     "order_items",
		Requires: []string{"orders", "products"},
		DDL: `
			CREATE TABLE IF NOT EXISTS order_items (
				order_item_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				order_id UUID NOT NULL REFERENCES orders(order_id) ON DELETE CASCADE,
				product_id UUID NOT NULL REFERENCES products(product_id),
				quantity INT NOT NULL DEFAULT 1,
				unit_price_cents BIGINT NOT NULL
			);
		`,
	},
	{
		Name: "coupons",
		DDL: `
			CREATE TABLE IF NOT EXISTS coupons (
				coupon_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				code VARCHAR(64) NOT NULL UNIQUE,
				discount_percent INT NOT NULL CHECK (discount_percent BETWEEN 0 AND 100),
				valid_from TIMESTAMPTZ,
				valid_until TIMESTAMPTZ,
				max_redemptions INT,
				redeemed_count INT NOT NULL DEFAULT 0
			);
		`,
	},
	{
		Name: "staff",
		DDL: `
			CREATE TABLE IF NOT EXISTS staff (
				staff_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				email VARCHAR(256) NOT NULL UNIQUE,
				name VARCHAR(256) NOT NULL,
				role VARCHAR(32) NOT NULL DEFAULT 'clerk',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);
		`,
	},
	{
		Name:     "activity_log",
		Requires: []string{"staff"},
		DDL: `
			CREATE TABLE IF NOT EXISTS activity_log (
				entry_id BIGSERIAL PRIMARY KEY,
				staff_id UUID REFERENCES staff(staff_id),
				action VARCHAR(64) NOT NULL,
				detail TEXT,
				logged_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);
		`,
	},
	{
		Name: "settings",
		DDL: `
			CREATE TABLE IF NOT EXISTS settings (
				key VARCHAR(64) PRIMARY KEY,
				value TEXT NOT NULL
			);
		`,
	},
	{
		Name:     "settings_seed",
		Requires: []string{"settings"},
		DDL: `
			INSERT INTO settings (key, value) VALUES
				('currency', 'USD'),
				('orders_per_page', '25')
			ON CONFLICT (key) DO NOTHING;
		`,
	},
	{
		Name:     "orders_customer_idx",
		Requires: []string{"orders"},
		DDL:      `CREATE INDEX IF NOT EXISTS orders_customer_idx ON orders (customer_id);`,
	},
	{
		Name:     "order_items_order_idx",
		Requires: []string{"order_items"},
		DDL:      `CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items (order_id);`,
	},
	{
		Name:     "activity_log_time_idx",
		Requires: []string{"activity_log"},
		DDL:      `CREATE INDEX IF NOT EXISTS activity_log_time_idx ON activity_log (logged_at);`,
	},
}

// validateOrder checks that every definition's dependencies appear earlier
// in the list. A violation fails with ErrDependencyOrder naming the
// definition and the dependency it is missing.
func validateOrder(defs []Definition) apperrors.Error {
	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		for _, req := range def.Requires {
			if _, ok := seen[req]; !ok {
				return ErrDependencyOrder.New("definition " + def.Name + " requires " + req + " which has not been applied")
			}
		}
		seen[def.Name] = struct{}{}
	}
	return nil
}
