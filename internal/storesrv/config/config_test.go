package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storesrv.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	err := LoadConfig("")
	require.NoError(t, err)
	cfg := Config()
	assert.Equal(t, "8210", cfg.ServerPort)
	assert.Equal(t, "directory", cfg.AddressingMode)
	assert.Contains(t, cfg.ReservedTokens, "admin")
	assert.Equal(t, 3*time.Second, AcquireTimeout())
	assert.Equal(t, time.Duration(0), ResolverCacheTTL())
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
server_port = "9000"
addressing_mode = "subdomain"
base_domain = "example.com"
resolver_cache_ttl = "2s"

[control_db]
host = "db.internal"
port = 5433
user = "store"
password = "secret"
dbname = "control"
sslmode = "require"

[tenant_pools]
max_open_conns = 4
max_idle_conns = 1
acquire_timeout = "500ms"
drain_grace = "5s"
`)
	err := LoadConfig(path)
	require.NoError(t, err)
	cfg := Config()
	assert.Equal(t, "9000", cfg.ServerPort)
	assert.Equal(t, "subdomain", cfg.AddressingMode)
	assert.Equal(t, "example.com", cfg.BaseDomain)
	assert.Equal(t, 500*time.Millisecond, AcquireTimeout())
	assert.Equal(t, 2*time.Second, ResolverCacheTTL())
	assert.Equal(t, "host=db.internal port=5433 user=store password=secret dbname=control sslmode=require", ControlDsn())
	assert.Equal(t, "host=db.internal port=5433 user=store password=secret dbname=store_acme_x1 sslmode=require", TenantDsn("store_acme_x1"))

	// restore defaults for other tests
	require.NoError(t, LoadConfig(""))
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "bad addressing mode",
			content: `
server_port = "9000"
addressing_mode = "header"
`,
		},
		{
			name: "subdomain mode without base domain",
			content: `
server_port = "9000"
addressing_mode = "subdomain"
`,
		},
		{
			name: "bad acquire timeout",
			content: `
server_port = "9000"
addressing_mode = "directory"

[tenant_pools]
max_open_conns = 4
max_idle_conns = 1
acquire_timeout = "soon"
drain_grace = "5s"
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			assert.Error(t, LoadConfig(path))
		})
	}
	require.NoError(t, LoadConfig(""))
}
