package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

type ControlDBParam struct {
	Host     string `toml:"host" validate:"required"`
	Port     int    `toml:"port" validate:"required,gt=0"`
	User     string `toml:"user" validate:"required"`
	Password string `toml:"password"`
	DBName   string `toml:"dbname" validate:"required"`
	SSLMode  string `toml:"sslmode" validate:"oneof=disable require verify-ca verify-full"`
}

type TenantPoolParam struct {
	MaxOpenConns   int    `toml:"max_open_conns" validate:"gt=0"`
	MaxIdleConns   int    `toml:"max_idle_conns" validate:"gte=0"`
	AcquireTimeout string `toml:"acquire_timeout" validate:"required"`
	DrainGrace     string `toml:"drain_grace" validate:"required"`
}

type ConfigParam struct {
	ServerPort       string          `toml:"server_port" validate:"required"`
	HandleCORS       bool            `toml:"handle_cors"`
	AddressingMode   string          `toml:"addressing_mode" validate:"oneof=directory subdomain"`
	BaseDomain       string          `toml:"base_domain"`
	ReservedTokens   []string        `toml:"reserved_tokens"`
	ResolverCacheTTL string          `toml:"resolver_cache_ttl"`
	ControlDB        ControlDBParam  `toml:"control_db" validate:"required"`
	TenantPools      TenantPoolParam `toml:"tenant_pools" validate:"required"`
}

var cfg *ConfigParam

func Config() *ConfigParam {
	return cfg
}

func defaultConfig() *ConfigParam {
	return &ConfigParam{
		ServerPort:       "8210",
		HandleCORS:       true,
		AddressingMode:   "directory",
		BaseDomain:       "",
		ReservedTokens:   []string{"admin", "api", "www", "static", "assets"},
		ResolverCacheTTL: "0s",
		ControlDB: ControlDBParam{
			Host:     "localhost",
			Port:     5432,
			User:     "storefront_api",
			Password: "abc@123",
			DBName:   "storefront_control",
			SSLMode:  "disable",
		},
		TenantPools: TenantPoolParam{
			MaxOpenConns:   10,
			MaxIdleConns:   2,
			AcquireTimeout: "3s",
			DrainGrace:     "10s",
		},
	}
}

func LoadConfig(filename string) error {
	if filename == "" {
		cfg = defaultConfig()
		return nil
	}
	// Read the config file
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}
	// Parse the config file
	cp := defaultConfig()
	if _, err := toml.Decode(string(content), cp); err != nil {
		return fmt.Errorf("error parsing config file: %v", err)
	}
	if err := validateConfig(cp); err != nil {
		return err
	}
	// assign config to global cfg
	cfg = cp
	return nil
}

func validateConfig(cp *ConfigParam) error {
	v := validator.New()
	if err := v.Struct(cp); err != nil {
		return fmt.Errorf("invalid config: %v", err)
	}
	if _, err := time.ParseDuration(cp.TenantPools.AcquireTimeout); err != nil {
		return fmt.Errorf("invalid acquire_timeout: %v", err)
	}
	if _, err := time.ParseDuration(cp.TenantPools.DrainGrace); err != nil {
		return fmt.Errorf("invalid drain_grace: %v", err)
	}
	if cp.ResolverCacheTTL != "" {
		if _, err := time.ParseDuration(cp.ResolverCacheTTL); err != nil {
			return fmt.Errorf("invalid resolver_cache_ttl: %v", err)
		}
	}
	if cp.AddressingMode == "subdomain" && cp.BaseDomain == "" {
		return fmt.Errorf("invalid config: base_domain is required in subdomain mode")
	}
	return nil
}

// ControlDsn returns the DSN of the control-plane database.
func ControlDsn() string {
	c := cfg.ControlDB
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// TenantDsn returns the DSN of a tenant's backing database.
func TenantDsn(storageRef string) string {
	c := cfg.ControlDB
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, storageRef, c.SSLMode)
}

// AcquireTimeout returns the parsed pool acquisition timeout.
func AcquireTimeout() time.Duration {
	d, err := time.ParseDuration(cfg.TenantPools.AcquireTimeout)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// DrainGrace returns the parsed pool drain grace period.
func DrainGrace() time.Duration {
	d, err := time.ParseDuration(cfg.TenantPools.DrainGrace)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ResolverCacheTTL returns the parsed resolver cache TTL. Zero disables the cache.
func ResolverCacheTTL() time.Duration {
	if cfg.ResolverCacheTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(cfg.ResolverCacheTTL)
	if err != nil {
		return 0
	}
	return d
}

func init() {
	err := LoadConfig("")
	if err != nil {
		panic(err)
	}
}
