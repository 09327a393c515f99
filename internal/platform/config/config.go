package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	JWT      JWTConfig      `json:"jwt"`
	Security SecurityConfig `json:"security"`
	Cache    CacheConfig    `json:"cache"`
	Query    QueryConfig    `json:"query"`
}

type ServerConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	BaseRoute string `json:"baseRoute"`
	WebDomain string `json:"webDomain"`
	Debug     bool   `json:"debug"`
}

type DatabaseConfig struct {
	Type          string           `json:"type"`
	Postgres      PostgreSQLConfig `json:"postgres"`
	RunMigrations bool             `json:"runMigrations"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	Database        string        `json:"database"`
	Schema          string        `json:"schema"`
	DSN             string        `json:"dsn"`
	SSLMode         string        `json:"sslMode"`
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}

// JWTConfig holds the ES256 key pair (PEM) used to sign and verify access tokens.
type JWTConfig struct {
	PublicKey  string        `json:"publicKey"`
	PrivateKey string        `json:"privateKey"`
	Issuer     string        `json:"issuer"`
	TokenTTL   time.Duration `json:"tokenTTL"`
}

type SecurityConfig struct {
	BcryptCost         int     `json:"bcryptCost"`
	MinPasswordScore   int     `json:"minPasswordScore"`
	MinPasswordEntropy float64 `json:"minPasswordEntropy"`
	// SuperRole bypasses permission checks.
	SuperRole string `json:"superRole"`
	// Login attempts allowed per client IP within LoginWindow.
	LoginMaxAttempts int           `json:"loginMaxAttempts"`
	LoginWindow      time.Duration `json:"loginWindow"`
}

type CacheConfig struct {
	Enabled         bool          `json:"enabled"`
	Backend         string        `json:"backend"`
	Prefix          string        `json:"prefix"`
	TTL             time.Duration `json:"ttl"`
	MaxMemory       int64         `json:"maxMemory"`
	CleanupInterval time.Duration `json:"cleanupInterval"`
	Redis           RedisConfig   `json:"redis"`
}

type RedisConfig struct {
	Address      string        `json:"address"`
	Password     string        `json:"password"`
	Database     int           `json:"database"`
	PoolSize     int           `json:"poolSize"`
	MinIdleConns int           `json:"minIdleConns"`
	MaxConnAge   time.Duration `json:"maxConnAge"`
	ClusterAddrs []string      `json:"clusterAddrs"`
}

// QueryConfig bounds pagination of compiled queries.
type QueryConfig struct {
	DefaultPageSize int `json:"defaultPageSize"`
	MaxPageSize     int `json:"maxPageSize"`
}

// LoadFromEnv loads configuration from the environment. Explicit environment
// variables win over values from a .env file, which win over defaults.
func LoadFromEnv() (*Config, error) {
	envPaths := []string{".env", "../.env", "../../.env"}

	var loadErr error
	for _, envPath := range envPaths {
		if loadErr = godotenv.Load(envPath); loadErr == nil {
			break
		}
	}
	if loadErr != nil {
		fmt.Println("INFO: .env file not found, using environment variables and defaults.")
	}

	return load(os.LookupEnv)
}

// LoadFromMap loads configuration from an in-memory map without touching the
// process environment. Tests use it.
func LoadFromMap(envMap map[string]string) (*Config, error) {
	return load(func(key string) (string, bool) {
		v, ok := envMap[key]
		return v, ok
	})
}

type lookupFunc func(key string) (string, bool)

func load(lookup lookupFunc) (*Config, error) {
	e := env{lookup: lookup}

	cfg := &Config{
		Server: ServerConfig{
			Host:      e.get("HOST", "localhost"),
			Port:      e.getInt("SERVER_PORT", 8080),
			BaseRoute: e.get("BASE_ROUTE", "/api"),
			WebDomain: e.get("WEB_DOMAIN", "http://localhost:3000"),
			Debug:     e.getBool("DEBUG", false),
		},
		Database: DatabaseConfig{
			Type: e.get("DB_TYPE", "postgresql"),
			Postgres: PostgreSQLConfig{
				Host:            e.get("POSTGRES_HOST", "localhost"),
				Port:            e.getInt("POSTGRES_PORT", 5432),
				Username:        e.get("POSTGRES_USERNAME", "postgres"),
				Password:        e.get("POSTGRES_PASSWORD", ""),
				Database:        e.get("POSTGRES_DATABASE", "forge"),
				Schema:          e.get("POSTGRES_SCHEMA", ""),
				DSN:             e.get("POSTGRES_DSN", ""),
				SSLMode:         e.get("POSTGRES_SSL_MODE", "disable"),
				MaxOpenConns:    e.getInt("POSTGRES_MAX_OPEN_CONNS", 25),
				MaxIdleConns:    e.getInt("POSTGRES_MAX_IDLE_CONNS", 5),
				ConnMaxLifetime: e.getSeconds("POSTGRES_CONN_MAX_LIFETIME", 300*time.Second),
			},
			RunMigrations: e.getBool("DB_RUN_MIGRATIONS", true),
		},
		JWT: JWTConfig{
			PublicKey:  e.get("JWT_PUBLIC_KEY", ""),
			PrivateKey: e.get("JWT_PRIVATE_KEY", ""),
			Issuer:     e.get("JWT_ISSUER", "forge"),
			TokenTTL:   e.getDuration("JWT_TOKEN_TTL", 24*time.Hour),
		},
		Security: SecurityConfig{
			BcryptCost:         e.getInt("SECURITY_BCRYPT_COST", 10),
			MinPasswordScore:   e.getInt("SECURITY_MIN_PASSWORD_SCORE", 3),
			MinPasswordEntropy: e.getFloat("SECURITY_MIN_PASSWORD_ENTROPY", 37),
			SuperRole:          e.get("SECURITY_SUPER_ROLE", "admin"),
			LoginMaxAttempts:   e.getInt("SECURITY_LOGIN_MAX_ATTEMPTS", 5),
			LoginWindow:        e.getDuration("SECURITY_LOGIN_WINDOW", 15*time.Minute),
		},
		Cache: CacheConfig{
			Enabled:         e.getBool("CACHE_ENABLED", true),
			Backend:         e.get("CACHE_BACKEND", "memory"),
			Prefix:          e.get("CACHE_PREFIX", "forge"),
			TTL:             e.getDuration("CACHE_TTL", 15*time.Minute),
			MaxMemory:       e.getInt64("CACHE_MAX_MEMORY", 100*1024*1024),
			CleanupInterval: e.getDuration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
			Redis: RedisConfig{
				Address:      e.get("REDIS_ADDRESS", "localhost:6379"),
				Password:     e.get("REDIS_PASSWORD", ""),
				Database:     e.getInt("REDIS_DATABASE", 0),
				PoolSize:     e.getInt("REDIS_POOL_SIZE", 10),
				MinIdleConns: e.getInt("REDIS_MIN_IDLE_CONNS", 2),
				MaxConnAge:   e.getDuration("REDIS_MAX_CONN_AGE", 30*time.Minute),
				ClusterAddrs: e.getList("REDIS_CLUSTER_ADDRS"),
			},
		},
		Query: QueryConfig{
			DefaultPageSize: e.getInt("QUERY_DEFAULT_PAGE_SIZE", 10),
			MaxPageSize:     e.getInt("QUERY_MAX_PAGE_SIZE", 500),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration for required fields
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.JWT.PublicKey) == "" {
		errs = append(errs, "JWT_PUBLIC_KEY is required")
	}
	if strings.TrimSpace(c.JWT.PrivateKey) == "" {
		errs = append(errs, "JWT_PRIVATE_KEY is required")
	}
	if c.Database.Type != "postgresql" {
		errs = append(errs, "DB_TYPE must be one of: postgresql")
	}
	if c.Query.DefaultPageSize <= 0 || c.Query.MaxPageSize <= 0 {
		errs = append(errs, "QUERY_DEFAULT_PAGE_SIZE and QUERY_MAX_PAGE_SIZE must be positive")
	} else if c.Query.DefaultPageSize > c.Query.MaxPageSize {
		errs = append(errs, "QUERY_DEFAULT_PAGE_SIZE must not exceed QUERY_MAX_PAGE_SIZE")
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, "CACHE_BACKEND must be one of: memory, redis")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// env reads typed values, falling back to the default when a key is absent,
// empty or unparsable.
type env struct {
	lookup lookupFunc
}

func (e env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e env) get(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e env) getInt(key string, def int) int {
	if v, ok := e.raw(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (e env) getInt64(key string, def int64) int64 {
	if v, ok := e.raw(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func (e env) getFloat(key string, def float64) float64 {
	if v, ok := e.raw(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (e env) getBool(key string, def bool) bool {
	if v, ok := e.raw(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func (e env) getDuration(key string, def time.Duration) time.Duration {
	if v, ok := e.raw(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getSeconds accepts a plain number of seconds or a duration string.
func (e env) getSeconds(key string, def time.Duration) time.Duration {
	if v, ok := e.raw(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func (e env) getList(key string) []string {
	v, ok := e.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
