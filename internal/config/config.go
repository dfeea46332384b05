// Package config defines the top-level configuration for the predictd
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PREDICTD_* environment
// variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Engine   EngineConfig   `toml:"engine"`
	Agent    AgentConfig    `toml:"agent"`
	Chain    ChainConfig    `toml:"chain"`
	Storage  string         `toml:"storage"` // "postgres" or "memory"
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds the HTTP API parameters.
type ServerConfig struct {
	Host            string        `toml:"host"`
	Port            int           `toml:"port"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	CORSOrigins     []string      `toml:"cors_origins"`
	AdminAPIKey     string        `toml:"admin_api_key"` // empty disables admin auth
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis backs the signal bus,
// the async trade queue, and agent leases; when disabled the in-process
// equivalents are used.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// EngineConfig tunes the trading core.
type EngineConfig struct {
	LockWait    time.Duration `toml:"lock_wait"`
	AsyncTrades bool          `toml:"async_trades"`
}

// AgentConfig tunes the background resolution loop.
type AgentConfig struct {
	Enabled            bool          `toml:"enabled"`
	ResolutionInterval time.Duration `toml:"resolution_interval"`
	OracleBaseURL      string        `toml:"oracle_base_url"`
}

// ChainConfig holds the on-chain deposit listener and withdrawal signer
// parameters.
type ChainConfig struct {
	Enabled          bool   `toml:"enabled"`
	WSURL            string `toml:"ws_url"`
	VaultAddress     string `toml:"vault_address"`
	ChainID          int64  `toml:"chain_id"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// Defaults returns the built-in configuration used when a field is absent
// from the TOML file.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "predictd",
			User:          "predictd",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Engine: EngineConfig{
			LockWait:    5 * time.Second,
			AsyncTrades: false,
		},
		Agent: AgentConfig{
			Enabled:            true,
			ResolutionInterval: 10 * time.Second,
		},
		Chain: ChainConfig{
			ChainID: 137,
		},
		Storage:  "postgres",
		LogLevel: "info",
	}
}

// Validate checks cross-field invariants and returns the first problem
// found.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage) {
	case "postgres":
		if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Database == "") {
			return fmt.Errorf("config: postgres storage needs a dsn or host/database")
		}
	case "memory":
	default:
		return fmt.Errorf("config: storage must be \"postgres\" or \"memory\", got %q", c.Storage)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server port %d out of range", c.Server.Port)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis enabled but addr is empty")
	}
	if c.Engine.AsyncTrades && !c.Redis.Enabled && strings.ToLower(c.Storage) != "memory" {
		return fmt.Errorf("config: async trades need redis or memory storage")
	}
	if c.Agent.Enabled && c.Agent.ResolutionInterval <= 0 {
		return fmt.Errorf("config: resolution interval must be positive")
	}
	if c.Chain.Enabled {
		if c.Chain.WSURL == "" || c.Chain.VaultAddress == "" {
			return fmt.Errorf("config: chain enabled but ws_url or vault_address is empty")
		}
		if c.Chain.PrivateKey == "" && c.Chain.EncryptedKeyPath == "" {
			return fmt.Errorf("config: chain enabled but no signing key source configured")
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}
