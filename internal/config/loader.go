package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML file at path, merges it on top of the built-in defaults,
// applies PREDICTD_* environment overrides, and returns the final Config.
// The result has not been validated; call Config.Validate after Load. An
// empty path skips the file and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from well-known PREDICTD_*
// variables when set, so operators can inject secrets without touching the
// TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Server.Host, "PREDICTD_SERVER_HOST")
	setInt(&cfg.Server.Port, "PREDICTD_SERVER_PORT")
	setDuration(&cfg.Server.ReadTimeout, "PREDICTD_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "PREDICTD_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "PREDICTD_SERVER_SHUTDOWN_TIMEOUT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICTD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "PREDICTD_SERVER_ADMIN_API_KEY")

	setStr(&cfg.Postgres.DSN, "PREDICTD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDICTD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDICTD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDICTD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDICTD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDICTD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDICTD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDICTD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDICTD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDICTD_POSTGRES_RUN_MIGRATIONS")

	setBool(&cfg.Redis.Enabled, "PREDICTD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PREDICTD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTD_REDIS_TLS_ENABLED")

	setDuration(&cfg.Engine.LockWait, "PREDICTD_ENGINE_LOCK_WAIT")
	setBool(&cfg.Engine.AsyncTrades, "PREDICTD_ENGINE_ASYNC_TRADES")

	setBool(&cfg.Agent.Enabled, "PREDICTD_AGENT_ENABLED")
	setDuration(&cfg.Agent.ResolutionInterval, "PREDICTD_AGENT_RESOLUTION_INTERVAL")
	setStr(&cfg.Agent.OracleBaseURL, "PREDICTD_AGENT_ORACLE_BASE_URL")

	setBool(&cfg.Chain.Enabled, "PREDICTD_CHAIN_ENABLED")
	setStr(&cfg.Chain.WSURL, "PREDICTD_CHAIN_WS_URL")
	setStr(&cfg.Chain.VaultAddress, "PREDICTD_CHAIN_VAULT_ADDRESS")
	setInt64(&cfg.Chain.ChainID, "PREDICTD_CHAIN_ID")
	setStr(&cfg.Chain.PrivateKey, "PREDICTD_CHAIN_PRIVATE_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "PREDICTD_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "PREDICTD_CHAIN_KEY_PASSWORD")

	setStr(&cfg.Storage, "PREDICTD_STORAGE")
	setStr(&cfg.LogLevel, "PREDICTD_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
