package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the tests touch. Viper ignores empty
// environment values, so a blank variable behaves as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SAKU_APP_NAME", "SAKU_APP_ENV", "SAKU_APP_PORT",
		"SAKU_DATABASE_HOST", "SAKU_DATABASE_PORT", "SAKU_DATABASE_USER",
		"SAKU_DATABASE_PASSWORD", "SAKU_DATABASE_DBNAME", "SAKU_DATABASE_SSLMODE",
		"SAKU_DATABASE_MAX_OPEN_CONNS", "SAKU_DATABASE_MAX_IDLE_CONNS",
		"SAKU_QUEUE_CONCURRENCY", "SAKU_QUEUE_MAX_RETRIES", "SAKU_QUEUE_BASE_DELAY",
		"SAKU_QUEUE_MAX_DELAY", "SAKU_QUEUE_FLUSH_EVERY",
		"SAKU_MULTIBANK_BASE_URL", "SAKU_JURNAL_BASE_URL",
		"SAKU_SWEEPER_ENABLED", "SAKU_SWEEPER_STALE_AFTER",
		"SAKU_TELEMETRY_SAMPLING_RATIO",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "api-saku-tagihan", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "saku", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)

		assert.Equal(t, 5, cfg.Queue.Concurrency)
		assert.Equal(t, 1000, cfg.Queue.MaxBacklog)
		assert.Equal(t, 3, cfg.Queue.MaxRetries)
		assert.Equal(t, time.Second, cfg.Queue.BaseDelay)
		assert.Equal(t, time.Minute, cfg.Queue.MaxDelay)
		assert.Equal(t, 10, cfg.Queue.FlushEvery)
		assert.Equal(t, 5*time.Minute, cfg.Lock.TTL)
		assert.Equal(t, 2*time.Hour, cfg.Sweeper.StaleAfter)
		assert.Equal(t, 15*time.Second, cfg.Multibank.Timeout)
		assert.Equal(t, "api-saku-tagihan", cfg.Telemetry.ServiceName)
	})

	t.Run("loads values from environment variables with SAKU prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SAKU_APP_PORT", "9000")
		t.Setenv("SAKU_DATABASE_HOST", "testdb.local")
		t.Setenv("SAKU_DATABASE_PASSWORD", "testpass")
		t.Setenv("SAKU_QUEUE_CONCURRENCY", "8")
		t.Setenv("SAKU_QUEUE_BASE_DELAY", "250ms")
		t.Setenv("SAKU_MULTIBANK_BASE_URL", "https://multibank.example")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, 8, cfg.Queue.Concurrency)
		assert.Equal(t, 250*time.Millisecond, cfg.Queue.BaseDelay)
		assert.Equal(t, "https://multibank.example", cfg.Multibank.BaseURL)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SAKU_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("SAKU_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects max delay shorter than base delay", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SAKU_QUEUE_BASE_DELAY", "2m")
		t.Setenv("SAKU_QUEUE_MAX_DELAY", "1m")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue.max_delay")
	})

	t.Run("rejects negative retries", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SAKU_QUEUE_MAX_RETRIES", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue.max_retries")
	})

	t.Run("rejects a tiny stale window when the sweeper is on", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SAKU_SWEEPER_ENABLED", "true")
		t.Setenv("SAKU_SWEEPER_STALE_AFTER", "10s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sweeper.stale_after")
	})

	t.Run("rejects sampling ratio out of range", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SAKU_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SAKU_APP_ENV", "production")
		t.Setenv("SAKU_DATABASE_PASSWORD", "secure-password")
		t.Setenv("SAKU_DATABASE_SSLMODE", "require")
		t.Setenv("SAKU_MULTIBANK_BASE_URL", "https://multibank.example")
		t.Setenv("SAKU_JURNAL_BASE_URL", "https://jurnal.example")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("SAKU_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("SAKU_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("requires the jurnal base url in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("SAKU_JURNAL_BASE_URL", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jurnal.base_url is required in production")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "/testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: 6380}.Addr())
}
