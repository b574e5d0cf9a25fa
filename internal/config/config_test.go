package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("SESSION_DRIVER", "")
	t.Setenv("SESSION_TTL_HOURS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, DriverMemory, cfg.Session.Driver)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.TTL())
	assert.Equal(t, "sid", cfg.Session.CookieName)
	assert.True(t, cfg.Auth.SeedDefaultUsers)
}

func TestLoadSessionDriverFollowsStorage(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", DriverPostgres)
	t.Setenv("SESSION_DRIVER", "")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/helpdesk")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Session.Driver)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown storage driver", env: map[string]string{"STORAGE_DRIVER": "sqlite"}},
		{name: "unknown session driver", env: map[string]string{"STORAGE_DRIVER": DriverMemory, "SESSION_DRIVER": "memcached"}},
		{name: "postgres without dsn", env: map[string]string{"STORAGE_DRIVER": DriverPostgres, "POSTGRES_DSN": ""}},
		{name: "non-positive ttl", env: map[string]string{"STORAGE_DRIVER": DriverMemory, "SESSION_TTL_HOURS": "-1"}},
		{name: "bad redis db", env: map[string]string{"REDIS_DB": "first"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SESSION_DRIVER", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestAppConfigHelpers(t *testing.T) {
	app := AppConfig{Host: "127.0.0.1", Port: "5000", RequestTimeoutSeconds: 5}
	assert.Equal(t, "127.0.0.1:5000", app.Addr())
	assert.Equal(t, 5*time.Second, app.RequestTimeout())

	app.RequestTimeoutSeconds = 0
	assert.Zero(t, app.RequestTimeout())
}
