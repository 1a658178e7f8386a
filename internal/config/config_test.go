package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_Defaults(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	cfg := manager.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "migrations", cfg.Database.MigrationsPath)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 256, cfg.Cache.MemoSize)
	assert.Equal(t, "X-User-ID", cfg.Auth.UserIDHeader)

	assert.NoError(t, manager.Validate())
}

func TestManager_EnvOverride(t *testing.T) {
	t.Setenv("CRANIO_SERVER_PORT", "9090")
	t.Setenv("CRANIO_DATABASE_DRIVER", "sqlite")

	manager, err := NewManager()
	require.NoError(t, err)

	cfg := manager.GetConfig()
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.NoError(t, manager.Validate())
}

func TestManager_Validate(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	cfg := manager.GetConfig()

	cfg.Server.Port = 0
	assert.Error(t, manager.Validate())
	cfg.Server.Port = 8080

	cfg.Database.Driver = "oracle"
	assert.Error(t, manager.Validate())
	cfg.Database.Driver = "sqlite"

	cfg.Database.Path = ""
	assert.Error(t, manager.Validate())
	cfg.Database.Path = "data/clinic.db"

	cfg.Logging.Format = "xml"
	assert.Error(t, manager.Validate())
	cfg.Logging.Format = "text"

	assert.NoError(t, manager.Validate())
}
