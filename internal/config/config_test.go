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
	require.NotNil(t, cfg)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10.0, cfg.Server.RateLimitPerSecond)

	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "sqlite", cfg.Audit.Backend)
	assert.NotEmpty(t, cfg.Audit.SQLitePath)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, 30, cfg.Engine.MaxFitIterations)
	assert.Equal(t, 48, cfg.Engine.GridPoints)
	assert.Equal(t, 0.95, cfg.Engine.ConfidenceLevel)
	assert.Equal(t, 250.0, cfg.Engine.DoseIncrementMg)
	assert.Equal(t, 2000.0, cfg.Engine.MaxSingleDoseMg)
	assert.Equal(t, 4500.0, cfg.Engine.MaxDailyDoseMg)
	assert.Equal(t, 3000.0, cfg.Engine.MaxLoadingDoseMg)
}

func TestNewManager_EnvironmentOverride(t *testing.T) {
	t.Setenv("VANCO_PK_SERVER_PORT", "9090")
	t.Setenv("VANCO_PK_ENGINE_MAX_FIT_ITERATIONS", "50")

	manager, err := NewManager()
	require.NoError(t, err)

	cfg := manager.GetConfig()
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Engine.MaxFitIterations)
}

func TestManager_Validate(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)
	require.NoError(t, manager.Validate())

	tests := []struct {
		name   string
		mutate func(*Manager)
	}{
		{name: "Invalid port", mutate: func(m *Manager) { m.config.Server.Port = -1 }},
		{name: "Invalid rate limit", mutate: func(m *Manager) { m.config.Server.RateLimitPerSecond = 0 }},
		{name: "Unknown audit backend", mutate: func(m *Manager) { m.config.Audit.Backend = "cassandra" }},
		{name: "Invalid log level", mutate: func(m *Manager) { m.config.Logging.Level = "loud" }},
		{name: "Zero fit iterations", mutate: func(m *Manager) { m.config.Engine.MaxFitIterations = 0 }},
		{name: "Confidence out of range", mutate: func(m *Manager) { m.config.Engine.ConfidenceLevel = 1.5 }},
		{name: "Single dose below increment", mutate: func(m *Manager) { m.config.Engine.MaxSingleDoseMg = 100 }},
		{name: "Postgres backend without host", mutate: func(m *Manager) {
			m.config.Audit.Backend = "postgres"
			m.config.Database.Host = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fresh, err := NewManager()
			require.NoError(t, err)
			tt.mutate(fresh)
			assert.Error(t, fresh.Validate())
		})
	}
}

func TestManager_GetDatabaseConnectionString(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	dsn := manager.GetDatabaseConnectionString()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=vanco_dosing")
	assert.Contains(t, dsn, "sslmode=disable")
}
