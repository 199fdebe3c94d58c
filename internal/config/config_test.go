package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(Viper())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "first-fit", cfg.Server.Strategy)
	assert.Equal(t, time.Second, cfg.Controller.ReconcileInterval)
	assert.Equal(t, 15*time.Second, cfg.Controller.HeartbeatTimeout)
	assert.Equal(t, 60*time.Second, cfg.Controller.EvictionTimeout)
	assert.Equal(t, "http://localhost:8080", cfg.Agent.Master)
	assert.Equal(t, uint64(4000), cfg.Agent.CPUMillis)
	assert.Equal(t, uint64(8192), cfg.Agent.MemoryMB)
	assert.Equal(t, 5*time.Second, cfg.Agent.HeartbeatInterval)
	assert.Equal(t, 2*time.Second, cfg.Agent.SyncInterval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("MARU_SERVER_PORT", "9090")
	t.Setenv("MARU_SERVER_STRATEGY", "balanced")

	cfg, err := Load(Viper())
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "balanced", cfg.Server.Strategy)
}

func TestEvictionMustExceedHeartbeatTimeout(t *testing.T) {
	t.Setenv("MARU_CONTROLLER_EVICTION_TIMEOUT", "10s")

	_, err := Load(Viper())
	assert.Error(t, err)
}
