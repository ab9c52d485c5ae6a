package appconfig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/transposer-crafting-fabric/internal/appconfig"
)

func TestLoad_ExplicitMissingConfigFileIsError(t *testing.T) {
	t.Setenv("TRANSPOSER_ROUTING_CONFIG_PATH", "")
	cfg, err := appconfig.Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_MissingOptionalConfigFileFallsBackToDefaults(t *testing.T) {
	cfg, err := appconfig.Load("")
	require.NoError(t, err)
	assert.Equal(t, "data/routing.conf", cfg.Routing.ConfigPath)
	assert.Equal(t, 27, cfg.Routing.DefaultSlotCount)
	assert.Equal(t, "storage", cfg.Network.StorageAddr)
	assert.Equal(t, "craft", cfg.Network.CraftAddr)
}

func TestLoad_EnvironmentOverridesDefault(t *testing.T) {
	t.Setenv("TRANSPOSER_NETWORK_STORAGE_ADDR", "storage-main")
	cfg, err := appconfig.Load("")
	require.NoError(t, err)
	assert.Equal(t, "storage-main", cfg.Network.StorageAddr)
}
