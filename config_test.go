package nyx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigTypedAccessors(t *testing.T) {
	cfg := NewConfig()
	cfg.SetInt("gc.sweep_batch", 8)
	require.Equal(t, 8, cfg.GetInt("gc.sweep_batch"))
	require.Equal(t, false, cfg.GetBool("compiler.typecheck"))
	require.Equal(t, "NYX_PACKAGES", cfg.GetString("module.packages_env"))
}

func TestConfigMismatchedAccessorPanics(t *testing.T) {
	cfg := NewConfig()
	require.Panics(t, func() { cfg.GetBool("gc.sweep_batch") })
	require.Panics(t, func() { cfg.GetInt("no.such.key") })
}

func TestConfigValidateRejectsUnrunnableKnobs(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	cfg.SetInt("gc.promotion_age", 0)
	require.Error(t, cfg.Validate())
	cfg.SetInt("gc.promotion_age", 3)

	cfg.SetInt("gc.growth_factor", 1)
	require.Error(t, cfg.Validate())
	cfg.SetInt("gc.growth_factor", 2)

	cfg.SetInt("vm.frame_capacity", 0)
	require.Error(t, cfg.Validate())
}

func TestNewVMPanicsOnInvalidConfig(t *testing.T) {
	cfg := NewConfig()
	cfg.SetInt("gc.sweep_batch", 0)
	require.Panics(t, func() {
		NewVM(cfg, NewInMemoryImportLoader(), NewInterfaceRegistry())
	})
}

func TestConfigDefaultsCoverEveryEngineKnob(t *testing.T) {
	cfg := NewConfig()
	require.NotPanics(t, func() {
		cfg.GetBool("compiler.typecheck")
		cfg.GetInt("compiler.optimize")
		cfg.GetInt("gc.promotion_age")
		cfg.GetInt("gc.sweep_batch")
		cfg.GetInt("gc.growth_factor")
		cfg.GetInt("gc.min_heap_bytes")
		cfg.GetInt("vm.stack_capacity")
		cfg.GetInt("vm.frame_capacity")
	})
}
