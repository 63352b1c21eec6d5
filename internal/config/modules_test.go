package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func holderWith(cfg PlatformConfig) *ModulesHolder {
	h := &ModulesHolder{}
	h.current.Store(cfg)
	return h
}

func TestEnabledEmptyAllowlistAllowsEverything(t *testing.T) {
	h := holderWith(DefaultPlatformConfig())
	assert.True(t, h.Enabled("pos"))
	assert.True(t, h.Enabled("anything"))
}

func TestEnabledNilHolderAllowsEverything(t *testing.T) {
	var h *ModulesHolder
	assert.True(t, h.Enabled("pos"))
}

func TestEnabledHonorsAllowlist(t *testing.T) {
	h := holderWith(PlatformConfig{EnabledModules: []string{"pos", "hotel"}})

	assert.True(t, h.Enabled("pos"))
	assert.True(t, h.Enabled("hotel"))
	assert.False(t, h.Enabled("dealership"))
}

func TestEnabledNormalizesKeys(t *testing.T) {
	h := holderWith(PlatformConfig{EnabledModules: []string{" POS "}})

	assert.True(t, h.Enabled("pos"))
	assert.True(t, h.Enabled(" Pos "))
}

func TestNormalizeIsolationMode(t *testing.T) {
	assert.Equal(t, IsolationRowGuard, normalizeIsolationMode(""))
	assert.Equal(t, IsolationRowGuard, normalizeIsolationMode("ROW_GUARD"))
	assert.Equal(t, IsolationRowGuard, normalizeIsolationMode("bogus"))
	assert.Equal(t, IsolationDBPerOrg, normalizeIsolationMode(" db_per_org "))
}
