package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Backend)
	assert.Equal(t, "default", cfg.Namespace)
	assert.Equal(t, 50, cfg.MaxIterations)
	assert.Equal(t, 600, cfg.TimeoutSeconds)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Defaults()
	cfg.Backend = "sqlite"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyNamespace(t *testing.T) {
	cfg := Defaults()
	cfg.Namespace = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveBounds(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.MaxRetries = 0 },
		func(c *Config) { c.CircuitBreakerThreshold = 0 },
		func(c *Config) { c.TimeoutSeconds = 0 },
	} {
		cfg := Defaults()
		cfg.Namespace = "default"
		mutate(&cfg)
		assert.Error(t, cfg.Validate())
	}
}

func TestValidateAcceptsZeroMaxIterations(t *testing.T) {
	cfg := Defaults()
	cfg.Namespace = "default"
	cfg.MaxIterations = 0
	assert.NoError(t, cfg.Validate(), "maxIterations=0 is a valid zero-iteration run, not an error")
}

func TestValidateRejectsNegativeMaxIterations(t *testing.T) {
	cfg := Defaults()
	cfg.Namespace = "default"
	cfg.MaxIterations = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, Defaults().Validate())
}

func TestSessionRootAndDirs(t *testing.T) {
	cfg := Defaults()
	cfg.ProjectRoot = "/proj"
	cfg.Namespace = "ns1"

	assert.Equal(t, "/proj/.loopwork/runs/ns1/20260101T000000Z", cfg.SessionRoot("20260101T000000Z"))
	assert.Equal(t, "/proj/.loopwork/state", cfg.StateDir())
	assert.Equal(t, "/proj", cfg.StoreDir())
}
