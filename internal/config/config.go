// Package config loads Loopwork's run configuration with viper, mirroring
// firestige-Otus/internal/otus/config/loader.go: a dedicated viper
// instance, an LOOPWORK_-prefixed environment overlay, and Unmarshal into
// a mapstructure-tagged struct.
package config

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Flags carries the two degraded-mode toggles the Plugin Bus consults.
type Flags struct {
	ReducedFunctionality bool `mapstructure:"reducedFunctionality"`
	OfflineMode          bool `mapstructure:"offlineMode"`
}

// Config is the full set of recognized options.
type Config struct {
	ProjectRoot string `mapstructure:"projectRoot"`
	Backend     string `mapstructure:"backend"`
	Namespace   string `mapstructure:"namespace"`
	Feature     string `mapstructure:"feature"`

	MaxIterations           int `mapstructure:"maxIterations"`
	TimeoutSeconds          int `mapstructure:"timeout"`
	MaxRetries              int `mapstructure:"maxRetries"`
	CircuitBreakerThreshold int `mapstructure:"circuitBreakerThreshold"`
	RetryDelayMS            int `mapstructure:"retryDelay"`
	TaskDelayMS             int `mapstructure:"taskDelay"`

	DryRun      bool `mapstructure:"dryRun"`
	AutoConfirm bool `mapstructure:"autoConfirm"`

	Flags Flags `mapstructure:"flags"`
}

// Defaults mirrors stated defaults.
func Defaults() Config {
	return Config{
		ProjectRoot:             ".",
		Backend:                 "json",
		Namespace:               "default",
		MaxIterations:           50,
		TimeoutSeconds:          600,
		MaxRetries:              3,
		CircuitBreakerThreshold: 5,
		RetryDelayMS:            3000,
		TaskDelayMS:             2000,
	}
}

// Load builds a viper instance over projectRoot, optionally reading
// loopwork.{yaml,yml,json,toml} there, overlays LOOPWORK_-prefixed
// environment variables, and unmarshals into a Config seeded with
// Defaults().
func Load(projectRoot string) (Config, error) {
	cfg := Defaults()
	if projectRoot != "" {
		cfg.ProjectRoot = projectRoot
	}

	v := viper.New()
	v.SetConfigName("loopwork")
	v.AddConfigPath(cfg.ProjectRoot)
	v.SetEnvPrefix("LOOPWORK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, errors.Wrapf(err, "config: read %s", filepath.Join(cfg.ProjectRoot, "loopwork.*"))
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "config: unmarshal")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("projectRoot", cfg.ProjectRoot)
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("namespace", cfg.Namespace)
	v.SetDefault("maxIterations", cfg.MaxIterations)
	v.SetDefault("timeout", cfg.TimeoutSeconds)
	v.SetDefault("maxRetries", cfg.MaxRetries)
	v.SetDefault("circuitBreakerThreshold", cfg.CircuitBreakerThreshold)
	v.SetDefault("retryDelay", cfg.RetryDelayMS)
	v.SetDefault("taskDelay", cfg.TaskDelayMS)
}

// Validate reports malformed combinations before the loop starts.
func (c Config) Validate() error {
	if c.Backend != "json" && c.Backend != "github" {
		return errors.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.MaxRetries < 1 {
		return errors.New("config: maxRetries must be >= 1")
	}
	if c.MaxIterations < 0 {
		return errors.New("config: maxIterations must be >= 0")
	}
	if c.CircuitBreakerThreshold < 1 {
		return errors.New("config: circuitBreakerThreshold must be >= 1")
	}
	if c.TimeoutSeconds < 1 {
		return errors.New("config: timeout must be >= 1 second")
	}
	if c.Namespace == "" {
		return errors.New("config: namespace must not be empty")
	}
	return nil
}

// SessionRoot returns the directory one run's logs are written under:
// always `<projectRoot>/.loopwork/runs/<namespace>/<timestamp>`.
func (c Config) SessionRoot(timestamp string) string {
	return filepath.Join(c.ProjectRoot, ".loopwork", "runs", c.Namespace, timestamp)
}

// StateDir returns `<projectRoot>/.loopwork/state`.
func (c Config) StateDir() string {
	return filepath.Join(c.ProjectRoot, ".loopwork", "state")
}

// StoreDir returns the directory the JSON task store lives in, currently
// `<projectRoot>` itself so `store.json` sits at the project root.
func (c Config) StoreDir() string {
	return c.ProjectRoot
}
