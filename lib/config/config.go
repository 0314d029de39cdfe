// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides engine configuration loading for kiln.
//
// Configuration is loaded from a single YAML file specified by the
// KILN_CONFIG environment variable or the --config flag. There is no
// automatic discovery and no hidden overrides: the file is the single
// source of truth, and the only mutation applied after parsing is
// ${VAR} / ${VAR:-default} expansion in path fields.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when the environment
// matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the engine configuration for kiln.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Runner configures job scheduling and step execution defaults.
	Runner RunnerConfig `yaml:"runner"`

	// Cache configures the dependency cache store.
	Cache CacheConfig `yaml:"cache"`

	// Release configures the release backend.
	Release ReleaseConfig `yaml:"release"`

	// Tunnel configures the failure-hook debug tunnel broker.
	Tunnel TunnelConfig `yaml:"tunnel"`

	// History configures the run-history store.
	History HistoryConfig `yaml:"history"`

	// Secrets configures the sealed secrets material.
	Secrets SecretsConfig `yaml:"secrets"`

	// Per-environment overrides, applied after the base config.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the fields that can be overridden per
// environment.
type Overrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	Runner  *RunnerConfig  `yaml:"runner,omitempty"`
	Release *ReleaseConfig `yaml:"release,omitempty"`
	Tunnel  *TunnelConfig  `yaml:"tunnel,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for kiln state.
	Root string `yaml:"root"`

	// Cache is the cache store root. Defaults to <root>/cache.
	Cache string `yaml:"cache"`

	// Artifacts is where publishing runs stage collected bundle
	// files until the release lands. Defaults to <root>/artifacts.
	Artifacts string `yaml:"artifacts"`

	// Releases is the local release host root. Defaults to
	// <root>/releases.
	Releases string `yaml:"releases"`

	// Workspaces is where per-run job workspaces are created.
	// Defaults to <root>/workspaces.
	Workspaces string `yaml:"workspaces"`
}

// RunnerConfig configures job scheduling and step defaults.
type RunnerConfig struct {
	// Parallelism bounds concurrently running job instances. Zero
	// means one worker per CPU.
	Parallelism int `yaml:"parallelism"`

	// StepTimeout is the default per-step timeout when neither the
	// pipeline nor the step sets one. Default: 10m.
	StepTimeout string `yaml:"step_timeout"`

	// Shell is the default step interpreter. Default: sh.
	Shell string `yaml:"shell"`

	// ContainerBinary is the container CLI for image variants.
	// Default: docker.
	ContainerBinary string `yaml:"container_binary"`
}

// CacheConfig configures the cache store.
type CacheConfig struct {
	// MaxAge is the sweep threshold for cache GC ("720h" = 30 days).
	// Entries unused for longer are removed by "kiln cache gc".
	MaxAge string `yaml:"max_age"`
}

// Release backend kinds.
const (
	ReleaseBackendLocal  = "local"
	ReleaseBackendObject = "object"
)

// ReleaseConfig configures where releases are published.
type ReleaseConfig struct {
	// Backend selects "local" (directory under paths.releases) or
	// "object" (S3-compatible store). Default: local.
	Backend string `yaml:"backend"`

	// Endpoint, Bucket, Prefix configure the object backend. The
	// access keys come from the sealed secrets file (S3_ACCESS_KEY,
	// S3_SECRET_KEY), never from this file.
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`

	// Insecure disables TLS on the object endpoint (development
	// only).
	Insecure bool `yaml:"insecure"`
}

// TunnelConfig configures the debug tunnel broker.
type TunnelConfig struct {
	// BrokerURL is the broker's base URL. Empty disables tunnel
	// sessions even for jobs that request them.
	BrokerURL string `yaml:"broker_url"`

	// TTL is the default requested session lifetime. Default: 30m.
	TTL string `yaml:"ttl"`
}

// HistoryConfig configures the run-history store.
type HistoryConfig struct {
	// Path is the sqlite database file. Defaults to
	// <root>/history.db. ":memory:" is accepted for tests.
	Path string `yaml:"path"`

	// PoolSize is the sqlite connection pool size. Zero picks the
	// pool's own default.
	PoolSize int `yaml:"pool_size"`
}

// SecretsConfig configures sealed secret material.
type SecretsConfig struct {
	// IdentityPath is the engine's age private key file.
	IdentityPath string `yaml:"identity_path"`

	// SecretsPath is the sealed (age + base64) secrets file holding
	// KEY=value lines: pipeline variables, TUNNEL_TOKEN, S3 keys.
	// Empty means no secrets are injected.
	SecretsPath string `yaml:"secrets_path"`
}

// Default returns the default configuration, used as the base before
// the config file is merged in.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "kiln")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:       defaultRoot,
			Cache:      filepath.Join(defaultRoot, "cache"),
			Artifacts:  filepath.Join(defaultRoot, "artifacts"),
			Releases:   filepath.Join(defaultRoot, "releases"),
			Workspaces: filepath.Join(defaultRoot, "workspaces"),
		},
		Runner: RunnerConfig{
			StepTimeout:     "10m",
			Shell:           "sh",
			ContainerBinary: "docker",
		},
		Cache: CacheConfig{
			MaxAge: "720h",
		},
		Release: ReleaseConfig{
			Backend: ReleaseBackendLocal,
			Prefix:  "releases",
		},
		Tunnel: TunnelConfig{
			TTL: "30m",
		},
		History: HistoryConfig{
			Path: filepath.Join(defaultRoot, "history.db"),
		},
	}
}

// Load loads configuration from the KILN_CONFIG environment variable.
// Returns the defaults when KILN_CONFIG is unset: kiln is usable with
// zero configuration for local runs.
func Load() (*Config, error) {
	configPath := os.Getenv("KILN_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, applies
// environment-section overrides, and expands path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironmentOverrides merges the section matching the
// environment into the base values.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.Cache != "" {
			c.Paths.Cache = overrides.Paths.Cache
		}
		if overrides.Paths.Artifacts != "" {
			c.Paths.Artifacts = overrides.Paths.Artifacts
		}
		if overrides.Paths.Releases != "" {
			c.Paths.Releases = overrides.Paths.Releases
		}
		if overrides.Paths.Workspaces != "" {
			c.Paths.Workspaces = overrides.Paths.Workspaces
		}
	}

	if overrides.Runner != nil {
		if overrides.Runner.Parallelism != 0 {
			c.Runner.Parallelism = overrides.Runner.Parallelism
		}
		if overrides.Runner.StepTimeout != "" {
			c.Runner.StepTimeout = overrides.Runner.StepTimeout
		}
		if overrides.Runner.Shell != "" {
			c.Runner.Shell = overrides.Runner.Shell
		}
		if overrides.Runner.ContainerBinary != "" {
			c.Runner.ContainerBinary = overrides.Runner.ContainerBinary
		}
	}

	if overrides.Release != nil {
		if overrides.Release.Backend != "" {
			c.Release.Backend = overrides.Release.Backend
		}
		if overrides.Release.Endpoint != "" {
			c.Release.Endpoint = overrides.Release.Endpoint
		}
		if overrides.Release.Bucket != "" {
			c.Release.Bucket = overrides.Release.Bucket
		}
		if overrides.Release.Prefix != "" {
			c.Release.Prefix = overrides.Release.Prefix
		}
	}

	if overrides.Tunnel != nil {
		if overrides.Tunnel.BrokerURL != "" {
			c.Tunnel.BrokerURL = overrides.Tunnel.BrokerURL
		}
		if overrides.Tunnel.TTL != "" {
			c.Tunnel.TTL = overrides.Tunnel.TTL
		}
	}
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
// KILN_ROOT resolves to paths.root so dependent paths can reference
// it; everything else comes from the process environment.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"KILN_ROOT": c.Paths.Root,
		"HOME":      os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["KILN_ROOT"] = c.Paths.Root

	c.Paths.Cache = expandVars(c.Paths.Cache, vars)
	c.Paths.Artifacts = expandVars(c.Paths.Artifacts, vars)
	c.Paths.Releases = expandVars(c.Paths.Releases, vars)
	c.Paths.Workspaces = expandVars(c.Paths.Workspaces, vars)
	c.History.Path = expandVars(c.History.Path, vars)
	c.Secrets.IdentityPath = expandVars(c.Secrets.IdentityPath, vars)
	c.Secrets.SecretsPath = expandVars(c.Secrets.SecretsPath, vars)
}

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration, returning every problem joined.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}

	if c.Runner.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("runner.parallelism must be >= 0, got %d", c.Runner.Parallelism))
	}
	if _, err := time.ParseDuration(c.Runner.StepTimeout); err != nil {
		errs = append(errs, fmt.Errorf("runner.step_timeout: %w", err))
	}
	if _, err := time.ParseDuration(c.Cache.MaxAge); err != nil {
		errs = append(errs, fmt.Errorf("cache.max_age: %w", err))
	}
	if _, err := time.ParseDuration(c.Tunnel.TTL); err != nil {
		errs = append(errs, fmt.Errorf("tunnel.ttl: %w", err))
	}

	switch c.Release.Backend {
	case ReleaseBackendLocal:
	case ReleaseBackendObject:
		if c.Release.Endpoint == "" {
			errs = append(errs, errors.New("release.endpoint is required for the object backend"))
		}
		if c.Release.Bucket == "" {
			errs = append(errs, errors.New("release.bucket is required for the object backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("release.backend must be %q or %q, got %q",
			ReleaseBackendLocal, ReleaseBackendObject, c.Release.Backend))
	}

	if c.Secrets.SecretsPath != "" && c.Secrets.IdentityPath == "" {
		errs = append(errs, errors.New("secrets.identity_path is required when secrets.secrets_path is set"))
	}

	return errors.Join(errs...)
}

// StepTimeout returns the parsed default step timeout. Call Validate
// first; this falls back to 10 minutes on a parse error.
func (c *Config) StepTimeout() time.Duration {
	timeout, err := time.ParseDuration(c.Runner.StepTimeout)
	if err != nil {
		return 10 * time.Minute
	}
	return timeout
}

// TunnelTTL returns the parsed default tunnel session lifetime.
func (c *Config) TunnelTTL() time.Duration {
	ttl, err := time.ParseDuration(c.Tunnel.TTL)
	if err != nil {
		return 30 * time.Minute
	}
	return ttl
}

// CacheMaxAge returns the parsed cache sweep threshold.
func (c *Config) CacheMaxAge() time.Duration {
	maxAge, err := time.ParseDuration(c.Cache.MaxAge)
	if err != nil {
		return 720 * time.Hour
	}
	return maxAge
}

// EnsurePaths creates all configured directories.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{
		c.Paths.Root,
		c.Paths.Cache,
		c.Paths.Artifacts,
		c.Paths.Releases,
		c.Paths.Workspaces,
	} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
