// Package config loads tmplbuild settings from a YAML file with environment
// overrides, and describes which template file each task uses.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable read by this package.
const EnvPrefix = "TMPLBUILD_"

// Config is the on-disk configuration.
type Config struct {
	Version  int `yaml:"version"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Scene struct {
		Root string `yaml:"root"`
	} `yaml:"scene"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Hosts map[string]HostSettings `yaml:"hosts"`
}

// HostSettings holds the template profiles of one host application.
type HostSettings struct {
	Profiles []Profile `yaml:"profiles"`
}

// Profile maps tasks to a template file. Empty filter lists match anything.
type Profile struct {
	TaskTypes []string `yaml:"task_types"`
	Tasks     []string `yaml:"tasks"`
	// Path may contain {project}, {asset}, {task}, {task_type} and {host}.
	Path string `yaml:"path"`
}

// Context identifies what a run builds for.
type Context struct {
	Project  string `env:"PROJECT"`
	Asset    string `env:"ASSET"`
	Task     string `env:"TASK"`
	TaskType string `env:"TASK_TYPE"`
	Host     string `env:"HOST"`
}

type overrides struct {
	DBPath    string `env:"DB_PATH"`
	SceneRoot string `env:"SCENE_ROOT"`
	LogLevel  string `env:"LOG_LEVEL"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Version: 1}
	cfg.Database.Path = "tmplbuild.db"
	cfg.Scene.Root = "."
	cfg.Log.Level = "info"
	return cfg
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides from environ. A nil environ reads the process
// environment.
func Load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		cfg.Version = 0
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if cfg.Version != 1 {
			return nil, fmt.Errorf("config: unsupported version %d in %s", cfg.Version, path)
		}
	}

	var o overrides
	if err := env.ParseWithOptions(&o, envOptions(environ)); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	if o.DBPath != "" {
		cfg.Database.Path = o.DBPath
	}
	if o.SceneRoot != "" {
		cfg.Scene.Root = o.SceneRoot
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	return cfg, nil
}

// Profiles returns the template profiles configured for a host.
func (c *Config) Profiles(host string) []Profile {
	return c.Hosts[host].Profiles
}

// ContextFromEnv reads the run context from the environment. Fields already
// set on base are kept.
func ContextFromEnv(base Context, environ map[string]string) (Context, error) {
	var fromEnv Context
	if err := env.ParseWithOptions(&fromEnv, envOptions(environ)); err != nil {
		return Context{}, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&base.Project, fromEnv.Project)
	fill(&base.Asset, fromEnv.Asset)
	fill(&base.Task, fromEnv.Task)
	fill(&base.TaskType, fromEnv.TaskType)
	fill(&base.Host, fromEnv.Host)
	return base, nil
}

// Validate reports the context fields a run cannot do without.
func (c Context) Validate() error {
	var errs []error
	if c.Asset == "" {
		errs = append(errs, errors.New("asset is required"))
	}
	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	return errors.Join(errs...)
}

func envOptions(environ map[string]string) env.Options {
	return env.Options{Prefix: EnvPrefix, Environment: environ}
}
