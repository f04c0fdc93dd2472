// Package config handles simulation configuration files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/npcbrain/internal/core/observability/log"
)

// Config is the root of npcsim.yaml / npcsim.toml.
type Config struct {
	Log    Log    `yaml:"log" toml:"log"`
	Sim    Sim    `yaml:"sim" toml:"sim"`
	Server Server `yaml:"server" toml:"server"`
	Redis  Redis  `yaml:"redis" toml:"redis"`
	Assets Assets `yaml:"assets" toml:"assets"`
}

type Log struct {
	Level string `yaml:"level" toml:"level"`
}

// Sim configures the headless simulation loop.
type Sim struct {
	Tree    string        `yaml:"tree" toml:"tree"`
	Agents  int           `yaml:"agents" toml:"agents"`
	Ticks   int           `yaml:"ticks" toml:"ticks"`
	Dt      time.Duration `yaml:"dt" toml:"dt"`
	Workers int           `yaml:"workers" toml:"workers"`
	// Restart starts a tree again on the frame after it concludes.
	Restart bool `yaml:"restart" toml:"restart"`
}

type Server struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// Redis enables memory snapshots when Addr is set.
type Redis struct {
	Addr     string        `yaml:"addr" toml:"addr"`
	Password string        `yaml:"password" toml:"password"`
	DB       int           `yaml:"db" toml:"db"`
	Prefix   string        `yaml:"prefix" toml:"prefix"`
	TTL      time.Duration `yaml:"ttl" toml:"ttl"`
}

type Assets struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: Log{Level: "info"},
		Sim: Sim{
			Agents:  1,
			Ticks:   100,
			Dt:      100 * time.Millisecond,
			Workers: 8,
		},
		Server: Server{Addr: ":8080"},
		Redis:  Redis{Prefix: "npcbrain:memory"},
		Assets: Assets{Dir: "examples/trees"},
	}
}

// Load reads path on top of the defaults, choosing the format by extension.
// Relative asset directories resolve against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	if c.Assets.Dir != "" && !filepath.IsAbs(c.Assets.Dir) {
		c.Assets.Dir = filepath.Join(filepath.Dir(path), c.Assets.Dir)
	}
	return c, c.Validate()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error", "fatal", "silent", "off":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	if c.Sim.Agents < 0 {
		errs = append(errs, errors.New("sim.agents must not be negative"))
	}
	if c.Sim.Ticks < 0 {
		errs = append(errs, errors.New("sim.ticks must not be negative"))
	}
	if c.Sim.Dt <= 0 {
		errs = append(errs, errors.New("sim.dt must be positive"))
	}
	if c.Sim.Workers < 1 {
		errs = append(errs, errors.New("sim.workers must be at least 1"))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, errors.New("redis.db must not be negative"))
	}
	if c.Redis.TTL < 0 {
		errs = append(errs, errors.New("redis.ttl must not be negative"))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level.
func (c *Config) Level() log.Level { return log.ParseLevel(c.Log.Level) }
