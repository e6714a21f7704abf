package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the sluice configuration file
// (~/.config/sluice/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	Driver string `yaml:"driver"`
	Device *int64 `yaml:"device"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`

	// Bench defaults
	Experts *int64 `yaml:"experts"`
	Tokens  *int64 `yaml:"tokens"`
	DModel  *int64 `yaml:"d_model"`
	DHidden *int64 `yaml:"d_hidden"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "sluice", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist or fails to parse.
func LoadConfig() Config {
	return loadConfigFrom(configPath())
}

func loadConfigFrom(path string) Config {
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyCommonConfig applies driver and logging defaults when the
// corresponding CLI flag was not explicitly set.
func applyCommonConfig(c *cli.Command, cfg Config) {
	if cfg.Driver != "" && !c.IsSet("driver") {
		driverName = cfg.Driver
	}
	if cfg.Device != nil && !c.IsSet("device") && !c.IsSet("d") {
		device = *cfg.Device
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies serve command defaults.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyCommonConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// applyBenchConfig applies bench command defaults.
func applyBenchConfig(c *cli.Command, cfg Config, experts, tokens, dModel, dHidden *int64) {
	applyCommonConfig(c, cfg)
	if cfg.Experts != nil && !c.IsSet("experts") {
		*experts = *cfg.Experts
	}
	if cfg.Tokens != nil && !c.IsSet("tokens") {
		*tokens = *cfg.Tokens
	}
	if cfg.DModel != nil && !c.IsSet("d-model") {
		*dModel = *cfg.DModel
	}
	if cfg.DHidden != nil && !c.IsSet("d-hidden") {
		*dHidden = *cfg.DHidden
	}
}
