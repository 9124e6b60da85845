// Package config holds the daemon configuration, loaded from an optional
// YAML file and overridable by flags and environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the listen port when neither file, flag nor environment
// sets one.
const DefaultPort = 9393

// portEnvVar overrides the listen port without a config file.
const portEnvVar = "VIRSHLAB_PORT"

// Config is the full daemon configuration.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":9393".
	Listen string `yaml:"listen"`
	// ConnectURI is the default libvirt connection URI. Requests may
	// override it per call.
	ConnectURI string `yaml:"connect_uri"`
	// VirshPath overrides the control tool binary.
	VirshPath string `yaml:"virsh_path"`
	// CloneScript pins the linked clone helper location, skipping the
	// standard search paths.
	CloneScript string `yaml:"clone_script"`
	Log         Log    `yaml:"log"`
	// SSH, when set, makes the daemon run virsh on a remote hypervisor host
	// instead of locally.
	SSH *SSH `yaml:"ssh,omitempty"`
}

// Log configures logging output.
type Log struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	Development bool   `yaml:"development"`
}

// SSH configures the remote hypervisor transport.
type SSH struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	KeyFile  string `yaml:"keyfile"`
	Password string `yaml:"password,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: fmt.Sprintf(":%d", DefaultPort),
		Log:    Log{Level: "info"},
	}
}

// Load reads configuration from path. A missing file is not an error when
// path is empty; defaults apply. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(portEnvVar); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Listen = fmt.Sprintf(":%d", port)
		}
	}
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = fmt.Sprintf(":%d", DefaultPort)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.SSH != nil && c.SSH.Port == 0 {
		c.SSH.Port = 22
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.SSH != nil {
		if c.SSH.Host == "" {
			return fmt.Errorf("ssh.host is required when ssh is configured")
		}
		if c.SSH.Username == "" {
			return fmt.Errorf("ssh.username is required when ssh is configured")
		}
		if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
			return fmt.Errorf("invalid ssh.port: %d", c.SSH.Port)
		}
	}
	return nil
}
