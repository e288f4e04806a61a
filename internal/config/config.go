package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can use "30s" style values.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// HostConfig describes one scheduling target.
type HostConfig struct {
	Address string `yaml:"address"`
	Dir     string `yaml:"dir"` // working directory for agents on the host
	Max     int    `yaml:"max"` // maximum concurrent agents
}

// Config holds the scheduler daemon configuration.
type Config struct {
	Port          int                   `yaml:"port"`
	LogLevel      string                `yaml:"log_level"`
	LogFormat     string                `yaml:"log_format"`
	CheckInterval Duration              `yaml:"check_interval"` // tick and database sync period
	DBPath        string                `yaml:"db_path"`
	User          string                `yaml:"user"`  // drop privileges to this user when set
	Group         string                `yaml:"group"` // drop privileges to this group when set
	AgentDir      string                `yaml:"agent_dir"`
	Hosts         map[string]HostConfig `yaml:"hosts"`
}

// Default returns sensible defaults. A single localhost host with two agent
// slots is configured so the daemon is usable without a config file.
func Default() Config {
	return Config{
		Port:          8088,
		LogLevel:      "info",
		LogFormat:     "text",
		CheckInterval: Duration(30 * time.Second),
		AgentDir:      "agents.d",
		Hosts: map[string]HostConfig{
			"localhost": {Address: "localhost", Dir: os.TempDir(), Max: 2},
		},
	}
}

// Load reads and parses the config file at path, layered over Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	for name, h := range cfg.Hosts {
		if h.Max <= 0 {
			return cfg, fmt.Errorf("host %s: max must be positive", name)
		}
	}
	return cfg, nil
}
