package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AgentTemplate describes one agent type the scheduler can launch.
type AgentTemplate struct {
	Name      string `yaml:"name"`
	Command   string `yaml:"command"` // launch command; the job id is appended
	Max       int    `yaml:"max"`     // maximum concurrent agents of this type, 0 = unlimited
	Exclusive bool   `yaml:"exclusive"`
}

// LoadAgentDir loads every agent template definition under dir. A malformed
// or incomplete file is logged and skipped; the remaining templates still
// load. Only a missing directory is an error.
func LoadAgentDir(dir string, logger *slog.Logger) ([]AgentTemplate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("open agent config directory %s: %w", dir, err)
	}

	var templates []AgentTemplate
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if ext := filepath.Ext(name); ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, name)
		tmpl, err := loadAgentFile(path)
		if err != nil {
			logger.Warn("skipping agent template", "path", path, "error", err)
			continue
		}
		logger.Debug("loaded agent template",
			"name", tmpl.Name, "command", tmpl.Command, "max", tmpl.Max, "exclusive", tmpl.Exclusive)
		templates = append(templates, tmpl)
	}
	return templates, nil
}

func loadAgentFile(path string) (AgentTemplate, error) {
	var tmpl AgentTemplate

	data, err := os.ReadFile(path)
	if err != nil {
		return tmpl, err
	}
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return tmpl, fmt.Errorf("parse: %w", err)
	}

	if tmpl.Name == "" {
		return tmpl, fmt.Errorf("missing required key: name")
	}
	if tmpl.Command == "" {
		return tmpl, fmt.Errorf("missing required key: command")
	}
	if tmpl.Max < 0 {
		return tmpl, fmt.Errorf("max must not be negative")
	}
	return tmpl, nil
}
