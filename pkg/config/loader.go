package config

import (
	"fmt"
	"os"
	"path"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load reads, parses, validates, and defaults a deployment document.
func Load(filePath string) (*Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates a deployment document from raw YAML.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	doc.applyDefaults()

	validate := validator.New()
	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := doc.validateSemantics(); err != nil {
		return nil, err
	}

	return &doc, nil
}

// applyDefaults fills zero values with conventional defaults.
func (d *Document) applyDefaults() {
	if d.Target.Port == 0 {
		d.Target.Port = 22
	}
	if d.App.WebRoot == "" && d.App.Domain != "" {
		d.App.WebRoot = path.Join("/var/www", d.App.Domain)
	}
	if len(d.App.OpenPorts) == 0 {
		d.App.OpenPorts = []int{22, 80, 443}
	}
	if d.App.Cache.EvictionPolicy == "" {
		d.App.Cache.EvictionPolicy = "allkeys-lru"
	}
	if d.Verify.MaxAttempts == 0 {
		d.Verify.MaxAttempts = 10
	}
	if d.Verify.IntervalSeconds == 0 {
		d.Verify.IntervalSeconds = 10
	}
	if d.Verify.InitialDelaySeconds == 0 {
		d.Verify.InitialDelaySeconds = 5
	}
}

// validateSemantics checks cross-field constraints YAML tags cannot express.
func (d *Document) validateSemantics() error {
	seen := make(map[string]bool, len(d.Capabilities))
	for _, c := range d.Capabilities {
		if seen[c.Name] {
			return fmt.Errorf("duplicate capability %q", c.Name)
		}
		seen[c.Name] = true
	}

	if (d.App.Database.User == "") != (d.App.Database.Password == "") {
		return fmt.Errorf("database user and password must be set together")
	}

	if d.App.Compose.File != "" && d.App.Compose.ProjectDir == "" {
		return fmt.Errorf("compose project_dir is required when compose file is set")
	}

	if d.Verify.URL != "" && d.Verify.Signature == "" {
		return fmt.Errorf("verify signature is required when verify url is set")
	}

	return nil
}

// EnabledCapabilities returns the names of enabled capabilities.
func (d *Document) EnabledCapabilities() []string {
	var names []string
	for _, c := range d.Capabilities {
		if c.Enabled {
			names = append(names, c.Name)
		}
	}
	return names
}
