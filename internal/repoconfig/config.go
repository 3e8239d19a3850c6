// Package repoconfig implements the .hop/config record: tool version,
// configured remote URL, and the devel flag, adapted from the teacher's
// internal/config/config.go load/save pair.
package repoconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ToolVersion is the current hop release, used by Migrator to decide
// whether a repository needs migrating.
const ToolVersion = "0.17.1"

// Config is the flat .hop/config record of spec.md §6.
type Config struct {
	ToolVersion string `json:"tool_version"`
	RemoteURL   string `json:"remote_url"`
	Devel       bool   `json:"devel"`
}

// Load reads .hop/config from dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ".hop", "config")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading .hop/config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing .hop/config: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to dir/.hop/config, creating .hop/ if necessary.
func Save(dir string, cfg *Config) error {
	hopDir := filepath.Join(dir, ".hop")
	if err := os.MkdirAll(hopDir, 0o755); err != nil {
		return fmt.Errorf("creating .hop dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .hop/config: %w", err)
	}
	path := filepath.Join(hopDir, "config")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing .hop/config: %w", err)
	}
	return nil
}

// HasRemote reports whether the repository has a remote configured; hop
// refuses to operate without one (spec.md §3).
func (c *Config) HasRemote() bool { return c.RemoteURL != "" }
