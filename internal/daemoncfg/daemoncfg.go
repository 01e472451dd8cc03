// Package daemoncfg loads corrald's optional startup configuration file.
// corral has no container concept (see DESIGN.md D-CONTAINER): this file
// only carries the ambient settings a smoke-test harness needs before a
// frontend exists to supply them interactively.
package daemoncfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the parsed contents of corrald's YAML config file.
type Config struct {
	// WorktreeRoot overrides the platform default worktree.DataDir when set.
	WorktreeRoot string `yaml:"worktree_root"`

	// DefaultShell overrides $SHELL for every session corrald spawns.
	DefaultShell string `yaml:"default_shell"`

	// Env is merged into every spawned session's environment, underneath
	// any per-session overrides the caller supplies.
	Env map[string]string `yaml:"env"`

	// Projects lists repositories corrald can smoke-test sessions against
	// by name, so a manual run doesn't need the path typed out each time.
	Projects []ProjectEntry `yaml:"projects"`
}

// ProjectEntry names one repository corrald knows about.
type ProjectEntry struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Load reads and parses a corrald config file. A missing path is not an
// error: it returns an empty Config so corrald can run with pure defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("daemoncfg: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("daemoncfg: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ProjectPath resolves a project by name, as registered under Projects.
// Returns "" if no entry matches.
func (c *Config) ProjectPath(name string) string {
	for _, p := range c.Projects {
		if p.Name == name {
			return p.Path
		}
	}
	return ""
}

// MergedEnv returns extra layered on top of c.Env, with extra's keys
// winning on conflict.
func (c *Config) MergedEnv(extra map[string]string) map[string]string {
	out := make(map[string]string, len(c.Env)+len(extra))
	for k, v := range c.Env {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
