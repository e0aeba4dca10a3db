// Package config loads the roundtable user configuration from
// ~/.roundtable/config.yml.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/roundtablehq/roundtable/pkg/remote"
)

// Duration is a time.Duration that unmarshals from the human-readable form
// used in the config file ("30s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return errors.Wrap(err, "decode duration")
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

// AgentConfig carries per-agent-kind overrides: which binary to launch and
// the extra arguments, environment and model it should receive.
type AgentConfig struct {
	Binary string            `yaml:"binary,omitempty"`
	Args   []string          `yaml:"args,omitempty"`
	Env    map[string]string `yaml:"env,omitempty"`
	Model  string            `yaml:"model,omitempty"`
}

// Config is the root of the user configuration.
type Config struct {
	// DataDir holds conversation metadata and logs. Defaults to
	// ~/.roundtable/conversations.
	DataDir string `yaml:"data_dir,omitempty"`

	// SessionsFile is the YAML session registry consulted for auto-join.
	// Defaults to ~/.roundtable/sessions.yml.
	SessionsFile string `yaml:"sessions_file,omitempty"`

	// RoundTimeout bounds how long a participant round may stay open
	// before the stragglers are dropped and synthesis runs over the
	// responses collected so far. Zero disables the timeout.
	RoundTimeout Duration `yaml:"round_timeout,omitempty"`

	// HistoryWindow is the number of recent log entries included when
	// building prompts.
	HistoryWindow int `yaml:"history_window,omitempty"`

	Agents map[string]AgentConfig       `yaml:"agents,omitempty"`
	Hosts  map[string]remote.HostConfig `yaml:"hosts,omitempty"`
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	return filepath.Join(home, ".roundtable", "config.yml"), nil
}

// Load reads the configuration from path. A missing file yields the
// defaults rather than an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	cfg.applyDefaults(filepath.Dir(path))
	return cfg, nil
}

// LoadDefault loads the configuration from the default location.
func LoadDefault() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

func (c *Config) applyDefaults(baseDir string) {
	if c.DataDir == "" {
		c.DataDir = filepath.Join(baseDir, "conversations")
	}
	if c.SessionsFile == "" {
		c.SessionsFile = filepath.Join(baseDir, "sessions.yml")
	}
	if c.HistoryWindow == 0 {
		c.HistoryWindow = 30
	}
	if c.Agents == nil {
		c.Agents = map[string]AgentConfig{}
	}
}

// AgentConfigFor returns the configuration for an agent kind, falling back
// to a binary named after the kind itself.
func (c *Config) AgentConfigFor(kind string) AgentConfig {
	ac := c.Agents[kind]
	if ac.Binary == "" {
		ac.Binary = kind
	}
	return ac
}

// CustomEnvVars returns the configured extra environment for an agent kind.
func (c *Config) CustomEnvVars(kind string) map[string]string {
	return c.Agents[kind].Env
}
