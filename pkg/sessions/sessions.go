// Package sessions exposes the directory of agent sessions that are
// available to join a conversation.
package sessions

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/roundtablehq/roundtable/pkg/remote"
)

// AvailableSession describes one joinable agent session as registered in
// the session directory.
type AvailableSession struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	AgentKind   string            `yaml:"agent"`
	WorkingDir  string            `yaml:"working_dir,omitempty"`
	Remote      *remote.Binding   `yaml:"remote,omitempty"`
	CustomArgs  []string          `yaml:"args,omitempty"`
	CustomEnv   map[string]string `yaml:"env,omitempty"`
	CustomModel string            `yaml:"model,omitempty"`
}

// Directory lists the sessions currently available to join.
type Directory interface {
	ListAvailableSessions() ([]AvailableSession, error)
}

// FileDirectory reads the session registry from a YAML file. A missing
// file means no sessions are available, not an error.
type FileDirectory struct {
	Path string
}

type registryFile struct {
	Sessions []AvailableSession `yaml:"sessions"`
}

// NewFileDirectory creates a FileDirectory over the given registry path.
func NewFileDirectory(path string) *FileDirectory {
	return &FileDirectory{Path: path}
}

// ListAvailableSessions implements Directory.
func (d *FileDirectory) ListAvailableSessions() ([]AvailableSession, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read session registry %s", d.Path)
	}

	var reg registryFile
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, errors.Wrapf(err, "parse session registry %s", d.Path)
	}
	return reg.Sessions, nil
}

// StaticDirectory serves a fixed session list. Used by tests and by hosts
// that assemble the list themselves.
type StaticDirectory struct {
	Sessions []AvailableSession
}

// ListAvailableSessions implements Directory.
func (d *StaticDirectory) ListAvailableSessions() ([]AvailableSession, error) {
	return d.Sessions, nil
}
