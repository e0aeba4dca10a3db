// Package remote rewrites agent invocations to run on a remote host over
// an SSH tunnel. Resolution failures are never fatal: the invocation falls
// back to local execution unchanged.
package remote

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/roundtablehq/roundtable/pkg/exec"
	"github.com/roundtablehq/roundtable/pkg/logging"
)

// Binding attaches a participant or moderator to a configured remote host.
type Binding struct {
	Name   string `yaml:"name" json:"name"`
	HostID string `yaml:"host_id" json:"hostId"`
}

// HostConfig describes one SSH-reachable host from the user configuration.
type HostConfig struct {
	Hostname     string `yaml:"hostname"`
	User         string `yaml:"user,omitempty"`
	Port         int    `yaml:"port,omitempty"`
	IdentityFile string `yaml:"identity_file,omitempty"`
	WorkingDir   string `yaml:"working_dir,omitempty"`
	Disabled     bool   `yaml:"disabled,omitempty"`
}

// Wrapper builds concrete SSH invocations from logical ones.
type Wrapper struct {
	hosts map[string]HostConfig
	log   *logrus.Entry
}

// NewWrapper creates a Wrapper over the configured hosts map.
func NewWrapper(hosts map[string]HostConfig) *Wrapper {
	return &Wrapper{
		hosts: hosts,
		log:   logging.NewLogger("remote"),
	}
}

// Wrap rewrites spec to execute over SSH when binding resolves to a usable
// host. The prompt and environment are folded into the remote command line,
// and the returned working directory stays valid on the local host since
// the spawned process is the ssh client itself. When the binding is absent,
// disabled, or unresolvable the original spec is returned with UsedRemote
// false; this never fails.
func (w *Wrapper) Wrap(spec exec.ProcessSpec, binding *Binding) exec.ProcessSpec {
	if binding == nil {
		return spec
	}

	host, ok := w.hosts[binding.HostID]
	if !ok || host.Disabled || host.Hostname == "" {
		w.log.WithFields(logrus.Fields{
			"binding": binding.Name,
			"host_id": binding.HostID,
		}).Debug("Remote binding not resolvable, falling back to local execution")
		return spec
	}

	target := host.Hostname
	if host.User != "" {
		target = host.User + "@" + host.Hostname
	}

	args := []string{"-T", "-o", "BatchMode=yes"}
	if host.Port != 0 {
		args = append(args, "-p", strconv.Itoa(host.Port))
	}
	if host.IdentityFile != "" {
		args = append(args, "-i", host.IdentityFile)
	}
	args = append(args, target, w.remoteCommand(spec, host))

	wrapped := spec
	wrapped.Command = "ssh"
	wrapped.Args = args
	// The ssh client runs locally; any local directory is valid.
	wrapped.Dir = ""
	wrapped.Env = nil
	wrapped.Prompt = ""
	wrapped.UsedRemote = true
	wrapped.RemoteDescriptor = target
	return wrapped
}

// remoteCommand assembles the single shell command executed on the host:
// cd into the remote working directory, export the environment, and pipe
// the prompt into the agent binary.
func (w *Wrapper) remoteCommand(spec exec.ProcessSpec, host HostConfig) string {
	var parts []string

	dir := host.WorkingDir
	if dir == "" {
		dir = spec.Dir
	}
	if dir != "" {
		parts = append(parts, "cd "+ShellQuote(dir))
	}

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("export %s=%s", k, ShellQuote(spec.Env[k])))
	}

	cmd := spec.Command
	for _, a := range spec.Args {
		cmd += " " + ShellQuote(a)
	}
	if spec.Prompt != "" {
		cmd = fmt.Sprintf("printf '%%s' %s | %s", ShellQuote(spec.Prompt), cmd)
	}
	parts = append(parts, cmd)

	return strings.Join(parts, " && ")
}

// ShellQuote wraps s in single quotes, escaping embedded single quotes for
// POSIX shells.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}
