package exec

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// ExecError wraps an execution error with the command output
type ExecError struct {
	Err    error
	Output string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Output)
}

// RealCommandExecutor implements CommandExecutor using the actual os/exec package.
// This is the production implementation that executes real system commands.
type RealCommandExecutor struct{}

// LookPath searches for an executable named file in the directories
// named by the PATH environment variable.
func (e *RealCommandExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Start launches the process without waiting. The prompt, when present and
// not already folded into a remote command line, is fed via stdin.
func (e *RealCommandExecutor) Start(spec ProcessSpec, onExit ExitFunc) (*Handle, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir

	if !spec.UsedRemote {
		if spec.Prompt != "" {
			cmd.Stdin = strings.NewReader(spec.Prompt)
		}
		if len(spec.Env) > 0 {
			cmd.Env = append(os.Environ(), flattenEnv(spec.Env)...)
		}
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		return nil, &ExecError{Err: err, Output: output.String()}
	}

	done := make(chan struct{})
	go func() {
		err := cmd.Wait()
		close(done)
		if onExit != nil {
			onExit(output.String(), err)
		}
	}()

	return &Handle{PID: cmd.Process.Pid, Done: done}, nil
}

func flattenEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
