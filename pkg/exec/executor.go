// Package exec abstracts process execution so agent spawning can be mocked
// in tests.
package exec

// ProcessSpec describes one agent invocation. Env and Prompt are delivered
// to the process via its environment and stdin respectively, unless the
// spec was rewritten for remote execution, in which case both are already
// folded into the command line and UsedRemote is set.
type ProcessSpec struct {
	Command          string
	Args             []string
	Dir              string
	Env              map[string]string
	Prompt           string
	UsedRemote       bool
	RemoteDescriptor string
}

// ExitFunc is invoked once when a started process exits, with the combined
// output and the exit error, if any.
type ExitFunc func(output string, err error)

// Handle identifies a started process.
type Handle struct {
	PID  int
	Done <-chan struct{}
}

// CommandExecutor defines an interface for running external commands.
// This abstraction allows for easier testing by providing a mockable interface.
type CommandExecutor interface {
	// LookPath searches for an executable named file in the directories
	// named by the PATH environment variable.
	LookPath(file string) (string, error)

	// Start launches the process described by spec without waiting for it.
	// onExit is invoked from a background goroutine when the process ends.
	Start(spec ProcessSpec, onExit ExitFunc) (*Handle, error)
}
