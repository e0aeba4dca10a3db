package exec

import (
	"sync"
)

// MockCommandExecutor is a mock implementation of CommandExecutor for testing.
// It records all commands that would be executed without actually running them.
type MockCommandExecutor struct {
	mu sync.Mutex

	// Specs records every spec passed to Start
	Specs []ProcessSpec

	// LookPathFunc allows custom behavior for LookPath in tests
	LookPathFunc func(file string) (string, error)

	// StartFunc allows custom behavior for Start in tests. When nil, Start
	// records the spec and succeeds without invoking onExit, mimicking a
	// process that is still running.
	StartFunc func(spec ProcessSpec, onExit ExitFunc) (*Handle, error)
}

// LookPath implements the CommandExecutor interface for testing.
func (m *MockCommandExecutor) LookPath(file string) (string, error) {
	if m.LookPathFunc != nil {
		return m.LookPathFunc(file)
	}
	// By default, assume commands exist
	return "/path/to/" + file, nil
}

// Start implements the CommandExecutor interface for testing.
func (m *MockCommandExecutor) Start(spec ProcessSpec, onExit ExitFunc) (*Handle, error) {
	m.mu.Lock()
	m.Specs = append(m.Specs, spec)
	m.mu.Unlock()

	if m.StartFunc != nil {
		return m.StartFunc(spec, onExit)
	}
	done := make(chan struct{})
	return &Handle{PID: 4242, Done: done}, nil
}
