package logging

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// PrettyLogger prints user-facing status lines to stdout. Colors are
// disabled automatically when stdout is not a terminal.
type PrettyLogger struct {
	enabled bool
}

// NewPrettyLogger creates a PrettyLogger with TTY detection.
func NewPrettyLogger() *PrettyLogger {
	return &PrettyLogger{
		enabled: isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
	}
}

// Info prints an informational line.
func (p *PrettyLogger) Info(msg string) {
	fmt.Println(msg)
}

// Success prints a green success line.
func (p *PrettyLogger) Success(msg string) {
	p.println(color.FgGreen, msg)
}

// Warn prints a yellow warning line.
func (p *PrettyLogger) Warn(msg string) {
	p.println(color.FgYellow, msg)
}

// Error prints a red error line.
func (p *PrettyLogger) Error(msg string) {
	p.println(color.FgRed, msg)
}

// Blank prints an empty line.
func (p *PrettyLogger) Blank() {
	fmt.Println()
}

func (p *PrettyLogger) println(attr color.Attribute, msg string) {
	if !p.enabled {
		fmt.Println(msg)
		return
	}
	color.New(attr).Println(msg)
}
