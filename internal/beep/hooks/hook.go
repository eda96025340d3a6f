package hooks

import (
	"context"
	"time"
)

// Hook is executed whenever a session fires one of the EventTypes it is
// registered against.
type Hook interface {
	Execute(ctx context.Context, event Event) error
	Type() string
	ID() string
}

// Config controls the hook manager's concurrency and its built-in
// sinks: stdio, and scripts spawned for specific events.
type Config struct {
	Concurrency int    `yaml:"concurrency"`
	StdioFormat string `yaml:"stdio_format"` // "json", "env", or ""

	// ShellScripts is a list of "eventType=scriptPath" pairs, each
	// registering a ShellHook for the named event.
	ShellScripts []string      `yaml:"shell_scripts"`
	ShellTimeout time.Duration `yaml:"shell_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Concurrency: 10, StdioFormat: "", ShellTimeout: 30 * time.Second}
}
