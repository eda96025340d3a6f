package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// StdioHook writes event data to an output stream in one of two
// formats: a single JSON line, or KEY=value lines for shell pipelines
// that want to react to session events without parsing JSON.
type StdioHook struct {
	id     string
	format string // "json" or "env"
	output *os.File
}

// NewStdioHook creates a stdio hook writing to stderr by default.
func NewStdioHook(id, format string) *StdioHook {
	return &StdioHook{id: id, format: format, output: os.Stderr}
}

func (h *StdioHook) SetOutput(output *os.File) *StdioHook {
	h.output = output
	return h
}

func (h *StdioHook) Execute(ctx context.Context, event Event) error {
	switch h.format {
	case "json":
		return h.outputJSON(event)
	case "env":
		return h.outputEnv(event)
	default:
		return fmt.Errorf("stdio hook %s: unsupported format: %s", h.id, h.format)
	}
}

func (h *StdioHook) Type() string { return "stdio" }
func (h *StdioHook) ID() string   { return h.id }

func (h *StdioHook) outputJSON(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("stdio hook %s: marshal: %w", h.id, err)
	}
	_, err = fmt.Fprintf(h.output, "BEEP_EVENT: %s\n", string(data))
	return err
}

func (h *StdioHook) outputEnv(event Event) error {
	lines := []string{
		"# BEEP Event: " + string(event.Type),
		fmt.Sprintf("BEEP_EVENT_TYPE=%s", event.Type),
		fmt.Sprintf("BEEP_TIMESTAMP=%d", event.Timestamp),
	}
	if event.SessionID != "" {
		lines = append(lines, "BEEP_SESSION_ID="+event.SessionID)
	}
	if event.Profile != "" {
		lines = append(lines, "BEEP_PROFILE="+event.Profile)
	}
	for key, value := range event.Data {
		lines = append(lines, "BEEP_"+strings.ToUpper(key)+fmt.Sprintf("=%v", value))
	}
	lines = append(lines, "")
	for _, line := range lines {
		if _, err := fmt.Fprintln(h.output, line); err != nil {
			return fmt.Errorf("stdio hook %s: write: %w", h.id, err)
		}
	}
	return nil
}
