package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Manager registers hooks per event type and fans events out to them
// asynchronously, bounded by a worker pool.
type Manager struct {
	hooks     map[EventType][]Hook
	stdioHook *StdioHook
	mu        sync.RWMutex
	pool      *executionPool
	logger    *slog.Logger
	config    Config
}

// NewManager creates a Manager. A nil logger falls back to slog.Default.
func NewManager(config Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		hooks:  make(map[EventType][]Hook),
		logger: logger,
		config: config,
		pool:   newExecutionPool(config.Concurrency, logger),
	}
	if config.StdioFormat != "" {
		_ = m.EnableStdioOutput(config.StdioFormat)
	}
	m.registerShellHooks(config.ShellScripts, config.ShellTimeout)
	return m
}

// registerShellHooks parses "eventType=scriptPath" pairs and registers a
// ShellHook for each; a malformed entry is logged and skipped rather
// than failing the whole manager.
func (m *Manager) registerShellHooks(scripts []string, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	for i, script := range scripts {
		parts := strings.SplitN(script, "=", 2)
		if len(parts) != 2 {
			m.logger.Error("invalid shell hook config entry", "entry", script)
			continue
		}
		eventType := EventType(parts[0])
		hook := NewShellHook(fmt.Sprintf("shell_%d", i), parts[1], timeout)
		if err := m.Register(eventType, hook); err != nil {
			m.logger.Error("failed to register shell hook", "entry", script, "error", err)
		}
	}
}

// Register adds hook to the set fired for eventType.
func (m *Manager) Register(eventType EventType, hook Hook) error {
	if hook == nil {
		return fmt.Errorf("cannot register nil hook")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[eventType] = append(m.hooks[eventType], hook)
	m.logger.Info("hook registered", "event_type", eventType, "hook_type", hook.Type(), "hook_id", hook.ID())
	return nil
}

// Unregister removes a previously registered hook by ID.
func (m *Manager) Unregister(eventType EventType, hookID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.hooks[eventType]
	for i, h := range list {
		if h.ID() == hookID {
			m.hooks[eventType] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Fire dispatches event to every hook registered for its type, plus the
// stdio sink if enabled. Execution is asynchronous and bounded by the
// manager's worker pool.
func (m *Manager) Fire(ctx context.Context, event Event) {
	if m == nil {
		return
	}
	m.mu.RLock()
	list := make([]Hook, len(m.hooks[event.Type]))
	copy(list, m.hooks[event.Type])
	if m.stdioHook != nil {
		list = append(list, m.stdioHook)
	}
	m.mu.RUnlock()

	if len(list) == 0 {
		return
	}
	for _, h := range list {
		m.pool.execute(ctx, h, event)
	}
}

// EnableStdioOutput turns on the built-in stdio sink.
func (m *Manager) EnableStdioOutput(format string) error {
	if format != "json" && format != "env" {
		return fmt.Errorf("unsupported stdio format: %s", format)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stdioHook = NewStdioHook("stdio", format)
	return nil
}

// Close waits for in-flight hook executions to finish.
func (m *Manager) Close() error {
	if m.pool != nil {
		m.pool.close()
	}
	return nil
}

type executionPool struct {
	workers chan struct{}
	logger  *slog.Logger
}

func newExecutionPool(size int, logger *slog.Logger) *executionPool {
	if size <= 0 {
		size = 10
	}
	return &executionPool{workers: make(chan struct{}, size), logger: logger}
}

func (ep *executionPool) execute(ctx context.Context, hook Hook, event Event) {
	go func() {
		ep.workers <- struct{}{}
		defer func() { <-ep.workers }()

		if err := hook.Execute(ctx, event); err != nil {
			ep.logger.Error("hook execution failed", "hook_type", hook.Type(), "hook_id", hook.ID(), "event_type", event.Type, "error", err)
		}
	}()
}

func (ep *executionPool) close() {
	for i := 0; i < cap(ep.workers); i++ {
		ep.workers <- struct{}{}
	}
}
