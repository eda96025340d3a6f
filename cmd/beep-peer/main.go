// Command beep-peer runs a single BEEP peer, either as the listener
// accepting one connection or as the initiator dialing one, installing
// a trivial echo profile and logging every session lifecycle event.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casimiro/go-beep/internal/beep/session"
	"github.com/casimiro/go-beep/internal/beep/transport"
	"github.com/casimiro/go-beep/internal/logger"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	conn, role, err := connect(cfg)
	if err != nil {
		log.Error("failed to establish connection", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	s := session.New(role, transport.NewTCP(conn, 0))
	for _, uri := range cfg.profiles {
		s.InstallProfile(uri, echoHandler{})
	}
	s.InstallSessionHandler(&logHandler{log: log})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	log.Info("session started", "session_id", s.ID(), "role", roleLabel(role), "version", version)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	case err := <-runErr:
		if err != nil {
			log.Error("session ended", "error", err)
		}
	}
}

func connect(cfg *cliConfig) (net.Conn, session.Role, error) {
	if cfg.listenAddr != "" {
		ln, err := net.Listen("tcp", cfg.listenAddr)
		if err != nil {
			return nil, 0, err
		}
		defer ln.Close()
		conn, err := ln.Accept()
		return conn, session.Listener, err
	}
	conn, err := net.Dial("tcp", cfg.dialAddr)
	return conn, session.Initiator, err
}

func roleLabel(r session.Role) string {
	if r == session.Initiator {
		return "initiator"
	}
	return "listener"
}

// logHandler prints session lifecycle transitions via the global
// logger; the hook manager wired into Session covers external sinks.
type logHandler struct {
	log interface {
		Info(msg string, args ...any)
		Error(msg string, args ...any)
	}
}

func (h *logHandler) OnGreeted() { h.log.Info("peer greeted") }
func (h *logHandler) OnChannelStarted(channelNo uint32, profile string) {
	h.log.Info("channel started", "channel", channelNo, "profile", profile)
}
func (h *logHandler) OnChannelClosed(channelNo uint32) {
	h.log.Info("channel closed", "channel", channelNo)
}
func (h *logHandler) OnFatalError(err error) {
	h.log.Error("session fatal error", "error", err)
}
