package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// fileConfig is the optional YAML config file format; flags override
// whatever it sets.
type fileConfig struct {
	Listen   string   `yaml:"listen"`
	Dial     string   `yaml:"dial"`
	LogLevel string   `yaml:"log_level"`
	Profiles []string `yaml:"profiles"`
}

type cliConfig struct {
	listenAddr  string
	dialAddr    string
	logLevel    string
	profiles    []string
	configFile  string
	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := pflag.NewFlagSet("beep-peer", pflag.ContinueOnError)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.listenAddr, "listen", "", "TCP listen address to run as the BEEP listener (e.g. :1776)")
	fs.StringVar(&cfg.dialAddr, "dial", "", "TCP address to dial as the BEEP initiator (e.g. localhost:1776)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringSliceVar(&cfg.profiles, "profile", nil, "Profile URI to install (repeatable)")
	fs.StringVar(&cfg.configFile, "config", "", "Optional YAML config file")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.configFile != "" {
		if err := mergeFileConfig(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.listenAddr == "" && cfg.dialAddr == "" {
		return nil, fmt.Errorf("one of --listen or --dial is required")
	}
	if cfg.listenAddr != "" && cfg.dialAddr != "" {
		return nil, fmt.Errorf("--listen and --dial are mutually exclusive")
	}
	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}
	if len(cfg.profiles) == 0 {
		cfg.profiles = []string{defaultEchoProfile}
	}
	return cfg, nil
}

// mergeFileConfig layers configFile's values under whatever the flags
// already set. A flag left at its default (empty, or "info" for the log
// level) counts as unset, so the file's value is used for it.
func mergeFileConfig(cfg *cliConfig) error {
	data, err := os.ReadFile(cfg.configFile)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.listenAddr == "" {
		cfg.listenAddr = fc.Listen
	}
	if cfg.dialAddr == "" {
		cfg.dialAddr = fc.Dial
	}
	if cfg.logLevel == "info" && fc.LogLevel != "" {
		cfg.logLevel = fc.LogLevel
	}
	if len(cfg.profiles) == 0 {
		cfg.profiles = fc.Profiles
	}
	return nil
}
