// Package config loads bridge configuration from YAML files. A
// user-level file provides defaults and a project-level file overrides
// them, so a repository can pin its own agent binary or timeouts.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dstanek/agentbridge/acp"
)

// Agent selects and locates the agent subprocess.
type Agent struct {
	Binary     string   `yaml:"binary"`
	Args       []string `yaml:"args"`
	SearchDirs []string `yaml:"search_dirs"`
	Env        []string `yaml:"env"`
}

// Timeouts bounds the protocol phases, in seconds. Zero values keep
// the engine defaults.
type Timeouts struct {
	HandshakeSeconds int `yaml:"handshake_seconds"`
	SessionSeconds   int `yaml:"session_seconds"`
	TurnSeconds      int `yaml:"turn_seconds"`
	GraceSeconds     int `yaml:"grace_seconds"`
}

// Log configures structured logging.
type Log struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // empty = stderr
}

// Config is the full bridge configuration.
type Config struct {
	Agent    Agent    `yaml:"agent"`
	Timeouts Timeouts `yaml:"timeouts"`
	Log      Log      `yaml:"log"`
}

// Load reads the user-level config (~/.agentbridge/config.yaml) then
// the project-level one (./.agentbridge/config.yaml), with the latter
// taking precedence. Missing files are fine; a file that exists but
// fails to parse is an error.
func Load() (*Config, error) {
	cfg := &Config{}

	if home, err := os.UserHomeDir(); err == nil {
		if err := loadFromFile(filepath.Join(home, ".agentbridge", "config.yaml"), cfg); err != nil {
			return nil, fmt.Errorf("user config: %w", err)
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("working directory: %w", err)
	}
	if err := loadFromFile(filepath.Join(wd, ".agentbridge", "config.yaml"), cfg); err != nil {
		return nil, fmt.Errorf("project config: %w", err)
	}

	return cfg, nil
}

// loadFromFile merges path into cfg. Unmarshal overwrites only fields
// present in the YAML, which gives the project-over-user precedence.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// EngineOptions converts the configuration into engine options. Unset
// fields contribute nothing, leaving the engine defaults intact.
func (c *Config) EngineOptions() []acp.EngineOption {
	var opts []acp.EngineOption
	if c.Agent.Binary != "" {
		opts = append(opts, acp.WithBinary(c.Agent.Binary))
	}
	if len(c.Agent.Args) > 0 {
		opts = append(opts, acp.WithArgs(c.Agent.Args...))
	}
	if len(c.Agent.SearchDirs) > 0 {
		opts = append(opts, acp.WithSearchDirs(c.Agent.SearchDirs...))
	}
	if len(c.Agent.Env) > 0 {
		opts = append(opts, acp.WithEnv(c.Agent.Env...))
	}
	if c.Timeouts.HandshakeSeconds > 0 {
		opts = append(opts, acp.WithHandshakeTimeout(time.Duration(c.Timeouts.HandshakeSeconds)*time.Second))
	}
	if c.Timeouts.SessionSeconds > 0 {
		opts = append(opts, acp.WithSessionTimeout(time.Duration(c.Timeouts.SessionSeconds)*time.Second))
	}
	if c.Timeouts.TurnSeconds > 0 {
		opts = append(opts, acp.WithTurnTimeout(time.Duration(c.Timeouts.TurnSeconds)*time.Second))
	}
	if c.Timeouts.GraceSeconds > 0 {
		opts = append(opts, acp.WithGracePeriod(time.Duration(c.Timeouts.GraceSeconds)*time.Second))
	}
	return opts
}

// Logger builds a slog logger from the log settings. An unknown level
// falls back to info; an unwritable log file falls back to stderr.
func (c *Config) Logger() *slog.Logger {
	level := parseLevel(c.Log.Level)

	out := os.Stderr
	if c.Log.File != "" {
		f, err := os.OpenFile(c.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			out = f
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
