package acp

import (
	"log/slog"
	"time"
)

// Default engine configuration values.
const (
	defaultBinary           = "copilot"
	defaultGracePeriod      = 5 * time.Second
	defaultHandshakeTimeout = 30 * time.Second
	defaultSessionTimeout   = 30 * time.Second
	defaultTurnTimeout      = 10 * time.Minute // turns legitimately run for minutes
	defaultMaxMessageSize   = 4 << 20
)

// defaultArgs switches the agent into stdio JSON-RPC mode.
var defaultArgs = []string{"--stdio"}

// EngineOptions holds resolved construction-time configuration.
type EngineOptions struct {
	// Binary is the agent executable name or path.
	Binary string

	// Args are the protocol arguments passed to the binary.
	Args []string

	// Env is appended to the inherited environment.
	Env []string

	// SearchDirs are extra directories consulted after PATH when
	// resolving Binary. Well-known install directories are always
	// consulted last.
	SearchDirs []string

	// GracePeriod is how long stop waits after SIGTERM before SIGKILL.
	GracePeriod time.Duration

	// HandshakeTimeout bounds initialize during start.
	HandshakeTimeout time.Duration

	// SessionTimeout bounds session/new.
	SessionTimeout time.Duration

	// TurnTimeout bounds one session/prompt call.
	TurnTimeout time.Duration

	// MaxMessageSize is the maximum inbound frame size in bytes.
	MaxMessageSize int

	// Policy decides inbound permission requests. Defaults to
	// AutoApprove.
	Policy PermissionPolicy

	// Logger receives engine diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*EngineOptions)

// WithBinary sets the agent executable name or path.
func WithBinary(binary string) EngineOption {
	return func(o *EngineOptions) {
		if binary != "" {
			o.Binary = binary
		}
	}
}

// WithArgs replaces the protocol arguments passed to the binary.
func WithArgs(args ...string) EngineOption {
	return func(o *EngineOptions) {
		o.Args = args
	}
}

// WithEnv appends environment variables (KEY=VALUE) to the agent's
// inherited environment.
func WithEnv(env ...string) EngineOption {
	return func(o *EngineOptions) {
		o.Env = append(o.Env, env...)
	}
}

// WithSearchDirs sets extra directories consulted when resolving the
// binary.
func WithSearchDirs(dirs ...string) EngineOption {
	return func(o *EngineOptions) {
		o.SearchDirs = dirs
	}
}

// WithGracePeriod sets the SIGTERM-to-SIGKILL grace period.
// Values <= 0 are ignored.
func WithGracePeriod(d time.Duration) EngineOption {
	return func(o *EngineOptions) {
		if d > 0 {
			o.GracePeriod = d
		}
	}
}

// WithHandshakeTimeout sets the deadline for the initialize handshake.
// Values <= 0 are ignored.
func WithHandshakeTimeout(d time.Duration) EngineOption {
	return func(o *EngineOptions) {
		if d > 0 {
			o.HandshakeTimeout = d
		}
	}
}

// WithSessionTimeout sets the deadline for session/new. Values <= 0
// are ignored.
func WithSessionTimeout(d time.Duration) EngineOption {
	return func(o *EngineOptions) {
		if d > 0 {
			o.SessionTimeout = d
		}
	}
}

// WithTurnTimeout sets the deadline for one prompt turn. Values <= 0
// are ignored.
func WithTurnTimeout(d time.Duration) EngineOption {
	return func(o *EngineOptions) {
		if d > 0 {
			o.TurnTimeout = d
		}
	}
}

// WithMaxMessageSize sets the maximum inbound frame size in bytes.
// Values <= 0 are ignored.
func WithMaxMessageSize(n int) EngineOption {
	return func(o *EngineOptions) {
		if n > 0 {
			o.MaxMessageSize = n
		}
	}
}

// WithPermissionPolicy replaces the default auto-approve policy.
func WithPermissionPolicy(p PermissionPolicy) EngineOption {
	return func(o *EngineOptions) {
		if p != nil {
			o.Policy = p
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(log *slog.Logger) EngineOption {
	return func(o *EngineOptions) {
		if log != nil {
			o.Logger = log
		}
	}
}

func resolveEngineOptions(opts ...EngineOption) EngineOptions {
	o := EngineOptions{
		Binary:           defaultBinary,
		Args:             defaultArgs,
		GracePeriod:      defaultGracePeriod,
		HandshakeTimeout: defaultHandshakeTimeout,
		SessionTimeout:   defaultSessionTimeout,
		TurnTimeout:      defaultTurnTimeout,
		MaxMessageSize:   defaultMaxMessageSize,
		Policy:           AutoApprove,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
