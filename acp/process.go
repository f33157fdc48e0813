//go:build !windows

package acp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dstanek/agentbridge"
)

// locateAgent resolves the agent executable: PATH first, then the
// caller's extra directories, then a small set of well-known install
// locations. Returns a typed not-found error when nothing matches.
func locateAgent(binary string, extraDirs []string) (string, error) {
	if binary == "" {
		return "", fmt.Errorf("%w: no binary configured", agentbridge.ErrAgentNotFound)
	}
	if resolved, err := exec.LookPath(binary); err == nil {
		return resolved, nil
	}
	for _, dir := range append(append([]string{}, extraDirs...), wellKnownDirs()...) {
		candidate := filepath.Join(dir, binary)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q not on PATH or in known install directories", agentbridge.ErrAgentNotFound, binary)
}

// wellKnownDirs are install locations checked after PATH. The npm
// prefix covers agents installed globally via npm without PATH setup.
func wellKnownDirs() []string {
	dirs := []string{"/usr/local/bin", "/opt/homebrew/bin"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".npm-global", "bin"),
		)
	}
	return dirs
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

// process owns one agent subprocess: its pipes, its Conn, and the
// worker goroutines tied to its lifetime. The engine replaces the
// whole process on restart rather than reusing any part of it.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	conn  *conn
	log   *slog.Logger
	grace time.Duration

	ready    atomic.Bool // handshake completed
	stopping atomic.Bool
	stopOnce sync.Once

	done    chan struct{} // closed after readLoop and cmd.Wait finish
	termErr error
}

// spawnAgent resolves and launches the agent with separate
// stdin/stdout pipes. Stderr is not part of the protocol; it is
// drained to the logger.
func spawnAgent(opts EngineOptions) (*process, io.ReadCloser, io.ReadCloser, error) {
	resolved, err := locateAgent(opts.Binary, opts.SearchDirs)
	if err != nil {
		return nil, nil, nil, err
	}

	cmd := exec.Command(resolved, opts.Args...)
	cmd.Env = append(os.Environ(), opts.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("start %s: %w", resolved, err)
	}

	p := &process{
		cmd:   cmd,
		stdin: stdin,
		log:   opts.Logger,
		grace: opts.GracePeriod,
		done:  make(chan struct{}),
	}
	return p, stdout, stderr, nil
}

// run starts the supervised workers: the read loop and the stderr
// drain. When both finish the subprocess is reaped and done closes —
// process termination is an observable event, not a dangling thread.
func (p *process) run(stderr io.Reader) {
	g := new(errgroup.Group)
	g.Go(func() error {
		p.conn.readLoop()
		return p.conn.err()
	})
	g.Go(func() error {
		p.drainStderr(stderr)
		return nil
	})
	go func() {
		if err := g.Wait(); err != nil {
			p.log.Warn("read loop ended with error", "error", err)
		}
		p.termErr = p.cmd.Wait()
		close(p.done)
	}()
}

// drainStderr logs agent stderr lines at debug level.
func (p *process) drainStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 256<<10)
	for sc.Scan() {
		p.log.Debug("agent stderr", "line", sc.Text())
	}
}

// healthy reports whether the subprocess is alive, the handshake has
// completed, and no stop is underway.
func (p *process) healthy() bool {
	select {
	case <-p.done:
		return false
	default:
	}
	return p.ready.Load() && !p.stopping.Load()
}

// stop terminates the subprocess: close stdin, SIGTERM, wait up to the
// grace period, then SIGKILL. Idempotent — later calls just wait for
// the first to finish.
func (p *process) stop() error {
	p.stopOnce.Do(func() {
		p.stopping.Store(true)
		if p.stdin != nil {
			_ = p.stdin.Close()
		}
		_ = signalProcess(p.cmd.Process, syscall.SIGTERM)
		select {
		case <-p.done:
		case <-time.After(p.grace):
			_ = signalProcess(p.cmd.Process, os.Kill)
		}
	})
	<-p.done
	return p.termErr
}

// kill terminates immediately, skipping the grace period. Used when a
// handshake fails and there is nothing worth shutting down cleanly.
func (p *process) kill() {
	p.stopOnce.Do(func() {
		p.stopping.Store(true)
		if p.stdin != nil {
			_ = p.stdin.Close()
		}
		_ = signalProcess(p.cmd.Process, os.Kill)
	})
	<-p.done
}

// signalProcess sends sig, treating an already-exited process as
// success.
func signalProcess(proc *os.Process, sig os.Signal) error {
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
