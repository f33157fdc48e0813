//go:build !windows

package acp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dstanek/agentbridge"
	"github.com/dstanek/agentbridge/internal/errfmt"
	"github.com/dstanek/agentbridge/internal/metrics"
)

// State is the engine's lifecycle phase, for observability.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Engine is the session façade over one agent subprocess. It owns the
// process handle and the current session exclusively; listeners and
// concurrent callers share only the router and the pending-call table,
// each behind its own lock.
//
// When any call finds the subprocess dead, the engine re-runs the full
// start sequence (spawn + handshake) and retries the call once. It
// never retries indefinitely.
type Engine struct {
	opts   EngineOptions
	log    *slog.Logger
	router *router

	state  atomic.Int32
	closed atomic.Bool

	mu          sync.Mutex // guards the whole start/stop sequence and the fields below
	proc        *process
	agentInfo   *agentbridge.AgentInfo
	authMethods []agentbridge.AuthMethod

	// smu guards session state. Ordered after mu: code holding mu may
	// take smu, never the other way around.
	smu     sync.Mutex
	sess    *agentbridge.Session
	lastCWD string
}

// New creates an engine. The subprocess is not launched until Start or
// the first session call.
func New(opts ...EngineOption) *Engine {
	o := resolveEngineOptions(opts...)
	return &Engine{
		opts:   o,
		log:    o.Logger,
		router: newRouter(o.Logger),
	}
}

// PromptRequest is one user turn.
type PromptRequest struct {
	// Text is the primary message. It becomes the final content block.
	Text string

	// Resources are reference content blocks prepended before the text
	// block, in the order given.
	Resources []agentbridge.Resource

	// Model is included in the request only when non-empty.
	Model string

	// OnText receives agent_message_chunk text as it streams.
	OnText func(text string)

	// OnUpdate receives every other update for the session during the
	// turn (thoughts, tool calls, plans, unknown kinds).
	OnUpdate func(u agentbridge.Update)
}

// Subscribe registers a listener for every inbound notification and
// reverse request, across process restarts. Callers must Unsubscribe
// with the returned handle.
func (e *Engine) Subscribe(fn Listener) ListenerHandle {
	return e.router.subscribe(fn)
}

// Unsubscribe removes a listener.
func (e *Engine) Unsubscribe(h ListenerHandle) {
	e.router.unsubscribe(h)
}

// State returns the engine's lifecycle phase.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Healthy reports whether the subprocess is alive and the handshake
// has completed.
func (e *Engine) Healthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed.Load() && e.proc != nil && e.proc.healthy()
}

// AgentInfo returns the agent identity from the last handshake, or nil
// before the first successful start.
func (e *Engine) AgentInfo() *agentbridge.AgentInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agentInfo
}

// AuthMethods returns the authentication flows the agent offered in
// the last handshake.
func (e *Engine) AuthMethods() []agentbridge.AuthMethod {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authMethods
}

// Session returns the current session, if one exists.
func (e *Engine) Session() (agentbridge.Session, bool) {
	e.smu.Lock()
	defer e.smu.Unlock()
	if e.sess == nil {
		return agentbridge.Session{}, false
	}
	return *e.sess, true
}

// Models returns the current session's model catalog.
func (e *Engine) Models() []agentbridge.Model {
	e.smu.Lock()
	defer e.smu.Unlock()
	if e.sess == nil {
		return nil
	}
	return e.sess.Models
}

// Start launches the subprocess and performs the initialize handshake.
// Calling Start is optional — session calls launch on demand — but it
// lets a front end surface startup and auth problems early. On a dead
// subprocess it restarts, reaping the old process and discarding the
// old agent's session, exactly like an on-demand restart.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.ensureProcessLocked(ctx)
	return err
}

// Close terminates the subprocess and rejects all further operations.
// Idempotent; safe to call before ever starting.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.state.Store(int32(StateClosed))
	if e.proc != nil {
		_ = e.proc.stop()
		e.proc = nil
	}
	e.discardSession()
	return nil
}

// CreateSession asks the agent for a new session rooted at cwd and
// populates the model catalog. The previous session, if any, is
// replaced.
func (e *Engine) CreateSession(ctx context.Context, cwd string) (agentbridge.Session, error) {
	if cwd != "" && !filepath.IsAbs(cwd) {
		return agentbridge.Session{}, &agentbridge.Error{
			Op:          MethodSessionNew,
			Err:         fmt.Errorf("cwd must be an absolute path, got %q", cwd),
			Recoverable: false,
		}
	}

	for attempt := 0; ; attempt++ {
		sess, err := e.createSessionOnce(ctx, cwd)
		if err != nil && attempt == 0 && errors.Is(err, agentbridge.ErrTerminated) {
			continue // process died — ensureProcess restarts on retry
		}
		return sess, err
	}
}

func (e *Engine) createSessionOnce(ctx context.Context, cwd string) (agentbridge.Session, error) {
	p, err := e.ensureProcess(ctx)
	if err != nil {
		return agentbridge.Session{}, err
	}

	cctx, cancel := context.WithTimeout(ctx, e.opts.SessionTimeout)
	defer cancel()

	var result newSessionResult
	if err := p.conn.call(cctx, MethodSessionNew, newSessionParams{CWD: cwd}, &result); err != nil {
		return agentbridge.Session{}, e.wrapCallError(MethodSessionNew, err)
	}
	if err := validateSessionID(result.SessionID); err != nil {
		return agentbridge.Session{}, &agentbridge.Error{Op: MethodSessionNew, Err: err, Recoverable: false}
	}

	sess := agentbridge.Session{ID: result.SessionID, CWD: cwd}
	if m := result.Models; m != nil {
		sess.CurrentModelID = m.CurrentModelID
		for _, mi := range m.AvailableModels {
			model := agentbridge.Model{
				ID:          mi.ModelID,
				Name:        mi.Name,
				Description: mi.Description,
			}
			if mi.Meta != nil {
				model.UsageMultiplier = mi.Meta.CopilotUsage
			}
			sess.Models = append(sess.Models, model)
		}
	}

	e.smu.Lock()
	e.sess = &sess
	e.lastCWD = cwd
	e.smu.Unlock()
	return sess, nil
}

// Prompt sends one user turn and blocks until the agent's terminal
// response. Updates for the turn's session stream through the request
// callbacks via a transient listener that is always removed on return,
// whatever the outcome. Returns the turn's stop reason.
func (e *Engine) Prompt(ctx context.Context, req PromptRequest) (string, error) {
	for attempt := 0; ; attempt++ {
		stop, err := e.promptOnce(ctx, req)
		if err != nil && attempt == 0 && errors.Is(err, agentbridge.ErrTerminated) {
			continue
		}
		return stop, err
	}
}

func (e *Engine) promptOnce(ctx context.Context, req PromptRequest) (string, error) {
	p, sess, err := e.ensureSession(ctx)
	if err != nil {
		return "", err
	}

	handle := e.router.subscribe(turnListener(sess.ID, req))
	defer e.router.unsubscribe(handle)

	tctx, cancel := context.WithTimeout(ctx, e.opts.TurnTimeout)
	defer cancel()

	start := time.Now()
	var result promptResult
	err = p.conn.call(tctx, MethodSessionPrompt, buildPromptParams(sess.ID, req), &result)
	metrics.TurnDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		return "", e.wrapCallError(MethodSessionPrompt, err)
	}
	metrics.TurnsTotal.WithLabelValues("ok").Inc()
	return errfmt.SanitizeStopReason(result.StopReason), nil
}

// Cancel asks the agent to stop the in-flight turn. Fire-and-forget:
// no response is expected, and the outstanding Prompt call still
// resolves normally with the agent's final answer. A failed write is
// logged, never returned.
func (e *Engine) Cancel() {
	e.mu.Lock()
	p := e.proc
	e.mu.Unlock()
	e.smu.Lock()
	sess := e.sess
	e.smu.Unlock()

	if p == nil || sess == nil || !p.healthy() {
		e.log.Debug("cancel: no active session")
		return
	}
	if err := p.conn.notify(MethodSessionCancel, cancelParams{SessionID: sess.ID}); err != nil {
		e.log.Warn("session/cancel write failed", "error", err)
	}
}

// --- Internal ---

// ensureProcess returns a healthy process, transparently re-running
// the full start sequence when the current one is dead. The session is
// discarded with its process — it belongs to the dead agent.
func (e *Engine) ensureProcess(ctx context.Context) (*process, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureProcessLocked(ctx)
}

func (e *Engine) ensureProcessLocked(ctx context.Context) (*process, error) {
	if e.closed.Load() {
		return nil, &agentbridge.Error{Op: "start", Err: agentbridge.ErrClosed, Recoverable: false}
	}
	if e.proc != nil {
		if e.proc.healthy() {
			return e.proc, nil
		}
		e.log.Info("agent process unhealthy, restarting")
		metrics.RestartsTotal.Inc()
		e.proc.kill()
		e.proc = nil
		e.discardSession()
	}
	return e.startLocked(ctx)
}

// startLocked spawns the agent and performs the handshake. Caller
// holds e.mu, making start/stop/restart mutually exclusive.
func (e *Engine) startLocked(ctx context.Context) (*process, error) {
	e.state.Store(int32(StateInitializing))

	p, stdout, stderr, err := spawnAgent(e.opts)
	if err != nil {
		e.state.Store(int32(StateFailed))
		return nil, &agentbridge.Error{Op: "start", Err: err, Recoverable: false}
	}

	handler := &reverseHandler{policy: e.opts.Policy, router: e.router, log: e.log}
	c := newConn(stdout, p.stdin, e.opts.MaxMessageSize, e.log)
	c.onNotify = e.dispatchNotification
	c.onRequest = handler.handle
	p.conn = c
	p.run(stderr)

	hctx, cancel := context.WithTimeout(ctx, e.opts.HandshakeTimeout)
	defer cancel()

	init, err := e.handshake(hctx, p)
	if err != nil {
		p.kill()
		e.state.Store(int32(StateFailed))
		return nil, err // engine remains restartable
	}

	e.agentInfo = agentInfoFromWire(init.AgentInfo)
	e.authMethods = authMethodsFromWire(init.AuthMethods)
	p.ready.Store(true)
	e.proc = p
	e.state.Store(int32(StateReady))
	return p, nil
}

func (e *Engine) handshake(ctx context.Context, p *process) (*initializeResult, error) {
	params := initializeParams{
		ProtocolVersion: protocolVersion,
		ClientInfo:      &implementation{Name: clientName, Version: clientVersion},
		ClientCapabilities: &clientCapabilities{
			FS: &fileSystemCapability{ReadTextFile: true, WriteTextFile: true},
		},
	}
	var result initializeResult
	if err := p.conn.call(ctx, MethodInitialize, params, &result); err != nil {
		return nil, e.wrapCallError(MethodInitialize, err)
	}
	return &result, nil
}

// ensureSession returns the current session, recreating one with the
// last working directory when a previous session was discarded (auth
// failure, restart). A prompt before any CreateSession is an error.
func (e *Engine) ensureSession(ctx context.Context) (*process, agentbridge.Session, error) {
	p, err := e.ensureProcess(ctx)
	if err != nil {
		return nil, agentbridge.Session{}, err
	}

	e.smu.Lock()
	if e.sess != nil {
		sess := *e.sess
		e.smu.Unlock()
		return p, sess, nil
	}
	cwd := e.lastCWD
	e.smu.Unlock()

	if cwd == "" {
		return nil, agentbridge.Session{}, &agentbridge.Error{
			Op:          MethodSessionPrompt,
			Err:         agentbridge.ErrNoSession,
			Recoverable: false,
		}
	}
	sess, err := e.CreateSession(ctx, cwd)
	if err != nil {
		return nil, agentbridge.Session{}, err
	}
	return p, sess, nil
}

// dispatchNotification fans one inbound notification out to listeners.
func (e *Engine) dispatchNotification(method string, params json.RawMessage) {
	n := agentbridge.Notification{Method: method, Params: params}
	var env struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(params, &env); err == nil {
		n.SessionID = env.SessionID
	}
	e.router.dispatch(n)
}

// wrapCallError classifies a failed call into the typed error
// taxonomy. Agent-side errors whose text indicates an authentication
// or availability problem are non-recoverable, and the session is
// discarded so the next call re-creates one.
func (e *Engine) wrapCallError(op string, err error) error {
	if errors.Is(err, agentbridge.ErrTerminated) {
		if e.isClosed() {
			return &agentbridge.Error{Op: op, Err: agentbridge.ErrClosed, Recoverable: false}
		}
		return &agentbridge.Error{Op: op, Err: err, Recoverable: true}
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		msg := errfmt.Truncate(rpcErr.Text())
		if agentbridge.IsAuthFailure(msg) {
			e.discardSession()
			return &agentbridge.Error{Op: op, Err: rpcErr, Recoverable: false}
		}
		return &agentbridge.Error{Op: op, Err: rpcErr, Recoverable: true}
	}

	// Timeouts and caller cancellation — recoverable; the pending
	// entry is already removed, so a late response is dropped.
	return &agentbridge.Error{Op: op, Err: err, Recoverable: true}
}

func (e *Engine) isClosed() bool {
	return e.closed.Load()
}

func (e *Engine) discardSession() {
	e.smu.Lock()
	e.sess = nil
	e.smu.Unlock()
}

// turnListener filters updates to the turn's session and dispatches by
// update kind: message chunks to OnText, everything else to OnUpdate.
func turnListener(sessionID string, req PromptRequest) Listener {
	return func(n agentbridge.Notification) {
		if n.Request || n.Method != MethodSessionUpdate || n.SessionID != sessionID {
			return
		}
		_, u, ok := parseUpdateEnvelope(n.Params)
		if !ok {
			return
		}
		if u.Kind == agentbridge.UpdateAgentMessageChunk && req.OnText != nil {
			req.OnText(u.Text)
			return
		}
		if req.OnUpdate != nil {
			req.OnUpdate(u)
		}
	}
}

// buildPromptParams assembles the content array: resource blocks first,
// caller order preserved, then the primary text block.
func buildPromptParams(sessionID string, req PromptRequest) promptParams {
	blocks := make([]contentBlock, 0, len(req.Resources)+1)
	for _, r := range req.Resources {
		blocks = append(blocks, contentBlock{
			Type: "resource",
			Resource: &resourceContents{
				URI:      r.URI,
				MimeType: r.MimeType,
				Text:     r.Text,
			},
		})
	}
	blocks = append(blocks, contentBlock{Type: "text", Text: req.Text})
	return promptParams{
		SessionID: sessionID,
		Prompt:    blocks,
		Model:     req.Model,
	}
}

// sessionIDPattern matches safe session identifiers.
var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-]{1,256}$`)

func validateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("session ID %q does not match allowed pattern", id)
	}
	return nil
}

func agentInfoFromWire(impl *implementation) *agentbridge.AgentInfo {
	if impl == nil {
		return nil
	}
	return &agentbridge.AgentInfo{Name: impl.Name, Title: impl.Title, Version: impl.Version}
}

func authMethodsFromWire(methods []authMethod) []agentbridge.AuthMethod {
	out := make([]agentbridge.AuthMethod, 0, len(methods))
	for _, m := range methods {
		am := agentbridge.AuthMethod{ID: m.ID, Name: m.Name, Description: m.Description}
		if m.Meta != nil && m.Meta.Terminal != nil {
			am.Terminal = &agentbridge.TerminalAuth{
				Command: m.Meta.Terminal.Command,
				Args:    m.Meta.Terminal.Args,
			}
		}
		out = append(out, am)
	}
	return out
}
