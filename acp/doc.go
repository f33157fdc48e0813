// Package acp speaks the agent client protocol to a coding-agent
// subprocess: newline-delimited JSON-RPC 2.0 over stdin/stdout, with
// streamed session/update notifications and reverse requests from the
// agent for permissions and file access.
//
// Engine is the entry point. It locates and launches the agent binary,
// runs the initialize handshake, and exposes sessions, prompt turns,
// cancellation, and notification subscriptions. When the subprocess
// dies the engine restarts it transparently and retries the failed
// call once.
package acp
