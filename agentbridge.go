// Package agentbridge connects an interactive front end to an external
// coding-agent subprocess over newline-delimited JSON-RPC 2.0 on the
// subprocess's stdin/stdout.
//
// The agent is not a plain request/response server. While a prompt turn
// is outstanding it streams session/update notifications back to the
// client, and it may issue requests of its own into the client —
// permission checks and file reads/writes — that must be answered
// before the turn can continue. The [acp] package implements that
// engine: framing, request correlation, notification fan-out, the
// embedded reverse-RPC server, process supervision, and transparent
// restart after a crash.
//
// # Vocabulary
//
// The root package defines the shared vocabulary consumers see:
//
//   - [Session], [Model], [AuthMethod] — session state from the agent
//   - [Notification], [Update] — streamed data during a turn
//   - [Error], [Recoverable] — typed failures with an explicit
//     recoverability flag, so callers branch without string-matching
//
// # Quick start
//
//	engine := acp.New(acp.WithBinary("copilot"))
//	if err := engine.Start(ctx); err != nil { ... }
//	sess, err := engine.CreateSession(ctx, "/path/to/project")
//	stop, err := engine.Prompt(ctx, acp.PromptRequest{
//	    Text:   "explain this repo",
//	    OnText: func(chunk string) { fmt.Print(chunk) },
//	})
package agentbridge
