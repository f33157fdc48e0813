package agentbridge

import "encoding/json"

// Session is the engine's view of one agent session: the opaque
// identifier issued by the agent, the working directory it was created
// with, and the model catalog reported by session/new.
//
// Session is a value type — it carries no runtime state and is not
// persisted by this layer.
type Session struct {
	// ID is the opaque session identifier issued by the agent.
	ID string `json:"id"`

	// CWD is the working directory the session was created with.
	CWD string `json:"cwd"`

	// Models is the catalog reported once at session creation.
	Models []Model `json:"models,omitempty"`

	// CurrentModelID is the agent's initially selected model.
	CurrentModelID string `json:"current_model_id,omitempty"`
}

// Model describes one model the agent offers for a session.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// UsageMultiplier is an opaque cost weight such as "1x", "3x", or
	// "0x". This layer never parses it as a number.
	UsageMultiplier string `json:"usage_multiplier,omitempty"`
}

// AgentInfo identifies the agent implementation, from the initialize
// handshake.
type AgentInfo struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version,omitempty"`
}

// AuthMethod is one authentication flow offered by the agent.
type AuthMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Terminal, if non-nil, is an external command the front end can
	// launch to drive an interactive login flow.
	Terminal *TerminalAuth `json:"terminal,omitempty"`
}

// TerminalAuth is the command line for a terminal-based login flow.
type TerminalAuth struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Resource is caller-supplied reference content attached to a prompt.
// Each resource becomes one resource content block, preserving the
// order the caller supplied.
type Resource struct {
	URI      string `json:"uri"`
	MimeType string `json:"mime_type,omitempty"`
	Text     string `json:"text"`
}

// Notification is one inbound frame fanned out to listeners: a
// notification from the agent, or — flagged by Request — a reverse
// request forwarded for observability only.
type Notification struct {
	// Method is the JSON-RPC method name.
	Method string `json:"method"`

	// SessionID is the session the frame belongs to, when the params
	// carry one. Empty otherwise.
	SessionID string `json:"session_id,omitempty"`

	// Params is the raw params object.
	Params json.RawMessage `json:"params,omitempty"`

	// Request reports whether the frame was a reverse request from the
	// agent (carried an id) rather than a plain notification.
	Request bool `json:"request,omitempty"`
}

// Update kinds carried by session/update notifications. Unknown kinds
// pass through with the raw payload preserved.
const (
	UpdateAgentMessageChunk = "agent_message_chunk"
	UpdateAgentThoughtChunk = "agent_thought_chunk"
	UpdateToolCall          = "tool_call"
	UpdateToolCallUpdate    = "tool_call_update"
	UpdatePlan              = "plan"
)

// Update is one parsed session/update payload.
type Update struct {
	// Kind is the sessionUpdate discriminator value.
	Kind string `json:"kind"`

	// Text is the chunk text for *_chunk kinds.
	Text string `json:"text,omitempty"`

	// Tool is populated for tool_call and tool_call_update.
	Tool *ToolCall `json:"tool,omitempty"`

	// Plan is populated for plan updates.
	Plan []PlanEntry `json:"plan,omitempty"`

	// Raw is the original inner update object, for consumers that need
	// fields this layer does not model.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// ToolCall describes a tool invocation reported by the agent.
type ToolCall struct {
	ID     string          `json:"id,omitempty"`
	Title  string          `json:"title,omitempty"`
	Kind   string          `json:"kind,omitempty"`
	Status string          `json:"status,omitempty"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

// PlanEntry is one step of an agent-reported plan.
type PlanEntry struct {
	Content  string `json:"content"`
	Priority string `json:"priority,omitempty"`
	Status   string `json:"status,omitempty"`
}
