package acp

import "encoding/json"

// JSON-RPC 2.0 method names used by the bridge.
const (
	MethodInitialize        = "initialize"
	MethodSessionNew        = "session/new"
	MethodSessionPrompt     = "session/prompt"
	MethodSessionCancel     = "session/cancel"
	MethodSessionUpdate     = "session/update"
	MethodRequestPermission = "session/request_permission"
	MethodFSReadTextFile    = "fs/read_text_file"
	MethodFSWriteTextFile   = "fs/write_text_file"
)

// Protocol and client identity constants.
const (
	protocolVersion = 1 // integer, not semver
	clientName      = "agentbridge"
	clientVersion   = "0.1.0"
)

// --- Initialize ---

// initializeParams begins the capability handshake.
type initializeParams struct {
	ProtocolVersion    int                 `json:"protocolVersion"`
	ClientCapabilities *clientCapabilities `json:"clientCapabilities,omitempty"`
	ClientInfo         *implementation     `json:"clientInfo,omitempty"`
}

// initializeResult is the agent's response to initialize.
type initializeResult struct {
	ProtocolVersion   int             `json:"protocolVersion"`
	AgentCapabilities json.RawMessage `json:"agentCapabilities,omitempty"`
	AgentInfo         *implementation `json:"agentInfo,omitempty"`
	AuthMethods       []authMethod    `json:"authMethods,omitempty"`
}

// implementation identifies a client or agent.
type implementation struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version,omitempty"`
}

// clientCapabilities declares the client-side operations this client
// serves. The bridge answers fs/read_text_file and fs/write_text_file,
// so both filesystem capabilities are advertised.
type clientCapabilities struct {
	FS *fileSystemCapability `json:"fs,omitempty"`
}

type fileSystemCapability struct {
	ReadTextFile  bool `json:"readTextFile"`
	WriteTextFile bool `json:"writeTextFile"`
}

// authMethod describes an authentication flow offered by the agent.
// The _meta object may carry a terminal-auth hint used to launch an
// external login command.
type authMethod struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Meta        *authMethodMeta `json:"_meta,omitempty"`
}

type authMethodMeta struct {
	Terminal *terminalAuthHint `json:"terminal,omitempty"`
}

type terminalAuthHint struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// --- Session ---

// newSessionParams creates a new agent session.
type newSessionParams struct {
	CWD string `json:"cwd"`
}

// newSessionResult is the response to session/new.
type newSessionResult struct {
	SessionID string      `json:"sessionId"`
	Models    *modelState `json:"models,omitempty"`
}

// modelState is the model catalog reported at session creation.
type modelState struct {
	CurrentModelID  string      `json:"currentModelId"`
	AvailableModels []modelInfo `json:"availableModels"`
}

// modelInfo describes one available model. The _meta.copilotUsage field
// is the usage multiplier — an opaque cost weight, never parsed here.
type modelInfo struct {
	ModelID     string     `json:"modelId"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Meta        *modelMeta `json:"_meta,omitempty"`
}

type modelMeta struct {
	CopilotUsage string `json:"copilotUsage,omitempty"`
}

// --- Prompt ---

// contentBlock is one element of a prompt content array: a text block
// or a resource block carrying reference content.
type contentBlock struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	Resource *resourceContents `json:"resource,omitempty"`
}

type resourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

// promptParams sends one user turn. Model is included only when the
// caller supplied one.
type promptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []contentBlock `json:"prompt"`
	Model     string         `json:"model,omitempty"`
}

// promptResult is the turn's terminal outcome.
type promptResult struct {
	StopReason string `json:"stopReason,omitempty"`
}

// cancelParams asks the agent to stop the in-flight turn. Notification
// only — the outstanding session/prompt still resolves normally.
type cancelParams struct {
	SessionID string `json:"sessionId"`
}

// --- Updates ---

// sessionNotification is the outer envelope of session/update.
type sessionNotification struct {
	SessionID string          `json:"sessionId"`
	Update    json.RawMessage `json:"update"`
}

// updateHeader extracts the discriminator from the inner update object.
type updateHeader struct {
	SessionUpdate string `json:"sessionUpdate"`
}

// --- Reverse requests ---

// requestPermissionParams is the wire form of a permission request.
type requestPermissionParams struct {
	SessionID string             `json:"sessionId"`
	ToolCall  toolCallRef        `json:"toolCall"`
	Options   []permissionOption `json:"options"`
}

type toolCallRef struct {
	ToolCallID string `json:"toolCallId"`
	Title      string `json:"title,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

type permissionOption struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
}

// requestPermissionResult always reports a selected option.
type requestPermissionResult struct {
	Outcome requestPermissionOutcome `json:"outcome"`
}

type requestPermissionOutcome struct {
	Outcome  string `json:"outcome"`
	OptionID string `json:"optionId,omitempty"`
}

// readTextFileParams is a file-read request from the agent. Line and
// Limit optionally select a window of the file (1-based start line).
type readTextFileParams struct {
	SessionID string `json:"sessionId,omitempty"`
	Path      string `json:"path"`
	Line      *int   `json:"line,omitempty"`
	Limit     *int   `json:"limit,omitempty"`
}

type readTextFileResult struct {
	Content string `json:"content"`
}

// writeTextFileParams is a file-write request from the agent. Content
// is a pointer so a missing key is distinguishable from an empty file.
type writeTextFileParams struct {
	SessionID string  `json:"sessionId,omitempty"`
	Path      string  `json:"path"`
	Content   *string `json:"content"`
}
